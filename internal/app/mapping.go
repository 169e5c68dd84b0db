package app

import (
	"fmt"

	"logrelay/internal/config"
	"logrelay/internal/input"
	"logrelay/internal/relay"
	"logrelay/internal/storage"
	kit "logrelay/internal/transport"
	telegram "logrelay/internal/transport/telegram/adapter"
)

func mapSinkConfig(cfg *config.Config) (relay.SinkConfig, error) {
	to, err := kit.ParseChatTarget(cfg.Telegram.ChatID, cfg.Telegram.ThreadID)
	if err != nil {
		return relay.SinkConfig{}, fmt.Errorf("telegram.chat_id: %w", err)
	}
	timeout, err := cfg.Telegram.SendTimeoutDuration()
	if err != nil {
		return relay.SinkConfig{}, err
	}
	return relay.SinkConfig{
		Name:        "telegram",
		MaxMessages: cfg.Relay.MaxMessages,
		Period:      cfg.Relay.Period(),
		MinSeverity: relay.ParseSeverity(cfg.Relay.MinLevel, relay.Error),
		Target:      to,
		SendTimeout: timeout,
	}, nil
}

func mapAdapterConfig(cfg *config.Config) (telegram.Config, error) {
	timeout, err := cfg.Telegram.SendTimeoutDuration()
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       cfg.Telegram.Token,
		URL:         cfg.Telegram.APIURL,
		HTTPTimeout: timeout,
		RatePerSec:  cfg.Telegram.RatePerSec,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	driver := cfg.StorageDriver()
	if driver == "" {
		return storage.Config{}, false, nil
	}
	busy, err := cfg.Storage.BusyTimeoutDuration()
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{Driver: driver, Path: cfg.Storage.Path, BusyTimeout: busy}, true, nil
}

func inputDefaults(cfg *config.Config) input.Defaults {
	return input.Defaults{
		Severity: relay.ParseSeverity(cfg.Inputs.DefaultLevel, relay.Info),
		Logger:   cfg.Inputs.DefaultLogger,
	}
}
