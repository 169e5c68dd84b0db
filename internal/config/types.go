package config

import "strings"

// Defaults applied by (*Config).ApplyDefaults.
const (
	DefaultMaxMessages   = 10
	DefaultPeriodMinutes = 10
	DefaultRelayLevel    = "ERROR"
	DefaultConsoleLevel  = "DEBUG"
	DefaultSendTimeout   = "10s"
	DefaultRatePerSec    = 1.0
	DefaultLogLevel      = "INFO"
	DefaultMetricsAddr   = "127.0.0.1:9464"
	DefaultInputLevel    = "INFO"
	DefaultInputLogger   = "stdin"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Relay    RelayConfig    `json:"relay"`
	Console  ConsoleConfig  `json:"console"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Metrics  MetricsConfig  `json:"metrics"`
	Report   ReportConfig   `json:"report"`
	Inputs   InputsConfig   `json:"inputs"`
}

type TelegramConfig struct {
	Token string `json:"token" validate:"required"`
	// ChatID is a numeric chat id, optionally "id:thread".
	ChatID      string  `json:"chat_id" validate:"required,chatid"`
	ThreadID    int     `json:"thread_id,omitempty" validate:"gte=0"`
	APIURL      string  `json:"api_url,omitempty" validate:"omitempty,url"`
	SendTimeout string  `json:"send_timeout,omitempty" validate:"duration"`
	RatePerSec  float64 `json:"rate_per_sec,omitempty" validate:"gte=0"`
}

type RelayConfig struct {
	MaxMessages   int    `json:"max_messages" validate:"gt=0"`
	PeriodMinutes int    `json:"period_minutes" validate:"gt=0"`
	MinLevel      string `json:"min_level" validate:"severity"`
}

type ConsoleConfig struct {
	// Enabled defaults to true when omitted.
	Enabled  *bool  `json:"enabled,omitempty"`
	MinLevel string `json:"min_level" validate:"severity"`
}

func (c ConsoleConfig) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }

type LoggingConfig struct {
	Level   string     `json:"level" validate:"omitempty,oneof=TRACE DEBUG INFO WARN WARNING ERROR trace debug info warn warning error"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig enables the delivery audit. Nil or driver "none" disables it.
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=none file sqlite"`
	Path        string `json:"path" validate:"required_if=Driver file,required_if=Driver sqlite"`
	BusyTimeout string `json:"busy_timeout,omitempty" validate:"duration"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty" validate:"omitempty,hostname_port"`
	// Pprof mounts /debug/pprof on the metrics listener.
	Pprof bool `json:"pprof,omitempty"`
}

// ReportConfig schedules a periodic relay statistics line on the operator log.
type ReportConfig struct {
	Schedule string `json:"schedule,omitempty" validate:"cronspec"`
}

type InputsConfig struct {
	Stdin         bool     `json:"stdin"`
	Files         []string `json:"files,omitempty" validate:"dive,required"`
	DefaultLevel  string   `json:"default_level,omitempty" validate:"severity"`
	DefaultLogger string   `json:"default_logger,omitempty"`
}

// ApplyDefaults fills zero values with the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Relay.MaxMessages == 0 {
		c.Relay.MaxMessages = DefaultMaxMessages
	}
	if c.Relay.PeriodMinutes == 0 {
		c.Relay.PeriodMinutes = DefaultPeriodMinutes
	}
	if strings.TrimSpace(c.Relay.MinLevel) == "" {
		c.Relay.MinLevel = DefaultRelayLevel
	}
	if strings.TrimSpace(c.Console.MinLevel) == "" {
		c.Console.MinLevel = DefaultConsoleLevel
	}
	if strings.TrimSpace(c.Telegram.SendTimeout) == "" {
		c.Telegram.SendTimeout = DefaultSendTimeout
	}
	if c.Telegram.RatePerSec == 0 {
		c.Telegram.RatePerSec = DefaultRatePerSec
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Addr) == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
	if strings.TrimSpace(c.Inputs.DefaultLevel) == "" {
		c.Inputs.DefaultLevel = DefaultInputLevel
	}
	if strings.TrimSpace(c.Inputs.DefaultLogger) == "" {
		c.Inputs.DefaultLogger = DefaultInputLogger
	}
}

// StorageDriver returns the normalized audit driver, "" when disabled.
func (c *Config) StorageDriver() string {
	if c == nil || c.Storage == nil {
		return ""
	}
	d := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if d == "none" {
		return ""
	}
	return d
}
