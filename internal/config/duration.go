package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationOrDefault parses raw; empty or zero yields def.
// path names the field in error messages.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

// Period is the sliding window length.
func (r RelayConfig) Period() time.Duration {
	return time.Duration(r.PeriodMinutes) * time.Minute
}

func (t TelegramConfig) SendTimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(DefaultSendTimeout)
	if err != nil {
		return 0, err
	}
	return ParseDurationOrDefault("telegram.send_timeout", t.SendTimeout, d)
}

func (s StorageConfig) BusyTimeoutDuration() (time.Duration, error) {
	return ParseDurationOrDefault("storage.busy_timeout", s.BusyTimeout, 5*time.Second)
}
