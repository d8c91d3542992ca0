package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a Go duration string. Empty means 0; negative
// durations are rejected. path names the field in errors.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// durationFields lists every duration string of cfg with its config path.
func durationFields(cfg *Config) map[string]string {
	out := map[string]string{
		"storage.busy_timeout": cfg.Storage.BusyTimeout,
		"telegram.timeout":     cfg.Telegram.Timeout,
		"notify.poll_interval": cfg.Notify.PollInterval,
	}
	for i, m := range cfg.Monitors {
		out[fmt.Sprintf("monitors[%d].source.timeout", i)] = m.Source.Timeout
	}
	return out
}
