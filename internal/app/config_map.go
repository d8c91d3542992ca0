package app

import (
	"errors"
	"strings"
	"time"

	"dashwatch/internal/artifact"
	"dashwatch/internal/config"
	"dashwatch/internal/notify"
	"dashwatch/internal/observability/debugserver"
	"dashwatch/internal/notify/telegram"
	"dashwatch/internal/storage"
	logx "dashwatch/pkg/logx"
)

const (
	defaultStateDir    = "./state"
	defaultArtifactDir = "./downloads"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "file":
		if path == "" {
			path = defaultStateDir
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, errors.New("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	case "badger", "memory":
		return storage.Config{Driver: driver, Path: path}, nil
	default:
		return storage.Config{}, errors.New("unknown storage.driver: " + sc.Driver)
	}
}

func mapArtifactsConfig(cfg *config.Config) artifact.Config {
	ac := cfg.Artifacts
	dir := strings.TrimSpace(ac.Dir)
	if dir == "" {
		dir = defaultArtifactDir
	}
	return artifact.Config{
		Driver:          strings.ToLower(strings.TrimSpace(ac.Driver)),
		Dir:             dir,
		Bucket:          strings.TrimSpace(ac.Bucket),
		Prefix:          strings.Trim(strings.TrimSpace(ac.Prefix), "/"),
		CredentialsFile: strings.TrimSpace(ac.CredentialsFile),
	}
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	tc := cfg.Telegram
	timeout, err := config.ParseDurationOrDefault("telegram.timeout", tc.Timeout, 30*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:    strings.TrimSpace(tc.Token),
		ChatID:   tc.ChatID,
		ThreadID: tc.ThreadID,
		Timeout:  timeout,
		APIURL:   strings.TrimSpace(tc.APIURL),
	}, nil
}

func mapNotifyConfig(cfg *config.Config) (notify.Config, error) {
	poll, err := config.ParseDurationOrDefault("notify.poll_interval", cfg.Notify.PollInterval, 30*time.Second)
	if err != nil {
		return notify.Config{}, err
	}
	rps := cfg.Telegram.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	return notify.Config{RatePerSec: rps, PollInterval: poll}, nil
}

// mapDebugConfig reports false when no debug addr is configured.
func mapDebugConfig(cfg *config.Config) (debugserver.Config, bool) {
	dc := cfg.Debug
	addr := strings.TrimSpace(dc.Addr)
	if addr == "" {
		return debugserver.Config{}, false
	}
	return debugserver.Config{
		Addr:          addr,
		Prefix:        dc.Prefix,
		Token:         strings.TrimSpace(dc.Token),
		AllowInsecure: dc.AllowInsecure,
		ReadTimeout:   10 * time.Second,
		IdleTimeout:   time.Minute,
	}, true
}
