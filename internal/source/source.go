// Package source acquires the current snapshot of a monitored table.
//
// Every failure returned by a Source is an acquisition error: the run stops
// before the change gate and no state is touched.
package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dashwatch/internal/faults"
	"dashwatch/internal/snapshot"
)

// Source returns one complete snapshot or an error.
type Source interface {
	Fetch(ctx context.Context) (snapshot.Snapshot, error)
}

type Config struct {
	Kind    string
	Path    string
	URL     string
	Format  string
	Sheet   string
	Timeout time.Duration
	Headers map[string]string
}

// New builds the configured source.
func New(cfg Config) (Source, error) {
	format, err := snapshot.ParseFormat(cfg.Format)
	if err != nil {
		return nil, faults.Configuration(err)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", "file":
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, faults.Configuration(fmt.Errorf("file source requires a path"))
		}
		return &File{Pattern: cfg.Path, Format: format, Sheet: cfg.Sheet}, nil
	case "http", "https":
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, faults.Configuration(fmt.Errorf("http source requires a url"))
		}
		return NewHTTP(cfg.URL, format, cfg.Sheet, cfg.Timeout, cfg.Headers), nil
	default:
		return nil, faults.Configuration(fmt.Errorf("unknown source kind %q", cfg.Kind))
	}
}
