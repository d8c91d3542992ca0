// Package artifact persists rendered reports where the notifier can find them.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	logx "dashwatch/pkg/logx"
)

var ErrNotFound = errors.New("artifact not found")

// Store keeps report bytes by name. Names are flat file names.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, name string) error
	Close() error
}

// Config selects the artifact driver.
//
// Driver values:
//   - "local": files under Dir (default)
//   - "gcs": objects under gs://Bucket/Prefix
type Config struct {
	Driver          string
	Dir             string
	Bucket          string
	Prefix          string
	CredentialsFile string
}

func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "local":
		st, err := NewLocal(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "gcs":
		st, err := newGCS(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown artifact driver: %s", cfg.Driver)
	}
}

// checkName rejects names that would escape the store root.
func checkName(name string) error {
	if name == "" || name != path.Base(name) || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	return nil
}
