// Package app wires configuration into the runnable pieces of dashwatch:
// logging, the state store, the artifact store, metrics, the monitor runner
// and, on demand, the notifier.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"dashwatch/internal/artifact"
	"dashwatch/internal/config"
	"dashwatch/internal/faults"
	"dashwatch/internal/metrics"
	"dashwatch/internal/monitor"
	"dashwatch/internal/notify"
	"dashwatch/internal/notify/telegram"
	"dashwatch/internal/observability/debugserver"
	"dashwatch/internal/storage"
	logx "dashwatch/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	cfg  *config.Config

	log  logx.Logger
	logs *logx.Service

	store     storage.Store
	artifacts artifact.Store
	metrics   *metrics.Recorder
	runner    *monitor.Runner
}

// NewApp loads cfgPath and opens every store the config names. Close
// releases them.
func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	log = log.With(logx.String("comp", "app"))

	a := &App{cfgPath: cfgPath, cfgm: cfgm, cfg: cfg, log: log, logs: logSvc}
	if err := a.open(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context) error {
	sc, err := mapStorageConfig(a.cfg)
	if err != nil {
		return faults.Configuration(err)
	}
	st, err := storage.Open(sc, a.log.With(logx.String("comp", "storage")))
	if err != nil {
		return faults.Persistence(err)
	}
	a.store = st
	a.log.Debug("storage ready", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	ac := mapArtifactsConfig(a.cfg)
	arts, err := artifact.Open(ctx, ac, a.log.With(logx.String("comp", "artifact")))
	if err != nil {
		return faults.Persistence(err)
	}
	a.artifacts = arts

	a.metrics = metrics.New(a.cfg.Metrics.Textfile)

	runner := monitor.NewRunner(a.store, a.artifacts, a.metrics, a.log)
	for _, mc := range a.cfg.Monitors {
		m, err := monitor.FromConfig(mc)
		if err != nil {
			return fmt.Errorf("monitor %s: %w", mc.Name, err)
		}
		if err := runner.Add(m); err != nil {
			return err
		}
	}
	a.runner = runner
	return nil
}

func (a *App) Config() *config.Config     { return a.cfg }
func (a *App) Log() logx.Logger           { return a.log }
func (a *App) Store() storage.Store       { return a.store }
func (a *App) Artifacts() artifact.Store  { return a.artifacts }
func (a *App) Runner() *monitor.Runner    { return a.runner }
func (a *App) Metrics() *metrics.Recorder { return a.metrics }

// DebugServer returns the configured debug endpoint, or nil when disabled.
// It serves the run metrics next to the Go runtime collectors.
func (a *App) DebugServer() *debugserver.Server {
	dc, ok := mapDebugConfig(a.cfg)
	if !ok {
		return nil
	}
	g := prometheus.Gatherers{a.metrics.Registry(), prometheus.DefaultGatherer}
	return debugserver.New(dc, g, a.log)
}

// Notifier builds the Telegram notifier. Credentials are only required here,
// so runs work without them.
func (a *App) Notifier() (*notify.Notifier, error) {
	tc, err := mapTelegramConfig(a.cfg)
	if err != nil {
		return nil, faults.Configuration(err)
	}
	sender, err := telegram.New(tc, a.log)
	if err != nil {
		return nil, faults.Configuration(err)
	}
	return a.NotifierWith(sender)
}

// NotifierWith builds a notifier around an existing sender.
func (a *App) NotifierWith(sender notify.Sender) (*notify.Notifier, error) {
	nc, err := mapNotifyConfig(a.cfg)
	if err != nil {
		return nil, faults.Configuration(err)
	}
	return notify.New(nc, a.store, a.artifacts, sender, a.log), nil
}

// Close releases stores and flushes logs. Safe to call more than once.
func (a *App) Close() error {
	var errs []error
	if a.artifacts != nil {
		errs = append(errs, a.artifacts.Close())
		a.artifacts = nil
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
		a.logs = nil
	}
	return errors.Join(errs...)
}
