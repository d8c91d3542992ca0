// Package notify delivers the reports of changed runs.
//
// Delivery is driven by the durable changed flag: the flag is taken (read
// and deleted in one step) before anything is sent, so a report is delivered
// at most once even when sending fails halfway.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"

	"dashwatch/internal/artifact"
	"dashwatch/internal/faults"
	"dashwatch/internal/storage"
	logx "dashwatch/pkg/logx"
)

// Document is one file to deliver.
type Document struct {
	Name    string
	Caption string
	Body    io.Reader
}

// Sender is the outbound channel (Telegram in production).
type Sender interface {
	SendMessage(ctx context.Context, text string) error
	SendDocument(ctx context.Context, doc Document) error
}

type Config struct {
	// RatePerSec paces outbound sends. Default 1.
	RatePerSec int
	// PollInterval is the Watch fallback for drivers without flag files.
	// Default 30s.
	PollInterval time.Duration
}

// Delivery reports what one Deliver call did.
type Delivery struct {
	Monitor string
	Flag    *storage.Flag
	Sent    []string
	Skipped []string
}

type Notifier struct {
	cfg       Config
	store     storage.Store
	artifacts artifact.Store
	sender    Sender
	limiter   *rate.Limiter
	log       logx.Logger
}

func New(cfg Config, store storage.Store, artifacts artifact.Store, sender Sender, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	return &Notifier{
		cfg:       cfg,
		store:     store,
		artifacts: artifacts,
		sender:    sender,
		// Burst = rate per sec, so a short run of documents goes out quickly.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		log:     log.With(logx.String("comp", "notify")),
	}
}

// Deliver consumes the flag of monitor and sends its summary and artifacts.
// Without a flag it does nothing. Missing artifacts are skipped; send
// failures are joined into the returned error.
func (n *Notifier) Deliver(ctx context.Context, monitor string) (Delivery, error) {
	d := Delivery{Monitor: monitor}
	log := n.log.With(logx.String("monitor", monitor))

	flag, ok, err := n.store.Monitor(monitor).TakeFlag(ctx)
	if err != nil {
		return d, faults.Persistence(fmt.Errorf("take flag: %w", err))
	}
	if !ok {
		log.Info("no changes, nothing to send")
		return d, nil
	}
	d.Flag = &flag
	log = log.With(logx.String("run_id", flag.RunID), logx.String("reason", flag.Reason), logx.Time("flagged_at", flag.At))

	var errs []error
	if err := n.send(ctx, func() error { return n.sender.SendMessage(ctx, Summary(flag)) }); err != nil {
		errs = append(errs, fmt.Errorf("send summary: %w", err))
	}

	for _, a := range flag.Artifacts {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		rc, err := n.artifacts.Open(ctx, a.Name)
		if errors.Is(err, artifact.ErrNotFound) {
			log.Warn("artifact not found, skipping", logx.String("name", a.Name))
			d.Skipped = append(d.Skipped, a.Name)
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("open %s: %w", a.Name, err))
			continue
		}
		err = n.send(ctx, func() error {
			return n.sender.SendDocument(ctx, Document{Name: a.Filename(), Caption: a.Caption, Body: rc})
		})
		_ = rc.Close()
		if err != nil {
			log.Error("send failed", logx.String("name", a.Name), logx.Err(err))
			errs = append(errs, fmt.Errorf("send %s: %w", a.Name, err))
			continue
		}
		log.Info("sent", logx.String("name", a.Name))
		d.Sent = append(d.Sent, a.Name)
	}
	return d, errors.Join(errs...)
}

// DeliverAll runs Deliver for each monitor and joins the errors.
func (n *Notifier) DeliverAll(ctx context.Context, monitors []string) ([]Delivery, error) {
	var (
		out  []Delivery
		errs []error
	)
	for _, m := range monitors {
		d, err := n.Deliver(ctx, m)
		out = append(out, d)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m, err))
		}
	}
	return out, errors.Join(errs...)
}

func (n *Notifier) send(ctx context.Context, fn func() error) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	return fn()
}

// Summary is the text message preceding the documents of a flag.
func Summary(f storage.Flag) string {
	if f.Reason == "first_run" {
		return fmt.Sprintf("🔔 %s: monitoramento iniciado", f.Monitor)
	}
	return fmt.Sprintf("🔔 %s: %d novas, %d removidas, %d alteradas", f.Monitor, f.Added, f.Removed, f.Modified)
}
