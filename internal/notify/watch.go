package notify

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/fsnotify/fsnotify"

	logx "dashwatch/pkg/logx"
)

// Watch delivers flags as they appear until ctx is cancelled.
//
// With flag files (file storage driver) it wakes on fsnotify events for the
// flag directories; the poll ticker always runs as a fallback. Under systemd
// it reports readiness and keeps the watchdog fed.
func (n *Notifier) Watch(ctx context.Context, monitors []string) error {
	byPath := map[string]string{}
	for _, m := range monitors {
		if p := n.store.FlagPath(m); p != "" {
			byPath[filepath.Clean(p)] = m
		}
	}

	var events chan fsnotify.Event
	if len(byPath) > 0 {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			n.log.Warn("fsnotify unavailable, polling only", logx.Err(err))
		} else {
			defer w.Close()
			for p := range byPath {
				dir := filepath.Dir(p)
				if err := os.MkdirAll(dir, 0o755); err == nil {
					err = w.Add(dir)
				}
				if err != nil {
					n.log.Warn("cannot watch flag directory", logx.String("dir", dir), logx.Err(err))
				}
			}
			events = make(chan fsnotify.Event, 16)
			go forwardEvents(ctx, w, events, n.log)
		}
	}

	n.deliverAll(ctx, monitors)

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	defer func() { _, _ = daemon.SdNotify(false, daemon.SdNotifyStopping) }()

	var watchdog <-chan time.Time
	if iv, err := daemon.SdWatchdogEnabled(false); err == nil && iv > 0 {
		t := time.NewTicker(iv / 2)
		defer t.Stop()
		watchdog = t.C
	}

	poll := time.NewTicker(n.cfg.PollInterval)
	defer poll.Stop()

	n.log.Info("watching for changes", logx.Int("monitors", len(monitors)), logx.Bool("fsnotify", events != nil))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-watchdog:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		case <-poll.C:
			n.deliverAll(ctx, monitors)
		case ev := <-events:
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if m, ok := byPath[filepath.Clean(ev.Name)]; ok {
				if _, err := n.Deliver(ctx, m); err != nil {
					n.log.Error("delivery failed", logx.String("monitor", m), logx.Err(err))
				}
			}
		}
	}
}

// deliverAll peeks first so idle polls stay quiet.
func (n *Notifier) deliverAll(ctx context.Context, monitors []string) {
	for _, m := range monitors {
		if _, ok, err := n.store.Monitor(m).PeekFlag(ctx); err == nil && !ok {
			continue
		}
		if _, err := n.Deliver(ctx, m); err != nil {
			n.log.Error("delivery failed", logx.String("monitor", m), logx.Err(err))
		}
	}
}

func forwardEvents(ctx context.Context, w *fsnotify.Watcher, out chan<- fsnotify.Event, log logx.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Warn("fsnotify error", logx.Err(err))
		}
	}
}
