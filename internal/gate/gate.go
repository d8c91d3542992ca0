// Package gate decides, per run, whether the monitored table changed and
// owns the only writes of the baseline and the changed flag.
//
// A run ends in exactly one terminal state:
//   - first_run: no baseline existed; current becomes the baseline, flag set
//   - diff_found: entries were classified; current becomes the baseline, flag set
//   - no_diff: nothing changed; no flag, baseline kept (or refreshed under
//     PolicyAlways)
//
// Terminal writes go through one storage Commit. Any error before that leaves
// the baseline and flag untouched.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dashwatch/internal/diff"
	"dashwatch/internal/faults"
	"dashwatch/internal/snapshot"
	"dashwatch/internal/storage"
	logx "dashwatch/pkg/logx"
)

type Reason string

const (
	ReasonFirstRun  Reason = "first_run"
	ReasonDiffFound Reason = "diff_found"
	ReasonNoDiff    Reason = "no_diff"
)

// Policy controls when the baseline advances on a no_diff run.
type Policy string

const (
	PolicyOnChangeOnly Policy = "on-change-only"
	PolicyAlways       Policy = "always"
)

// ParsePolicy maps a config value onto a Policy. Empty means on-change-only.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(PolicyOnChangeOnly):
		return PolicyOnChangeOnly, nil
	case string(PolicyAlways):
		return PolicyAlways, nil
	default:
		return "", faults.Configuration(fmt.Errorf("unknown baseline refresh policy %q", s))
	}
}

type Result struct {
	HasChanges bool   `json:"has_changes"`
	Reason     Reason `json:"reason"`
}

// Decision is what the gate hands to Publish before committing.
type Decision struct {
	RunID   string
	Result  Result
	Entries []diff.Entry
	Current snapshot.Snapshot
}

// PublishFunc renders and stores the artifacts of a changed run. It returns
// the artifacts recorded in the flag. On error it must not leave partial
// artifacts behind, and it must never overwrite artifacts of another run.
type PublishFunc func(ctx context.Context, d Decision) ([]storage.Artifact, error)

// DiscardFunc removes artifacts published by a run whose commit failed.
type DiscardFunc func(ctx context.Context, artifacts []storage.Artifact)

type Outcome struct {
	Result  Result
	Entries []diff.Entry
	// Flag is the flag written by this run, nil on no_diff.
	Flag *storage.Flag
	// BaselineSaved reports whether current became the baseline.
	BaselineSaved bool
}

type Gate struct {
	Monitor string
	Store   storage.SnapshotStore
	Diff    diff.Func
	Policy  Policy
	Publish PublishFunc
	Discard DiscardFunc
	// KeyColumns, when set, enables the duplicate key warning on the baseline.
	KeyColumns []string
	Log        logx.Logger
	Now        func() time.Time
}

var ErrNoStore = errors.New("gate has no snapshot store")

// Evaluate runs one pass of the state machine for current.
func (g *Gate) Evaluate(ctx context.Context, runID string, current snapshot.Snapshot) (Outcome, error) {
	if g.Store == nil {
		return Outcome{}, faults.Configuration(ErrNoStore)
	}
	if g.Diff == nil {
		return Outcome{}, faults.Configuration(errors.New("gate has no diff function"))
	}
	log := g.Log.With(logx.String("monitor", g.Monitor), logx.String("run_id", runID))

	exists, err := g.Store.Exists(ctx)
	if err != nil {
		return Outcome{}, faults.Persistence(fmt.Errorf("check baseline: %w", err))
	}
	if !exists {
		log.Info("no baseline yet, recording first run", logx.Int("rows", current.Len()))
		return g.changed(ctx, log, runID, Result{HasChanges: true, Reason: ReasonFirstRun}, nil, current)
	}

	previous, _, err := g.Store.LoadPrevious(ctx)
	if err != nil {
		return Outcome{}, faults.Persistence(fmt.Errorf("load baseline: %w", err))
	}
	if len(g.KeyColumns) > 0 {
		if dups, err := diff.DuplicateKeys(previous, g.KeyColumns); err == nil && dups > 0 {
			log.Warn("duplicate keys in baseline, last row wins", logx.Int("duplicates", dups))
		}
	}
	entries, err := g.Diff(current, previous)
	if err != nil {
		return Outcome{}, err
	}

	if len(entries) > 0 {
		sum := diff.Summarize(entries)
		log.Info("changes found",
			logx.Int("added", sum.Added), logx.Int("removed", sum.Removed), logx.Int("modified", sum.Modified))
		if log.Enabled(logx.LevelDebug) {
			for _, e := range entries {
				if e.Kind == diff.Modified {
					log.Debug("modified", logx.String("key", e.Key), logx.Strings("changed", e.Changed))
				}
			}
		}
		return g.changed(ctx, log, runID, Result{HasChanges: true, Reason: ReasonDiffFound}, entries, current)
	}

	out := Outcome{Result: Result{HasChanges: false, Reason: ReasonNoDiff}}
	if g.Policy == PolicyAlways {
		if err := g.Store.Commit(ctx, storage.Commit{Baseline: &current}); err != nil {
			return Outcome{}, faults.Persistence(fmt.Errorf("refresh baseline: %w", err))
		}
		out.BaselineSaved = true
	}
	log.Info("no changes", logx.Bool("baseline_refreshed", out.BaselineSaved))
	return out, nil
}

func (g *Gate) changed(ctx context.Context, log logx.Logger, runID string, res Result, entries []diff.Entry, current snapshot.Snapshot) (Outcome, error) {
	var artifacts []storage.Artifact
	if g.Publish != nil {
		var err error
		artifacts, err = g.Publish(ctx, Decision{RunID: runID, Result: res, Entries: entries, Current: current})
		if err != nil {
			err = fmt.Errorf("publish reports: %w", err)
			if faults.KindOf(err) == "" {
				err = faults.Persistence(err)
			}
			return Outcome{}, err
		}
	}

	sum := diff.Summarize(entries)
	flag := &storage.Flag{
		RunID:     runID,
		Monitor:   g.Monitor,
		Reason:    string(res.Reason),
		At:        g.now(),
		Artifacts: artifacts,
		Added:     sum.Added,
		Removed:   sum.Removed,
		Modified:  sum.Modified,
	}
	if err := g.Store.Commit(ctx, storage.Commit{Baseline: &current, Flag: flag}); err != nil {
		if g.Discard != nil && len(artifacts) > 0 {
			g.Discard(context.WithoutCancel(ctx), artifacts)
		}
		return Outcome{}, faults.Persistence(fmt.Errorf("commit baseline and flag: %w", err))
	}
	log.Debug("baseline and flag committed", logx.Int("artifacts", len(artifacts)))
	return Outcome{Result: res, Entries: entries, Flag: flag, BaselineSaved: true}, nil
}

func (g *Gate) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}
