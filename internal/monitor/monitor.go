// Package monitor runs one pass of a configured monitor:
// acquire -> gate (publish reports) -> run history -> metrics.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dashwatch/internal/artifact"
	"dashwatch/internal/config"
	"dashwatch/internal/diff"
	"dashwatch/internal/faults"
	"dashwatch/internal/gate"
	"dashwatch/internal/metrics"
	"dashwatch/internal/report"
	"dashwatch/internal/snapshot"
	"dashwatch/internal/source"
	"dashwatch/internal/storage"
	logx "dashwatch/pkg/logx"
)

// Monitor is one watched table.
type Monitor struct {
	Name         string
	Source       source.Source
	KeyColumns   []string
	ValueColumns []string
	Filters      []report.Filter
	Policy       gate.Policy
	// MinRows rejects captures with fewer rows as acquisition failures.
	MinRows int

	Format         snapshot.Format
	DiffName       string
	SnapshotPrefix string
}

// FromConfig builds a Monitor and its source from config.
func FromConfig(mc config.MonitorConfig) (Monitor, error) {
	timeout, err := config.ParseDurationField("source.timeout", mc.Source.Timeout)
	if err != nil {
		return Monitor{}, faults.Configuration(err)
	}
	src, err := source.New(source.Config{
		Kind:    mc.Source.Kind,
		Path:    mc.Source.Path,
		URL:     mc.Source.URL,
		Format:  mc.Source.Format,
		Sheet:   mc.Source.Sheet,
		Timeout: timeout,
		Headers: mc.Source.Headers,
	})
	if err != nil {
		return Monitor{}, err
	}
	policy, err := gate.ParsePolicy(mc.BaselineRefreshPolicy)
	if err != nil {
		return Monitor{}, err
	}
	format, err := snapshot.ParseFormat(mc.Report.Format)
	if err != nil {
		return Monitor{}, faults.Configuration(err)
	}
	if format == snapshot.FormatJSON {
		return Monitor{}, faults.Configuration(fmt.Errorf("monitor %s: json is not a report format", mc.Name))
	}

	m := Monitor{
		Name:           mc.Name,
		Source:         src,
		KeyColumns:     append([]string(nil), mc.KeyColumns...),
		ValueColumns:   append([]string(nil), mc.ValueColumns...),
		Policy:         policy,
		MinRows:        mc.MinRows,
		Format:         format,
		DiffName:       mc.Report.DiffName,
		SnapshotPrefix: mc.Report.SnapshotPrefix,
	}
	for _, f := range mc.Filters {
		m.Filters = append(m.Filters, report.Filter{Name: f.Name, Field: f.Field, Value: f.Value})
	}
	return m, nil
}

func (m Monitor) reportOptions() report.Options {
	return report.Options{
		Monitor:        m.Name,
		KeyColumns:     m.KeyColumns,
		ValueColumns:   m.ValueColumns,
		DiffName:       m.DiffName,
		SnapshotPrefix: m.SnapshotPrefix,
	}
}

// RunReport is the outcome of one run.
type RunReport struct {
	ID            string
	Monitor       string
	Result        gate.Result
	Summary       diff.Summary
	Rows          int
	Duplicates    int
	Artifacts     []storage.Artifact
	BaselineSaved bool
	StartedAt     time.Time
	Took          time.Duration
}

type Runner struct {
	store     storage.Store
	artifacts artifact.Store
	metrics   *metrics.Recorder
	log       logx.Logger

	monitors []Monitor

	// Now and NewID are replaceable in tests.
	Now   func() time.Time
	NewID func() string
}

func NewRunner(store storage.Store, artifacts artifact.Store, rec *metrics.Recorder, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{
		store:     store,
		artifacts: artifacts,
		metrics:   rec,
		log:       log.With(logx.String("comp", "monitor")),
		Now:       time.Now,
		NewID:     func() string { return uuid.Must(uuid.NewV7()).String() },
	}
}

// Add registers m. Names must be unique.
func (r *Runner) Add(m Monitor) error {
	if strings.TrimSpace(m.Name) == "" {
		return faults.Configuration(errors.New("monitor name is empty"))
	}
	for _, x := range r.monitors {
		if x.Name == m.Name {
			return faults.Configuration(fmt.Errorf("duplicate monitor %q", m.Name))
		}
	}
	r.monitors = append(r.monitors, m)
	return nil
}

func (r *Runner) Names() []string {
	out := make([]string, 0, len(r.monitors))
	for _, m := range r.monitors {
		out = append(out, m.Name)
	}
	return out
}

func (r *Runner) lookup(name string) (Monitor, bool) {
	for _, m := range r.monitors {
		if m.Name == name {
			return m, true
		}
	}
	return Monitor{}, false
}

// Run executes one pass of the named monitor. A failed run leaves the
// baseline and flag untouched.
func (r *Runner) Run(ctx context.Context, name string) (RunReport, error) {
	m, ok := r.lookup(name)
	if !ok {
		return RunReport{}, faults.Configuration(fmt.Errorf("unknown monitor %q", name))
	}

	rep := RunReport{ID: r.NewID(), Monitor: m.Name, StartedAt: r.Now()}
	log := r.log.With(logx.String("monitor", m.Name), logx.String("run_id", rep.ID))

	err := r.run(ctx, log, m, &rep)
	rep.Took = r.Now().Sub(rep.StartedAt)
	r.record(ctx, log, rep, err)
	if err != nil {
		log.Error("run failed", logx.String("kind", string(faults.KindOf(err))), logx.Err(err))
		return rep, err
	}
	log.Info("run complete",
		logx.String("reason", string(rep.Result.Reason)),
		logx.Bool("has_changes", rep.Result.HasChanges),
		logx.Int("artifacts", len(rep.Artifacts)),
		logx.Duration("took", rep.Took))
	return rep, nil
}

func (r *Runner) run(ctx context.Context, log logx.Logger, m Monitor, rep *RunReport) error {
	if len(m.KeyColumns) == 0 {
		return faults.Configuration(snapshot.ErrNoKeyColumns)
	}
	if m.Source == nil {
		return faults.Configuration(errors.New("monitor has no source"))
	}

	current, err := m.Source.Fetch(ctx)
	if err != nil {
		return faults.Acquisition(err)
	}
	rep.Rows = current.Len()
	if rep.Rows < m.MinRows {
		return faults.Acquisition(fmt.Errorf("captured %d rows, want at least %d", rep.Rows, m.MinRows))
	}
	if dups, err := diff.DuplicateKeys(current, m.KeyColumns); err == nil && dups > 0 {
		rep.Duplicates = dups
		log.Warn("duplicate keys in snapshot, last row wins", logx.Int("duplicates", dups))
	}
	log.Debug("snapshot acquired", logx.Int("rows", rep.Rows))

	g := &gate.Gate{
		Monitor:    m.Name,
		Store:      r.store.Monitor(m.Name),
		Diff:       diff.For(m.KeyColumns, m.ValueColumns),
		Policy:     m.Policy,
		Publish:    r.publisher(m, log),
		Discard:    r.discarder(log),
		KeyColumns: m.KeyColumns,
		Log:        log,
		Now:        r.Now,
	}
	out, err := g.Evaluate(ctx, rep.ID, current)
	if err != nil {
		return err
	}
	rep.Result = out.Result
	rep.Summary = diff.Summarize(out.Entries)
	rep.BaselineSaved = out.BaselineSaved
	if out.Flag != nil {
		rep.Artifacts = out.Flag.Artifacts
	}
	return nil
}

// publisher renders and stores the reports of a changed run. A first run
// has nothing to diff against, so only snapshot exports are written.
//
// Stored names are prefixed with the run ID, so a run that never commits
// cannot touch the reports of a flag still waiting for delivery.
func (r *Runner) publisher(m Monitor, log logx.Logger) gate.PublishFunc {
	return func(ctx context.Context, d gate.Decision) ([]storage.Artifact, error) {
		if r.artifacts == nil {
			return nil, nil
		}
		date := r.Now()
		var reps []report.Report
		if d.Result.Reason == gate.ReasonFirstRun {
			reps = report.Snapshots(d.Current, m.Filters, m.reportOptions())
		} else {
			reps = report.Build(d.Entries, d.Current, m.Filters, m.reportOptions())
		}

		out := make([]storage.Artifact, 0, len(reps))
		for _, rp := range reps {
			data, err := report.Encode(rp, m.Format)
			if err != nil {
				r.discard(ctx, log, out)
				return nil, fmt.Errorf("encode %s: %w", rp.Name, err)
			}
			file := report.Filename(rp, m.Format, date)
			name := stagedName(d.RunID, file)
			if err := r.artifacts.Put(ctx, name, data); err != nil {
				r.discard(ctx, log, out)
				return nil, faults.Persistence(fmt.Errorf("store %s: %w", name, err))
			}
			out = append(out, storage.Artifact{Name: name, File: file, Caption: report.Caption(rp, m.Name, date)})
		}
		return out, nil
	}
}

func stagedName(runID, file string) string {
	if runID == "" {
		return file
	}
	return runID + "_" + file
}

func (r *Runner) discarder(log logx.Logger) gate.DiscardFunc {
	return func(ctx context.Context, arts []storage.Artifact) { r.discard(ctx, log, arts) }
}

// discard deletes artifacts of a run that did not commit.
func (r *Runner) discard(ctx context.Context, log logx.Logger, arts []storage.Artifact) {
	if r.artifacts == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, a := range arts {
		if err := r.artifacts.Delete(ctx, a.Name); err != nil {
			log.Warn("discard artifact failed", logx.String("name", a.Name), logx.Err(err))
		}
	}
}

func (r *Runner) record(ctx context.Context, log logx.Logger, rep RunReport, runErr error) {
	rec := storage.RunRecord{
		ID:         rep.ID,
		Monitor:    rep.Monitor,
		StartedAt:  rep.StartedAt,
		Took:       rep.Took,
		Reason:     string(rep.Result.Reason),
		HasChanges: rep.Result.HasChanges,
		Added:      rep.Summary.Added,
		Removed:    rep.Summary.Removed,
		Modified:   rep.Summary.Modified,
		Rows:       rep.Rows,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if err := r.store.AppendRun(ctx, rec); err != nil {
		log.Warn("append run history failed", logx.Err(err))
	}

	if r.metrics == nil {
		return
	}
	if runErr != nil {
		r.metrics.ObserveFailure(rep.Monitor, string(faults.KindOf(runErr)))
	} else {
		r.metrics.ObserveRun(metrics.Run{
			Monitor:    rep.Monitor,
			Reason:     string(rep.Result.Reason),
			HasChanges: rep.Result.HasChanges,
			Added:      rep.Summary.Added,
			Removed:    rep.Summary.Removed,
			Modified:   rep.Summary.Modified,
			Rows:       rep.Rows,
			At:         rep.StartedAt,
			Took:       rep.Took,
		})
	}
	if err := r.metrics.Flush(); err != nil {
		log.Warn("write metrics textfile failed", logx.Err(err))
	}
}

// RunAll runs every monitor in registration order and joins the errors.
func (r *Runner) RunAll(ctx context.Context) ([]RunReport, error) {
	var (
		out  []RunReport
		errs []error
	)
	for _, m := range r.monitors {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		rep, err := r.Run(ctx, m.Name)
		out = append(out, rep)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.Name, err))
		}
	}
	return out, errors.Join(errs...)
}
