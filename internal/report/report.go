// Package report flattens diff entries and snapshots into tabular reports.
//
// A diff report has one row per entry and the columns
//
//	{Col} (Ant) ... for every key then value column, then
//	{Col} (Atual) ... in the same order.
//
// Filtered sub-reports keep the same shape and are omitted when empty.
// Snapshot exports carry the current table as captured.
package report

import (
	"strings"
	"time"

	"dashwatch/internal/diff"
	"dashwatch/internal/snapshot"
)

const (
	PreviousSuffix = " (Ant)"
	CurrentSuffix  = " (Atual)"
)

type Kind string

const (
	KindDiff     Kind = "diff"
	KindSnapshot Kind = "snapshot"
)

// Filter selects rows whose Field equals Value. Name labels the sub-report.
type Filter struct {
	Name  string
	Field string
	Value string
}

func (f Filter) label() string {
	if s := strings.TrimSpace(f.Name); s != "" {
		return s
	}
	return f.Value
}

func (f Filter) matches(r snapshot.Row) bool {
	return r.Has(f.Field) && r.Get(f.Field).String() == f.Value
}

type Options struct {
	Monitor      string
	KeyColumns   []string
	ValueColumns []string

	// DiffName is the base name of diff reports. Default "Diferencas_<Monitor>".
	DiffName string
	// SnapshotPrefix enables snapshot exports named <Prefix>Geral and
	// <Prefix><Filter>. Empty disables them.
	SnapshotPrefix string
}

func (o Options) diffName() string {
	if s := strings.TrimSpace(o.DiffName); s != "" {
		return s
	}
	return "Diferencas_" + o.Monitor
}

type Report struct {
	Name string
	Kind Kind
	// Filter is the label of the filter this report is restricted to, "" for
	// the general report.
	Filter  string
	Columns []string
	Rows    [][]snapshot.Value
}

func (r Report) Len() int { return len(r.Rows) }

// Build returns the general diff report, every non-empty filtered diff report
// and, when enabled, the snapshot exports of current.
func Build(entries []diff.Entry, current snapshot.Snapshot, filters []Filter, opts Options) []Report {
	cols := diff.Columns(opts.KeyColumns, opts.ValueColumns)
	header := DiffColumns(cols)
	name := opts.diffName()

	general := Report{Name: name, Kind: KindDiff, Columns: header}
	for _, e := range entries {
		general.Rows = append(general.Rows, diffRow(e, cols))
	}
	out := []Report{general}

	for _, f := range filters {
		sub := Report{Name: name + "_" + f.label(), Kind: KindDiff, Filter: f.label(), Columns: header}
		for _, e := range entries {
			if entryMatches(e, f) {
				sub.Rows = append(sub.Rows, diffRow(e, cols))
			}
		}
		if sub.Len() > 0 {
			out = append(out, sub)
		}
	}

	return append(out, Snapshots(current, filters, opts)...)
}

// Snapshots returns the snapshot exports of current: the full table and one
// export per filter with matching rows. Nil when SnapshotPrefix is empty.
func Snapshots(current snapshot.Snapshot, filters []Filter, opts Options) []Report {
	prefix := strings.TrimSpace(opts.SnapshotPrefix)
	if prefix == "" {
		return nil
	}
	cols := current.HeaderColumns()

	full := Report{Name: prefix + "Geral", Kind: KindSnapshot, Columns: cols}
	for _, r := range current.Rows {
		full.Rows = append(full.Rows, snapshotRow(r, cols))
	}
	out := []Report{full}

	for _, f := range filters {
		sub := Report{Name: prefix + f.label(), Kind: KindSnapshot, Filter: f.label(), Columns: cols}
		for _, r := range current.Filter(f.matches).Rows {
			sub.Rows = append(sub.Rows, snapshotRow(r, cols))
		}
		if sub.Len() > 0 {
			out = append(out, sub)
		}
	}
	return out
}

// DiffColumns suffixes cols with " (Ant)" then with " (Atual)".
func DiffColumns(cols []string) []string {
	out := make([]string, 0, 2*len(cols))
	for _, c := range cols {
		out = append(out, c+PreviousSuffix)
	}
	for _, c := range cols {
		out = append(out, c+CurrentSuffix)
	}
	return out
}

func diffRow(e diff.Entry, cols []string) []snapshot.Value {
	out := make([]snapshot.Value, 0, 2*len(cols))
	for _, c := range cols {
		out = append(out, e.Previous.Get(c))
	}
	for _, c := range cols {
		out = append(out, e.Current.Get(c))
	}
	return out
}

// snapshotRow leaves missing cells blank, as the source table had them.
func snapshotRow(r snapshot.Row, cols []string) []snapshot.Value {
	out := make([]snapshot.Value, len(cols))
	for i, c := range cols {
		if r.Has(c) {
			out[i] = r.Get(c)
		} else {
			out[i] = snapshot.Str("")
		}
	}
	return out
}

// entryMatches checks the current side, then the previous side. A removed
// entry only has the previous side.
func entryMatches(e diff.Entry, f Filter) bool {
	if v := e.Current.Get(f.Field); !v.IsNotFound() {
		return v.String() == f.Value
	}
	return e.Previous.Get(f.Field).String() == f.Value
}

// DateStamp formats t as DD-MM-YYYY.
func DateStamp(t time.Time) string { return t.Format("02-01-2006") }

// Caption is the delivery caption of r on date.
func Caption(r Report, monitor string, date time.Time) string {
	switch r.Kind {
	case KindSnapshot:
		label := "Geral"
		if r.Filter != "" {
			label = r.Filter
		}
		prefix := strings.TrimSuffix(r.Name, label)
		return strings.TrimSpace("🏆 "+prefix+" "+label) + " " + DateStamp(date)
	default:
		label := monitor
		if r.Filter != "" {
			label = r.Filter
		}
		return strings.TrimSpace("📊 Diferenças " + label)
	}
}
