// Package snapshot models one captured version of the monitored table.
//
// A Snapshot is an ordered list of Rows; a Row is an ordered column -> Value
// mapping with no fixed schema. The codecs in this package translate tabular
// files (CSV, XLSX, JSON) into that shape.
package snapshot

import "time"

// Snapshot is the table as observed at one point in time.
type Snapshot struct {
	// Columns is the header order observed at capture time.
	Columns    []string  `json:"columns"`
	Rows       []Row     `json:"rows"`
	CapturedAt time.Time `json:"captured_at"`
}

// New builds a snapshot from rows, deriving Columns as the union of row
// columns in first-seen order.
func New(rows []Row) Snapshot {
	return Snapshot{Columns: unionColumns(rows), Rows: rows}
}

func (s Snapshot) Len() int { return len(s.Rows) }

// Filter returns a snapshot restricted to rows matching keep. Columns are kept.
func (s Snapshot) Filter(keep func(Row) bool) Snapshot {
	out := Snapshot{Columns: append([]string(nil), s.Columns...), CapturedAt: s.CapturedAt}
	for _, r := range s.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// HeaderColumns returns Columns, or the union of row columns when the
// snapshot was built without a header.
func (s Snapshot) HeaderColumns() []string {
	if len(s.Columns) > 0 {
		return append([]string(nil), s.Columns...)
	}
	return unionColumns(s.Rows)
}

func unionColumns(rows []Row) []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, r := range rows {
		for _, c := range r.cols {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			cols = append(cols, c)
		}
	}
	return cols
}
