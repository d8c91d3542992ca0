// Package diff classifies rows of two snapshots by composite business key.
//
// Every key present in either snapshot is unchanged, modified, added or
// removed. Unchanged keys are dropped from the result. Output order is
// reproducible: removed/modified entries follow the previous snapshot's row
// order, added entries follow, in the current snapshot's row order.
package diff

import (
	"fmt"

	"dashwatch/internal/faults"
	"dashwatch/internal/snapshot"
)

type Kind string

const (
	Unchanged Kind = "unchanged"
	Modified  Kind = "modified"
	Added     Kind = "added"
	Removed   Kind = "removed"
)

// Entry is one classified row-level change.
type Entry struct {
	Kind Kind
	Key  string

	// Previous and Current always hold every key and value column. The side
	// that does not exist (Previous for added, Current for removed) is filled
	// with NotFound.
	Previous snapshot.Row
	Current  snapshot.Row

	// Changed lists the differing value columns of a modified entry, in
	// value-column order.
	Changed []string
}

// Func compares two snapshots under bound key/value columns.
type Func func(current, previous snapshot.Snapshot) ([]Entry, error)

// For binds keyColumns and valueColumns into a Func.
func For(keyColumns, valueColumns []string) Func {
	keys := append([]string(nil), keyColumns...)
	values := append([]string(nil), valueColumns...)
	return func(current, previous snapshot.Snapshot) ([]Entry, error) {
		return Diff(current, previous, keys, values)
	}
}

// Diff classifies every key of current and previous.
//
// Missing columns never fail; they read as NotFound. An empty keyColumns is a
// configuration error because every row would collapse into one bucket.
func Diff(current, previous snapshot.Snapshot, keyColumns, valueColumns []string) ([]Entry, error) {
	if len(keyColumns) == 0 {
		return nil, faults.Configuration(snapshot.ErrNoKeyColumns)
	}

	prev, err := buildIndex(previous, keyColumns)
	if err != nil {
		return nil, err
	}
	cur, err := buildIndex(current, keyColumns)
	if err != nil {
		return nil, err
	}

	cols := columnsOf(keyColumns, valueColumns)
	var out []Entry

	for _, key := range prev.keys {
		p := prev.rows[key]
		c, ok := cur.rows[key]
		if !ok {
			out = append(out, Entry{
				Kind:     Removed,
				Key:      key,
				Previous: p.Project(cols),
				Current:  notFoundRow(cols),
			})
			continue
		}
		if changed := changedColumns(p, c, valueColumns); len(changed) > 0 {
			out = append(out, Entry{
				Kind:     Modified,
				Key:      key,
				Previous: p.Project(cols),
				Current:  c.Project(cols),
				Changed:  changed,
			})
		}
	}

	for _, key := range cur.keys {
		if _, ok := prev.rows[key]; ok {
			continue
		}
		out = append(out, Entry{
			Kind:     Added,
			Key:      key,
			Previous: notFoundRow(cols),
			Current:  cur.rows[key].Project(cols),
		})
	}
	return out, nil
}

// index is an insertion-ordered key -> row lookup. A repeated key keeps its
// first position and takes the last row (last wins).
type index struct {
	keys []string
	rows map[string]snapshot.Row
	dups int
}

func buildIndex(s snapshot.Snapshot, keyColumns []string) (index, error) {
	idx := index{rows: make(map[string]snapshot.Row, len(s.Rows))}
	for i, r := range s.Rows {
		k, err := snapshot.Key(r, keyColumns)
		if err != nil {
			return index{}, faults.Configuration(fmt.Errorf("row %d: %w", i, err))
		}
		if _, ok := idx.rows[k]; ok {
			idx.dups++
		} else {
			idx.keys = append(idx.keys, k)
		}
		idx.rows[k] = r
	}
	return idx, nil
}

// DuplicateKeys reports how many rows of s share a key with an earlier row.
// Those rows are folded by last-wins in Diff.
func DuplicateKeys(s snapshot.Snapshot, keyColumns []string) (int, error) {
	idx, err := buildIndex(s, keyColumns)
	if err != nil {
		return 0, err
	}
	return idx.dups, nil
}

func changedColumns(p, c snapshot.Row, valueColumns []string) []string {
	var changed []string
	for _, col := range valueColumns {
		if !p.Get(col).Equal(c.Get(col)) {
			changed = append(changed, col)
		}
	}
	return changed
}

// columnsOf returns key columns then value columns, without repeats.
func columnsOf(keyColumns, valueColumns []string) []string {
	seen := make(map[string]struct{}, len(keyColumns)+len(valueColumns))
	out := make([]string, 0, len(keyColumns)+len(valueColumns))
	for _, list := range [][]string{keyColumns, valueColumns} {
		for _, c := range list {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// Columns is the report column set of an entry: key columns then value columns.
func Columns(keyColumns, valueColumns []string) []string { return columnsOf(keyColumns, valueColumns) }

func notFoundRow(cols []string) snapshot.Row {
	var r snapshot.Row
	for _, c := range cols {
		r.Set(c, snapshot.NotFound)
	}
	return r
}

// Summary counts entries by kind.
type Summary struct {
	Added    int `json:"added"`
	Removed  int `json:"removed"`
	Modified int `json:"modified"`
}

func (s Summary) Total() int { return s.Added + s.Removed + s.Modified }

func Summarize(entries []Entry) Summary {
	var s Summary
	for _, e := range entries {
		switch e.Kind {
		case Added:
			s.Added++
		case Removed:
			s.Removed++
		case Modified:
			s.Modified++
		}
	}
	return s
}
