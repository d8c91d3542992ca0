package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Row is an ordered mapping from column name to Value.
//
// Rows in one snapshot share no schema guarantee; columns are looked up by
// name and absent columns read as NotFound. The zero Row is empty and usable.
type Row struct {
	cols []string
	vals map[string]Value
}

// NewRow builds a row from parallel column/value slices. Extra values are ignored.
func NewRow(cols []string, vals []Value) Row {
	var r Row
	for i, c := range cols {
		if i >= len(vals) {
			break
		}
		r.Set(c, vals[i])
	}
	return r
}

// StringRow builds a row of string cells from alternating column/value pairs.
func StringRow(pairs ...string) Row {
	var r Row
	for i := 0; i+1 < len(pairs); i += 2 {
		r.Set(pairs[i], Str(pairs[i+1]))
	}
	return r
}

// Set assigns a column. An existing column keeps its position.
func (r *Row) Set(col string, v Value) {
	if r.vals == nil {
		r.vals = make(map[string]Value)
	}
	if _, ok := r.vals[col]; !ok {
		r.cols = append(r.cols, col)
	}
	r.vals[col] = v
}

// Get returns the cell for col, or NotFound when the column is absent.
func (r Row) Get(col string) Value {
	if v, ok := r.vals[col]; ok {
		return v
	}
	return NotFound
}

func (r Row) Has(col string) bool {
	_, ok := r.vals[col]
	return ok
}

// Columns returns the row's columns in insertion order.
func (r Row) Columns() []string { return append([]string(nil), r.cols...) }

func (r Row) Len() int { return len(r.cols) }

// Project returns a row holding exactly cols, in that order; absent columns
// are filled with NotFound.
func (r Row) Project(cols []string) Row {
	var out Row
	for _, c := range cols {
		out.Set(c, r.Get(c))
	}
	return out
}

func (r Row) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, c := range r.cols {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')
		v, err := r.vals[c].MarshalJSON()
		if err != nil {
			return nil, err
		}
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// UnmarshalJSON decodes an object while keeping its key order.
func (r *Row) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("snapshot: row must be a JSON object")
	}
	var out Row
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("snapshot: unexpected row key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("snapshot: column %q: %w", key, err)
		}
		out.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = out
	return nil
}
