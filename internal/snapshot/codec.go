package snapshot

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// ParseFormat normalizes a configured format name. Empty input returns "".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown snapshot format %q", s)
	}
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	f, err := ParseFormat(ext)
	if err != nil || f == "" {
		return "", fmt.Errorf("cannot infer snapshot format from %q", path)
	}
	return f, nil
}

type DecodeOptions struct {
	// Sheet selects the XLSX worksheet; empty means the first sheet.
	Sheet string
}

// Decode reads a snapshot in the given format.
func Decode(format Format, r io.Reader, opt DecodeOptions) (Snapshot, error) {
	switch format {
	case FormatCSV:
		return ReadCSV(r)
	case FormatXLSX:
		return ReadXLSX(r, opt.Sheet)
	case FormatJSON:
		return ReadJSON(r)
	default:
		return Snapshot{}, fmt.Errorf("unknown snapshot format %q", format)
	}
}

// ReadCSV reads a header row followed by data rows. Blank cells are left out
// of the row (they read back as NotFound), matching how spreadsheet exports
// drop empty cells.
func ReadCSV(r io.Reader) (Snapshot, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read csv header: %w", err)
	}
	header = cleanHeader(header)

	out := Snapshot{Columns: header}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Snapshot{}, fmt.Errorf("read csv line %d: %w", line, err)
		}
		var row Row
		for i, cell := range rec {
			if i >= len(header) || header[i] == "" || cell == "" {
				continue
			}
			row.Set(header[i], Str(cell))
		}
		if row.Len() == 0 {
			continue
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// ReadXLSX reads the first (or the named) worksheet. Cells stored as numbers
// become Number values; everything else is a String.
func ReadXLSX(r io.Reader, sheet string) (Snapshot, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return Snapshot{}, errors.New("xlsx has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return Snapshot{}, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return Snapshot{}, nil
	}

	header := cleanHeader(rows[0])
	out := Snapshot{Columns: header}
	for ri, rec := range rows[1:] {
		var row Row
		for ci, cell := range rec {
			if ci >= len(header) || header[ci] == "" || cell == "" {
				continue
			}
			row.Set(header[ci], xlsxValue(f, sheet, ci+1, ri+2, cell))
		}
		if row.Len() == 0 {
			continue
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func xlsxValue(f *excelize.File, sheet string, col, row int, raw string) Value {
	axis, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return Str(raw)
	}
	typ, err := f.GetCellType(sheet, axis)
	if err != nil {
		return Str(raw)
	}
	if typ == excelize.CellTypeUnset || typ == excelize.CellTypeNumber {
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return Num(n)
		}
	}
	return Str(raw)
}

// ReadJSON reads an array of objects, keeping each object's key order.
func ReadJSON(r io.Reader) (Snapshot, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read json: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return Snapshot{}, errors.New("read json: expected an array of rows")
	}
	var rows []Row
	for i := 0; dec.More(); i++ {
		var row Row
		if err := dec.Decode(&row); err != nil {
			return Snapshot{}, fmt.Errorf("read json row %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	if _, err := dec.Token(); err != nil {
		return Snapshot{}, fmt.Errorf("read json: %w", err)
	}
	return New(rows), nil
}

func cleanHeader(h []string) []string {
	out := make([]string, len(h))
	for i, c := range h {
		if i == 0 {
			c = strings.TrimPrefix(c, "\ufeff")
		}
		out[i] = strings.TrimSpace(c)
	}
	return out
}
