package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/xuri/excelize/v2"

	"dashwatch/internal/snapshot"
)

const sheetName = "Sheet1"

// Filename is the artifact name of r: "<Name>.<ext>" for diff reports and
// "<Name>-DD-MM-YYYY.<ext>" for snapshot exports.
func Filename(r Report, format snapshot.Format, date time.Time) string {
	if format == "" {
		format = snapshot.FormatXLSX
	}
	name := sanitize(r.Name)
	if r.Kind == KindSnapshot {
		name += "-" + DateStamp(date)
	}
	return name + "." + string(format)
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
}

// Encode renders r in format. JSON is not a report format.
func Encode(r Report, format snapshot.Format) ([]byte, error) {
	switch format {
	case "", snapshot.FormatXLSX:
		return EncodeXLSX(r)
	case snapshot.FormatCSV:
		return EncodeCSV(r)
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
}

// EncodeXLSX writes r as a single-sheet workbook. Numbers stay numeric.
func EncodeXLSX(r Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]interface{}, len(r.Columns))
	for i, c := range r.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, row := range r.Rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			if n, ok := v.Float(); ok {
				cells[j] = n
			} else {
				cells[j] = v.String()
			}
		}
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheetName, axis, &cells); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func EncodeCSV(r Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(r.Columns); err != nil {
		return nil, err
	}
	rec := make([]string, 0, len(r.Columns))
	for _, row := range r.Rows {
		rec = rec[:0]
		for _, v := range row {
			rec = append(rec, v.String())
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// RenderText prints r as a table for terminals.
func RenderText(w io.Writer, r Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	// Column names are data; keep them verbatim.
	t.Style().Format.Header = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault
	if r.Name != "" {
		t.SetTitle(r.Name)
	}

	head := make(table.Row, len(r.Columns))
	for i, c := range r.Columns {
		head[i] = c
	}
	t.AppendHeader(head)
	for _, row := range r.Rows {
		out := make(table.Row, len(row))
		for i, v := range row {
			out[i] = v.String()
		}
		t.AppendRow(out)
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d rows", len(r.Rows))})
	t.Render()
}
