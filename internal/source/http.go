package source

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"dashwatch/internal/faults"
	"dashwatch/internal/snapshot"
)

const defaultHTTPTimeout = 60 * time.Second

// HTTP downloads a CSV, XLSX or JSON export. It does not retry.
type HTTP struct {
	URL    string
	Format snapshot.Format
	Sheet  string

	client *resty.Client
}

func NewHTTP(rawURL string, format snapshot.Format, sheet string, timeout time.Duration, headers map[string]string) *HTTP {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("user-agent", "dashwatch/1.0")
	client.SetHeaders(headers)
	return &HTTP{URL: rawURL, Format: format, Sheet: sheet, client: client}
}

func (h *HTTP) Fetch(ctx context.Context) (snapshot.Snapshot, error) {
	res, err := h.client.R().SetContext(ctx).Get(h.URL)
	if err != nil {
		return snapshot.Snapshot{}, faults.Acquisition(fmt.Errorf("GET %s: %w", h.URL, err))
	}
	if !res.IsSuccess() {
		return snapshot.Snapshot{}, faults.Acquisition(fmt.Errorf("GET %s: unexpected status %s", h.URL, res.Status()))
	}

	format := h.Format
	if format == "" {
		format = formatFromResponse(h.URL, res.Header().Get("Content-Type"))
	}
	if format == "" {
		return snapshot.Snapshot{}, faults.Acquisition(fmt.Errorf("cannot infer format of %s", h.URL))
	}

	s, err := snapshot.Decode(format, bytes.NewReader(res.Body()), snapshot.DecodeOptions{Sheet: h.Sheet})
	if err != nil {
		return snapshot.Snapshot{}, faults.Acquisition(fmt.Errorf("decode %s: %w", h.URL, err))
	}
	s.CapturedAt = res.ReceivedAt()
	return s, nil
}

func formatFromResponse(rawURL, contentType string) snapshot.Format {
	if u, err := url.Parse(rawURL); err == nil {
		if f, err := snapshot.FormatFromPath(u.Path); err == nil {
			return f
		}
	}
	mt, _, _ := mime.ParseMediaType(contentType)
	switch mt {
	case "text/csv", "application/csv":
		return snapshot.FormatCSV
	case "application/json":
		return snapshot.FormatJSON
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return snapshot.FormatXLSX
	}
	return ""
}
