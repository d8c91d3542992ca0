package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dashwatch/internal/faults"
	"dashwatch/internal/snapshot"
)

// File reads a snapshot from disk. Pattern may be a glob; the most recently
// modified match wins, which picks the freshest export in a download folder.
type File struct {
	Pattern string
	Format  snapshot.Format
	Sheet   string
	Now     func() time.Time
}

func (f *File) Fetch(ctx context.Context) (snapshot.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return snapshot.Snapshot{}, faults.Acquisition(err)
	}
	path, err := f.resolve()
	if err != nil {
		return snapshot.Snapshot{}, faults.Acquisition(err)
	}

	format := f.Format
	if format == "" {
		if format, err = snapshot.FormatFromPath(path); err != nil {
			return snapshot.Snapshot{}, faults.Acquisition(err)
		}
	}

	fh, err := os.Open(path)
	if err != nil {
		return snapshot.Snapshot{}, faults.Acquisition(err)
	}
	defer fh.Close()

	s, err := snapshot.Decode(format, fh, snapshot.DecodeOptions{Sheet: f.Sheet})
	if err != nil {
		return snapshot.Snapshot{}, faults.Acquisition(fmt.Errorf("decode %s: %w", path, err))
	}
	s.CapturedAt = f.now()
	return s, nil
}

func (f *File) resolve() (string, error) {
	matches, err := filepath.Glob(f.Pattern)
	if err != nil {
		return "", fmt.Errorf("bad source pattern %q: %w", f.Pattern, err)
	}
	var (
		best    string
		bestMod time.Time
	)
	for _, m := range matches {
		st, err := os.Stat(m)
		if err != nil || st.IsDir() {
			continue
		}
		if best == "" || st.ModTime().After(bestMod) {
			best, bestMod = m, st.ModTime()
		}
	}
	if best == "" {
		return "", fmt.Errorf("no file matches %q", f.Pattern)
	}
	return best, nil
}

func (f *File) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}
