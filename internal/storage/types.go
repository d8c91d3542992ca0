package storage

import (
	"context"
	"errors"
	"time"

	"dashwatch/internal/snapshot"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file": JSON files under Path (default)
//   - "sqlite": SQLite database file at Path
//   - "badger": BadgerDB directory at Path
//   - "memory": process-local, for tests and dry runs
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Flag is the durable "changed" marker of a monitor. The notifier polls it
// and deletes it when consumed.
type Flag struct {
	RunID     string     `json:"run_id"`
	Monitor   string     `json:"monitor"`
	Reason    string     `json:"reason"`
	At        time.Time  `json:"at"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	Added     int        `json:"added"`
	Removed   int        `json:"removed"`
	Modified  int        `json:"modified"`
}

// Artifact names one published report and the caption it is delivered with.
// Name is the stored object; File is the filename shown on delivery.
type Artifact struct {
	Name    string `json:"name"`
	File    string `json:"file,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// Filename returns File, falling back to Name.
func (a Artifact) Filename() string {
	if a.File != "" {
		return a.File
	}
	return a.Name
}

// RunRecord is one line of run history.
// Keep it compact and schema-stable.
type RunRecord struct {
	ID         string        `json:"id"`
	Monitor    string        `json:"monitor"`
	StartedAt  time.Time     `json:"started_at"`
	Took       time.Duration `json:"took"`
	Reason     string        `json:"reason,omitempty"`
	HasChanges bool          `json:"has_changes"`
	Added      int           `json:"added"`
	Removed    int           `json:"removed"`
	Modified   int           `json:"modified"`
	Rows       int           `json:"rows"`
	Error      string        `json:"error,omitempty"`
}

// Commit holds the terminal writes of a run. Nil fields are left untouched.
type Commit struct {
	Baseline *snapshot.Snapshot
	Flag     *Flag
}

// SnapshotStore is the per-monitor view of the store.
type SnapshotStore interface {
	// Exists reports whether a baseline was ever saved. An empty baseline
	// (zero rows) exists; a missing one does not.
	Exists(ctx context.Context) (bool, error)
	LoadPrevious(ctx context.Context) (snapshot.Snapshot, bool, error)
	SavePrevious(ctx context.Context, s snapshot.Snapshot) error

	// Commit applies every non-nil write of c, or none of them.
	Commit(ctx context.Context, c Commit) error

	PeekFlag(ctx context.Context) (Flag, bool, error)
	// TakeFlag returns the flag and deletes it in one step. Two concurrent
	// callers never both receive the same flag.
	TakeFlag(ctx context.Context) (Flag, bool, error)
}

// Store is the persistence backend shared by all monitors.
type Store interface {
	Monitor(name string) SnapshotStore
	AppendRun(ctx context.Context, r RunRecord) error
	// RecentRuns returns up to n runs of monitor, newest first.
	RecentRuns(ctx context.Context, monitor string, n int) ([]RunRecord, error)
	// FlagPath returns the on-disk flag file of monitor, or "" when the
	// driver does not keep flags in files.
	FlagPath(monitor string) string
	Close() error
}
