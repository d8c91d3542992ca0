package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"dashwatch/internal/snapshot"
	logx "dashwatch/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <dir>/<monitor>/baseline.json (atomic tmp+rename)
//   - <dir>/<monitor>/flag.json     (present only while unconsumed)
//   - <dir>/runs.jsonl              (append-only JSON Lines)
type fileStore struct {
	log logx.Logger
	dir string

	mu      sync.Mutex
	runs    *os.File
	closed  bool
	monitor map[string]*fileMonitor
}

type fileMonitor struct {
	st   *fileStore
	name string
	dir  string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	rf, err := os.OpenFile(filepath.Join(dir, "runs.jsonl"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, dir: dir, runs: rf, monitor: map[string]*fileMonitor{}}, nil
}

func (s *fileStore) Monitor(name string) SnapshotStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.monitor[name]; ok {
		return m
	}
	m := &fileMonitor{st: s, name: name, dir: filepath.Join(s.dir, monitorDirName(name))}
	s.monitor[name] = m
	return m
}

func (s *fileStore) FlagPath(monitor string) string {
	return filepath.Join(s.dir, monitorDirName(monitor), "flag.json")
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.runs == nil {
		return nil
	}
	err := s.runs.Close()
	s.runs = nil
	return err
}

func (s *fileStore) AppendRun(ctx context.Context, r RunRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.runs).Encode(r)
}

func (s *fileStore) RecentRuns(ctx context.Context, monitor string, n int) ([]RunRecord, error) {
	_ = ctx
	if n <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	f, err := os.Open(filepath.Join(s.dir, "runs.jsonl"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var all []RunRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		var r RunRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.Monitor == monitor {
			all = append(all, r)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	out := make([]RunRecord, 0, min(n, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *fileMonitor) baselinePath() string { return filepath.Join(m.dir, "baseline.json") }
func (m *fileMonitor) flagPath() string     { return filepath.Join(m.dir, "flag.json") }

func (m *fileMonitor) Exists(ctx context.Context) (bool, error) {
	_ = ctx
	_, err := os.Stat(m.baselinePath())
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *fileMonitor) LoadPrevious(ctx context.Context) (snapshot.Snapshot, bool, error) {
	_ = ctx
	b, err := os.ReadFile(m.baselinePath())
	if errors.Is(err, fs.ErrNotExist) {
		return snapshot.Snapshot{}, false, nil
	}
	if err != nil {
		return snapshot.Snapshot{}, false, err
	}
	var s snapshot.Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return snapshot.Snapshot{}, false, fmt.Errorf("decode baseline %s: %w", m.baselinePath(), err)
	}
	return s, true, nil
}

func (m *fileMonitor) SavePrevious(ctx context.Context, s snapshot.Snapshot) error {
	return m.Commit(ctx, Commit{Baseline: &s})
}

func (m *fileMonitor) Commit(ctx context.Context, c Commit) error {
	_ = ctx
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	if m.st.closed {
		return ErrClosed
	}
	if c.Baseline == nil && c.Flag == nil {
		return nil
	}

	// Encode everything before touching disk.
	var baseline, flag []byte
	var err error
	if c.Baseline != nil {
		if baseline, err = json.Marshal(c.Baseline); err != nil {
			return fmt.Errorf("encode baseline: %w", err)
		}
	}
	if c.Flag != nil {
		if flag, err = json.Marshal(c.Flag); err != nil {
			return fmt.Errorf("encode flag: %w", err)
		}
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return err
	}

	restore := func() error { return nil }
	if baseline != nil {
		old, rerr := os.ReadFile(m.baselinePath())
		hadOld := rerr == nil
		if rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
			return rerr
		}
		if err := writeFileAtomic(m.baselinePath(), baseline); err != nil {
			return err
		}
		restore = func() error {
			if hadOld {
				return writeFileAtomic(m.baselinePath(), old)
			}
			return os.Remove(m.baselinePath())
		}
	}
	if flag != nil {
		if err := writeFileAtomic(m.flagPath(), flag); err != nil {
			if rerr := restore(); rerr != nil {
				m.st.log.Error("baseline rollback failed", logx.String("monitor", m.name), logx.Err(rerr))
			}
			return err
		}
	}
	return nil
}

func (m *fileMonitor) PeekFlag(ctx context.Context) (Flag, bool, error) {
	_ = ctx
	return readFlagFile(m.flagPath())
}

func (m *fileMonitor) TakeFlag(ctx context.Context) (Flag, bool, error) {
	_ = ctx
	// Rename first: only one caller can win the rename, which makes the take
	// atomic even across processes.
	taken := m.flagPath() + ".taken"
	if err := os.Rename(m.flagPath(), taken); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Flag{}, false, nil
		}
		return Flag{}, false, err
	}
	f, ok, err := readFlagFile(taken)
	_ = os.Remove(taken)
	return f, ok, err
}

func readFlagFile(path string) (Flag, bool, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Flag{}, false, nil
	}
	if err != nil {
		return Flag{}, false, err
	}
	var f Flag
	if err := json.Unmarshal(b, &f); err != nil {
		return Flag{}, false, fmt.Errorf("decode flag %s: %w", path, err)
	}
	return f, true, nil
}

// writeFileAtomic writes data to a temp file in the same directory and renames
// it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return err
	}
	return nil
}
