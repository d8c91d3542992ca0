package storage

import (
	"context"
	"encoding/json"
	"sync"

	"dashwatch/internal/snapshot"
)

// MemoryStore keeps everything in process memory. Values are stored encoded
// so callers never share row maps with the store.
type MemoryStore struct {
	mu       sync.Mutex
	baseline map[string][]byte
	flags    map[string]Flag
	runs     []RunRecord

	// FailCommit, when set, is returned by the next Commit instead of writing.
	FailCommit error
}

func NewMemory() *MemoryStore {
	return &MemoryStore{baseline: map[string][]byte{}, flags: map[string]Flag{}}
}

type memoryMonitor struct {
	st   *MemoryStore
	name string
}

func (s *MemoryStore) Monitor(name string) SnapshotStore { return &memoryMonitor{st: s, name: name} }
func (s *MemoryStore) FlagPath(string) string            { return "" }
func (s *MemoryStore) Close() error                      { return nil }

func (s *MemoryStore) AppendRun(ctx context.Context, r RunRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, r)
	return nil
}

func (s *MemoryStore) RecentRuns(ctx context.Context, monitor string, n int) ([]RunRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RunRecord
	for i := len(s.runs) - 1; i >= 0 && len(out) < n; i-- {
		if s.runs[i].Monitor == monitor {
			out = append(out, s.runs[i])
		}
	}
	return out, nil
}

func (m *memoryMonitor) Exists(ctx context.Context) (bool, error) {
	_ = ctx
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	_, ok := m.st.baseline[m.name]
	return ok, nil
}

func (m *memoryMonitor) LoadPrevious(ctx context.Context) (snapshot.Snapshot, bool, error) {
	_ = ctx
	m.st.mu.Lock()
	b, ok := m.st.baseline[m.name]
	m.st.mu.Unlock()
	if !ok {
		return snapshot.Snapshot{}, false, nil
	}
	var s snapshot.Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return snapshot.Snapshot{}, false, err
	}
	return s, true, nil
}

func (m *memoryMonitor) SavePrevious(ctx context.Context, s snapshot.Snapshot) error {
	return m.Commit(ctx, Commit{Baseline: &s})
}

func (m *memoryMonitor) Commit(ctx context.Context, c Commit) error {
	_ = ctx
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	if err := m.st.FailCommit; err != nil {
		m.st.FailCommit = nil
		return err
	}
	if c.Baseline != nil {
		b, err := json.Marshal(c.Baseline)
		if err != nil {
			return err
		}
		m.st.baseline[m.name] = b
	}
	if c.Flag != nil {
		m.st.flags[m.name] = *c.Flag
	}
	return nil
}

func (m *memoryMonitor) PeekFlag(ctx context.Context) (Flag, bool, error) {
	_ = ctx
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	f, ok := m.st.flags[m.name]
	return f, ok, nil
}

func (m *memoryMonitor) TakeFlag(ctx context.Context) (Flag, bool, error) {
	_ = ctx
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	f, ok := m.st.flags[m.name]
	delete(m.st.flags, m.name)
	return f, ok, nil
}
