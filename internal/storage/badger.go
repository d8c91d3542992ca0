package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"dashwatch/internal/snapshot"
	logx "dashwatch/pkg/logx"
)

// badgerStore keeps baselines, flags and runs in one BadgerDB directory.
//
// Keys:
//   - baseline/<monitor>
//   - flag/<monitor>
//   - run/<monitor>/<started unix nano, zero padded>/<id>
type badgerStore struct {
	db  *badger.DB
	log logx.Logger
}

type badgerMonitor struct {
	st   *badgerStore
	name string
}

// badgerLogger adapts logx.Logger to BadgerDB's Logger interface.
type badgerLogger struct{ log logx.Logger }

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func openBadger(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)

	var opts badger.Options
	if path == "" || path == ":memory:" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(badgerLogger{log: log.With(logx.String("comp", "badger"))})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &badgerStore{db: db, log: log}, nil
}

func (s *badgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *badgerStore) Monitor(name string) SnapshotStore { return &badgerMonitor{st: s, name: name} }

func (s *badgerStore) FlagPath(string) string { return "" }

func runKey(r RunRecord) []byte {
	return []byte(fmt.Sprintf("run/%s/%020d/%s", r.Monitor, r.StartedAt.UnixNano(), r.ID))
}

func (s *badgerStore) AppendRun(ctx context.Context, r RunRecord) error {
	_ = ctx
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(r), b)
	})
}

func (s *badgerStore) RecentRuns(ctx context.Context, monitor string, n int) ([]RunRecord, error) {
	_ = ctx
	if n <= 0 {
		return nil, nil
	}
	prefix := []byte("run/" + monitor + "/")
	var out []RunRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte(nil), prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) < n; it.Next() {
			var r RunRecord
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &r) }); err != nil {
				continue
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

func (m *badgerMonitor) baselineKey() []byte { return []byte("baseline/" + m.name) }
func (m *badgerMonitor) flagKey() []byte     { return []byte("flag/" + m.name) }

func (m *badgerMonitor) Exists(ctx context.Context) (bool, error) {
	_ = ctx
	err := m.st.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(m.baselineKey())
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *badgerMonitor) LoadPrevious(ctx context.Context) (snapshot.Snapshot, bool, error) {
	_ = ctx
	var s snapshot.Snapshot
	err := m.st.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(m.baselineKey())
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error { return json.Unmarshal(v, &s) })
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return snapshot.Snapshot{}, false, nil
	}
	if err != nil {
		return snapshot.Snapshot{}, false, err
	}
	return s, true, nil
}

func (m *badgerMonitor) SavePrevious(ctx context.Context, s snapshot.Snapshot) error {
	return m.Commit(ctx, Commit{Baseline: &s})
}

func (m *badgerMonitor) Commit(ctx context.Context, c Commit) error {
	_ = ctx
	if c.Baseline == nil && c.Flag == nil {
		return nil
	}
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
	return m.st.db.Update(func(txn *badger.Txn) error {
		if baseline != nil {
			if err := txn.Set(m.baselineKey(), baseline); err != nil {
				return err
			}
		}
		if flag != nil {
			if err := txn.Set(m.flagKey(), flag); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *badgerMonitor) PeekFlag(ctx context.Context) (Flag, bool, error) {
	_ = ctx
	var body []byte
	err := m.st.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(m.flagKey())
		if err != nil {
			return err
		}
		body, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Flag{}, false, nil
	}
	if err != nil {
		return Flag{}, false, err
	}
	return decodeFlag(body)
}

func (m *badgerMonitor) TakeFlag(ctx context.Context) (Flag, bool, error) {
	_ = ctx
	var body []byte
	// Conflicting takes abort one transaction with ErrConflict, so a flag
	// is handed out at most once.
	err := m.st.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(m.flagKey())
		if err != nil {
			return err
		}
		if body, err = item.ValueCopy(nil); err != nil {
			return err
		}
		return txn.Delete(m.flagKey())
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Flag{}, false, nil
	}
	if err != nil {
		return Flag{}, false, err
	}
	return decodeFlag(body)
}
