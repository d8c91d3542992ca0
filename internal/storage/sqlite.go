package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"dashwatch/internal/snapshot"
	logx "dashwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteTime is fixed width so started_at sorts as text.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

type sqliteMonitor struct {
	st   *sqliteStore
	name string
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer; this also keeps ":memory:" on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Monitor(name string) SnapshotStore { return &sqliteMonitor{st: s, name: name} }

func (s *sqliteStore) FlagPath(string) string { return "" }

func (s *sqliteStore) AppendRun(ctx context.Context, r RunRecord) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(id, monitor, started_at, took_ms, reason, has_changes, added, removed, modified, row_count, err)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.Monitor, r.StartedAt.UTC().Format(sqliteTime), r.Took.Milliseconds(), nullStr(r.Reason),
		r.HasChanges, r.Added, r.Removed, r.Modified, r.Rows, nullStr(r.Error),
	)
	return err
}

func (s *sqliteStore) RecentRuns(ctx context.Context, monitor string, n int) ([]RunRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, monitor, started_at, took_ms, COALESCE(reason, ''), has_changes, added, removed, modified, row_count, COALESCE(err, '')
		 FROM runs WHERE monitor = ? ORDER BY started_at DESC LIMIT ?`, monitor, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r       RunRecord
			started string
			tookMS  int64
		)
		if err := rows.Scan(&r.ID, &r.Monitor, &started, &tookMS, &r.Reason, &r.HasChanges,
			&r.Added, &r.Removed, &r.Modified, &r.Rows, &r.Error); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.Took = time.Duration(tookMS) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

func (m *sqliteMonitor) Exists(ctx context.Context) (bool, error) {
	var one int
	err := m.st.db.QueryRowContext(ctx, `SELECT 1 FROM baseline WHERE monitor = ?`, m.name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *sqliteMonitor) LoadPrevious(ctx context.Context) (snapshot.Snapshot, bool, error) {
	var body string
	err := m.st.db.QueryRowContext(ctx, `SELECT body FROM baseline WHERE monitor = ?`, m.name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return snapshot.Snapshot{}, false, nil
	}
	if err != nil {
		return snapshot.Snapshot{}, false, err
	}
	var s snapshot.Snapshot
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		return snapshot.Snapshot{}, false, fmt.Errorf("decode baseline of %s: %w", m.name, err)
	}
	return s, true, nil
}

func (m *sqliteMonitor) SavePrevious(ctx context.Context, s snapshot.Snapshot) error {
	return m.Commit(ctx, Commit{Baseline: &s})
}

func (m *sqliteMonitor) Commit(ctx context.Context, c Commit) error {
	if c.Baseline == nil && c.Flag == nil {
		return nil
	}
	tx, err := m.st.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if c.Baseline != nil {
		body, err := json.Marshal(c.Baseline)
		if err != nil {
			return fmt.Errorf("encode baseline: %w", err)
		}
		var captured any
		if !c.Baseline.CapturedAt.IsZero() {
			captured = c.Baseline.CapturedAt.UTC().Format(time.RFC3339Nano)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO baseline(monitor, captured_at, saved_at, body) VALUES(?,?,?,?)
			 ON CONFLICT(monitor) DO UPDATE SET captured_at=excluded.captured_at, saved_at=excluded.saved_at, body=excluded.body`,
			m.name, captured, time.Now().UTC().Format(time.RFC3339Nano), string(body),
		); err != nil {
			return err
		}
	}
	if c.Flag != nil {
		body, err := json.Marshal(c.Flag)
		if err != nil {
			return fmt.Errorf("encode flag: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO flag(monitor, body) VALUES(?,?)
			 ON CONFLICT(monitor) DO UPDATE SET body=excluded.body`,
			m.name, string(body),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *sqliteMonitor) PeekFlag(ctx context.Context) (Flag, bool, error) {
	var body string
	err := m.st.db.QueryRowContext(ctx, `SELECT body FROM flag WHERE monitor = ?`, m.name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return Flag{}, false, nil
	}
	if err != nil {
		return Flag{}, false, err
	}
	return decodeFlag([]byte(body))
}

func (m *sqliteMonitor) TakeFlag(ctx context.Context) (Flag, bool, error) {
	tx, err := m.st.db.BeginTx(ctx, nil)
	if err != nil {
		return Flag{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	var body string
	err = tx.QueryRowContext(ctx, `SELECT body FROM flag WHERE monitor = ?`, m.name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return Flag{}, false, nil
	}
	if err != nil {
		return Flag{}, false, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM flag WHERE monitor = ?`, m.name); err != nil {
		return Flag{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return Flag{}, false, err
	}
	return decodeFlag([]byte(body))
}

func decodeFlag(b []byte) (Flag, bool, error) {
	var f Flag
	if err := json.Unmarshal(b, &f); err != nil {
		return Flag{}, false, fmt.Errorf("decode flag: %w", err)
	}
	return f, true, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
