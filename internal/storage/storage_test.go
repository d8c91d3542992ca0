package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dashwatch/internal/snapshot"
	logx "dashwatch/pkg/logx"
)

func openAll(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{}
	for _, cfg := range []Config{
		{Driver: "file", Path: filepath.Join(dir, "file")},
		{Driver: "sqlite", Path: filepath.Join(dir, "state.db")},
		{Driver: "badger", Path: filepath.Join(dir, "badger")},
		{Driver: "memory"},
	} {
		st, err := Open(cfg, logx.Nop())
		require.NoError(t, err, cfg.Driver)
		t.Cleanup(func() { _ = st.Close() })
		out[cfg.Driver] = st
	}
	return out
}

func sample() snapshot.Snapshot {
	s := snapshot.New([]snapshot.Row{
		snapshot.StringRow("Tribunal", "A", "Requisito", "X", "Pontuação", "10"),
		snapshot.StringRow("Tribunal", "B", "Requisito", "Y", "Pontuação", "5"),
	})
	s.CapturedAt = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return s
}

func TestBaselineRoundTrip(t *testing.T) {
	ctx := context.Background()
	for driver, st := range openAll(t) {
		t.Run(driver, func(t *testing.T) {
			m := st.Monitor("mon")

			ok, err := m.Exists(ctx)
			require.NoError(t, err)
			require.False(t, ok)

			_, found, err := m.LoadPrevious(ctx)
			require.NoError(t, err)
			require.False(t, found)

			want := sample()
			require.NoError(t, m.SavePrevious(ctx, want))

			got, found, err := m.LoadPrevious(ctx)
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, want.Columns, got.Columns)
			require.Len(t, got.Rows, 2)
			require.Equal(t, "5", got.Rows[1].Get("Pontuação").String())
			require.True(t, want.CapturedAt.Equal(got.CapturedAt))

			// Monitors are isolated.
			ok, err = st.Monitor("other").Exists(ctx)
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestEmptyBaselineExists(t *testing.T) {
	ctx := context.Background()
	for driver, st := range openAll(t) {
		t.Run(driver, func(t *testing.T) {
			m := st.Monitor("empty")
			require.NoError(t, m.SavePrevious(ctx, snapshot.Snapshot{}))

			ok, err := m.Exists(ctx)
			require.NoError(t, err)
			require.True(t, ok)

			got, found, err := m.LoadPrevious(ctx)
			require.NoError(t, err)
			require.True(t, found)
			require.Zero(t, got.Len())
		})
	}
}

func TestCommitAndTakeFlagOnce(t *testing.T) {
	ctx := context.Background()
	for driver, st := range openAll(t) {
		t.Run(driver, func(t *testing.T) {
			m := st.Monitor("mon")
			base := sample()
			flag := Flag{RunID: "r1", Monitor: "mon", Reason: "diff_found", Added: 1, Artifacts: []Artifact{{Name: "r1_a.xlsx", File: "a.xlsx", Caption: "A"}}}
			require.NoError(t, m.Commit(ctx, Commit{Baseline: &base, Flag: &flag}))

			ok, err := m.Exists(ctx)
			require.NoError(t, err)
			require.True(t, ok)

			peek, found, err := m.PeekFlag(ctx)
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, "r1", peek.RunID)

			got, found, err := m.TakeFlag(ctx)
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, []Artifact{{Name: "r1_a.xlsx", File: "a.xlsx", Caption: "A"}}, got.Artifacts)
			require.Equal(t, 1, got.Added)

			_, found, err = m.TakeFlag(ctx)
			require.NoError(t, err)
			require.False(t, found)
		})
	}
}

func TestTakeFlagConcurrent(t *testing.T) {
	ctx := context.Background()
	for driver, st := range openAll(t) {
		t.Run(driver, func(t *testing.T) {
			m := st.Monitor("race")
			require.NoError(t, m.Commit(ctx, Commit{Flag: &Flag{RunID: "once"}}))

			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, found, err := m.TakeFlag(ctx)
					if err == nil && found {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			require.Equal(t, 1, wins)
		})
	}
}

func TestRecentRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for driver, st := range openAll(t) {
		t.Run(driver, func(t *testing.T) {
			for i, id := range []string{"a", "b", "c"} {
				require.NoError(t, st.AppendRun(ctx, RunRecord{ID: id, Monitor: "mon", StartedAt: t0.Add(time.Duration(i) * time.Minute), Reason: "no_diff"}))
			}
			require.NoError(t, st.AppendRun(ctx, RunRecord{ID: "x", Monitor: "other", StartedAt: t0.Add(time.Hour)}))

			runs, err := st.RecentRuns(ctx, "mon", 2)
			require.NoError(t, err)
			require.Len(t, runs, 2)
			require.Equal(t, "c", runs[0].ID)
			require.Equal(t, "b", runs[1].ID)
			require.Equal(t, "no_diff", runs[0].Reason)
		})
	}
}

func TestFileCommitRollsBackBaselineWhenFlagFails(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	m := st.Monitor("mon")
	old := sample()
	require.NoError(t, m.SavePrevious(ctx, old))

	// A directory in place of flag.json makes the rename fail.
	require.NoError(t, os.MkdirAll(filepath.Join(st.FlagPath("mon"), "blocker"), 0o755))

	next := snapshot.New([]snapshot.Row{snapshot.StringRow("Tribunal", "Z", "Requisito", "Z")})
	err = m.Commit(ctx, Commit{Baseline: &next, Flag: &Flag{RunID: "r"}})
	require.Error(t, err)

	got, found, err := m.LoadPrevious(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 2, got.Len())
}

func TestFlagPathOnlyForFileDriver(t *testing.T) {
	for driver, st := range openAll(t) {
		if driver == "file" {
			require.Equal(t, "flag.json", filepath.Base(st.FlagPath("a/b")))
			require.Equal(t, "a_b", filepath.Base(filepath.Dir(st.FlagPath("a/b"))))
			continue
		}
		require.Empty(t, st.FlagPath("mon"), driver)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "etcd"}, logx.Nop())
	require.Error(t, err)
}
