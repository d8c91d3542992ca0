package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveRunAndFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashwatch.prom")
	r := New(path)

	r.ObserveRun(Run{Monitor: "cnj", Reason: "diff_found", HasChanges: true, Added: 2, Rows: 10, At: time.Unix(1700000000, 0), Took: time.Second})
	r.ObserveFailure("cnj", "acquisition")
	r.ObserveFailure("cnj", "")

	require.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("cnj", "diff_found")))
	require.Equal(t, 2.0, testutil.ToFloat64(r.entries.WithLabelValues("cnj", "added")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.hasChanges.WithLabelValues("cnj")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.failures.WithLabelValues("cnj", "other")))

	require.NoError(t, r.Flush())
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(b), `dashwatch_last_run_timestamp_seconds{monitor="cnj"}`), string(b))
}

func TestFlushWithoutTextfile(t *testing.T) {
	require.NoError(t, New("").Flush())
}
