package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dashwatch/internal/config"
	"dashwatch/internal/faults"
	"dashwatch/internal/gate"
	"dashwatch/internal/notify"
)

type recordingSender struct {
	mu    sync.Mutex
	texts []string
	docs  map[string]string
}

func (s *recordingSender) SendMessage(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return nil
}

func (s *recordingSender) SendDocument(_ context.Context, doc notify.Document) error {
	b, err := io.ReadAll(doc.Body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs == nil {
		s.docs = map[string]string{}
	}
	s.docs[doc.Name] = doc.Caption + "\n" + string(b)
	return nil
}

func setup(t *testing.T) (dir, cfgPath string) {
	t.Helper()
	t.Setenv(config.EnvTelegramToken, "")
	t.Setenv(config.EnvTelegramTokenLegacy, "")
	t.Setenv(config.EnvTelegramChatID, "")

	dir = t.TempDir()
	cfg := strings.NewReplacer("$DIR", filepath.ToSlash(dir)).Replace(`
logging: {level: error}
storage: {driver: file, path: "$DIR/state"}
artifacts: {dir: "$DIR/out"}
telegram: {rate_per_sec: 50}
monitors:
  - name: CNJ
    source: {path: "$DIR/in/*.csv"}
    key_columns: [Tribunal, Requisito]
    value_columns: [Pontuação]
    filters: [{name: TJMT, field: Tribunal, value: TJMT}]
    report: {format: csv}
`)
	cfgPath = filepath.Join(dir, "dashwatch.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "in"), 0o755))
	return dir, cfgPath
}

func writeCSV(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "in", "export.csv"), []byte(body), 0o644))
}

func TestRunAndDeliverEndToEnd(t *testing.T) {
	ctx := context.Background()
	dir, cfgPath := setup(t)

	a, err := NewApp(ctx, cfgPath)
	require.NoError(t, err)
	defer a.Close()
	require.Equal(t, []string{"CNJ"}, a.Runner().Names())
	a.Runner().Now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }

	sender := &recordingSender{}
	n, err := a.NotifierWith(sender)
	require.NoError(t, err)

	writeCSV(t, dir, "Tribunal,Requisito,Pontuação\nTJMT,A,10\nTJSP,A,7\n")
	reps, err := a.Runner().RunAll(ctx)
	require.NoError(t, err)
	require.Equal(t, gate.ReasonFirstRun, reps[0].Result.Reason)

	d, err := n.Deliver(ctx, "CNJ")
	require.NoError(t, err)
	require.NotNil(t, d.Flag)
	require.Equal(t, []string{notify.Summary(*d.Flag)}, sender.texts)

	writeCSV(t, dir, "Tribunal,Requisito,Pontuação\nTJMT,A,12\nTJSP,A,7\n")
	reps, err = a.Runner().RunAll(ctx)
	require.NoError(t, err)
	require.Equal(t, gate.ReasonDiffFound, reps[0].Result.Reason)

	require.Equal(t, "Diferencas_CNJ.csv", reps[0].Artifacts[0].File)
	_, err = os.Stat(filepath.Join(dir, "out", reps[0].Artifacts[0].Name))
	require.NoError(t, err)

	_, err = n.Deliver(ctx, "CNJ")
	require.NoError(t, err)
	require.Len(t, sender.texts, 2)
	require.Contains(t, sender.docs, "Diferencas_CNJ.csv")
	require.Contains(t, sender.docs, "Diferencas_CNJ_TJMT.csv")
	require.Contains(t, sender.docs["Diferencas_CNJ_TJMT.csv"], "📊 Diferenças TJMT")
	require.Contains(t, sender.docs["Diferencas_CNJ.csv"], "TJMT,A,10,TJMT,A,12")

	// Flag consumed: a second delivery sends nothing.
	d, err = n.Deliver(ctx, "CNJ")
	require.NoError(t, err)
	require.Nil(t, d.Flag)
	require.Len(t, sender.texts, 2)

	runs, err := a.Store().RecentRuns(ctx, "CNJ", 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
}

func TestNotifierRequiresCredentials(t *testing.T) {
	_, cfgPath := setup(t)
	a, err := NewApp(context.Background(), cfgPath)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Notifier()
	require.Error(t, err)
	require.True(t, faults.IsConfiguration(err))
}

func TestNewAppMissingConfig(t *testing.T) {
	_, err := NewApp(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestMapStorageConfig(t *testing.T) {
	cfg := &config.Config{}
	sc, err := mapStorageConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, "file", sc.Driver)
	require.Equal(t, defaultStateDir, sc.Path)

	cfg.Storage = config.StorageConfig{Driver: "SQLite3", Path: "x.db"}
	sc, err = mapStorageConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, "sqlite", sc.Driver)
	require.Equal(t, time.Second, sc.BusyTimeout)

	cfg.Storage = config.StorageConfig{Driver: "sqlite"}
	_, err = mapStorageConfig(cfg)
	require.Error(t, err)

	cfg.Storage = config.StorageConfig{Driver: "sqlite", Path: "x.db", BusyTimeout: "-1s"}
	_, err = mapStorageConfig(cfg)
	require.Error(t, err)

	cfg.Storage = config.StorageConfig{Driver: "etcd"}
	_, err = mapStorageConfig(cfg)
	require.Error(t, err)
}

func TestMapNotifyAndTelegramDefaults(t *testing.T) {
	cfg := &config.Config{}
	nc, err := mapNotifyConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, 1, nc.RatePerSec)
	require.Equal(t, 30*time.Second, nc.PollInterval)

	tc, err := mapTelegramConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, tc.Timeout)

	ac := mapArtifactsConfig(&config.Config{Artifacts: config.ArtifactsConfig{Driver: "GCS", Bucket: "b", Prefix: "/reports/"}})
	require.Equal(t, "gcs", ac.Driver)
	require.Equal(t, "reports", ac.Prefix)
}
