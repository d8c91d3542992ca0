package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dashwatch/internal/faults"
)

const sampleYAML = `
logging: {level: info, console: true}
storage: {driver: sqlite, path: ./state/dashwatch.db, busy_timeout: 2s}
artifacts: {dir: ./downloads}
telegram: {chat_id: 100, rate_per_sec: 1, timeout: 30s}
notify: {poll_interval: 10s}
monitors:
  - name: cnj
    source: {kind: file, path: "./downloads/*.xlsx"}
    key_columns: [Tribunal, Requisito]
    value_columns: [Pontuação, Resultado]
    filters: [{name: TJMT, field: Tribunal, value: TJMT}]
    report: {format: xlsx, diff_name: Diferencas_CNJ, snapshot_prefix: Prêmio}
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func noEnv(string) string { return "" }

func TestParseYAML(t *testing.T) {
	m := NewManager(writeConfig(t, "dashwatch.yaml", sampleYAML))
	m.getenv = noEnv

	cfg, err := m.Load()
	require.NoError(t, err)
	require.Same(t, cfg, m.Get())
	require.Equal(t, "sqlite", cfg.Storage.Driver)
	require.Equal(t, int64(100), cfg.Telegram.ChatID)

	mon, ok := cfg.Monitor("cnj")
	require.True(t, ok)
	require.Equal(t, []string{"Tribunal", "Requisito"}, mon.KeyColumns)
	require.Equal(t, "Prêmio", mon.Report.SnapshotPrefix)
	require.Zero(t, mon.MinRows)
	require.Equal(t, []string{"cnj"}, cfg.MonitorNames())

	d, err := ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, d)
}

func TestParseJSONRejectsUnknownAndTrailing(t *testing.T) {
	base := `{"monitors":[{"name":"a","source":{"path":"x.csv"},"key_columns":["k"],"value_columns":["v"]}]}`

	m := NewManager(writeConfig(t, "c.json", base))
	m.getenv = noEnv
	_, err := m.Parse()
	require.NoError(t, err)

	m = NewManager(writeConfig(t, "c.json", strings.Replace(base, `"monitors"`, `"bogus":1,"monitors"`, 1)))
	m.getenv = noEnv
	_, err = m.Parse()
	require.True(t, faults.IsConfiguration(err))

	m = NewManager(writeConfig(t, "c.json", base+base))
	m.getenv = noEnv
	_, err = m.Parse()
	require.True(t, faults.IsConfiguration(err))
	require.Contains(t, err.Error(), "trailing data")
}

func TestValidateRejectsEmptyKeyColumns(t *testing.T) {
	body := strings.Replace(sampleYAML, "key_columns: [Tribunal, Requisito]", "key_columns: []", 1)
	m := NewManager(writeConfig(t, "c.yaml", body))
	m.getenv = noEnv
	_, err := m.Parse()
	require.Error(t, err)
	require.True(t, faults.IsConfiguration(err))
	require.Contains(t, err.Error(), "monitors[0].key_columns")
}

func TestValidateRules(t *testing.T) {
	cases := map[string]string{
		"policy":   strings.Replace(sampleYAML, "    report:", "    baseline_refresh_policy: sometimes\n    report:", 1),
		"duration": strings.Replace(sampleYAML, "busy_timeout: 2s", "busy_timeout: soon", 1),
		"filter":   strings.Replace(sampleYAML, "field: Tribunal", "field: Estado", 1),
		"driver":   strings.Replace(sampleYAML, "driver: sqlite", "driver: mongo", 1),
		"dup name": strings.Replace(sampleYAML, "monitors:\n", "monitors:\n  - {name: cnj, source: {path: a.csv}, key_columns: [a], value_columns: [b]}\n", 1),
		"gcs":      strings.Replace(sampleYAML, "artifacts: {dir: ./downloads}", "artifacts: {driver: gcs}", 1),
		"min rows": strings.Replace(sampleYAML, "    report:", "    min_rows: -1\n    report:", 1),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			m := NewManager(writeConfig(t, "c.yaml", body))
			m.getenv = noEnv
			_, err := m.Parse()
			require.Error(t, err)
			require.True(t, faults.IsConfiguration(err), err.Error())
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	env := map[string]string{
		EnvTelegramTokenLegacy: "legacy",
		EnvTelegramChatID:      "-1001",
	}
	m := NewManager(writeConfig(t, "c.yaml", sampleYAML))
	m.getenv = func(k string) string { return env[k] }

	cfg, err := m.Parse()
	require.NoError(t, err)
	require.Equal(t, "legacy", cfg.Telegram.Token)
	require.Equal(t, int64(-1001), cfg.Telegram.ChatID)

	env[EnvTelegramToken] = "preferred"
	cfg, err = m.Parse()
	require.NoError(t, err)
	require.Equal(t, "preferred", cfg.Telegram.Token)

	env[EnvTelegramChatID] = "abc"
	_, err = m.Parse()
	require.True(t, faults.IsConfiguration(err))
}

func TestMissingFileIsConfiguration(t *testing.T) {
	_, err := NewManager(filepath.Join(t.TempDir(), "none.yaml")).Parse()
	require.True(t, faults.IsConfiguration(err))
}
