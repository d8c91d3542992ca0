package config

// Config is the root of dashwatch.yaml (or .json).
//
// All durations are Go duration strings (e.g. "500ms", "30s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Artifacts ArtifactsConfig `json:"artifacts"`
	Telegram  TelegramConfig  `json:"telegram"`
	Metrics   MetricsConfig   `json:"metrics,omitempty"`
	Notify    NotifyConfig    `json:"notify,omitempty"`
	Debug     DebugConfig     `json:"debug,omitempty"`
	Monitors  []MonitorConfig `json:"monitors" validate:"required,min=1,unique=Name,dive"`
}

type LoggingConfig struct {
	Level   string        `json:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects where baselines, flags and run history live.
//
// Defaults:
//   - driver: "file"
//   - path: "./state"
//   - busy_timeout: "1s" (sqlite only)
type StorageConfig struct {
	Driver      string `json:"driver,omitempty" validate:"omitempty,oneof=file sqlite sqlite3 badger memory"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// ArtifactsConfig selects where rendered reports are written.
//
// Defaults:
//   - driver: "local"
//   - dir: "./downloads"
type ArtifactsConfig struct {
	Driver          string `json:"driver,omitempty" validate:"omitempty,oneof=local gcs"`
	Dir             string `json:"dir,omitempty"`
	Bucket          string `json:"bucket,omitempty" validate:"required_if=Driver gcs"`
	Prefix          string `json:"prefix,omitempty"`
	CredentialsFile string `json:"credentials_file,omitempty"`
}

// TelegramConfig configures report delivery. Token and chat id may also come
// from the environment (see applyEnv).
type TelegramConfig struct {
	Token      string `json:"token,omitempty"`
	ChatID     int64  `json:"chat_id,omitempty"`
	ThreadID   int    `json:"thread_id,omitempty" validate:"gte=0"`
	RatePerSec int    `json:"rate_per_sec,omitempty" validate:"gte=0"`
	Timeout    string `json:"timeout,omitempty"`
	APIURL     string `json:"api_url,omitempty" validate:"omitempty,url"`
}

type MetricsConfig struct {
	// Textfile is the node-exporter textfile collector target. Empty disables.
	Textfile string `json:"textfile,omitempty"`
}

type NotifyConfig struct {
	PollInterval string `json:"poll_interval,omitempty"`
}

// DebugConfig enables the HTTP debug endpoint (healthz, metrics, pprof) of
// "notify --watch". Empty addr disables it.
type DebugConfig struct {
	Addr          string `json:"addr,omitempty" validate:"omitempty,hostname_port"`
	Prefix        string `json:"prefix,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

type MonitorConfig struct {
	Name   string       `json:"name" validate:"required"`
	Source SourceConfig `json:"source"`

	KeyColumns   []string       `json:"key_columns" validate:"required,min=1,dive,required"`
	ValueColumns []string       `json:"value_columns" validate:"required,min=1,dive,required"`
	Filters      []FilterConfig `json:"filters,omitempty" validate:"dive"`

	// BaselineRefreshPolicy is "on-change-only" (default) or "always".
	BaselineRefreshPolicy string `json:"baseline_refresh_policy,omitempty" validate:"omitempty,oneof=on-change-only always"`

	// MinRows fails the run when a capture has fewer rows. Zero disables it.
	MinRows int `json:"min_rows,omitempty" validate:"gte=0"`

	Report ReportConfig `json:"report"`
}

type SourceConfig struct {
	Kind    string            `json:"kind,omitempty" validate:"omitempty,oneof=file http https"`
	Path    string            `json:"path,omitempty" validate:"required_without=URL"`
	URL     string            `json:"url,omitempty" validate:"omitempty,url"`
	Format  string            `json:"format,omitempty" validate:"omitempty,oneof=csv xlsx excel json"`
	Sheet   string            `json:"sheet,omitempty"`
	Timeout string            `json:"timeout,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// FilterConfig selects rows whose Field equals Value. Name labels the
// sub-report; it defaults to Value.
type FilterConfig struct {
	Name  string `json:"name,omitempty"`
	Field string `json:"field" validate:"required"`
	Value string `json:"value" validate:"required"`
}

// ReportConfig controls report rendering.
//
// Defaults:
//   - format: "xlsx"
//   - diff_name: "Diferencas_<monitor name>"
//   - snapshot_prefix: "" (no snapshot exports)
type ReportConfig struct {
	Format         string `json:"format,omitempty" validate:"omitempty,oneof=xlsx csv"`
	DiffName       string `json:"diff_name,omitempty"`
	SnapshotPrefix string `json:"snapshot_prefix,omitempty"`
}

// Monitor returns the named monitor.
func (c *Config) Monitor(name string) (MonitorConfig, bool) {
	for _, m := range c.Monitors {
		if m.Name == name {
			return m, true
		}
	}
	return MonitorConfig{}, false
}

// MonitorNames lists monitors in config order.
func (c *Config) MonitorNames() []string {
	out := make([]string, 0, len(c.Monitors))
	for _, m := range c.Monitors {
		out = append(out, m.Name)
	}
	return out
}
