package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"dashwatch/internal/faults"
	logx "dashwatch/pkg/logx"
)

// Environment overrides for secrets, so tokens can stay out of config files.
const (
	EnvTelegramToken       = "DASHWATCH_TELEGRAM_TOKEN"
	EnvTelegramTokenLegacy = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID      = "TELEGRAM_CHAT_ID"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report json names (monitors[0].key_columns) instead of Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type Manager struct {
	path string
	// getenv is os.Getenv outside tests.
	getenv func(string) string

	mu  sync.RWMutex
	cfg *Config

	log logx.Logger
}

func NewManager(path string) *Manager {
	return &Manager{path: path, getenv: os.Getenv}
}

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

func (m *Manager) Path() string { return m.path }

// Parse reads, decodes and validates the config file. Every failure is a
// configuration error.
func (m *Manager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, faults.Configuration(err)
	}
	cfg, err := Decode(m.path, b)
	if err != nil {
		return nil, err
	}
	if err := m.applyEnv(cfg); err != nil {
		return nil, faults.Configuration(err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode strictly decodes data; path only selects JSON or YAML by extension.
func Decode(path string, data []byte) (*Config, error) {
	jb, _, err := coerceToJSONBytes(path, data)
	if err != nil {
		return nil, faults.Configuration(err)
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, faults.Configuration(fmt.Errorf("decode %s: %w", path, err))
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, faults.Configuration(fmt.Errorf("invalid config: trailing data"))
		}
		return nil, faults.Configuration(err)
	}
	return &cfg, nil
}

// Validate checks struct tags, duration strings and cross-field rules.
func Validate(cfg *Config) error {
	var problems []string
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return faults.Configuration(err)
		}
		for _, fe := range verrs {
			ns := strings.TrimPrefix(fe.Namespace(), "Config.")
			if fe.Param() != "" {
				problems = append(problems, fmt.Sprintf("%s: %s=%s", ns, fe.Tag(), fe.Param()))
			} else {
				problems = append(problems, fmt.Sprintf("%s: %s", ns, fe.Tag()))
			}
		}
	}
	for path, raw := range durationFields(cfg) {
		if _, err := ParseDurationField(path, raw); err != nil {
			problems = append(problems, err.Error())
		}
	}
	for i, mon := range cfg.Monitors {
		cols := map[string]bool{}
		for _, c := range mon.KeyColumns {
			cols[c] = true
		}
		for _, c := range mon.ValueColumns {
			cols[c] = true
		}
		for j, f := range mon.Filters {
			if f.Field != "" && !cols[f.Field] {
				problems = append(problems, fmt.Sprintf("monitors[%d].filters[%d].field: %q is not a key or value column", i, j, f.Field))
			}
		}
	}
	if len(problems) == 0 {
		return nil
	}
	slices.Sort(problems)
	return faults.Configuration(errors.New("invalid config: " + strings.Join(problems, "; ")))
}

func (m *Manager) applyEnv(cfg *Config) error {
	getenv := m.getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	for _, k := range []string{EnvTelegramToken, EnvTelegramTokenLegacy} {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			cfg.Telegram.Token = v
			break
		}
	}
	if v := strings.TrimSpace(getenv(EnvTelegramChatID)); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTelegramChatID, err)
		}
		cfg.Telegram.ChatID = id
	}
	return nil
}

func (m *Manager) Commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.Commit(cfg)
	if !m.log.IsZero() {
		m.log.Debug("config loaded", logx.String("path", m.path), logx.Int("monitors", len(cfg.Monitors)))
	}
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}
