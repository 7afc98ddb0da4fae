package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds the recognized settings. Model is informational only; the
// job-based family configures models per assistant server-side and the
// direct-call family per profile.
type Config struct {
	Provider          string `mapstructure:"provider" yaml:"provider"`
	APIKey            string `mapstructure:"api_key" yaml:"api_key"`
	AlternateAPIKey   string `mapstructure:"alternate_api_key" yaml:"alternate_api_key"`
	AlternateEndpoint string `mapstructure:"alternate_endpoint" yaml:"alternate_endpoint"`
	Model             string `mapstructure:"model" yaml:"model"`
	AssistantID       string `mapstructure:"assistant_id" yaml:"assistant_id"`
	SendCodeContext   bool   `mapstructure:"send_code_context" yaml:"send_code_context"`
}

// Fingerprint identifies the backend-affecting subset of the configuration.
// Conversation handles are only valid under the fingerprint they were
// created with.
func (c Config) Fingerprint() string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s\x00%s\x00%s\x00%s",
		c.Provider, c.APIKey, c.AlternateAPIKey, c.AlternateEndpoint))
	return hex.EncodeToString(sum[:])[:16]
}

// DefaultPath returns ~/.config/assistant-chat/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "assistant-chat", "config.yaml")
}

// Manager loads settings from a YAML file and notifies on changes to the
// backend-affecting keys.
type Manager struct {
	v    *viper.Viper
	path string

	mu  sync.Mutex
	cfg Config
}

// Load reads the configuration at path. A missing file yields defaults.
func Load(path string) (*Manager, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("provider", "auto")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return &Manager{v: v, path: path, cfg: cfg}, nil
}

func (m *Manager) Current() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Dir() string {
	return filepath.Dir(m.path)
}

// Watch reloads the file on change and fires onBackendChange when the
// fingerprint moved, i.e. when the active backend must be rebuilt and all
// cached conversation handles invalidated.
func (m *Manager) Watch(onBackendChange func(Config)) {
	m.v.OnConfigChange(func(_ fsnotify.Event) {
		var cfg Config
		if err := m.v.Unmarshal(&cfg); err != nil {
			return
		}

		m.mu.Lock()
		changed := cfg.Fingerprint() != m.cfg.Fingerprint()
		m.cfg = cfg
		m.mu.Unlock()

		if changed && onBackendChange != nil {
			onBackendChange(cfg)
		}
	})
	m.v.WatchConfig()
}

// SetAssistantID persists the selected assistant.
func (m *Manager) SetAssistantID(id string) error {
	return m.update(func(c *Config) { c.AssistantID = id }, "assistant_id", id)
}

// SetAPIKey persists the key for the chosen provider family.
func (m *Manager) SetAPIKey(key string, alternate bool) error {
	if alternate {
		return m.update(func(c *Config) { c.AlternateAPIKey = key }, "alternate_api_key", key)
	}
	return m.update(func(c *Config) { c.APIKey = key }, "api_key", key)
}

func (m *Manager) update(apply func(*Config), key string, value any) error {
	m.mu.Lock()
	apply(&m.cfg)
	m.mu.Unlock()

	m.v.Set(key, value)
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := m.v.WriteConfigAs(m.path); err != nil {
		return fmt.Errorf("writing config to %s: %w", m.path, err)
	}
	return nil
}
