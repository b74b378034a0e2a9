package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/normanking/cortex-voice/internal/mcp"
)

// Config holds all application configuration for the voice bridge.
// It is loaded from ~/.cortex-voice/config.yaml and can be overridden
// by environment variables.
type Config struct {
	Gemini   GeminiConfig   `mapstructure:"gemini" yaml:"gemini"`
	Audio    AudioConfig    `mapstructure:"audio" yaml:"audio"`
	Backends BackendsConfig `mapstructure:"backends" yaml:"backends"`
	TUI      TUIConfig      `mapstructure:"tui" yaml:"tui"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Observer ObserverConfig `mapstructure:"observer" yaml:"observer"`
}

// GeminiConfig configures the live voice peer connection.
type GeminiConfig struct {
	// Model is the full model resource name used in the setup frame
	Model string `mapstructure:"model" yaml:"model"`

	// Endpoint is the websocket URL; empty selects the production endpoint
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// APIKeyEnv names the environment variable holding the API key.
	// The key itself never lives in the config file.
	APIKeyEnv string `mapstructure:"api_key_env" yaml:"api_key_env"`

	// SystemInstruction primes the model for the session
	SystemInstruction string `mapstructure:"system_instruction" yaml:"system_instruction,omitempty"`

	// EnableSearch advertises the search passthrough tool alongside
	// the backend capabilities
	EnableSearch bool `mapstructure:"enable_search" yaml:"enable_search"`

	// HandshakeTimeout bounds dial plus setup (e.g. "10s")
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout,omitempty"`
}

// AudioConfig configures the session's audio behavior.
type AudioConfig struct {
	// StartMuted opens the session with the microphone off
	StartMuted bool `mapstructure:"start_muted" yaml:"start_muted"`

	// DrainGraceMs is the pause after playback drains before the mic
	// reopens, in milliseconds
	DrainGraceMs int `mapstructure:"drain_grace_ms" yaml:"drain_grace_ms"`
}

// BackendsConfig lists the capability backends to launch.
type BackendsConfig struct {
	// Servers are backends declared inline in the config file
	Servers []mcp.ServerConfig `mapstructure:"servers" yaml:"servers,omitempty"`

	// File points at an mcpServers-style JSON file; entries there are
	// merged with Servers (inline wins on name collisions)
	File string `mapstructure:"file" yaml:"file,omitempty"`

	// InvokeTimeout bounds one capability call (e.g. "30s")
	InvokeTimeout time.Duration `mapstructure:"invoke_timeout" yaml:"invoke_timeout,omitempty"`
}

// TUIConfig contains configuration for the terminal user interface.
type TUIConfig struct {
	// Theme is the UI theme ("dark" or "light")
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// LoggingConfig contains configuration for application logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error")
	Level string `mapstructure:"level" yaml:"level"`
	// File is the path to the log file
	File string `mapstructure:"file" yaml:"file"`
}

// ObserverConfig configures the optional websocket event tap.
type ObserverConfig struct {
	// Enabled starts the event tap server
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Port is the tap's listen port
	Port int `mapstructure:"port" yaml:"port"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	appDir := filepath.Join(homeDir, ".cortex-voice")

	return &Config{
		Gemini: GeminiConfig{
			Model:             "models/gemini-2.0-flash-live-001",
			APIKeyEnv:         "GEMINI_API_KEY",
			SystemInstruction: "You are a helpful voice assistant. Keep spoken answers short.",
			EnableSearch:      true,
			HandshakeTimeout:  10 * time.Second,
		},
		Audio: AudioConfig{
			StartMuted:   false,
			DrainGraceMs: 80,
		},
		Backends: BackendsConfig{
			File:          filepath.Join(appDir, "backends.json"),
			InvokeTimeout: 30 * time.Second,
		},
		TUI: TUIConfig{
			Theme: "dark",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(appDir, "logs", "cortex-voice.log"),
		},
		Observer: ObserverConfig{
			Enabled: false,
			Port:    8765,
		},
	}
}

// DataDir returns the application data directory (~/.cortex-voice).
func DataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".cortex-voice")
}

// Load reads configuration from the default location
// (~/.cortex-voice/config.yaml) and merges with environment variables.
// If no config file exists, one is created with default values.
func Load() (*Config, error) {
	return LoadFromPath(filepath.Join(DataDir(), "config.yaml"))
}

// LoadFromPath reads configuration from a specific file path and
// merges with environment variables. A missing file is created with
// defaults.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("config: create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("config: write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Example override: CORTEX_VOICE_GEMINI_MODEL
	v.SetEnvPrefix("CORTEX_VOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal config: %w", err)
	}

	cfg.Logging.File = expandPath(cfg.Logging.File)
	cfg.Backends.File = expandPath(cfg.Backends.File)
	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults fills in missing values so a sparse config file still
// yields a runnable session.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Gemini.Model == "" {
		c.Gemini.Model = defaults.Gemini.Model
	}
	if c.Gemini.APIKeyEnv == "" {
		c.Gemini.APIKeyEnv = defaults.Gemini.APIKeyEnv
	}
	if c.Gemini.HandshakeTimeout == 0 {
		c.Gemini.HandshakeTimeout = defaults.Gemini.HandshakeTimeout
	}
	if c.Audio.DrainGraceMs == 0 {
		c.Audio.DrainGraceMs = defaults.Audio.DrainGraceMs
	}
	if c.Backends.InvokeTimeout == 0 {
		c.Backends.InvokeTimeout = defaults.Backends.InvokeTimeout
	}
	if c.TUI.Theme == "" {
		c.TUI.Theme = defaults.TUI.Theme
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.File == "" {
		c.Logging.File = defaults.Logging.File
	}
	if c.Observer.Port == 0 {
		c.Observer.Port = defaults.Observer.Port
	}
}

// APIKey resolves the peer API key from the configured environment
// variable.
func (c *Config) APIKey() string {
	return os.Getenv(c.Gemini.APIKeyEnv)
}

// Validate checks the configuration for common errors.
func (c *Config) Validate() error {
	if c.Gemini.Model == "" {
		return fmt.Errorf("config: gemini.model cannot be empty")
	}
	if c.TUI.Theme != "dark" && c.TUI.Theme != "light" {
		return fmt.Errorf("config: invalid theme %q, must be 'dark' or 'light'", c.TUI.Theme)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("config: invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	seen := map[string]bool{}
	for _, s := range c.Backends.Servers {
		if s.Name == "" || s.Command == "" {
			return fmt.Errorf("config: backend entries need both name and command")
		}
		if seen[s.Name] {
			return fmt.Errorf("config: duplicate backend name %q", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// mcpServersFile mirrors the conventional backend description file:
// {"mcpServers": {"<name>": {"command": ..., "args": [...], "env": {...}}}}
type mcpServersFile struct {
	MCPServers map[string]struct {
		Command string            `json:"command"`
		Args    []string          `json:"args"`
		Env     map[string]string `json:"env"`
	} `json:"mcpServers"`
}

// ResolveBackends merges inline backend entries with the backends
// file, inline entries winning on name collisions. A missing backends
// file is not an error; a malformed one is.
func (c *Config) ResolveBackends() ([]mcp.ServerConfig, error) {
	out := append([]mcp.ServerConfig(nil), c.Backends.Servers...)
	taken := map[string]bool{}
	for _, s := range out {
		taken[s.Name] = true
	}

	if c.Backends.File == "" {
		return out, nil
	}

	data, err := os.ReadFile(c.Backends.File)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read backends file: %w", err)
	}

	var doc mcpServersFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse backends file %s: %w", c.Backends.File, err)
	}

	names := make([]string, 0, len(doc.MCPServers))
	for name := range doc.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if taken[name] {
			continue
		}
		entry := doc.MCPServers[name]
		out = append(out, mcp.ServerConfig{
			Name:    name,
			Command: entry.Command,
			Args:    entry.Args,
			Env:     entry.Env,
		})
	}
	return out, nil
}

// SaveToPath writes the configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create config directory: %w", err)
	}
	return writeConfigFile(path, c)
}

// writeConfigFile writes a Config struct to a YAML file. Uses
// gopkg.in/yaml.v3 directly to ensure proper tag-based serialization.
func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write config file: %w", err)
	}
	return nil
}

// expandPath expands ~ to the user's home directory in a path string.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
