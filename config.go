package aish

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/renameio"

	defaults "github.com/saisasanky/aish/default"
)

// Supported backends.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

// Config represents the user's aish configuration.
type Config struct {
	Version    int               `toml:"version" json:"version"`
	Generation GenerationConfig  `toml:"generation" json:"generation"`
	Aliases    map[string]string `toml:"aliases" json:"aliases,omitempty"`
	Execution  ExecutionConfig   `toml:"execution" json:"execution"`
	Catalog    CatalogConfig     `toml:"catalog" json:"catalog"`
	Logging    LoggingConfig     `toml:"logging" json:"logging"`
}

// GenerationConfig holds settings for the inference backend.
type GenerationConfig struct {
	Backend        string  `toml:"backend" json:"backend"`
	Host           string  `toml:"host" json:"host"`
	Model          string  `toml:"model" json:"model"`
	Temperature    float64 `toml:"temperature" json:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds" json:"timeout_seconds"`
}

// ExecutionConfig controls what happens after a command is generated.
type ExecutionConfig struct {
	AutoExecute bool   `toml:"auto_execute" json:"auto_execute"`
	Shell       string `toml:"shell" json:"shell,omitempty"`
}

// CatalogConfig controls the installed-model cache.
type CatalogConfig struct {
	TTLMinutes int `toml:"ttl_minutes" json:"ttl_minutes"`
}

// LoggingConfig controls the log file.
type LoggingConfig struct {
	Level string `toml:"level" json:"level"`
	Dir   string `toml:"dir" json:"dir,omitempty"`
}

// ConfigDir returns the config directory path.
// Resolution order: $AISH_CONFIG_DIR > $XDG_CONFIG_HOME/aish > ~/.config/aish
func ConfigDir() string {
	if dir := os.Getenv("AISH_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "aish")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "aish-config")
	}
	return filepath.Join(home, ".config", "aish")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// LogDir returns the directory the log file is written to.
func LogDir(cfg *Config) string {
	if cfg != nil && cfg.Logging.Dir != "" {
		return cfg.Logging.Dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "aish-logs")
	}
	return filepath.Join(home, ".aish", "logs")
}

// DefaultConfig returns the configuration from the embedded default_config.toml.
func DefaultConfig() *Config {
	var cfg Config
	if _, err := toml.Decode(defaults.DefaultConfigTOML, &cfg); err != nil {
		panic("aish: invalid embedded default_config.toml: " + err.Error())
	}
	if cfg.Aliases == nil {
		cfg.Aliases = map[string]string{}
	}
	return &cfg
}

// LoadConfig loads config from disk or returns defaults if not found.
func LoadConfig() (*Config, error) {
	return LoadConfigFile(ConfigPath())
}

// LoadConfigFile loads the config at path. Keys missing from the file keep
// their default values.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	// Decoding over the defaults leaves absent keys untouched, so an explicit
	// zero (temperature = 0.0) is kept while a missing key is defaulted.
	cfg := DefaultConfig()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		slog.Warn("unknown config keys ignored", "path", path, "keys", strings.Join(keys, ", "))
	}
	return cfg, nil
}

// ValidateConfig checks configuration for potential issues and returns warnings.
func ValidateConfig(cfg *Config) []string {
	var warnings []string
	if cfg == nil {
		return warnings
	}
	switch ResolveBackend(cfg) {
	case BackendOllama, BackendOpenAI:
	default:
		warnings = append(warnings, fmt.Sprintf("unknown backend %q; expected %q or %q", cfg.Generation.Backend, BackendOllama, BackendOpenAI))
	}
	if err := ValidateTemperature(cfg.Generation.Temperature); err != nil {
		warnings = append(warnings, "generation.temperature: "+err.Error())
	}
	if strings.TrimSpace(ResolveModel(cfg)) == "" {
		warnings = append(warnings, "generation.model is empty")
	}
	if cfg.Generation.TimeoutSeconds < 0 {
		warnings = append(warnings, "generation.timeout_seconds is negative; no timeout will be applied")
	}
	for alias, id := range cfg.Aliases {
		if strings.TrimSpace(id) == "" {
			warnings = append(warnings, fmt.Sprintf("alias %q maps to an empty identifier", alias))
		}
	}
	return warnings
}

// WriteDefaultConfig writes the embedded default config to path. An existing
// file is only replaced when force is set.
func WriteDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s: %w", path, os.ErrExist)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return renameio.WriteFile(path, []byte(defaults.DefaultConfigTOML), 0o644)
}

// ResolveBackend returns the backend kind.
// Priority: $AISH_BACKEND env > config value.
func ResolveBackend(cfg *Config) string {
	if b := os.Getenv("AISH_BACKEND"); b != "" {
		return b
	}
	if cfg != nil {
		return cfg.Generation.Backend
	}
	return BackendOllama
}

// ResolveHost returns the backend base URL.
// Priority: $AISH_HOST env > $OLLAMA_HOST env > config value. A host without
// a scheme gets "http://".
func ResolveHost(cfg *Config) string {
	host := os.Getenv("AISH_HOST")
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" && cfg != nil {
		host = cfg.Generation.Host
	}
	host = strings.TrimSpace(host)
	if host != "" && !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return strings.TrimRight(host, "/")
}

// ResolveModel returns the default model selector.
// Priority: $AISH_MODEL env > config value.
func ResolveModel(cfg *Config) string {
	if model := os.Getenv("AISH_MODEL"); model != "" {
		return model
	}
	if cfg != nil {
		return cfg.Generation.Model
	}
	return ""
}

// ResolveAPIKey returns the bearer token for OpenAI-compatible servers.
// Local servers usually need none.
func ResolveAPIKey() string {
	return os.Getenv("AISH_API_KEY")
}
