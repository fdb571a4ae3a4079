// Package config provides configuration management for tracehook.
//
// Configuration is resolved in three layers: compiled defaults, the
// settings file at ~/.tracehook/settings.json, and environment
// variables. The settings file is a flat JSON object whose keys are the
// environment variable names, so every setting can be pinned in the file
// or overridden per-process with the real variable. Environment always
// wins.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Defaults for the user-facing settings.
const (
	DefaultPort         = 8000
	DefaultHost         = "0.0.0.0"
	DefaultServerURL    = "http://localhost:8000"
	DefaultTokenSecret  = "change-me-in-production"
	DefaultLogLevel     = "info"
	DefaultFlushSeconds = 5
	DefaultLangfuseHost = "https://cloud.langfuse.com"
)

// Config holds all runtime settings for the server, the hooks, and the
// admin CLI.
type Config struct {
	Port                int    // TRACEHOOK_PORT
	Host                string // TRACEHOOK_HOST
	ServerURL           string // TRACEHOOK_SERVER_URL (hook -> server base URL)
	Token               string // TRACEHOOK_TOKEN (bearer token used by hooks)
	TokenSecret         string // TRACEHOOK_TOKEN_SECRET (HMAC secret for issuance)
	TokensFile          string // TRACEHOOK_TOKENS_FILE
	JournalDB           string // TRACEHOOK_JOURNAL_DB
	LogLevel            string // TRACEHOOK_LOG_LEVEL
	FlushTimeoutSeconds int    // TRACEHOOK_FLUSH_TIMEOUT_SECONDS
	LangfusePublicKey   string // LANGFUSE_PUBLIC_KEY
	LangfuseSecretKey   string // LANGFUSE_SECRET_KEY
	LangfuseHost        string // LANGFUSE_HOST
}

var (
	global *Config
	once   sync.Once
)

// Default returns a Config populated with compiled defaults.
func Default() *Config {
	return &Config{
		Port:                DefaultPort,
		Host:                DefaultHost,
		ServerURL:           DefaultServerURL,
		TokenSecret:         DefaultTokenSecret,
		TokensFile:          TokensPath(),
		JournalDB:           JournalPath(),
		LogLevel:            DefaultLogLevel,
		FlushTimeoutSeconds: DefaultFlushSeconds,
		LangfuseHost:        DefaultLangfuseHost,
	}
}

// Load reads the settings file (if present) over the defaults, then
// applies environment overrides. A missing or invalid settings file is
// never an error; it just yields defaults.
func Load() (*Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(SettingsPath()); err == nil {
		var settings map[string]any
		if err := json.Unmarshal(data, &settings); err != nil {
			log.Warn().Err(err).Str("path", SettingsPath()).Msg("Invalid settings file, using defaults")
		} else {
			cfg.apply(settings)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// Get returns the process-wide config, loading it on first use.
func Get() *Config {
	once.Do(func() {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
		}
		global = cfg
	})
	return global
}

// apply copies recognized keys from a settings map onto the config.
// Values may be JSON numbers or strings; both are accepted for numeric
// settings.
func (c *Config) apply(settings map[string]any) {
	for key, value := range settings {
		switch key {
		case "TRACEHOOK_PORT":
			if n, ok := asInt(value); ok && n > 0 {
				c.Port = n
			}
		case "TRACEHOOK_HOST":
			if s, ok := value.(string); ok && s != "" {
				c.Host = s
			}
		case "TRACEHOOK_SERVER_URL":
			if s, ok := value.(string); ok && s != "" {
				c.ServerURL = s
			}
		case "TRACEHOOK_TOKEN":
			if s, ok := value.(string); ok {
				c.Token = s
			}
		case "TRACEHOOK_TOKEN_SECRET":
			if s, ok := value.(string); ok && s != "" {
				c.TokenSecret = s
			}
		case "TRACEHOOK_TOKENS_FILE":
			if s, ok := value.(string); ok && s != "" {
				c.TokensFile = s
			}
		case "TRACEHOOK_JOURNAL_DB":
			if s, ok := value.(string); ok && s != "" {
				c.JournalDB = s
			}
		case "TRACEHOOK_LOG_LEVEL":
			if s, ok := value.(string); ok && s != "" {
				c.LogLevel = s
			}
		case "TRACEHOOK_FLUSH_TIMEOUT_SECONDS":
			if n, ok := asInt(value); ok && n > 0 {
				c.FlushTimeoutSeconds = n
			}
		case "LANGFUSE_PUBLIC_KEY":
			if s, ok := value.(string); ok {
				c.LangfusePublicKey = s
			}
		case "LANGFUSE_SECRET_KEY":
			if s, ok := value.(string); ok {
				c.LangfuseSecretKey = s
			}
		case "LANGFUSE_HOST":
			if s, ok := value.(string); ok && s != "" {
				c.LangfuseHost = s
			}
		}
	}
}

// applyEnv overrides settings from environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("TRACEHOOK_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Port = n
		}
	}
	if v := os.Getenv("TRACEHOOK_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("TRACEHOOK_SERVER_URL"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv("TRACEHOOK_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("TRACEHOOK_TOKEN_SECRET"); v != "" {
		c.TokenSecret = v
	}
	if v := os.Getenv("TRACEHOOK_TOKENS_FILE"); v != "" {
		c.TokensFile = v
	}
	if v := os.Getenv("TRACEHOOK_JOURNAL_DB"); v != "" {
		c.JournalDB = v
	}
	if v := os.Getenv("TRACEHOOK_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("TRACEHOOK_FLUSH_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.FlushTimeoutSeconds = n
		}
	}
	if v := os.Getenv("LANGFUSE_PUBLIC_KEY"); v != "" {
		c.LangfusePublicKey = v
	}
	if v := os.Getenv("LANGFUSE_SECRET_KEY"); v != "" {
		c.LangfuseSecretKey = v
	}
	if v := os.Getenv("LANGFUSE_HOST"); v != "" {
		c.LangfuseHost = v
	}
}

// Addr returns the host:port the server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// FlushTimeout returns the sink flush deadline as a duration.
func (c *Config) FlushTimeout() time.Duration {
	if c.FlushTimeoutSeconds <= 0 {
		return DefaultFlushSeconds * time.Second
	}
	return time.Duration(c.FlushTimeoutSeconds) * time.Second
}

// LangfuseConfigured reports whether both Langfuse keys are present.
func (c *Config) LangfuseConfigured() bool {
	return c.LangfusePublicKey != "" && c.LangfuseSecretKey != ""
}

// Validate returns human-readable warnings for risky settings. Warnings
// are logged at startup, they never block the process.
func (c *Config) Validate() []string {
	var warnings []string
	if c.TokenSecret == DefaultTokenSecret {
		warnings = append(warnings, "TRACEHOOK_TOKEN_SECRET is the default value, set a real secret before issuing tokens")
	}
	if !c.LangfuseConfigured() {
		warnings = append(warnings, "LANGFUSE_PUBLIC_KEY/LANGFUSE_SECRET_KEY not set, usage reports will not reach the trace backend")
	}
	return warnings
}

// DataDir returns the tracehook data directory under the user home.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".tracehook")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// TokensPath returns the default token registry path.
func TokensPath() string {
	return filepath.Join(DataDir(), "tokens.json")
}

// JournalPath returns the default report journal path.
func JournalPath() string {
	return filepath.Join(DataDir(), "journal.db")
}

// EnsureDataDir creates the data directory if missing.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0o750)
}

// EnsureSettings writes a starter settings file if none exists. The
// starter pins the discoverable keys so users can see the names without
// reading docs.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	starter := map[string]any{
		"TRACEHOOK_PORT":       DefaultPort,
		"TRACEHOOK_SERVER_URL": DefaultServerURL,
		"LANGFUSE_HOST":        DefaultLangfuseHost,
	}
	data, err := json.MarshalIndent(starter, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default settings: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

// EnsureAll creates the data directory and the settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := EnsureSettings(); err != nil {
		return fmt.Errorf("create settings: %w", err)
	}
	return nil
}

// asInt coerces a JSON value (number or numeric string) to int.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
