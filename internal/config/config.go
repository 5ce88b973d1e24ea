// Package config provides configuration management for tabletalk.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Defaults.
const (
	DefaultWorkerPort = 37542
	DefaultProvider   = "gemini"
	DefaultModel      = "gemini-2.0-flash"

	DefaultTimeoutSeconds    = 30
	DefaultMaxRetries        = 3
	DefaultRetryDelaySeconds = 2

	DefaultConfirmationThreshold = 0.7
	DefaultMaxIterations         = 5
	DefaultHistoryWindow         = 10
	DefaultPendingActionTTLMin   = 10
	DefaultPromptTokenBudget     = 4096
)

// Config holds all recognized options. All configuration is passed
// explicitly; nothing reads ambient global state at call time.
type Config struct {
	// Provider options.
	Provider          string `json:"provider"`
	Model             string `json:"model"`
	Credentials       string `json:"credentials,omitempty"`
	TimeoutSeconds    int    `json:"timeout_seconds"`
	MaxRetries        int    `json:"max_retries"`
	RetryDelaySeconds int    `json:"retry_delay_seconds"`

	// Orchestration options.
	ConfirmationConfidenceThreshold float64 `json:"confirmation_confidence_threshold"`
	MaxOrchestrationIterations      int     `json:"max_orchestration_iterations"`
	RecentHistoryWindow             int     `json:"recent_history_window"`
	PendingActionTTLMinutes         int     `json:"pending_action_ttl_minutes"`
	PromptTokenBudget               int     `json:"prompt_token_budget"`

	// Storage / server options.
	DBPath     string `json:"db_path,omitempty"`
	MaxConns   int    `json:"max_conns"`
	WorkerPort int    `json:"worker_port"`
}

var (
	mu      sync.RWMutex
	current *Config
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Provider:                        DefaultProvider,
		Model:                           DefaultModel,
		TimeoutSeconds:                  DefaultTimeoutSeconds,
		MaxRetries:                      DefaultMaxRetries,
		RetryDelaySeconds:               DefaultRetryDelaySeconds,
		ConfirmationConfidenceThreshold: DefaultConfirmationThreshold,
		MaxOrchestrationIterations:      DefaultMaxIterations,
		RecentHistoryWindow:             DefaultHistoryWindow,
		PendingActionTTLMinutes:         DefaultPendingActionTTLMin,
		PromptTokenBudget:               DefaultPromptTokenBudget,
		MaxConns:                        4,
		WorkerPort:                      DefaultWorkerPort,
	}
}

// DataDir returns the tabletalk data directory (~/.tabletalk).
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".tabletalk")
}

// DBPath returns the default SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), "tabletalk.db")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// EnsureDataDir creates the data directory if missing.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0o755)
}

// Load reads settings.json (if present), applies env overrides, and
// installs the result as the current configuration.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	if err == nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, jerr
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnv(cfg)
	cfg.normalize()

	mu.Lock()
	current = cfg
	mu.Unlock()
	return cfg, nil
}

// Reload re-reads settings.json and swaps the current configuration.
// Used by the settings watcher for hot reload.
func Reload() {
	if _, err := Load(); err != nil {
		log.Warn().Err(err).Msg("Failed to reload settings, keeping previous config")
	}
}

// Get returns the current configuration, loading defaults if needed.
func Get() *Config {
	mu.RLock()
	c := current
	mu.RUnlock()
	if c != nil {
		return c
	}
	cfg, err := Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = Default()
		mu.Lock()
		current = cfg
		mu.Unlock()
	}
	return cfg
}

// applyEnv overlays TABLETALK_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("TABLETALK_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("TABLETALK_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("TABLETALK_API_KEY"); v != "" {
		cfg.Credentials = v
	}
	if v := os.Getenv("TABLETALK_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v, ok := envInt("TABLETALK_TIMEOUT_SECONDS"); ok {
		cfg.TimeoutSeconds = v
	}
	if v, ok := envInt("TABLETALK_MAX_RETRIES"); ok {
		cfg.MaxRetries = v
	}
	if v, ok := envInt("TABLETALK_WORKER_PORT"); ok {
		cfg.WorkerPort = v
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("var", name).Str("value", v).Msg("Ignoring non-numeric env override")
		return 0, false
	}
	return n, true
}

// normalize clamps out-of-range values back to defaults.
func (c *Config) normalize() {
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelaySeconds <= 0 {
		c.RetryDelaySeconds = DefaultRetryDelaySeconds
	}
	if c.ConfirmationConfidenceThreshold <= 0 || c.ConfirmationConfidenceThreshold > 1 {
		c.ConfirmationConfidenceThreshold = DefaultConfirmationThreshold
	}
	if c.MaxOrchestrationIterations <= 0 {
		c.MaxOrchestrationIterations = DefaultMaxIterations
	}
	if c.RecentHistoryWindow <= 0 {
		c.RecentHistoryWindow = DefaultHistoryWindow
	}
	if c.PendingActionTTLMinutes <= 0 {
		c.PendingActionTTLMinutes = DefaultPendingActionTTLMin
	}
	if c.PromptTokenBudget <= 0 {
		c.PromptTokenBudget = DefaultPromptTokenBudget
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 4
	}
	if c.WorkerPort <= 0 {
		c.WorkerPort = DefaultWorkerPort
	}
	if c.DBPath == "" {
		c.DBPath = DBPath()
	}
}
