// Package config provides configuration management for tabletalk.
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ConfigSuite is a test suite for config operations.
type ConfigSuite struct {
	suite.Suite
	tempDir     string
	origHomeDir string
}

func (s *ConfigSuite) SetupTest() {
	var err error
	s.tempDir, err = os.MkdirTemp("", "config-test-*")
	s.Require().NoError(err)

	// Save and override HOME
	s.origHomeDir = os.Getenv("HOME")
	os.Setenv("HOME", s.tempDir)

	mu.Lock()
	current = nil
	mu.Unlock()
}

func (s *ConfigSuite) TearDownTest() {
	os.Setenv("HOME", s.origHomeDir)
	os.RemoveAll(s.tempDir)
	os.Unsetenv("TABLETALK_PROVIDER")
	os.Unsetenv("TABLETALK_TIMEOUT_SECONDS")
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

// TestDefault tests default configuration values.
func (s *ConfigSuite) TestDefault() {
	cfg := Default()

	s.Equal(DefaultProvider, cfg.Provider)
	s.Equal(DefaultModel, cfg.Model)
	s.Equal(DefaultTimeoutSeconds, cfg.TimeoutSeconds)
	s.Equal(DefaultMaxRetries, cfg.MaxRetries)
	s.Equal(DefaultRetryDelaySeconds, cfg.RetryDelaySeconds)
	s.Equal(DefaultConfirmationThreshold, cfg.ConfirmationConfidenceThreshold)
	s.Equal(DefaultMaxIterations, cfg.MaxOrchestrationIterations)
	s.Equal(DefaultHistoryWindow, cfg.RecentHistoryWindow)
	s.Equal(DefaultPendingActionTTLMin, cfg.PendingActionTTLMinutes)
	s.Equal(4, cfg.MaxConns)
}

// TestDataDir tests data directory path.
func (s *ConfigSuite) TestDataDir() {
	dir := DataDir()
	s.Contains(dir, ".tabletalk")
}

// TestDBPath tests database path.
func (s *ConfigSuite) TestDBPath() {
	path := DBPath()
	s.Contains(path, "tabletalk.db")
}

// TestEnsureDataDir tests data directory creation.
func (s *ConfigSuite) TestEnsureDataDir() {
	err := EnsureDataDir()
	s.NoError(err)

	info, err := os.Stat(DataDir())
	s.NoError(err)
	s.True(info.IsDir())
}

// TestLoadSettingsFile tests loading overrides from settings.json.
func (s *ConfigSuite) TestLoadSettingsFile() {
	s.Require().NoError(EnsureDataDir())
	settings := `{"provider":"anthropic","model":"claude-3-5-sonnet","confirmation_confidence_threshold":0.8,"max_orchestration_iterations":3}`
	s.Require().NoError(os.WriteFile(SettingsPath(), []byte(settings), 0o644))

	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal("anthropic", cfg.Provider)
	s.Equal("claude-3-5-sonnet", cfg.Model)
	s.Equal(0.8, cfg.ConfirmationConfidenceThreshold)
	s.Equal(3, cfg.MaxOrchestrationIterations)
	// Untouched keys keep defaults.
	s.Equal(DefaultHistoryWindow, cfg.RecentHistoryWindow)
}

// TestEnvOverrides tests that env vars override settings.json.
func (s *ConfigSuite) TestEnvOverrides() {
	os.Setenv("TABLETALK_PROVIDER", "anthropic")
	os.Setenv("TABLETALK_TIMEOUT_SECONDS", "7")

	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal("anthropic", cfg.Provider)
	s.Equal(7, cfg.TimeoutSeconds)
}

// TestNormalizeClampsBadValues tests that invalid values fall back to defaults.
func (s *ConfigSuite) TestNormalizeClampsBadValues() {
	s.Require().NoError(EnsureDataDir())
	settings := `{"confirmation_confidence_threshold":4.2,"max_orchestration_iterations":-1,"timeout_seconds":0}`
	s.Require().NoError(os.WriteFile(SettingsPath(), []byte(settings), 0o644))

	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal(DefaultConfirmationThreshold, cfg.ConfirmationConfidenceThreshold)
	s.Equal(DefaultMaxIterations, cfg.MaxOrchestrationIterations)
	s.Equal(DefaultTimeoutSeconds, cfg.TimeoutSeconds)
}

// TestGetLoadsOnce tests that Get returns a usable config without prior Load.
func (s *ConfigSuite) TestGetLoadsOnce() {
	cfg := Get()
	s.NotNil(cfg)
	s.Equal(filepath.Join(DataDir(), "tabletalk.db"), cfg.DBPath)
}
