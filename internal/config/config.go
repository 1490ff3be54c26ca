// Package config handles loading and validating taskpulse configuration.
// Supports YAML config files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/marcus/taskpulse/internal/scheduler"
)

const (
	DefaultDataDir       = "~/.local/share/taskpulse"
	DefaultDBPath        = "~/.local/share/taskpulse/taskpulse.db"
	DefaultExportDir     = "~/.local/share/taskpulse/exports"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
	DefaultLogRetention  = 7
	projectConfigName    = "taskpulse"
)

var (
	ErrInvalidLogLevel  = errors.New("logging.level must be one of: trace, debug, info, warn, error")
	ErrInvalidLogFormat = errors.New("logging.format must be json or console")
	ErrInvalidRetention = errors.New("logging.retention_days must be >= 0")
)

// Config holds all taskpulse configuration.
type Config struct {
	Data    DataConfig    `mapstructure:"data"`
	Export  ExportConfig  `mapstructure:"export"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// DataConfig locates the on-disk state.
type DataConfig struct {
	Dir    string `mapstructure:"dir"`
	DBPath string `mapstructure:"db_path"`
}

// ExportConfig controls metric export output and scheduling.
type ExportConfig struct {
	Dir string `mapstructure:"dir"`
	// Schedule is a standard five-field cron spec. Empty disables
	// the scheduled export.
	Schedule string `mapstructure:"schedule"`
}

// LoggingConfig controls taskpulse's own log output.
type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Format        string `mapstructure:"format"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// Load reads configuration from the global config file, an optional
// taskpulse.yaml in the working directory, and TASKPULSE_* environment
// variables, in increasing order of precedence.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return LoadFromPaths(cwd, GlobalConfigPath())
}

// LoadFromPaths is Load with explicit locations, for tests.
func LoadFromPaths(projectDir, globalPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("data.dir", DefaultDataDir)
	v.SetDefault("data.db_path", DefaultDBPath)
	v.SetDefault("export.dir", DefaultExportDir)
	v.SetDefault("export.schedule", "")
	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)
	v.SetDefault("logging.retention_days", DefaultLogRetention)

	v.SetEnvPrefix("TASKPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(globalPath); err == nil {
		v.SetConfigFile(globalPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read global config: %w", err)
		}
	}

	projectPath := filepath.Join(projectDir, projectConfigName+".yaml")
	if _, err := os.Stat(projectPath); err == nil {
		v.SetConfigFile(projectPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read project config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks config invariants beyond what parsing enforces.
func Validate(cfg *Config) error {
	switch cfg.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}

	switch cfg.Logging.Format {
	case "", "json", "console":
	default:
		return ErrInvalidLogFormat
	}

	if cfg.Logging.RetentionDays < 0 {
		return ErrInvalidRetention
	}

	if cfg.Export.Schedule != "" {
		if err := scheduler.ValidateSpec(cfg.Export.Schedule); err != nil {
			return fmt.Errorf("export.schedule %q: %w", cfg.Export.Schedule, err)
		}
	}

	return nil
}

// GlobalConfigPath returns the path of the user-level config file.
func GlobalConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "taskpulse", "config.yaml")
}

// ExpandedDataDir returns Data.Dir with ~ expanded.
func (c *Config) ExpandedDataDir() string {
	return expandPath(c.Data.Dir)
}

// ExpandedDBPath returns Data.DBPath with ~ expanded.
func (c *Config) ExpandedDBPath() string {
	return expandPath(c.Data.DBPath)
}

// ExpandedExportDir returns Export.Dir with ~ expanded.
func (c *Config) ExpandedExportDir() string {
	return expandPath(c.Export.Dir)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
