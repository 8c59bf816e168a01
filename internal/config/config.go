// Package config loads the runtime settings of the connector from a config
// file, SFTPCONN_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable override.
const EnvPrefix = "SFTPCONN"

// Keys of the settings understood by the connector.
const (
	KeyListen          = "listen"
	KeyLogLevel        = "log.level"
	KeyLogFile         = "log.file"
	KeyLogMaxSizeMB    = "log.max_size_mb"
	KeyLogMaxBackups   = "log.max_backups"
	KeyLogMaxAgeDays   = "log.max_age_days"
	KeyExecTimeout     = "exec_timeout"
	KeyMaxConcurrent   = "max_concurrent"
	KeyDefinitionsFile = "definitions_file"
	KeyTempDir         = "temp_dir"
)

// Config holds the connector settings.
type Config struct {
	Listen          string        `mapstructure:"listen"`
	Log             Log           `mapstructure:"log"`
	ExecTimeout     time.Duration `mapstructure:"exec_timeout"`
	MaxConcurrent   int64         `mapstructure:"max_concurrent"`
	DefinitionsFile string        `mapstructure:"definitions_file"`
	TempDir         string        `mapstructure:"temp_dir"`
}

// Log configures the process logger.
type Log struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyListen, "127.0.0.1:17020")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyLogMaxSizeMB, 10)
	v.SetDefault(KeyLogMaxBackups, 3)
	v.SetDefault(KeyLogMaxAgeDays, 28)
	v.SetDefault(KeyExecTimeout, time.Duration(0))
	v.SetDefault(KeyMaxConcurrent, 16)
	v.SetDefault(KeyDefinitionsFile, "")
	v.SetDefault(KeyTempDir, "")
}

// NewViper returns a viper instance with defaults and environment overrides
// set up. When configFile is not empty it is read as well.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	return v, nil
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings for values the connector cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyListen, err))
	}
	if c.ExecTimeout < 0 {
		errs = append(errs, fmt.Errorf("%s: must not be negative", KeyExecTimeout))
	}
	if c.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("%s: must be at least 1", KeyMaxConcurrent))
	}
	if c.Log.File != "" && c.Log.MaxSizeMB < 1 {
		errs = append(errs, fmt.Errorf("%s: must be at least 1", KeyLogMaxSizeMB))
	}

	return errors.Join(errs...)
}
