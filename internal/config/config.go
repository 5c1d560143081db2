// Package config loads the scheduler configuration from file, environment,
// and flags bound through viper.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// appName keys the default directory layout.
const appName = "fbpscheduler"

// Config is the scheduler's runtime configuration.
type Config struct {
	// ReadDir is the directory polled for process definition documents.
	ReadDir string `mapstructure:"readDir"`
	// StateDir receives scheduler snapshots; empty disables snapshots.
	StateDir string `mapstructure:"stateDir"`
	// LogDir receives the log file when set.
	LogDir string `mapstructure:"logDir"`
	// LogFormat is "text" or "json".
	LogFormat string `mapstructure:"logFormat"`
	// Debug enables debug-level logging.
	Debug bool `mapstructure:"debug"`
	// PollInterval is the scheduler loop tick.
	PollInterval time.Duration `mapstructure:"pollInterval"`
	// RetryInterval is the wait before re-dispatching an unsuccessful
	// process.
	RetryInterval time.Duration `mapstructure:"retryInterval"`
}

func defaultConfig() Config {
	return Config{
		ReadDir:       filepath.Join(xdg.DataHome, appName, "processes"),
		StateDir:      filepath.Join(xdg.DataHome, appName, "state"),
		LogFormat:     "text",
		PollInterval:  3 * time.Second,
		RetryInterval: 60 * time.Second,
	}
}

// Load reads the configuration file (if any), layers environment
// variables with the FBPSCHEDULER prefix, and fills remaining zero
// fields from the defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(xdg.ConfigHome, appName))
	v.SetEnvPrefix("FBPSCHEDULER")
	v.AutomaticEnv()
	for _, key := range []string{"readDir", "stateDir", "logDir", "logFormat", "debug", "pollInterval", "retryInterval"} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errorsAs(err, &notFound) {
			return nil, fmt.Errorf("could not read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}
	defaults := defaultConfig()
	if err := mergo.Merge(&cfg, defaults); err != nil {
		return nil, fmt.Errorf("could not apply config defaults: %w", err)
	}
	return &cfg, nil
}

// errorsAs wraps errors.As for the narrow viper case.
func errorsAs(err error, target *viper.ConfigFileNotFoundError) bool {
	if e, ok := err.(viper.ConfigFileNotFoundError); ok {
		*target = e
		return true
	}
	return false
}
