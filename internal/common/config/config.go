// Package config provides configuration management for the durable-task
// engine. It supports loading configuration from environment variables,
// config files, and defaults, the way the teacher's common/config does.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the engine.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Store      StoreConfig      `mapstructure:"store"`
	Events     EventsConfig     `mapstructure:"events"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds the HTTP/WebSocket listener configuration for the
// client façade and worker execution-proxy endpoint.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // seconds
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// DispatcherConfig tunes the orchestration and activity dispatcher loops
// (spec.md §4.4, §4.5, §5).
type DispatcherConfig struct {
	// MaxConcurrentOrchestrationTurns bounds how many orchestration turns
	// may run in parallel. 0 means hardware parallelism (runtime.GOMAXPROCS(0)).
	MaxConcurrentOrchestrationTurns int `mapstructure:"maxConcurrentOrchestrationTurns"`
	// MaxConcurrentActivities bounds how many activity dispatcher loops run.
	MaxConcurrentActivities int `mapstructure:"maxConcurrentActivities"`
	// TurnDeadlineMinutes is the maximum permissible turn duration before
	// forced abandonment (spec.md §5, §9 open question #2). 0 disables the
	// deadline.
	TurnDeadlineMinutes int `mapstructure:"turnDeadlineMinutes"`
}

// TurnDeadline returns the configured turn deadline as a Duration, or 0 if
// unbounded.
func (d *DispatcherConfig) TurnDeadline() time.Duration {
	if d.TurnDeadlineMinutes <= 0 {
		return 0
	}
	return time.Duration(d.TurnDeadlineMinutes) * time.Minute
}

// StoreConfig tunes the in-memory instance store (spec.md §4.1, §9).
type StoreConfig struct {
	// ResetPolicy controls behavior when ExecutionStarted arrives for a
	// Running instance under a different execution id: "reject" (default,
	// spec.md §9 open question #3) or "reset".
	ResetPolicy    string `mapstructure:"resetPolicy"`
	ActivityQueueMaxSize int `mapstructure:"activityQueueMaxSize"`
	DefaultPageSize int    `mapstructure:"defaultPageSize"`
}

// EventsConfig holds the status-change notifier's event bus configuration.
type EventsConfig struct {
	// NATSURL, if non-empty, selects the NATS-backed EventBus; empty means
	// use the in-memory bus (suitable for single-process deployments/tests).
	NATSURL   string `mapstructure:"natsUrl"`
	Namespace string `mapstructure:"namespace"`
}

// LoggingConfig holds logging configuration; mirrors logger.LoggingConfig so
// viper can unmarshal directly into the section.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8070)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	v.SetDefault("dispatcher.maxConcurrentOrchestrationTurns", 0)
	v.SetDefault("dispatcher.maxConcurrentActivities", 0)
	v.SetDefault("dispatcher.turnDeadlineMinutes", 60)

	v.SetDefault("store.resetPolicy", "reject")
	v.SetDefault("store.activityQueueMaxSize", 0)
	v.SetDefault("store.defaultPageSize", 100)

	v.SetDefault("events.natsUrl", "")
	v.SetDefault("events.namespace", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables (prefix
// DURABLETASK_), an optional config.yaml in the current directory or
// /etc/durabletask/, and defaults.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the given directory in addition to
// the default search locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DURABLETASK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/durabletask/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text, console")
	}

	validResetPolicies := map[string]bool{"reject": true, "reset": true}
	if !validResetPolicies[strings.ToLower(cfg.Store.ResetPolicy)] {
		errs = append(errs, "store.resetPolicy must be one of: reject, reset")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
