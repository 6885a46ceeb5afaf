package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "TXTASK"

// Load configuration from environment variables and optionally a config.yaml
// file in the working directory or ./config.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is like Load but reads the config file at path. An empty path
// searches the default locations and tolerates a missing file.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can find it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.url", "")

	v.SetDefault("task.backend", BackendLocal)
	v.SetDefault("task.eager", false)
	v.SetDefault("task.max_attempts", 3)
	v.SetDefault("task.worker_count", 2)
	v.SetDefault("task.queue_size", 100)
	v.SetDefault("task.retry_backoff", 50*time.Millisecond)
	v.SetDefault("task.retry_backoff_max", 2*time.Second)
	v.SetDefault("task.river_max_attempts", 1)
	v.SetDefault("task.record_runs", false)
}

// Validate checks cfg field rules and the rules that span sections.
func Validate(cfg *Config) error {
	validate := validator.New()
	validate.RegisterStructValidation(crossSectionRules, Config{})

	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

func crossSectionRules(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Config)

	needsDatabase := cfg.Task.Backend == BackendRiver || cfg.Task.RecordRuns
	if needsDatabase && cfg.Database.URL == "" {
		sl.ReportError(cfg.Database.URL, "Database.URL", "URL", "required_for_backend", cfg.Task.Backend)
	}
	if cfg.Task.Eager && cfg.Task.Backend != BackendLocal {
		sl.ReportError(cfg.Task.Eager, "Task.Eager", "Eager", "local_backend_only", cfg.Task.Backend)
	}
	if cfg.Task.RetryBackoffMax > 0 && cfg.Task.RetryBackoffMax < cfg.Task.RetryBackoff {
		sl.ReportError(cfg.Task.RetryBackoffMax, "Task.RetryBackoffMax", "RetryBackoffMax", "gtefield", "RetryBackoff")
	}
}
