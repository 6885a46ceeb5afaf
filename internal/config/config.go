package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Task     TaskConfig     `mapstructure:"task" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat       string        `mapstructure:"log_format" validate:"omitempty,oneof=json text"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// DatabaseConfig contains all database-related configuration settings.
// A URL is required when tasks are queued in Postgres.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// Task backends
const (
	BackendLocal = "local"
	BackendRiver = "river"
)

// TaskConfig controls how tasks are queued and executed.
type TaskConfig struct {
	// Backend selects the task queue: "local" (in process) or "river" (Postgres)
	Backend string `mapstructure:"backend" validate:"required,oneof=local river"`

	// Eager runs tasks synchronously in the submitter. Only the local backend supports it.
	Eager bool `mapstructure:"eager"`

	// MaxAttempts is the default transaction attempt count for registered tasks
	MaxAttempts int `mapstructure:"max_attempts" validate:"gte=1"`

	// WorkerCount is the number of concurrent workers
	WorkerCount int `mapstructure:"worker_count" validate:"gte=1"`

	// QueueSize is the buffer size of the local queue
	QueueSize int `mapstructure:"queue_size" validate:"gte=1"`

	// RetryBackoff is the initial delay between transaction attempts
	RetryBackoff time.Duration `mapstructure:"retry_backoff" validate:"gte=0"`

	// RetryBackoffMax caps the delay between transaction attempts
	RetryBackoffMax time.Duration `mapstructure:"retry_backoff_max" validate:"gte=0"`

	// RiverMaxAttempts is how many times River itself may run a job.
	// Conflicts are retried inside one run, so this defaults to 1.
	RiverMaxAttempts int `mapstructure:"river_max_attempts" validate:"gte=1"`

	// RecordRuns stores every finished run in the task_runs table
	RecordRuns bool `mapstructure:"record_runs"`
}
