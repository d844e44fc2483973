package config

import (
	"time"
)

// Settings is the typed view of the bootstrap configuration.
type Settings struct {
	// Home is the base directory for relative paths.
	Home string `mapstructure:"home" json:"home,omitempty"`

	// Catalog configures the catalog store.
	Catalog CatalogSettings `mapstructure:"catalog" json:"catalog"`

	// Database configures persistence of catalog additions and task history.
	Database DatabaseSettings `mapstructure:"database" json:"database"`

	// Scheduler configures the task scheduler.
	Scheduler SchedulerSettings `mapstructure:"scheduler" json:"scheduler"`

	// Policy configures catalog admission policies.
	Policy PolicySettings `mapstructure:"policy" json:"policy"`

	// Telemetry configures logging, metrics and tracing.
	Telemetry TelemetrySettings `mapstructure:"telemetry" json:"telemetry"`
}

// CatalogSettings configures the catalog store.
type CatalogSettings struct {
	// Source is the path of the bootstrap catalog document. Empty means an
	// empty initial catalog.
	Source string `mapstructure:"source" json:"source,omitempty"`

	// ManualAdditionsWait bounds how long the first manual addition waits
	// for the initial load to finish.
	ManualAdditionsWait time.Duration `mapstructure:"manual_additions_wait" json:"manual_additions_wait" validate:"gte=0"`

	// ValidateMetadata enables CUE validation of catalog metadata blocks.
	ValidateMetadata bool `mapstructure:"validate_metadata" json:"validate_metadata"`
}

// DatabaseSettings configures the SQLite store.
type DatabaseSettings struct {
	// Enabled turns persistence on.
	Enabled bool `mapstructure:"enabled" json:"enabled"`

	// Path is the database file path, or ":memory:".
	Path string `mapstructure:"path" json:"path,omitempty" validate:"required_if=Enabled true"`

	// WALMode enables write-ahead logging.
	WALMode bool `mapstructure:"wal_mode" json:"wal_mode"`

	// BusyTimeout is the SQLite busy timeout in milliseconds.
	BusyTimeout int `mapstructure:"busy_timeout" json:"busy_timeout" validate:"gte=0"`
}

// SchedulerSettings configures the task scheduler.
type SchedulerSettings struct {
	// MaxParallel is the number of concurrent workers.
	MaxParallel int `mapstructure:"max_parallel" json:"max_parallel" validate:"gte=1,lte=1024"`
}

// PolicySettings configures catalog admission policies.
type PolicySettings struct {
	// Enabled turns admission checks on.
	Enabled bool `mapstructure:"enabled" json:"enabled"`

	// Paths lists directories or files with additional rego policies.
	Paths []string `mapstructure:"paths" json:"paths,omitempty"`

	// Builtin loads the built-in catalog policies.
	Builtin bool `mapstructure:"builtin" json:"builtin"`
}

// TelemetrySettings configures logging, metrics and tracing.
type TelemetrySettings struct {
	// LogLevel is the minimum log level.
	LogLevel string `mapstructure:"log_level" json:"log_level" validate:"oneof=trace debug info warn error"`

	// LogFormat is the log output format.
	LogFormat string `mapstructure:"log_format" json:"log_format" validate:"oneof=json console"`

	// MetricsEnabled turns on the prometheus collectors.
	MetricsEnabled bool `mapstructure:"metrics_enabled" json:"metrics_enabled"`

	// TracingEnabled turns on tracing.
	TracingEnabled bool `mapstructure:"tracing_enabled" json:"tracing_enabled"`

	// TracingEndpoint is the OTLP endpoint; empty exports to stdout.
	TracingEndpoint string `mapstructure:"tracing_endpoint" json:"tracing_endpoint,omitempty"`

	// ServiceName is the name reported in traces.
	ServiceName string `mapstructure:"service_name" json:"service_name" validate:"required"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Catalog: CatalogSettings{
			ManualAdditionsWait: 10 * time.Second,
			ValidateMetadata:    true,
		},
		Database: DatabaseSettings{
			Path:        "blueprint.db",
			WALMode:     true,
			BusyTimeout: 5000,
		},
		Scheduler: SchedulerSettings{
			MaxParallel: 10,
		},
		Policy: PolicySettings{
			Builtin: true,
		},
		Telemetry: TelemetrySettings{
			LogLevel:    "info",
			LogFormat:   "console",
			ServiceName: "blueprint",
		},
	}
}
