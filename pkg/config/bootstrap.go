package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/openfroyo/blueprint/pkg/engine"
)

// EnvPrefix prefixes environment variables that override settings,
// e.g. BLUEPRINT_SCHEDULER_MAX_PARALLEL.
const EnvPrefix = "BLUEPRINT"

// Properties is the flat key/value view of the bootstrap configuration.
// Dotted YAML keys are kept as written and nested maps are flattened with
// dots, so both of these yield external.vault.path = /etc/secrets.yaml:
//
//	external.vault.path: /etc/secrets.yaml
//
//	external:
//	  vault:
//	    path: /etc/secrets.yaml
//
// Keys are case-insensitive and stored in lower case.
type Properties map[string]string

// Get returns the value for key.
func (p Properties) Get(key string) (string, bool) {
	v, ok := p[strings.ToLower(key)]
	return v, ok
}

// Keys returns the property keys in sorted order.
func (p Properties) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Bootstrap is the loaded bootstrap configuration.
type Bootstrap struct {
	Settings   Settings
	Properties Properties

	// File is the configuration file used, if any.
	File string
}

// Load reads the bootstrap configuration from path (YAML). An empty path
// yields the defaults plus environment overrides. Settings are validated
// before returning.
func Load(path string) (*Bootstrap, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, engine.NewConfigurationError(fmt.Sprintf("failed to read config file %s", path), err)
		}
	}

	return fromViper(v)
}

// FromMap builds a bootstrap configuration from an in-memory map, as used by
// tests and embedders. Dotted keys are flat; nested settings are written as
// nested maps or with "::" ("scheduler::max_parallel").
func FromMap(values map[string]interface{}) (*Bootstrap, error) {
	v := newViper()
	for key, value := range values {
		v.Set(key, value)
	}
	return fromViper(v)
}

// keyDelim separates nested viper keys. It is not "." so that provider
// properties such as external.vault.path can be written as flat YAML keys.
const keyDelim = "::"

func newViper() *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelim))
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelim, "_", ".", "_"))
	v.AutomaticEnv()

	d := DefaultSettings()
	defaults := map[string]interface{}{
		"home":                           d.Home,
		"catalog::source":                d.Catalog.Source,
		"catalog::manual_additions_wait": d.Catalog.ManualAdditionsWait,
		"catalog::validate_metadata":     d.Catalog.ValidateMetadata,
		"database::enabled":              d.Database.Enabled,
		"database::path":                 d.Database.Path,
		"database::wal_mode":             d.Database.WALMode,
		"database::busy_timeout":         d.Database.BusyTimeout,
		"scheduler::max_parallel":        d.Scheduler.MaxParallel,
		"policy::enabled":                d.Policy.Enabled,
		"policy::paths":                  d.Policy.Paths,
		"policy::builtin":                d.Policy.Builtin,
		"telemetry::log_level":           d.Telemetry.LogLevel,
		"telemetry::log_format":          d.Telemetry.LogFormat,
		"telemetry::metrics_enabled":     d.Telemetry.MetricsEnabled,
		"telemetry::tracing_enabled":     d.Telemetry.TracingEnabled,
		"telemetry::tracing_endpoint":    d.Telemetry.TracingEndpoint,
		"telemetry::service_name":        d.Telemetry.ServiceName,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

func fromViper(v *viper.Viper) (*Bootstrap, error) {
	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, engine.NewConfigurationError("failed to decode settings", err)
	}
	if settings.Home == "" {
		if wd, err := os.Getwd(); err == nil {
			settings.Home = wd
		}
	}
	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	props := make(Properties)
	for _, key := range v.AllKeys() {
		props[strings.ReplaceAll(key, keyDelim, ".")] = v.GetString(key)
	}
	props["home"] = settings.Home
	props["blueprint.home"] = settings.Home

	return &Bootstrap{
		Settings:   settings,
		Properties: props,
		File:       v.ConfigFileUsed(),
	}, nil
}

var validate = validator.New()

// ValidateSettings checks settings against their validation tags.
func ValidateSettings(s Settings) error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return engine.NewConfigurationError("invalid settings: "+strings.Join(fields, ", "), err).
				WithCode(engine.ErrCodeValidation)
		}
		return engine.NewConfigurationError("invalid settings", err)
	}
	return nil
}
