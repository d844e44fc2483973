package external

import (
	"os"
	"strings"
)

// Built-in provider type names.
const (
	TypeInPlace = "inplace"
	TypeEnv     = "env"
	TypeFile    = "file"
)

// InPlaceProvider serves the values written directly in its own
// configuration block. Useful for tests and development.
type InPlaceProvider struct {
	name   string
	values map[string]string
}

// NewInPlaceProvider creates a provider serving config as its values.
func NewInPlaceProvider(_ Context, name string, config map[string]string) (Provider, error) {
	values := make(map[string]string, len(config))
	for k, v := range config {
		if k == CacheTTLKey {
			continue
		}
		values[k] = v
	}
	return &InPlaceProvider{name: name, values: values}, nil
}

// Name returns the provider name.
func (p *InPlaceProvider) Name() string { return p.name }

// Get returns the configured value for key.
func (p *InPlaceProvider) Get(key string) (string, bool, error) {
	v, ok := p.values[key]
	return v, ok, nil
}

// EnvProvider reads environment variables, optionally under a prefix.
// The key is upper-cased and dots and dashes become underscores, so
// "db.password" with prefix "APP_" reads APP_DB_PASSWORD.
type EnvProvider struct {
	name   string
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvProvider creates an environment provider; the optional "prefix"
// subkey is prepended to every variable name.
func NewEnvProvider(_ Context, name string, config map[string]string) (Provider, error) {
	return &EnvProvider{name: name, prefix: config["prefix"], lookup: os.LookupEnv}, nil
}

// Name returns the provider name.
func (p *EnvProvider) Name() string { return p.name }

// Get returns the environment variable for key.
func (p *EnvProvider) Get(key string) (string, bool, error) {
	v, ok := p.lookup(p.prefix + envName(key))
	return v, ok, nil
}

var envReplacer = strings.NewReplacer(".", "_", "-", "_")

func envName(key string) string {
	return strings.ToUpper(envReplacer.Replace(key))
}
