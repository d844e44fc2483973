package external

import (
	"github.com/rs/zerolog"
)

// Provider is a named source of configuration values kept outside the
// blueprint documents, typically secrets.
type Provider interface {
	// Name returns the name the provider was registered under.
	Name() string

	// Get returns the value for key. A missing key is reported with ok=false
	// and a nil error.
	Get(key string) (value string, ok bool, err error)
}

// Context is what a provider sees of the management context that builds it.
type Context interface {
	// Logger returns the management context logger.
	Logger() zerolog.Logger

	// Property looks up a bootstrap property.
	Property(key string) (string, bool)
}

// ConstructorWithConfig builds a provider from its name and the
// external.<name>.<subkey> entries of the bootstrap properties.
type ConstructorWithConfig func(ctx Context, name string, config map[string]string) (Provider, error)

// Constructor builds a provider that needs no extra configuration.
type Constructor func(ctx Context, name string) (Provider, error)
