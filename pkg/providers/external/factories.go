package external

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/openfroyo/blueprint/pkg/engine"
)

// PropertyPrefix starts every provider key in the bootstrap properties.
const PropertyPrefix = "external."

// CacheTTLKey is the provider subkey that enables a lookup cache.
const CacheTTLKey = "cache.ttl"

const expectedShapes = "func(external.Context, string, map[string]string) (external.Provider, error) " +
	"or func(external.Context, string) (external.Provider, error)"

// Factories maps provider type names to constructors.
//
// Constructors are stored as given and their shape is checked when a
// provider is built, so a bad registration fails bootstrap rather than the
// first lookup.
type Factories struct {
	mu    sync.RWMutex
	ctors map[string]interface{}
}

// NewFactories creates an empty factory set.
func NewFactories() *Factories {
	return &Factories{ctors: make(map[string]interface{})}
}

// DefaultFactories returns a factory set with the built-in provider types
// registered: inplace, env and file.
func DefaultFactories() *Factories {
	f := NewFactories()
	f.Register(TypeInPlace, ConstructorWithConfig(NewInPlaceProvider))
	f.Register(TypeEnv, ConstructorWithConfig(NewEnvProvider))
	f.Register(TypeFile, ConstructorWithConfig(NewFileProvider))
	return f
}

// Register associates typeName with ctor.
func (f *Factories) Register(typeName string, ctor interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctors[typeName] = ctor
}

// Types returns the registered type names in sorted order.
func (f *Factories) Types() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.ctors))
	for t := range f.ctors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Build constructs a provider of typeName, choosing the constructor shape
// that the registered constructor has.
func (f *Factories) Build(ctx Context, typeName, name string, config map[string]string) (Provider, error) {
	f.mu.RLock()
	ctor, exists := f.ctors[typeName]
	f.mu.RUnlock()

	if !exists {
		return nil, engine.NewConfigurationError(
			fmt.Sprintf("unknown external config provider type %q for provider %q", typeName, name), nil).
			WithSubject(name).
			WithDetail("known_types", f.Types())
	}

	var (
		provider Provider
		err      error
	)
	switch c := ctor.(type) {
	case ConstructorWithConfig:
		provider, err = c(ctx, name, config)
	case func(Context, string, map[string]string) (Provider, error):
		provider, err = c(ctx, name, config)
	case Constructor:
		provider, err = c(ctx, name)
	case func(Context, string) (Provider, error):
		provider, err = c(ctx, name)
	default:
		return nil, engine.NewConfigurationError(
			fmt.Sprintf("external config provider type %q has no matching constructor (got %T); expected %s",
				typeName, ctor, expectedShapes), nil).
			WithSubject(name)
	}

	if err != nil {
		return nil, engine.NewConfigurationError(
			fmt.Sprintf("failed to construct external config provider %q of type %q", name, typeName), err).
			WithSubject(name)
	}
	if provider == nil {
		return nil, engine.NewConfigurationError(
			fmt.Sprintf("constructor for type %q returned no provider", typeName), nil).
			WithSubject(name)
	}
	return provider, nil
}

// ProviderDefinition is one provider declared in the bootstrap properties.
type ProviderDefinition struct {
	Name   string
	Type   string
	Config map[string]string
}

// ParseDefinitions extracts provider definitions from properties of the form
// external.<name> = <type> and external.<name>.<subkey> = <value>. When the
// bare key is absent, external.<name>.type names the type.
// Definitions are returned sorted by name.
func ParseDefinitions(props map[string]string) ([]ProviderDefinition, error) {
	defs := make(map[string]*ProviderDefinition)
	get := func(name string) *ProviderDefinition {
		d, ok := defs[name]
		if !ok {
			d = &ProviderDefinition{Name: name, Config: make(map[string]string)}
			defs[name] = d
		}
		return d
	}

	for key, value := range props {
		if !strings.HasPrefix(key, PropertyPrefix) {
			continue
		}
		rest := strings.TrimPrefix(key, PropertyPrefix)
		name, subkey, hasSub := strings.Cut(rest, ".")
		if name == "" {
			return nil, engine.NewConfigurationError(fmt.Sprintf("invalid provider property %q", key), nil)
		}
		if hasSub {
			get(name).Config[subkey] = value
		} else {
			get(name).Type = strings.TrimSpace(value)
		}
	}

	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ProviderDefinition, 0, len(names))
	for _, name := range names {
		d := defs[name]
		if d.Type == "" {
			// Nested YAML cannot hold both a scalar and a map under one key.
			d.Type = strings.TrimSpace(d.Config["type"])
			delete(d.Config, "type")
		}
		if d.Type == "" {
			return nil, engine.NewConfigurationError(
				fmt.Sprintf("provider %q has configuration but no type; set %s%s", name, PropertyPrefix, name), nil).
				WithSubject(name)
		}
		out = append(out, *d)
	}
	return out, nil
}

// BuildFromProperties constructs every provider declared in props and
// registers it in registry. Construction is eager: the first failure aborts
// bootstrap with a configuration error.
func (f *Factories) BuildFromProperties(ctx Context, props map[string]string, registry *Registry) error {
	defs, err := ParseDefinitions(props)
	if err != nil {
		return err
	}

	logger := ctx.Logger()
	for _, def := range defs {
		provider, err := f.Build(ctx, def.Type, def.Name, def.Config)
		if err != nil {
			return err
		}

		if raw, ok := def.Config[CacheTTLKey]; ok {
			ttl, err := time.ParseDuration(raw)
			if err != nil || ttl <= 0 {
				return engine.NewConfigurationError(
					fmt.Sprintf("invalid %s %q for provider %q", CacheTTLKey, raw, def.Name), err).
					WithSubject(def.Name)
			}
			provider = NewCachedProvider(provider, ttl)
		}

		registry.Register(def.Name, provider)
		logger.Info().
			Str("provider", def.Name).
			Str("type", def.Type).
			Msg("Configured external config provider")
	}
	return nil
}
