package dsl

import (
	"context"
	"fmt"

	"github.com/openfroyo/blueprint/pkg/engine"
)

// ProviderResolver looks up a key in a named external config provider.
// It fails with a not-found error if the provider is unknown; a missing key
// is reported as ok=false.
type ProviderResolver interface {
	Resolve(providerName, key string) (value string, ok bool, err error)
}

// External is a deferred lookup of key in an external config provider,
// written as external("provider", "key").
type External struct {
	Provider string
	Key      string

	// registry is bound at parse time and does not take part in equality.
	registry ProviderResolver
}

var _ engine.Deferred = (*External)(nil)

// NewExternal creates an external lookup bound to registry.
func NewExternal(registry ProviderResolver, provider, key string) *External {
	return &External{Provider: provider, Key: key, registry: registry}
}

// Immediately looks the key up in the bound registry. Registered providers
// answer from memory, so this never blocks. A missing key yields a present
// nil value.
func (e *External) Immediately() (engine.Maybe, error) {
	if e.registry == nil {
		return engine.Maybe{}, engine.NewIllegalStateError("no external config provider registry bound", nil).
			WithSubject(e.String()).
			WithOperation("resolve_external")
	}

	value, ok, err := e.registry.Resolve(e.Provider, e.Key)
	if err != nil {
		return engine.Maybe{}, err
	}
	if !ok {
		return engine.Present(nil), nil
	}
	return engine.Present(value), nil
}

// NewTask returns a transient task performing the lookup.
func (e *External) NewTask() *engine.Task {
	return engine.NewTask("Retrieving config for "+e.String(), func(ctx context.Context) (interface{}, error) {
		m, err := e.Immediately()
		if err != nil {
			return nil, err
		}
		return m.Get(), nil
	}, engine.TagTransient, engine.TagDeferred)
}

// String renders the lookup as it appears in a plan.
func (e *External) String() string {
	return fmt.Sprintf("external(%q, %q)", e.Provider, e.Key)
}

// Equal reports whether other is an external lookup of the same provider and key.
func (e *External) Equal(other interface{}) bool {
	return Equal(e, other)
}

// Hash returns a structural hash consistent with Equal.
func (e *External) Hash() uint64 {
	return Hash(e)
}
