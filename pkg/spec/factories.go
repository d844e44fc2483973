package spec

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// FactorySignature documents the shape of a legacy spec factory.
const FactorySignature = "func(typeRef string) (spec.Spec, error)"

// Factory creates a spec directly from a legacy type reference, without a plan.
type Factory func(typeRef string) (Spec, error)

// Factories maps spec types to their legacy factories.
type Factories struct {
	mu        sync.RWMutex
	factories map[Type]Factory
}

// NewFactories creates an empty factory set.
func NewFactories() *Factories {
	return &Factories{factories: make(map[Type]Factory)}
}

// DefaultFactories returns factories for entity and policy specs. Templates
// and configurations only come from plans.
func DefaultFactories() *Factories {
	f := NewFactories()
	f.Register(TypeEntity, func(typeRef string) (Spec, error) {
		return NewEntitySpec(shortName(typeRef), typeRef, nil), nil
	})
	f.Register(TypePolicy, func(typeRef string) (Spec, error) {
		return NewPolicySpec(shortName(typeRef), typeRef, nil), nil
	})
	return f
}

// Register sets the factory for t.
func (f *Factories) Register(t Type, factory Factory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.factories[t] = factory
}

// Lookup returns the factory for t.
func (f *Factories) Lookup(t Type) (Factory, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	factory, ok := f.factories[t]
	return factory, ok
}

// Types returns the spec types with a registered factory.
func (f *Factories) Types() []Type {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]Type, 0, len(f.factories))
	for t := range f.factories {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Create invokes the factory for t with typeRef.
func (f *Factories) Create(t Type, typeRef string) (Spec, error) {
	factory, ok := f.Lookup(t)
	if !ok {
		return nil, fmt.Errorf("no factory for spec type %s", t)
	}
	return factory(typeRef)
}

// shortName turns "com.example.WebServer" into "WebServer".
func shortName(typeRef string) string {
	if i := strings.LastIndexAny(typeRef, "./"); i >= 0 && i < len(typeRef)-1 {
		return typeRef[i+1:]
	}
	return typeRef
}
