package external

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openfroyo/blueprint/pkg/engine"
)

// LookupObserver receives one notification per Resolve call.
type LookupObserver interface {
	ObserveLookup(provider string, outcome string)
}

// Lookup outcomes reported to a LookupObserver.
const (
	OutcomeHit        = "hit"
	OutcomeMiss       = "miss"
	OutcomeNoProvider = "no_provider"
	OutcomeError      = "error"
)

// Registry holds the external config providers of one management context.
//
// Registration is last-write-wins: registering a name again replaces the
// previous provider. Lookups never observe a partially registered provider,
// and a replaced provider is closed only after the lookups already running
// against it have returned.
type Registry struct {
	// mu protects providers.
	mu sync.RWMutex

	// providers maps provider name to its registration.
	providers map[string]*registration

	observer LookupObserver
	logger   zerolog.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		providers: make(map[string]*registration),
		logger:    logger.With().Str("component", "external-config").Logger(),
	}
}

// SetObserver installs an observer for lookups.
func (r *Registry) SetObserver(observer LookupObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = observer
}

// registration is a registered provider and the lookups in flight on it.
// inflight is only incremented under the registry read lock, so once the
// registration leaves the map its count can only fall.
type registration struct {
	provider Provider
	inflight sync.WaitGroup
}

// release waits for in-flight lookups, then closes the provider.
func (reg *registration) release(logger zerolog.Logger) {
	reg.inflight.Wait()
	closeProvider(logger, reg.provider)
}

// Register registers provider under name, replacing any existing provider.
// A replaced provider is closed once the lookups that already hold it
// return; Register blocks until then.
func (r *Registry) Register(name string, provider Provider) {
	r.mu.Lock()
	previous, exists := r.providers[name]
	r.providers[name] = &registration{provider: provider}
	r.mu.Unlock()

	if exists {
		r.logger.Warn().
			Str("provider", name).
			Str("previous", fmt.Sprintf("%T", previous.provider)).
			Str("replacement", fmt.Sprintf("%T", provider)).
			Msg("Replacing external config provider")
		previous.release(r.logger)
		return
	}
	r.logger.Debug().Str("provider", name).Msg("Registered external config provider")
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.providers[name]
	if !ok {
		return nil, false
	}
	return reg.provider, true
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve looks key up in the named provider. It fails with a not-found
// error if no such provider exists; otherwise it returns whatever the
// provider yields, including a missing key.
func (r *Registry) Resolve(providerName, key string) (string, bool, error) {
	r.mu.RLock()
	reg, exists := r.providers[providerName]
	if exists {
		reg.inflight.Add(1)
	}
	observer := r.observer
	r.mu.RUnlock()

	if !exists {
		notify(observer, providerName, OutcomeNoProvider)
		return "", false, engine.NewNotFoundError(
			fmt.Sprintf("No external config provider named %q", providerName), nil).
			WithSubject(providerName).
			WithOperation("resolve")
	}

	defer reg.inflight.Done()

	value, ok, err := reg.provider.Get(key)
	switch {
	case err != nil:
		notify(observer, providerName, OutcomeError)
		return "", false, fmt.Errorf("external config provider %q failed to look up %q: %w", providerName, key, err)
	case !ok:
		notify(observer, providerName, OutcomeMiss)
	default:
		notify(observer, providerName, OutcomeHit)
	}
	return value, ok, nil
}

// Close releases providers that hold resources such as file watchers.
func (r *Registry) Close() error {
	r.mu.Lock()
	providers := r.providers
	r.providers = make(map[string]*registration)
	r.mu.Unlock()

	for _, reg := range providers {
		reg.release(r.logger)
	}
	return nil
}

func notify(observer LookupObserver, provider, outcome string) {
	if observer != nil {
		observer.ObserveLookup(provider, outcome)
	}
}

func closeProvider(logger zerolog.Logger, p Provider) {
	if c, ok := p.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Warn().Err(err).Str("provider", p.Name()).Msg("Failed to close external config provider")
		}
	}
}
