package plan

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfroyo/blueprint/pkg/engine"
	"github.com/openfroyo/blueprint/pkg/spec"
)

// InstantiatorAttribute is the plan attribute naming the instantiator to use.
const InstantiatorAttribute = "instantiator"

// DefaultInstantiator is the name of the instantiator used when a plan does
// not choose one.
const DefaultInstantiator = "basic"

// Instantiator turns an assembly template into something runnable.
type Instantiator interface {
	// Name identifies the instantiator.
	Name() string
}

// SpecInstantiator is an Instantiator that can create specs.
type SpecInstantiator interface {
	Instantiator

	// Supports reports whether specs of type t can be created.
	Supports(t spec.Type) bool

	// CreateSpec creates a spec of type t from the template.
	CreateSpec(ctx context.Context, template *AssemblyTemplate, t spec.Type) (spec.Spec, error)
}

// AssemblyTemplate is a plan registered with a Platform.
type AssemblyTemplate struct {
	ID           string
	Name         string
	Plan         *Plan
	CreatedAt    time.Time
	instantiator Instantiator
}

// Instantiator returns the instantiator chosen at registration.
func (t *AssemblyTemplate) Instantiator() Instantiator {
	return t.instantiator
}

// Platform holds registered deployment plans and the instantiators that
// can act on them.
type Platform struct {
	mu            sync.RWMutex
	instantiators map[string]Instantiator
	templates     map[string]*AssemblyTemplate
	bySource      map[string]string
	logger        zerolog.Logger
}

// NewPlatform creates a platform with the basic instantiator registered.
func NewPlatform(logger zerolog.Logger) *Platform {
	p := &Platform{
		instantiators: make(map[string]Instantiator),
		templates:     make(map[string]*AssemblyTemplate),
		bySource:      make(map[string]string),
		logger:        logger.With().Str("component", "platform").Logger(),
	}
	p.RegisterInstantiator(NewBasicSpecInstantiator())
	return p
}

// RegisterInstantiator adds or replaces an instantiator.
func (p *Platform) RegisterInstantiator(inst Instantiator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.instantiators[inst.Name()] = inst
}

// Instantiators returns the registered instantiator names.
func (p *Platform) Instantiators() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.instantiators))
	for name := range p.instantiators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterDeploymentPlan registers plan and returns its assembly template.
// Registering the same source twice returns the existing template.
func (p *Platform) RegisterDeploymentPlan(plan *Plan) (*AssemblyTemplate, error) {
	if plan == nil {
		return nil, engine.NewInvalidArgumentError("plan is nil", nil)
	}

	name := DefaultInstantiator
	if v, ok := plan.CustomAttribute(InstantiatorAttribute); ok {
		s, ok := v.(string)
		if !ok || s == "" {
			return nil, engine.NewInvalidArgumentError(
				fmt.Sprintf("plan attribute %s must be a non-empty string", InstantiatorAttribute), nil)
		}
		name = s
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.bySource[plan.Source()]; ok && plan.Source() != "" {
		existing := p.templates[id]
		if existing.instantiator.Name() == name {
			return existing, nil
		}
	}

	inst, ok := p.instantiators[name]
	if !ok {
		return nil, engine.NewNotFoundError(fmt.Sprintf("no instantiator named %q", name), nil)
	}

	at := &AssemblyTemplate{
		ID:           uuid.New().String(),
		Name:         plan.Name(),
		Plan:         plan,
		CreatedAt:    time.Now(),
		instantiator: inst,
	}
	p.templates[at.ID] = at
	if plan.Source() != "" {
		p.bySource[plan.Source()] = at.ID
	}

	p.logger.Debug().
		Str("template_id", at.ID).
		Str("plan", at.Name).
		Str("instantiator", name).
		Msg("Registered deployment plan")

	return at, nil
}

// Template returns a registered template by id.
func (p *Platform) Template(id string) (*AssemblyTemplate, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	at, ok := p.templates[id]
	return at, ok
}

// TemplateCount returns the number of registered templates.
func (p *Platform) TemplateCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.templates)
}
