package spec

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/openfroyo/blueprint/pkg/engine"
)

// Type identifies the kind of spec a catalog item produces.
type Type string

const (
	// TypeEntity produces an EntitySpec.
	TypeEntity Type = "entity"

	// TypeTemplate produces a TemplateSpec wrapping the plan's services.
	TypeTemplate Type = "template"

	// TypePolicy produces a PolicySpec.
	TypePolicy Type = "policy"

	// TypeConfiguration produces a ConfigurationSpec.
	TypeConfiguration Type = "configuration"
)

// IsValid returns true if the type is a known spec type.
func (t Type) IsValid() bool {
	switch t {
	case TypeEntity, TypeTemplate, TypePolicy, TypeConfiguration:
		return true
	default:
		return false
	}
}

// Spec is a blueprint for instantiating a managed component. Config values
// may be engine.Deferred until resolved.
type Spec interface {
	// ID is unique per created spec.
	ID() string

	// Type returns the spec type.
	Type() Type

	// DisplayName is the human-readable name.
	DisplayName() string

	// TypeRef is the implementation type the spec instantiates.
	TypeRef() string

	// Config returns a copy of the configuration.
	Config() map[string]interface{}

	// CatalogItemID is the catalog item the spec was created from, if any.
	CatalogItemID() string
}

// Base carries the fields common to all spec types.
type Base struct {
	SpecID      string                 `json:"id" yaml:"id"`
	Name        string                 `json:"display_name,omitempty" yaml:"displayName,omitempty"`
	Ref         string                 `json:"type_ref,omitempty" yaml:"typeRef,omitempty"`
	Values      map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
	CatalogItem string                 `json:"catalog_item,omitempty" yaml:"catalogItem,omitempty"`
}

func newBase(name, typeRef string, config map[string]interface{}) Base {
	return Base{
		SpecID: uuid.New().String(),
		Name:   name,
		Ref:    typeRef,
		Values: copyMap(config),
	}
}

// ID returns the spec id.
func (b *Base) ID() string { return b.SpecID }

// DisplayName returns the display name.
func (b *Base) DisplayName() string { return b.Name }

// TypeRef returns the implementation type reference.
func (b *Base) TypeRef() string { return b.Ref }

// Config returns a copy of the configuration.
func (b *Base) Config() map[string]interface{} { return copyMap(b.Values) }

// CatalogItemID returns the source catalog item id.
func (b *Base) CatalogItemID() string { return b.CatalogItem }

// SetCatalogItemID records the catalog item the spec came from.
func (b *Base) SetCatalogItemID(id string) { b.CatalogItem = id }

// EntitySpec describes a single managed entity and its children.
type EntitySpec struct {
	Base     `yaml:",inline"`
	Children []*EntitySpec `json:"children,omitempty" yaml:"children,omitempty"`
}

// NewEntitySpec creates an entity spec.
func NewEntitySpec(name, typeRef string, config map[string]interface{}) *EntitySpec {
	return &EntitySpec{Base: newBase(name, typeRef, config)}
}

// Type returns TypeEntity.
func (s *EntitySpec) Type() Type { return TypeEntity }

// AddChild appends a child entity.
func (s *EntitySpec) AddChild(child *EntitySpec) { s.Children = append(s.Children, child) }

// TemplateSpec describes an application assembled from several services.
type TemplateSpec struct {
	Base     `yaml:",inline"`
	Children []*EntitySpec `json:"children,omitempty" yaml:"children,omitempty"`
}

// NewTemplateSpec creates a template spec.
func NewTemplateSpec(name string, config map[string]interface{}, children ...*EntitySpec) *TemplateSpec {
	return &TemplateSpec{Base: newBase(name, "application", config), Children: children}
}

// Type returns TypeTemplate.
func (s *TemplateSpec) Type() Type { return TypeTemplate }

// PolicySpec describes a policy attached to an entity.
type PolicySpec struct {
	Base `yaml:",inline"`
}

// NewPolicySpec creates a policy spec.
func NewPolicySpec(name, typeRef string, config map[string]interface{}) *PolicySpec {
	return &PolicySpec{Base: newBase(name, typeRef, config)}
}

// Type returns TypePolicy.
func (s *PolicySpec) Type() Type { return TypePolicy }

// ConfigurationSpec describes a reusable block of configuration values.
type ConfigurationSpec struct {
	Base `yaml:",inline"`
}

// NewConfigurationSpec creates a configuration spec.
func NewConfigurationSpec(name string, config map[string]interface{}) *ConfigurationSpec {
	return &ConfigurationSpec{Base: newBase(name, "configuration", config)}
}

// Type returns TypeConfiguration.
func (s *ConfigurationSpec) Type() Type { return TypeConfiguration }

// ResolveConfig resolves every deferred value in the spec's configuration
// through sched and returns the concrete result.
func ResolveConfig(ctx context.Context, sched engine.Scheduler, s Spec) (map[string]interface{}, error) {
	resolved, err := engine.ResolveDeep(ctx, sched, s.Config())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config of %s: %w", s.DisplayName(), err)
	}
	out, _ := resolved.(map[string]interface{})
	return out, nil
}

func copyMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
