package plan

import (
	"context"
	"fmt"

	"github.com/openfroyo/blueprint/pkg/engine"
	"github.com/openfroyo/blueprint/pkg/spec"
)

const (
	// ConfigAttribute holds plan-level config for templates and
	// configuration items.
	ConfigAttribute = "config"

	// PoliciesAttribute lists policy definitions.
	PoliciesAttribute = "policies"
)

// BasicSpecInstantiator creates every spec type directly from a plan.
type BasicSpecInstantiator struct{}

// NewBasicSpecInstantiator creates the default instantiator.
func NewBasicSpecInstantiator() *BasicSpecInstantiator {
	return &BasicSpecInstantiator{}
}

// Name returns DefaultInstantiator.
func (b *BasicSpecInstantiator) Name() string { return DefaultInstantiator }

// Supports returns true for every known spec type.
func (b *BasicSpecInstantiator) Supports(t spec.Type) bool { return t.IsValid() }

// CreateSpec builds a spec of type t from the template's plan.
func (b *BasicSpecInstantiator) CreateSpec(ctx context.Context, at *AssemblyTemplate, t spec.Type) (spec.Spec, error) {
	if at == nil || at.Plan == nil {
		return nil, engine.NewInvalidArgumentError("assembly template has no plan", nil)
	}
	p := at.Plan

	switch t {
	case spec.TypeEntity:
		return entityFromPlan(p)

	case spec.TypeTemplate:
		children := make([]*spec.EntitySpec, 0, len(p.services))
		for _, svc := range p.services {
			children = append(children, entityFromService(svc, ""))
		}
		cfg, _ := p.CustomMap(ConfigAttribute)
		return spec.NewTemplateSpec(p.Name(), cfg, children...), nil

	case spec.TypePolicy:
		return policyFromPlan(p)

	case spec.TypeConfiguration:
		cfg, _ := p.CustomMap(ConfigAttribute)
		return spec.NewConfigurationSpec(p.Name(), cfg), nil

	default:
		return nil, engine.NewUnsupportedError(fmt.Sprintf("spec type %q is not supported", t), nil)
	}
}

func entityFromPlan(p *Plan) (spec.Spec, error) {
	switch len(p.services) {
	case 0:
		return nil, engine.NewInvalidArgumentError(
			fmt.Sprintf("plan %q has no services to create an entity from", p.Name()), nil)
	case 1:
		return entityFromService(p.services[0], p.Name()), nil
	default:
		root := spec.NewEntitySpec(p.Name(), "application", nil)
		for _, svc := range p.services {
			root.AddChild(entityFromService(svc, ""))
		}
		return root, nil
	}
}

func entityFromService(svc Service, fallbackName string) *spec.EntitySpec {
	name := svc.Name
	if name == "" {
		name = fallbackName
	}
	if name == "" {
		name = svc.Type
	}
	return spec.NewEntitySpec(name, svc.Type, svc.Config)
}

func policyFromPlan(p *Plan) (spec.Spec, error) {
	if raw, ok := p.CustomAttribute(PoliciesAttribute); ok {
		list, ok := raw.([]interface{})
		if !ok || len(list) != 1 {
			return nil, engine.NewInvalidArgumentError(
				fmt.Sprintf("plan %q must declare exactly one policy", p.Name()), nil)
		}
		def, ok := list[0].(map[string]interface{})
		if !ok {
			return nil, engine.NewInvalidArgumentError("policy definition must be a map", nil)
		}

		typeRef, _ := def["type"].(string)
		if typeRef == "" {
			typeRef, _ = def["policyType"].(string)
		}
		if typeRef == "" {
			return nil, engine.NewInvalidArgumentError("policy definition has no type", nil)
		}
		name, _ := def["name"].(string)
		if name == "" {
			name = p.Name()
		}
		if name == "" {
			name = typeRef
		}
		cfg, _ := def[ConfigAttribute].(map[string]interface{})
		return spec.NewPolicySpec(name, typeRef, cfg), nil
	}

	if len(p.services) != 1 {
		return nil, engine.NewInvalidArgumentError(
			fmt.Sprintf("plan %q must declare exactly one policy", p.Name()), nil)
	}
	svc := p.services[0]
	name := svc.Name
	if name == "" {
		name = p.Name()
	}
	if name == "" {
		name = svc.Type
	}
	return spec.NewPolicySpec(name, svc.Type, svc.Config), nil
}
