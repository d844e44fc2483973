package plan

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/blueprint/pkg/config"
	"github.com/openfroyo/blueprint/pkg/dsl"
	"github.com/openfroyo/blueprint/pkg/engine"
)

// Parser turns blueprint YAML into a Plan, compiling DSL expressions found
// in string values.
type Parser struct {
	dsl     *dsl.Parser
	schemas *config.SchemaRegistry
	logger  zerolog.Logger
}

// NewParser creates a plan parser. schemas may be nil to skip validation.
func NewParser(dslParser *dsl.Parser, schemas *config.SchemaRegistry, logger zerolog.Logger) *Parser {
	if dslParser == nil {
		dslParser = &dsl.Parser{}
	}
	return &Parser{
		dsl:     dslParser,
		schemas: schemas,
		logger:  logger.With().Str("component", "plan-parser").Logger(),
	}
}

// Decode parses text into a generic YAML map without compiling expressions.
func Decode(text string) (map[string]interface{}, error) {
	if strings.TrimSpace(text) == "" {
		return nil, engine.NewInvalidArgumentError("plan text is empty", nil)
	}

	var doc interface{}
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, engine.NewInvalidArgumentError("plan is not valid YAML", err)
	}
	root, ok := doc.(map[string]interface{})
	if !ok {
		return nil, engine.NewInvalidArgumentError(fmt.Sprintf("plan must be a YAML map, got %T", doc), nil)
	}
	return root, nil
}

// Parse parses a blueprint document.
func (p *Parser) Parse(ctx context.Context, text string) (*Plan, error) {
	root, err := Decode(text)
	if err != nil {
		return nil, err
	}

	if p.schemas != nil {
		if err := p.schemas.ValidatePlan(ctx, root); err != nil {
			return nil, engine.NewInvalidArgumentError("plan does not match schema", err)
		}
	}

	plan := &Plan{
		source:     text,
		attributes: make(map[string]interface{}),
	}

	for key, value := range root {
		switch key {
		case "name":
			plan.name = fmt.Sprint(value)
		case "description":
			plan.description = fmt.Sprint(value)
		case "services":
			services, err := p.parseServices(value)
			if err != nil {
				return nil, err
			}
			plan.services = services
		default:
			compiled, err := p.dsl.CompileTree(value)
			if err != nil {
				return nil, fmt.Errorf("attribute %s: %w", key, err)
			}
			plan.attributes[key] = compiled
		}
	}

	p.logger.Debug().
		Str("plan", plan.name).
		Int("services", len(plan.services)).
		Msg("Parsed plan")

	return plan, nil
}

func (p *Parser) parseServices(value interface{}) ([]Service, error) {
	list, ok := value.([]interface{})
	if !ok {
		return nil, engine.NewInvalidArgumentError(fmt.Sprintf("services must be a list, got %T", value), nil)
	}

	services := make([]Service, 0, len(list))
	for i, entry := range list {
		m, ok := entry.(map[string]interface{})
		if !ok {
			return nil, engine.NewInvalidArgumentError(fmt.Sprintf("services[%d] must be a map", i), nil)
		}

		svc := Service{
			Config:     make(map[string]interface{}),
			Attributes: make(map[string]interface{}),
		}
		for key, raw := range m {
			switch key {
			case "type", "serviceType":
				svc.Type = fmt.Sprint(raw)
			case "name":
				svc.Name = fmt.Sprint(raw)
			case "config":
				cfg, ok := raw.(map[string]interface{})
				if !ok {
					return nil, engine.NewInvalidArgumentError(fmt.Sprintf("services[%d].config must be a map", i), nil)
				}
				compiled, err := p.dsl.CompileTree(cfg)
				if err != nil {
					return nil, fmt.Errorf("services[%d].config: %w", i, err)
				}
				for k, v := range compiled.(map[string]interface{}) {
					svc.Config[k] = v
				}
			default:
				compiled, err := p.dsl.CompileTree(raw)
				if err != nil {
					return nil, fmt.Errorf("services[%d].%s: %w", i, key, err)
				}
				svc.Attributes[key] = compiled
			}
		}

		if svc.Type == "" {
			return nil, engine.NewInvalidArgumentError(fmt.Sprintf("services[%d] has no type", i), nil)
		}
		services = append(services, svc)
	}
	return services, nil
}
