package plan

// Service is one entry of a plan's services list.
type Service struct {
	// Name is the optional service name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Type is the service type reference.
	Type string `json:"type" yaml:"type"`

	// Config is the service configuration. Values may be deferred expressions.
	Config map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`

	// Attributes holds any other keys of the entry.
	Attributes map[string]interface{} `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// Plan is the parsed form of a blueprint document. A Plan is immutable:
// accessors return copies.
type Plan struct {
	name        string
	description string
	services    []Service
	attributes  map[string]interface{}
	source      string
}

// Name returns the plan name, possibly empty.
func (p *Plan) Name() string { return p.name }

// Description returns the plan description, possibly empty.
func (p *Plan) Description() string { return p.description }

// Source returns the text the plan was parsed from.
func (p *Plan) Source() string { return p.source }

// Services returns the services in document order.
func (p *Plan) Services() []Service {
	out := make([]Service, len(p.services))
	for i, svc := range p.services {
		out[i] = svc.copy()
	}
	return out
}

// CustomAttributes returns the top-level keys other than name, description
// and services.
func (p *Plan) CustomAttributes() map[string]interface{} {
	return copyMap(p.attributes)
}

// CustomAttribute returns a single custom attribute.
func (p *Plan) CustomAttribute(key string) (interface{}, bool) {
	v, ok := p.attributes[key]
	return v, ok
}

// CustomMap returns a custom attribute that is a map.
func (p *Plan) CustomMap(key string) (map[string]interface{}, bool) {
	v, ok := p.attributes[key].(map[string]interface{})
	if !ok {
		return nil, false
	}
	return copyMap(v), true
}

func (s Service) copy() Service {
	return Service{
		Name:       s.Name,
		Type:       s.Type,
		Config:     copyMap(s.Config),
		Attributes: copyMap(s.Attributes),
	}
}

func copyMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
