package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/blueprint/pkg/catalog"
	"github.com/openfroyo/blueprint/pkg/engine"
)

// Engine evaluates Rego policies against catalog items. It implements
// catalog.Admitter.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy   Policy
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a policy engine. With builtin set, the built-in
// catalog policies are loaded.
func NewEngine(ctx context.Context, logger zerolog.Logger, builtin bool) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	if builtin {
		if err := e.loadBuiltinPolicies(ctx); err != nil {
			return nil, fmt.Errorf("failed to load built-in policies: %w", err)
		}
	}

	return e, nil
}

// EvaluateItem evaluates every enabled policy against item.
func (e *Engine) EvaluateItem(ctx context.Context, item catalog.Item) (*Result, error) {
	start := time.Now()

	input, err := newInput(item)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	compiled := make([]*compiledPolicy, 0, len(e.policies))
	for _, cp := range e.policies {
		if cp.policy.Enabled {
			compiled = append(compiled, cp)
		}
	}
	e.mu.RUnlock()
	sort.Slice(compiled, func(i, j int) bool { return compiled[i].policy.Name < compiled[j].policy.Name })

	result := &Result{Allowed: true}
	for _, cp := range compiled {
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, cp.policy.Name)

		violations, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", cp.policy.Name).
				Str("item", item.ID()).
				Msg("Policy evaluation failed")
			result.Failures = append(result.Failures, fmt.Sprintf("policy %s evaluation failed: %v", cp.policy.Name, err))
			continue
		}

		for _, v := range violations {
			if v.Severity.Blocks() {
				result.Allowed = false
				result.Violations = append(result.Violations, v)
			} else {
				result.Warnings = append(result.Warnings, v)
			}
		}
	}

	result.EvaluatedAt = time.Now()
	result.Duration = time.Since(start)

	e.logger.Debug().
		Str("item", item.ID()).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", result.Duration).
		Msg("Item policy evaluation completed")

	return result, nil
}

// Admit rejects item with an invalid-argument error when a blocking
// violation is found. Warnings are logged.
func (e *Engine) Admit(ctx context.Context, item catalog.Item) error {
	result, err := e.EvaluateItem(ctx, item)
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		e.logger.Warn().
			Str("policy", w.Policy).
			Str("item", item.ID()).
			Msg(w.Message)
	}

	if result.Allowed {
		return nil
	}

	messages := make([]string, len(result.Violations))
	for i, v := range result.Violations {
		messages[i] = fmt.Sprintf("%s: %s", v.Policy, v.Message)
	}
	return engine.NewInvalidArgumentError(
		fmt.Sprintf("catalog item %s rejected by policy: %s", item.ID(), strings.Join(messages, "; ")), nil).
		WithSubject(item.ID()).
		WithDetail("violations", result.Violations)
}

func newInput(item catalog.Item) (*Input, error) {
	in := &Input{
		Item: ItemInput{
			ID:           item.ID(),
			SymbolicName: item.SymbolicName,
			Version:      item.Version,
			Kind:         string(item.Kind),
			TypeRef:      item.TypeRef,
			DisplayName:  item.DisplayName,
			Description:  item.Description,
			Libraries:    make([]LibraryInput, 0, len(item.Libraries)),
		},
		Context: &Context{
			Operation: "add",
			Timestamp: time.Now(),
		},
	}
	for _, lib := range item.Libraries {
		in.Item.Libraries = append(in.Item.Libraries, LibraryInput{Name: lib.Name, Version: lib.Version, URL: lib.URL})
	}

	if item.PlanYAML != "" {
		var doc map[string]interface{}
		if err := yaml.Unmarshal([]byte(item.PlanYAML), &doc); err != nil {
			return nil, fmt.Errorf("failed to decode plan of %s: %w", item.ID(), err)
		}
		in.Plan = doc
	}
	return in, nil
}

// evaluatePolicy evaluates a single compiled policy.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, createViolation(cp.policy, d, input))
		}
	}
	return violations, nil
}

// createViolation creates a Violation from a deny entry, which is either a
// message or an object with message and severity.
func createViolation(policy Policy, result interface{}, input *Input) Violation {
	violation := Violation{
		Policy:   policy.Name,
		Item:     input.Item.ID,
		Severity: policy.Severity,
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = Severity(sev)
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}
	return violation
}

// AddPolicy compiles and stores a policy, replacing one with the same name.
func (e *Engine) AddPolicy(ctx context.Context, policy Policy) error {
	cp, err := compile(ctx, policy)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.policies[policy.Name] = cp
	e.mu.Unlock()

	e.logger.Debug().Str("policy", policy.Name).Msg("Policy compiled successfully")
	return nil
}

func compile(ctx context.Context, policy Policy) (*compiledPolicy, error) {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return nil, engine.NewConfigurationError(fmt.Sprintf("failed to parse policy %s", policy.Name), err)
	}

	query, err := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Query(module.Package.Path.String()+".deny"),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, engine.NewConfigurationError(fmt.Sprintf("failed to prepare policy %s", policy.Name), err)
	}

	return &compiledPolicy{policy: policy, query: query, compiled: time.Now()}, nil
}

// LoadPolicies loads and compiles policy files. Nothing is stored unless
// every policy compiles.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	return e.replace(ctx, policies, false)
}

// replace compiles policies and stores them. With reset, file-loaded
// policies not in the new set are dropped.
func (e *Engine) replace(ctx context.Context, policies []Policy, reset bool) error {
	compiled := make([]*compiledPolicy, 0, len(policies))
	for _, p := range policies {
		cp, err := compile(ctx, p)
		if err != nil {
			return err
		}
		compiled = append(compiled, cp)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if reset {
		for name, cp := range e.policies {
			if _, ok := cp.policy.Metadata["source"]; ok {
				delete(e.policies, name)
			}
		}
	}
	for _, cp := range compiled {
		e.policies[cp.policy.Name] = cp
	}

	e.logger.Info().Int("count", len(compiled)).Msg("Policies loaded successfully")
	return nil
}

// Watch reloads policy files under paths whenever they change.
func (e *Engine) Watch(ctx context.Context, paths []string) (*Loader, error) {
	loader := NewLoader(e.logger)
	err := loader.Watch(ctx, paths, func(policies []Policy) error {
		return e.replace(ctx, policies, true)
	})
	if err != nil {
		return nil, err
	}
	return loader, nil
}

// loadBuiltinPolicies loads the built-in policies.
func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	builtin := BuiltinPolicies()
	for _, p := range builtin {
		if err := e.AddPolicy(ctx, p); err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", p.Name, err)
		}
	}

	e.logger.Debug().Int("count", len(builtin)).Msg("Built-in policies loaded")
	return nil
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return Policy{}, engine.NewNotFoundError(fmt.Sprintf("policy not found: %s", name), nil)
	}
	return cp.policy, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		policies = append(policies, cp.policy)
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].Name < policies[j].Name })
	return policies
}

// SetEnabled enables or disables a policy by name.
func (e *Engine) SetEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return engine.NewNotFoundError(fmt.Sprintf("policy not found: %s", name), nil)
	}

	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy toggled")
	return nil
}
