package dsl

import (
	"context"
	"fmt"

	"github.com/openfroyo/blueprint/pkg/engine"
)

// FunctionCall is a call chained on the eventual value of another
// expression: target.fn(args...). Any argument may itself be deferred.
type FunctionCall struct {
	Target interface{}
	Fn     string
	Args   []interface{}

	// functions dispatches the call; nil means DefaultFunctions.
	functions *FunctionTable
}

var _ engine.Deferred = (*FunctionCall)(nil)

// NewFunctionCall creates a call dispatched through the built-in functions.
func NewFunctionCall(target interface{}, fn string, args ...interface{}) *FunctionCall {
	return &FunctionCall{Target: target, Fn: fn, Args: args}
}

// WithFunctions sets the table used to dispatch the call.
func (c *FunctionCall) WithFunctions(t *FunctionTable) *FunctionCall {
	c.functions = t
	return c
}

func (c *FunctionCall) table() *FunctionTable {
	if c.functions != nil {
		return c.functions
	}
	return DefaultFunctions()
}

// Immediately performs the call if the target and arguments are available
// now. It returns an absent value when they are not, and fails if the
// target is available but null.
func (c *FunctionCall) Immediately() (engine.Maybe, error) {
	target, err := immediate(c.Target)
	if err != nil {
		return engine.Maybe{}, err
	}
	if !target.IsPresent() {
		return engine.Absent("target " + renderValue(c.Target) + " not yet resolved"), nil
	}
	if target.IsNull() {
		return engine.Maybe{}, c.nullTargetError()
	}

	args := make([]interface{}, len(c.Args))
	for i, arg := range c.Args {
		m, err := immediate(arg)
		if err != nil {
			return engine.Maybe{}, err
		}
		if !m.IsPresent() {
			return engine.Absent(fmt.Sprintf("argument %d not yet resolved", i)), nil
		}
		args[i] = m.Get()
	}

	result, err := c.table().Invoke(target.Get(), c.Fn, args)
	if err != nil {
		return engine.Maybe{}, err
	}
	return engine.Present(result), nil
}

// immediate resolves v without blocking. A deferred value that yields
// another deferred value is reported as absent.
func immediate(v interface{}) (engine.Maybe, error) {
	d, ok := v.(engine.Deferred)
	if !ok {
		return engine.Present(v), nil
	}
	m, err := d.Immediately()
	if err != nil || !m.IsPresent() {
		return m, err
	}
	if _, nested := m.Get().(engine.Deferred); nested {
		return engine.Absent("resolves to a deferred value"), nil
	}
	return m, nil
}

// NewTask returns a transient task that waits for the target and arguments
// to resolve fully, then performs the call. A deferred result is returned
// as is for the caller to continue resolving.
func (c *FunctionCall) NewTask() *engine.Task {
	return engine.NewTask("Deferred function call "+c.String(), func(ctx context.Context) (interface{}, error) {
		target, err := engine.Resolve(ctx, nil, c.Target)
		if err != nil {
			return nil, err
		}
		if engine.IsNil(target) {
			return nil, c.nullTargetError()
		}

		args := make([]interface{}, len(c.Args))
		for i, arg := range c.Args {
			if args[i], err = engine.Resolve(ctx, nil, arg); err != nil {
				return nil, fmt.Errorf("resolving argument %d of %s: %w", i, c.Fn, err)
			}
		}

		return c.table().Invoke(target, c.Fn, args)
	}, engine.TagTransient, engine.TagDeferred)
}

func (c *FunctionCall) nullTargetError() error {
	return engine.NewInvalidArgumentError(
		fmt.Sprintf("Deferred function call, %s evaluates to null (when calling %s(%s))",
			renderValue(c.Target), c.Fn, renderArgs(c.Args)), nil).
		WithCode(engine.ErrCodeNullTarget).
		WithSubject(c.String()).
		WithOperation(c.Fn)
}

// String renders the call as target.fn(arg1, arg2).
func (c *FunctionCall) String() string {
	return fmt.Sprintf("%s.%s(%s)", renderValue(c.Target), c.Fn, renderArgs(c.Args))
}

// Equal reports whether other is a structurally equal call.
func (c *FunctionCall) Equal(other interface{}) bool {
	return Equal(c, other)
}

// Hash returns a structural hash consistent with Equal.
func (c *FunctionCall) Hash() uint64 {
	return Hash(c)
}
