package dsl

import (
	"fmt"
	"strings"
	"sync"

	"github.com/openfroyo/blueprint/pkg/engine"
)

// Variadic registers a handler that accepts any number of arguments.
const Variadic = -1

// Handler performs a function on an already-resolved target.
type Handler func(target interface{}, args []interface{}) (interface{}, error)

type functionKey struct {
	name  string
	arity int
}

type registration struct {
	accepts func(target interface{}) bool
	handler Handler
}

// FunctionTable maps (function name, arity) to the handlers that can serve
// it. Handlers are tried in registration order; the first whose target type
// matches wins.
type FunctionTable struct {
	mu       sync.RWMutex
	handlers map[functionKey][]registration
}

// NewFunctionTable creates an empty function table.
func NewFunctionTable() *FunctionTable {
	return &FunctionTable{
		handlers: make(map[functionKey][]registration),
	}
}

// Register adds a handler for targets of type T.
func Register[T any](t *FunctionTable, name string, arity int, fn func(target T, args []interface{}) (interface{}, error)) {
	t.add(name, arity, registration{
		accepts: func(target interface{}) bool {
			_, ok := target.(T)
			return ok
		},
		handler: func(target interface{}, args []interface{}) (interface{}, error) {
			return fn(target.(T), args)
		},
	})
}

func (t *FunctionTable) add(name string, arity int, reg registration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := functionKey{name: name, arity: arity}
	t.handlers[key] = append(t.handlers[key], reg)
}

// Lookup returns the handler for name applied to target with argc arguments.
func (t *FunctionTable) Lookup(target interface{}, name string, argc int) (Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, arity := range []int{argc, Variadic} {
		for _, reg := range t.handlers[functionKey{name: name, arity: arity}] {
			if reg.accepts(target) {
				return reg.handler, true
			}
		}
	}
	return nil, false
}

// Invoke calls fn on target with args.
//
// A missing handler is an invalid-argument error. Handler errors and panics,
// runtime errors included, are wrapped with the target, function and
// arguments. Only FatalError values propagate unchanged.
func (t *FunctionTable) Invoke(target interface{}, fn string, args []interface{}) (result interface{}, err error) {
	handler, ok := t.Lookup(target, fn, len(args))
	if !ok {
		return nil, engine.NewInvalidArgumentError(
			fmt.Sprintf("No such function '%s(%s)' on %s", fn, renderArgs(args), renderValue(target)), nil).
			WithCode(engine.ErrCodeNoSuchFunc).
			WithOperation(fn)
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if _, fatal := r.(*engine.FatalError); fatal {
			panic(r)
		}
		cause, ok := r.(error)
		if !ok {
			cause = fmt.Errorf("%v", r)
		}
		result = nil
		err = invocationError(target, fn, args, fmt.Errorf("panic: %w", cause))
	}()

	result, err = handler(target, args)
	if err != nil {
		if engine.IsFatal(err) {
			return nil, err
		}
		return nil, invocationError(target, fn, args, err)
	}
	return result, nil
}

func invocationError(target interface{}, fn string, args []interface{}, cause error) error {
	return engine.NewInvocationError(
		fmt.Sprintf("Error invoking '%s(%s)' on '%s'", fn, renderArgs(args), renderValue(target)), cause).
		WithOperation(fn).
		WithDetail("function", fn).
		WithDetail("arity", len(args))
}

// Functions returns the names registered in the table, for diagnostics.
func (t *FunctionTable) Functions() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.handlers))
	for key := range t.handlers {
		arity := fmt.Sprintf("%d", key.arity)
		if key.arity == Variadic {
			arity = "*"
		}
		names = append(names, key.name+"/"+arity)
	}
	return names
}

// renderArgs renders an argument list the way it appears in an expression.
func renderArgs(args []interface{}) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = renderValue(arg)
	}
	return strings.Join(parts, ", ")
}

func renderValue(v interface{}) string {
	switch typed := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", typed)
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprintf("%v", typed)
	}
}
