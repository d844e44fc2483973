package dsl

import (
	"fmt"
	"strings"

	"go.starlark.net/syntax"

	"github.com/openfroyo/blueprint/pkg/engine"
)

// Prefix marks a YAML string scalar as a DSL expression.
const Prefix = "$dsl:"

// Parser compiles DSL expressions into deferred value trees.
//
// The surface is a subset of the Starlark expression grammar:
//
//	external("provider", "key")
//	<expr>.<function>(<arg>, ...)
//	"string", 42, 1.5, true, false, null, [list]
type Parser struct {
	// Registry is bound into every external(...) leaf.
	Registry ProviderResolver

	// Functions dispatches compiled calls; nil means DefaultFunctions.
	Functions *FunctionTable
}

// NewParser creates a parser that binds external lookups to registry.
func NewParser(registry ProviderResolver, functions *FunctionTable) *Parser {
	return &Parser{Registry: registry, Functions: functions}
}

// Parse compiles expr without a provider registry.
func Parse(expr string) (interface{}, error) {
	return (&Parser{}).Parse(expr)
}

// Parse compiles expr. The result is a plain value for literals, or an
// engine.Deferred for external lookups and function calls.
func (p *Parser) Parse(expr string) (interface{}, error) {
	src := strings.TrimSpace(expr)
	if src == "" {
		return nil, engine.NewInvalidArgumentError("empty DSL expression", nil)
	}

	node, err := syntax.ParseExpr("dsl", src, 0)
	if err != nil {
		return nil, engine.NewInvalidArgumentError("invalid DSL expression", err).WithSubject(src)
	}

	v, err := p.compile(node)
	if err != nil {
		return nil, engine.NewInvalidArgumentError("invalid DSL expression", err).WithSubject(src)
	}
	return v, nil
}

// Compile returns the compiled expression when s carries the DSL prefix,
// and s unchanged otherwise.
func (p *Parser) Compile(s string) (interface{}, error) {
	if !IsExpression(s) {
		return s, nil
	}
	return p.Parse(strings.TrimPrefix(s, Prefix))
}

// IsExpression reports whether s is a DSL expression.
func IsExpression(s string) bool {
	return strings.HasPrefix(s, Prefix)
}

func (p *Parser) compile(node syntax.Expr) (interface{}, error) {
	switch n := node.(type) {
	case *syntax.Literal:
		switch n.Token {
		case syntax.STRING:
			return n.Value.(string), nil
		case syntax.INT:
			if v, ok := n.Value.(int64); ok {
				return int(v), nil
			}
			return nil, fmt.Errorf("integer literal %s out of range", n.Raw)
		case syntax.FLOAT:
			return n.Value.(float64), nil
		default:
			return nil, fmt.Errorf("unsupported literal %s", n.Raw)
		}

	case *syntax.Ident:
		switch n.Name {
		case "true", "True":
			return true, nil
		case "false", "False":
			return false, nil
		case "null", "None":
			return nil, nil
		default:
			return nil, fmt.Errorf("unknown identifier %q", n.Name)
		}

	case *syntax.UnaryExpr:
		if n.Op != syntax.MINUS {
			return nil, fmt.Errorf("unsupported operator %s", n.Op)
		}
		v, err := p.compile(n.X)
		if err != nil {
			return nil, err
		}
		switch num := v.(type) {
		case int:
			return -num, nil
		case float64:
			return -num, nil
		default:
			return nil, fmt.Errorf("cannot negate %T", v)
		}

	case *syntax.ParenExpr:
		return p.compile(n.X)

	case *syntax.ListExpr:
		out := make([]interface{}, len(n.List))
		for i, item := range n.List {
			v, err := p.compile(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case *syntax.CallExpr:
		return p.compileCall(n)

	default:
		return nil, fmt.Errorf("unsupported expression %T", node)
	}
}

func (p *Parser) compileCall(call *syntax.CallExpr) (interface{}, error) {
	args := make([]interface{}, len(call.Args))
	for i, arg := range call.Args {
		if _, keyword := arg.(*syntax.BinaryExpr); keyword {
			return nil, fmt.Errorf("keyword arguments are not supported")
		}
		v, err := p.compile(arg)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	switch fn := call.Fn.(type) {
	case *syntax.Ident:
		if fn.Name != "external" {
			return nil, fmt.Errorf("unknown function %q", fn.Name)
		}
		if len(args) != 2 {
			return nil, fmt.Errorf("external takes 2 arguments, got %d", len(args))
		}
		provider, ok1 := args[0].(string)
		key, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("external arguments must be string literals")
		}
		return NewExternal(p.Registry, provider, key), nil

	case *syntax.DotExpr:
		target, err := p.compile(fn.X)
		if err != nil {
			return nil, err
		}
		return NewFunctionCall(target, fn.Name.Name, args...).WithFunctions(p.Functions), nil

	default:
		return nil, fmt.Errorf("unsupported call target %T", call.Fn)
	}
}

// CompileTree walks maps and slices decoded from YAML and compiles every
// DSL string it finds. The input is not modified.
func (p *Parser) CompileTree(v interface{}) (interface{}, error) {
	switch typed := v.(type) {
	case string:
		return p.Compile(typed)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, item := range typed {
			compiled, err := p.CompileTree(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = compiled
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, item := range typed {
			compiled, err := p.CompileTree(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = compiled
		}
		return out, nil
	default:
		return v, nil
	}
}
