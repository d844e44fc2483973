package dsl

import (
	"fmt"
	"strings"
)

var defaultFunctions = newBuiltinTable()

// DefaultFunctions returns the shared table of built-in functions.
// Callers that register their own handlers should use NewBuiltinTable instead.
func DefaultFunctions() *FunctionTable {
	return defaultFunctions
}

// NewBuiltinTable returns a fresh table populated with the built-in
// string, map and list functions.
func NewBuiltinTable() *FunctionTable {
	return newBuiltinTable()
}

func newBuiltinTable() *FunctionTable {
	t := NewFunctionTable()

	// Strings
	Register(t, "toUpperCase", 0, func(s string, _ []interface{}) (interface{}, error) {
		return strings.ToUpper(s), nil
	})
	Register(t, "toLowerCase", 0, func(s string, _ []interface{}) (interface{}, error) {
		return strings.ToLower(s), nil
	})
	Register(t, "trim", 0, func(s string, _ []interface{}) (interface{}, error) {
		return strings.TrimSpace(s), nil
	})
	Register(t, "length", 0, func(s string, _ []interface{}) (interface{}, error) {
		return len(s), nil
	})
	Register(t, "replace", 2, func(s string, args []interface{}) (interface{}, error) {
		oldStr, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		newStr, err := stringArg(args, 1)
		if err != nil {
			return nil, err
		}
		return strings.ReplaceAll(s, oldStr, newStr), nil
	})
	Register(t, "substring", 1, func(s string, args []interface{}) (interface{}, error) {
		start, err := intArg(args, 0)
		if err != nil {
			return nil, err
		}
		return substring(s, start, len(s))
	})
	Register(t, "substring", 2, func(s string, args []interface{}) (interface{}, error) {
		start, err := intArg(args, 0)
		if err != nil {
			return nil, err
		}
		end, err := intArg(args, 1)
		if err != nil {
			return nil, err
		}
		return substring(s, start, end)
	})
	Register(t, "split", 1, func(s string, args []interface{}) (interface{}, error) {
		sep, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		parts := strings.Split(s, sep)
		out := make([]interface{}, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	})
	Register(t, "startsWith", 1, func(s string, args []interface{}) (interface{}, error) {
		prefix, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		return strings.HasPrefix(s, prefix), nil
	})
	Register(t, "endsWith", 1, func(s string, args []interface{}) (interface{}, error) {
		suffix, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		return strings.HasSuffix(s, suffix), nil
	})
	Register(t, "contains", 1, func(s string, args []interface{}) (interface{}, error) {
		sub, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		return strings.Contains(s, sub), nil
	})
	Register(t, "concat", Variadic, func(s string, args []interface{}) (interface{}, error) {
		var b strings.Builder
		b.WriteString(s)
		for _, arg := range args {
			fmt.Fprint(&b, arg)
		}
		return b.String(), nil
	})

	// Maps
	Register(t, "get", 1, func(m map[string]interface{}, args []interface{}) (interface{}, error) {
		key, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		return m[key], nil
	})
	Register(t, "get", 1, func(m map[string]string, args []interface{}) (interface{}, error) {
		key, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		v, ok := m[key]
		if !ok {
			return nil, nil
		}
		return v, nil
	})
	Register(t, "size", 0, func(m map[string]interface{}, _ []interface{}) (interface{}, error) {
		return len(m), nil
	})

	// Lists
	Register(t, "get", 1, func(l []interface{}, args []interface{}) (interface{}, error) {
		i, err := intArg(args, 0)
		if err != nil {
			return nil, err
		}
		if i < 0 || i >= len(l) {
			return nil, fmt.Errorf("index %d out of range [0,%d)", i, len(l))
		}
		return l[i], nil
	})
	Register(t, "size", 0, func(l []interface{}, _ []interface{}) (interface{}, error) {
		return len(l), nil
	})

	return t
}

func substring(s string, start, end int) (interface{}, error) {
	if start < 0 || end > len(s) || start > end {
		return nil, fmt.Errorf("substring bounds [%d,%d) out of range for length %d", start, end, len(s))
	}
	return s[start:end], nil
}

func stringArg(args []interface{}, i int) (string, error) {
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("argument %d: expected string, got %T", i, args[i])
	}
	return s, nil
}

func intArg(args []interface{}, i int) (int, error) {
	switch v := args[i].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v == float64(int(v)) {
			return int(v), nil
		}
	}
	return 0, fmt.Errorf("argument %d: expected integer, got %T", i, args[i])
}
