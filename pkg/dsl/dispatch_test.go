package dsl

import (
	"errors"
	"runtime"
	"strings"
	"testing"

	"github.com/openfroyo/blueprint/pkg/engine"
)

type point struct{ X, Y int }

func TestFunctionTable_Invoke(t *testing.T) {
	table := NewBuiltinTable()

	tests := []struct {
		name   string
		target interface{}
		fn     string
		args   []interface{}
		want   interface{}
	}{
		{"upper", "abc", "toUpperCase", nil, "ABC"},
		{"lower", "ABC", "toLowerCase", nil, "abc"},
		{"trim", "  x  ", "trim", nil, "x"},
		{"length", "abcd", "length", nil, 4},
		{"replace", "a-b-c", "replace", []interface{}{"-", "."}, "a.b.c"},
		{"substring from", "hello", "substring", []interface{}{1}, "ello"},
		{"substring range", "hello", "substring", []interface{}{1, 3}, "el"},
		{"concat variadic", "a", "concat", []interface{}{"b", 1}, "ab1"},
		{"concat no args", "a", "concat", nil, "a"},
		{"starts with", "prefix-x", "startsWith", []interface{}{"prefix"}, true},
		{"map get", map[string]interface{}{"k": "v"}, "get", []interface{}{"k"}, "v"},
		{"string map get", map[string]string{"k": "v"}, "get", []interface{}{"k"}, "v"},
		{"map size", map[string]interface{}{"a": 1, "b": 2}, "size", nil, 2},
		{"list get", []interface{}{"x", "y"}, "get", []interface{}{1}, "y"},
		{"list size", []interface{}{"x", "y"}, "size", nil, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.Invoke(tt.target, tt.fn, tt.args)
			if err != nil {
				t.Fatalf("Invoke() error = %v", err)
			}
			if !Equal(got, tt.want) {
				t.Errorf("Invoke() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFunctionTable_NoSuchFunction(t *testing.T) {
	table := NewBuiltinTable()

	tests := []struct {
		name   string
		target interface{}
		fn     string
		args   []interface{}
	}{
		{"unknown name", "abc", "frobnicate", nil},
		{"wrong arity", "abc", "toUpperCase", []interface{}{1}},
		{"wrong target type", 42, "toUpperCase", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := table.Invoke(tt.target, tt.fn, tt.args)
			if !engine.IsInvalidArgument(err) {
				t.Fatalf("expected invalid argument error, got %v", err)
			}
			if !strings.Contains(err.Error(), "No such function '"+tt.fn+"(") {
				t.Errorf("message %q does not name the function", err.Error())
			}
		})
	}
}

func TestFunctionTable_CustomType(t *testing.T) {
	table := NewFunctionTable()
	Register(table, "sum", 0, func(p point, _ []interface{}) (interface{}, error) {
		return p.X + p.Y, nil
	})
	Register(table, "scale", 1, func(p point, args []interface{}) (interface{}, error) {
		f, err := intArg(args, 0)
		if err != nil {
			return nil, err
		}
		return point{p.X * f, p.Y * f}, nil
	})

	got, err := table.Invoke(point{1, 2}, "sum", nil)
	if err != nil || got != 3 {
		t.Fatalf("sum = %v, %v", got, err)
	}

	got, err = table.Invoke(point{1, 2}, "scale", []interface{}{"two"})
	if !engine.IsInvocation(err) {
		t.Fatalf("expected invocation error, got %v, %v", got, err)
	}
}

func TestFunctionTable_PanicHandling(t *testing.T) {
	table := NewFunctionTable()
	fatal := &engine.FatalError{Err: errors.New("unrecoverable")}

	Register(table, "panics", 0, func(s string, _ []interface{}) (interface{}, error) {
		panic("handler bug")
	})
	Register(table, "fatal", 0, func(s string, _ []interface{}) (interface{}, error) {
		panic(fatal)
	})
	Register(table, "fatalErr", 0, func(s string, _ []interface{}) (interface{}, error) {
		return nil, fatal
	})
	Register(table, "index", 0, func(s string, _ []interface{}) (interface{}, error) {
		var l []int
		return l[3], nil
	})

	t.Run("plain panic is wrapped", func(t *testing.T) {
		_, err := table.Invoke("x", "panics", nil)
		if !engine.IsInvocation(err) {
			t.Fatalf("expected invocation error, got %v", err)
		}
	})

	t.Run("fatal error value is not wrapped", func(t *testing.T) {
		_, err := table.Invoke("x", "fatalErr", nil)
		if err != fatal {
			t.Fatalf("Invoke() error = %v, want the FatalError itself", err)
		}
	})

	t.Run("runtime error panic is wrapped", func(t *testing.T) {
		_, err := table.Invoke("x", "index", nil)
		if !engine.IsInvocation(err) {
			t.Fatalf("expected invocation error, got %v", err)
		}
		if !strings.Contains(err.Error(), "index()") || !strings.Contains(err.Error(), `"x"`) {
			t.Errorf("error %q should name the function and target", err)
		}
		var rerr runtime.Error
		if !errors.As(err, &rerr) {
			t.Errorf("runtime error should stay in the chain, got %v", err)
		}
	})

	t.Run("fatal panic propagates", func(t *testing.T) {
		defer func() {
			if r := recover(); r != fatal {
				t.Errorf("recover() = %v, want the FatalError", r)
			}
		}()
		_, _ = table.Invoke("x", "fatal", nil)
	})
}
