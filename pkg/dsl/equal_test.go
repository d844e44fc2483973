package dsl

import (
	"testing"

	"pgregory.net/rapid"
)

func TestEqual(t *testing.T) {
	a := NewFunctionCall(NewExternal(nil, "p", "k"), "f", "x", 1)

	tests := []struct {
		name string
		a, b interface{}
		want bool
	}{
		{"same instance", a, a, true},
		{"independent copies", a, NewFunctionCall(NewExternal(newMockRegistry(), "p", "k"), "f", "x", 1), true},
		{"different function", a, NewFunctionCall(NewExternal(nil, "p", "k"), "g", "x", 1), false},
		{"different target", a, NewFunctionCall(NewExternal(nil, "p", "other"), "f", "x", 1), false},
		{"different args", a, NewFunctionCall(NewExternal(nil, "p", "k"), "f", "x", 2), false},
		{"arg count", a, NewFunctionCall(NewExternal(nil, "p", "k"), "f", "x"), false},
		{"numeric normalization", int64(1), 1.0, true},
		{"call vs external", a, NewExternal(nil, "p", "k"), false},
		{"nil vs nil", nil, nil, true},
		{"maps", map[string]interface{}{"a": a}, map[string]interface{}{"a": NewFunctionCall(NewExternal(nil, "p", "k"), "f", "x", 1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
			if tt.want && Hash(tt.a) != Hash(tt.b) {
				t.Error("equal values hash differently")
			}
		})
	}
}

// genExpr draws an expression tree as a constructor so the same tree can be
// built twice without sharing any pointers.
func genExpr(t *rapid.T, depth int) func() interface{} {
	kind := rapid.IntRange(0, 3).Draw(t, "kind")
	if depth <= 0 {
		kind = rapid.IntRange(0, 1).Draw(t, "leaf")
	}

	switch kind {
	case 0:
		s := rapid.StringMatching(`[a-z]{0,6}`).Draw(t, "str")
		return func() interface{} { return s }
	case 1:
		provider := rapid.SampledFrom([]string{"vault", "env", "file"}).Draw(t, "provider")
		key := rapid.StringMatching(`[a-z]{1,5}`).Draw(t, "key")
		return func() interface{} { return NewExternal(nil, provider, key) }
	case 2:
		n := rapid.IntRange(-100, 100).Draw(t, "int")
		return func() interface{} { return n }
	default:
		target := genExpr(t, depth-1)
		fn := rapid.SampledFrom([]string{"trim", "get", "concat", "replace"}).Draw(t, "fn")
		argc := rapid.IntRange(0, 3).Draw(t, "argc")
		args := make([]func() interface{}, argc)
		for i := range args {
			args[i] = genExpr(t, depth-1)
		}
		return func() interface{} {
			built := make([]interface{}, len(args))
			for i, arg := range args {
				built[i] = arg()
			}
			return NewFunctionCall(target(), fn, built...)
		}
	}
}

func TestEqual_StructuralProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		build := genExpr(t, 3)
		a, b := build(), build()

		if !Equal(a, b) {
			t.Fatalf("independently built trees differ: %v vs %v", a, b)
		}
		if Hash(a) != Hash(b) {
			t.Fatalf("hash mismatch for %v", a)
		}
	})
}

func TestEqual_DistinctFunctionsDiffer(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		target := genExpr(t, 2)
		f := rapid.StringMatching(`[a-z]{1,4}`).Draw(t, "f")
		g := rapid.StringMatching(`[a-z]{1,4}`).Filter(func(s string) bool { return s != f }).Draw(t, "g")

		a := NewFunctionCall(target(), f)
		b := NewFunctionCall(target(), g)
		if Equal(a, b) {
			t.Fatalf("%v should differ from %v", a, b)
		}
	})
}
