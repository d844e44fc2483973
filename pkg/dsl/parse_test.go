package dsl

import (
	"context"
	"testing"

	"github.com/openfroyo/blueprint/pkg/engine"
)

func TestParser_Parse(t *testing.T) {
	reg := newMockRegistry()
	p := NewParser(reg, nil)

	tests := []struct {
		name string
		expr string
		want interface{}
	}{
		{"string literal", `"abc"`, "abc"},
		{"int literal", `42`, 42},
		{"negative int", `-3`, -3},
		{"float literal", `1.5`, 1.5},
		{"true", `true`, true},
		{"null", `null`, nil},
		{"list", `["a", 1]`, []interface{}{"a", 1}},
		{"external", `external("myprovider", "mykey")`, NewExternal(nil, "myprovider", "mykey")},
		{
			name: "chained call",
			expr: `external("myprovider", "region").replace("-", "_")`,
			want: NewFunctionCall(NewExternal(nil, "myprovider", "region"), "replace", "-", "_"),
		},
		{
			name: "call on literal",
			expr: `"abc".substring(1)`,
			want: NewFunctionCall("abc", "substring", 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Parse(tt.expr)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.expr, err)
			}
			if !Equal(got, tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestParser_ParseErrors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"empty", ""},
		{"syntax error", `external("a",`},
		{"unknown function", `lookup("a", "b")`},
		{"external arity", `external("a")`},
		{"external non-string", `external("a", 1)`},
		{"unknown identifier", `someVar.trim()`},
		{"keyword args", `"a".replace(old="a", new="b")`},
		{"binary operator", `1 + 2`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.expr)
			if !engine.IsInvalidArgument(err) {
				t.Errorf("Parse(%q) error = %v, want invalid argument", tt.expr, err)
			}
		})
	}
}

func TestParser_BindsRegistry(t *testing.T) {
	reg := newMockRegistry()
	v, err := NewParser(reg, nil).Compile(`$dsl:external("myprovider", "mykey").toUpperCase()`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	got, err := engine.Resolve(context.Background(), newTestScheduler(), v)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != "MYVAL" {
		t.Errorf("Resolve() = %v, want MYVAL", got)
	}
}

func TestParser_CompileTree(t *testing.T) {
	p := NewParser(newMockRegistry(), nil)
	input := map[string]interface{}{
		"plain":  "value",
		"secret": `$dsl:external("myprovider", "mykey")`,
		"nested": []interface{}{
			map[string]interface{}{"x": `$dsl:"a".toUpperCase()`},
			7,
		},
	}

	got, err := p.CompileTree(input)
	if err != nil {
		t.Fatalf("CompileTree() error = %v", err)
	}
	tree := got.(map[string]interface{})

	if tree["plain"] != "value" {
		t.Errorf("plain = %v", tree["plain"])
	}
	if _, ok := tree["secret"].(*External); !ok {
		t.Errorf("secret = %T, want *External", tree["secret"])
	}
	inner := tree["nested"].([]interface{})[0].(map[string]interface{})
	if _, ok := inner["x"].(*FunctionCall); !ok {
		t.Errorf("nested x = %T, want *FunctionCall", inner["x"])
	}
	if input["secret"] != `$dsl:external("myprovider", "mykey")` {
		t.Error("input was mutated")
	}

	if _, err := p.CompileTree(map[string]interface{}{"bad": "$dsl:("}); err == nil {
		t.Error("expected error for invalid nested expression")
	}
}
