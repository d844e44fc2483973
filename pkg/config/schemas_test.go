package config

import (
	"context"
	"testing"
)

func TestSchemaRegistry_RegisterAndGet(t *testing.T) {
	sr := NewSchemaRegistry()

	customSchema := `
#CustomType: {
	field1: string
	field2: int
}
`

	if err := sr.RegisterSchema("custom", customSchema, "#CustomType"); err != nil {
		t.Fatalf("failed to register schema: %v", err)
	}

	schema, ok := sr.GetSchema("custom")
	if !ok {
		t.Fatal("expected to find custom schema")
	}
	if schema.Err() != nil {
		t.Errorf("schema has errors: %v", schema.Err())
	}

	ctx := context.Background()
	if err := sr.ValidateAgainstSchema(ctx, "custom", map[string]interface{}{"field1": "a", "field2": 1}); err != nil {
		t.Errorf("valid data rejected: %v", err)
	}
	if err := sr.ValidateAgainstSchema(ctx, "custom", map[string]interface{}{"field1": "a", "field2": "x"}); err == nil {
		t.Error("invalid data accepted")
	}
}

func TestSchemaRegistry_InvalidSchema(t *testing.T) {
	sr := NewSchemaRegistry()
	if err := sr.RegisterSchema("broken", "#X: {", ""); err == nil {
		t.Error("expected compile error")
	}
	if err := sr.RegisterSchema("missing", "#X: {}", "#Y"); err == nil {
		t.Error("expected error for missing definition")
	}
}

func TestSchemaRegistry_BuiltInSchemas(t *testing.T) {
	sr := NewSchemaRegistry()

	for _, name := range []string{SchemaCatalogMetadata, SchemaLibrary, SchemaPlan} {
		t.Run(name, func(t *testing.T) {
			schema, ok := sr.GetSchema(name)
			if !ok {
				t.Fatalf("built-in schema %s not found", name)
			}
			if schema.Err() != nil {
				t.Errorf("built-in schema %s has errors: %v", name, schema.Err())
			}
		})
	}

	if got := sr.ListSchemas(); len(got) != 3 {
		t.Errorf("ListSchemas() = %v", got)
	}
}

func TestSchemaRegistry_ValidateCatalogMetadata(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	tests := []struct {
		name     string
		metadata map[string]interface{}
		wantErr  bool
	}{
		{
			name: "full block",
			metadata: map[string]interface{}{
				"id":          "my-app:1.0",
				"itemType":    "template",
				"version":     "1.0",
				"description": "An application",
				"displayName": "My App",
				"iconUrl":     "classpath://icon.png",
				"libraries": []interface{}{
					"http://example.com/lib.jar",
					map[string]interface{}{"name": "lib", "version": "2.0", "url": "http://example.com/lib2.jar"},
				},
				"item": map[string]interface{}{
					"services": []interface{}{map[string]interface{}{"type": "server"}},
				},
			},
		},
		{
			name:     "minimal",
			metadata: map[string]interface{}{"id": "app"},
		},
		{
			name:     "unknown item type",
			metadata: map[string]interface{}{"id": "app", "itemType": "widget"},
			wantErr:  true,
		},
		{
			name:     "id with spaces",
			metadata: map[string]interface{}{"id": "my app"},
			wantErr:  true,
		},
		{
			name:     "library of wrong type",
			metadata: map[string]interface{}{"libraries": []interface{}{42}},
			wantErr:  true,
		},
		{
			name: "nested items",
			metadata: map[string]interface{}{
				"version": "2.0",
				"items": []interface{}{
					map[string]interface{}{"id": "a", "itemType": "entity"},
					map[string]interface{}{"id": "b", "itemType": "policy"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sr.ValidateCatalogMetadata(ctx, tt.metadata)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCatalogMetadata() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSchemaRegistry_ValidatePlan(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	ok := map[string]interface{}{
		"name":     "web",
		"services": []interface{}{map[string]interface{}{"type": "nginx", "name": "front"}},
	}
	if err := sr.ValidatePlan(ctx, ok); err != nil {
		t.Errorf("valid plan rejected: %v", err)
	}

	bad := map[string]interface{}{
		"services": []interface{}{map[string]interface{}{"name": "no-type"}},
	}
	if err := sr.ValidatePlan(ctx, bad); err == nil {
		t.Error("plan with untyped service accepted")
	}
}
