package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Built-in schema names.
const (
	SchemaCatalogMetadata = "catalog"
	SchemaLibrary         = "library"
	SchemaPlan            = "plan"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	ctx := cuecontext.New()
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	// Register built-in schemas
	sr.registerBuiltInSchemas()

	return sr
}

// registerBuiltInSchemas registers all built-in schemas.
func (sr *SchemaRegistry) registerBuiltInSchemas() {
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(sr.RegisterSchema(SchemaCatalogMetadata, builtinSchemas, "#CatalogMetadata"))
	must(sr.RegisterSchema(SchemaLibrary, builtinSchemas, "#Library"))
	must(sr.RegisterSchema(SchemaPlan, builtinSchemas, "#Plan"))
}

// RegisterSchema compiles source and registers the definition at path under
// name. An empty path registers the whole value.
func (sr *SchemaRegistry) RegisterSchema(name, source, path string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(source)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	if path != "" {
		val = val.LookupPath(cue.ParsePath(path))
		if err := val.Err(); err != nil {
			return fmt.Errorf("schema %s has no definition %s: %w", name, path, err)
		}
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	// cue.Context is not safe for concurrent use.
	sr.mu.Lock()
	defer sr.mu.Unlock()

	// Convert data to CUE value
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	// Unify with schema (validates)
	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateCatalogMetadata validates a decoded catalog metadata block.
func (sr *SchemaRegistry) ValidateCatalogMetadata(ctx context.Context, metadata map[string]interface{}) error {
	return sr.ValidateAgainstSchema(ctx, SchemaCatalogMetadata, metadata)
}

// ValidatePlan validates a decoded plan document.
func (sr *SchemaRegistry) ValidatePlan(ctx context.Context, plan map[string]interface{}) error {
	return sr.ValidateAgainstSchema(ctx, SchemaPlan, plan)
}

// Built-in schema definitions

const builtinSchemas = `
// Library is a bundle a catalog item depends on, given as a URL or a map.
#Library: string | {
	name?:    string & !=""
	version?: string & !=""
	url?:     string & !=""
	...
}

#ItemType: "template" | "entity" | "policy" | "configuration"

// CatalogMetadata is the catalog block of a blueprint document.
#CatalogMetadata: {
	// id is the symbolic name, optionally suffixed with :version
	id?: string & =~"^[A-Za-z0-9._-]+(:[A-Za-z0-9._+-]+)?$"

	name?:         string & !=""
	symbolicName?: string & !=""
	itemType?:     #ItemType
	version?:      string & =~"^[A-Za-z0-9._+-]+$"
	description?:  string
	displayName?:  string
	iconUrl?:      string
	libraries?: [...#Library]

	// item holds the plan of this entry
	item?: _

	// items declares several entries in one document
	items?: [...#CatalogMetadata]
	...
}

// Plan is a blueprint plan document.
#Plan: {
	name?: string
	services?: [...{
		type: string & !=""
		name?: string
		...
	}]
	...
}
`
