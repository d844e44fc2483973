package catalog

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/blueprint/pkg/dsl"
	"github.com/openfroyo/blueprint/pkg/engine"
	"github.com/openfroyo/blueprint/pkg/plan"
	"github.com/openfroyo/blueprint/pkg/spec"
)

// MetadataKey is the top-level key of the catalog metadata block.
const MetadataKey = "catalog"

// metadata fields that are copied from a parent block into its items.
var inheritedFields = []string{"version", "itemType", "description", "displayName", "iconUrl", "libraries"}

// scalar metadata fields that may hold DSL expressions.
var scalarFields = []string{"id", "symbolicName", "name", "version", "itemType", "description", "displayName", "iconUrl"}

// parseDocument turns a catalog document into unregistered items.
func (s *Store) parseDocument(ctx context.Context, text string) ([]Item, error) {
	root, err := decodeDocument(text)
	if err != nil {
		return nil, err
	}

	meta := map[string]interface{}{}
	source := text
	if raw, ok := root[MetadataKey]; ok {
		source = ""
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil, engine.NewInvalidArgumentError(
				fmt.Sprintf("%s block must be a map, got %T", MetadataKey, raw), nil)
		}
		meta = m
	}

	body := make(map[string]interface{}, len(root))
	for k, v := range root {
		if k != MetadataKey {
			body[k] = v
		}
	}

	rawItems, hasItems := meta["items"]
	if !hasItems {
		item, err := s.parseEntry(ctx, meta, body, source)
		if err != nil {
			return nil, err
		}
		return []Item{item}, nil
	}

	list, ok := rawItems.([]interface{})
	if !ok {
		return nil, engine.NewInvalidArgumentError("catalog items must be a list", nil)
	}

	items := make([]Item, 0, len(list))
	for i, raw := range list {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			return nil, engine.NewInvalidArgumentError(fmt.Sprintf("catalog items[%d] must be a map", i), nil)
		}
		merged := make(map[string]interface{}, len(entry)+len(inheritedFields))
		for _, field := range inheritedFields {
			if v, ok := meta[field]; ok {
				merged[field] = v
			}
		}
		for k, v := range entry {
			merged[k] = v
		}

		item, err := s.parseEntry(ctx, merged, nil, "")
		if err != nil {
			return nil, fmt.Errorf("catalog items[%d]: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// decodeDocument decodes a catalog document. Numeric scalars in the
// metadata block and its items keep their literal text, so version 1.10
// stays "1.10" instead of collapsing to 1.1.
func decodeDocument(text string) (map[string]interface{}, error) {
	if strings.TrimSpace(text) == "" {
		return nil, engine.NewInvalidArgumentError("catalog document is empty", nil)
	}

	var node yaml.Node
	if err := yaml.Unmarshal([]byte(text), &node); err != nil {
		return nil, engine.NewInvalidArgumentError("catalog document is not valid YAML", err)
	}
	if len(node.Content) == 1 {
		if meta := mappingValue(node.Content[0], MetadataKey); meta != nil {
			keepLiteralScalars(meta)
			if items := mappingValue(meta, "items"); items != nil && items.Kind == yaml.SequenceNode {
				for _, entry := range items.Content {
					keepLiteralScalars(entry)
				}
			}
		}
	}

	var doc interface{}
	if err := node.Decode(&doc); err != nil {
		return nil, engine.NewInvalidArgumentError("catalog document is not valid YAML", err)
	}
	root, ok := doc.(map[string]interface{})
	if !ok {
		return nil, engine.NewInvalidArgumentError(fmt.Sprintf("catalog document must be a YAML map, got %T", doc), nil)
	}
	return root, nil
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

// keepLiteralScalars retags int and float scalar fields of mapping n as
// strings.
func keepLiteralScalars(n *yaml.Node) {
	if n.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if v.Kind != yaml.ScalarNode || !slices.Contains(scalarFields, k.Value) {
			continue
		}
		if tag := v.ShortTag(); tag == "!!int" || tag == "!!float" {
			v.Tag = "!!str"
		}
	}
}

// parseEntry builds one item from its metadata block. body is the rest of
// the document, used as the plan when meta has no item block; source is the
// original text, non-empty when the document has no metadata block and is
// kept verbatim as the plan.
func (s *Store) parseEntry(ctx context.Context, meta, body map[string]interface{}, source string) (Item, error) {
	meta, err := s.resolveMetadata(meta)
	if err != nil {
		return Item{}, err
	}

	if s.schemas != nil {
		if err := s.schemas.ValidateCatalogMetadata(ctx, meta); err != nil {
			return Item{}, engine.NewInvalidArgumentError("catalog metadata does not match schema", err)
		}
	}

	item := Item{
		Description: stringField(meta, "description"),
		IconURL:     stringField(meta, "iconUrl"),
		DisplayName: stringField(meta, "displayName"),
	}

	libs, err := parseLibraries(meta["libraries"])
	if err != nil {
		return Item{}, err
	}
	item.Libraries = libs

	var parsed *plan.Plan
	switch raw := meta["item"].(type) {
	case nil:
		if len(body) == 0 {
			return Item{}, engine.NewInvalidArgumentError("catalog entry has no plan", nil)
		}
		if source != "" {
			item.PlanYAML = source
		} else {
			item.PlanYAML, err = marshalPlan(body)
		}
	case string:
		item.TypeRef = raw
	case map[string]interface{}:
		doc := raw
		if _, ok := doc["services"]; !ok {
			if _, ok := doc["type"]; ok {
				doc = map[string]interface{}{"services": []interface{}{raw}}
			}
		}
		item.PlanYAML, err = marshalPlan(doc)
	default:
		return Item{}, engine.NewInvalidArgumentError(fmt.Sprintf("catalog item block must be a map or a type, got %T", raw), nil)
	}
	if err != nil {
		return Item{}, err
	}

	if item.PlanYAML != "" {
		parsed, err = s.parser.Parse(ctx, item.PlanYAML)
		if err != nil {
			return Item{}, err
		}
	}

	item.SymbolicName, item.Version, err = identity(meta, parsed, item.TypeRef)
	if err != nil {
		return Item{}, err
	}

	item.Kind = spec.Type(stringField(meta, "itemType"))
	if item.Kind == "" {
		item.Kind = inferKind(parsed)
	}
	item.SpecType = item.Kind

	if item.DisplayName == "" {
		item.DisplayName = stringField(meta, "name")
	}
	if item.DisplayName == "" && parsed != nil {
		item.DisplayName = parsed.Name()
	}

	if err := validateItem(item); err != nil {
		return Item{}, engine.NewInvalidArgumentError(err.Error(), err)
	}
	return item, nil
}

// identity derives symbolic name and version: the metadata id (which may
// carry :version), then symbolicName or name, then the plan name, then the
// type of the plan's only service.
func identity(meta map[string]interface{}, p *plan.Plan, typeRef string) (string, string, error) {
	name, version := SplitID(stringField(meta, "id"))

	if name == "" {
		name = stringField(meta, "symbolicName")
	}
	if name == "" {
		name = stringField(meta, "name")
	}
	if name == "" && p != nil {
		name = p.Name()
	}
	if name == "" && p != nil {
		if services := p.Services(); len(services) == 1 {
			name = services[0].Type
		}
	}
	if name == "" {
		name = typeRef
	}
	if name == "" {
		return "", "", engine.NewInvalidArgumentError(
			"catalog entry must declare an id, a name, or a plan with a single service", nil)
	}

	if declared := stringField(meta, "version"); declared != "" {
		if version != "" && version != declared {
			return "", "", engine.NewInvalidArgumentError(
				fmt.Sprintf("catalog id version %s does not match declared version %s", version, declared), nil)
		}
		version = declared
	}
	if version == "" {
		version = DefaultVersion
	}
	return name, version, nil
}

func inferKind(p *plan.Plan) spec.Type {
	if p == nil {
		return spec.TypeEntity
	}
	if _, ok := p.CustomAttribute(plan.PoliciesAttribute); ok && len(p.Services()) == 0 {
		return spec.TypePolicy
	}
	if len(p.Services()) == 1 {
		return spec.TypeEntity
	}
	return spec.TypeTemplate
}

// resolveMetadata returns a copy of meta with scalar fields normalized to
// strings and DSL expressions resolved. Metadata must be available at
// registration, so only the immediate path is tried.
func (s *Store) resolveMetadata(meta map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		out[k] = v
	}

	for _, field := range scalarFields {
		raw, ok := out[field]
		if !ok || raw == nil {
			continue
		}
		v, err := s.resolveScalar(field, raw)
		if err != nil {
			return nil, err
		}
		out[field] = v
	}
	return out, nil
}

func (s *Store) resolveScalar(field string, raw interface{}) (string, error) {
	str, ok := raw.(string)
	if !ok {
		return scalarString(raw), nil
	}
	if !dsl.IsExpression(str) {
		return str, nil
	}

	compiled, err := s.dsl.Compile(str)
	if err != nil {
		return "", fmt.Errorf("catalog %s: %w", field, err)
	}
	d, ok := compiled.(engine.Deferred)
	if !ok {
		return scalarString(compiled), nil
	}

	m, err := d.Immediately()
	if err != nil {
		return "", fmt.Errorf("catalog %s: %w", field, err)
	}
	if !m.IsPresent() {
		return "", engine.NewInvalidArgumentError(
			fmt.Sprintf("catalog %s %s is not available at registration: %s", field, d, m.Reason()), nil)
	}
	if m.IsNull() {
		return "", engine.NewInvalidArgumentError(fmt.Sprintf("catalog %s %s evaluates to null", field, d), nil)
	}
	return scalarString(m.Get()), nil
}

func scalarString(v interface{}) string {
	switch typed := v.(type) {
	case string:
		return typed
	case int:
		return strconv.Itoa(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	default:
		return fmt.Sprint(typed)
	}
}

func stringField(meta map[string]interface{}, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	return scalarString(v)
}

func parseLibraries(raw interface{}) ([]Library, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, engine.NewInvalidArgumentError("catalog libraries must be a list", nil)
	}

	libs := make([]Library, 0, len(list))
	for i, entry := range list {
		switch typed := entry.(type) {
		case string:
			libs = append(libs, Library{URL: typed})
		case map[string]interface{}:
			libs = append(libs, Library{
				Name:    stringField(typed, "name"),
				Version: stringField(typed, "version"),
				URL:     stringField(typed, "url"),
			})
		default:
			return nil, engine.NewInvalidArgumentError(
				fmt.Sprintf("catalog libraries[%d] must be a URL or a map", i), nil)
		}
	}
	return libs, nil
}

func marshalPlan(doc map[string]interface{}) (string, error) {
	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", engine.NewInvalidArgumentError("failed to encode plan", err)
	}
	return string(out), nil
}
