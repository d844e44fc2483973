package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/blueprint/pkg/spec"
)

// DefaultVersion is the version of items that do not declare one.
const DefaultVersion = "0.0.0-SNAPSHOT"

// Scope names.
const (
	ScopeRoot   = "root"
	ScopeManual = "manual"
)

// Library is a bundle a catalog item depends on.
type Library struct {
	Name    string `json:"name,omitempty" yaml:"name,omitempty" validate:"required_without=URL"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	URL     string `json:"url,omitempty" yaml:"url,omitempty" validate:"omitempty,url"`
}

// String renders the library as name:version or its URL.
func (l Library) String() string {
	if l.Name == "" {
		return l.URL
	}
	if l.Version == "" {
		return l.Name
	}
	return l.Name + ":" + l.Version
}

// Item is a registered, versioned component blueprint. Items are values;
// the store hands out copies.
type Item struct {
	SymbolicName string    `json:"symbolic_name" yaml:"symbolicName"`
	Version      string    `json:"version" yaml:"version"`
	Kind         spec.Type `json:"kind" yaml:"kind"`
	SpecType     spec.Type `json:"spec_type" yaml:"specType"`
	PlanYAML     string    `json:"plan,omitempty" yaml:"plan,omitempty"`
	TypeRef      string    `json:"type_ref,omitempty" yaml:"typeRef,omitempty"`
	DisplayName  string    `json:"display_name,omitempty" yaml:"displayName,omitempty"`
	Description  string    `json:"description,omitempty" yaml:"description,omitempty"`
	IconURL      string    `json:"icon_url,omitempty" yaml:"iconUrl,omitempty"`
	Libraries    []Library `json:"libraries,omitempty" yaml:"libraries,omitempty" validate:"dive"`
	Scope        string    `json:"scope,omitempty" yaml:"scope,omitempty"`
}

// ID returns symbolicName:version.
func (i Item) ID() string {
	return ItemID(i.SymbolicName, i.Version)
}

// IsPlanBased reports whether the item carries plan text.
func (i Item) IsPlanBased() bool {
	return i.PlanYAML != ""
}

func (i Item) clone() Item {
	if i.Libraries != nil {
		libs := make([]Library, len(i.Libraries))
		copy(libs, i.Libraries)
		i.Libraries = libs
	}
	return i
}

// ItemID joins a symbolic name and version into an item id.
func ItemID(symbolicName, version string) string {
	if version == "" {
		version = DefaultVersion
	}
	return symbolicName + ":" + version
}

// SplitID splits an id into symbolic name and version. The version is empty
// when id has none.
func SplitID(id string) (string, string) {
	if i := strings.LastIndex(id, ":"); i > 0 {
		return id[:i], id[i+1:]
	}
	return id, ""
}

var validate = validator.New()

func validateItem(item Item) error {
	if item.SymbolicName == "" {
		return fmt.Errorf("catalog item has no symbolic name")
	}
	if !item.Kind.IsValid() {
		return fmt.Errorf("catalog item %s has unknown kind %q", item.ID(), item.Kind)
	}
	if item.PlanYAML == "" && item.TypeRef == "" {
		return fmt.Errorf("catalog item %s has neither a plan nor a type", item.ID())
	}
	if err := validate.Struct(item); err != nil {
		return fmt.Errorf("catalog item %s: %w", item.ID(), err)
	}
	return nil
}

// Handle binds an item to the registry scope it was loaded into. The spec
// type and legacy factory are computed on first use and cached.
type Handle struct {
	item      Item
	factories *spec.Factories

	once     sync.Once
	specType spec.Type
	factory  spec.Factory
}

func newHandle(item Item, factories *spec.Factories) *Handle {
	return &Handle{item: item.clone(), factories: factories}
}

// Item returns a copy of the bound item.
func (h *Handle) Item() Item {
	return h.item.clone()
}

// SpecType returns the spec type the item produces.
func (h *Handle) SpecType() spec.Type {
	h.resolve()
	return h.specType
}

// Factory returns the legacy factory for the item's spec type, if any.
func (h *Handle) Factory() (spec.Factory, bool) {
	h.resolve()
	return h.factory, h.factory != nil
}

func (h *Handle) resolve() {
	h.once.Do(func() {
		h.specType = h.item.SpecType
		if h.specType == "" {
			h.specType = h.item.Kind
		}
		if h.factories != nil {
			if f, ok := h.factories.Lookup(h.specType); ok {
				h.factory = f
			}
		}
	})
}

// Persister stores manual additions so they survive restarts.
type Persister interface {
	SaveCatalogItem(ctx context.Context, item Item) error
	LoadCatalogItems(ctx context.Context) ([]Item, error)
}

// Admitter decides whether an item may be registered.
type Admitter interface {
	Admit(ctx context.Context, item Item) error
}

// Observer receives catalog events, typically for metrics.
type Observer interface {
	ItemAdded(kind spec.Type)
	SpecCreated(kind spec.Type, strategy string, err error)
}

// Predicate filters items in ListItems.
type Predicate func(Item) bool

// ByKind matches items of kind k.
func ByKind(k spec.Type) Predicate {
	return func(i Item) bool { return i.Kind == k }
}

// BySymbolicName matches items with the given symbolic name.
func BySymbolicName(name string) Predicate {
	return func(i Item) bool { return i.SymbolicName == name }
}

// ByTypeRef matches items whose legacy type is typeRef.
func ByTypeRef(typeRef string) Predicate {
	return func(i Item) bool { return i.TypeRef == typeRef }
}

// And matches items accepted by every predicate.
func And(preds ...Predicate) Predicate {
	return func(i Item) bool {
		for _, p := range preds {
			if p != nil && !p(i) {
				return false
			}
		}
		return true
	}
}
