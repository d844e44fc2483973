package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"

	"github.com/openfroyo/blueprint/pkg/config"
	"github.com/openfroyo/blueprint/pkg/dsl"
	"github.com/openfroyo/blueprint/pkg/engine"
	"github.com/openfroyo/blueprint/pkg/plan"
	"github.com/openfroyo/blueprint/pkg/spec"
)

// DefaultManualAdditionsWait bounds how long the first manual addition waits
// for the initial load.
const DefaultManualAdditionsWait = 10 * time.Second

// Options configures a Store. Zero values get working defaults.
type Options struct {
	// Name identifies the store in errors and dumps.
	Name string

	// Source is the path of the bootstrap catalog document.
	Source string

	// SourceYAML is an inline bootstrap document, used when Source is empty.
	SourceYAML string

	// ManualAdditionsWait bounds the wait for the initial load.
	ManualAdditionsWait time.Duration

	// DSL compiles and resolves expressions in plans and metadata.
	DSL *dsl.Parser

	// Schemas validates metadata and plans; nil skips validation.
	Schemas *config.SchemaRegistry

	Platform  *plan.Platform
	Factories *spec.Factories
	Persister Persister
	Admitter  Admitter
	Observer  Observer
	Logger    zerolog.Logger
}

// Store is the catalog: a root registry loaded once from the bootstrap
// document plus a manual-additions registry created on first use.
//
// Reads never lock. Each registry publishes immutable snapshots, so a
// reader sees either the empty pre-load state or the complete loaded set.
type Store struct {
	name      string
	opts      Options
	dsl       *dsl.Parser
	parser    *plan.Parser
	schemas   *config.SchemaRegistry
	platform  *plan.Platform
	factories *spec.Factories
	logger    zerolog.Logger

	root *registry

	loadOnce sync.Once
	loadErr  error
	loaded   chan struct{}
	done     chan struct{}

	manualMu sync.Mutex
	manual   atomic.Pointer[registry]

	serializer atomic.Pointer[treeSerializer]
}

// NewStore creates an unloaded store.
func NewStore(opts Options) *Store {
	if opts.Name == "" {
		opts.Name = "catalog"
	}
	if opts.ManualAdditionsWait <= 0 {
		opts.ManualAdditionsWait = DefaultManualAdditionsWait
	}
	if opts.DSL == nil {
		opts.DSL = &dsl.Parser{}
	}
	if opts.Platform == nil {
		opts.Platform = plan.NewPlatform(opts.Logger)
	}
	if opts.Factories == nil {
		opts.Factories = spec.DefaultFactories()
	}

	return &Store{
		name:      opts.Name,
		opts:      opts,
		dsl:       opts.DSL,
		parser:    plan.NewParser(opts.DSL, opts.Schemas, opts.Logger),
		schemas:   opts.Schemas,
		platform:  opts.Platform,
		factories: opts.Factories,
		logger:    opts.Logger.With().Str("component", "catalog").Str("catalog", opts.Name).Logger(),
		root:      newRegistry(ScopeRoot, nil),
		loaded:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Name returns the store name.
func (s *Store) Name() string {
	return s.name
}

// Load parses the bootstrap document and publishes the initial item set.
// It runs once; later calls return the first result.
func (s *Store) Load(ctx context.Context) error {
	s.loadOnce.Do(func() {
		defer close(s.done)
		s.loadErr = s.load(ctx)
		if s.loadErr != nil {
			s.logger.Error().Err(s.loadErr).Msg("Catalog load failed")
		}
	})
	return s.loadErr
}

func (s *Store) load(ctx context.Context) error {
	start := time.Now()

	text, err := s.bootstrapText()
	if err != nil {
		return err
	}

	var handles []*Handle
	if text != "" {
		items, err := s.parseDocument(ctx, text)
		if err != nil {
			return fmt.Errorf("failed to parse bootstrap catalog: %w", err)
		}
		for _, item := range items {
			item.Scope = ScopeRoot
			handles = append(handles, newHandle(item, s.factories))
		}
	}

	snap, err := emptySnapshot.with(handles)
	if err != nil {
		return fmt.Errorf("failed to load bootstrap catalog: %w", err)
	}
	s.root.replace(snap)
	close(s.loaded)

	restored, err := s.restore(ctx)
	if err != nil {
		return err
	}

	s.logger.Info().
		Int("items", len(handles)).
		Int("restored", restored).
		Dur("duration", time.Since(start)).
		Msg("Catalog loaded")
	return nil
}

func (s *Store) bootstrapText() (string, error) {
	if s.opts.Source == "" {
		return s.opts.SourceYAML, nil
	}
	data, err := os.ReadFile(filepath.Clean(s.opts.Source))
	if err != nil {
		return "", engine.NewConfigurationError("failed to read catalog source", err).WithSubject(s.opts.Source)
	}
	return string(data), nil
}

// restore reloads persisted manual additions.
func (s *Store) restore(ctx context.Context) (int, error) {
	if s.opts.Persister == nil {
		return 0, nil
	}
	items, err := s.opts.Persister.LoadCatalogItems(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to restore catalog additions: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	manual, err := s.manualRegistry(ctx)
	if err != nil {
		return 0, err
	}
	handles := make([]*Handle, 0, len(items))
	for _, item := range items {
		item.Scope = ScopeManual
		handles = append(handles, newHandle(item, s.factories))
	}
	if err := manual.add(handles, nil); err != nil {
		return 0, fmt.Errorf("failed to restore catalog additions: %w", err)
	}
	return len(items), nil
}

// IsLoaded reports whether Load has completed successfully.
func (s *Store) IsLoaded() bool {
	select {
	case <-s.loaded:
		return true
	default:
		return false
	}
}

// BlockIfNotLoaded waits up to timeout for Load to finish and reports
// whether the catalog is loaded. It returns at once when already loaded or
// when loading has failed.
func (s *Store) BlockIfNotLoaded(ctx context.Context, timeout time.Duration) bool {
	if s.IsLoaded() {
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.loaded:
		return true
	case <-s.done:
		return s.IsLoaded()
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// manualRegistry returns the manual-additions registry, creating it on
// first use. Creation needs the root loaded: if it is not, wait once for
// ManualAdditionsWait, then give up.
func (s *Store) manualRegistry(ctx context.Context) (*registry, error) {
	if r := s.manual.Load(); r != nil {
		return r, nil
	}

	s.manualMu.Lock()
	defer s.manualMu.Unlock()

	if r := s.manual.Load(); r != nil {
		return r, nil
	}

	if !s.IsLoaded() {
		s.logger.Warn().
			Dur("wait", s.opts.ManualAdditionsWait).
			Msg("Catalog not yet loaded, waiting before creating manual additions")

		if !s.BlockIfNotLoaded(ctx, s.opts.ManualAdditionsWait) {
			return nil, engine.NewUnsupportedError(
				fmt.Sprintf("cannot add to %s: catalog not loaded after %s", s.name, s.opts.ManualAdditionsWait), nil)
		}
	}

	r := newRegistry(ScopeManual, s.root)
	s.manual.Store(r)
	s.logger.Debug().Msg("Created manual additions registry")
	return r, nil
}

func (s *Store) registries() []*registry {
	regs := []*registry{s.root}
	if m := s.manual.Load(); m != nil {
		regs = append(regs, m)
	}
	return regs
}

// GetHandle returns the handle of a registered item.
func (s *Store) GetHandle(id string) (*Handle, bool) {
	for _, r := range s.registries() {
		if h, ok := r.snapshot().get(id); ok {
			return h, true
		}
	}
	return nil, false
}

// GetItem returns the item with the exact id.
func (s *Store) GetItem(id string) (Item, bool) {
	h, ok := s.GetHandle(id)
	if !ok {
		return Item{}, false
	}
	return h.Item(), true
}

// GetItemOfKind returns the item with id when it is of kind k.
func (s *Store) GetItemOfKind(k spec.Type, id string) (Item, bool) {
	item, ok := s.GetItem(id)
	if !ok || item.Kind != k {
		return Item{}, false
	}
	return item, true
}

// ListItems returns the items accepted by pred, root items first. A nil
// pred matches everything.
func (s *Store) ListItems(pred Predicate) []Item {
	var out []Item
	for _, r := range s.registries() {
		r.snapshot().each(func(h *Handle) {
			item := h.Item()
			if pred == nil || pred(item) {
				out = append(out, item)
			}
		})
	}
	return out
}

// FindByTypeRef returns the first item whose legacy type or symbolic name
// is typeRef.
func (s *Store) FindByTypeRef(typeRef string) (Item, error) {
	matches := s.ListItems(func(i Item) bool {
		return i.TypeRef == typeRef || i.SymbolicName == typeRef
	})
	if len(matches) == 0 {
		return Item{}, engine.NewNotFoundError(fmt.Sprintf("no catalog item for type %s", typeRef), nil)
	}
	if len(matches) > 1 {
		s.logger.Debug().
			Str("type", typeRef).
			Int("matches", len(matches)).
			Str("using", matches[0].ID()).
			Msg("Multiple catalog items match type")
	}
	return matches[0], nil
}

// GetLatest returns the highest version of symbolicName. Versions are
// ordered as semantic versions; unparseable versions sort by string after
// every semantic version of equal standing.
func (s *Store) GetLatest(symbolicName string) (Item, bool) {
	items := s.ListItems(BySymbolicName(symbolicName))
	if len(items) == 0 {
		return Item{}, false
	}
	sort.SliceStable(items, func(i, j int) bool {
		return versionLess(items[i].Version, items[j].Version)
	})
	return items[len(items)-1], true
}

func versionLess(a, b string) bool {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	switch {
	case errA == nil && errB == nil:
		return va.LessThan(vb)
	case errA == nil:
		return false
	case errB == nil:
		return true
	default:
		return a < b
	}
}

// AddItem parses a single-item catalog document and registers it as a
// manual addition.
func (s *Store) AddItem(ctx context.Context, planYAML string) (Item, error) {
	if planYAML == "" {
		return Item{}, engine.NewInvalidArgumentError("catalog item plan text is empty", nil)
	}
	items, err := s.parseDocument(ctx, planYAML)
	if err != nil {
		return Item{}, err
	}
	if len(items) != 1 {
		return Item{}, engine.NewInvalidArgumentError(
			fmt.Sprintf("document declares %d catalog items; use AddItems", len(items)), nil)
	}
	if err := s.register(ctx, items); err != nil {
		return Item{}, err
	}
	return items[0], nil
}

// AddItems parses a catalog document and registers every item it declares.
// Either all items are registered or none.
func (s *Store) AddItems(ctx context.Context, text string) ([]Item, error) {
	if text == "" {
		return nil, engine.NewInvalidArgumentError("catalog item plan text is empty", nil)
	}

	items, err := s.parseDocument(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := s.register(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// AddType registers a bare type reference as an entity item.
func (s *Store) AddType(ctx context.Context, typeRef string) (Item, error) {
	if typeRef == "" {
		return Item{}, engine.NewInvalidArgumentError("type reference is empty", nil)
	}
	item := Item{
		SymbolicName: typeRef,
		Version:      DefaultVersion,
		Kind:         spec.TypeEntity,
		SpecType:     spec.TypeEntity,
		TypeRef:      typeRef,
		DisplayName:  typeRef,
	}
	if err := s.register(ctx, []Item{item}); err != nil {
		return Item{}, err
	}
	return item, nil
}

func (s *Store) register(ctx context.Context, items []Item) error {
	if s.opts.Admitter != nil {
		for _, item := range items {
			if err := s.opts.Admitter.Admit(ctx, item); err != nil {
				return err
			}
		}
	}

	manual, err := s.manualRegistry(ctx)
	if err != nil {
		return err
	}

	handles := make([]*Handle, len(items))
	for i := range items {
		items[i].Scope = ScopeManual
		handles[i] = newHandle(items[i], s.factories)
	}

	commit := func() error {
		if s.opts.Persister == nil {
			return nil
		}
		for _, item := range items {
			if err := s.opts.Persister.SaveCatalogItem(ctx, item); err != nil {
				return fmt.Errorf("failed to persist catalog item %s: %w", item.ID(), err)
			}
		}
		return nil
	}
	if err := manual.add(handles, commit); err != nil {
		return err
	}

	for _, item := range items {
		s.logger.Info().
			Str("item", item.ID()).
			Str("kind", string(item.Kind)).
			Msg("Added catalog item")
		if s.opts.Observer != nil {
			s.opts.Observer.ItemAdded(item.Kind)
		}
	}
	return nil
}
