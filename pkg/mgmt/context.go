package mgmt

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/openfroyo/blueprint/pkg/catalog"
	"github.com/openfroyo/blueprint/pkg/config"
	"github.com/openfroyo/blueprint/pkg/dsl"
	"github.com/openfroyo/blueprint/pkg/engine"
	"github.com/openfroyo/blueprint/pkg/plan"
	"github.com/openfroyo/blueprint/pkg/policy"
	"github.com/openfroyo/blueprint/pkg/providers/external"
	"github.com/openfroyo/blueprint/pkg/spec"
	"github.com/openfroyo/blueprint/pkg/stores"
	"github.com/openfroyo/blueprint/pkg/telemetry"
)

// Telemetry is wired into every component as its observer.
var (
	_ catalog.Observer        = (*telemetry.Telemetry)(nil)
	_ external.LookupObserver = (*telemetry.Telemetry)(nil)
	_ engine.TaskObserver     = (*telemetry.Telemetry)(nil)
	_ external.Context        = (*Context)(nil)
)

// Options configures New. Only Bootstrap is commonly set.
type Options struct {
	// Bootstrap is the loaded configuration; nil means defaults.
	Bootstrap *config.Bootstrap

	// Telemetry is used instead of one built from the settings. The caller
	// keeps ownership and shuts it down.
	Telemetry *telemetry.Telemetry

	// ProviderFactories builds the external config providers; nil means
	// external.DefaultFactories.
	ProviderFactories *external.Factories

	// SpecFactories builds specs for legacy type references; nil means
	// spec.DefaultFactories.
	SpecFactories *spec.Factories

	// Functions is the DSL function table; nil means the built-ins.
	Functions *dsl.FunctionTable
}

// Context is a management context. It is safe for concurrent use once New
// returns.
type Context struct {
	settings   config.Settings
	properties config.Properties
	logger     zerolog.Logger

	telemetry    *telemetry.Telemetry
	ownTelemetry bool

	registry  *external.Registry
	scheduler *engine.TaskScheduler
	parser    *dsl.Parser
	schemas   *config.SchemaRegistry
	platform  *plan.Platform
	policies  *policy.Engine
	store     *stores.SQLiteStore
	catalog   *catalog.Store
}

// New builds a management context. Providers are constructed eagerly, so a
// bad provider declaration fails here with a configuration error. The
// catalog is created but not loaded; call LoadCatalog.
func New(ctx context.Context, opts Options) (mc *Context, err error) {
	boot := opts.Bootstrap
	if boot == nil {
		if boot, err = config.FromMap(nil); err != nil {
			return nil, err
		}
	}

	mc = &Context{
		settings:   boot.Settings,
		properties: boot.Properties,
		telemetry:  opts.Telemetry,
	}
	if mc.telemetry == nil {
		mc.telemetry, err = telemetry.NewTelemetry(telemetry.FromSettings(boot.Settings.Telemetry))
		if err != nil {
			return nil, err
		}
		mc.ownTelemetry = true
	}
	mc.logger = mc.telemetry.Logger.Zerolog()

	defer func() {
		if err != nil {
			_ = mc.Close(context.WithoutCancel(ctx))
			mc = nil
		}
	}()

	mc.registry = external.NewRegistry(mc.logger)
	mc.registry.SetObserver(mc.telemetry)

	factories := opts.ProviderFactories
	if factories == nil {
		factories = external.DefaultFactories()
	}
	if err = factories.BuildFromProperties(mc, mc.properties, mc.registry); err != nil {
		return nil, err
	}

	schedOpts := []engine.SchedulerOption{engine.WithObserver(mc.telemetry)}
	if mc.settings.Database.Enabled {
		if mc.store, err = mc.openStore(ctx); err != nil {
			return nil, err
		}
		schedOpts = append(schedOpts, engine.WithHistory(mc.store))
	}
	mc.scheduler = engine.NewTaskScheduler(mc.settings.Scheduler.MaxParallel, mc.logger, schedOpts...)

	mc.parser = dsl.NewParser(mc.registry, opts.Functions)
	if mc.settings.Catalog.ValidateMetadata {
		mc.schemas = config.NewSchemaRegistry()
	}
	mc.platform = plan.NewPlatform(mc.logger)

	catalogOpts := catalog.Options{
		Source:              mc.path(mc.settings.Catalog.Source),
		ManualAdditionsWait: mc.settings.Catalog.ManualAdditionsWait,
		DSL:                 mc.parser,
		Schemas:             mc.schemas,
		Platform:            mc.platform,
		Factories:           opts.SpecFactories,
		Observer:            mc.telemetry,
		Logger:              mc.logger,
	}
	if mc.store != nil {
		catalogOpts.Persister = mc.store
	}
	if mc.settings.Policy.Enabled {
		if mc.policies, err = mc.openPolicies(ctx); err != nil {
			return nil, err
		}
		catalogOpts.Admitter = &admitter{policies: mc.policies, events: mc.telemetry.Events}
	}
	mc.catalog = catalog.NewStore(catalogOpts)

	mc.logger.Info().
		Strs("providers", mc.registry.Names()).
		Int("max_parallel", mc.settings.Scheduler.MaxParallel).
		Bool("persistence", mc.store != nil).
		Bool("policies", mc.policies != nil).
		Msg("Management context ready")
	return mc, nil
}

func (mc *Context) openStore(ctx context.Context) (*stores.SQLiteStore, error) {
	path := mc.settings.Database.Path
	if path != stores.MemoryPath {
		path = mc.path(path)
	}
	store, err := stores.NewSQLiteStore(stores.Config{
		Path:        path,
		WALMode:     mc.settings.Database.WALMode,
		BusyTimeout: mc.settings.Database.BusyTimeout,
	})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func (mc *Context) openPolicies(ctx context.Context) (*policy.Engine, error) {
	eng, err := policy.NewEngine(ctx, mc.logger, mc.settings.Policy.Builtin)
	if err != nil {
		return nil, err
	}
	if len(mc.settings.Policy.Paths) > 0 {
		paths := make([]string, len(mc.settings.Policy.Paths))
		for i, p := range mc.settings.Policy.Paths {
			paths[i] = mc.path(p)
		}
		if err := eng.LoadPolicies(ctx, paths); err != nil {
			return nil, err
		}
	}
	return eng, nil
}

// path resolves p against the home directory.
func (mc *Context) path(p string) string {
	if p == "" || filepath.IsAbs(p) || mc.settings.Home == "" {
		return p
	}
	return filepath.Join(mc.settings.Home, p)
}

// Logger implements external.Context.
func (mc *Context) Logger() zerolog.Logger {
	return mc.logger
}

// Property implements external.Context.
func (mc *Context) Property(key string) (string, bool) {
	return mc.properties.Get(key)
}

// Settings returns the typed bootstrap settings.
func (mc *Context) Settings() config.Settings {
	return mc.settings
}

// Registry returns the external config provider registry.
func (mc *Context) Registry() *external.Registry {
	return mc.registry
}

// Scheduler returns the task scheduler.
func (mc *Context) Scheduler() *engine.TaskScheduler {
	return mc.scheduler
}

// Parser returns the DSL parser bound to the provider registry.
func (mc *Context) Parser() *dsl.Parser {
	return mc.parser
}

// Catalog returns the catalog store.
func (mc *Context) Catalog() *catalog.Store {
	return mc.catalog
}

// Platform returns the plan platform holding assembly templates.
func (mc *Context) Platform() *plan.Platform {
	return mc.platform
}

// Policies returns the policy engine, or nil when policies are disabled.
func (mc *Context) Policies() *policy.Engine {
	return mc.policies
}

// Store returns the SQLite store, or nil when persistence is disabled.
func (mc *Context) Store() *stores.SQLiteStore {
	return mc.store
}

// Telemetry returns the telemetry instance.
func (mc *Context) Telemetry() *telemetry.Telemetry {
	return mc.telemetry
}

// LoadCatalog loads the bootstrap catalog and restores persisted additions.
func (mc *Context) LoadCatalog(ctx context.Context) error {
	return mc.catalog.Load(mc.telemetry.WithContext(ctx))
}

// Resolve parses a DSL expression and resolves it, and every deferred
// value inside its result, through the scheduler.
func (mc *Context) Resolve(ctx context.Context, expr string) (value interface{}, err error) {
	ctx, span := mc.telemetry.Tracer.StartResolveSpan(mc.telemetry.WithContext(ctx), expr)
	defer func() {
		if err != nil {
			telemetry.RecordError(span, err)
			mc.telemetry.Metrics.RecordError(err)
		} else {
			telemetry.RecordSuccess(span)
		}
		span.End()
	}()

	compiled, err := mc.parser.Parse(expr)
	if err != nil {
		return nil, err
	}
	return engine.ResolveDeep(ctx, mc.scheduler, compiled)
}

// CreateSpec creates the spec of catalog item id and resolves its config.
func (mc *Context) CreateSpec(ctx context.Context, id string) (spec.Spec, map[string]interface{}, error) {
	op := telemetry.StartOperation(mc.telemetry.WithContext(ctx), "mgmt.create_spec", telemetry.AttrItemID.String(id))

	s, cfg, err := mc.createSpec(op.Ctx, id)
	op.End(err)
	return s, cfg, err
}

func (mc *Context) createSpec(ctx context.Context, id string) (spec.Spec, map[string]interface{}, error) {
	item, ok := mc.catalog.GetItem(id)
	if !ok {
		return nil, nil, engine.NewNotFoundError(fmt.Sprintf("no catalog item %s", id), nil).WithSubject(id)
	}
	s, err := mc.catalog.CreateSpec(ctx, item)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := spec.ResolveConfig(ctx, mc.scheduler, s)
	if err != nil {
		return nil, nil, err
	}
	return s, cfg, nil
}

// Close releases providers and the database, and shuts down telemetry it
// created.
func (mc *Context) Close(ctx context.Context) error {
	var errs []error
	if mc.registry != nil {
		errs = append(errs, mc.registry.Close())
	}
	if mc.store != nil {
		errs = append(errs, mc.store.Close())
	}
	if mc.ownTelemetry && mc.telemetry != nil {
		errs = append(errs, mc.telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
