// Package mgmt assembles a management context: the object that owns one
// blueprint runtime.
//
// A Context holds the external config provider registry, the task
// scheduler, the DSL parser, the plan platform, the catalog store and the
// optional SQLite store and policy engine, all built from one bootstrap
// configuration. Nothing here is process-global, so independent contexts
// (for example in tests) never share providers or catalog state.
//
// Basic usage:
//
//	boot, err := config.Load("blueprint.yaml")
//	if err != nil {
//	    return err
//	}
//	mc, err := mgmt.New(ctx, mgmt.Options{Bootstrap: boot})
//	if err != nil {
//	    return err
//	}
//	defer mc.Close(ctx)
//
//	if err := mc.LoadCatalog(ctx); err != nil {
//	    return err
//	}
//	value, err := mc.Resolve(ctx, `external("vault", "db.password")`)
package mgmt
