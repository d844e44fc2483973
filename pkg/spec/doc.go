// Package spec defines the specs produced from catalog items: blueprints the
// entity layer uses to instantiate managed components.
//
// The concrete type follows the catalog item's spec type: EntitySpec,
// TemplateSpec, PolicySpec or ConfigurationSpec. Config values may still be
// deferred expressions; ResolveConfig drives them to concrete values.
package spec
