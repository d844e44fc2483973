// Package config loads the blueprint bootstrap configuration and validates
// catalog documents.
//
// # Bootstrap
//
// Load reads a YAML file with viper into typed Settings and a flat
// Properties view. Settings are checked with validator struct tags;
// environment variables prefixed with BLUEPRINT_ override file values.
// Properties carry the external config provider declarations:
//
//	external.myprovider: inplace
//	external.myprovider.mykey: myval
//
// # Schemas
//
// SchemaRegistry holds CUE schemas. The built-in catalog schema checks the
// catalog metadata block of a blueprint document before it is registered:
//
//	sr := config.NewSchemaRegistry()
//	if err := sr.ValidateCatalogMetadata(ctx, block); err != nil {
//	    return err
//	}
package config
