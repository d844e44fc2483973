// Package external implements the registry of external config providers.
//
// Providers are declared in the bootstrap properties and built eagerly when
// the management context starts:
//
//	external.vault = file
//	external.vault.path = /etc/blueprint/secrets.yaml
//	external.vault.cache.ttl = 30s
//	external.env = env
//	external.env.prefix = APP_
//
// A provider type maps to a constructor with one of two shapes, see
// ConstructorWithConfig and Constructor. Plans reference provider values
// with $dsl:external("vault", "db-password").
package external
