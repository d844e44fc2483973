// Package catalog registers, versions and looks up component blueprints and
// turns them into specs.
//
// A Store holds a root registry, loaded once from a bootstrap document, and
// a manual-additions registry created on the first AddItem. Items are
// identified by symbolicName:version. Documents look like:
//
//	catalog:
//	  id: web-server
//	  version: 1.0.0
//	  itemType: entity
//	  libraries:
//	  - https://example.com/web.tar.gz
//	  item:
//	    type: com.example.WebServer
//	    config:
//	      password: $dsl:external("vault", "web-password")
//
// CreateSpec either drives the stored plan through a plan.Platform or, for
// items that only name a type, calls the spec.Factories entry for the
// item's spec type.
package catalog
