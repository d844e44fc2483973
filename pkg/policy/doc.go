// Package policy provides Open Policy Agent (OPA) admission checks for the
// catalog.
//
// Policies are Rego modules whose package defines a deny set. Each entry is
// either a message string or an object with message and severity. Error and
// critical entries reject the item; others are logged as warnings.
//
// # Components
//
//  1. Engine - compiles policies and evaluates them against catalog items
//  2. Loader - reads .rego and .json policies from files and directories
//  3. Built-in policies - naming, library source, snapshot versions, services
//
// # Usage
//
//	eng, err := policy.NewEngine(ctx, logger, true)
//	if err != nil {
//	    return err
//	}
//	store := catalog.NewStore(catalog.Options{Admitter: eng})
//
// The input document seen by policies:
//
//	{
//	  "item": {"id": "web:1.0", "symbolic_name": "web", "version": "1.0",
//	           "kind": "entity", "libraries": [{"url": "https://..."}]},
//	  "plan": {"services": [{"type": "com.example.Web"}]},
//	  "context": {"operation": "add", "timestamp": "..."}
//	}
//
// A custom policy:
//
//	package custom.owners
//
//	import rego.v1
//
//	deny contains "items need a description" if {
//	    input.item.description == ""
//	}
package policy
