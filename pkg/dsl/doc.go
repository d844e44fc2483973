// Package dsl implements the deferred-expression language embedded in
// blueprint plans.
//
// A YAML string scalar prefixed with "$dsl:" is compiled into a tree of
// deferred values:
//
//	$dsl:external("vault", "db-password")
//	$dsl:external("vault", "region").toUpperCase()
//
// External looks a key up in a named external config provider. FunctionCall
// chains a function on the eventual value of another expression and is
// dispatched through a FunctionTable keyed by function name and arity.
//
// Both implement engine.Deferred: Immediately answers from state that is
// already available and never blocks, while NewTask returns a transient
// task for the scheduler. Equal and Hash compare trees structurally so
// expressions parsed from different documents deduplicate.
package dsl
