// Package stores provides the SQLite persistence layer for blueprint.
// It keeps catalog items added at runtime, the history of non-transient
// scheduler tasks and an append-only audit trail. Schema changes are
// applied with embedded golang-migrate migrations.
package stores
