package stores

import (
	"context"
	"database/sql"
	"time"

	"github.com/openfroyo/blueprint/pkg/catalog"
	"github.com/openfroyo/blueprint/pkg/engine"
)

// AuditAction names an audited operation.
type AuditAction string

const (
	AuditCatalogItemSaved   AuditAction = "catalog.item.saved"
	AuditCatalogItemDeleted AuditAction = "catalog.item.deleted"
	AuditTaskHistoryPruned  AuditAction = "task.history.pruned"
)

// AuditEntry represents an audit trail entry
type AuditEntry struct {
	ID        int64       `json:"id"`
	Action    AuditAction `json:"action"`
	Actor     string      `json:"actor"`
	TargetID  *string     `json:"target_id,omitempty"` // item id, task id, ...
	Details   *string     `json:"details,omitempty"`   // JSON blob
	Timestamp time.Time   `json:"timestamp"`
}

// TaskFilter narrows ListTaskRecords.
type TaskFilter struct {
	Status      *engine.TaskStatus
	DisplayName *string
	Limit       int
	Offset      int
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Catalog additions
	SaveCatalogItem(ctx context.Context, item catalog.Item) error
	GetCatalogItem(ctx context.Context, id string) (*catalog.Item, error)
	LoadCatalogItems(ctx context.Context) ([]catalog.Item, error)
	DeleteCatalogItem(ctx context.Context, id string) error

	// Task history
	RecordTask(ctx context.Context, record engine.TaskRecord) error
	GetTaskRecord(ctx context.Context, id string) (*engine.TaskRecord, error)
	ListTaskRecords(ctx context.Context, filter TaskFilter) ([]*engine.TaskRecord, error)
	PruneTaskHistory(ctx context.Context, before time.Time) (int64, error)

	// Audit operations
	ListAuditEntries(ctx context.Context, action *AuditAction, limit, offset int) ([]*AuditEntry, error)

	// Utility
	HealthCheck(ctx context.Context) error
}

var (
	_ Store               = (*SQLiteStore)(nil)
	_ catalog.Persister   = (*SQLiteStore)(nil)
	_ engine.HistoryStore = (*SQLiteStore)(nil)
)
