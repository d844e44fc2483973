package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/openfroyo/blueprint/pkg/catalog"
	"github.com/openfroyo/blueprint/pkg/engine"
	"github.com/openfroyo/blueprint/pkg/spec"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// systemActor is recorded in audit entries written by the store itself.
const systemActor = "system"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	WALMode         bool
	BusyTimeout     int // milliseconds
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, engine.NewInvalidArgumentError("database path is required", nil)
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5000
	}

	// Every connection to :memory: is a separate database.
	if cfg.Path == MemoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
		cfg.WALMode = false
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// dsn builds a modernc.org/sqlite connection string.
func (c Config) dsn() string {
	params := []string{
		"_pragma=foreign_keys(1)",
		fmt.Sprintf("_pragma=busy_timeout(%d)", c.BusyTimeout),
		"_pragma=synchronous(NORMAL)",
		"_time_format=sqlite",
		"_txlock=immediate",
	}
	if c.WALMode {
		params = append(params, "_pragma=journal_mode(WAL)")
	}
	return c.Path + "?" + strings.Join(params, "&")
}

// Init opens the database connection and configures the pool.
func (s *SQLiteStore) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.cfg.dsn())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return engine.NewIllegalStateError("database not initialized", nil)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CommitTx commits a transaction
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// SaveCatalogItem stores a catalog item and audits the write in one
// transaction. Saving an existing id replaces it.
func (s *SQLiteStore) SaveCatalogItem(ctx context.Context, item catalog.Item) error {
	libraries, err := json.Marshal(nonNilLibraries(item.Libraries))
	if err != nil {
		return fmt.Errorf("failed to encode libraries: %w", err)
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	query := `
		INSERT INTO catalog_items (
			id, symbolic_name, version, kind, spec_type, plan, type_ref,
			display_name, description, icon_url, libraries, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			spec_type = excluded.spec_type,
			plan = excluded.plan,
			type_ref = excluded.type_ref,
			display_name = excluded.display_name,
			description = excluded.description,
			icon_url = excluded.icon_url,
			libraries = excluded.libraries,
			updated_at = excluded.updated_at
	`

	_, err = tx.ExecContext(ctx, query,
		item.ID(),
		item.SymbolicName,
		versionOrDefault(item.Version),
		string(item.Kind),
		string(item.SpecType),
		nullString(item.PlanYAML),
		nullString(item.TypeRef),
		nullString(item.DisplayName),
		nullString(item.Description),
		nullString(item.IconURL),
		string(libraries),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to save catalog item: %w", err)
	}

	id := item.ID()
	details := fmt.Sprintf(`{"kind":%q}`, item.Kind)
	if err := insertAudit(ctx, tx, AuditCatalogItemSaved, &id, &details); err != nil {
		return err
	}

	return tx.Commit()
}

// GetCatalogItem retrieves a catalog item by id
func (s *SQLiteStore) GetCatalogItem(ctx context.Context, id string) (*catalog.Item, error) {
	query := `
		SELECT symbolic_name, version, kind, spec_type, plan, type_ref,
			   display_name, description, icon_url, libraries
		FROM catalog_items
		WHERE id = ?
	`

	item, err := scanCatalogItem(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, engine.NewNotFoundError(fmt.Sprintf("catalog item not found: %s", id), nil).WithSubject(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog item: %w", err)
	}

	return item, nil
}

// LoadCatalogItems returns every stored item in insertion order.
func (s *SQLiteStore) LoadCatalogItems(ctx context.Context) ([]catalog.Item, error) {
	query := `
		SELECT symbolic_name, version, kind, spec_type, plan, type_ref,
			   display_name, description, icon_url, libraries
		FROM catalog_items
		ORDER BY rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog items: %w", err)
	}
	defer rows.Close()

	items := []catalog.Item{}
	for rows.Next() {
		item, err := scanCatalogItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan catalog item: %w", err)
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating catalog items: %w", err)
	}

	return items, nil
}

// DeleteCatalogItem deletes a stored catalog item by id
func (s *SQLiteStore) DeleteCatalogItem(ctx context.Context, id string) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `DELETE FROM catalog_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete catalog item: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return engine.NewNotFoundError(fmt.Sprintf("catalog item not found: %s", id), nil).WithSubject(id)
	}

	if err := insertAudit(ctx, tx, AuditCatalogItemDeleted, &id, nil); err != nil {
		return err
	}

	return tx.Commit()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCatalogItem(row rowScanner) (*catalog.Item, error) {
	var (
		item                                          catalog.Item
		kind, specType, libraries                     string
		plan, typeRef, displayName, description, icon sql.NullString
	)

	err := row.Scan(
		&item.SymbolicName,
		&item.Version,
		&kind,
		&specType,
		&plan,
		&typeRef,
		&displayName,
		&description,
		&icon,
		&libraries,
	)
	if err != nil {
		return nil, err
	}

	item.Kind = spec.Type(kind)
	item.SpecType = spec.Type(specType)
	item.PlanYAML = plan.String
	item.TypeRef = typeRef.String
	item.DisplayName = displayName.String
	item.Description = description.String
	item.IconURL = icon.String

	if err := json.Unmarshal([]byte(libraries), &item.Libraries); err != nil {
		return nil, fmt.Errorf("failed to decode libraries of %s: %w", item.ID(), err)
	}
	if len(item.Libraries) == 0 {
		item.Libraries = nil
	}

	return &item, nil
}

// RecordTask stores a finished task. Recording the same id twice keeps the
// latest outcome.
func (s *SQLiteStore) RecordTask(ctx context.Context, record engine.TaskRecord) error {
	tags, err := json.Marshal(record.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode task tags: %w", err)
	}
	if record.Tags == nil {
		tags = []byte("[]")
	}

	query := `
		INSERT INTO task_history (
			id, display_name, tags, status, error, submitted_at, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`

	_, err = s.db.ExecContext(ctx, query,
		record.ID,
		record.DisplayName,
		string(tags),
		string(record.Status),
		nullString(record.Error),
		record.SubmittedAt.UTC(),
		nullTime(record.StartedAt),
		record.CompletedAt.UTC(),
	)

	if err != nil {
		return fmt.Errorf("failed to record task: %w", err)
	}

	return nil
}

// GetTaskRecord retrieves a task record by id
func (s *SQLiteStore) GetTaskRecord(ctx context.Context, id string) (*engine.TaskRecord, error) {
	query := `
		SELECT id, display_name, tags, status, error, submitted_at, started_at, completed_at
		FROM task_history
		WHERE id = ?
	`

	record, err := scanTaskRecord(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, engine.NewNotFoundError(fmt.Sprintf("task not found: %s", id), nil).WithSubject(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task record: %w", err)
	}

	return record, nil
}

// ListTaskRecords lists task records, newest first.
func (s *SQLiteStore) ListTaskRecords(ctx context.Context, filter TaskFilter) ([]*engine.TaskRecord, error) {
	query := `
		SELECT id, display_name, tags, status, error, submitted_at, started_at, completed_at
		FROM task_history
		WHERE (? IS NULL OR status = ?)
		  AND (? IS NULL OR display_name = ?)
		ORDER BY completed_at DESC
		LIMIT ? OFFSET ?
	`

	var status *string
	if filter.Status != nil {
		st := string(*filter.Status)
		status = &st
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, query,
		status, status,
		filter.DisplayName, filter.DisplayName,
		limit, filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list task records: %w", err)
	}
	defer rows.Close()

	records := []*engine.TaskRecord{}
	for rows.Next() {
		record, err := scanTaskRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task records: %w", err)
	}

	return records, nil
}

// PruneTaskHistory deletes task records completed before the given time.
func (s *SQLiteStore) PruneTaskHistory(ctx context.Context, before time.Time) (int64, error) {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM task_history WHERE julianday(completed_at) < julianday(?)`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune task history: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	details := fmt.Sprintf(`{"deleted":%d}`, rows)
	if err := insertAudit(ctx, tx, AuditTaskHistoryPruned, nil, &details); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}
	return rows, nil
}

func scanTaskRecord(row rowScanner) (*engine.TaskRecord, error) {
	var (
		record       engine.TaskRecord
		tags, status string
		errMsg       sql.NullString
		startedAt    sql.NullTime
	)

	err := row.Scan(
		&record.ID,
		&record.DisplayName,
		&tags,
		&status,
		&errMsg,
		&record.SubmittedAt,
		&startedAt,
		&record.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Status = engine.TaskStatus(status)
	record.Error = errMsg.String
	if startedAt.Valid {
		record.StartedAt = startedAt.Time
	}

	if err := json.Unmarshal([]byte(tags), &record.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags of task %s: %w", record.ID, err)
	}
	if len(record.Tags) == 0 {
		record.Tags = nil
	}

	return &record, nil
}

// insertAudit appends an audit entry inside tx.
func insertAudit(ctx context.Context, tx *sql.Tx, action AuditAction, targetID, details *string) error {
	query := `
		INSERT INTO audit (action, actor, target_id, details, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`

	if _, err := tx.ExecContext(ctx, query, string(action), systemActor, targetID, details, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries lists audit entries with an optional action filter and
// pagination, newest first.
func (s *SQLiteStore) ListAuditEntries(ctx context.Context, action *AuditAction, limit, offset int) ([]*AuditEntry, error) {
	query := `
		SELECT id, action, actor, target_id, details, timestamp
		FROM audit
		WHERE (? IS NULL OR action = ?)
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`

	var filter *string
	if action != nil {
		a := string(*action)
		filter = &a
	}

	rows, err := s.db.QueryContext(ctx, query, filter, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*AuditEntry{}
	for rows.Next() {
		entry := &AuditEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.Action,
			&entry.Actor,
			&entry.TargetID,
			&entry.Details,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return engine.NewIllegalStateError("database not initialized", nil)
	}

	return s.db.PingContext(ctx)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func versionOrDefault(v string) string {
	if v == "" {
		return catalog.DefaultVersion
	}
	return v
}

func nonNilLibraries(libs []catalog.Library) []catalog.Library {
	if libs == nil {
		return []catalog.Library{}
	}
	return libs
}
