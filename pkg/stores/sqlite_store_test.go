package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/blueprint/pkg/catalog"
	"github.com/openfroyo/blueprint/pkg/engine"
	"github.com/openfroyo/blueprint/pkg/spec"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: MemoryPath,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); !engine.IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument for empty path, got %v", err)
	}

	store, err := NewSQLiteStore(Config{
		Path: MemoryPath,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); !engine.IsIllegalState(err) {
		t.Errorf("expected illegal state before Init, got %v", err)
	}
	if err := store.Migrate(ctx); !engine.IsIllegalState(err) {
		t.Errorf("expected illegal state before Init, got %v", err)
	}

	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tables := []string{"catalog_items", "task_history", "audit"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// Running again is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("second migration failed: %v", err)
	}
}

func TestCatalogItems(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	web := catalog.Item{
		SymbolicName: "web",
		Version:      "1.0",
		Kind:         spec.TypeEntity,
		SpecType:     spec.TypeEntity,
		PlanYAML:     "services:\n- type: com.example.Web\n",
		DisplayName:  "Web",
		Libraries:    []catalog.Library{{Name: "web-bundle", Version: "2.1"}},
	}
	legacy := catalog.Item{
		SymbolicName: "legacy",
		Kind:         spec.TypeEntity,
		SpecType:     spec.TypeEntity,
		TypeRef:      "com.example.Legacy",
	}

	for _, item := range []catalog.Item{web, legacy} {
		if err := store.SaveCatalogItem(ctx, item); err != nil {
			t.Fatalf("failed to save %s: %v", item.ID(), err)
		}
	}

	got, err := store.GetCatalogItem(ctx, "web:1.0")
	if err != nil {
		t.Fatalf("failed to get item: %v", err)
	}
	if got.PlanYAML != web.PlanYAML || got.DisplayName != "Web" || got.Kind != spec.TypeEntity {
		t.Errorf("item mismatch: %+v", got)
	}
	if len(got.Libraries) != 1 || got.Libraries[0].Name != "web-bundle" {
		t.Errorf("libraries = %v", got.Libraries)
	}

	got, err = store.GetCatalogItem(ctx, "legacy:"+catalog.DefaultVersion)
	if err != nil {
		t.Fatalf("failed to get legacy item: %v", err)
	}
	if got.TypeRef != "com.example.Legacy" || got.Libraries != nil || got.PlanYAML != "" {
		t.Errorf("legacy item mismatch: %+v", got)
	}

	items, err := store.LoadCatalogItems(ctx)
	if err != nil {
		t.Fatalf("failed to load items: %v", err)
	}
	if len(items) != 2 || items[0].ID() != "web:1.0" || items[1].ID() != legacy.ID() {
		t.Errorf("items = %v", items)
	}

	web.Description = "updated"
	if err := store.SaveCatalogItem(ctx, web); err != nil {
		t.Fatalf("failed to re-save item: %v", err)
	}
	got, _ = store.GetCatalogItem(ctx, "web:1.0")
	if got.Description != "updated" {
		t.Errorf("description = %q, want updated", got.Description)
	}

	if err := store.DeleteCatalogItem(ctx, "web:1.0"); err != nil {
		t.Fatalf("failed to delete item: %v", err)
	}
	if _, err := store.GetCatalogItem(ctx, "web:1.0"); !engine.IsNotFound(err) {
		t.Errorf("expected not found after delete, got %v", err)
	}
	if err := store.DeleteCatalogItem(ctx, "web:1.0"); !engine.IsNotFound(err) {
		t.Errorf("expected not found deleting twice, got %v", err)
	}

	action := AuditCatalogItemSaved
	entries, err := store.ListAuditEntries(ctx, &action, 10, 0)
	if err != nil {
		t.Fatalf("failed to list audit entries: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("expected 3 save audit entries, got %d", len(entries))
	}
	all, _ := store.ListAuditEntries(ctx, nil, 10, 0)
	if len(all) != 4 || all[0].Action != AuditCatalogItemDeleted {
		t.Errorf("audit trail = %v", all)
	}
}

func TestTaskHistory(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	records := []engine.TaskRecord{
		{
			ID:          "t1",
			DisplayName: "resolve",
			Tags:        []engine.TaskTag{engine.TagDeferred},
			Status:      engine.TaskStatusSucceeded,
			SubmittedAt: base,
			StartedAt:   base.Add(time.Second),
			CompletedAt: base.Add(2 * time.Second),
		},
		{
			ID:          "t2",
			DisplayName: "resolve",
			Status:      engine.TaskStatusFailed,
			Error:       "boom",
			SubmittedAt: base,
			StartedAt:   base.Add(time.Second),
			CompletedAt: base.Add(time.Hour),
		},
		{
			ID:          "t3",
			DisplayName: "load",
			Status:      engine.TaskStatusCancelled,
			SubmittedAt: base,
			CompletedAt: base.Add(2 * time.Hour),
		},
	}
	for _, r := range records {
		if err := store.RecordTask(ctx, r); err != nil {
			t.Fatalf("failed to record %s: %v", r.ID, err)
		}
	}

	got, err := store.GetTaskRecord(ctx, "t1")
	if err != nil {
		t.Fatalf("failed to get record: %v", err)
	}
	if got.Status != engine.TaskStatusSucceeded || got.Duration() != time.Second {
		t.Errorf("record mismatch: %+v", got)
	}
	if len(got.Tags) != 1 || got.Tags[0] != engine.TagDeferred {
		t.Errorf("tags = %v", got.Tags)
	}

	got, _ = store.GetTaskRecord(ctx, "t3")
	if !got.StartedAt.IsZero() || got.Tags != nil {
		t.Errorf("cancelled record = %+v", got)
	}

	if _, err := store.GetTaskRecord(ctx, "missing"); !engine.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}

	tests := []struct {
		name   string
		filter TaskFilter
		want   []string
	}{
		{"all newest first", TaskFilter{}, []string{"t3", "t2", "t1"}},
		{"by status", TaskFilter{Status: statusPtr(engine.TaskStatusFailed)}, []string{"t2"}},
		{"by name", TaskFilter{DisplayName: strPtr("resolve")}, []string{"t2", "t1"}},
		{"paged", TaskFilter{Limit: 1, Offset: 1}, []string{"t2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := store.ListTaskRecords(ctx, tt.filter)
			if err != nil {
				t.Fatalf("failed to list records: %v", err)
			}
			if len(list) != len(tt.want) {
				t.Fatalf("got %d records, want %d", len(list), len(tt.want))
			}
			for i, id := range tt.want {
				if list[i].ID != id {
					t.Errorf("record %d = %s, want %s", i, list[i].ID, id)
				}
			}
		})
	}

	deleted, err := store.PruneTaskHistory(ctx, base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("failed to prune: %v", err)
	}
	if deleted != 2 {
		t.Errorf("pruned %d records, want 2", deleted)
	}
	remaining, _ := store.ListTaskRecords(ctx, TaskFilter{})
	if len(remaining) != 1 || remaining[0].ID != "t3" {
		t.Errorf("remaining = %v", remaining)
	}
}

func TestSchedulerHistory(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	sched := engine.NewTaskScheduler(2, zerolog.Nop(), engine.WithHistory(store))

	persisted := sched.Submit(ctx, engine.NewTask("persisted", func(context.Context) (any, error) {
		return "ok", nil
	}))
	transient := sched.Submit(ctx, engine.NewTask("transient", func(context.Context) (any, error) {
		return "ok", nil
	}, engine.TagTransient))

	for _, h := range []*engine.TaskHandle{persisted, transient} {
		if _, err := sched.Await(ctx, h); err != nil {
			t.Fatalf("task failed: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		list, err := store.ListTaskRecords(ctx, TaskFilter{})
		if err != nil {
			t.Fatalf("failed to list records: %v", err)
		}
		if len(list) == 1 {
			if list[0].DisplayName != "persisted" {
				t.Errorf("recorded %s, want persisted", list[0].DisplayName)
			}
			return
		}
		if len(list) > 1 || time.Now().After(deadline) {
			t.Fatalf("expected exactly the non-transient task, got %d records", len(list))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blueprint.db")
	ctx := context.Background()

	open := func() *SQLiteStore {
		store, err := NewSQLiteStore(Config{Path: path, WALMode: true})
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		if err := store.Init(ctx); err != nil {
			t.Fatalf("failed to initialize store: %v", err)
		}
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to migrate store: %v", err)
		}
		return store
	}

	first := open()
	if err := first.SaveCatalogItem(ctx, catalog.Item{SymbolicName: "web", Version: "1", Kind: spec.TypeEntity, TypeRef: "x"}); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	second := open()
	defer second.Close()
	items, err := second.LoadCatalogItems(ctx)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if len(items) != 1 || items[0].ID() != "web:1" {
		t.Errorf("items after reopen = %v", items)
	}
}

func statusPtr(s engine.TaskStatus) *engine.TaskStatus { return &s }

func strPtr(s string) *string { return &s }
