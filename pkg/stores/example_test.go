package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/openfroyo/blueprint/pkg/catalog"
	"github.com/openfroyo/blueprint/pkg/engine"
	"github.com/openfroyo/blueprint/pkg/spec"
	"github.com/openfroyo/blueprint/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	store, err := stores.NewSQLiteStore(stores.Config{
		Path: stores.MemoryPath, // Use in-memory database for example
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}

	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	defer store.Close()

	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_SaveCatalogItem demonstrates persisting a catalog addition.
func ExampleSQLiteStore_SaveCatalogItem() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: stores.MemoryPath})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	item := catalog.Item{
		SymbolicName: "web-app",
		Version:      "1.2.0",
		Kind:         spec.TypeEntity,
		SpecType:     spec.TypeEntity,
		PlanYAML:     "services:\n- type: com.example.WebApp\n",
	}
	if err := store.SaveCatalogItem(ctx, item); err != nil {
		log.Fatal(err)
	}

	items, _ := store.LoadCatalogItems(ctx)
	for _, it := range items {
		fmt.Printf("%s (%s)\n", it.ID(), it.Kind)
	}
	// Output: web-app:1.2.0 (entity)
}

// ExampleSQLiteStore_ListTaskRecords demonstrates querying task history.
func ExampleSQLiteStore_ListTaskRecords() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: stores.MemoryPath})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	now := time.Now()
	_ = store.RecordTask(ctx, engine.TaskRecord{
		ID:          "task-001",
		DisplayName: "load catalog",
		Status:      engine.TaskStatusSucceeded,
		SubmittedAt: now,
		StartedAt:   now,
		CompletedAt: now.Add(150 * time.Millisecond),
	})

	failed := engine.TaskStatusFailed
	records, _ := store.ListTaskRecords(ctx, stores.TaskFilter{Status: &failed})
	fmt.Println("failed tasks:", len(records))

	records, _ = store.ListTaskRecords(ctx, stores.TaskFilter{Limit: 10})
	fmt.Println(records[0].DisplayName, records[0].Status)
	// Output:
	// failed tasks: 0
	// load catalog succeeded
}
