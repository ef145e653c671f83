package migrations

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/tursodatabase/go-libsql"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRun_AppliesAllOnce(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	if err := Run(ctx, db, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	applied, err := Applied(ctx, db)
	if err != nil {
		t.Fatalf("Applied() error = %v", err)
	}
	if len(applied) != len(registry) {
		t.Errorf("applied = %d, want %d", len(applied), len(registry))
	}

	// A second run is a no-op.
	if err := Run(ctx, db, nil); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	pending, err := Pending(ctx, db)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}

func TestRun_CreatesTables(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	if err := Run(ctx, db, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for _, table := range []string{"users", "searches", "tracked_products", "price_history"} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestSorted(t *testing.T) {
	old := registry
	t.Cleanup(func() { registry = old })

	registry = []Migration{{Timestamp: "20260302-000000"}, {Timestamp: "20260101-000000"}}
	got := sorted()
	if got[0].Timestamp != "20260101-000000" {
		t.Errorf("sorted()[0] = %s, want oldest first", got[0].Timestamp)
	}
	if registry[0].Timestamp != "20260302-000000" {
		t.Error("sorted() must not reorder the registry in place")
	}
}
