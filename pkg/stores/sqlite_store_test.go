package stores

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
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
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
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

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"tracked_records", "audit"} {
		var count int
		err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// Running migrations twice is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migration failed: %v", err)
	}
}

// TestUpsertReplaces tests that a second upsert replaces instead of merging
func TestUpsertReplaces(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first := &TrackedRecord{
		ID:     "nsr-1",
		Owner:  "alice",
		Status: "INITIALIZING",
		LogLocations: map[string][]string{
			"open5gcore": {"vm-a"},
		},
	}
	if err := store.Upsert(ctx, first); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	second := &TrackedRecord{
		ID:     "nsr-1",
		Owner:  "alice",
		Status: "ACTIVE",
		LogLocations: map[string][]string{
			"bt": {"vm-b", "vm-c"},
		},
	}
	if err := store.Upsert(ctx, second); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("failed to list records: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 record, got %d", len(all))
	}

	got := all[0]
	if got.Status != "ACTIVE" {
		t.Errorf("expected status ACTIVE, got %s", got.Status)
	}
	if _, ok := got.LogLocations["open5gcore"]; ok {
		t.Errorf("expected old log locations to be dropped, got %v", got.LogLocations)
	}
	if len(got.LogLocations["bt"]) != 2 {
		t.Errorf("expected 2 hosts for bt, got %v", got.LogLocations["bt"])
	}
	if got.CreatedAt.After(got.UpdatedAt) {
		t.Errorf("created_at %v after updated_at %v", got.CreatedAt, got.UpdatedAt)
	}
}

// TestRefresh tests conditional replacement
func TestRefresh(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, &TrackedRecord{ID: "nsr-1", Owner: "alice", Status: "NULL"}); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	refreshed := &TrackedRecord{ID: "nsr-1", Owner: "mallory", Status: "ACTIVE"}
	if err := store.Refresh(ctx, refreshed); err != nil {
		t.Fatalf("failed to refresh: %v", err)
	}

	got, err := store.Get(ctx, "nsr-1")
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if got.Status != "ACTIVE" {
		t.Errorf("expected status ACTIVE, got %s", got.Status)
	}
	if got.Owner != "alice" {
		t.Errorf("expected owner to stay alice, got %s", got.Owner)
	}

	err = store.Refresh(ctx, &TrackedRecord{ID: "nsr-missing", Owner: "alice", Status: "ACTIVE"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("refresh must not create records, got %d", len(all))
	}
}

// TestRemove tests deletion and the absent case
func TestRemove(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, &TrackedRecord{ID: "nsr-1", Owner: "alice", Status: "NULL"}); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	if err := store.Remove(ctx, "nsr-1"); err != nil {
		t.Fatalf("failed to remove: %v", err)
	}
	if err := store.Remove(ctx, "nsr-1"); err != nil {
		t.Fatalf("removing an absent record should succeed: %v", err)
	}

	if _, err := store.Get(ctx, "nsr-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListByOwner(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	records := []*TrackedRecord{
		{ID: "a1", Owner: "alice", Status: "NULL"},
		{ID: "a2", Owner: "alice", Status: "ACTIVE"},
		{ID: "b1", Owner: "bob", Status: "NULL"},
	}
	for _, r := range records {
		if err := store.Upsert(ctx, r); err != nil {
			t.Fatalf("failed to upsert %s: %v", r.ID, err)
		}
	}

	alice, err := store.ListByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(alice) != 2 {
		t.Errorf("expected 2 records for alice, got %d", len(alice))
	}

	nobody, err := store.ListByOwner(ctx, "carol")
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(nobody) != 0 {
		t.Errorf("expected no records for carol, got %d", len(nobody))
	}
}

// TestConcurrentAccess tests that concurrent upserts and reads serialize cleanly
func TestConcurrentAccess(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			errs <- store.Upsert(ctx, &TrackedRecord{
				ID:     fmt.Sprintf("nsr-%d", i%5),
				Owner:  "alice",
				Status: fmt.Sprintf("S%d", i),
			})
		}(i)
		go func() {
			defer wg.Done()
			_, err := store.All(ctx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent operation failed: %v", err)
		}
	}

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("expected 5 distinct records, got %d", len(all))
	}
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"ACTIVE", true},
		{"active", true},
		{"Error", true},
		{"INITIALIZING", false},
		{"NULL", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			r := &TrackedRecord{Status: tt.status}
			if got := r.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal(%q) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

// TestAuditEntries tests audit trail operations
func TestAuditEntries(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	target := "nsr-1"
	entries := []*AuditEntry{
		{Action: AuditRecordDeployed, Actor: "alice", TargetID: &target},
		{Action: AuditRecordRefreshed, Actor: "reconciler", TargetID: &target},
		{Action: AuditRecordReleased, Actor: "alice", TargetID: &target},
	}
	for _, e := range entries {
		if err := store.CreateAuditEntry(ctx, e); err != nil {
			t.Fatalf("failed to create audit entry: %v", err)
		}
		if e.ID == 0 {
			t.Errorf("expected audit entry id to be set")
		}
	}

	actor := "alice"
	got, err := store.ListAuditEntries(ctx, nil, &actor, 10, 0)
	if err != nil {
		t.Fatalf("failed to list audit entries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries for alice, got %d", len(got))
	}
	if got[0].Action != AuditRecordReleased {
		t.Errorf("expected newest entry first, got %s", got[0].Action)
	}

	action := AuditRecordRefreshed
	got, err = store.ListAuditEntries(ctx, &action, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list audit entries: %v", err)
	}
	if len(got) != 1 || got[0].Actor != "reconciler" {
		t.Errorf("unexpected refresh entries: %+v", got)
	}
}
