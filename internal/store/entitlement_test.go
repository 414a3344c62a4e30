package store

import (
	"database/sql"
	"testing"

	"github.com/dukerupert/solarc/internal/database"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEntitlementInsertAndList(t *testing.T) {
	es := NewEntitlementStore(setupTestDB(t))

	if err := es.Insert("subscription.pro.monthly"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := es.Insert("subscription.pro.yearly"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	ids, err := es.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("len = %d, want 2", len(ids))
	}
	if ids[0] != "subscription.pro.monthly" {
		t.Errorf("ids[0] = %q, want monthly first", ids[0])
	}
}

func TestEntitlementInsertIdempotent(t *testing.T) {
	es := NewEntitlementStore(setupTestDB(t))

	es.Insert("subscription.pro.monthly")
	if err := es.Insert("subscription.pro.monthly"); err != nil {
		t.Fatalf("duplicate insert should not error: %v", err)
	}

	ids, _ := es.List()
	if len(ids) != 1 {
		t.Errorf("len = %d, want 1", len(ids))
	}
}

func TestEntitlementRemove(t *testing.T) {
	es := NewEntitlementStore(setupTestDB(t))

	es.Insert("subscription.pro.monthly")
	if err := es.Remove("subscription.pro.monthly"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := es.Remove("subscription.pro.monthly"); err != nil {
		t.Fatalf("removing absent product should not error: %v", err)
	}

	ids, _ := es.List()
	if len(ids) != 0 {
		t.Errorf("len = %d, want 0", len(ids))
	}
}
