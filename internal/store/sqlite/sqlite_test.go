package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/quayside/resman/internal/store"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return db
}

func TestUpsertAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rec := store.Record{Name: "mymod", Path: "resources/mymod", Enabled: true}
	if err := db.Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := db.GetByName(ctx, "mymod")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Enabled || got.RestartOnChange || got.Path != "resources/mymod" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatalf("updated_at not set")
	}

	// second upsert overwrites
	rec.Enabled = false
	rec.RestartOnChange = true
	if err := db.Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert 2: %v", err)
	}
	got, _ = db.GetByName(ctx, "mymod")
	if got.Enabled || !got.RestartOnChange {
		t.Fatalf("upsert did not overwrite: %+v", got)
	}
}

func TestGetMissing(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetByName(context.Background(), "nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for _, n := range []string{"b", "a", "c"} {
		if err := db.Upsert(ctx, store.Record{Name: n, Path: "r/" + n}); err != nil {
			t.Fatalf("upsert %s: %v", n, err)
		}
	}
	recs, err := db.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 3 || recs[0].Name != "a" || recs[2].Name != "c" {
		t.Fatalf("unexpected list: %+v", recs)
	}
}

func TestRename(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_ = db.Upsert(ctx, store.Record{Name: "old", Path: "r/old"})
	if err := db.Rename(ctx, "old", "new"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := db.GetByName(ctx, "old"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("old name still present: %v", err)
	}
	if _, err := db.GetByName(ctx, "new"); err != nil {
		t.Fatalf("new name missing: %v", err)
	}
	if err := db.Rename(ctx, "ghost", "x"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound renaming missing record, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_ = db.Upsert(ctx, store.Record{Name: "gone", Path: "r/gone"})
	if err := db.Delete(ctx, "gone"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.GetByName(ctx, "gone"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("record survived delete: %v", err)
	}
	// deleting a missing record is a no-op
	if err := db.Delete(ctx, "gone"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}
