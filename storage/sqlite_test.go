package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "ringsoup.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	record, g := testRecord(t, "best")
	if err := store.SaveControllers(ctx, record); err != nil {
		t.Fatalf("save controllers: %v", err)
	}

	// Upsert replaces the payload
	record.Fitness = 3.5
	if err := store.SaveControllers(ctx, record); err != nil {
		t.Fatalf("overwrite controllers: %v", err)
	}

	loaded, ok, err := store.GetControllers(ctx, "best")
	if err != nil {
		t.Fatalf("get controllers: %v", err)
	}
	if !ok {
		t.Fatal("expected controllers best")
	}
	if loaded.Fitness != 3.5 || len(loaded.Action.Params) != g.Action.TotalSize() {
		t.Fatalf("unexpected record loaded: %+v", loaded)
	}

	names, err := store.ListControllers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 1 || names[0] != "best" {
		t.Fatalf("unexpected names: %v", names)
	}

	if err := store.SaveFitnessHistory(ctx, "run-1", []float64{1, 2, 3}); err != nil {
		t.Fatalf("save history: %v", err)
	}
	history, ok, err := store.GetFitnessHistory(ctx, "run-1")
	if err != nil || !ok || len(history) != 3 || history[2] != 3 {
		t.Fatalf("unexpected history: %v ok=%v err=%v", history, ok, err)
	}

	if err := store.DeleteControllers(ctx, "best"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, err := store.GetControllers(ctx, "best"); ok || err != nil {
		t.Fatalf("expected deleted controllers, ok=%v err=%v", ok, err)
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "ringsoup.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	record, _ := testRecord(t, "kept")
	if err := store.SaveControllers(ctx, record); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := NewSQLiteStore(dbPath)
	if err := reopened.Init(ctx); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, ok, err := reopened.GetControllers(ctx, "kept"); !ok || err != nil {
		t.Fatalf("expected persisted controllers, ok=%v err=%v", ok, err)
	}
}

func TestSQLiteStoreRequiresInit(t *testing.T) {
	store := NewSQLiteStore("")
	if err := store.Init(context.Background()); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, _, err := store.GetControllers(context.Background(), "x"); err == nil {
		t.Fatal("expected error before Init")
	}
}
