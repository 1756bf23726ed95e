package keyval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/harvestly/cart-engine/pkg/config"
)

// storeContract exercises the Store behaviors every backend must share.
func storeContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Get(ctx, "cart"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing key, got %v", err)
	}

	ok, err := store.Has(ctx, "cart")
	if err != nil || ok {
		t.Fatalf("Has on missing key = (%v, %v)", ok, err)
	}

	if err := store.Set(ctx, "cart", `[{"productId":"p1"}]`); err != nil {
		t.Fatalf("Set: %v", err)
	}

	value, err := store.Get(ctx, "cart")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if value != `[{"productId":"p1"}]` {
		t.Fatalf("unexpected value %q", value)
	}

	if err := store.Set(ctx, "cart", `[]`); err != nil {
		t.Fatalf("overwrite Set: %v", err)
	}
	value, err = store.Get(ctx, "cart")
	if err != nil || value != `[]` {
		t.Fatalf("expected overwritten value, got (%q, %v)", value, err)
	}

	ok, err = store.Has(ctx, "cart")
	if err != nil || !ok {
		t.Fatalf("Has after Set = (%v, %v)", ok, err)
	}

	if err := store.Del(ctx, "cart"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, err := store.Get(ctx, "cart"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after Del, got %v", err)
	}

	// Deleting an absent key succeeds trivially.
	if err := store.Del(ctx, "cart"); err != nil {
		t.Fatalf("Del absent key: %v", err)
	}
}

func TestMemoryStoreContract(t *testing.T) {
	storeContract(t, NewMemory())
}

func TestFileStoreContract(t *testing.T) {
	storeContract(t, NewFile(filepath.Join(t.TempDir(), "state.json")))
}

func TestSQLiteStoreContract(t *testing.T) {
	store, err := NewSQLite(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "state.db")})
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer store.Close()
	storeContract(t, store)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	first := NewFile(path)
	if err := first.Set(ctx, "cart_backup", `{"reason":"error"}`); err != nil {
		t.Fatalf("Set: %v", err)
	}

	second := NewFile(path)
	value, err := second.Get(ctx, "cart_backup")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if value != `{"reason":"error"}` {
		t.Fatalf("unexpected value %q", value)
	}
}

func TestFileStoreTreatsCorruptDocumentAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	store := NewFile(path)
	if _, err := store.Get(context.Background(), "cart"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("corrupt document should read as empty, got %v", err)
	}
}
