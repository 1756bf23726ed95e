package keyval

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvestly/cart-engine/pkg/config"
)

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	store, err := NewSQLite(config.SQLiteConfig{Path: path})
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "cart", `[{"productId":"p1","quantity":2}]`))
	require.NoError(t, store.Set(ctx, "cart_backup", `{"reason":"error"}`))
	require.NoError(t, store.Close())

	reopened, err := NewSQLite(config.SQLiteConfig{Path: path})
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get(ctx, "cart")
	require.NoError(t, err)
	assert.Equal(t, `[{"productId":"p1","quantity":2}]`, value)

	ok, err := reopened.Has(ctx, "cart_backup")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLiteUpsertsInPlace(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLite(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "state.db")})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Set(ctx, "cart", `[]`))
	require.NoError(t, store.Set(ctx, "cart", `[{"productId":"p2"}]`))

	value, err := store.Get(ctx, "cart")
	require.NoError(t, err)
	assert.Equal(t, `[{"productId":"p2"}]`, value)

	var count int64
	require.NoError(t, store.conn.Model(&kvEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSQLiteRequiresPath(t *testing.T) {
	_, err := NewSQLite(config.SQLiteConfig{})
	require.Error(t, err)
}
