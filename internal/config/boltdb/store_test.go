package boltdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopbridge/shopbridge/internal/config"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	dbPath := filepath.Join(t.TempDir(), "config.db")
	store, err := New(ctx, dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return store
}

func TestStore_SetGet(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	require.NoError(t, store.Set(ctx, config.KeyStoreURL, "https://acme.myshopify.com"))

	value, err := store.Get(ctx, config.KeyStoreURL)
	require.NoError(t, err)
	assert.Equal(t, "https://acme.myshopify.com", value)
}

func TestStore_Get_NotFound(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	_, err := store.Get(ctx, "missing.key")
	assert.ErrorIs(t, err, config.ErrKeyNotFound)
}

func TestStore_GetDefault(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	value, err := store.GetDefault(ctx, config.KeyAPIVersion, config.DefaultAPIVersion)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultAPIVersion, value)

	require.NoError(t, store.Set(ctx, config.KeyAPIVersion, "2024-01"))

	value, err = store.GetDefault(ctx, config.KeyAPIVersion, config.DefaultAPIVersion)
	require.NoError(t, err)
	assert.Equal(t, "2024-01", value)
}

func TestStore_Overwrite(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	require.NoError(t, store.Set(ctx, "k", "v1"))
	require.NoError(t, store.Set(ctx, "k", "v2"))

	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", value)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	require.NoError(t, store.Set(ctx, "k", "v"))
	require.NoError(t, store.Delete(ctx, "k"))

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, config.ErrKeyNotFound)

	// Deleting an absent key is not an error.
	require.NoError(t, store.Delete(ctx, "k"))
}

func TestLoad_Settings(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	require.NoError(t, store.Set(ctx, config.KeyAccessToken, "shpat_test"))
	require.NoError(t, store.Set(ctx, config.KeyStoreURL, "https://acme.myshopify.com"))
	require.NoError(t, store.Set(ctx, config.KeyAutoPublish, "true"))
	require.NoError(t, store.Set(ctx, config.KeyInvoiceOnPayment, "true"))

	settings, err := config.Load(ctx, store, nil)
	require.NoError(t, err)

	assert.Equal(t, "shpat_test", settings.AccessToken)
	assert.Equal(t, "https://acme.myshopify.com", settings.StoreURL)
	assert.Equal(t, config.DefaultAPIVersion, settings.APIVersion)
	assert.True(t, settings.AutoPublish)
	assert.True(t, settings.InvoiceOnPayment)
	assert.False(t, settings.AutoExport)
	assert.False(t, settings.CreatePortalUser)

	assert.NoError(t, settings.Validate())
}

func TestLoad_MissingCredentials(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	settings, err := config.Load(ctx, store, nil)
	require.NoError(t, err)
	assert.Error(t, settings.Validate())
}
