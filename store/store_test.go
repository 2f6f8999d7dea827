package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cacheEntry struct {
	IPAddress string `json:"ip_address"`
	Hostname  string `json:"hostname"`
}

func testBackend(t *testing.T, store Store) {
	ctx := context.Background()
	key := "pfsense.entry.device_tracker"

	var loaded map[string]cacheEntry
	found, err := store.Load(ctx, key, &loaded)
	require.NoError(t, err)
	assert.False(t, found)

	data := map[string]cacheEntry{"aa:bb:cc:dd:ee:ff": {IPAddress: "10.0.0.2", Hostname: "laptop"}}
	require.NoError(t, store.Save(ctx, key, data))
	found, err = store.Load(ctx, key, &loaded)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, data, loaded)

	data["11:22:33:44:55:66"] = cacheEntry{IPAddress: "10.0.0.3"}
	require.NoError(t, store.Save(ctx, key, data))
	loaded = nil
	_, err = store.Load(ctx, key, &loaded)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)

	require.NoError(t, store.Remove(ctx, key))
	require.NoError(t, store.Remove(ctx, key))
	found, err = store.Load(ctx, key, &loaded)
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, store.Close())
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "storage"))
	require.NoError(t, err)
	testBackend(t, store)
}

func TestFileStoreEnvelope(t *testing.T) {
	directory := t.TempDir()
	store, err := NewFileStore(directory)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), "options", map[string]int{"scan_interval": 30}))

	content, err := os.ReadFile(filepath.Join(directory, "options.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"key":"options","data":{"scan_interval":30}}`, string(content))
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "pfbridge.db"))
	require.NoError(t, err)
	testBackend(t, store)
}

func TestMemoryStore(t *testing.T) {
	testBackend(t, NewMemoryStore())
}

func TestOpen(t *testing.T) {
	store, err := Open(Config{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, err = Open(Config{Backend: "redis"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
