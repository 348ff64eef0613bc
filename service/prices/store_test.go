package prices

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_MissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))

	entries, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileStore_ReadsFlatMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.json")
	content := `{"eth_2023-11-14":2054.17,"0xff970a61a04b1ca14834a43f5de4533ebddb5cc8_2023-11-14":1.0}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	entries, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{
		"eth_2023-11-14": 2054.17,
		"0xff970a61a04b1ca14834a43f5de4533ebddb5cc8_2023-11-14": 1.0,
	}, entries)
}

func TestFileStore_EmptyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))

	entries, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"eth_2024-01-01": [1,2]}`), 0o600))

	_, err := NewFileStore(path).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode")
}

func TestFileStore_SaveReplacesAtomically(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "prices.json")
	store := NewFileStore(path)

	require.NoError(t, store.Save(ctx, map[string]float64{"eth_2024-01-01": 1}))
	require.NoError(t, store.Save(ctx, map[string]float64{"eth_2024-01-01": 1, "eth_2024-01-02": 2}))

	entries, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// No temp files are left behind.
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "prices.json", files[0].Name())
}

func TestFileStore_SavesFlatMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.json")
	require.NoError(t, NewFileStore(path).Save(context.Background(), map[string]float64{"eth_2023-11-14": 2054.17}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]float64
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, map[string]float64{"eth_2023-11-14": 2054.17}, raw)
}

// newTestPGStore connects to TEST_DATABASE_URL and prepares an empty
// price_cache table. The test is skipped when no database is configured.
func newTestPGStore(t *testing.T) *PGStore {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("Skipping database test (TEST_DATABASE_URL is not set)")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Skipf("Skipping database test: cannot connect to test database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("Skipping database test: cannot ping test database: %v", err)
	}
	t.Cleanup(pool.Close)

	store := NewPGStore(pool)
	require.NoError(t, store.EnsureSchema(ctx))
	_, err = pool.Exec(ctx, "TRUNCATE TABLE price_cache")
	require.NoError(t, err)
	return store
}

func TestPGStore_RoundTrip(t *testing.T) {
	store := newTestPGStore(t)
	ctx := context.Background()

	entries, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, store.Save(ctx, map[string]float64{
		"eth_2024-01-01": 2300,
		"0xff970a61a04b1ca14834a43f5de4533ebddb5cc8_2024-01-01": 1,
	}))
	require.NoError(t, store.Save(ctx, map[string]float64{
		"eth_2024-01-01": 2301,
	}))

	entries, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{
		"eth_2024-01-01": 2301,
		"0xff970a61a04b1ca14834a43f5de4533ebddb5cc8_2024-01-01": 1,
	}, entries)
}

func TestPGStore_BacksCache(t *testing.T) {
	store := newTestPGStore(t)
	ctx := context.Background()

	cache := NewCache(ctx, store, nil, nil, nil)
	cache.Put("eth_2024-02-02", 2500)
	require.NoError(t, cache.Save(ctx))

	reloaded := NewCache(ctx, store, nil, nil, nil)
	p, ok := reloaded.Lookup("eth_2024-02-02")
	require.True(t, ok)
	assert.Equal(t, 2500.0, p)
}

func TestOpenStore_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.json")
	store, closeStore, err := OpenStore(context.Background(), "", path)
	require.NoError(t, err)
	defer closeStore()

	fs, ok := store.(*FileStore)
	require.True(t, ok)
	assert.Equal(t, path, fs.Path())
}

func TestOpenStore_BadDatabaseURL(t *testing.T) {
	_, _, err := OpenStore(context.Background(), "postgres://%zz", "prices.json")
	assert.Error(t, err)
}
