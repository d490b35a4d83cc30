package cache

import (
	"context"
	"testing"
	"time"

	"github.com/lepinkainen/shelfsource/internal/testutil"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEntry struct {
	FileID   string    `json:"fileId"`
	Modified time.Time `json:"modified"`
}

func setupTestCache(t *testing.T) *CacheDB {
	t.Helper()

	viper.Reset()
	t.Cleanup(viper.Reset)

	env := testutil.NewTestEnv(t)
	db, err := Open(env.Path("test_cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func withGlobalCache(t *testing.T, db *CacheDB) {
	t.Helper()

	globalMu.Lock()
	old := globalCache
	globalCache = db
	globalMu.Unlock()

	t.Cleanup(func() {
		globalMu.Lock()
		globalCache = old
		globalMu.Unlock()
	})
}

// at runs fn with the cache clock fixed to ts
func at(t *testing.T, ts time.Time, fn func()) {
	t.Helper()
	orig := now
	now = func() time.Time { return ts }
	defer func() { now = orig }()
	fn()
}

func TestCacheDB_SetAndGet(t *testing.T) {
	db := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, db.Set(ctx, CoverCacheTable, "local-goodreads-cover-1", `{"fileId":"abc"}`))

	data, hit, err := db.Get(ctx, CoverCacheTable, "local-goodreads-cover-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, `{"fileId":"abc"}`, data)

	require.NoError(t, db.Set(ctx, CoverCacheTable, "local-goodreads-cover-1", `{"fileId":"def"}`))
	data, _, err = db.Get(ctx, CoverCacheTable, "local-goodreads-cover-1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, `{"fileId":"def"}`, data, "set replaces the previous entry")
}

func TestCacheDB_GetMissing(t *testing.T) {
	db := setupTestCache(t)

	data, hit, err := db.Get(context.Background(), CoverCacheTable, "nope", time.Hour)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Empty(t, data)
}

func TestCacheDB_Expired(t *testing.T) {
	db := setupTestCache(t)
	ctx := context.Background()

	at(t, time.Now().Add(-2*time.Hour), func() {
		require.NoError(t, db.Set(ctx, CoverCacheTable, "k", `{}`))
	})

	_, hit, err := db.Get(ctx, CoverCacheTable, "k", time.Hour)
	require.NoError(t, err)
	assert.False(t, hit, "entry older than the TTL should be a miss")

	_, hit, err = db.Get(ctx, CoverCacheTable, "k", 0)
	require.NoError(t, err)
	assert.True(t, hit, "zero TTL never expires")
}

func TestCacheDB_RejectsUnknownTable(t *testing.T) {
	db := setupTestCache(t)
	ctx := context.Background()

	require.Error(t, db.Set(ctx, "users; DROP TABLE x", "k", "v"))

	_, _, err := db.Get(ctx, "bogus_cache", "k", time.Hour)
	require.Error(t, err)

	_, err = db.Clear(ctx, "bogus_cache")
	require.Error(t, err)

	_, err = db.Prune(ctx, "bogus_cache", time.Hour)
	require.Error(t, err)
}

func TestCacheDB_Clear(t *testing.T) {
	db := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, db.Set(ctx, CoverCacheTable, "a", "1"))
	require.NoError(t, db.Set(ctx, CoverCacheTable, "b", "2"))

	rows, err := db.Clear(ctx, CoverCacheTable)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)

	_, hit, err := db.Get(ctx, CoverCacheTable, "a", 0)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheDB_Prune(t *testing.T) {
	db := setupTestCache(t)
	ctx := context.Background()

	at(t, time.Now().Add(-48*time.Hour), func() {
		require.NoError(t, db.Set(ctx, CoverCacheTable, "old", "1"))
	})
	require.NoError(t, db.Set(ctx, CoverCacheTable, "new", "2"))

	removed, err := db.Prune(ctx, CoverCacheTable, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, hit, err := db.Get(ctx, CoverCacheTable, "new", 0)
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestCacheDB_PersistsAcrossOpen(t *testing.T) {
	env := testutil.NewTestEnv(t)
	path := env.Path("persist.db")
	ctx := context.Background()

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, CoverCacheTable, "k", "v"))
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	data, hit, err := second.Get(ctx, CoverCacheTable, "k", 0)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "v", data)
}

func TestStore_RoundTrip(t *testing.T) {
	db := setupTestCache(t)
	ctx := context.Background()
	store := NewStore[testEntry](db, CoverCacheTable, time.Hour)

	modified := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Set(ctx, "k", testEntry{FileID: "file-1", Modified: modified}))

	got, hit, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "file-1", got.FileID)
	assert.True(t, modified.Equal(got.Modified))
}

func TestStore_CorruptEntryIsMiss(t *testing.T) {
	db := setupTestCache(t)
	ctx := context.Background()
	require.NoError(t, db.Set(ctx, CoverCacheTable, "k", "{not json"))

	store := NewStore[testEntry](db, CoverCacheTable, time.Hour)
	got, hit, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, testEntry{}, got)
}

func TestConfiguredTTL(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	assert.Equal(t, DefaultCacheTTL, ConfiguredTTL())

	viper.Set("cache.ttl", "12h")
	assert.Equal(t, 12*time.Hour, ConfiguredTTL())

	viper.Set("cache.ttl", "not-a-duration")
	assert.Equal(t, DefaultCacheTTL, ConfiguredTTL())
}

func TestGetGlobalCache_UsesConfiguredPath(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	require.NoError(t, ResetGlobalCache())
	t.Cleanup(func() { _ = ResetGlobalCache() })

	env := testutil.NewTestEnv(t)
	dbPath := env.Path("global.db")
	viper.Set("cache.dbfile", dbPath)

	c, err := GetGlobalCache()
	require.NoError(t, err)
	assert.Equal(t, dbPath, c.Path())

	again, err := GetGlobalCache()
	require.NoError(t, err)
	assert.Same(t, c, again)

	require.NoError(t, ResetGlobalCache())
	reopened, err := GetGlobalCache()
	require.NoError(t, err)
	assert.NotSame(t, c, reopened)
}

func TestInvalidateCacheCmd(t *testing.T) {
	db := setupTestCache(t)
	withGlobalCache(t, db)
	ctx := context.Background()

	require.NoError(t, db.Set(ctx, CoverCacheTable, "k", "v"))

	cmd := &InvalidateCacheCmd{Source: "covers"}
	require.NoError(t, cmd.Run(ctx))

	_, hit, err := db.Get(ctx, CoverCacheTable, "k", 0)
	require.NoError(t, err)
	assert.False(t, hit)

	bad := &InvalidateCacheCmd{Source: "tmdb"}
	err = bad.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid sources are: covers")
}

func TestPruneCacheCmd(t *testing.T) {
	db := setupTestCache(t)
	withGlobalCache(t, db)
	ctx := context.Background()
	viper.Set("cache.ttl", "1h")

	at(t, time.Now().Add(-3*time.Hour), func() {
		require.NoError(t, db.Set(ctx, CoverCacheTable, "old", "v"))
	})
	require.NoError(t, db.Set(ctx, CoverCacheTable, "fresh", "v"))

	require.NoError(t, (&PruneCacheCmd{}).Run(ctx))

	_, hit, err := db.Get(ctx, CoverCacheTable, "old", 0)
	require.NoError(t, err)
	assert.False(t, hit)

	_, hit, err = db.Get(ctx, CoverCacheTable, "fresh", 0)
	require.NoError(t, err)
	assert.True(t, hit)
}
