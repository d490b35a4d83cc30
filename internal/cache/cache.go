package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/viper"
	_ "modernc.org/sqlite"
)

// DefaultCacheTTL is the default time-to-live for cached entries (30 days)
const DefaultCacheTTL = 720 * time.Hour

// now is replaced in tests to age entries
var now = time.Now

// CacheDB is a SQLite backed key/value cache split into per-source tables.
// It holds a single connection, so SQLite serializes every statement.
type CacheDB struct {
	db   *sql.DB
	path string
}

var (
	globalMu    sync.Mutex
	globalCache *CacheDB
)

// GetGlobalCache opens the database named by cache.dbfile on first use and
// returns the same instance afterwards
func GetGlobalCache() (*CacheDB, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalCache != nil {
		return globalCache, nil
	}

	dbPath := viper.GetString("cache.dbfile")
	if dbPath == "" {
		dbPath = "./cache.db"
	}
	c, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	globalCache = c
	return c, nil
}

// ResetGlobalCache closes the shared cache so the next GetGlobalCache call
// reopens it from the current configuration.
func ResetGlobalCache() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalCache == nil {
		return nil
	}
	err := globalCache.Close()
	globalCache = nil
	return err
}

// Open opens the cache database at dbPath and creates every cache table
func Open(dbPath string) (*CacheDB, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	db.SetMaxOpenConns(1)

	c := &CacheDB{db: db, path: dbPath}
	for _, table := range CacheSources {
		if _, err := db.Exec(fmt.Sprintf(tableLayout, table)); err != nil {
			return nil, errors.Join(fmt.Errorf("failed to create cache table %s: %w", table, err), db.Close())
		}
	}
	return c, nil
}

// Path returns the database file the cache was opened from
func (c *CacheDB) Path() string {
	return c.path
}

// Close closes the database connection
func (c *CacheDB) Close() error {
	return c.db.Close()
}

func checkTable(table string) error {
	if !knownTable(table) {
		return fmt.Errorf("invalid cache table name: %s", table)
	}
	return nil
}

// Get returns the payload stored under key. Entries older than ttl are
// misses; a zero ttl never expires entries.
func (c *CacheDB) Get(ctx context.Context, table, key string, ttl time.Duration) (string, bool, error) {
	if err := checkTable(table); err != nil {
		return "", false, err
	}

	var (
		data     string
		cachedAt int64
	)
	query := fmt.Sprintf("SELECT data, cached_at FROM %s WHERE cache_key = ?", table)
	err := c.db.QueryRowContext(ctx, query, key).Scan(&data, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query cache: %w", err)
	}

	if age := now().Sub(time.Unix(cachedAt, 0)); ttl > 0 && age > ttl {
		slog.Debug("Cache expired", "table", table, "key", key, "age", age)
		return "", false, nil
	}
	return data, true, nil
}

// Set stores data under key, replacing any previous entry
func (c *CacheDB) Set(ctx context.Context, table, key, data string) error {
	if err := checkTable(table); err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %s (cache_key, data, cached_at) VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at`, table)
	if _, err := c.db.ExecContext(ctx, query, key, data, now().Unix()); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// Clear deletes every entry of table and returns how many were removed
func (c *CacheDB) Clear(ctx context.Context, table string) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	return c.exec(ctx, fmt.Sprintf("DELETE FROM %s", table))
}

// Prune deletes the entries of table older than ttl
func (c *CacheDB) Prune(ctx context.Context, table string, ttl time.Duration) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	cutoff := now().Add(-ttl).Unix()
	return c.exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE cached_at < ?", table), cutoff)
}

func (c *CacheDB) exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cache entries: %w", err)
	}
	return result.RowsAffected()
}

// ConfiguredTTL reads cache.ttl from config, falling back to DefaultCacheTTL
func ConfiguredTTL() time.Duration {
	raw := viper.GetString("cache.ttl")
	if raw == "" {
		return DefaultCacheTTL
	}
	ttl, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("Invalid cache TTL, using default", "ttl", raw, "error", err)
		return DefaultCacheTTL
	}
	return ttl
}

// Store is a typed view over a single cache table. Values are stored as JSON.
type Store[T any] struct {
	db    *CacheDB
	table string
	ttl   time.Duration
}

// NewStore returns a typed store for table. A zero ttl never expires entries.
func NewStore[T any](db *CacheDB, table string, ttl time.Duration) *Store[T] {
	return &Store[T]{db: db, table: table, ttl: ttl}
}

// Get returns the value cached under key and whether it was found.
// Entries that fail to decode are misses so the caller rebuilds them.
func (s *Store[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var value T

	raw, ok, err := s.db.Get(ctx, s.table, key, s.ttl)
	if err != nil || !ok {
		return value, false, err
	}

	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		slog.Warn("Discarding undecodable cache entry", "table", s.table, "key", key, "error", err)
		var zero T
		return zero, false, nil
	}

	slog.Debug("Cache hit", "table", s.table, "key", key)
	return value, true, nil
}

// Set stores value under key, replacing any previous entry.
func (s *Store[T]) Set(ctx context.Context, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal data for caching: %w", err)
	}
	return s.db.Set(ctx, s.table, key, string(data))
}
