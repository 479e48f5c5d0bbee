// Package cache stores external provider responses in a local SQLite
// database so repeated enrichment runs don't hammer the APIs.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/viper"
	_ "modernc.org/sqlite"
)

const (
	// DefaultCacheTTL is how long successful provider responses stay fresh.
	DefaultCacheTTL = 720 * time.Hour // 30 days
	// NegativeCacheTTL is the shorter lifetime for "not found" responses.
	NegativeCacheTTL = 168 * time.Hour // 7 days
)

// providerTables lists every cache table, one per external provider. The
// list doubles as the whitelist for dynamic table names in queries.
var providerTables = []string{
	"openlibrary_cache",
	"googlebooks_cache",
}

const tableSchema = `
CREATE TABLE IF NOT EXISTS %[1]s (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_cached_at ON %[1]s(cached_at);
`

// FetchFunc produces a value when the cache has nothing fresh.
type FetchFunc[T any] func() (T, error)

// DB is a handle to the cache database.
type DB struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	global     *DB
	globalOnce sync.Once
)

// GetGlobalCache returns the process-wide cache handle, opening the
// database at viper's cache.dbfile on first use.
func GetGlobalCache() (*DB, error) {
	var initErr error
	globalOnce.Do(func() {
		path := viper.GetString("cache.dbfile")
		if path == "" {
			path = "./cache.db"
		}
		global, initErr = open(path)
	})
	if initErr != nil {
		return nil, initErr
	}
	return global, nil
}

// ResetGlobalCache closes the global handle and forgets it, so the next
// GetGlobalCache reopens at the current cache.dbfile. Used by tests.
func ResetGlobalCache() error {
	if global != nil {
		if err := global.Close(); err != nil {
			return err
		}
	}
	global = nil
	globalOnce = sync.Once{}
	return nil
}

func open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	for _, table := range providerTables {
		if _, err := sqlDB.Exec(fmt.Sprintf(tableSchema, table)); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("create cache table %s: %w", table, err)
		}
	}
	return &DB{db: sqlDB}, nil
}

// Close closes the underlying database.
func (c *DB) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func checkTable(table string) error {
	for _, known := range providerTables {
		if table == known {
			return nil
		}
	}
	return fmt.Errorf("unknown cache table %q", table)
}

// Get returns the cached payload for key if it is younger than ttl.
// The bool reports whether a fresh entry was found.
func (c *DB) Get(table, key string, ttl time.Duration) (string, bool, error) {
	if err := checkTable(table); err != nil {
		return "", false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var data string
	var cachedAt time.Time
	row := c.db.QueryRow(fmt.Sprintf(`SELECT data, cached_at FROM %s WHERE cache_key = ?`, table), key)
	switch err := row.Scan(&data, &cachedAt); {
	case err == sql.ErrNoRows:
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("read cache: %w", err)
	}

	if time.Since(cachedAt.UTC()) > ttl {
		return "", false, nil
	}
	return data, true, nil
}

// Set stores data under key, replacing any previous entry.
func (c *DB) Set(table, key, data string) error {
	if err := checkTable(table); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(
		fmt.Sprintf(`INSERT OR REPLACE INTO %s (cache_key, data, cached_at) VALUES (?, ?, CURRENT_TIMESTAMP)`, table),
		key, data)
	if err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}

// SelectNegativeCacheTTL returns a TTL selector giving "not found"
// responses the shorter negative-cache lifetime.
func SelectNegativeCacheTTL[T any](isNotFound func(T) bool) func(T) time.Duration {
	return func(result T) time.Duration {
		if isNotFound(result) {
			return NegativeCacheTTL
		}
		return DefaultCacheTTL
	}
}

// GetOrFetchWithTTL returns the cached value for cacheKey, calling fetch
// on a miss and storing the result. ttlSelector decides the freshness
// window for the fetched value. The bool reports a cache hit. Cache
// failures degrade to a direct fetch and never surface as errors.
func GetOrFetchWithTTL[T any](table, cacheKey string, fetch FetchFunc[T], ttlSelector func(T) time.Duration) (T, bool, error) {
	var zero T

	handle, err := GetGlobalCache()
	if err != nil {
		slog.Warn("Cache unavailable, fetching directly", "error", err)
		value, fetchErr := fetch()
		return value, false, fetchErr
	}

	ttl := DefaultCacheTTL
	if s := viper.GetString("cache.ttl"); s != "" {
		if parsed, err := time.ParseDuration(s); err == nil {
			ttl = parsed
		} else {
			slog.Warn("Invalid cache.ttl, using default", "ttl", s, "error", err)
		}
	}

	if raw, hit, err := handle.Get(table, cacheKey, ttl); err == nil && hit {
		var value T
		if err := json.Unmarshal([]byte(raw), &value); err == nil {
			return value, true, nil
		}
		slog.Warn("Discarding unreadable cache entry", "table", table, "key", cacheKey)
	}

	value, err := fetch()
	if err != nil {
		return zero, false, err
	}

	if ttlSelector != nil {
		ttl = ttlSelector(value)
	}
	if raw, err := json.Marshal(value); err != nil {
		slog.Warn("Failed to encode value for cache", "table", table, "key", cacheKey, "error", err)
	} else if err := handle.Set(table, cacheKey, string(raw)); err != nil {
		slog.Warn("Failed to store cache entry", "table", table, "key", cacheKey, "error", err)
	} else {
		slog.Debug("Cached provider response", "table", table, "key", cacheKey, "ttl", ttl)
	}

	return value, false, nil
}
