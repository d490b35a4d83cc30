package cache

// CoverCacheTable holds materialized cover image identities keyed by book ISBN
const CoverCacheTable = "goodreads_cover_cache"

// Every cache table shares one layout: a text key, a JSON payload and the
// unix time the entry was written.
const tableLayout = `
CREATE TABLE IF NOT EXISTS %[1]s (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_cached_at ON %[1]s(cached_at);
`

// CacheSources maps the user-facing source names accepted by the cache
// commands to their tables. Only these tables are ever created or queried.
var CacheSources = map[string]string{
	"covers": CoverCacheTable,
}

func knownTable(table string) bool {
	for _, t := range CacheSources {
		if t == table {
			return true
		}
	}
	return false
}
