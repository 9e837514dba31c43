package sqlparse

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gitdb-project/gitdb/sqlast"
)

// DefaultCacheSize bounds the number of distinct statement texts a Cache
// keeps a parsed tree for.
const DefaultCacheSize = 512

type cacheEntry struct {
	stmt sqlast.Statement
	err  error
}

// Cache memoizes Parse by exact statement text. Prepared-statement-style
// workloads re-submit the same SQL text on every call (a fixed query run
// once per request, a batch INSERT template run once per row); re-running
// the recursive-descent parser on each of those is pure waste, so repeated
// identical text short-circuits straight to the cached tree.
type Cache struct {
	lru *lru.Cache[string, cacheEntry]
}

// NewCache builds a Cache holding up to size distinct statement texts. A
// size of 0 uses DefaultCacheSize.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	l, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l}, nil
}

// Parse returns the cached parse of src if present, otherwise parses it,
// caches the outcome (success or failure), and returns it. Caching parse
// errors too means a malformed statement submitted repeatedly doesn't
// re-run the parser every time either.
func (c *Cache) Parse(src string) (sqlast.Statement, error) {
	stmt, err, _ := c.ParseHit(src)
	return stmt, err
}

// ParseHit is Parse plus whether src was already in the cache, for callers
// that report cache-hit metrics.
func (c *Cache) ParseHit(src string) (sqlast.Statement, error, bool) {
	if entry, ok := c.lru.Get(src); ok {
		return entry.stmt, entry.err, true
	}
	stmt, err := Parse(src)
	c.lru.Add(src, cacheEntry{stmt: stmt, err: err})
	return stmt, err, false
}
