// Package catalog persists table schemas under the reserved _schema/
// directory (spec §4.C) and enforces table-name and primary-key-column
// uniqueness. It reads and writes through whatever view.Snapshot the caller
// (usually a txn.Transaction) hands it — the catalog itself has no notion
// of branches or commits.
package catalog

import (
	"errors"
	"fmt"
	"sort"

	goccyjson "github.com/goccy/go-json"

	"github.com/dgraph-io/ristretto"

	"github.com/gitdb-project/gitdb/dberr"
	"github.com/gitdb-project/gitdb/objstore"
	"github.com/gitdb-project/gitdb/schema"
	"github.com/gitdb-project/gitdb/view"
)

// Catalog is a thin, stateless-except-for-caching wrapper: every call takes
// the view.Snapshot it should operate against, so one Catalog value can
// safely serve many concurrent transactions each with their own snapshot.
type Catalog struct {
	cache *ristretto.Cache
}

// New builds a Catalog with a small read-through schema cache. The cache is
// keyed by (root tree OID, table name): a commit that changes any schema
// blob has a new root tree OID, so a stale entry is never looked up again
// without any explicit invalidation bookkeeping (spec §9's caching note).
func New() (*Catalog, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: building cache: %w", err)
	}
	return &Catalog{cache: cache}, nil
}

type cacheKey struct {
	root  objstore.OID
	table string
}

// GetSchema returns the persisted schema for name, or ErrTableNotFound.
func (c *Catalog) GetSchema(snap *view.Snapshot, name string) (*schema.Table, error) {
	key := cacheKey{root: snap.Root(), table: name}
	if v, ok := c.cache.Get(key); ok {
		return v.(*schema.Table), nil
	}

	data, ok, err := snap.ReadFile(view.SchemaDir, name)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading schema %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", dberr.ErrTableNotFound, name)
	}

	var t schema.Table
	if err := goccyjson.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("catalog: %w: decoding schema %s: %v", dberr.ErrCorruptBlob, name, err)
	}

	c.cache.Set(key, &t, 1)
	return &t, nil
}

// TableExists reports whether name is defined.
func (c *Catalog) TableExists(snap *view.Snapshot, name string) (bool, error) {
	_, err := c.GetSchema(snap, name)
	if err != nil {
		if errors.Is(err, dberr.ErrTableNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListTables returns table names in deterministic (lexicographic) order.
func (c *Catalog) ListTables(snap *view.Snapshot) ([]string, error) {
	entries, err := snap.ListDir(view.SchemaDir)
	if err != nil {
		return nil, fmt.Errorf("catalog: listing tables: %w", err)
	}
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// CreateTableOp validates t and returns the view.DirOp that persists it;
// callers (txn.Transaction) combine this with any other ops of the same
// statement before calling Snapshot.Apply once.
func (c *Catalog) CreateTableOp(snap *view.Snapshot, t *schema.Table) (view.DirOp, error) {
	if err := t.Validate(); err != nil {
		return view.DirOp{}, err
	}
	if exists, err := c.TableExists(snap, t.Name); err != nil {
		return view.DirOp{}, err
	} else if exists {
		return view.DirOp{}, fmt.Errorf("%w: %s", dberr.ErrTableAlreadyExists, t.Name)
	}

	data, err := goccyjson.Marshal(t)
	if err != nil {
		return view.DirOp{}, fmt.Errorf("catalog: encoding schema %s: %w", t.Name, err)
	}
	return view.DirOp{
		Dir: view.SchemaDir,
		Put: map[string][]byte{t.Name: data},
	}, nil
}

// DropTableOp validates that name exists and returns the two DirOps needed
// to remove both the schema entry and the table directory atomically in
// one commit (spec §4.C).
func (c *Catalog) DropTableOp(snap *view.Snapshot, name string) ([]view.DirOp, error) {
	if exists, err := c.TableExists(snap, name); err != nil {
		return nil, err
	} else if !exists {
		return nil, fmt.Errorf("%w: %s", dberr.ErrTableNotFound, name)
	}
	return []view.DirOp{
		{Dir: view.SchemaDir, Delete: []string{name}},
		{Dir: name, DropDir: true},
	}, nil
}

// InvalidateAll drops every cached schema. exec calls it after every
// CREATE TABLE and DROP TABLE; since entries are keyed by root tree OID,
// this is a defensive full clear rather than a correctness requirement.
func (c *Catalog) InvalidateAll() {
	c.cache.Clear()
}
