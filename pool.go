package gitdb

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of concurrently checked-out database handles, per
// spec §5's minimal connection-pool contract: a fixed capacity, a blocking
// checkout, and a release. It does not multiplex statements onto DB
// instances itself — every Handle wraps the same *DB, since the engine's
// real serialization point is the write lock inside txn.Manager, not the
// pool. The pool's job is purely to cap how many callers may be mid-
// statement at once.
type Pool struct {
	db  *DB
	sem *semaphore.Weighted
	cap int64
}

// NewPool wraps db with a pool that allows at most capacity concurrent
// checkouts.
func NewPool(db *DB, capacity int) *Pool {
	if capacity <= 0 {
		capacity = 1
	}
	return &Pool{db: db, sem: semaphore.NewWeighted(int64(capacity)), cap: int64(capacity)}
}

// Handle is one checked-out slot in the pool. Callers must call Release
// exactly once, typically via defer.
type Handle struct {
	pool *Pool
	db   *DB
}

// DB returns the underlying database handle this slot wraps.
func (h *Handle) DB() *DB { return h.db }

// Release returns this slot to the pool.
func (h *Handle) Release() {
	h.pool.sem.Release(1)
}

// Get blocks until a slot is free or ctx is done.
func (p *Pool) Get(ctx context.Context) (*Handle, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("gitdb: acquiring pool slot: %w", err)
	}
	return &Handle{pool: p, db: p.db}, nil
}

// Capacity returns the pool's fixed size.
func (p *Pool) Capacity() int { return int(p.cap) }
