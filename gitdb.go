// Package gitdb is the database facade component K: Open/Execute/Explain/
// Stats/Close over the engine's full pipeline — sqlparse → planner →
// optimizer → physical → exec — plus the transaction-control statements
// (BEGIN/COMMIT/ROLLBACK) that sit outside that pipeline and talk to
// txn.Manager directly.
package gitdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/gitdb-project/gitdb/catalog"
	"github.com/gitdb-project/gitdb/config"
	"github.com/gitdb-project/gitdb/dberr"
	"github.com/gitdb-project/gitdb/exec"
	"github.com/gitdb-project/gitdb/gitlog"
	"github.com/gitdb-project/gitdb/lock"
	"github.com/gitdb-project/gitdb/objstore"
	"github.com/gitdb-project/gitdb/optimizer"
	"github.com/gitdb-project/gitdb/physical"
	"github.com/gitdb-project/gitdb/planner"
	"github.com/gitdb-project/gitdb/schema"
	"github.com/gitdb-project/gitdb/sqlast"
	"github.com/gitdb-project/gitdb/sqlparse"
	"github.com/gitdb-project/gitdb/stats"
	"github.com/gitdb-project/gitdb/txn"
)

// Result is the outcome of one Execute call: a materialized row set for
// queries, or a modification count for DML/DDL, mirroring exec.Result.
type Result = exec.Result

// Option configures Open.
type Option func(*options)

type options struct {
	parseCacheSize int
	identity       *objstore.Signature
	lockTimeout    time.Duration
	config         *config.Config
	tracer         oteltrace.Tracer
}

// WithParseCacheSize overrides the statement-text parse cache's capacity
// (default sqlparse.DefaultCacheSize).
func WithParseCacheSize(n int) Option {
	return func(o *options) { o.parseCacheSize = n }
}

// WithConfig applies a layered config.Config loaded by the caller
// (typically cmd/gitdb, via config.Load): commit author identity, the
// write lock's acquire timeout, and the parse cache size.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		sig := objstore.Signature{Name: cfg.Commit.AuthorName, Email: cfg.Commit.AuthorEmail}
		o.identity = &sig
		o.lockTimeout = cfg.Lock.AcquireTimeout
		o.parseCacheSize = cfg.Cache.ParseSize
		o.config = cfg
	}
}

// WithTracer attaches an OpenTelemetry Tracer (typically
// (*telemetry.Telemetry).Tracer()) that Execute and commits report spans
// to. Unset, the database traces against a no-op tracer: span calls cost
// a negligible allocation and nothing is ever exported.
func WithTracer(tracer oteltrace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// DB is one open handle onto a repository-backed relational database. A
// single DB is safe for concurrent use; every statement still serializes
// through the single-writer advisory lock at commit time.
type DB struct {
	store *objstore.Store
	lock  *lock.Advisory
	cat   *catalog.Catalog
	stats *stats.Store
	mgr   *txn.Manager
	cache  *sqlparse.Cache
	log    *slog.Logger
	tracer oteltrace.Tracer

	metrics *metrics

	mu  chanMutex
	txn *txn.Transaction
}

// chanMutex is a context-aware mutex: Lock blocks on ctx as well as on the
// lock itself, so a canceled caller doesn't hang waiting for an implicit
// transaction's statement to finish.
type chanMutex chan struct{}

func newChanMutex() chanMutex { c := make(chanMutex, 1); return c }

func (m chanMutex) Lock(ctx context.Context) error {
	select {
	case m <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m chanMutex) Unlock() { <-m }

// Open opens the repository at path, initializing it as a fresh, empty
// gitdb database if it does not already exist, and sweeps any transaction
// branches orphaned by a previous crashed process (spec §5).
func Open(path string, opts ...Option) (*DB, error) {
	cfg := options{parseCacheSize: sqlparse.DefaultCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := gitlog.New("gitdb")

	store, err := objstore.Open(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		logger.Info("initializing new repository", "path", path)
		store, err = objstore.Init(path)
	} else if err == nil {
		logger.Info("reopening existing repository", "path", path)
	}
	if err != nil {
		return nil, fmt.Errorf("gitdb: opening %s: %w", path, err)
	}

	adv, err := lock.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gitdb: opening write lock: %w", err)
	}

	cat, err := catalog.New()
	if err != nil {
		return nil, fmt.Errorf("gitdb: opening catalog cache: %w", err)
	}

	statsPath := filepath.Join(path, ".gitdb", "stats.db")
	if cfg.config != nil {
		statsPath, err = cfg.config.StatsDBPath(path)
		if err != nil {
			return nil, fmt.Errorf("gitdb: resolving stats path: %w", err)
		}
	}
	st, err := stats.Open(statsPath)
	if err != nil {
		return nil, fmt.Errorf("gitdb: opening stats store: %w", err)
	}

	cache, err := sqlparse.NewCache(cfg.parseCacheSize)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("gitdb: building parse cache: %w", err)
	}

	mgr := txn.NewManager(store, adv, cat, st)
	if cfg.identity != nil {
		mgr.SetIdentity(*cfg.identity)
	}
	if cfg.lockTimeout > 0 {
		mgr.SetLockTimeout(cfg.lockTimeout)
	}
	recovered := 0
	if err := mgr.Recover(context.Background(), func() ([]string, error) {
		refs, err := store.ListRefs("refs/heads/txn/")
		recovered = len(refs)
		return refs, err
	}); err != nil {
		st.Close()
		return nil, fmt.Errorf("gitdb: recovering orphaned transactions: %w", err)
	}
	if recovered > 0 {
		logger.Warn("swept orphaned transaction branches", "count", recovered)
	}

	tracer := cfg.tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("gitdb")
	}

	return &DB{
		store:   store,
		lock:    adv,
		cat:     cat,
		stats:   st,
		mgr:     mgr,
		cache:   cache,
		log:     logger,
		tracer:  tracer,
		metrics: newMetrics(),
		mu:      newChanMutex(),
	}, nil
}

// Close releases the database's long-lived resources. It does not roll
// back an in-progress explicit (BEGIN) transaction; callers that Execute(BEGIN)
// without a matching COMMIT/ROLLBACK own that transaction's branch until
// the next Open's orphan sweep reclaims it.
func (db *DB) Close() error {
	return db.stats.Close()
}

// Execute parses, plans, optimizes and runs sql. BEGIN/COMMIT/ROLLBACK are
// handled directly against txn.Manager; every other statement runs as its
// own single-statement transaction unless one is already open via a prior
// BEGIN.
func (db *DB) Execute(ctx context.Context, sql string) (Result, error) {
	ctx, span := db.tracer.Start(ctx, "gitdb.Execute", oteltrace.WithAttributes(attribute.String("sql", sql)))
	defer span.End()

	if err := db.mu.Lock(ctx); err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	defer db.mu.Unlock()

	stmt, err, hit := db.cache.ParseHit(sql)
	if hit {
		db.metrics.cacheHits.Inc()
	}
	if err != nil {
		db.log.Error("parse failed", "error", err)
		span.RecordError(err)
		return Result{}, err
	}

	switch stmt.(type) {
	case sqlast.Begin:
		return db.beginLocked(ctx)
	case sqlast.Commit:
		return db.commitLocked(ctx)
	case sqlast.Rollback:
		return db.rollbackLocked()
	}

	db.metrics.statements.Inc()

	if db.txn != nil {
		res, err := db.runLocked(ctx, db.txn, stmt)
		if err != nil {
			db.log.Error("statement failed", "error", err)
			span.RecordError(err)
		}
		return res, err
	}

	tx, err := db.mgr.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	res, err := db.runLocked(ctx, tx, stmt)
	if err != nil {
		db.log.Error("statement failed", "error", err)
		span.RecordError(err)
		tx.Rollback()
		return Result{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		db.log.Error("commit failed", "error", err)
		span.RecordError(err)
		return Result{}, err
	}
	db.metrics.commits.Inc()
	db.log.Debug("committed statement", "sql", sql)
	return res, nil
}

func (db *DB) beginLocked(ctx context.Context) (Result, error) {
	if db.txn != nil {
		return Result{}, dberr.ErrNestedTransaction
	}
	tx, err := db.mgr.Begin(ctx)
	if err != nil {
		return Result{}, err
	}
	db.txn = tx
	return Result{}, nil
}

func (db *DB) commitLocked(ctx context.Context) (Result, error) {
	ctx, span := db.tracer.Start(ctx, "gitdb.Commit")
	defer span.End()

	if db.txn == nil {
		return Result{}, dberr.ErrNoActiveTransaction
	}
	tx := db.txn
	db.txn = nil
	if err := tx.Commit(ctx); err != nil {
		db.log.Error("explicit commit failed", "error", err)
		span.RecordError(err)
		return Result{}, err
	}
	db.metrics.commits.Inc()
	db.log.Debug("committed transaction")
	return Result{}, nil
}

func (db *DB) rollbackLocked() (Result, error) {
	if db.txn == nil {
		return Result{}, dberr.ErrNoActiveTransaction
	}
	tx := db.txn
	db.txn = nil
	db.log.Debug("rolled back transaction")
	return Result{}, tx.Rollback()
}

func (db *DB) runLocked(ctx context.Context, tx *txn.Transaction, stmt sqlast.Statement) (Result, error) {
	logical, err := planner.Plan(db.cat, tx.Snapshot(), stmt)
	if err != nil {
		return Result{}, err
	}
	optimized, err := optimizer.Optimize(ctx, db.stats, logical)
	if err != nil {
		return Result{}, err
	}
	phys, err := physical.Build(optimized)
	if err != nil {
		return Result{}, err
	}
	return exec.Execute(ctx, tx, db.stats, phys)
}

// Explain runs sql through the plan pipeline without executing it,
// returning the physical plan an Execute call with the same SQL and
// catalog state would run.
func (db *DB) Explain(ctx context.Context, sql string) (physical.Plan, error) {
	if err := db.mu.Lock(ctx); err != nil {
		return nil, err
	}
	defer db.mu.Unlock()

	stmt, err, hit := db.cache.ParseHit(sql)
	if hit {
		db.metrics.cacheHits.Inc()
	}
	if err != nil {
		return nil, err
	}

	t, rollback, err := db.snapshotLocked(ctx)
	if err != nil {
		return nil, err
	}
	defer rollback()

	logical, err := planner.Plan(db.cat, t.Snapshot(), stmt)
	if err != nil {
		return nil, err
	}
	optimized, err := optimizer.Optimize(ctx, db.stats, logical)
	if err != nil {
		return nil, err
	}
	return physical.Build(optimized)
}

// Stats returns the optimizer's row-count cache for every tracked table.
func (db *DB) Stats(ctx context.Context) (stats.Snapshot, error) {
	return db.stats.All(ctx)
}

// Tables lists every table visible in the current snapshot (the open
// explicit (BEGIN) transaction's, if any, else a throwaway read-only one), for
// the REPL's .tables command.
func (db *DB) Tables(ctx context.Context) ([]string, error) {
	if err := db.mu.Lock(ctx); err != nil {
		return nil, err
	}
	defer db.mu.Unlock()

	t, rollback, err := db.snapshotLocked(ctx)
	if err != nil {
		return nil, err
	}
	defer rollback()

	return db.cat.ListTables(t.Snapshot())
}

// Schema returns the named table's schema, for the REPL's .schema
// command.
func (db *DB) Schema(ctx context.Context, table string) (*schema.Table, error) {
	if err := db.mu.Lock(ctx); err != nil {
		return nil, err
	}
	defer db.mu.Unlock()

	t, rollback, err := db.snapshotLocked(ctx)
	if err != nil {
		return nil, err
	}
	defer rollback()

	return db.cat.GetSchema(t.Snapshot(), table)
}

// snapshotLocked returns a transaction to read a snapshot from, reusing
// an open explicit (BEGIN) transaction or beginning (and arranging to roll
// back) a throwaway one. Callers must hold db.mu already.
func (db *DB) snapshotLocked(ctx context.Context) (*txn.Transaction, func(), error) {
	if db.txn != nil {
		return db.txn, func() {}, nil
	}
	t, err := db.mgr.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	return t, func() { t.Rollback() }, nil
}

// MetricsRegistry exposes this database's Prometheus registry, for
// httpapi's GET /metrics handler.
func (db *DB) MetricsRegistry() *prometheus.Registry {
	return db.metrics.registry
}
