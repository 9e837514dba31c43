package txn

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitdb-project/gitdb/catalog"
	"github.com/gitdb-project/gitdb/dberr"
	"github.com/gitdb-project/gitdb/lock"
	"github.com/gitdb-project/gitdb/objstore"
	"github.com/gitdb-project/gitdb/stats"
	"github.com/gitdb-project/gitdb/view"
)

func newTestManager(t *testing.T) (*Manager, *objstore.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := objstore.Init(dir)
	require.NoError(t, err)

	adv, err := lock.Open(dir)
	require.NoError(t, err)

	cat, err := catalog.New()
	require.NoError(t, err)

	st, err := stats.Open(filepath.Join(dir, "stats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return NewManager(store, adv, cat, st), store
}

func TestBeginCommitOnEmptyRepo(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()

	tx, err := mgr.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, Active, tx.State())

	err = tx.CommitStatement(ctx, []view.DirOp{
		{Dir: "widgets", Put: map[string][]byte{"1": []byte("row")}},
	}, "INSERT INTO widgets")
	require.NoError(t, err)

	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, Committed, tx.State())

	tip, ok, err := store.ReadRef(MainRef)
	require.NoError(t, err)
	require.True(t, ok)

	snap := view.New(store, mustTree(t, store, tip))
	data, ok, err := snap.ReadFile("widgets", "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "row", string(data))
}

func mustTree(t *testing.T, store *objstore.Store, commit objstore.OID) objstore.OID {
	t.Helper()
	tree, err := store.CommitTree(commit)
	require.NoError(t, err)
	return tree
}

func TestRollbackDiscardsChanges(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()

	tx, err := mgr.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CommitStatement(ctx, []view.DirOp{
		{Dir: "widgets", Put: map[string][]byte{"1": []byte("row")}},
	}, "INSERT INTO widgets"))

	require.NoError(t, tx.Rollback())
	assert.Equal(t, RolledBack, tx.State())

	_, ok, err := store.ReadRef(MainRef)
	require.NoError(t, err)
	assert.False(t, ok, "rollback must never advance main")
}

func TestDoubleCommitFails(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	tx, err := mgr.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CommitStatement(ctx, []view.DirOp{
		{Dir: "widgets", Put: map[string][]byte{"1": []byte("row")}},
	}, "INSERT INTO widgets"))
	require.NoError(t, tx.Commit(ctx))

	err = tx.Commit(ctx)
	assert.ErrorIs(t, err, dberr.ErrTransactionState)
}

func TestSetIdentityAndLockTimeoutDoNotBreakCommit(t *testing.T) {
	mgr, store := newTestManager(t)
	mgr.SetIdentity(objstore.Signature{Name: "ops-bot", Email: "ops@example.com"})
	mgr.SetLockTimeout(100 * time.Millisecond)
	ctx := context.Background()

	tx, err := mgr.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CommitStatement(ctx, []view.DirOp{
		{Dir: "widgets", Put: map[string][]byte{"1": []byte("row")}},
	}, "INSERT INTO widgets"))
	require.NoError(t, tx.Commit(ctx))

	_, ok, err := store.ReadRef(MainRef)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConcurrentTransactionsOnDisjointTablesBothCommit(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()

	tx1, err := mgr.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx1.CommitStatement(ctx, []view.DirOp{
		{Dir: "widgets", Put: map[string][]byte{"1": []byte("a")}},
	}, "INSERT INTO widgets"))

	tx2, err := mgr.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx2.CommitStatement(ctx, []view.DirOp{
		{Dir: "gadgets", Put: map[string][]byte{"1": []byte("b")}},
	}, "INSERT INTO gadgets"))

	require.NoError(t, tx1.Commit(ctx))
	require.NoError(t, tx2.Commit(ctx), "disjoint-table writes must merge cleanly")

	tip, ok, err := store.ReadRef(MainRef)
	require.NoError(t, err)
	require.True(t, ok)
	snap := view.New(store, mustTree(t, store, tip))

	_, ok, err = snap.ReadFile("widgets", "1")
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = snap.ReadFile("gadgets", "1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConcurrentTransactionsOnSameRowConflict(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	tx1, err := mgr.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx1.CommitStatement(ctx, []view.DirOp{
		{Dir: "widgets", Put: map[string][]byte{"1": []byte("a")}},
	}, "INSERT INTO widgets"))

	tx2, err := mgr.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx2.CommitStatement(ctx, []view.DirOp{
		{Dir: "widgets", Put: map[string][]byte{"1": []byte("b")}},
	}, "INSERT INTO widgets"))

	require.NoError(t, tx1.Commit(ctx))
	err = tx2.Commit(ctx)
	assert.ErrorIs(t, err, dberr.ErrCommitConflict)
	assert.Equal(t, RolledBack, tx2.State())
}

func TestRecoverSweepsOrphanBranches(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()

	tx, err := mgr.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CommitStatement(ctx, []view.DirOp{
		{Dir: "widgets", Put: map[string][]byte{"1": []byte("a")}},
	}, "INSERT INTO widgets"))

	// Simulate a crashed process: nothing is registered in a fresh Manager.
	fresh := NewManager(store, mgr.lock, mgr.catalog, mgr.stats)
	err = fresh.Recover(ctx, func() ([]string, error) {
		return []string{tx.ref}, nil
	})
	require.NoError(t, err)

	_, ok, err := store.ReadRef(tx.ref)
	require.NoError(t, err)
	assert.False(t, ok, "orphaned transaction branch must be deleted on recovery")
}
