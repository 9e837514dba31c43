package objstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListRefsFiltersByPrefix(t *testing.T) {
	store, err := Init(t.TempDir())
	require.NoError(t, err)

	blob, err := store.WriteBlob([]byte("row"))
	require.NoError(t, err)
	tree, err := store.WriteTree(Tree{"1": {Kind: KindBlob, OID: blob}})
	require.NoError(t, err)
	commit, err := store.Commit(nil, tree, "seed", Signature{Name: "gitdb", Email: "gitdb@localhost"})
	require.NoError(t, err)

	require.NoError(t, store.UpdateRef("refs/heads/main", ZeroOID, commit))
	require.NoError(t, store.UpdateRef("refs/heads/txn/one", ZeroOID, commit))
	require.NoError(t, store.UpdateRef("refs/heads/txn/two", ZeroOID, commit))

	names, err := store.ListRefs("refs/heads/txn/")
	require.NoError(t, err)
	assert.Equal(t, []string{"refs/heads/txn/one", "refs/heads/txn/two"}, names)

	names, err = store.ListRefs("refs/heads/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"refs/heads/main", "refs/heads/txn/one", "refs/heads/txn/two"}, names)
}

func TestMergeBaseFindsCommonAncestorOfDivergedBranches(t *testing.T) {
	store, err := Init(t.TempDir())
	require.NoError(t, err)
	sig := Signature{Name: "gitdb", Email: "gitdb@localhost"}

	blob, err := store.WriteBlob([]byte("row"))
	require.NoError(t, err)
	tree, err := store.WriteTree(Tree{"1": {Kind: KindBlob, OID: blob}})
	require.NoError(t, err)
	base, err := store.Commit(nil, tree, "seed", sig)
	require.NoError(t, err)

	left, err := store.Commit(&base, tree, "left", sig)
	require.NoError(t, err)
	right, err := store.Commit(&base, tree, "right", sig)
	require.NoError(t, err)

	mb, ok, err := store.MergeBase(left, right)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, base, mb)
}
