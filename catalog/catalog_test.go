package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitdb-project/gitdb/dberr"
	"github.com/gitdb-project/gitdb/objstore"
	"github.com/gitdb-project/gitdb/schema"
	"github.com/gitdb-project/gitdb/view"
)

func testTable(name string) *schema.Table {
	return &schema.Table{
		Name: name,
		Columns: []schema.ColumnDef{
			{Name: "id", Type: schema.Integer, IsPrimary: true},
			{Name: "label", Type: schema.Text, Nullable: true},
		},
		PrimaryIdx: 0,
	}
}

func newSnapshot(t *testing.T) (*objstore.Store, *view.Snapshot) {
	t.Helper()
	store, err := objstore.Init(t.TempDir())
	require.NoError(t, err)
	return store, view.New(store, objstore.ZeroOID)
}

func TestCreateAndGetSchema(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	store, snap := newSnapshot(t)

	op, err := c.CreateTableOp(snap, testTable("widgets"))
	require.NoError(t, err)

	root, err := snap.Apply([]view.DirOp{op})
	require.NoError(t, err)

	next := view.New(store, root)
	got, err := c.GetSchema(next, "widgets")
	require.NoError(t, err)
	assert.Equal(t, "widgets", got.Name)
	assert.Len(t, got.Columns, 2)
}

func TestCreateTableRejectsDuplicateName(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	store, snap := newSnapshot(t)

	op, err := c.CreateTableOp(snap, testTable("widgets"))
	require.NoError(t, err)
	root, err := snap.Apply([]view.DirOp{op})
	require.NoError(t, err)

	next := view.New(store, root)
	_, err = c.CreateTableOp(next, testTable("widgets"))
	assert.ErrorIs(t, err, dberr.ErrTableAlreadyExists)
}

func TestCreateTableRejectsInvalidSchema(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	_, snap := newSnapshot(t)

	bad := testTable("widgets")
	bad.Columns[0].IsPrimary = false
	_, err = c.CreateTableOp(snap, bad)
	assert.ErrorIs(t, err, dberr.ErrInvalidSchema)
}

func TestGetSchemaNotFound(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	_, snap := newSnapshot(t)

	_, err = c.GetSchema(snap, "missing")
	assert.ErrorIs(t, err, dberr.ErrTableNotFound)
}

func TestDropTableRemovesSchemaAndData(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	store, snap := newSnapshot(t)

	op, err := c.CreateTableOp(snap, testTable("widgets"))
	require.NoError(t, err)
	root, err := snap.Apply([]view.DirOp{
		op,
		{Dir: "widgets", Put: map[string][]byte{"1": []byte("row")}},
	})
	require.NoError(t, err)

	afterCreate := view.New(store, root)
	ops, err := c.DropTableOp(afterCreate, "widgets")
	require.NoError(t, err)
	root2, err := afterCreate.Apply(ops)
	require.NoError(t, err)

	final := view.New(store, root2)
	exists, err := c.TableExists(final, "widgets")
	require.NoError(t, err)
	assert.False(t, exists)

	entries, err := final.ListDir("widgets")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListTablesSorted(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	store, snap := newSnapshot(t)

	opB, err := c.CreateTableOp(snap, testTable("bravo"))
	require.NoError(t, err)
	root, err := snap.Apply([]view.DirOp{opB})
	require.NoError(t, err)

	next := view.New(store, root)
	opA, err := c.CreateTableOp(next, testTable("alpha"))
	require.NoError(t, err)
	root2, err := next.Apply([]view.DirOp{opA})
	require.NoError(t, err)

	names, err := c.ListTables(view.New(store, root2))
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "bravo"}, names)
}
