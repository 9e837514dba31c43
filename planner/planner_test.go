package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitdb-project/gitdb/catalog"
	"github.com/gitdb-project/gitdb/objstore"
	"github.com/gitdb-project/gitdb/schema"
	"github.com/gitdb-project/gitdb/sqlast"
	"github.com/gitdb-project/gitdb/view"
)

func widgets() schema.Table {
	return schema.Table{
		Name: "widgets",
		Columns: []schema.ColumnDef{
			{Name: "id", Type: schema.Integer, IsPrimary: true},
			{Name: "name", Type: schema.Text, Nullable: true},
			{Name: "weight", Type: schema.Real, Nullable: true},
		},
		PrimaryIdx: 0,
	}
}

func setup(t *testing.T) (*catalog.Catalog, *view.Snapshot) {
	t.Helper()
	store, err := objstore.Init(t.TempDir())
	require.NoError(t, err)
	snap := view.New(store, objstore.ZeroOID)
	cat, err := catalog.New()
	require.NoError(t, err)

	tbl := widgets()
	op, err := cat.CreateTableOp(snap, &tbl)
	require.NoError(t, err)
	root, err := snap.Apply([]view.DirOp{op})
	require.NoError(t, err)
	return cat, view.New(store, root)
}

func TestPlanSelectStarLowersToScanProjectInSchemaOrder(t *testing.T) {
	cat, snap := setup(t)
	node, err := Plan(cat, snap, sqlast.Select{Table: "widgets", Star: true})
	require.NoError(t, err)

	proj, ok := node.(Project)
	require.True(t, ok)
	assert.Equal(t, []string{"id", "name", "weight"}, proj.Columns)
	_, ok = proj.Child.(Scan)
	assert.True(t, ok)
}

func TestPlanSelectWithPredicateOrderLimit(t *testing.T) {
	cat, snap := setup(t)
	n := int64(5)
	node, err := Plan(cat, snap, sqlast.Select{
		Table:     "widgets",
		Columns:   []string{"id"},
		Predicate: sqlast.BinaryOp{Op: sqlast.OpGt, Left: sqlast.Column{Name: "weight"}, Right: sqlast.Literal{Value: schema.RealValue(1)}},
		OrderBy:   []sqlast.OrderKey{{Column: "id", Descending: true}},
		Limit:     &n,
	})
	require.NoError(t, err)

	limit, ok := node.(Limit)
	require.True(t, ok)
	assert.EqualValues(t, 5, limit.N)

	srt, ok := limit.Child.(Sort)
	require.True(t, ok)
	assert.Equal(t, []SortKey{{Column: "id", Descending: true}}, srt.Keys)

	proj, ok := srt.Child.(Project)
	require.True(t, ok)

	_, ok = proj.Child.(Filter)
	assert.True(t, ok)
}

func TestPlanSelectRejectsUnknownColumn(t *testing.T) {
	cat, snap := setup(t)
	_, err := Plan(cat, snap, sqlast.Select{Table: "widgets", Columns: []string{"nope"}})
	assert.Error(t, err)
}

func TestPlanInsertResolvesPositionalColumns(t *testing.T) {
	cat, snap := setup(t)
	node, err := Plan(cat, snap, sqlast.Insert{
		Table: "widgets",
		Rows: [][]sqlast.Expr{
			{sqlast.Literal{Value: schema.IntValue(1)}, sqlast.Literal{Value: schema.TextValue("bolt")}, sqlast.Literal{Value: schema.RealValue(2.5)}},
		},
	})
	require.NoError(t, err)

	ins, ok := node.(Insert)
	require.True(t, ok)
	require.Len(t, ins.Rows, 1)
	assert.Equal(t, schema.IntValue(1), ins.Rows[0]["id"])
	assert.Equal(t, schema.TextValue("bolt"), ins.Rows[0]["name"])
}

func TestPlanInsertRejectsColumnValueMismatch(t *testing.T) {
	cat, snap := setup(t)
	_, err := Plan(cat, snap, sqlast.Insert{
		Table:   "widgets",
		Columns: []string{"id", "name"},
		Rows:    [][]sqlast.Expr{{sqlast.Literal{Value: schema.IntValue(1)}}},
	})
	assert.Error(t, err)
}

func TestPlanCreateAndDropTable(t *testing.T) {
	cat, snap := setup(t)
	node, err := Plan(cat, snap, sqlast.CreateTable{Table: widgets()})
	require.NoError(t, err)
	_, ok := node.(CreateTable)
	assert.True(t, ok)

	node, err = Plan(cat, snap, sqlast.DropTable{Table: "widgets"})
	require.NoError(t, err)
	assert.Equal(t, DropTable{Table: "widgets"}, node)
}

func TestPlanDropTableRejectsUnknownTable(t *testing.T) {
	cat, snap := setup(t)
	_, err := Plan(cat, snap, sqlast.DropTable{Table: "nope"})
	assert.Error(t, err)
}

func TestColumnsInSchemaOrder(t *testing.T) {
	w := widgets()
	assert.True(t, ColumnsInSchemaOrder(&w, []string{"id", "name", "weight"}))
	assert.False(t, ColumnsInSchemaOrder(&w, []string{"name", "id", "weight"}))
	assert.False(t, ColumnsInSchemaOrder(&w, []string{"id", "name"}))
}
