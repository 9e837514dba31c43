package physical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitdb-project/gitdb/planner"
	"github.com/gitdb-project/gitdb/schema"
	"github.com/gitdb-project/gitdb/sqlast"
)

func widgets() *schema.Table {
	return &schema.Table{
		Name: "widgets",
		Columns: []schema.ColumnDef{
			{Name: "id", Type: schema.Integer, IsPrimary: true},
			{Name: "name", Type: schema.Text, Nullable: true},
		},
		PrimaryIdx: 0,
	}
}

func TestBuildScanBecomesSeqScan(t *testing.T) {
	plan, err := Build(planner.Scan{Table: "widgets", Schema: widgets()})
	require.NoError(t, err)
	s, ok := plan.(SeqScan)
	require.True(t, ok)
	assert.Equal(t, "widgets", s.Table)
}

func TestBuildIndexLookupBecomesPointGet(t *testing.T) {
	node := planner.IndexLookup{
		Table:    "widgets",
		Schema:   widgets(),
		Key:      schema.IntValue(7),
		Residual: sqlast.Literal{Value: schema.BoolValue(true)},
	}
	plan, err := Build(node)
	require.NoError(t, err)
	pg, ok := plan.(PointGet)
	require.True(t, ok)
	assert.Equal(t, schema.IntValue(7), pg.Key)
}

func TestBuildPreservesShapeThroughFilterProjectSortLimit(t *testing.T) {
	n := int64(10)
	tree := planner.Limit{
		N: n,
		Child: planner.Sort{
			Keys:  []planner.SortKey{{Column: "id", Descending: true}},
			Child: planner.Project{
				Columns: []string{"id"},
				Child: planner.Filter{
					Predicate: sqlast.Literal{Value: schema.BoolValue(true)},
					Child:     planner.Scan{Table: "widgets", Schema: widgets()},
				},
			},
		},
	}

	plan, err := Build(tree)
	require.NoError(t, err)

	lim, ok := plan.(Limit)
	require.True(t, ok)
	assert.EqualValues(t, 10, lim.N)
	srt, ok := lim.Child.(Sort)
	require.True(t, ok)
	assert.Equal(t, []SortKey{{Column: "id", Descending: true}}, srt.Keys)
	proj, ok := srt.Child.(Project)
	require.True(t, ok)
	_, ok = proj.Child.(Filter)
	assert.True(t, ok)
}

func TestBuildDMLAndDDLPassThrough(t *testing.T) {
	_, err := Build(planner.Insert{Table: "widgets", Schema: widgets()})
	require.NoError(t, err)
	_, err = Build(planner.Update{Table: "widgets", Schema: widgets()})
	require.NoError(t, err)
	_, err = Build(planner.Delete{Table: "widgets"})
	require.NoError(t, err)
	_, err = Build(planner.CreateTable{Table: *widgets()})
	require.NoError(t, err)
	_, err = Build(planner.DropTable{Table: "widgets"})
	require.NoError(t, err)
}
