package optimizer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitdb-project/gitdb/planner"
	"github.com/gitdb-project/gitdb/schema"
	"github.com/gitdb-project/gitdb/sqlast"
	"github.com/gitdb-project/gitdb/stats"
)

func widgets() *schema.Table {
	return &schema.Table{
		Name: "widgets",
		Columns: []schema.ColumnDef{
			{Name: "id", Type: schema.Integer, IsPrimary: true},
			{Name: "name", Type: schema.Text, Nullable: true},
			{Name: "weight", Type: schema.Real, Nullable: true},
		},
		PrimaryIdx: 0,
	}
}

func testStore(t *testing.T) *stats.Store {
	t.Helper()
	s, err := stats.Open(filepath.Join(t.TempDir(), "stats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOptimizeRecognizesPrimaryKeyLookup(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, "widgets", 1000))

	scan := planner.Scan{Table: "widgets", Schema: widgets()}
	filter := planner.Filter{
		Child:     scan,
		Predicate: sqlast.BinaryOp{Op: sqlast.OpEq, Left: sqlast.Column{Name: "id"}, Right: sqlast.Literal{Value: schema.IntValue(7)}},
	}
	proj := planner.Project{Child: filter, Columns: []string{"id", "name", "weight"}}

	out, err := Optimize(ctx, st, proj)
	require.NoError(t, err)

	lookup, ok := out.(planner.IndexLookup)
	require.True(t, ok, "expected dead projection elimination to leave IndexLookup at the root, got %T", out)
	assert.Equal(t, schema.IntValue(7), lookup.Key)
	assert.Equal(t, schema.BoolValue(true), lookup.Residual.(sqlast.Literal).Value)
}

func TestOptimizeKeepsResidualPredicateAlongsideLookup(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, "widgets", 1000))

	scan := planner.Scan{Table: "widgets", Schema: widgets()}
	pred := sqlast.BinaryOp{
		Op:    sqlast.OpAnd,
		Left:  sqlast.BinaryOp{Op: sqlast.OpEq, Left: sqlast.Column{Name: "id"}, Right: sqlast.Literal{Value: schema.IntValue(7)}},
		Right: sqlast.BinaryOp{Op: sqlast.OpGt, Left: sqlast.Column{Name: "weight"}, Right: sqlast.Literal{Value: schema.RealValue(1)}},
	}
	filter := planner.Filter{Child: scan, Predicate: pred}

	out, err := Optimize(ctx, st, filter)
	require.NoError(t, err)
	lookup, ok := out.(planner.IndexLookup)
	require.True(t, ok)
	assert.Equal(t, schema.IntValue(7), lookup.Key)
	residualGt, ok := lookup.Residual.(sqlast.BinaryOp)
	require.True(t, ok, "residual must retain the non-key conjunct, got %#v", lookup.Residual)
	assert.Equal(t, sqlast.OpGt, residualGt.Op)
}

func TestOptimizePushesFilterBeneathProject(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	scan := planner.Scan{Table: "widgets", Schema: widgets()}
	proj := planner.Project{Child: scan, Columns: []string{"id"}}
	filter := planner.Filter{
		Child:     proj,
		Predicate: sqlast.BinaryOp{Op: sqlast.OpGt, Left: sqlast.Column{Name: "weight"}, Right: sqlast.Literal{Value: schema.RealValue(1)}},
	}

	out, err := Optimize(ctx, st, filter)
	require.NoError(t, err)

	p, ok := out.(planner.Project)
	require.True(t, ok, "filter must end up beneath project, got %T", out)
	_, ok = p.Child.(planner.Filter)
	assert.True(t, ok)
}

func TestOptimizeMergesAdjacentFilters(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	scan := planner.Scan{Table: "widgets", Schema: widgets()}
	inner := planner.Filter{Child: scan, Predicate: sqlast.Literal{Value: schema.BoolValue(true)}}
	outer := planner.Filter{Child: inner, Predicate: sqlast.Literal{Value: schema.BoolValue(true)}}

	out, err := Optimize(ctx, st, outer)
	require.NoError(t, err)
	// both filters fold to Literal(true) AND Literal(true) => Literal(true),
	// and constant folding collapses the merged predicate to a single literal.
	f, ok := out.(planner.Filter)
	require.True(t, ok)
	assert.Equal(t, schema.BoolValue(true), f.Predicate.(sqlast.Literal).Value)
	_, ok = f.Child.(planner.Scan)
	assert.True(t, ok, "two filters over one scan must merge into exactly one filter")
}

func TestOptimizeFoldsConstantArithmetic(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	scan := planner.Scan{Table: "widgets", Schema: widgets()}
	pred := sqlast.BinaryOp{
		Op:    sqlast.OpEq,
		Left:  sqlast.Column{Name: "weight"},
		Right: sqlast.BinaryOp{Op: sqlast.OpAdd, Left: sqlast.Literal{Value: schema.IntValue(1)}, Right: sqlast.Literal{Value: schema.IntValue(2)}},
	}
	filter := planner.Filter{Child: scan, Predicate: pred}

	out, err := Optimize(ctx, st, filter)
	require.NoError(t, err)
	f := out.(planner.Filter)
	eq := f.Predicate.(sqlast.BinaryOp)
	assert.Equal(t, schema.IntValue(3), eq.Right.(sqlast.Literal).Value)
}

func TestOptimizeEliminatesDeadProjection(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	scan := planner.Scan{Table: "widgets", Schema: widgets()}
	proj := planner.Project{Child: scan, Columns: []string{"id", "name", "weight"}}

	out, err := Optimize(ctx, st, proj)
	require.NoError(t, err)
	_, ok := out.(planner.Scan)
	assert.True(t, ok, "a projection over every column in schema order must be dropped")
}

func TestOptimizeKeepsProjectionThatReordersColumns(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	scan := planner.Scan{Table: "widgets", Schema: widgets()}
	proj := planner.Project{Child: scan, Columns: []string{"name", "id", "weight"}}

	out, err := Optimize(ctx, st, proj)
	require.NoError(t, err)
	_, ok := out.(planner.Project)
	assert.True(t, ok, "a reordering projection is observable and must survive")
}

func TestOptimizeIsDeterministicAcrossRuns(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, "widgets", 1000))

	build := func() planner.Node {
		scan := planner.Scan{Table: "widgets", Schema: widgets()}
		filter := planner.Filter{
			Child:     scan,
			Predicate: sqlast.BinaryOp{Op: sqlast.OpEq, Left: sqlast.Column{Name: "id"}, Right: sqlast.Literal{Value: schema.IntValue(7)}},
		}
		return planner.Project{Child: filter, Columns: []string{"id", "name", "weight"}}
	}

	out1, err := Optimize(ctx, st, build())
	require.NoError(t, err)
	out2, err := Optimize(ctx, st, build())
	require.NoError(t, err)
	assert.Equal(t, out1, out2)
}
