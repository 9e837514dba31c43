package sqlparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitdb-project/gitdb/schema"
	"github.com/gitdb-project/gitdb/sqlast"
)

func TestParseSelectStar(t *testing.T) {
	stmt, err := Parse("SELECT * FROM widgets")
	require.NoError(t, err)
	sel, ok := stmt.(sqlast.Select)
	require.True(t, ok)
	assert.True(t, sel.Star)
	assert.Equal(t, "widgets", sel.Table)
	assert.Nil(t, sel.Predicate)
}

func TestParseSelectColumnsWherePredicate(t *testing.T) {
	stmt, err := Parse("SELECT id, name FROM widgets WHERE weight > 1.5 AND active = TRUE")
	require.NoError(t, err)
	sel, ok := stmt.(sqlast.Select)
	require.True(t, ok)
	assert.Equal(t, []string{"id", "name"}, sel.Columns)

	and, ok := sel.Predicate.(sqlast.BinaryOp)
	require.True(t, ok)
	assert.Equal(t, sqlast.OpAnd, and.Op)

	gt, ok := and.Left.(sqlast.BinaryOp)
	require.True(t, ok)
	assert.Equal(t, sqlast.OpGt, gt.Op)
	assert.Equal(t, sqlast.Column{Name: "weight"}, gt.Left)
	assert.Equal(t, schema.RealValue(1.5), gt.Right.(sqlast.Literal).Value)
}

func TestParseSelectOrderByAndLimit(t *testing.T) {
	stmt, err := Parse("SELECT * FROM widgets ORDER BY name DESC, id LIMIT 10")
	require.NoError(t, err)
	sel := stmt.(sqlast.Select)
	require.Len(t, sel.OrderBy, 2)
	assert.Equal(t, sqlast.OrderKey{Column: "name", Descending: true}, sel.OrderBy[0])
	assert.Equal(t, sqlast.OrderKey{Column: "id", Descending: false}, sel.OrderBy[1])
	require.NotNil(t, sel.Limit)
	assert.EqualValues(t, 10, *sel.Limit)
}

func TestParseIsNullAndIsNotNull(t *testing.T) {
	stmt, err := Parse("SELECT * FROM widgets WHERE name IS NULL")
	require.NoError(t, err)
	sel := stmt.(sqlast.Select)
	u, ok := sel.Predicate.(sqlast.UnaryOp)
	require.True(t, ok)
	assert.Equal(t, sqlast.OpIsNull, u.Op)

	stmt, err = Parse("SELECT * FROM widgets WHERE name IS NOT NULL")
	require.NoError(t, err)
	sel = stmt.(sqlast.Select)
	u, ok = sel.Predicate.(sqlast.UnaryOp)
	require.True(t, ok)
	assert.Equal(t, sqlast.OpIsNotNull, u.Op)
}

func TestParseArithmeticPrecedence(t *testing.T) {
	stmt, err := Parse("SELECT * FROM widgets WHERE weight = 1 + 2 * 3")
	require.NoError(t, err)
	sel := stmt.(sqlast.Select)
	eq := sel.Predicate.(sqlast.BinaryOp)
	add := eq.Right.(sqlast.BinaryOp)
	assert.Equal(t, sqlast.OpAdd, add.Op)
	mul := add.Right.(sqlast.BinaryOp)
	assert.Equal(t, sqlast.OpMul, mul.Op)
}

func TestParseInsertWithColumnList(t *testing.T) {
	stmt, err := Parse("INSERT INTO widgets (id, name) VALUES (1, 'bolt'), (2, 'nut')")
	require.NoError(t, err)
	ins := stmt.(sqlast.Insert)
	assert.Equal(t, "widgets", ins.Table)
	assert.Equal(t, []string{"id", "name"}, ins.Columns)
	require.Len(t, ins.Rows, 2)
	assert.Equal(t, schema.TextValue("bolt"), ins.Rows[0][1].(sqlast.Literal).Value)
}

func TestParseInsertPositionalNoColumnList(t *testing.T) {
	stmt, err := Parse("INSERT INTO widgets VALUES (1, 'bolt')")
	require.NoError(t, err)
	ins := stmt.(sqlast.Insert)
	assert.Nil(t, ins.Columns)
}

func TestParseUpdateSetWhere(t *testing.T) {
	stmt, err := Parse("UPDATE widgets SET weight = weight + 1, active = FALSE WHERE id = 7")
	require.NoError(t, err)
	upd := stmt.(sqlast.Update)
	assert.Equal(t, "widgets", upd.Table)
	require.Len(t, upd.Assignments, 2)
	assert.Equal(t, "weight", upd.Assignments[0].Column)
	require.NotNil(t, upd.Predicate)
}

func TestParseDeleteWithoutWhere(t *testing.T) {
	stmt, err := Parse("DELETE FROM widgets")
	require.NoError(t, err)
	del := stmt.(sqlast.Delete)
	assert.Equal(t, "widgets", del.Table)
	assert.Nil(t, del.Predicate)
}

func TestParseCreateTable(t *testing.T) {
	stmt, err := Parse("CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT NOT NULL, weight REAL)")
	require.NoError(t, err)
	ct := stmt.(sqlast.CreateTable)
	assert.Equal(t, "widgets", ct.Table.Name)
	require.Len(t, ct.Table.Columns, 3)
	assert.Equal(t, 0, ct.Table.PrimaryIdx)
	assert.True(t, ct.Table.Columns[0].IsPrimary)
	assert.False(t, ct.Table.Columns[0].Nullable)
	assert.False(t, ct.Table.Columns[1].Nullable)
	assert.True(t, ct.Table.Columns[2].Nullable)
	require.NoError(t, ct.Table.Validate())
}

func TestParseCreateTableRejectsMissingPrimaryKey(t *testing.T) {
	_, err := Parse("CREATE TABLE widgets (id INTEGER, name TEXT)")
	assert.Error(t, err)
}

func TestParseDropTable(t *testing.T) {
	stmt, err := Parse("DROP TABLE widgets")
	require.NoError(t, err)
	assert.Equal(t, sqlast.DropTable{Table: "widgets"}, stmt)
}

func TestParseTransactionControl(t *testing.T) {
	for src, want := range map[string]sqlast.Statement{
		"BEGIN":    sqlast.Begin{},
		"COMMIT":   sqlast.Commit{},
		"ROLLBACK": sqlast.Rollback{},
	} {
		stmt, err := Parse(src)
		require.NoError(t, err)
		assert.Equal(t, want, stmt)
	}
}

func TestParseRejectsTrailingGarbage(t *testing.T) {
	_, err := Parse("SELECT * FROM widgets EXTRA")
	assert.Error(t, err)
}

func TestParseStringLiteralEscapedQuote(t *testing.T) {
	stmt, err := Parse("INSERT INTO widgets (name) VALUES ('it''s')")
	require.NoError(t, err)
	ins := stmt.(sqlast.Insert)
	assert.Equal(t, schema.TextValue("it's"), ins.Rows[0][0].(sqlast.Literal).Value)
}

func TestCacheReturnsEqualTreeForRepeatedText(t *testing.T) {
	c, err := NewCache(0)
	require.NoError(t, err)

	first, err := c.Parse("SELECT * FROM widgets")
	require.NoError(t, err)
	second, err := c.Parse("SELECT * FROM widgets")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCacheMemoizesParseErrors(t *testing.T) {
	c, err := NewCache(0)
	require.NoError(t, err)

	_, err1 := c.Parse("SELECT FROM")
	_, err2 := c.Parse("SELECT FROM")
	require.Error(t, err1)
	require.Error(t, err2)
	assert.Equal(t, err1.Error(), err2.Error())
}
