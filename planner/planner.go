// Package planner lowers sqlast statements into the logical relational
// tree: Scan, Filter, Project, Sort, Limit, Insert, Update, Delete,
// CreateTable, DropTable. It is a pure function of (statement, catalog
// snapshot) with no I/O of its own, the same separation-of-concerns the
// teacher repo draws between parsing a request and deciding what to do
// about it in knotserver's route handlers.
package planner

import (
	"fmt"

	"github.com/gitdb-project/gitdb/catalog"
	"github.com/gitdb-project/gitdb/dberr"
	"github.com/gitdb-project/gitdb/schema"
	"github.com/gitdb-project/gitdb/sqlast"
	"github.com/gitdb-project/gitdb/view"
)

// Node is implemented by every logical operator.
type Node interface {
	logicalNode()
}

// Scan reads every row of a table in primary-key order.
type Scan struct {
	Table  string
	Schema *schema.Table
}

// Filter keeps rows where Predicate evaluates true (three-valued: null and
// false both drop the row).
type Filter struct {
	Child     Node
	Predicate sqlast.Expr
}

// Project computes Columns from each input row. A bare SELECT * is lowered
// by the planner to the explicit column list in schema order (§4.G), so
// the optimizer's dead-projection rule tells "select all, in schema order"
// apart from other column lists by comparing Columns with the schema's
// column order.
type Project struct {
	Child   Node
	Columns []string
}

// SortKey is one ORDER BY term at the logical level.
type SortKey struct {
	Column     string
	Descending bool
}

// Sort orders rows by Keys, nulls-first ascending / nulls-last descending.
type Sort struct {
	Child Node
	Keys  []SortKey
}

// Limit yields at most N rows from Child.
type Limit struct {
	Child Node
	N     int64
}

// IndexLookup is the optimizer's rewrite of Filter(Scan(t), primary = k)
// (possibly with extra conjuncts) into a direct primary-key lookup plus
// whatever of the original predicate didn't fold into the key equality.
// It is a logical node (not a physical one) because the optimizer, not the
// physical planner, is what recognizes the access-method opportunity;
// physical planning then maps it straight onto PointGet.
type IndexLookup struct {
	Table    string
	Schema   *schema.Table
	Key      schema.Value
	Residual sqlast.Expr // sqlast.Literal{Value: schema.BoolValue(true)} when nothing remains
}

// Insert adds Rows (already resolved to full schema-ordered value lists)
// to Table.
type Insert struct {
	Table  string
	Schema *schema.Table
	Rows   []schema.Row
}

// Update applies Assignments to every row of Table matching Predicate.
type Update struct {
	Table       string
	Schema      *schema.Table
	Assignments []sqlast.Assignment
	Predicate   sqlast.Expr // nil means match all rows
}

// Delete removes every row of Table matching Predicate.
type Delete struct {
	Table     string
	Predicate sqlast.Expr // nil means match all rows
}

// CreateTable installs a new schema.
type CreateTable struct {
	Table schema.Table
}

// DropTable removes a table and its rows.
type DropTable struct {
	Table string
}

func (Scan) logicalNode()        {}
func (IndexLookup) logicalNode() {}
func (Filter) logicalNode()      {}
func (Project) logicalNode()     {}
func (Sort) logicalNode()        {}
func (Limit) logicalNode()       {}
func (Insert) logicalNode()      {}
func (Update) logicalNode()      {}
func (Delete) logicalNode()      {}
func (CreateTable) logicalNode() {}
func (DropTable) logicalNode()   {}

// Plan lowers one statement into a logical tree against the schemas
// visible in snap. DML/DQL statements resolve their table's schema from
// the catalog up front so later stages never need to re-read it.
func Plan(cat *catalog.Catalog, snap *view.Snapshot, stmt sqlast.Statement) (Node, error) {
	switch s := stmt.(type) {
	case sqlast.CreateTable:
		return CreateTable{Table: s.Table}, nil
	case sqlast.DropTable:
		if _, err := cat.GetSchema(snap, s.Table); err != nil {
			return nil, err
		}
		return DropTable{Table: s.Table}, nil
	case sqlast.Insert:
		return planInsert(cat, snap, s)
	case sqlast.Select:
		return planSelect(cat, snap, s)
	case sqlast.Update:
		t, err := cat.GetSchema(snap, s.Table)
		if err != nil {
			return nil, err
		}
		return Update{Table: s.Table, Schema: t, Assignments: s.Assignments, Predicate: s.Predicate}, nil
	case sqlast.Delete:
		if _, err := cat.GetSchema(snap, s.Table); err != nil {
			return nil, err
		}
		return Delete{Table: s.Table, Predicate: s.Predicate}, nil
	default:
		return nil, fmt.Errorf("%w: statement type %T has no logical plan (transaction control is handled by the caller)", dberr.ErrUnsupportedFeature, stmt)
	}
}

func planSelect(cat *catalog.Catalog, snap *view.Snapshot, s sqlast.Select) (Node, error) {
	t, err := cat.GetSchema(snap, s.Table)
	if err != nil {
		return nil, err
	}

	var node Node = Scan{Table: s.Table, Schema: t}

	if s.Predicate != nil {
		node = Filter{Child: node, Predicate: s.Predicate}
	}

	columns := s.Columns
	if s.Star {
		columns = t.ColumnNames()
	}
	for _, c := range columns {
		if _, ok := t.Column(c); !ok {
			return nil, fmt.Errorf("%w: %s.%s", dberr.ErrColumnNotFound, s.Table, c)
		}
	}
	node = Project{Child: node, Columns: columns}

	if len(s.OrderBy) > 0 {
		keys := make([]SortKey, len(s.OrderBy))
		for i, k := range s.OrderBy {
			if _, ok := t.Column(k.Column); !ok {
				return nil, fmt.Errorf("%w: %s.%s", dberr.ErrColumnNotFound, s.Table, k.Column)
			}
			keys[i] = SortKey{Column: k.Column, Descending: k.Descending}
		}
		node = Sort{Child: node, Keys: keys}
	}

	if s.Limit != nil {
		node = Limit{Child: node, N: *s.Limit}
	}

	return node, nil
}

func planInsert(cat *catalog.Catalog, snap *view.Snapshot, s sqlast.Insert) (Node, error) {
	t, err := cat.GetSchema(snap, s.Table)
	if err != nil {
		return nil, err
	}

	columns := s.Columns
	if len(columns) == 0 {
		columns = t.ColumnNames()
	} else {
		seen := make(map[string]bool, len(columns))
		for _, c := range columns {
			if _, ok := t.Column(c); !ok {
				return nil, fmt.Errorf("%w: %s.%s", dberr.ErrColumnNotFound, s.Table, c)
			}
			if seen[c] {
				return nil, fmt.Errorf("%w: column %s listed twice in INSERT", dberr.ErrInvalidSchema, c)
			}
			seen[c] = true
		}
	}

	rows := make([]schema.Row, 0, len(s.Rows))
	for _, values := range s.Rows {
		if len(values) != len(columns) {
			return nil, fmt.Errorf("%w: %d values for %d columns", dberr.ErrInvalidSchema, len(values), len(columns))
		}
		row := make(schema.Row, len(values))
		for i, expr := range values {
			lit, ok := expr.(sqlast.Literal)
			if !ok {
				return nil, fmt.Errorf("%w: INSERT VALUES must be literals, got %T", dberr.ErrUnsupportedFeature, expr)
			}
			row[columns[i]] = lit.Value
		}
		rows = append(rows, row)
	}

	return Insert{Table: s.Table, Schema: t, Rows: rows}, nil
}

// ColumnsInSchemaOrder reports whether columns is exactly t's column names
// in schema order — the shape the optimizer's dead-projection rule drops.
func ColumnsInSchemaOrder(t *schema.Table, columns []string) bool {
	names := t.ColumnNames()
	if len(columns) != len(names) {
		return false
	}
	for i, c := range columns {
		if c != names[i] {
			return false
		}
	}
	return true
}
