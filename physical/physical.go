// Package physical maps a logical plan onto the physical operators the
// executor evaluates, per spec §4.I: Scan becomes SeqScan, IndexLookup
// becomes PointGet, every other logical node maps straight across under a
// physical name. This is a one-to-one structural translation, not a
// decision-making pass — all the decisions already happened in optimizer.
package physical

import (
	"fmt"

	"github.com/gitdb-project/gitdb/dberr"
	"github.com/gitdb-project/gitdb/planner"
	"github.com/gitdb-project/gitdb/schema"
	"github.com/gitdb-project/gitdb/sqlast"
)

// Plan is implemented by every physical operator node.
type Plan interface {
	physicalNode()
}

// SeqScan reads every row of a table in primary-key order.
type SeqScan struct {
	Table  string
	Schema *schema.Table
}

// PointGet yields at most one row, looked up directly by primary key.
type PointGet struct {
	Table    string
	Schema   *schema.Table
	Key      schema.Value
	Residual sqlast.Expr
}

// Filter forwards rows where Predicate evaluates true.
type Filter struct {
	Child     Plan
	Predicate sqlast.Expr
}

// Project computes Columns from each input row.
type Project struct {
	Child   Plan
	Columns []string
}

// SortKey is one ORDER BY term.
type SortKey struct {
	Column     string
	Descending bool
}

// Sort materializes Child and yields rows ordered by Keys.
type Sort struct {
	Child Plan
	Keys  []SortKey
}

// Limit yields at most N rows from Child.
type Limit struct {
	Child Plan
	N     int64
}

// Insert adds Rows to Table in one commit.
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
	Predicate   sqlast.Expr
}

// Delete removes every row of Table matching Predicate.
type Delete struct {
	Table     string
	Predicate sqlast.Expr
}

// CreateTable installs a new schema.
type CreateTable struct {
	Table schema.Table
}

// DropTable removes a table and its rows.
type DropTable struct {
	Table string
}

func (SeqScan) physicalNode()     {}
func (PointGet) physicalNode()    {}
func (Filter) physicalNode()      {}
func (Project) physicalNode()     {}
func (Sort) physicalNode()        {}
func (Limit) physicalNode()       {}
func (Insert) physicalNode()      {}
func (Update) physicalNode()      {}
func (Delete) physicalNode()      {}
func (CreateTable) physicalNode() {}
func (DropTable) physicalNode()   {}

// Build lowers an optimized logical tree into its physical plan.
func Build(n planner.Node) (Plan, error) {
	switch v := n.(type) {
	case planner.Scan:
		return SeqScan{Table: v.Table, Schema: v.Schema}, nil
	case planner.IndexLookup:
		return PointGet{Table: v.Table, Schema: v.Schema, Key: v.Key, Residual: v.Residual}, nil
	case planner.Filter:
		child, err := Build(v.Child)
		if err != nil {
			return nil, err
		}
		return Filter{Child: child, Predicate: v.Predicate}, nil
	case planner.Project:
		child, err := Build(v.Child)
		if err != nil {
			return nil, err
		}
		return Project{Child: child, Columns: v.Columns}, nil
	case planner.Sort:
		child, err := Build(v.Child)
		if err != nil {
			return nil, err
		}
		keys := make([]SortKey, len(v.Keys))
		for i, k := range v.Keys {
			keys[i] = SortKey{Column: k.Column, Descending: k.Descending}
		}
		return Sort{Child: child, Keys: keys}, nil
	case planner.Limit:
		child, err := Build(v.Child)
		if err != nil {
			return nil, err
		}
		return Limit{Child: child, N: v.N}, nil
	case planner.Insert:
		return Insert{Table: v.Table, Schema: v.Schema, Rows: v.Rows}, nil
	case planner.Update:
		return Update{Table: v.Table, Schema: v.Schema, Assignments: v.Assignments, Predicate: v.Predicate}, nil
	case planner.Delete:
		return Delete{Table: v.Table, Predicate: v.Predicate}, nil
	case planner.CreateTable:
		return CreateTable{Table: v.Table}, nil
	case planner.DropTable:
		return DropTable{Table: v.Table}, nil
	default:
		return nil, fmt.Errorf("%w: no physical operator for logical node %T", dberr.ErrUnsupportedFeature, n)
	}
}
