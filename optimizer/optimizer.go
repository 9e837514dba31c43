// Package optimizer rewrites a logical plan to fixpoint using the four
// rules from spec §4.H, in order, and a cost model backed by the stats
// package's cached row counts. Rewrites are pure functions over the
// logical tree: identical (AST, catalog snapshot) pairs always produce an
// identical plan shape, which is what makes the optimizer's output
// testable as a stable property rather than a heuristic best-effort.
package optimizer

import (
	"context"
	"reflect"

	"github.com/gitdb-project/gitdb/planner"
	"github.com/gitdb-project/gitdb/schema"
	"github.com/gitdb-project/gitdb/sqlast"
	"github.com/gitdb-project/gitdb/stats"
)

// indexLookupCost is the fixed cost of a primary-key point lookup.
const indexLookupCost = 1

// Optimize rewrites node to fixpoint: constant folding, predicate
// pushdown, primary-key lookup recognition, dead projection elimination,
// repeated until no rule changes the tree.
func Optimize(ctx context.Context, st *stats.Store, node planner.Node) (planner.Node, error) {
	for {
		next, err := rewriteOnce(ctx, st, node)
		if err != nil {
			return nil, err
		}
		if sameShape(next, node) {
			return next, nil
		}
		node = next
	}
}

func rewriteOnce(ctx context.Context, st *stats.Store, node planner.Node) (planner.Node, error) {
	node = foldConstants(node).(planner.Node)
	node = pushdownPredicates(node)
	var err error
	node, err = recognizeIndexLookups(ctx, st, node)
	if err != nil {
		return nil, err
	}
	node = eliminateDeadProjections(node)
	return node, nil
}

// --- rule 1: constant folding ---

// foldConstants folds operator trees whose leaves are all literals and
// short-circuits AND/OR, recursing into every logical node's predicate
// and expression fields as well as its children.
func foldConstants(n any) any {
	switch v := n.(type) {
	case planner.Filter:
		v.Child = foldConstants(v.Child).(planner.Node)
		v.Predicate = foldExpr(v.Predicate)
		return planner.Node(v)
	case planner.Project:
		v.Child = foldConstants(v.Child).(planner.Node)
		return planner.Node(v)
	case planner.Sort:
		v.Child = foldConstants(v.Child).(planner.Node)
		return planner.Node(v)
	case planner.Limit:
		v.Child = foldConstants(v.Child).(planner.Node)
		return planner.Node(v)
	case planner.Update:
		if v.Predicate != nil {
			v.Predicate = foldExpr(v.Predicate)
		}
		assignments := make([]sqlast.Assignment, len(v.Assignments))
		for i, a := range v.Assignments {
			a.Value = foldExpr(a.Value)
			assignments[i] = a
		}
		v.Assignments = assignments
		return planner.Node(v)
	case planner.Delete:
		if v.Predicate != nil {
			v.Predicate = foldExpr(v.Predicate)
		}
		return planner.Node(v)
	case planner.Node:
		return v
	default:
		return n
	}
}

// foldExpr evaluates an expression subtree whose leaves are all literals
// down to a single literal; subtrees referencing a Column are left alone
// since the optimizer has no row to evaluate them against.
func foldExpr(e sqlast.Expr) sqlast.Expr {
	switch v := e.(type) {
	case sqlast.BinaryOp:
		left := foldExpr(v.Left)
		right := foldExpr(v.Right)
		v.Left, v.Right = left, right

		ll, lok := left.(sqlast.Literal)
		rl, rok := right.(sqlast.Literal)

		// AND/OR short-circuit on one known operand even if the other isn't
		// a literal yet.
		if v.Op == sqlast.OpAnd {
			if lok && ll.Value.Type() == schema.Boolean && !ll.Value.Bool() {
				return sqlast.Literal{Value: schema.BoolValue(false)}
			}
			if rok && rl.Value.Type() == schema.Boolean && !rl.Value.Bool() {
				return sqlast.Literal{Value: schema.BoolValue(false)}
			}
			if lok && ll.Value.Type() == schema.Boolean && ll.Value.Bool() {
				return right
			}
			if rok && rl.Value.Type() == schema.Boolean && rl.Value.Bool() {
				return left
			}
		}
		if v.Op == sqlast.OpOr {
			if lok && ll.Value.Type() == schema.Boolean && ll.Value.Bool() {
				return sqlast.Literal{Value: schema.BoolValue(true)}
			}
			if rok && rl.Value.Type() == schema.Boolean && rl.Value.Bool() {
				return sqlast.Literal{Value: schema.BoolValue(true)}
			}
			if lok && ll.Value.Type() == schema.Boolean && !ll.Value.Bool() {
				return right
			}
			if rok && rl.Value.Type() == schema.Boolean && !rl.Value.Bool() {
				return left
			}
		}

		if lok && rok {
			if folded, ok := evalConstBinOp(v.Op, ll.Value, rl.Value); ok {
				return sqlast.Literal{Value: folded}
			}
		}
		return v
	case sqlast.UnaryOp:
		operand := foldExpr(v.Operand)
		v.Operand = operand
		if lit, ok := operand.(sqlast.Literal); ok {
			if folded, ok := evalConstUnOp(v.Op, lit.Value); ok {
				return sqlast.Literal{Value: folded}
			}
		}
		return v
	default:
		return e
	}
}

// evalConstBinOp folds a binary op over two literal values for the
// arithmetic and equality/comparison operators where constant folding is
// unambiguous. AND/OR are handled by short-circuiting in foldExpr before
// this is reached; comparisons against NULL are left unfolded here (the
// executor's three-valued logic owns that, and constant-NULL comparisons
// are rare enough not to warrant a second implementation of null
// propagation in the optimizer).
func evalConstBinOp(op sqlast.BinOp, l, r schema.Value) (schema.Value, bool) {
	if l.IsNull() || r.IsNull() {
		return schema.Value{}, false
	}
	isNum := func(v schema.Value) bool { return v.Type() == schema.Integer || v.Type() == schema.Real }
	switch op {
	case sqlast.OpAdd, sqlast.OpSub, sqlast.OpMul, sqlast.OpDiv:
		if !isNum(l) || !isNum(r) {
			return schema.Value{}, false
		}
		if l.Type() == schema.Integer && r.Type() == schema.Integer {
			li, ri := l.Int(), r.Int()
			switch op {
			case sqlast.OpAdd:
				return schema.IntValue(li + ri), true
			case sqlast.OpSub:
				return schema.IntValue(li - ri), true
			case sqlast.OpMul:
				return schema.IntValue(li * ri), true
			case sqlast.OpDiv:
				if ri == 0 {
					return schema.Value{}, false
				}
				return schema.IntValue(li / ri), true
			}
		}
		lf, rf := l.AsReal(), r.AsReal()
		switch op {
		case sqlast.OpAdd:
			return schema.RealValue(lf + rf), true
		case sqlast.OpSub:
			return schema.RealValue(lf - rf), true
		case sqlast.OpMul:
			return schema.RealValue(lf * rf), true
		case sqlast.OpDiv:
			if rf == 0 {
				return schema.Value{}, false
			}
			return schema.RealValue(lf / rf), true
		}
	case sqlast.OpEq, sqlast.OpNeq, sqlast.OpLt, sqlast.OpLte, sqlast.OpGt, sqlast.OpGte:
		comparable := l.Type() == r.Type() || (isNum(l) && isNum(r))
		if !comparable {
			return schema.Value{}, false
		}
		var cmp int
		switch {
		case isNum(l) && isNum(r):
			lf, rf := l.AsReal(), r.AsReal()
			switch {
			case lf < rf:
				cmp = -1
			case lf > rf:
				cmp = 1
			}
		case l.Type() == schema.Text && r.Type() == schema.Text:
			switch {
			case l.Text() < r.Text():
				cmp = -1
			case l.Text() > r.Text():
				cmp = 1
			}
		default:
			return schema.Value{}, false
		}
		switch op {
		case sqlast.OpEq:
			return schema.BoolValue(cmp == 0), true
		case sqlast.OpNeq:
			return schema.BoolValue(cmp != 0), true
		case sqlast.OpLt:
			return schema.BoolValue(cmp < 0), true
		case sqlast.OpLte:
			return schema.BoolValue(cmp <= 0), true
		case sqlast.OpGt:
			return schema.BoolValue(cmp > 0), true
		case sqlast.OpGte:
			return schema.BoolValue(cmp >= 0), true
		}
	}
	return schema.Value{}, false
}

func evalConstUnOp(op sqlast.UnOp, v schema.Value) (schema.Value, bool) {
	switch op {
	case sqlast.OpNot:
		if v.Type() != schema.Boolean {
			return schema.Value{}, false
		}
		return schema.BoolValue(!v.Bool()), true
	case sqlast.OpNeg:
		switch v.Type() {
		case schema.Integer:
			return schema.IntValue(-v.Int()), true
		case schema.Real:
			return schema.RealValue(-v.Real()), true
		}
		return schema.Value{}, false
	case sqlast.OpIsNull:
		return schema.BoolValue(v.IsNull()), true
	case sqlast.OpIsNotNull:
		return schema.BoolValue(!v.IsNull()), true
	}
	return schema.Value{}, false
}

// --- rule 2: predicate pushdown ---

// pushdownPredicates pushes Filter beneath Project and merges adjacent
// Filters via AND, recursing bottom-up so a single pass catches chains of
// any length.
func pushdownPredicates(n planner.Node) planner.Node {
	switch v := n.(type) {
	case planner.Filter:
		v.Child = pushdownPredicates(v.Child)
		switch child := v.Child.(type) {
		case planner.Project:
			child.Child = planner.Filter{Child: child.Child, Predicate: v.Predicate}
			return child
		case planner.Filter:
			return planner.Filter{
				Child:     child.Child,
				Predicate: sqlast.BinaryOp{Op: sqlast.OpAnd, Left: v.Predicate, Right: child.Predicate},
			}
		}
		return v
	case planner.Project:
		v.Child = pushdownPredicates(v.Child)
		return v
	case planner.Sort:
		v.Child = pushdownPredicates(v.Child)
		return v
	case planner.Limit:
		v.Child = pushdownPredicates(v.Child)
		return v
	default:
		return n
	}
}

// --- rule 3: primary-key lookup recognition ---

func recognizeIndexLookups(ctx context.Context, st *stats.Store, n planner.Node) (planner.Node, error) {
	switch v := n.(type) {
	case planner.Filter:
		child, err := recognizeIndexLookups(ctx, st, v.Child)
		if err != nil {
			return nil, err
		}
		v.Child = child
		scan, ok := v.Child.(planner.Scan)
		if !ok {
			return v, nil
		}
		key, residual, ok := extractPrimaryKeyEquality(scan.Schema, v.Predicate)
		if !ok {
			return v, nil
		}
		scanCost, err := scanCost(ctx, st, scan.Table)
		if err != nil {
			return nil, err
		}
		if indexLookupCost > scanCost {
			return v, nil
		}
		return planner.IndexLookup{Table: scan.Table, Schema: scan.Schema, Key: key, Residual: residual}, nil
	case planner.Project:
		child, err := recognizeIndexLookups(ctx, st, v.Child)
		if err != nil {
			return nil, err
		}
		v.Child = child
		return v, nil
	case planner.Sort:
		child, err := recognizeIndexLookups(ctx, st, v.Child)
		if err != nil {
			return nil, err
		}
		v.Child = child
		return v, nil
	case planner.Limit:
		child, err := recognizeIndexLookups(ctx, st, v.Child)
		if err != nil {
			return nil, err
		}
		v.Child = child
		return v, nil
	default:
		return n, nil
	}
}

func scanCost(ctx context.Context, st *stats.Store, table string) (int64, error) {
	if st == nil {
		return stats.DefaultRowCount, nil
	}
	return st.RowCount(ctx, table)
}

// extractPrimaryKeyEquality looks for "primary = literal" as the whole
// predicate or as one conjunct of a top-level AND chain, returning the key
// value and whatever of the predicate isn't the equality (true when
// nothing remains).
func extractPrimaryKeyEquality(t *schema.Table, pred sqlast.Expr) (schema.Value, sqlast.Expr, bool) {
	primary := t.Primary().Name
	conjuncts := flattenAnd(pred)

	for i, c := range conjuncts {
		if key, ok := asPrimaryEquality(primary, c); ok {
			rest := append(append([]sqlast.Expr{}, conjuncts[:i]...), conjuncts[i+1:]...)
			return key, joinAnd(rest), true
		}
	}
	return schema.Value{}, nil, false
}

func flattenAnd(e sqlast.Expr) []sqlast.Expr {
	b, ok := e.(sqlast.BinaryOp)
	if !ok || b.Op != sqlast.OpAnd {
		return []sqlast.Expr{e}
	}
	return append(flattenAnd(b.Left), flattenAnd(b.Right)...)
}

func joinAnd(exprs []sqlast.Expr) sqlast.Expr {
	if len(exprs) == 0 {
		return sqlast.Literal{Value: schema.BoolValue(true)}
	}
	out := exprs[0]
	for _, e := range exprs[1:] {
		out = sqlast.BinaryOp{Op: sqlast.OpAnd, Left: out, Right: e}
	}
	return out
}

func asPrimaryEquality(primary string, e sqlast.Expr) (schema.Value, bool) {
	b, ok := e.(sqlast.BinaryOp)
	if !ok || b.Op != sqlast.OpEq {
		return schema.Value{}, false
	}
	if col, ok := b.Left.(sqlast.Column); ok && col.Name == primary {
		if lit, ok := b.Right.(sqlast.Literal); ok {
			return lit.Value, true
		}
	}
	if col, ok := b.Right.(sqlast.Column); ok && col.Name == primary {
		if lit, ok := b.Left.(sqlast.Literal); ok {
			return lit.Value, true
		}
	}
	return schema.Value{}, false
}

// --- rule 4: dead projection elimination ---

// eliminateDeadProjections drops a Project that selects every column in
// schema order, since it changes nothing about the rows flowing through
// it.
func eliminateDeadProjections(n planner.Node) planner.Node {
	switch v := n.(type) {
	case planner.Project:
		v.Child = eliminateDeadProjections(v.Child)
		switch child := v.Child.(type) {
		case planner.Scan:
			if planner.ColumnsInSchemaOrder(child.Schema, v.Columns) {
				return child
			}
		case planner.IndexLookup:
			if planner.ColumnsInSchemaOrder(child.Schema, v.Columns) {
				return child
			}
		}
		return v
	case planner.Filter:
		v.Child = eliminateDeadProjections(v.Child)
		return v
	case planner.Sort:
		v.Child = eliminateDeadProjections(v.Child)
		return v
	case planner.Limit:
		v.Child = eliminateDeadProjections(v.Child)
		return v
	default:
		return n
	}
}

// sameShape compares two plan trees structurally for the fixpoint check.
// reflect.DeepEqual is exactly "are these two trees built from the same
// literal values", which is what a fixpoint check needs; nothing in the
// retrieved pack offers a semantic tree-diff for an ad hoc logical-plan
// type, so there is no third-party alternative to reach for here.
func sameShape(a, b planner.Node) bool {
	return reflect.DeepEqual(a, b)
}
