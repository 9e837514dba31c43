package exec

import (
	"fmt"

	"github.com/gitdb-project/gitdb/dberr"
	"github.com/gitdb-project/gitdb/schema"
	"github.com/gitdb-project/gitdb/sqlast"
)

// evalExpr evaluates e against row using Kleene three-valued logic for
// AND/OR/NOT, null-propagating comparisons and arithmetic, integer→real
// promotion, and division-by-zero-yields-null, per spec §4.J. A
// comparison or arithmetic operation between incompatible types yields
// null rather than an error, matching the spec's explicit "type mismatches
// yield null" rule — extended here to unary minus for the same reason:
// the alternative (rejecting it) would make unary minus the one operator
// that behaves differently from every binary one when types don't line up.
func evalExpr(row schema.Row, e sqlast.Expr) (schema.Value, error) {
	switch v := e.(type) {
	case sqlast.Literal:
		return v.Value, nil
	case sqlast.Column:
		val, ok := row[v.Name]
		if !ok {
			return schema.Value{}, fmt.Errorf("%w: %s", dberr.ErrColumnNotFound, v.Name)
		}
		return val, nil
	case sqlast.BinaryOp:
		return evalBinaryOp(row, v)
	case sqlast.UnaryOp:
		return evalUnaryOp(row, v)
	default:
		return schema.Value{}, fmt.Errorf("%w: expression type %T", dberr.ErrUnsupportedFeature, e)
	}
}

func evalBinaryOp(row schema.Row, b sqlast.BinaryOp) (schema.Value, error) {
	left, err := evalExpr(row, b.Left)
	if err != nil {
		return schema.Value{}, err
	}
	right, err := evalExpr(row, b.Right)
	if err != nil {
		return schema.Value{}, err
	}

	switch b.Op {
	case sqlast.OpAnd:
		return kleeneAnd(left, right), nil
	case sqlast.OpOr:
		return kleeneOr(left, right), nil
	case sqlast.OpEq, sqlast.OpNeq, sqlast.OpLt, sqlast.OpLte, sqlast.OpGt, sqlast.OpGte:
		return evalComparison(b.Op, left, right), nil
	case sqlast.OpAdd, sqlast.OpSub, sqlast.OpMul, sqlast.OpDiv:
		return evalArithmetic(b.Op, left, right), nil
	default:
		return schema.Value{}, fmt.Errorf("%w: binary operator %s", dberr.ErrUnsupportedFeature, b.Op)
	}
}

func evalUnaryOp(row schema.Row, u sqlast.UnaryOp) (schema.Value, error) {
	operand, err := evalExpr(row, u.Operand)
	if err != nil {
		return schema.Value{}, err
	}
	switch u.Op {
	case sqlast.OpIsNull:
		return schema.BoolValue(operand.IsNull()), nil
	case sqlast.OpIsNotNull:
		return schema.BoolValue(!operand.IsNull()), nil
	case sqlast.OpNot:
		return kleeneNot(operand), nil
	case sqlast.OpNeg:
		switch operand.Type() {
		case schema.Integer:
			return schema.IntValue(-operand.Int()), nil
		case schema.Real:
			return schema.RealValue(-operand.Real()), nil
		case schema.Null:
			return schema.NullValue(), nil
		default:
			return schema.NullValue(), nil
		}
	default:
		return schema.Value{}, fmt.Errorf("%w: unary operator %s", dberr.ErrUnsupportedFeature, u.Op)
	}
}

// --- Kleene three-valued logic ---

func kleeneAnd(a, b schema.Value) schema.Value {
	if isFalse(a) || isFalse(b) {
		return schema.BoolValue(false)
	}
	if a.IsNull() || b.IsNull() {
		return schema.NullValue()
	}
	if isTrue(a) && isTrue(b) {
		return schema.BoolValue(true)
	}
	return schema.NullValue()
}

func kleeneOr(a, b schema.Value) schema.Value {
	if isTrue(a) || isTrue(b) {
		return schema.BoolValue(true)
	}
	if a.IsNull() || b.IsNull() {
		return schema.NullValue()
	}
	if isFalse(a) && isFalse(b) {
		return schema.BoolValue(false)
	}
	return schema.NullValue()
}

func kleeneNot(a schema.Value) schema.Value {
	switch {
	case a.IsNull():
		return schema.NullValue()
	case a.Type() != schema.Boolean:
		return schema.NullValue()
	default:
		return schema.BoolValue(!a.Bool())
	}
}

func isTrue(v schema.Value) bool  { return v.Type() == schema.Boolean && v.Bool() }
func isFalse(v schema.Value) bool { return v.Type() == schema.Boolean && !v.Bool() }

// --- comparisons ---

func isNumeric(v schema.Value) bool { return v.Type() == schema.Integer || v.Type() == schema.Real }

func evalComparison(op sqlast.BinOp, l, r schema.Value) schema.Value {
	if l.IsNull() || r.IsNull() {
		return schema.NullValue()
	}

	var cmp int
	switch {
	case isNumeric(l) && isNumeric(r):
		lf, rf := l.AsReal(), r.AsReal()
		cmp = compareFloat(lf, rf)
	case l.Type() == schema.Text && r.Type() == schema.Text:
		cmp = compareString(l.Text(), r.Text())
	case l.Type() == schema.Boolean && r.Type() == schema.Boolean && (op == sqlast.OpEq || op == sqlast.OpNeq):
		cmp = compareBool(l.Bool(), r.Bool())
	default:
		return schema.NullValue()
	}

	switch op {
	case sqlast.OpEq:
		return schema.BoolValue(cmp == 0)
	case sqlast.OpNeq:
		return schema.BoolValue(cmp != 0)
	case sqlast.OpLt:
		return schema.BoolValue(cmp < 0)
	case sqlast.OpLte:
		return schema.BoolValue(cmp <= 0)
	case sqlast.OpGt:
		return schema.BoolValue(cmp > 0)
	case sqlast.OpGte:
		return schema.BoolValue(cmp >= 0)
	default:
		return schema.NullValue()
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}

// --- arithmetic ---

func evalArithmetic(op sqlast.BinOp, l, r schema.Value) schema.Value {
	if l.IsNull() || r.IsNull() {
		return schema.NullValue()
	}
	if !isNumeric(l) || !isNumeric(r) {
		return schema.NullValue()
	}

	if l.Type() == schema.Integer && r.Type() == schema.Integer {
		li, ri := l.Int(), r.Int()
		switch op {
		case sqlast.OpAdd:
			return schema.IntValue(li + ri)
		case sqlast.OpSub:
			return schema.IntValue(li - ri)
		case sqlast.OpMul:
			return schema.IntValue(li * ri)
		case sqlast.OpDiv:
			if ri == 0 {
				return schema.NullValue()
			}
			return schema.IntValue(li / ri)
		}
	}

	lf, rf := l.AsReal(), r.AsReal()
	switch op {
	case sqlast.OpAdd:
		return schema.RealValue(lf + rf)
	case sqlast.OpSub:
		return schema.RealValue(lf - rf)
	case sqlast.OpMul:
		return schema.RealValue(lf * rf)
	case sqlast.OpDiv:
		if rf == 0 {
			return schema.NullValue()
		}
		return schema.RealValue(lf / rf)
	}
	return schema.NullValue()
}
