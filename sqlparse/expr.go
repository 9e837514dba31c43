package sqlparse

import (
	"strconv"

	"github.com/gitdb-project/gitdb/schema"
	"github.com/gitdb-project/gitdb/sqlast"
)

// binding powers for the Pratt expression parser, lowest to highest.
const (
	bpNone = iota
	bpOr
	bpAnd
	bpComparison
	bpAdditive
	bpMultiplicative
	bpUnary
)

func infixBindingPower(typ tokenType) int {
	switch typ {
	case kwOr:
		return bpOr
	case kwAnd:
		return bpAnd
	case tokEq, tokNeq, tokLt, tokLte, tokGt, tokGte:
		return bpComparison
	case tokPlus, tokMinus:
		return bpAdditive
	case tokStar, tokSlash:
		return bpMultiplicative
	default:
		return bpNone
	}
}

func binOpFor(typ tokenType) sqlast.BinOp {
	switch typ {
	case kwOr:
		return sqlast.OpOr
	case kwAnd:
		return sqlast.OpAnd
	case tokEq:
		return sqlast.OpEq
	case tokNeq:
		return sqlast.OpNeq
	case tokLt:
		return sqlast.OpLt
	case tokLte:
		return sqlast.OpLte
	case tokGt:
		return sqlast.OpGt
	case tokGte:
		return sqlast.OpGte
	case tokPlus:
		return sqlast.OpAdd
	case tokMinus:
		return sqlast.OpSub
	case tokStar:
		return sqlast.OpMul
	case tokSlash:
		return sqlast.OpDiv
	}
	return sqlast.OpEq
}

// parseExpr implements precedence climbing: minBp is the minimum binding
// power an infix operator must have to be consumed at this recursion
// level, the same shape as the Pratt loop in the retrieved parsers.
func (p *parser) parseExpr(minBp int) (sqlast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		if p.cur.typ == kwIs {
			// IS [NOT] NULL binds like a comparison and is postfix, not infix.
			if bpComparison < minBp {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
			op := sqlast.OpIsNull
			if p.cur.typ == kwNot {
				op = sqlast.OpIsNotNull
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
			if _, err := p.expect(kwNull, "NULL"); err != nil {
				return nil, err
			}
			left = sqlast.UnaryOp{Op: op, Operand: left}
			continue
		}

		bp := infixBindingPower(p.cur.typ)
		if bp == bpNone || bp < minBp {
			break
		}
		op := binOpFor(p.cur.typ)
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseExpr(bp + 1)
		if err != nil {
			return nil, err
		}
		left = sqlast.BinaryOp{Op: op, Left: left, Right: right}
	}

	return left, nil
}

func (p *parser) parseUnary() (sqlast.Expr, error) {
	switch p.cur.typ {
	case kwNot:
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseExpr(bpUnary)
		if err != nil {
			return nil, err
		}
		return sqlast.UnaryOp{Op: sqlast.OpNot, Operand: operand}, nil
	case tokMinus:
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseExpr(bpUnary)
		if err != nil {
			return nil, err
		}
		return sqlast.UnaryOp{Op: sqlast.OpNeg, Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (sqlast.Expr, error) {
	switch p.cur.typ {
	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		e, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return e, nil
	case tokInt:
		n, err := parseInt(p.cur.literal)
		if err != nil {
			return nil, err
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return sqlast.Literal{Value: schema.IntValue(n)}, nil
	case tokFloat:
		f, err := strconv.ParseFloat(p.cur.literal, 64)
		if err != nil {
			return nil, p.errorf("invalid real literal %q", p.cur.literal)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return sqlast.Literal{Value: schema.RealValue(f)}, nil
	case tokString:
		s := p.cur.literal
		if err := p.advance(); err != nil {
			return nil, err
		}
		return sqlast.Literal{Value: schema.TextValue(s)}, nil
	case kwTrue:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return sqlast.Literal{Value: schema.BoolValue(true)}, nil
	case kwFalse:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return sqlast.Literal{Value: schema.BoolValue(false)}, nil
	case kwNull:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return sqlast.Literal{Value: schema.NullValue()}, nil
	case tokIdent:
		name, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		return sqlast.Column{Name: name}, nil
	default:
		return nil, p.errorf("expected an expression, got %q", p.cur.literal)
	}
}

func parseInt(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
