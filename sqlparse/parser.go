package sqlparse

import (
	"fmt"

	"github.com/gitdb-project/gitdb/dberr"
	"github.com/gitdb-project/gitdb/sqlast"
	"github.com/gitdb-project/gitdb/schema"
)

// parser is a recursive-descent parser over the fixed grammar, with a
// precedence-climbing (Pratt) core for expressions, in the same two-layer
// shape as the retrieved tsqlparser/machparse reference parsers: statement
// grammar is straight-line recursive descent, expression grammar runs on
// binding powers.
type parser struct {
	lex  *lexer
	cur  token
	peek token
}

func newParser(src string) (*parser, error) {
	l := newLexer(src)
	p := &parser{lex: l}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *parser) advance() error {
	p.cur = p.peek
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.peek = t
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%w: %d:%d: %s", dberr.ErrSyntax, p.cur.line, p.cur.column, msg)
}

func (p *parser) expect(typ tokenType, what string) (token, error) {
	if p.cur.typ != typ {
		return token{}, p.errorf("expected %s, got %q", what, p.cur.literal)
	}
	t := p.cur
	if err := p.advance(); err != nil {
		return token{}, err
	}
	return t, nil
}

// parseIdent consumes an identifier. Keywords that also double as
// unreserved column/table names are not special-cased: the grammar never
// needs a keyword in identifier position.
func (p *parser) parseIdent() (string, error) {
	t, err := p.expect(tokIdent, "identifier")
	if err != nil {
		return "", err
	}
	return t.literal, nil
}

// Parse parses one statement out of src. A trailing semicolon is optional;
// trailing garbage after the statement is an error.
func Parse(src string) (sqlast.Statement, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if p.cur.typ == tokSemicolon {
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if p.cur.typ != tokEOF {
		return nil, p.errorf("unexpected trailing input %q", p.cur.literal)
	}
	return stmt, nil
}

func (p *parser) parseStatement() (sqlast.Statement, error) {
	switch p.cur.typ {
	case kwSelect:
		return p.parseSelect()
	case kwInsert:
		return p.parseInsert()
	case kwUpdate:
		return p.parseUpdate()
	case kwDelete:
		return p.parseDelete()
	case kwCreate:
		return p.parseCreateTable()
	case kwDrop:
		return p.parseDropTable()
	case kwBegin:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return sqlast.Begin{}, nil
	case kwCommit:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return sqlast.Commit{}, nil
	case kwRollback:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return sqlast.Rollback{}, nil
	default:
		return nil, p.errorf("expected a statement, got %q", p.cur.literal)
	}
}

// --- SELECT ---

func (p *parser) parseSelect() (sqlast.Statement, error) {
	if err := p.advance(); err != nil { // consume SELECT
		return nil, err
	}

	sel := sqlast.Select{}
	if p.cur.typ == tokStar {
		sel.Star = true
		if err := p.advance(); err != nil {
			return nil, err
		}
	} else {
		for {
			name, err := p.parseIdent()
			if err != nil {
				return nil, err
			}
			sel.Columns = append(sel.Columns, name)
			if p.cur.typ != tokComma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}

	if _, err := p.expect(kwFrom, "FROM"); err != nil {
		return nil, err
	}
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	sel.Table = table

	if p.cur.typ == kwWhere {
		if err := p.advance(); err != nil {
			return nil, err
		}
		pred, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		sel.Predicate = pred
	}

	if p.cur.typ == kwOrder {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if _, err := p.expect(kwBy, "BY"); err != nil {
			return nil, err
		}
		for {
			col, err := p.parseIdent()
			if err != nil {
				return nil, err
			}
			key := sqlast.OrderKey{Column: col}
			switch p.cur.typ {
			case kwAsc:
				if err := p.advance(); err != nil {
					return nil, err
				}
			case kwDesc:
				key.Descending = true
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
			sel.OrderBy = append(sel.OrderBy, key)
			if p.cur.typ != tokComma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}

	if p.cur.typ == kwLimit {
		if err := p.advance(); err != nil {
			return nil, err
		}
		t, err := p.expect(tokInt, "integer")
		if err != nil {
			return nil, err
		}
		n, err := parseInt(t.literal)
		if err != nil {
			return nil, err
		}
		sel.Limit = &n
	}

	return sel, nil
}

// --- INSERT ---

func (p *parser) parseInsert() (sqlast.Statement, error) {
	if err := p.advance(); err != nil { // INSERT
		return nil, err
	}
	if _, err := p.expect(kwInto, "INTO"); err != nil {
		return nil, err
	}
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	ins := sqlast.Insert{Table: table}

	if p.cur.typ == tokLParen {
		cols, err := p.parseIdentList()
		if err != nil {
			return nil, err
		}
		ins.Columns = cols
	}

	if _, err := p.expect(kwValues, "VALUES"); err != nil {
		return nil, err
	}

	for {
		row, err := p.parseExprTuple()
		if err != nil {
			return nil, err
		}
		ins.Rows = append(ins.Rows, row)
		if p.cur.typ != tokComma {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	return ins, nil
}

func (p *parser) parseIdentList() ([]string, error) {
	if _, err := p.expect(tokLParen, "("); err != nil {
		return nil, err
	}
	var names []string
	for {
		name, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		names = append(names, name)
		if p.cur.typ != tokComma {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(tokRParen, ")"); err != nil {
		return nil, err
	}
	return names, nil
}

func (p *parser) parseExprTuple() ([]sqlast.Expr, error) {
	if _, err := p.expect(tokLParen, "("); err != nil {
		return nil, err
	}
	var exprs []sqlast.Expr
	for {
		e, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
		if p.cur.typ != tokComma {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(tokRParen, ")"); err != nil {
		return nil, err
	}
	return exprs, nil
}

// --- UPDATE ---

func (p *parser) parseUpdate() (sqlast.Statement, error) {
	if err := p.advance(); err != nil { // UPDATE
		return nil, err
	}
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(kwSet, "SET"); err != nil {
		return nil, err
	}

	upd := sqlast.Update{Table: table}
	for {
		col, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokEq, "="); err != nil {
			return nil, err
		}
		val, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		upd.Assignments = append(upd.Assignments, sqlast.Assignment{Column: col, Value: val})
		if p.cur.typ != tokComma {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	if p.cur.typ == kwWhere {
		if err := p.advance(); err != nil {
			return nil, err
		}
		pred, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		upd.Predicate = pred
	}

	return upd, nil
}

// --- DELETE ---

func (p *parser) parseDelete() (sqlast.Statement, error) {
	if err := p.advance(); err != nil { // DELETE
		return nil, err
	}
	if _, err := p.expect(kwFrom, "FROM"); err != nil {
		return nil, err
	}
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	del := sqlast.Delete{Table: table}
	if p.cur.typ == kwWhere {
		if err := p.advance(); err != nil {
			return nil, err
		}
		pred, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		del.Predicate = pred
	}
	return del, nil
}

// --- CREATE TABLE / DROP TABLE ---

func (p *parser) parseCreateTable() (sqlast.Statement, error) {
	if err := p.advance(); err != nil { // CREATE
		return nil, err
	}
	if _, err := p.expect(kwTable, "TABLE"); err != nil {
		return nil, err
	}
	name, err := p.parseIdent()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(tokLParen, "("); err != nil {
		return nil, err
	}

	var cols []schema.ColumnDef
	primaryIdx := -1
	for {
		col, isPrimary, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		if isPrimary {
			if primaryIdx != -1 {
				return nil, fmt.Errorf("%w: table %s declares more than one PRIMARY KEY column", dberr.ErrInvalidSchema, name)
			}
			primaryIdx = len(cols)
		}
		cols = append(cols, col)
		if p.cur.typ != tokComma {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(tokRParen, ")"); err != nil {
		return nil, err
	}
	if primaryIdx == -1 {
		return nil, fmt.Errorf("%w: table %s must declare exactly one PRIMARY KEY column", dberr.ErrInvalidSchema, name)
	}

	return sqlast.CreateTable{Table: schema.Table{Name: name, Columns: cols, PrimaryIdx: primaryIdx}}, nil
}

func (p *parser) parseColumnDef() (schema.ColumnDef, bool, error) {
	name, err := p.parseIdent()
	if err != nil {
		return schema.ColumnDef{}, false, err
	}

	var typ schema.Type
	switch p.cur.typ {
	case kwInteger:
		typ = schema.Integer
	case kwReal:
		typ = schema.Real
	case kwText:
		typ = schema.Text
	case kwBoolean:
		typ = schema.Boolean
	case kwBlob:
		typ = schema.Blob
	default:
		return schema.ColumnDef{}, false, p.errorf("expected a column type, got %q", p.cur.literal)
	}
	if err := p.advance(); err != nil {
		return schema.ColumnDef{}, false, err
	}

	col := schema.ColumnDef{Name: name, Type: typ, Nullable: true}
	isPrimary := false
	for {
		switch p.cur.typ {
		case kwPrimary:
			if err := p.advance(); err != nil {
				return schema.ColumnDef{}, false, err
			}
			if _, err := p.expect(kwKey, "KEY"); err != nil {
				return schema.ColumnDef{}, false, err
			}
			isPrimary = true
			col.IsPrimary = true
			col.Nullable = false
			continue
		case kwNot:
			if err := p.advance(); err != nil {
				return schema.ColumnDef{}, false, err
			}
			if _, err := p.expect(kwNull, "NULL"); err != nil {
				return schema.ColumnDef{}, false, err
			}
			col.Nullable = false
			continue
		}
		break
	}

	return col, isPrimary, nil
}

func (p *parser) parseDropTable() (sqlast.Statement, error) {
	if err := p.advance(); err != nil { // DROP
		return nil, err
	}
	if _, err := p.expect(kwTable, "TABLE"); err != nil {
		return nil, err
	}
	name, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	return sqlast.DropTable{Table: name}, nil
}
