// Package sqlparse is the bundled producer for the fixed grammar spec §4.F
// implies: single-table SELECT with predicate/order/limit, INSERT/UPDATE/
// DELETE, CREATE TABLE/DROP TABLE, BEGIN/COMMIT/ROLLBACK. It is a
// hand-rolled recursive-descent tokenizer feeding a Pratt-style expression
// parser, in the style of the token-type-plus-position design retrieved
// alongside this spec (freeeve/machparse, ha1tch/tsqlparser's token
// package), pared down to the fixed operator and keyword set spec.md §4.F
// and §6 actually need.
package sqlparse

// tokenType is the lexical category of one token.
type tokenType int

const (
	tokEOF tokenType = iota
	tokIdent
	tokInt
	tokFloat
	tokString

	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokEq
	tokNeq
	tokLt
	tokLte
	tokGt
	tokGte
	tokLParen
	tokRParen
	tokComma
	tokSemicolon
	tokDot

	keywordBeg
	kwSelect
	kwFrom
	kwWhere
	kwAnd
	kwOr
	kwNot
	kwIs
	kwNull
	kwOrder
	kwBy
	kwAsc
	kwDesc
	kwLimit
	kwInsert
	kwInto
	kwValues
	kwUpdate
	kwSet
	kwDelete
	kwCreate
	kwTable
	kwDrop
	kwPrimary
	kwKey
	kwNotNull // "NOT NULL" is matched as two tokens by the parser, this exists only for symmetry and is not in the keywords map that lookupIdent consults
	kwInteger
	kwReal
	kwText
	kwBoolean
	kwBlob
	kwTrue
	kwFalse
	kwBegin
	kwCommit
	kwRollback
	keywordEnd
)

var keywords = map[string]tokenType{
	"SELECT":   kwSelect,
	"FROM":     kwFrom,
	"WHERE":    kwWhere,
	"AND":      kwAnd,
	"OR":       kwOr,
	"NOT":      kwNot,
	"IS":       kwIs,
	"NULL":     kwNull,
	"ORDER":    kwOrder,
	"BY":       kwBy,
	"ASC":      kwAsc,
	"DESC":     kwDesc,
	"LIMIT":    kwLimit,
	"INSERT":   kwInsert,
	"INTO":     kwInto,
	"VALUES":   kwValues,
	"UPDATE":   kwUpdate,
	"SET":      kwSet,
	"DELETE":   kwDelete,
	"CREATE":   kwCreate,
	"TABLE":    kwTable,
	"DROP":     kwDrop,
	"PRIMARY":  kwPrimary,
	"KEY":      kwKey,
	"INTEGER":  kwInteger,
	"REAL":     kwReal,
	"TEXT":     kwText,
	"BOOLEAN":  kwBoolean,
	"BLOB":     kwBlob,
	"TRUE":     kwTrue,
	"FALSE":    kwFalse,
	"BEGIN":    kwBegin,
	"COMMIT":   kwCommit,
	"ROLLBACK": kwRollback,
}

func lookupIdent(s string) tokenType {
	if t, ok := keywords[s]; ok {
		return t
	}
	return tokIdent
}

// token is a lexed unit with position information, matching the
// (type, literal text, line, column) shape used throughout the retrieved
// tokenizer examples.
type token struct {
	typ     tokenType
	literal string
	line    int
	column  int
}
