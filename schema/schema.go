// Package schema holds the pure data types of the relational data model:
// values, column definitions and table schemas. It has no dependencies of
// its own, the same way sqlast is inert data — everything else in the
// engine (rowcodec, catalog, table, planner, exec) builds on top of it.
package schema

import (
	"fmt"
	"math"

	"github.com/gitdb-project/gitdb/dberr"
)

// Type is one of the six scalar types in the closed value domain.
type Type int

const (
	Null Type = iota
	Integer
	Real
	Text
	Boolean
	Blob
)

func (t Type) String() string {
	switch t {
	case Null:
		return "NULL"
	case Integer:
		return "INTEGER"
	case Real:
		return "REAL"
	case Text:
		return "TEXT"
	case Boolean:
		return "BOOLEAN"
	case Blob:
		return "BLOB"
	default:
		return "UNKNOWN"
	}
}

// Value is a typed scalar. The zero Value is NULL.
type Value struct {
	typ Type
	i   int64
	r   float64
	s   string
	b   []byte
	bl  bool
}

func NullValue() Value               { return Value{typ: Null} }
func IntValue(v int64) Value         { return Value{typ: Integer, i: v} }
func RealValue(v float64) Value      { return Value{typ: Real, r: v} }
func TextValue(v string) Value       { return Value{typ: Text, s: v} }
func BoolValue(v bool) Value         { return Value{typ: Boolean, bl: v} }
func BlobValue(v []byte) Value       { return Value{typ: Blob, b: append([]byte(nil), v...)} }

func (v Value) Type() Type    { return v.typ }
func (v Value) IsNull() bool  { return v.typ == Null }
func (v Value) Int() int64    { return v.i }
func (v Value) Real() float64 { return v.r }
func (v Value) Text() string  { return v.s }
func (v Value) Bool() bool    { return v.bl }
func (v Value) Blob() []byte  { return append([]byte(nil), v.b...) }

// AsReal widens an integer value to real. It does not panic: for any
// other non-real type it returns 0, so callers type-check first.
func (v Value) AsReal() float64 {
	if v.typ == Integer {
		return float64(v.i)
	}
	return v.r
}

// IsFiniteReal reports whether a real value is neither NaN nor infinite.
// The row codec rejects non-finite reals on write per spec §4.B.
func (v Value) IsFiniteReal() bool {
	return v.typ != Real || (!math.IsNaN(v.r) && !math.IsInf(v.r, 0))
}

// Equal implements the equality used by primary-key comparisons and
// three-valued predicate evaluation's "both sides defined" case. It is
// strict: values of different types are never equal, even 1 (int) and 1.0
// (real) — the executor's comparison operators handle numeric promotion
// separately, this is the raw identity used for map-keying and dedup.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case Null:
		return true
	case Integer:
		return v.i == o.i
	case Real:
		return v.r == o.r
	case Text:
		return v.s == o.s
	case Boolean:
		return v.bl == o.bl
	case Blob:
		return string(v.b) == string(o.b)
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.typ {
	case Null:
		return "NULL"
	case Integer:
		return fmt.Sprintf("%d", v.i)
	case Real:
		return fmt.Sprintf("%g", v.r)
	case Text:
		return v.s
	case Boolean:
		if v.bl {
			return "true"
		}
		return "false"
	case Blob:
		return fmt.Sprintf("x'%x'", v.b)
	default:
		return "?"
	}
}

// ColumnDef is one column of a table schema.
type ColumnDef struct {
	Name      string `json:"name"`
	Type      Type   `json:"type"`
	Nullable  bool   `json:"nullable"`
	IsPrimary bool   `json:"is_primary"`
}

// Table is a table schema: an ordered column list plus which one is the
// primary key. Column order controls default SELECT * projection and
// insert-by-position (spec §3).
type Table struct {
	Name       string      `json:"name"`
	Columns    []ColumnDef `json:"columns"`
	PrimaryIdx int         `json:"primary_idx"`
}

// Primary returns the schema's primary column definition.
func (t *Table) Primary() ColumnDef {
	return t.Columns[t.PrimaryIdx]
}

// Column looks up a column by name.
func (t *Table) Column(name string) (ColumnDef, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// ColumnNames returns the column names in schema order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Validate checks the schema-level invariants from spec §3: unique column
// names, exactly one primary column, primary column never nullable, primary
// column type is TEXT or INTEGER.
func (t *Table) Validate() error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("%w: %s has no columns", dberr.ErrInvalidSchema, t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	primaries := 0
	for i, c := range t.Columns {
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate column %q in %s", dberr.ErrInvalidSchema, c.Name, t.Name)
		}
		seen[c.Name] = true
		if c.IsPrimary {
			primaries++
			if i != t.PrimaryIdx {
				return fmt.Errorf("%w: primary_idx does not match IsPrimary column in %s", dberr.ErrInvalidSchema, t.Name)
			}
		}
	}
	if primaries != 1 {
		return fmt.Errorf("%w: %s must have exactly one primary column, has %d", dberr.ErrInvalidSchema, t.Name, primaries)
	}
	prim := t.Columns[t.PrimaryIdx]
	if prim.Nullable {
		return fmt.Errorf("%w: primary column %s.%s must not be nullable", dberr.ErrInvalidSchema, t.Name, prim.Name)
	}
	if prim.Type != Text && prim.Type != Integer {
		return fmt.Errorf("%w: primary column %s.%s must be TEXT or INTEGER, got %s", dberr.ErrInvalidSchema, t.Name, prim.Name, prim.Type)
	}
	return nil
}

// Row is a mapping from column name to value.
type Row map[string]Value

// Clone returns a shallow copy safe to hand to a different owner (per the
// ownership rule in spec §3: "row values are owned by whichever iterator or
// result set currently holds them").
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
