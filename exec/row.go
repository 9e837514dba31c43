package exec

import "github.com/gitdb-project/gitdb/schema"

// Row is a fully-materialized output row with an explicit, display-stable
// column order — unlike schema.Row's unordered map, which the operators
// below use internally for anything still attached to its table schema.
type Row struct {
	Columns []string
	Values  []schema.Value
}

// Value looks up a column by name within this row.
func (r Row) Value(name string) (schema.Value, bool) {
	for i, c := range r.Columns {
		if c == name {
			return r.Values[i], true
		}
	}
	return schema.Value{}, false
}

// rawSource yields full-schema rows (column name → value) one at a time.
// SeqScan, PointGet and Filter all operate at this level, before a
// Project fixes the output column order.
type rawSource interface {
	Next() (schema.Row, bool, error)
	Close()
}

// rowSource yields ordered, projected rows. Project is the layer that
// produces these from a rawSource; Sort and Limit only ever sit above a
// Project in plans this engine generates (see planner.planSelect), so
// they consume and produce rowSource rather than rawSource.
type rowSource interface {
	Next() (Row, bool, error)
	Close()
}
