package exec

import (
	"context"
	"fmt"
	"sort"

	"github.com/gitdb-project/gitdb/dberr"
	"github.com/gitdb-project/gitdb/physical"
	"github.com/gitdb-project/gitdb/schema"
	"github.com/gitdb-project/gitdb/sqlast"
	"github.com/gitdb-project/gitdb/table"
)

// --- SeqScan ---

type scanItem struct {
	row schema.Row
	err error
}

// seqScanSource streams table.Table.Scan's callback-driven iteration
// through an unbuffered channel, turning it into a pull-based Next()
// without ever materializing more than one row at a time — the "does not
// buffer" requirement for SeqScan. The scan goroutine blocks on the send
// (or on ctx) until the consumer calls Next again or Close cancels it.
type seqScanSource struct {
	cancel context.CancelFunc
	items  chan scanItem
}

func newSeqScanSource(ctx context.Context, tbl *table.Table) *seqScanSource {
	ctx, cancel := context.WithCancel(ctx)
	items := make(chan scanItem)

	go func() {
		defer close(items)
		err := tbl.Scan(func(row schema.Row) (bool, error) {
			select {
			case items <- scanItem{row: row}:
				return true, nil
			case <-ctx.Done():
				return false, nil
			}
		})
		if err != nil {
			select {
			case items <- scanItem{err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return &seqScanSource{cancel: cancel, items: items}
}

func (s *seqScanSource) Next() (schema.Row, bool, error) {
	item, ok := <-s.items
	if !ok {
		return nil, false, nil
	}
	if item.err != nil {
		return nil, false, item.err
	}
	return item.row, true, nil
}

func (s *seqScanSource) Close() { s.cancel() }

// --- PointGet ---

type pointGetSource struct {
	row  schema.Row
	has  bool
	sent bool
}

func newPointGetSource(tbl *table.Table, key schema.Value) (*pointGetSource, error) {
	row, ok, err := tbl.Get(key)
	if err != nil {
		return nil, err
	}
	return &pointGetSource{row: row, has: ok}, nil
}

func (p *pointGetSource) Next() (schema.Row, bool, error) {
	if p.sent || !p.has {
		return nil, false, nil
	}
	p.sent = true
	return p.row, true, nil
}

func (p *pointGetSource) Close() {}

// --- Filter ---

type filterSource struct {
	child rawSource
	pred  sqlast.Expr
}

func (f *filterSource) Next() (schema.Row, bool, error) {
	for {
		row, ok, err := f.child.Next()
		if err != nil || !ok {
			return nil, ok, err
		}
		val, err := evalExpr(row, f.pred)
		if err != nil {
			return nil, false, err
		}
		if isTrue(val) {
			return row, true, nil
		}
	}
}

func (f *filterSource) Close() { f.child.Close() }

// --- Project ---

type projectSource struct {
	child   rawSource
	columns []string
}

func (p *projectSource) Next() (Row, bool, error) {
	row, ok, err := p.child.Next()
	if err != nil || !ok {
		return Row{}, ok, err
	}
	values := make([]schema.Value, len(p.columns))
	for i, c := range p.columns {
		v, ok := row[c]
		if !ok {
			return Row{}, false, fmt.Errorf("%w: %s", dberr.ErrColumnNotFound, c)
		}
		values[i] = v
	}
	return Row{Columns: p.columns, Values: values}, true, nil
}

func (p *projectSource) Close() { p.child.Close() }

// --- Sort ---

type sortSource struct {
	rows []Row
	idx  int
}

func newSortSource(child rowSource, keys []physical.SortKey) (*sortSource, error) {
	var rows []Row
	for {
		row, ok, err := child.Next()
		if err != nil {
			child.Close()
			return nil, err
		}
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	child.Close()

	sort.SliceStable(rows, func(i, j int) bool {
		return lessRows(rows[i], rows[j], keys)
	})
	return &sortSource{rows: rows}, nil
}

func lessRows(a, b Row, keys []physical.SortKey) bool {
	for _, k := range keys {
		av, _ := a.Value(k.Column)
		bv, _ := b.Value(k.Column)
		if c := compareForSort(av, bv, k.Descending); c != 0 {
			return c < 0
		}
	}
	return false
}

// compareForSort orders two values for one sort key: nulls first on
// ascending, nulls last on descending (spec §4.J), non-null values by
// their natural order within the key's direction.
func compareForSort(a, b schema.Value, descending bool) int {
	switch {
	case a.IsNull() && b.IsNull():
		return 0
	case a.IsNull():
		if descending {
			return 1
		}
		return -1
	case b.IsNull():
		if descending {
			return -1
		}
		return 1
	}
	cmp := compareValuesForSort(a, b)
	if descending {
		return -cmp
	}
	return cmp
}

func compareValuesForSort(a, b schema.Value) int {
	switch {
	case isNumeric(a) && isNumeric(b):
		return compareFloat(a.AsReal(), b.AsReal())
	case a.Type() == schema.Text && b.Type() == schema.Text:
		return compareString(a.Text(), b.Text())
	case a.Type() == schema.Boolean && b.Type() == schema.Boolean:
		return compareBool(a.Bool(), b.Bool())
	default:
		return 0
	}
}

func (s *sortSource) Next() (Row, bool, error) {
	if s.idx >= len(s.rows) {
		return Row{}, false, nil
	}
	r := s.rows[s.idx]
	s.idx++
	return r, true, nil
}

func (s *sortSource) Close() {}

// --- Limit ---

type limitSource struct {
	child   rowSource
	n       int64
	emitted int64
}

func (l *limitSource) Next() (Row, bool, error) {
	if l.emitted >= l.n {
		l.child.Close()
		return Row{}, false, nil
	}
	row, ok, err := l.child.Next()
	if err != nil || !ok {
		return Row{}, ok, err
	}
	l.emitted++
	return row, true, nil
}

func (l *limitSource) Close() { l.child.Close() }
