// Package exec is the pull-based execution engine from spec §4.J: each
// physical operator exposes a Next() that consumes from its children
// lazily, down to SeqScan/PointGet at the leaves and Kleene-logic
// expression evaluation throughout. Execute is the single entry point
// that runs one physical.Plan against one transaction and returns its
// Result.
package exec

import (
	"context"
	"fmt"

	"github.com/gitdb-project/gitdb/dberr"
	"github.com/gitdb-project/gitdb/physical"
	"github.com/gitdb-project/gitdb/schema"
	"github.com/gitdb-project/gitdb/stats"
	"github.com/gitdb-project/gitdb/table"
	"github.com/gitdb-project/gitdb/txn"
	"github.com/gitdb-project/gitdb/view"
)

// Result is what one statement's execution produces: either a row set
// (queries) or a modification count (DML/DDL), never both.
type Result struct {
	Columns      []string
	Rows         []Row
	RowsAffected int64
}

// Execute runs plan against tx, committing one statement (per spec §4.E,
// every DML/DDL statement is exactly one commit regardless of how many
// rows it touches) for write plans, or streaming rows for read plans. st
// may be nil; when present, DML updates its row-count cache so the
// optimizer's cost model stays close to reality without re-scanning.
func Execute(ctx context.Context, tx *txn.Transaction, st *stats.Store, plan physical.Plan) (Result, error) {
	switch p := plan.(type) {
	case physical.Insert:
		return executeInsert(ctx, tx, st, p)
	case physical.Update:
		return executeUpdate(ctx, tx, st, p)
	case physical.Delete:
		return executeDelete(ctx, tx, st, p)
	case physical.CreateTable:
		return executeCreateTable(ctx, tx, p)
	case physical.DropTable:
		return executeDropTable(ctx, tx, st, p)
	default:
		return executeQuery(ctx, tx, plan)
	}
}

func executeQuery(ctx context.Context, tx *txn.Transaction, plan physical.Plan) (Result, error) {
	rs, columns, err := buildRowSource(ctx, tx.Snapshot(), plan)
	if err != nil {
		return Result{}, err
	}
	var rows []Row
	for {
		row, ok, err := rs.Next()
		if err != nil {
			return Result{}, err
		}
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	return Result{Columns: columns, Rows: rows}, nil
}

// buildRawSource builds the full-schema-row producer for a (sub)plan
// rooted at a SeqScan, PointGet or Filter.
func buildRawSource(ctx context.Context, snap *view.Snapshot, plan physical.Plan) (rawSource, error) {
	switch p := plan.(type) {
	case physical.SeqScan:
		tbl := table.Open(snap, p.Schema)
		return newSeqScanSource(ctx, tbl), nil
	case physical.PointGet:
		tbl := table.Open(snap, p.Schema)
		pg, err := newPointGetSource(tbl, p.Key)
		if err != nil {
			return nil, err
		}
		return &filterSource{child: pg, pred: p.Residual}, nil
	case physical.Filter:
		child, err := buildRawSource(ctx, snap, p.Child)
		if err != nil {
			return nil, err
		}
		return &filterSource{child: child, pred: p.Predicate}, nil
	default:
		return nil, fmt.Errorf("%w: %T is not a row-producing operator", dberr.ErrUnsupportedFeature, plan)
	}
}

// buildRowSource builds the ordered, projected-row producer for a query
// plan. Project is the only node that turns a rawSource into a rowSource;
// Sort and Limit consume and produce rowSource, matching the shape every
// plan planner.planSelect builds (Scan/Filter, then always Project, then
// optionally Sort, then optionally Limit).
func buildRowSource(ctx context.Context, snap *view.Snapshot, plan physical.Plan) (rowSource, []string, error) {
	switch p := plan.(type) {
	case physical.Project:
		child, err := buildRawSource(ctx, snap, p.Child)
		if err != nil {
			return nil, nil, err
		}
		return &projectSource{child: child, columns: p.Columns}, p.Columns, nil
	case physical.Sort:
		child, columns, err := buildRowSource(ctx, snap, p.Child)
		if err != nil {
			return nil, nil, err
		}
		s, err := newSortSource(child, p.Keys)
		if err != nil {
			return nil, nil, err
		}
		return s, columns, nil
	case physical.Limit:
		child, columns, err := buildRowSource(ctx, snap, p.Child)
		if err != nil {
			return nil, nil, err
		}
		return &limitSource{child: child, n: p.N}, columns, nil
	default:
		return nil, nil, fmt.Errorf("%w: %T is not a row-producing operator", dberr.ErrUnsupportedFeature, plan)
	}
}

// --- DML/DDL ---

func executeInsert(ctx context.Context, tx *txn.Transaction, st *stats.Store, p physical.Insert) (Result, error) {
	tbl := table.Open(tx.Snapshot(), p.Schema)
	ops := make([]view.DirOp, 0, len(p.Rows))
	for _, row := range p.Rows {
		op, err := tbl.InsertOp(row)
		if err != nil {
			return Result{}, err
		}
		ops = append(ops, op)
	}
	if err := tx.CommitStatement(ctx, ops, fmt.Sprintf("INSERT INTO %s", p.Table)); err != nil {
		return Result{}, err
	}
	adjustStats(ctx, st, p.Table, int64(len(p.Rows)))
	return Result{RowsAffected: int64(len(p.Rows))}, nil
}

func executeUpdate(ctx context.Context, tx *txn.Transaction, st *stats.Store, p physical.Update) (Result, error) {
	tbl := table.Open(tx.Snapshot(), p.Schema)

	var matched []schema.Row
	pred := p.Predicate
	err := tbl.Scan(func(row schema.Row) (bool, error) {
		keep := true
		if pred != nil {
			val, err := evalExpr(row, pred)
			if err != nil {
				return false, err
			}
			keep = isTrue(val)
		}
		if keep {
			matched = append(matched, row)
		}
		return true, nil
	})
	if err != nil {
		return Result{}, err
	}

	ops := make([]view.DirOp, 0, len(matched))
	for _, row := range matched {
		updated := row.Clone()
		for _, a := range p.Assignments {
			val, err := evalExpr(row, a.Value)
			if err != nil {
				return Result{}, err
			}
			updated[a.Column] = val
		}
		op, err := tbl.UpdateOp(updated)
		if err != nil {
			return Result{}, err
		}
		ops = append(ops, op)
	}

	if len(ops) > 0 {
		if err := tx.CommitStatement(ctx, ops, fmt.Sprintf("UPDATE %s", p.Table)); err != nil {
			return Result{}, err
		}
	}
	return Result{RowsAffected: int64(len(ops))}, nil
}

func executeDelete(ctx context.Context, tx *txn.Transaction, st *stats.Store, p physical.Delete) (Result, error) {
	cat := tx.Catalog()
	schemaPtr, err := cat.GetSchema(tx.Snapshot(), p.Table)
	if err != nil {
		return Result{}, err
	}
	tbl := table.Open(tx.Snapshot(), schemaPtr)

	var keys []schema.Value
	pred := p.Predicate
	err = tbl.Scan(func(row schema.Row) (bool, error) {
		keep := true
		if pred != nil {
			val, err := evalExpr(row, pred)
			if err != nil {
				return false, err
			}
			keep = isTrue(val)
		}
		if keep {
			keys = append(keys, row[schemaPtr.Primary().Name])
		}
		return true, nil
	})
	if err != nil {
		return Result{}, err
	}

	ops := make([]view.DirOp, 0, len(keys))
	for _, k := range keys {
		op, err := tbl.DeleteOp(k)
		if err != nil {
			return Result{}, err
		}
		ops = append(ops, op)
	}

	if len(ops) > 0 {
		if err := tx.CommitStatement(ctx, ops, fmt.Sprintf("DELETE FROM %s", p.Table)); err != nil {
			return Result{}, err
		}
	}
	adjustStats(ctx, st, p.Table, -int64(len(ops)))
	return Result{RowsAffected: int64(len(ops))}, nil
}

func executeCreateTable(ctx context.Context, tx *txn.Transaction, p physical.CreateTable) (Result, error) {
	cat := tx.Catalog()
	t := p.Table
	op, err := cat.CreateTableOp(tx.Snapshot(), &t)
	if err != nil {
		return Result{}, err
	}
	if err := tx.CommitStatement(ctx, []view.DirOp{op}, fmt.Sprintf("CREATE TABLE %s", p.Table.Name)); err != nil {
		return Result{}, err
	}
	cat.InvalidateAll()
	return Result{}, nil
}

func executeDropTable(ctx context.Context, tx *txn.Transaction, st *stats.Store, p physical.DropTable) (Result, error) {
	cat := tx.Catalog()
	ops, err := cat.DropTableOp(tx.Snapshot(), p.Table)
	if err != nil {
		return Result{}, err
	}
	if err := tx.CommitStatement(ctx, ops, fmt.Sprintf("DROP TABLE %s", p.Table)); err != nil {
		return Result{}, err
	}
	cat.InvalidateAll()
	if st != nil {
		_ = st.Forget(ctx, p.Table)
	}
	return Result{}, nil
}

func adjustStats(ctx context.Context, st *stats.Store, table string, delta int64) {
	if st == nil {
		return
	}
	_ = st.Adjust(ctx, table, delta)
}
