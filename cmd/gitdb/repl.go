package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gitdb-project/gitdb"
	"github.com/gitdb-project/gitdb/httpapi"
)

// repl is a minimal line-oriented shell over a *gitdb.DB: semicolon-
// terminated SQL statements plus a handful of dot-commands for
// introspection. It's a thin convenience wrapper, not a full-featured
// client — piping statements through -e/--execute remains the primary
// scripted surface.
type repl struct {
	db               *gitdb.DB
	in               *bufio.Scanner
	out              io.Writer
	verbose          bool
	timing           bool
	statementTimeout time.Duration
}

func newREPL(db *gitdb.DB, in io.Reader, out io.Writer, verbose bool) *repl {
	return &repl{db: db, in: bufio.NewScanner(in), out: out, verbose: verbose}
}

func (r *repl) run(ctx context.Context) error {
	fmt.Fprintln(r.out, "gitdb REPL. Type .help for commands, .quit to exit.")

	var pending strings.Builder
	for {
		if pending.Len() == 0 {
			fmt.Fprint(r.out, "gitdb> ")
		} else {
			fmt.Fprint(r.out, "   ...> ")
		}
		if !r.in.Scan() {
			return r.in.Err()
		}
		line := r.in.Text()

		trimmed := strings.TrimSpace(line)
		if pending.Len() == 0 && strings.HasPrefix(trimmed, ".") {
			if trimmed == ".quit" {
				return nil
			}
			r.dotCommand(ctx, trimmed)
			continue
		}

		pending.WriteString(line)
		pending.WriteByte('\n')
		if !strings.HasSuffix(trimmed, ";") {
			continue
		}

		sql := pending.String()
		pending.Reset()
		r.runStatement(ctx, sql)
	}
}

func (r *repl) runStatement(ctx context.Context, sql string) {
	if r.statementTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.statementTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := r.db.Execute(ctx, sql)
	elapsed := time.Since(start)

	if err != nil {
		fmt.Fprintln(r.out, "error:", err)
		return
	}
	printResult(r.out, res, r.verbose)
	if r.timing {
		fmt.Fprintf(r.out, "(%s)\n", elapsed)
	}
}

func (r *repl) dotCommand(ctx context.Context, cmd string) {
	fields := strings.Fields(cmd)
	switch fields[0] {
	case ".help":
		fmt.Fprintln(r.out, `.help              show this message
.quit              exit the REPL
.tables            list every table
.schema TABLE      show a table's columns
.stats             show per-table row counts
.explain SQL       show the physical plan for SQL
.timing            toggle printing statement duration
.clear             clear the screen
.history           not supported in this shell`)
	case ".tables":
		tables, err := r.db.Tables(ctx)
		if err != nil {
			fmt.Fprintln(r.out, "error:", err)
			return
		}
		for _, t := range tables {
			fmt.Fprintln(r.out, t)
		}
	case ".schema":
		if len(fields) < 2 {
			fmt.Fprintln(r.out, "usage: .schema TABLE")
			return
		}
		t, err := r.db.Schema(ctx, fields[1])
		if err != nil {
			fmt.Fprintln(r.out, "error:", err)
			return
		}
		for _, c := range t.Columns {
			mark := ""
			if c.IsPrimary {
				mark = " PRIMARY KEY"
			}
			fmt.Fprintf(r.out, "%s %s%s\n", c.Name, c.Type, mark)
		}
	case ".stats":
		snap, err := r.db.Stats(ctx)
		if err != nil {
			fmt.Fprintln(r.out, "error:", err)
			return
		}
		for table, n := range snap.RowCounts {
			fmt.Fprintf(r.out, "%s: %s rows\n", table, humanize.Comma(n))
		}
	case ".explain":
		sql := strings.TrimSpace(strings.TrimPrefix(cmd, ".explain"))
		if sql == "" {
			fmt.Fprintln(r.out, "usage: .explain SQL")
			return
		}
		plan, err := r.db.Explain(ctx, sql)
		if err != nil {
			fmt.Fprintln(r.out, "error:", err)
			return
		}
		fmt.Fprint(r.out, httpapi.Explain(plan))
	case ".timing":
		r.timing = !r.timing
		fmt.Fprintln(r.out, "timing:", r.timing)
	case ".clear":
		fmt.Fprint(r.out, "\033[H\033[2J")
	default:
		fmt.Fprintln(r.out, "unknown command:", fields[0])
	}
}

func printResult(w io.Writer, res gitdb.Result, verbose bool) {
	if len(res.Columns) == 0 {
		if verbose {
			fmt.Fprintf(w, "%s rows affected\n", humanize.Comma(res.RowsAffected))
		}
		return
	}

	fmt.Fprintln(w, strings.Join(res.Columns, "\t"))
	for _, row := range res.Rows {
		cells := make([]string, len(res.Columns))
		for i, col := range res.Columns {
			v, _ := row.Value(col)
			cells[i] = v.String()
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	if verbose {
		fmt.Fprintf(w, "%s rows\n", humanize.Comma(int64(len(res.Rows))))
	}
}
