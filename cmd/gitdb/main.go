// Command gitdb is the reference CLI for the engine: open a repository,
// run one statement with -e/--execute, or drop into an interactive
// REPL. Exit codes follow spec: 0 success, 1 SQL error, 2 I/O/storage
// error, 64 usage error.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/carlmjohnson/versioninfo"
	"github.com/urfave/cli/v3"

	"github.com/gitdb-project/gitdb"
	"github.com/gitdb-project/gitdb/config"
	"github.com/gitdb-project/gitdb/dberr"
	"github.com/gitdb-project/gitdb/gitlog"
	"github.com/gitdb-project/gitdb/httpapi"
	"github.com/gitdb-project/gitdb/telemetry"
)

const (
	exitSuccess = 0
	exitSQL     = 1
	exitIO      = 2
	exitUsage   = 64
)

func main() {
	cmd := &cli.Command{
		Name:    "gitdb",
		Usage:   "a relational database backed by a git-like object store",
		Version: versioninfo.Short(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Usage:   "path to the repository to open",
				Value:   ".gitdb",
			},
			&cli.StringFlag{
				Name:    "execute",
				Aliases: []string{"e"},
				Usage:   "run a single SQL statement and exit",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "print row counts after each statement",
			},
			&cli.StringFlag{
				Name:  "admin-addr",
				Usage: "address to serve the admin/introspection HTTP API on (disabled if empty)",
			},
			&cli.BoolFlag{
				Name:  "trace",
				Usage: "trace statement execution with OpenTelemetry, printed to stdout",
			},
		},
		Action: run,
	}

	logger := gitlog.New("gitdb")
	slog.SetDefault(logger)
	ctx := gitlog.IntoContext(context.Background(), logger)

	if err := cmd.Run(ctx, os.Args); err != nil {
		logger.Error(err.Error())
		os.Exit(exitCode(err))
	}
}

// exitStatus carries the process exit code a cli.Command error should
// produce, distinguishing SQL errors from I/O/storage errors.
type exitStatus struct {
	code int
	err  error
}

func (e *exitStatus) Error() string { return e.err.Error() }
func (e *exitStatus) Unwrap() error { return e.err }

// exitCode maps a returned error to a process exit code. Anything not
// explicitly classified by run (a flag-parsing failure from cli itself,
// say) is treated as a usage error.
func exitCode(err error) int {
	var es *exitStatus
	if errors.As(err, &es) {
		return es.code
	}
	return exitUsage
}

func run(ctx context.Context, cmd *cli.Command) error {
	logger := gitlog.FromContext(ctx)

	path := cmd.String("database")
	verbose := cmd.Bool("verbose")
	sql := cmd.String("execute")
	adminAddr := cmd.String("admin-addr")
	trace := cmd.Bool("trace")

	cfg, err := config.Load(ctx, path)
	if err != nil {
		return &exitStatus{code: exitIO, err: fmt.Errorf("gitdb: loading config: %w", err)}
	}
	if adminAddr == "" {
		adminAddr = cfg.Server.AdminAddr
	}

	dbOpts := []gitdb.Option{gitdb.WithConfig(cfg)}
	if trace {
		tel, err := telemetry.New(ctx, "gitdb", versioninfo.Short(), true)
		if err != nil {
			return &exitStatus{code: exitIO, err: fmt.Errorf("gitdb: starting tracer: %w", err)}
		}
		defer tel.Shutdown(ctx)
		dbOpts = append(dbOpts, gitdb.WithTracer(tel.Tracer()))
	}

	db, err := gitdb.Open(path, dbOpts...)
	if err != nil {
		return &exitStatus{code: exitIO, err: fmt.Errorf("gitdb: opening %s: %w", path, err)}
	}
	defer db.Close()

	if adminAddr != "" {
		srv := httpapi.New(db, gitlog.Component(logger, "httpapi"))
		go func() {
			logger.Info("admin API listening", "addr", adminAddr)
			if err := http.ListenAndServe(adminAddr, srv.Router()); err != nil {
				logger.Error("admin API stopped", "error", err)
			}
		}()
	}

	if sql != "" {
		stmtCtx, cancel := context.WithTimeout(ctx, cfg.Statement.Timeout)
		defer cancel()
		res, err := db.Execute(stmtCtx, sql)
		if err != nil {
			code := exitSQL
			for _, kind := range []error{dberr.ErrIO, dberr.ErrCorruptBlob, dberr.ErrRefUpdateFailed, dberr.ErrBusy} {
				if errors.Is(err, kind) {
					code = exitIO
				}
			}
			return &exitStatus{code: code, err: err}
		}
		printResult(os.Stdout, res, verbose)
		return nil
	}

	r := newREPL(db, os.Stdin, os.Stdout, verbose)
	r.statementTimeout = cfg.Statement.Timeout
	if err := r.run(ctx); err != nil {
		return &exitStatus{code: exitIO, err: err}
	}
	return nil
}
