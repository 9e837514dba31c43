// Package gitlog is gitdb's structured logging wrapper around
// charmbracelet/log, following the teacher's own log package: a
// charmbracelet handler plumbed through slog, carried on a context so
// call sites that never saw *DB directly (buried deep in exec or txn)
// can still log with whatever prefix the caller on top established.
package gitlog

import (
	"context"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
)

// NewHandler builds a charmbracelet handler prefixed with name (typically
// a repository path or component name, e.g. "gitdb" or "gitdb/txn").
func NewHandler(name string) slog.Handler {
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          name,
		Level:           log.InfoLevel,
	})
}

// New builds a logger prefixed with name.
func New(name string) *slog.Logger {
	return slog.New(NewHandler(name))
}

// NewContext builds a logger prefixed with name and attaches it to ctx.
func NewContext(ctx context.Context, name string) context.Context {
	return IntoContext(ctx, New(name))
}

type ctxKey struct{}

// IntoContext attaches l to ctx for FromContext to retrieve later.
func IntoContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger attached to ctx, or slog's default logger
// if none was attached (or ctx is nil).
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if v := ctx.Value(ctxKey{}); v != nil {
			return v.(*slog.Logger)
		}
	}
	return slog.Default()
}

// Component derives a sub-logger from base by appending a "/"-separated
// suffix to its prefix, so a log line from deep inside exec or txn still
// reads as e.g. "gitdb/txn: committed statement" rather than losing the
// caller's original prefix.
func Component(base *slog.Logger, suffix string) *slog.Logger {
	if cl, ok := base.Handler().(*log.Logger); ok {
		prefix := cl.GetPrefix()
		if prefix != "" {
			prefix = prefix + "/" + suffix
		} else {
			prefix = suffix
		}
		return slog.New(NewHandler(prefix))
	}
	return slog.New(NewHandler(suffix))
}
