// Package httpapi is the optional admin/introspection surface from
// SPEC_FULL.md §4.K: GET /stats, GET /explain, GET /metrics over an
// already-open gitdb.DB. It is never started unless an administrator
// configures an AdminAddr, and it never accepts write traffic — every
// route here is a read-only view onto state the CLI/REPL already expose
// as .stats and .explain.
package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gitdb-project/gitdb"
	"github.com/gitdb-project/gitdb/physical"
	"github.com/gitdb-project/gitdb/sqlast"
)

// Server wraps a gitdb.DB with the chi router serving its introspection
// endpoints.
type Server struct {
	db  *gitdb.DB
	log *slog.Logger
}

// New builds a Server over db. log is the logger requests are reported
// through; pass gitlog.Component(parent, "httpapi") to derive one with
// the caller's own prefix.
func New(database *gitdb.DB, log *slog.Logger) *Server {
	return &Server{db: database, log: log}
}

// Router builds the chi handler for this server's routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)

	r.Get("/stats", s.handleStats)
	r.Get("/explain", s.handleExplain)
	r.Handle("/metrics", promhttp.HandlerFor(s.db.MetricsRegistry(), promhttp.HandlerOpts{}))

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, err := s.db.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.log.Error("encoding stats response", "error", err)
	}
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	sql := r.URL.Query().Get("sql")
	if sql == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("httpapi: missing sql query parameter"))
		return
	}

	plan, err := s.db.Explain(r.Context(), sql)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp := struct {
		Plan string `json:"plan"`
	}{Plan: Explain(plan)}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error("encoding explain response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: err.Error()})
}

// Explain renders a physical plan as an indented tree, one operator per
// line, for the /explain endpoint and the REPL's .explain command.
func Explain(p physical.Plan) string {
	var b strings.Builder
	explainNode(&b, p, 0)
	return b.String()
}

func explainNode(b *strings.Builder, p physical.Plan, depth int) {
	indent := strings.Repeat("  ", depth)
	switch v := p.(type) {
	case physical.SeqScan:
		fmt.Fprintf(b, "%sSeqScan(%s)\n", indent, v.Table)
	case physical.PointGet:
		fmt.Fprintf(b, "%sPointGet(%s, key=%v)\n", indent, v.Table, v.Key)
	case physical.Filter:
		fmt.Fprintf(b, "%sFilter(%s)\n", indent, describeExpr(v.Predicate))
		explainNode(b, v.Child, depth+1)
	case physical.Project:
		fmt.Fprintf(b, "%sProject(%s)\n", indent, strings.Join(v.Columns, ", "))
		explainNode(b, v.Child, depth+1)
	case physical.Sort:
		fmt.Fprintf(b, "%sSort(%s)\n", indent, describeKeys(v.Keys))
		explainNode(b, v.Child, depth+1)
	case physical.Limit:
		fmt.Fprintf(b, "%sLimit(%d)\n", indent, v.N)
		explainNode(b, v.Child, depth+1)
	case physical.Insert:
		fmt.Fprintf(b, "%sInsert(%s, rows=%d)\n", indent, v.Table, len(v.Rows))
	case physical.Update:
		fmt.Fprintf(b, "%sUpdate(%s)\n", indent, v.Table)
	case physical.Delete:
		fmt.Fprintf(b, "%sDelete(%s)\n", indent, v.Table)
	case physical.CreateTable:
		fmt.Fprintf(b, "%sCreateTable(%s)\n", indent, v.Table.Name)
	case physical.DropTable:
		fmt.Fprintf(b, "%sDropTable(%s)\n", indent, v.Table)
	default:
		fmt.Fprintf(b, "%s%T\n", indent, v)
	}
}

func describeExpr(e sqlast.Expr) string {
	switch v := e.(type) {
	case nil:
		return "true"
	case sqlast.Literal:
		return v.Value.String()
	case sqlast.Column:
		return v.Name
	case sqlast.BinaryOp:
		return fmt.Sprintf("(%s %s %s)", describeExpr(v.Left), v.Op, describeExpr(v.Right))
	case sqlast.UnaryOp:
		return fmt.Sprintf("(%s %s)", v.Op, describeExpr(v.Operand))
	default:
		return fmt.Sprintf("%T", v)
	}
}

func describeKeys(keys []physical.SortKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		dir := "asc"
		if k.Descending {
			dir = "desc"
		}
		parts[i] = fmt.Sprintf("%s %s", k.Column, dir)
	}
	return strings.Join(parts, ", ")
}
