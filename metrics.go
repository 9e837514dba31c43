package gitdb

import "github.com/prometheus/client_golang/prometheus"

// metrics are the process-level counters exposed at httpapi's GET
// /metrics when the admin server is enabled. Each DB owns its own
// prometheus.Registry rather than registering against the global default
// one, so opening more than one DB in a process (as the test suite does)
// never collides on duplicate registration.
type metrics struct {
	registry   *prometheus.Registry
	commits    prometheus.Counter
	statements prometheus.Counter
	cacheHits  prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gitdb_commits_total",
			Help: "Number of statement and transaction commits made to the repository.",
		}),
		statements: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gitdb_statements_total",
			Help: "Number of SQL statements executed, regardless of outcome.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gitdb_cache_hits_total",
			Help: "Number of parsed statements served from the statement-text parse cache.",
		}),
	}
	m.registry.MustRegister(m.commits, m.statements, m.cacheHits)
	return m
}
