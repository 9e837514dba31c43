// Package stats maintains the optimizer's row-count estimates in a small
// sqlite side database, outside the versioned tree (spec §9's resolution
// of the row-count open question). It follows the mattn/go-sqlite3 usage
// in spindle/secrets/sqlite.go: open with a DSN, create-if-missing schema,
// parameterized queries.
package stats

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultRowCount is used by the optimizer's cost model when a table has
// never been observed (spec §4.H).
const DefaultRowCount = 1000

// Store tracks approximate row counts per table name. One Store is opened
// per repository at <repo>/.gitdb/stats.db.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("stats: opening %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		create table if not exists row_counts (
			table_name text primary key,
			row_count  integer not null default 0
		);
	`)
	if err != nil {
		return fmt.Errorf("stats: creating schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RowCount returns the last-known row count for table, or DefaultRowCount
// if the table has never been recorded.
func (s *Store) RowCount(ctx context.Context, table string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `select row_count from row_counts where table_name = ?`, table).Scan(&n)
	if err == sql.ErrNoRows {
		return DefaultRowCount, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stats: reading row count for %s: %w", table, err)
	}
	return n, nil
}

// Adjust applies delta (positive for inserts, negative for deletes) to
// table's tracked row count. It is called once per committed statement,
// never per row, so it never adds commits of its own — this table lives
// entirely outside the versioned tree.
func (s *Store) Adjust(ctx context.Context, table string, delta int64) error {
	_, err := s.db.ExecContext(ctx, `
		insert into row_counts (table_name, row_count) values (?, ?)
		on conflict(table_name) do update set row_count = max(0, row_count + excluded.row_count)
	`, table, delta)
	if err != nil {
		return fmt.Errorf("stats: adjusting row count for %s: %w", table, err)
	}
	return nil
}

// Set overwrites table's tracked row count outright. The executor does not
// call it: INSERT/DELETE use Adjust and DROP TABLE uses Forget.
func (s *Store) Set(ctx context.Context, table string, count int64) error {
	_, err := s.db.ExecContext(ctx, `
		insert into row_counts (table_name, row_count) values (?, ?)
		on conflict(table_name) do update set row_count = excluded.row_count
	`, table, count)
	if err != nil {
		return fmt.Errorf("stats: setting row count for %s: %w", table, err)
	}
	return nil
}

// Forget drops table's tracked row count entirely (DROP TABLE).
func (s *Store) Forget(ctx context.Context, table string) error {
	_, err := s.db.ExecContext(ctx, `delete from row_counts where table_name = ?`, table)
	if err != nil {
		return fmt.Errorf("stats: forgetting %s: %w", table, err)
	}
	return nil
}

// Snapshot is a point-in-time read of every table this Store has ever
// recorded a row count for.
type Snapshot struct {
	RowCounts map[string]int64
}

// All returns a Snapshot covering every tracked table, for the database
// facade's Stats call.
func (s *Store) All(ctx context.Context) (Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `select table_name, row_count from row_counts`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("stats: listing row counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return Snapshot{}, fmt.Errorf("stats: scanning row count: %w", err)
		}
		counts[name] = n
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("stats: listing row counts: %w", err)
	}
	return Snapshot{RowCounts: counts}, nil
}
