package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitdb-project/gitdb"
)

func openTestDB(t *testing.T) *gitdb.DB {
	t.Helper()
	db, err := gitdb.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPrintResultRendersColumnsAndRows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.Execute(ctx, `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	_, err = db.Execute(ctx, `INSERT INTO widgets (id, name) VALUES (1, 'bolt')`)
	require.NoError(t, err)

	res, err := db.Execute(ctx, `SELECT id, name FROM widgets`)
	require.NoError(t, err)

	var buf bytes.Buffer
	printResult(&buf, res, false)

	out := buf.String()
	assert.Contains(t, out, "id\tname")
	assert.Contains(t, out, "1\tbolt")
}

func TestPrintResultVerboseReportsRowsAffected(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.Execute(ctx, `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)

	res, err := db.Execute(ctx, `INSERT INTO widgets (id, name) VALUES (1, 'bolt'), (2, 'nut')`)
	require.NoError(t, err)

	var buf bytes.Buffer
	printResult(&buf, res, true)

	assert.Contains(t, buf.String(), "2 rows affected")
}

func TestDotTablesListsCreatedTables(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.Execute(ctx, `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)

	var buf bytes.Buffer
	r := newREPL(db, strings.NewReader(""), &buf, false)
	r.dotCommand(ctx, ".tables")

	assert.Equal(t, "widgets\n", buf.String())
}

func TestDotSchemaShowsColumns(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.Execute(ctx, `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)

	var buf bytes.Buffer
	r := newREPL(db, strings.NewReader(""), &buf, false)
	r.dotCommand(ctx, ".schema widgets")

	out := buf.String()
	assert.Contains(t, out, "id INTEGER PRIMARY KEY")
	assert.Contains(t, out, "name TEXT")
}

func TestDotTimingToggles(t *testing.T) {
	var buf bytes.Buffer
	r := newREPL(openTestDB(t), strings.NewReader(""), &buf, false)

	assert.False(t, r.timing)
	r.dotCommand(context.Background(), ".timing")
	assert.True(t, r.timing)
	r.dotCommand(context.Background(), ".timing")
	assert.False(t, r.timing)
}

func TestRunProcessesStatementsUntilQuit(t *testing.T) {
	db := openTestDB(t)
	var buf bytes.Buffer
	in := strings.NewReader("CREATE TABLE widgets (id INTEGER PRIMARY KEY);\n.quit\n")

	r := newREPL(db, in, &buf, false)
	err := r.run(context.Background())
	require.NoError(t, err)

	tables, err := db.Tables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"widgets"}, tables)
}

func TestExitCodeClassifiesKnownErrors(t *testing.T) {
	assert.Equal(t, exitSQL, exitCode(&exitStatus{code: exitSQL, err: assertErr}))
	assert.Equal(t, exitIO, exitCode(&exitStatus{code: exitIO, err: assertErr}))
	assert.Equal(t, exitUsage, exitCode(assertErr))
}

var assertErr = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
