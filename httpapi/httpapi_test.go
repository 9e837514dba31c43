package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitdb-project/gitdb"
	"github.com/gitdb-project/gitdb/gitlog"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	database, err := gitdb.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	_, err = database.Execute(ctx, `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	_, err = database.Execute(ctx, `INSERT INTO widgets (id, name) VALUES (1, 'bolt'), (2, 'nut')`)
	require.NoError(t, err)

	return New(database, gitlog.New("httpapi-test"))
}

func TestStatsEndpointReturnsRowCounts(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var snap struct {
		RowCounts map[string]int64 `json:"RowCounts"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&snap))
	assert.EqualValues(t, 2, snap.RowCounts["widgets"])
}

func TestExplainEndpointRejectsMissingSQLParam(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/explain", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExplainEndpointRendersSeqScan(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/explain?sql=SELECT+id+FROM+widgets", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Plan string `json:"plan"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Contains(t, resp.Plan, "SeqScan(widgets)")
	assert.Contains(t, resp.Plan, "Project(id)")
}

func TestExplainEndpointRejectsInvalidSQL(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/explain?sql=NOT+VALID+SQL", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpointExposesPrometheusFormat(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gitdb_statements_total")
}
