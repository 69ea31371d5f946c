package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/sqlscope/internal/config"
)

type captured struct {
	mu   sync.Mutex
	reqs []*http.Request
}

func (c *captured) last() *http.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reqs[len(c.reqs)-1]
}

// fakeCluster answers every request with body and the product header the
// official client insists on.
func fakeCluster(t *testing.T, status int, body string) (*httptest.Server, *captured) {
	t.Helper()
	rec := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.reqs = append(rec.reqs, r.Clone(context.Background()))
		rec.mu.Unlock()
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func settingsFor(url string) config.SearchSettings {
	s := config.Defaults().Search
	s.URL = url
	return s
}

func TestCompatibilityHeader(t *testing.T) {
	h := CompatibilityHeader(8)
	require.NotNil(t, h)
	assert.Equal(t, "application/vnd.elasticsearch+json; compatible-with=8", h.Get("Accept"))
	assert.Equal(t, "application/vnd.elasticsearch+json; compatible-with=8", h.Get("Content-Type"))

	assert.Nil(t, CompatibilityHeader(0))
}

func TestRawSearch_ReturnsSources(t *testing.T) {
	srv, rec := fakeCluster(t, http.StatusOK,
		`{"hits":{"hits":[{"_source":{"mssql_instance":"SQL01"}},{"_source":{"mssql_instance":"SQL02"}}]}}`)

	cli, err := New(settingsFor(srv.URL))
	require.NoError(t, err)

	docs, err := cli.FetchMetrics(context.Background(), `mssql_instance:"SQL01"`, 25)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "SQL02", docs[1]["mssql_instance"])

	r := rec.last()
	assert.Equal(t, "/mssql-metrics-*/_search", r.URL.Path)
	assert.Equal(t, `mssql_instance:"SQL01"`, r.URL.Query().Get("q"))
	assert.Equal(t, "25", r.URL.Query().Get("size"))
	assert.Contains(t, r.Header.Get("Accept"), "compatible-with=8")
}

func TestRawSearch_LogsIndex(t *testing.T) {
	srv, rec := fakeCluster(t, http.StatusOK, `{"hits":{"hits":[]}}`)

	cli, err := New(settingsFor(srv.URL))
	require.NoError(t, err)

	docs, err := cli.FetchLogs(context.Background(), "level:error", 10)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Equal(t, "/mssql-logs-*/_search", rec.last().URL.Path)
}

func TestRawSearch_BasicAuthNeedsBoth(t *testing.T) {
	srv, rec := fakeCluster(t, http.StatusOK, `{"hits":{"hits":[]}}`)

	s := settingsFor(srv.URL)
	s.Username = "elastic"
	cli, err := New(s)
	require.NoError(t, err)
	_, err = cli.FetchMetrics(context.Background(), "*", 1)
	require.NoError(t, err)
	_, _, ok := rec.last().BasicAuth()
	assert.False(t, ok, "username alone must not send credentials")

	s.Password = "changeme"
	cli, err = New(s)
	require.NoError(t, err)
	_, err = cli.FetchMetrics(context.Background(), "*", 1)
	require.NoError(t, err)
	user, pass, ok := rec.last().BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "elastic", user)
	assert.Equal(t, "changeme", pass)
}

func TestRawSearch_ErrorStatus(t *testing.T) {
	srv, _ := fakeCluster(t, http.StatusBadRequest, `{"error":{"type":"query_shard_exception"}}`)

	cli, err := New(settingsFor(srv.URL))
	require.NoError(t, err)

	_, err = cli.FetchMetrics(context.Background(), "bad:(", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query_shard_exception")
}

func TestNew_MissingCACert(t *testing.T) {
	s := settingsFor("https://localhost:9200")
	s.CACert = "/nonexistent/ca.pem"
	_, err := New(s)
	assert.Error(t, err)

	s.Insecure = true
	_, err = New(s)
	assert.NoError(t, err, "insecure mode ignores the CA file")
}
