package livehttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helix/internal/store/decisionlog"
)

type fakeDiary struct {
	path    string
	entries []map[string]any
	err     error
}

func (d *fakeDiary) Path() string { return d.path }

func (d *fakeDiary) Recent(n int) ([]map[string]any, error) {
	if d.err != nil {
		return nil, d.err
	}
	if len(d.entries) > n {
		return d.entries[len(d.entries)-n:], nil
	}
	return d.entries, nil
}

type fakeDecisions struct {
	records []decisionlog.Record
	limit   int
	offset  int
}

func (f *fakeDecisions) List(_ context.Context, limit, offset int) ([]decisionlog.Record, error) {
	f.limit, f.offset = limit, offset
	return f.records, nil
}

func newTestServer(t *testing.T, cfg ServerConfig) http.Handler {
	t.Helper()
	s, err := NewServer(cfg)
	require.NoError(t, err)
	return s.Handler()
}

func doGet(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	h.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t, ServerConfig{})
	w := doGet(h, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestDiaryEndpoint(t *testing.T) {
	d := &fakeDiary{entries: []map[string]any{
		{"action": "buy", "asset": "BTC"},
		{"action": "hold", "asset": "ETH"},
	}}
	h := newTestServer(t, ServerConfig{Diary: d})

	w := doGet(h, "/api/live/diary?limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Entries []map[string]any `json:"entries"`
		Count   int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "ETH", body.Entries[0]["asset"])
}

func TestDiaryUnavailable(t *testing.T) {
	h := newTestServer(t, ServerConfig{})
	w := doGet(h, "/api/live/diary")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLogsTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "live.log")
	require.NoError(t, os.WriteFile(path, []byte("line1\nline2\nline3\n"), 0o644))
	h := newTestServer(t, ServerConfig{LogPaths: map[string]string{"live": path}})

	w := doGet(h, "/api/live/logs?name=live&limit=2")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Name      string   `json:"name"`
		Lines     []string `json:"lines"`
		Available []string `json:"available"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "live", body.Name)
	assert.Equal(t, []string{"line2", "line3"}, body.Lines)
	assert.Equal(t, []string{"live"}, body.Available)
}

func TestLogsUnknownNameFallsBackToFirst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "llm.log")
	require.NoError(t, os.WriteFile(path, []byte("a\n"), 0o644))
	h := newTestServer(t, ServerConfig{LogPaths: map[string]string{"llm": path}})

	w := doGet(h, "/api/live/logs?name=missing")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"llm"`)
}

func TestDecisionsPaged(t *testing.T) {
	f := &fakeDecisions{records: []decisionlog.Record{{ID: 2, TraceID: "t2"}, {ID: 1, TraceID: "t1"}}}
	h := newTestServer(t, ServerConfig{Decisions: f})

	w := doGet(h, "/api/live/decisions?limit=20&offset=5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 20, f.limit)
	assert.Equal(t, 5, f.offset)
	assert.Contains(t, w.Body.String(), `"t2"`)
}
