package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mind-lens/api/internal/analysis"
	"mind-lens/api/internal/handle"
	"mind-lens/api/internal/imagedec"
	"mind-lens/api/internal/prompt"
	"mind-lens/api/internal/store"
	"mind-lens/api/internal/util"
)

type nopEngine struct{}

func (nopEngine) Name() string  { return "nop" }
func (nopEngine) Model() string { return "nop" }
func (nopEngine) Analyze(context.Context, string, []imagedec.Image) (analysis.Result, error) {
	return analysis.Result{}, errors.New("not used")
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestRouter(t *testing.T) (http.Handler, *store.AnalysisLogRepo) {
	t.Helper()
	db, err := store.Open(context.Background(), store.Options{DSN: "sqlite:///:memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	repo := store.NewAnalysisLogRepo(db, util.SystemClock{})
	h := handle.New(nopEngine{}, repo, handle.Options{Logger: discard()})
	return NewRouter(h, db, discard()), repo
}

func do(t *testing.T, router http.Handler, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := do(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestHealthzDBDown(t *testing.T) {
	h := handle.New(nopEngine{}, nil, handle.Options{Logger: discard()})
	router := NewRouter(h, pingFunc(func(context.Context) error { return errors.New("connection refused") }), discard())

	rec := do(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestRequestIDHeader(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/healthz", nil)
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)

	rec = do(t, router, http.MethodGet, "/healthz", map[string]string{RequestIDHeader: "req-42"})
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := do(t, router, http.MethodOptions, "/api/analyze", map[string]string{
		"Origin":                         "http://localhost:5173",
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "Content-Type",
	})
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestAnalyzeRouteIsPostOnly(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := do(t, router, http.MethodGet, "/api/analyze", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPersonasRoute(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := do(t, router, http.MethodGet, "/api/personas", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got []prompt.Persona
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, len(prompt.Personas))
	assert.Equal(t, prompt.Personas[0].Name, got[0].Name)
	assert.NotContains(t, rec.Body.String(), "tone")
}

func TestLogsRoutes(t *testing.T) {
	router, repo := newTestRouter(t)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		_, err := repo.Append(ctx, fmt.Sprintf("p%d", i), json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)))
		require.NoError(t, err)
	}

	rec := do(t, router, http.MethodGet, "/api/logs?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Items []store.AnalysisLog `json:"items"`
		Total int64               `json:"total"`
		Limit int                 `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.EqualValues(t, 3, page.Total)
	assert.Equal(t, 2, page.Limit)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "p3", page.Items[0].Persona)
	assert.JSONEq(t, `{"n":3}`, string(page.Items[0].Result))

	rec = do(t, router, http.MethodGet, fmt.Sprintf("/api/logs/%d", page.Items[1].ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"persona":"p2"`)

	rec = do(t, router, http.MethodGet, "/api/logs/9999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/logs/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
