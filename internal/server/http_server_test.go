package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/study-core/internal/sampler"
	"github.com/GoSim-25-26J-441/study-core/internal/space"
	"github.com/GoSim-25-26J-441/study-core/internal/storage"
	"github.com/GoSim-25-26J-441/study-core/internal/study"
	"github.com/GoSim-25-26J-441/study-core/pkg/logger"
)

const testSpaceYAML = `
x: {name: x, type: float, low: -10, high: 10}
opt: {name: opt, type: categorical, choices: [adam, sgd]}
`

func testOptions(t *testing.T) Options {
	t.Helper()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Init(context.Background()))
	engine, err := study.NewEngine(study.Options{
		Store:   store,
		Sampler: sampler.NewRandomSampler(7),
		Logger:  logger.Discard(),
	})
	require.NoError(t, err)
	sp, err := space.ParseYAML([]byte(testSpaceYAML))
	require.NoError(t, err)
	return Options{Engine: engine, Space: sp, Logger: logger.Discard()}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestHealthzAndPing(t *testing.T) {
	h := NewHTTPServer(testOptions(t)).Handler()

	rec, body := doJSON(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	for _, path := range []string{"/v1/ping", "/optunapi/ping"} {
		rec, body = doJSON(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "pong", body["message"])
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := NewHTTPServer(testOptions(t)).Handler()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestAskTellBestFlow(t *testing.T) {
	h := NewHTTPServer(testOptions(t)).Handler()

	var ids []int64
	for i := 0; i < 3; i++ {
		rec, body := doJSON(t, h, http.MethodPost, "/v1/studies/demo/ask", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		ids = append(ids, int64(body["trial_id"].(float64)))
		params := body["params"].(map[string]any)
		assert.Contains(t, params, "x")
		assert.Contains(t, params, "opt")
		assert.NotEmpty(t, body["space_version"])
		assert.Equal(t, float64(i+1), body["running_count"])
	}
	assert.Equal(t, []int64{0, 1, 2}, ids)

	rec, body := doJSON(t, h, http.MethodPost, "/v1/studies/demo/tell", map[string]any{"trial_id": 1, "value": 0.5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "COMPLETE", body["state"])
	assert.Equal(t, float64(1), body["best_trial_id"])
	assert.Equal(t, 0.5, body["best_value"])
	assert.Equal(t, float64(2), body["running_count"])
	assert.Equal(t, float64(1), body["completed_count"])

	rec, body = doJSON(t, h, http.MethodPost, "/v1/studies/demo/tell", map[string]any{"trial_id": 2, "value": 0.1})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["best_trial_id"])

	rec, body = doJSON(t, h, http.MethodPost, "/v1/studies/demo/tell", map[string]any{"trial_id": 0, "state": "failed"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "FAILED", body["state"])
	assert.Equal(t, float64(0), body["running_count"])

	rec, body = doJSON(t, h, http.MethodGet, "/v1/studies/demo/best", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	best := body["best"].(map[string]any)
	assert.Equal(t, float64(2), best["trial_id"])
	assert.Equal(t, float64(2), body["completed_count"])

	rec, body = doJSON(t, h, http.MethodGet, "/v1/studies/demo/trials", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["trials"], 3)

	rec, body = doJSON(t, h, http.MethodGet, "/v1/studies/demo/trials?state=complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["trials"], 2)
}

func TestAskWithInlineSearchSpace(t *testing.T) {
	h := NewHTTPServer(testOptions(t)).Handler()

	rec, body := doJSON(t, h, http.MethodPost, "/v1/studies/inline/ask", map[string]any{
		"search_space_yaml": "n: {name: n, type: int, low: 1, high: 4}",
		"direction":         "maximize",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	params := body["params"].(map[string]any)
	require.Len(t, params, 1)
	n := params["n"].(float64)
	assert.GreaterOrEqual(t, n, 1.0)
	assert.LessOrEqual(t, n, 4.0)
}

func TestErrorMapping(t *testing.T) {
	opts := testOptions(t)
	h := NewHTTPServer(opts).Handler()

	rec, _ := doJSON(t, h, http.MethodPost, "/v1/studies/s/ask", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	_, _ = doJSON(t, h, http.MethodPost, "/v1/studies/s/tell", map[string]any{"trial_id": 0, "value": 1})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"bad search space", http.MethodPost, "/v1/studies/s/ask", map[string]any{"search_space_yaml": "x: {name: x, type: bogus}"}, http.StatusBadRequest},
		{"bad direction", http.MethodPost, "/v1/studies/s2/ask", map[string]any{"direction": "sideways"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/v1/studies/s/tell", map[string]any{"trial": 0}, http.StatusBadRequest},
		{"missing trial id", http.MethodPost, "/v1/studies/s/tell", map[string]any{"value": 1}, http.StatusBadRequest},
		{"missing value", http.MethodPost, "/v1/studies/s/tell", map[string]any{"trial_id": 0}, http.StatusBadRequest},
		{"unknown study", http.MethodPost, "/v1/studies/nope/tell", map[string]any{"trial_id": 0, "value": 1}, http.StatusNotFound},
		{"unknown trial", http.MethodPost, "/v1/studies/s/tell", map[string]any{"trial_id": 99, "value": 1}, http.StatusNotFound},
		{"double tell", http.MethodPost, "/v1/studies/s/tell", map[string]any{"trial_id": 0, "value": 2}, http.StatusConflict},
		{"bad state filter", http.MethodGet, "/v1/studies/s/trials?state=DONE", nil, http.StatusBadRequest},
		{"best unknown study", http.MethodGet, "/v1/studies/nope/best", nil, http.StatusNotFound},
		{"wrong method", http.MethodGet, "/v1/studies/s/ask", nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if tt.body != nil {
				require.NoError(t, json.NewEncoder(&buf).Encode(tt.body))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, &buf))
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestBestWithoutCompletedTrials(t *testing.T) {
	h := NewHTTPServer(testOptions(t)).Handler()
	_, _ = doJSON(t, h, http.MethodPost, "/v1/studies/empty/ask", nil)
	rec, _ := doJSON(t, h, http.MethodGet, "/v1/studies/empty/best", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAskWithoutSearchSpace(t *testing.T) {
	opts := testOptions(t)
	opts.Space = nil
	h := NewHTTPServer(opts).Handler()
	rec, _ := doJSON(t, h, http.MethodPost, "/v1/studies/nospace/ask", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, h, http.MethodGet, "/v1/studies/nospace/trials", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "a rejected ask leaves no study behind")
}

func TestCompatibilityRoutes(t *testing.T) {
	h := NewHTTPServer(testOptions(t)).Handler()

	rec, body := doJSON(t, h, http.MethodGet, "/optunapi/hparams/legacy", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	id := int64(body["trial_id"].(float64))

	rec, body = doJSON(t, h, http.MethodGet, fmt.Sprintf("/optunapi/score/legacy?trial_id=%d&score=0.7&step=3", id), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "RUNNING", body["state"])

	rec, body = doJSON(t, h, http.MethodGet, fmt.Sprintf("/optunapi/score/legacy?trial_id=%d&score=0.4", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "COMPLETE", body["state"])
	assert.Equal(t, 0.4, body["best_value"])

	rec, _ = doJSON(t, h, http.MethodGet, "/optunapi/score/legacy?trial_id=x&score=1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = doJSON(t, h, http.MethodGet, fmt.Sprintf("/optunapi/score/legacy?trial_id=%d&score=nan", id), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	opts := testOptions(t)
	opts.AuthSecret = "top-secret"
	h := NewHTTPServer(opts).Handler()

	rec, _ := doJSON(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, h, http.MethodPost, "/v1/studies/a/ask", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	call := func(token string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/studies/a/ask", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	good, err := NewAuthenticator("top-secret").Issue("worker-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, call(good))

	forged, err := NewAuthenticator("other").Issue("worker-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call(forged))

	expired, err := NewAuthenticator("top-secret").Issue("worker-1", -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call(expired))
}

func TestAuthenticator(t *testing.T) {
	assert.Nil(t, NewAuthenticator(""))

	a := NewAuthenticator("k")
	tok, err := a.Issue("sub", time.Hour)
	require.NoError(t, err)
	claims, err := a.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "sub", claims.Subject)
	assert.NotEmpty(t, claims.ID)

	_, err = a.Validate("garbage")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = bearerToken("Basic abc")
	assert.True(t, errors.Is(err, ErrUnauthorized))
	got, err := bearerToken("bearer abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", got)
}
