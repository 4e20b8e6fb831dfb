package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rmax-ai/sirsim/pkg/aggregate"
	"github.com/rmax-ai/sirsim/pkg/blob"
	"github.com/rmax-ai/sirsim/pkg/experiment"
	"github.com/rmax-ai/sirsim/pkg/simulation"
	"github.com/rmax-ai/sirsim/pkg/store"
)

type mockExperiments struct {
	lastReq experiment.Request
	runErr  error
	runs    map[string]*store.Run
	filter  store.RunFilter
}

func (m *mockExperiments) Run(ctx context.Context, req experiment.Request, opts ...simulation.Option) (*experiment.Result, error) {
	m.lastReq = req
	if m.runErr != nil {
		return nil, m.runErr
	}
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}
	return &experiment.Result{
		RunID:   "run-1",
		Summary: &aggregate.Summary{Weekly: aggregate.WeeklyCaseSeries{{Window: 0, StartStep: 1, EndStep: 7, Value: 5}}},
	}, nil
}

func (m *mockExperiments) Get(ctx context.Context, id string) (*store.Run, error) {
	if run, ok := m.runs[id]; ok {
		return run, nil
	}
	return nil, fmt.Errorf("%w: %s", store.ErrRunNotFound, id)
}

func (m *mockExperiments) List(ctx context.Context, filter store.RunFilter) ([]store.Run, error) {
	m.filter = filter
	out := []store.Run{}
	for _, r := range m.runs {
		out = append(out, *r)
	}
	return out, nil
}

func newTestServer(m *mockExperiments) *Server {
	return NewServer(m, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(t *testing.T, h http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var e ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("error body is not JSON: %s", w.Body.String())
	}
	return e.Error
}

func TestSecureHeaders(t *testing.T) {
	handler := withSecureHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	w := do(t, handler, "GET", "/", "")

	expectedHeaders := map[string]string{
		"Content-Security-Policy": "default-src 'none'; img-src 'self' data:;",
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "no-referrer",
	}
	for key, expected := range expectedHeaders {
		if got := w.Header().Get(key); got != expected {
			t.Errorf("Header %s: expected %q, got %q", key, expected, got)
		}
	}
}

func TestHealthAndTraceID(t *testing.T) {
	h := newTestServer(&mockExperiments{}).Handler()

	w := do(t, h, "GET", "/v1/health", "", "X-Trace-ID", "abc")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("unexpected health response %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Trace-ID") != "abc" {
		t.Errorf("trace id not echoed: %q", w.Header().Get("X-Trace-ID"))
	}
	if w := do(t, h, "GET", "/v1/health", ""); len(w.Header().Get("X-Trace-ID")) != 32 {
		t.Errorf("expected generated trace id, got %q", w.Header().Get("X-Trace-ID"))
	}
	if w := do(t, h, "POST", "/v1/health", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(&mockExperiments{}).Handler()
	w := do(t, h, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "sirsim_ensemble_in_flight") {
		t.Error("expected sirsim metrics in exposition")
	}
}

func TestSimulationsDefaultsAndOverrides(t *testing.T) {
	m := &mockExperiments{}
	h := newTestServer(m).Handler()

	w := do(t, h, "POST", "/v1/simulations", `{"config":{"lambda":0.5,"n_trajectories":3},"name":"flu","observed":[1,2]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	cfg := m.lastReq.Config
	if cfg.Lambda != 0.5 || cfg.NTrajectories != 3 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if def := simulation.DefaultConfig(); cfg.Gamma != def.Gamma || cfg.NPeople != def.NPeople {
		t.Errorf("defaults not kept: %+v", cfg)
	}
	if m.lastReq.Name != "flu" || len(m.lastReq.Observed) != 2 {
		t.Errorf("request fields lost: %+v", m.lastReq)
	}

	var resp SimulationResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if resp.RunID != "run-1" || len(resp.Summary.Weekly) != 1 {
		t.Errorf("unexpected response %+v", resp)
	}

	// Empty body object runs the defaults.
	if w := do(t, h, "POST", "/v1/simulations", `{}`); w.Code != http.StatusOK {
		t.Errorf("expected 200 for defaults, got %d", w.Code)
	}
}

func TestSimulationsErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		runErr error
		status int
		code   string
	}{
		{name: "bad json", body: `{`, status: http.StatusBadRequest, code: "invalid_json_body"},
		{name: "unknown field", body: `{"bogus":1}`, status: http.StatusBadRequest, code: "invalid_json_body"},
		{name: "invalid rate", body: `{"config":{"gamma":-1}}`, status: http.StatusBadRequest, code: "invalid_config"},
		{name: "busy", body: `{}`, runErr: experiment.ErrBusy, status: http.StatusConflict, code: "experiment_busy"},
		{name: "incomplete", body: `{}`, runErr: fmt.Errorf("%w: 2 of 5", simulation.ErrEnsembleIncomplete), status: http.StatusServiceUnavailable, code: "ensemble_incomplete"},
		{name: "internal", body: `{}`, runErr: errors.New("disk full"), status: http.StatusInternalServerError, code: "simulation_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(&mockExperiments{runErr: tt.runErr}).Handler()
			w := do(t, h, "POST", "/v1/simulations", tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if got := errorCode(t, w); got != tt.code {
				t.Errorf("expected error %q, got %q", tt.code, got)
			}
		})
	}

	busy := newTestServer(&mockExperiments{runErr: experiment.ErrBusy}).Handler()
	if w := do(t, busy, "POST", "/v1/simulations", `{}`); w.Header().Get("Retry-After") != busyRetryAfter {
		t.Errorf("expected Retry-After %s on busy, got %q", busyRetryAfter, w.Header().Get("Retry-After"))
	}

	h := newTestServer(&mockExperiments{}).Handler()
	if w := do(t, h, "GET", "/v1/simulations", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestSimulationsAuth(t *testing.T) {
	s := newTestServer(&mockExperiments{})
	s.SetToken("secret")
	h := s.Handler()

	if w := do(t, h, "POST", "/v1/simulations", `{}`); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}
	if w := do(t, h, "POST", "/v1/simulations", `{}`, "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong token, got %d", w.Code)
	}
	if w := do(t, h, "POST", "/v1/simulations", `{}`, "Authorization", "Bearer secret"); w.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", w.Code)
	}
	if w := do(t, h, "GET", "/v1/runs", ""); w.Code != http.StatusOK {
		t.Errorf("reads must not require a token, got %d", w.Code)
	}
}

func TestRuns(t *testing.T) {
	m := &mockExperiments{runs: map[string]*store.Run{
		"r1": {ID: "r1", Status: store.RunStatusCompleted},
	}}
	h := newTestServer(m).Handler()

	w := do(t, h, "GET", "/v1/runs?status=completed&limit=10", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if m.filter.Status != store.RunStatusCompleted || m.filter.Limit != 10 {
		t.Errorf("filter not parsed: %+v", m.filter)
	}
	var runs []store.Run
	json.Unmarshal(w.Body.Bytes(), &runs)
	if len(runs) != 1 || runs[0].ID != "r1" {
		t.Errorf("unexpected runs %+v", runs)
	}

	for _, q := range []string{"status=bogus", "limit=0", "limit=x", "since=yesterday"} {
		if w := do(t, h, "GET", "/v1/runs?"+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, w.Code)
		}
	}

	if w := do(t, h, "GET", "/v1/runs/r1", ""); w.Code != http.StatusOK {
		t.Errorf("expected 200 for r1, got %d", w.Code)
	}
	w = do(t, h, "GET", "/v1/runs/missing", "")
	if w.Code != http.StatusNotFound || errorCode(t, w) != "run_not_found" {
		t.Errorf("expected run_not_found, got %d %s", w.Code, w.Body.String())
	}
}

func TestArtifacts(t *testing.T) {
	s := newTestServer(&mockExperiments{})
	h := s.Handler()

	if w := do(t, h, "GET", "/v1/runs/r1/artifacts/flu-infected.csv", ""); w.Code != http.StatusNotImplemented {
		t.Errorf("expected 501 without artifact store, got %d", w.Code)
	}

	blobs := blob.NewLocalBlobStore(t.TempDir())
	blobs.Put(context.Background(), "runs/r1/flu-infected.csv", bytes.NewBufferString("step,time\n"))
	s.SetArtifacts(blobs)

	w := do(t, h, "GET", "/v1/runs/r1/artifacts/flu-infected.csv", "")
	if w.Code != http.StatusOK || w.Body.String() != "step,time\n" {
		t.Fatalf("unexpected artifact response %d %q", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("expected text/csv, got %q", ct)
	}
	if w := do(t, h, "GET", "/v1/runs/r1/artifacts/missing.csv", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
