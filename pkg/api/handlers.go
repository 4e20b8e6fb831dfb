package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rmax-ai/sirsim/pkg/blob"
	"github.com/rmax-ai/sirsim/pkg/experiment"
	"github.com/rmax-ai/sirsim/pkg/simulation"
	"github.com/rmax-ai/sirsim/pkg/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// busyRetryAfter is the Retry-After hint, in seconds, sent with 409 busy.
const busyRetryAfter = "2"

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// handleSimulations runs one experiment synchronously.
func (s *Server) handleSimulations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}

	cfg := simulation.DefaultConfig()
	body := SimulationRequest{Config: &cfg}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json_body", err.Error())
		return
	}
	if body.Config == nil {
		body.Config = &cfg
	}

	res, err := s.experiments.Run(r.Context(), experiment.Request{
		Config:     *body.Config,
		Name:       body.Name,
		Observed:   body.Observed,
		Invariants: body.Invariants,
		NoCache:    body.NoCache,
	})
	if err != nil {
		switch {
		case errors.Is(err, simulation.ErrInvalidConfig):
			writeError(w, http.StatusBadRequest, "invalid_config", err.Error())
		case errors.Is(err, experiment.ErrBusy):
			w.Header().Set("Retry-After", busyRetryAfter)
			writeError(w, http.StatusConflict, "experiment_busy", err.Error())
		case errors.Is(err, simulation.ErrEnsembleIncomplete):
			writeError(w, http.StatusServiceUnavailable, "ensemble_incomplete", err.Error())
		default:
			s.logger.Error("simulation_failed", "trace_id", getTraceID(r.Context()), "error", err)
			writeError(w, http.StatusInternalServerError, "simulation_failed", "")
		}
		return
	}

	resp := SimulationResponse{
		RunID:       res.RunID,
		Fingerprint: res.Fingerprint,
		Cached:      res.Cached,
		Summary:     res.Summary,
		Invariants:  res.Invariants,
		Artifacts:   res.Artifacts,
		ElapsedMS:   res.Elapsed.Milliseconds(),
		Warnings:    body.Config.Warnings(),
	}
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		s.logger.Error("failed_to_encode_simulation_result", "trace_id", getTraceID(r.Context()), "error", err)
	}
}

// handleRuns lists stored runs: ?status=completed|failed&limit=N&since=RFC3339
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	q := r.URL.Query()
	filter := store.RunFilter{Status: store.RunStatus(q.Get("status")), Limit: 50}
	switch filter.Status {
	case "", store.RunStatusCompleted, store.RunStatusFailed:
	default:
		writeError(w, http.StatusBadRequest, "invalid_status", string(filter.Status))
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "must be 1-500")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since", "format: RFC3339")
			return
		}
		filter.Since = t
	}

	runs, err := s.experiments.List(r.Context(), filter)
	if err != nil {
		s.runStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.experiments.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.runStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) runStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "run_not_found", "")
	case errors.Is(err, experiment.ErrNoRunStore):
		writeError(w, http.StatusNotImplemented, "run_store_disabled", "")
	default:
		s.logger.Error("run_store_failed", "trace_id", getTraceID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal_server_error", "")
	}
}

// handleArtifact streams one stored report or chart of a run.
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	if s.artifacts == nil {
		writeError(w, http.StatusNotImplemented, "artifacts_disabled", "")
		return
	}
	prefix := blob.RunPrefix(r.PathValue("id"))
	key := path.Join(prefix, r.PathValue("key"))
	if !strings.HasPrefix(key, prefix+"/") {
		writeError(w, http.StatusBadRequest, "invalid_artifact", "key escapes run")
		return
	}
	reader, err := s.artifacts.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			writeError(w, http.StatusNotFound, "artifact_not_found", "")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_artifact", err.Error())
		return
	}
	defer reader.Close()

	switch path.Ext(key) {
	case ".png":
		w.Header().Set("Content-Type", "image/png")
	case ".csv":
		w.Header().Set("Content-Type", "text/csv")
	default:
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("failed_to_stream_artifact", "trace_id", getTraceID(r.Context()), "error", err)
	}
}
