package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rmax-ai/sirsim/pkg/aggregate"
	"github.com/rmax-ai/sirsim/pkg/api"
)

func TestMCPServer_ReadRuns(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/runs" {
			if r.URL.Query().Get("limit") != "20" {
				t.Errorf("expected limit=20, got %s", r.URL.RawQuery)
			}
			w.Write([]byte(`[{"id":"r1","status":"completed"}]`))
			return
		}
		http.NotFound(w, r)
	}))
	defer ts.Close()

	s := NewServer(ts.URL, "test")
	result, err := s.handleReadRuns(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "sirsim://runs"},
	})
	if err != nil {
		t.Fatalf("handleReadRuns failed: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("Expected 1 resource content, got %d", len(result))
	}
	content, ok := result[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("Expected TextResourceContents")
	}
	var runs []map[string]any
	if err := json.Unmarshal([]byte(content.Text), &runs); err != nil {
		t.Errorf("Failed to parse result JSON: %v", err)
	}
	if len(runs) != 1 || runs[0]["id"] != "r1" {
		t.Errorf("unexpected runs %v", runs)
	}
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}}
}

func TestMCPServer_RunEnsemble(t *testing.T) {
	var got api.SimulationRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/simulations" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		weekly := aggregate.WeeklyCaseSeries{{Window: 0, StartStep: 1, EndStep: 7, Value: 12}}
		json.NewEncoder(w).Encode(api.SimulationResponse{
			RunID: "r9",
			Summary: &aggregate.Summary{
				Normalization:    "raw",
				Weekly:           weekly,
				WeeklyNormalized: weekly,
				AgeNormalized:    aggregate.AgeDistribution{{Lo: 0, Hi: 40, Value: 12}},
			},
		})
	}))
	defer ts.Close()

	s := NewServer(ts.URL, "test")
	result, err := s.handleRunEnsemble(context.Background(), callRequest("run_sir_ensemble", map[string]any{
		"lambda":         0.4,
		"gamma":          0.2,
		"n_trajectories": float64(7),
	}))
	if err != nil {
		t.Fatalf("handleRunEnsemble failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("Expected success, got %+v", result.Content)
	}
	if got.Config == nil || got.Config.Lambda != 0.4 || got.Config.Gamma != 0.2 || got.Config.NTrajectories != 7 {
		t.Errorf("arguments not forwarded: %+v", got.Config)
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("Expected text content, got %T", result.Content[0])
	}
	var report ensembleReport
	if err := json.Unmarshal([]byte(text.Text), &report); err != nil {
		t.Fatalf("bad tool output: %v", err)
	}
	if report.RunID != "r9" || len(report.WeeklyCases) != 1 || report.WeeklyLabels[0] != "1-7" || report.AgeLabels[0] != "[0,40)" {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestMCPServer_RunEnsembleInvalid(t *testing.T) {
	s := NewServer("http://127.0.0.1:1", "test")
	result, err := s.handleRunEnsemble(context.Background(), callRequest("run_sir_ensemble", map[string]any{
		"lambda": -1.0,
		"gamma":  0.1,
	}))
	if err != nil {
		t.Fatalf("handleRunEnsemble failed: %v", err)
	}
	if !result.IsError {
		t.Error("Expected tool error for negative lambda")
	}
}

func TestMCPServer_GetRunMissingID(t *testing.T) {
	s := NewServer("http://127.0.0.1:1", "test")
	result, err := s.handleGetRun(context.Background(), callRequest("get_run", map[string]any{}))
	if err != nil {
		t.Fatalf("handleGetRun failed: %v", err)
	}
	if !result.IsError {
		t.Error("Expected tool error without run_id")
	}
}
