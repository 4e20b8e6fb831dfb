package api

import (
	"github.com/rmax-ai/sirsim/pkg/aggregate"
	"github.com/rmax-ai/sirsim/pkg/simulation"
)

// SimulationRequest matches the POST /v1/simulations body schema. Config
// fields left out take their defaults.
type SimulationRequest struct {
	Config     *simulation.Config     `json:"config,omitempty"`
	Name       string                 `json:"name,omitempty"`
	Observed   []float64              `json:"observed,omitempty"`
	Invariants []simulation.Invariant `json:"invariants,omitempty"`
	NoCache    bool                   `json:"no_cache,omitempty"`
}

// SimulationResponse matches the response for POST /v1/simulations.
type SimulationResponse struct {
	RunID       string                       `json:"run_id"`
	Fingerprint string                       `json:"fingerprint"`
	Cached      bool                         `json:"cached"`
	Summary     *aggregate.Summary           `json:"summary"`
	Invariants  []simulation.InvariantResult `json:"invariants,omitempty"`
	Artifacts   []string                     `json:"artifacts,omitempty"`
	ElapsedMS   int64                        `json:"elapsed_ms"`
	Warnings    []string                     `json:"warnings,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
