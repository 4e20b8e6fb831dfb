// Package mcp exposes sirsim to Model Context Protocol clients over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rmax-ai/sirsim/pkg/api"
	"github.com/rmax-ai/sirsim/pkg/client"
	"github.com/rmax-ai/sirsim/pkg/simulation"
)

// Server adapts the sirsim API to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	apiClient *client.Client
}

// NewServer creates a new MCP server instance talking to apiURL.
func NewServer(apiURL, version string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer("sirsim", version),
		apiClient: client.NewClient(apiURL),
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(
		"sirsim://runs",
		"Recent SIR runs",
		mcp.WithResourceDescription("The 20 most recent stored simulation runs"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadRuns)
}

func (s *Server) registerTools() {
	def := simulation.DefaultConfig()
	s.mcpServer.AddTool(mcp.NewTool(
		"run_sir_ensemble",
		mcp.WithDescription("Run a stochastic age-stratified SIR ensemble and return weekly cases and cases by age."),
		mcp.WithNumber("lambda", mcp.Required(), mcp.Description("Transmission rate per unit time")),
		mcp.WithNumber("gamma", mcp.Required(), mcp.Description("Recovery rate per unit time")),
		mcp.WithNumber("n_people", mcp.Description(fmt.Sprintf("Population size (default %d)", def.NPeople))),
		mcp.WithNumber("n_trajectories", mcp.Description(fmt.Sprintf("Ensemble size (default %d)", def.NTrajectories))),
		mcp.WithNumber("t_max", mcp.Description(fmt.Sprintf("Time horizon (default %g)", def.TMax))),
		mcp.WithNumber("dt", mcp.Description(fmt.Sprintf("Step length (default %g)", def.Dt))),
		mcp.WithNumber("p_length", mcp.Description(fmt.Sprintf("Steps per reporting window (default %d)", def.PLength))),
		mcp.WithNumber("age_break", mcp.Description(fmt.Sprintf("Age bin width (default %g)", def.AgeBreak))),
		mcp.WithNumber("seed", mcp.Description(fmt.Sprintf("Master seed (default %d)", def.Seed))),
		mcp.WithString("normalization", mcp.Description("raw, per_capita or proportion (default raw)")),
	), s.handleRunEnsemble)

	s.mcpServer.AddTool(mcp.NewTool(
		"get_run",
		mcp.WithDescription("Fetch a stored run and its summary by id."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run id returned by run_sir_ensemble")),
	), s.handleGetRun)
}

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		"sirsim-aware",
		mcp.WithPromptDescription("Explains the SIR model parameters and outputs"),
	), s.handleGetPrompt)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleReadRuns(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	runs, err := s.apiClient.ListRuns(ctx, "", 20)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch runs: %w", err)
	}
	return jsonContents(request.Params.URI, runs)
}

// ensembleRequest builds a request from tool arguments over the defaults.
func ensembleRequest(request mcp.CallToolRequest) api.SimulationRequest {
	cfg := simulation.DefaultConfig()
	cfg.Lambda = mcp.ParseFloat64(request, "lambda", cfg.Lambda)
	cfg.Gamma = mcp.ParseFloat64(request, "gamma", cfg.Gamma)
	cfg.NPeople = int(mcp.ParseFloat64(request, "n_people", float64(cfg.NPeople)))
	cfg.NTrajectories = int(mcp.ParseFloat64(request, "n_trajectories", float64(cfg.NTrajectories)))
	cfg.TMax = mcp.ParseFloat64(request, "t_max", cfg.TMax)
	cfg.Dt = mcp.ParseFloat64(request, "dt", cfg.Dt)
	cfg.PLength = int(mcp.ParseFloat64(request, "p_length", float64(cfg.PLength)))
	cfg.AgeBreak = mcp.ParseFloat64(request, "age_break", cfg.AgeBreak)
	cfg.Seed = int64(mcp.ParseFloat64(request, "seed", float64(cfg.Seed)))
	cfg.Normalization = simulation.Normalization(mcp.ParseString(request, "normalization", string(cfg.Normalization)))
	return api.SimulationRequest{Config: &cfg, Name: "mcp"}
}

// ensembleReport is the trimmed view returned to the model.
type ensembleReport struct {
	RunID           string    `json:"run_id"`
	Cached          bool      `json:"cached"`
	Normalization   string    `json:"normalization"`
	WeeklyCases     []float64 `json:"weekly_cases"`
	WeeklyLabels    []string  `json:"weekly_labels"`
	AgeDistribution []float64 `json:"age_distribution"`
	AgeLabels       []string  `json:"age_labels"`
	Warnings        []string  `json:"warnings,omitempty"`
}

func (s *Server) handleRunEnsemble(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := ensembleRequest(request)
	if err := req.Config.Validate(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	resp, err := s.apiClient.Submit(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	if resp.Summary == nil {
		return mcp.NewToolResultError("API returned no summary"), nil
	}

	out := ensembleReport{
		RunID:         resp.RunID,
		Cached:        resp.Cached,
		Normalization: string(resp.Summary.Normalization),
		WeeklyCases:   resp.Summary.WeeklyNormalized.Values(),
		Warnings:      resp.Warnings,
	}
	for _, row := range resp.Summary.WeeklyNormalized.Rows() {
		out.WeeklyLabels = append(out.WeeklyLabels, row.Label)
	}
	for _, b := range resp.Summary.AgeNormalized {
		out.AgeDistribution = append(out.AgeDistribution, b.Value)
		out.AgeLabels = append(out.AgeLabels, fmt.Sprintf("[%g,%g)", b.Lo, b.Hi))
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleGetRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "run_id", "")
	if id == "" {
		return mcp.NewToolResultError("run_id is required"), nil
	}
	run, err := s.apiClient.GetRun(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode run: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	if name := request.Params.Name; name != "sirsim-aware" {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You can run a stochastic SIR (susceptible, infected, recovered) epidemic model.

Parameters:
- lambda: transmission rate. Each step a susceptible person is infected with probability 1 - exp(-lambda*dt*I/N).
- gamma: recovery rate. Each step an infected person recovers with probability 1 - exp(-gamma*dt).
- The population is split into age bins of width age_break; bins share one mixing pool.
- n_trajectories independent realizations are run and averaged.

Outputs:
- weekly_cases: new infections per window of p_length steps (ensemble mean).
- age_distribution: cumulative new infections per age bin (ensemble mean).

Use run_sir_ensemble to simulate, and get_run to revisit a stored run.
`

	return mcp.NewGetPromptResult(
		"sirsim-aware",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}
