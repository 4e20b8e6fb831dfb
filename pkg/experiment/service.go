// Package experiment runs a configured ensemble end to end: cache lookup,
// simulation, aggregation, report and chart artifacts, and the run record.
package experiment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/rmax-ai/sirsim/pkg/aggregate"
	"github.com/rmax-ai/sirsim/pkg/blob"
	"github.com/rmax-ai/sirsim/pkg/plot"
	"github.com/rmax-ai/sirsim/pkg/reports"
	"github.com/rmax-ai/sirsim/pkg/simulation"
	"github.com/rmax-ai/sirsim/pkg/store"
	"github.com/rmax-ai/sirsim/pkg/store/redis"
)

var (
	// ErrBusy is returned when another holder is running the same config.
	ErrBusy = errors.New("identical experiment already running")
	// ErrNoRunStore is returned by Get and List when no run store is configured.
	ErrNoRunStore = errors.New("run store not configured")
)

// SummaryCache is satisfied by redis.SummaryCache.
type SummaryCache interface {
	Get(ctx context.Context, fingerprint string) (redis.Entry, bool, error)
	Set(ctx context.Context, fingerprint string, entry redis.Entry) error
}

// Request is one experiment submission.
type Request struct {
	Config     simulation.Config      `json:"config"`
	Name       string                 `json:"name,omitempty"`
	Observed   []float64              `json:"observed,omitempty"`
	Invariants []simulation.Invariant `json:"invariants,omitempty"`
	// NoCache forces a fresh ensemble even when a cached summary exists.
	NoCache bool `json:"no_cache,omitempty"`
}

// Result is what a finished experiment returns.
type Result struct {
	RunID       string                       `json:"run_id"`
	Fingerprint string                       `json:"fingerprint"`
	Cached      bool                         `json:"cached"`
	Summary     *aggregate.Summary           `json:"summary"`
	Invariants  []simulation.InvariantResult `json:"invariants,omitempty"`
	Artifacts   []string                     `json:"artifacts,omitempty"`
	Elapsed     time.Duration                `json:"elapsed"`
	// Ensemble is nil for cached results.
	Ensemble *simulation.EnsembleResult `json:"-"`
}

type Service struct {
	runs     store.RunStore
	leases   store.LeaseStore
	cache    SummaryCache
	blobs    blob.BlobStore
	plots    bool
	leaseTTL time.Duration
	holderID string
	logger   *slog.Logger
	newID    func() string
}

type Option func(*Service)

func WithRunStore(runs store.RunStore) Option { return func(s *Service) { s.runs = runs } }

func WithLeases(leases store.LeaseStore, ttl time.Duration) Option {
	return func(s *Service) {
		s.leases = leases
		if ttl > 0 {
			s.leaseTTL = ttl
		}
	}
}

func WithCache(cache SummaryCache) Option { return func(s *Service) { s.cache = cache } }

// WithArtifacts writes report CSVs, and charts when plots is set, under
// blob.RunPrefix(runID).
func WithArtifacts(blobs blob.BlobStore, plots bool) Option {
	return func(s *Service) {
		s.blobs = blobs
		s.plots = plots
	}
}

func WithLogger(logger *slog.Logger) Option { return func(s *Service) { s.logger = logger } }

func WithHolderID(id string) Option { return func(s *Service) { s.holderID = id } }

func New(opts ...Option) *Service {
	s := &Service{
		leaseTTL: 10 * time.Minute,
		logger:   slog.Default(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.holderID == "" {
		s.holderID = uuid.NewString()
	}
	return s
}

// Fingerprint identifies the outputs of a config. Fields that do not change
// results (run type, workers, wall-time cap) are excluded.
func Fingerprint(cfg simulation.Config) (string, error) {
	cfg.RunType = simulation.RunSerial
	cfg.Workers = 0
	cfg.MaxWallTime = 0
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16]), nil
}

// Run executes the request. Extra ensemble options (progress, budget) are
// passed to the runner.
func (s *Service) Run(ctx context.Context, req Request, opts ...simulation.Option) (*Result, error) {
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fp, err := Fingerprint(cfg)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("fingerprint", fp)

	if s.cache != nil && !req.NoCache {
		entry, ok, err := s.cache.Get(ctx, fp)
		if err != nil {
			logger.Warn("cache_get_failed", "error", err)
		} else if ok {
			logger.Info("cache_hit", "run_id", entry.RunID)
			return &Result{RunID: entry.RunID, Fingerprint: fp, Cached: true, Summary: entry.Summary}, nil
		}
	}

	if s.leases != nil {
		name := "experiment:" + fp
		ok, err := s.leases.Acquire(ctx, name, s.holderID, s.leaseTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire experiment lease: %w", err)
		}
		if !ok {
			return nil, ErrBusy
		}
		defer func() {
			if err := s.leases.Release(context.WithoutCancel(ctx), name, s.holderID); err != nil {
				logger.Warn("lease_release_failed", "error", err)
			}
		}()
	}

	runID := s.newID()
	logger = logger.With("run_id", runID)
	started := time.Now()

	runner, err := simulation.NewEnsembleRunner(cfg, append([]simulation.Option{simulation.WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, err
	}
	ens, err := runner.Run(ctx)
	if err != nil {
		s.saveFailed(ctx, logger, runID, fp, cfg, started, err)
		return nil, err
	}

	summary, err := aggregate.Summarize(ens)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize ensemble: %w", err)
	}
	res := &Result{
		RunID:       runID,
		Fingerprint: fp,
		Summary:     summary,
		Invariants:  ens.Evaluate(req.Invariants),
		Ensemble:    ens,
	}

	if s.blobs != nil {
		if res.Artifacts, err = s.writeArtifacts(ctx, runID, req, ens, summary); err != nil {
			return nil, err
		}
	}
	res.Elapsed = time.Since(started)

	if s.runs != nil {
		attack, _ := ens.Metric("attack_rate")
		run := newRun(runID, fp, cfg, started)
		run.Status = store.RunStatusCompleted
		run.ElapsedMS = res.Elapsed.Milliseconds()
		run.AttackRate = attack
		run.Artifacts = res.Artifacts
		run.Summary = summary
		if err := s.runs.SaveRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to save run: %w", err)
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, fp, redis.Entry{RunID: runID, Summary: summary}); err != nil {
			logger.Warn("cache_set_failed", "error", err)
		}
	}

	logger.Info("experiment_completed",
		"trajectories", len(ens.Logs),
		"artifacts", len(res.Artifacts),
		"elapsed_ms", res.Elapsed.Milliseconds(),
	)
	return res, nil
}

func (s *Service) writeArtifacts(ctx context.Context, runID string, req Request, ens *simulation.EnsembleResult, summary *aggregate.Summary) ([]string, error) {
	name := req.Name
	if name == "" {
		name = "sirsim"
	}
	prefix := blob.RunPrefix(runID)
	sink := blob.Prefixed{Store: s.blobs, Prefix: prefix}

	keys, err := reports.WriteAll(ctx, sink, name, reports.ReportParams{Result: ens, Summary: summary, Observed: req.Observed})
	if err != nil {
		return nil, err
	}
	if s.plots {
		charts, err := plot.WriteAll(ctx, sink, name, ens, summary, req.Observed)
		if err != nil {
			return nil, err
		}
		keys = append(keys, charts...)
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = path.Join(prefix, k)
	}
	return out, nil
}

func newRun(id, fp string, cfg simulation.Config, started time.Time) *store.Run {
	data, _ := json.Marshal(cfg)
	return &store.Run{
		ID:            id,
		CreatedAt:     started.UTC(),
		Fingerprint:   fp,
		Config:        data,
		RunType:       cfg.RunType.String(),
		NTrajectories: cfg.NTrajectories,
		Seed:          cfg.Seed,
	}
}

func (s *Service) saveFailed(ctx context.Context, logger *slog.Logger, id, fp string, cfg simulation.Config, started time.Time, cause error) {
	if s.runs == nil {
		return
	}
	run := newRun(id, fp, cfg, started)
	run.Status = store.RunStatusFailed
	run.ElapsedMS = time.Since(started).Milliseconds()
	run.Error = cause.Error()
	if err := s.runs.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("failed_run_not_saved", "error", err)
	}
}

// Get loads a stored run with its summary.
func (s *Service) Get(ctx context.Context, id string) (*store.Run, error) {
	if s.runs == nil {
		return nil, ErrNoRunStore
	}
	return s.runs.GetRun(ctx, id)
}

// List returns stored runs, newest first.
func (s *Service) List(ctx context.Context, filter store.RunFilter) ([]store.Run, error) {
	if s.runs == nil {
		return nil, ErrNoRunStore
	}
	return s.runs.ListRuns(ctx, filter)
}
