package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/rmax-ai/sirsim/pkg/simulation/sampler"
)

// Moments is the mean and population variance of one value across trajectories.
type Moments struct {
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
}

// StepSummary holds per-bin moments of every compartment at one step.
type StepSummary struct {
	Step          int       `json:"step"`
	Time          float64   `json:"time"`
	S             []Moments `json:"s"`
	I             []Moments `json:"i"`
	R             []Moments `json:"r"`
	NewInfections []Moments `json:"new_infections"`
	NewRecoveries []Moments `json:"new_recoveries"`
}

// Values returns the per-bin moments for a compartment.
func (s StepSummary) Values(c Compartment) []Moments {
	switch c {
	case Susceptible:
		return s.S
	case Infected:
		return s.I
	case Recovered:
		return s.R
	case Infections:
		return s.NewInfections
	case Recoveries:
		return s.NewRecoveries
	}
	return nil
}

// EnsembleResult is every trajectory log, indexed by trajectory id, plus
// their moments per step.
type EnsembleResult struct {
	Config    Config           `json:"config"`
	Bins      []AgeBin         `json:"bins"`
	BinTotals []int            `json:"bin_totals"`
	Logs      []*TrajectoryLog `json:"logs"`
	Summary   []StepSummary    `json:"summary"`
	Elapsed   time.Duration    `json:"elapsed"`
}

// MeanSeries is the ensemble mean of a compartment's population total per step.
func (r *EnsembleResult) MeanSeries(c Compartment) []float64 {
	out := make([]float64, len(r.Summary))
	for i, s := range r.Summary {
		for _, m := range s.Values(c) {
			out[i] += m.Mean
		}
	}
	return out
}

// Option configures an EnsembleRunner.
type Option func(*EnsembleRunner)

// WithWorkers overrides the worker pool size for parallel runs.
func WithWorkers(n int) Option {
	return func(r *EnsembleRunner) { r.workers = n }
}

// WithTrajectoryBudget caps how many trajectories may be started. A budget
// below the configured count makes the run incomplete.
func WithTrajectoryBudget(n int) Option {
	return func(r *EnsembleRunner) { r.budget = n }
}

// WithProgress registers a callback invoked after each finished trajectory.
// It runs on the goroutine that called Run.
func WithProgress(fn func(done, total int)) Option {
	return func(r *EnsembleRunner) { r.progress = fn }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *EnsembleRunner) { r.logger = logger }
}

// EnsembleRunner runs NTrajectories independent trajectories of one model.
type EnsembleRunner struct {
	model    *Model
	workers  int
	budget   int
	progress func(done, total int)
	logger   *slog.Logger
}

func NewEnsembleRunner(cfg Config, opts ...Option) (*EnsembleRunner, error) {
	model, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}
	r := &EnsembleRunner{
		model:   model,
		workers: cfg.Workers,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers <= 0 {
		r.workers = runtime.NumCPU()
	}
	return r, nil
}

func (r *EnsembleRunner) Model() *Model { return r.model }

type trajectoryResult struct {
	id  int
	log *TrajectoryLog
	err error
}

// Run executes the ensemble. Cancellation or an exhausted budget stops
// dispatch; trajectories already started still finish, and the run then
// fails with ErrEnsembleIncomplete. Any diverged trajectory fails the run.
func (r *EnsembleRunner) Run(ctx context.Context) (*EnsembleResult, error) {
	cfg := r.model.cfg
	if cfg.MaxWallTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.MaxWallTime)
		defer cancel()
	}

	for _, w := range cfg.Warnings() {
		r.logger.Warn("config_warning", "detail", w)
	}

	total := cfg.NTrajectories
	limit := total
	if r.budget > 0 && r.budget < limit {
		limit = r.budget
	}

	SirsimEnsembleInFlight.Inc()
	defer SirsimEnsembleInFlight.Dec()
	start := time.Now()

	var (
		logs []*TrajectoryLog
		done int
		err  error
	)
	if cfg.RunType == RunParallel && r.workers > 1 {
		logs, done, err = r.runParallel(ctx, limit)
	} else {
		logs, done, err = r.runSerial(ctx, limit)
	}

	if err == nil && done < total {
		err = fmt.Errorf("%w: %d of %d trajectories completed", ErrEnsembleIncomplete, done, total)
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", err, ctxErr)
		}
	}
	if err != nil {
		status := "failed"
		if errors.Is(err, ErrEnsembleIncomplete) {
			status = "incomplete"
		}
		SirsimEnsembleTotal.WithLabelValues(cfg.RunType.String(), status).Inc()
		r.logger.Error("ensemble_failed", "run_type", cfg.RunType.String(), "completed", done, "total", total, "error", err)
		return nil, err
	}

	res := &EnsembleResult{
		Config:    cfg,
		Bins:      r.model.Bins(),
		BinTotals: r.model.BinTotals(),
		Logs:      logs,
		Summary:   Summarize(logs),
		Elapsed:   time.Since(start),
	}
	SirsimEnsembleTotal.WithLabelValues(cfg.RunType.String(), "ok").Inc()
	r.logger.Info("ensemble_completed",
		"run_type", cfg.RunType.String(),
		"trajectories", total,
		"steps", cfg.Steps(),
		"elapsed", res.Elapsed.String(),
	)
	return res, nil
}

func (r *EnsembleRunner) runOne(id int) (*TrajectoryLog, error) {
	start := time.Now()
	stream := sampler.NewStream(r.model.cfg.Seed, id)
	log, err := NewTrajectoryRunner(r.model, id, stream).Run()
	SirsimTrajectorySeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		SirsimTrajectoriesTotal.WithLabelValues("diverged").Inc()
		return nil, err
	}
	outcome := "ongoing"
	if log.ExtinctAt >= 0 {
		outcome = "extinct"
	}
	SirsimTrajectoriesTotal.WithLabelValues(outcome).Inc()
	r.logger.Debug("trajectory_completed", "trajectory_id", id, "extinct_at", log.ExtinctAt, "infections", log.TotalInfections())
	return log, nil
}

func (r *EnsembleRunner) runSerial(ctx context.Context, limit int) ([]*TrajectoryLog, int, error) {
	total := r.model.cfg.NTrajectories
	logs := make([]*TrajectoryLog, total)
	done := 0
	for id := 0; id < limit; id++ {
		if ctx.Err() != nil {
			break
		}
		log, err := r.runOne(id)
		if err != nil {
			return nil, done, err
		}
		logs[id] = log
		done++
		if r.progress != nil {
			r.progress(done, total)
		}
	}
	return logs, done, nil
}

func (r *EnsembleRunner) runParallel(ctx context.Context, limit int) ([]*TrajectoryLog, int, error) {
	total := r.model.cfg.NTrajectories
	logs := make([]*TrajectoryLog, total)

	// stop is closed on the first failure so no new trajectories start
	stop := make(chan struct{})
	var stopOnce sync.Once
	halt := func() { stopOnce.Do(func() { close(stop) }) }
	defer halt()

	jobs := make(chan int)
	results := make(chan trajectoryResult, r.workers)

	go func() {
		defer close(jobs)
		for id := 0; id < limit; id++ {
			// prefer stopping over dispatching when both are ready
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			default:
			}
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case jobs <- id:
			}
		}
	}()

	var wg sync.WaitGroup
	workers := r.workers
	if workers > limit {
		workers = limit
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				log, err := r.runOne(id)
				results <- trajectoryResult{id: id, log: log, err: err}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	done := 0
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
				halt()
			}
			continue
		}
		logs[res.id] = res.log
		done++
		if r.progress != nil {
			r.progress(done, total)
		}
	}
	if firstErr != nil {
		return nil, done, firstErr
	}
	return logs, done, nil
}

// Summarize computes per-step, per-bin moments across logs. Every log must
// have the same number of steps and bins.
func Summarize(logs []*TrajectoryLog) []StepSummary {
	if len(logs) == 0 {
		return nil
	}
	steps := len(logs[0].Records)
	n := float64(len(logs))
	out := make([]StepSummary, steps)
	for step := 0; step < steps; step++ {
		ref := logs[0].Records[step]
		sum := StepSummary{Step: ref.Step, Time: ref.Time}
		for _, c := range Compartments {
			bins := len(ref.Values(c))
			moments := make([]Moments, bins)
			for b := 0; b < bins; b++ {
				var mean float64
				for _, l := range logs {
					mean += float64(l.Records[step].Values(c)[b])
				}
				mean /= n
				var ss float64
				for _, l := range logs {
					d := float64(l.Records[step].Values(c)[b]) - mean
					ss += d * d
				}
				moments[b] = Moments{Mean: mean, Variance: ss / n}
			}
			switch c {
			case Susceptible:
				sum.S = moments
			case Infected:
				sum.I = moments
			case Recovered:
				sum.R = moments
			case Infections:
				sum.NewInfections = moments
			case Recoveries:
				sum.NewRecoveries = moments
			}
		}
		out[step] = sum
	}
	return out
}
