package calibrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/rmax-ai/sirsim/pkg/aggregate"
	"github.com/rmax-ai/sirsim/pkg/simulation"
)

// ErrNoFiniteLikelihood is returned when every grid point scores -Inf, so
// no point can be reported as the maximum.
var ErrNoFiniteLikelihood = errors.New("no grid point has a finite likelihood")

// Point is one evaluated (lambda, gamma) pair.
type Point struct {
	Lambda        float64   `json:"lambda"`
	Gamma         float64   `json:"gamma"`
	LogLikelihood float64   `json:"log_likelihood"`
	Weekly        []float64 `json:"weekly,omitempty"`
}

// Result is the full likelihood surface and its maximum.
type Result struct {
	Best       Point      `json:"best"`
	Surface    []Point    `json:"surface"`
	Likelihood Likelihood `json:"likelihood"`
	Observed   []float64  `json:"observed"`
}

// Grid evaluates every combination of Lambdas and Gammas.
type Grid struct {
	Base       simulation.Config
	Lambdas    []float64
	Gammas     []float64
	Likelihood Likelihood
	Sigma      float64
	Observed   []float64
	Logger     *slog.Logger
	// Progress, when set, is called after each evaluated point.
	Progress func(done, total int)
}

// Run evaluates the grid in lambda-major order. Each point runs a full
// ensemble of Base with the point's rates; the likelihood compares the
// ensemble-mean weekly cases with Observed.
func (g *Grid) Run(ctx context.Context) (*Result, error) {
	if len(g.Lambdas) == 0 || len(g.Gammas) == 0 {
		return nil, fmt.Errorf("calibration grid is empty")
	}
	if len(g.Observed) == 0 {
		return nil, fmt.Errorf("no observed data to calibrate against")
	}
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}

	res := &Result{
		Best:       Point{LogLikelihood: math.Inf(-1)},
		Likelihood: g.Likelihood,
		Observed:   append([]float64(nil), g.Observed...),
	}
	total := len(g.Lambdas) * len(g.Gammas)
	for _, lambda := range g.Lambdas {
		for _, gamma := range g.Gammas {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("calibration stopped after %d of %d points: %w", len(res.Surface), total, err)
			}
			pt, err := g.evaluate(ctx, lambda, gamma, logger)
			if err != nil {
				return nil, err
			}
			res.Surface = append(res.Surface, pt)
			if pt.LogLikelihood > res.Best.LogLikelihood {
				res.Best = pt
			}
			logger.Debug("calibration_point", "lambda", lambda, "gamma", gamma, "log_likelihood", pt.LogLikelihood)
			if g.Progress != nil {
				g.Progress(len(res.Surface), total)
			}
		}
	}
	if math.IsInf(res.Best.LogLikelihood, -1) {
		return nil, fmt.Errorf("%d points evaluated: %w", total, ErrNoFiniteLikelihood)
	}
	logger.Info("calibration_completed",
		"points", total,
		"best_lambda", res.Best.Lambda,
		"best_gamma", res.Best.Gamma,
		"log_likelihood", res.Best.LogLikelihood,
	)
	return res, nil
}

func (g *Grid) evaluate(ctx context.Context, lambda, gamma float64, logger *slog.Logger) (Point, error) {
	cfg := g.Base
	cfg.Lambda, cfg.Gamma = lambda, gamma

	runner, err := simulation.NewEnsembleRunner(cfg, simulation.WithLogger(logger))
	if err != nil {
		return Point{}, fmt.Errorf("lambda=%v gamma=%v: %w", lambda, gamma, err)
	}
	ens, err := runner.Run(ctx)
	if err != nil {
		return Point{}, fmt.Errorf("lambda=%v gamma=%v: %w", lambda, gamma, err)
	}
	weekly, err := aggregate.WeeklyCasesMean(ens)
	if err != nil {
		return Point{}, err
	}
	values := weekly.Values()
	ll, err := LogLikelihood(g.Likelihood, values, g.Observed, cfg.NPeople, g.Sigma)
	if err != nil {
		return Point{}, fmt.Errorf("lambda=%v gamma=%v: %w", lambda, gamma, err)
	}
	return Point{Lambda: lambda, Gamma: gamma, LogLikelihood: ll, Weekly: values}, nil
}
