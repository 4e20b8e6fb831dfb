package calibrate

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rmax-ai/sirsim/pkg/aggregate"
	"github.com/rmax-ai/sirsim/pkg/logging"
	"github.com/rmax-ai/sirsim/pkg/simulation"
)

func TestLogLikelihoodKnownValues(t *testing.T) {
	tests := []struct {
		name     string
		kind     Likelihood
		model    []float64
		observed []float64
		want     float64
	}{
		{"poisson at mean", LikelihoodPoisson, []float64{2}, []float64{2}, math.Ln2 - 2},
		{"normal exact", LikelihoodNormal, []float64{5}, []float64{5}, -0.5 * math.Log(2*math.Pi)},
		{"normal one sigma", LikelihoodNormal, []float64{5}, []float64{6}, -0.5*math.Log(2*math.Pi) - 0.5},
		{"binomial certain zero", LikelihoodBinomial, []float64{0}, []float64{0}, 0},
		{"extra observed ignored", LikelihoodPoisson, []float64{2}, []float64{2, 100}, math.Ln2 - 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LogLikelihood(tt.kind, tt.model, tt.observed, 10, 1)
			if err != nil {
				t.Fatalf("LogLikelihood failed: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestLogLikelihoodPrefersMatchingModel(t *testing.T) {
	observed := []float64{3, 10, 25, 12}
	for _, kind := range []Likelihood{LikelihoodBinomial, LikelihoodPoisson, LikelihoodNormal} {
		exact, err := LogLikelihood(kind, observed, observed, 1000, 2)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		off, err := LogLikelihood(kind, []float64{1, 5, 40, 30}, observed, 1000, 2)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if exact <= off {
			t.Errorf("%s: Expected matching model to score higher (%v vs %v)", kind, exact, off)
		}
	}
}

func TestLogLikelihoodErrors(t *testing.T) {
	tests := []struct {
		name     string
		kind     Likelihood
		observed []float64
		nPeople  int
		sigma    float64
	}{
		{"no overlap", LikelihoodPoisson, nil, 10, 1},
		{"negative observation", LikelihoodPoisson, []float64{-1}, 10, 1},
		{"binomial without population", LikelihoodBinomial, []float64{1}, 0, 1},
		{"normal without sigma", LikelihoodNormal, []float64{1}, 10, 0},
		{"unknown kind", "cauchy", []float64{1}, 10, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LogLikelihood(tt.kind, []float64{1}, tt.observed, tt.nPeople, tt.sigma); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestLogLikelihoodBinomialOverPopulation(t *testing.T) {
	got, err := LogLikelihood(LikelihoodBinomial, []float64{5}, []float64{20}, 10, 1)
	if err != nil {
		t.Fatalf("LogLikelihood failed: %v", err)
	}
	if !math.IsInf(got, -1) {
		t.Errorf("Expected -Inf for more cases than people, got %v", got)
	}
}

func baseConfig() simulation.Config {
	cfg := simulation.DefaultConfig()
	cfg.NTrajectories = 10
	cfg.TMax = 70
	return cfg
}

func TestGridRecoversGeneratingRates(t *testing.T) {
	truth := baseConfig()
	runner, err := simulation.NewEnsembleRunner(truth, simulation.WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("NewEnsembleRunner failed: %v", err)
	}
	ens, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	weekly, err := aggregate.WeeklyCasesMean(ens)
	if err != nil {
		t.Fatalf("WeeklyCasesMean failed: %v", err)
	}

	var calls int
	g := &Grid{
		Base:       baseConfig(),
		Lambdas:    []float64{0.15, 0.3, 0.6},
		Gammas:     []float64{0.1},
		Likelihood: LikelihoodPoisson,
		Observed:   weekly.Values(),
		Logger:     logging.Discard(),
		Progress:   func(done, total int) { calls++ },
	}
	res, err := g.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Best.Lambda != 0.3 || res.Best.Gamma != 0.1 {
		t.Errorf("Expected best point (0.3, 0.1), got (%v, %v)", res.Best.Lambda, res.Best.Gamma)
	}
	if len(res.Surface) != 3 || calls != 3 {
		t.Errorf("Expected 3 evaluated points, got %d (progress %d)", len(res.Surface), calls)
	}
}

func TestGridCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := &Grid{
		Base:     baseConfig(),
		Lambdas:  []float64{0.3},
		Gammas:   []float64{0.1},
		Observed: []float64{1, 2, 3},
		Logger:   logging.Discard(),
	}
	if _, err := g.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestGridRejectsEmptyInputs(t *testing.T) {
	if _, err := (&Grid{Base: baseConfig(), Observed: []float64{1}}).Run(context.Background()); err == nil {
		t.Error("Expected error for an empty grid")
	}
	g := &Grid{Base: baseConfig(), Lambdas: []float64{0.3}, Gammas: []float64{0.1}}
	if _, err := g.Run(context.Background()); err == nil {
		t.Error("Expected error without observed data")
	}
}

func TestGridAllPointsImpossible(t *testing.T) {
	cfg := baseConfig()
	g := &Grid{
		Base:       cfg,
		Lambdas:    []float64{0.15, 0.3},
		Gammas:     []float64{0.1},
		Likelihood: LikelihoodBinomial,
		// More weekly cases than people scores -Inf under the binomial.
		Observed: []float64{float64(cfg.NPeople + 1)},
		Logger:   logging.Discard(),
	}
	res, err := g.Run(context.Background())
	if !errors.Is(err, ErrNoFiniteLikelihood) {
		t.Fatalf("Expected ErrNoFiniteLikelihood, got %v", err)
	}
	if res != nil {
		t.Errorf("Expected no result, got best %+v", res.Best)
	}
}
