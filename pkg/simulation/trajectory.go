package simulation

import (
	"errors"
	"fmt"

	"github.com/rmax-ai/sirsim/pkg/simulation/sampler"
)

// Compartment names one recorded series.
type Compartment int

const (
	Susceptible Compartment = iota
	Infected
	Recovered
	Infections
	Recoveries
)

// Compartments lists every recorded series in output order.
var Compartments = []Compartment{Susceptible, Infected, Recovered, Infections, Recoveries}

func (c Compartment) String() string {
	switch c {
	case Susceptible:
		return "susceptible"
	case Infected:
		return "infected"
	case Recovered:
		return "recovered"
	case Infections:
		return "infections"
	case Recoveries:
		return "recoveries"
	}
	return fmt.Sprintf("Compartment(%d)", int(c))
}

// Prevalence reports whether the series is a stock (S, I, R) rather than a per-step flow.
func (c Compartment) Prevalence() bool {
	return c == Susceptible || c == Infected || c == Recovered
}

// StepRecord is the per-bin state after one step plus that step's deltas.
type StepRecord struct {
	Step          int     `json:"step"`
	Time          float64 `json:"time"`
	S             []int   `json:"s"`
	I             []int   `json:"i"`
	R             []int   `json:"r"`
	NewInfections []int   `json:"new_infections"`
	NewRecoveries []int   `json:"new_recoveries"`
}

// Values returns the per-bin slice for a compartment.
func (r StepRecord) Values(c Compartment) []int {
	switch c {
	case Susceptible:
		return r.S
	case Infected:
		return r.I
	case Recovered:
		return r.R
	case Infections:
		return r.NewInfections
	case Recoveries:
		return r.NewRecoveries
	}
	return nil
}

// Total sums a compartment over bins.
func (r StepRecord) Total(c Compartment) int {
	n := 0
	for _, v := range r.Values(c) {
		n += v
	}
	return n
}

// TrajectoryLog is one complete realization. Records has exactly one entry
// per step; Initial is the state at t=0 before any step.
type TrajectoryLog struct {
	ID        int          `json:"id"`
	Seed      int64        `json:"seed"`
	BinTotals []int        `json:"bin_totals"`
	Seeded    []int        `json:"seeded"`
	Initial   StepRecord   `json:"initial"`
	Records   []StepRecord `json:"records"`
	// ExtinctAt is the first step after which nobody is infected, or -1.
	ExtinctAt int `json:"extinct_at"`
}

func (l *TrajectoryLog) Steps() int { return len(l.Records) }

// Series returns the population-wide total of a compartment per step.
func (l *TrajectoryLog) Series(c Compartment) []int {
	out := make([]int, len(l.Records))
	for i, r := range l.Records {
		out[i] = r.Total(c)
	}
	return out
}

// TotalInfections is the number of new infections over the horizon, seeds excluded.
func (l *TrajectoryLog) TotalInfections() int {
	n := 0
	for _, r := range l.Records {
		n += r.Total(Infections)
	}
	return n
}

// PeakInfected returns the largest infected total and the first step it occurs at.
// Step 0 refers to the initial state.
func (l *TrajectoryLog) PeakInfected() (step, count int) {
	count = l.Initial.Total(Infected)
	for _, r := range l.Records {
		if v := r.Total(Infected); v > count {
			step, count = r.Step, v
		}
	}
	return step, count
}

// Model is a validated configuration with its derived rates and bins,
// shared read-only by every trajectory of an ensemble.
type Model struct {
	cfg    Config
	rates  RateModel
	binner *AgeBinner
	totals []int
}

func NewModel(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rates, err := NewRateModel(cfg.Lambda, cfg.Gamma, cfg.Dt)
	if err != nil {
		return nil, err
	}
	binner, err := NewAgeBinner(cfg.AgeMin, cfg.AgeMax, cfg.AgeBreak)
	if err != nil {
		return nil, err
	}
	m := &Model{cfg: cfg, rates: rates, binner: binner}

	switch cfg.population() {
	case PopulationUniform:
		m.totals = AllocateUniform(binner.Bins(), cfg.NPeople)
	case PopulationExplicit:
		m.totals = append([]int(nil), cfg.BinTotals...)
	}
	if m.totals != nil {
		// surfaces bad seed placement before any trajectory starts
		if _, err := NewPopulationState(m.totals, cfg.SeedInfected, cfg.SeedBin); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Model) Config() Config          { return m.cfg }
func (m *Model) Rates() RateModel        { return m.rates }
func (m *Model) Binner() *AgeBinner      { return m.binner }
func (m *Model) Bins() []AgeBin          { return m.binner.Bins() }
func (m *Model) Steps() int              { return m.cfg.Steps() }
func (m *Model) BinTotals() []int        { return append([]int(nil), m.totals...) }
func (m *Model) SampledPopulation() bool { return m.totals == nil }

// TrajectoryRunner drives one trajectory from t=0 to the horizon.
type TrajectoryRunner struct {
	model  *Model
	id     int
	stream *sampler.Stream
}

// NewTrajectoryRunner binds a trajectory id to its private stream.
func NewTrajectoryRunner(model *Model, id int, stream *sampler.Stream) *TrajectoryRunner {
	return &TrajectoryRunner{model: model, id: id, stream: stream}
}

// Run executes every step. Once the epidemic dies out the remaining records
// are flat copies with zero deltas so every log has the same length.
func (t *TrajectoryRunner) Run() (*TrajectoryLog, error) {
	cfg := t.model.cfg

	totals := t.model.totals
	if totals == nil {
		sampled, err := SampleTotals(t.model.binner, cfg.NPeople, t.stream)
		if err != nil {
			return nil, fmt.Errorf("trajectory %d: sample population: %w", t.id, err)
		}
		totals = sampled
	}
	state, err := NewPopulationState(totals, cfg.SeedInfected, cfg.SeedBin)
	if err != nil {
		return nil, fmt.Errorf("trajectory %d: seed population: %w", t.id, err)
	}

	steps := cfg.Steps()
	bins := state.BinsCount()
	s, i, r := state.Snapshot()
	log := &TrajectoryLog{
		ID:        t.id,
		Seed:      t.stream.Seed(),
		BinTotals: append([]int(nil), totals...),
		Seeded:    append([]int(nil), i...),
		Initial: StepRecord{
			S: s, I: i, R: r,
			NewInfections: make([]int, bins),
			NewRecoveries: make([]int, bins),
		},
		Records:   make([]StepRecord, 0, steps),
		ExtinctAt: -1,
	}

	engine := NewStepEngine(t.model.rates, t.stream)
	for step := 1; step <= steps; step++ {
		newInf, newRec, err := engine.Step(state)
		if err != nil {
			return nil, t.diverged(step, err)
		}
		// conservation is asserted on every step, including flat ones
		if err := state.Check(); err != nil {
			return nil, t.diverged(step, err)
		}
		s, i, r := state.Snapshot()
		log.Records = append(log.Records, StepRecord{
			Step:          step,
			Time:          float64(step) * cfg.Dt,
			S:             s,
			I:             i,
			R:             r,
			NewInfections: newInf,
			NewRecoveries: newRec,
		})
		if log.ExtinctAt < 0 && state.TotalInfected() == 0 {
			log.ExtinctAt = step
		}
	}
	return log, nil
}

func (t *TrajectoryRunner) diverged(step int, err error) error {
	bin := -1
	var sie *StateInvariantError
	if errors.As(err, &sie) {
		bin = sie.Bin
	}
	return &SimulationDivergedError{
		TrajectoryID: t.id,
		Seed:         t.stream.Seed(),
		Step:         step,
		Bin:          bin,
		Err:          err,
	}
}
