package simulation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// RunType selects how the ensemble schedules its trajectories.
type RunType int

const (
	RunSerial   RunType = 0
	RunParallel RunType = 1
)

func (r RunType) String() string {
	switch r {
	case RunSerial:
		return "serial"
	case RunParallel:
		return "parallel"
	default:
		return fmt.Sprintf("RunType(%d)", int(r))
	}
}

// ParseRunType accepts the names "serial"/"parallel" or their integer codes.
func ParseRunType(s string) (RunType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "serial", "0", "":
		return RunSerial, nil
	case "parallel", "1":
		return RunParallel, nil
	}
	return 0, &ConfigError{Param: "run_type", Reason: fmt.Sprintf("unknown run type %q (want serial|parallel|0|1)", s)}
}

func (r RunType) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *RunType) UnmarshalText(text []byte) error {
	v, err := ParseRunType(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Normalization selects how derived summaries are scaled for output.
type Normalization string

const (
	// NormalizeRaw reports counts as simulated.
	NormalizeRaw Normalization = "raw"
	// NormalizePerCapita reports counts per 100,000 people of the relevant population.
	NormalizePerCapita Normalization = "per_capita"
	// NormalizeProportion reports each value as a share of the series total.
	NormalizeProportion Normalization = "proportion"
)

// PerCapitaScale is the denominator used by NormalizePerCapita.
const PerCapitaScale = 100000.0

func (n Normalization) Valid() bool {
	switch n {
	case NormalizeRaw, NormalizePerCapita, NormalizeProportion:
		return true
	}
	return false
}

// PopulationMode selects how the population is split across age bins.
type PopulationMode string

const (
	// PopulationUniform allocates people proportionally to bin width.
	PopulationUniform PopulationMode = "uniform"
	// PopulationSampled draws each person's age uniformly per trajectory.
	PopulationSampled PopulationMode = "sampled"
	// PopulationExplicit uses BinTotals as given.
	PopulationExplicit PopulationMode = "explicit"
)

// SeedProportional spreads the initial infected across bins by population.
const SeedProportional = -1

// Config is the full parameter set for one ensemble. It is treated as
// immutable once handed to a runner.
type Config struct {
	RunType       RunType        `json:"run_type" yaml:"run_type"`
	Normalization Normalization  `json:"normalization" yaml:"normalization"`
	NPeople       int            `json:"n_people" yaml:"n_people"`
	Lambda        float64        `json:"lambda" yaml:"lambda"`
	Gamma         float64        `json:"gamma" yaml:"gamma"`
	AgeMin        float64        `json:"age_min" yaml:"age_min"`
	AgeMax        float64        `json:"age_max" yaml:"age_max"`
	AgeBreak      float64        `json:"age_break" yaml:"age_break"`
	TMax          float64        `json:"t_max" yaml:"t_max"`
	Dt            float64        `json:"dt" yaml:"dt"`
	PLength       int            `json:"p_length" yaml:"p_length"`
	NTrajectories int            `json:"n_trajectories" yaml:"n_trajectories"`
	SeedInfected  int            `json:"seed_infected" yaml:"seed_infected"`
	SeedBin       int            `json:"seed_bin" yaml:"seed_bin"`
	Seed          int64          `json:"seed" yaml:"seed"`
	Population    PopulationMode `json:"population,omitempty" yaml:"population,omitempty"`
	BinTotals     []int          `json:"bin_totals,omitempty" yaml:"bin_totals,omitempty"`
	Workers       int            `json:"workers,omitempty" yaml:"workers,omitempty"`
	MaxWallTime   time.Duration  `json:"max_wall_time,omitempty" yaml:"max_wall_time,omitempty"`
}

// DefaultConfig returns a small, well-behaved outbreak.
func DefaultConfig() Config {
	return Config{
		RunType:       RunParallel,
		Normalization: NormalizeRaw,
		NPeople:       1000,
		Lambda:        0.3,
		Gamma:         0.1,
		AgeMin:        0,
		AgeMax:        80,
		AgeBreak:      20,
		TMax:          100,
		Dt:            1,
		PLength:       7,
		NTrajectories: 50,
		SeedInfected:  1,
		SeedBin:       0,
		Seed:          42,
		Population:    PopulationUniform,
	}
}

// MaxSteps bounds the horizon in steps; every trajectory keeps one record per step.
const MaxSteps = 1_000_000

// Steps is floor(TMax/Dt). A horizon that is not a multiple of Dt is rounded down.
func (c Config) Steps() int {
	if c.Dt <= 0 || c.TMax <= 0 {
		return 0
	}
	return int(math.Floor(c.TMax/c.Dt + 1e-9))
}

// Validate checks every parameter and returns the first failure. Rate and
// age-range failures come back as *InvalidRateError / *InvalidAgeRangeError.
func (c Config) Validate() error {
	if _, err := NewRateModel(c.Lambda, c.Gamma, c.Dt); err != nil {
		return err
	}
	binner, err := NewAgeBinner(c.AgeMin, c.AgeMax, c.AgeBreak)
	if err != nil {
		return err
	}
	if c.NPeople <= 0 {
		return &ConfigError{Param: "n_people", Reason: fmt.Sprintf("must be positive, got %d", c.NPeople)}
	}
	if !(c.TMax > 0) || math.IsInf(c.TMax, 0) {
		return &ConfigError{Param: "t_max", Reason: fmt.Sprintf("must be positive and finite, got %v", c.TMax)}
	}
	if c.Dt > c.TMax {
		return &ConfigError{Param: "dt", Reason: fmt.Sprintf("step %v exceeds horizon %v", c.Dt, c.TMax)}
	}
	if q := c.TMax / c.Dt; q > MaxSteps {
		return &ConfigError{Param: "t_max", Reason: fmt.Sprintf("horizon %v at dt %v is %g steps, limit is %d", c.TMax, c.Dt, math.Floor(q), MaxSteps)}
	}
	if c.Steps() < 1 {
		return &ConfigError{Param: "dt", Reason: "horizon contains no whole steps"}
	}
	if c.PLength <= 0 {
		return &ConfigError{Param: "p_length", Reason: fmt.Sprintf("must be positive, got %d", c.PLength)}
	}
	if c.NTrajectories < 1 {
		return &ConfigError{Param: "n_trajectories", Reason: fmt.Sprintf("must be at least 1, got %d", c.NTrajectories)}
	}
	if c.SeedInfected < 1 || c.SeedInfected > c.NPeople {
		return &ConfigError{Param: "seed_infected", Reason: fmt.Sprintf("must be in [1, %d], got %d", c.NPeople, c.SeedInfected)}
	}
	if c.SeedBin != SeedProportional && (c.SeedBin < 0 || c.SeedBin >= binner.BinsCount()) {
		return &ConfigError{Param: "seed_bin", Reason: fmt.Sprintf("must be -1 or in [0, %d), got %d", binner.BinsCount(), c.SeedBin)}
	}
	if c.Normalization != "" && !c.Normalization.Valid() {
		return &ConfigError{Param: "normalization", Reason: fmt.Sprintf("unknown mode %q", c.Normalization)}
	}
	if c.RunType != RunSerial && c.RunType != RunParallel {
		return &ConfigError{Param: "run_type", Reason: fmt.Sprintf("unknown run type %d", int(c.RunType))}
	}
	if c.Workers < 0 {
		return &ConfigError{Param: "workers", Reason: "must not be negative"}
	}
	if c.MaxWallTime < 0 {
		return &ConfigError{Param: "max_wall_time", Reason: "must not be negative"}
	}

	switch c.population() {
	case PopulationUniform, PopulationSampled:
		if len(c.BinTotals) > 0 {
			return &ConfigError{Param: "bin_totals", Reason: "only allowed with population=explicit"}
		}
	case PopulationExplicit:
		if len(c.BinTotals) != binner.BinsCount() {
			return &ConfigError{Param: "bin_totals", Reason: fmt.Sprintf("expected %d entries, got %d", binner.BinsCount(), len(c.BinTotals))}
		}
		sum := 0
		for i, v := range c.BinTotals {
			if v < 0 {
				return &ConfigError{Param: "bin_totals", Reason: fmt.Sprintf("entry %d is negative", i)}
			}
			sum += v
		}
		if sum != c.NPeople {
			return &ConfigError{Param: "bin_totals", Reason: fmt.Sprintf("sum %d does not match n_people %d", sum, c.NPeople)}
		}
	default:
		return &ConfigError{Param: "population", Reason: fmt.Sprintf("unknown mode %q", c.Population)}
	}
	return nil
}

// Warnings lists accepted but lossy settings.
func (c Config) Warnings() []string {
	var out []string
	if c.Dt > 0 && c.TMax > 0 {
		if r := math.Mod(c.TMax, c.Dt); r > 1e-9 && c.Dt-r > 1e-9 {
			out = append(out, fmt.Sprintf("t_max %v is not a multiple of dt %v; horizon rounded down to %d steps", c.TMax, c.Dt, c.Steps()))
		}
	}
	if steps := c.Steps(); c.PLength > 0 && steps > 0 && steps%c.PLength != 0 {
		out = append(out, fmt.Sprintf("%d steps is not a multiple of p_length %d; last window is partial", steps, c.PLength))
	}
	return out
}

func (c Config) population() PopulationMode {
	if c.Population == "" {
		return PopulationUniform
	}
	return c.Population
}

func (c Config) normalization() Normalization {
	if c.Normalization == "" {
		return NormalizeRaw
	}
	return c.Normalization
}

// EffectiveNormalization returns the normalization with the default applied.
func (c Config) EffectiveNormalization() Normalization { return c.normalization() }

// String renders the parameters in the order of the legacy command line.
func (c Config) String() string {
	return strings.Join([]string{
		c.RunType.String(),
		strconv.Itoa(c.NTrajectories),
		strconv.FormatFloat(c.Lambda, 'g', -1, 64),
		strconv.FormatFloat(c.Gamma, 'g', -1, 64),
		strconv.Itoa(c.NPeople),
		strconv.FormatFloat(c.AgeMin, 'g', -1, 64),
		strconv.FormatFloat(c.AgeMax, 'g', -1, 64),
		strconv.FormatFloat(c.AgeBreak, 'g', -1, 64),
		strconv.FormatFloat(c.TMax, 'g', -1, 64),
		strconv.FormatFloat(c.Dt, 'g', -1, 64),
		strconv.Itoa(c.PLength),
	}, " ")
}
