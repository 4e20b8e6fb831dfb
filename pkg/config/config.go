// Package config loads sirsim configuration from YAML or JSON files and
// environment variables. The simulation keys match the legacy SIR input
// files (filename, lambda, gamma, age.{min,max,break}, nPeople, tMax,
// deltaT, pLength, timeseries).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rmax-ai/sirsim/pkg/logging"
	"github.com/rmax-ai/sirsim/pkg/simulation"
)

// Config is the full file layout.
type Config struct {
	FileName      string  `json:"filename" yaml:"filename"`
	RunType       string  `json:"runType" yaml:"runType"`
	NTrajectories int     `json:"nTrajectories" yaml:"nTrajectories"`
	Lambda        float64 `json:"lambda" yaml:"lambda"`
	Gamma         float64 `json:"gamma" yaml:"gamma"`
	NPeople       int     `json:"nPeople" yaml:"nPeople"`
	Age           Age     `json:"age" yaml:"age"`
	TMax          float64 `json:"tMax" yaml:"tMax"`
	DeltaT        float64 `json:"deltaT" yaml:"deltaT"`
	PLength       int     `json:"pLength" yaml:"pLength"`

	Seed          int64         `json:"seed" yaml:"seed"`
	SeedInfected  int           `json:"seedInfected" yaml:"seedInfected"`
	SeedBin       int           `json:"seedBin" yaml:"seedBin"`
	Normalization string        `json:"normalization" yaml:"normalization"`
	Population    string        `json:"population" yaml:"population"`
	BinTotals     []int         `json:"binTotals,omitempty" yaml:"binTotals,omitempty"`
	Workers       int           `json:"workers,omitempty" yaml:"workers,omitempty"`
	MaxWallTime   time.Duration `json:"maxWallTime,omitempty" yaml:"maxWallTime,omitempty"`

	// TimeSeries is observed weekly case counts, compared against the model.
	TimeSeries []float64              `json:"timeseries,omitempty" yaml:"timeseries,omitempty"`
	Invariants []simulation.Invariant `json:"invariants,omitempty" yaml:"invariants,omitempty"`

	Calibration Calibration `json:"calibration" yaml:"calibration"`
	Logging     Logging     `json:"logging" yaml:"logging"`
	Store       Store       `json:"store" yaml:"store"`
	Redis       Redis       `json:"redis" yaml:"redis"`
	Server      Server      `json:"server" yaml:"server"`
	Output      Output      `json:"output" yaml:"output"`
}

type Age struct {
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
	Break float64 `json:"break" yaml:"break"`
}

// Range is an inclusive grid of Steps points from Min to Max.
type Range struct {
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
	Steps int     `json:"steps" yaml:"steps"`
}

type Calibration struct {
	Lambda        Range   `json:"lambda" yaml:"lambda"`
	Gamma         Range   `json:"gamma" yaml:"gamma"`
	Likelihood    string  `json:"likelihood" yaml:"likelihood"` // binomial, poisson, normal
	Sigma         float64 `json:"sigma" yaml:"sigma"`
	NTrajectories int     `json:"nTrajectories" yaml:"nTrajectories"`
	Observed      string  `json:"observed,omitempty" yaml:"observed,omitempty"` // CSV path, overrides timeseries
}

type Logging struct {
	Level  string `json:"level" yaml:"level"`   // trace, debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json or text
}

type Store struct {
	Path string `json:"path" yaml:"path"` // SQLite file; empty disables the run store
}

type Redis struct {
	Addr string        `json:"addr" yaml:"addr"` // empty disables the cache
	TTL  time.Duration `json:"ttl" yaml:"ttl"`
}

type Server struct {
	Addr string `json:"addr" yaml:"addr"`
	// Token, when set, is required as a bearer token on POST /v1/simulations.
	Token   string `json:"token,omitempty" yaml:"token,omitempty"`
	TLSCert string `json:"tlsCert,omitempty" yaml:"tlsCert,omitempty"`
	TLSKey  string `json:"tlsKey,omitempty" yaml:"tlsKey,omitempty"`
}

type Output struct {
	Dir   string `json:"dir" yaml:"dir"`
	Plots bool   `json:"plots" yaml:"plots"`
}

// Default mirrors simulation.DefaultConfig plus service defaults.
func Default() *Config {
	sim := simulation.DefaultConfig()
	return &Config{
		FileName:      "sirsim",
		RunType:       sim.RunType.String(),
		NTrajectories: sim.NTrajectories,
		Lambda:        sim.Lambda,
		Gamma:         sim.Gamma,
		NPeople:       sim.NPeople,
		Age:           Age{Min: sim.AgeMin, Max: sim.AgeMax, Break: sim.AgeBreak},
		TMax:          sim.TMax,
		DeltaT:        sim.Dt,
		PLength:       sim.PLength,
		Seed:          sim.Seed,
		SeedInfected:  sim.SeedInfected,
		SeedBin:       sim.SeedBin,
		Normalization: string(sim.Normalization),
		Population:    string(sim.Population),
		Calibration: Calibration{
			Lambda:        Range{Min: 0.1, Max: 0.5, Steps: 9},
			Gamma:         Range{Min: 0.05, Max: 0.25, Steps: 5},
			Likelihood:    "binomial",
			Sigma:         1,
			NTrajectories: 20,
		},
		Logging: Logging{Level: "info", Format: "json"},
		Redis:   Redis{TTL: 24 * time.Hour},
		Server:  Server{Addr: "127.0.0.1:8095"},
		Output:  Output{Dir: "."},
	}
}

// Load applies defaults, then the file at path (if any), then SIRSIM_* env vars.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads a YAML (or JSON) file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML or JSON over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// ToSimulation converts the file layout into the engine's parameters.
func (c *Config) ToSimulation() (simulation.Config, error) {
	rt, err := simulation.ParseRunType(c.RunType)
	if err != nil {
		return simulation.Config{}, err
	}
	return simulation.Config{
		RunType:       rt,
		Normalization: simulation.Normalization(c.Normalization),
		NPeople:       c.NPeople,
		Lambda:        c.Lambda,
		Gamma:         c.Gamma,
		AgeMin:        c.Age.Min,
		AgeMax:        c.Age.Max,
		AgeBreak:      c.Age.Break,
		TMax:          c.TMax,
		Dt:            c.DeltaT,
		PLength:       c.PLength,
		NTrajectories: c.NTrajectories,
		SeedInfected:  c.SeedInfected,
		SeedBin:       c.SeedBin,
		Seed:          c.Seed,
		Population:    simulation.PopulationMode(c.Population),
		BinTotals:     append([]int(nil), c.BinTotals...),
		Workers:       c.Workers,
		MaxWallTime:   c.MaxWallTime,
	}, nil
}

// Validate checks the simulation parameters and the service sections.
func (c *Config) Validate() error {
	sim, err := c.ToSimulation()
	if err != nil {
		return err
	}
	if err := sim.Validate(); err != nil {
		return err
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: trace, debug, info, warn, error)", c.Logging.Level)
	}
	if f := strings.ToLower(c.Logging.Format); f != "" && f != "json" && f != "text" {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}
	if c.Redis.TTL < 0 {
		return fmt.Errorf("redis ttl must be non-negative, got %v", c.Redis.TTL)
	}
	return c.Calibration.Validate()
}

// Validate checks the search grid and likelihood.
func (c Calibration) Validate() error {
	for name, r := range map[string]Range{"lambda": c.Lambda, "gamma": c.Gamma} {
		if r.Steps < 1 {
			return fmt.Errorf("calibration %s steps must be at least 1, got %d", name, r.Steps)
		}
		if r.Min < 0 || r.Max < r.Min {
			return fmt.Errorf("calibration %s range [%v, %v] is invalid", name, r.Min, r.Max)
		}
	}
	switch c.Likelihood {
	case "", "binomial", "poisson":
	case "normal":
		if c.Sigma <= 0 {
			return fmt.Errorf("calibration sigma must be positive for the normal likelihood, got %v", c.Sigma)
		}
	default:
		return fmt.Errorf("invalid likelihood: %s (valid: binomial, poisson, normal)", c.Likelihood)
	}
	if c.NTrajectories < 0 {
		return fmt.Errorf("calibration nTrajectories must be non-negative, got %d", c.NTrajectories)
	}
	return nil
}

// Points expands the range into its grid values.
func (r Range) Points() []float64 {
	if r.Steps <= 1 {
		return []float64{r.Min}
	}
	out := make([]float64, r.Steps)
	step := (r.Max - r.Min) / float64(r.Steps-1)
	for i := range out {
		out[i] = r.Min + float64(i)*step
	}
	out[len(out)-1] = r.Max
	return out
}

func applyEnvOverrides(c *Config) error {
	if v := os.Getenv("SIRSIM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SIRSIM_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("SIRSIM_DB_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("SIRSIM_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("SIRSIM_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("SIRSIM_API_TOKEN"); v != "" {
		c.Server.Token = v
	}
	if v := os.Getenv("SIRSIM_OUTPUT_DIR"); v != "" {
		c.Output.Dir = v
	}
	if v := os.Getenv("SIRSIM_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SIRSIM_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("SIRSIM_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid SIRSIM_SEED: %w", err)
		}
		c.Seed = n
	}
	return nil
}
