package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rmax-ai/sirsim/pkg/simulation"
)

const legacyJSON = `{
  "filename": "out/flu",
  "lambda": 0.45,
  "gamma": 0.2,
  "age": {"min": 0, "max": 95, "break": 20},
  "nPeople": 5000,
  "tMax": 140,
  "deltaT": 1,
  "pLength": 7,
  "timeseries": [1, 4, 9, 20]
}`

func TestParseLegacyJSON(t *testing.T) {
	cfg, err := Parse([]byte(legacyJSON))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.FileName != "out/flu" || cfg.Lambda != 0.45 || cfg.NPeople != 5000 {
		t.Errorf("Unexpected parse result %+v", cfg)
	}
	if cfg.Age.Max != 95 || cfg.Age.Break != 20 {
		t.Errorf("Expected age 0-95 by 20, got %+v", cfg.Age)
	}
	if len(cfg.TimeSeries) != 4 || cfg.TimeSeries[3] != 20 {
		t.Errorf("Unexpected timeseries %v", cfg.TimeSeries)
	}
	// keys absent from the file keep their defaults
	if cfg.NTrajectories != 50 || cfg.SeedInfected != 1 || cfg.Logging.Level != "info" {
		t.Errorf("Expected defaults to survive, got %+v", cfg)
	}

	sim, err := cfg.ToSimulation()
	if err != nil {
		t.Fatalf("ToSimulation failed: %v", err)
	}
	if sim.Steps() != 140 || sim.AgeMax != 95 || sim.Dt != 1 || sim.RunType != simulation.RunParallel {
		t.Errorf("Unexpected simulation config %+v", sim)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestParseYAML(t *testing.T) {
	data := `
runType: serial
nTrajectories: 8
maxWallTime: 30s
seedBin: -1
normalization: per_capita
redis:
  addr: localhost:6379
  ttl: 1h
invariants:
  - metric: outbreak_fraction
    condition: ">"
    value: 0.5
`
	cfg, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.MaxWallTime != 30*time.Second || cfg.Redis.TTL != time.Hour {
		t.Errorf("Expected durations to parse, got %v / %v", cfg.MaxWallTime, cfg.Redis.TTL)
	}
	if len(cfg.Invariants) != 1 || cfg.Invariants[0].Condition != ">" {
		t.Errorf("Unexpected invariants %+v", cfg.Invariants)
	}
	sim, err := cfg.ToSimulation()
	if err != nil {
		t.Fatalf("ToSimulation failed: %v", err)
	}
	if sim.RunType != simulation.RunSerial || sim.SeedBin != simulation.SeedProportional || sim.Normalization != simulation.NormalizePerCapita {
		t.Errorf("Unexpected simulation config %+v", sim)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.json")
	if err := os.WriteFile(path, []byte(legacyJSON), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Gamma != 0.2 {
		t.Errorf("Expected gamma 0.2, got %v", cfg.Gamma)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for a missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SIRSIM_LOG_LEVEL", "debug")
	t.Setenv("SIRSIM_DB_PATH", "/tmp/runs.db")
	t.Setenv("SIRSIM_REDIS_ADDR", "redis:6379")
	t.Setenv("SIRSIM_WORKERS", "3")
	t.Setenv("SIRSIM_SEED", "99")
	t.Setenv("SIRSIM_API_TOKEN", "s3cret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Store.Path != "/tmp/runs.db" || cfg.Redis.Addr != "redis:6379" {
		t.Errorf("Expected env overrides, got %+v", cfg)
	}
	if cfg.Server.Token != "s3cret" {
		t.Errorf("Expected token override, got %q", cfg.Server.Token)
	}
	if cfg.Workers != 3 || cfg.Seed != 99 {
		t.Errorf("Expected workers 3 seed 99, got %d %d", cfg.Workers, cfg.Seed)
	}

	t.Setenv("SIRSIM_WORKERS", "many")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "SIRSIM_WORKERS") {
		t.Errorf("Expected SIRSIM_WORKERS error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		errorSubstr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"bad run type", func(c *Config) { c.RunType = "batch" }, "run_type"},
		{"bad age", func(c *Config) { c.Age.Break = 0 }, "ageBreak"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "log level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "log format"},
		{"bad likelihood", func(c *Config) { c.Calibration.Likelihood = "cauchy" }, "likelihood"},
		{"normal without sigma", func(c *Config) {
			c.Calibration.Likelihood = "normal"
			c.Calibration.Sigma = 0
		}, "sigma"},
		{"inverted range", func(c *Config) { c.Calibration.Gamma = Range{Min: 1, Max: 0.5, Steps: 3} }, "gamma range"},
		{"empty grid", func(c *Config) { c.Calibration.Lambda.Steps = 0 }, "lambda steps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errorSubstr == "" {
				if err != nil {
					t.Fatalf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorSubstr) {
				t.Errorf("Expected error containing %q, got %v", tt.errorSubstr, err)
			}
		})
	}
}

func TestRangePoints(t *testing.T) {
	pts := Range{Min: 0.1, Max: 0.5, Steps: 5}.Points()
	if len(pts) != 5 || pts[0] != 0.1 || pts[4] != 0.5 {
		t.Errorf("Unexpected points %v", pts)
	}
	if single := (Range{Min: 0.3, Max: 0.9, Steps: 1}).Points(); len(single) != 1 || single[0] != 0.3 {
		t.Errorf("Expected single point at min, got %v", single)
	}
}
