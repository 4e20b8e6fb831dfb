package plot

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/rmax-ai/sirsim/pkg/aggregate"
	"github.com/rmax-ai/sirsim/pkg/simulation"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

type memSink map[string][]byte

func (m memSink) Put(ctx context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m[key] = data
	return nil
}

func runEnsemble(t *testing.T, cfg simulation.Config) (*simulation.EnsembleResult, *aggregate.Summary) {
	t.Helper()
	runner, err := simulation.NewEnsembleRunner(cfg, simulation.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("NewEnsembleRunner failed: %v", err)
	}
	res, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	s, err := aggregate.Summarize(res)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	return res, s
}

func TestWriteAll(t *testing.T) {
	cfg := simulation.DefaultConfig()
	cfg.NTrajectories = 3
	cfg.TMax = 30
	res, s := runEnsemble(t, cfg)

	sink := memSink{}
	keys, err := WriteAll(context.Background(), sink, "flu", res, s, []float64{1, 4, 9})
	if err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("Expected 3 charts, got %v", keys)
	}
	for _, k := range keys {
		if !bytes.HasPrefix(sink[k], pngMagic) {
			t.Errorf("%s is not a PNG", k)
		}
	}
}

func TestFlatSeriesRender(t *testing.T) {
	// No transmission: every series is flat.
	cfg := simulation.DefaultConfig()
	cfg.NTrajectories = 2
	cfg.TMax = 7
	cfg.Lambda = 0
	cfg.Gamma = 0
	res, s := runEnsemble(t, cfg)

	if _, err := Compartments(res); err != nil {
		t.Errorf("Compartments failed on flat series: %v", err)
	}
	if _, err := WeeklyCases(s, nil); err != nil {
		t.Errorf("WeeklyCases failed on a single zero window: %v", err)
	}
	if _, err := AgeDistribution(s); err != nil {
		t.Errorf("AgeDistribution failed on zero cases: %v", err)
	}
}

func TestEmptyInputs(t *testing.T) {
	if _, err := WeeklyCases(&aggregate.Summary{}, nil); err == nil {
		t.Error("Expected error for empty weekly series")
	}
	if _, err := AgeDistribution(&aggregate.Summary{}); err == nil {
		t.Error("Expected error for empty age distribution")
	}
}
