package aggregate

import (
	"testing"

	"github.com/rmax-ai/sirsim/pkg/simulation"
)

func TestTimeStatistics(t *testing.T) {
	stats := TimeStatistics(logWith(0, 4, 2))
	byName := map[string]Statistics{}
	for _, s := range stats {
		byName[s.Series] = s
	}

	inf := byName["infections"]
	if inf.Sum != 6 || inf.Mean != 2 || inf.Min != 0 || inf.Max != 4 {
		t.Errorf("Unexpected infections statistics %+v", inf)
	}
	// infected totals are 1, 5, 7
	if got := byName["infected"]; got.Min != 1 || got.Max != 7 || got.Sum != 13 {
		t.Errorf("Unexpected infected statistics %+v", got)
	}
	if empty := describe("x", nil); empty.Min != 0 || empty.Max != 0 {
		t.Errorf("Expected zero statistics for an empty series, got %+v", empty)
	}
}

func TestPyramid(t *testing.T) {
	bins := []simulation.AgeBin{{Index: 0, Lo: 0, Hi: 100}}
	log := logWith(1, 2, 3, 4, 5)

	flows := Pyramid(log, bins, simulation.Infections, 2)
	if len(flows) != 3 {
		t.Fatalf("Expected 3 periods, got %d", len(flows))
	}
	if flows[0].Value != 3 || flows[1].Value != 7 || flows[2].Value != 5 {
		t.Errorf("Expected period totals [3 7 5], got %+v", flows)
	}

	stocks := Pyramid(log, bins, simulation.Infected, 2)
	// infected after steps 2, 4 and 5
	if stocks[0].Value != 4 || stocks[1].Value != 11 || stocks[2].Value != 16 {
		t.Errorf("Expected period-end prevalence [4 11 16], got %+v", stocks)
	}
	if stocks[2].Period != 2 || stocks[2].Hi != 100 {
		t.Errorf("Unexpected row %+v", stocks[2])
	}
	if Pyramid(log, bins, simulation.Infected, 0) != nil {
		t.Error("Expected nil for zero period")
	}
}
