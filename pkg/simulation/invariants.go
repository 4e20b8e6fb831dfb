package simulation

import (
	"fmt"
	"math"
)

// Invariant is an expectation on an ensemble metric, e.g. attack_rate > 0.5.
type Invariant struct {
	Metric    string  `json:"metric" yaml:"metric"`       // attack_rate, outbreak_fraction, extinct_fraction, peak_infected_mean, peak_step_mean
	Condition string  `json:"condition" yaml:"condition"` // >, >=, <, <=, ==
	Value     float64 `json:"value" yaml:"value"`
}

type InvariantResult struct {
	Metric   string `json:"metric"`
	Expected string `json:"expected"` // e.g. "> 0.50"
	Actual   string `json:"actual"`   // e.g. "0.7312"
	Passed   bool   `json:"passed"`
}

// Metric computes a named ensemble metric. Outbreaks are trajectories whose
// infected total ever rises above the initial seed.
func (r *EnsembleResult) Metric(name string) (float64, error) {
	if len(r.Logs) == 0 {
		return 0, fmt.Errorf("ensemble has no trajectories")
	}
	n := float64(len(r.Logs))
	switch name {
	case "attack_rate":
		var sum float64
		for _, l := range r.Logs {
			sum += float64(l.TotalInfections()+sumInts(l.Seeded)) / float64(sumInts(l.BinTotals))
		}
		return sum / n, nil
	case "outbreak_fraction":
		count := 0
		for _, l := range r.Logs {
			if _, peak := l.PeakInfected(); peak > sumInts(l.Seeded) {
				count++
			}
		}
		return float64(count) / n, nil
	case "extinct_fraction":
		count := 0
		for _, l := range r.Logs {
			if l.ExtinctAt >= 0 {
				count++
			}
		}
		return float64(count) / n, nil
	case "peak_infected_mean":
		var sum float64
		for _, l := range r.Logs {
			_, peak := l.PeakInfected()
			sum += float64(peak)
		}
		return sum / n, nil
	case "peak_step_mean":
		var sum float64
		for _, l := range r.Logs {
			step, _ := l.PeakInfected()
			sum += float64(step)
		}
		return sum / n, nil
	}
	return 0, fmt.Errorf("unknown metric %q", name)
}

// Evaluate checks every invariant against the result.
func (r *EnsembleResult) Evaluate(invariants []Invariant) []InvariantResult {
	out := make([]InvariantResult, 0, len(invariants))
	for _, inv := range invariants {
		expected := fmt.Sprintf("%s %.2f", inv.Condition, inv.Value)
		actual, err := r.Metric(inv.Metric)
		if err != nil {
			out = append(out, InvariantResult{Metric: inv.Metric, Expected: expected, Actual: "N/A", Passed: false})
			continue
		}

		var passed bool
		switch inv.Condition {
		case ">":
			passed = actual > inv.Value
		case ">=":
			passed = actual >= inv.Value
		case "<":
			passed = actual < inv.Value
		case "<=":
			passed = actual <= inv.Value
		case "==":
			passed = math.Abs(actual-inv.Value) < 0.0001
		}

		out = append(out, InvariantResult{
			Metric:   inv.Metric,
			Expected: expected,
			Actual:   fmt.Sprintf("%.4f", actual),
			Passed:   passed,
		})
	}
	return out
}

func sumInts(v []int) int {
	n := 0
	for _, x := range v {
		n += x
	}
	return n
}
