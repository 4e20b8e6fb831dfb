// Package aggregate reduces trajectory logs into the summaries reported
// against surveillance data: weekly case counts and cases by age.
package aggregate

import (
	"fmt"

	"github.com/rmax-ai/sirsim/pkg/simulation"
)

// WeeklyCase is the new-infection total over steps [StartStep, EndStep].
type WeeklyCase struct {
	Window    int     `json:"window"`
	StartStep int     `json:"start_step"`
	EndStep   int     `json:"end_step"`
	Value     float64 `json:"value"`
}

// Steps is the window length; only the final window may be shorter than pLength.
func (w WeeklyCase) Steps() int { return w.EndStep - w.StartStep + 1 }

type WeeklyCaseSeries []WeeklyCase

func (s WeeklyCaseSeries) Total() float64 {
	var sum float64
	for _, w := range s {
		sum += w.Value
	}
	return sum
}

// Values returns the window values in order.
func (s WeeklyCaseSeries) Values() []float64 {
	out := make([]float64, len(s))
	for i, w := range s {
		out[i] = w.Value
	}
	return out
}

// LabeledValue is one (label, value) output row.
type LabeledValue struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Rows labels each window by its inclusive step range.
func (s WeeklyCaseSeries) Rows() []LabeledValue {
	out := make([]LabeledValue, len(s))
	for i, w := range s {
		out[i] = LabeledValue{Label: fmt.Sprintf("%d-%d", w.StartStep, w.EndStep), Value: w.Value}
	}
	return out
}

// AgeBinValue is the cumulative case count of one age bin.
type AgeBinValue struct {
	Lo    float64 `json:"lo"`
	Hi    float64 `json:"hi"`
	Value float64 `json:"value"`
}

type AgeDistribution []AgeBinValue

func (d AgeDistribution) Total() float64 {
	var sum float64
	for _, b := range d {
		sum += b.Value
	}
	return sum
}

func (d AgeDistribution) Values() []float64 {
	out := make([]float64, len(d))
	for i, b := range d {
		out[i] = b.Value
	}
	return out
}

// Rows returns the distribution as (binLo, binHi, value) rows; the
// distribution is already in that shape.
func (d AgeDistribution) Rows() []AgeBinValue {
	return append([]AgeBinValue(nil), d...)
}

// WeeklyCases sums a trajectory's new-infection deltas over consecutive
// windows of pLength steps. A trailing partial window is kept.
func WeeklyCases(log *simulation.TrajectoryLog, pLength int) (WeeklyCaseSeries, error) {
	deltas := make([]float64, len(log.Records))
	for i, r := range log.Records {
		deltas[i] = float64(r.Total(simulation.Infections))
	}
	return windows(deltas, pLength)
}

// WeeklyCasesMean applies the same windows to the ensemble-mean deltas.
func WeeklyCasesMean(res *simulation.EnsembleResult) (WeeklyCaseSeries, error) {
	return windows(res.MeanSeries(simulation.Infections), res.Config.PLength)
}

func windows(deltas []float64, pLength int) (WeeklyCaseSeries, error) {
	if pLength <= 0 {
		return nil, &simulation.ConfigError{Param: "p_length", Reason: fmt.Sprintf("must be positive, got %d", pLength)}
	}
	out := make(WeeklyCaseSeries, 0, (len(deltas)+pLength-1)/pLength)
	for start := 0; start < len(deltas); start += pLength {
		end := start + pLength
		if end > len(deltas) {
			end = len(deltas)
		}
		var sum float64
		for _, d := range deltas[start:end] {
			sum += d
		}
		out = append(out, WeeklyCase{
			Window:    len(out),
			StartStep: start + 1,
			EndStep:   end,
			Value:     sum,
		})
	}
	return out, nil
}

// AgeDistributionOf sums a trajectory's new infections per bin over the
// full horizon. Seed infections are not counted.
func AgeDistributionOf(log *simulation.TrajectoryLog, bins []simulation.AgeBin) (AgeDistribution, error) {
	out := make(AgeDistribution, len(bins))
	for i, b := range bins {
		out[i] = AgeBinValue{Lo: b.Lo, Hi: b.Hi}
	}
	for _, r := range log.Records {
		if len(r.NewInfections) != len(bins) {
			return nil, fmt.Errorf("step %d has %d bins, expected %d", r.Step, len(r.NewInfections), len(bins))
		}
		for i, v := range r.NewInfections {
			out[i].Value += float64(v)
		}
	}
	return out, nil
}

// AgeDistributionMean is the ensemble mean of AgeDistributionOf.
func AgeDistributionMean(res *simulation.EnsembleResult) AgeDistribution {
	out := make(AgeDistribution, len(res.Bins))
	for i, b := range res.Bins {
		out[i] = AgeBinValue{Lo: b.Lo, Hi: b.Hi}
	}
	for _, s := range res.Summary {
		for i, m := range s.NewInfections {
			out[i].Value += m.Mean
		}
	}
	return out
}
