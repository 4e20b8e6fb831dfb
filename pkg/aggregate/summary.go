package aggregate

import (
	"fmt"

	"github.com/rmax-ai/sirsim/pkg/simulation"
)

// Summary is everything derived from one ensemble for output.
type Summary struct {
	Normalization simulation.Normalization `json:"normalization"`
	// Weekly and AgeDistribution are ensemble means in raw counts.
	Weekly          WeeklyCaseSeries `json:"weekly"`
	AgeDistribution AgeDistribution  `json:"age_distribution"`
	// Normalized views per the configured normalization.
	WeeklyNormalized WeeklyCaseSeries `json:"weekly_normalized"`
	AgeNormalized    AgeDistribution  `json:"age_normalized"`

	Statistics []Statistics `json:"statistics"`
	// PerTrajectory holds each trajectory's own weekly series, indexed by id.
	PerTrajectory []WeeklyCaseSeries `json:"per_trajectory,omitempty"`
}

// Summarize derives the weekly and age views of an ensemble.
func Summarize(res *simulation.EnsembleResult) (*Summary, error) {
	if len(res.Logs) == 0 {
		return nil, fmt.Errorf("ensemble has no trajectories")
	}
	weekly, err := WeeklyCasesMean(res)
	if err != nil {
		return nil, err
	}
	age := AgeDistributionMean(res)
	mode := res.Config.EffectiveNormalization()

	s := &Summary{
		Normalization:    mode,
		Weekly:           weekly,
		AgeDistribution:  age,
		WeeklyNormalized: weekly.Normalize(mode, res.Config.NPeople),
		AgeNormalized:    age.Normalize(mode, meanTotals(res)),
		Statistics:       MeanTimeStatistics(res),
		PerTrajectory:    make([]WeeklyCaseSeries, len(res.Logs)),
	}
	for i, log := range res.Logs {
		if s.PerTrajectory[i], err = WeeklyCases(log, res.Config.PLength); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// meanTotals is the bin population used for per-capita scaling. Sampled
// populations vary per trajectory, so their rounded mean is used.
func meanTotals(res *simulation.EnsembleResult) []int {
	if len(res.BinTotals) > 0 {
		return res.BinTotals
	}
	sums := make([]float64, len(res.Bins))
	for _, log := range res.Logs {
		for i, n := range log.BinTotals {
			sums[i] += float64(n)
		}
	}
	out := make([]int, len(sums))
	for i, v := range sums {
		out[i] = int(v/float64(len(res.Logs)) + 0.5)
	}
	return out
}
