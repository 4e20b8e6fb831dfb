package aggregate

import (
	"math"

	"github.com/rmax-ai/sirsim/pkg/simulation"
)

// Statistics summarizes one population-total series over time.
type Statistics struct {
	Series string  `json:"series"`
	Sum    float64 `json:"sum"`
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// TimeStatistics reports sum/mean/min/max of every compartment's total.
func TimeStatistics(log *simulation.TrajectoryLog) []Statistics {
	out := make([]Statistics, 0, len(simulation.Compartments))
	for _, c := range simulation.Compartments {
		series := log.Series(c)
		values := make([]float64, len(series))
		for i, v := range series {
			values[i] = float64(v)
		}
		out = append(out, describe(c.String(), values))
	}
	return out
}

// MeanTimeStatistics applies TimeStatistics to the ensemble-mean series.
func MeanTimeStatistics(res *simulation.EnsembleResult) []Statistics {
	out := make([]Statistics, 0, len(simulation.Compartments))
	for _, c := range simulation.Compartments {
		out = append(out, describe(c.String(), res.MeanSeries(c)))
	}
	return out
}

func describe(name string, values []float64) Statistics {
	st := Statistics{Series: name}
	if len(values) == 0 {
		return st
	}
	st.Min, st.Max = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		st.Sum += v
		st.Min = math.Min(st.Min, v)
		st.Max = math.Max(st.Max, v)
	}
	st.Mean = st.Sum / float64(len(values))
	return st
}

// PyramidRow is one bin's value in one reporting period.
type PyramidRow struct {
	Period int     `json:"period"`
	Lo     float64 `json:"lo"`
	Hi     float64 `json:"hi"`
	Value  float64 `json:"value"`
}

// Pyramid slices a compartment by age bin and period of pLength steps.
// Stocks (S, I, R) report the state at the end of each period; flows
// (infections, recoveries) report the period total.
func Pyramid(log *simulation.TrajectoryLog, bins []simulation.AgeBin, c simulation.Compartment, pLength int) []PyramidRow {
	if pLength <= 0 {
		return nil
	}
	var out []PyramidRow
	period := 0
	for start := 0; start < len(log.Records); start += pLength {
		end := start + pLength
		if end > len(log.Records) {
			end = len(log.Records)
		}
		for b, bin := range bins {
			var v float64
			if c.Prevalence() {
				v = float64(log.Records[end-1].Values(c)[b])
			} else {
				for _, r := range log.Records[start:end] {
					v += float64(r.Values(c)[b])
				}
			}
			out = append(out, PyramidRow{Period: period, Lo: bin.Lo, Hi: bin.Hi, Value: v})
		}
		period++
	}
	return out
}
