package aggregate

import "github.com/rmax-ai/sirsim/pkg/simulation"

// Normalize scales every window. Per-capita windows are expressed per
// PerCapitaScale people of the whole population.
func (s WeeklyCaseSeries) Normalize(mode simulation.Normalization, population int) WeeklyCaseSeries {
	out := append(WeeklyCaseSeries(nil), s...)
	switch mode {
	case simulation.NormalizePerCapita:
		for i := range out {
			out[i].Value = perCapita(out[i].Value, population)
		}
	case simulation.NormalizeProportion:
		total := s.Total()
		for i := range out {
			out[i].Value = share(out[i].Value, total)
		}
	}
	return out
}

// Normalize scales every bin. Per-capita values use each bin's own
// population, so bins of different size stay comparable.
func (d AgeDistribution) Normalize(mode simulation.Normalization, binTotals []int) AgeDistribution {
	out := append(AgeDistribution(nil), d...)
	switch mode {
	case simulation.NormalizePerCapita:
		for i := range out {
			pop := 0
			if i < len(binTotals) {
				pop = binTotals[i]
			}
			out[i].Value = perCapita(out[i].Value, pop)
		}
	case simulation.NormalizeProportion:
		total := d.Total()
		for i := range out {
			out[i].Value = share(out[i].Value, total)
		}
	}
	return out
}

func perCapita(v float64, population int) float64 {
	if population <= 0 {
		return 0
	}
	return v / float64(population) * simulation.PerCapitaScale
}

func share(v, total float64) float64 {
	if total == 0 {
		return 0
	}
	return v / total
}
