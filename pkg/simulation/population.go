package simulation

import (
	"fmt"
	"sort"

	"github.com/rmax-ai/sirsim/pkg/simulation/sampler"
)

// BinCounts holds one age bin's compartments. S+I+R always equals Total.
type BinCounts struct {
	Total int `json:"total"`
	S     int `json:"s"`
	I     int `json:"i"`
	R     int `json:"r"`
}

// PopulationState is the mutable S/I/R state of one trajectory.
type PopulationState struct {
	bins  []BinCounts
	total int
}

// NewPopulationState builds a fully susceptible population and infects
// seedInfected people. A seedBin of SeedProportional spreads the seeds by
// bin population; otherwise every seed lands in seedBin.
func NewPopulationState(totals []int, seedInfected, seedBin int) (*PopulationState, error) {
	if len(totals) == 0 {
		return nil, &ConfigError{Param: "bin_totals", Reason: "population has no bins"}
	}
	p := &PopulationState{bins: make([]BinCounts, len(totals))}
	for i, n := range totals {
		if n < 0 {
			return nil, &ConfigError{Param: "bin_totals", Reason: fmt.Sprintf("bin %d total is negative", i)}
		}
		p.bins[i] = BinCounts{Total: n, S: n}
		p.total += n
	}
	if seedInfected < 1 || seedInfected > p.total {
		return nil, &ConfigError{Param: "seed_infected", Reason: fmt.Sprintf("must be in [1, %d], got %d", p.total, seedInfected)}
	}

	seeds := make([]int, len(totals))
	switch {
	case seedBin == SeedProportional:
		weights := make([]float64, len(totals))
		for i, n := range totals {
			weights[i] = float64(n)
		}
		seeds = LargestRemainder(weights, seedInfected)
	case seedBin >= 0 && seedBin < len(totals):
		seeds[seedBin] = seedInfected
	default:
		return nil, &ConfigError{Param: "seed_bin", Reason: fmt.Sprintf("bin %d does not exist", seedBin)}
	}

	for i, k := range seeds {
		if k > p.bins[i].S {
			return nil, &ConfigError{Param: "seed_infected", Reason: fmt.Sprintf("bin %d holds %d people, cannot seed %d", i, p.bins[i].Total, k)}
		}
		p.bins[i].S -= k
		p.bins[i].I += k
	}
	return p, nil
}

func (p *PopulationState) BinsCount() int { return len(p.bins) }

func (p *PopulationState) Bin(i int) BinCounts { return p.bins[i] }

// Total is the fixed population size.
func (p *PopulationState) Total() int { return p.total }

func (p *PopulationState) TotalInfected() int {
	n := 0
	for _, b := range p.bins {
		n += b.I
	}
	return n
}

// Snapshot copies the per-bin compartments.
func (p *PopulationState) Snapshot() (s, i, r []int) {
	s = make([]int, len(p.bins))
	i = make([]int, len(p.bins))
	r = make([]int, len(p.bins))
	for k, b := range p.bins {
		s[k], i[k], r[k] = b.S, b.I, b.R
	}
	return s, i, r
}

// ApplyTransitions moves newInfections S->I and newRecoveries I->R per bin.
// Both are bounded by the pre-step counts; nothing is mutated when any bin
// fails the check.
func (p *PopulationState) ApplyTransitions(newInfections, newRecoveries []int) error {
	if len(newInfections) != len(p.bins) || len(newRecoveries) != len(p.bins) {
		return &StateInvariantError{Bin: -1, Reason: fmt.Sprintf("expected %d bins of transitions, got %d/%d",
			len(p.bins), len(newInfections), len(newRecoveries))}
	}
	for k, b := range p.bins {
		inf, rec := newInfections[k], newRecoveries[k]
		var reason string
		switch {
		case inf < 0 || rec < 0:
			reason = "negative transition count"
		case inf > b.S:
			reason = "infections exceed susceptible"
		case rec > b.I:
			reason = "recoveries exceed infected"
		}
		if reason != "" {
			return &StateInvariantError{Bin: k, S: b.S, I: b.I, R: b.R, Total: b.Total,
				NewInfections: inf, NewRecoveries: rec, Reason: reason}
		}
	}
	for k := range p.bins {
		b := &p.bins[k]
		b.S -= newInfections[k]
		b.I += newInfections[k] - newRecoveries[k]
		b.R += newRecoveries[k]
	}
	return p.Check()
}

// Check asserts non-negativity and S+I+R == Total in every bin.
func (p *PopulationState) Check() error {
	for k, b := range p.bins {
		if b.S < 0 || b.I < 0 || b.R < 0 {
			return &StateInvariantError{Bin: k, S: b.S, I: b.I, R: b.R, Total: b.Total, Reason: "negative compartment"}
		}
		if b.S+b.I+b.R != b.Total {
			return &StateInvariantError{Bin: k, S: b.S, I: b.I, R: b.R, Total: b.Total, Reason: "S+I+R does not equal bin total"}
		}
	}
	return nil
}

// LargestRemainder splits n into integer shares proportional to weights.
// Ties go to the lower index, so the split is deterministic.
func LargestRemainder(weights []float64, n int) []int {
	out := make([]int, len(weights))
	var sum float64
	for _, w := range weights {
		if w > 0 {
			sum += w
		}
	}
	if sum == 0 || n <= 0 {
		return out
	}

	type rem struct {
		idx  int
		frac float64
	}
	rems := make([]rem, 0, len(weights))
	assigned := 0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		share := float64(n) * w / sum
		whole := int(share)
		out[i] = whole
		assigned += whole
		rems = append(rems, rem{idx: i, frac: share - float64(whole)})
	}
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].frac > rems[b].frac })
	for k := 0; assigned < n; k++ {
		out[rems[k%len(rems)].idx]++
		assigned++
	}
	return out
}

// AllocateUniform spreads n people across bins in proportion to bin width.
func AllocateUniform(bins []AgeBin, n int) []int {
	weights := make([]float64, len(bins))
	for i, b := range bins {
		weights[i] = b.Width()
	}
	return LargestRemainder(weights, n)
}

// SampleTotals draws an age for each of n people uniformly over the binner's
// range and counts them per bin.
func SampleTotals(binner *AgeBinner, n int, stream *sampler.Stream) ([]int, error) {
	totals := make([]int, binner.BinsCount())
	for i := 0; i < n; i++ {
		idx, err := binner.BinIndexFor(stream.Uniform(binner.ageMin, binner.ageMax))
		if err != nil {
			return nil, err
		}
		totals[idx]++
	}
	return totals, nil
}
