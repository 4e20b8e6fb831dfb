package simulation

import (
	"fmt"
	"math"
)

const (
	// remainders narrower than this fraction of a bin are float noise, not a bin
	sliverFraction = 1e-9
	maxAgeBins     = 10000
)

// AgeBin is the half-open age interval [Lo, Hi).
type AgeBin struct {
	Index int     `json:"index" yaml:"index"`
	Lo    float64 `json:"lo" yaml:"lo"`
	Hi    float64 `json:"hi" yaml:"hi"`
}

func (b AgeBin) Width() float64 { return b.Hi - b.Lo }

// Label renders the bin as "[lo,hi)".
func (b AgeBin) Label() string {
	return fmt.Sprintf("[%g,%g)", b.Lo, b.Hi)
}

// AgeBinner partitions [ageMin, ageMax) into ageBreak-wide bins. When the
// range is not a multiple of ageBreak the last bin is narrower and absorbs
// the remainder.
type AgeBinner struct {
	ageMin   float64
	ageMax   float64
	ageBreak float64
	bins     []AgeBin
}

func NewAgeBinner(ageMin, ageMax, ageBreak float64) (*AgeBinner, error) {
	invalid := func(reason string) error {
		return &InvalidAgeRangeError{AgeMin: ageMin, AgeMax: ageMax, AgeBreak: ageBreak, Reason: reason}
	}
	for _, v := range []float64{ageMin, ageMax, ageBreak} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, invalid("values must be finite")
		}
	}
	if ageMin < 0 {
		return nil, invalid("ageMin must be non-negative")
	}
	if ageMin >= ageMax {
		return nil, invalid("ageMin must be less than ageMax")
	}
	if ageBreak <= 0 {
		return nil, invalid("ageBreak must be positive")
	}

	// int() of an overflowed quotient is undefined, so bound it as a float.
	q := math.Ceil((ageMax-ageMin)/ageBreak - sliverFraction)
	if math.IsInf(q, 0) || math.IsNaN(q) || q > maxAgeBins {
		return nil, invalid(fmt.Sprintf("produces %g bins, limit is %d", q, maxAgeBins))
	}
	count := max(int(q), 1)

	bins := make([]AgeBin, count)
	for k := range bins {
		lo := ageMin + float64(k)*ageBreak
		hi := lo + ageBreak
		if k == count-1 {
			hi = ageMax
		}
		bins[k] = AgeBin{Index: k, Lo: lo, Hi: hi}
	}

	return &AgeBinner{ageMin: ageMin, ageMax: ageMax, ageBreak: ageBreak, bins: bins}, nil
}

func (b *AgeBinner) BinsCount() int { return len(b.bins) }

// Bins returns a copy of the partition in index order.
func (b *AgeBinner) Bins() []AgeBin {
	out := make([]AgeBin, len(b.bins))
	copy(out, b.bins)
	return out
}

// BinIndexFor maps an age to the index of the bin containing it.
func (b *AgeBinner) BinIndexFor(age float64) (int, error) {
	if math.IsNaN(age) || age < b.ageMin || age >= b.ageMax {
		return 0, fmt.Errorf("%w: age %g outside [%g, %g)", ErrInvalidAgeRange, age, b.ageMin, b.ageMax)
	}
	idx := int((age - b.ageMin) / b.ageBreak)
	if idx >= len(b.bins) {
		idx = len(b.bins) - 1
	}
	// division can land one bin off right at a boundary
	if age < b.bins[idx].Lo && idx > 0 {
		idx--
	} else if age >= b.bins[idx].Hi && idx < len(b.bins)-1 {
		idx++
	}
	return idx, nil
}
