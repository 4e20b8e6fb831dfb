package sampler

import (
	"math"
	"math/rand/v2"
)

// Stream is a private source of random variates owned by one trajectory.
// It is not safe for concurrent use.
type Stream struct {
	rng  *rand.Rand
	seed int64
	id   int
}

// NewStream derives the stream for trajectory id from a base seed. The
// trajectory id selects the PCG sequence, so streams for different ids are
// independent and a given (seed, id) pair always yields the same variates.
func NewStream(seed int64, id int) *Stream {
	return &Stream{
		rng:  rand.New(rand.NewPCG(uint64(seed), uint64(id))),
		seed: seed,
		id:   id,
	}
}

// Seed returns the base seed the stream was derived from.
func (s *Stream) Seed() int64 { return s.seed }

// ID returns the trajectory id the stream was derived for.
func (s *Stream) ID() int { return s.id }

// Float64 returns a uniform variate in [0, 1).
func (s *Stream) Float64() float64 {
	return s.rng.Float64()
}

// Uniform returns a uniform variate in [lo, hi).
func (s *Stream) Uniform(lo, hi float64) float64 {
	v := lo + (hi-lo)*s.rng.Float64()
	if v >= hi {
		// rounding can land exactly on hi for wide ranges
		v = math.Nextafter(hi, lo)
	}
	return v
}
