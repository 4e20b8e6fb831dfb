package sampler

import "math"

// inversionCutoff is the n*p below which sequential inversion is used.
const inversionCutoff = 10.0

// Binomial draws from Binomial(n, p). The result is always in [0, n].
//
// Small means use sequential inversion (BINV); larger ones use Hörmann's
// transformed rejection with squeeze (BTRS). Both only consume the stream's
// uniforms, so a given stream always reproduces the same draws.
func (s *Stream) Binomial(n int, p float64) int {
	switch {
	case n <= 0 || p <= 0 || math.IsNaN(p):
		return 0
	case p >= 1:
		return n
	}
	if p > 0.5 {
		return n - s.Binomial(n, 1-p)
	}
	if float64(n)*p < inversionCutoff {
		return s.inversion(n, p)
	}
	return s.btrs(n, p)
}

func (s *Stream) inversion(n int, p float64) int {
	q := 1 - p
	ratio := p / q
	a := float64(n+1) * ratio
	r0 := math.Pow(q, float64(n))
	for {
		u := s.rng.Float64()
		r := r0
		for x := 0; x <= n; x++ {
			if u < r {
				return x
			}
			u -= r
			r *= a/float64(x+1) - ratio
		}
		// accumulated rounding left u above the total mass; redraw
	}
}

func (s *Stream) btrs(n int, p float64) int {
	nf := float64(n)
	q := 1 - p
	spq := math.Sqrt(nf * p * q)
	b := 1.15 + 2.53*spq
	a := -0.0873 + 0.0248*b + 0.01*p
	c := nf*p + 0.5
	vr := 0.92 - 4.2/b
	alpha := (2.83 + 5.1/b) * spq
	lpq := math.Log(p / q)
	m := math.Floor((nf + 1) * p)
	h := lgamma(m+1) + lgamma(nf-m+1)

	for {
		u := s.rng.Float64() - 0.5
		v := s.rng.Float64()
		us := 0.5 - math.Abs(u)
		if us <= 0 {
			continue
		}
		k := math.Floor((2*a/us+b)*u + c)
		if k < 0 || k > nf {
			continue
		}
		if us >= 0.07 && v <= vr {
			return int(k)
		}
		v = math.Log(v * alpha / (a/(us*us) + b))
		if v <= h-lgamma(k+1)-lgamma(nf-k+1)+(k-m)*lpq {
			return int(k)
		}
	}
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}
