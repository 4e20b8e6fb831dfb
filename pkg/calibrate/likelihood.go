// Package calibrate fits transmission and recovery rates to observed
// weekly case counts.
package calibrate

import (
	"fmt"
	"math"
)

// Likelihood names the error model of an observed count given the model's value.
type Likelihood string

const (
	// LikelihoodBinomial treats each observed count as Binomial(N, v/N).
	LikelihoodBinomial Likelihood = "binomial"
	// LikelihoodPoisson treats each observed count as Poisson(v).
	LikelihoodPoisson Likelihood = "poisson"
	// LikelihoodNormal treats each observed count as Normal(v, sigma).
	LikelihoodNormal Likelihood = "normal"
)

// probabilities are clamped away from 0 and 1 so empty windows stay finite
const minProbability = 1e-12

// LogLikelihood sums the log-likelihood of observed given model over the
// windows both series cover.
func LogLikelihood(kind Likelihood, model, observed []float64, nPeople int, sigma float64) (float64, error) {
	n := len(model)
	if len(observed) < n {
		n = len(observed)
	}
	if n == 0 {
		return 0, fmt.Errorf("no overlapping windows between model (%d) and observed (%d)", len(model), len(observed))
	}

	var ll float64
	for i := 0; i < n; i++ {
		v, k := model[i], observed[i]
		if k < 0 || math.IsNaN(k) {
			return 0, fmt.Errorf("observed window %d is invalid: %v", i, k)
		}
		switch kind {
		case LikelihoodBinomial, "":
			if nPeople <= 0 {
				return 0, fmt.Errorf("binomial likelihood needs a positive population, got %d", nPeople)
			}
			ll += binomialLogPMF(math.Round(k), float64(nPeople), clamp(v/float64(nPeople)))
		case LikelihoodPoisson:
			mu := math.Max(v, minProbability)
			ll += k*math.Log(mu) - mu - lgamma(k+1)
		case LikelihoodNormal:
			if sigma <= 0 {
				return 0, fmt.Errorf("normal likelihood needs a positive sigma, got %v", sigma)
			}
			d := k - v
			ll += -0.5*math.Log(2*math.Pi*sigma*sigma) - d*d/(2*sigma*sigma)
		default:
			return 0, fmt.Errorf("unknown likelihood %q", kind)
		}
	}
	return ll, nil
}

func binomialLogPMF(k, n, p float64) float64 {
	if k > n {
		return math.Inf(-1)
	}
	return lgamma(n+1) - lgamma(k+1) - lgamma(n-k+1) + k*math.Log(p) + (n-k)*math.Log1p(-p)
}

func clamp(p float64) float64 {
	return math.Min(math.Max(p, minProbability), 1-minProbability)
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}
