package simulation

import "math"

// RateModel converts continuous-time hazards into per-step probabilities.
type RateModel struct {
	lambda   float64
	gamma    float64
	dt       float64
	pRecover float64
}

// NewRateModel validates the rates and step size.
func NewRateModel(lambda, gamma, dt float64) (RateModel, error) {
	if lambda < 0 || math.IsNaN(lambda) || math.IsInf(lambda, 0) {
		return RateModel{}, &InvalidRateError{Param: "lambda", Value: lambda}
	}
	if gamma < 0 || math.IsNaN(gamma) || math.IsInf(gamma, 0) {
		return RateModel{}, &InvalidRateError{Param: "gamma", Value: gamma}
	}
	if dt <= 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return RateModel{}, &InvalidRateError{Param: "dt", Value: dt}
	}
	return RateModel{
		lambda:   lambda,
		gamma:    gamma,
		dt:       dt,
		pRecover: hazardToProbability(gamma * dt),
	}, nil
}

func (m RateModel) Lambda() float64 { return m.lambda }
func (m RateModel) Gamma() float64  { return m.gamma }
func (m RateModel) Dt() float64     { return m.dt }

// PRecover is the per-step recovery probability 1 - exp(-gamma*dt).
func (m RateModel) PRecover() float64 { return m.pRecover }

// PInfect is the per-step infection probability for a susceptible under
// frequency-dependent mixing, 1 - exp(-lambda*dt*iTotal/n).
func (m RateModel) PInfect(iTotal, n int) float64 {
	if iTotal <= 0 || n <= 0 {
		return 0
	}
	return hazardToProbability(m.lambda * m.dt * float64(iTotal) / float64(n))
}

// hazardToProbability computes 1 - exp(-h) without cancellation for small h.
func hazardToProbability(h float64) float64 {
	if h <= 0 {
		return 0
	}
	return -math.Expm1(-h)
}
