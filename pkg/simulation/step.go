package simulation

import "github.com/rmax-ai/sirsim/pkg/simulation/sampler"

// StepEngine advances a PopulationState by one step.
type StepEngine struct {
	rates  RateModel
	stream *sampler.Stream
}

func NewStepEngine(rates RateModel, stream *sampler.Stream) *StepEngine {
	return &StepEngine{rates: rates, stream: stream}
}

// Step draws Binomial(S_bin, pInfect) new infections and Binomial(I_bin,
// pRecover) new recoveries for every bin from the current snapshot, then
// applies them together. Infections are drawn for all bins first, then
// recoveries, so the stream is consumed in a fixed order.
//
// Once no one is infected the step draws nothing and returns zero deltas.
func (e *StepEngine) Step(state *PopulationState) (newInfections, newRecoveries []int, err error) {
	bins := state.BinsCount()
	newInfections = make([]int, bins)
	newRecoveries = make([]int, bins)

	iTotal := state.TotalInfected()
	if iTotal == 0 {
		return newInfections, newRecoveries, nil
	}

	pInfect := e.rates.PInfect(iTotal, state.Total())
	pRecover := e.rates.PRecover()
	for k := 0; k < bins; k++ {
		newInfections[k] = e.stream.Binomial(state.bins[k].S, pInfect)
	}
	for k := 0; k < bins; k++ {
		newRecoveries[k] = e.stream.Binomial(state.bins[k].I, pRecover)
	}

	if err := state.ApplyTransitions(newInfections, newRecoveries); err != nil {
		return nil, nil, err
	}
	return newInfections, newRecoveries, nil
}
