package simulation

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig marks every configuration-time failure.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrInvalidRate is returned for negative or non-finite rates and steps.
	ErrInvalidRate = errors.New("invalid rate")
	// ErrInvalidAgeRange is returned for an unusable age binning scheme.
	ErrInvalidAgeRange = errors.New("invalid age range")
	// ErrStateInvariant is returned when a transition would break S+I+R or go negative.
	ErrStateInvariant = errors.New("state invariant violated")
	// ErrSimulationDiverged wraps a state invariant failure inside a trajectory.
	ErrSimulationDiverged = errors.New("simulation diverged")
	// ErrEnsembleIncomplete is returned when a budget or cancellation stopped the ensemble early.
	ErrEnsembleIncomplete = errors.New("ensemble incomplete")
)

// ConfigError names the configuration parameter that failed validation.
type ConfigError struct {
	Param  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Param, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// InvalidRateError reports a rate or step size that cannot be converted to a probability.
type InvalidRateError struct {
	Param string
	Value float64
}

func (e *InvalidRateError) Error() string {
	if e.Param == "dt" {
		return fmt.Sprintf("invalid rate: dt must be positive and finite, got %v", e.Value)
	}
	return fmt.Sprintf("invalid rate: %s must be non-negative and finite, got %v", e.Param, e.Value)
}

func (e *InvalidRateError) Unwrap() []error { return []error{ErrInvalidRate, ErrInvalidConfig} }

// InvalidAgeRangeError reports an age binning scheme that cannot partition the range.
type InvalidAgeRangeError struct {
	AgeMin   float64
	AgeMax   float64
	AgeBreak float64
	Reason   string
}

func (e *InvalidAgeRangeError) Error() string {
	return fmt.Sprintf("invalid age range [%g, %g) by %g: %s", e.AgeMin, e.AgeMax, e.AgeBreak, e.Reason)
}

func (e *InvalidAgeRangeError) Unwrap() []error { return []error{ErrInvalidAgeRange, ErrInvalidConfig} }

// StateInvariantError describes the bin whose counts could not absorb a transition.
type StateInvariantError struct {
	Bin           int
	S, I, R       int
	Total         int
	NewInfections int
	NewRecoveries int
	Reason        string
}

func (e *StateInvariantError) Error() string {
	return fmt.Sprintf("state invariant violated in bin %d: %s (S=%d I=%d R=%d total=%d, +inf=%d +rec=%d)",
		e.Bin, e.Reason, e.S, e.I, e.R, e.Total, e.NewInfections, e.NewRecoveries)
}

func (e *StateInvariantError) Unwrap() error { return ErrStateInvariant }

// SimulationDivergedError pins an invariant failure to the trajectory, step and bin
// so the run can be reproduced from its seed.
type SimulationDivergedError struct {
	TrajectoryID int
	Seed         int64
	Step         int
	Bin          int
	Err          error
}

func (e *SimulationDivergedError) Error() string {
	return fmt.Sprintf("trajectory %d (seed %d) diverged at step %d, bin %d: %v",
		e.TrajectoryID, e.Seed, e.Step, e.Bin, e.Err)
}

func (e *SimulationDivergedError) Unwrap() []error { return []error{ErrSimulationDiverged, e.Err} }
