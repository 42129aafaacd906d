// Package timeline holds the refresh-duration EWMA the orchestrator uses
// to pace manifest refreshes.
package timeline

import "math"

// EWMA is an exponentially-weighted moving average with a half-life
// expressed in sample count (the orchestrator uses half-life = 5 samples).
type EWMA struct {
	alpha    float64
	estimate float64
	total    float64
	primed   bool
}

// NewEWMA builds an estimator with the given half-life in samples.
func NewEWMA(halfLifeSamples float64) *EWMA {
	return &EWMA{alpha: 1 - math.Exp(math.Log(0.5)/halfLifeSamples)}
}

// Sample folds in one observation (seconds) and returns the updated estimate.
func (e *EWMA) Sample(value float64) float64 {
	if !e.primed {
		e.estimate = value
		e.primed = true
	} else {
		e.estimate += e.alpha * (value - e.estimate)
	}
	e.total += value
	return e.estimate
}

func (e *EWMA) Estimate() float64 { return e.estimate }
