package settle

import (
	"errors"
	"fmt"
)

// ConvergenceError reports a pooled logistic fit that could not be
// completed, with enough context to tell sparse input apart from
// invariant input. It is fatal for the fitter stage.
type ConvergenceError struct {
	Reason  string
	N       int
	DaysMin float64
	DaysMax float64
	AreaMin float64
	AreaMax float64
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("settle: fit did not converge: %s (n=%d, days [%.3g, %.3g], area [%.3g, %.3g] km²)",
		e.Reason, e.N, e.DaysMin, e.DaysMax, e.AreaMin, e.AreaMax)
}

// IsConvergenceError returns true if the error (or any error in its
// chain) is a ConvergenceError.
func IsConvergenceError(err error) bool {
	var ce *ConvergenceError
	return errors.As(err, &ce)
}

// convergenceError builds a ConvergenceError describing the observation
// set that defeated the fit.
func convergenceError(reason string, days, area []float64) *ConvergenceError {
	e := &ConvergenceError{Reason: reason, N: len(days)}
	for i := range days {
		if i == 0 {
			e.DaysMin, e.DaysMax = days[0], days[0]
			e.AreaMin, e.AreaMax = area[0], area[0]
			continue
		}
		e.DaysMin = min(e.DaysMin, days[i])
		e.DaysMax = max(e.DaysMax, days[i])
		e.AreaMin = min(e.AreaMin, area[i])
		e.AreaMax = max(e.AreaMax, area[i])
	}
	return e
}
