package analysis

import (
	"errors"
	"fmt"
)

var (
	ErrSequence   = errors.New("operation not allowed in current simulation state")
	ErrTimeBehind = errors.New("requested time is behind the simulation clock")
	ErrConfig     = errors.New("configuration error")
)

// StepError reports a failure inside one integration step.
type StepError struct {
	Step int
	Time float64
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d at t=%.6g: %v", e.Step, e.Time, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
