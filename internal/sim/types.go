package sim

import (
	"errors"

	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/recorder"
)

type Options struct {
	// Init assigns free variables, normally states, before the first solve.
	Init     map[string]float64
	Schedule Schedule
	// Recorder defaults to one recording every state.
	Recorder *recorder.Recorder
}

// StepFailure is a step accepted under PolicyContinue although a nested
// solve did not converge.
type StepFailure struct {
	Step int
	Time float64
	Err  error
}

type Result struct {
	Trajectory *recorder.Trajectory
	Steps      int
	Rejected   int
	Time       float64
	Failures   []StepFailure
	Metrics    map[string]float64
	Solves     int
	Iterations int
}

func isConvergence(err error) bool {
	var ce *dynamo.ConvergenceError
	return errors.As(err, &ce)
}
