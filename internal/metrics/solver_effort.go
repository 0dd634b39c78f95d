package metrics

import "github.com/san-kum/cosim/internal/dynamo"

// SolverEffort is the mean number of Newton iterations spent per step.
type SolverEffort struct {
	name    string
	sum     int
	samples int
}

func NewSolverEffort() *SolverEffort {
	return &SolverEffort{
		name: "solver_effort",
	}
}

func (s *SolverEffort) Name() string {
	return s.name
}

func (s *SolverEffort) Observe(info dynamo.StepInfo) {
	s.sum += info.Solve.Iterations
	s.samples++
}

func (s *SolverEffort) Value() float64 {
	if s.samples == 0 {
		return 0
	}
	return float64(s.sum) / float64(s.samples)
}

func (s *SolverEffort) Reset() {
	s.sum = 0
	s.samples = 0
}
