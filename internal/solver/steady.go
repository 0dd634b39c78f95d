package solver

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/recorder"
	"github.com/san-kum/cosim/internal/system"
)

// Steady solves an assembly for its equilibrium: every unknown adjusted
// until every equation holds.
type Steady struct {
	asm    *system.Assembly
	newton *Newton
	rec    *recorder.Recorder
}

func NewSteady(asm *system.Assembly, cfg dynamo.SolverConfig) *Steady {
	asm.SetFeedbackLimits(cfg.FeedbackTol, cfg.MaxFeedbackPasses)
	return &Steady{asm: asm, newton: NewNewton(cfg)}
}

// SetRecorder makes Run record the converged point.
func (s *Steady) SetRecorder(r *recorder.Recorder) { s.rec = r }

func (s *Steady) Assembly() *system.Assembly { return s.asm }

// Run applies overrides, solves from the declared initial guesses and
// records the converged point as the only row. An override of an unknown
// replaces its guess for this run alone. Non-convergence is returned as a
// *dynamo.ConvergenceError together with the partial Result.
func (s *Steady) Run(ctx context.Context, overrides map[string]float64) (*Result, error) {
	if s.rec != nil {
		s.rec.Reset()
	}
	x0 := s.asm.InitialUnknowns(nil)

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if i, ok := s.asm.UnknownIndex(k); ok {
			x0[i] = overrides[k]
			continue
		}
		if err := s.asm.SetValue(k, overrides[k]); err != nil {
			return nil, fmt.Errorf("override %s: %w", k, err)
		}
	}

	res, err := s.SolveFrom(ctx, x0)
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Debug().
		Str("assembly", s.asm.Name()).
		Bool("converged", res.Converged).
		Int("iterations", res.Iterations).
		Int("passes", res.GraphPasses).
		Float64("max_residual", res.MaxResidual()).
		Msg("steady solve")
	if !res.Converged {
		return res, res.AsError()
	}
	if s.rec != nil {
		if err := s.rec.Record(0, 0); err != nil {
			return res, err
		}
	}
	return res, nil
}

// SolveFrom runs Newton from x0 without touching the recorder.
func (s *Steady) SolveFrom(ctx context.Context, x0 []float64) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", dynamo.ErrContextCanceled, err)
	}
	return s.newton.Solve(ctx, s.asm, x0)
}
