// Package optim searches assembly inputs for the minimum of one output.
package optim

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/cosim/internal/recorder"
	"github.com/san-kum/cosim/internal/solver"
)

// Objective maps a point to the value being minimised.
type Objective func(ctx context.Context, x []float64) (float64, error)

// AssemblyObjective assigns vars, solves the assembly and reads output. The
// assembly keeps the last evaluated point.
func AssemblyObjective(steady *solver.Steady, vars []string, output string) (Objective, error) {
	asm := steady.Assembly()
	for _, v := range vars {
		if err := asm.Assignable(v); err != nil {
			return nil, err
		}
	}
	if _, err := asm.Value(output); err != nil {
		return nil, err
	}

	return func(ctx context.Context, x []float64) (float64, error) {
		if len(x) != len(vars) {
			return 0, fmt.Errorf("got %d values for %d vars", len(x), len(vars))
		}
		point := make(map[string]float64, len(vars))
		for i, v := range vars {
			point[v] = x[i]
		}
		if _, err := steady.Run(ctx, point); err != nil {
			return 0, err
		}
		return asm.Value(output)
	}, nil
}

type Result struct {
	X           []float64
	Value       float64
	Iterations  int
	Evaluations int
	Converged   bool
	// Trace holds one row per accepted point: the vars then the objective.
	Trace *recorder.Trajectory
}

// Params pairs the result with variable names.
func (r *Result) Params(vars []string) map[string]float64 {
	out := make(map[string]float64, len(vars))
	for i, v := range vars {
		if i < len(r.X) {
			out[v] = r.X[i]
		}
	}
	return out
}

type trace struct {
	columns []string
	rows    []recorder.Row
}

func newTrace(vars []string, objective string) *trace {
	return &trace{columns: append(append([]string(nil), vars...), objective)}
}

func (t *trace) add(x []float64, f float64) {
	values := append(append(make([]float64, 0, len(x)+1), x...), f)
	t.rows = append(t.rows, recorder.Row{Index: len(t.rows), Time: float64(len(t.rows)), Values: values})
}

func (t *trace) trajectory() (*recorder.Trajectory, error) {
	return recorder.FromRows(t.columns, t.rows)
}

func clamp(x, lower, upper []float64) {
	for i := range x {
		if i < len(lower) {
			x[i] = math.Max(x[i], lower[i])
		}
		if i < len(upper) {
			x[i] = math.Min(x[i], upper[i])
		}
	}
}
