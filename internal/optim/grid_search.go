package optim

import (
	"context"
	"fmt"
	"math"
)

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Linspace returns n evenly spaced points from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	if n == 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + float64(i)*(hi-lo)/float64(n-1)
	}
	return out
}

// Search evaluates every grid point. Points whose evaluation fails are
// skipped; cancellation stops the search.
func (g *GridSearch) Search(ctx context.Context, obj Objective, objective string) (*Result, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, fmt.Errorf("%d ranges for %d params", len(g.ranges), len(g.paramNames))
	}

	res := &Result{Value: math.Inf(1)}
	tr := newTrace(g.paramNames, objective)
	current := make([]float64, len(g.paramNames))
	if err := g.searchRecursive(ctx, 0, current, obj, res, tr); err != nil {
		return nil, err
	}
	if res.X == nil {
		return nil, fmt.Errorf("no grid point could be evaluated")
	}
	res.Converged = true
	res.Iterations = res.Evaluations

	var err error
	res.Trace, err = tr.trajectory()
	return res, err
}

func (g *GridSearch) searchRecursive(ctx context.Context, depth int, current []float64, obj Objective, res *Result, tr *trace) error {
	if depth == len(g.paramNames) {
		if err := ctx.Err(); err != nil {
			return err
		}
		res.Evaluations++
		val, err := obj(ctx, current)
		if err != nil {
			return nil
		}
		if val < res.Value {
			res.Value = val
			res.X = append([]float64(nil), current...)
			tr.add(current, val)
		}
		return nil
	}

	for _, val := range g.ranges[depth] {
		current[depth] = val
		if err := g.searchRecursive(ctx, depth+1, current, obj, res, tr); err != nil {
			return err
		}
	}
	return nil
}
