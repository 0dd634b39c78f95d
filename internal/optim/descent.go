package optim

import (
	"context"
	"errors"
	"math"

	"github.com/rs/zerolog"
)

var ErrLineSearch = errors.New("line search found no descent")

const armijo = 1e-4

// Descent is steepest descent on a central-difference gradient with
// backtracking line search.
type Descent struct {
	MaxIter int
	// Step is the largest trial step along the negative gradient.
	Step  float64
	Tol   float64
	Lower []float64
	Upper []float64
}

func NewDescent() *Descent {
	return &Descent{MaxIter: 100, Step: 1, Tol: 1e-6}
}

func (d *Descent) Minimize(ctx context.Context, obj Objective, x0 []float64, vars []string, objective string) (*Result, error) {
	log := zerolog.Ctx(ctx)
	res := &Result{X: append([]float64(nil), x0...)}
	tr := newTrace(vars, objective)

	eval := func(x []float64) (float64, error) {
		res.Evaluations++
		return obj(ctx, x)
	}

	clamp(res.X, d.Lower, d.Upper)
	fx, err := eval(res.X)
	if err != nil {
		return nil, err
	}
	res.Value = fx
	tr.add(res.X, fx)

	n := len(res.X)
	g := make([]float64, n)
	trial := make([]float64, n)
	step := d.Step

	for res.Iterations < d.MaxIter {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := d.gradient(eval, res.X, g); err != nil {
			return nil, err
		}
		d.project(res.X, g)
		gn := norm(g)
		if gn < d.Tol {
			res.Converged = true
			break
		}
		res.Iterations++

		a, accepted := step, false
		for k := 0; k < 60; k++ {
			for i := range trial {
				trial[i] = res.X[i] - a*g[i]
			}
			clamp(trial, d.Lower, d.Upper)
			ft, err := eval(trial)
			if err == nil && ft <= fx-armijo*a*gn*gn {
				accepted = true
				fx = ft
				break
			}
			a /= 2
		}
		if !accepted {
			res.Trace, _ = tr.trajectory()
			return res, ErrLineSearch
		}

		copy(res.X, trial)
		res.Value = fx
		tr.add(res.X, fx)
		log.Trace().Int("iter", res.Iterations).Float64("value", fx).Float64("grad", gn).Float64("step", a).Msg("descent")
		step = math.Min(2*a, d.Step)
	}

	// Leave the objective evaluated at the returned point.
	if _, err := eval(res.X); err != nil {
		return nil, err
	}
	res.Trace, err = tr.trajectory()
	return res, err
}

func (d *Descent) gradient(eval func([]float64) (float64, error), x, g []float64) error {
	probe := append([]float64(nil), x...)
	for i := range x {
		h := 1e-6 * math.Max(1, math.Abs(x[i]))
		probe[i] = x[i] + h
		fp, err := eval(probe)
		if err != nil {
			return err
		}
		probe[i] = x[i] - h
		fm, err := eval(probe)
		if err != nil {
			return err
		}
		probe[i] = x[i]
		g[i] = (fp - fm) / (2 * h)
	}
	return nil
}

// project drops gradient components that push a variable through the bound
// it sits on.
func (d *Descent) project(x, g []float64) {
	for i := range g {
		if i < len(d.Lower) && x[i] <= d.Lower[i] && g[i] > 0 {
			g[i] = 0
		}
		if i < len(d.Upper) && x[i] >= d.Upper[i] && g[i] < 0 {
			g[i] = 0
		}
	}
}

func norm(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}
