// Package solver closes the equation system of an assembly with a
// finite-difference Newton method.
package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/system"
	"gonum.org/v1/gonum/mat"
)

// Problem is the part of an assembly the Newton iteration needs.
type Problem interface {
	Unknowns() []system.Unknown
	Equations() []string
	SetUnknownValues(x []float64) error
	Evaluate(ctx context.Context) error
	Residuals(dst []float64) ([]float64, error)
	Passes() int
}

type Newton struct {
	cfg dynamo.SolverConfig
}

func NewNewton(cfg dynamo.SolverConfig) *Newton {
	return &Newton{cfg: cfg}
}

func (n *Newton) Config() dynamo.SolverConfig { return n.cfg }

// workspace is allocated per Solve so nested solves never share buffers.
type workspace struct {
	x, xt  []float64
	f, ft  []float64
	negF   []float64
	jac    *mat.Dense
	dx     *mat.VecDense
	bounds []system.Unknown
}

func newWorkspace(us []system.Unknown) *workspace {
	m := len(us)
	ws := &workspace{
		x:      make([]float64, m),
		xt:     make([]float64, m),
		f:      make([]float64, 0, m),
		ft:     make([]float64, 0, m),
		negF:   make([]float64, m),
		bounds: us,
	}
	if m > 0 {
		ws.jac = mat.NewDense(m, m, nil)
		ws.dx = mat.NewVecDense(m, nil)
	}
	return ws
}

// Solve runs Newton from x0. The returned error is reserved for evaluation
// failures and cancellation; non-convergence is reported in the Result. The
// assembly is left evaluated at the returned iterate.
func (n *Newton) Solve(ctx context.Context, p Problem, x0 []float64) (*Result, error) {
	us := p.Unknowns()
	if len(x0) != len(us) {
		return nil, fmt.Errorf("%w: %d unknowns, got %d initial values", dynamo.ErrDimensionMismatch, len(us), len(x0))
	}

	log := zerolog.Ctx(ctx)
	startPasses := p.Passes()
	res := &Result{Equations: p.Equations()}
	for _, u := range us {
		res.UnknownPaths = append(res.UnknownPaths, u.Path)
	}

	ws := newWorkspace(us)
	for i, u := range us {
		ws.x[i], _ = u.Clamp(x0[i])
	}

	finish := func(converged bool, reason error) (*Result, error) {
		res.Converged = converged
		res.Err = reason
		res.Residuals = append([]float64(nil), ws.f...)
		res.Unknowns = append([]float64(nil), ws.x...)
		res.GraphPasses = p.Passes() - startPasses
		if !converged {
			log.Debug().Err(reason).Int("iterations", res.Iterations).Float64("max_residual", res.MaxResidual()).Msg("solve did not converge")
		}
		return res, nil
	}

	for iter := 0; ; iter++ {
		res.Iterations = iter
		f, err := n.eval(ctx, p, ws.x, ws.f)
		ws.f = f
		if err != nil {
			if stops(err) {
				return finish(false, err)
			}
			return nil, err
		}
		if len(f) != len(us) {
			return nil, fmt.Errorf("%w: %d unknowns, %d residuals", dynamo.ErrDimensionMismatch, len(us), len(f))
		}

		norm := dynamo.State(f).MaxAbs()
		log.Trace().Int("iter", iter).Float64("max_residual", norm).Msg("newton iteration")
		if norm < n.cfg.Tol {
			return finish(true, nil)
		}
		if iter >= n.cfg.MaxIter {
			return finish(false, dynamo.ErrNotConverged)
		}

		if err := n.jacobian(ctx, p, ws); err != nil {
			if stops(err) {
				return n.settle(ctx, p, ws, finish, err)
			}
			return nil, err
		}

		var lu mat.LU
		lu.Factorize(ws.jac)
		for i, v := range ws.f {
			ws.negF[i] = -v
		}
		if err := lu.SolveVecTo(ws.dx, false, mat.NewVecDense(len(ws.negF), ws.negF)); err != nil {
			return n.settle(ctx, p, ws, finish, fmt.Errorf("%w: %v", dynamo.ErrSingularJacobian, err))
		}

		moved, clamped := 0.0, false
		for j, u := range us {
			next, c := u.Clamp(ws.x[j] + n.cfg.Relax*ws.dx.AtVec(j))
			clamped = clamped || c
			moved = math.Max(moved, math.Abs(next-ws.x[j])/math.Max(1, math.Abs(ws.x[j])))
			ws.x[j] = next
		}
		if clamped && moved <= pinnedMove {
			return n.settle(ctx, p, ws, finish, dynamo.ErrBoundPinned)
		}
	}
}

// pinnedMove is the relative step below which a clamped iterate is
// considered stuck on its bound.
const pinnedMove = 1e-14

// stops reports whether err ends the iteration without being fatal.
func stops(err error) bool {
	return errors.Is(err, dynamo.ErrFeedbackUnsettled) || errors.Is(err, dynamo.ErrNotConverged)
}

// settle re-evaluates at the current iterate after finite differencing
// has left perturbed values in the tree.
func (n *Newton) settle(ctx context.Context, p Problem, ws *workspace, finish func(bool, error) (*Result, error), reason error) (*Result, error) {
	f, err := n.eval(ctx, p, ws.x, ws.f)
	ws.f = f
	if err != nil {
		if !stops(err) {
			return nil, err
		}
		reason = err
	}
	return finish(false, reason)
}

func (n *Newton) jacobian(ctx context.Context, p Problem, ws *workspace) error {
	for j, u := range ws.bounds {
		h := n.cfg.FDStep * math.Max(1, math.Abs(ws.x[j]))
		if ws.x[j]+h > u.Upper {
			h = -h
		}
		copy(ws.xt, ws.x)
		ws.xt[j] += h

		ft, err := n.eval(ctx, p, ws.xt, ws.ft)
		ws.ft = ft
		if err != nil {
			return err
		}
		for i := range ft {
			ws.jac.Set(i, j, (ft[i]-ws.f[i])/h)
		}
	}
	return nil
}

// eval sets x, evaluates the tree and computes residuals. A non-finite
// residual is reported as ErrNotConverged.
func (n *Newton) eval(ctx context.Context, p Problem, x, dst []float64) ([]float64, error) {
	dst = dst[:0]
	if err := p.SetUnknownValues(x); err != nil {
		return dst, err
	}
	if err := p.Evaluate(ctx); err != nil {
		return dst, err
	}
	f, err := p.Residuals(dst)
	if err != nil {
		return f, err
	}
	for i, v := range f {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			eq := fmt.Sprint(i)
			if eqs := p.Equations(); i < len(eqs) {
				eq = eqs[i]
			}
			return f, fmt.Errorf("%w: residual of %q is %v", dynamo.ErrNotConverged, eq, v)
		}
	}
	return f, nil
}
