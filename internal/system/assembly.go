package system

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/expr"
)

type equation struct {
	res  *expr.Residual
	node string
	refs map[string]int
}

// Assembly is a validated, frozen component tree. Values change on every
// pass; the structure never does.
type Assembly struct {
	name      string
	values    []float64
	vars      []*Variable
	byPath    map[string]*Variable
	driven    []string
	comps     []*component
	tail      []transfer
	feedback  []Edge
	fbSlots   []int
	unknowns  []Unknown
	unknownAt map[int]int
	equations []equation
	states    []StateVar
	passes    int

	feedbackTol float64
	maxFeedback int
}

func (a *Assembly) Name() string { return a.name }

// Paths lists every variable path, parents before children.
func (a *Assembly) Paths() []string {
	out := make([]string, len(a.vars))
	for i, v := range a.vars {
		out[i] = v.path
	}
	return out
}

func (a *Assembly) Lookup(path string) (Variable, bool) {
	v, ok := a.byPath[path]
	if !ok {
		return Variable{}, false
	}
	return *v, true
}

func (a *Assembly) unknownPath(path string) error {
	return &dynamo.AssemblyError{Path: path, Err: dynamo.ErrUnknownPath, Hint: a.Suggest(path)}
}

func (a *Assembly) Value(path string) (float64, error) {
	v, ok := a.byPath[path]
	if !ok {
		return 0, a.unknownPath(path)
	}
	return a.values[v.slot], nil
}

// MustValue is Value for paths known to exist.
func (a *Assembly) MustValue(path string) float64 {
	v, err := a.Value(path)
	if err != nil {
		panic(err)
	}
	return v
}

// SetValue assigns a free variable. Assigning a solver unknown moves its
// current value only; its declared initial guess is kept.
func (a *Assembly) SetValue(path string, value float64) error {
	v, ok := a.byPath[path]
	if !ok {
		return a.unknownPath(path)
	}
	if reason := a.driven[v.slot]; reason != "" {
		return &dynamo.AssemblyError{Path: path, Err: dynamo.ErrDriven, Hint: reason}
	}
	a.values[v.slot] = value
	return nil
}

// UnknownIndex returns the position of path in the unknown vector.
func (a *Assembly) UnknownIndex(path string) (int, bool) {
	v, ok := a.byPath[path]
	if !ok {
		return 0, false
	}
	i, ok := a.unknownAt[v.slot]
	return i, ok
}

// Assignable reports whether SetValue would accept path.
func (a *Assembly) Assignable(path string) error {
	v, ok := a.byPath[path]
	if !ok {
		return a.unknownPath(path)
	}
	if reason := a.driven[v.slot]; reason != "" {
		return &dynamo.AssemblyError{Path: path, Err: dynamo.ErrDriven, Hint: reason}
	}
	return nil
}

// SetFeedbackLimits bounds the passes Evaluate spends closing feedback loops.
func (a *Assembly) SetFeedbackLimits(tol float64, maxPasses int) {
	if tol > 0 {
		a.feedbackTol = tol
	}
	if maxPasses > 0 {
		a.maxFeedback = maxPasses
	}
}

// Passes counts graph passes since the assembly was built.
func (a *Assembly) Passes() int { return a.passes }

// Order lists compute nodes in evaluation order.
func (a *Assembly) Order() []string {
	out := make([]string, len(a.comps))
	for i, c := range a.comps {
		out[i] = c.path
	}
	return out
}

// Feedback lists the edges whose source runs after their destination.
func (a *Assembly) Feedback() []Edge {
	out := make([]Edge, len(a.feedback))
	copy(out, a.feedback)
	return out
}

// Pass runs every compute node once in evaluation order.
func (a *Assembly) Pass(ctx context.Context) error {
	a.passes++
	for _, c := range a.comps {
		for _, t := range c.transfers {
			a.values[t.dst] = a.values[t.from]
		}
		if err := a.run(c); err != nil {
			return err
		}
	}
	for _, t := range a.tail {
		a.values[t.dst] = a.values[t.from]
	}
	return nil
}

// Evaluate brings every variable up to date. Without feedback edges this is
// a single pass; otherwise passes repeat until the values carried by
// feedback edges stop changing.
func (a *Assembly) Evaluate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", dynamo.ErrContextCanceled, err)
	}
	if len(a.fbSlots) == 0 {
		return a.Pass(ctx)
	}

	prev := make([]float64, len(a.fbSlots))
	worst, worstAt := 0.0, ""
	for i := 0; i < a.maxFeedback; i++ {
		for j, s := range a.fbSlots {
			prev[j] = a.values[s]
		}
		if err := a.Pass(ctx); err != nil {
			return err
		}
		worst, worstAt = 0, ""
		for j, s := range a.fbSlots {
			d := math.Abs(a.values[s] - prev[j])
			if d > a.feedbackTol*math.Max(1, math.Abs(a.values[s])) && d > worst {
				worst, worstAt = d, a.slotPath(s)
			}
		}
		if worstAt == "" {
			return nil
		}
	}
	return fmt.Errorf("%w after %d passes: %s still moving by %.3g", dynamo.ErrFeedbackUnsettled, a.maxFeedback, worstAt, worst)
}

func (a *Assembly) slotPath(s int) string {
	for _, v := range a.vars {
		if v.slot == s {
			return v.path
		}
	}
	return "?"
}

func (a *Assembly) run(c *component) error {
	v := Vars{a: a, c: c}
	if err := c.fn(&v); err != nil {
		return &dynamo.EvaluationError{Component: c.path, Err: err}
	}
	if v.err != nil {
		return &dynamo.EvaluationError{Component: c.path, Err: v.err}
	}
	for _, o := range c.outputs {
		if x := a.values[o.slot]; math.IsNaN(x) || math.IsInf(x, 0) {
			return &dynamo.EvaluationError{Component: c.path, Err: fmt.Errorf("%w: %s = %v", dynamo.ErrInvalidState, o.name, x)}
		}
	}
	return nil
}

func (a *Assembly) Unknowns() []Unknown {
	out := make([]Unknown, len(a.unknowns))
	copy(out, a.unknowns)
	return out
}

func (a *Assembly) NumUnknowns() int { return len(a.unknowns) }

// UnknownValues reads the current unknown values into dst.
func (a *Assembly) UnknownValues(dst []float64) []float64 {
	dst = dst[:0]
	for _, u := range a.unknowns {
		dst = append(dst, a.values[u.slot])
	}
	return dst
}

// InitialUnknowns reads the declared initial guesses into dst.
func (a *Assembly) InitialUnknowns(dst []float64) []float64 {
	dst = dst[:0]
	for _, u := range a.unknowns {
		dst = append(dst, u.Init)
	}
	return dst
}

func (a *Assembly) SetUnknownValues(x []float64) error {
	if len(x) != len(a.unknowns) {
		return fmt.Errorf("%w: %d unknowns, got %d values", dynamo.ErrDimensionMismatch, len(a.unknowns), len(x))
	}
	for i, u := range a.unknowns {
		a.values[u.slot] = x[i]
	}
	return nil
}

// Equations returns the equations as written, prefixed with the declaring
// component when it is not the root.
func (a *Assembly) Equations() []string {
	out := make([]string, len(a.equations))
	for i, eq := range a.equations {
		if eq.node == "" {
			out[i] = eq.res.String()
		} else {
			out[i] = eq.node + ": " + eq.res.String()
		}
	}
	return out
}

// Residuals evaluates every equation against the current values.
func (a *Assembly) Residuals(dst []float64) ([]float64, error) {
	dst = dst[:0]
	for _, eq := range a.equations {
		refs := eq.refs
		r, err := eq.res.Eval(func(p string) (float64, bool) {
			s, ok := refs[p]
			if !ok {
				return 0, false
			}
			return a.values[s], true
		})
		if err != nil {
			return dst, &dynamo.EvaluationError{Component: eq.node, Err: err}
		}
		dst = append(dst, r)
	}
	return dst, nil
}

func (a *Assembly) States() []StateVar {
	out := make([]StateVar, len(a.states))
	copy(out, a.states)
	return out
}

func (a *Assembly) StateValues(dst dynamo.State) dynamo.State {
	dst = dst[:0]
	for _, s := range a.states {
		dst = append(dst, a.values[s.slot])
	}
	return dst
}

// ResetStates puts every state back to the value it had when the assembly
// was built.
func (a *Assembly) ResetStates() {
	for _, s := range a.states {
		a.values[s.slot] = s.Init
	}
}

func (a *Assembly) SetStateValues(x dynamo.State) error {
	if len(x) != len(a.states) {
		return fmt.Errorf("%w: %d states, got %d values", dynamo.ErrDimensionMismatch, len(a.states), len(x))
	}
	for i, s := range a.states {
		a.values[s.slot] = x[i]
	}
	return nil
}

// Derivatives reads the derivative of every state into dst.
func (a *Assembly) Derivatives(dst dynamo.State) dynamo.State {
	dst = dst[:0]
	for _, s := range a.states {
		dst = append(dst, a.values[s.der])
	}
	return dst
}
