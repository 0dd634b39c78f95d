package sim

import (
	"fmt"
	"sort"
)

// Schedule prescribes free variables as a function of time.
type Schedule interface {
	Paths() []string
	Values(t float64) map[string]float64
}

// Constant holds its assignments for the whole run.
type Constant map[string]float64

func (c Constant) Paths() []string {
	paths := make([]string, 0, len(c))
	for p := range c {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (c Constant) Values(float64) map[string]float64 { return c }

type Interp string

const (
	InterpStep   Interp = "step"
	InterpLinear Interp = "linear"
)

// Table drives one path from breakpoints. Before the first breakpoint the
// first value holds, after the last the last value holds.
type Table struct {
	Path   string
	Times  []float64
	Points []float64
	Interp Interp
}

func (tb *Table) Validate() error {
	if len(tb.Times) == 0 || len(tb.Times) != len(tb.Points) {
		return fmt.Errorf("schedule %s: %d times and %d values", tb.Path, len(tb.Times), len(tb.Points))
	}
	for i := 1; i < len(tb.Times); i++ {
		if tb.Times[i] <= tb.Times[i-1] {
			return fmt.Errorf("schedule %s: times must increase, got %g after %g", tb.Path, tb.Times[i], tb.Times[i-1])
		}
	}
	switch tb.Interp {
	case "", InterpStep, InterpLinear:
	default:
		return fmt.Errorf("schedule %s: unknown interpolation %q", tb.Path, tb.Interp)
	}
	return nil
}

func (tb *Table) Paths() []string { return []string{tb.Path} }

func (tb *Table) At(t float64) float64 {
	i := sort.SearchFloat64s(tb.Times, t)
	switch {
	case i < len(tb.Times) && tb.Times[i] == t:
		return tb.Points[i]
	case i == 0:
		return tb.Points[0]
	case i == len(tb.Times):
		return tb.Points[len(tb.Points)-1]
	}
	if tb.Interp != InterpLinear {
		return tb.Points[i-1]
	}
	t0, t1 := tb.Times[i-1], tb.Times[i]
	w := (t - t0) / (t1 - t0)
	return tb.Points[i-1] + w*(tb.Points[i]-tb.Points[i-1])
}

func (tb *Table) Values(t float64) map[string]float64 {
	return map[string]float64{tb.Path: tb.At(t)}
}

// Schedules merges several schedules; later entries win on shared paths.
type Schedules []Schedule

func (s Schedules) Paths() []string {
	seen := map[string]bool{}
	var paths []string
	for _, sc := range s {
		for _, p := range sc.Paths() {
			if !seen[p] {
				seen[p] = true
				paths = append(paths, p)
			}
		}
	}
	sort.Strings(paths)
	return paths
}

func (s Schedules) Validate() error {
	for _, sc := range s {
		if v, ok := sc.(interface{ Validate() error }); ok {
			if err := v.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s Schedules) Values(t float64) map[string]float64 {
	out := map[string]float64{}
	for _, sc := range s {
		for p, v := range sc.Values(t) {
			out[p] = v
		}
	}
	return out
}
