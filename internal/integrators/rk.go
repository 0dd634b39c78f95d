package integrators

import (
	"fmt"

	"github.com/san-kum/cosim/internal/dynamo"
)

// Tableau is the Butcher tableau of an explicit scheme. A is strictly lower
// triangular; row i holds the weights of stages 0..i-1.
type Tableau struct {
	A [][]float64
	B []float64
	C []float64
}

// RK runs an explicit Runge-Kutta tableau stage by stage.
type RK struct {
	name    string
	order   int
	tab     Tableau
	k       []dynamo.State
	scratch dynamo.State
}

func NewRK(name string, order int, tab Tableau) *RK {
	return &RK{name: name, order: order, tab: tab}
}

func NewEuler() *RK {
	return NewRK("euler", 1, Tableau{
		A: [][]float64{{}},
		B: []float64{1},
		C: []float64{0},
	})
}

func NewMidpoint() *RK {
	return NewRK("midpoint", 2, Tableau{
		A: [][]float64{{}, {0.5}},
		B: []float64{0, 1},
		C: []float64{0, 0.5},
	})
}

func NewHeun() *RK {
	return NewRK("heun", 2, Tableau{
		A: [][]float64{{}, {1}},
		B: []float64{0.5, 0.5},
		C: []float64{0, 1},
	})
}

// NewRK3 is Kutta's third-order method.
func NewRK3() *RK {
	return NewRK("rk3", 3, Tableau{
		A: [][]float64{{}, {0.5}, {-1, 2}},
		B: []float64{1.0 / 6, 2.0 / 3, 1.0 / 6},
		C: []float64{0, 0.5, 1},
	})
}

func NewRK4() *RK {
	return NewRK("rk4", 4, Tableau{
		A: [][]float64{{}, {0.5}, {0, 0.5}, {0, 0, 1}},
		B: []float64{1.0 / 6, 1.0 / 3, 1.0 / 3, 1.0 / 6},
		C: []float64{0, 0.5, 0.5, 1},
	})
}

func (r *RK) Name() string { return r.name }
func (r *RK) Order() int   { return r.order }

func (r *RK) ensureScratch(n int) {
	if len(r.scratch) == n && len(r.k) == len(r.tab.B) {
		return
	}
	r.k = make([]dynamo.State, len(r.tab.B))
	for i := range r.k {
		r.k[i] = make(dynamo.State, n)
	}
	r.scratch = make(dynamo.State, n)
}

// Step advances x by h. The stages run in order; a stage error stops the
// step and is returned with the stage time.
func (r *RK) Step(f Derivative, t float64, x dynamo.State, h float64) (dynamo.State, error) {
	n := len(x)
	r.ensureScratch(n)

	for s := range r.tab.B {
		copy(r.scratch, x)
		for j, a := range r.tab.A[s] {
			if a == 0 {
				continue
			}
			for i := 0; i < n; i++ {
				r.scratch[i] += h * a * r.k[j][i]
			}
		}
		ts := t + r.tab.C[s]*h
		if err := f(ts, r.scratch, r.k[s]); err != nil {
			return nil, fmt.Errorf("%s stage %d at t=%g: %w", r.name, s+1, ts, err)
		}
	}

	result := x.Clone()
	for s, b := range r.tab.B {
		if b == 0 {
			continue
		}
		for i := 0; i < n; i++ {
			result[i] += h * b * r.k[s][i]
		}
	}
	return result, nil
}
