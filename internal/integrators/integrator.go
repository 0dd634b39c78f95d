// Package integrators provides explicit Runge-Kutta schemes for advancing
// state vectors. Each scheme keeps its stage buffers between steps, so an
// Integrator must not be shared between concurrent runs.
package integrators

import (
	"fmt"
	"sort"

	"github.com/san-kum/cosim/internal/dynamo"
)

// Derivative writes dx/dt at (t, x) into dx. x must not be retained.
type Derivative func(t float64, x, dx dynamo.State) error

type Integrator interface {
	Name() string
	Order() int
	Step(f Derivative, t float64, x dynamo.State, h float64) (dynamo.State, error)
}

var registry = map[string]func() Integrator{
	"euler":    func() Integrator { return NewEuler() },
	"midpoint": func() Integrator { return NewMidpoint() },
	"heun":     func() Integrator { return NewHeun() },
	"rk3":      func() Integrator { return NewRK3() },
	"rk4":      func() Integrator { return NewRK4() },
}

// New returns a fresh integrator by name.
func New(name string) (Integrator, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
