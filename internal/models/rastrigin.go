package models

import (
	"math"

	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/system"
)

// Rastrigin exposes the two-dimensional Rastrigin function as an objective
// with free inputs x and y. Its global minimum is f(0, 0) = 0.
type Rastrigin struct {
	X, Y float64
}

func NewRastrigin() *Rastrigin {
	return &Rastrigin{X: 0.5, Y: -0.5}
}

func (m *Rastrigin) Name() string      { return "rastrigin" }
func (m *Rastrigin) Mode() dynamo.Mode { return dynamo.ModeSteady }
func (m *Rastrigin) Record() []string  { return []string{"x", "y", "f"} }

func RastriginValue(x, y float64) float64 {
	return 20 + x*x + y*y - 10*math.Cos(math.Pi*x) - 10*math.Cos(math.Pi*y)
}

func (m *Rastrigin) Build() (*system.Assembly, error) {
	b := system.NewBuilder("objective")
	b.Root().
		Inward("x", "", system.Value(m.X)).
		Inward("y", "", system.Value(m.Y)).
		Outward("f", "").
		Compute(func(v *system.Vars) error {
			v.Set("f", RastriginValue(v.Get("x"), v.Get("y")))
			return nil
		})
	return b.Build()
}
