package models

import (
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/system"
)

// VanDerPol is the Van der Pol oscillator split into a linear spring, a
// nonlinear damper and the body they act on:
//
//	dx/dt = v
//	dv/dt = mu (1 - x²) v - x
//
// Any start other than rest settles on a limit cycle of amplitude close to 2.
type VanDerPol struct {
	Mu     float64
	X0, V0 float64
}

func NewVanDerPol() *VanDerPol {
	return &VanDerPol{Mu: 1, X0: 2, V0: 0}
}

func (m *VanDerPol) Name() string      { return "vanderpol" }
func (m *VanDerPol) Mode() dynamo.Mode { return dynamo.ModeTransient }
func (m *VanDerPol) Record() []string  { return []string{"x", "v", "damper.force"} }

func (m *VanDerPol) Build() (*system.Assembly, error) {
	b := system.NewBuilder(m.Name())
	r := b.Root()

	r.Child("spring").
		Inward("x", "m").
		Outward("force", "N").
		Compute(func(v *system.Vars) error {
			v.Set("force", -v.Get("x"))
			return nil
		}).
		Pull("x")

	r.Child("damper").
		Inward("x", "m").
		Inward("v", "m/s").
		Inward("mu", "", system.Value(m.Mu), system.Desc("nonlinear damping strength")).
		Outward("force", "N").
		Compute(func(v *system.Vars) error {
			x := v.Get("x")
			v.Set("force", v.Get("mu")*(1-x*x)*v.Get("v"))
			return nil
		}).
		Pull("x", "v", "mu")

	r.Child("body").
		Inward("v", "m/s").
		Inward("f_spring", "N").
		Inward("f_damper", "N").
		Outward("dx", "m/s").
		Outward("dv", "m/s2").
		Compute(func(v *system.Vars) error {
			v.Set("dx", v.Get("v"))
			v.Set("dv", v.Get("f_spring")+v.Get("f_damper"))
			return nil
		}).
		Pull("v")

	r.ConnectMap("spring.outwards", "body.inwards", map[string]string{"force": "f_spring"})
	r.ConnectMap("damper.outwards", "body.inwards", map[string]string{"force": "f_damper"})
	r.Set("x", m.X0)
	r.Set("v", m.V0)
	r.Transient("x", "body.dx")
	r.Transient("v", "body.dv")
	return b.Build()
}
