package models

import (
	"math"

	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/system"
)

// LaminarReynolds is where pipe flow is treated as turbulent.
const LaminarReynolds = 3000

// PipeNetwork pumps water from an intake reservoir through one pipe into a
// discharge reservoir. The mass flow is solved so that the pipe outlet
// pressure matches the discharge head, and the Darcy friction factor is
// solved alongside it from the Colebrook correlation.
type PipeNetwork struct {
	IntakeLevel    float64
	DischargeLevel float64
	PumpPower      float64
	Diameter       float64
	Length         float64
	Roughness      float64
	ElevationIn    float64
	ElevationOut   float64
	Density        float64
	KinViscosity   float64
	Gravity        float64
	Atmosphere     float64
}

func NewPipeNetwork() *PipeNetwork {
	return &PipeNetwork{
		IntakeLevel:    2,
		DischargeLevel: 1,
		PumpPower:      500,
		Diameter:       0.1,
		Length:         100,
		Roughness:      1e-5,
		ElevationIn:    0,
		ElevationOut:   3,
		Density:        1e3,
		KinViscosity:   1e-6,
		Gravity:        9.81,
		Atmosphere:     1e5,
	}
}

func (m *PipeNetwork) Name() string      { return "pipe_network" }
func (m *PipeNetwork) Mode() dynamo.Mode { return dynamo.ModeSteady }

func (m *PipeNetwork) Record() []string {
	return []string{"mass_flow", "pump.pressure_out", "pipe.pressure_out", "pipe.fluid.reynolds", "pipe.fluid.fd"}
}

// Colebrook evaluates the right-hand side of the Colebrook-White equation
// for a guessed friction factor.
func Colebrook(fGuess, roughness, diameter, reynolds float64) float64 {
	a := roughness / diameter / 3.7
	b := 2.51 / (reynolds * math.Sqrt(fGuess))
	c := -2 * math.Log10(a+b)
	return 1 / (c * c)
}

func (m *PipeNetwork) Build() (*system.Assembly, error) {
	b := system.NewBuilder(m.Name())
	r := b.Root()

	reservoir := func(n *system.Node, level float64) *system.Node {
		return n.
			Inward("density", "kg/m3", system.Value(m.Density)).
			Inward("level", "m", system.Value(level), system.Desc("level above the outlet")).
			Inward("gravity", "m/s2", system.Value(m.Gravity)).
			Inward("atmosphere", "Pa", system.Value(m.Atmosphere))
	}

	reservoir(r.Child("intake"), m.IntakeLevel).
		Outward("pressure_out", "Pa").
		Compute(func(v *system.Vars) error {
			v.Set("pressure_out", v.Get("atmosphere")+v.Get("level")*v.Get("gravity")*v.Get("density"))
			return nil
		}).
		Pull("density", "gravity", "atmosphere")

	r.Child("pump").
		Inward("power", "W", system.Value(m.PumpPower)).
		Inward("pressure_in", "Pa").
		Inward("mass_flow", "kg/s", system.Value(1)).
		Inward("density", "kg/m3").
		Outward("pressure_out", "Pa").
		Compute(func(v *system.Vars) error {
			v.Set("pressure_out", v.Get("pressure_in")+v.Get("power")*v.Get("density")/v.Get("mass_flow"))
			return nil
		}).
		Pull("mass_flow", "density")

	pipe := r.Child("pipe")
	pipe.Child("geo").
		Inward("diameter", "m", system.Value(m.Diameter)).
		Inward("length", "m", system.Value(m.Length)).
		Inward("elevation_in", "m", system.Value(m.ElevationIn)).
		Inward("elevation_out", "m", system.Value(m.ElevationOut)).
		Outward("area", "m2").
		Outward("elevation_change", "m").
		Compute(func(v *system.Vars) error {
			d := v.Get("diameter")
			v.Set("area", math.Pi*d*d/4)
			v.Set("elevation_change", v.Get("elevation_out")-v.Get("elevation_in"))
			return nil
		}).
		Pull("diameter", "length", "elevation_in", "elevation_out")

	pipe.Child("fluid").
		Inward("diameter", "m").
		Inward("area", "m2").
		Inward("length", "m").
		Inward("roughness", "m", system.Value(m.Roughness)).
		Inward("elevation_change", "m").
		Inward("pressure_in", "Pa").
		Inward("density", "kg/m3").
		Inward("kin_viscosity", "m2/s", system.Value(m.KinViscosity)).
		Inward("mass_flow", "kg/s").
		Inward("f_guess", "", system.Value(0.02), system.Desc("approximation of friction factor")).
		Inward("gravity", "m/s2").
		Outward("fd", "", system.Desc("Darcy factor for pipe head loss")).
		Outward("reynolds", "").
		Outward("pressure_out", "Pa").
		Outward("velocity", "m/s").
		Compute(func(v *system.Vars) error {
			d, rho := v.Get("diameter"), v.Get("density")
			vel := v.Get("mass_flow") / (v.Get("area") * rho)
			re := math.Abs(vel * d / v.Get("kin_viscosity"))
			fd := 64 / re
			if re >= LaminarReynolds {
				fd = Colebrook(v.Get("f_guess"), v.Get("roughness"), d, re)
			}
			loss := math.Copysign(1, vel) * fd * rho * v.Get("length") * vel * vel / (2 * d)
			v.Set("velocity", vel)
			v.Set("reynolds", re)
			v.Set("fd", fd)
			v.Set("pressure_out", v.Get("pressure_in")-loss-v.Get("elevation_change")*rho*v.Get("gravity"))
			return nil
		}).
		Unknown("f_guess", system.Lower(1e-4)).
		Equation("fd == f_guess").
		Pull("diameter", "length", "pressure_in", "pressure_out", "density", "mass_flow", "gravity")

	pipe.Connect("geo.outwards", "fluid.inwards", "area", "elevation_change")
	pipe.Pull("density", "mass_flow", "gravity")

	reservoir(r.Child("discharge"), m.DischargeLevel).
		Inward("pressure_in", "Pa").
		Outward("p_diff", "Pa", system.Desc("pressure difference at the fluid surface")).
		Compute(func(v *system.Vars) error {
			v.Set("p_diff", v.Get("pressure_in")-(v.Get("atmosphere")+v.Get("level")*v.Get("gravity")*v.Get("density")))
			return nil
		}).
		Equation("p_diff == 0").
		Pull("density", "gravity", "atmosphere")

	r.Connect("intake.pressure_out", "pump.pressure_in")
	r.Connect("pump.pressure_out", "pipe.pressure_in")
	r.Connect("pipe.pressure_out", "discharge.pressure_in")
	r.Unknown("mass_flow", system.Lower(1e-3))

	return b.Build()
}
