package models

import (
	"math"

	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/system"
)

// StefanBoltzmann in W/m²/K⁴.
const StefanBoltzmann = 5.670374419e-8

// CPUTransient heats a CPU and its heat sink from ambient. The fan voltage
// follows the CPU temperature, which closes a loop through the heat sink
// contact temperature.
type CPUTransient struct {
	Use            float64
	MaxPower       float64
	CPUHeatCap     float64
	SinkHeatCap    float64
	ContactCond    float64
	Emissivity     float64
	ConvectionArea float64
	RadiationArea  float64
	TAmb           float64
}

func NewCPUTransient() *CPUTransient {
	return &CPUTransient{
		Use:            1,
		MaxPower:       500,
		CPUHeatCap:     710 * 0.1,
		SinkHeatCap:    900 * 0.2,
		ContactCond:    100,
		Emissivity:     0.8,
		ConvectionArea: 0.1,
		RadiationArea:  0.5,
		TAmb:           20,
	}
}

func (m *CPUTransient) Name() string      { return "cpu_transient" }
func (m *CPUTransient) Mode() dynamo.Mode { return dynamo.ModeTransient }

func (m *CPUTransient) Record() []string {
	return []string{"use", "T_cpu", "hsink.T_metal", "cpu.Q_out", "hsink.Q_out", "fan.V_fan"}
}

func (m *CPUTransient) Build() (*system.Assembly, error) {
	b := system.NewBuilder(m.Name())
	r := b.Root()

	r.Child("cpu").
		Inward("use", "", system.Value(m.Use), system.Desc("cpu usage")).
		Inward("max_power", "W", system.Value(m.MaxPower), system.Desc("maximum power dissipated")).
		Inward("heat_cap", "J/K", system.Value(m.CPUHeatCap)).
		Inward("T_cpu", "degC", system.Value(m.TAmb)).
		Inward("contact_cond", "W/K", system.Value(m.ContactCond), system.Desc("effective conductivity of contact")).
		Inward("T_contact", "degC", system.Value(m.TAmb), system.Desc("metal temperature")).
		Outward("dT", "K/s").
		Outward("T_control", "degC", system.Desc("temperature sent to the controller")).
		Outward("Q_out", "W", system.Desc("heat leaving cpu to heatsink")).
		Compute(func(v *system.Vars) error {
			q := v.Get("contact_cond") * (v.Get("T_cpu") - v.Get("T_contact"))
			v.Set("Q_out", q)
			v.Set("dT", (v.Get("use")*v.Get("max_power")-q)/v.Get("heat_cap"))
			v.Set("T_control", v.Get("T_cpu"))
			return nil
		}).
		Transient("T_cpu", "dT").
		Pull("use", "max_power", "T_cpu")

	r.Child("fan").
		Inward("V_fan", "V", system.Value(0)).
		Outward("h_air", "W/m2/K").
		Compute(func(v *system.Vars) error {
			v.Set("h_air", v.Get("V_fan")*10)
			return nil
		})

	r.Child("hsink").
		Inward("h_air", "W/m2/K", system.Value(0)).
		Inward("T_amb", "degC", system.Value(m.TAmb)).
		Inward("Q_in", "W", system.Value(0), system.Desc("heat coming from the cpu")).
		Inward("emissivity", "", system.Value(m.Emissivity)).
		Inward("convection_area", "m2", system.Value(m.ConvectionArea)).
		Inward("radiation_area", "m2", system.Value(m.RadiationArea)).
		Inward("heat_cap", "J/K", system.Value(m.SinkHeatCap)).
		Inward("T_metal", "degC", system.Value(m.TAmb)).
		Outward("T_contact", "degC").
		Outward("Q_out", "W", system.Desc("heat leaving heatsink to the environment")).
		Outward("dT", "K/s").
		Compute(func(v *system.Vars) error {
			tm, ta := v.Get("T_metal"), v.Get("T_amb")
			conv := v.Get("h_air") * v.Get("convection_area") * (tm - ta)
			rad := v.Get("emissivity") * StefanBoltzmann * v.Get("radiation_area") *
				(math.Pow(tm+273.15, 4) - math.Pow(ta+273.15, 4))
			v.Set("Q_out", conv+rad)
			v.Set("dT", (v.Get("Q_in")-conv-rad)/v.Get("heat_cap"))
			v.Set("T_contact", tm)
			return nil
		}).
		Transient("T_metal", "dT").
		Pull("T_amb")

	r.Child("controller").
		Inward("T_control", "degC", system.Value(m.TAmb)).
		Outward("V_fan", "V").
		Compute(func(v *system.Vars) error {
			v.Set("V_fan", math.Min(math.Max(0, v.Get("T_control")*12/40), 12))
			return nil
		})

	r.Connect("cpu.outwards", "controller.inwards", "T_control")
	r.Connect("controller.outwards", "fan.inwards", "V_fan")
	r.Connect("fan.outwards", "hsink.inwards", "h_air")
	r.Connect("hsink.outwards", "cpu.inwards", "T_contact")
	r.ConnectMap("cpu.outwards", "hsink.inwards", map[string]string{"Q_out": "Q_in"})

	return b.Build()
}
