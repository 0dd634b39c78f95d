package models

import (
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/system"
)

// CPUSteady finds the CPU temperature at which the heat sink, cooled by a
// fan whose voltage follows that temperature, removes all the CPU power.
type CPUSteady struct {
	Use      float64
	MaxPower float64
	TAmb     float64
}

func NewCPUSteady() *CPUSteady {
	return &CPUSteady{
		Use:      1,
		MaxPower: 20,
		TAmb:     20,
	}
}

func (m *CPUSteady) Name() string      { return "cpu_steady" }
func (m *CPUSteady) Mode() dynamo.Mode { return dynamo.ModeSteady }

func (m *CPUSteady) Record() []string {
	return []string{"T_cpu.T", "cpu.Q_out", "hsink.Q_out", "fan.V_fan.V"}
}

func (m *CPUSteady) Build() (*system.Assembly, error) {
	b := system.NewBuilder(m.Name())
	r := b.Root()

	r.Child("cpu").
		Input(Temperature, "T_cpu").
		Inward("use", "", system.Value(m.Use), system.Desc("cpu usage")).
		Inward("max_power", "W", system.Value(m.MaxPower), system.Desc("maximum power dissipated")).
		Outward("Q_out", "W").
		Compute(func(v *system.Vars) error {
			v.Set("Q_out", v.Get("use")*v.Get("max_power"))
			return nil
		}).
		Pull("use", "max_power", "T_cpu")

	r.Child("fan").
		Input(Voltage, "V_fan").
		Output(Fluid, "air").
		Inward("T_amb", "degC", system.Value(m.TAmb)).
		Compute(func(v *system.Vars) error {
			v.Set("air.T", v.Get("T_amb"))
			v.Set("air.h", v.Get("V_fan.V")/10)
			return nil
		}).
		Pull("T_amb")

	r.Child("hsink").
		Input(Fluid, "air").
		Input(Temperature, "T_cpu").
		Outward("Q_out", "W").
		Compute(func(v *system.Vars) error {
			v.Set("Q_out", v.Get("air.h")*(v.Get("T_cpu.T")-v.Get("air.T")))
			return nil
		}).
		Pull("T_cpu")

	r.Child("controller").
		Input(Temperature, "T_cpu").
		Output(Voltage, "V_fan").
		Compute(func(v *system.Vars) error {
			v.Set("V_fan.V", v.Get("T_cpu.T")*12/40)
			return nil
		}).
		Pull("T_cpu")

	r.Connect("controller.V_fan", "fan.V_fan")
	r.Connect("fan.air", "hsink.air")

	r.Set("T_cpu.T", m.TAmb)
	r.Unknown("T_cpu.T", system.Lower(m.TAmb))
	r.Equation("cpu.Q_out == hsink.Q_out")

	return b.Build()
}
