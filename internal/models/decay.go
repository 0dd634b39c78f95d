package models

import (
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/system"
)

// ExponentialDecay relaxes a temperature towards ambient at rate K:
// dT/dt = -K (T - TAmb).
type ExponentialDecay struct {
	T0   float64
	K    float64
	TAmb float64
}

func NewExponentialDecay() *ExponentialDecay {
	return &ExponentialDecay{T0: 80, K: 1, TAmb: 20}
}

func (m *ExponentialDecay) Name() string      { return "decay" }
func (m *ExponentialDecay) Mode() dynamo.Mode { return dynamo.ModeTransient }
func (m *ExponentialDecay) Record() []string  { return []string{"T", "dT"} }

func (m *ExponentialDecay) Build() (*system.Assembly, error) {
	b := system.NewBuilder(m.Name())
	b.Root().
		Inward("T", "degC", system.Value(m.T0)).
		Inward("k", "1/s", system.Value(m.K)).
		Inward("T_amb", "degC", system.Value(m.TAmb)).
		Outward("dT", "K/s").
		Compute(func(v *system.Vars) error {
			v.Set("dT", -v.Get("k")*(v.Get("T")-v.Get("T_amb")))
			return nil
		}).
		Transient("T", "dT")
	return b.Build()
}
