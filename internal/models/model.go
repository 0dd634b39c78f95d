// Package models holds the physical systems shipped with cosim. Each one
// is plain client code of the assembly API.
package models

import (
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/system"
)

type Model interface {
	Name() string
	// Mode is the kind of run the model is meant for.
	Mode() dynamo.Mode
	// Record lists the paths worth recording by default.
	Record() []string
	Build() (*system.Assembly, error)
}

var (
	Temperature = system.NewPortType("Temperature", system.Var("T", "degC"))
	Voltage     = system.NewPortType("Voltage", system.Var("V", "V"))
	Fluid       = system.NewPortType("Fluid",
		system.Var("T", "degC"),
		system.Var("h", "W/K"),
	)
)
