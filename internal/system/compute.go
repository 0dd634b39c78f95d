package system

import (
	"fmt"
	"math"

	"github.com/san-kum/cosim/internal/dynamo"
)

// Vars is the view a ComputeFunc gets of its own component. Names are local:
// "use" for a loose variable, "T_cpu.T" for a port variable.
type Vars struct {
	a   *Assembly
	c   *component
	err error
}

// Path of the component being computed.
func (v *Vars) Path() string { return v.c.path }

func (v *Vars) Get(name string) float64 {
	s, ok := v.c.names[name]
	if !ok {
		v.fail(fmt.Errorf("%w: %s has no variable %q", dynamo.ErrUnknownPath, v.c.path, name))
		return math.NaN()
	}
	return v.a.values[s]
}

// Set writes an output or internal variable of the component.
func (v *Vars) Set(name string, x float64) {
	s, ok := v.c.writable[name]
	if !ok {
		if _, known := v.c.names[name]; known {
			v.fail(fmt.Errorf("%w: %s cannot write %q", dynamo.ErrDriven, v.c.path, name))
		} else {
			v.fail(fmt.Errorf("%w: %s has no variable %q", dynamo.ErrUnknownPath, v.c.path, name))
		}
		return
	}
	v.a.values[s] = x
}

func (v *Vars) fail(err error) {
	if v.err == nil {
		v.err = err
	}
}
