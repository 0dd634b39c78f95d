package system

import "math"

type Role int

const (
	RoleInput Role = iota
	RoleOutput
	RoleInternal
	RoleState
)

func (r Role) String() string {
	switch r {
	case RoleInput:
		return "input"
	case RoleOutput:
		return "output"
	case RoleInternal:
		return "internal"
	case RoleState:
		return "state"
	default:
		return "unknown"
	}
}

type Direction int

const (
	In Direction = iota
	Out
)

// VarSpec describes a variable before it is placed on a component.
type VarSpec struct {
	Name     string
	Unit     string
	Desc     string
	Value    float64
	HasValue bool
}

type VarOption func(*VarSpec)

// Value gives the variable a default, which also keeps an input from being
// reported as dangling.
func Value(v float64) VarOption {
	return func(s *VarSpec) {
		s.Value = v
		s.HasValue = true
	}
}

func Desc(d string) VarOption {
	return func(s *VarSpec) { s.Desc = d }
}

func Var(name, unit string, opts ...VarOption) VarSpec {
	s := VarSpec{Name: name, Unit: unit}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// PortType is a named, ordered bundle of variables. The same type can be
// instantiated as an input or an output port.
type PortType struct {
	Name string
	Vars []VarSpec
}

func NewPortType(name string, vars ...VarSpec) PortType {
	return PortType{Name: name, Vars: vars}
}

type UnknownOption func(*unknownDecl)

func Lower(v float64) UnknownOption {
	return func(u *unknownDecl) { u.lower = v }
}

func Upper(v float64) UnknownOption {
	return func(u *unknownDecl) { u.upper = v }
}

// Variable is the read-only view of a variable in a built assembly.
type Variable struct {
	path  string
	unit  string
	desc  string
	role  Role
	owner string
	slot  int
}

func (v Variable) Path() string  { return v.path }
func (v Variable) Unit() string  { return v.unit }
func (v Variable) Desc() string  { return v.desc }
func (v Variable) Role() Role    { return v.role }
func (v Variable) Owner() string { return v.owner }

// Unknown is a free variable adjusted by the solver.
type Unknown struct {
	Path  string
	Lower float64
	Upper float64
	Init  float64
	slot  int
}

func (u Unknown) Bounded() bool {
	return !math.IsInf(u.Lower, -1) || !math.IsInf(u.Upper, 1)
}

// Clamp projects v onto [Lower, Upper] and reports whether it moved.
func (u Unknown) Clamp(v float64) (float64, bool) {
	if v < u.Lower {
		return u.Lower, true
	}
	if v > u.Upper {
		return u.Upper, true
	}
	return v, false
}

// StateVar pairs a transient state with its derivative.
type StateVar struct {
	Path       string
	Derivative string
	Init       float64
	slot       int
	der        int
}

// Edge is a dependency between two compute nodes.
type Edge struct {
	From string
	To   string
}
