package system

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/expr"
)

const (
	inwards  = "inwards"
	outwards = "outwards"
)

// ComputeFunc is a component update. It reads inputs and writes outputs
// through v and must not keep v after returning.
type ComputeFunc func(v *Vars) error

// Builder collects declarations until Build freezes them.
type Builder struct {
	root   *Node
	cells  []int
	errs   *multierror.Error
	frozen bool
}

func NewBuilder(name string) *Builder {
	b := &Builder{}
	b.root = b.newNode(name, nil)
	return b
}

func (b *Builder) Root() *Node { return b.root }

func (b *Builder) fail(path string, err error, hint string) {
	if path == "" {
		path = b.root.name
	}
	b.errs = multierror.Append(b.errs, &dynamo.AssemblyError{Path: path, Err: err, Hint: hint})
}

func (b *Builder) newCell() int {
	id := len(b.cells)
	b.cells = append(b.cells, id)
	return id
}

func (b *Builder) find(c int) int {
	for b.cells[c] != c {
		b.cells[c] = b.cells[b.cells[c]]
		c = b.cells[c]
	}
	return c
}

func (b *Builder) union(x, y int) {
	rx, ry := b.find(x), b.find(y)
	if rx == ry {
		return
	}
	if ry < rx {
		rx, ry = ry, rx
	}
	b.cells[ry] = rx
}

type port struct {
	name     string
	typ      string
	dir      Direction
	implicit bool
	vars     []*variable
}

type variable struct {
	node   *Node
	local  string
	spec   VarSpec
	role   Role
	port   *port
	cell   int
	pulled bool
}

func (v *variable) path() string { return join(v.node.path, v.local) }

type pull struct {
	name string
	as   string
}

type connDecl struct {
	src, dst string
	names    []string
	mapping  map[string]string
}

type unknownDecl struct {
	path         string
	lower, upper float64
}

type eqDecl struct {
	res *expr.Residual
}

type stateDecl struct {
	path, der string
}

type setDecl struct {
	path  string
	value float64
}

// Node is a component under construction.
type Node struct {
	b        *Builder
	name     string
	path     string
	parent   *Node
	children []*Node
	ports    map[string]*port
	vars     []*variable
	byName   map[string]*variable
	compute  ComputeFunc

	pulls     []pull
	conns     []connDecl
	unknowns  []unknownDecl
	equations []eqDecl
	states    []stateDecl
	sets      []setDecl
}

func (b *Builder) newNode(name string, parent *Node) *Node {
	n := &Node{
		b:      b,
		name:   name,
		parent: parent,
		ports:  make(map[string]*port),
		byName: make(map[string]*variable),
	}
	if parent != nil {
		n.path = join(parent.path, name)
	}
	n.ports[inwards] = &port{name: inwards, dir: In, implicit: true}
	n.ports[outwards] = &port{name: outwards, dir: Out, implicit: true}
	return n
}

func (n *Node) Name() string { return n.name }

// Path is the dotted path from the root; the root itself has an empty path.
func (n *Node) Path() string { return n.path }

func (n *Node) mutable() {
	if n.b.frozen {
		panic(fmt.Errorf("%w: cannot modify %q", dynamo.ErrFrozen, n.displayPath()))
	}
}

func (n *Node) displayPath() string {
	if n.path == "" {
		return n.name
	}
	return n.path
}

func (n *Node) taken(name string) bool {
	if _, ok := n.byName[name]; ok {
		return true
	}
	if _, ok := n.ports[name]; ok {
		return true
	}
	for _, c := range n.children {
		if c.name == name {
			return true
		}
	}
	return false
}

func (n *Node) checkName(name string) bool {
	if name == "" || strings.Contains(name, ".") {
		n.b.fail(join(n.path, name), fmt.Errorf("%w: invalid name %q", dynamo.ErrDuplicateName, name), "")
		return false
	}
	if n.taken(name) {
		n.b.fail(join(n.path, name), dynamo.ErrDuplicateName, "")
		return false
	}
	return true
}

// Child declares a sub-component and returns it for further declarations.
func (n *Node) Child(name string) *Node {
	n.mutable()
	c := n.b.newNode(name, n)
	if n.checkName(name) {
		n.children = append(n.children, c)
	}
	return c
}

func (n *Node) addVar(local string, spec VarSpec, role Role, p *port) *variable {
	v := &variable{node: n, local: local, spec: spec, role: role, port: p, cell: n.b.newCell()}
	n.vars = append(n.vars, v)
	n.byName[local] = v
	if p != nil {
		p.vars = append(p.vars, v)
	}
	return v
}

// Inward declares a loose input variable.
func (n *Node) Inward(name, unit string, opts ...VarOption) *Node {
	n.mutable()
	if n.checkName(name) {
		n.addVar(name, Var(name, unit, opts...), RoleInput, n.ports[inwards])
	}
	return n
}

// Outward declares a loose output variable, written by this node's compute.
func (n *Node) Outward(name, unit string, opts ...VarOption) *Node {
	n.mutable()
	if n.checkName(name) {
		n.addVar(name, Var(name, unit, opts...), RoleOutput, n.ports[outwards])
	}
	return n
}

// Internal declares a non-ported variable owned by this node's compute.
func (n *Node) Internal(name, unit string, opts ...VarOption) *Node {
	n.mutable()
	if n.checkName(name) {
		n.addVar(name, Var(name, unit, opts...), RoleInternal, nil)
	}
	return n
}

func (n *Node) addPort(pt PortType, name string, dir Direction) {
	if !n.checkName(name) {
		return
	}
	p := &port{name: name, typ: pt.Name, dir: dir}
	n.ports[name] = p
	role := RoleInput
	if dir == Out {
		role = RoleOutput
	}
	for _, spec := range pt.Vars {
		n.addVar(name+"."+spec.Name, spec, role, p)
	}
}

func (n *Node) Input(pt PortType, name string) *Node {
	n.mutable()
	n.addPort(pt, name, In)
	return n
}

func (n *Node) Output(pt PortType, name string) *Node {
	n.mutable()
	n.addPort(pt, name, Out)
	return n
}

func (n *Node) Compute(fn ComputeFunc) *Node {
	n.mutable()
	n.compute = fn
	return n
}

// Pull exposes variables or ports of this node on its parent under the same
// names.
func (n *Node) Pull(names ...string) *Node {
	n.mutable()
	for _, name := range names {
		n.pulls = append(n.pulls, pull{name: name, as: name})
	}
	return n
}

// PullAs exposes one variable or port on the parent under another name.
func (n *Node) PullAs(name, as string) *Node {
	n.mutable()
	n.pulls = append(n.pulls, pull{name: name, as: as})
	return n
}

// Connect copies src into dst. Both are paths relative to n and name either
// two variables or two ports; with ports, names restricts the transfer to
// the listed variables.
func (n *Node) Connect(src, dst string, names ...string) *Node {
	n.mutable()
	n.conns = append(n.conns, connDecl{src: src, dst: dst, names: names})
	return n
}

// ConnectMap connects two ports with renamed variables, keyed by the source
// name.
func (n *Node) ConnectMap(src, dst string, mapping map[string]string) *Node {
	n.mutable()
	m := make(map[string]string, len(mapping))
	for k, v := range mapping {
		m[k] = v
	}
	n.conns = append(n.conns, connDecl{src: src, dst: dst, mapping: m})
	return n
}

func (n *Node) Unknown(path string, opts ...UnknownOption) *Node {
	n.mutable()
	u := unknownDecl{path: path, lower: math.Inf(-1), upper: math.Inf(1)}
	for _, opt := range opts {
		opt(&u)
	}
	n.unknowns = append(n.unknowns, u)
	return n
}

// Equation declares a residual "lhs == rhs" with paths relative to n.
func (n *Node) Equation(text string) *Node {
	n.mutable()
	res, err := expr.Parse(text)
	if err != nil {
		n.b.fail(n.path, err, "")
		return n
	}
	n.equations = append(n.equations, eqDecl{res: res})
	return n
}

// Transient marks path as a state advanced by the transient driver using
// the value of der as its time derivative.
func (n *Node) Transient(path, der string) *Node {
	n.mutable()
	n.states = append(n.states, stateDecl{path: path, der: der})
	return n
}

// Set assigns a value during assembly.
func (n *Node) Set(path string, value float64) *Node {
	n.mutable()
	n.sets = append(n.sets, setDecl{path: path, value: value})
	return n
}

func (n *Node) preorder(fn func(*Node)) {
	fn(n)
	for _, c := range n.children {
		c.preorder(fn)
	}
}

func (n *Node) postorder(fn func(*Node)) {
	for _, c := range n.children {
		c.postorder(fn)
	}
	fn(n)
}

func (n *Node) child(name string) *Node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (n *Node) localNames() []string {
	names := make([]string, 0, len(n.vars)+len(n.ports))
	for _, v := range n.vars {
		names = append(names, v.local)
	}
	for name := range n.ports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	if name == "" {
		return prefix
	}
	return prefix + "." + name
}
