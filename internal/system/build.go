package system

import (
	"fmt"
	"strings"

	"github.com/san-kum/cosim/internal/dynamo"
)

type pendingTransfer struct {
	src, dst *variable
}

// Build validates every declaration, resolves aliases and connections and
// returns the frozen assembly. All assembly errors found are returned
// together.
func (b *Builder) Build() (*Assembly, error) {
	if b.frozen {
		return nil, fmt.Errorf("%w: %s already built", dynamo.ErrFrozen, b.root.name)
	}
	b.frozen = true
	root := b.root

	if len(root.pulls) > 0 {
		b.fail(root.name, fmt.Errorf("%w: the root has no parent to pull into", dynamo.ErrBadConnection), "")
	}
	root.postorder(func(n *Node) {
		if n.parent == nil {
			return
		}
		for _, p := range n.pulls {
			b.applyPull(n, p)
		}
	})

	var pending []pendingTransfer
	root.preorder(func(n *Node) {
		for _, c := range n.conns {
			pending = append(pending, b.expandConnection(n, c)...)
		}
	})

	a := &Assembly{
		name:        root.name,
		byPath:      make(map[string]*Variable),
		unknownAt:   make(map[int]int),
		feedbackTol: dynamo.DefaultSolverConfig().FeedbackTol,
		maxFeedback: dynamo.DefaultSolverConfig().MaxFeedbackPasses,
	}
	slotOf := make(map[int]int)
	var hasValue []bool
	var members [][]*variable
	slot := func(v *variable) int { return slotOf[b.find(v.cell)] }

	root.preorder(func(n *Node) {
		for _, v := range n.vars {
			r := b.find(v.cell)
			s, ok := slotOf[r]
			if !ok {
				s = len(a.values)
				slotOf[r] = s
				a.values = append(a.values, 0)
				hasValue = append(hasValue, false)
				members = append(members, nil)
			}
			if v.spec.HasValue && !hasValue[s] {
				a.values[s] = v.spec.Value
				hasValue[s] = true
			}
			members[s] = append(members[s], v)
			pv := &Variable{path: v.path(), unit: v.spec.Unit, desc: v.spec.Desc, role: v.role, owner: n.path, slot: s}
			a.vars = append(a.vars, pv)
			a.byPath[pv.path] = pv
		}
	})
	nslots := len(a.values)
	a.driven = make([]string, nslots)

	writers := make([][]*Node, nslots)
	root.postorder(func(n *Node) {
		if n.compute == nil {
			return
		}
		for _, v := range n.vars {
			if isOwned(v) && (v.role == RoleOutput || v.role == RoleInternal) {
				s := slot(v)
				writers[s] = append(writers[s], n)
			}
		}
	})
	for s, ws := range writers {
		if len(ws) > 1 {
			names := make([]string, len(ws))
			for i, w := range ws {
				names[i] = w.displayPath()
			}
			b.fail(members[s][0].path(), dynamo.ErrMultipleWriters, "written by "+strings.Join(names, ", "))
		}
		if len(ws) > 0 {
			a.driven[s] = "written by " + ws[0].displayPath()
		}
	}

	dstOf := make([]int, nslots)
	for i := range dstOf {
		dstOf[i] = -1
	}
	var transfers []transfer
	for _, pt := range pending {
		s, d := slot(pt.src), slot(pt.dst)
		switch {
		case pt.dst.role != RoleInput:
			b.fail(pt.dst.path(), fmt.Errorf("%w: destination must be an input, got %s", dynamo.ErrBadConnection, pt.dst.role), "")
		case len(writers[d]) > 0:
			b.fail(pt.dst.path(), fmt.Errorf("%w: destination is written by %s", dynamo.ErrBadConnection, writers[d][0].displayPath()), "")
		case s == d:
			b.fail(pt.dst.path(), fmt.Errorf("%w: source and destination are the same variable", dynamo.ErrBadConnection), "")
		case dstOf[d] >= 0:
			b.fail(pt.dst.path(), dynamo.ErrDrivenTwice, "already driven by "+transfers[dstOf[d]].srcPath)
		default:
			dstOf[d] = len(transfers)
			transfers = append(transfers, transfer{src: s, from: s, dst: d, srcPath: pt.src.path(), dstPath: pt.dst.path()})
			a.driven[d] = "connected from " + pt.src.path()
		}
	}
	for i := range transfers {
		from := transfers[i].src
		seen := map[int]bool{transfers[i].dst: true}
		for dstOf[from] >= 0 {
			if seen[from] {
				b.fail(transfers[i].dstPath, fmt.Errorf("%w: connections form a cycle without a component", dynamo.ErrBadConnection), "")
				break
			}
			seen[from] = true
			from = transfers[dstOf[from]].src
		}
		transfers[i].from = from
	}

	assigned := make([]bool, nslots)
	root.preorder(func(n *Node) {
		for _, sd := range n.sets {
			v, ok := n.resolveVar(sd.path)
			if !ok {
				b.fail(join(n.path, sd.path), dynamo.ErrUnknownPath, n.suggest(sd.path))
				continue
			}
			s := slot(v)
			if a.driven[s] != "" {
				b.fail(v.path(), dynamo.ErrDriven, a.driven[s])
				continue
			}
			a.values[s] = sd.value
			assigned[s] = true
		}
	})

	isState := make([]bool, nslots)
	root.preorder(func(n *Node) {
		for _, ud := range n.unknowns {
			v, ok := n.resolveVar(ud.path)
			if !ok {
				b.fail(join(n.path, ud.path), dynamo.ErrUnknownPath, n.suggest(ud.path))
				continue
			}
			s := slot(v)
			switch {
			case a.driven[s] != "":
				b.fail(v.path(), fmt.Errorf("%w: unknown cannot be driven", dynamo.ErrDriven), a.driven[s])
			case ud.lower > ud.upper:
				b.fail(v.path(), fmt.Errorf("%w: lower bound %g above upper bound %g", dynamo.ErrBadEquation, ud.lower, ud.upper), "")
			default:
				if prev, dup := a.unknownAt[s]; dup {
					b.fail(v.path(), dynamo.ErrDuplicateName, "already an unknown as "+a.unknowns[prev].Path)
					continue
				}
				a.unknownAt[s] = len(a.unknowns)
				a.unknowns = append(a.unknowns, Unknown{Path: v.path(), Lower: ud.lower, Upper: ud.upper, Init: a.values[s], slot: s})
			}
		}
	})

	root.preorder(func(n *Node) {
		for _, sd := range n.states {
			v, ok := n.resolveVar(sd.path)
			if !ok {
				b.fail(join(n.path, sd.path), dynamo.ErrUnknownPath, n.suggest(sd.path))
				continue
			}
			der, ok := n.resolveVar(sd.der)
			if !ok {
				b.fail(join(n.path, sd.der), dynamo.ErrUnknownPath, n.suggest(sd.der))
				continue
			}
			s := slot(v)
			switch {
			case a.driven[s] != "":
				b.fail(v.path(), fmt.Errorf("%w: state cannot be driven", dynamo.ErrDriven), a.driven[s])
			case isState[s]:
				b.fail(v.path(), dynamo.ErrDuplicateName, "already a state")
			default:
				if _, ok := a.unknownAt[s]; ok {
					b.fail(v.path(), fmt.Errorf("%w: state cannot also be a solver unknown", dynamo.ErrDriven), "")
					continue
				}
				isState[s] = true
				a.states = append(a.states, StateVar{Path: v.path(), Derivative: der.path(), Init: a.values[s], slot: s, der: slot(der)})
			}
		}
	})

	root.preorder(func(n *Node) {
		for _, ed := range n.equations {
			eq := equation{res: ed.res, node: n.path, refs: make(map[string]int)}
			ok := true
			for _, ref := range ed.res.Refs() {
				v, found := n.resolveVar(ref)
				if !found {
					b.fail(join(n.path, ref), fmt.Errorf("%w in equation %q", dynamo.ErrUnknownPath, ed.res), n.suggest(ref))
					ok = false
					continue
				}
				eq.refs[ref] = slot(v)
			}
			if ok {
				a.equations = append(a.equations, eq)
			}
		}
	})

	for s, vs := range members {
		var input *variable
		for _, v := range vs {
			if v.role == RoleInput {
				input = v
				break
			}
		}
		if input == nil {
			continue
		}
		_, unknown := a.unknownAt[s]
		if hasValue[s] || assigned[s] || a.driven[s] != "" || unknown || isState[s] {
			continue
		}
		hint := ""
		if len(vs) > 1 {
			paths := make([]string, 0, len(vs)-1)
			for _, v := range vs {
				if v != input {
					paths = append(paths, v.path())
				}
			}
			hint = "aliased as " + strings.Join(paths, ", ")
		}
		b.fail(input.path(), dynamo.ErrDanglingInput, hint)
	}

	if nu, ne := len(a.unknowns), countEquations(root); nu != ne {
		b.fail(root.name, dynamo.ErrNotSquare, fmt.Sprintf("%d unknowns, %d equations", nu, ne))
	}

	for _, st := range a.states {
		for _, v := range a.vars {
			if v.slot == st.slot && v.role == RoleInput {
				v.role = RoleState
			}
		}
	}

	comps := b.components(slot)
	a.buildGraph(comps, writers, transfers, dstOf)

	if err := b.errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return a, nil
}

func countEquations(root *Node) int {
	n := 0
	root.preorder(func(m *Node) { n += len(m.equations) })
	return n
}

// isOwned reports whether v was declared by its node rather than pulled up
// from a child.
func isOwned(v *variable) bool {
	return !v.pulled
}

func (b *Builder) components(slot func(*variable) int) []*component {
	var comps []*component
	b.root.postorder(func(n *Node) {
		if n.compute == nil {
			return
		}
		c := &component{
			node:     n,
			path:     n.displayPath(),
			index:    len(comps),
			fn:       n.compute,
			names:    make(map[string]int, len(n.vars)),
			writable: make(map[string]int),
		}
		for _, v := range n.vars {
			s := slot(v)
			c.names[v.local] = s
			switch {
			case v.role == RoleInput:
				c.reads = append(c.reads, s)
			case isOwned(v):
				c.writable[v.local] = s
				c.outputs = append(c.outputs, named{name: v.local, slot: s})
			}
		}
		comps = append(comps, c)
	})
	return comps
}
