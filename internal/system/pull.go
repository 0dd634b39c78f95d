package system

import (
	"fmt"
	"sort"

	"github.com/san-kum/cosim/internal/dynamo"
)

func (b *Builder) applyPull(c *Node, p pull) {
	parent := c.parent
	target := join(parent.path, p.as)

	if pt, ok := c.ports[p.name]; ok && !pt.implicit {
		if existing, ok := parent.ports[p.as]; ok {
			if existing.implicit || existing.typ != pt.typ || len(existing.vars) != len(pt.vars) {
				b.fail(target, dynamo.ErrDuplicateName, fmt.Sprintf("cannot merge %s port %s into it", pt.typ, join(c.path, p.name)))
				return
			}
			for i, v := range pt.vars {
				b.union(existing.vars[i].cell, v.cell)
				if v.role == RoleOutput && existing.vars[i].pulled {
					existing.vars[i].role = RoleOutput
				}
			}
			return
		}
		if !parent.checkName(p.as) {
			return
		}
		np := &port{name: p.as, typ: pt.typ, dir: pt.dir}
		parent.ports[p.as] = np
		for _, v := range pt.vars {
			pv := parent.addVar(p.as+"."+v.spec.Name, v.spec, v.role, np)
			pv.pulled = true
			b.union(pv.cell, v.cell)
		}
		return
	}

	v, ok := c.byName[p.name]
	if !ok || v.port == nil {
		hint := c.suggest(p.name)
		if ok {
			hint = "internal variables cannot be pulled"
		}
		b.fail(join(c.path, p.name), dynamo.ErrUnknownPath, hint)
		return
	}
	if !v.port.implicit {
		b.fail(join(c.path, p.name), fmt.Errorf("%w: pull the port %s instead of one of its variables", dynamo.ErrBadConnection, v.port.name), "")
		return
	}

	if existing, ok := parent.byName[p.as]; ok {
		if existing.port == nil || !existing.port.implicit {
			b.fail(target, dynamo.ErrDuplicateName, "cannot merge "+v.path()+" into it")
			return
		}
		b.union(existing.cell, v.cell)
		if v.role == RoleOutput && existing.pulled {
			existing.role = RoleOutput
		}
		return
	}
	if !parent.checkName(p.as) {
		return
	}
	spec := v.spec
	spec.Name = p.as
	holder := parent.ports[inwards]
	if v.role == RoleOutput {
		holder = parent.ports[outwards]
	}
	pv := parent.addVar(p.as, spec, v.role, holder)
	pv.pulled = true
	b.union(pv.cell, v.cell)
}

func portVar(p *port, name string) *variable {
	for _, v := range p.vars {
		if v.spec.Name == name {
			return v
		}
	}
	return nil
}

func (b *Builder) expandConnection(n *Node, c connDecl) []pendingTransfer {
	src, ok := n.resolve(c.src)
	if !ok {
		b.fail(join(n.path, c.src), dynamo.ErrUnknownPath, n.suggest(c.src))
		return nil
	}
	dst, ok := n.resolve(c.dst)
	if !ok {
		b.fail(join(n.path, c.dst), dynamo.ErrUnknownPath, n.suggest(c.dst))
		return nil
	}
	where := join(n.path, c.dst)

	if src.v != nil && dst.v != nil {
		if len(c.names) > 0 || c.mapping != nil {
			b.fail(where, fmt.Errorf("%w: variable connections take no names", dynamo.ErrBadConnection), "")
			return nil
		}
		return []pendingTransfer{{src: src.v, dst: dst.v}}
	}
	if src.p == nil || dst.p == nil {
		b.fail(where, fmt.Errorf("%w: cannot connect a port to a single variable", dynamo.ErrBadConnection), "")
		return nil
	}

	var out []pendingTransfer
	add := func(sname, dname string) bool {
		sv, dv := portVar(src.p, sname), portVar(dst.p, dname)
		if sv == nil {
			b.fail(join(n.path, c.src+"."+sname), dynamo.ErrUnknownPath, "")
			return false
		}
		if dv == nil {
			b.fail(join(n.path, c.dst+"."+dname), dynamo.ErrUnknownPath, "")
			return false
		}
		out = append(out, pendingTransfer{src: sv, dst: dv})
		return true
	}

	switch {
	case c.mapping != nil:
		keys := make([]string, 0, len(c.mapping))
		for k := range c.mapping {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			add(k, c.mapping[k])
		}
	case len(c.names) > 0:
		for _, name := range c.names {
			add(name, name)
		}
	default:
		for _, dv := range dst.p.vars {
			if portVar(src.p, dv.spec.Name) == nil {
				if !dst.p.implicit {
					b.fail(dv.path(), fmt.Errorf("%w: no matching variable in %s", dynamo.ErrBadConnection, join(n.path, c.src)), "")
				}
				continue
			}
			add(dv.spec.Name, dv.spec.Name)
		}
		if len(out) == 0 {
			b.fail(where, fmt.Errorf("%w: no variables in common with %s", dynamo.ErrBadConnection, join(n.path, c.src)), "")
		}
	}
	return out
}
