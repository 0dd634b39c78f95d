package system

import (
	"fmt"
	"strings"

	"github.com/agext/levenshtein"
)

type endpoint struct {
	v *variable
	p *port
}

func (n *Node) resolve(rel string) (endpoint, bool) {
	if rel == "" {
		return endpoint{}, false
	}
	parts := strings.Split(rel, ".")
	node := n
	i := 0
	for i < len(parts) {
		c := node.child(parts[i])
		if c == nil {
			break
		}
		node = c
		i++
	}

	rest := parts[i:]
	switch len(rest) {
	case 1:
		if v, ok := node.byName[rest[0]]; ok {
			return endpoint{v: v}, true
		}
		if p, ok := node.ports[rest[0]]; ok {
			return endpoint{p: p}, true
		}
	case 2:
		if v, ok := node.byName[rest[0]+"."+rest[1]]; ok {
			return endpoint{v: v}, true
		}
		if p, ok := node.ports[rest[0]]; ok && p.implicit {
			if v, ok := node.byName[rest[1]]; ok && v.port == p {
				return endpoint{v: v}, true
			}
		}
	}
	return endpoint{}, false
}

func (n *Node) resolveVar(rel string) (*variable, bool) {
	ep, ok := n.resolve(rel)
	if !ok || ep.v == nil {
		return nil, false
	}
	return ep.v, true
}

// suggest proposes the closest known path below n, if one is close enough.
func (n *Node) suggest(rel string) string {
	best, bestDist := "", -1
	n.preorder(func(m *Node) {
		prefix := strings.TrimPrefix(strings.TrimPrefix(m.path, n.path), ".")
		for _, name := range m.localNames() {
			cand := join(prefix, name)
			d := levenshtein.Distance(rel, cand, nil)
			if bestDist < 0 || d < bestDist {
				best, bestDist = cand, d
			}
		}
	})
	limit := len(rel) / 3
	if limit < 2 {
		limit = 2
	}
	if bestDist < 0 || bestDist > limit {
		return ""
	}
	return fmt.Sprintf("did you mean %q?", best)
}

// Suggest returns a hint for a path that did not resolve in a built
// assembly.
func (a *Assembly) Suggest(path string) string {
	best, bestDist := "", -1
	for _, v := range a.vars {
		d := levenshtein.Distance(path, v.path, nil)
		if bestDist < 0 || d < bestDist {
			best, bestDist = v.path, d
		}
	}
	limit := len(path) / 3
	if limit < 2 {
		limit = 2
	}
	if bestDist < 0 || bestDist > limit {
		return ""
	}
	return fmt.Sprintf("did you mean %q?", best)
}
