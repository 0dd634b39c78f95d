package system

import "sort"

type transfer struct {
	src     int
	from    int
	dst     int
	srcPath string
	dstPath string
}

type named struct {
	name string
	slot int
}

type component struct {
	node      *Node
	path      string
	index     int
	fn        ComputeFunc
	names     map[string]int
	writable  map[string]int
	reads     []int
	outputs   []named
	transfers []transfer
}

type edgeKey struct{ from, to int }

func (a *Assembly) buildGraph(comps []*component, writers [][]*Node, transfers []transfer, dstOf []int) {
	byNode := make(map[*Node]*component, len(comps))
	for _, c := range comps {
		byNode[c.node] = c
	}
	writer := make([]int, len(writers))
	for s, ws := range writers {
		writer[s] = -1
		if len(ws) > 0 {
			if c, ok := byNode[ws[0]]; ok {
				writer[s] = c.index
			}
		}
	}

	n := len(comps)
	adj := make([][]int, n)
	edgeSlots := make(map[edgeKey][]int)
	readers := make([][]int, len(writers))
	addEdge := func(from, to, slot int) {
		k := edgeKey{from, to}
		if _, ok := edgeSlots[k]; !ok {
			adj[from] = append(adj[from], to)
		}
		edgeSlots[k] = append(edgeSlots[k], slot)
	}
	for _, c := range comps {
		for _, s := range c.reads {
			readers[s] = append(readers[s], c.index)
			if w := writer[s]; w >= 0 {
				addEdge(w, c.index, s)
			}
			if k := dstOf[s]; k >= 0 {
				from := transfers[k].from
				if w := writer[from]; w >= 0 {
					addEdge(w, c.index, from)
				}
			}
		}
	}
	for i := range adj {
		sort.Ints(adj[i])
	}

	// Edges into a node still on the DFS stack close a cycle.
	const (
		white = iota
		grey
		black
	)
	color := make([]int, n)
	feedback := make(map[edgeKey]bool)
	var visit func(u int)
	visit = func(u int) {
		color[u] = grey
		for _, v := range adj[u] {
			switch color[v] {
			case grey:
				feedback[edgeKey{u, v}] = true
			case white:
				visit(v)
			}
		}
		color[u] = black
	}
	for i := 0; i < n; i++ {
		if color[i] == white {
			visit(i)
		}
	}

	indeg := make([]int, n)
	for u := range adj {
		for _, v := range adj[u] {
			if !feedback[edgeKey{u, v}] {
				indeg[v]++
			}
		}
	}
	done := make([]bool, n)
	a.comps = make([]*component, 0, n)
	for len(a.comps) < n {
		next := -1
		for i := 0; i < n; i++ {
			if !done[i] && indeg[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			break
		}
		done[next] = true
		a.comps = append(a.comps, comps[next])
		for _, v := range adj[next] {
			if !feedback[edgeKey{next, v}] {
				indeg[v]--
			}
		}
	}

	keys := make([]edgeKey, 0, len(feedback))
	for k := range feedback {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].from != keys[j].from {
			return keys[i].from < keys[j].from
		}
		return keys[i].to < keys[j].to
	})
	seen := make(map[int]bool)
	for _, k := range keys {
		a.feedback = append(a.feedback, Edge{From: comps[k.from].path, To: comps[k.to].path})
		for _, s := range edgeSlots[k] {
			if !seen[s] {
				seen[s] = true
				a.fbSlots = append(a.fbSlots, s)
			}
		}
	}

	pos := make([]int, n)
	for i, c := range a.comps {
		pos[c.index] = i
	}
	for _, t := range transfers {
		first := -1
		for _, r := range readers[t.dst] {
			if first < 0 || pos[r] < pos[first] {
				first = r
			}
		}
		if first < 0 {
			a.tail = append(a.tail, t)
		} else {
			comps[first].transfers = append(comps[first].transfers, t)
		}
	}
}
