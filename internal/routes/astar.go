package routes

import (
	"container/heap"
	"math"

	"github.com/talgya/frontline/internal/geom"
	"github.com/talgya/frontline/internal/social"
	"github.com/talgya/frontline/internal/territory"
)

// hostileFactor multiplies the cost of entering ground held by another faction.
const hostileFactor = 3.0

type state struct {
	id    territory.ID
	depth int
}

type item struct {
	state
	g, f   float64
	parent *item
	index  int
}

// frontier orders by f, then lower depth, then lower territory id.
type frontier []*item

func (q frontier) Len() int { return len(q) }

func (q frontier) Less(i, j int) bool {
	if q[i].f != q[j].f {
		return q[i].f < q[j].f
	}
	if q[i].depth != q[j].depth {
		return q[i].depth < q[j].depth
	}
	return q[i].id < q[j].id
}

func (q frontier) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *frontier) Push(x any) {
	it := x.(*item)
	it.index = len(*q)
	*q = append(*q, it)
}

func (q *frontier) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return it
}

// edgeCost is distance × (2 − security), tripled when entering ground held
// by a faction other than the requester.
func edgeCost(l *link, to *node, faction social.FactionID) float64 {
	c := l.dist * (2 - l.security)
	if to.controller != social.Neutral && to.controller != faction {
		c *= hostileFactor
	}
	return c
}

// findPath runs A* from src to dst using at most maxHops edges. With
// direct set, every territory on the path must be held by faction.
func (g *graph) findPath(src, dst territory.ID, faction social.FactionID, maxHops int, direct bool) ([]territory.ID, bool) {
	start, ok := g.nodes[src]
	if !ok {
		return nil, false
	}
	goal, ok := g.nodes[dst]
	if !ok {
		return nil, false
	}
	if direct && (start.controller != faction || goal.controller != faction) {
		return nil, false
	}
	h := func(n *node) float64 { return geom.Dist(n.center, goal.center) }

	best := map[state]float64{{id: src}: 0}
	q := &frontier{}
	heap.Push(q, &item{state: state{id: src}, f: h(start)})

	for q.Len() > 0 {
		cur := heap.Pop(q).(*item)
		if cur.id == dst {
			return unwind(cur), true
		}
		if cur.g > best[cur.state] {
			continue
		}
		if cur.depth >= maxHops {
			continue
		}
		for _, l := range g.adj[cur.id] {
			nid := l.other(cur.id)
			next := g.nodes[nid]
			if direct && next.controller != faction {
				continue
			}
			st := state{id: nid, depth: cur.depth + 1}
			ng := cur.g + edgeCost(l, next, faction)
			if old, seen := best[st]; seen && old <= ng {
				continue
			}
			// A shallower visit that is no more expensive dominates this one.
			if dominated(best, nid, st.depth, ng) {
				continue
			}
			best[st] = ng
			heap.Push(q, &item{state: st, g: ng, f: ng + h(next), parent: cur})
		}
	}
	return nil, false
}

func dominated(best map[state]float64, id territory.ID, depth int, g float64) bool {
	for d := 0; d < depth; d++ {
		if old, ok := best[state{id: id, depth: d}]; ok && old <= g {
			return true
		}
	}
	return false
}

func unwind(it *item) []territory.ID {
	var rev []territory.ID
	for ; it != nil; it = it.parent {
		rev = append(rev, it.id)
	}
	path := make([]territory.ID, len(rev))
	for i, id := range rev {
		path[len(rev)-1-i] = id
	}
	return path
}

// pathDistance sums the edge lengths along path.
func (g *graph) pathDistance(path []territory.ID) float64 {
	total := 0.0
	for i := 1; i < len(path); i++ {
		if l, ok := g.link(path[i-1], path[i]); ok {
			total += l.dist
		}
	}
	return total
}

// profitability scores a path in [0, 10].
func (g *graph) profitability(path []territory.ID, distance, security, base float64) float64 {
	distanceFactor := geom.Clamp(10000/math.Max(distance, 1), 0.1, 2.0)
	value := 0.0
	for _, id := range path {
		value += g.nodes[id].value
	}
	mean := value / float64(len(path))
	return geom.Clamp(base*distanceFactor*2*security*(1+mean/10), 0, 10)
}
