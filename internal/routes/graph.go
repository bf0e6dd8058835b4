package routes

import (
	"sort"

	"github.com/talgya/frontline/internal/geom"
	"github.com/talgya/frontline/internal/social"
	"github.com/talgya/frontline/internal/territory"
)

// node is the planner's read copy of a territory.
type node struct {
	id         territory.ID
	center     geom.Point
	radius     float64
	controller social.FactionID
	contested  bool
	value      float64 // strategic_value × resource_multiplier
}

// link is an undirected edge of the connection graph.
type link struct {
	a, b     territory.ID
	dist     float64
	security float64
	authored bool
}

func (l *link) other(id territory.ID) territory.ID {
	if l.a == id {
		return l.b
	}
	return l.a
}

type linkKey struct {
	lo, hi territory.ID
}

func keyOf(a, b territory.ID) linkKey {
	if a > b {
		a, b = b, a
	}
	return linkKey{lo: a, hi: b}
}

// graph is the connection graph. Not safe for concurrent use; the planner
// guards it.
type graph struct {
	nodes map[territory.ID]*node
	links map[linkKey]*link
	adj   map[territory.ID][]*link // sorted by neighbor id
}

func newGraph(ts []territory.Territory) *graph {
	g := &graph{
		nodes: make(map[territory.ID]*node, len(ts)),
		links: make(map[linkKey]*link),
		adj:   make(map[territory.ID][]*link, len(ts)),
	}
	for i := range ts {
		g.upsert(&ts[i])
	}

	ids := g.ids()
	for i, a := range ids {
		na := g.nodes[a]
		for _, b := range ids[i+1:] {
			nb := g.nodes[b]
			d := distance(na, nb)
			if d <= 1.5*max(na.radius, nb.radius) {
				g.addLink(a, b, d, false)
			}
		}
	}
	return g
}

func (g *graph) upsert(t *territory.Territory) {
	n, ok := g.nodes[t.ID]
	if !ok {
		n = &node{id: t.ID}
		g.nodes[t.ID] = n
	}
	n.center = t.Bounds.Center
	n.radius = t.Bounds.Radius
	n.controller = t.Controller
	n.contested = t.Contested
	n.value = float64(t.StrategicValue) * t.ResourceMultiplier
}

func distance(a, b *node) float64 {
	return geom.Dist(a.center, b.center)
}

func (g *graph) ids() []territory.ID {
	ids := make([]territory.ID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// addLink adds an edge unless one already exists. It reports whether the
// edge is new.
func (g *graph) addLink(a, b territory.ID, dist float64, authored bool) bool {
	k := keyOf(a, b)
	if l, ok := g.links[k]; ok {
		l.authored = l.authored || authored
		return false
	}
	l := &link{a: k.lo, b: k.hi, dist: dist, authored: authored}
	l.security = g.security(l)
	g.links[k] = l
	g.insertAdj(a, l)
	g.insertAdj(b, l)
	return true
}

func (g *graph) insertAdj(id territory.ID, l *link) {
	list := g.adj[id]
	other := l.other(id)
	i := sort.Search(len(list), func(i int) bool { return list[i].other(id) >= other })
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = l
	g.adj[id] = list
}

// security applies the edge security rule to the current node states.
func (g *graph) security(l *link) float64 {
	from, to := g.nodes[l.a], g.nodes[l.b]
	sec := 1.0
	if from.contested || to.contested {
		sec *= 0.3
	}
	if from.controller != to.controller && from.controller != social.Neutral && to.controller != social.Neutral {
		sec *= 0.1
	}
	if from.controller == to.controller && from.controller != social.Neutral {
		sec *= 1.2
	}
	return geom.Clamp(sec, 0, 1)
}

// refresh recomputes the security of every edge touching id.
func (g *graph) refresh(id territory.ID) {
	for _, l := range g.adj[id] {
		l.security = g.security(l)
	}
}

func (g *graph) refreshAll() {
	for _, l := range g.links {
		l.security = g.security(l)
	}
}

func (g *graph) link(a, b territory.ID) (*link, bool) {
	l, ok := g.links[keyOf(a, b)]
	return l, ok
}

// pathSecurity returns the mean edge security along path and whether every
// hop is still an edge.
func (g *graph) pathSecurity(path []territory.ID) (float64, bool) {
	if len(path) < 2 {
		return 1, len(path) == 1
	}
	total := 0.0
	for i := 1; i < len(path); i++ {
		l, ok := g.link(path[i-1], path[i])
		if !ok {
			return 0, false
		}
		total += l.security
	}
	return total / float64(len(path)-1), true
}
