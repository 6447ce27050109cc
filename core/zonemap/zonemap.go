// Package zonemap models the facility as an undirected graph of named zones.
// Distance between zones is the hop count of the shortest path, which is the
// metric used to rank candidate units during matching.
package zonemap

import (
	"math"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// Map is an immutable zone adjacency graph with precomputed shortest paths.
type Map struct {
	ids   map[string]int64
	paths path.AllShortest
}

// New builds a Map from the given adjacency edges. Zones appearing in any
// edge become known zones; everything else is unknown to the map.
func New(edges [][2]string) *Map {
	g := simple.NewUndirectedGraph()
	ids := make(map[string]int64)
	next := int64(1)
	node := func(name string) int64 {
		id, ok := ids[name]
		if !ok {
			id = next
			next++
			ids[name] = id
			g.AddNode(simple.Node(id))
		}
		return id
	}
	for _, e := range edges {
		from, to := node(e[0]), node(e[1])
		if from != to {
			g.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
		}
	}
	paths, _ := path.FloydWarshall(g)
	return &Map{ids: ids, paths: paths}
}

// DefaultEdges is the built-in adjacency of the airport facility. Deployments
// override it via configuration.
func DefaultEdges() [][2]string {
	return [][2]string{
		{"Terminal 1 Entrance", "Security Check"},
		{"Terminal 2 Entrance", "Security Check"},
		{"Security Check", "Terminal 1"},
		{"Security Check", "Terminal 2"},
		{"Terminal 1", "Gate 20"},
		{"Terminal 1", "Gate 24"},
		{"Gate 24", "Gate 28"},
		{"Terminal 2", "Gate 30A"},
		{"Terminal 2", "Gate A5"},
		{"Gate A5", "Gate B3"},
		{"Gate B3", "Gate C10"},
		{"Terminal 1", "Baggage Claim"},
		{"Terminal 2", "Baggage Claim"},
		{"Baggage Claim", "Docking Station"},
	}
}

// Default returns the Map of the built-in facility adjacency.
func Default() *Map { return New(DefaultEdges()) }

// Known reports whether the zone appears in the map.
func (m *Map) Known(zone string) bool {
	_, ok := m.ids[zone]
	return ok
}

// Hops returns the shortest-path hop count between two zones. The second
// return value is false when either zone is unknown or no path exists.
func (m *Map) Hops(from, to string) (int, bool) {
	if from == to {
		return 0, true
	}
	fid, ok := m.ids[from]
	if !ok {
		return 0, false
	}
	tid, ok := m.ids[to]
	if !ok {
		return 0, false
	}
	w := m.paths.Weight(fid, tid)
	if math.IsInf(w, 1) {
		return 0, false
	}
	return int(w), true
}

// Distance is Hops as a float64, with unknown or unreachable pairs mapped to
// +Inf so callers can sort candidates without a second bookkeeping path.
func (m *Map) Distance(from, to string) float64 {
	h, ok := m.Hops(from, to)
	if !ok {
		return math.Inf(1)
	}
	return float64(h)
}
