// Package pathgraph implements the directed token graph and shortest-path
// swap routing of spec §4.6/C6. Nodes are tokens; edges are directed pool
// legs weighted by inverse effective rate, so shortest-weight path
// approximates the best exchange route. The graph owns no pool data beyond
// ids and rates (spec §9: "cycles in ownership do not arise in the core").
package pathgraph

import (
	"container/heap"
	"math"

	"github.com/ammtrader/ammtrader/internal/errs"
)

// Edge is one directed pool leg: swapping In for Out through PoolID at the
// given effective rate (out-per-in, used only to weight the edge).
type Edge struct {
	PoolID string
	In     string
	Out    string
	Rate   float64
}

// Graph is a directed multigraph collapsed to the best-priced edge between
// any two tokens, per spec §4.6 ("multi-edge parallel pools keep only the
// best-priced edge at graph-build time").
type Graph struct {
	adj map[string]map[string]Edge
}

// New builds a graph from a flat edge list, keeping only the best (highest
// rate) edge between any ordered token pair.
func New(edges []Edge) *Graph {
	g := &Graph{adj: map[string]map[string]Edge{}}
	for _, e := range edges {
		if e.In == e.Out {
			continue
		}
		if g.adj[e.In] == nil {
			g.adj[e.In] = map[string]Edge{}
		}
		existing, ok := g.adj[e.In][e.Out]
		if !ok || e.Rate > existing.Rate {
			g.adj[e.In][e.Out] = e
		}
	}
	return g
}

// pqItem is one entry in the Dijkstra frontier.
type pqItem struct {
	token string
	dist  float64
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].dist < pq[j].dist }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// ShortestPaths is the result of update_graph(start): every reachable
// token's distance and the edge used to reach it on the shortest path.
type ShortestPaths struct {
	start    string
	dist     map[string]float64
	prevEdge map[string]Edge
}

// UpdateGraph runs single-source Dijkstra from start over non-negative edge
// weights (inverse rate), caching the path to every reachable target.
func (g *Graph) UpdateGraph(start string) *ShortestPaths {
	dist := map[string]float64{start: 0}
	prevEdge := map[string]Edge{}
	visited := map[string]bool{}

	pq := &priorityQueue{{token: start, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pqItem)
		if visited[cur.token] {
			continue
		}
		visited[cur.token] = true

		for out, edge := range g.adj[cur.token] {
			if edge.Rate <= 0 {
				continue
			}
			weight := 1.0 / edge.Rate
			nd := cur.dist + weight
			if existing, ok := dist[out]; !ok || nd < existing {
				dist[out] = nd
				prevEdge[out] = edge
				heap.Push(pq, pqItem{token: out, dist: nd})
			}
		}
	}

	return &ShortestPaths{start: start, dist: dist, prevEdge: prevEdge}
}

// Reachable reports whether goal is reachable from the start token this
// ShortestPaths was computed for.
func (sp *ShortestPaths) Reachable(goal string) bool {
	if goal == sp.start {
		return true
	}
	_, ok := sp.dist[goal]
	return ok
}

// GetPath yields the concrete ordered sequence of edges (pool legs) from
// start to goal. An empty, non-error result for goal == start represents
// the trivial zero-hop path.
func (sp *ShortestPaths) GetPath(goal string) ([]Edge, error) {
	if goal == sp.start {
		return nil, nil
	}
	if !sp.Reachable(goal) {
		return nil, errs.NewDomain("pathgraph.GetPath", errBadPath(sp.start, goal))
	}
	var path []Edge
	cur := goal
	for cur != sp.start {
		edge, ok := sp.prevEdge[cur]
		if !ok {
			return nil, errs.NewDomain("pathgraph.GetPath", errBadPath(sp.start, goal))
		}
		path = append([]Edge{edge}, path...)
		cur = edge.In
	}
	return path, nil
}

// Distance returns the accumulated inverse-rate weight to goal, or +Inf if
// unreachable.
func (sp *ShortestPaths) Distance(goal string) float64 {
	if goal == sp.start {
		return 0
	}
	d, ok := sp.dist[goal]
	if !ok {
		return math.Inf(1)
	}
	return d
}

type badPathErr struct {
	start, goal string
}

func (e badPathErr) Error() string {
	return "no path from " + e.start + " to " + e.goal
}

func errBadPath(start, goal string) error { return badPathErr{start: start, goal: goal} }
