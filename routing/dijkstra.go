// Package routing computes shortest and k-shortest simple paths over a
// topology.Store's per-priority routing cost, and ranks admitted flows
// by path overlap with a candidate route — the input the flow manager
// uses to pick demotion/reroute candidates.
//
// The single-source shortest-path core below uses a container/heap,
// lazy-decrease-key min-heap runner; k-shortest-paths (ksp.go) wraps it
// in Yen's algorithm, layering a richer algorithm on top of one
// well-tested primitive rather than reimplementing the search.
package routing

import (
	"container/heap"
	"errors"
	"fmt"

	"github.com/katalvlaran/lcdn/topology"
)

// Sentinel errors for routing queries.
var (
	// ErrNoPath indicates no path exists between the requested source
	// and destination at all.
	ErrNoPath = errors.New("routing: no path found")

	// ErrUnknownNode indicates src or dst is not a node in the store.
	ErrUnknownNode = errors.New("routing: unknown node")
)

// options configures one shortest-path search, used internally by
// Yen's algorithm to forbid previously-explored root paths and nodes.
type options struct {
	excludedArcs  map[topology.ArcID]bool
	excludedNodes map[int]bool
}

// shortestPath runs a single-source Dijkstra search from src at the
// given priority layer's cost field, constrained by opts, and
// reconstructs the path to dst as an ordered arc sequence. Ties in
// distance are broken toward the numerically smaller neighbor node id,
// an approximation of "lexicographically smallest node-id sequence"
// that only needs local information at relaxation time.
func shortestPath(store *topology.Store, priority, src, dst int, opts options) ([]topology.ArcID, bool) {
	dist := map[int]float64{src: 0}
	prevArc := make(map[int]topology.ArcID)
	visited := make(map[int]bool)

	pq := make(nodePQ, 0, 16)
	heap.Push(&pq, &nodeItem{id: src, dist: 0})

	for pq.Len() > 0 {
		item := heap.Pop(&pq).(*nodeItem)
		u := item.id
		if visited[u] {
			continue
		}
		visited[u] = true
		if u == dst {
			break
		}

		for _, arc := range store.Neighbors(u) {
			if opts.excludedArcs[arc] {
				continue
			}
			if opts.excludedNodes[arc.To] {
				continue
			}
			ls, ok := store.Get(arc, priority)
			if !ok {
				continue
			}
			newDist := dist[u] + ls.Cost
			curDist, seen := dist[arc.To]
			if !seen || newDist < curDist || (newDist == curDist && u < prevArc[arc.To].From) {
				dist[arc.To] = newDist
				prevArc[arc.To] = arc
				heap.Push(&pq, &nodeItem{id: arc.To, dist: newDist})
			}
		}
	}

	if !visited[dst] {
		return nil, false
	}

	// Reconstruct the path by walking predecessors back from dst.
	var path []topology.ArcID
	cur := dst
	for cur != src {
		arc, ok := prevArc[cur]
		if !ok {
			return nil, false
		}
		path = append([]topology.ArcID{arc}, path...)
		cur = arc.From
	}

	return path, true
}

// PathCost sums an arc path's routing cost at the given priority.
func PathCost(store *topology.Store, priority int, path []topology.ArcID) (float64, error) {
	var total float64
	for _, arc := range path {
		ls, ok := store.Get(arc, priority)
		if !ok {
			return 0, fmt.Errorf("%w: arc %s", ErrUnknownNode, arc)
		}
		total += ls.Cost
	}
	return total, nil
}

// nodeSequence renders a path as the sequence of node ids it visits,
// [src, ..., dst], used for lexicographic tie-breaking.
func nodeSequence(path []topology.ArcID) []int {
	if len(path) == 0 {
		return nil
	}
	seq := make([]int, 0, len(path)+1)
	seq = append(seq, path[0].From)
	for _, arc := range path {
		seq = append(seq, arc.To)
	}
	return seq
}

// lessLexicographic reports whether a's node sequence precedes b's.
func lessLexicographic(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// nodeItem is one entry of the lazy-decrease-key priority queue.
type nodeItem struct {
	id   int
	dist float64
}

// nodePQ is a min-heap of *nodeItem ordered by dist ascending, using a
// lazy-decrease-key pattern: relaxation pushes a fresh entry rather
// than mutating one in place, and stale entries are skipped via the
// visited set when popped.
type nodePQ []*nodeItem

func (pq nodePQ) Len() int            { return len(pq) }
func (pq nodePQ) Less(i, j int) bool  { return pq[i].dist < pq[j].dist }
func (pq nodePQ) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *nodePQ) Push(x interface{}) { *pq = append(*pq, x.(*nodeItem)) }
func (pq *nodePQ) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}
