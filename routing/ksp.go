package routing

import (
	"sort"

	"github.com/katalvlaran/lcdn/topology"
)

// pathKey renders a path as a comparable string key for deduplication
// inside the candidate set B.
func pathKey(path []topology.ArcID) string {
	b := make([]byte, 0, len(path)*12)
	for _, arc := range path {
		b = append(b, []byte(arc.String())...)
		b = append(b, ';')
	}
	return string(b)
}

func equalPrefix(a, b []topology.ArcID, n int) bool {
	if len(a) < n || len(b) < n {
		return false
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// candidate is one member of Yen's B set: a full path plus its
// precomputed cost, kept so the heap of candidates never needs to
// re-walk the store.
type candidate struct {
	path []topology.ArcID
	cost float64
}

// KShortestPaths returns up to k simple paths from src to dst at the
// given priority layer, ordered by ascending total routing cost (Yen's
// algorithm, built on the shortestPath primitive in dijkstra.go), then skips
// the first offset of them. Ties in total cost are broken
// lexicographically by the path's node-id sequence. If fewer than
// offset+1 paths exist in total, KShortestPaths falls back to the
// single last available path rather than returning an empty slice.
func KShortestPaths(store *topology.Store, priority, src, dst, k, offset int) ([][]topology.ArcID, error) {
	if !store.HasNode(src) || !store.HasNode(dst) {
		return nil, ErrUnknownNode
	}

	first, ok := shortestPath(store, priority, src, dst, options{})
	if !ok {
		return nil, ErrNoPath
	}

	A := [][]topology.ArcID{first}
	seen := map[string]bool{pathKey(first): true}

	var B []candidate

	for len(A) < k {
		prev := A[len(A)-1]

		for i := 0; i < len(prev); i++ {
			spurNode := prev[i].From
			rootPath := prev[:i]

			excludedArcs := make(map[topology.ArcID]bool)
			for _, p := range A {
				if equalPrefix(p, rootPath, i) && len(p) > i {
					excludedArcs[p[i]] = true
				}
			}
			excludedNodes := make(map[int]bool)
			for _, arc := range rootPath {
				excludedNodes[arc.From] = true
			}

			spurPath, ok := shortestPath(store, priority, spurNode, dst, options{
				excludedArcs:  excludedArcs,
				excludedNodes: excludedNodes,
			})
			if !ok {
				continue
			}

			total := make([]topology.ArcID, 0, len(rootPath)+len(spurPath))
			total = append(total, rootPath...)
			total = append(total, spurPath...)

			key := pathKey(total)
			if seen[key] {
				continue
			}
			cost, err := PathCost(store, priority, total)
			if err != nil {
				continue
			}
			B = append(B, candidate{path: total, cost: cost})
			seen[key] = true
		}

		if len(B) == 0 {
			break
		}

		sort.SliceStable(B, func(i, j int) bool {
			if B[i].cost != B[j].cost {
				return B[i].cost < B[j].cost
			}
			return lessLexicographic(nodeSequence(B[i].path), nodeSequence(B[j].path))
		})

		best := B[0]
		B = B[1:]
		A = append(A, best.path)
	}

	if len(A) <= offset {
		return [][]topology.ArcID{A[len(A)-1]}, nil
	}
	return A[offset:], nil
}

// FlowsRankedByOverlap ranks the keys of paths (typically flow ids) by
// descending count of arcs shared with newPath, stable on ties by
// ascending key — the candidate order rerouting tries demotions in.
func FlowsRankedByOverlap(newPath []topology.ArcID, paths map[int][]topology.ArcID) []int {
	newSet := make(map[topology.ArcID]bool, len(newPath))
	for _, arc := range newPath {
		newSet[arc] = true
	}

	ids := make([]int, 0, len(paths))
	overlap := make(map[int]int, len(paths))
	for id, path := range paths {
		ids = append(ids, id)
		count := 0
		for _, arc := range path {
			if newSet[arc] {
				count++
			}
		}
		overlap[id] = count
	}

	sort.SliceStable(ids, func(i, j int) bool {
		if overlap[ids[i]] != overlap[ids[j]] {
			return overlap[ids[i]] > overlap[ids[j]]
		}
		return ids[i] < ids[j]
	})

	return ids
}
