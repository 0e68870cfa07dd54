package routing

import (
	"container/heap"
	"math"

	"github.com/dronemesh/relaynode/core/proto"
)

// ShortestPath runs A* with a zero heuristic (equivalent to Dijkstra, and
// to the original implementation's petgraph::astar call with a constant-zero
// heuristic) over the ETX-weighted graph from src to dst. It returns the
// node sequence including both endpoints, or ok=false if dst is
// unreachable. Edges with +Inf weight (PDR collapsed below Epsilon) are
// never chosen over a finite-weight alternative, but are not otherwise
// special-cased: a +Inf cost loses every comparison against a finite one,
// yet is still accepted for a node no finite path reaches, so a path
// through +Inf edges is returned when it is the only one.
func (t *Table) ShortestPath(src, dst proto.NodeID) (path []proto.NodeID, ok bool) {
	if src == dst {
		if t.HasNode(src) {
			return []proto.NodeID{src}, true
		}
		return nil, false
	}
	if !t.HasNode(src) {
		return nil, false
	}

	dist := map[proto.NodeID]float64{src: 0}
	prev := map[proto.NodeID]proto.NodeID{}
	visited := map[proto.NodeID]bool{}

	pq := &priorityQueue{{node: src, priority: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pqItem)
		if visited[cur.node] {
			continue
		}
		visited[cur.node] = true

		if cur.node == dst {
			return reconstruct(prev, src, dst), true
		}

		for nbr, weight := range t.adj[cur.node] {
			if visited[nbr] {
				continue
			}
			nd := dist[cur.node] + weight
			if existing, ok := dist[nbr]; !ok || nd < existing {
				dist[nbr] = nd
				prev[nbr] = cur.node
				heap.Push(pq, pqItem{node: nbr, priority: nd})
			}
		}
	}

	_, reached := dist[dst]
	if !reached || math.IsInf(dist[dst], 1) {
		return nil, false
	}
	return reconstruct(prev, src, dst), true
}

func reconstruct(prev map[proto.NodeID]proto.NodeID, src, dst proto.NodeID) []proto.NodeID {
	var rev []proto.NodeID
	for n := dst; ; {
		rev = append(rev, n)
		if n == src {
			break
		}
		n = prev[n]
	}
	path := make([]proto.NodeID, len(rev))
	for i, n := range rev {
		path[len(rev)-1-i] = n
	}
	return path
}

type pqItem struct {
	node     proto.NodeID
	priority float64
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].priority < pq[j].priority }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x any)         { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}
