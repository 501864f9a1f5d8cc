package rf

import (
	"container/heap"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/fieldforge/orchestrator/internal/idgen"
)

// Edge is one undirected graph edge built from an up-link, carrying the
// minimum-quality metric of the two directions: a link is only as good
// as its worse-performing direction.
type Edge struct {
	A, B    idgen.AgentID
	Quality float64 // higher is better, e.g. 1-PER
}

// Topology is the per-tick undirected link graph and its connected
// components, computed in O(V+E) by BFS.
type Topology struct {
	adjacency map[idgen.AgentID][]Edge
	component map[idgen.AgentID]int
	sizes     []int
}

// LinkEdge is one directed up-link as seen by BuildTopology.
type LinkEdge struct {
	Source, Dest idgen.AgentID
	Quality      float64
}

// BuildTopology constructs the undirected graph from a set of directed
// up-links plus the known live agent set (so isolated agents with no
// up-links still appear as singleton components), then runs BFS to
// assign component ids.
//
// dedupFilter is an optional bloom filter reused across ticks to
// short-circuit the duplicate-edge scan below: a link between the same
// pair recomputed identically tick-over-tick (stationary agents, no
// jamming change) bloom-tests positive and skips straight to the
// cheaper map lookup instead of always paying it. A nil filter just
// skips the fast path; correctness never depends on it, since the
// map is still consulted.
func BuildTopology(liveAgents []idgen.AgentID, links []LinkEdge, dedupFilter *bloom.BloomFilter) *Topology {
	adjacency := make(map[idgen.AgentID][]Edge, len(liveAgents))
	for _, id := range liveAgents {
		adjacency[id] = nil
	}

	seen := make(map[[2]idgen.AgentID]float64)
	for _, l := range links {
		key := edgeKey(l.Source, l.Dest)
		fp := edgeFingerprint(key, l.Quality)
		if dedupFilter != nil && dedupFilter.Test(fp) {
			if existing, ok := seen[key]; ok && existing <= l.Quality {
				continue
			}
		}
		if dedupFilter != nil {
			dedupFilter.Add(fp)
		}
		if existing, ok := seen[key]; !ok || l.Quality < existing {
			seen[key] = l.Quality
		}
	}
	for k, q := range seen {
		adjacency[k[0]] = append(adjacency[k[0]], Edge{A: k[0], B: k[1], Quality: q})
		adjacency[k[1]] = append(adjacency[k[1]], Edge{A: k[1], B: k[0], Quality: q})
	}

	t := &Topology{
		adjacency: adjacency,
		component: make(map[idgen.AgentID]int, len(liveAgents)),
	}
	t.bfsComponents(liveAgents)
	return t
}

func edgeKey(a, b idgen.AgentID) [2]idgen.AgentID {
	if a < b {
		return [2]idgen.AgentID{a, b}
	}
	return [2]idgen.AgentID{b, a}
}

func edgeFingerprint(key [2]idgen.AgentID, quality float64) []byte {
	qBucket := byte(quality * 32)
	return []byte{
		byte(key[0]), byte(key[0] >> 8), byte(key[0] >> 16), byte(key[0] >> 24),
		byte(key[1]), byte(key[1] >> 8), byte(key[1] >> 16), byte(key[1] >> 24),
		qBucket,
	}
}

func (t *Topology) bfsComponents(liveAgents []idgen.AgentID) {
	compID := 0
	for _, start := range liveAgents {
		if _, assigned := t.component[start]; assigned {
			continue
		}
		size := 0
		queue := []idgen.AgentID{start}
		t.component[start] = compID
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			size++
			for _, e := range t.adjacency[cur] {
				if _, assigned := t.component[e.B]; assigned {
					continue
				}
				t.component[e.B] = compID
				queue = append(queue, e.B)
			}
		}
		t.sizes = append(t.sizes, size)
		compID++
	}
}

// NumComponents returns the number of connected components found.
func (t *Topology) NumComponents() int { return len(t.sizes) }

// LargestComponentSize returns the size of the largest connected
// component.
func (t *Topology) LargestComponentSize() int {
	max := 0
	for _, s := range t.sizes {
		if s > max {
			max = s
		}
	}
	return max
}

// ComponentOf returns the component id assigned to an agent.
func (t *Topology) ComponentOf(id idgen.AgentID) (int, bool) {
	c, ok := t.component[id]
	return c, ok
}

// dijkstraItem is one entry in the shortest-path priority queue.
type dijkstraItem struct {
	node idgen.AgentID
	dist float64
}

type dijkstraQueue []dijkstraItem

func (q dijkstraQueue) Len() int            { return len(q) }
func (q dijkstraQueue) Less(i, j int) bool  { return q[i].dist < q[j].dist }
func (q dijkstraQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *dijkstraQueue) Push(x interface{}) { *q = append(*q, x.(dijkstraItem)) }
func (q *dijkstraQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// ShortestPath runs Dijkstra from source to dest over edge weights of
// 1/quality (a low-quality link is "long"), computed on demand only —
// this is not part of the per-tick hot path. Returns the path and total
// weight, or ok=false if dest is unreachable.
func (t *Topology) ShortestPath(source, dest idgen.AgentID) (path []idgen.AgentID, totalWeight float64, ok bool) {
	dist := map[idgen.AgentID]float64{source: 0}
	prev := map[idgen.AgentID]idgen.AgentID{}
	visited := map[idgen.AgentID]bool{}

	pq := &dijkstraQueue{{node: source, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(dijkstraItem)
		if visited[cur.node] {
			continue
		}
		visited[cur.node] = true
		if cur.node == dest {
			break
		}
		for _, e := range t.adjacency[cur.node] {
			w := edgeWeight(e.Quality)
			nd := cur.dist + w
			if existing, ok := dist[e.B]; !ok || nd < existing {
				dist[e.B] = nd
				prev[e.B] = cur.node
				heap.Push(pq, dijkstraItem{node: e.B, dist: nd})
			}
		}
	}

	finalDist, reached := dist[dest]
	if !reached {
		return nil, 0, false
	}
	// Reconstruct path.
	path = []idgen.AgentID{dest}
	for cur := dest; cur != source; {
		p, ok := prev[cur]
		if !ok {
			return nil, 0, false
		}
		path = append([]idgen.AgentID{p}, path...)
		cur = p
	}
	return path, finalDist, true
}

func edgeWeight(quality float64) float64 {
	if quality <= 1e-6 {
		return 1e6
	}
	return 1 / quality
}
