package rf

import (
	"testing"

	"github.com/fieldforge/orchestrator/internal/idgen"
)

func TestBuildTopologyFindsConnectedComponents(t *testing.T) {
	live := []idgen.AgentID{1, 2, 3, 4, 5}
	links := []LinkEdge{
		{Source: 1, Dest: 2, Quality: 0.9},
		{Source: 2, Dest: 3, Quality: 0.8},
		// 4 and 5 are isolated singletons.
	}
	topo := BuildTopology(live, links, nil)

	if topo.NumComponents() != 3 {
		t.Fatalf("NumComponents() = %d, want 3 (one triangle-free chain + two singletons)", topo.NumComponents())
	}
	if topo.LargestComponentSize() != 3 {
		t.Fatalf("LargestComponentSize() = %d, want 3", topo.LargestComponentSize())
	}

	c1, ok1 := topo.ComponentOf(1)
	c2, ok2 := topo.ComponentOf(2)
	c4, ok4 := topo.ComponentOf(4)
	if !ok1 || !ok2 || !ok4 {
		t.Fatal("expected every live agent to have an assigned component")
	}
	if c1 != c2 {
		t.Fatalf("agents 1 and 2 share a link, expected the same component, got %d and %d", c1, c2)
	}
	if c4 == c1 {
		t.Fatal("agent 4 is isolated, expected a different component from 1")
	}
}

func TestBuildTopologyKeepsMinimumQualityOnDuplicateEdges(t *testing.T) {
	live := []idgen.AgentID{1, 2}
	links := []LinkEdge{
		{Source: 1, Dest: 2, Quality: 0.9},
		{Source: 2, Dest: 1, Quality: 0.3}, // reverse direction, lower quality
	}
	topo := BuildTopology(live, links, nil)
	if len(topo.adjacency[1]) != 1 {
		t.Fatalf("expected a single deduplicated edge for agent 1, got %d", len(topo.adjacency[1]))
	}
	if got := topo.adjacency[1][0].Quality; got != 0.3 {
		t.Fatalf("expected the minimum-quality direction (0.3) to win, got %v", got)
	}
}

func TestShortestPathFindsCheaperRoute(t *testing.T) {
	live := []idgen.AgentID{1, 2, 3, 4}
	links := []LinkEdge{
		{Source: 1, Dest: 2, Quality: 1.0}, // weight 1
		{Source: 2, Dest: 4, Quality: 1.0}, // weight 1
		{Source: 1, Dest: 3, Quality: 0.01}, // weight 100
		{Source: 3, Dest: 4, Quality: 1.0},
	}
	topo := BuildTopology(live, links, nil)

	path, weight, ok := topo.ShortestPath(1, 4)
	if !ok {
		t.Fatal("expected a path between 1 and 4")
	}
	if len(path) != 3 || path[0] != 1 || path[2] != 4 {
		t.Fatalf("expected path [1 2 4], got %v", path)
	}
	if weight <= 0 || weight >= 100 {
		t.Fatalf("expected the cheap 1->2->4 route, got weight %v", weight)
	}
}

func TestShortestPathUnreachableReturnsFalse(t *testing.T) {
	live := []idgen.AgentID{1, 2, 3}
	links := []LinkEdge{{Source: 1, Dest: 2, Quality: 1.0}}
	topo := BuildTopology(live, links, nil)

	if _, _, ok := topo.ShortestPath(1, 3); ok {
		t.Fatal("expected no path to an agent in a different component")
	}
}
