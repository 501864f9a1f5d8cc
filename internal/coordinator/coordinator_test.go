package coordinator

import (
	"context"
	"testing"

	"github.com/fieldforge/orchestrator/internal/scenario"
	"github.com/fieldforge/orchestrator/internal/world"
)

func testScenario() scenario.Scenario {
	sc := scenario.Default()
	sc.NumWorkers = 2
	sc.PartitionGrid = [3]uint32{2, 1, 1}
	sc.MaxAgents = 16
	return sc
}

func TestPauseResumeIdempotent(t *testing.T) {
	c := New(testScenario(), nil)

	c.Pause()
	c.Pause() // idempotent: second call must not panic or double-toggle
	if !c.Paused() {
		t.Fatal("expected Paused() == true after Pause()")
	}

	c.Resume()
	c.Resume() // idempotent
	if c.Paused() {
		t.Fatal("expected Paused() == false after Resume()")
	}
}

func TestSpawnAgentAssignsOwningPartition(t *testing.T) {
	c := New(testScenario(), nil)

	// Left half of the world bounds belongs to worker 0, right half to
	// worker 1 under the 2-column slab split.
	leftPose := world.Pose{Position: [3]float64{10, 500, 50}, Orientation: world.IdentityQuaternion()}
	rightPose := world.Pose{Position: [3]float64{900, 500, 50}, Orientation: world.IdentityQuaternion()}

	leftID, err := c.SpawnAgent(scenario.KindScout, leftPose)
	if err != nil {
		t.Fatalf("spawn left: %v", err)
	}
	rightID, err := c.SpawnAgent(scenario.KindScout, rightPose)
	if err != nil {
		t.Fatalf("spawn right: %v", err)
	}

	front := c.World().GetFront()
	if front.Agents[leftID].Partition == front.Agents[rightID].Partition {
		t.Fatalf("expected agents on opposite sides of the slab split to land on different workers, both got %d",
			front.Agents[leftID].Partition)
	}
}

func TestResetClearsWorkersAndAgents(t *testing.T) {
	c := New(testScenario(), nil)
	if _, err := c.SpawnAgent(scenario.KindScout, world.Pose{Orientation: world.IdentityQuaternion()}); err != nil {
		t.Fatalf("spawn: %v", err)
	}

	c.Reset(context.Background(), testScenario())

	front := c.World().GetFront()
	for _, a := range front.Agents {
		if a.Live {
			t.Fatal("expected no live agents after Reset")
		}
	}
	if c.Paused() {
		t.Fatal("expected Paused() == false after Reset")
	}
}
