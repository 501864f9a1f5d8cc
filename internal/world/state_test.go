package world

import (
	"math"
	"testing"

	"github.com/fieldforge/orchestrator/internal/idgen"
	"github.com/fieldforge/orchestrator/internal/scenario"
)

func TestQuaternionNormalizedIsUnit(t *testing.T) {
	q := Quaternion{X: 3, Y: 0, Z: 4, W: 0}
	n := q.Normalized()
	if math.Abs(n.Norm()-1) > QuaternionNormTolerance {
		t.Fatalf("normalized quaternion has norm %v, want ~1", n.Norm())
	}
}

func TestQuaternionNormalizedDegenerateFallsBackToIdentity(t *testing.T) {
	q := Quaternion{}
	got := q.Normalized()
	want := IdentityQuaternion()
	if got != want {
		t.Fatalf("Normalized() of zero quaternion = %v, want identity %v", got, want)
	}
}

func TestTelemetryClampBounds(t *testing.T) {
	tel := Telemetry{BatteryFrac: 1.5, HealthFrac: -0.2}
	tel.Clamp()
	if tel.BatteryFrac != 1 || tel.HealthFrac != 0 {
		t.Fatalf("Clamp() = %+v, want BatteryFrac=1 HealthFrac=0", tel)
	}
}

func TestAgentCloneIsIndependentOfSource(t *testing.T) {
	ch := uint16(7)
	a := Agent{
		ID:   1,
		Kind: scenario.KindScout,
		Comms: Comms{
			ChannelID: &ch,
			Neighbors: map[idgen.AgentID]struct{}{2: {}},
		},
	}
	clone := a.Clone()
	clone.Comms.Neighbors[3] = struct{}{}
	*clone.Comms.ChannelID = 99

	if len(a.Comms.Neighbors) != 1 {
		t.Fatalf("mutating clone's neighbor set leaked into source: %v", a.Comms.Neighbors)
	}
	if *a.Comms.ChannelID != 7 {
		t.Fatalf("mutating clone's channel id leaked into source: %v", *a.Comms.ChannelID)
	}
}

func TestAllocateAgentThenAssignPartitionOwnership(t *testing.T) {
	ws := New(8, nil)
	id, err := ws.AllocateAgent(scenario.KindScout, Pose{Orientation: IdentityQuaternion()})
	if err != nil {
		t.Fatalf("AllocateAgent: %v", err)
	}
	ws.AssignPartition(id, 2)

	view := ws.GetBackPartition(2)
	owned := view.OwnedIndices()
	if len(owned) != 1 || owned[0] != id {
		t.Fatalf("worker 2 owns %v, want [%d]", owned, id)
	}

	other := ws.GetBackPartition(0)
	if len(other.OwnedIndices()) != 0 {
		t.Fatalf("worker 0 unexpectedly owns agents after reassignment: %v", other.OwnedIndices())
	}
}
