package remote

import (
	"testing"

	"github.com/fieldforge/orchestrator/internal/bus"
	"github.com/fieldforge/orchestrator/internal/idgen"
	"github.com/fieldforge/orchestrator/internal/scenario"
	"github.com/fieldforge/orchestrator/internal/world"
)

func TestBoundaryTransferRoundTrip(t *testing.T) {
	want := bus.BoundaryTransfer{
		Tick: 42,
		Agents: []bus.AgentRecord{
			{
				ID: idgen.AgentID(7),
				Agent: world.Agent{
					ID:        idgen.AgentID(7),
					Kind:      scenario.KindScout,
					Partition: 3,
					Pose: world.Pose{
						Position:        [3]float64{1.5, -2.5, 10},
						Orientation:     world.Quaternion{X: 0, Y: 0, Z: 0, W: 1},
						LinearVelocity:  [3]float64{1, 0, 0},
						AngularVelocity: [3]float64{0, 0, 0.1},
					},
					Telemetry: world.Telemetry{BatteryFrac: 0.8, HealthFrac: 1.0},
					Live:      true,
				},
			},
		},
	}

	encoded, err := encodeBoundaryTransfer(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeBoundaryTransfer(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.Tick != want.Tick {
		t.Fatalf("tick mismatch: got %d want %d", got.Tick, want.Tick)
	}
	if len(got.Agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(got.Agents))
	}
	a := got.Agents[0].Agent
	wa := want.Agents[0].Agent
	if a.ID != wa.ID || a.Kind != wa.Kind || a.Partition != wa.Partition {
		t.Fatalf("identity fields mismatch: got %+v want %+v", a, wa)
	}
	if a.Pose.Position != wa.Pose.Position {
		t.Fatalf("position mismatch: got %v want %v", a.Pose.Position, wa.Pose.Position)
	}
	if a.Telemetry.BatteryFrac != wa.Telemetry.BatteryFrac {
		t.Fatalf("battery mismatch: got %v want %v", a.Telemetry.BatteryFrac, wa.Telemetry.BatteryFrac)
	}
	if a.Live != wa.Live {
		t.Fatalf("live mismatch: got %v want %v", a.Live, wa.Live)
	}
}
