// Package policy defines the per-agent decision capability: Workers
// call Evaluate once per tick per agent. The package also provides two
// simple policies, Static and Hover; a Worker uses Hover for any agent
// that has no policy of its own.
package policy

import (
	"github.com/fieldforge/orchestrator/internal/idgen"
	"github.com/fieldforge/orchestrator/internal/world"
)

// NeighborObservation is a bounded view of one nearby agent, as seen
// from the evaluating agent's comms radius.
type NeighborObservation struct {
	ID    idgen.AgentID
	Pose  world.Pose
	Link  world.Link
	Alive bool
}

// Observation is everything a Policy sees for one tick: the agent's own
// state, its current link set, and the observable neighbor states
// within its configured radius. The worker's AI/control stage fills only
// Self and DT; Links and Neighbors are left empty.
type Observation struct {
	Self      world.Agent
	Links     []world.Link
	Neighbors []NeighborObservation
	DT        float64
}

// ControlCommand is the output of a policy evaluation. Its fields are
// grouped by the agent kinds they describe, but the physics stage does
// not look at scenario.AgentKind: it applies every field to every agent.
type ControlCommand struct {
	// Aerial kinds (Scout, Transport, Relay): thrust along body axes,
	// torque about body axes.
	ThrustN [3]float64
	TorqueNm [3]float64

	// Ground/combat kinds: throttle [-1,1], steering [-1,1].
	Throttle float64
	Steering float64

	// Armed is a weapons-armed request, copied into the agent's
	// telemetry whatever its kind.
	Armed bool
}

// Policy evaluates one agent's next control command given its current
// observation. Static and Hover below are the implementations in this
// package.
type Policy interface {
	Evaluate(obs Observation) ControlCommand
}

// Static is a trivial Policy that always returns the same command,
// useful for scenarios with no AI (e.g. ballistic test agents).
type Static struct {
	Command ControlCommand
}

// Evaluate implements Policy.
func (s Static) Evaluate(Observation) ControlCommand { return s.Command }

// Hover is a minimal aerial Policy that commands zero thrust/torque,
// letting gravity and drag (if modeled by the physics stage) settle the
// agent — a reasonable default for Scout/Transport/Relay agents with no
// scenario-supplied policy tag.
type Hover struct{}

// Evaluate implements Policy.
func (Hover) Evaluate(Observation) ControlCommand { return ControlCommand{} }
