// Package world holds the canonical agent/link/channel/jammer state and
// the double-buffered WorldState container that is the single source of
// truth for one simulation run.
//
// Coordinate frame: NWU, right-handed, metres, z-up, origin at the
// scenario's reference geodetic point. Every engine in this module
// produces and consumes this frame; conversion to a render subscriber's
// conventions happens exactly once, in the transport layer, on egress.
package world

import (
	"math"

	"github.com/fieldforge/orchestrator/internal/idgen"
	"github.com/fieldforge/orchestrator/internal/scenario"
)

// Quaternion is a unit rotation quaternion, x,y,z,w order.
type Quaternion struct {
	X, Y, Z, W float64
}

// IdentityQuaternion returns the no-rotation quaternion.
func IdentityQuaternion() Quaternion { return Quaternion{0, 0, 0, 1} }

// Norm returns the Euclidean norm of the quaternion.
func (q Quaternion) Norm() float64 {
	return math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
}

// Normalized returns q scaled to unit norm; the identity quaternion if q
// is degenerate (zero norm).
func (q Quaternion) Normalized() Quaternion {
	n := q.Norm()
	if n < 1e-12 {
		return IdentityQuaternion()
	}
	return Quaternion{q.X / n, q.Y / n, q.Z / n, q.W / n}
}

// QuaternionNormTolerance bounds how far ‖q‖ may drift from 1 before the
// agent is considered to violate the unit-quaternion invariant.
const QuaternionNormTolerance = 1e-6

// Pose is an agent's position, orientation, and velocities in the
// canonical frame.
type Pose struct {
	Position        [3]float64
	Orientation     Quaternion
	LinearVelocity  [3]float64
	AngularVelocity [3]float64
}

// Telemetry is an agent's health/energy/RF self-report.
type Telemetry struct {
	BatteryFrac float64
	HealthFrac  float64
	Armed       bool
	SignalDBm   float64
}

// Clamp bounds BatteryFrac and HealthFrac to [0,1], per spec invariant.
func (t *Telemetry) Clamp() {
	t.BatteryFrac = clamp01(t.BatteryFrac)
	t.HealthFrac = clamp01(t.HealthFrac)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Comms is an agent's per-tick radio assignment and connectivity state.
type Comms struct {
	ChannelID    *uint16
	JammedLastTick bool
	Neighbors    map[idgen.AgentID]struct{}
}

// CloneComms deep-copies a Comms value, including its neighbor set.
func CloneComms(c Comms) Comms {
	out := Comms{JammedLastTick: c.JammedLastTick}
	if c.ChannelID != nil {
		id := *c.ChannelID
		out.ChannelID = &id
	}
	if c.Neighbors != nil {
		out.Neighbors = make(map[idgen.AgentID]struct{}, len(c.Neighbors))
		for k := range c.Neighbors {
			out.Neighbors[k] = struct{}{}
		}
	}
	return out
}

// Agent is the mobile simulated entity.
type Agent struct {
	ID         idgen.AgentID
	Generation uint32
	Kind       scenario.AgentKind
	Pose       Pose
	Telemetry  Telemetry
	Comms      Comms
	Partition  uint32
	OutOfBounds bool
	Live       bool
}

// Clone returns a deep copy of the agent suitable for the back-page
// snapshot.
func (a Agent) Clone() Agent {
	out := a
	out.Comms = CloneComms(a.Comms)
	return out
}

// QuaternionValid reports whether the orientation quaternion's norm
// stays within tolerance of unit length. Mutates nothing; callers
// renormalize and fix up separately.
func (a Agent) QuaternionValid() bool {
	n := a.Pose.Orientation.Norm()
	return n >= 1-QuaternionNormTolerance && n <= 1+QuaternionNormTolerance
}

// Modulation is a digital modulation scheme used to estimate BER/PER.
type Modulation int

const (
	ModulationBPSK Modulation = iota
	ModulationQPSK
	ModulationQAM16
	ModulationQAM64
)

// Link is a directed communications edge computed fresh each tick; links
// are not persistent entities.
type Link struct {
	Source      idgen.AgentID
	Dest        idgen.AgentID
	RSSIDBm     float64
	SNRDB       float64
	SINRDB      float64
	PacketLoss  float64
	LatencyMs   float64
	BandwidthBps float64
	Modulation  Modulation
	Up          bool
}

// Channel is a persistent RF spectrum allocation.
type Channel struct {
	ID               uint16
	CenterFreqHz     float64
	BandwidthHz      float64
	Occupants        map[idgen.AgentID]struct{}
	AggregateTxPowerW float64
}

// CloneChannel deep-copies a Channel's occupant set.
func CloneChannel(c Channel) Channel {
	out := c
	out.Occupants = make(map[idgen.AgentID]struct{}, len(c.Occupants))
	for k := range c.Occupants {
		out.Occupants[k] = struct{}{}
	}
	return out
}

// Jammer is a stationary or kinematic adversarial emitter.
type Jammer struct {
	Position     [3]float64
	TxPowerW     float64
	Technique    scenario.JammerTechnique
	CenterFreqHz float64
	BandwidthHz  float64
	DutyCycle    float64
	Active       bool
}

// PartitionInfo describes one worker's assigned spatial region.
type PartitionInfo struct {
	ID         uint32
	WorkerID   uint32
	Bounds     scenario.AABB
	AgentCount int
	Neighbors  map[uint32]struct{}
}
