// Package worker implements the per-partition simulation pipeline:
// physics, sensing/comms, AI/control, and boundary hand-off, run
// synchronously within one tick with no overlap between stages.
package worker

import (
	"context"
	"math"
	"sync/atomic"

	"github.com/fieldforge/orchestrator/internal/bus"
	"github.com/fieldforge/orchestrator/internal/idgen"
	"github.com/fieldforge/orchestrator/internal/partition"
	"github.com/fieldforge/orchestrator/internal/rf"
	"github.com/fieldforge/orchestrator/internal/scenario"
	"github.com/fieldforge/orchestrator/internal/world"
	"github.com/fieldforge/orchestrator/internal/xerrors"
	"github.com/fieldforge/orchestrator/internal/xlog"
	"github.com/fieldforge/orchestrator/pkg/policy"
)

// Worker advances one partition's agent subset each tick. It runs on
// its own goroutine for the lifetime of the simulation; Run blocks
// until its context is cancelled.
type Worker struct {
	ID          uint32
	World       *world.WorldState
	Partitioner *partition.Partitioner
	Engine      *rf.Engine
	Bus         *bus.Bus
	Channels    *bus.WorkerChannels
	Policies    map[idgen.AgentID]policy.Policy
	DefaultPol  policy.Policy
	Logger      *xlog.Logger

	cancelFlag atomic.Bool
}

// New constructs a Worker bound to a partition id and its channel set.
// b gives the worker visibility into its neighbors' Boundary channels so
// it can hand off agents that cross into another partition's bounds.
func New(id uint32, ws *world.WorldState, part *partition.Partitioner, engine *rf.Engine, b *bus.Bus, wc *bus.WorkerChannels, logger *xlog.Logger) *Worker {
	if logger == nil {
		logger = xlog.Default("worker")
	}
	return &Worker{
		ID:          id,
		World:       ws,
		Partitioner: part,
		Engine:      engine,
		Bus:         b,
		Channels:    wc,
		Policies:    make(map[idgen.AgentID]policy.Policy),
		DefaultPol:  policy.Hover{},
		Logger:      logger.With("worker"),
	}
}

// SetPolicy registers the per-agent policy used during the AI/control
// stage.
func (w *Worker) SetPolicy(id idgen.AgentID, p policy.Policy) {
	w.Policies[id] = p
}

// Cancel requests a clean tick abort; polled between stages and between
// agents within a stage.
func (w *Worker) Cancel() { w.cancelFlag.Store(true) }

func (w *Worker) cancelled() bool { return w.cancelFlag.Load() }

// Run is the worker's main loop: it blocks on its control channels
// until the context is cancelled or a Shutdown message arrives.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.Channels.Shutdown:
			return
		case <-w.Channels.Pause:
			continue // the Coordinator does not advance Step while paused
		case <-w.Channels.Resume:
			continue
		case step := <-w.Channels.Step:
			w.runTick(step)
		}
	}
}

func (w *Worker) runTick(step bus.Step) {
	w.drainBoundaryNotifications()

	view := w.World.GetBackPartition(w.ID)
	owned := view.OwnedIndices()

	// Stage 1: physics.
	for _, id := range owned {
		if w.cancelled() {
			return
		}
		a := view.Get(id)
		if !a.Live {
			continue
		}
		integrate(&a, step.DT)
		a.Telemetry.Clamp()
		if err := checkPoseInvariants(a); err != nil {
			w.Logger.Error("simulation invariant violated", xlog.Uint64("agent", uint64(id)), xlog.Err(err))
		}
		view.Put(id, a)
	}
	if w.cancelled() {
		return
	}

	// Stage 2: sensing/comms.
	owned = view.OwnedIndices()
	front := w.World.GetFront()
	scenarioJammers := make([]scenario.JammerSpec, len(front.Jammers))
	for i, j := range front.Jammers {
		scenarioJammers[i] = scenario.JammerSpec{
			Position: j.Position, TxPowerW: j.TxPowerW, Technique: j.Technique,
			CenterFreqHz: j.CenterFreqHz, BandwidthHz: j.BandwidthHz, DutyCycle: j.DutyCycle, Active: j.Active,
		}
	}
	for _, id := range owned {
		if w.cancelled() {
			return
		}
		a := view.Get(id)
		if !a.Live {
			continue
		}
		w.assignChannel(&a)
		w.Engine.Follower.Observe(uint32(a.ID), a.Comms.ChannelID)
		freqHz := w.agentFreqHz(a)

		neighbors := make(map[idgen.AgentID]struct{})
		for _, other := range front.Agents {
			if !other.Live || other.ID == a.ID {
				continue
			}
			if !withinCommsRadius(a.Pose.Position, other.Pose.Position, defaultCommsRadiusM) {
				continue
			}
			link := w.Engine.ComputeLink(a, other, scenarioJammers, freqHz)
			view.AppendLink(link)
			if link.Up {
				neighbors[other.ID] = struct{}{}
			}
		}
		a.Comms.Neighbors = neighbors
		view.Put(id, a)
	}
	if w.cancelled() {
		return
	}

	// Stage 3: AI/control.
	owned = view.OwnedIndices()
	for _, id := range owned {
		if w.cancelled() {
			return
		}
		a := view.Get(id)
		if !a.Live {
			continue
		}
		pol := w.Policies[id]
		if pol == nil {
			pol = w.DefaultPol
		}
		cmd := pol.Evaluate(policy.Observation{Self: a, DT: step.DT})
		applyControl(&a, cmd, step.DT)
		a.Telemetry.Clamp()
		view.Put(id, a)
	}
	if w.cancelled() {
		return
	}

	// Stage 4: boundary write. Ownership itself transfers immediately via
	// Put (every worker shares the same back-page array and ownership is
	// the Partition field, not memory isolation); the BoundaryTransfer
	// message is a notification alongside it, the only channel a
	// cross-process worker (internal/bus/remote) would need to act on.
	owned = view.OwnedIndices()
	outgoing := make(map[uint32][]bus.AgentRecord)
	for _, id := range owned {
		a := view.Get(id)
		newWorker, oob := w.Partitioner.WorkerForPosition(a.Pose.Position)
		a.OutOfBounds = oob
		if newWorker != w.ID {
			a.Partition = newWorker
			outgoing[newWorker] = append(outgoing[newWorker], bus.AgentRecord{ID: id, Agent: a})
		}
		if err := view.Put(id, a); err != nil {
			w.Logger.Error("boundary write rejected", xlog.Uint64("agent", uint64(id)), xlog.Err(err))
		}
	}
	for dest, records := range outgoing {
		wc, ok := w.Bus.Workers[dest]
		if !ok {
			continue
		}
		select {
		case wc.Boundary <- bus.BoundaryTransfer{Tick: step.Tick, Agents: records}:
		default:
			w.Logger.Warn("boundary channel full, transfer notification dropped", xlog.Uint64("dest", uint64(dest)), xlog.Int("count", len(records)))
		}
	}

	// Stage 5: post StepComplete.
	select {
	case w.Channels.StepComplete <- bus.StepComplete{Tick: step.Tick, WorkerID: w.ID}:
	default:
		w.Logger.Error("StepComplete channel full", xlog.Uint64("tick", step.Tick))
	}
	select {
	case w.Channels.Heartbeat <- bus.Heartbeat{WorkerID: w.ID, Tick: step.Tick, Load: len(owned)}:
	default:
	}
}

// drainBoundaryNotifications empties the inbound Boundary queue at the
// start of each tick. The corresponding Put already landed in the
// shared back page when the sending worker reassigned Partition, so
// this is a liveness check, not a second commit.
func (w *Worker) drainBoundaryNotifications() {
	for {
		select {
		case bt := <-w.Channels.Boundary:
			w.Logger.Debug("boundary transfer received", xlog.Uint64("tick", bt.Tick), xlog.Int("count", len(bt.Agents)))
		default:
			return
		}
	}
}

const (
	defaultCommsRadiusM = 2000.0
	fallbackFreqHz      = 2.4e9 // used only if the scenario defines no channels to allocate from
)

func withinCommsRadius(a, b [3]float64, radius float64) bool {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return dx*dx+dy*dy+dz*dz <= radius*radius
}

// assignChannel gives a its first channel from the engine's spectrum
// allocator, sticking with it on later ticks instead of re-allocating
// every tick (channel-hopping is HopSchedule's job, not this one's).
func (w *Worker) assignChannel(a *world.Agent) {
	if a.Comms.ChannelID != nil {
		return
	}
	chID, ok := w.Engine.Spectrum.LeastUsedChannel()
	if !ok {
		return
	}
	txPowerW := math.Pow(10, w.Engine.TxPowerDBm/10) / 1000
	if err := w.Engine.Spectrum.Allocate(a.ID, chID, txPowerW); err != nil {
		w.Logger.Warn("channel allocation failed", xlog.Uint64("agent", uint64(a.ID)), xlog.Err(err))
		return
	}
	id := chID
	a.Comms.ChannelID = &id
}

// agentFreqHz resolves a's assigned channel to a center frequency for
// the comms stage's link budget; agents with no channel (e.g. an empty
// scenario channel table) fall back to a fixed ISM frequency.
func (w *Worker) agentFreqHz(a world.Agent) float64 {
	if a.Comms.ChannelID == nil {
		return fallbackFreqHz
	}
	spec, ok := w.Engine.Spectrum.ChannelSpec(*a.Comms.ChannelID)
	if !ok {
		return fallbackFreqHz
	}
	return spec.CenterFreqHz
}

// checkPoseInvariants reports a SimulationInvariant error for the
// per-agent invariants Stage 1 physics must never break: no NaN/Inf
// position component, and a unit-norm orientation quaternion within
// tolerance.
func checkPoseInvariants(a world.Agent) error {
	for _, v := range a.Pose.Position {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return xerrors.SimulationInvariant("agent position is non-finite")
		}
	}
	if !a.QuaternionValid() {
		return xerrors.SimulationInvariant("agent orientation quaternion drifted outside unit-norm tolerance")
	}
	return nil
}

// integrate advances position and orientation by dt with an explicit
// Euler step. Velocities are not changed here: they are the ones the
// previous tick's control stage (applyControl) left on the agent.
func integrate(a *world.Agent, dt float64) {
	for i := 0; i < 3; i++ {
		a.Pose.Position[i] += a.Pose.LinearVelocity[i] * dt
	}
	a.Pose.Orientation = integrateOrientation(a.Pose.Orientation, a.Pose.AngularVelocity, dt)
}

// integrateOrientation applies a first-order quaternion integration
// step from angular velocity, then renormalizes to hold the unit-norm
// invariant.
func integrateOrientation(q world.Quaternion, omega [3]float64, dt float64) world.Quaternion {
	dq := world.Quaternion{
		X: 0.5 * (omega[0]*q.W + omega[1]*q.Z - omega[2]*q.Y) * dt,
		Y: 0.5 * (omega[1]*q.W + omega[2]*q.X - omega[0]*q.Z) * dt,
		Z: 0.5 * (omega[2]*q.W + omega[0]*q.Y - omega[1]*q.X) * dt,
		W: 0.5 * (-omega[0]*q.X - omega[1]*q.Y - omega[2]*q.Z) * dt,
	}
	sum := world.Quaternion{X: q.X + dq.X, Y: q.Y + dq.Y, Z: q.Z + dq.Z, W: q.W + dq.W}
	return sum.Normalized()
}

// applyControl turns a policy's command into velocity updates. Mass is
// fixed at 1 kg and moment of inertia at the identity for every agent
// kind; scenarios needing kind-specific dynamics supply them through
// the policy's own thrust/torque scaling instead of here.
func applyControl(a *world.Agent, cmd policy.ControlCommand, dt float64) {
	for i := 0; i < 3; i++ {
		a.Pose.LinearVelocity[i] += cmd.ThrustN[i] * dt
		a.Pose.AngularVelocity[i] += cmd.TorqueNm[i] * dt
	}
	if cmd.Throttle != 0 || cmd.Steering != 0 {
		a.Pose.LinearVelocity[0] += cmd.Throttle * dt
		a.Pose.AngularVelocity[2] += cmd.Steering * dt
	}
	a.Telemetry.Armed = cmd.Armed
	a.Telemetry.BatteryFrac -= 0.00001 * dt // fixed trickle drain, the same for every agent
}
