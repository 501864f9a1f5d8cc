// Package bus defines the typed messages exchanged between the
// Coordinator and Workers, and the bounded channel sets they travel
// over. Every channel is bounded: a slow or stalled consumer applies
// backpressure to its producer rather than growing without limit.
package bus

import (
	"github.com/fieldforge/orchestrator/internal/idgen"
	"github.com/fieldforge/orchestrator/internal/world"
)

// Step tells a worker to advance its owned partition by one tick.
type Step struct {
	Tick uint64
	DT   float64
}

// StepComplete is a worker's reply once it has finished physics, comms,
// and AI for the tick and committed its writes to the back page.
type StepComplete struct {
	Tick     uint64
	WorkerID uint32
}

// Pause asks every worker to stop advancing after the current tick.
type Pause struct{}

// Resume asks every worker to resume advancing.
type Resume struct{}

// Shutdown asks a worker to drain and exit.
type Shutdown struct{}

// AgentRecord is the wire shape of one agent crossing a partition
// boundary.
type AgentRecord struct {
	ID    idgen.AgentID
	Agent world.Agent
}

// BoundaryTransfer carries agents that crossed from one worker's
// partition into a neighbor's during the tick just completed. It is a
// notification only: the sending worker has already moved ownership in
// the shared back page before the swap, and the receiving worker drains
// its inbound boundary queue at the start of its next tick.
type BoundaryTransfer struct {
	Tick   uint64
	Agents []AgentRecord
}

// Heartbeat reports a worker's liveness and load between ticks, so the
// Coordinator can detect a stall before the step deadline trips. The
// reported load is recorded per worker; Rebalance counts agents from
// the front page instead.
type Heartbeat struct {
	WorkerID uint32
	Tick     uint64
	Load     int // agent count owned this tick
}

// Default channel capacities, sized for one in-flight message per
// worker per tick plus headroom for a retry.
const (
	ControlDepth = 4 // Coordinator->Worker: Step/Pause/Resume/Shutdown
	ReplyDepth   = 4 // Worker->Coordinator: StepComplete/Heartbeat
)

// WorkerChannels is one worker's inbound/outbound channel set.
type WorkerChannels struct {
	Step     chan Step
	Pause    chan Pause
	Resume   chan Resume
	Shutdown chan Shutdown

	StepComplete chan StepComplete
	Heartbeat    chan Heartbeat

	// Boundary is this worker's inbound transfer queue, written by
	// neighboring workers, bounded by the partition's max agent count so a single tick's
	// worth of transfers can never overflow it under normal load.
	Boundary chan BoundaryTransfer
}

// NewWorkerChannels builds a WorkerChannels with the default control/reply
// depths and a boundary queue bounded by maxAgentsPerPartition.
func NewWorkerChannels(maxAgentsPerPartition int) *WorkerChannels {
	if maxAgentsPerPartition < 1 {
		maxAgentsPerPartition = 1
	}
	return &WorkerChannels{
		Step:         make(chan Step, ControlDepth),
		Pause:        make(chan Pause, ControlDepth),
		Resume:       make(chan Resume, ControlDepth),
		Shutdown:     make(chan Shutdown, ControlDepth),
		StepComplete: make(chan StepComplete, ReplyDepth),
		Heartbeat:    make(chan Heartbeat, ReplyDepth),
		Boundary:     make(chan BoundaryTransfer, maxAgentsPerPartition),
	}
}

// Bus is the complete set of per-worker channels the Coordinator owns,
// indexed by worker id.
type Bus struct {
	Workers map[uint32]*WorkerChannels
}

// NewBus allocates a Bus with one WorkerChannels per worker id in
// [0, numWorkers).
func NewBus(numWorkers uint32, maxAgentsPerPartition int) *Bus {
	b := &Bus{Workers: make(map[uint32]*WorkerChannels, numWorkers)}
	for w := uint32(0); w < numWorkers; w++ {
		b.Workers[w] = NewWorkerChannels(maxAgentsPerPartition)
	}
	return b
}

// AddWorker registers a fresh WorkerChannels for a newly spun-up worker
// id, e.g. one replacing a stalled worker removed during redistribution.
func (b *Bus) AddWorker(workerID uint32, maxAgentsPerPartition int) *WorkerChannels {
	wc := NewWorkerChannels(maxAgentsPerPartition)
	b.Workers[workerID] = wc
	return wc
}

// RemoveWorker drops a worker's channel set, e.g. after it is declared
// stalled and its agents redistributed.
func (b *Bus) RemoveWorker(workerID uint32) {
	delete(b.Workers, workerID)
}
