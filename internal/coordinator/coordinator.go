// Package coordinator drives the global tick loop: it broadcasts Step
// to every Worker, waits on the completion barrier, drives boundary
// sync, swaps the WorldState double buffer, and publishes the result to
// the transport sink.
package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"sync"
	"time"

	"github.com/fieldforge/orchestrator/internal/bus"
	"github.com/fieldforge/orchestrator/internal/idgen"
	"github.com/fieldforge/orchestrator/internal/metrics"
	"github.com/fieldforge/orchestrator/internal/partition"
	"github.com/fieldforge/orchestrator/internal/scenario"
	"github.com/fieldforge/orchestrator/internal/transport"
	"github.com/fieldforge/orchestrator/internal/world"
	"github.com/fieldforge/orchestrator/internal/xerrors"
	"github.com/fieldforge/orchestrator/internal/xlog"
)

// DefaultStepDeadline and DefaultMaxRetries are the default barrier
// timeout and stalled-worker retry budget.
const (
	DefaultStepDeadline = time.Second
	DefaultMaxRetries   = 2
)

// WorkerInfo tracks one registered worker's liveness and load, in the
// spirit of a peer registry: the Coordinator never touches a worker's
// partition directly, only its channel set and last-reported state.
type WorkerInfo struct {
	ID           uint32
	LastHeartbeat time.Time
	LastLoad     int
	Stalled      bool
}

// WorkerHandle is everything the Coordinator needs to drive one worker:
// its channel set and a cancel function to stop its goroutine.
type WorkerHandle struct {
	Channels *bus.WorkerChannels
	Cancel   context.CancelFunc
}

// StepSummary reports the outcome of one completed tick.
type StepSummary struct {
	Tick        uint64
	AgentCount  int
	WorkerCount int
	WallTime    time.Duration
}

// Coordinator owns the WorldState lifecycle, the worker registry, the
// partitioner, and the transport sink.
type Coordinator struct {
	mu sync.Mutex

	scenario    scenario.Scenario
	world       *world.WorldState
	partitioner *partition.Partitioner
	bus         *bus.Bus
	server      *transport.Server
	metrics     *metrics.Recorder
	logger      *xlog.Logger

	workers    map[uint32]*WorkerHandle
	workerInfo map[uint32]*WorkerInfo
	spawnFn    func(workerID uint32, wc *bus.WorkerChannels, ctx context.Context)

	paused        bool
	tickRebalance uint64
	visMode       transport.VisualizationMode
	rootCtx       context.Context
}

// New constructs a Coordinator bound to a scenario but does not start
// workers or the transport listener; call Start for that.
func New(sc scenario.Scenario, logger *xlog.Logger) *Coordinator {
	if logger == nil {
		logger = xlog.Default("coordinator")
	}
	ws := world.New(sc.MaxAgents, logger.With("world"))
	dims := partition.GridDims{Nx: sc.PartitionGrid[0], Ny: sc.PartitionGrid[1], Nz: sc.PartitionGrid[2]}
	part := partition.NewPartitioner(dims, sc.WorldBounds, sc.NumWorkers)
	maxPerPartition := int(sc.MaxAgents)
	if sc.NumWorkers > 0 {
		maxPerPartition = int(sc.MaxAgents)/int(sc.NumWorkers) + 1
	}
	b := bus.NewBus(sc.NumWorkers, maxPerPartition)

	return &Coordinator{
		scenario:    sc,
		world:       ws,
		partitioner: part,
		bus:         b,
		metrics:     metrics.NewRecorder(),
		logger:      logger,
		workers:     make(map[uint32]*WorkerHandle),
		workerInfo:  make(map[uint32]*WorkerInfo),
	}
}

// SetSpawnFunc registers the function used to start a worker goroutine;
// internal/worker.Run is wired in by cmd/orchestrator to avoid an
// import cycle between coordinator and worker.
func (c *Coordinator) SetSpawnFunc(fn func(workerID uint32, wc *bus.WorkerChannels, ctx context.Context)) {
	c.spawnFn = fn
}

// World exposes the WorldState for the transport sink and spawn API.
func (c *Coordinator) World() *world.WorldState { return c.world }

// Partitioner exposes the spatial partitioner, e.g. for the spawn
// command to compute a new agent's owning worker.
func (c *Coordinator) Partitioner() *partition.Partitioner { return c.partitioner }

// Bus exposes the worker channel registry so a spawn function can wire
// a new worker's Boundary hand-offs to its siblings.
func (c *Coordinator) Bus() *bus.Bus { return c.bus }

// FrameSpec returns the scenario's egress coordinate-frame conversion,
// used by the transport layer's resync path.
func (c *Coordinator) FrameSpec() scenario.FrameSpec { return c.scenario.RenderFrameConversion }

// Metrics returns the current rolling metrics snapshot.
func (c *Coordinator) Metrics() metrics.Snapshot { return c.metrics.Snapshot() }

// AttachTransport wires a transport.Server as the publish sink.
func (c *Coordinator) AttachTransport(s *transport.Server) { c.server = s }

// Start spins up one goroutine per worker via the registered spawn
// function.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rootCtx = ctx
	for w := uint32(0); w < c.scenario.NumWorkers; w++ {
		c.startWorkerLocked(ctx, w)
	}
}

func (c *Coordinator) startWorkerLocked(ctx context.Context, workerID uint32) {
	wc := c.bus.Workers[workerID]
	if wc == nil {
		maxPerPartition := int(c.scenario.MaxAgents)
		wc = c.bus.AddWorker(workerID, maxPerPartition)
	}
	workerCtx, cancel := context.WithCancel(ctx)
	c.workers[workerID] = &WorkerHandle{Channels: wc, Cancel: cancel}
	c.workerInfo[workerID] = &WorkerInfo{ID: workerID, LastHeartbeat: time.Now()}
	if c.spawnFn != nil {
		c.spawnFn(workerID, wc, workerCtx)
	}
}

// Pause idempotently suspends the tick loop; in-flight work is not
// cancelled.
func (c *Coordinator) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	c.paused = true
	c.world.SetPaused(true)
	for _, w := range c.workers {
		select {
		case w.Channels.Pause <- bus.Pause{}:
		default:
		}
	}
}

// Resume idempotently resumes the tick loop.
func (c *Coordinator) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	c.world.SetPaused(false)
	for _, w := range c.workers {
		select {
		case w.Channels.Resume <- bus.Resume{}:
		default:
		}
	}
}

// Paused reports the current pause state.
func (c *Coordinator) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// MaxDT bounds the per-step time delta accepted by Step.
const MaxDT = 1.0

// Step advances the simulation by one tick: broadcast Step to every
// worker, barrier on StepComplete (with Heartbeat-based early-stall
// detection), swap the double-buffered world state, rebalance if due,
// and publish a snapshot. dt must be in (0, MaxDT].
func (c *Coordinator) Step(ctx context.Context, dt float64) (StepSummary, error) {
	if dt <= 0 || dt > MaxDT {
		return StepSummary{}, xerrors.InvalidArgument("dt out of range")
	}
	if c.Paused() {
		return StepSummary{}, nil
	}

	start := time.Now()
	var lastErr error

	for attempt := 0; attempt <= DefaultMaxRetries; attempt++ {
		summary, err := c.attemptStep(ctx, dt)
		if err == nil {
			summary.WallTime = time.Since(start)
			c.metrics.RecordStep(summary.WallTime, summary.AgentCount)
			return summary, nil
		}
		lastErr = err
		if _, ok := xerrors.As(err, xerrors.KindWorkerStalled); !ok {
			break
		}
		c.logger.Warn("step retry after stall", xlog.Int("attempt", attempt))
	}
	return StepSummary{}, xerrors.StepFailed("step failed after retries", lastErr)
}

func (c *Coordinator) attemptStep(ctx context.Context, dt float64) (StepSummary, error) {
	c.mu.Lock()
	tick := c.world.GetFront().Tick + 1
	c.world.PrepareBackPage(dt)
	workers := make(map[uint32]*WorkerHandle, len(c.workers))
	for id, w := range c.workers {
		workers[id] = w
	}
	c.mu.Unlock()

	for id, w := range workers {
		select {
		case w.Channels.Step <- bus.Step{Tick: tick, DT: dt}:
		default:
			return StepSummary{}, c.handleStall(id)
		}
	}

	deadline := c.scenario.StepDeadline
	if deadline <= 0 {
		deadline = DefaultStepDeadline
	}
	deadlineTimer := time.NewTimer(deadline)
	defer deadlineTimer.Stop()

	// heartbeatGrace bounds how long a worker may go without a Heartbeat
	// before it is declared stalled, well ahead of the full barrier
	// deadline: a wedged worker is caught on its next missed heartbeat
	// instead of waiting out the whole step budget.
	heartbeatGrace := deadline / 4
	now := time.Now()
	lastHeartbeat := make(map[uint32]time.Time, len(workers))
	for id := range workers {
		lastHeartbeat[id] = now
	}

	completed := make(map[uint32]bool, len(workers))
	for len(completed) < len(workers) {
		select {
		case <-ctx.Done():
			return StepSummary{}, ctx.Err()
		case <-deadlineTimer.C:
			for id := range workers {
				if !completed[id] {
					return StepSummary{}, c.handleStall(id)
				}
			}
		default:
		}

		progressed := false
		for id, w := range workers {
			if completed[id] {
				continue
			}
			select {
			case sc := <-w.Channels.StepComplete:
				if sc.Tick == tick {
					completed[id] = true
					progressed = true
				}
			default:
			}
			select {
			case hb := <-w.Channels.Heartbeat:
				lastHeartbeat[id] = time.Now()
				c.mu.Lock()
				if info, ok := c.workerInfo[id]; ok {
					info.LastHeartbeat = lastHeartbeat[id]
					info.LastLoad = hb.Load
				}
				c.mu.Unlock()
				progressed = true
			default:
			}
		}
		for id := range workers {
			if completed[id] {
				continue
			}
			if time.Since(lastHeartbeat[id]) > heartbeatGrace {
				return StepSummary{}, c.handleStall(id)
			}
		}
		if !progressed {
			time.Sleep(time.Millisecond)
		}
	}

	c.world.Swap()
	c.maybeRebalance(tick)
	front := c.world.GetFront()

	if c.server != nil {
		c.publishSnapshot(front)
	}

	return StepSummary{
		Tick:        front.Tick,
		AgentCount:  len(front.Agents),
		WorkerCount: len(workers),
		WallTime:    0,
	}, nil
}

// handleStall removes a worker that missed its step deadline and
// redistributes the agents it owned to a surviving worker so the tick
// can be retried. The removal is permanent: a stalled worker never
// rejoins the registry, so the next Step() retry operates on a
// strictly smaller worker set.
func (c *Coordinator) handleStall(workerID uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var survivor uint32
	haveSurvivor := false
	for id := range c.workers {
		if id == workerID {
			continue
		}
		if !haveSurvivor || id < survivor {
			survivor = id
			haveSurvivor = true
		}
	}

	owned := c.world.GetBackPartition(workerID).OwnedIndices()
	if haveSurvivor {
		for _, id := range owned {
			c.world.AssignPartition(id, survivor)
		}
	}

	delete(c.workers, workerID)
	delete(c.workerInfo, workerID)
	c.bus.RemoveWorker(workerID)

	c.logger.Error("worker stalled, removed and redistributed its agents",
		xlog.Int("worker_id", int(workerID)),
		xlog.Int("agents_redistributed", len(owned)),
		xlog.Bool("survivor_found", haveSurvivor))
	return xerrors.WorkerStalled("worker missed step deadline")
}

func (c *Coordinator) maybeRebalance(tick uint64) {
	if tick-c.tickRebalance < partition.RebalanceInterval {
		return
	}
	c.tickRebalance = tick

	c.mu.Lock()
	defer c.mu.Unlock()
	counts := make([]int, c.scenario.NumWorkers)
	front := c.world.GetFront()
	for _, a := range front.Agents {
		if a.Live && int(a.Partition) < len(counts) {
			counts[a.Partition]++
		}
	}
	if c.partitioner.Rebalance(counts) {
		c.logger.Info("partition rebalanced", xlog.Int("tick", int(tick)))
	}
}

// jammerFootprintM approximates a jammer's visualized effective radius
// from its transmit power; it is a debug-draw aid, not a link-budget
// computation (that lives in internal/rf).
func jammerFootprintM(txPowerW float64) float64 {
	return 50.0 * math.Sqrt(math.Max(txPowerW, 0))
}

var (
	debugLineUpColor   = [4]uint8{0, 200, 80, 255}
	debugSphereJamColor = [4]uint8{220, 30, 30, 120}
)

func (c *Coordinator) publishSnapshot(front world.SnapshotView) {
	positions := make([]transport.PositionRecord, 0, len(front.Agents))
	telemetry := make([]transport.TelemetryRecord, 0, len(front.Agents))
	for _, a := range front.Agents {
		if !a.Live {
			continue
		}
		positions = append(positions, transport.BuildPositionRecord(int32(a.ID), a.Pose, c.scenario.RenderFrameConversion))
		telemetry = append(telemetry, transport.BuildTelemetryRecord(int32(a.ID), a))
	}
	tick := front.Tick
	c.server.Publish(transport.Frame{Tick: tick, Encode: func(w io.Writer) error {
		return transport.EncodeUpdatePositions(w, positions)
	}})
	c.server.Publish(transport.Frame{Tick: tick, Encode: func(w io.Writer) error {
		return transport.EncodeUpdateTelemetry(w, telemetry)
	}})

	c.mu.Lock()
	visMode := c.visMode
	c.mu.Unlock()

	if visMode.Lines {
		lines := make([]transport.DebugLine, 0, len(front.Links))
		for _, l := range front.Links {
			if !l.Up || int(l.Source) >= len(front.Agents) || int(l.Dest) >= len(front.Agents) {
				continue
			}
			src, dst := front.Agents[l.Source], front.Agents[l.Dest]
			lines = append(lines, transport.BuildDebugLine(src.Pose.Position, dst.Pose.Position, c.scenario.RenderFrameConversion, debugLineUpColor, 1.0))
		}
		c.server.Publish(transport.Frame{Tick: tick, Encode: func(w io.Writer) error {
			return transport.EncodeDebugLines(w, lines)
		}})
	}

	if visMode.Spheres {
		spheres := make([]transport.DebugSphere, 0, len(front.Jammers))
		for _, j := range front.Jammers {
			if !j.Active {
				continue
			}
			spheres = append(spheres, transport.BuildDebugSphere(j.Position, jammerFootprintM(j.TxPowerW), c.scenario.RenderFrameConversion, debugSphereJamColor))
		}
		c.server.Publish(transport.Frame{Tick: tick, Encode: func(w io.Writer) error {
			return transport.EncodeDebugSpheres(w, spheres)
		}})
	}

	if dropped := c.server.DroppedTicks(); len(dropped) > 0 {
		c.logger.Warn("outbound queue dropped ticks", xlog.Int("count", len(dropped)))
		c.server.Publish(transport.Frame{Tick: tick, Encode: func(w io.Writer) error {
			return transport.EncodeDroppedTicks(w, dropped)
		}})
	}
}

// DrainCommands executes every command the transport layer has queued
// since the last tick boundary. Commands only take effect between
// ticks, never mid-step.
func (c *Coordinator) DrainCommands() {
	if c.server == nil {
		return
	}
	for {
		select {
		case cmd := <-c.server.Commands():
			c.dispatchCommand(cmd)
		default:
			return
		}
	}
}

func (c *Coordinator) dispatchCommand(cmd transport.Command) {
	resp := transport.RPCResponse{ID: cmd.RequestID}
	switch cmd.Method {
	case transport.MethodSpawn:
		resp.Result, resp.Error = c.handleSpawn(cmd.Params)
	case transport.MethodPause:
		c.Pause()
		resp.Result = map[string]bool{"paused": true}
	case transport.MethodResume:
		c.Resume()
		resp.Result = map[string]bool{"paused": false}
	case transport.MethodReset:
		c.Reset(c.rootCtx, c.scenario)
		resp.Result = map[string]bool{"reset": true}
	case transport.MethodSetVisualizationMode:
		resp.Result, resp.Error = c.handleSetVisualizationMode(cmd.Params)
	case transport.MethodGetStats:
		resp.Result = c.Metrics()
	case transport.MethodGetAgentState:
		resp.Result, resp.Error = c.handleGetAgentState(cmd.Params)
	default:
		resp.Error = &transport.RPCErrorObject{Code: transport.CodeMethodNotFound, Message: "unknown method"}
	}
	select {
	case cmd.Reply <- resp:
	default:
	}
}

func (c *Coordinator) handleSpawn(raw json.RawMessage) (interface{}, *transport.RPCErrorObject) {
	var p transport.SpawnParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &transport.RPCErrorObject{Code: transport.CodeInvalidParams, Message: "bad spawn params"}
	}
	pose := world.Pose{Position: p.Position, Orientation: world.IdentityQuaternion()}
	id, err := c.SpawnAgent(scenario.AgentKind(p.Kind), pose)
	if err != nil {
		return nil, transport.ErrorObjectFor(err)
	}
	return map[string]uint32{"id": uint32(id)}, nil
}

// SpawnAgent allocates a new agent and assigns it to the worker owning
// its spawn position, used both by the spawn RPC and by scenario
// startup.
func (c *Coordinator) SpawnAgent(kind scenario.AgentKind, pose world.Pose) (idgen.AgentID, error) {
	id, err := c.world.AllocateAgent(kind, pose)
	if err != nil {
		return 0, err
	}
	workerID, _ := c.partitioner.WorkerForPosition(pose.Position)
	c.world.AssignPartition(id, workerID)
	return id, nil
}

func (c *Coordinator) handleSetVisualizationMode(raw json.RawMessage) (interface{}, *transport.RPCErrorObject) {
	var mode transport.VisualizationMode
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&mode); err != nil {
		return nil, &transport.RPCErrorObject{Code: transport.CodeInvalidParams, Message: "bad visualization mode"}
	}
	c.mu.Lock()
	c.visMode = mode
	c.mu.Unlock()
	return mode, nil
}

func (c *Coordinator) handleGetAgentState(raw json.RawMessage) (interface{}, *transport.RPCErrorObject) {
	var p transport.GetAgentStateParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &transport.RPCErrorObject{Code: transport.CodeInvalidParams, Message: "bad get_agent_state params"}
	}
	front := c.world.GetFront()
	id := idgen.AgentID(p.ID)
	if p.ID < 0 || int(id) >= len(front.Agents) {
		return nil, &transport.RPCErrorObject{Code: transport.CodeInvalidParams, Message: "agent id out of range"}
	}
	a := front.Agents[id]
	if !a.Live {
		return nil, &transport.RPCErrorObject{Code: transport.CodeInvalidParams, Message: "agent not live"}
	}
	return a, nil
}

// Reset stops all workers, recreates WorldState, and restarts with a
// (possibly new) scenario.
func (c *Coordinator) Reset(ctx context.Context, sc scenario.Scenario) {
	c.mu.Lock()
	for _, w := range c.workers {
		w.Cancel()
	}
	c.workers = make(map[uint32]*WorkerHandle)
	c.workerInfo = make(map[uint32]*WorkerInfo)
	c.scenario = sc
	c.world = world.New(sc.MaxAgents, c.logger.With("world"))
	dims := partition.GridDims{Nx: sc.PartitionGrid[0], Ny: sc.PartitionGrid[1], Nz: sc.PartitionGrid[2]}
	c.partitioner = partition.NewPartitioner(dims, sc.WorldBounds, sc.NumWorkers)
	maxPerPartition := int(sc.MaxAgents)
	if sc.NumWorkers > 0 {
		maxPerPartition = int(sc.MaxAgents)/int(sc.NumWorkers) + 1
	}
	c.bus = bus.NewBus(sc.NumWorkers, maxPerPartition)
	c.paused = false
	c.mu.Unlock()

	c.Start(ctx)
}

// Shutdown signals every worker to stop and waits briefly for them to
// drain.
func (c *Coordinator) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.workers {
		select {
		case w.Channels.Shutdown <- bus.Shutdown{}:
		default:
		}
		w.Cancel()
	}
	return nil
}
