package world

import (
	"sync"
	"sync/atomic"

	"github.com/fieldforge/orchestrator/internal/idgen"
	"github.com/fieldforge/orchestrator/internal/scenario"
	"github.com/fieldforge/orchestrator/internal/xerrors"
	"github.com/fieldforge/orchestrator/internal/xlog"
)

// page is one face of the double buffer: a complete simulation state at
// a given tick.
type page struct {
	Tick     uint64
	Time     float64
	Paused   bool
	Agents   []Agent
	Links    []Link
	Channels []Channel
	Jammers  []Jammer
}

func newPage(capacity uint32) *page {
	return &page{Agents: make([]Agent, capacity)}
}

func clonePage(src *page) *page {
	dst := &page{
		Tick:     src.Tick,
		Time:     src.Time,
		Paused:   src.Paused,
		Agents:   make([]Agent, len(src.Agents)),
		Channels: make([]Channel, len(src.Channels)),
		Jammers:  append([]Jammer(nil), src.Jammers...),
	}
	for i, a := range src.Agents {
		dst.Agents[i] = a.Clone()
	}
	for i, c := range src.Channels {
		dst.Channels[i] = CloneChannel(c)
	}
	// Links are recomputed fresh every tick; the new back page starts empty.
	return dst
}

// WorldState is the single source of truth for one simulation run. It is
// a ping-pong double buffer: workers write to the back page, and the
// Coordinator is the only caller permitted to swap the active index.
//
// Ownership of a slot in the back page is enforced by the per-agent
// Partition field (the ownership registry), not by Go's aliasing rules:
// a worker must only mutate agents whose Partition equals its own
// worker id, obtained exclusively through GetBackPartition.
type WorldState struct {
	active atomic.Int32 // 0 or 1: index of the readable front page

	mu    sync.Mutex // guards structural changes: allocate/retire/swap/prepare
	pages [2]*page

	arena *idgen.Arena

	logger *xlog.Logger
}

// New creates a WorldState with the given agent capacity.
func New(maxAgents uint32, logger *xlog.Logger) *WorldState {
	if logger == nil {
		logger = xlog.Default("world")
	}
	ws := &WorldState{
		arena:  idgen.NewArena(maxAgents),
		logger: logger,
	}
	ws.pages[0] = newPage(maxAgents)
	ws.pages[1] = newPage(maxAgents)
	return ws
}

func (w *WorldState) frontIdx() int32 { return w.active.Load() }
func (w *WorldState) backIdx() int32  { return 1 - w.active.Load() }

// AllocateAgent reserves a new slot, writes the initial agent state into
// both pages (so it is visible immediately on the front page too, for a
// spawn that happens outside of a tick boundary), and returns its id.
func (w *WorldState) AllocateAgent(kind scenario.AgentKind, pose Pose) (idgen.AgentID, error) {
	id, gen, err := w.arena.Allocate()
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	agent := Agent{
		ID:         id,
		Generation: gen,
		Kind:       kind,
		Pose:       pose,
		Telemetry:  Telemetry{BatteryFrac: 1, HealthFrac: 1},
		Live:       true,
	}
	for _, idx := range [2]int32{0, 1} {
		w.pages[idx].Agents[id] = agent.Clone()
	}
	return id, nil
}

// AssignPartition sets an agent's owning worker in both pages, used
// right after AllocateAgent so the new agent is immediately eligible
// for OwnedIndices on its assigned worker rather than defaulting to
// worker 0.
func (w *WorldState) AssignPartition(id idgen.AgentID, workerID uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, idx := range [2]int32{0, 1} {
		a := w.pages[idx].Agents[id]
		a.Partition = workerID
		w.pages[idx].Agents[id] = a
	}
}

// RetireAgent marks a slot retired in both pages and bumps its
// generation so stale AgentId references become detectable.
func (w *WorldState) RetireAgent(id idgen.AgentID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.arena.Retire(id)
	for _, idx := range [2]int32{0, 1} {
		w.pages[idx].Agents[id] = Agent{ID: id, Generation: w.arena.Generation(id)}
	}
}

// SnapshotView is a read-only view of the front page. It is valid only
// until the next Swap.
type SnapshotView struct {
	Tick     uint64
	Time     float64
	Paused   bool
	Agents   []Agent
	Links    []Link
	Channels []Channel
	Jammers  []Jammer
}

// GetFront returns a read-only snapshot of the current front page.
// Lock-free from the caller's perspective: it loads the active index
// once and reads the corresponding immutable page.
func (w *WorldState) GetFront() SnapshotView {
	p := w.pages[w.frontIdx()]
	return SnapshotView{
		Tick:     p.Tick,
		Time:     p.Time,
		Paused:   p.Paused,
		Agents:   p.Agents,
		Links:    p.Links,
		Channels: p.Channels,
		Jammers:  p.Jammers,
	}
}

// PrepareBackPage is called by the Coordinator at the start of a tick.
// It copies the front page forward into the back page (so every agent
// not touched this tick still carries last tick's state) and advances
// the back page's tick/time counters. Must be called before any worker
// calls GetBackPartition for this tick.
func (w *WorldState) PrepareBackPage(dt float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	front := w.pages[w.frontIdx()]
	back := clonePage(front)
	back.Tick = front.Tick + 1
	back.Time = front.Time + dt
	w.pages[w.backIdx()] = back
}

// Swap atomically exposes the back page as the new front page. Only the
// Coordinator calls this, and only once every worker has reached the
// tick barrier.
func (w *WorldState) Swap() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.active.Store(1 - w.active.Load())
}

// PartitionView is a write-scoped handle onto the back page, restricted
// to agents owned by one worker (ownership registry enforcement).
type PartitionView struct {
	ws       *WorldState
	workerID uint32
	page     *page
}

// GetBackPartition returns a PartitionView scoped to workerID's agents
// in the current back page.
func (w *WorldState) GetBackPartition(workerID uint32) *PartitionView {
	w.mu.Lock()
	p := w.pages[w.backIdx()]
	w.mu.Unlock()
	return &PartitionView{ws: w, workerID: workerID, page: p}
}

// OwnedIndices returns the slot indices this view's worker currently
// owns in the back page.
func (v *PartitionView) OwnedIndices() []idgen.AgentID {
	out := make([]idgen.AgentID, 0, len(v.page.Agents))
	for i, a := range v.page.Agents {
		if a.Live && a.Partition == v.workerID {
			out = append(out, idgen.AgentID(i))
		}
	}
	return out
}

// Get returns a copy of the agent at id for reading.
func (v *PartitionView) Get(id idgen.AgentID) Agent {
	return v.page.Agents[id]
}

// Put writes agent back into the back page. Writing an agent this
// worker does not own returns a SimulationInvariant error rather than
// silently corrupting another worker's partition.
func (v *PartitionView) Put(id idgen.AgentID, a Agent) error {
	existing := v.page.Agents[id]
	if existing.Live && existing.Partition != v.workerID && existing.Partition != a.Partition {
		return xerrors.SimulationInvariant("worker wrote agent outside its owned partition")
	}
	v.page.Agents[id] = a
	return nil
}

// AppendLink appends a computed link to this tick's link set. Safe to
// call concurrently from different PartitionViews only if each view
// wraps a distinct worker's goroutine and the caller does not share a
// PartitionView across goroutines (workers are single-threaded over
// their own partition).
func (v *PartitionView) AppendLink(l Link) {
	v.ws.mu.Lock()
	defer v.ws.mu.Unlock()
	v.page.Links = append(v.page.Links, l)
}

// Channels returns the channel table as visible in the back page.
func (v *PartitionView) Channels() []Channel { return v.page.Channels }

// Jammers returns the jammer table as visible in the back page.
func (v *PartitionView) Jammers() []Jammer { return v.page.Jammers }

// SetChannels overwrites the back page's channel table (spectrum
// reallocation happens at tick boundaries, Coordinator-only).
func (w *WorldState) SetChannels(channels []Channel) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pages[w.backIdx()].Channels = channels
}

// SetJammers overwrites the back page's jammer table.
func (w *WorldState) SetJammers(jammers []Jammer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pages[w.backIdx()].Jammers = jammers
}

// SetPaused writes the pause flag on both pages and Paused reads it
// from the front page; the Coordinator applies them at tick boundaries
// only.
func (w *WorldState) SetPaused(paused bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pages[0].Paused = paused
	w.pages[1].Paused = paused
}

func (w *WorldState) Paused() bool {
	return w.pages[w.frontIdx()].Paused
}

// Arena exposes the underlying id arena (for Capacity checks and
// generation lookups by transport/coordinator code).
func (w *WorldState) Arena() *idgen.Arena { return w.arena }
