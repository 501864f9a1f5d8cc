// Package idgen allocates AgentIds from a dense, fixed-capacity arena.
// An AgentId is a slot index; a per-slot generation counter, bumped on
// retire, lets holders of a stale (AgentId, Generation) pair detect that
// the slot has been recycled for a different agent.
package idgen

import (
	"sync"

	"github.com/fieldforge/orchestrator/internal/xerrors"
)

// AgentID is a dense, 32-bit slot index assigned at spawn.
type AgentID uint32

// Handle pairs an AgentID with the generation observed at the time the
// handle was taken, so holders can detect that the slot has since been
// recycled for a different agent.
type Handle struct {
	ID         AgentID
	Generation uint32
}

// Arena allocates and retires AgentIds over a fixed-size slot space,
// tracking per-slot occupancy with a bitmap (as in a slab allocator's
// free-list bitmap) and per-slot generation counters.
type Arena struct {
	mu          sync.Mutex
	capacity    uint32
	usedBitmap  []uint64
	generations []uint32
	nextHint    uint32
	allocated   uint32
}

// NewArena creates an Arena with room for capacity agents.
func NewArena(capacity uint32) *Arena {
	words := (capacity + 63) / 64
	return &Arena{
		capacity:    capacity,
		usedBitmap:  make([]uint64, words),
		generations: make([]uint32, capacity),
	}
}

func (a *Arena) isUsed(slot uint32) bool {
	return a.usedBitmap[slot/64]&(1<<(slot%64)) != 0
}

func (a *Arena) markUsed(slot uint32)  { a.usedBitmap[slot/64] |= 1 << (slot % 64) }
func (a *Arena) markFree(slot uint32)  { a.usedBitmap[slot/64] &^= 1 << (slot % 64) }

// Allocate reserves the next free slot and returns its AgentID and
// current generation. Returns a Capacity error if the arena is full.
func (a *Arena) Allocate() (AgentID, uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := uint32(0); i < a.capacity; i++ {
		slot := (a.nextHint + i) % a.capacity
		if !a.isUsed(slot) {
			a.markUsed(slot)
			a.allocated++
			a.nextHint = (slot + 1) % a.capacity
			return AgentID(slot), a.generations[slot], nil
		}
	}
	return 0, 0, xerrors.Capacity("agent arena exhausted")
}

// Retire frees a slot and bumps its generation so stale handles become
// detectable.
func (a *Arena) Retire(id AgentID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	slot := uint32(id)
	if slot >= a.capacity || !a.isUsed(slot) {
		return
	}
	a.markFree(slot)
	a.generations[slot]++
	if a.allocated > 0 {
		a.allocated--
	}
}

// Generation returns the current generation for a slot.
func (a *Arena) Generation(id AgentID) uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if uint32(id) >= a.capacity {
		return 0
	}
	return a.generations[id]
}

// Valid reports whether a handle still refers to a live, non-recycled
// slot.
func (a *Arena) Valid(h Handle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	slot := uint32(h.ID)
	if slot >= a.capacity {
		return false
	}
	return a.isUsed(slot) && a.generations[slot] == h.Generation
}

// Capacity returns the arena's fixed slot capacity.
func (a *Arena) Capacity() uint32 { return a.capacity }

// Allocated returns the number of currently occupied slots.
func (a *Arena) Allocated() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocated
}
