package rf

import (
	"math"
	"sync"

	"github.com/fieldforge/orchestrator/internal/idgen"
	"github.com/fieldforge/orchestrator/internal/scenario"
	"github.com/fieldforge/orchestrator/internal/xerrors"
)

// SpectrumAllocator tracks per-channel occupancy and aggregate transmit
// power. Single-writer (Coordinator, at tick-boundary reallocation),
// multi-reader (Workers, during the comms stage) — callers on the read
// path should prefer the snapshot accessors over holding the lock
// across their own work.
type SpectrumAllocator struct {
	mu       sync.RWMutex
	channels map[uint16]*channelState
	order    []uint16 // stable iteration order for LeastUsedChannel ties
}

type channelState struct {
	spec      scenario.ChannelSpec
	occupants map[idgen.AgentID]float64 // agent -> tx power W
}

// NewSpectrumAllocator builds an allocator seeded with the scenario's
// channel table.
func NewSpectrumAllocator(channels []scenario.ChannelSpec) *SpectrumAllocator {
	s := &SpectrumAllocator{channels: make(map[uint16]*channelState, len(channels))}
	for _, c := range channels {
		s.channels[c.ID] = &channelState{spec: c, occupants: make(map[idgen.AgentID]float64)}
		s.order = append(s.order, c.ID)
	}
	return s
}

// Allocate records an agent's occupancy of a channel at the given
// transmit power.
func (s *SpectrumAllocator) Allocate(agent idgen.AgentID, channelID uint16, txPowerW float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return xerrors.InvalidArgument("unknown channel")
	}
	ch.occupants[agent] = txPowerW
	return nil
}

// Deallocate removes an agent's occupancy from whichever channel it
// holds, if any.
func (s *SpectrumAllocator) Deallocate(agent idgen.AgentID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.channels {
		delete(ch.occupants, agent)
	}
}

func (s *SpectrumAllocator) aggregatePowerW(ch *channelState) float64 {
	total := 0.0
	for _, p := range ch.occupants {
		total += p
	}
	return total
}

// LeastUsedChannel returns the channel with the fewest occupants,
// breaking ties by lowest aggregate transmit power.
func (s *SpectrumAllocator) LeastUsedChannel() (uint16, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.order) == 0 {
		return 0, false
	}
	best := s.order[0]
	bestCount := len(s.channels[best].occupants)
	bestPower := s.aggregatePowerW(s.channels[best])
	for _, id := range s.order[1:] {
		ch := s.channels[id]
		count := len(ch.occupants)
		power := s.aggregatePowerW(ch)
		if count < bestCount || (count == bestCount && power < bestPower) {
			best, bestCount, bestPower = id, count, power
		}
	}
	return best, true
}

// BestChannel returns the channel minimizing expected interference at a
// given position, using free-space path loss from every occupant as a
// proxy for received interference power — cheaper than running the
// scenario's full path-loss model for a planning-time call, and
// consistent in ranking since all candidates share the same model.
func (s *SpectrumAllocator) BestChannel(position [3]float64, occupantPositions map[idgen.AgentID][3]float64) (uint16, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.order) == 0 {
		return 0, false
	}

	bestID := s.order[0]
	bestInterference := s.expectedInterferenceW(bestID, position, occupantPositions)
	for _, id := range s.order[1:] {
		interference := s.expectedInterferenceW(id, position, occupantPositions)
		if interference < bestInterference {
			bestID, bestInterference = id, interference
		}
	}
	return bestID, true
}

func (s *SpectrumAllocator) expectedInterferenceW(channelID uint16, at [3]float64, positions map[idgen.AgentID][3]float64) float64 {
	ch := s.channels[channelID]
	total := 0.0
	for agent, txPowerW := range ch.occupants {
		pos, ok := positions[agent]
		if !ok {
			continue
		}
		dx, dy, dz := at[0]-pos[0], at[1]-pos[1], at[2]-pos[2]
		dist := math.Max(math.Sqrt(dx*dx+dy*dy+dz*dz), 1e-3)
		lossDB := friisDB(dist, ch.spec.CenterFreqHz)
		txDBm := linearMWToDBm(txPowerW * 1000)
		total += dBmToLinearMW(txDBm-lossDB) / 1000
	}
	return total
}

// ChannelSpec returns the channel definition for a channel id.
func (s *SpectrumAllocator) ChannelSpec(channelID uint16) (scenario.ChannelSpec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return scenario.ChannelSpec{}, false
	}
	return ch.spec, true
}

// lcgA and lcgC are the multiplier and increment of the linear
// congruential generator behind HopSchedule (modulus 2^32, through
// uint32 overflow), deterministic for a given seed so hop schedules
// replay identically.
const (
	lcgA = 1664525
	lcgC = 1013904223
)

// HopSchedule produces a deterministic pseudo-random sequence of
// channel ids using the specified LCG seeded with seed, selecting among
// the numChannels available channels by modulo.
func HopSchedule(seed uint32, length int, numChannels int) []uint16 {
	if numChannels <= 0 || length <= 0 {
		return nil
	}
	out := make([]uint16, length)
	state := seed
	for i := 0; i < length; i++ {
		state = lcgA*state + lcgC // wraps at 2^32 via uint32 overflow
		out[i] = uint16(state % uint32(numChannels))
	}
	return out
}
