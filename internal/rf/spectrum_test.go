package rf

import (
	"testing"

	"github.com/fieldforge/orchestrator/internal/idgen"
	"github.com/fieldforge/orchestrator/internal/scenario"
)

func threeChannels() []scenario.ChannelSpec {
	return []scenario.ChannelSpec{
		{ID: 1, CenterFreqHz: 2.412e9, BandwidthHz: 20e6},
		{ID: 2, CenterFreqHz: 2.437e9, BandwidthHz: 20e6},
		{ID: 3, CenterFreqHz: 2.462e9, BandwidthHz: 20e6},
	}
}

func TestAllocateUnknownChannelErrors(t *testing.T) {
	s := NewSpectrumAllocator(threeChannels())
	if err := s.Allocate(idgen.AgentID(1), 99, 1.0); err == nil {
		t.Fatal("expected an error allocating an unknown channel id")
	}
}

func TestLeastUsedChannelPrefersEmptyChannel(t *testing.T) {
	s := NewSpectrumAllocator(threeChannels())
	if err := s.Allocate(idgen.AgentID(1), 1, 1.0); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := s.Allocate(idgen.AgentID(2), 1, 1.0); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	got, ok := s.LeastUsedChannel()
	if !ok {
		t.Fatal("expected a least-used channel")
	}
	if got == 1 {
		t.Fatalf("channel 1 already has two occupants, LeastUsedChannel should avoid it, got %d", got)
	}
}

func TestDeallocateFreesChannelForLeastUsed(t *testing.T) {
	s := NewSpectrumAllocator([]scenario.ChannelSpec{{ID: 1, CenterFreqHz: 2.4e9, BandwidthHz: 20e6}})
	if err := s.Allocate(idgen.AgentID(1), 1, 1.0); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	s.Deallocate(idgen.AgentID(1))
	ch, _ := s.ChannelSpec(1)
	_ = ch
	got, ok := s.LeastUsedChannel()
	if !ok || got != 1 {
		t.Fatalf("expected channel 1 to be reported empty after deallocate, got (%d, %v)", got, ok)
	}
}

func TestBestChannelAvoidsNearbyOccupant(t *testing.T) {
	s := NewSpectrumAllocator(threeChannels())
	occupantPos := [3]float64{0, 0, 0}
	if err := s.Allocate(idgen.AgentID(1), 1, 20.0); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	positions := map[idgen.AgentID][3]float64{1: occupantPos}

	// A candidate right next to the occupant should avoid channel 1.
	best, ok := s.BestChannel([3]float64{1, 0, 0}, positions)
	if !ok {
		t.Fatal("expected a best channel")
	}
	if best == 1 {
		t.Fatal("BestChannel should steer away from a high-power nearby occupant's channel")
	}
}

func TestChannelSpecUnknownIDReturnsFalse(t *testing.T) {
	s := NewSpectrumAllocator(threeChannels())
	if _, ok := s.ChannelSpec(999); ok {
		t.Fatal("expected ok=false for an unknown channel id")
	}
}

func TestHopScheduleDeterministicForSameSeed(t *testing.T) {
	a := HopSchedule(42, 50, 3)
	b := HopSchedule(42, 50, 3)
	if len(a) != 50 || len(b) != 50 {
		t.Fatalf("expected 50-length schedules, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("schedules diverge at index %d: %d vs %d", i, a[i], b[i])
		}
		if a[i] >= 3 {
			t.Fatalf("hop schedule index %d = %d, want < numChannels(3)", i, a[i])
		}
	}
}

func TestHopScheduleDiffersAcrossSeeds(t *testing.T) {
	a := HopSchedule(1, 20, 5)
	b := HopSchedule(2, 20, 5)
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("hop schedules for different seeds should not be identical")
	}
}

func TestHopScheduleEmptyInputs(t *testing.T) {
	if got := HopSchedule(1, 0, 5); got != nil {
		t.Fatalf("zero-length schedule should be nil, got %v", got)
	}
	if got := HopSchedule(1, 5, 0); got != nil {
		t.Fatalf("zero-channel schedule should be nil, got %v", got)
	}
}
