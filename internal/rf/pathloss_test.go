package rf

import (
	"testing"

	"github.com/fieldforge/orchestrator/internal/scenario"
)

func TestFriisPathLossIncreasesWithDistance(t *testing.T) {
	near := PathLossDB(scenario.PathLossFriis, PathLossParams{DistanceM: 10, FreqHz: 2.4e9})
	far := PathLossDB(scenario.PathLossFriis, PathLossParams{DistanceM: 1000, FreqHz: 2.4e9})
	if !(far > near) {
		t.Fatalf("path loss at 1000m (%v dB) should exceed loss at 10m (%v dB)", far, near)
	}
}

func TestFriisDoublingDistanceAdds6DB(t *testing.T) {
	d1 := PathLossDB(scenario.PathLossFriis, PathLossParams{DistanceM: 100, FreqHz: 2.4e9})
	d2 := PathLossDB(scenario.PathLossFriis, PathLossParams{DistanceM: 200, FreqHz: 2.4e9})
	delta := d2 - d1
	if delta < 5.9 || delta > 6.1 {
		t.Fatalf("doubling distance changed loss by %v dB, want ~6.02 dB", delta)
	}
}

func TestNoiseFloorIncreasesWithBandwidth(t *testing.T) {
	narrow := NoiseFloorDBm(20e6, 6, 290)
	wide := NoiseFloorDBm(40e6, 6, 290)
	if !(wide > narrow) {
		t.Fatalf("wider bandwidth (%v dBm) should have a higher noise floor than narrower (%v dBm)", wide, narrow)
	}
}

func TestReceivedPowerAccountsForAllTerms(t *testing.T) {
	got := ReceivedPowerDBm(20, 3, 3, 90, 2)
	want := 20 + 3 + 3 - 90 - 2
	if got != want {
		t.Fatalf("ReceivedPowerDBm = %v, want %v", got, want)
	}
}
