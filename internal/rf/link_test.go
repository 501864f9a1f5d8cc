package rf

import (
	"testing"

	"github.com/fieldforge/orchestrator/internal/world"
)

func TestBitErrorRateDecreasesWithSINR(t *testing.T) {
	low := BitErrorRate(0, world.ModulationQPSK)
	high := BitErrorRate(20, world.ModulationQPSK)
	if !(high < low) {
		t.Fatalf("BER at 20dB (%v) should be lower than BER at 0dB (%v)", high, low)
	}
}

func TestPacketErrorRateMonotonicInPacketLength(t *testing.T) {
	ber := 0.01
	short := PacketErrorRate(ber, 8)
	long := PacketErrorRate(ber, 800)
	if !(long > short) {
		t.Fatalf("PER over 800 bits (%v) should exceed PER over 8 bits (%v)", long, short)
	}
	if short < 0 || long > 1 {
		t.Fatalf("PER out of [0,1] range: short=%v long=%v", short, long)
	}
}

func TestPacketErrorRateZeroBitsIsZero(t *testing.T) {
	if got := PacketErrorRate(0.5, 0); got != 0 {
		t.Fatalf("PacketErrorRate with 0 bits = %v, want 0", got)
	}
}

func TestLinkUpRequiresBothThresholds(t *testing.T) {
	if !LinkUp(DefaultLinkUpThresholdDB, 0) {
		t.Fatal("link at exactly the SINR threshold with zero PER should be up")
	}
	if LinkUp(DefaultLinkUpThresholdDB, DefaultMaxPER+0.01) {
		t.Fatal("link with PER above DefaultMaxPER should be down regardless of SINR")
	}
	if LinkUp(DefaultLinkUpThresholdDB-0.01, 0) {
		t.Fatal("link below the SINR threshold should be down regardless of PER")
	}
}
