package rf

import (
	"math"
	"testing"

	"github.com/fieldforge/orchestrator/internal/scenario"
)

func barrageJammer() scenario.JammerSpec {
	return scenario.JammerSpec{
		Position: [3]float64{0, 0, 0}, TxPowerW: 10, Active: true,
		Technique: scenario.JammerBarrage, CenterFreqHz: 2.4e9, BandwidthHz: 20e6,
	}
}

func TestJammerInactiveHasNoEffect(t *testing.T) {
	j := barrageJammer()
	j.Active = false
	eff := JammerPowerAtReceiver(j, scenario.PathLossFriis, [3]float64{100, 0, 0}, 2.4e9, nil, nil, 1)
	if !math.IsInf(eff.JammedPowerDBm, -1) {
		t.Fatalf("inactive jammer should contribute -Inf dBm, got %v", eff.JammedPowerDBm)
	}
}

func TestJammerSpotOnlyAffectsMatchingBand(t *testing.T) {
	j := barrageJammer()
	j.Technique = scenario.JammerSpot

	inBand := JammerPowerAtReceiver(j, scenario.PathLossFriis, [3]float64{100, 0, 0}, 2.4e9, nil, nil, 1)
	if math.IsInf(inBand.JammedPowerDBm, -1) {
		t.Fatal("Spot jammer should affect a receiver on its own frequency")
	}
	outOfBand := JammerPowerAtReceiver(j, scenario.PathLossFriis, [3]float64{100, 0, 0}, 5.8e9, nil, nil, 1)
	if !math.IsInf(outOfBand.JammedPowerDBm, -1) {
		t.Fatal("Spot jammer should not affect a receiver far outside its band")
	}
}

func TestJammerSweepScalesWithDutyCycle(t *testing.T) {
	j := barrageJammer()
	j.Technique = scenario.JammerSweep
	j.DutyCycle = 1.0
	full := JammerPowerAtReceiver(j, scenario.PathLossFriis, [3]float64{100, 0, 0}, 2.4e9, nil, nil, 1)

	j.DutyCycle = 0.1
	partial := JammerPowerAtReceiver(j, scenario.PathLossFriis, [3]float64{100, 0, 0}, 2.4e9, nil, nil, 1)

	if !(partial.JammedPowerDBm < full.JammedPowerDBm) {
		t.Fatalf("10%% duty cycle (%v dBm) should jam less than 100%% duty cycle (%v dBm)", partial.JammedPowerDBm, full.JammedPowerDBm)
	}

	j.DutyCycle = 0
	zero := JammerPowerAtReceiver(j, scenario.PathLossFriis, [3]float64{100, 0, 0}, 2.4e9, nil, nil, 1)
	if !math.IsInf(zero.JammedPowerDBm, -1) {
		t.Fatal("zero duty cycle should never jam")
	}
}

func TestJammerDeceptivePenalizesSINROnly(t *testing.T) {
	j := barrageJammer()
	j.Technique = scenario.JammerDeceptive
	eff := JammerPowerAtReceiver(j, scenario.PathLossFriis, [3]float64{100, 0, 0}, 2.4e9, nil, nil, 1)
	if !math.IsInf(eff.JammedPowerDBm, -1) {
		t.Fatalf("Deceptive jammer must not add jamming power, got %v dBm", eff.JammedPowerDBm)
	}
	if eff.DeceptionPenalty != DefaultDeceptionPenaltyDB {
		t.Fatalf("DeceptionPenalty = %v, want %v", eff.DeceptionPenalty, DefaultDeceptionPenaltyDB)
	}
}

func TestJammerFollowerRequiresObservationAndMatchingBand(t *testing.T) {
	j := barrageJammer()
	j.Technique = scenario.JammerFollower

	channels := []scenario.ChannelSpec{
		{ID: 1, CenterFreqHz: 2.4e9, BandwidthHz: 20e6},
		{ID: 2, CenterFreqHz: 5.8e9, BandwidthHz: 20e6},
	}
	spectrum := NewSpectrumAllocator(channels)
	follower := NewFollowerState()

	// No observation yet: the follower has never seen the target, so it
	// cannot jam it this tick.
	unseen := JammerPowerAtReceiver(j, scenario.PathLossFriis, [3]float64{100, 0, 0}, 2.4e9, follower, spectrum, 7)
	if !math.IsInf(unseen.JammedPowerDBm, -1) {
		t.Fatal("Follower jammer should not jam a target it has never observed")
	}

	ch1 := uint16(1)
	follower.Observe(7, &ch1)

	matching := JammerPowerAtReceiver(j, scenario.PathLossFriis, [3]float64{100, 0, 0}, 2.4e9, follower, spectrum, 7)
	if math.IsInf(matching.JammedPowerDBm, -1) {
		t.Fatal("Follower jammer should jam a target still on its last-observed channel")
	}

	stale := JammerPowerAtReceiver(j, scenario.PathLossFriis, [3]float64{100, 0, 0}, 5.8e9, follower, spectrum, 7)
	if !math.IsInf(stale.JammedPowerDBm, -1) {
		t.Fatal("Follower jammer should not jam a target that has since hopped off the last-observed channel")
	}
}

func TestFollowerStateObserveNilChannelClearsEntry(t *testing.T) {
	f := NewFollowerState()
	ch := uint16(3)
	f.Observe(1, &ch)
	if _, ok := f.LastChannel(1); !ok {
		t.Fatal("expected channel to be recorded")
	}
	f.Observe(1, nil)
	if _, ok := f.LastChannel(1); ok {
		t.Fatal("expected channel to be cleared after observing nil")
	}
}

func TestSINRNeverExceedsSNR(t *testing.T) {
	snr := SNRDB(-60, -90)
	sinr := SINRDB(-60, -90, -70)
	if sinr > snr {
		t.Fatalf("SINR (%v) must never exceed SNR (%v)", sinr, snr)
	}
}
