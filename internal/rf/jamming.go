package rf

import (
	"math"
	"sync"

	"github.com/fieldforge/orchestrator/internal/scenario"
)

// DefaultDeceptionPenaltyDB is the SNR penalty applied by a Deceptive
// jammer. 6 dB approximates a moderate false-lock cost without a
// per-scenario calibration knob.
const DefaultDeceptionPenaltyDB = 6.0

// JammerEffect describes a jammer's impact on one link for one tick.
type JammerEffect struct {
	JammedPowerDBm   float64 // effective jamming power delivered at the receiver, dBm
	DeceptionPenalty float64 // dB subtracted directly from SINR instead of added to noise
}

// FollowerState tracks the channel a Follower jammer last observed its
// target using. The owning worker's comms stage records each live
// agent's channel just before computing that agent's links, in the same
// stage that evaluates jammers, so the recorded channel can be the one
// the target uses in the current tick rather than the previous one.
type FollowerState struct {
	mu                  sync.Mutex
	LastObservedChannel map[uint32]*uint16 // target agent id -> last-known channel
}

// NewFollowerState creates empty per-jammer follower tracking state.
func NewFollowerState() *FollowerState {
	return &FollowerState{LastObservedChannel: make(map[uint32]*uint16)}
}

// Observe records the channel a target agent uses this tick; a nil
// channel clears the entry. Called once per tick per live agent from
// the owning worker's comms stage, before that agent's links (and the
// Follower jammers acting on them) are evaluated.
func (f *FollowerState) Observe(targetAgent uint32, channel *uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if channel == nil {
		delete(f.LastObservedChannel, targetAgent)
		return
	}
	ch := *channel
	f.LastObservedChannel[targetAgent] = &ch
}

// LastChannel returns the channel the Follower jammer believes the
// target is using: the one most recently recorded by Observe.
func (f *FollowerState) LastChannel(targetAgent uint32) (uint16, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.LastObservedChannel[targetAgent]
	if !ok || ch == nil {
		return 0, false
	}
	return *ch, true
}

// JammerPowerAtReceiver computes the jamming effect of one jammer on one
// receiver, given the path loss model and the agent's own channel.
//
// follower, spectrum, and targetAgentID are only consulted for
// JammerFollower; pass nil follower/spectrum for non-Follower jammers.
func JammerPowerAtReceiver(j scenario.JammerSpec, model scenario.PathLossModel, receiverPos [3]float64, agentFreqHz float64, follower *FollowerState, spectrum *SpectrumAllocator, targetAgentID uint32) JammerEffect {
	if !j.Active {
		return JammerEffect{JammedPowerDBm: math.Inf(-1)}
	}

	dx := receiverPos[0] - j.Position[0]
	dy := receiverPos[1] - j.Position[1]
	dz := receiverPos[2] - j.Position[2]
	dist := math.Sqrt(dx*dx + dy*dy + dz*dz)

	loss := PathLossDB(model, PathLossParams{DistanceM: dist, FreqHz: j.CenterFreqHz})
	txDBm := 10 * math.Log10(math.Max(j.TxPowerW, 1e-12)*1000)
	fullPowerDBm := txDBm - loss

	switch j.Technique {
	case scenario.JammerBarrage:
		return JammerEffect{JammedPowerDBm: fullPowerDBm}

	case scenario.JammerSpot:
		if math.Abs(agentFreqHz-j.CenterFreqHz) < j.BandwidthHz/2 {
			return JammerEffect{JammedPowerDBm: fullPowerDBm}
		}
		return JammerEffect{JammedPowerDBm: math.Inf(-1)}

	case scenario.JammerSweep:
		duty := clampUnit(j.DutyCycle)
		effectiveW := j.TxPowerW * duty
		if effectiveW <= 0 {
			return JammerEffect{JammedPowerDBm: math.Inf(-1)}
		}
		effectiveDBm := 10*math.Log10(effectiveW*1000) - loss
		return JammerEffect{JammedPowerDBm: effectiveDBm}

	case scenario.JammerFollower:
		if follower == nil || spectrum == nil {
			return JammerEffect{JammedPowerDBm: math.Inf(-1)}
		}
		lastCh, ok := follower.LastChannel(targetAgentID)
		if !ok {
			return JammerEffect{JammedPowerDBm: math.Inf(-1)}
		}
		// The jammer believes the target is on lastCh, the channel most
		// recently observed for it. It only jams effectively if the agent's current frequency still
		// falls inside the band that last-known channel occupies.
		lastChSpec, ok := spectrum.ChannelSpec(lastCh)
		if !ok {
			return JammerEffect{JammedPowerDBm: math.Inf(-1)}
		}
		if math.Abs(agentFreqHz-lastChSpec.CenterFreqHz) < lastChSpec.BandwidthHz/2 {
			return JammerEffect{JammedPowerDBm: fullPowerDBm}
		}
		return JammerEffect{JammedPowerDBm: math.Inf(-1)}

	case scenario.JammerDeceptive:
		return JammerEffect{DeceptionPenalty: DefaultDeceptionPenaltyDB}

	default:
		return JammerEffect{JammedPowerDBm: math.Inf(-1)}
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SINRDB combines received signal power, noise floor, and total jammer
// power (all dBm) into SINR in dB:
// SINR = Pr - 10*log10(10^(N/10) + 10^(J/10))
func SINRDB(receivedPowerDBm, noiseFloorDBm, totalJammerPowerDBm float64) float64 {
	nLinear := dBmToLinearMW(noiseFloorDBm)
	jLinear := 0.0
	if !math.IsInf(totalJammerPowerDBm, -1) {
		jLinear = dBmToLinearMW(totalJammerPowerDBm)
	}
	denomDBm := linearMWToDBm(nLinear + jLinear)
	return receivedPowerDBm - denomDBm
}

// SNRDB is SINR with zero jammer contribution — the signal-to-noise
// ratio before interference. SINR(a) <= SNR(a) always holds because
// jamming only adds to the denominator.
func SNRDB(receivedPowerDBm, noiseFloorDBm float64) float64 {
	return receivedPowerDBm - noiseFloorDBm
}
