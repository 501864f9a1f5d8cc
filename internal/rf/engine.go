package rf

import (
	"math"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/fieldforge/orchestrator/internal/scenario"
	"github.com/fieldforge/orchestrator/internal/world"
)

// Engine bundles everything a Worker's comms stage needs for one
// scenario: the selected path-loss model, jammer follower state, the
// spectrum allocator, and a reusable bloom filter for topology
// deduplication across ticks.
type Engine struct {
	Model      scenario.PathLossModel
	Spectrum   *SpectrumAllocator
	Follower   *FollowerState
	dedupBloom *bloom.BloomFilter

	TxPowerDBm    float64
	TxGainDBi     float64
	RxGainDBi     float64
	MiscLossDB    float64
	NoiseFigureDB float64
	PacketBits    int
}

// NewEngine constructs an Engine with spec-reasonable radio defaults.
func NewEngine(model scenario.PathLossModel, channels []scenario.ChannelSpec) *Engine {
	return &Engine{
		Model:         model,
		Spectrum:      NewSpectrumAllocator(channels),
		Follower:      NewFollowerState(),
		dedupBloom:    bloom.NewWithEstimatedItems(10000, 0.01),
		TxPowerDBm:    20,
		TxGainDBi:     0,
		RxGainDBi:     0,
		MiscLossDB:    0,
		NoiseFigureDB: 6,
		PacketBits:    1024,
	}
}

// ComputeLink evaluates one directed link between source and dest,
// folding in every active jammer's contribution, and returns the full
// Link record plus whether it is up.
func (e *Engine) ComputeLink(source, dest world.Agent, jammers []scenario.JammerSpec, freqHz float64) world.Link {
	dx := dest.Pose.Position[0] - source.Pose.Position[0]
	dy := dest.Pose.Position[1] - source.Pose.Position[1]
	dz := dest.Pose.Position[2] - source.Pose.Position[2]
	dist := math.Sqrt(dx*dx + dy*dy + dz*dz)

	loss := PathLossDB(e.Model, PathLossParams{DistanceM: dist, FreqHz: freqHz})
	prDBm := ReceivedPowerDBm(e.TxPowerDBm, e.TxGainDBi, e.RxGainDBi, loss, e.MiscLossDB)
	noiseDBm := NoiseFloorDBm(bandwidthOf(e, freqHz), e.NoiseFigureDB, 290)

	totalJammerLinearMW := 0.0
	hasJammer := false
	deceptionPenalty := 0.0
	for _, j := range jammers {
		// dest is the receiver this call evaluates; a Follower jammer
		// tracks whichever agent it is trying to deny, which is dest here.
		eff := JammerPowerAtReceiver(j, e.Model, dest.Pose.Position, freqHz, e.Follower, e.Spectrum, uint32(dest.ID))
		if eff.DeceptionPenalty > 0 {
			deceptionPenalty += eff.DeceptionPenalty
			continue
		}
		if math.IsInf(eff.JammedPowerDBm, -1) {
			continue
		}
		hasJammer = true
		totalJammerLinearMW += dBmToLinearMW(eff.JammedPowerDBm)
	}

	totalJammerDBm := math.Inf(-1)
	if hasJammer {
		totalJammerDBm = linearMWToDBm(totalJammerLinearMW)
	}

	snr := SNRDB(prDBm, noiseDBm)
	sinr := SINRDB(prDBm, noiseDBm, totalJammerDBm) - deceptionPenalty

	mod := modulationForSINR(sinr)
	ber := BitErrorRate(sinr, mod)
	per := PacketErrorRate(ber, e.PacketBits)

	return world.Link{
		Source:       source.ID,
		Dest:         dest.ID,
		RSSIDBm:      prDBm,
		SNRDB:        snr,
		SINRDB:       sinr,
		PacketLoss:   per,
		LatencyMs:    dist / 299792458.0 * 1000,
		BandwidthBps: 0,
		Modulation:   mod,
		Up:           LinkUp(sinr, per),
	}
}

func bandwidthOf(e *Engine, freqHz float64) float64 {
	if chID, ok := e.Spectrum.LeastUsedChannel(); ok {
		if spec, ok := e.Spectrum.ChannelSpec(chID); ok {
			return spec.BandwidthHz
		}
	}
	return 20e6 // fallback: 20 MHz, a common default channel width
}

// modulationForSINR picks a modulation scheme matching the link's SINR,
// mirroring adaptive modulation used by real radios: higher SINR allows
// a denser constellation.
func modulationForSINR(sinrDB float64) world.Modulation {
	switch {
	case sinrDB >= 25:
		return world.ModulationQAM64
	case sinrDB >= 15:
		return world.ModulationQAM16
	case sinrDB >= 8:
		return world.ModulationQPSK
	default:
		return world.ModulationBPSK
	}
}

// DedupFilter exposes the engine's reusable bloom filter for
// topology.BuildTopology calls across ticks.
func (e *Engine) DedupFilter() *bloom.BloomFilter { return e.dedupBloom }

// ResetDedupFilter clears accumulated state, e.g. across a scenario
// reset.
func (e *Engine) ResetDedupFilter(estimatedItems uint, falsePositiveRate float64) {
	e.dedupBloom = bloom.NewWithEstimatedItems(estimatedItems, falsePositiveRate)
}
