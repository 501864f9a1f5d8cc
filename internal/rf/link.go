package rf

import (
	"math"

	"github.com/fieldforge/orchestrator/internal/world"
)

// Default link-up criteria: SINR >= threshold and PER <= max.
const (
	DefaultLinkUpThresholdDB = 3.0
	DefaultMaxPER            = 0.1
)

// erfc is the Abramowitz & Stegun 7.1.26 rational approximation,
// accurate to 1.5e-7.
func erfc(x float64) float64 {
	if x < 0 {
		return 2 - erfc(-x)
	}
	const (
		a1 = 0.254829592
		a2 = -0.284496736
		a3 = 1.421413741
		a4 = -1.453152027
		a5 = 1.061405429
		p  = 0.3275911
	)
	t := 1 / (1 + p*x)
	poly := ((((a5*t+a4)*t+a3)*t+a2)*t + a1) * t
	return poly * math.Exp(-x*x)
}

// BitErrorRate estimates BER from SINR (in dB) for the given
// modulation, using the standard closed-form Q-function approximations
// for each scheme.
func BitErrorRate(sinrDB float64, mod world.Modulation) float64 {
	sinrLinear := math.Pow(10, sinrDB/10)
	switch mod {
	case world.ModulationBPSK:
		return 0.5 * erfc(math.Sqrt(sinrLinear))
	case world.ModulationQPSK:
		return 0.5 * erfc(math.Sqrt(sinrLinear*0.5))
	case world.ModulationQAM16:
		return 0.375 * math.Exp(-sinrLinear/5)
	case world.ModulationQAM64:
		return 0.29 * math.Exp(-sinrLinear/21)
	default:
		return 0.5 * erfc(math.Sqrt(sinrLinear))
	}
}

// PacketErrorRate computes PER for an L-bit packet given a per-bit BER:
// PER = 1 - (1-BER)^L.
func PacketErrorRate(ber float64, packetBits int) float64 {
	if packetBits <= 0 {
		return 0
	}
	return 1 - math.Pow(1-ber, float64(packetBits))
}

// LinkUp reports whether a link meets the default up criteria.
func LinkUp(sinrDB, per float64) bool {
	return sinrDB >= DefaultLinkUpThresholdDB && per <= DefaultMaxPER
}
