// Package scenario defines the typed, in-memory configuration record
// ingested once at Coordinator startup. It deliberately does not parse
// files, flags, or environment variables: config-file loading is owned
// by the caller, this package only gives that caller a struct to fill
// in.
package scenario

import "time"

// AABB is an axis-aligned bounding box in the canonical NWU frame.
type AABB struct {
	Min [3]float64
	Max [3]float64
}

// PathLossModel selects one of the seven RF path-loss formulas.
type PathLossModel int

const (
	PathLossFriis PathLossModel = iota
	PathLossTwoRay
	PathLossLogDistance
	PathLossOkumuraHata
	PathLossCOST231Hata
	PathLossITUIndoor
	PathLossKnifeEdge
)

// AgentKind tags the variant of a spawned agent.
type AgentKind int

const (
	KindScout AgentKind = iota
	KindTransport
	KindCombat
	KindRelay
	KindCoordinator
)

// ChannelSpec describes one RF channel created at scenario setup.
type ChannelSpec struct {
	ID              uint16
	CenterFreqHz    float64
	BandwidthHz     float64
}

// AgentSpawnSpec describes one agent to create at Start.
type AgentSpawnSpec struct {
	Kind       AgentKind
	Position   [3]float64
	Quaternion [4]float64 // x, y, z, w; identity if zero value
	PolicyTag  string
}

// JammerTechnique selects the jammer's interference strategy.
type JammerTechnique int

const (
	JammerBarrage JammerTechnique = iota
	JammerSpot
	JammerSweep
	JammerFollower
	JammerDeceptive
)

// JammerSpec describes one adversarial emitter created at scenario setup.
type JammerSpec struct {
	Position     [3]float64
	TxPowerW     float64
	Technique    JammerTechnique
	CenterFreqHz float64
	BandwidthHz  float64
	DutyCycle    float64
	Active       bool
}

// FrameSpec describes the render subscriber's coordinate conventions,
// applied exactly once, on egress, by the transport layer.
type FrameSpec struct {
	// PositionScale converts canonical metres to the subscriber's unit
	// (e.g. 100.0 for centimetres).
	PositionScale float32
	// LeftHanded, when true, negates the Y component of vectors and
	// conjugates rotation quaternions to convert right-handed NWU into
	// a left-handed target frame.
	LeftHanded bool
}

// Scenario is the complete, typed configuration ingested once at
// Coordinator.Start.
type Scenario struct {
	WorldBounds           AABB
	NumWorkers            uint32
	PartitionGrid         [3]uint32 // Nx, Ny, Nz
	TickHz                float32
	PathLossModel         PathLossModel
	Channels              []ChannelSpec
	Agents                []AgentSpawnSpec
	Jammers               []JammerSpec
	RenderFrameConversion FrameSpec
	TransportPort         uint16
	StepDeadline          time.Duration
	MaxAgents             uint32
}

// Default returns a Scenario with reasonable out-of-the-box defaults
// filled in; callers override fields as needed before passing to Start.
func Default() Scenario {
	return Scenario{
		WorldBounds:   AABB{Min: [3]float64{0, 0, 0}, Max: [3]float64{1000, 1000, 100}},
		NumWorkers:    4,
		PartitionGrid: [3]uint32{4, 4, 1},
		TickHz:        60,
		PathLossModel: PathLossFriis,
		TransportPort: 41451,
		StepDeadline:  time.Second,
		MaxAgents:     100000,
		RenderFrameConversion: FrameSpec{
			PositionScale: 100.0,
			LeftHanded:    true,
		},
	}
}
