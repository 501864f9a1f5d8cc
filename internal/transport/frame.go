package transport

import (
	"github.com/fieldforge/orchestrator/internal/scenario"
	"github.com/fieldforge/orchestrator/internal/world"
)

// ConvertPosition maps a canonical NWU-metres position into the render
// subscriber's frame. This is the single conversion site — no other
// package in this module touches coordinate convention.
func ConvertPosition(pos [3]float64, f scenario.FrameSpec) [3]float32 {
	scale := f.PositionScale
	if scale == 0 {
		scale = 1
	}
	x, y, z := float32(pos[0])*scale, float32(pos[1])*scale, float32(pos[2])*scale
	if f.LeftHanded {
		y = -y
	}
	return [3]float32{x, y, z}
}

// ConvertOrientation maps a canonical right-handed quaternion into the
// render subscriber's frame, conjugating it when the target frame is
// left-handed.
func ConvertOrientation(q world.Quaternion, f scenario.FrameSpec) [4]float32 {
	if f.LeftHanded {
		return [4]float32{float32(-q.X), float32(-q.Y), float32(-q.Z), float32(q.W)}
	}
	return [4]float32{float32(q.X), float32(q.Y), float32(q.Z), float32(q.W)}
}

// BuildPositionRecord converts one agent's pose into a wire
// PositionRecord.
func BuildPositionRecord(id int32, pose world.Pose, f scenario.FrameSpec) PositionRecord {
	return PositionRecord{
		ID:   id,
		Pos:  ConvertPosition(pose.Position, f),
		Quat: ConvertOrientation(pose.Orientation, f),
	}
}

// BuildSpawnRecord converts one agent's spawn-time state into a wire
// SpawnRecord.
func BuildSpawnRecord(id int32, kind scenario.AgentKind, pose world.Pose, f scenario.FrameSpec) SpawnRecord {
	return SpawnRecord{
		ID:   id,
		Kind: uint8(kind),
		Pos:  ConvertPosition(pose.Position, f),
		Quat: ConvertOrientation(pose.Orientation, f),
	}
}

const (
	telemetryFlagArmed      uint8 = 1 << 0
	telemetryFlagJammed     uint8 = 1 << 1
	telemetryFlagOutOfBound uint8 = 1 << 2
)

// BuildDebugLine converts one comms link's endpoints into a wire
// DebugLine, used by the MsgDebugLines visualization mode.
func BuildDebugLine(a, b [3]float64, f scenario.FrameSpec, rgba [4]uint8, thickness float32) DebugLine {
	return DebugLine{
		A:         ConvertPosition(a, f),
		B:         ConvertPosition(b, f),
		RGBA:      rgba,
		Thickness: thickness,
	}
}

// BuildDebugSphere converts one jammer's footprint into a wire
// DebugSphere, used by the MsgDebugSpheres visualization mode. radiusM
// is in canonical metres and is scaled by the same PositionScale as
// position, so the sphere stays proportionate to the scene.
func BuildDebugSphere(center [3]float64, radiusM float64, f scenario.FrameSpec, rgba [4]uint8) DebugSphere {
	scale := f.PositionScale
	if scale == 0 {
		scale = 1
	}
	return DebugSphere{
		Center: ConvertPosition(center, f),
		Radius: float32(radiusM) * scale,
		RGBA:   rgba,
	}
}

// BuildTelemetryRecord converts one agent's telemetry into a wire
// TelemetryRecord, packing booleans into the flags byte.
func BuildTelemetryRecord(id int32, a world.Agent) TelemetryRecord {
	var flags uint8
	if a.Telemetry.Armed {
		flags |= telemetryFlagArmed
	}
	if a.Comms.JammedLastTick {
		flags |= telemetryFlagJammed
	}
	if a.OutOfBounds {
		flags |= telemetryFlagOutOfBound
	}
	return TelemetryRecord{
		ID:        id,
		Battery:   float32(a.Telemetry.BatteryFrac),
		Health:    float32(a.Telemetry.HealthFrac),
		SignalDBm: float32(a.Telemetry.SignalDBm),
		Flags:     flags,
	}
}
