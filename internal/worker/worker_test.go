package worker

import (
	"math"
	"testing"
	"testing/quick"

	"github.com/fieldforge/orchestrator/internal/world"
)

// TestQuickIntegrateOrientationPreservesUnitNorm property-checks the
// invariant integrateOrientation's doc comment claims: renormalizing
// after every integration step holds the unit-quaternion invariant
// regardless of the angular velocity or initial orientation fed in.
func TestQuickIntegrateOrientationPreservesUnitNorm(t *testing.T) {
	f := func(qx, qy, qz, qw, wx, wy, wz float64) bool {
		q := world.Quaternion{X: qx, Y: qy, Z: qz, W: qw}.Normalized()
		omega := boundedVec3(wx, wy, wz)
		out := integrateOrientation(q, omega, 1.0/60.0)
		n := out.Norm()
		return n >= 1-world.QuaternionNormTolerance*10 && n <= 1+world.QuaternionNormTolerance*10
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 500}); err != nil {
		t.Error(err)
	}
}

func boundedVec3(x, y, z float64) [3]float64 {
	return [3]float64{boundedRad(x), boundedRad(y), boundedRad(z)}
}

func boundedRad(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Mod(v, 10.0)
}

func TestCheckPoseInvariantsRejectsNonFinitePosition(t *testing.T) {
	a := world.Agent{Pose: world.Pose{
		Position:    [3]float64{math.NaN(), 0, 0},
		Orientation: world.IdentityQuaternion(),
	}}
	if err := checkPoseInvariants(a); err == nil {
		t.Fatal("expected an error for a NaN position component")
	}
}

func TestCheckPoseInvariantsRejectsDriftedQuaternion(t *testing.T) {
	a := world.Agent{Pose: world.Pose{
		Position:    [3]float64{0, 0, 0},
		Orientation: world.Quaternion{X: 5, Y: 0, Z: 0, W: 0},
	}}
	if err := checkPoseInvariants(a); err == nil {
		t.Fatal("expected an error for a grossly non-unit quaternion")
	}
}

func TestCheckPoseInvariantsAcceptsValidPose(t *testing.T) {
	a := world.Agent{Pose: world.Pose{
		Position:    [3]float64{1, 2, 3},
		Orientation: world.IdentityQuaternion(),
	}}
	if err := checkPoseInvariants(a); err != nil {
		t.Fatalf("unexpected error for a valid pose: %v", err)
	}
}

func TestWithinCommsRadius(t *testing.T) {
	a := [3]float64{0, 0, 0}
	near := [3]float64{100, 0, 0}
	far := [3]float64{defaultCommsRadiusM * 2, 0, 0}
	if !withinCommsRadius(a, near, defaultCommsRadiusM) {
		t.Fatal("expected a nearby point to be within comms radius")
	}
	if withinCommsRadius(a, far, defaultCommsRadiusM) {
		t.Fatal("expected a far point to be outside comms radius")
	}
}
