package forge

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

// Fixed picture for every gizmo test: camera on +Z looking at the origin,
// selected entity at the origin, so the gizmo scale is 10 * 0.15 = 1.5.
const (
	gizmoTestWinW = 800.0
	gizmoTestWinH = 600.0
)

func gizmoTestSetup(t *testing.T) (*GizmoManager, *Scene, EntityId, CameraComponent, mgl32.Mat4) {
	t.Helper()

	scene, _ := newTestScene()
	eid := scene.CreateEntity(DefaultTransform())

	cam := DefaultCamera()
	cam.Position = mgl32.Vec3{0, 0, 10}
	cam.LookAt = mgl32.Vec3{0, 0, 0}
	viewProj := cam.ViewProj(gizmoTestWinW / gizmoTestWinH)

	return NewGizmoManager(), scene, eid, cam, viewProj
}

// rayThrough aims the picking ray from the camera exactly through a world
// point, and mouseOver gives the matching cursor position for picking.
func rayThrough(cam CameraComponent, p mgl32.Vec3) (mgl32.Vec3, mgl32.Vec3) {
	return cam.Position, p.Sub(cam.Position).Normalize()
}

func mouseOver(t *testing.T, p mgl32.Vec3, viewProj mgl32.Mat4) mgl32.Vec2 {
	t.Helper()
	sp, ok := projectToScreen(p, viewProj, gizmoTestWinW, gizmoTestWinH)
	if !ok {
		t.Fatalf("test point %v is not visible", p)
	}
	return sp
}

func gizmoFrame(gm *GizmoManager, scene *Scene, eid EntityId, cam CameraComponent, viewProj mgl32.Mat4, target mgl32.Vec3, down bool) (TransformComponent, bool) {
	origin, dir := rayThrough(cam, target)
	sp, _ := projectToScreen(target, viewProj, gizmoTestWinW, gizmoTestWinH)
	return gm.Update(origin, dir, sp.X(), sp.Y(), gizmoTestWinW, gizmoTestWinH, viewProj, down, eid, scene, cam.Position)
}

func TestGizmoManager_Scale(t *testing.T) {
	gm := NewGizmoManager()
	got := gm.Scale(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, 10})
	if math.Abs(float64(got-1.5)) > 1e-6 {
		t.Errorf("expected gizmo scale 1.5 at distance 10, got %v", got)
	}
}

func TestGizmoManager_HoverXAxis(t *testing.T) {
	gm, scene, eid, cam, viewProj := gizmoTestSetup(t)

	// Midpoint of the X handle (half of the 1.5 world-unit arm).
	gizmoFrame(gm, scene, eid, cam, viewProj, mgl32.Vec3{0.75, 0, 0}, false)

	if gm.HoveredAxis != 0 {
		t.Errorf("expected X axis hovered, got %d", gm.HoveredAxis)
	}
	if gm.ActiveAxis != AxisNone {
		t.Errorf("hover must not start a drag")
	}
}

func TestGizmoManager_HoverNoneFarAway(t *testing.T) {
	gm, scene, eid, cam, viewProj := gizmoTestSetup(t)

	gizmoFrame(gm, scene, eid, cam, viewProj, mgl32.Vec3{5, 5, 0}, false)
	if gm.HoveredAxis != AxisNone {
		t.Errorf("expected no hover far from the handles, got %d", gm.HoveredAxis)
	}

	// Pressing with nothing hovered must not begin a drag.
	gizmoFrame(gm, scene, eid, cam, viewProj, mgl32.Vec3{5, 5, 0}, true)
	if gm.ActiveAxis != AxisNone {
		t.Errorf("expected no active axis, got %d", gm.ActiveAxis)
	}
}

func TestGizmoManager_TranslateDrag(t *testing.T) {
	gm, scene, eid, cam, viewProj := gizmoTestSetup(t)
	gm.Mode = GizmoModeTranslate

	// Hover, press, drag 2 world units along X, release.
	gizmoFrame(gm, scene, eid, cam, viewProj, mgl32.Vec3{0.75, 0, 0}, false)
	gizmoFrame(gm, scene, eid, cam, viewProj, mgl32.Vec3{0.75, 0, 0}, true)
	if gm.ActiveAxis != 0 {
		t.Fatalf("expected a drag on the X axis, got %d", gm.ActiveAxis)
	}

	_, ok := gizmoFrame(gm, scene, eid, cam, viewProj, mgl32.Vec3{2.75, 0, 0}, true)
	if ok {
		t.Errorf("no commit while the pointer is down")
	}

	tr, _ := GetComponent[TransformComponent](scene, eid)
	if !approxEqualVec3(tr.Position, mgl32.Vec3{2, 0, 0}, 2e-3) {
		t.Errorf("expected position (2,0,0), got %v", tr.Position)
	}
	if tr.Position.Y() != 0 || tr.Position.Z() != 0 {
		t.Errorf("translate must stay on the dragged axis, got %v", tr.Position)
	}

	committed, ok := gizmoFrame(gm, scene, eid, cam, viewProj, mgl32.Vec3{2.75, 0, 0}, false)
	if !ok {
		t.Fatalf("release must hand back the pre-drag transform")
	}
	if !approxEqualVec3(committed.Position, mgl32.Vec3{0, 0, 0}, 1e-6) {
		t.Errorf("expected the pre-drag position, got %v", committed.Position)
	}
	if gm.ActiveAxis != AxisNone {
		t.Errorf("drag must end on release")
	}

	// The pre-drag pose is delivered exactly once.
	if _, ok := gizmoFrame(gm, scene, eid, cam, viewProj, mgl32.Vec3{2.75, 0, 0}, false); ok {
		t.Errorf("commit must not repeat")
	}
}

func TestGizmoManager_ScaleDrag(t *testing.T) {
	gm, scene, eid, cam, viewProj := gizmoTestSetup(t)
	gm.Mode = GizmoModeScale

	gizmoFrame(gm, scene, eid, cam, viewProj, mgl32.Vec3{0.75, 0, 0}, false)
	gizmoFrame(gm, scene, eid, cam, viewProj, mgl32.Vec3{0.75, 0, 0}, true)
	if gm.ActiveAxis != 0 {
		t.Fatalf("expected a drag on the X axis, got %d", gm.ActiveAxis)
	}

	gizmoFrame(gm, scene, eid, cam, viewProj, mgl32.Vec3{2.75, 0, 0}, true)

	tr, _ := GetComponent[TransformComponent](scene, eid)
	// Grab distance 0.75, dragged +2: factor 1 + 2/0.75.
	want := float32(1 + 2.0/0.75)
	if math.Abs(float64(tr.Scale.X()-want)) > 5e-3 {
		t.Errorf("expected X scale %v, got %v", want, tr.Scale.X())
	}
	if tr.Scale.Y() != 1 || tr.Scale.Z() != 1 {
		t.Errorf("scale must only change on the active axis, got %v", tr.Scale)
	}
}

func TestGizmoManager_RotateDrag(t *testing.T) {
	gm, scene, eid, cam, viewProj := gizmoTestSetup(t)
	gm.Mode = GizmoModeRotate

	// A point on the Z ring away from the X/Y rings (45 degrees into the
	// XY plane, radius 1.5).
	s := float32(1.5 * math.Sqrt2 / 2)
	start := mgl32.Vec3{-s, -s, 0}

	gizmoFrame(gm, scene, eid, cam, viewProj, start, false)
	if gm.HoveredAxis != 2 {
		t.Fatalf("expected the Z ring hovered, got %d", gm.HoveredAxis)
	}

	gizmoFrame(gm, scene, eid, cam, viewProj, start, true)
	if gm.ActiveAxis != 2 {
		t.Fatalf("expected a drag on the Z ring, got %d", gm.ActiveAxis)
	}

	// Drag the grab point a quarter turn counter-clockwise around Z.
	end := mgl32.Vec3{s, -s, 0}
	gizmoFrame(gm, scene, eid, cam, viewProj, end, true)

	tr, _ := GetComponent[TransformComponent](scene, eid)
	rotated := tr.Rotation.Rotate(mgl32.Vec3{1, 0, 0})
	if !approxEqualVec3(rotated, mgl32.Vec3{0, 1, 0}, 1e-3) {
		t.Errorf("expected a +90 degree rotation about Z, X axis maps to %v", rotated)
	}

	committed, ok := gizmoFrame(gm, scene, eid, cam, viewProj, end, false)
	if !ok {
		t.Fatalf("release must hand back the pre-drag transform")
	}
	identityX := committed.Rotation.Rotate(mgl32.Vec3{1, 0, 0})
	if !approxEqualVec3(identityX, mgl32.Vec3{1, 0, 0}, 1e-5) {
		t.Errorf("pre-drag rotation should be identity, X axis maps to %v", identityX)
	}
}

func TestGizmoManager_ResetOnDeadSelection(t *testing.T) {
	gm, scene, eid, cam, viewProj := gizmoTestSetup(t)

	gizmoFrame(gm, scene, eid, cam, viewProj, mgl32.Vec3{0.75, 0, 0}, false)
	gizmoFrame(gm, scene, eid, cam, viewProj, mgl32.Vec3{0.75, 0, 0}, true)
	if gm.ActiveAxis != 0 {
		t.Fatalf("expected an active drag")
	}

	scene.RemoveEntity(eid)
	_, ok := gizmoFrame(gm, scene, eid, cam, viewProj, mgl32.Vec3{0.75, 0, 0}, true)
	if ok {
		t.Errorf("a dead selection must not commit")
	}
	if gm.ActiveAxis != AxisNone || gm.HoveredAxis != AxisNone {
		t.Errorf("state machine should reset on a dead selection")
	}
}

func TestRayLineClosest(t *testing.T) {
	// Ray from above, straight down onto the X axis at x=3.
	s, rayT, ok := rayLineClosest(
		mgl32.Vec3{3, 5, 0}, mgl32.Vec3{0, -1, 0},
		mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0},
	)
	if !ok {
		t.Fatalf("expected a solution")
	}
	if math.Abs(float64(s-3)) > 1e-5 {
		t.Errorf("expected line parameter 3, got %v", s)
	}
	if math.Abs(float64(rayT-5)) > 1e-5 {
		t.Errorf("expected ray parameter 5, got %v", rayT)
	}

	// Parallel ray has no closest point.
	if _, _, ok := rayLineClosest(
		mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0},
		mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0},
	); ok {
		t.Errorf("parallel lines should report no solution")
	}
}

func TestRayPlaneHit(t *testing.T) {
	hit, ok := rayPlaneHit(mgl32.Vec3{1, 2, 5}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, 1})
	if !ok {
		t.Fatalf("expected a hit")
	}
	if !approxEqualVec3(hit, mgl32.Vec3{1, 2, 0}, 1e-5) {
		t.Errorf("expected hit (1,2,0), got %v", hit)
	}

	// Behind the origin, or parallel to the plane: no hit.
	if _, ok := rayPlaneHit(mgl32.Vec3{0, 0, -5}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, 1}); ok {
		t.Errorf("plane behind the ray should not hit")
	}
	if _, ok := rayPlaneHit(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, 1}); ok {
		t.Errorf("parallel ray should not hit")
	}
}

func TestPointSegmentDistance2D(t *testing.T) {
	a := mgl32.Vec2{0, 0}
	b := mgl32.Vec2{10, 0}

	if d := pointSegmentDistance2D(mgl32.Vec2{5, 3}, a, b); math.Abs(float64(d-3)) > 1e-5 {
		t.Errorf("expected distance 3 to the segment interior, got %v", d)
	}
	if d := pointSegmentDistance2D(mgl32.Vec2{13, 4}, a, b); math.Abs(float64(d-5)) > 1e-5 {
		t.Errorf("expected distance 5 past the endpoint, got %v", d)
	}
}
