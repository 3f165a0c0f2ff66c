package forge

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type GizmoMode int

const (
	GizmoModeTranslate GizmoMode = iota
	GizmoModeRotate
	GizmoModeScale
)

// AxisNone means no axis is hovered or active.
const AxisNone = -1

var gizmoAxes = [3]mgl32.Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

const (
	gizmoPickThresholdPx = 15.0
	gizmoRingSamples     = 32
	gizmoDistanceScale   = 0.15
)

// GizmoManager is the manipulation state machine: Idle, Hovering (an axis is
// under the cursor) and Dragging (pointer held on an axis). It mutates the
// selected entity's local transform directly during a drag and hands the
// pre-drag transform back exactly once, on release, so the caller can record
// an undoable edit.
type GizmoManager struct {
	Mode        GizmoMode
	HoveredAxis int
	ActiveAxis  int

	dragStartT       float32
	dragStartPoint   mgl32.Vec3 // point on the axis line where the drag began
	dragStartDir     mgl32.Vec3 // rotate mode: reference direction on the ring plane
	initialTransform TransformComponent
	hasInitial       bool
	pointerWasDown   bool
}

func NewGizmoManager() *GizmoManager {
	return &GizmoManager{HoveredAxis: AxisNone, ActiveAxis: AxisNone}
}

// Scale returns the world-space gizmo size for an entity at position pos seen
// from cameraPos. Distance-proportional so the on-screen size stays roughly
// constant.
func (gm *GizmoManager) Scale(pos, cameraPos mgl32.Vec3) float32 {
	return pos.Sub(cameraPos).Len() * gizmoDistanceScale
}

// Update runs one frame of the state machine. origin/dir is the picking ray,
// mouse and window are in pixels, viewProj projects world to clip space.
// The returned transform is the selected entity's pre-drag pose, delivered
// exactly once when a drag completes; ok is false every other frame.
func (gm *GizmoManager) Update(
	origin, dir mgl32.Vec3,
	mouseX, mouseY float32,
	winW, winH float32,
	viewProj mgl32.Mat4,
	pointerDown bool,
	selected EntityId,
	scene *Scene,
	cameraPos mgl32.Vec3,
) (TransformComponent, bool) {
	justPressed := pointerDown && !gm.pointerWasDown
	gm.pointerWasDown = pointerDown

	tr, ok := GetComponent[TransformComponent](scene, selected)
	if !scene.Valid(selected) || !ok {
		gm.reset()
		return TransformComponent{}, false
	}

	pos := MatrixTranslation(scene.GlobalMatrix(selected))
	scale := gm.Scale(pos, cameraPos)

	if gm.ActiveAxis != AxisNone {
		if pointerDown {
			gm.dragUpdate(origin, dir, pos, tr)
			return TransformComponent{}, false
		}
		// Pointer released: the dragged value stays, the caller gets the
		// pre-drag pose to diff against.
		committed := gm.initialTransform
		had := gm.hasInitial
		gm.ActiveAxis = AxisNone
		gm.hasInitial = false
		return committed, had
	}

	gm.HoveredAxis = gm.pick(pos, scale, mouseX, mouseY, winW, winH, viewProj)

	if justPressed && gm.HoveredAxis != AxisNone {
		gm.beginDrag(origin, dir, pos, *tr)
	}
	return TransformComponent{}, false
}

func (gm *GizmoManager) reset() {
	gm.HoveredAxis = AxisNone
	gm.ActiveAxis = AxisNone
	gm.hasInitial = false
}

// pick finds the axis under the cursor: point-to-segment pixel distance for
// translate/scale handles, nearest ring sample for rotate rings. Strict
// less-than keeps ties on the earlier axis (X, Y, Z order).
func (gm *GizmoManager) pick(pos mgl32.Vec3, scale, mouseX, mouseY, winW, winH float32, viewProj mgl32.Mat4) int {
	mouse := mgl32.Vec2{mouseX, mouseY}
	best := AxisNone
	bestDist := float32(gizmoPickThresholdPx)

	for i, axis := range gizmoAxes {
		var d float32
		var visible bool
		if gm.Mode == GizmoModeRotate {
			d, visible = ringScreenDistance(pos, axis, scale, mouse, winW, winH, viewProj)
		} else {
			d, visible = segmentScreenDistance(pos, pos.Add(axis.Mul(scale)), mouse, winW, winH, viewProj)
		}
		if visible && d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func (gm *GizmoManager) beginDrag(origin, dir, pos mgl32.Vec3, tr TransformComponent) {
	axis := gizmoAxes[gm.HoveredAxis]

	switch gm.Mode {
	case GizmoModeTranslate, GizmoModeScale:
		t, _, ok := rayLineClosest(origin, dir, pos, axis)
		if !ok {
			return // parallel ray, drag is inert this frame
		}
		gm.dragStartT = t
		gm.dragStartPoint = pos.Add(axis.Mul(t))
	case GizmoModeRotate:
		hit, ok := rayPlaneHit(origin, dir, pos, axis)
		if !ok {
			return
		}
		ref := hit.Sub(pos)
		if ref.Len() < 1e-6 {
			return
		}
		gm.dragStartDir = ref.Normalize()
	}

	gm.ActiveAxis = gm.HoveredAxis
	gm.initialTransform = tr
	gm.hasInitial = true
}

func (gm *GizmoManager) dragUpdate(origin, dir, pos mgl32.Vec3, tr *TransformComponent) {
	axis := gizmoAxes[gm.ActiveAxis]

	switch gm.Mode {
	case GizmoModeTranslate:
		t, _, ok := rayLineClosest(origin, dir, pos, axis)
		if !ok {
			return
		}
		delta := t - gm.dragStartT
		tr.Position = gm.initialTransform.Position.Add(axis.Mul(delta))

	case GizmoModeScale:
		t, _, ok := rayLineClosest(origin, dir, pos, axis)
		if !ok {
			return
		}
		delta := t - gm.dragStartT
		ref := gm.initialTransform.Position.Sub(gm.dragStartPoint).Len()
		if ref < 0.1 {
			ref = 0.1
		}
		factor := 1 + delta/ref
		scale := gm.initialTransform.Scale
		scale[gm.ActiveAxis] = gm.initialTransform.Scale[gm.ActiveAxis] * factor
		tr.Scale = scale

	case GizmoModeRotate:
		hit, ok := rayPlaneHit(origin, dir, pos, axis)
		if !ok {
			return
		}
		current := hit.Sub(pos)
		if current.Len() < 1e-6 {
			return
		}
		current = current.Normalize()

		cosTheta := mgl32.Clamp(current.Dot(gm.dragStartDir), -1, 1)
		angle := float32(math.Acos(float64(cosTheta)))
		if gm.dragStartDir.Cross(current).Dot(axis) < 0 {
			angle = -angle
		}

		// Delta rotation pre-multiplied: applied in the parent's space.
		spin := mgl32.QuatRotate(angle, axis)
		tr.Rotation = spin.Mul(gm.initialTransform.Rotation).Normalize()
	}
}

// rayLineClosest solves the two-line closest-approach 2x2 system and returns
// the parameter along the axis line plus the parameter along the ray. A
// near-parallel pair (small determinant) reports no solution.
func rayLineClosest(ro, rd, lo, ld mgl32.Vec3) (alongLine, alongRay float32, ok bool) {
	r := ro.Sub(lo)
	a := rd.Dot(rd)
	b := rd.Dot(ld)
	e := ld.Dot(ld)
	f := ld.Dot(r)

	det := a*e - b*b
	if det < 1e-6 {
		return 0, 0, false
	}

	c := rd.Dot(r)
	t := (b*f - c*e) / det // along the ray
	s := (a*f - b*c) / det // along the axis line
	return s, t, true
}

func rayPlaneHit(origin, dir, planePoint, normal mgl32.Vec3) (mgl32.Vec3, bool) {
	denom := dir.Dot(normal)
	if abs32f(denom) < 1e-6 {
		return mgl32.Vec3{}, false
	}
	t := planePoint.Sub(origin).Dot(normal) / denom
	if t <= 0 {
		return mgl32.Vec3{}, false
	}
	return origin.Add(dir.Mul(t)), true
}

// projectToScreen maps a world point to pixel coordinates. Points behind the
// camera report not-visible.
func projectToScreen(p mgl32.Vec3, viewProj mgl32.Mat4, winW, winH float32) (mgl32.Vec2, bool) {
	clip := viewProj.Mul4x1(mgl32.Vec4{p.X(), p.Y(), p.Z(), 1})
	if clip.W() <= 1e-6 {
		return mgl32.Vec2{}, false
	}
	ndcX := clip.X() / clip.W()
	ndcY := clip.Y() / clip.W()
	return mgl32.Vec2{
		(ndcX + 1) * 0.5 * winW,
		(1 - ndcY) * 0.5 * winH,
	}, true
}

func segmentScreenDistance(a, b mgl32.Vec3, mouse mgl32.Vec2, winW, winH float32, viewProj mgl32.Mat4) (float32, bool) {
	sa, okA := projectToScreen(a, viewProj, winW, winH)
	sb, okB := projectToScreen(b, viewProj, winW, winH)
	if !okA || !okB {
		return 0, false
	}
	return pointSegmentDistance2D(mouse, sa, sb), true
}

// ringScreenDistance discretizes the rotation ring around axis into samples
// and returns the nearest sample's pixel distance to the cursor.
func ringScreenDistance(center, axis mgl32.Vec3, radius float32, mouse mgl32.Vec2, winW, winH float32, viewProj mgl32.Mat4) (float32, bool) {
	u, v := planeBasis(axis)

	best := float32(math.Inf(1))
	visible := false
	for i := 0; i < gizmoRingSamples; i++ {
		theta := 2 * math.Pi * float64(i) / gizmoRingSamples
		offset := u.Mul(float32(math.Cos(theta))).Add(v.Mul(float32(math.Sin(theta))))
		sp, ok := projectToScreen(center.Add(offset.Mul(radius)), viewProj, winW, winH)
		if !ok {
			continue
		}
		visible = true
		if d := sp.Sub(mouse).Len(); d < best {
			best = d
		}
	}
	return best, visible
}

// planeBasis builds an orthonormal basis for the plane perpendicular to n.
func planeBasis(n mgl32.Vec3) (mgl32.Vec3, mgl32.Vec3) {
	ref := mgl32.Vec3{0, 1, 0}
	if abs32f(n.Dot(ref)) > 0.99 {
		ref = mgl32.Vec3{1, 0, 0}
	}
	u := n.Cross(ref).Normalize()
	v := n.Cross(u).Normalize()
	return u, v
}

func pointSegmentDistance2D(p, a, b mgl32.Vec2) float32 {
	ab := b.Sub(a)
	lenSq := ab.Dot(ab)
	if lenSq < 1e-9 {
		return p.Sub(a).Len()
	}
	t := mgl32.Clamp(p.Sub(a).Dot(ab)/lenSq, 0, 1)
	return p.Sub(a.Add(ab.Mul(t))).Len()
}

func abs32f(v float32) float32 {
	return float32(math.Abs(float64(v)))
}
