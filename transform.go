package forge

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// NameComponent gives an entity a display name. Animation channels address
// their targets by this name.
type NameComponent struct {
	Name string
}

// UuidComponent is the stable identity of an entity. It survives
// delete/undo-recreate cycles and is what the scene document's parent
// references point at, unlike the transient EntityId.
type UuidComponent struct {
	Uuid uuid.UUID
}

// TransformComponent is the entity's local pose: position/rotation/scale
// relative to its parent, or to the world when the entity is a root.
type TransformComponent struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

// GlobalTransformComponent is the cached world matrix, recomputed top-down
// by Scene.UpdateHierarchy. Consumers (renderer, gizmo placement) must not
// read it before the propagation pass of the current frame.
type GlobalTransformComponent struct {
	Matrix mgl32.Mat4
}

// Parent points at the owning entity. ChildrenComponent is the back
// reference; Scene.SetParent keeps both sides consistent.
type Parent struct {
	Entity EntityId
}

type ChildrenComponent struct {
	Entities []EntityId
}

func DefaultTransform() TransformComponent {
	return TransformComponent{
		Position: mgl32.Vec3{0, 0, 0},
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// Matrix composes T * R * S, i.e. scale first when applied to a vertex.
func (tr TransformComponent) Matrix() mgl32.Mat4 {
	t := mgl32.Translate3D(tr.Position.X(), tr.Position.Y(), tr.Position.Z())
	r := tr.Rotation.Normalize().Mat4()
	s := mgl32.Scale3D(tr.Scale.X(), tr.Scale.Y(), tr.Scale.Z())
	return t.Mul4(r).Mul4(s)
}

// DecomposeMatrix splits an affine TRS matrix back into a transform.
// Scale comes from the basis column lengths; a negative determinant flips
// the X scale so the remaining basis is a proper rotation for Mat4ToQuat.
func DecomposeMatrix(m mgl32.Mat4) TransformComponent {
	pos := mgl32.Vec3{m.At(0, 3), m.At(1, 3), m.At(2, 3)}

	colX := mgl32.Vec3{m.At(0, 0), m.At(1, 0), m.At(2, 0)}
	colY := mgl32.Vec3{m.At(0, 1), m.At(1, 1), m.At(2, 1)}
	colZ := mgl32.Vec3{m.At(0, 2), m.At(1, 2), m.At(2, 2)}

	sx := colX.Len()
	sy := colY.Len()
	sz := colZ.Len()

	if m.Det() < 0 {
		sx = -sx
	}

	rot := mgl32.Ident4()
	if sx != 0 {
		rot.Set(0, 0, colX.X()/sx)
		rot.Set(1, 0, colX.Y()/sx)
		rot.Set(2, 0, colX.Z()/sx)
	}
	if sy != 0 {
		rot.Set(0, 1, colY.X()/sy)
		rot.Set(1, 1, colY.Y()/sy)
		rot.Set(2, 1, colY.Z()/sy)
	}
	if sz != 0 {
		rot.Set(0, 2, colZ.X()/sz)
		rot.Set(1, 2, colZ.Y()/sz)
		rot.Set(2, 2, colZ.Z()/sz)
	}

	return TransformComponent{
		Position: pos,
		Rotation: mgl32.Mat4ToQuat(rot).Normalize(),
		Scale:    mgl32.Vec3{sx, sy, sz},
	}
}

// TransformPoint applies the full affine matrix to a point.
func TransformPoint(m mgl32.Mat4, p mgl32.Vec3) mgl32.Vec3 {
	v := m.Mul4x1(mgl32.Vec4{p.X(), p.Y(), p.Z(), 1})
	return mgl32.Vec3{v.X(), v.Y(), v.Z()}
}

// MatrixTranslation reads the translation column without decomposing.
func MatrixTranslation(m mgl32.Mat4) mgl32.Vec3 {
	return mgl32.Vec3{m.At(0, 3), m.At(1, 3), m.At(2, 3)}
}

func approxEqualVec3(a, b mgl32.Vec3, eps float32) bool {
	return float32(math.Abs(float64(a.X()-b.X()))) <= eps &&
		float32(math.Abs(float64(a.Y()-b.Y()))) <= eps &&
		float32(math.Abs(float64(a.Z()-b.Z()))) <= eps
}
