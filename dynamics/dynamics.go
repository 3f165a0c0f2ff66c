// Package dynamics is the rigid-body simulation engine behind the editor's
// physics bridge. Bodies and colliders live in generational arenas and are
// addressed exclusively through Handle values; a handle whose slot was
// removed (or reused) is rejected on every access, so stale component state
// can never reach another object's data.
package dynamics

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type BodyType int

const (
	BodyDynamic BodyType = iota
	BodyFixed
	BodyKinematic
)

// Handle addresses one arena slot. The zero value is invalid: generations
// start at 1 and are bumped whenever a slot is reused.
type Handle struct {
	Index      uint32
	Generation uint32
}

func (h Handle) IsValid() bool {
	return h.Generation != 0
}

// NoUserData is the "no entity attached" sentinel for Collider.UserData.
const NoUserData uint64 = math.MaxUint64

type RigidBody struct {
	Type            BodyType
	Position        mgl32.Vec3
	Rotation        mgl32.Quat
	LinearVelocity  mgl32.Vec3
	AngularVelocity mgl32.Vec3
	GravityScale    float32
	Sleeping        bool
	idleTime        float32
}

func NewRigidBody(bodyType BodyType, position mgl32.Vec3, rotation mgl32.Quat) RigidBody {
	return RigidBody{
		Type:         bodyType,
		Position:     position,
		Rotation:     rotation,
		GravityScale: 1,
	}
}

func (rb *RigidBody) Wake() {
	rb.Sleeping = false
	rb.idleTime = 0
}

// SetPose teleports the body and wakes it. Used by the bridge while the
// simulation is paused and the editor's Transform is authoritative.
func (rb *RigidBody) SetPose(position mgl32.Vec3, rotation mgl32.Quat) {
	rb.Position = position
	rb.Rotation = rotation
	rb.Wake()
}

type ShapeType int

const (
	ShapeBall ShapeType = iota
	ShapeCuboid
	ShapeCapsule
)

// Shape is a closed tagged union: exactly the fields of the active type are
// meaningful. Capsules are aligned with the body's local Y axis.
type Shape struct {
	Type        ShapeType
	Radius      float32    // ball, capsule
	HalfExtents mgl32.Vec3 // cuboid
	HalfHeight  float32    // capsule, cap-center to cap-center half distance
}

func Ball(radius float32) Shape {
	return Shape{Type: ShapeBall, Radius: radius}
}

func Cuboid(halfExtents mgl32.Vec3) Shape {
	return Shape{Type: ShapeCuboid, HalfExtents: halfExtents}
}

func Capsule(halfHeight, radius float32) Shape {
	return Shape{Type: ShapeCapsule, HalfHeight: halfHeight, Radius: radius}
}

// LocalAABBHalfExtents bounds the shape in body-local axes.
func (s Shape) LocalAABBHalfExtents() mgl32.Vec3 {
	switch s.Type {
	case ShapeBall:
		return mgl32.Vec3{s.Radius, s.Radius, s.Radius}
	case ShapeCuboid:
		return s.HalfExtents
	case ShapeCapsule:
		return mgl32.Vec3{s.Radius, s.HalfHeight + s.Radius, s.Radius}
	}
	return mgl32.Vec3{}
}

type Collider struct {
	Shape       Shape
	Friction    float32
	Restitution float32
	// UserData carries the owning scene entity's identity as an opaque
	// 64-bit payload; NoUserData means unowned.
	UserData uint64
	// ParentBody is the body this collider follows; invalid for detached
	// (purely static) colliders.
	ParentBody Handle
}

func NewCollider(shape Shape) Collider {
	return Collider{
		Shape:    shape,
		Friction: 0.5,
		UserData: NoUserData,
	}
}

type bodySlot struct {
	body       RigidBody
	generation uint32
	live       bool
}

// RigidBodySet is a generational arena of bodies.
type RigidBodySet struct {
	slots []bodySlot
	free  []uint32
	count int
}

func NewRigidBodySet() *RigidBodySet {
	return &RigidBodySet{}
}

func (set *RigidBodySet) Len() int { return set.count }

func (set *RigidBodySet) Insert(body RigidBody) Handle {
	set.count++
	if n := len(set.free); n > 0 {
		idx := set.free[n-1]
		set.free = set.free[:n-1]
		slot := &set.slots[idx]
		slot.generation++
		slot.body = body
		slot.live = true
		return Handle{Index: idx, Generation: slot.generation}
	}

	set.slots = append(set.slots, bodySlot{body: body, generation: 1, live: true})
	return Handle{Index: uint32(len(set.slots) - 1), Generation: 1}
}

func (set *RigidBodySet) Get(h Handle) (*RigidBody, bool) {
	if !h.IsValid() || int(h.Index) >= len(set.slots) {
		return nil, false
	}
	slot := &set.slots[h.Index]
	if !slot.live || slot.generation != h.Generation {
		return nil, false
	}
	return &slot.body, true
}

func (set *RigidBodySet) Remove(h Handle) bool {
	if _, ok := set.Get(h); !ok {
		return false
	}
	set.slots[h.Index].live = false
	set.free = append(set.free, h.Index)
	set.count--
	return true
}

func (set *RigidBodySet) ForEach(fn func(Handle, *RigidBody) bool) {
	for i := range set.slots {
		slot := &set.slots[i]
		if !slot.live {
			continue
		}
		if !fn(Handle{Index: uint32(i), Generation: slot.generation}, &slot.body) {
			return
		}
	}
}

type colliderSlot struct {
	collider   Collider
	generation uint32
	live       bool
}

// ColliderSet is a generational arena of colliders.
type ColliderSet struct {
	slots []colliderSlot
	free  []uint32
	count int
}

func NewColliderSet() *ColliderSet {
	return &ColliderSet{}
}

func (set *ColliderSet) Len() int { return set.count }

func (set *ColliderSet) Insert(collider Collider) Handle {
	set.count++
	if n := len(set.free); n > 0 {
		idx := set.free[n-1]
		set.free = set.free[:n-1]
		slot := &set.slots[idx]
		slot.generation++
		slot.collider = collider
		slot.live = true
		return Handle{Index: idx, Generation: slot.generation}
	}

	set.slots = append(set.slots, colliderSlot{collider: collider, generation: 1, live: true})
	return Handle{Index: uint32(len(set.slots) - 1), Generation: 1}
}

// InsertWithParent attaches the collider to a body; it follows the body's
// pose from then on.
func (set *ColliderSet) InsertWithParent(collider Collider, body Handle) Handle {
	collider.ParentBody = body
	return set.Insert(collider)
}

func (set *ColliderSet) Get(h Handle) (*Collider, bool) {
	if !h.IsValid() || int(h.Index) >= len(set.slots) {
		return nil, false
	}
	slot := &set.slots[h.Index]
	if !slot.live || slot.generation != h.Generation {
		return nil, false
	}
	return &slot.collider, true
}

func (set *ColliderSet) Remove(h Handle) bool {
	if _, ok := set.Get(h); !ok {
		return false
	}
	set.slots[h.Index].live = false
	set.free = append(set.free, h.Index)
	set.count--
	return true
}

func (set *ColliderSet) ForEach(fn func(Handle, *Collider) bool) {
	for i := range set.slots {
		slot := &set.slots[i]
		if !slot.live {
			continue
		}
		if !fn(Handle{Index: uint32(i), Generation: slot.generation}, &slot.collider) {
			return
		}
	}
}
