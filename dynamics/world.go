package dynamics

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// World owns every simulation collection. Nothing outside the physics
// bridge touches it directly; the bridge's sync functions are the only
// crossing point between ECS components and these arenas.
type World struct {
	Gravity        mgl32.Vec3
	Timestep       float32
	SleepThreshold float32
	SleepTime      float32

	Bodies    *RigidBodySet
	Colliders *ColliderSet

	// Query acceleration cache: world-space AABBs per live collider,
	// rebuilt by UpdateQueryPipeline.
	queryEntries []queryEntry
	queryDirty   bool
}

type queryEntry struct {
	collider Handle
	center   mgl32.Vec3
	half     mgl32.Vec3 // axis-aligned, conservatively rotated
	rotation mgl32.Quat
	shape    Shape
	userData uint64
}

func NewWorld() *World {
	return &World{
		Gravity:        mgl32.Vec3{0, -9.81, 0},
		Timestep:       1.0 / 60.0,
		SleepThreshold: 0.05,
		SleepTime:      1.0,
		Bodies:         NewRigidBodySet(),
		Colliders:      NewColliderSet(),
		queryDirty:     true,
	}
}

// ColliderWorldPose resolves a collider's pose from its parent body, or
// origin/identity for detached colliders.
func (w *World) ColliderWorldPose(h Handle) (mgl32.Vec3, mgl32.Quat, bool) {
	col, ok := w.Colliders.Get(h)
	if !ok {
		return mgl32.Vec3{}, mgl32.QuatIdent(), false
	}
	if body, ok := w.Bodies.Get(col.ParentBody); ok {
		return body.Position, body.Rotation, true
	}
	return mgl32.Vec3{}, mgl32.QuatIdent(), true
}

// UpdateQueryPipeline rebuilds the spatial query cache from the current
// body poses. Ray-casts in the same frame only see position changes made
// before this call.
func (w *World) UpdateQueryPipeline() {
	w.queryEntries = w.queryEntries[:0]

	w.Colliders.ForEach(func(h Handle, col *Collider) bool {
		pos := mgl32.Vec3{}
		rot := mgl32.QuatIdent()
		if body, ok := w.Bodies.Get(col.ParentBody); ok {
			pos = body.Position
			rot = body.Rotation
		}

		w.queryEntries = append(w.queryEntries, queryEntry{
			collider: h,
			center:   pos,
			half:     rotatedAABBHalfExtents(col.Shape.LocalAABBHalfExtents(), rot),
			rotation: rot,
			shape:    col.Shape,
			userData: col.UserData,
		})
		return true
	})
	w.queryDirty = false
}

// rotatedAABBHalfExtents bounds a rotated box: each world axis extent is
// the absolute-value rotation matrix applied to the local half extents.
func rotatedAABBHalfExtents(half mgl32.Vec3, rot mgl32.Quat) mgl32.Vec3 {
	m := rot.Normalize().Mat4()
	var out mgl32.Vec3
	for i := 0; i < 3; i++ {
		out[i] = float32(math.Abs(float64(m.At(i, 0))))*half.X() +
			float32(math.Abs(float64(m.At(i, 1))))*half.Y() +
			float32(math.Abs(float64(m.At(i, 2))))*half.Z()
	}
	return out
}

// Step advances the simulation by one fixed Timestep: integrate velocities,
// resolve movement axis by axis against every other collider's AABB, wake
// touching sleepers, then run the sleep countdown. Axis-by-axis resolution
// trades contact accuracy for stability, which is the right trade for an
// editor's preview simulation.
func (w *World) Step() {
	dt := w.Timestep
	if dt <= 0 {
		return
	}

	var proxies []bodyProxy
	w.Bodies.ForEach(func(bh Handle, body *RigidBody) bool {
		p := bodyProxy{handle: bh, body: body}
		w.Colliders.ForEach(func(ch Handle, col *Collider) bool {
			if col.ParentBody == bh {
				p.collider = col
				p.half = rotatedAABBHalfExtents(col.Shape.LocalAABBHalfExtents(), body.Rotation)
				return false
			}
			return true
		})
		proxies = append(proxies, p)
		return true
	})

	overlaps := func(self int, pos mgl32.Vec3) bool {
		if proxies[self].collider == nil {
			return false
		}
		half := proxies[self].half
		for i := range proxies {
			if i == self || proxies[i].collider == nil {
				continue
			}
			otherPos := proxies[i].body.Position
			otherHalf := proxies[i].half
			if abs32(pos.X()-otherPos.X()) < half.X()+otherHalf.X() &&
				abs32(pos.Y()-otherPos.Y()) < half.Y()+otherHalf.Y() &&
				abs32(pos.Z()-otherPos.Z()) < half.Z()+otherHalf.Z() {
				return true
			}
		}
		return false
	}

	for i := range proxies {
		p := &proxies[i]
		body := p.body
		if body.Type != BodyDynamic || body.Sleeping {
			continue
		}

		if body.GravityScale != 0 {
			body.LinearVelocity = body.LinearVelocity.Add(w.Gravity.Mul(body.GravityScale * dt))
		}

		displacement := body.LinearVelocity.Mul(dt)
		if isBadVec(displacement) {
			body.LinearVelocity = mgl32.Vec3{}
			continue
		}

		friction := float32(0)
		restitution := float32(0)
		if p.collider != nil {
			friction = p.collider.Friction
			restitution = p.collider.Restitution
		}

		startPos := body.Position

		// Resolve Y first so stacked bodies settle, then the lateral axes.
		for _, axis := range [3]int{1, 0, 2} {
			body.Position, body.LinearVelocity = w.resolveAxis(
				func(pos mgl32.Vec3) bool { return overlaps(i, pos) },
				body.Position, body.LinearVelocity, body.LinearVelocity.Mul(dt), axis, friction, restitution,
			)
		}

		// Integrate spin directly; contacts do not exchange torque here.
		if av := body.AngularVelocity; av.Len() > 0 {
			spin := mgl32.QuatRotate(av.Len()*dt, av.Normalize())
			body.Rotation = spin.Mul(body.Rotation).Normalize()
		}

		if body.Position.Sub(startPos).Len() > 0.001 {
			w.wakeTouching(proxies, i)
		}

		if body.LinearVelocity.Len() < w.SleepThreshold {
			body.idleTime += dt
			if body.idleTime > w.SleepTime {
				body.Sleeping = true
				body.LinearVelocity = mgl32.Vec3{}
			}
		} else {
			body.idleTime = 0
		}
	}

	w.queryDirty = true
}

func (w *World) resolveAxis(collides func(mgl32.Vec3) bool, pos, vel, displacement mgl32.Vec3, axis int, friction, restitution float32) (mgl32.Vec3, mgl32.Vec3) {
	dist := displacement[axis]
	if abs32(dist) < 0.0001 {
		return pos, vel
	}

	stepSize := float32(0.05)
	if dist < 0 {
		stepSize = -0.05
	}

	remaining := abs32(dist)
	if remaining > 10.0 { // cap per-step travel
		remaining = 10.0
	}

	newPos := pos
	for iterations := 0; remaining > 0 && iterations < 400; iterations++ {
		move := stepSize
		if remaining < abs32(stepSize) {
			move = sign32(dist) * remaining
		}

		testPos := newPos
		testPos[axis] += move

		if collides(testPos) {
			vel[axis] = -vel[axis] * restitution
			if abs32(vel[axis]) < 0.1 {
				vel[axis] = 0
			}
			for a := 0; a < 3; a++ {
				if a != axis {
					vel[a] *= 1.0 - friction
					if abs32(vel[a]) < 0.01 {
						vel[a] = 0
					}
				}
			}
			break
		}
		newPos = testPos
		remaining -= abs32(move)
	}

	return newPos, vel
}

type bodyProxy struct {
	handle   Handle
	body     *RigidBody
	collider *Collider
	half     mgl32.Vec3
}

func (w *World) wakeTouching(proxies []bodyProxy, self int) {
	const margin = 0.05
	p := &proxies[self]
	for j := range proxies {
		other := &proxies[j]
		if j == self || !other.body.Sleeping || other.collider == nil || p.collider == nil {
			continue
		}
		if abs32(other.body.Position.X()-p.body.Position.X()) < other.half.X()+p.half.X()+margin &&
			abs32(other.body.Position.Y()-p.body.Position.Y()) < other.half.Y()+p.half.Y()+margin &&
			abs32(other.body.Position.Z()-p.body.Position.Z()) < other.half.Z()+p.half.Z()+margin {
			other.body.Wake()
		}
	}
}

func abs32(v float32) float32 {
	return float32(math.Abs(float64(v)))
}

func sign32(v float32) float32 {
	if v < 0 {
		return -1
	}
	return 1
}

func isBadVec(v mgl32.Vec3) bool {
	l := float64(v.Len())
	return math.IsNaN(l) || math.IsInf(l, 0)
}
