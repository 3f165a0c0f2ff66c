package dynamics

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// RayHit reports the nearest collider along a ray. Toi is the distance from
// the origin along the (normalized) direction.
type RayHit struct {
	Collider Handle
	Toi      float32
	UserData uint64
}

// CastRay queries the cached spatial structure and returns the closest hit
// within maxToi. The cache is rebuilt lazily if a Step or mutation left it
// stale, but callers that just teleported bodies must call
// UpdateQueryPipeline first to see the new poses (same contract as the
// bridge's sync pass).
func (w *World) CastRay(origin, dir mgl32.Vec3, maxToi float32) (RayHit, bool) {
	if dir.Len() < 1e-9 {
		return RayHit{}, false
	}
	dir = dir.Normalize()

	if w.queryDirty {
		w.UpdateQueryPipeline()
	}

	best := RayHit{Toi: maxToi}
	found := false

	for i := range w.queryEntries {
		entry := &w.queryEntries[i]

		// Broad phase: slab test against the conservative world AABB.
		if !rayIntersectsAABB(origin, dir, entry.center, entry.half, best.Toi) {
			continue
		}

		toi, hit := rayShapeToi(origin, dir, entry.center, entry.rotation, entry.shape)
		if hit && toi >= 0 && toi < best.Toi {
			best = RayHit{Collider: entry.collider, Toi: toi, UserData: entry.userData}
			found = true
		}
	}

	return best, found
}

func rayIntersectsAABB(origin, dir, center, half mgl32.Vec3, maxToi float32) bool {
	tMin := float32(0)
	tMax := maxToi

	for axis := 0; axis < 3; axis++ {
		lo := center[axis] - half[axis]
		hi := center[axis] + half[axis]

		if abs32(dir[axis]) < 1e-9 {
			if origin[axis] < lo || origin[axis] > hi {
				return false
			}
			continue
		}

		inv := 1.0 / dir[axis]
		t0 := (lo - origin[axis]) * inv
		t1 := (hi - origin[axis]) * inv
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t0 > tMin {
			tMin = t0
		}
		if t1 < tMax {
			tMax = t1
		}
		if tMin > tMax {
			return false
		}
	}
	return true
}

func rayShapeToi(origin, dir, pos mgl32.Vec3, rot mgl32.Quat, shape Shape) (float32, bool) {
	switch shape.Type {
	case ShapeBall:
		return raySphereToi(origin, dir, pos, shape.Radius)
	case ShapeCuboid:
		return rayCuboidToi(origin, dir, pos, rot, shape.HalfExtents)
	case ShapeCapsule:
		return rayCapsuleToi(origin, dir, pos, rot, shape.HalfHeight, shape.Radius)
	}
	return 0, false
}

func raySphereToi(origin, dir, center mgl32.Vec3, radius float32) (float32, bool) {
	oc := origin.Sub(center)
	b := oc.Dot(dir)
	c := oc.Dot(oc) - radius*radius

	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	sqrtD := float32(math.Sqrt(float64(disc)))

	t := -b - sqrtD
	if t < 0 {
		t = -b + sqrtD // origin inside the sphere
	}
	if t < 0 {
		return 0, false
	}
	return t, true
}

// rayCuboidToi transforms the ray into the box's local frame and runs the
// slab test there, so rotated cuboids are exact rather than AABB-bounded.
func rayCuboidToi(origin, dir, pos mgl32.Vec3, rot mgl32.Quat, half mgl32.Vec3) (float32, bool) {
	inv := rot.Conjugate()
	localOrigin := inv.Rotate(origin.Sub(pos))
	localDir := inv.Rotate(dir)

	tMin := float32(math.Inf(-1))
	tMax := float32(math.Inf(1))

	for axis := 0; axis < 3; axis++ {
		if abs32(localDir[axis]) < 1e-9 {
			if localOrigin[axis] < -half[axis] || localOrigin[axis] > half[axis] {
				return 0, false
			}
			continue
		}
		invD := 1.0 / localDir[axis]
		t0 := (-half[axis] - localOrigin[axis]) * invD
		t1 := (half[axis] - localOrigin[axis]) * invD
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t0 > tMin {
			tMin = t0
		}
		if t1 < tMax {
			tMax = t1
		}
		if tMin > tMax {
			return 0, false
		}
	}

	if tMax < 0 {
		return 0, false
	}
	if tMin < 0 {
		return tMax, true // origin inside the box
	}
	return tMin, true
}

// rayCapsuleToi checks the infinite cylinder around the capsule's local Y
// axis clipped to the segment, plus the two cap spheres.
func rayCapsuleToi(origin, dir, pos mgl32.Vec3, rot mgl32.Quat, halfHeight, radius float32) (float32, bool) {
	axis := rot.Rotate(mgl32.Vec3{0, 1, 0})
	top := pos.Add(axis.Mul(halfHeight))
	bottom := pos.Sub(axis.Mul(halfHeight))

	bestT := float32(math.Inf(1))
	found := false

	// Cylinder side: project out the axis component and solve the 2D circle.
	oc := origin.Sub(bottom)
	d := dir.Sub(axis.Mul(dir.Dot(axis)))
	o := oc.Sub(axis.Mul(oc.Dot(axis)))

	a := d.Dot(d)
	if a > 1e-9 {
		b := 2 * o.Dot(d)
		c := o.Dot(o) - radius*radius
		disc := b*b - 4*a*c
		if disc >= 0 {
			sqrtD := float32(math.Sqrt(float64(disc)))
			for _, t := range [2]float32{(-b - sqrtD) / (2 * a), (-b + sqrtD) / (2 * a)} {
				if t < 0 {
					continue
				}
				hit := origin.Add(dir.Mul(t))
				proj := hit.Sub(bottom).Dot(axis)
				if proj >= 0 && proj <= 2*halfHeight && t < bestT {
					bestT = t
					found = true
				}
			}
		}
	}

	for _, capCenter := range [2]mgl32.Vec3{top, bottom} {
		if t, ok := raySphereToi(origin, dir, capCenter, radius); ok && t < bestT {
			bestT = t
			found = true
		}
	}

	if !found {
		return 0, false
	}
	return bestT, true
}
