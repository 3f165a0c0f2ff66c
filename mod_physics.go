package forge

import (
	"reflect"

	"github.com/forge3d/forge/dynamics"
	"github.com/go-gl/mathgl/mgl32"
)

// RigidBodyComponent declares that an entity participates in the simulation.
// Body is the runtime handle into the dynamics world; it is never persisted
// and a zero handle means "not created yet".
type RigidBodyComponent struct {
	Kind         dynamics.BodyType `json:"kind"`
	GravityScale float32           `json:"gravity_scale"`
	Body         dynamics.Handle   `json:"-"`
}

func NewRigidBodyComponent(kind dynamics.BodyType) RigidBodyComponent {
	return RigidBodyComponent{Kind: kind, GravityScale: 1}
}

// ColliderComponent gives an entity a collision shape. Entities with a
// collider but no RigidBodyComponent get an implicit fixed body so the shape
// still has a world pose.
type ColliderComponent struct {
	Shape       dynamics.Shape  `json:"shape"`
	Friction    float32         `json:"friction"`
	Restitution float32         `json:"restitution"`
	Collider    dynamics.Handle `json:"-"`
}

func NewColliderComponent(shape dynamics.Shape) ColliderComponent {
	return ColliderComponent{Shape: shape, Friction: 0.5}
}

// PhysicsState is the bridge between the scene graph and the dynamics world.
// The per-entity handle maps exist so despawned entities release their
// simulation objects even though their components are already gone.
type PhysicsState struct {
	World   *dynamics.World
	Running bool

	accumulator float32
	bodies      map[EntityId]dynamics.Handle
	colliders   map[EntityId]dynamics.Handle
}

func NewPhysicsState() *PhysicsState {
	return &PhysicsState{
		World:     dynamics.NewWorld(),
		bodies:    make(map[EntityId]dynamics.Handle),
		colliders: make(map[EntityId]dynamics.Handle),
	}
}

// PhysicsModule wires the three-phase bridge into PostUpdate, after the
// hierarchy pass: sync editor state into the world, step, write dynamic
// poses back out. Gravity and the fixed timestep come from the editor
// config when one is installed.
type PhysicsModule struct{}

func (mod PhysicsModule) Install(app *App, cmd *Commands) {
	state := NewPhysicsState()
	if res, ok := app.resources[reflect.TypeOf((*EditorConfig)(nil)).Elem()]; ok {
		applyPhysicsConfig(state, res.(*EditorConfig))
	}
	cmd.AddResources(state)

	app.UseSystem(System(physicsSyncToSystem).InStage(PostUpdate).RunAlways())
	app.UseSystem(System(physicsStepSystem).InStage(PostUpdate).RunAlways())
	app.UseSystem(System(physicsSyncFromSystem).InStage(PostUpdate).RunAlways())
}

func applyPhysicsConfig(state *PhysicsState, cfg *EditorConfig) {
	g := cfg.Physics.Gravity
	state.World.Gravity = mgl32.Vec3{g[0], g[1], g[2]}
	if cfg.Physics.Timestep > 0 {
		state.World.Timestep = cfg.Physics.Timestep
	}
}

// physicsSyncToSystem makes the dynamics world mirror the scene: creates
// missing bodies/colliders, re-stamps edited parameters, pushes editor
// transforms while paused (the editor is authoritative then), and releases
// handles whose entities are gone. Finishes with a query-pipeline rebuild so
// ray-casts this frame see current poses.
func physicsSyncToSystem(cmd *Commands, scene *Scene, state *PhysicsState) {
	seen := make(map[EntityId]struct{})

	MakeQuery3[TransformComponent, RigidBodyComponent, ColliderComponent](cmd).Map(
		func(eid EntityId, tr *TransformComponent, rb *RigidBodyComponent, col *ColliderComponent) bool {
			if rb == nil && col == nil {
				return true
			}
			seen[eid] = struct{}{}

			pos, rot := worldPose(scene, eid)

			var bodyHandle dynamics.Handle
			if rb != nil {
				bodyHandle = state.syncBody(eid, rb, pos, rot)
			} else {
				bodyHandle = state.syncImplicitFixedBody(eid, pos, rot)
			}

			if col != nil {
				state.syncCollider(eid, col, bodyHandle)
			}
			return true
		},
		RigidBodyComponent{}, ColliderComponent{},
	)

	state.releaseStale(scene, seen)
	state.World.UpdateQueryPipeline()
}

func (state *PhysicsState) syncBody(eid EntityId, rb *RigidBodyComponent, pos mgl32.Vec3, rot mgl32.Quat) dynamics.Handle {
	body, ok := state.World.Bodies.Get(rb.Body)
	if !ok {
		b := dynamics.NewRigidBody(rb.Kind, pos, rot)
		b.GravityScale = rb.GravityScale
		rb.Body = state.World.Bodies.Insert(b)
		state.bodies[eid] = rb.Body
		return rb.Body
	}

	body.Type = rb.Kind
	body.GravityScale = rb.GravityScale

	// Paused: the editor owns the pose. Fixed/kinematic bodies follow the
	// editor transform even mid-simulation.
	if !state.Running || rb.Kind != dynamics.BodyDynamic {
		body.SetPose(pos, rot)
	}
	return rb.Body
}

func (state *PhysicsState) syncImplicitFixedBody(eid EntityId, pos mgl32.Vec3, rot mgl32.Quat) dynamics.Handle {
	handle := state.bodies[eid]
	if body, ok := state.World.Bodies.Get(handle); ok {
		body.SetPose(pos, rot)
		return handle
	}
	handle = state.World.Bodies.Insert(dynamics.NewRigidBody(dynamics.BodyFixed, pos, rot))
	state.bodies[eid] = handle
	return handle
}

func (state *PhysicsState) syncCollider(eid EntityId, col *ColliderComponent, body dynamics.Handle) {
	existing, ok := state.World.Colliders.Get(col.Collider)
	if !ok {
		c := dynamics.NewCollider(col.Shape)
		c.Friction = col.Friction
		c.Restitution = col.Restitution
		c.UserData = uint64(eid)
		col.Collider = state.World.Colliders.InsertWithParent(c, body)
		state.colliders[eid] = col.Collider
		return
	}

	existing.Shape = col.Shape
	existing.Friction = col.Friction
	existing.Restitution = col.Restitution
	existing.ParentBody = body
}

func (state *PhysicsState) releaseStale(scene *Scene, seen map[EntityId]struct{}) {
	for eid, handle := range state.colliders {
		if _, ok := seen[eid]; ok {
			if _, has := GetComponent[ColliderComponent](scene, eid); has {
				continue
			}
		}
		state.World.Colliders.Remove(handle)
		delete(state.colliders, eid)
	}
	for eid, handle := range state.bodies {
		if _, ok := seen[eid]; ok {
			continue
		}
		state.World.Bodies.Remove(handle)
		delete(state.bodies, eid)
	}
}

// physicsStepSystem advances the world on a fixed-timestep accumulator while
// the simulation is running. The accumulator is clamped so a long stall
// never triggers a catch-up spiral.
func physicsStepSystem(timeResource *Time, state *PhysicsState) {
	if !state.Running {
		state.accumulator = 0
		return
	}

	state.accumulator += timeResource.Dt
	if limit := state.World.Timestep * 5; state.accumulator > limit {
		state.accumulator = limit
	}
	for state.accumulator >= state.World.Timestep {
		state.World.Step()
		state.accumulator -= state.World.Timestep
	}
}

// physicsSyncFromSystem writes simulated poses back into dynamic entities'
// local transforms. The body pose is a world pose, so it is re-expressed in
// the parent's space first; local scale is untouched (the simulation never
// produces scale).
func physicsSyncFromSystem(cmd *Commands, scene *Scene, state *PhysicsState) {
	if !state.Running {
		return
	}

	MakeQuery2[RigidBodyComponent, TransformComponent](cmd).Map(
		func(eid EntityId, rb *RigidBodyComponent, tr *TransformComponent) bool {
			if rb.Kind != dynamics.BodyDynamic {
				return true
			}
			body, ok := state.World.Bodies.Get(rb.Body)
			if !ok {
				return true
			}

			world := mgl32.Translate3D(body.Position.X(), body.Position.Y(), body.Position.Z()).
				Mul4(body.Rotation.Normalize().Mat4())

			local := world
			if parent := scene.ParentOf(eid); parent != NoEntity {
				local = scene.GlobalMatrix(parent).Inv().Mul4(world)
			}

			d := DecomposeMatrix(local)
			tr.Position = d.Position
			tr.Rotation = d.Rotation
			return true
		},
	)
}

// RayCastEntity casts into the dynamics world and resolves the hit back to a
// scene entity through the collider's user data. Colliders without an owning
// entity are transparent to picking.
func RayCastEntity(state *PhysicsState, origin, dir mgl32.Vec3, maxToi float32) (EntityId, float32, bool) {
	hit, ok := state.World.CastRay(origin, dir, maxToi)
	if !ok || hit.UserData == dynamics.NoUserData {
		return NoEntity, 0, false
	}
	return EntityId(hit.UserData), hit.Toi, true
}

// worldPose composes the entity's current local transform onto the parent's
// cached global, so a transform edited earlier in the frame reaches the
// simulation without waiting for the next hierarchy pass.
func worldPose(scene *Scene, eid EntityId) (mgl32.Vec3, mgl32.Quat) {
	tr, ok := GetComponent[TransformComponent](scene, eid)
	if !ok {
		d := DecomposeMatrix(scene.GlobalMatrix(eid))
		return d.Position, d.Rotation
	}

	world := tr.Matrix()
	if parent := scene.ParentOf(eid); parent != NoEntity {
		world = scene.GlobalMatrix(parent).Mul4(world)
	}
	d := DecomposeMatrix(world)
	return d.Position, d.Rotation
}
