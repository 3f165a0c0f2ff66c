package forge

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/forge3d/forge/dynamics"
	"github.com/go-gl/mathgl/mgl32"
)

func TestPhysicsConfig_ReachesWorld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forge.yaml")
	doc := `
physics:
  gravity: [0, -3.5, 0]
  timestep: 0.02
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadEditorConfig(path)
	if err != nil {
		t.Fatalf("LoadEditorConfig: %v", err)
	}

	state := NewPhysicsState()
	applyPhysicsConfig(state, &cfg)

	if !approxEqualVec3(state.World.Gravity, mgl32.Vec3{0, -3.5, 0}, 1e-6) {
		t.Errorf("expected the configured gravity, got %v", state.World.Gravity)
	}
	if state.World.Timestep != 0.02 {
		t.Errorf("expected the configured timestep, got %v", state.World.Timestep)
	}

	// A zero timestep in the file must not stall the stepper.
	cfg.Physics.Timestep = 0
	fresh := NewPhysicsState()
	applyPhysicsConfig(fresh, &cfg)
	if fresh.World.Timestep <= 0 {
		t.Errorf("a zero timestep must keep the default, got %v", fresh.World.Timestep)
	}
}

func TestPhysicsSync_SeesFreshLocalTransform(t *testing.T) {
	scene, cmd := newTestScene()
	state := NewPhysicsState()

	eid := scene.CreateEntity(
		transformAt(0, 3, 0),
		NewRigidBodyComponent(dynamics.BodyDynamic),
		NewColliderComponent(dynamics.Ball(0.5)),
	)
	scene.UpdateHierarchy()
	physicsSyncToSystem(cmd, scene, state)

	// Move the entity without re-running the hierarchy pass. The cached
	// global still holds the old pose, but the sync reads the local
	// transform, so the edit lands in the world this frame.
	tr, _ := GetComponent[TransformComponent](scene, eid)
	tr.Position = mgl32.Vec3{4, 1, 0}
	physicsSyncToSystem(cmd, scene, state)

	body, ok := state.World.Bodies.Get(state.bodies[eid])
	if !ok {
		t.Fatalf("expected the body to exist in the world")
	}
	if !approxEqualVec3(body.Position, mgl32.Vec3{4, 1, 0}, 1e-5) {
		t.Errorf("expected the edited pose in the world, got %v", body.Position)
	}
}

func TestPhysicsSync_CreatesBodyAndCollider(t *testing.T) {
	scene, cmd := newTestScene()
	state := NewPhysicsState()

	eid := scene.CreateEntity(
		transformAt(0, 3, 0),
		NewRigidBodyComponent(dynamics.BodyDynamic),
		NewColliderComponent(dynamics.Ball(0.5)),
	)
	scene.UpdateHierarchy()

	physicsSyncToSystem(cmd, scene, state)

	rb, _ := GetComponent[RigidBodyComponent](scene, eid)
	if !rb.Body.IsValid() {
		t.Fatalf("expected a body handle to be stamped on the component")
	}
	body, ok := state.World.Bodies.Get(rb.Body)
	if !ok {
		t.Fatalf("expected the body to exist in the world")
	}
	if !approxEqualVec3(body.Position, mgl32.Vec3{0, 3, 0}, 1e-5) {
		t.Errorf("expected the editor pose, got %v", body.Position)
	}
	if body.GravityScale != 1 {
		t.Errorf("expected gravity scale 1, got %v", body.GravityScale)
	}

	col, _ := GetComponent[ColliderComponent](scene, eid)
	worldCol, ok := state.World.Colliders.Get(col.Collider)
	if !ok {
		t.Fatalf("expected the collider to exist in the world")
	}
	if worldCol.ParentBody != rb.Body {
		t.Errorf("collider must follow the entity's body")
	}
	if worldCol.UserData != uint64(eid) {
		t.Errorf("collider user data must carry the entity id, got %v", worldCol.UserData)
	}

	if state.World.Bodies.Len() != 1 || state.World.Colliders.Len() != 1 {
		t.Errorf("expected exactly one body and collider, got %d/%d",
			state.World.Bodies.Len(), state.World.Colliders.Len())
	}
}

func TestPhysicsSync_ImplicitFixedBody(t *testing.T) {
	scene, cmd := newTestScene()
	state := NewPhysicsState()

	eid := scene.CreateEntity(
		transformAt(0, -1, 0),
		NewColliderComponent(dynamics.Cuboid(mgl32.Vec3{10, 0.05, 10})),
	)
	scene.UpdateHierarchy()

	physicsSyncToSystem(cmd, scene, state)

	if state.World.Bodies.Len() != 1 {
		t.Fatalf("a collider-only entity still needs a fixed body, got %d", state.World.Bodies.Len())
	}
	handle := state.bodies[eid]
	body, ok := state.World.Bodies.Get(handle)
	if !ok {
		t.Fatalf("expected the implicit body to resolve")
	}
	if body.Type != dynamics.BodyFixed {
		t.Errorf("expected a fixed body, got %v", body.Type)
	}
	if !approxEqualVec3(body.Position, mgl32.Vec3{0, -1, 0}, 1e-5) {
		t.Errorf("expected the entity pose, got %v", body.Position)
	}

	col, _ := GetComponent[ColliderComponent](scene, eid)
	worldCol, _ := state.World.Colliders.Get(col.Collider)
	if worldCol.ParentBody != handle {
		t.Errorf("collider must be attached to the implicit body")
	}
}

func TestPhysicsSync_EditorPoseWhilePaused(t *testing.T) {
	scene, cmd := newTestScene()
	state := NewPhysicsState()

	eid := scene.CreateEntity(
		transformAt(0, 3, 0),
		NewRigidBodyComponent(dynamics.BodyDynamic),
	)
	scene.UpdateHierarchy()
	physicsSyncToSystem(cmd, scene, state)

	// Move the entity in the editor; paused sync pushes the new pose in.
	tr, _ := GetComponent[TransformComponent](scene, eid)
	tr.Position = mgl32.Vec3{4, 1, 0}
	scene.UpdateHierarchy()
	physicsSyncToSystem(cmd, scene, state)

	rb, _ := GetComponent[RigidBodyComponent](scene, eid)
	body, _ := state.World.Bodies.Get(rb.Body)
	if !approxEqualVec3(body.Position, mgl32.Vec3{4, 1, 0}, 1e-5) {
		t.Errorf("a paused sync must teleport the body, got %v", body.Position)
	}

	// Running: the simulation owns dynamic poses, the editor edit is ignored.
	state.Running = true
	tr.Position = mgl32.Vec3{9, 9, 9}
	scene.UpdateHierarchy()
	physicsSyncToSystem(cmd, scene, state)

	body, _ = state.World.Bodies.Get(rb.Body)
	if approxEqualVec3(body.Position, mgl32.Vec3{9, 9, 9}, 1e-5) {
		t.Errorf("a running sync must not teleport a dynamic body")
	}
}

func TestPhysicsSync_ReleasesDespawnedEntities(t *testing.T) {
	scene, cmd := newTestScene()
	state := NewPhysicsState()

	eid := scene.CreateEntity(
		transformAt(0, 3, 0),
		NewRigidBodyComponent(dynamics.BodyDynamic),
		NewColliderComponent(dynamics.Ball(0.5)),
	)
	scene.UpdateHierarchy()
	physicsSyncToSystem(cmd, scene, state)

	scene.RemoveEntity(eid)
	physicsSyncToSystem(cmd, scene, state)

	if state.World.Bodies.Len() != 0 || state.World.Colliders.Len() != 0 {
		t.Errorf("despawned entity must release its simulation objects, got %d/%d",
			state.World.Bodies.Len(), state.World.Colliders.Len())
	}
	if len(state.bodies) != 0 || len(state.colliders) != 0 {
		t.Errorf("handle maps must be cleaned up")
	}
}

func TestPhysicsSync_ReleasesRemovedColliderComponent(t *testing.T) {
	scene, cmd := newTestScene()
	state := NewPhysicsState()

	eid := scene.CreateEntity(
		transformAt(0, 3, 0),
		NewRigidBodyComponent(dynamics.BodyDynamic),
		NewColliderComponent(dynamics.Ball(0.5)),
	)
	scene.UpdateHierarchy()
	physicsSyncToSystem(cmd, scene, state)

	scene.ecs.removeComponents(eid, ColliderComponent{})
	physicsSyncToSystem(cmd, scene, state)

	if state.World.Colliders.Len() != 0 {
		t.Errorf("removed collider component must release the world collider")
	}
	if state.World.Bodies.Len() != 1 {
		t.Errorf("the body must survive a collider removal, got %d", state.World.Bodies.Len())
	}
}

func TestPhysicsStep_FixedTimestepAccumulator(t *testing.T) {
	state := NewPhysicsState()
	h := state.World.Bodies.Insert(dynamics.NewRigidBody(dynamics.BodyDynamic, mgl32.Vec3{0, 10, 0}, mgl32.QuatIdent()))

	// Paused: the accumulator must not build up.
	physicsStepSystem(&Time{Dt: 1}, state)
	if state.accumulator != 0 {
		t.Errorf("paused stepping must reset the accumulator")
	}
	body, _ := state.World.Bodies.Get(h)
	if body.LinearVelocity.Y() != 0 {
		t.Errorf("paused stepping must not integrate")
	}

	// 2.5 timesteps of wall time run exactly 2 fixed steps.
	state.Running = true
	physicsStepSystem(&Time{Dt: state.World.Timestep * 2.5}, state)

	body, _ = state.World.Bodies.Get(h)
	wantVel := -9.81 * state.World.Timestep * 2
	if math.Abs(float64(body.LinearVelocity.Y()-wantVel)) > 1e-4 {
		t.Errorf("expected 2 steps of gravity (%v), got %v", wantVel, body.LinearVelocity.Y())
	}
	if math.Abs(float64(state.accumulator-state.World.Timestep*0.5)) > 1e-6 {
		t.Errorf("expected half a timestep left over, got %v", state.accumulator)
	}
}

func TestPhysicsStep_StallClamp(t *testing.T) {
	state := NewPhysicsState()
	state.Running = true
	h := state.World.Bodies.Insert(dynamics.NewRigidBody(dynamics.BodyDynamic, mgl32.Vec3{0, 100, 0}, mgl32.QuatIdent()))

	// A 10 second stall is clamped to 5 fixed steps, not 600.
	physicsStepSystem(&Time{Dt: 10}, state)

	body, _ := state.World.Bodies.Get(h)
	wantVel := -9.81 * state.World.Timestep * 5
	if math.Abs(float64(body.LinearVelocity.Y()-wantVel)) > 1e-3 {
		t.Errorf("expected at most 5 steps after a stall, got velocity %v", body.LinearVelocity.Y())
	}
}

func TestPhysicsSyncFrom_WritesDynamicPoses(t *testing.T) {
	scene, cmd := newTestScene()
	state := NewPhysicsState()

	eid := scene.CreateEntity(
		transformAt(0, 3, 0),
		NewRigidBodyComponent(dynamics.BodyDynamic),
	)
	scene.UpdateHierarchy()
	physicsSyncToSystem(cmd, scene, state)

	rb, _ := GetComponent[RigidBodyComponent](scene, eid)
	body, _ := state.World.Bodies.Get(rb.Body)
	body.SetPose(mgl32.Vec3{3, 5, 0}, mgl32.QuatIdent())

	state.Running = true
	physicsSyncFromSystem(cmd, scene, state)

	tr, _ := GetComponent[TransformComponent](scene, eid)
	if !approxEqualVec3(tr.Position, mgl32.Vec3{3, 5, 0}, 1e-4) {
		t.Errorf("expected the simulated pose, got %v", tr.Position)
	}
	if !approxEqualVec3(tr.Scale, mgl32.Vec3{1, 1, 1}, 1e-6) {
		t.Errorf("sync must never touch scale, got %v", tr.Scale)
	}
}

func TestPhysicsSyncFrom_ParentRelative(t *testing.T) {
	scene, cmd := newTestScene()
	state := NewPhysicsState()

	parent := scene.CreateEntity(transformAt(2, 0, 0))
	child := scene.CreateEntity(
		transformAt(0, 3, 0),
		NewRigidBodyComponent(dynamics.BodyDynamic),
	)
	scene.attach(child, parent)
	scene.UpdateHierarchy()
	physicsSyncToSystem(cmd, scene, state)

	rb, _ := GetComponent[RigidBodyComponent](scene, child)
	body, _ := state.World.Bodies.Get(rb.Body)
	body.SetPose(mgl32.Vec3{3, 5, 0}, mgl32.QuatIdent())

	state.Running = true
	physicsSyncFromSystem(cmd, scene, state)

	tr, _ := GetComponent[TransformComponent](scene, child)
	if !approxEqualVec3(tr.Position, mgl32.Vec3{1, 5, 0}, 1e-4) {
		t.Errorf("the world pose must be re-expressed in the parent's space, got %v", tr.Position)
	}
}

func TestPhysicsSyncFrom_PausedLeavesTransforms(t *testing.T) {
	scene, cmd := newTestScene()
	state := NewPhysicsState()

	eid := scene.CreateEntity(
		transformAt(0, 3, 0),
		NewRigidBodyComponent(dynamics.BodyDynamic),
	)
	scene.UpdateHierarchy()
	physicsSyncToSystem(cmd, scene, state)

	rb, _ := GetComponent[RigidBodyComponent](scene, eid)
	body, _ := state.World.Bodies.Get(rb.Body)
	body.SetPose(mgl32.Vec3{9, 9, 9}, mgl32.QuatIdent())

	physicsSyncFromSystem(cmd, scene, state) // Running is false

	tr, _ := GetComponent[TransformComponent](scene, eid)
	if !approxEqualVec3(tr.Position, mgl32.Vec3{0, 3, 0}, 1e-6) {
		t.Errorf("paused write-back must not touch the editor transform, got %v", tr.Position)
	}
}

func TestRayCastEntity(t *testing.T) {
	scene, cmd := newTestScene()
	state := NewPhysicsState()

	eid := scene.CreateEntity(
		DefaultTransform(),
		NewColliderComponent(dynamics.Ball(0.5)),
	)
	scene.UpdateHierarchy()
	physicsSyncToSystem(cmd, scene, state)

	hit, toi, ok := RayCastEntity(state, mgl32.Vec3{0, 0, 10}, mgl32.Vec3{0, 0, -1}, 100)
	if !ok {
		t.Fatalf("expected a hit")
	}
	if hit != eid {
		t.Errorf("expected entity %v, got %v", eid, hit)
	}
	if math.Abs(float64(toi-9.5)) > 1e-4 {
		t.Errorf("expected toi 9.5, got %v", toi)
	}

	if _, _, ok := RayCastEntity(state, mgl32.Vec3{0, 50, 10}, mgl32.Vec3{0, 0, -1}, 100); ok {
		t.Errorf("expected a miss")
	}
}

func TestRayCastEntity_UnownedColliderIsTransparent(t *testing.T) {
	state := NewPhysicsState()
	body := state.World.Bodies.Insert(dynamics.NewRigidBody(dynamics.BodyFixed, mgl32.Vec3{}, mgl32.QuatIdent()))
	state.World.Colliders.InsertWithParent(dynamics.NewCollider(dynamics.Ball(1)), body)
	state.World.UpdateQueryPipeline()

	if eid, _, ok := RayCastEntity(state, mgl32.Vec3{0, 0, 10}, mgl32.Vec3{0, 0, -1}, 100); ok || eid != NoEntity {
		t.Errorf("a collider without an owner must be transparent to picking")
	}
}
