package forge

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

func newTestScene() (*Scene, *Commands) {
	ecs := MakeEcs()
	app := &App{ecs: &ecs}
	return &Scene{ecs: &ecs}, &Commands{app: app}
}

func transformAt(x, y, z float32) TransformComponent {
	tr := DefaultTransform()
	tr.Position = mgl32.Vec3{x, y, z}
	return tr
}

func TestScene_CreateEntityBaseline(t *testing.T) {
	scene, _ := newTestScene()

	eid := scene.CreateEntity(NameComponent{Name: "thing"})

	uc, ok := GetComponent[UuidComponent](scene, eid)
	if !ok {
		t.Fatalf("expected an auto-added UuidComponent")
	}
	if uc.Uuid == (uuid.UUID{}) {
		t.Errorf("expected a non-zero uuid")
	}

	gt, ok := GetComponent[GlobalTransformComponent](scene, eid)
	if !ok {
		t.Fatalf("expected an auto-added GlobalTransformComponent")
	}
	if gt.Matrix != mgl32.Ident4() {
		t.Errorf("expected identity global transform, got %v", gt.Matrix)
	}
}

func TestScene_HierarchyPropagation(t *testing.T) {
	scene, _ := newTestScene()

	a := scene.CreateEntity(transformAt(1, 0, 0))
	b := scene.CreateEntity(transformAt(0, 2, 0))
	c := scene.CreateEntity(transformAt(0, 0, 3))
	scene.attach(b, a)
	scene.attach(c, b)

	scene.UpdateHierarchy()

	got := MatrixTranslation(scene.GlobalMatrix(c))
	if !approxEqualVec3(got, mgl32.Vec3{1, 2, 3}, 1e-5) {
		t.Errorf("expected global position (1,2,3), got %v", got)
	}
}

func TestScene_HierarchyParentScale(t *testing.T) {
	scene, _ := newTestScene()

	parentTr := DefaultTransform()
	parentTr.Scale = mgl32.Vec3{2, 2, 2}
	parent := scene.CreateEntity(parentTr)
	child := scene.CreateEntity(transformAt(1, 0, 0))
	scene.attach(child, parent)

	scene.UpdateHierarchy()

	got := MatrixTranslation(scene.GlobalMatrix(child))
	if !approxEqualVec3(got, mgl32.Vec3{2, 0, 0}, 1e-5) {
		t.Errorf("expected scaled child position (2,0,0), got %v", got)
	}
}

func TestScene_SetParentPreservesWorldPose(t *testing.T) {
	scene, _ := newTestScene()

	a := scene.CreateEntity(transformAt(5, 0, 0))
	b := scene.CreateEntity(transformAt(7, 1, 0))
	scene.UpdateHierarchy()

	if !scene.SetParent(b, a) {
		t.Fatalf("SetParent should succeed")
	}

	tr, _ := GetComponent[TransformComponent](scene, b)
	if !approxEqualVec3(tr.Position, mgl32.Vec3{2, 1, 0}, 1e-4) {
		t.Errorf("expected local position (2,1,0), got %v", tr.Position)
	}

	scene.UpdateHierarchy()
	got := MatrixTranslation(scene.GlobalMatrix(b))
	if !approxEqualVec3(got, mgl32.Vec3{7, 1, 0}, 1e-4) {
		t.Errorf("world position should be preserved, got %v", got)
	}

	if scene.ParentOf(b) != a {
		t.Errorf("expected parent link to a")
	}
	children := scene.ChildrenOf(a)
	if len(children) != 1 || children[0] != b {
		t.Errorf("expected children list [b], got %v", children)
	}
}

func TestScene_SetParentUnderRotatedParent(t *testing.T) {
	scene, _ := newTestScene()

	parentTr := DefaultTransform()
	parentTr.Rotation = mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0})
	parent := scene.CreateEntity(parentTr)
	child := scene.CreateEntity(transformAt(1, 0, 0))
	scene.UpdateHierarchy()

	before := MatrixTranslation(scene.GlobalMatrix(child))
	scene.SetParent(child, parent)
	scene.UpdateHierarchy()
	after := MatrixTranslation(scene.GlobalMatrix(child))

	if !approxEqualVec3(before, after, 1e-4) {
		t.Errorf("world position changed across reparent: %v -> %v", before, after)
	}
}

func TestScene_SetParentDetachToRoot(t *testing.T) {
	scene, _ := newTestScene()

	a := scene.CreateEntity(transformAt(5, 0, 0))
	b := scene.CreateEntity(transformAt(2, 1, 0))
	scene.attach(b, a)
	scene.UpdateHierarchy()

	if !scene.SetParent(b, NoEntity) {
		t.Fatalf("detach to root should succeed")
	}

	tr, _ := GetComponent[TransformComponent](scene, b)
	if !approxEqualVec3(tr.Position, mgl32.Vec3{7, 1, 0}, 1e-4) {
		t.Errorf("expected local position to absorb the world pose, got %v", tr.Position)
	}
	if scene.ParentOf(b) != NoEntity {
		t.Errorf("expected no parent")
	}
	if len(scene.ChildrenOf(a)) != 0 {
		t.Errorf("expected b removed from a's children")
	}
}

func TestScene_SetParentRejections(t *testing.T) {
	scene, _ := newTestScene()

	a := scene.CreateEntity(DefaultTransform())
	b := scene.CreateEntity(DefaultTransform())
	c := scene.CreateEntity(DefaultTransform())
	scene.attach(b, a)
	scene.attach(c, b)

	if scene.SetParent(a, a) {
		t.Errorf("self-parenting should be rejected")
	}
	if scene.SetParent(a, c) {
		t.Errorf("parenting under one's own descendant should be rejected")
	}
	if scene.SetParent(b, a) {
		t.Errorf("reparenting to the current parent should be a no-op")
	}
	if scene.SetParent(EntityId(9999), a) {
		t.Errorf("dead child should be rejected")
	}
	if scene.SetParent(a, EntityId(9999)) {
		t.Errorf("dead parent should be rejected")
	}
}

func TestScene_RemoveEntityCascade(t *testing.T) {
	scene, _ := newTestScene()

	a := scene.CreateEntity(DefaultTransform())
	b := scene.CreateEntity(DefaultTransform())
	c := scene.CreateEntity(DefaultTransform())
	scene.attach(b, a)
	scene.attach(c, b)

	if !scene.RemoveEntity(b) {
		t.Fatalf("RemoveEntity should succeed")
	}

	if !scene.Valid(a) {
		t.Errorf("a should survive")
	}
	if scene.Valid(b) || scene.Valid(c) {
		t.Errorf("b and its subtree should be gone")
	}
	if len(scene.ChildrenOf(a)) != 0 {
		t.Errorf("a should no longer list b as a child")
	}

	if scene.RemoveEntity(b) {
		t.Errorf("removing a dead entity should report false")
	}
}

func TestScene_FindByName(t *testing.T) {
	scene, _ := newTestScene()

	root := scene.CreateEntity(NameComponent{Name: "root"}, DefaultTransform())
	arm := scene.CreateEntity(NameComponent{Name: "arm"}, DefaultTransform())
	hand := scene.CreateEntity(NameComponent{Name: "hand"}, DefaultTransform())
	scene.attach(arm, root)
	scene.attach(hand, arm)

	if got := scene.FindByName(root, "hand"); got != hand {
		t.Errorf("expected to find hand, got %v", got)
	}
	if got := scene.FindByName(root, "root"); got != root {
		t.Errorf("search should include the root itself")
	}
	if got := scene.FindByName(root, "leg"); got != NoEntity {
		t.Errorf("expected NoEntity for a missing name, got %v", got)
	}
	if got := scene.FindByName(arm, "root"); got != NoEntity {
		t.Errorf("search should not walk upward, got %v", got)
	}
}

func TestScene_EntityByUuid(t *testing.T) {
	scene, _ := newTestScene()

	eid := scene.CreateEntity(DefaultTransform())
	uc, _ := GetComponent[UuidComponent](scene, eid)

	if got := scene.EntityByUuid(uc.Uuid); got != eid {
		t.Errorf("expected %v, got %v", eid, got)
	}
	if got := scene.EntityByUuid(uuid.New()); got != NoEntity {
		t.Errorf("unknown uuid should resolve to NoEntity, got %v", got)
	}
}

func TestScene_DuplicateEntity(t *testing.T) {
	scene, _ := newTestScene()

	root := scene.CreateEntity(NameComponent{Name: "rig"}, transformAt(1, 2, 3))
	child := scene.CreateEntity(NameComponent{Name: "arm"}, transformAt(0, 1, 0))
	scene.attach(child, root)

	dup := scene.DuplicateEntity(root)
	if dup == NoEntity || dup == root {
		t.Fatalf("expected a fresh duplicate, got %v", dup)
	}

	name, _ := GetComponent[NameComponent](scene, dup)
	if name.Name != "rig" {
		t.Errorf("expected copied name, got %q", name.Name)
	}

	srcUuid, _ := GetComponent[UuidComponent](scene, root)
	dupUuid, _ := GetComponent[UuidComponent](scene, dup)
	if srcUuid.Uuid == dupUuid.Uuid {
		t.Errorf("duplicate must get a fresh uuid")
	}

	dupChildren := scene.ChildrenOf(dup)
	if len(dupChildren) != 1 {
		t.Fatalf("expected one duplicated child, got %d", len(dupChildren))
	}
	childName, _ := GetComponent[NameComponent](scene, dupChildren[0])
	if childName.Name != "arm" {
		t.Errorf("expected duplicated child name, got %q", childName.Name)
	}

	// The copy is independent of the source.
	dupTr, _ := GetComponent[TransformComponent](scene, dup)
	dupTr.Position = mgl32.Vec3{9, 9, 9}
	srcTr, _ := GetComponent[TransformComponent](scene, root)
	if !approxEqualVec3(srcTr.Position, mgl32.Vec3{1, 2, 3}, 1e-6) {
		t.Errorf("mutating the duplicate must not touch the source, got %v", srcTr.Position)
	}
}

func TestScene_DuplicateAttachesToSourceParent(t *testing.T) {
	scene, _ := newTestScene()

	parent := scene.CreateEntity(DefaultTransform())
	child := scene.CreateEntity(DefaultTransform())
	scene.attach(child, parent)

	dup := scene.DuplicateEntity(child)
	if scene.ParentOf(dup) != parent {
		t.Errorf("duplicate should be attached to the source's parent")
	}
	if len(scene.ChildrenOf(parent)) != 2 {
		t.Errorf("parent should list both the source and the copy")
	}
}

func TestScene_SerializeSubtree(t *testing.T) {
	scene, _ := newTestScene()

	root := scene.CreateEntity(NameComponent{Name: "root"}, DefaultTransform())
	child := scene.CreateEntity(NameComponent{Name: "child"}, DefaultTransform())
	scene.attach(child, root)

	records := scene.SerializeSubtree(root)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ParentUuid != nil {
		t.Errorf("root record must carry no parent reference")
	}
	if records[1].ParentUuid == nil || *records[1].ParentUuid != records[0].Uuid {
		t.Errorf("child record must point at the root by uuid")
	}
}

func TestScene_SpawnSubtreeExternalParent(t *testing.T) {
	scene, _ := newTestScene()

	parent := scene.CreateEntity(NameComponent{Name: "parent"}, DefaultTransform())
	parentUuid, _ := entityUuid(scene, parent)

	records := []EntityRecord{{
		Name:       "restored",
		Uuid:       uuid.New(),
		ParentUuid: &parentUuid,
		Transform:  ptrTransform(transformAt(1, 0, 0)),
	}}

	spawned := scene.SpawnSubtree(records)
	if len(spawned) != 1 {
		t.Fatalf("expected one spawned entity")
	}
	if scene.ParentOf(spawned[0]) != parent {
		t.Errorf("out-of-batch parent should be resolved by uuid")
	}
}

func ptrTransform(tr TransformComponent) *TransformComponent {
	return &tr
}
