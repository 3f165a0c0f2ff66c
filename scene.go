package forge

import (
	"reflect"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// Scene is the immediate-mode surface over the ECS used by the editor:
// entity creation/deletion with subtree cascade, world-preserving
// reparenting, top-down global transform propagation, duplication and
// subtree (de)serialization. Systems that only read or tweak component
// fields keep going through queries; Scene is for structural mutation
// that must be observable in the same frame phase (undo commands, scene
// loading, reparent drops).
type Scene struct {
	ecs *Ecs
}

type SceneModule struct{}

func (m SceneModule) Install(app *App, cmd *Commands) {
	cmd.AddResources(&Scene{ecs: app.ecs})

	app.UseSystem(
		System(TransformHierarchySystem).
			InStage(PostUpdate).
			RunAlways(),
	)
	// Physics write-back and animation both touch local transforms after
	// the PostUpdate pass, so globals are recomputed before rendering.
	app.UseSystem(
		System(TransformHierarchySystem).
			InStage(PreRender).
			RunAlways(),
	)
}

func TransformHierarchySystem(cmd *Commands, scene *Scene) {
	scene.UpdateHierarchy()
}

// GetComponent returns a pointer into archetype storage. The pointer stays
// valid until the entity's component set changes.
func GetComponent[T any](scene *Scene, eid EntityId) (*T, bool) {
	var zero T
	ptr := scene.ecs.getComponent(eid, reflect.TypeOf(zero))
	if ptr == nil {
		return nil, false
	}
	return ptr.(*T), true
}

func (scene *Scene) Valid(eid EntityId) bool {
	return eid != NoEntity && scene.ecs.hasEntity(eid)
}

// CreateEntity inserts the entity immediately and guarantees the editor
// baseline: a fresh UUID (unless the caller supplied one, as scene loading
// does) and a default-identity GlobalTransform.
func (scene *Scene) CreateEntity(components ...any) EntityId {
	hasUuid := false
	hasGlobal := false
	for _, c := range components {
		t := reflect.TypeOf(c)
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		switch t {
		case reflect.TypeOf(UuidComponent{}):
			hasUuid = true
		case reflect.TypeOf(GlobalTransformComponent{}):
			hasGlobal = true
		}
	}

	if !hasUuid {
		components = append(components, &UuidComponent{Uuid: uuid.New()})
	}
	if !hasGlobal {
		components = append(components, &GlobalTransformComponent{Matrix: mgl32.Ident4()})
	}

	return scene.ecs.addEntity(components...)
}

// RemoveEntity despawns the entity and every descendant. The subtree is
// collected breadth-first before anything dies, and the entity is detached
// from its parent's children list. Physics-side objects referenced by the
// removed components are the bridge's to reclaim, not ours.
func (scene *Scene) RemoveEntity(eid EntityId) bool {
	if !scene.Valid(eid) {
		return false
	}

	scene.detachFromParent(eid)

	doomed := []EntityId{eid}
	for cursor := 0; cursor < len(doomed); cursor++ {
		if children, ok := GetComponent[ChildrenComponent](scene, doomed[cursor]); ok {
			doomed = append(doomed, children.Entities...)
		}
	}

	for _, e := range doomed {
		scene.ecs.removeEntity(e)
	}
	return true
}

func (scene *Scene) ParentOf(eid EntityId) EntityId {
	if p, ok := GetComponent[Parent](scene, eid); ok {
		return p.Entity
	}
	return NoEntity
}

func (scene *Scene) ChildrenOf(eid EntityId) []EntityId {
	if c, ok := GetComponent[ChildrenComponent](scene, eid); ok {
		return slices.Clone(c.Entities)
	}
	return nil
}

func (scene *Scene) detachFromParent(eid EntityId) {
	parent := scene.ParentOf(eid)
	if parent == NoEntity {
		return
	}
	if children, ok := GetComponent[ChildrenComponent](scene, parent); ok {
		children.Entities = slices.DeleteFunc(children.Entities, func(e EntityId) bool {
			return e == eid
		})
	}
}

func (scene *Scene) isDescendantOf(eid EntityId, ancestor EntityId) bool {
	curr := scene.ParentOf(eid)
	for curr != NoEntity {
		if curr == ancestor {
			return true
		}
		curr = scene.ParentOf(curr)
	}
	return false
}

// SetParent reattaches child under newParent (NoEntity detaches to root)
// while keeping the child's world pose intact: the cached global is
// re-expressed in the new parent's space and decomposed back into the
// local transform. Both sides of the parent/children link are updated
// together. No-ops: self-parenting, same parent, dead entities, and
// parenting under one's own descendant.
func (scene *Scene) SetParent(child EntityId, newParent EntityId) bool {
	if child == newParent || !scene.Valid(child) {
		return false
	}
	if newParent != NoEntity && !scene.Valid(newParent) {
		return false
	}
	if scene.ParentOf(child) == newParent {
		return false
	}
	if newParent != NoEntity && scene.isDescendantOf(newParent, child) {
		return false
	}

	childGlobal := scene.GlobalMatrix(child)

	scene.attach(child, newParent)

	if newParent == NoEntity {
		if tr, ok := GetComponent[TransformComponent](scene, child); ok {
			*tr = DecomposeMatrix(childGlobal)
		}
		return true
	}

	parentGlobal := scene.GlobalMatrix(newParent)
	newLocal := parentGlobal.Inv().Mul4(childGlobal)
	if tr, ok := GetComponent[TransformComponent](scene, child); ok {
		*tr = DecomposeMatrix(newLocal)
	}
	return true
}

// attach rewires the parent/children links without touching transforms.
// Subtree spawning uses it directly: serialized records already carry
// parent-relative locals.
func (scene *Scene) attach(child EntityId, parent EntityId) {
	scene.detachFromParent(child)

	if parent == NoEntity {
		if _, ok := GetComponent[Parent](scene, child); ok {
			scene.ecs.removeComponents(child, Parent{})
		}
		return
	}

	if children, ok := GetComponent[ChildrenComponent](scene, parent); ok {
		if !slices.Contains(children.Entities, child) {
			children.Entities = append(children.Entities, child)
		}
	} else {
		scene.ecs.addComponents(parent, &ChildrenComponent{Entities: []EntityId{child}})
	}

	if p, ok := GetComponent[Parent](scene, child); ok {
		p.Entity = parent
	} else {
		scene.ecs.addComponents(child, &Parent{Entity: parent})
	}
}

// GlobalMatrix returns the cached global, falling back to the local matrix
// (or identity) when no propagation has run for this entity yet.
func (scene *Scene) GlobalMatrix(eid EntityId) mgl32.Mat4 {
	if gt, ok := GetComponent[GlobalTransformComponent](scene, eid); ok {
		return gt.Matrix
	}
	if tr, ok := GetComponent[TransformComponent](scene, eid); ok {
		return tr.Matrix()
	}
	return mgl32.Ident4()
}

// UpdateHierarchy recomputes every GlobalTransform top-down:
// global = parentGlobal * T*R*S. Must run before any consumer reads the
// cache in a given frame; nothing keeps it in sync on individual writes.
func (scene *Scene) UpdateHierarchy() {
	trId := scene.ecs.getComponentId(reflect.TypeOf(TransformComponent{}))
	parentId := scene.ecs.getComponentId(reflect.TypeOf(Parent{}))

	// Collect roots first: propagation may insert missing GlobalTransforms,
	// which moves entities between archetypes mid-walk.
	var roots []EntityId
	for _, arch := range scene.ecs.archetypes {
		if _, ok := arch.componentData[trId]; !ok {
			continue
		}
		if _, ok := arch.componentData[parentId]; ok {
			continue
		}
		for eid := range arch.entities {
			roots = append(roots, eid)
		}
	}

	for _, root := range roots {
		scene.propagate(root, mgl32.Ident4())
	}
}

func (scene *Scene) propagate(eid EntityId, parentGlobal mgl32.Mat4) {
	global := parentGlobal
	if tr, ok := GetComponent[TransformComponent](scene, eid); ok {
		global = parentGlobal.Mul4(tr.Matrix())
	}

	if gt, ok := GetComponent[GlobalTransformComponent](scene, eid); ok {
		gt.Matrix = global
	} else {
		scene.ecs.addComponents(eid, &GlobalTransformComponent{Matrix: global})
	}

	for _, child := range scene.ChildrenOf(eid) {
		if scene.Valid(child) {
			scene.propagate(child, global)
		}
	}
}

// FindByName does a depth-first search from root (inclusive) and returns
// the first entity whose NameComponent matches.
func (scene *Scene) FindByName(root EntityId, name string) EntityId {
	if !scene.Valid(root) {
		return NoEntity
	}
	if nc, ok := GetComponent[NameComponent](scene, root); ok && nc.Name == name {
		return root
	}
	for _, child := range scene.ChildrenOf(root) {
		if found := scene.FindByName(child, name); found != NoEntity {
			return found
		}
	}
	return NoEntity
}

func (scene *Scene) EntityByUuid(id uuid.UUID) EntityId {
	uuidId := scene.ecs.getComponentId(reflect.TypeOf(UuidComponent{}))
	for _, arch := range scene.ecs.archetypes {
		data, ok := arch.componentData[uuidId]
		if !ok {
			continue
		}
		uuids := data.([]UuidComponent)
		for eid, row := range arch.entities {
			if uuids[row].Uuid == id {
				return eid
			}
		}
	}
	return NoEntity
}

// DuplicateEntity deep-copies the subtree rooted at eid: fresh entities,
// fresh UUIDs, mirrored component values, isomorphic structure. The copy is
// attached to the same parent as the source and returned.
func (scene *Scene) DuplicateEntity(eid EntityId) EntityId {
	if !scene.Valid(eid) {
		return NoEntity
	}

	records := scene.SerializeSubtree(eid)
	if len(records) == 0 {
		return NoEntity
	}

	// Re-key every record so the copy gets its own identity but keeps the
	// internal parent linkage intact.
	freshIds := make(map[uuid.UUID]uuid.UUID, len(records))
	for _, rec := range records {
		freshIds[rec.Uuid] = uuid.New()
	}
	for i := range records {
		records[i].Uuid = freshIds[records[i].Uuid]
		if records[i].ParentUuid != nil {
			if fresh, ok := freshIds[*records[i].ParentUuid]; ok {
				mapped := fresh
				records[i].ParentUuid = &mapped
			}
		}
	}

	spawned := scene.SpawnSubtree(records)
	if len(spawned) == 0 {
		return NoEntity
	}

	dupRoot := spawned[0]
	if parent := scene.ParentOf(eid); parent != NoEntity {
		scene.attach(dupRoot, parent)
	}
	return dupRoot
}

// SerializeSubtree captures the subtree depth-first as scene records. The
// root record carries no parent reference; every other record points at its
// parent by UUID, so spawn order does not matter on the way back in.
func (scene *Scene) SerializeSubtree(root EntityId) []EntityRecord {
	if !scene.Valid(root) {
		return nil
	}
	var records []EntityRecord
	scene.serializeInto(root, nil, &records)
	return records
}

func (scene *Scene) serializeInto(eid EntityId, parentUuid *uuid.UUID, out *[]EntityRecord) {
	rec := scene.recordOf(eid)
	rec.ParentUuid = parentUuid
	*out = append(*out, rec)

	self := rec.Uuid
	for _, child := range scene.ChildrenOf(eid) {
		if scene.Valid(child) {
			scene.serializeInto(child, &self, out)
		}
	}
}

// SpawnSubtree recreates serialized records in two passes: create all
// entities first, then resolve parent links by UUID, because records may
// arrive in any order. Returns the new entity ids in record order.
func (scene *Scene) SpawnSubtree(records []EntityRecord) []EntityId {
	spawned := make([]EntityId, 0, len(records))
	byUuid := make(map[uuid.UUID]EntityId, len(records))

	for i := range records {
		eid := scene.spawnRecord(&records[i])
		spawned = append(spawned, eid)
		byUuid[records[i].Uuid] = eid
	}

	for i, rec := range records {
		if rec.ParentUuid == nil {
			continue
		}
		if parent, ok := byUuid[*rec.ParentUuid]; ok {
			scene.attach(spawned[i], parent)
		} else if existing := scene.EntityByUuid(*rec.ParentUuid); existing != NoEntity {
			// Parent lives outside the batch (e.g. restoring a deleted
			// subtree under its surviving parent).
			scene.attach(spawned[i], existing)
		}
	}

	return spawned
}
