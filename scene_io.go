package forge

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"slices"

	"github.com/forge3d/forge/dynamics"
	"github.com/google/uuid"
)

// EntityRecord is one entity in the persisted scene document and the unit
// of subtree (de)serialization for duplicate/delete-undo. Parent linkage is
// by UUID rather than EntityId so the document survives process restarts.
// Runtime-only state (physics handles) is excluded from the wire form and
// zeroed on capture, so spawned copies lazily acquire their own simulation
// objects.
type EntityRecord struct {
	Name       string                `json:"name"`
	Uuid       uuid.UUID             `json:"uuid"`
	ParentUuid *uuid.UUID            `json:"parent_uuid,omitempty"`
	Transform  *TransformComponent   `json:"transform,omitempty"`
	Material   *PBRMaterialComponent `json:"pbr_material,omitempty"`
	PointLight *PointLightComponent  `json:"point_light,omitempty"`
	RigidBody  *RigidBodyComponent   `json:"rigid_body,omitempty"`
	Collider   *ColliderComponent    `json:"collider,omitempty"`
	Mesh       *MeshComponent        `json:"mesh,omitempty"`
	Script     *ScriptComponent      `json:"script,omitempty"`
}

type SceneDocument struct {
	Entities []EntityRecord `json:"entities"`
}

// EditorInternalTag marks entities that belong to the editor itself (gizmo
// visuals, transient markers). They are never persisted or selectable.
type EditorInternalTag struct{}

func (scene *Scene) recordOf(eid EntityId) EntityRecord {
	rec := EntityRecord{}

	if nc, ok := GetComponent[NameComponent](scene, eid); ok {
		rec.Name = nc.Name
	}
	if uc, ok := GetComponent[UuidComponent](scene, eid); ok {
		rec.Uuid = uc.Uuid
	} else {
		rec.Uuid = uuid.New()
	}
	if tr, ok := GetComponent[TransformComponent](scene, eid); ok {
		c := *tr
		rec.Transform = &c
	}
	if mat, ok := GetComponent[PBRMaterialComponent](scene, eid); ok {
		c := *mat
		rec.Material = &c
	}
	if light, ok := GetComponent[PointLightComponent](scene, eid); ok {
		c := *light
		rec.PointLight = &c
	}
	if rb, ok := GetComponent[RigidBodyComponent](scene, eid); ok {
		c := *rb
		c.Body = dynamics.Handle{}
		rec.RigidBody = &c
	}
	if col, ok := GetComponent[ColliderComponent](scene, eid); ok {
		c := *col
		c.Collider = dynamics.Handle{}
		rec.Collider = &c
	}
	if mesh, ok := GetComponent[MeshComponent](scene, eid); ok {
		c := *mesh
		rec.Mesh = &c
	}
	if script, ok := GetComponent[ScriptComponent](scene, eid); ok {
		c := *script
		rec.Script = &c
	}

	return rec
}

func (scene *Scene) spawnRecord(rec *EntityRecord) EntityId {
	components := []any{
		&NameComponent{Name: rec.Name},
		&UuidComponent{Uuid: rec.Uuid},
	}

	if rec.Transform != nil {
		c := *rec.Transform
		components = append(components, &c)
	} else {
		tr := DefaultTransform()
		components = append(components, &tr)
	}
	if rec.Material != nil {
		c := *rec.Material
		components = append(components, &c)
	}
	if rec.PointLight != nil {
		c := *rec.PointLight
		components = append(components, &c)
	}
	if rec.RigidBody != nil {
		c := *rec.RigidBody
		c.Body = dynamics.Handle{}
		components = append(components, &c)
	}
	if rec.Collider != nil {
		c := *rec.Collider
		c.Collider = dynamics.Handle{}
		components = append(components, &c)
	}
	if rec.Mesh != nil {
		c := *rec.Mesh
		components = append(components, &c)
	}
	if rec.Script != nil {
		c := *rec.Script
		components = append(components, &c)
	}

	return scene.CreateEntity(components...)
}

// SaveScene writes every persistable entity to a JSON scene document.
// Editor-internal entities and entities without a UUID are skipped.
func SaveScene(scene *Scene, filename string) error {
	var records []EntityRecord

	for _, root := range scene.persistableRoots() {
		records = append(records, scene.SerializeSubtree(root)...)
	}

	doc := SceneDocument{Entities: records}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode scene: %w", err)
	}

	return os.WriteFile(filename, data, 0644)
}

// LoadScene spawns the document's entities into the scene (additive).
// Create-all then link-all: parent references resolve by UUID after every
// record in the batch exists.
func LoadScene(scene *Scene, filename string) ([]EntityId, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var doc SceneDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode scene %s: %w", filename, err)
	}

	return scene.SpawnSubtree(doc.Entities), nil
}

func (scene *Scene) persistableRoots() []EntityId {
	uuidId := scene.ecs.getComponentId(reflect.TypeOf(UuidComponent{}))
	parentId := scene.ecs.getComponentId(reflect.TypeOf(Parent{}))
	internalId := scene.ecs.getComponentId(reflect.TypeOf(EditorInternalTag{}))

	var roots []EntityId
	for _, arch := range scene.ecs.archetypes {
		if _, ok := arch.componentData[uuidId]; !ok {
			continue
		}
		if _, ok := arch.componentData[parentId]; ok {
			continue
		}
		if _, ok := arch.componentData[internalId]; ok {
			continue
		}
		for eid := range arch.entities {
			roots = append(roots, eid)
		}
	}
	// Stable document order across saves.
	slices.Sort(roots)
	return roots
}
