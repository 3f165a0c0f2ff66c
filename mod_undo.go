package forge

import (
	"github.com/google/uuid"
)

// EditorCommand is one undoable edit. Commands reference entities by UUID,
// not EntityId: delete/undo cycles respawn entities under fresh ids, and a
// stale id must degrade to a no-op rather than hit the wrong entity.
type EditorCommand interface {
	Apply(scene *Scene)
	Revert(scene *Scene)
	Name() string
}

// CommandManager keeps the undo and redo stacks. Executing or recording a
// new edit clears the redo stack; the undo stack is capped at MaxDepth by
// dropping the oldest entries.
type CommandManager struct {
	MaxDepth int

	undo []EditorCommand
	redo []EditorCommand
}

func NewCommandManager(maxDepth int) *CommandManager {
	if maxDepth <= 0 {
		maxDepth = 64
	}
	return &CommandManager{MaxDepth: maxDepth}
}

// Execute applies the command and records it.
func (cm *CommandManager) Execute(scene *Scene, cmd EditorCommand) {
	cmd.Apply(scene)
	cm.Record(cmd)
}

// Record pushes an already-applied command (gizmo drags mutate the
// transform live and only hand over the pre-drag pose on release).
func (cm *CommandManager) Record(cmd EditorCommand) {
	cm.undo = append(cm.undo, cmd)
	cm.redo = cm.redo[:0]
	if len(cm.undo) > cm.MaxDepth {
		cm.undo = cm.undo[len(cm.undo)-cm.MaxDepth:]
	}
}

func (cm *CommandManager) Undo(scene *Scene) bool {
	if len(cm.undo) == 0 {
		return false
	}
	cmd := cm.undo[len(cm.undo)-1]
	cm.undo = cm.undo[:len(cm.undo)-1]
	cmd.Revert(scene)
	cm.redo = append(cm.redo, cmd)
	return true
}

func (cm *CommandManager) Redo(scene *Scene) bool {
	if len(cm.redo) == 0 {
		return false
	}
	cmd := cm.redo[len(cm.redo)-1]
	cm.redo = cm.redo[:len(cm.redo)-1]
	cmd.Apply(scene)
	cm.undo = append(cm.undo, cmd)
	return true
}

func (cm *CommandManager) CanUndo() bool { return len(cm.undo) > 0 }
func (cm *CommandManager) CanRedo() bool { return len(cm.redo) > 0 }

type UndoModule struct {
	MaxDepth int
}

func (m UndoModule) Install(app *App, cmd *Commands) {
	cmd.AddResources(NewCommandManager(m.MaxDepth))
}

func entityUuid(scene *Scene, eid EntityId) (uuid.UUID, bool) {
	if uc, ok := GetComponent[UuidComponent](scene, eid); ok {
		return uc.Uuid, true
	}
	return uuid.UUID{}, false
}

// TransformEditCommand swaps an entity's local transform between two poses.
type TransformEditCommand struct {
	Entity uuid.UUID
	Before TransformComponent
	After  TransformComponent
}

func (c *TransformEditCommand) Name() string { return "Edit Transform" }

func (c *TransformEditCommand) Apply(scene *Scene) {
	c.set(scene, c.After)
}

func (c *TransformEditCommand) Revert(scene *Scene) {
	c.set(scene, c.Before)
}

func (c *TransformEditCommand) set(scene *Scene, value TransformComponent) {
	eid := scene.EntityByUuid(c.Entity)
	if eid == NoEntity {
		return
	}
	if tr, ok := GetComponent[TransformComponent](scene, eid); ok {
		*tr = value
	}
}

// NewDeleteEntityCommand captures the subtree before deletion so Revert can
// respawn it; the root record is linked to the surviving parent by UUID.
// Returns nil if the entity cannot be serialized.
func NewDeleteEntityCommand(scene *Scene, eid EntityId) *DeleteEntityCommand {
	records := scene.SerializeSubtree(eid)
	if len(records) == 0 {
		return nil
	}
	if parent := scene.ParentOf(eid); parent != NoEntity {
		if parentUuid, ok := entityUuid(scene, parent); ok {
			records[0].ParentUuid = &parentUuid
		}
	}
	return &DeleteEntityCommand{Records: records}
}

type DeleteEntityCommand struct {
	Records []EntityRecord
}

func (c *DeleteEntityCommand) Name() string { return "Delete Entity" }

func (c *DeleteEntityCommand) Apply(scene *Scene) {
	if eid := scene.EntityByUuid(c.Records[0].Uuid); eid != NoEntity {
		scene.RemoveEntity(eid)
	}
}

func (c *DeleteEntityCommand) Revert(scene *Scene) {
	scene.SpawnSubtree(c.Records)
}

// SpawnCommand spawns a serialized subtree; Revert deletes it again.
type SpawnCommand struct {
	Records []EntityRecord
}

func (c *SpawnCommand) Name() string { return "Spawn Entity" }

func (c *SpawnCommand) Apply(scene *Scene) {
	if len(c.Records) == 0 {
		return
	}
	if scene.EntityByUuid(c.Records[0].Uuid) != NoEntity {
		return // already present
	}
	scene.SpawnSubtree(c.Records)
}

func (c *SpawnCommand) Revert(scene *Scene) {
	if len(c.Records) == 0 {
		return
	}
	if eid := scene.EntityByUuid(c.Records[0].Uuid); eid != NoEntity {
		scene.RemoveEntity(eid)
	}
}

// NewDuplicateCommand duplicates the subtree immediately and wraps the
// result so undo/redo replays the same copy (same UUIDs) each time.
func NewDuplicateCommand(scene *Scene, source EntityId) (*SpawnCommand, EntityId) {
	dup := scene.DuplicateEntity(source)
	if dup == NoEntity {
		return nil, NoEntity
	}
	records := scene.SerializeSubtree(dup)
	if parent := scene.ParentOf(dup); parent != NoEntity {
		if parentUuid, ok := entityUuid(scene, parent); ok {
			records[0].ParentUuid = &parentUuid
		}
	}
	return &SpawnCommand{Records: records}, dup
}

// ReparentCommand moves an entity between parents. SetParent preserves the
// world pose in both directions, so Revert restores the original local
// transform as well.
type ReparentCommand struct {
	Child     uuid.UUID
	OldParent uuid.UUID // zero UUID means root
	NewParent uuid.UUID
}

func NewReparentCommand(scene *Scene, child, newParent EntityId) *ReparentCommand {
	childUuid, ok := entityUuid(scene, child)
	if !ok {
		return nil
	}
	cmd := &ReparentCommand{Child: childUuid}
	if oldParent := scene.ParentOf(child); oldParent != NoEntity {
		cmd.OldParent, _ = entityUuid(scene, oldParent)
	}
	if newParent != NoEntity {
		newUuid, ok := entityUuid(scene, newParent)
		if !ok {
			return nil
		}
		cmd.NewParent = newUuid
	}
	return cmd
}

func (c *ReparentCommand) Name() string { return "Reparent Entity" }

func (c *ReparentCommand) Apply(scene *Scene) {
	c.move(scene, c.NewParent)
}

func (c *ReparentCommand) Revert(scene *Scene) {
	c.move(scene, c.OldParent)
}

func (c *ReparentCommand) move(scene *Scene, parent uuid.UUID) {
	child := scene.EntityByUuid(c.Child)
	if child == NoEntity {
		return
	}
	target := NoEntity
	if parent != (uuid.UUID{}) {
		target = scene.EntityByUuid(parent)
		if target == NoEntity {
			return
		}
	}
	scene.SetParent(child, target)
}
