package forge

import (
	"github.com/go-gl/mathgl/mgl32"
)

// EditorSelectedComponent marks the currently selected entity. At most one
// entity carries it; selection changes swap it atomically through Commands.
type EditorSelectedComponent struct{}

// EditorGizmoTag marks a gizmo visual entity and which axis it represents.
type EditorGizmoTag struct {
	Axis int
	Mode GizmoMode
}

// EditorState is the per-editor interaction state shared by the selection,
// shortcut and gizmo systems.
type EditorState struct {
	Gizmo         *GizmoManager
	ParentingMode bool
}

// EditorModule wires selection and shortcuts into PreUpdate and the gizmo
// update into PostUpdate, after the hierarchy pass (it reads global
// transforms) and before the physics sync (so dragged poses flow into the
// simulation the same frame).
type EditorModule struct{}

func (m EditorModule) Install(app *App, cmd *Commands) {
	cmd.AddResources(&EditorState{Gizmo: NewGizmoManager()})

	app.UseSystem(System(editorShortcutSystem).InStage(PreUpdate).RunAlways())
	app.UseSystem(System(editorSelectionSystem).InStage(PreUpdate).RunAlways())
	app.UseSystem(System(editorGizmoSystem).InStage(PostUpdate).RunAlways())
	app.UseSystem(System(editorGizmoVisualsSystem).InStage(PostUpdate).RunAlways())
}

func selectedEntity(cmd *Commands) EntityId {
	selected := NoEntity
	MakeQuery1[EditorSelectedComponent](cmd).Map(func(eid EntityId, s *EditorSelectedComponent) bool {
		selected = eid
		return false
	})
	return selected
}

func clearSelection(cmd *Commands) {
	MakeQuery1[EditorSelectedComponent](cmd).Map(func(eid EntityId, s *EditorSelectedComponent) bool {
		cmd.RemoveComponents(eid, EditorSelectedComponent{})
		return true
	})
}

// findSelectedAncestor walks up from eid and returns the first selected
// entity on the path, so clicking a child of the selection keeps it.
func findSelectedAncestor(scene *Scene, eid EntityId) EntityId {
	curr := eid
	for curr != NoEntity {
		if _, ok := GetComponent[EditorSelectedComponent](scene, curr); ok {
			return curr
		}
		curr = scene.ParentOf(curr)
	}
	return NoEntity
}

func activeCamera(cmd *Commands) *CameraComponent {
	var camera *CameraComponent
	MakeQuery1[CameraComponent](cmd).Map(func(eid EntityId, cam *CameraComponent) bool {
		camera = cam
		return false
	})
	return camera
}

// editorShortcutSystem handles the keyboard surface: G/R/S switch gizmo
// mode, Delete removes the selection, Ctrl+D duplicates, Ctrl+Z/Ctrl+Y
// drive history, Space toggles the simulation, P arms parenting mode.
func editorShortcutSystem(cmd *Commands, input *Input, scene *Scene, state *EditorState, physics *PhysicsState, history *CommandManager) {
	ctrl := input.Pressed[KeyControl]

	if !ctrl {
		if input.JustPressed[KeyG] {
			state.Gizmo.Mode = GizmoModeTranslate
		}
		if input.JustPressed[KeyR] {
			state.Gizmo.Mode = GizmoModeRotate
		}
		if input.JustPressed[KeyS] {
			state.Gizmo.Mode = GizmoModeScale
		}
		if input.JustPressed[KeyP] {
			state.ParentingMode = !state.ParentingMode
		}
		if input.JustPressed[KeySpace] {
			physics.Running = !physics.Running
		}
	}

	if ctrl && input.JustPressed[KeyZ] {
		history.Undo(scene)
	}
	if ctrl && input.JustPressed[KeyY] {
		history.Redo(scene)
	}

	selected := selectedEntity(cmd)
	if selected == NoEntity {
		return
	}

	if input.JustPressed[KeyDelete] {
		if del := NewDeleteEntityCommand(scene, selected); del != nil {
			history.Execute(scene, del)
		}
	}
	if ctrl && input.JustPressed[KeyD] {
		if dup, dupRoot := NewDuplicateCommand(scene, selected); dup != nil {
			clearSelection(cmd)
			cmd.AddComponents(dupRoot, EditorSelectedComponent{})
			history.Record(dup)
		}
	}
}

// editorSelectionSystem resolves left clicks into selection changes through
// the physics ray-cast. Clicks on the gizmo never change the selection, and
// clicking a descendant of the current selection keeps it until a second
// click drills down to the descendant itself.
func editorSelectionSystem(cmd *Commands, input *Input, scene *Scene, state *EditorState, physics *PhysicsState, history *CommandManager) {
	if !input.JustPressed[MouseButtonLeft] {
		return
	}
	if state.Gizmo.HoveredAxis != AxisNone || state.Gizmo.ActiveAxis != AxisNone {
		return
	}

	camera := activeCamera(cmd)
	if camera == nil {
		return
	}

	origin, dir := camera.ScreenToWorldRay(input.MouseX, input.MouseY, input.WindowWidth, input.WindowHeight)
	hit, _, ok := RayCastEntity(physics, origin, dir, 1000.0)

	if state.ParentingMode {
		state.ParentingMode = false
		selected := selectedEntity(cmd)
		if ok && selected != NoEntity && selected != hit {
			if reparent := NewReparentCommand(scene, selected, hit); reparent != nil {
				history.Execute(scene, reparent)
			}
		}
		return
	}

	if !ok {
		clearSelection(cmd)
		return
	}
	if _, internal := GetComponent[EditorInternalTag](scene, hit); internal {
		return
	}

	if kept := findSelectedAncestor(scene, hit); kept != NoEntity && kept != hit {
		return
	}

	clearSelection(cmd)
	cmd.AddComponents(hit, EditorSelectedComponent{})
}

// editorGizmoSystem runs the manipulation state machine on the selection
// and records a transform edit when a drag completes.
func editorGizmoSystem(cmd *Commands, input *Input, scene *Scene, state *EditorState, history *CommandManager) {
	selected := selectedEntity(cmd)
	if selected == NoEntity {
		state.Gizmo.Update(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1}, 0, 0, 1, 1, mgl32.Ident4(), false, NoEntity, scene, mgl32.Vec3{})
		return
	}

	camera := activeCamera(cmd)
	if camera == nil {
		return
	}

	winW, winH := input.WindowWidth, input.WindowHeight
	if winW <= 0 || winH <= 0 {
		return
	}

	origin, dir := camera.ScreenToWorldRay(input.MouseX, input.MouseY, winW, winH)
	viewProj := camera.ViewProj(float32(winW) / float32(winH))

	before, committed := state.Gizmo.Update(
		origin, dir,
		float32(input.MouseX), float32(input.MouseY),
		float32(winW), float32(winH),
		viewProj,
		input.Pressed[MouseButtonLeft],
		selected,
		scene,
		camera.Position,
	)

	if committed {
		if tr, ok := GetComponent[TransformComponent](scene, selected); ok {
			if id, hasUuid := entityUuid(scene, selected); hasUuid {
				history.Record(&TransformEditCommand{Entity: id, Before: before, After: *tr})
			}
		}
	}
}

// editorGizmoVisualsSystem keeps the gizmo's wireframe entities in sync
// with the selection: spawn on select, follow the entity, highlight the
// hovered axis, despawn on deselect or mode switch.
func editorGizmoVisualsSystem(cmd *Commands, scene *Scene, state *EditorState) {
	selected := selectedEntity(cmd)

	camera := activeCamera(cmd)
	if selected == NoEntity || camera == nil {
		MakeQuery1[EditorGizmoTag](cmd).Map(func(eid EntityId, tag *EditorGizmoTag) bool {
			cmd.RemoveEntity(eid)
			return true
		})
		return
	}

	pos := MatrixTranslation(scene.GlobalMatrix(selected))
	scale := state.Gizmo.Scale(pos, camera.Position)

	exists := false
	staleMode := false
	MakeQuery3[EditorGizmoTag, TransformComponent, GizmoComponent](cmd).Map(func(eid EntityId, tag *EditorGizmoTag, tr *TransformComponent, giz *GizmoComponent) bool {
		if tag.Mode != state.Gizmo.Mode {
			staleMode = true
			return false
		}
		exists = true

		tr.Position = pos
		tr.Scale = mgl32.Vec3{scale, scale, scale}

		giz.Color = axisColor(tag.Axis)
		if tag.Axis == state.Gizmo.HoveredAxis || tag.Axis == state.Gizmo.ActiveAxis {
			giz.Color = [4]float32{1, 1, 0, 1}
		}
		return true
	})

	if staleMode {
		MakeQuery1[EditorGizmoTag](cmd).Map(func(eid EntityId, tag *EditorGizmoTag) bool {
			cmd.RemoveEntity(eid)
			return true
		})
		return
	}
	if exists {
		return
	}

	for axis := 0; axis < 3; axis++ {
		tr := TransformComponent{
			Position: pos,
			Rotation: mgl32.QuatIdent(),
			Scale:    mgl32.Vec3{scale, scale, scale},
		}
		tag := EditorGizmoTag{Axis: axis, Mode: state.Gizmo.Mode}

		var visual GizmoComponent
		switch state.Gizmo.Mode {
		case GizmoModeTranslate, GizmoModeScale:
			visual = NewGizmoLine(mgl32.Vec3{}, gizmoAxes[axis], axisColor(axis))
		case GizmoModeRotate:
			visual = NewGizmoCircleAroundAxis(gizmoAxes[axis], 1.0, axisColor(axis))
		}

		cmd.AddEntity(&tr, &tag, &visual, &EditorInternalTag{})
	}
}

func axisColor(axis int) [4]float32 {
	switch axis {
	case 0:
		return [4]float32{1, 0, 0, 1}
	case 1:
		return [4]float32{0, 1, 0, 1}
	default:
		return [4]float32{0, 0, 1, 1}
	}
}
