package forge

import (
	"testing"
)

func TestFindSelectedAncestor(t *testing.T) {
	scene, _ := newTestScene()

	root := scene.CreateEntity(DefaultTransform())
	child := scene.CreateEntity(DefaultTransform())
	grandchild := scene.CreateEntity(DefaultTransform())
	scene.attach(child, root)
	scene.attach(grandchild, child)

	if got := findSelectedAncestor(scene, grandchild); got != NoEntity {
		t.Errorf("nothing selected: expected NoEntity, got %v", got)
	}

	scene.ecs.addComponents(root, &EditorSelectedComponent{})
	if got := findSelectedAncestor(scene, grandchild); got != root {
		t.Errorf("expected the selected root on the ancestor path, got %v", got)
	}
	if got := findSelectedAncestor(scene, root); got != root {
		t.Errorf("the walk starts at the entity itself, got %v", got)
	}
}

func TestSelectedEntity(t *testing.T) {
	scene, cmd := newTestScene()

	if got := selectedEntity(cmd); got != NoEntity {
		t.Errorf("empty scene: expected NoEntity, got %v", got)
	}

	eid := scene.CreateEntity(DefaultTransform(), EditorSelectedComponent{})
	if got := selectedEntity(cmd); got != eid {
		t.Errorf("expected the marked entity, got %v", got)
	}
}
