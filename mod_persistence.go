package forge

// PersistenceState tracks the scene file in use and the autosave clock.
type PersistenceState struct {
	Path             string
	AutosaveInterval float32

	sinceAutosave float32
}

// PersistenceModule wires scene save/load into the editor: Ctrl+S writes
// the scene document, Ctrl+O loads it additively, and a timer autosaves.
// Path falls back to the configured autosave path when empty.
type PersistenceModule struct {
	Path             string
	AutosaveInterval float32
}

func (m PersistenceModule) Install(app *App, cmd *Commands) {
	interval := m.AutosaveInterval
	if interval <= 0 {
		interval = 30
	}
	cmd.AddResources(&PersistenceState{Path: m.Path, AutosaveInterval: interval})

	app.UseSystem(
		System(persistenceSystem).
			InStage(PostUpdate).
			RunAlways(),
	)
}

func persistenceSystem(cmd *Commands, scene *Scene, state *PersistenceState, input *Input, time *Time, config *EditorConfig, logger *DefaultLogger) {
	path := state.Path
	if path == "" {
		path = config.AutosavePath
	}
	if path == "" {
		return
	}

	ctrl := input.Pressed[KeyControl]
	if ctrl && input.JustPressed[KeyS] {
		if err := SaveScene(scene, path); err != nil {
			logger.Errorf("save scene %s: %v", path, err)
		} else {
			logger.Infof("scene saved to %s", path)
		}
		state.sinceAutosave = 0
	}
	if ctrl && input.JustPressed[KeyO] {
		if _, err := LoadScene(scene, path); err != nil {
			logger.Errorf("load scene %s: %v", path, err)
		} else {
			logger.Infof("scene loaded from %s", path)
		}
	}

	state.sinceAutosave += float32(time.Dt)
	if state.sinceAutosave < state.AutosaveInterval {
		return
	}
	state.sinceAutosave = 0
	if err := SaveScene(scene, path); err != nil {
		logger.Errorf("autosave %s: %v", path, err)
	}
}
