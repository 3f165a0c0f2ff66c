package forge

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EditorConfig is the YAML-backed editor configuration. Every field has a
// working default, so a missing file is not an error; a malformed file is.
type EditorConfig struct {
	Window struct {
		Title  string `yaml:"title"`
		Width  int    `yaml:"width"`
		Height int    `yaml:"height"`
	} `yaml:"window"`

	Physics struct {
		Gravity  [3]float32 `yaml:"gravity"`
		Timestep float32    `yaml:"timestep"`
	} `yaml:"physics"`

	Camera struct {
		OrbitSensitivity float32 `yaml:"orbit_sensitivity"`
		ZoomSpeed        float32 `yaml:"zoom_speed"`
		PanSpeed         float32 `yaml:"pan_speed"`
	} `yaml:"camera"`

	UndoDepth    int    `yaml:"undo_depth"`
	AutosavePath string `yaml:"autosave_path"`
	Debug        bool   `yaml:"debug"`
}

func DefaultEditorConfig() EditorConfig {
	var cfg EditorConfig
	cfg.Window.Title = "Forge"
	cfg.Window.Width = 1280
	cfg.Window.Height = 720
	cfg.Physics.Gravity = [3]float32{0, -9.81, 0}
	cfg.Physics.Timestep = 1.0 / 60.0
	cfg.Camera.OrbitSensitivity = 0.3
	cfg.Camera.ZoomSpeed = 0.9
	cfg.Camera.PanSpeed = 0.0025
	cfg.UndoDepth = 64
	cfg.AutosavePath = "autosave.scene.json"
	return cfg
}

// LoadEditorConfig reads the YAML file on top of the defaults. A missing
// file returns the defaults unchanged.
func LoadEditorConfig(path string) (EditorConfig, error) {
	cfg := DefaultEditorConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ConfigModule loads the config once at install time and exposes it as a
// resource. A load failure falls back to defaults and is logged, not fatal.
type ConfigModule struct {
	Path string
}

func (m ConfigModule) Install(app *App, cmd *Commands) {
	path := m.Path
	if path == "" {
		path = "forge.yaml"
	}

	cfg, err := LoadEditorConfig(path)
	if err != nil {
		app.Logger().Errorf("config: %v (using defaults)", err)
	}
	cmd.AddResources(&cfg)
}
