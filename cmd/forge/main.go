package main

import (
	"flag"
	"log"

	forge "github.com/forge3d/forge"
	"github.com/forge3d/forge/dynamics"
	"github.com/go-gl/mathgl/mgl32"
)

// demoSceneModule spawns the starter content: ground plane, a few bodies
// to push around, a light and the orbit camera.
type demoSceneModule struct{}

func (demoSceneModule) Install(app *forge.App, cmd *forge.Commands) {
	cmd.AddEntity(
		&forge.NameComponent{Name: "camera"},
		ptr(forge.DefaultCamera()),
		ptr(forge.DefaultOrbitCamera()),
	)

	ground := forge.DefaultTransform()
	ground.Scale = mgl32.Vec3{20, 1, 20}
	cmd.AddEntity(
		&forge.NameComponent{Name: "ground"},
		&ground,
		&forge.MeshComponent{Primitive: "plane"},
		ptr(forge.NewColliderComponent(dynamics.Cuboid(mgl32.Vec3{10, 0.05, 10}))),
		&forge.PBRMaterialComponent{BaseColor: [4]float32{0.35, 0.4, 0.35, 1}, Roughness: 0.9},
	)

	for i := 0; i < 3; i++ {
		tr := forge.DefaultTransform()
		tr.Position = mgl32.Vec3{float32(i-1) * 2, 2 + float32(i), 0}
		cmd.AddEntity(
			&forge.NameComponent{Name: "crate"},
			&tr,
			&forge.MeshComponent{Primitive: "cube"},
			ptr(forge.NewRigidBodyComponent(dynamics.BodyDynamic)),
			ptr(forge.NewColliderComponent(dynamics.Cuboid(mgl32.Vec3{0.5, 0.5, 0.5}))),
			&forge.PBRMaterialComponent{BaseColor: [4]float32{0.8, 0.5, 0.2, 1}, Roughness: 0.6},
		)
	}

	ball := forge.DefaultTransform()
	ball.Position = mgl32.Vec3{0, 6, 2}
	cmd.AddEntity(
		&forge.NameComponent{Name: "ball"},
		&ball,
		&forge.MeshComponent{Primitive: "sphere"},
		ptr(forge.NewRigidBodyComponent(dynamics.BodyDynamic)),
		ptr(forge.NewColliderComponent(dynamics.Ball(0.5))),
		&forge.PBRMaterialComponent{BaseColor: [4]float32{0.2, 0.4, 0.9, 1}, Roughness: 0.3},
	)

	light := forge.DefaultTransform()
	light.Position = mgl32.Vec3{4, 8, 4}
	cmd.AddEntity(
		&forge.NameComponent{Name: "sun"},
		&light,
		&forge.PointLightComponent{Color: [3]float32{1, 0.96, 0.9}, Intensity: 120, Range: 100},
	)
}

func ptr[T any](v T) *T { return &v }

func main() {
	configPath := flag.String("config", "forge.yaml", "editor config file")
	scenePath := flag.String("scene", "", "scene file to autosave/load (defaults to the configured path)")
	flag.Parse()

	cfg, err := LoadConfigOrDefaults(*configPath)
	if err != nil {
		log.Printf("config %s: %v (using defaults)", *configPath, err)
	}

	app := forge.NewAppBuilder().
		UseModule(
			forge.LoggingModule{Prefix: "forge", Debug: cfg.Debug},
			forge.ConfigModule{Path: *configPath},
			forge.NewPlatformWindow(cfg.Window.Width, cfg.Window.Height, cfg.Window.Title),
			forge.TimeModule{},
			forge.InputModule{},
			forge.AssetServerModule{},
			forge.SceneModule{},
			forge.AnimationModule{},
			forge.OrbitCameraModule{},
			forge.EditorModule{},
			forge.PhysicsModule{},
			forge.UndoModule{MaxDepth: cfg.UndoDepth},
			forge.PersistenceModule{Path: *scenePath},
			forge.LifecycleModule{},
			forge.RendererModule{},
			demoSceneModule{},
		).
		Build()

	app.Run()
}

// LoadConfigOrDefaults wraps config loading so a broken file still starts
// the editor; ConfigModule logs the same failure once the logger exists.
func LoadConfigOrDefaults(path string) (forge.EditorConfig, error) {
	cfg, err := forge.LoadEditorConfig(path)
	if err != nil {
		return forge.DefaultEditorConfig(), err
	}
	return cfg, nil
}
