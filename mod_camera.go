package forge

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// CameraComponent is the render view. Yaw/Pitch are in degrees and are the
// source of truth for the view direction; Position/LookAt are derived each
// frame by the controlling system.
type CameraComponent struct {
	Position mgl32.Vec3
	LookAt   mgl32.Vec3
	Up       mgl32.Vec3
	Fov      float32 // degrees, vertical
	Near     float32
	Far      float32
	Yaw      float32
	Pitch    float32
}

func DefaultCamera() CameraComponent {
	return CameraComponent{
		Position: mgl32.Vec3{0, 5, 10},
		LookAt:   mgl32.Vec3{0, 0, 0},
		Up:       mgl32.Vec3{0, 1, 0},
		Fov:      60,
		Near:     0.1,
		Far:      1000,
	}
}

func (cam *CameraComponent) Forward() mgl32.Vec3 {
	yawRad := mgl32.DegToRad(cam.Yaw)
	pitchRad := mgl32.DegToRad(cam.Pitch)
	return mgl32.Vec3{
		float32(math.Sin(float64(yawRad)) * math.Cos(float64(pitchRad))),
		float32(math.Sin(float64(pitchRad))),
		float32(-math.Cos(float64(yawRad)) * math.Cos(float64(pitchRad))),
	}.Normalize()
}

func (cam *CameraComponent) ViewMatrix() mgl32.Mat4 {
	return mgl32.LookAtV(cam.Position, cam.LookAt, cam.Up)
}

func (cam *CameraComponent) ProjectionMatrix(aspect float32) mgl32.Mat4 {
	return mgl32.Perspective(mgl32.DegToRad(cam.Fov), aspect, cam.Near, cam.Far)
}

func (cam *CameraComponent) ViewProj(aspect float32) mgl32.Mat4 {
	return cam.ProjectionMatrix(aspect).Mul4(cam.ViewMatrix())
}

// ScreenToWorldRay unprojects a pixel position into a world-space picking
// ray from the camera.
func (cam *CameraComponent) ScreenToWorldRay(mouseX, mouseY float64, winW, winH int) (mgl32.Vec3, mgl32.Vec3) {
	if winW <= 0 || winH <= 0 {
		return cam.Position, cam.Forward()
	}

	ndcX := 2*float32(mouseX)/float32(winW) - 1
	ndcY := 1 - 2*float32(mouseY)/float32(winH)

	inv := cam.ViewProj(float32(winW) / float32(winH)).Inv()

	near := inv.Mul4x1(mgl32.Vec4{ndcX, ndcY, -1, 1})
	far := inv.Mul4x1(mgl32.Vec4{ndcX, ndcY, 1, 1})
	if abs32f(near.W()) < 1e-9 || abs32f(far.W()) < 1e-9 {
		return cam.Position, cam.Forward()
	}

	nearP := near.Vec3().Mul(1 / near.W())
	farP := far.Vec3().Mul(1 / far.W())

	return nearP, farP.Sub(nearP).Normalize()
}

// OrbitCameraComponent orbits the camera around Target: right-drag orbits,
// middle-drag pans the target, scroll zooms.
type OrbitCameraComponent struct {
	Target      mgl32.Vec3
	Distance    float32
	Sensitivity float32
	PanSpeed    float32
	ZoomSpeed   float32
}

func DefaultOrbitCamera() OrbitCameraComponent {
	return OrbitCameraComponent{
		Distance:    10,
		Sensitivity: 0.3,
		PanSpeed:    0.0025,
		ZoomSpeed:   0.9,
	}
}

type OrbitCameraModule struct{}

func (m OrbitCameraModule) Install(app *App, cmd *Commands) {
	app.UseSystem(
		System(orbitCameraSystem).
			InStage(PreUpdate).
			RunAlways(),
	)
}

func orbitCameraSystem(cmd *Commands, input *Input, config *EditorConfig) {
	MakeQuery2[CameraComponent, OrbitCameraComponent](cmd).Map(func(eid EntityId, cam *CameraComponent, orbit *OrbitCameraComponent) bool {
		// Zero speed fields fall back to the configured values.
		if orbit.Sensitivity == 0 {
			orbit.Sensitivity = config.Camera.OrbitSensitivity
		}
		if orbit.PanSpeed == 0 {
			orbit.PanSpeed = config.Camera.PanSpeed
		}
		if orbit.ZoomSpeed == 0 {
			orbit.ZoomSpeed = config.Camera.ZoomSpeed
		}
		if orbit.Distance <= 0 {
			orbit.Distance = 10
		}

		if input.Pressed[MouseButtonRight] {
			cam.Yaw += float32(input.MouseDeltaX) * orbit.Sensitivity
			cam.Pitch -= float32(input.MouseDeltaY) * orbit.Sensitivity
			if cam.Pitch > 89 {
				cam.Pitch = 89
			}
			if cam.Pitch < -89 {
				cam.Pitch = -89
			}
		}

		forward := cam.Forward()

		if input.Pressed[MouseButtonMiddle] {
			right := forward.Cross(mgl32.Vec3{0, 1, 0}).Normalize()
			up := right.Cross(forward).Normalize()
			pan := right.Mul(-float32(input.MouseDeltaX)).
				Add(up.Mul(float32(input.MouseDeltaY))).
				Mul(orbit.PanSpeed * orbit.Distance)
			orbit.Target = orbit.Target.Add(pan)
		}

		if input.ScrollY != 0 {
			orbit.Distance *= float32(math.Pow(float64(orbit.ZoomSpeed), input.ScrollY))
			if orbit.Distance < 0.5 {
				orbit.Distance = 0.5
			}
		}

		cam.Position = orbit.Target.Sub(forward.Mul(orbit.Distance))
		cam.LookAt = orbit.Target
		cam.Up = mgl32.Vec3{0, 1, 0}
		return true
	})
}
