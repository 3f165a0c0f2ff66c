package forge

import (
	"github.com/go-gl/mathgl/mgl32"
)

// FlyCameraComponent turns a camera entity into a free-flight camera.
// It is an alternative to the orbit controller; attach one or the other.
type FlyCameraComponent struct {
	Speed       float32
	Sensitivity float32
}

func DefaultFlyCamera() FlyCameraComponent {
	return FlyCameraComponent{Speed: 5.0, Sensitivity: 0.1}
}

type FlyCameraModule struct{}

func (m FlyCameraModule) Install(app *App, cmd *Commands) {
	app.UseSystem(
		System(flyCameraSystem).
			InStage(PreUpdate).
			RunAlways(),
	)
}

// flyCameraSystem moves the camera with WASD plus Space/Shift for vertical,
// looking around with the mouse while Tab-captured.
func flyCameraSystem(cmd *Commands, input *Input, time *Time) {
	dt := float32(time.Dt)
	if dt <= 0 {
		return
	}

	if input.JustPressed[KeyTab] {
		input.MouseCaptured = !input.MouseCaptured
	}

	MakeQuery2[CameraComponent, FlyCameraComponent](cmd).Map(func(eid EntityId, cam *CameraComponent, fly *FlyCameraComponent) bool {
		if input.MouseCaptured {
			cam.Yaw += float32(input.MouseDeltaX) * fly.Sensitivity
			cam.Pitch -= float32(input.MouseDeltaY) * fly.Sensitivity
			if cam.Pitch > 89.0 {
				cam.Pitch = 89.0
			}
			if cam.Pitch < -89.0 {
				cam.Pitch = -89.0
			}
		}

		forward := cam.Forward()
		up := mgl32.Vec3{0, 1, 0}
		right := forward.Cross(up).Normalize()

		var move mgl32.Vec3
		if input.Pressed[KeyW] {
			move = move.Add(forward)
		}
		if input.Pressed[KeyS] {
			move = move.Sub(forward)
		}
		if input.Pressed[KeyD] {
			move = move.Add(right)
		}
		if input.Pressed[KeyA] {
			move = move.Sub(right)
		}
		if input.Pressed[KeySpace] {
			move = move.Add(up)
		}
		if input.Pressed[KeyShift] {
			move = move.Sub(up)
		}

		if move.Len() > 0 {
			cam.Position = cam.Position.Add(move.Normalize().Mul(fly.Speed * dt))
		}

		cam.LookAt = cam.Position.Add(forward)
		cam.Up = up
		return true
	})
}
