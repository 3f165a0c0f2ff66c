package forge

import (
	"time"
)

// Time is the per-frame clock resource. Dt is in seconds.
type Time struct {
	Now     time.Time
	Dt      float32
	Elapsed float64
}

type TimeModule struct{}

func (mod TimeModule) Install(app *App, cmd *Commands) {
	cmd.AddResources(&Time{
		Now: time.Now(),
	})
	app.UseSystem(
		System(timeSystem).
			InStage(Prelude).
			RunAlways(),
	)
}

func timeSystem(timeResource *Time) {
	now := time.Now()

	dt := now.Sub(timeResource.Now).Seconds()
	// Cap huge gaps (debugger pauses, window drags) so integration stays sane.
	if dt > 0.25 {
		dt = 0.25
	}
	timeResource.Dt = float32(dt)
	timeResource.Elapsed += dt
	timeResource.Now = now
}
