package forge

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type Vec3Key struct {
	Time  float32
	Value mgl32.Vec3
}

type QuatKey struct {
	Time  float32
	Value mgl32.Quat
}

type Vec3Track struct {
	Keys []Vec3Key
}

// Sample linearly interpolates between the surrounding keyframes, clamping
// outside the key range. No keys means no value for this degree of freedom.
func (t *Vec3Track) Sample(time float32) (mgl32.Vec3, bool) {
	if t == nil || len(t.Keys) == 0 {
		return mgl32.Vec3{}, false
	}
	if time <= t.Keys[0].Time {
		return t.Keys[0].Value, true
	}
	last := t.Keys[len(t.Keys)-1]
	if time >= last.Time {
		return last.Value, true
	}

	for i := 1; i < len(t.Keys); i++ {
		if time < t.Keys[i].Time {
			k0, k1 := t.Keys[i-1], t.Keys[i]
			f := (time - k0.Time) / (k1.Time - k0.Time)
			return k0.Value.Add(k1.Value.Sub(k0.Value).Mul(f)), true
		}
	}
	return last.Value, true
}

type QuatTrack struct {
	Keys []QuatKey
}

func (t *QuatTrack) Sample(time float32) (mgl32.Quat, bool) {
	if t == nil || len(t.Keys) == 0 {
		return mgl32.QuatIdent(), false
	}
	if time <= t.Keys[0].Time {
		return t.Keys[0].Value, true
	}
	last := t.Keys[len(t.Keys)-1]
	if time >= last.Time {
		return last.Value, true
	}

	for i := 1; i < len(t.Keys); i++ {
		if time < t.Keys[i].Time {
			k0, k1 := t.Keys[i-1], t.Keys[i]
			f := (time - k0.Time) / (k1.Time - k0.Time)
			return mgl32.QuatSlerp(k0.Value, k1.Value, f), true
		}
	}
	return last.Value, true
}

// AnimationChannel animates one named entity. Nil tracks leave that degree
// of freedom untouched.
type AnimationChannel struct {
	Target   string
	Position *Vec3Track
	Rotation *QuatTrack
	Scale    *Vec3Track
}

type AnimationClip struct {
	Name     string
	Duration float32
	Channels []AnimationChannel
}

// NoTransition means no crossfade is in flight.
const NoTransition = -1

// AnimationPlayerComponent drives clips on the subtree rooted at its entity.
// Channel targets resolve by depth-first name search from the root.
type AnimationPlayerComponent struct {
	Clips       []AnimationClip
	ActiveClip  int
	CurrentTime float32
	Speed       float32
	Loop        bool
	Playing     bool

	TransitionTarget   int
	TransitionTime     float32
	TransitionDuration float32
}

func NewAnimationPlayer(clips ...AnimationClip) AnimationPlayerComponent {
	return AnimationPlayerComponent{
		Clips:            clips,
		Speed:            1,
		Loop:             true,
		TransitionTarget: NoTransition,
	}
}

func (p *AnimationPlayerComponent) clipIndex(name string) int {
	for i := range p.Clips {
		if p.Clips[i].Name == name {
			return i
		}
	}
	return -1
}

// Play switches to the named clip immediately, from its start.
func (p *AnimationPlayerComponent) Play(name string) bool {
	idx := p.clipIndex(name)
	if idx < 0 {
		return false
	}
	p.ActiveClip = idx
	p.CurrentTime = 0
	p.Playing = true
	p.TransitionTarget = NoTransition
	return true
}

// CrossFade blends from the active clip into the named clip over duration
// seconds. A non-positive duration degenerates to Play.
func (p *AnimationPlayerComponent) CrossFade(name string, duration float32) bool {
	idx := p.clipIndex(name)
	if idx < 0 {
		return false
	}
	if duration <= 0 || idx == p.ActiveClip {
		return p.Play(name)
	}
	p.TransitionTarget = idx
	p.TransitionTime = 0
	p.TransitionDuration = duration
	p.Playing = true
	return true
}

// clipSample is one (clip, time, weight) tuple queued for blending.
type clipSample struct {
	clip   *AnimationClip
	time   float32
	weight float32
}

// blendedPose carries only the degrees of freedom some track actually
// produced; the rest stay untouched on apply.
type blendedPose struct {
	position    mgl32.Vec3
	hasPosition bool
	rotation    mgl32.Quat
	hasRotation bool
	scale       mgl32.Vec3
	hasScale    bool
}

type AnimationModule struct{}

func (m AnimationModule) Install(app *App, cmd *Commands) {
	app.UseSystem(
		System(animationSystem).
			InStage(Update).
			RunAlways(),
	)
}

// animationSystem runs the two passes back to back: sample every playing
// player into (root, target name, pose) tuples, then resolve targets and
// write transforms. Separating the passes keeps target writes from aliasing
// player reads within one query walk.
func animationSystem(cmd *Commands, timeResource *Time, scene *Scene) {
	type pendingApply struct {
		root EntityId
		name string
		pose blendedPose
	}
	var pending []pendingApply

	MakeQuery1[AnimationPlayerComponent](cmd).Map(func(eid EntityId, player *AnimationPlayerComponent) bool {
		samples := advancePlayer(player, timeResource.Dt)
		if len(samples) == 0 {
			return true
		}

		for name, pose := range blendSamples(samples) {
			pending = append(pending, pendingApply{root: eid, name: name, pose: pose})
		}
		return true
	})

	for _, p := range pending {
		target := scene.FindByName(p.root, p.name)
		if target == NoEntity {
			continue
		}
		tr, ok := GetComponent[TransformComponent](scene, target)
		if !ok {
			continue
		}
		if p.pose.hasPosition {
			tr.Position = p.pose.position
		}
		if p.pose.hasRotation {
			tr.Rotation = p.pose.rotation
		}
		if p.pose.hasScale {
			tr.Scale = p.pose.scale
		}
	}
}

// advancePlayer moves the player's clock and returns the weighted clip
// samples to blend this frame. Transition completion swaps the incoming clip
// in as active.
func advancePlayer(player *AnimationPlayerComponent, dt float32) []clipSample {
	if !player.Playing || player.ActiveClip < 0 || player.ActiveClip >= len(player.Clips) {
		return nil
	}

	active := &player.Clips[player.ActiveClip]
	player.CurrentTime += dt * player.Speed

	if active.Duration > 0 {
		if player.Loop {
			player.CurrentTime = float32(math.Mod(float64(player.CurrentTime), float64(active.Duration)))
			if player.CurrentTime < 0 {
				player.CurrentTime += active.Duration
			}
		} else if player.CurrentTime >= active.Duration {
			player.CurrentTime = active.Duration
			player.Playing = false
		}
	}

	if player.TransitionTarget == NoTransition || player.TransitionTarget >= len(player.Clips) {
		return []clipSample{{clip: active, time: player.CurrentTime, weight: 1}}
	}

	incoming := &player.Clips[player.TransitionTarget]
	player.TransitionTime += dt

	alpha := float32(1)
	if player.TransitionDuration > 0 {
		alpha = mgl32.Clamp(player.TransitionTime/player.TransitionDuration, 0, 1)
	}

	incomingTime := player.TransitionTime
	if incoming.Duration > 0 {
		incomingTime = float32(math.Mod(float64(incomingTime), float64(incoming.Duration)))
	}

	samples := []clipSample{
		{clip: active, time: player.CurrentTime, weight: 1 - alpha},
		{clip: incoming, time: incomingTime, weight: alpha},
	}

	if player.TransitionTime >= player.TransitionDuration {
		player.ActiveClip = player.TransitionTarget
		player.CurrentTime = incomingTime
		player.TransitionTarget = NoTransition
		player.TransitionTime = 0
		player.TransitionDuration = 0
	}

	return samples
}

// blendSamples merges the queued clip samples per channel target: weighted
// sums for position/scale, iterative spherical interpolation for rotation
// (each sample folded in at weight/total-so-far).
func blendSamples(samples []clipSample) map[string]blendedPose {
	poses := make(map[string]blendedPose)

	type rotAccum struct {
		rotation mgl32.Quat
		total    float32
	}
	rotations := make(map[string]rotAccum)

	for _, s := range samples {
		if s.weight <= 0 {
			continue
		}
		for i := range s.clip.Channels {
			ch := &s.clip.Channels[i]
			pose := poses[ch.Target]

			if v, ok := ch.Position.Sample(s.time); ok {
				pose.position = pose.position.Add(v.Mul(s.weight))
				pose.hasPosition = true
			}
			if v, ok := ch.Scale.Sample(s.time); ok {
				pose.scale = pose.scale.Add(v.Mul(s.weight))
				pose.hasScale = true
			}
			if q, ok := ch.Rotation.Sample(s.time); ok {
				acc, started := rotations[ch.Target]
				if !started {
					acc = rotAccum{rotation: q, total: s.weight}
				} else {
					acc.total += s.weight
					acc.rotation = mgl32.QuatSlerp(acc.rotation, q, s.weight/acc.total)
				}
				rotations[ch.Target] = acc
				pose.hasRotation = true
			}

			poses[ch.Target] = pose
		}
	}

	for name, acc := range rotations {
		pose := poses[name]
		pose.rotation = acc.rotation.Normalize()
		poses[name] = pose
	}
	return poses
}
