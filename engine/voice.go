package engine

import (
	"math"

	"github.com/viterin/vek/vek32"
)

type (
	// VoiceID identifies a voice for the lifetime of the engine. IDs are
	// allocated in increasing order starting from 1 and never reused; the
	// zero value means "no voice".
	VoiceID uint64

	// EnvelopeState is the stage of the linear attack/release envelope.
	EnvelopeState int

	// Voice is one sine oscillator with its envelope. Voices live in the
	// Pool and are only touched by the render thread.
	Voice struct {
		id         VoiceID
		frequency  float64 // Hz
		phase      float64 // radians, [0, 2π)
		gain       float64 // from velocity, [0, 1]
		state      EnvelopeState
		level      float64 // [0, 1]
		attackInc  float64 // per sample
		releaseInc float64 // per sample
	}
)

const (
	Attack EnvelopeState = iota
	Sustain
	Release
	Done
)

const twoPi = 2 * math.Pi

// transitionSlack absorbs the rounding of distance/increment, so that a ramp
// of exactly k samples crosses its target at index k and not k-1.
const transitionSlack = 1e-9

func (s EnvelopeState) String() string {
	switch s {
	case Attack:
		return "attack"
	case Sustain:
		return "sustain"
	case Release:
		return "release"
	case Done:
		return "done"
	}
	return "unknown"
}

// VelocityGain maps a MIDI velocity to a voice gain with a mild curve:
// (clamp(velocity, 0, 127) / 127) ^ 0.8.
func VelocityGain(velocity int) float64 {
	v := float64(min(max(velocity, 0), 127)) / 127
	return math.Pow(v, 0.8)
}

// EnvelopeIncrement returns the per-sample envelope step for a linear ramp
// lasting the given time. The ramp need not be a whole number of samples;
// seconds must be positive.
func EnvelopeIncrement(seconds float64, sampleRate int) float64 {
	return 1 / (seconds * float64(sampleRate))
}

func newVoice(id VoiceID, frequency, gain, attackInc, releaseInc float64) Voice {
	return Voice{
		id:         id,
		frequency:  frequency,
		gain:       gain,
		state:      Attack,
		attackInc:  attackInc,
		releaseInc: releaseInc,
	}
}

func (v *Voice) ID() VoiceID          { return v.id }
func (v *Voice) Frequency() float64   { return v.frequency }
func (v *Voice) Phase() float64       { return v.phase }
func (v *Voice) Gain() float64        { return v.gain }
func (v *Voice) State() EnvelopeState { return v.state }
func (v *Voice) Level() float64       { return v.level }

// Release moves an attacking or sustaining voice to the release stage.
// Voices already releasing or done are left alone.
func (v *Voice) Release() {
	if v.state == Attack || v.state == Sustain {
		v.state = Release
	}
}

// render adds the contribution of the voice for one block to mix, and
// advances its phase and envelope. sine and env are scratch buffers at
// least as long as mix.
func (v *Voice) render(mix, sine, env []float32, sampleRate float64, masterGain float64) {
	n := len(mix)
	if v.state == Done || n == 0 {
		return
	}
	sine, env = sine[:n], env[:n]
	w := twoPi * v.frequency / sampleRate
	for i := range sine {
		sine[i] = float32(math.Sin(v.phase + w*float64(i)))
	}
	v.envelope(env)
	vek32.Mul_Inplace(sine, env)
	vek32.MulNumber_Inplace(sine, float32(masterGain*v.gain))
	vek32.Add_Inplace(mix, sine)
	v.phase = math.Mod(v.phase+w*float64(n), twoPi)
	if v.phase < 0 || math.IsNaN(v.phase) {
		v.phase = 0
	}
}

// envelope writes the per-sample envelope trajectory for the block into env
// and leaves level and state as they are after the last sample. A ramp that
// crosses its target mid-block switches to the new state exactly at the
// crossing index.
func (v *Voice) envelope(env []float32) {
	n := len(env)
	switch v.state {
	case Attack:
		end := v.level + v.attackInc*float64(n)
		if end < 1 {
			v.ramp(env, v.attackInc)
			v.level = end
			return
		}
		t := transitionIndex(1-v.level, v.attackInc, n)
		v.ramp(env[:t], v.attackInc)
		fill(env[t:], 1)
		v.level, v.state = 1, Sustain
	case Release:
		end := v.level - v.releaseInc*float64(n)
		if end > 0 {
			v.ramp(env, -v.releaseInc)
			v.level = end
			return
		}
		t := transitionIndex(v.level, v.releaseInc, n)
		v.ramp(env[:t], -v.releaseInc)
		fill(env[t:], 0)
		v.level, v.state = 0, Done
	case Sustain:
		fill(env, float32(v.level))
	default:
		fill(env, 0)
	}
}

func (v *Voice) ramp(env []float32, inc float64) {
	for i := range env {
		env[i] = float32(min(max(v.level+inc*float64(i), 0), 1))
	}
}

// transitionIndex returns floor(distance / increment) clamped to [0, n].
func transitionIndex(distance, increment float64, n int) int {
	t := math.Floor(distance/increment + transitionSlack)
	if !(t > 0) {
		return 0
	}
	if t > float64(n) {
		return n
	}
	return int(t)
}

func fill(s []float32, v float32) {
	for i := range s {
		s[i] = v
	}
}
