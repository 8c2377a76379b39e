package audition

import "math"

// A4 is the reference tuning, MIDI note 69.
const (
	A4Pitch     = 69
	A4Frequency = 440.0
)

// PitchToHz converts a MIDI note number to its equal-tempered frequency.
func PitchToHz(pitch int) float64 {
	return A4Frequency * math.Exp2(float64(pitch-A4Pitch)/12)
}

// VolumeToVelocity maps a 0..1 volume to a MIDI velocity 1..127. ok is false
// when the volume is effectively muted.
func VolumeToVelocity(volume float64) (velocity int, ok bool) {
	if !(volume > 0) {
		return 0, false
	}
	return clamp(int(math.Round(volume*127)), 1, 127), true
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
