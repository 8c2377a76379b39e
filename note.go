package audition

import (
	"fmt"
	"math"
	"slices"
)

type (
	// Note is one drawn or loaded note on the timeline. Pitch and Velocity
	// are MIDI values 0..127, times are in seconds.
	Note struct {
		Pitch    int     `json:"pitch" yaml:"pitch"`
		Start    float64 `json:"start" yaml:"start"`
		End      float64 `json:"end" yaml:"end"`
		Velocity int     `json:"velocity" yaml:"velocity"`
	}

	// Timeline is the ordered collection of notes being annotated. The index
	// of a note in the timeline is its identity for audition scheduling.
	Timeline []Note
)

// DefaultVelocity is used for notes that do not carry a velocity.
const DefaultVelocity = 64

// SoundingAt reports whether the note should be sounding at time t.
func (n Note) SoundingAt(t float64) bool {
	return n.Start <= t && t < n.End
}

// Duration returns End - Start.
func (n Note) Duration() float64 {
	return n.End - n.Start
}

func (n Note) Validate() error {
	if n.Pitch < 0 || n.Pitch > 127 {
		return fmt.Errorf("pitch %d out of range 0..127", n.Pitch)
	}
	if n.Velocity < 0 || n.Velocity > 127 {
		return fmt.Errorf("velocity %d out of range 0..127", n.Velocity)
	}
	if math.IsNaN(n.Start) || math.IsNaN(n.End) || n.Start < 0 {
		return fmt.Errorf("invalid start time %v", n.Start)
	}
	if n.End < n.Start {
		return fmt.Errorf("end time %v before start time %v", n.End, n.Start)
	}
	return nil
}

func (t Timeline) Validate() error {
	for i, n := range t {
		if err := n.Validate(); err != nil {
			return fmt.Errorf("note %d: %w", i, err)
		}
	}
	return nil
}

// ActiveAt returns the indices of the notes sounding at time t, in
// ascending order.
func (t Timeline) ActiveAt(time float64) []int {
	var ret []int
	for i, n := range t {
		if n.SoundingAt(time) {
			ret = append(ret, i)
		}
	}
	return ret
}

// Length returns the latest end time in the timeline, or 0 if it is empty.
func (t Timeline) Length() float64 {
	var l float64
	for _, n := range t {
		l = max(l, n.End)
	}
	return l
}

// Sort orders the timeline by start, then end, then pitch.
func (t Timeline) Sort() {
	slices.SortStableFunc(t, func(a, b Note) int {
		switch {
		case a.Start != b.Start:
			return cmpFloat(a.Start, b.Start)
		case a.End != b.End:
			return cmpFloat(a.End, b.End)
		}
		return a.Pitch - b.Pitch
	})
}

func cmpFloat(a, b float64) int {
	if a < b {
		return -1
	}
	return 1
}
