// Package scheduler decides which voices should be sounding. It turns a
// timeline and a playback position, drag gestures, freshly drawn notes and
// MIDI keys into control calls on the engine.
package scheduler

import (
	"errors"
	"fmt"
	"slices"

	"github.com/specannotate/audition"
	"github.com/specannotate/audition/engine"
)

type (
	// Controller is the part of the engine the scheduler drives.
	Controller interface {
		NoteOn(freq float64, velocity int) (engine.VoiceID, error)
		NoteOff(id engine.VoiceID) error
		SetVoiceFreq(id engine.VoiceID, freq float64) error
	}

	// FrequencyFunc converts a MIDI pitch to Hz.
	FrequencyFunc func(pitch int) float64

	// Scheduler keeps the voices sounding for the notes of a timeline that
	// contain the current playback position. It is not safe for concurrent
	// use; call it from the control thread only.
	Scheduler struct {
		ctrl     Controller
		freq     FrequencyFunc
		notes    audition.Timeline
		active   map[int][]engine.VoiceID
		want     []bool
		disabled bool
	}

	Option func(*Scheduler)
)

// WithFrequency replaces the pitch to Hz conversion, which defaults to
// audition.PitchToHz.
func WithFrequency(f FrequencyFunc) Option {
	return func(s *Scheduler) { s.freq = f }
}

// WithTimeline sets the initial timeline.
func WithTimeline(notes audition.Timeline) Option {
	return func(s *Scheduler) { s.notes = notes }
}

func New(ctrl Controller, opts ...Option) *Scheduler {
	s := &Scheduler{
		ctrl:   ctrl,
		freq:   audition.PitchToHz,
		active: map[int][]engine.VoiceID{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetTimeline replaces the notes. Tracked indices are reinterpreted against
// the new list at the next Update.
func (s *Scheduler) SetTimeline(notes audition.Timeline) {
	s.notes = notes
}

func (s *Scheduler) Timeline() audition.Timeline { return s.notes }

func (s *Scheduler) Enabled() bool { return !s.disabled }

// SetEnabled turns auditioning on or off. Turning it off releases every
// tracked voice; turning it on resyncs to the position t.
func (s *Scheduler) SetEnabled(enabled bool, t float64) error {
	s.disabled = !enabled
	if !enabled {
		return s.StopAll()
	}
	return s.Update(t)
}

// Update reconciles the sounding voices with the notes that contain t:
// notes that stopped containing t are released, notes that started
// containing t get a new voice, and notes already sounding are left alone.
// Running out of voices is not an error; such a note is retried at the next
// Update.
func (s *Scheduler) Update(t float64) error {
	if s.disabled {
		return nil
	}
	if cap(s.want) < len(s.notes) {
		s.want = make([]bool, len(s.notes))
	}
	s.want = s.want[:len(s.notes)]
	for i, n := range s.notes {
		s.want[i] = n.SoundingAt(t)
	}
	var errs []error
	for idx, ids := range s.active {
		if idx < len(s.want) && s.want[idx] {
			continue
		}
		errs = append(errs, s.release(ids)...)
		delete(s.active, idx)
	}
	for i, wanted := range s.want {
		if !wanted {
			continue
		}
		if _, ok := s.active[i]; ok {
			continue
		}
		n := s.notes[i]
		id, err := s.ctrl.NoteOn(s.freq(n.Pitch), n.Velocity)
		if err != nil {
			if !errors.Is(err, engine.ErrNoVoice) {
				errs = append(errs, fmt.Errorf("note %d: %w", i, err))
			}
			continue
		}
		s.active[i] = []engine.VoiceID{id}
	}
	return errors.Join(errs...)
}

// Active returns the tracked note indices in ascending order.
func (s *Scheduler) Active() []int {
	ret := make([]int, 0, len(s.active))
	for i := range s.active {
		ret = append(ret, i)
	}
	slices.Sort(ret)
	return ret
}

// Voices returns the voice ids tracked for the note index.
func (s *Scheduler) Voices(index int) []engine.VoiceID {
	return slices.Clone(s.active[index])
}

// StopAll releases every tracked voice and forgets them, letting their
// envelopes finish naturally.
func (s *Scheduler) StopAll() error {
	var errs []error
	for idx, ids := range s.active {
		errs = append(errs, s.release(ids)...)
		delete(s.active, idx)
	}
	return errors.Join(errs...)
}

func (s *Scheduler) release(ids []engine.VoiceID) (errs []error) {
	for _, id := range ids {
		if err := s.ctrl.NoteOff(id); err != nil {
			errs = append(errs, fmt.Errorf("voice %d: %w", id, err))
		}
	}
	return errs
}
