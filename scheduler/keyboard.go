package scheduler

import (
	"errors"

	"github.com/specannotate/audition"
	"github.com/specannotate/audition/engine"
)

// Keyboard maps held keys, e.g. from a MIDI input, to voices. Pressing a
// key that is already held stacks another voice on it; releasing the key
// releases the most recent one.
type Keyboard struct {
	ctrl Controller
	freq FrequencyFunc
	held map[int][]engine.VoiceID
}

func NewKeyboard(ctrl Controller, freq FrequencyFunc) *Keyboard {
	if freq == nil {
		freq = audition.PitchToHz
	}
	return &Keyboard{ctrl: ctrl, freq: freq, held: map[int][]engine.VoiceID{}}
}

// Press starts a voice for the key. A zero velocity is a release, as in
// MIDI running status.
func (k *Keyboard) Press(pitch, velocity int) error {
	if velocity == 0 {
		return k.ReleaseKey(pitch)
	}
	id, err := k.ctrl.NoteOn(k.freq(pitch), velocity)
	if err != nil {
		return err
	}
	k.held[pitch] = append(k.held[pitch], id)
	return nil
}

// ReleaseKey releases the most recent voice of the key. Releasing a key
// that is not held does nothing.
func (k *Keyboard) ReleaseKey(pitch int) error {
	ids := k.held[pitch]
	if len(ids) == 0 {
		return nil
	}
	id := ids[len(ids)-1]
	if len(ids) == 1 {
		delete(k.held, pitch)
	} else {
		k.held[pitch] = ids[:len(ids)-1]
	}
	return k.ctrl.NoteOff(id)
}

func (k *Keyboard) ReleaseAll() error {
	var errs []error
	for pitch, ids := range k.held {
		for _, id := range ids {
			if err := k.ctrl.NoteOff(id); err != nil {
				errs = append(errs, err)
			}
		}
		delete(k.held, pitch)
	}
	return errors.Join(errs...)
}

// Held returns how many voices the key holds.
func (k *Keyboard) Held(pitch int) int { return len(k.held[pitch]) }
