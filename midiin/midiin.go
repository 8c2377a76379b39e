// Package midiin turns live MIDI note messages into voices.
package midiin

import (
	"context"

	"github.com/specannotate/audition/scheduler"
	"gitlab.com/gomidi/midi/v2"
)

type (
	// Event is a key going down or, with Velocity 0, up.
	Event struct {
		Channel  uint8
		Pitch    uint8
		Velocity uint8
	}

	Input interface {
		Events() <-chan Event
		String() string
		Close() error
	}

	// NullInput never produces events. It is used when no MIDI driver is
	// available.
	NullInput struct{}
)

// eventQueueSize bounds the events waiting for Forward; further events are
// dropped.
const eventQueueSize = 256

// Parse extracts a key event from a channel message.
func Parse(msg midi.Message) (Event, bool) {
	var ch, key, vel uint8
	switch {
	case msg.GetNoteOn(&ch, &key, &vel):
		return Event{Channel: ch, Pitch: key, Velocity: vel}, true
	case msg.GetNoteOff(&ch, &key, &vel):
		return Event{Channel: ch, Pitch: key}, true
	}
	return Event{}, false
}

// Forward plays events on the keyboard until ctx is done, then releases
// every held key. Errors, e.g. engine.ErrNoVoice when all voices are busy,
// are passed to onErr, which may be nil.
func Forward(ctx context.Context, events <-chan Event, kb *scheduler.Keyboard, onErr func(error)) {
	report := func(err error) {
		if err != nil && onErr != nil {
			onErr(err)
		}
	}
	defer func() { report(kb.ReleaseAll()) }()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			report(kb.Press(int(ev.Pitch), int(ev.Velocity)))
		}
	}
}

func (NullInput) Events() <-chan Event { return nil }
func (NullInput) String() string       { return "none" }
func (NullInput) Close() error         { return nil }
