//go:build cgo

package midiin

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// RTMIDIInput listens to one input port of the system MIDI driver.
type RTMIDIInput struct {
	driver    *rtmididrv.Driver
	in        drivers.In
	stop      func()
	events    chan Event
	closeOnce sync.Once
}

var ErrNoDevice = errors.New("no MIDI input found")

// Devices lists the names of the available input ports.
func Devices() ([]string, error) {
	driver, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("could not open MIDI driver: %w", err)
	}
	defer driver.Close()
	ins, err := driver.Ins()
	if err != nil {
		return nil, fmt.Errorf("could not list MIDI inputs: %w", err)
	}
	ret := make([]string, len(ins))
	for i, in := range ins {
		ret[i] = in.String()
	}
	return ret, nil
}

// Open listens to the first input whose name starts with namePrefix. An
// empty prefix takes the first input.
func Open(namePrefix string) (*RTMIDIInput, error) {
	driver, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("could not open MIDI driver: %w", err)
	}
	ins, err := driver.Ins()
	if err != nil {
		driver.Close()
		return nil, fmt.Errorf("could not list MIDI inputs: %w", err)
	}
	for _, in := range ins {
		if !strings.HasPrefix(in.String(), namePrefix) {
			continue
		}
		if err := in.Open(); err != nil {
			driver.Close()
			return nil, fmt.Errorf("opening MIDI input %q failed: %w", in.String(), err)
		}
		r := &RTMIDIInput{driver: driver, in: in, events: make(chan Event, eventQueueSize)}
		r.stop, err = midi.ListenTo(in, r.handleMessage)
		if err != nil {
			in.Close()
			driver.Close()
			return nil, fmt.Errorf("listening to MIDI input %q failed: %w", in.String(), err)
		}
		return r, nil
	}
	driver.Close()
	if namePrefix == "" {
		return nil, ErrNoDevice
	}
	return nil, fmt.Errorf("%w starting with %q", ErrNoDevice, namePrefix)
}

func (r *RTMIDIInput) handleMessage(msg midi.Message, timestampms int32) {
	ev, ok := Parse(msg)
	if !ok {
		return
	}
	select {
	case r.events <- ev: // if the channel is full, just drop the message
	default:
	}
}

func (r *RTMIDIInput) Events() <-chan Event { return r.events }

func (r *RTMIDIInput) String() string { return r.in.String() }

func (r *RTMIDIInput) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.stop()
		err = errors.Join(r.in.Close(), r.driver.Close())
	})
	return err
}
