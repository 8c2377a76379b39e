// Package midifile loads and saves timelines as Standard MIDI Files.
package midifile

import (
	"cmp"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/specannotate/audition"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

type (
	// Options control how a file is turned into a timeline.
	Options struct {
		// TargetDuration, when positive, scales all note times so that the
		// file's length matches it, e.g. to line the notes up with an
		// analysed recording.
		TargetDuration float64
	}

	// WriteOptions control the encoding of a timeline. Zero fields take the
	// defaults 120 BPM, 480 PPQ and channel 0.
	WriteOptions struct {
		TempoBPM float64
		PPQ      uint16
		Channel  uint8
		// Duration, when larger than the last note off, places the end of
		// track there.
		Duration float64
	}

	key struct{ channel, pitch uint8 }

	press struct {
		start    float64
		velocity int
	}

	event struct {
		time float64
		off  bool
		note audition.Note
	}
)

const (
	DefaultTempoBPM = 120
	DefaultPPQ      = 480
)

// Read loads the notes of every track and channel of a MIDI file.
func Read(path string, opts Options) (audition.Timeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open midi file: %w", err)
	}
	defer f.Close()
	t, err := Decode(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Decode reads a MIDI file from r. Tempo changes are honoured. A note on
// with velocity 0 ends a note. Overlapping presses of the same key on the
// same channel are matched last in, first out; presses still held at the
// end of the file end there. The result is sorted by start, end and pitch.
func Decode(r io.Reader, opts Options) (audition.Timeline, error) {
	var events []smf.TrackEvent
	reader := smf.ReadTracksFrom(r).Do(func(ev smf.TrackEvent) {
		events = append(events, ev)
	})
	if err := reader.Error(); err != nil {
		return nil, fmt.Errorf("could not parse midi file: %w", err)
	}
	slices.SortStableFunc(events, func(a, b smf.TrackEvent) int {
		return cmp.Compare(a.AbsMicroSeconds, b.AbsMicroSeconds)
	})
	held := map[key][]press{}
	var ret audition.Timeline
	var end float64
	for _, ev := range events {
		t := float64(ev.AbsMicroSeconds) / 1e6
		end = max(end, t)
		msg := midi.Message(ev.Message)
		var ch, pitch, vel uint8
		switch {
		case msg.GetNoteOn(&ch, &pitch, &vel) && vel > 0:
			k := key{ch, pitch}
			held[k] = append(held[k], press{start: t, velocity: int(vel)})
		case msg.GetNoteOn(&ch, &pitch, &vel), msg.GetNoteOff(&ch, &pitch, &vel):
			k := key{ch, pitch}
			stack := held[k]
			if len(stack) == 0 {
				continue // unmatched note off
			}
			p := stack[len(stack)-1]
			held[k] = stack[:len(stack)-1]
			ret = append(ret, audition.Note{Pitch: int(pitch), Start: p.start, End: max(t, p.start), Velocity: p.velocity})
		}
	}
	for k, stack := range held {
		for _, p := range stack {
			ret = append(ret, audition.Note{Pitch: int(k.pitch), Start: p.start, End: max(end, p.start), Velocity: p.velocity})
		}
	}
	if opts.TargetDuration > 0 && end > 0 {
		if scale := opts.TargetDuration / end; scale > 0 && !math.IsInf(scale, 0) {
			for i := range ret {
				ret[i].Start *= scale
				ret[i].End *= scale
			}
		}
	}
	ret.Sort()
	return ret, nil
}

// Write saves the notes as a single track MIDI file at path.
func Write(path string, notes audition.Timeline, opts WriteOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create midi file: %w", err)
	}
	if err := Encode(f, notes, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Encode writes the notes as a single track MIDI file with a constant tempo.
// At equal times note offs precede note ons, so back to back notes of the
// same pitch do not overlap.
func Encode(w io.Writer, notes audition.Timeline, opts WriteOptions) error {
	if opts.TempoBPM <= 0 {
		opts.TempoBPM = DefaultTempoBPM
	}
	if opts.PPQ == 0 {
		opts.PPQ = DefaultPPQ
	}
	if opts.Channel > 15 {
		return fmt.Errorf("midi channel %d out of range 0..15", opts.Channel)
	}
	if err := notes.Validate(); err != nil {
		return err
	}
	sorted := slices.Clone(notes)
	slices.SortStableFunc(sorted, func(a, b audition.Note) int {
		return cmp.Or(cmp.Compare(a.Start, b.Start), cmp.Compare(a.End, b.End))
	})
	events := make([]event, 0, 2*len(sorted))
	for _, n := range sorted {
		events = append(events, event{time: n.Start, note: n}, event{time: n.End, off: true, note: n})
	}
	slices.SortStableFunc(events, func(a, b event) int {
		if c := cmp.Compare(a.time, b.time); c != 0 {
			return c
		}
		switch {
		case a.off && !b.off:
			return -1
		case !a.off && b.off:
			return 1
		}
		return 0
	})
	ticks := func(seconds float64) uint32 {
		return uint32(max(0, math.Round(seconds*float64(opts.PPQ)*opts.TempoBPM/60)))
	}
	var track smf.Track
	track.Add(0, smf.MetaTempo(opts.TempoBPM))
	// deltas are taken between rounded absolute positions so rounding does
	// not accumulate along the track
	var last float64
	var pos uint32
	for _, ev := range events {
		abs := ticks(ev.time)
		delta := abs - pos
		pos, last = abs, ev.time
		pitch := uint8(ev.note.Pitch)
		if ev.off {
			track.Add(delta, midi.NoteOff(opts.Channel, pitch))
			continue
		}
		velocity := uint8(max(1, ev.note.Velocity))
		track.Add(delta, midi.NoteOn(opts.Channel, pitch, velocity))
	}
	track.Close(ticks(max(opts.Duration, last)) - pos)
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(opts.PPQ)
	if err := s.Add(track); err != nil {
		return fmt.Errorf("could not add midi track: %w", err)
	}
	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("could not write midi file: %w", err)
	}
	return nil
}
