package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/specannotate/audition"
	"github.com/specannotate/audition/engine"
)

type (
	// DragPreview is the single transient voice that follows the pitch
	// while a note is dragged. At most one preview voice exists at a time.
	DragPreview struct {
		ctrl   Controller
		freq   FrequencyFunc
		volume float64
		voice  engine.VoiceID
	}

	// NotePreview plays short one-shot tones, e.g. when a note has just been
	// drawn. It owns every voice it starts: each one is released when its
	// duration expires, on Cancel, or on Close, whichever comes first.
	NotePreview struct {
		ctrl Controller
		freq FrequencyFunc

		mu      sync.Mutex
		volume  float64
		pending map[engine.VoiceID]*time.Timer
		closed  bool
		onErr   func(error)
	}
)

const (
	MinPreviewDuration = 50 * time.Millisecond
	MaxPreviewDuration = 600 * time.Millisecond

	// releaseRetryInterval is the wait before a failed release of a preview
	// voice is tried again.
	releaseRetryInterval = 10 * time.Millisecond
)

var ErrPreviewClosed = errors.New("note preview closed")

// NewDragPreview returns a drag preview playing at the given 0..1 volume. A
// nil freq uses audition.PitchToHz.
func NewDragPreview(ctrl Controller, volume float64, freq FrequencyFunc) *DragPreview {
	if freq == nil {
		freq = audition.PitchToHz
	}
	return &DragPreview{ctrl: ctrl, freq: freq, volume: volume}
}

func (d *DragPreview) SetVolume(volume float64) { d.volume = volume }

// Voice returns the current preview voice, 0 if there is none.
func (d *DragPreview) Voice() engine.VoiceID { return d.voice }

// Start releases any existing preview voice and starts a new one at pitch.
// Nothing is started when the preview volume is muted.
func (d *DragPreview) Start(pitch int) error {
	endErr := d.End()
	velocity, ok := audition.VolumeToVelocity(d.volume)
	if !ok {
		return endErr
	}
	id, err := d.ctrl.NoteOn(d.freq(pitch), velocity)
	if err != nil {
		return errors.Join(endErr, err)
	}
	d.voice = id
	return endErr
}

// Update retunes the preview voice in place, or starts one if there is
// none.
func (d *DragPreview) Update(pitch int) error {
	if d.voice == 0 {
		return d.Start(pitch)
	}
	return d.ctrl.SetVoiceFreq(d.voice, d.freq(pitch))
}

// End releases the preview voice and forgets it.
func (d *DragPreview) End() error {
	if d.voice == 0 {
		return nil
	}
	id := d.voice
	d.voice = 0
	return d.ctrl.NoteOff(id)
}

// NewNotePreview returns a one-shot previewer playing at the given 0..1
// volume. A nil freq uses audition.PitchToHz.
func NewNotePreview(ctrl Controller, volume float64, freq FrequencyFunc) *NotePreview {
	if freq == nil {
		freq = audition.PitchToHz
	}
	return &NotePreview{
		ctrl:    ctrl,
		freq:    freq,
		volume:  volume,
		pending: map[engine.VoiceID]*time.Timer{},
	}
}

// SetErrorHandler sets a function called, from a timer goroutine, when an
// expired preview voice could not be released. The release is retried until
// it succeeds or the engine is stopped.
func (p *NotePreview) SetErrorHandler(f func(error)) {
	p.mu.Lock()
	p.onErr = f
	p.mu.Unlock()
}

func (p *NotePreview) SetVolume(volume float64) {
	p.mu.Lock()
	p.volume = volume
	p.mu.Unlock()
}

// Play sounds pitch for d, clamped to [MinPreviewDuration,
// MaxPreviewDuration]. Nothing is played when the volume is muted.
func (p *NotePreview) Play(pitch int, d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPreviewClosed
	}
	velocity, ok := audition.VolumeToVelocity(p.volume)
	if !ok {
		return nil
	}
	id, err := p.ctrl.NoteOn(p.freq(pitch), velocity)
	if err != nil {
		return err
	}
	d = min(max(d, MinPreviewDuration), MaxPreviewDuration)
	p.pending[id] = time.AfterFunc(d, func() { p.expire(id) })
	return nil
}

// Pending returns the number of preview voices not yet released.
func (p *NotePreview) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *NotePreview) expire(id engine.VoiceID) {
	p.mu.Lock()
	if _, ok := p.pending[id]; !ok {
		p.mu.Unlock()
		return // cancelled meanwhile
	}
	err, onErr := p.releaseLocked(id), p.onErr
	p.mu.Unlock()
	if err != nil && onErr != nil {
		onErr(err)
	}
}

// releaseLocked releases the voice and forgets it. If the release fails,
// the voice stays pending and is retried after releaseRetryInterval. A
// stopped engine has no voices left, so ErrStopped forgets the voice too.
func (p *NotePreview) releaseLocked(id engine.VoiceID) error {
	err := p.ctrl.NoteOff(id)
	if err == nil || errors.Is(err, engine.ErrStopped) {
		delete(p.pending, id)
		return err
	}
	p.pending[id] = time.AfterFunc(releaseRetryInterval, func() { p.expire(id) })
	return fmt.Errorf("releasing preview voice %d: %w", id, err)
}

// Cancel releases every pending preview voice now.
func (p *NotePreview) Cancel() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelLocked()
}

// Close cancels all pending previews; later calls to Play fail.
func (p *NotePreview) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.cancelLocked()
}

func (p *NotePreview) cancelLocked() error {
	var errs []error
	for id, timer := range p.pending {
		timer.Stop()
		if err := p.releaseLocked(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
