package engine

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/specannotate/audition"
	"github.com/viterin/vek/vek32"
)

type (
	// Engine is a polyphonic sine synth for auditioning notes. Control
	// methods (NoteOn, NoteOff, SetVoiceFreq, AllNotesOff) may be called from
	// any goroutine; they never block and only queue intents. The queue is
	// consumed at the start of every render block by the render thread, which
	// is the only owner of the voice pool.
	Engine struct {
		sampleRate float64
		blockSize  int
		maxVoices  int32
		attackInc  float64
		releaseInc float64

		nextID    atomic.Uint64
		reserved  atomic.Int32 // voices in the pool plus note-ons still queued
		stopped   atomic.Bool
		gainBits  atomic.Uint64
		peakBits  atomic.Uint32
		numVoices atomic.Int32

		commands chan command
		alerts   chan Alert

		// renderMu is held while a block is rendered. Only Stop contends for
		// it, so the render thread never waits on a control call.
		renderMu sync.Mutex
		pool     *Pool
		mix      []float32
		sine     []float32
		env      []float32

		outMu  sync.Mutex
		output audition.CloserWaiter
	}

	command struct {
		kind commandKind
		id   VoiceID
		freq float64
		gain float64
	}

	commandKind int
)

const (
	cmdNoteOn commandKind = iota
	cmdNoteOff
	cmdRetune
	cmdAllNotesOff
)

var (
	// ErrNoVoice is returned by NoteOn when all voices are in use. New notes
	// are dropped; existing voices are never stolen.
	ErrNoVoice = errors.New("no voice available")
	// ErrStopped is returned by control calls after Stop.
	ErrStopped = errors.New("engine stopped")
	// ErrQueueFull is returned when the command queue to the render thread
	// is full and the request was dropped.
	ErrQueueFull = errors.New("command queue full")
	// ErrInvalidFrequency is returned for frequencies that are not positive
	// and finite.
	ErrInvalidFrequency = errors.New("invalid frequency")
	// ErrAlreadyStarted is returned by Start when an output is attached.
	ErrAlreadyStarted = errors.New("engine already started")
)

// New creates an engine with an empty voice pool. The engine does not render
// anything until it is attached to an output with Start, or until Render or
// Process is called directly.
func New(cfg audition.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine.New: %w", err)
	}
	e := &Engine{
		sampleRate: float64(cfg.SampleRate),
		blockSize:  cfg.BlockSize,
		maxVoices:  int32(cfg.MaxVoices),
		attackInc:  EnvelopeIncrement(cfg.AttackSeconds, cfg.SampleRate),
		releaseInc: EnvelopeIncrement(cfg.ReleaseSeconds, cfg.SampleRate),
		commands:   make(chan command, cfg.CommandQueueSize),
		alerts:     make(chan Alert, alertQueueSize),
		pool:       NewPool(cfg.MaxVoices),
		mix:        make([]float32, cfg.BlockSize),
		sine:       make([]float32, cfg.BlockSize),
		env:        make([]float32, cfg.BlockSize),
	}
	e.SetMasterGain(cfg.MasterGain)
	return e, nil
}

func (e *Engine) SampleRate() int { return int(e.sampleRate) }
func (e *Engine) BlockSize() int  { return e.blockSize }
func (e *Engine) MaxVoices() int  { return int(e.maxVoices) }

// Alerts returns the channel of observability events.
func (e *Engine) Alerts() <-chan Alert { return e.alerts }

// NumVoices returns the number of voices in the pool after the last rendered
// block.
func (e *Engine) NumVoices() int { return int(e.numVoices.Load()) }

// Peak returns the absolute peak of the last rendered block.
func (e *Engine) Peak() float32 { return math.Float32frombits(e.peakBits.Load()) }

func (e *Engine) MasterGain() float64 { return math.Float64frombits(e.gainBits.Load()) }

// SetMasterGain sets the global output scalar, clamped to [0, 1]. It takes
// effect at the next block.
func (e *Engine) SetMasterGain(g float64) {
	if math.IsNaN(g) {
		g = 0
	}
	e.gainBits.Store(math.Float64bits(min(max(g, 0), 1)))
}

// NoteOn starts a new voice in the attack stage and returns its id. When
// all voices are taken, it returns ErrNoVoice and the pool is unchanged.
func (e *Engine) NoteOn(freq float64, velocity int) (VoiceID, error) {
	if e.stopped.Load() {
		return 0, ErrStopped
	}
	if !validFrequency(freq) {
		return 0, fmt.Errorf("NoteOn %v Hz: %w", freq, ErrInvalidFrequency)
	}
	if !e.reserve() {
		return 0, ErrNoVoice
	}
	id := VoiceID(e.nextID.Add(1))
	if !TrySend(e.commands, command{kind: cmdNoteOn, id: id, freq: freq, gain: VelocityGain(velocity)}) {
		e.reserved.Add(-1)
		return 0, ErrQueueFull
	}
	return id, nil
}

// NoteOff moves the voice to the release stage. Unknown ids and voices
// already releasing are ignored.
func (e *Engine) NoteOff(id VoiceID) error {
	return e.send(command{kind: cmdNoteOff, id: id})
}

// SetVoiceFreq retunes a voice in place, starting from the next sample
// rendered. Unknown ids are ignored.
func (e *Engine) SetVoiceFreq(id VoiceID, freq float64) error {
	if !validFrequency(freq) {
		return fmt.Errorf("SetVoiceFreq %v Hz: %w", freq, ErrInvalidFrequency)
	}
	return e.send(command{kind: cmdRetune, id: id, freq: freq})
}

// AllNotesOff releases every sounding voice.
func (e *Engine) AllNotesOff() error {
	return e.send(command{kind: cmdAllNotesOff})
}

func (e *Engine) send(c command) error {
	if e.stopped.Load() {
		return ErrStopped
	}
	if !TrySend(e.commands, c) {
		return ErrQueueFull
	}
	return nil
}

// reserve claims one of the maxVoices slots for a voice that is about to be
// queued. Slots are given back when the render thread evicts a finished
// voice.
func (e *Engine) reserve() bool {
	for {
		n := e.reserved.Load()
		if n >= e.maxVoices {
			return false
		}
		if e.reserved.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Start attaches the engine to an output device, which starts calling Render
// from its own thread.
func (e *Engine) Start(ctx audition.AudioContext) error {
	if e.stopped.Load() {
		return ErrStopped
	}
	e.outMu.Lock()
	defer e.outMu.Unlock()
	if e.output != nil {
		return ErrAlreadyStarted
	}
	e.output = ctx.Play(e)
	return nil
}

// Stop halts the output device, then clears the voice pool. No rendering
// happens after Stop returns and all later control calls return ErrStopped.
// Stop is idempotent.
func (e *Engine) Stop() {
	if !e.stopped.CompareAndSwap(false, true) {
		return
	}
	e.outMu.Lock()
	out := e.output
	e.output = nil
	e.outMu.Unlock()
	if out != nil {
		e.closeOutput(out)
	}
	e.renderMu.Lock()
	defer e.renderMu.Unlock()
	e.pool.Clear()
	e.drainCommands()
	e.reserved.Store(0)
	e.numVoices.Store(0)
	e.peakBits.Store(0)
}

func (e *Engine) closeOutput(out audition.CloserWaiter) {
	defer func() {
		if r := recover(); r != nil {
			e.alert("StopFailed", Error, fmt.Sprintf("closing output panicked: %v", r))
		}
	}()
	if err := out.Close(); err != nil {
		e.alert("StopFailed", Error, fmt.Sprintf("closing output: %v", err))
	}
}

// Render is the device callback: it fills out with one block of PCM. Any
// fault while rendering is contained and results in a silent block. A
// non-zero status is reported as a Warning alert only.
func (e *Engine) Render(out audition.PCMBuffer, status audition.StreamStatus) {
	e.renderMu.Lock()
	defer e.renderMu.Unlock()
	if status != 0 {
		e.alert("StreamStatus", Warning, status.String())
	}
	if e.stopped.Load() {
		clear(out)
		return
	}
	for len(out) > 0 {
		n := min(len(out), e.blockSize)
		mix := audition.AudioBuffer(e.mix[:n])
		e.renderBlock(mix)
		mix.Quantize(out[:n])
		out = out[n:]
	}
}

// Process renders float samples into buf, clipped to [-1, 1]. It shares the
// voice pool and command queue with Render and is used for offline
// rendering.
func (e *Engine) Process(buf audition.AudioBuffer) {
	e.renderMu.Lock()
	defer e.renderMu.Unlock()
	if e.stopped.Load() {
		buf.Clear()
		return
	}
	for len(buf) > 0 {
		n := min(len(buf), e.blockSize)
		e.renderBlock(buf[:n])
		buf = buf[n:]
	}
}

// renderBlock applies the queued commands and mixes all voices into mix,
// len(mix) <= blockSize. It is the containment boundary of the render path.
func (e *Engine) renderBlock(mix audition.AudioBuffer) {
	defer func() {
		if r := recover(); r != nil {
			mix.Clear()
			e.alert("RenderFault", Error, fmt.Sprintf("render: %v", r))
		}
	}()
	e.processCommands()
	vek32.Zeros_Into(mix, len(mix))
	gain := e.MasterGain()
	for v := range e.pool.All {
		v.render(mix, e.sine, e.env, e.sampleRate, gain)
	}
	if removed := e.pool.Sweep(); removed > 0 {
		e.reserved.Add(-int32(removed))
	}
	e.numVoices.Store(int32(e.pool.Len()))
	for i, s := range mix {
		switch {
		case s > 1:
			mix[i] = 1
		case s < -1:
			mix[i] = -1
		case s != s:
			mix[i] = 0
		}
	}
	peak := e.env[:len(mix)]
	copy(peak, mix)
	vek32.Abs_Inplace(peak)
	e.peakBits.Store(math.Float32bits(vek32.Max(peak)))
}

func (e *Engine) processCommands() {
loop:
	for {
		select {
		case c := <-e.commands:
			e.apply(c)
		default:
			break loop
		}
	}
}

func (e *Engine) apply(c command) {
	switch c.kind {
	case cmdNoteOn:
		if !e.pool.Insert(newVoice(c.id, c.freq, c.gain, e.attackInc, e.releaseInc)) {
			e.reserved.Add(-1)
		}
	case cmdNoteOff:
		if v := e.pool.Get(c.id); v != nil {
			v.Release()
		}
	case cmdRetune:
		if v := e.pool.Get(c.id); v != nil {
			v.frequency = c.freq
		}
	case cmdAllNotesOff:
		for v := range e.pool.All {
			v.Release()
		}
	}
}

func (e *Engine) drainCommands() {
	for {
		select {
		case <-e.commands:
		default:
			return
		}
	}
}

func (e *Engine) alert(name string, priority AlertPriority, message string) {
	TrySend(e.alerts, Alert{Name: name, Priority: priority, Message: message})
}

func validFrequency(f float64) bool {
	return f > 0 && !math.IsInf(f, 0)
}
