package engine_test

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/specannotate/audition"
	"github.com/specannotate/audition/engine"
)

func newEngine(t *testing.T, modify func(*audition.Config)) *engine.Engine {
	t.Helper()
	cfg := audition.DefaultConfig()
	if modify != nil {
		modify(&cfg)
	}
	e, err := engine.New(cfg)
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	return e
}

func TestNoteOnRendersAttackThenSustain(t *testing.T) {
	e := newEngine(t, nil)
	id, err := e.NoteOn(440, 64)
	if err != nil {
		t.Fatalf("NoteOn failed: %v", err)
	}
	if id == 0 {
		t.Fatalf("NoteOn returned the zero id")
	}
	buf := make(audition.AudioBuffer, 512)
	e.Process(buf)
	w := 2 * math.Pi * 440 / 44100
	scale := 0.2 * engine.VelocityGain(64)
	for i, s := range buf {
		env := 1.0
		if i < 441 {
			env = float64(i) / 441
		}
		want := math.Sin(w*float64(i)) * env * scale
		if math.Abs(float64(s)-want) > 1e-5 {
			t.Fatalf("sample %d = %v, want %v", i, s, want)
		}
	}
	if e.NumVoices() != 1 {
		t.Fatalf("NumVoices = %d, want 1", e.NumVoices())
	}
}

func TestRenderQuantizesTo16Bit(t *testing.T) {
	e := newEngine(t, func(c *audition.Config) { c.MasterGain = 1 })
	if _, err := e.NoteOn(1000, 127); err != nil {
		t.Fatalf("NoteOn failed: %v", err)
	}
	out := make(audition.PCMBuffer, 1024)
	e.Render(out, 0)
	w := 2 * math.Pi * 1000 / 44100
	for i := 441; i < len(out); i++ {
		want := math.Sin(w*float64(i)) * 32767
		if math.Abs(float64(out[i])-want) > 2 {
			t.Fatalf("sample %d = %v, want %v", i, out[i], want)
		}
	}
}

func TestNoteOnAtCapacityReturnsNoVoice(t *testing.T) {
	e := newEngine(t, func(c *audition.Config) { c.MaxVoices = 1 })
	if _, err := e.NoteOn(440, 100); err != nil {
		t.Fatalf("first NoteOn failed: %v", err)
	}
	id, err := e.NoteOn(880, 100)
	if !errors.Is(err, engine.ErrNoVoice) {
		t.Fatalf("second NoteOn error = %v, want ErrNoVoice", err)
	}
	if id != 0 {
		t.Fatalf("second NoteOn returned id %d", id)
	}
	e.Process(make(audition.AudioBuffer, 512))
	if e.NumVoices() != 1 {
		t.Fatalf("NumVoices = %d, want 1", e.NumVoices())
	}
}

func TestCapacityIsFreedWhenVoiceFinishes(t *testing.T) {
	e := newEngine(t, func(c *audition.Config) { c.MaxVoices = 1 })
	id, _ := e.NoteOn(440, 100)
	buf := make(audition.AudioBuffer, 512)
	e.Process(buf)
	if err := e.NoteOff(id); err != nil {
		t.Fatalf("NoteOff failed: %v", err)
	}
	if _, err := e.NoteOn(440, 100); !errors.Is(err, engine.ErrNoVoice) {
		t.Fatalf("NoteOn while releasing: %v, want ErrNoVoice", err)
	}
	for i := 0; i < 4; i++ {
		e.Process(buf)
	}
	if e.NumVoices() != 0 {
		t.Fatalf("NumVoices after release = %d, want 0", e.NumVoices())
	}
	if _, err := e.NoteOn(440, 100); err != nil {
		t.Fatalf("NoteOn after release failed: %v", err)
	}
}

func TestReleasedVoiceIsSilentAndEvicted(t *testing.T) {
	e := newEngine(t, nil)
	id, _ := e.NoteOn(440, 127)
	buf := make(audition.AudioBuffer, 512)
	e.Process(buf)
	e.NoteOff(id)
	// 0.03 s release = 1323 samples, i.e. done within the third block
	for i := 0; i < 3; i++ {
		e.Process(buf)
	}
	if e.NumVoices() != 0 {
		t.Fatalf("NumVoices = %d, want 0", e.NumVoices())
	}
	e.Process(buf)
	for i, s := range buf {
		if s != 0 {
			t.Fatalf("sample %d = %v after the voice finished", i, s)
		}
	}
	if e.Peak() != 0 {
		t.Fatalf("Peak = %v, want 0", e.Peak())
	}
}

func TestNoteOnThenNoteOffIsOrdered(t *testing.T) {
	e := newEngine(t, nil)
	id, _ := e.NoteOn(440, 127)
	e.NoteOff(id)
	buf := make(audition.AudioBuffer, 512)
	e.Process(buf)
	if e.NumVoices() != 0 {
		t.Fatalf("NumVoices = %d, want 0", e.NumVoices())
	}
	for i, s := range buf {
		if s != 0 {
			t.Fatalf("sample %d = %v, want silence", i, s)
		}
	}
}

func TestUnknownIDsAreIgnored(t *testing.T) {
	e := newEngine(t, nil)
	if err := e.NoteOff(12345); err != nil {
		t.Fatalf("NoteOff of unknown id: %v", err)
	}
	if err := e.SetVoiceFreq(12345, 100); err != nil {
		t.Fatalf("SetVoiceFreq of unknown id: %v", err)
	}
	e.Process(make(audition.AudioBuffer, 64))
	if e.NumVoices() != 0 {
		t.Fatalf("NumVoices = %d, want 0", e.NumVoices())
	}
}

func TestInvalidFrequency(t *testing.T) {
	e := newEngine(t, nil)
	for _, f := range []float64{0, -1, math.Inf(1), math.NaN()} {
		if _, err := e.NoteOn(f, 64); !errors.Is(err, engine.ErrInvalidFrequency) {
			t.Errorf("NoteOn(%v) error = %v, want ErrInvalidFrequency", f, err)
		}
		if err := e.SetVoiceFreq(1, f); !errors.Is(err, engine.ErrInvalidFrequency) {
			t.Errorf("SetVoiceFreq(%v) error = %v, want ErrInvalidFrequency", f, err)
		}
	}
}

func TestVoiceIDsIncrease(t *testing.T) {
	e := newEngine(t, nil)
	var last engine.VoiceID
	buf := make(audition.AudioBuffer, 512)
	for i := 0; i < 100; i++ {
		id, err := e.NoteOn(440, 64)
		if err != nil {
			t.Fatalf("NoteOn %d failed: %v", i, err)
		}
		if id <= last {
			t.Fatalf("id %d not greater than previous %d", id, last)
		}
		last = id
		e.NoteOff(id)
		e.Process(buf)
	}
}

func TestAllNotesOffReleasesEverything(t *testing.T) {
	e := newEngine(t, nil)
	for _, f := range []float64{220, 330, 440} {
		if _, err := e.NoteOn(f, 100); err != nil {
			t.Fatalf("NoteOn failed: %v", err)
		}
	}
	buf := make(audition.AudioBuffer, 512)
	e.Process(buf)
	if e.NumVoices() != 3 {
		t.Fatalf("NumVoices = %d, want 3", e.NumVoices())
	}
	if err := e.AllNotesOff(); err != nil {
		t.Fatalf("AllNotesOff failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		e.Process(buf)
	}
	if e.NumVoices() != 0 {
		t.Fatalf("NumVoices = %d, want 0", e.NumVoices())
	}
}

func TestQueueFull(t *testing.T) {
	e := newEngine(t, func(c *audition.Config) { c.CommandQueueSize = 1 })
	id, err := e.NoteOn(440, 64)
	if err != nil {
		t.Fatalf("NoteOn failed: %v", err)
	}
	if err := e.NoteOff(id); !errors.Is(err, engine.ErrQueueFull) {
		t.Fatalf("NoteOff error = %v, want ErrQueueFull", err)
	}
	if _, err := e.NoteOn(440, 64); !errors.Is(err, engine.ErrQueueFull) {
		t.Fatalf("NoteOn error = %v, want ErrQueueFull", err)
	}
	e.Process(make(audition.AudioBuffer, 64))
	if e.NumVoices() != 1 {
		t.Fatalf("NumVoices = %d, want 1", e.NumVoices())
	}
	if err := e.NoteOff(id); err != nil {
		t.Fatalf("NoteOff after render failed: %v", err)
	}
}

func TestMasterGainIsClamped(t *testing.T) {
	e := newEngine(t, nil)
	if e.MasterGain() != 0.2 {
		t.Fatalf("default master gain = %v", e.MasterGain())
	}
	e.SetMasterGain(3)
	if e.MasterGain() != 1 {
		t.Fatalf("MasterGain = %v, want 1", e.MasterGain())
	}
	e.SetMasterGain(-1)
	if e.MasterGain() != 0 {
		t.Fatalf("MasterGain = %v, want 0", e.MasterGain())
	}
}

func TestOutputIsClipped(t *testing.T) {
	e := newEngine(t, func(c *audition.Config) {
		c.MasterGain = 1
		c.AttackSeconds = 1.0 / 44100
	})
	for i := 0; i < 8; i++ {
		e.NoteOn(441, 127)
	}
	buf := make(audition.AudioBuffer, 512)
	e.Process(buf)
	for i, s := range buf {
		if s > 1 || s < -1 {
			t.Fatalf("sample %d = %v not clipped", i, s)
		}
	}
	if e.Peak() != 1 {
		t.Fatalf("Peak = %v, want 1", e.Peak())
	}
}

type fakeOutput struct {
	closed   chan struct{}
	closeErr error
	once     sync.Once
}

func (f *fakeOutput) Close() error {
	f.once.Do(func() { close(f.closed) })
	return f.closeErr
}

func (f *fakeOutput) Wait() { <-f.closed }

type fakeContext struct {
	out      *fakeOutput
	renderer audition.Renderer
}

func (c *fakeContext) Play(r audition.Renderer) audition.CloserWaiter {
	c.renderer = r
	return c.out
}

func (c *fakeContext) Close() error { return nil }

func TestStopClosesOutputAndClearsPool(t *testing.T) {
	e := newEngine(t, nil)
	ctx := &fakeContext{out: &fakeOutput{closed: make(chan struct{})}}
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := e.Start(ctx); !errors.Is(err, engine.ErrAlreadyStarted) {
		t.Fatalf("second Start error = %v", err)
	}
	e.NoteOn(440, 100)
	out := make(audition.PCMBuffer, 512)
	ctx.renderer.Render(out, 0)
	if e.NumVoices() != 1 {
		t.Fatalf("NumVoices = %d, want 1", e.NumVoices())
	}
	e.Stop()
	select {
	case <-ctx.out.closed:
	default:
		t.Fatalf("Stop returned before the output was closed")
	}
	e.Stop()
	if e.NumVoices() != 0 {
		t.Fatalf("NumVoices after Stop = %d", e.NumVoices())
	}
	if _, err := e.NoteOn(440, 100); !errors.Is(err, engine.ErrStopped) {
		t.Fatalf("NoteOn after Stop: %v, want ErrStopped", err)
	}
	if err := e.NoteOff(1); !errors.Is(err, engine.ErrStopped) {
		t.Fatalf("NoteOff after Stop: %v, want ErrStopped", err)
	}
	if err := e.Start(ctx); !errors.Is(err, engine.ErrStopped) {
		t.Fatalf("Start after Stop: %v, want ErrStopped", err)
	}
	out[0] = 5
	ctx.renderer.Render(out, 0)
	for i, s := range out {
		if s != 0 {
			t.Fatalf("sample %d = %v after Stop", i, s)
		}
	}
}

func TestStopFailureIsReportedAndStateCleared(t *testing.T) {
	e := newEngine(t, nil)
	ctx := &fakeContext{out: &fakeOutput{closed: make(chan struct{}), closeErr: errors.New("device busy")}}
	e.Start(ctx)
	e.NoteOn(440, 100)
	e.Process(make(audition.AudioBuffer, 64))
	e.Stop()
	alert, ok := engine.TimeoutReceive(e.Alerts(), time.Second)
	if !ok {
		t.Fatalf("no alert after failed Stop")
	}
	if alert.Name != "StopFailed" || alert.Priority != engine.Error {
		t.Fatalf("alert = %v", alert)
	}
	if e.NumVoices() != 0 {
		t.Fatalf("NumVoices after Stop = %d", e.NumVoices())
	}
}

func TestStreamStatusIsObservedOnly(t *testing.T) {
	e := newEngine(t, nil)
	e.NoteOn(440, 100)
	out := make(audition.PCMBuffer, 512)
	e.Render(out, audition.StatusUnderrun)
	alert, ok := engine.TimeoutReceive(e.Alerts(), time.Second)
	if !ok || alert.Name != "StreamStatus" || alert.Priority != engine.Warning {
		t.Fatalf("alert = %v, ok = %v", alert, ok)
	}
	if e.NumVoices() != 1 {
		t.Fatalf("NumVoices = %d, want 1", e.NumVoices())
	}
}

func TestConcurrentControlNeverExceedsCapacity(t *testing.T) {
	e := newEngine(t, func(c *audition.Config) { c.MaxVoices = 4 })
	done := make(chan struct{})
	var renderer sync.WaitGroup
	renderer.Add(1)
	go func() {
		defer renderer.Done()
		out := make(audition.PCMBuffer, 128)
		for {
			select {
			case <-done:
				return
			default:
			}
			e.Render(out, 0)
			if n := e.NumVoices(); n > 4 {
				t.Errorf("NumVoices = %d exceeds capacity", n)
				return
			}
		}
	}()
	var controllers sync.WaitGroup
	for g := 0; g < 4; g++ {
		controllers.Add(1)
		go func() {
			defer controllers.Done()
			for i := 0; i < 500; i++ {
				id, err := e.NoteOn(200+float64(i), 64)
				if err != nil {
					continue
				}
				e.SetVoiceFreq(id, 300)
				e.NoteOff(id)
			}
		}()
	}
	controllers.Wait()
	close(done)
	renderer.Wait()
	buf := make(audition.AudioBuffer, 512)
	e.Process(buf) // drain whatever is still queued
	if err := e.AllNotesOff(); err != nil {
		t.Fatalf("AllNotesOff failed: %v", err)
	}
	for i := 0; i < 4; i++ {
		e.Process(buf)
	}
	if e.NumVoices() != 0 {
		t.Fatalf("NumVoices after release = %d, want 0", e.NumVoices())
	}
}
