package engine

import (
	"testing"
	"time"

	"github.com/specannotate/audition"
)

func TestRenderFaultYieldsSilentBlock(t *testing.T) {
	e, err := New(audition.DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := e.NoteOn(440, 127); err != nil {
		t.Fatalf("NoteOn failed: %v", err)
	}
	e.sine = make([]float32, 1) // too short for a block, render panics
	out := make(audition.PCMBuffer, 512)
	for i := range out {
		out[i] = 1
	}
	e.Render(out, 0)
	for i, s := range out {
		if s != 0 {
			t.Fatalf("sample %d = %v after fault, want silence", i, s)
		}
	}
	alert, ok := TimeoutReceive(e.Alerts(), time.Second)
	if !ok || alert.Name != "RenderFault" || alert.Priority != Error {
		t.Fatalf("alert = %v, ok = %v", alert, ok)
	}
	e.sine = make([]float32, e.blockSize)
	e.Render(out, 0)
	if e.NumVoices() != 1 {
		t.Fatalf("NumVoices after recovery = %d, want 1", e.NumVoices())
	}
}

func TestPoolSlots(t *testing.T) {
	p := NewPool(2)
	if !p.Insert(newVoice(1, 440, 1, 1, 1)) || !p.Insert(newVoice(2, 440, 1, 1, 1)) {
		t.Fatalf("Insert into an empty pool failed")
	}
	if p.Insert(newVoice(3, 440, 1, 1, 1)) {
		t.Fatalf("Insert into a full pool succeeded")
	}
	if p.Insert(Voice{}) {
		t.Fatalf("Insert of a voice without id succeeded")
	}
	p.Get(1).state = Done
	if removed := p.Sweep(); removed != 1 || p.Len() != 1 {
		t.Fatalf("Sweep removed %d, Len = %d", removed, p.Len())
	}
	if p.Get(1) != nil {
		t.Fatalf("swept voice still in the pool")
	}
	if !p.Insert(newVoice(3, 440, 1, 1, 1)) {
		t.Fatalf("Insert into a freed slot failed")
	}
	ids := 0
	for v := range p.All {
		ids += int(v.ID())
	}
	if ids != 5 {
		t.Fatalf("sum of ids = %d, want 5", ids)
	}
	p.Clear()
	if p.Len() != 0 || p.Get(2) != nil {
		t.Fatalf("Clear left voices behind")
	}
}
