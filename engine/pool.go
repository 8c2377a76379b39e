package engine

// Pool is a fixed-capacity slot table of voices. A slot is free when its
// voice id is 0. The pool never allocates after construction; it is owned by
// the render thread and is not safe for concurrent use.
type Pool struct {
	slots []Voice
	n     int
}

func NewPool(capacity int) *Pool {
	return &Pool{slots: make([]Voice, capacity)}
}

func (p *Pool) Len() int { return p.n }
func (p *Pool) Cap() int { return len(p.slots) }

// Insert puts the voice in the first free slot. It returns false if the pool
// is full or the voice has no id.
func (p *Pool) Insert(v Voice) bool {
	if v.id == 0 || p.n >= len(p.slots) {
		return false
	}
	for i := range p.slots {
		if p.slots[i].id == 0 {
			p.slots[i] = v
			p.n++
			return true
		}
	}
	return false
}

// Get returns the voice with the given id, or nil if there is none.
func (p *Pool) Get(id VoiceID) *Voice {
	if id == 0 {
		return nil
	}
	for i := range p.slots {
		if p.slots[i].id == id {
			return &p.slots[i]
		}
	}
	return nil
}

// All iterates over the voices in the pool.
func (p *Pool) All(yield func(*Voice) bool) {
	for i := range p.slots {
		if p.slots[i].id == 0 {
			continue
		}
		if !yield(&p.slots[i]) {
			return
		}
	}
}

// Sweep frees the slots of all voices in the Done state and returns how many
// were removed.
func (p *Pool) Sweep() int {
	removed := 0
	for i := range p.slots {
		if p.slots[i].id != 0 && p.slots[i].state == Done {
			p.slots[i] = Voice{}
			removed++
		}
	}
	p.n -= removed
	return removed
}

func (p *Pool) Clear() {
	clear(p.slots)
	p.n = 0
}
