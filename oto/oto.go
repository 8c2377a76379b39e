package oto

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/specannotate/audition"
)

type (
	// OtoContext is a mono 16-bit output device.
	OtoContext struct {
		context    *oto.Context
		sampleRate int
		blockSize  int
	}

	// OtoStream pulls blocks from a renderer for the oto player. Closing it
	// waits for an in-flight callback to finish; no callback starts after
	// Close returns.
	OtoStream struct {
		renderer  audition.Renderer
		player    *oto.Player
		pcm       audition.PCMBuffer
		blockTime time.Duration

		mu       sync.Mutex
		closed   bool
		lastRead time.Time
		ahead    time.Duration // audio delivered by the previous callback

		done      chan struct{}
		closeOnce sync.Once
	}
)

// NewContext opens the default output device. blockSize is the number of
// frames rendered per callback and also sizes the device buffer.
func NewContext(sampleRate, blockSize int) (*OtoContext, error) {
	blockTime := time.Duration(blockSize) * time.Second / time.Duration(sampleRate)
	context, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   blockTime,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &OtoContext{context: context, sampleRate: sampleRate, blockSize: blockSize}, nil
}

// Play starts a stream calling r for every block.
func (c *OtoContext) Play(r audition.Renderer) audition.CloserWaiter {
	s := newStream(r, c.sampleRate, c.blockSize)
	s.player = c.context.NewPlayer(s)
	s.player.SetBufferSize(c.blockSize * 2)
	s.player.Play()
	return s
}

// Close suspends the device; oto contexts live until the process exits.
func (c *OtoContext) Close() error {
	if err := c.context.Suspend(); err != nil {
		return fmt.Errorf("cannot suspend oto context: %w", err)
	}
	return nil
}

func newStream(r audition.Renderer, sampleRate, blockSize int) *OtoStream {
	return &OtoStream{
		renderer:  r,
		pcm:       make(audition.PCMBuffer, blockSize),
		blockTime: time.Duration(blockSize) * time.Second / time.Duration(sampleRate),
		done:      make(chan struct{}),
	}
}

// Read implements io.Reader for oto.Player. It is called from the device
// thread.
func (s *OtoStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.EOF
	}
	frames := len(p) / 2
	status := s.observe(time.Now(), frames)
	for off := 0; off < frames; {
		n := min(frames-off, len(s.pcm))
		s.renderer.Render(s.pcm[:n], status)
		status = 0
		Int16ToLE(p[2*off:], s.pcm[:n])
		off += n
	}
	if len(p)%2 == 1 {
		p[len(p)-1] = 0
	}
	return len(p), nil
}

// observe flags an underrun when the device asks for audio later than the
// previously delivered audio plus one block of slack would last.
func (s *OtoStream) observe(now time.Time, frames int) audition.StreamStatus {
	var status audition.StreamStatus
	if !s.lastRead.IsZero() && now.Sub(s.lastRead) > s.ahead+s.blockTime {
		status |= audition.StatusUnderrun
	}
	s.lastRead = now
	s.ahead = time.Duration(frames) * s.blockTime / time.Duration(len(s.pcm))
	return status
}

// Close stops the player and waits for the current callback, if any.
func (s *OtoStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.player != nil {
			s.player.Pause()
		}
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		if s.player != nil {
			err = s.player.Err()
			s.player.Close()
		}
		close(s.done)
	})
	if err != nil {
		return fmt.Errorf("oto player: %w", err)
	}
	return nil
}

func (s *OtoStream) Wait() {
	<-s.done
}
