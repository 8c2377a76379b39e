package audition

import (
	"io"
	"strings"
)

type (
	// AudioBuffer is a buffer of mono float32 samples in [-1, 1].
	AudioBuffer []float32

	// PCMBuffer is a buffer of signed 16-bit mono samples, the format the
	// output device consumes.
	PCMBuffer []int16

	// StreamStatus carries the non-fatal status flags the output device may
	// report along with a callback.
	StreamStatus uint8

	// Renderer is implemented by anything that can fill one block of PCM
	// per device callback. It must never block.
	Renderer interface {
		Render(out PCMBuffer, status StreamStatus)
	}

	// AudioContext is the output device. Play starts pulling blocks from
	// the renderer until the returned CloserWaiter is closed.
	AudioContext interface {
		Play(r Renderer) CloserWaiter
		Close() error
	}

	// CloserWaiter is returned by AudioContext.Play. Close stops the device
	// synchronously; Wait blocks until the stream has been closed.
	CloserWaiter interface {
		io.Closer
		Wait()
	}
)

// StatusUnderrun means the device ran out of samples before the callback.
const StatusUnderrun StreamStatus = 1

func (s StreamStatus) String() string {
	if s == 0 {
		return "ok"
	}
	var parts []string
	if s&StatusUnderrun != 0 {
		parts = append(parts, "underrun")
	}
	if s&^StatusUnderrun != 0 {
		parts = append(parts, "unknown")
	}
	return strings.Join(parts, "|")
}

// Clear sets every sample of the buffer to 0.
func (b AudioBuffer) Clear() {
	for i := range b {
		b[i] = 0
	}
}

// Quantize converts the float samples to 16-bit PCM into dst, clipping to
// [-1, 1] first. dst must be at least as long as b.
func (b AudioBuffer) Quantize(dst PCMBuffer) {
	for i, v := range b {
		dst[i] = floatToInt16(v)
	}
}

func floatToInt16(v float32) int16 {
	switch {
	case v != v: // NaN
		return 0
	case v <= -1:
		return -32767
	case v >= 1:
		return 32767
	}
	return int16(v * 32767)
}
