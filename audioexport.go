package audition

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Wav encodes the buffer as a mono .wav file. If pcm16 is true, the samples
// are written as 16-bit signed integers, otherwise as IEEE float32.
func (b AudioBuffer) Wav(pcm16 bool, sampleRate int) ([]byte, error) {
	buf := new(bytes.Buffer)
	wavHeader(len(b), pcm16, sampleRate, buf)
	if err := b.rawToBuffer(pcm16, buf); err != nil {
		return nil, fmt.Errorf("Wav failed: %w", err)
	}
	return buf.Bytes(), nil
}

// Raw encodes the samples without any header, little-endian.
func (b AudioBuffer) Raw(pcm16 bool) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := b.rawToBuffer(pcm16, buf); err != nil {
		return nil, fmt.Errorf("Raw failed: %w", err)
	}
	return buf.Bytes(), nil
}

func (b AudioBuffer) rawToBuffer(pcm16 bool, buf *bytes.Buffer) error {
	var err error
	if pcm16 {
		pcm := make(PCMBuffer, len(b))
		b.Quantize(pcm)
		err = binary.Write(buf, binary.LittleEndian, pcm)
	} else {
		err = binary.Write(buf, binary.LittleEndian, b)
	}
	if err != nil {
		return fmt.Errorf("could not binary write data to binary buffer: %w", err)
	}
	return nil
}

// wavHeader writes a RIFF header for a mono int16 or float32 stream of
// length samples.
func wavHeader(length int, pcm16 bool, sampleRate int, buf *bytes.Buffer) {
	// Refer to: http://www-mmsp.ece.mcgill.ca/Documents/AudioFormats/WAVE/WAVE.html
	const numChannels = 1
	var bytesPerSample, chunkSize, fmtChunkSize, waveFormat int
	var factChunk bool
	if pcm16 {
		bytesPerSample = 2
		chunkSize = 36 + bytesPerSample*length
		fmtChunkSize = 16
		waveFormat = 1 // PCM
	} else {
		bytesPerSample = 4
		chunkSize = 50 + bytesPerSample*length
		fmtChunkSize = 18
		waveFormat = 3 // IEEE float
		factChunk = true
	}
	le := binary.LittleEndian
	buf.WriteString("RIFF")
	binary.Write(buf, le, uint32(chunkSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, le, uint32(fmtChunkSize))
	binary.Write(buf, le, uint16(waveFormat))
	binary.Write(buf, le, uint16(numChannels))
	binary.Write(buf, le, uint32(sampleRate))
	binary.Write(buf, le, uint32(sampleRate*numChannels*bytesPerSample)) // avgBytesPerSec
	binary.Write(buf, le, uint16(numChannels*bytesPerSample))            // blockAlign
	binary.Write(buf, le, uint16(8*bytesPerSample))                      // bits per sample
	if fmtChunkSize > 16 {
		binary.Write(buf, le, uint16(0)) // size of extension
	}
	if factChunk {
		buf.WriteString("fact")
		binary.Write(buf, le, uint32(4))
		binary.Write(buf, le, uint32(length))
	}
	buf.WriteString("data")
	binary.Write(buf, le, uint32(bytesPerSample*length))
}
