package oto

import (
	"encoding/binary"

	"github.com/specannotate/audition"
)

// Int16ToLE writes the samples to dst as little-endian 16-bit integers. dst
// must hold at least 2*len(src) bytes.
func Int16ToLE(dst []byte, src audition.PCMBuffer) {
	for i, v := range src {
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(v))
	}
}
