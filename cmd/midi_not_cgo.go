//go:build !cgo

package cmd

import (
	"errors"

	"github.com/specannotate/audition/midiin"
)

func OpenMIDIInput(namePrefix string) (midiin.Input, error) {
	// with no cgo, we cannot use MIDI, so return a null input
	return midiin.NullInput{}, errors.New("MIDI input is not available in builds without cgo")
}
