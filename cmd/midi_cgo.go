//go:build cgo

package cmd

import (
	"github.com/specannotate/audition/midiin"
)

func OpenMIDIInput(namePrefix string) (midiin.Input, error) {
	in, err := midiin.Open(namePrefix)
	if err != nil {
		return midiin.NullInput{}, err
	}
	return in, nil
}
