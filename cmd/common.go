// Package cmd holds helpers shared by the command line tools.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/specannotate/audition"
	"github.com/specannotate/audition/engine"
	"github.com/specannotate/audition/midifile"
)

// noteEntry is a note as written in a notes file; a missing velocity takes
// audition.DefaultVelocity.
type noteEntry struct {
	Pitch    int     `json:"pitch" yaml:"pitch"`
	Start    float64 `json:"start" yaml:"start"`
	End      float64 `json:"end" yaml:"end"`
	Velocity *int    `json:"velocity" yaml:"velocity"`
}

// LoadTimeline reads notes from a .mid/.midi file, or from a .json/.yml list
// of notes. targetDuration rescales MIDI files, see midifile.Options.
func LoadTimeline(path string, targetDuration float64) (audition.Timeline, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mid", ".midi":
		return midifile.Read(path, midifile.Options{TargetDuration: targetDuration})
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read file %v: %w", path, err)
	}
	var entries []noteEntry
	if errJSON := json.Unmarshal(data, &entries); errJSON != nil {
		entries = nil
		if errYaml := yaml.Unmarshal(data, &entries); errYaml != nil {
			return nil, fmt.Errorf("the notes could not be parsed as .json (%v) or .yml (%v)", errJSON, errYaml)
		}
	}
	notes := make(audition.Timeline, len(entries))
	for i, e := range entries {
		notes[i] = audition.Note{Pitch: e.Pitch, Start: e.Start, End: e.End, Velocity: audition.DefaultVelocity}
		if e.Velocity != nil {
			notes[i].Velocity = *e.Velocity
		}
	}
	if err := notes.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", path, err)
	}
	notes.Sort()
	return notes, nil
}

// LogAlerts logs engine alerts until ctx is done.
func LogAlerts(ctx context.Context, alerts <-chan engine.Alert) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-alerts:
			log.Print(a)
		}
	}
}

// FlushAlerts logs the alerts still queued, waiting at most timeout for
// each.
func FlushAlerts(alerts <-chan engine.Alert, timeout time.Duration) {
	for {
		a, ok := engine.TimeoutReceive(alerts, timeout)
		if !ok {
			return
		}
		log.Print(a)
	}
}
