package cmd

import (
	"fmt"
	"math"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"

	"github.com/specannotate/audition"
	"github.com/specannotate/audition/engine"
	"github.com/specannotate/audition/scheduler"
)

// OutputInfo is the data available to output name templates.
type OutputInfo struct {
	Name       string // input file name without directory and extension
	Ext        string // ".wav" or ".raw"
	SampleRate int
	PCM        bool
}

// DefaultOutputTemplate names the output after the input file.
const DefaultOutputTemplate = "{{.Name}}{{.Ext}}"

// OutputName executes a text/template with the sprig functions, e.g.
// `{{.Name | snakecase}}-{{.SampleRate}}{{.Ext}}`.
func OutputName(tmpl string, info OutputInfo) (string, error) {
	t, err := template.New("output").Funcs(sprig.TxtFuncMap()).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("could not parse output template: %w", err)
	}
	var b strings.Builder
	if err := t.Execute(&b, info); err != nil {
		return "", fmt.Errorf("could not execute output template: %w", err)
	}
	name := strings.TrimSpace(b.String())
	if name == "" {
		return "", fmt.Errorf("output template %q produced an empty name", tmpl)
	}
	return name, nil
}

// RenderTimeline plays notes from time start through the engine exactly as
// the real-time path would, advancing the scheduler once per block, and
// returns the audio including the release tails. The engine must not be
// attached to an output.
func RenderTimeline(e *engine.Engine, notes audition.Timeline, start, releaseSeconds float64) (audition.AudioBuffer, error) {
	sr := float64(e.SampleRate())
	bs := e.BlockSize()
	sched := scheduler.New(e, scheduler.WithTimeline(notes))
	end := max(notes.Length(), start)
	blocks := int(math.Ceil((end - start) * sr / float64(bs)))
	tail := int(math.Ceil(releaseSeconds*sr/float64(bs))) + 1
	out := make(audition.AudioBuffer, (blocks+tail)*bs)
	for i := 0; i < blocks; i++ {
		t := start + float64(i*bs)/sr
		if err := sched.Update(t); err != nil {
			return nil, err
		}
		e.Process(out[i*bs : (i+1)*bs])
	}
	if err := sched.StopAll(); err != nil {
		return nil, err
	}
	for i := blocks; i < blocks+tail; i++ {
		e.Process(out[i*bs : (i+1)*bs])
	}
	return out, nil
}
