package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/specannotate/audition"
	"github.com/specannotate/audition/cmd"
	"github.com/specannotate/audition/engine"
	"github.com/specannotate/audition/version"
)

func main() {
	help := flag.Bool("h", false, "Show help.")
	configFile := flag.String("config", "", "Read engine settings from a .json or .yml `file`.")
	directory := flag.String("o", "", "Directory where to output all files. The directory and its parents are created if needed. By default, everything is placed in the current working directory.")
	nameTemplate := flag.String("name", cmd.DefaultOutputTemplate, "Output file name template; text/template with sprig functions over .Name, .Ext, .SampleRate and .PCM.")
	start := flag.Float64("start", 0, "Start rendering at this time, in seconds.")
	target := flag.Float64("duration", 0, "Rescale the notes of a MIDI file to this length in seconds.")
	rawOut := flag.Bool("r", false, "Output the rendered audio as .raw file.")
	wavOut := flag.Bool("w", false, "Output the rendered audio as .wav file (default when no other output is defined).")
	pcm := flag.Bool("c", false, "Convert audio to 16-bit signed PCM when outputting. By default, saves mono float32 samples.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.String())
		os.Exit(0)
	}
	if flag.NArg() == 0 || *help {
		flag.Usage()
		os.Exit(0)
	}
	if !*rawOut && !*wavOut {
		*wavOut = true
	}
	cfg, err := audition.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	process := func(filename string) error {
		output := func(extension string, contents []byte) error {
			base := filepath.Base(filename)
			name, err := cmd.OutputName(*nameTemplate, cmd.OutputInfo{
				Name:       strings.TrimSuffix(base, filepath.Ext(base)),
				Ext:        extension,
				SampleRate: cfg.SampleRate,
				PCM:        *pcm,
			})
			if err != nil {
				return err
			}
			dir := *directory
			if dir == "" {
				if dir, err = os.Getwd(); err != nil {
					return fmt.Errorf("could not get working directory, specify the output directory explicitly: %v", err)
				}
			}
			if err := os.MkdirAll(dir, os.ModePerm); err != nil {
				return fmt.Errorf("could not create output directory %v: %v", dir, err)
			}
			f := filepath.Join(dir, name)
			if err := os.WriteFile(f, contents, 0644); err != nil {
				return fmt.Errorf("could not write file %v: %v", f, err)
			}
			return nil
		}
		notes, err := cmd.LoadTimeline(filename, *target)
		if err != nil {
			return err
		}
		e, err := engine.New(cfg)
		if err != nil {
			return err
		}
		defer e.Stop()
		buffer, err := cmd.RenderTimeline(e, notes, *start, cfg.ReleaseSeconds)
		if err != nil {
			return fmt.Errorf("render failed: %v", err)
		}
		cmd.FlushAlerts(e.Alerts(), time.Millisecond)
		if *rawOut {
			raw, err := buffer.Raw(*pcm)
			if err != nil {
				return fmt.Errorf("could not generate .raw file: %v", err)
			}
			if err := output(".raw", raw); err != nil {
				return fmt.Errorf("error outputting .raw file: %v", err)
			}
		}
		if *wavOut {
			wav, err := buffer.Wav(*pcm, cfg.SampleRate)
			if err != nil {
				return fmt.Errorf("could not generate .wav file: %v", err)
			}
			if err := output(".wav", wav); err != nil {
				return fmt.Errorf("error outputting .wav file: %v", err)
			}
		}
		return nil
	}
	retval := 0
	for _, param := range flag.Args() {
		if err := process(param); err != nil {
			fmt.Fprintf(os.Stderr, "could not process file %v: %v\n", param, err)
			retval = 1
		}
	}
	os.Exit(retval)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Renders the notes of .mid, .json or .yml files through sine voices to .wav/.raw files.\nUsage: %s [flags] [path ...]\n", os.Args[0])
	flag.PrintDefaults()
}
