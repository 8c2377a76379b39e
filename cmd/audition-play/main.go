package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/specannotate/audition"
	"github.com/specannotate/audition/cmd"
	"github.com/specannotate/audition/engine"
	"github.com/specannotate/audition/midiin"
	"github.com/specannotate/audition/oto"
	"github.com/specannotate/audition/scheduler"
	"github.com/specannotate/audition/version"
)

var (
	configFile = flag.String("config", "", "Read engine settings from a .json or .yml `file`.")
	midiInput  = flag.String("midi-input", "", "Play notes from the first MIDI input whose name starts with this prefix. An empty prefix takes the first input.")
	start      = flag.Float64("start", 0, "Start auditioning at this time, in seconds.")
	tick       = flag.Duration("tick", 10*time.Millisecond, "Interval of the playback clock driving the scheduler.")
	target     = flag.Float64("duration", 0, "Rescale the notes of a MIDI file to this length in seconds.")
	volume     = flag.Float64("volume", -1, "Override the master gain, 0..1.")
	versionFlg = flag.Bool("v", false, "Print version.")
)

func main() {
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlg {
		fmt.Println(version.String())
		os.Exit(0)
	}
	if flag.NArg() == 0 && !isFlagPassed("midi-input") {
		flag.Usage()
		os.Exit(0)
	}
	cfg, err := audition.LoadConfig(*configFile)
	if err != nil {
		log.Fatal(err)
	}
	if *volume >= 0 {
		cfg.MasterGain = *volume
	}
	var notes audition.Timeline
	if flag.NArg() > 0 {
		if notes, err = cmd.LoadTimeline(flag.Arg(0), *target); err != nil {
			log.Fatal(err)
		}
	}
	e, err := engine.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	audioContext, err := oto.NewContext(cfg.SampleRate, cfg.BlockSize)
	if err != nil {
		log.Fatal(err)
	}
	defer audioContext.Close()
	if err := e.Start(audioContext); err != nil {
		log.Fatal(err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go cmd.LogAlerts(ctx, e.Alerts())

	keyboardDone := make(chan struct{})
	if isFlagPassed("midi-input") {
		in, err := cmd.OpenMIDIInput(*midiInput)
		if err != nil {
			log.Printf("failed to open MIDI input '%s': %v", *midiInput, err)
		} else {
			log.Printf("listening to MIDI input %v", in)
		}
		defer in.Close()
		kb := scheduler.NewKeyboard(e, nil)
		go func() {
			midiin.Forward(ctx, in.Events(), kb, func(err error) {
				if !errors.Is(err, engine.ErrNoVoice) {
					log.Print(err)
				}
			})
			close(keyboardDone)
		}()
	} else {
		close(keyboardDone)
	}

	sched := scheduler.New(e, scheduler.WithTimeline(notes))
	length := notes.Length()
	clock := time.NewTicker(*tick)
	defer clock.Stop()
	begin := time.Now()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case now := <-clock.C:
			t := *start + now.Sub(begin).Seconds()
			if err := sched.Update(t); err != nil {
				log.Print(err)
			}
			if len(notes) > 0 && t >= length && !isFlagPassed("midi-input") {
				break loop
			}
		}
	}
	stop()
	<-keyboardDone
	if err := sched.StopAll(); err != nil {
		log.Print(err)
	}
	// let the release tails ring out before closing the device
	time.Sleep(time.Duration(cfg.ReleaseSeconds*float64(time.Second)) + 2*time.Duration(cfg.BlockSize)*time.Second/time.Duration(cfg.SampleRate))
	e.Stop()
	cmd.FlushAlerts(e.Alerts(), 10*time.Millisecond)
}

func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Auditions the notes of a .mid, .json or .yml file through sine voices.\nUsage: %s [flags] [file]\n", os.Args[0])
	flag.PrintDefaults()
}
