package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/mrdg/daw/engine"
)

func main() {
	var (
		rate        = flag.Float64("rate", 48000, "sample rate")
		bufferSize  = flag.Int("buffer", 256, "frames per callback")
		inputs      = flag.Int("in", 0, "input channels")
		outputs     = flag.Int("out", 2, "output channels")
		interleaved = flag.Bool("interleaved", false, "open an interleaved stream")
		bpm         = flag.Float64("bpm", 120, "")
		beat        = flag.String("beat", "4/4", "")
		run         = flag.String("run", "", "file with commands to run at startup")
		history     = flag.String("history", "", "readline history file")
		offline     = flag.Bool("offline", false, "don't open an audio device")
		save        = flag.String("save", "", "write a session snapshot here on exit")
	)
	flag.Parse()

	timeSig, err := parseTimeSignature(*beat)
	if err != nil {
		log.Fatal(err)
	}

	var script []string
	if *run != "" {
		f, err := os.Open(*run)
		if err != nil {
			log.Fatal(err)
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			script = append(script, strings.TrimSpace(scanner.Text()))
		}
		if err := scanner.Err(); err != nil {
			log.Fatal(err)
		}
		f.Close()
	}

	cfg := engine.DefaultConfig
	cfg.SampleRate = *rate
	cfg.BufferSize = *bufferSize
	cfg.InputChannels = *inputs
	cfg.OutputChannels = *outputs
	cfg.Interleaved = *interleaved

	e, err := engine.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	e.SetTempo(*bpm)
	if err := e.SetTimeSignature(timeSig); err != nil {
		log.Fatal(err)
	}

	if *offline {
		if err := e.Prepare(); err != nil {
			log.Fatal(err)
		}
	} else if err := e.StartDevice(); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	// Monitor logs failures as they arrive
	go e.Monitor(ctx, nil)

	env := &env{engine: e, out: os.Stdout}
	for _, line := range script {
		if line == "" {
			continue
		}
		if _, err := env.eval(line); err != nil {
			log.Fatal(err)
		}
	}

	err = repl(env, *history)
	cancel()
	if *save != "" {
		if err := writeSnapshot(e, *save); err != nil {
			log.Print(err)
		}
	}
	if cerr := e.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
