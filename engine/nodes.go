package engine

import (
	"fmt"
	"sort"

	"github.com/mrdg/daw/audio"
)

// deviceInput is the source carrying the device's input channels into the
// graph.
type deviceInput struct {
	audio.Base
	channels int
	buf      *audio.Buffer
}

func newDeviceInput(channels int) *deviceInput {
	return &deviceInput{
		Base:     audio.NewBase("input", audio.Source, audio.AudioOut("out", channels)),
		channels: channels,
	}
}

func (d *deviceInput) Prepare(sampleRate float64, maxFrames int) error {
	d.buf = audio.NewBuffer(d.channels, maxFrames)
	return nil
}

func (d *deviceInput) Release() { d.buf = nil }

func (d *deviceInput) Process(ctx *audio.Context, in, out []audio.Signal) {
	out[0].Audio.CopyFrom(d.buf)
}

type factory func(name string, channels int) audio.Node

var factories = map[string]factory{
	"osc":      func(name string, ch int) audio.Node { return audio.NewOscillator(name, ch) },
	"const":    func(name string, ch int) audio.Node { return audio.NewConstant(name, ch, 0) },
	"gain":     func(name string, ch int) audio.Node { return audio.NewGain(name, ch) },
	"filter":   func(name string, ch int) audio.Node { return audio.NewFilter(name, ch) },
	"delay":    func(name string, ch int) audio.Node { return audio.NewDelay(name, ch) },
	"summer":   func(name string, ch int) audio.Node { return audio.NewSummer(name, ch) },
	"splitter": func(name string, ch int) audio.Node { return audio.NewFanout(name, ch, 2) },
	"capture":  func(name string, ch int) audio.Node { return audio.NewCapture(name, ch, 0) },
	"synth":    func(name string, _ int) audio.Node { return audio.NewSynth(name) },
	"sampler":  func(name string, _ int) audio.Node { return audio.NewSampler(name) },
}

// NewNode builds one of the reference nodes by kind.
func NewNode(kind, name string, channels int) (audio.Node, error) {
	f, ok := factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown node kind %q", audio.ErrInvalidArgument, kind)
	}
	if err := audio.CheckRange("channels", float64(channels), 1, 8); err != nil {
		return nil, err
	}
	return f(name, channels), nil
}

// NodeKinds lists the kinds accepted by NewNode.
func NodeKinds() []string {
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func isInstrument(kind string) bool { return kind == "synth" || kind == "sampler" }
