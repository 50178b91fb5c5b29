// Package audio defines the node contract shared by everything that runs on
// the audio callback, the buffers nodes read and write, and a set of
// reference nodes.
package audio

import (
	"fmt"
	"sync/atomic"
)

type TimeSignature struct {
	Numerator   int
	Denominator int
}

func (t TimeSignature) String() string {
	return fmt.Sprintf("%d/%d", t.Numerator, t.Denominator)
}

// Context describes the buffer being rendered. Nodes read timing from here
// and never from the transport.
type Context struct {
	SampleRate float64
	Frames     int
	Position   int64 // first sample of this buffer
	Tempo      float64
	TimeSig    TimeSignature

	LoopStart int64
	LoopEnd   int64

	Playing   bool
	Recording bool
	Looping   bool
}

type Info struct {
	Name     string
	Category Category
}

// Flags are the per-node switches that can be flipped from any goroutine.
type Flags struct {
	bypassed atomic.Bool
	muted    atomic.Bool
}

func (f *Flags) Bypassed() bool     { return f.bypassed.Load() }
func (f *Flags) SetBypassed(v bool) { f.bypassed.Store(v) }
func (f *Flags) Muted() bool        { return f.muted.Load() }
func (f *Flags) SetMuted(v bool)    { f.muted.Store(v) }

// Signal is the buffer attached to one port for the current call. Audio is
// set for audio, control and sidechain ports; Events for midi ports.
type Signal struct {
	Audio  *Buffer
	Events *Events
}

// Node is a unit of processing in the graph.
//
// Prepare and Release are called from the control goroutine and may
// allocate. Process runs on the audio callback: it must not allocate, block,
// take locks or panic. Its in and out slices are indexed by input and output
// port number and sized to ctx.Frames. Reset clears transient state from
// either side without allocating.
type Node interface {
	Info() Info
	Ports() []Port
	Flags() *Flags
	Prepare(sampleRate float64, maxFrames int) error
	Process(ctx *Context, in, out []Signal)
	Release()
	Reset()
}

// ChannelTransformer is implemented by processors whose audio outputs do not
// mirror the channel counts of their inputs.
type ChannelTransformer interface {
	TransformsChannels() bool
}

// Base carries the bookkeeping every node needs. Embed it and override the
// lifecycle methods that matter.
type Base struct {
	info  Info
	ports []Port
	flags Flags
}

func NewBase(name string, category Category, ports ...Port) Base {
	return Base{info: Info{Name: name, Category: category}, ports: ports}
}

func (b *Base) Info() Info                              { return b.info }
func (b *Base) Ports() []Port                           { return b.ports }
func (b *Base) Flags() *Flags                           { return &b.flags }
func (b *Base) Prepare(sampleRate float64, n int) error { return nil }
func (b *Base) Release()                                {}
func (b *Base) Reset()                                  {}

// Validate checks that a node's ports fit its category.
func Validate(n Node) error {
	if n == nil {
		return fmt.Errorf("%w: nil node", ErrInvalidArgument)
	}
	info := n.Info()
	in, out := Split(n.Ports())
	for _, p := range n.Ports() {
		if p.Kind.Signal() && p.Channels < 1 {
			return fmt.Errorf("%w: %s: port %s has no channels", ErrInvalidArgument, info.Name, p.Name)
		}
	}
	audioIn, audioOut := countAudio(in), countAudio(out)
	switch info.Category {
	case Source:
		if audioIn != 0 || audioOut == 0 {
			return fmt.Errorf("%w: %s: a source needs audio outputs and no audio inputs", ErrInvalidArgument, info.Name)
		}
	case Sink:
		if audioIn == 0 || audioOut != 0 {
			return fmt.Errorf("%w: %s: a sink needs audio inputs and no audio outputs", ErrInvalidArgument, info.Name)
		}
	case Processor:
		if t, ok := n.(ChannelTransformer); ok && t.TransformsChannels() {
			break
		}
		ins, outs := audioPorts(in), audioPorts(out)
		for i := 0; i < len(ins) && i < len(outs); i++ {
			if ins[i].Channels != outs[i].Channels {
				return fmt.Errorf("%w: %s: port %s has %d channels but %s has %d", ErrInvalidArgument,
					info.Name, ins[i].Name, ins[i].Channels, outs[i].Name, outs[i].Channels)
			}
		}
	}
	return nil
}

func countAudio(ports []Port) int {
	var n int
	for _, p := range ports {
		if p.Kind == KindAudio {
			n++
		}
	}
	return n
}

func audioPorts(ports []Port) []Port {
	var out []Port
	for _, p := range ports {
		if p.Kind == KindAudio {
			out = append(out, p)
		}
	}
	return out
}
