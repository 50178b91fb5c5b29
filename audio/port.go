package audio

import "fmt"

type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Input {
		return "in"
	}
	return "out"
}

// Kind is the type of signal a port carries. Connections are only allowed
// between ports of the same kind.
type Kind int

const (
	KindAudio Kind = iota
	KindControl
	KindMidi
	KindSidechain
)

var kindNames = [...]string{"audio", "control", "midi", "sidechain"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind accepts the names printed by Kind.String.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown port kind %q", ErrInvalidArgument, s)
}

// Signal reports whether ports of this kind carry sample buffers.
func (k Kind) Signal() bool { return k != KindMidi }

// Port describes one input or output of a node. The list of ports is fixed
// when the node is constructed.
type Port struct {
	Name      string
	Direction Direction
	Kind      Kind
	Channels  int

	// Summing inputs accept more than one incoming connection of their kind.
	Summing bool
}

func (p Port) String() string {
	return fmt.Sprintf("%s %s %s/%d", p.Name, p.Direction, p.Kind, p.Channels)
}

func AudioIn(name string, channels int) Port {
	return Port{Name: name, Direction: Input, Kind: KindAudio, Channels: channels}
}

func AudioOut(name string, channels int) Port {
	return Port{Name: name, Direction: Output, Kind: KindAudio, Channels: channels}
}

func MidiIn(name string) Port {
	return Port{Name: name, Direction: Input, Kind: KindMidi, Summing: true}
}

func MidiOut(name string) Port {
	return Port{Name: name, Direction: Output, Kind: KindMidi}
}

// SumIn returns an audio input that mixes every connection feeding it.
func SumIn(name string, channels int) Port {
	p := AudioIn(name, channels)
	p.Summing = true
	return p
}

// Category groups nodes by their port layout.
type Category int

const (
	Source Category = iota
	Processor
	Sink
	Mixer
	Splitter
	Utility
)

var categoryNames = [...]string{"source", "processor", "sink", "mixer", "splitter", "utility"}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Split returns the input and output ports of a port list, preserving their
// relative order. Port indexes used by connections refer to these slices.
func Split(ports []Port) (in, out []Port) {
	for _, p := range ports {
		if p.Direction == Input {
			in = append(in, p)
		} else {
			out = append(out, p)
		}
	}
	return in, out
}
