package audio

import "sync/atomic"

const blockSize = 16 // this gives about 0.35ms accuracy for sequenced events

const numVoices = 12

const allNotesOff = 123

type voiceState int

const (
	stateFree voiceState = iota
	stateActive
	stateReleased
)

// Voice renders a single note of an Instrument.
type Voice interface {
	Prepare(sampleRate float64, maxFrames int)
	NoteOn(key, velocity int)
	NoteOff(key int)
	Process(buf []float64)
	State() voiceState
	Notify(key int)
	Reset()
}

// Instrument turns MIDI events on its input into audio by distributing notes
// over a fixed pool of voices. Events are applied with blockSize accuracy.
type Instrument struct {
	Base
	*Props
	voices  []Voice
	age     []uint64
	clock   uint64
	buf     []float64
	level   *atomic.Value
	onEvent func(*Event)
}

const propLevel = "level"

func NewInstrument(name string, props *Props, voices []Voice) *Instrument {
	i := &Instrument{
		Base:   NewBase(name, Processor, MidiIn("midi"), AudioOut("out", 2)),
		Props:  props,
		voices: voices,
		age:    make([]uint64, len(voices)),
		level:  props.MustRegister(propLevel, setLevel, -6.0),
	}
	i.onEvent = i.handle
	return i
}

func (i *Instrument) TransformsChannels() bool { return true }

func (i *Instrument) Prepare(sampleRate float64, maxFrames int) error {
	i.buf = make([]float64, maxFrames)
	for _, v := range i.voices {
		v.Prepare(sampleRate, maxFrames)
	}
	return nil
}

func (i *Instrument) Release() { i.buf = nil }

func (i *Instrument) Reset() {
	for _, v := range i.voices {
		v.Reset()
	}
}

func (i *Instrument) Process(ctx *Context, in, out []Signal) {
	events := in[0].Events
	events.Rewind()
	frames := ctx.Frames
	for n := 0; n < frames; n += blockSize {
		end := min(n+blockSize, frames)
		events.Until(end, i.onEvent)
		for _, voice := range i.voices {
			if voice.State() == stateFree {
				continue
			}
			voice.Process(i.buf[n:end])
		}
	}
	gain := DBToGain(loadFloat(i.level))
	left, right := out[0].Audio.Channel(0), out[0].Audio.Channel(1)
	for n := 0; n < frames; n++ {
		sample := gain * i.buf[n]
		left[n] = sample
		right[n] = sample
		i.buf[n] = 0
	}
}

func (i *Instrument) handle(ev *Event) {
	var ch, key, vel, cc, val uint8
	msg := ev.Message()
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		for _, voice := range i.voices {
			voice.Notify(int(key))
		}
		v := i.allocate()
		i.voices[v].NoteOn(int(key), int(vel))
	case msg.GetNoteEnd(&ch, &key):
		for _, voice := range i.voices {
			voice.NoteOff(int(key))
		}
	case msg.GetControlChange(&ch, &cc, &val):
		if cc == allNotesOff {
			for _, voice := range i.voices {
				voice.Reset()
			}
		}
	}
}

// allocate returns a free voice, or steals the one that started first.
func (i *Instrument) allocate() int {
	i.clock++
	oldest := 0
	for n, voice := range i.voices {
		if voice.State() == stateFree {
			i.age[n] = i.clock
			return n
		}
		if i.age[n] < i.age[oldest] {
			oldest = n
		}
	}
	i.voices[oldest].Reset()
	i.age[oldest] = i.clock
	return oldest
}
