package audio

import (
	"math"
	"sync/atomic"
)

const (
	propCutoff     = "cutoff"
	propEnvAttack  = "env.attack"
	propEnvDecay   = "env.decay"
	propEnvSustain = "env.sustain"
	propEnvRelease = "env.release"
	propOsc1Wave   = "osc1.wave"
	propOsc2Wave   = "osc2.wave"
)

var setWaveform = OneOf("sine", "saw", "square", "off")

// NewSynth returns a two-oscillator subtractive instrument.
func NewSynth(name string) *Instrument {
	props := NewProps()
	var (
		cutoff     = props.MustRegister(propCutoff, FloatRange(20, 20_000), 1000.0)
		envAttack  = props.MustRegister(propEnvAttack, setEnvParam, 0.01)
		envDecay   = props.MustRegister(propEnvDecay, setEnvParam, 0.5)
		envSustain = props.MustRegister(propEnvSustain, FloatRange(0, 1), 1.0)
		envRelease = props.MustRegister(propEnvRelease, setEnvParam, 0.1)
		osc1Wave   = props.MustRegister(propOsc1Wave, setWaveform, "saw")
		osc2Wave   = props.MustRegister(propOsc2Wave, setWaveform, "square")
	)
	voices := make([]Voice, numVoices)
	for n := range voices {
		voices[n] = &synthVoice{
			cutoff:     cutoff,
			envAttack:  envAttack,
			envDecay:   envDecay,
			envSustain: envSustain,
			envRelease: envRelease,
			osc1Wave:   osc1Wave,
			osc2Wave:   osc2Wave,
			state:      stateFree,
		}
	}
	return NewInstrument(name, props, voices)
}

type synthVoice struct {
	buf        []float64
	cutoff     *atomic.Value
	envAttack  *atomic.Value
	envDecay   *atomic.Value
	envSustain *atomic.Value
	envRelease *atomic.Value
	osc1Wave   *atomic.Value
	osc2Wave   *atomic.Value
	osc1       osc
	osc2       osc
	filter     filter
	env        envelope
	sampleRate float64
	state      voiceState
	pitch      int
	velocity   float64
}

func (v *synthVoice) Prepare(sampleRate float64, maxFrames int) {
	v.sampleRate = sampleRate
	v.env.sampleRate = sampleRate
	v.filter.sampleRate = sampleRate
	v.buf = make([]float64, maxFrames)
}

func (v *synthVoice) NoteOn(pitch, velocity int) {
	freq := midiToFreq(pitch)
	v.pitch = pitch
	v.velocity = float64(velocity) / 127
	v.env.attack = loadFloat(v.envAttack)
	v.env.decay = loadFloat(v.envDecay)
	v.env.sustain = loadFloat(v.envSustain)
	v.env.release = loadFloat(v.envRelease)
	v.env.startAttack()
	v.state = stateActive

	phaseDelta := freq * twoPi / v.sampleRate
	v.osc1.setWaveform(v.osc1Wave.Load().(string))
	v.osc1.phaseDelta = phaseDelta
	v.osc2.setWaveform(v.osc2Wave.Load().(string))
	v.osc2.phaseDelta = phaseDelta
}

func (v *synthVoice) NoteOff(pitch int) {
	if v.state == stateActive && v.pitch == pitch {
		v.state = stateReleased
		v.env.startRelease()
	}
}

func (v *synthVoice) Reset() {
	v.pitch = 0
	v.filter.y1 = 0.
	v.filter.y2 = 0.
	v.osc1.phase = 0
	v.osc1.phaseDelta = 0
	v.osc2.phase = 0
	v.osc2.phaseDelta = 0
	v.env.reset()
	v.state = stateFree
}

func (v *synthVoice) Process(buf []float64) {
	v.filter.calculateCoefficients(loadFloat(v.cutoff), 1)
	tmp := v.buf[0:len(buf)]
	v.osc1.process(tmp)
	v.osc2.process(tmp)
	v.filter.process(tmp)
	v.env.process(tmp)
	for n := range tmp {
		buf[n] += 0.1 * v.velocity * tmp[n]
		tmp[n] = 0
	}
	if v.env.done() {
		v.Reset()
	}
}

// Notify cuts a voice that is still sounding the retriggered pitch.
func (v *synthVoice) Notify(pitch int) {
	if v.pitch == pitch && v.state != stateFree {
		v.env.release = 0.001
		v.env.startRelease()
		v.state = stateReleased
	}
}

func (v *synthVoice) State() voiceState { return v.state }

const twoPi = 2 * math.Pi

type waveform int

const (
	waveOff waveform = iota
	waveSine
	waveSaw
	waveSquare
)

func parseWaveform(s string) waveform {
	switch s {
	case "sine":
		return waveSine
	case "saw":
		return waveSaw
	case "square":
		return waveSquare
	}
	return waveOff
}

type osc struct {
	wave       waveform
	phase      float64
	phaseDelta float64
}

func (o *osc) setWaveform(s string) { o.wave = parseWaveform(s) }

func (o *osc) sample() float64 {
	switch o.wave {
	case waveSine:
		return math.Sin(o.phase)
	case waveSaw:
		return (2.0 * o.phase / twoPi) - 1.
	case waveSquare:
		if o.phase <= math.Pi {
			return 1.0
		}
		return -1.0
	}
	return 0
}

// process adds the oscillator output to buf.
func (o *osc) process(buf []float64) {
	for n := range buf {
		buf[n] += o.sample()
		o.phase += o.phaseDelta
		if o.phase >= twoPi {
			o.phase -= twoPi
		}
	}
}

type filter struct {
	sampleRate float64
	b0, b1, b2 float64
	a1, a2     float64

	// state
	y1, y2 float64
}

// Lowpass filter based on https://www.w3.org/2011/audio/audio-eq-cookbook.html
func (f *filter) process(buf []float64) {
	for n := range buf {
		in := buf[n]
		out := f.b0*in + f.y1
		buf[n] = out
		f.y1 = f.b1*in - f.a1*out + f.y2
		f.y2 = f.b2*in - f.a2*out
	}
}

func (f *filter) calculateCoefficients(freq, q float64) {
	freq = math.Min(freq, 0.49*f.sampleRate)
	omega := 2 * math.Pi * freq / f.sampleRate
	cos := math.Cos(omega)
	sin := math.Sin(omega)

	alpha := sin / (2. * q)

	b0 := (1 - cos) / 2
	b1 := 1 - cos
	b2 := b0
	a0 := 1 + alpha
	a1 := -2 * cos
	a2 := 1 - alpha

	f.b0 = b0 / a0
	f.b1 = b1 / a0
	f.b2 = b2 / a0
	f.a1 = a1 / a0
	f.a2 = a2 / a0
}

func midiToFreq(note int) float64 {
	return math.Pow(2, float64(note-69)/12.0) * 440
}
