package audio

import (
	"fmt"
	"strconv"
	"sync/atomic"
)

const PropSoundMap = "sounds.map"

const (
	numKeys   = 25
	rootPitch = 60
)

// NewSampler returns an instrument that plays one sound per key starting at
// middle C. Sounds are assigned with the PropSoundMap property.
func NewSampler(name string) *Instrument {
	props := NewProps()
	sounds := props.MustRegister(PropSoundMap, setSoundMapping, &SoundMapping{})
	var perKeyProps [numKeys]keyProps
	for n := 0; n < numKeys; n++ {
		note := strconv.Itoa(rootPitch + n)
		var kp keyProps
		kp.envAttack = props.MustRegister("env.attack."+note, setEnvParam, 0.0005)
		kp.envDecay = props.MustRegister("env.decay."+note, setEnvParam, 5.0)
		kp.level = props.MustRegister("level."+note, setLevel, 0.)
		kp.choke = props.MustRegister("choke."+note, setInt, 0)
		perKeyProps[n] = kp
	}
	voices := make([]Voice, numVoices)
	for n := range voices {
		voices[n] = &samplerVoice{
			state:    stateFree,
			sounds:   sounds,
			keyProps: perKeyProps,
		}
	}
	return NewInstrument(name, props, voices)
}

type samplerVoice struct {
	sounds   *atomic.Value
	keyProps [numKeys]keyProps
	state    voiceState
	env      envelope
	buf      []float64
	pos      int
	pitch    int
	velocity float64
}

func (v *samplerVoice) Prepare(sampleRate float64, maxFrames int) {
	v.env.sampleRate = sampleRate
}

func (v *samplerVoice) NoteOn(pitch, velocity int) {
	if pitch < rootPitch || pitch >= rootPitch+numKeys {
		return
	}
	mapping := v.sounds.Load().(*SoundMapping)
	snd := mapping[pitch-rootPitch]
	if snd == nil || len(snd.Channels) == 0 {
		return
	}
	props := v.keyProps[pitch-rootPitch]
	v.buf = snd.Channels[0]
	v.pos = 0
	v.velocity = float64(velocity) / 127
	v.state = stateActive
	v.env.attack = loadFloat(props.envAttack)
	v.env.decay = loadFloat(props.envDecay)
	v.env.startAttack()
	v.pitch = pitch
}

// NoteOff is ignored: samples play to the end unless choked.
func (v *samplerVoice) NoteOff(pitch int) {}

func (v *samplerVoice) Notify(pitch int) {
	if v.state != stateActive {
		return
	}
	props := v.keyProps[v.pitch-rootPitch]
	if props.choke.Load().(int) == pitch {
		v.env.release = 0.001
		v.env.startRelease()
		v.state = stateReleased
	}
}

func (v *samplerVoice) Process(buf []float64) {
	level := loadFloat(v.keyProps[v.pitch-rootPitch].level)
	gain := DBToGain(level) * v.velocity

	n := len(buf)
	if nsamples := len(v.buf) - v.pos; nsamples < n {
		n = nsamples
	}
	for i := range buf[:n] {
		buf[i] += v.buf[v.pos] * v.env.value() * gain
		v.pos++
	}
	if v.pos >= len(v.buf) || v.env.done() {
		v.Reset()
	}
}

func (v *samplerVoice) Reset() {
	v.buf = nil
	v.pos = 0
	v.state = stateFree
	v.pitch = rootPitch
	v.env.reset()
}

func (v *samplerVoice) State() voiceState { return v.state }

// keyProps stores the properties for a single key.
type keyProps struct {
	envAttack *atomic.Value
	envDecay  *atomic.Value
	level     *atomic.Value
	choke     *atomic.Value
}

// Sound is immutable audio assigned to a sampler key.
type Sound struct {
	Name     string
	Channels [][]float64
}

type SoundMapping [numKeys]*Sound

// Put assigns snd to a MIDI key. Mappings are replaced as a whole through
// Props.Set; never modify one that has been set.
func (m *SoundMapping) Put(key int, snd *Sound) error {
	if key < rootPitch || key >= rootPitch+numKeys {
		return &RangeError{Name: "key", Min: rootPitch, Max: rootPitch + numKeys - 1, Value: float64(key)}
	}
	m[key-rootPitch] = snd
	return nil
}

func setSoundMapping(key string, v interface{}, dest *atomic.Value) error {
	m, ok := v.(*SoundMapping)
	if !ok {
		return fmt.Errorf("%w: property value is not a sound mapping: %v", ErrInvalidArgument, v)
	}
	dest.Store(m)
	return nil
}
