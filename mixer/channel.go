// Package mixer models channel strips: level, pan, mute and solo, sends to
// buses and metering.
package mixer

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-vecmath"
	"github.com/mrdg/daw/audio"
)

type ID uint32

type Type int

const (
	AudioChannel Type = iota
	InstrumentChannel
	Bus
	Master
	Return
	SendChannel
)

var typeNames = []string{"audio", "instrument", "bus", "master", "return", "send"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", int(t))
}

func (t Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func ParseType(s string) (Type, error) {
	for i, name := range typeNames {
		if name == s {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown channel type %q", audio.ErrInvalidArgument, s)
}

// routable reports whether other channels may send or output to t.
func (t Type) routable() bool { return t == Bus || t == Master || t == Return }

const (
	MinVolume = audio.MinDB
	MaxVolume = 12.0

	// MaxSends is the number of send slots on every channel.
	MaxSends = 4

	peakDecay = 0.9995
)

type Meters struct {
	PeakL float64 `json:"peak_l"`
	PeakR float64 `json:"peak_r"`
	RMSL  float64 `json:"rms_l"`
	RMSR  float64 `json:"rms_r"`
	ClipL bool    `json:"clip_l"`
	ClipR bool    `json:"clip_r"`
}

type meter struct {
	peak atomic.Uint64
	rms  atomic.Uint64
	clip atomic.Bool
	hold float64 // audio side only
}

func (m *meter) update(samples []float64, frames int) {
	m.hold *= math.Pow(peakDecay, float64(frames))
	var rms float64
	if len(samples) > 0 {
		peak := vecmath.MaxAbs(samples)
		m.hold = max(m.hold, peak)
		if peak >= 1 {
			m.clip.Store(true)
		}
		rms = math.Sqrt(vecmath.DotProduct(samples, samples) / float64(len(samples)))
	}
	m.peak.Store(math.Float64bits(m.hold))
	m.rms.Store(math.Float64bits(rms))
}

// send is one send slot. The control side writes it, the strip reads it
// each buffer.
type send struct {
	used     atomic.Bool
	enabled  atomic.Bool
	preFader atomic.Bool
	target   atomic.Uint32
	level    atomic.Uint64 // dB bits
}

type Send struct {
	Slot     int     `json:"slot"`
	Target   ID      `json:"target"`
	LevelDB  float64 `json:"level_db"`
	PreFader bool    `json:"pre_fader"`
	Enabled  bool    `json:"enabled"`
}

// Channel holds the state of one strip. Its setters are safe to call from
// any goroutine; Process belongs to the audio callback.
type Channel struct {
	id   ID
	typ  Type
	name string

	volume atomic.Uint64 // dB bits
	pan    atomic.Uint64
	muted  atomic.Bool
	soloed atomic.Bool
	armed  atomic.Bool
	output atomic.Uint32

	meters [2]meter
	sends  [MaxSends]send
}

func NewChannel(id ID, typ Type, name string) *Channel {
	return &Channel{id: id, typ: typ, name: name}
}

func (c *Channel) ID() ID       { return c.id }
func (c *Channel) Type() Type   { return c.typ }
func (c *Channel) Name() string { return c.name }

func (c *Channel) Volume() float64 { return math.Float64frombits(c.volume.Load()) }

// SetVolume sets the level in dB within [MinVolume, MaxVolume].
func (c *Channel) SetVolume(db float64) error {
	if err := audio.CheckRange("volume", db, MinVolume, MaxVolume); err != nil {
		return err
	}
	c.volume.Store(math.Float64bits(db))
	return nil
}

func (c *Channel) Pan() float64 { return math.Float64frombits(c.pan.Load()) }

func (c *Channel) SetPan(pan float64) error {
	if err := audio.CheckRange("pan", pan, -1, 1); err != nil {
		return err
	}
	c.pan.Store(math.Float64bits(pan))
	return nil
}

func (c *Channel) Muted() bool      { return c.muted.Load() }
func (c *Channel) Soloed() bool     { return c.soloed.Load() }
func (c *Channel) RecordArmed() bool { return c.armed.Load() }
func (c *Channel) Output() ID       { return ID(c.output.Load()) }

func (c *Channel) SetMuted(v bool)       { c.muted.Store(v) }
func (c *Channel) SetRecordArmed(v bool) { c.armed.Store(v) }

// Silenced reports whether Process would zero the channel.
func (c *Channel) Silenced(anySoloed bool) bool {
	return c.muted.Load() || (anySoloed && !c.soloed.Load() && c.typ != Master)
}

// Gains returns the left and right factors for the current volume and pan.
func (c *Channel) Gains() (l, r float64) {
	g := audio.DBToGain(c.Volume())
	p := (c.Pan() + 1) / 2
	return g * math.Cos(p*math.Pi/2), g * math.Sin(p*math.Pi/2)
}

// Process applies mute, solo, volume and pan to buf in place and updates
// the meters. Mono buffers get volume only; channels past the second
// follow the right side.
func (c *Channel) Process(buf *audio.Buffer, anySoloed bool) {
	if c.Silenced(anySoloed) {
		buf.Clear()
	} else if buf.Channels() == 1 {
		buf.Scale(audio.DBToGain(c.Volume()))
	} else {
		l, r := c.Gains()
		buf.ScaleChannel(0, l)
		for ch := 1; ch < buf.Channels(); ch++ {
			buf.ScaleChannel(ch, r)
		}
	}
	c.meters[0].update(buf.Channel(0), buf.Frames())
	c.meters[1].update(buf.Channel(min(1, buf.Channels()-1)), buf.Frames())
}

func (c *Channel) Meters() Meters {
	return Meters{
		PeakL: math.Float64frombits(c.meters[0].peak.Load()),
		PeakR: math.Float64frombits(c.meters[1].peak.Load()),
		RMSL:  math.Float64frombits(c.meters[0].rms.Load()),
		RMSR:  math.Float64frombits(c.meters[1].rms.Load()),
		ClipL: c.meters[0].clip.Load(),
		ClipR: c.meters[1].clip.Load(),
	}
}

// ResetMeters clears the latched clip indicators.
func (c *Channel) ResetMeters() {
	c.meters[0].clip.Store(false)
	c.meters[1].clip.Store(false)
}

// Sends lists the used send slots.
func (c *Channel) Sends() []Send {
	var sends []Send
	for i := range c.sends {
		s := &c.sends[i]
		if !s.used.Load() {
			continue
		}
		sends = append(sends, Send{
			Slot:     i,
			Target:   ID(s.target.Load()),
			LevelDB:  math.Float64frombits(s.level.Load()),
			PreFader: s.preFader.Load(),
			Enabled:  s.enabled.Load(),
		})
	}
	return sends
}

func (c *Channel) sendTo(target ID) int {
	for i := range c.sends {
		if s := &c.sends[i]; s.used.Load() && ID(s.target.Load()) == target {
			return i
		}
	}
	return -1
}
