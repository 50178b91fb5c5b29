package transport

import (
	"fmt"
	"math"

	"github.com/mrdg/daw/audio"
)

// Position is a musical position. Bar and beat count from 1, the tick
// counts PPQN subdivisions of the beat.
type Position struct {
	Bar  int
	Beat int
	Tick int
}

func (p Position) String() string {
	return fmt.Sprintf("%d.%d.%03d", p.Bar, p.Beat, p.Tick)
}

// Ticks converts p to a tick count from the start of the song.
func (p Position) Ticks(sig audio.TimeSignature) int64 {
	beats := int64(p.Bar-1)*int64(sig.Numerator) + int64(p.Beat-1)
	return beats*PPQN + int64(p.Tick)
}

// FromTicks converts a tick count from the start of the song to a position.
func FromTicks(ticks int64, sig audio.TimeSignature) Position {
	if ticks < 0 {
		ticks = 0
	}
	beats := ticks / PPQN
	return Position{
		Bar:  int(beats/int64(sig.Numerator)) + 1,
		Beat: int(beats%int64(sig.Numerator)) + 1,
		Tick: int(ticks % PPQN),
	}
}

func (t *Transport) Seconds() float64 {
	return float64(t.Position()) / t.SampleRate()
}

func (t *Transport) Beats() float64 {
	return t.SamplesToBeats(t.Position())
}

// Musical derives bar, beat and tick from the sample position with the
// current tempo and time signature.
func (t *Transport) Musical() Position {
	ticks := int64(math.Floor(t.Beats() * PPQN))
	return FromTicks(ticks, t.TimeSignature())
}

func (t *Transport) SetMusical(p Position) error {
	if p.Bar < 1 || p.Beat < 1 || p.Tick < 0 || p.Tick >= PPQN {
		return fmt.Errorf("%w: invalid musical position %v", audio.ErrInvalidArgument, p)
	}
	return t.SetPositionBeats(float64(p.Ticks(t.TimeSignature())) / PPQN)
}

// Tempo is given in beats per minute where a beat is a quarter note,
// regardless of the time signature. This seems to be what DAWs are doing as
// well.
func (t *Transport) SecondsToBeats(s float64) float64 { return s * t.Tempo() / 60 }

func (t *Transport) BeatsToSeconds(beats float64) float64 { return beats * 60 / t.Tempo() }

func (t *Transport) SamplesToBeats(samples int64) float64 {
	return SamplesToBeats(samples, t.Tempo(), t.SampleRate())
}

func (t *Transport) BeatsToSamples(beats float64) int64 {
	return BeatsToSamples(beats, t.Tempo(), t.SampleRate())
}

// SamplesToBeats converts with an explicit tempo and rate, for the audio
// side where both come from the process context.
func SamplesToBeats(samples int64, tempo, sampleRate float64) float64 {
	return float64(samples) / sampleRate * tempo / 60
}

func BeatsToSamples(beats, tempo, sampleRate float64) int64 {
	return int64(math.Round(beats * 60 / tempo * sampleRate))
}

// SamplesPerTick is the length of one PPQN tick.
func SamplesPerTick(tempo, sampleRate float64) float64 {
	return sampleRate * 60 / (tempo * PPQN)
}

// Snapshot is a consistent-enough copy of the transport for display and
// persistence.
type Snapshot struct {
	Position   int64               `json:"position"`
	State      string              `json:"state"`
	Tempo      float64             `json:"tempo"`
	TimeSig    audio.TimeSignature `json:"time_signature"`
	Loop       Loop                `json:"loop"`
	SampleRate float64             `json:"sample_rate"`
	Musical    string              `json:"musical"`
}

func (t *Transport) Snapshot() Snapshot {
	return Snapshot{
		Position:   t.Position(),
		State:      t.State().String(),
		Tempo:      t.Tempo(),
		TimeSig:    t.TimeSignature(),
		Loop:       t.Loop(),
		SampleRate: t.SampleRate(),
		Musical:    t.Musical().String(),
	}
}

// Context fills the timing fields of a process context for a buffer of
// frames starting at the current position.
func (t *Transport) Context(ctx *audio.Context, frames int) {
	l := t.loop.Load()
	state := t.State()
	ctx.SampleRate = t.SampleRate()
	ctx.Frames = frames
	ctx.Position = t.Position()
	ctx.Tempo = t.Tempo()
	ctx.TimeSig = t.TimeSignature()
	ctx.LoopStart = l.Start
	ctx.LoopEnd = l.End
	ctx.Looping = l.Enabled
	ctx.Playing = state.Rolling()
	ctx.Recording = state == Recording
}
