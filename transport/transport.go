// Package transport keeps the authoritative playhead: sample position,
// tempo, time signature, loop region and play state.
package transport

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/mrdg/daw/audio"
)

// Pulses per quarter note
const PPQN = 960

const (
	MinTempo = 20.0
	MaxTempo = 999.0
)

type State int32

const (
	Stopped State = iota
	Playing
	Paused
	Recording
)

var stateNames = [...]string{"stopped", "playing", "paused", "recording"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Rolling reports whether the playhead advances in this state.
func (s State) Rolling() bool { return s == Playing || s == Recording }

// Loop is a region [Start, End) in samples.
type Loop struct {
	Start   int64 `json:"start"`
	End     int64 `json:"end"`
	Enabled bool  `json:"enabled"`
}

func (l Loop) Length() int64 { return l.End - l.Start }

func (l Loop) Contains(pos int64) bool { return pos >= l.Start && pos < l.End }

// Transport is shared between the control goroutines and the audio
// callback. Every field is accessed atomically; the loop region is replaced
// as a whole.
type Transport struct {
	position   atomic.Int64
	state      atomic.Int32
	tempo      atomic.Uint64
	timeSig    atomic.Uint64
	sampleRate atomic.Uint64
	loop       atomic.Pointer[Loop]
	wraps      atomic.Uint64
}

func New(sampleRate float64) *Transport {
	t := &Transport{}
	t.sampleRate.Store(math.Float64bits(sampleRate))
	t.tempo.Store(math.Float64bits(120))
	t.timeSig.Store(packSig(audio.TimeSignature{Numerator: 4, Denominator: 4}))
	t.loop.Store(&Loop{})
	return t
}

// Advance moves the playhead forward by frames and reports whether it
// wrapped around the loop end. Only the audio callback calls Advance. A
// position set by the control side while the buffer was rendering wins over
// the advance.
func (t *Transport) Advance(frames int) bool {
	before := t.position.Load()
	after, wrapped := advance(before, frames, *t.loop.Load())
	if t.position.CompareAndSwap(before, after) && wrapped {
		t.wraps.Add(1)
	}
	return wrapped
}

func advance(pos int64, frames int, l Loop) (int64, bool) {
	after := pos + int64(frames)
	if !l.Enabled || l.End <= pos || after < l.End {
		return after, false
	}
	return l.Start + (after-l.End)%l.Length(), true
}

// Segment is a contiguous stretch of timeline covered by part of a buffer.
type Segment struct {
	Start  int64 // timeline position of the first frame
	Offset int   // frame offset within the buffer
	Frames int
}

// Segments splits a buffer of frames starting at pos into the contiguous
// timeline ranges it covers, appending to dst. Without a loop wrap this is
// a single segment. It does not allocate when dst has room for frames+1
// segments.
func Segments(dst []Segment, pos int64, frames int, l Loop) []Segment {
	off := 0
	for frames > 0 {
		if !l.Enabled || l.End <= pos {
			return append(dst, Segment{Start: pos, Offset: off, Frames: frames})
		}
		n := int(min(int64(frames), l.End-pos))
		dst = append(dst, Segment{Start: pos, Offset: off, Frames: n})
		pos += int64(n)
		off += n
		frames -= n
		if pos >= l.End {
			pos = l.Start
		}
	}
	return dst
}

func (t *Transport) Play()   { t.state.Store(int32(Playing)) }
func (t *Transport) Stop()   { t.state.Store(int32(Stopped)) }
func (t *Transport) Pause()  { t.state.Store(int32(Paused)) }
func (t *Transport) Record() { t.state.Store(int32(Recording)) }

// ReturnToZero moves the playhead to the start without changing the state.
func (t *Transport) ReturnToZero() { t.position.Store(0) }

func (t *Transport) State() State { return State(t.state.Load()) }

func (t *Transport) Position() int64 { return t.position.Load() }

func (t *Transport) SetPosition(samples int64) error {
	if samples < 0 {
		return fmt.Errorf("%w: negative position %d", audio.ErrInvalidArgument, samples)
	}
	t.position.Store(samples)
	return nil
}

func (t *Transport) SetPositionSeconds(s float64) error {
	return t.SetPosition(int64(s * t.SampleRate()))
}

func (t *Transport) SetPositionBeats(beats float64) error {
	return t.SetPosition(t.BeatsToSamples(beats))
}

func (t *Transport) Tempo() float64 { return math.Float64frombits(t.tempo.Load()) }

// SetTempo clamps bpm to [MinTempo, MaxTempo] and returns the value stored.
func (t *Transport) SetTempo(bpm float64) float64 {
	if math.IsNaN(bpm) {
		return t.Tempo()
	}
	bpm = math.Max(MinTempo, math.Min(MaxTempo, bpm))
	t.tempo.Store(math.Float64bits(bpm))
	return bpm
}

func (t *Transport) TimeSignature() audio.TimeSignature {
	return unpackSig(t.timeSig.Load())
}

func (t *Transport) SetTimeSignature(sig audio.TimeSignature) error {
	if err := ValidateTimeSignature(sig); err != nil {
		return err
	}
	t.timeSig.Store(packSig(sig))
	return nil
}

// ValidateTimeSignature accepts numerators 1-32 and power of two
// denominators up to 32.
func ValidateTimeSignature(sig audio.TimeSignature) error {
	if err := audio.CheckRange("numerator", float64(sig.Numerator), 1, 32); err != nil {
		return err
	}
	switch sig.Denominator {
	case 1, 2, 4, 8, 16, 32:
		return nil
	}
	return fmt.Errorf("%w: denominator must be a power of 2 up to 32: %d", audio.ErrInvalidArgument, sig.Denominator)
}

func packSig(sig audio.TimeSignature) uint64 {
	return uint64(sig.Numerator)<<32 | uint64(uint32(sig.Denominator))
}

func unpackSig(v uint64) audio.TimeSignature {
	return audio.TimeSignature{Numerator: int(v >> 32), Denominator: int(uint32(v))}
}

func (t *Transport) Loop() Loop { return *t.loop.Load() }

// SetLoop replaces the loop region. An enabled loop needs end > start.
func (t *Transport) SetLoop(start, end int64, enabled bool) error {
	if start < 0 || end < 0 {
		return fmt.Errorf("%w: negative loop bounds %d - %d", audio.ErrInvalidArgument, start, end)
	}
	if enabled && end <= start {
		return fmt.Errorf("%w: loop end %d must be after start %d", audio.ErrInvalidArgument, end, start)
	}
	t.loop.Store(&Loop{Start: start, End: end, Enabled: enabled})
	return nil
}

// SetLooping toggles the current loop region.
func (t *Transport) SetLooping(enabled bool) error {
	l := t.Loop()
	return t.SetLoop(l.Start, l.End, enabled)
}

// Wraps counts loop wraps since creation.
func (t *Transport) Wraps() uint64 { return t.wraps.Load() }

func (t *Transport) SampleRate() float64 { return math.Float64frombits(t.sampleRate.Load()) }

func (t *Transport) SetSampleRate(sr float64) error {
	if sr <= 0 {
		return fmt.Errorf("%w: sample rate %v", audio.ErrInvalidArgument, sr)
	}
	t.sampleRate.Store(math.Float64bits(sr))
	return nil
}
