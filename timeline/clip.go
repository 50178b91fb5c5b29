package timeline

import (
	"fmt"
	"math"

	"github.com/mrdg/daw/audio"
	"github.com/mrdg/daw/pool"
)

type ClipID uint32

// Clip is the part every clip shares. Start and Length are in samples.
type Clip struct {
	ID     ClipID  `json:"id"`
	Track  TrackID `json:"track"`
	Start  int64   `json:"start"`
	Length int64   `json:"length"`
	Muted  bool    `json:"muted"`
	Color  uint32  `json:"color"`
	Name   string  `json:"name"`
}

func (c *Clip) End() int64 { return c.Start + c.Length }

func (c *Clip) Overlaps(start, end int64) bool { return c.Start < end && start < c.End() }

func (c *Clip) validate() error {
	if c.Start < 0 {
		return fmt.Errorf("%w: clip start %d", audio.ErrInvalidArgument, c.Start)
	}
	if c.Length < 0 {
		return fmt.Errorf("%w: clip length %d", audio.ErrInvalidArgument, c.Length)
	}
	return nil
}

const (
	MinPitch = -48.0
	MaxPitch = 48.0
)

// AudioClip plays a region of a pooled sample.
type AudioClip struct {
	Clip
	Sample       *pool.Sample `json:"-"`
	SampleID     pool.ID      `json:"sample"`
	SourceOffset int64        `json:"source_offset"`
	GainDB       float64      `json:"gain_db"`
	FadeIn       int64        `json:"fade_in"`
	FadeOut      int64        `json:"fade_out"`
	Pitch        float64      `json:"pitch"`   // semitones
	Stretch      float64      `json:"stretch"` // 1 plays at the original length
}

// NewAudioClip returns a clip covering the whole sample.
func NewAudioClip(s *pool.Sample, start int64) AudioClip {
	return AudioClip{
		Clip:     Clip{Start: start, Length: int64(s.Frames()), Name: s.Name},
		Sample:   s,
		SampleID: s.ID,
		Stretch:  1,
	}
}

func (c *AudioClip) validate() error {
	if err := c.Clip.validate(); err != nil {
		return err
	}
	if c.Sample == nil {
		return fmt.Errorf("%w: clip has no sample", audio.ErrInvalidArgument)
	}
	if c.SourceOffset < 0 {
		return fmt.Errorf("%w: source offset %d", audio.ErrInvalidArgument, c.SourceOffset)
	}
	if c.FadeIn < 0 || c.FadeOut < 0 {
		return fmt.Errorf("%w: fades %d/%d", audio.ErrInvalidArgument, c.FadeIn, c.FadeOut)
	}
	if err := audio.CheckRange("gain", c.GainDB, audio.MinDB, 24); err != nil {
		return err
	}
	return audio.CheckRange("pitch", c.Pitch, MinPitch, MaxPitch)
}

// Rate is the number of source frames read per output frame.
func (c *AudioClip) Rate() float64 {
	if c.Stretch <= 0 {
		return 0
	}
	return math.Exp2(c.Pitch/12) / c.Stretch
}

// Fade returns the fade gain at frame t of the clip. Fades longer than the
// clip are clamped to it.
func (c *AudioClip) Fade(t int64) float64 {
	if t < 0 || t >= c.Length {
		return 0
	}
	g := 1.0
	if in := min(c.FadeIn, c.Length); in > 0 && t < in {
		g *= float64(t) / float64(in)
	}
	if out := min(c.FadeOut, c.Length); out > 0 && t >= c.Length-out {
		g *= float64(c.Length-t) / float64(out)
	}
	return g
}

// Note is a MIDI note inside a clip, positioned in ticks from the clip
// start.
type Note struct {
	Start    int64 `json:"start"`
	Length   int64 `json:"length"`
	Key      uint8 `json:"key"`
	Velocity uint8 `json:"velocity"`
	Channel  uint8 `json:"channel"`
}

type MidiClip struct {
	Clip
	Notes []Note `json:"notes"`
}

func (c *MidiClip) validate() error {
	if err := c.Clip.validate(); err != nil {
		return err
	}
	for _, n := range c.Notes {
		if n.Start < 0 || n.Length <= 0 || n.Key > 127 || n.Velocity > 127 || n.Channel > 15 {
			return fmt.Errorf("%w: bad note %+v", audio.ErrInvalidArgument, n)
		}
	}
	return nil
}
