package timeline

import (
	"fmt"
	"math"

	"github.com/mrdg/daw/audio"
	"github.com/mrdg/daw/transport"
)

const (
	trackOut  = 0
	trackMidi = 1
)

// TrackNode is the graph source for one track. It renders the track's
// audio clips to a stereo output and its midi clips to a midi output.
type TrackNode struct {
	audio.Base
	tl    *Timeline
	track TrackID

	// Reader overrides the reader chosen per clip when set.
	Reader Reader

	segs     []transport.Segment
	scratch  []float64
	active   [16][128]bool
	sounding int
}

func NewTrackNode(tl *Timeline, track TrackID) *TrackNode {
	return &TrackNode{
		Base:  audio.NewBase(fmt.Sprintf("track-%d", track), audio.Source, audio.AudioOut("out", 2), audio.MidiOut("midi")),
		tl:    tl,
		track: track,
	}
}

func (n *TrackNode) Track() TrackID { return n.track }

func (n *TrackNode) Prepare(sampleRate float64, maxFrames int) error {
	n.segs = make([]transport.Segment, 0, maxFrames+1)
	n.scratch = make([]float64, maxFrames)
	return nil
}

func (n *TrackNode) Reset() {
	n.active = [16][128]bool{}
	n.sounding = 0
}

func (n *TrackNode) Process(ctx *audio.Context, in, out []audio.Signal) {
	buf, events := out[trackOut].Audio, out[trackMidi].Events
	buf.Clear()
	l := n.tl.current.Load().tracks[n.track]
	if !ctx.Playing || l == nil || !l.audible {
		n.silence(events, 0)
		return
	}
	loop := transport.Loop{Start: ctx.LoopStart, End: ctx.LoopEnd, Enabled: ctx.Looping}
	n.segs = transport.Segments(n.segs[:0], ctx.Position, ctx.Frames, loop)
	for i, seg := range n.segs {
		if i > 0 {
			// jumped back to the loop start
			n.silence(events, seg.Offset)
		}
		for j := range l.audio {
			c := &l.audio[j]
			if c.Start >= seg.Start+int64(seg.Frames) {
				break
			}
			n.renderAudio(buf, c, seg)
		}
		for j := range l.midi {
			c := &l.midi[j]
			if c.Start >= seg.Start+int64(seg.Frames) {
				break
			}
			n.renderMidi(ctx, events, c, seg)
		}
	}
}

// renderAudio adds the part of clip c inside seg to buf.
func (n *TrackNode) renderAudio(buf *audio.Buffer, c *AudioClip, seg transport.Segment) {
	segEnd := seg.Start + int64(seg.Frames)
	if c.Muted || c.Stretch <= 0 || !c.Overlaps(seg.Start, segEnd) {
		return
	}
	from, to := max(c.Start, seg.Start), min(c.End(), segEnd)
	frames := int(to - from)
	t0 := from - c.Start // frame within the clip
	off := seg.Offset + int(from-seg.Start)
	rate := c.Rate()
	r := n.Reader
	if r == nil {
		r = ReaderFor(c)
	}
	gain := audio.DBToGain(c.GainDB)
	pos := float64(c.SourceOffset) + float64(t0)*rate
	tmp := n.scratch[:frames]
	for ch := 0; ch < buf.Channels(); ch++ {
		src := c.Sample.Data[ch%len(c.Sample.Data)]
		r.Read(tmp, src, pos, rate)
		dst := buf.Channel(ch)[off : off+frames]
		for i := range tmp {
			dst[i] += tmp[i] * c.Fade(t0+int64(i)) * gain
		}
	}
}

// renderMidi emits the note starts and ends of clip c that fall in seg.
// Notes are cut at the clip end. A muted clip starts no notes but still
// ends the ones it started.
func (n *TrackNode) renderMidi(ctx *audio.Context, events *audio.Events, c *MidiClip, seg transport.Segment) {
	segEnd := seg.Start + int64(seg.Frames)
	if c.Start >= segEnd || c.End() < seg.Start {
		return
	}
	spt := transport.SamplesPerTick(ctx.Tempo, ctx.SampleRate)
	offset := func(pos int64) int { return seg.Offset + int(pos-seg.Start) }
	for i := range c.Notes {
		note := &c.Notes[i]
		on := c.Start + int64(math.Round(float64(note.Start)*spt))
		off := min(c.Start+int64(math.Round(float64(note.Start+note.Length)*spt)), c.End())
		if on >= c.End() {
			continue
		}
		if off >= seg.Start && off < segEnd && n.active[note.Channel][note.Key] {
			events.Push(audio.NoteOff(offset(off), note.Channel, note.Key))
			n.active[note.Channel][note.Key] = false
			n.sounding--
		}
		if !c.Muted && on >= seg.Start && on < segEnd {
			if n.active[note.Channel][note.Key] {
				events.Push(audio.NoteOff(offset(on), note.Channel, note.Key))
				n.sounding--
			}
			events.Push(audio.NoteOn(offset(on), note.Channel, note.Key, note.Velocity))
			n.active[note.Channel][note.Key] = true
			n.sounding++
		}
	}
}

// silence ends every sounding note at offset.
func (n *TrackNode) silence(events *audio.Events, offset int) {
	if n.sounding == 0 {
		return
	}
	for ch := range n.active {
		for key, on := range n.active[ch] {
			if on {
				events.Push(audio.NoteOff(offset, uint8(ch), uint8(key)))
				n.active[ch][key] = false
			}
		}
	}
	n.sounding = 0
}
