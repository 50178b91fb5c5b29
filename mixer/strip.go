package mixer

import (
	"fmt"
	"math"

	"github.com/mrdg/daw/audio"
)

// Strip is the graph node for a channel. Input 0 sums everything routed to
// the channel; output 0 is the main stereo out and output 1+n carries send
// slot n.
type Strip struct {
	audio.Base
	ch    *Channel
	mixer *Mixer
}

func NewStrip(m *Mixer, ch *Channel) *Strip {
	ports := []audio.Port{audio.SumIn("in", 2), audio.AudioOut("out", 2)}
	for i := 0; i < MaxSends; i++ {
		ports = append(ports, audio.AudioOut(fmt.Sprintf("send%d", i+1), 2))
	}
	return &Strip{
		Base:  audio.NewBase(ch.name, audio.Mixer, ports...),
		ch:    ch,
		mixer: m,
	}
}

func (s *Strip) Channel() *Channel { return s.ch }

// SendPort is the output port index of a send slot.
func SendPort(slot int) int { return 1 + slot }

func (s *Strip) Process(ctx *audio.Context, in, out []audio.Signal) {
	src, main := in[0].Audio, out[0].Audio
	soloed := s.mixer.AnySoloed()
	silenced := s.ch.Silenced(soloed)

	for i := range s.ch.sends {
		if s.ch.sends[i].preFader.Load() {
			s.send(i, src, out[SendPort(i)].Audio, silenced)
		}
	}
	main.CopyFrom(src)
	s.ch.Process(main, soloed)
	for i := range s.ch.sends {
		if !s.ch.sends[i].preFader.Load() {
			s.send(i, main, out[SendPort(i)].Audio, silenced)
		}
	}
}

func (s *Strip) send(slot int, from, to *audio.Buffer, silenced bool) {
	snd := &s.ch.sends[slot]
	if silenced || !snd.used.Load() || !snd.enabled.Load() {
		to.Clear()
		return
	}
	to.CopyFrom(from)
	to.Scale(audio.DBToGain(math.Float64frombits(snd.level.Load())))
}
