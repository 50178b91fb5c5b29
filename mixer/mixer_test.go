package mixer

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/mrdg/daw/audio"
	"github.com/mrdg/daw/graph"
)

const epsilon = 1e-9

func near(a, b float64) bool { return math.Abs(a-b) < epsilon }

func dc(frames int, v float64) *audio.Buffer {
	b := audio.NewBuffer(2, frames)
	b.Fill(v)
	return b
}

func TestVolumeFloorIsSilent(t *testing.T) {
	ch := NewChannel(2, AudioChannel, "ch")
	for _, db := range []float64{-96, MinVolume} {
		if err := ch.SetVolume(db); err != nil {
			t.Fatal(err)
		}
		buf := dc(64, 1)
		ch.Process(buf, false)
		if !buf.Silent() {
			t.Fatalf("%v dB: want silence", db)
		}
	}
	if err := ch.SetVolume(-97); !errors.Is(err, audio.ErrInvalidArgument) {
		t.Fatalf("want range error, got %v", err)
	}
	if err := ch.SetPan(1.5); !errors.Is(err, audio.ErrInvalidArgument) {
		t.Fatalf("want range error, got %v", err)
	}
}

func TestPanLaw(t *testing.T) {
	ch := NewChannel(2, AudioChannel, "ch")
	for _, pan := range []float64{-1, -0.5, 0, 0.3, 1} {
		if err := ch.SetPan(pan); err != nil {
			t.Fatal(err)
		}
		l, r := ch.Gains()
		if !near(l*l+r*r, 1) {
			t.Errorf("pan %v: power %v", pan, l*l+r*r)
		}
	}
	ch.SetPan(-1)
	if l, r := ch.Gains(); !near(l, 1) || !near(r, 0) {
		t.Fatalf("hard left: got %v %v", l, r)
	}
	ch.SetPan(0)
	if l, r := ch.Gains(); !near(l, math.Sqrt2/2) || !near(r, math.Sqrt2/2) {
		t.Fatalf("center: got %v %v", l, r)
	}
}

func TestNoClippingAddedByChannel(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	ch := NewChannel(2, AudioChannel, "ch")
	buf := audio.NewBuffer(2, 512)
	for i := 0; i < 100; i++ {
		ch.SetVolume(-rng.Float64() * 20)
		ch.SetPan(rng.Float64()*2 - 1)
		for c := 0; c < 2; c++ {
			for j := range buf.Channel(c) {
				buf.Channel(c)[j] = rng.Float64()*2 - 1
			}
		}
		ch.Process(buf, false)
		for c := 0; c < 2; c++ {
			if p := buf.Peak(c); p > 1 {
				t.Fatalf("peak %v above 1", p)
			}
		}
	}
}

func TestMeters(t *testing.T) {
	ch := NewChannel(2, AudioChannel, "ch")
	ch.SetPan(-1)
	ch.Process(dc(100, 0.5), false)
	m := ch.Meters()
	if !near(m.PeakL, 0.5) || !near(m.RMSL, 0.5) {
		t.Fatalf("left meter: %+v", m)
	}
	if m.PeakR != 0 || m.RMSR != 0 {
		t.Fatalf("right meter should be empty: %+v", m)
	}

	ch.SetMuted(true)
	ch.Process(dc(100, 0.5), false)
	m = ch.Meters()
	if want := 0.5 * math.Pow(peakDecay, 100); !near(m.PeakL, want) {
		t.Fatalf("want decayed peak %v, got %v", want, m.PeakL)
	}
	if m.RMSL != 0 {
		t.Fatalf("want no rms while muted, got %v", m.RMSL)
	}

	ch.SetMuted(false)
	ch.SetPan(0)
	ch.SetVolume(12)
	ch.Process(dc(10, 1), false)
	if m := ch.Meters(); !m.ClipL || !m.ClipR {
		t.Fatalf("want clip latched: %+v", m)
	}
	ch.SetVolume(0)
	ch.Process(dc(10, 0.1), false)
	if m := ch.Meters(); !m.ClipL {
		t.Fatal("clip should stay latched")
	}
	ch.ResetMeters()
	if m := ch.Meters(); m.ClipL || m.ClipR {
		t.Fatal("clip should be reset")
	}
}

func TestSoloSilencesOthers(t *testing.T) {
	m := New()
	c1, _ := m.AddChannel(AudioChannel, "c1")
	c2, _ := m.AddChannel(AudioChannel, "c2")
	if err := m.SetSolo(c1, true); err != nil {
		t.Fatal(err)
	}
	if !m.AnySoloed() {
		t.Fatal("want solo")
	}
	if m.Channel(c1).Silenced(true) || !m.Channel(c2).Silenced(true) {
		t.Fatal("only c2 should be silenced")
	}
	if m.Master().Silenced(true) {
		t.Fatal("master is never silenced by solo")
	}
	m.SetSolo(c1, false)
	if m.AnySoloed() {
		t.Fatal("solo should be cleared")
	}
}

// Two channels fed with DC, summed into the master strip, rendered by a graph.
func TestSoloThroughGraph(t *testing.T) {
	m := New()
	g := graph.New(graph.DefaultConfig)
	if err := g.Prepare(48000, 64); err != nil {
		t.Fatal(err)
	}
	add := func(n audio.Node) graph.NodeID {
		id, err := g.AddNode(n)
		if err != nil {
			t.Fatal(err)
		}
		return id
	}
	connect := func(src graph.NodeID, port int, dst graph.NodeID) {
		if _, err := g.Connect(graph.Endpoint{Node: src, Port: port}, graph.Endpoint{Node: dst}, 1); err != nil {
			t.Fatal(err)
		}
	}
	out := audio.NewOutput("out", 2)
	sink := add(out)
	master := add(NewStrip(m, m.Master()))
	connect(master, 0, sink)
	var ids []ID
	for _, name := range []string{"c1", "c2"} {
		id, _ := m.AddChannel(AudioChannel, name)
		ids = append(ids, id)
		strip := add(NewStrip(m, m.Channel(id)))
		src := add(audio.NewConstant(name, 1, 1))
		connect(src, 0, strip)
		connect(strip, 0, master)
	}
	l, _ := m.Channel(ids[0]).Gains()
	ml, _ := m.Master().Gains()
	render := func() float64 {
		if err := g.Process(&audio.Context{SampleRate: 48000, Frames: 64}); err != nil {
			t.Fatal(err)
		}
		return out.Buffer().Channel(0)[63]
	}

	m.SetSolo(ids[0], true)
	if want, got := l*ml, render(); !near(want, got) {
		t.Fatalf("soloed: want %v, got %v", want, got)
	}
	m.SetSolo(ids[0], false)
	if want, got := 2*l*ml, render(); !near(want, got) {
		t.Fatalf("unsoloed: want %v, got %v", want, got)
	}
}

func TestSends(t *testing.T) {
	m := New()
	src, _ := m.AddChannel(AudioChannel, "src")
	bus, _ := m.AddChannel(Bus, "bus")
	pre, _ := m.AddChannel(Return, "pre")
	if _, err := m.AddSend(src, bus, -6, false); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddSend(src, pre, 0, true); err != nil {
		t.Fatal(err)
	}
	m.SetVolume(src, -96)

	strip := NewStrip(m, m.Channel(src))
	in := []audio.Signal{{Audio: dc(32, 1)}}
	out := make([]audio.Signal, 1+MaxSends)
	for i := range out {
		out[i].Audio = audio.NewBuffer(2, 32)
	}
	strip.Process(&audio.Context{Frames: 32}, in, out)

	if !out[0].Audio.Silent() {
		t.Fatal("main out should follow the fader")
	}
	if !out[SendPort(0)].Audio.Silent() {
		t.Fatal("post-fader send should follow the fader")
	}
	if want, got := 1.0, out[SendPort(1)].Audio.Peak(0); !near(want, got) {
		t.Fatalf("pre-fader send: want %v, got %v", want, got)
	}

	m.SetVolume(src, 0)
	m.SetPan(src, -1)
	strip.Process(&audio.Context{Frames: 32}, in, out)
	if want, got := audio.DBToGain(-6), out[SendPort(0)].Audio.Peak(0); !near(want, got) {
		t.Fatalf("post-fader send: want %v, got %v", want, got)
	}

	m.SetSendEnabled(src, pre, false)
	strip.Process(&audio.Context{Frames: 32}, in, out)
	if !out[SendPort(1)].Audio.Silent() {
		t.Fatal("disabled send should be silent")
	}

	m.SetSendEnabled(src, pre, true)
	m.SetMute(src, true)
	strip.Process(&audio.Context{Frames: 32}, in, out)
	if !out[SendPort(1)].Audio.Silent() {
		t.Fatal("muted channel should not send")
	}
}

func TestRouting(t *testing.T) {
	m := New()
	ch, _ := m.AddChannel(AudioChannel, "ch")
	b1, _ := m.AddChannel(Bus, "b1")
	b2, _ := m.AddChannel(Bus, "b2")

	if err := m.SetOutput(b1, b2); err != nil {
		t.Fatal(err)
	}
	if err := m.SetOutput(b2, b1); !audio.IsReason(err, audio.ReasonCycle) {
		t.Fatalf("want cycle, got %v", err)
	}
	if _, err := m.AddSend(b2, b1, 0, false); !audio.IsReason(err, audio.ReasonCycle) {
		t.Fatalf("want cycle, got %v", err)
	}
	if err := m.SetOutput(b1, ch); !audio.IsReason(err, audio.ReasonKindMismatch) {
		t.Fatalf("want kind mismatch, got %v", err)
	}
	if _, err := m.AddSend(ch, b1, 0, false); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddSend(ch, b1, 0, false); !audio.IsReason(err, audio.ReasonDuplicate) {
		t.Fatalf("want duplicate, got %v", err)
	}
	if err := m.SetOutput(ch, b1); err != nil {
		t.Fatal(err)
	}

	if err := m.RemoveChannel(b1); err != nil {
		t.Fatal(err)
	}
	if want, got := MasterID, m.Channel(ch).Output(); want != got {
		t.Fatalf("want output %d, got %d", want, got)
	}
	if want, got := 0, len(m.Channel(ch).Sends()); want != got {
		t.Fatalf("want %d sends, got %d", want, got)
	}
	if err := m.RemoveChannel(MasterID); !errors.Is(err, audio.ErrInvalidArgument) {
		t.Fatalf("want invalid argument, got %v", err)
	}
	if want, got := 3, len(m.Channels()); want != got {
		t.Fatalf("want %d channels, got %d", want, got)
	}
}

func TestStripProcessAllocs(t *testing.T) {
	m := New()
	id, _ := m.AddChannel(AudioChannel, "ch")
	bus, _ := m.AddChannel(Bus, "bus")
	m.AddSend(id, bus, -3, false)
	strip := NewStrip(m, m.Channel(id))
	in := []audio.Signal{{Audio: dc(256, 0.5)}}
	out := make([]audio.Signal, 1+MaxSends)
	for i := range out {
		out[i].Audio = audio.NewBuffer(2, 256)
	}
	ctx := &audio.Context{Frames: 256}
	allocs := testing.AllocsPerRun(100, func() { strip.Process(ctx, in, out) })
	if allocs != 0 {
		t.Fatalf("want no allocations, got %v", allocs)
	}
}
