package audio

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

type testNode struct{ Base }

func (n *testNode) Process(ctx *Context, in, out []Signal) {}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		node  Node
		valid bool
	}{
		{"source", &testNode{NewBase("s", Source, AudioOut("out", 2))}, true},
		{"source with input", &testNode{NewBase("s", Source, AudioIn("in", 2), AudioOut("out", 2))}, false},
		{"sink", &testNode{NewBase("k", Sink, SumIn("in", 2))}, true},
		{"sink with output", &testNode{NewBase("k", Sink, SumIn("in", 2), AudioOut("out", 2))}, false},
		{"processor", &testNode{NewBase("p", Processor, AudioIn("in", 2), AudioOut("out", 2))}, true},
		{"channel mismatch", &testNode{NewBase("p", Processor, AudioIn("in", 1), AudioOut("out", 2))}, false},
		{"no channels", &testNode{NewBase("p", Source, AudioOut("out", 0))}, false},
		{"instrument", NewSynth("synth"), true},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		err := Validate(tt.node)
		if tt.valid && err != nil {
			t.Errorf("%s: %v", tt.name, err)
		}
		if !tt.valid && !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("%s: want invalid argument, got %v", tt.name, err)
		}
	}
}

func TestProps(t *testing.T) {
	osc := NewOscillator("osc", 1)
	if err := osc.Set("freq", 220); err != nil {
		t.Fatal(err)
	}
	if v, _ := osc.Get("freq"); v != 220.0 {
		t.Fatalf("want 220, got %v", v)
	}
	if err := osc.Set("freq", 30_000.0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("want range error, got %v", err)
	}
	if v, _ := osc.Get("freq"); v != 220.0 {
		t.Fatalf("rejected value was stored: %v", v)
	}
	if err := osc.Set("wave", "trumpet"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("want invalid waveform rejected, got %v", err)
	}
	if err := osc.Set("nope", 1.0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("want unknown property rejected, got %v", err)
	}
	if want, got := []string{"freq", "level", "wave"}, osc.Keys(); !reflect.DeepEqual(want, got) {
		t.Fatalf("want keys %v, got %v", want, got)
	}
}

func signals(channels, frames int) []Signal {
	return []Signal{{Audio: NewBuffer(channels, frames)}}
}

func TestConstantAndGain(t *testing.T) {
	ctx := &Context{SampleRate: 48000, Frames: 32}
	dc := NewConstant("dc", 2, 0.5)
	src := signals(2, 32)
	dc.Process(ctx, nil, src)

	g := NewGain("gain", 2)
	if err := g.Set("gain", -6.0); err != nil {
		t.Fatal(err)
	}
	if err := g.Prepare(48000, 32); err != nil {
		t.Fatal(err)
	}
	out := signals(2, 32)
	g.Process(ctx, src, out)
	want := 0.5 * DBToGain(-6)
	for c := 0; c < 2; c++ {
		for i, v := range out[0].Audio.Channel(c) {
			if math.Abs(v-want) > 1e-9 {
				t.Fatalf("channel %d sample %d: want %v, got %v", c, i, want, v)
			}
		}
	}
}

func TestOscillatorLevel(t *testing.T) {
	osc := NewOscillator("osc", 2)
	if err := osc.Set("level", -6.0); err != nil {
		t.Fatal(err)
	}
	if err := osc.Prepare(48000, 480); err != nil {
		t.Fatal(err)
	}
	out := signals(2, 480)
	osc.Process(&Context{SampleRate: 48000, Frames: 480}, nil, out)
	buf := out[0].Audio
	// 480 samples hold four and a half periods of 440 Hz
	if p := buf.Peak(0); math.Abs(p-DBToGain(-6)) > 1e-3 {
		t.Fatalf("want peak %v, got %v", DBToGain(-6), p)
	}
	if !reflect.DeepEqual(buf.Channel(0), buf.Channel(1)) {
		t.Fatal("want every channel to carry the same signal")
	}
}

func TestCaptureHistory(t *testing.T) {
	c := NewCapture("capture", 1, 4)
	in := signals(1, 3)
	for i, block := range [][]float64{{1, 2, 3}, {4, 5, 6}} {
		copy(in[0].Audio.Channel(0), block)
		c.Process(&Context{Frames: 3}, in, nil)
		if want, got := int64(3*(i+1)), c.Frames(); want != got {
			t.Fatalf("want %d frames, got %d", want, got)
		}
	}
	if want, got := []float64{3, 4, 5, 6}, c.History(0); !reflect.DeepEqual(want, got) {
		t.Fatalf("want history %v, got %v", want, got)
	}
	if want, got := 6.0, c.Peak(0); want != got {
		t.Fatalf("want peak %v, got %v", want, got)
	}
	c.Reset()
	if len(c.History(0)) != 0 || c.Frames() != 0 {
		t.Fatal("want reset to clear the capture")
	}
}

func TestFanout(t *testing.T) {
	f := NewFanout("split", 1, 3)
	in := signals(1, 4)
	in[0].Audio.Fill(0.25)
	out := []Signal{{Audio: NewBuffer(1, 4)}, {Audio: NewBuffer(1, 4)}, {Audio: NewBuffer(1, 4)}}
	f.Process(&Context{Frames: 4}, in, out)
	for i, o := range out {
		if want, got := []float64{0.25, 0.25, 0.25, 0.25}, o.Audio.Channel(0); !reflect.DeepEqual(want, got) {
			t.Fatalf("output %d: want %v, got %v", i, want, got)
		}
	}
}

func TestOutputNode(t *testing.T) {
	o := NewOutput("output", 2)
	if err := Validate(o); err != nil {
		t.Fatal(err)
	}
	if o.Buffer() != nil {
		t.Fatal("want no buffer before prepare")
	}
	if err := o.Prepare(48000, 16); err != nil {
		t.Fatal(err)
	}
	in := signals(2, 8)
	in[0].Audio.Fill(0.5)
	o.Process(&Context{SampleRate: 48000, Frames: 8}, in, nil)
	if want, got := 8, o.Buffer().Frames(); want != got {
		t.Fatalf("want %d frames, got %d", want, got)
	}
	if want, got := 0.5, o.Buffer().Peak(1); want != got {
		t.Fatalf("want peak %v, got %v", want, got)
	}
	o.Begin(4)
	if want, got := 0.0, o.Buffer().Peak(1); want != got {
		t.Fatalf("want a cleared buffer, got peak %v", got)
	}
	o.Release()
	if o.Buffer() != nil {
		t.Fatal("want no buffer after release")
	}
}
