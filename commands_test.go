package main

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/mrdg/daw/audio"
	"github.com/mrdg/daw/dub"
	"github.com/mrdg/daw/engine"
)

func newEnv(t *testing.T) (*env, *bytes.Buffer) {
	t.Helper()
	e, err := engine.New(engine.DefaultConfig)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	var out bytes.Buffer
	return &env{engine: e, out: &out}, &out
}

func mustEval(t *testing.T, env *env, input string) dub.Node {
	t.Helper()
	result, err := env.eval(input)
	if err != nil {
		t.Fatalf("%s: %v", input, err)
	}
	return result
}

func TestParseTimeSignature(t *testing.T) {
	sig, err := parseTimeSignature("7/8")
	if err != nil {
		t.Fatal(err)
	}
	if want := (audio.TimeSignature{Numerator: 7, Denominator: 8}); want != sig {
		t.Fatalf("want %v, got %v", want, sig)
	}
	for _, input := range []string{"4", "x/4", "4/x", "4/3"} {
		if _, err := parseTimeSignature(input); err == nil {
			t.Errorf("%s: want error", input)
		}
	}
}

func TestTransportCommands(t *testing.T) {
	env, _ := newEnv(t)
	if want, got := dub.Float(90), mustEval(t, env, "tempo 90"); want != got {
		t.Fatalf("want %v, got %v", want, got)
	}
	mustEval(t, env, `sig "3/4"; seek 2`)
	s := env.engine.TransportState()
	if want, got := (audio.TimeSignature{Numerator: 3, Denominator: 4}), s.TimeSig; want != got {
		t.Fatalf("want %v, got %v", want, got)
	}
	// three beats at 90 bpm
	if want, got := int64(96000), s.Position; want != got {
		t.Fatalf("want position %d, got %d", want, got)
	}
	mustEval(t, env, "loop 1 3")
	l := env.engine.Transport().Loop()
	if !l.Enabled || l.Start != 0 || l.End != 192000 {
		t.Fatalf("unexpected loop %+v", l)
	}
	mustEval(t, env, "loop off")
	if env.engine.Transport().Loop().Enabled {
		t.Fatal("want loop disabled")
	}
}

func TestNodeCommands(t *testing.T) {
	env, _ := newEnv(t)
	mustEval(t, env, "node osc tone 2; node gain amp; connect tone amp 0.5")
	if want, got := dub.Float(440), mustEval(t, env, "get tone freq"); want != got {
		t.Fatalf("want %v, got %v", want, got)
	}
	mustEval(t, env, "set tone freq 220; set tone wave saw")
	if want, got := dub.Float(220), mustEval(t, env, "get tone freq"); want != got {
		t.Fatalf("want %v, got %v", want, got)
	}
	if want, got := dub.String("saw"), mustEval(t, env, "get tone wave"); want != got {
		t.Fatalf("want %v, got %v", want, got)
	}
	mustEval(t, env, "bypass amp on")
	for _, n := range env.engine.Nodes() {
		if n.Name == "amp" && !n.Bypassed {
			t.Fatal("want amp bypassed")
		}
	}
	mustEval(t, env, "disconnect tone amp")
	if _, err := env.eval("disconnect tone amp"); err == nil {
		t.Fatal("want error disconnecting twice")
	}
	if _, err := env.eval("set nowhere freq 1"); err == nil {
		t.Fatal("want unknown node rejected")
	}
}

func TestEvalErrors(t *testing.T) {
	env, _ := newEnv(t)
	tests := []struct {
		input string
		want  string
	}{
		{"frobnicate", "unknown command"},
		{"tempo", "wrong number of arguments"},
		{"tempo fast", "argument error"},
		{"node osc", "need at least 2"},
		{"bypass output maybe", "on or off"},
	}
	for _, tt := range tests {
		_, err := env.eval(tt.input)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: want error containing %q, got %v", tt.input, tt.want, err)
		}
	}
	// commands after a failing one don't run
	if _, err := env.eval("tempo 100; tempo; tempo 80"); err == nil {
		t.Fatal("want error")
	}
	if want, got := 100.0, env.engine.Transport().Tempo(); want != got {
		t.Fatalf("want tempo %v, got %v", want, got)
	}
}

func TestMixerCommands(t *testing.T) {
	env, out := newEnv(t)
	mustEval(t, env, "channel audio drums; channel bus verb; send drums verb -6; vol drums -3; pan drums -0.5; solo drums on")
	var drums, verb bool
	for _, c := range env.engine.Channels() {
		switch c.Name {
		case "drums":
			drums = true
			if c.VolumeDB != -3 || c.Pan != -0.5 || !c.Soloed || len(c.Sends) != 1 {
				t.Fatalf("unexpected channel %+v", c)
			}
		case "verb":
			verb = true
		}
	}
	if !drums || !verb {
		t.Fatalf("want both channels, got %+v", env.engine.Channels())
	}
	mustEval(t, env, "mixer")
	if !strings.Contains(out.String(), "drums") {
		t.Fatalf("want drums in mixer output, got %q", out.String())
	}
	if _, err := env.eval("send verb drums -6"); err == nil {
		t.Fatal("want send into an audio channel rejected")
	}
}

func TestPatternCommand(t *testing.T) {
	env, _ := newEnv(t)
	mustEval(t, env, "track instrument drums; pattern drums 1 36 '1:4")
	tracks := env.engine.Tracks()
	if want, got := 1, len(tracks); want != got {
		t.Fatalf("want %d tracks, got %d", want, got)
	}
	clips := tracks[0].MidiClips
	if want, got := 1, len(clips); want != got {
		t.Fatalf("want %d clips, got %d", want, got)
	}
	// one bar of 4/4 at 120 bpm
	if want, got := int64(96000), clips[0].Length; want != got {
		t.Fatalf("want length %d, got %d", want, got)
	}
	var starts []int64
	for _, n := range clips[0].Notes {
		if n.Key != 36 || n.Velocity != noteVelocity || n.Length != 240 {
			t.Fatalf("unexpected note %+v", n)
		}
		starts = append(starts, n.Start)
	}
	if want := []int64{0, 960, 1920, 2880}; !reflect.DeepEqual(want, starts) {
		t.Fatalf("want note starts %v, got %v", want, starts)
	}
	if _, err := env.eval("pattern drums 0 36 '1"); err == nil {
		t.Fatal("want bar 0 rejected")
	}
}

func TestSnapshotCommand(t *testing.T) {
	env, out := newEnv(t)
	mustEval(t, env, "tempo 100; snapshot")
	var s struct {
		Session   string `json:"session"`
		Transport struct{ Tempo float64 }
	}
	if err := json.Unmarshal(out.Bytes(), &s); err != nil {
		t.Fatal(err)
	}
	if want, got := 100.0, s.Transport.Tempo; want != got {
		t.Fatalf("want tempo %v, got %v", want, got)
	}
	if want, got := env.engine.Session().String(), s.Session; want != got {
		t.Fatalf("want session %v, got %v", want, got)
	}
}
