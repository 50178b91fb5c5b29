package pool

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mrdg/daw/audio"
)

func writeWAV(t *testing.T, path string, rate int, frames [][2]int) {
	t.Helper()
	writeWAVBits(t, path, rate, 16, frames)
}

func writeWAVBits(t *testing.T, path string, rate, bits int, frames [][2]int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	enc := wav.NewEncoder(f, rate, bits, 2, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: rate},
		SourceBitDepth: bits,
	}
	for _, fr := range frames {
		buf.Data = append(buf.Data, fr[0], fr[1])
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestAcquireWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kick.wav")
	frames := make([][2]int, 100)
	for i := range frames {
		frames[i] = [2]int{i * 100, -i * 100}
	}
	writeWAV(t, path, 48000, frames)

	p := New(48000, 0)
	id, err := p.Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	s := p.Get(id)
	if want, got := "kick", s.Name; want != got {
		t.Fatalf("want name %q, got %q", want, got)
	}
	if want, got := 2, s.Channels(); want != got {
		t.Fatalf("want %d channels, got %d", want, got)
	}
	if want, got := 100, s.Frames(); want != got {
		t.Fatalf("want %d frames, got %d", want, got)
	}
	if want, got := 5000.0/32768, s.At(0, 50); math.Abs(want-got) > 1e-3 {
		t.Fatalf("want %v, got %v", want, got)
	}
	if want, got := -5000.0/32768, s.At(1, 50); math.Abs(want-got) > 1e-3 {
		t.Fatalf("want %v, got %v", want, got)
	}
	if s.At(0, 100) != 0 || s.At(2, 0) != 0 {
		t.Fatal("reads outside the sample should be silent")
	}

	again, err := p.Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	if id != again {
		t.Fatalf("want the same sample, got %d and %d", id, again)
	}
	if want, got := 2, p.Refs(id); want != got {
		t.Fatalf("want %d refs, got %d", want, got)
	}
}

func TestWAVFullScale(t *testing.T) {
	tests := []struct {
		bits   int
		frames [][2]int
		want   [][2]float64
	}{
		{16, [][2]int{{-32768, 16384}}, [][2]float64{{-1, 0.5}}},
		{24, [][2]int{{-8388608, 4194304}}, [][2]float64{{-1, 0.5}}},
		// unsigned, centered on 128
		{8, [][2]int{{0, 192}, {128, 64}}, [][2]float64{{-1, 0.5}, {0, -0.5}}},
	}
	for _, tt := range tests {
		path := filepath.Join(t.TempDir(), "full.wav")
		writeWAVBits(t, path, 48000, tt.bits, tt.frames)
		p := New(48000, 0)
		id, err := p.Acquire(path)
		if err != nil {
			t.Fatalf("%d bits: %v", tt.bits, err)
		}
		s := p.Get(id)
		for i, w := range tt.want {
			for c := 0; c < 2; c++ {
				if got := s.At(c, i); math.Abs(w[c]-got) > 1e-6 {
					t.Errorf("%d bits frame %d channel %d: want %v, got %v", tt.bits, i, c, w[c], got)
				}
			}
		}
	}
}

func TestAcquireErrors(t *testing.T) {
	p := New(48000, 0)
	if _, err := p.Acquire(filepath.Join(t.TempDir(), "missing.wav")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want not exist, got %v", err)
	}
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Acquire(path); !errors.Is(err, audio.ErrInvalidArgument) {
		t.Fatalf("want invalid argument, got %v", err)
	}
}

func TestInsertResamples(t *testing.T) {
	p := New(48000, 0)
	ramp := make([]float64, 1000)
	for i := range ramp {
		ramp[i] = 0.5
	}
	id, err := p.Insert("dc", 24000, [][]float64{ramp})
	if err != nil {
		t.Fatal(err)
	}
	s := p.Get(id)
	if n := s.Frames(); n < 1990 || n > 2010 {
		t.Fatalf("want about 2000 frames, got %d", n)
	}
	if v := s.At(0, 1000); math.Abs(v-0.5) > 1e-3 {
		t.Fatalf("want 0.5, got %v", v)
	}
	if want, got := 48000.0, s.SampleRate; want != got {
		t.Fatalf("want rate %v, got %v", want, got)
	}

	if _, err := p.Insert("bad", 48000, [][]float64{{1, 2}, {1}}); !errors.Is(err, audio.ErrInvalidArgument) {
		t.Fatalf("want invalid argument, got %v", err)
	}
}

func TestCollect(t *testing.T) {
	p := New(48000, 0)
	data := [][]float64{make([]float64, 100)} // 800 bytes
	a, _ := p.Insert("a", 48000, data)
	b, _ := p.Insert("b", 48000, data)
	c, _ := p.Insert("c", 48000, data)
	if want, got := int64(2400), p.Stats().Bytes; want != got {
		t.Fatalf("want %d bytes, got %d", want, got)
	}

	if want, got := 0, p.Collect(); want != got {
		t.Fatalf("unlimited pool evicted %d", got)
	}
	p.Release(a)
	p.Release(b)
	p.Retain(a) // a is now more recently used than b
	p.Release(a)
	p.SetBudget(1600)
	if want, got := 1, p.Collect(); want != got {
		t.Fatalf("want %d evicted, got %d", want, got)
	}
	if p.Get(b) != nil {
		t.Fatal("least recently used sample should be gone")
	}
	if p.Get(a) == nil || p.Get(c) == nil {
		t.Fatal("other samples should remain")
	}

	p.SetBudget(1)
	if want, got := 1, p.Collect(); want != got {
		t.Fatalf("want %d evicted, got %d", want, got)
	}
	st := p.Stats()
	if want, got := 1, st.Samples; want != got {
		t.Fatalf("referenced sample evicted: %+v", st)
	}
	if err := p.Release(b); !errors.Is(err, audio.ErrInvalidArgument) {
		t.Fatalf("want invalid argument, got %v", err)
	}
}
