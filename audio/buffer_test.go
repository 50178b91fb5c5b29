package audio

import (
	"reflect"
	"testing"
)

func TestBufferFrames(t *testing.T) {
	b := NewBuffer(2, 64)
	b.Fill(1)
	b.SetFrames(16)
	if want, got := 16, len(b.Channel(1)); want != got {
		t.Fatalf("want %d frames, got %d", want, got)
	}
	b.Clear()
	b.SetFrames(64)
	if want, got := 1.0, b.Channel(0)[16]; want != got {
		t.Fatalf("clear touched frames outside the buffer: got %v", got)
	}
	b.SetFrames(1000)
	if want, got := 64, b.Frames(); want != got {
		t.Fatalf("want frames clamped to %d, got %d", want, got)
	}
}

func TestBufferChannelMapping(t *testing.T) {
	mono := NewBuffer(1, 4)
	copy(mono.Channel(0), []float64{1, 2, 3, 4})
	st := NewBuffer(2, 4)

	st.CopyFrom(mono)
	for c := 0; c < 2; c++ {
		if want, got := []float64{1, 2, 3, 4}, st.Channel(c); !reflect.DeepEqual(want, got) {
			t.Fatalf("channel %d: want %v, got %v", c, want, got)
		}
	}
	st.AddFrom(mono, 0.5)
	if want, got := []float64{1.5, 3, 4.5, 6}, st.Channel(1); !reflect.DeepEqual(want, got) {
		t.Fatalf("want %v, got %v", want, got)
	}
	if want, got := 6.0, st.Peak(1); want != got {
		t.Fatalf("want peak %v, got %v", want, got)
	}
}

func TestBufferShortSource(t *testing.T) {
	src := NewBuffer(1, 8)
	src.Fill(1)
	src.SetFrames(2)
	dst := NewBuffer(1, 8)
	dst.Fill(5)
	dst.SetFrames(4)
	dst.CopyFrom(src)
	if want, got := []float64{1, 1, 0, 0}, dst.Channel(0); !reflect.DeepEqual(want, got) {
		t.Fatalf("want %v, got %v", want, got)
	}
}

func TestInterleave(t *testing.T) {
	b := NewBuffer(2, 3)
	copy(b.Channel(0), []float64{1, 2, 3})
	copy(b.Channel(1), []float64{-1, -2, -3})

	dst := make([]float32, 6)
	b.Interleave(dst, 2)
	if want := []float32{1, -1, 2, -2, 3, -3}; !reflect.DeepEqual(want, dst) {
		t.Fatalf("want %v, got %v", want, dst)
	}

	back := NewBuffer(2, 3)
	back.Deinterleave(dst, 2)
	if !reflect.DeepEqual(b.Channel(0), back.Channel(0)) || !reflect.DeepEqual(b.Channel(1), back.Channel(1)) {
		t.Fatalf("want %v %v, got %v %v", b.Channel(0), b.Channel(1), back.Channel(0), back.Channel(1))
	}

	// a mono buffer feeds every device channel
	mono := NewBuffer(1, 3)
	copy(mono.Channel(0), []float64{1, 2, 3})
	mono.Interleave(dst, 2)
	if want := []float32{1, 1, 2, 2, 3, 3}; !reflect.DeepEqual(want, dst) {
		t.Fatalf("want %v, got %v", want, dst)
	}
}

func TestReadWriteDevice(t *testing.T) {
	b := NewBuffer(2, 4)
	in := [][]float32{{0.5, 0.5}}
	b.SetFrames(4)
	b.Fill(9)
	b.ReadFrom(in)
	if want, got := []float64{0.5, 0.5, 0, 0}, b.Channel(1); !reflect.DeepEqual(want, got) {
		t.Fatalf("want %v, got %v", want, got)
	}

	out := [][]float32{make([]float32, 4), make([]float32, 4)}
	b.WriteTo(out)
	if want := []float32{0.5, 0.5, 0, 0}; !reflect.DeepEqual(want, out[0]) {
		t.Fatalf("want %v, got %v", want, out[0])
	}

	b.ReadFrom(nil)
	if !b.Silent() {
		t.Fatal("want silence without input channels")
	}
}

func TestScale(t *testing.T) {
	b := NewBuffer(2, 4)
	b.Fill(2)
	b.Scale(0.25)
	for c := 0; c < 2; c++ {
		if want, got := []float64{0.5, 0.5, 0.5, 0.5}, b.Channel(c); !reflect.DeepEqual(want, got) {
			t.Fatalf("channel %d: want %v, got %v", c, want, got)
		}
	}
	b.Multiply([]float64{0, 1, 2, 4})
	if want, got := []float64{0, 0.5, 1, 2}, b.Channel(0); !reflect.DeepEqual(want, got) {
		t.Fatalf("want %v, got %v", want, got)
	}
	b.ScaleChannel(1, 0)
	if want, got := 0.0, b.Peak(1); want != got {
		t.Fatalf("want silent channel, got peak %v", got)
	}
}

func TestDBToGain(t *testing.T) {
	if want, got := 1.0, DBToGain(0); want != got {
		t.Fatalf("want %v, got %v", want, got)
	}
	if want, got := 0.0, DBToGain(MinDB); want != got {
		t.Fatalf("want %v at the floor, got %v", want, got)
	}
	if want, got := MinDB, GainToDB(0); want != got {
		t.Fatalf("want %v, got %v", want, got)
	}
	if db := GainToDB(DBToGain(-6)); db < -6.000001 || db > -5.999999 {
		t.Fatalf("want -6 dB round trip, got %v", db)
	}
}
