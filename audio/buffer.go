package audio

import "github.com/cwbudde/algo-vecmath"

// Buffer holds non-interleaved samples: one contiguous block per channel, all
// channels backed by a single allocation made up front. The number of frames
// in use changes per call but never exceeds the capacity given to NewBuffer.
type Buffer struct {
	data     []float64
	channels [][]float64
	scratch  []float64
	frames   int
}

func NewBuffer(channels, maxFrames int) *Buffer {
	if channels < 1 {
		channels = 1
	}
	b := &Buffer{
		data:     make([]float64, channels*maxFrames),
		channels: make([][]float64, channels),
		scratch:  make([]float64, maxFrames),
		frames:   maxFrames,
	}
	for c := range b.channels {
		b.channels[c] = b.data[c*maxFrames : (c+1)*maxFrames : (c+1)*maxFrames]
	}
	return b
}

func (b *Buffer) Channels() int  { return len(b.channels) }
func (b *Buffer) Frames() int    { return b.frames }
func (b *Buffer) MaxFrames() int { return len(b.scratch) }

// SetFrames changes the number of frames in use. Values above the capacity
// are clamped.
func (b *Buffer) SetFrames(n int) {
	if n > len(b.scratch) {
		n = len(b.scratch)
	}
	if n < 0 {
		n = 0
	}
	b.frames = n
}

// Channel returns the in-use frames of channel c.
func (b *Buffer) Channel(c int) []float64 {
	return b.channels[c][:b.frames]
}

func (b *Buffer) Clear() {
	for _, ch := range b.channels {
		clear(ch[:b.frames])
	}
}

func (b *Buffer) Fill(v float64) {
	for _, ch := range b.channels {
		for i := range ch[:b.frames] {
			ch[i] = v
		}
	}
}

// CopyFrom overwrites b with src. When src has fewer channels, its channels
// are repeated, so a mono source fills both sides of a stereo buffer.
func (b *Buffer) CopyFrom(src *Buffer) {
	n := min(b.frames, src.frames)
	for c, ch := range b.channels {
		copy(ch[:n], src.channels[c%len(src.channels)][:n])
		clear(ch[n:b.frames])
	}
}

// AddFrom adds src scaled by gain into b, with the same channel mapping as
// CopyFrom.
func (b *Buffer) AddFrom(src *Buffer, gain float64) {
	n := min(b.frames, src.frames)
	if n == 0 || gain == 0 {
		return
	}
	for c, ch := range b.channels {
		from := src.channels[c%len(src.channels)][:n]
		if gain == 1 {
			vecmath.AddBlockInPlace(ch[:n], from)
			continue
		}
		tmp := b.scratch[:n]
		vecmath.ScaleBlock(tmp, from, gain)
		vecmath.AddBlockInPlace(ch[:n], tmp)
	}
}

// Scale multiplies every channel by gain.
func (b *Buffer) Scale(gain float64) {
	if gain == 1 {
		return
	}
	for c := range b.channels {
		b.ScaleChannel(c, gain)
	}
}

func (b *Buffer) ScaleChannel(c int, gain float64) {
	ch := b.channels[c][:b.frames]
	if gain == 0 {
		clear(ch)
		return
	}
	vecmath.ScaleBlockInPlace(ch, gain)
}

// Multiply applies a per-frame gain curve to every channel.
func (b *Buffer) Multiply(curve []float64) {
	n := min(b.frames, len(curve))
	for _, ch := range b.channels {
		vecmath.MulBlockInPlace(ch[:n], curve[:n])
	}
}

// Peak returns the largest absolute sample value in channel c.
func (b *Buffer) Peak(c int) float64 {
	return vecmath.MaxAbs(b.channels[c][:b.frames])
}

// Silent reports whether all in-use samples are zero.
func (b *Buffer) Silent() bool {
	for _, ch := range b.channels {
		for _, v := range ch[:b.frames] {
			if v != 0 {
				return false
			}
		}
	}
	return true
}

// Interleave writes the in-use frames of b into dst as interleaved float32
// with the given channel count.
func (b *Buffer) Interleave(dst []float32, channels int) {
	n := min(b.frames, len(dst)/channels)
	for c := 0; c < channels; c++ {
		src := b.channels[c%len(b.channels)]
		for i := 0; i < n; i++ {
			dst[i*channels+c] = float32(src[i])
		}
	}
}

// WriteTo copies b into non-interleaved float32 device buffers.
func (b *Buffer) WriteTo(dst [][]float32) {
	for c, out := range dst {
		src := b.channels[c%len(b.channels)]
		n := min(b.frames, len(out))
		for i := 0; i < n; i++ {
			out[i] = float32(src[i])
		}
	}
}

// ReadFrom fills b from non-interleaved float32 device buffers.
func (b *Buffer) ReadFrom(src [][]float32) {
	if len(src) == 0 {
		b.Clear()
		return
	}
	for c, ch := range b.channels {
		in := src[c%len(src)]
		n := min(b.frames, len(in))
		for i := 0; i < n; i++ {
			ch[i] = float64(in[i])
		}
		clear(ch[n:b.frames])
	}
}

// Deinterleave fills b from interleaved float32 input.
func (b *Buffer) Deinterleave(src []float32, channels int) {
	if channels == 0 {
		b.Clear()
		return
	}
	n := min(b.frames, len(src)/channels)
	for c, ch := range b.channels {
		k := c % channels
		for i := 0; i < n; i++ {
			ch[i] = float64(src[i*channels+k])
		}
		clear(ch[n:b.frames])
	}
}
