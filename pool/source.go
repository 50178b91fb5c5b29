package pool

import (
	"bytes"
	"fmt"
	"io"
	"math"

	pcm "github.com/ik5/audpbx/audio"
	"github.com/ik5/audpbx/formats/aiff"
	"github.com/ik5/audpbx/formats/mp3"
	"github.com/ik5/audpbx/formats/vorbis"
	"github.com/youpy/go-riff"
	"github.com/youpy/go-wav"
)

// Decoders returns the registry of decoders keyed by lower case file
// extension without the dot.
func Decoders() *pcm.Registry {
	r := pcm.NewRegistry()
	r.Register("wav", wavDecoder{})
	r.Register("aif", aiff.Decoder{})
	r.Register("aiff", aiff.Decoder{})
	r.Register("mp3", mp3.Decoder{})
	r.Register("ogg", vorbis.Decoder{})
	return r
}

type wavDecoder struct{}

func (wavDecoder) Decode(r io.Reader) (pcm.Source, error) {
	rr, ok := r.(riff.RIFFReader)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		rr = bytes.NewReader(data)
	}
	wr := wav.NewReader(rr)
	format, err := wr.Format()
	if err != nil {
		return nil, fmt.Errorf("wav: %w", err)
	}
	if format.NumChannels < 1 || format.NumChannels > 2 {
		return nil, fmt.Errorf("wav: unsupported channel count %d", format.NumChannels)
	}
	src := &wavSource{
		r:          wr,
		channels:   int(format.NumChannels),
		sampleRate: int(format.SampleRate),
	}
	switch {
	case format.AudioFormat == wav.AudioFormatIEEEFloat:
		// the reader scales float samples up to the int32 range
		src.scale = 1 / float64(math.MaxInt32)
	case format.BitsPerSample == 8:
		// 8 bit PCM is unsigned
		src.offset = 128
		src.scale = 1.0 / 128
	case format.BitsPerSample > 8 && format.BitsPerSample <= 32:
		src.scale = 1 / float64(int64(1)<<(format.BitsPerSample-1))
	default:
		return nil, fmt.Errorf("wav: unsupported bit depth %d", format.BitsPerSample)
	}
	return src, nil
}

// wavSource adapts a wav.Reader to the interleaved float32 source the other
// decoders produce.
type wavSource struct {
	r          *wav.Reader
	channels   int
	sampleRate int
	pending    []float32
	eof        bool
	offset     int
	scale      float64
}

func (s *wavSource) SampleRate() int { return s.sampleRate }
func (s *wavSource) Channels() int   { return s.channels }
func (s *wavSource) BufSize() int    { return 4096 }
func (s *wavSource) Close() error    { return nil }

func (s *wavSource) ReadSamples(dst []float32) (int, error) {
	for len(s.pending) < len(dst) && !s.eof {
		samples, err := s.r.ReadSamples()
		if err == io.EOF {
			s.eof = true
			break
		}
		if err != nil {
			return 0, err
		}
		for _, sample := range samples {
			for c := 0; c < s.channels; c++ {
				s.pending = append(s.pending, float32(float64(s.r.IntValue(sample, uint(c))-s.offset) * s.scale))
			}
		}
	}
	n := copy(dst, s.pending)
	s.pending = s.pending[n:]
	if n == 0 && s.eof {
		return 0, io.EOF
	}
	return n, nil
}

// memSource plays back interleaved samples already in memory.
type memSource struct {
	data       []float32
	channels   int
	sampleRate int
}

func newMemSource(channels [][]float64, sampleRate int) *memSource {
	frames := 0
	if len(channels) > 0 {
		frames = len(channels[0])
	}
	data := make([]float32, 0, frames*len(channels))
	for i := 0; i < frames; i++ {
		for _, ch := range channels {
			data = append(data, float32(ch[i]))
		}
	}
	return &memSource{data: data, channels: len(channels), sampleRate: sampleRate}
}

func (s *memSource) SampleRate() int { return s.sampleRate }
func (s *memSource) Channels() int   { return s.channels }
func (s *memSource) BufSize() int    { return 4096 }
func (s *memSource) Close() error    { return nil }

func (s *memSource) ReadSamples(dst []float32) (int, error) {
	if len(s.data) == 0 {
		return 0, io.EOF
	}
	n := copy(dst, s.data)
	s.data = s.data[n:]
	return n, nil
}

// readAll drains src into channel-major float64 slices, resampling to rate
// when the source runs at a different one.
func readAll(src pcm.Source, rate int) ([][]float64, error) {
	defer src.Close()
	if src.SampleRate() != rate {
		src = pcm.NewResampler(src, rate)
	}
	nch := src.Channels()
	if nch < 1 {
		return nil, fmt.Errorf("source has %d channels", nch)
	}
	channels := make([][]float64, nch)
	buf := make([]float32, max(src.BufSize(), 1)*nch)
	for {
		n, err := src.ReadSamples(buf)
		n -= n % nch
		for i := 0; i < n; i += nch {
			for c := range channels {
				channels[c] = append(channels[c], float64(buf[i+c]))
			}
		}
		if err == io.EOF {
			return channels, nil
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return channels, nil
		}
	}
}
