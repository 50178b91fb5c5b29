package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	vecmath "github.com/cwbudde/algo-vecmath"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mrdg/daw/audio"
	"github.com/mrdg/daw/queue"
)

const (
	recordChunk    = 256
	recordChannels = 2
	recordQueue    = 512
	wavPCM         = 1
)

var errAlreadyRecording = errors.New("already recording")

// chunk carries up to recordChunk interleaved stereo frames from the audio
// callback to the writer.
type chunk struct {
	frames  int
	samples [recordChunk * recordChannels]float32
}

// Recorder writes the master output to a WAV file. The audio callback only
// copies into a ring; a separate goroutine encodes.
type Recorder struct {
	path     string
	bitDepth int
	chunks   *queue.SPSC[chunk]
	dropped  atomic.Uint64
	frames   atomic.Int64

	mu      sync.Mutex // writer side
	file    *os.File
	enc     *wav.Encoder
	dither  *vecmath.DitherState
	scratch []float64
	ints    *goaudio.IntBuffer
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRecorder creates the file at path. bitDepth is 16 or 24.
func NewRecorder(path string, sampleRate, bitDepth int) (*Recorder, error) {
	if bitDepth != 16 && bitDepth != 24 {
		return nil, fmt.Errorf("%w: bit depth %d", audio.ErrInvalidArgument, bitDepth)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Recorder{
		path:     path,
		bitDepth: bitDepth,
		chunks:   queue.NewSPSC[chunk](recordQueue),
		file:     f,
		enc:      wav.NewEncoder(f, sampleRate, bitDepth, recordChannels, wavPCM),
		dither:   vecmath.NewDitherState(time.Now().UnixNano()),
		scratch:  make([]float64, recordChunk*recordChannels),
		ints: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: recordChannels, SampleRate: sampleRate},
			Data:           make([]int, recordChunk*recordChannels),
			SourceBitDepth: bitDepth,
		},
	}, nil
}

func (r *Recorder) Path() string { return r.path }

// Frames is the number of frames handed to the writer so far.
func (r *Recorder) Frames() int64 { return r.frames.Load() }

// Dropped counts chunks lost because the writer fell behind.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// write queues the in-use frames of buf. Audio side only.
func (r *Recorder) write(buf *audio.Buffer) {
	left := buf.Channel(0)
	right := left
	if buf.Channels() > 1 {
		right = buf.Channel(1)
	}
	var c chunk
	for off := 0; off < len(left); off += recordChunk {
		n := min(recordChunk, len(left)-off)
		c.frames = n
		for i := 0; i < n; i++ {
			c.samples[2*i] = float32(left[off+i])
			c.samples[2*i+1] = float32(right[off+i])
		}
		if !r.chunks.TryPush(c) {
			r.dropped.Add(1)
			continue
		}
		r.frames.Add(int64(n))
	}
}

// Flush encodes everything queued so far.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return nil
	}
	var err error
	r.chunks.Drain(func(c chunk) bool {
		err = r.encode(&c)
		return err == nil
	})
	return err
}

// encode quantizes a chunk with TPDF dither of one LSB.
func (r *Recorder) encode(c *chunk) error {
	n := c.frames * recordChannels
	full := float64(int(1)<<(r.bitDepth-1)) - 1
	scratch := r.scratch[:n]
	for i, v := range c.samples[:n] {
		scratch[i] = float64(v) * full
	}
	vecmath.AddDitherTPDF(scratch, 1, r.dither)
	data := r.ints.Data[:n]
	for i, v := range scratch {
		data[i] = int(math.Round(math.Max(-full-1, math.Min(full, v))))
	}
	r.ints.Data = data
	err := r.enc.Write(r.ints)
	r.ints.Data = r.ints.Data[:cap(r.ints.Data)]
	return err
}

// Run flushes every 10ms until ctx is done.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.Flush(); err != nil {
				return err
			}
		}
	}
}

// Close flushes what is queued and finishes the file. The audio side must
// no longer write to r.
func (r *Recorder) Close() error {
	if err := r.Flush(); err != nil {
		r.file.Close()
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return nil
	}
	err := r.enc.Close()
	if ferr := r.file.Close(); err == nil {
		err = ferr
	}
	r.enc = nil
	return err
}

// StartRecording records the master output to a WAV file while the
// transport is recording, and starts the transport recording.
func (e *Engine) StartRecording(path string, bitDepth int) (*Recorder, error) {
	if e.recorder.Load() != nil {
		return nil, errAlreadyRecording
	}
	r, err := NewRecorder(path, int(e.cfg.SampleRate), bitDepth)
	if err != nil {
		return nil, err
	}
	if !e.recorder.CompareAndSwap(nil, r) {
		r.Close()
		return nil, errAlreadyRecording
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel, r.done = cancel, make(chan struct{})
	go func() {
		defer close(r.done)
		r.Run(ctx)
	}()
	if err := e.Record(); err != nil {
		e.StopRecording()
		return nil, err
	}
	return r, nil
}

// StopRecording stops the transport and finishes the current recording, if
// any.
func (e *Engine) StopRecording() error {
	r := e.recorder.Swap(nil)
	if r == nil {
		return nil
	}
	e.Stop()
	e.settle()
	r.cancel()
	<-r.done
	return r.Close()
}

// settle waits for the audio callback to finish the buffer it may be
// rendering.
func (e *Engine) settle() {
	if !e.running.Load() {
		return
	}
	blocks := e.telemetry.Snapshot().Blocks
	deadline := time.Now().Add(time.Second)
	for e.running.Load() && e.telemetry.Snapshot().Blocks < blocks+2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
}

// Recording is the active recorder, or nil.
func (e *Engine) Recording() *Recorder { return e.recorder.Load() }
