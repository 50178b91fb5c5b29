// Package engine ties the graph, transport, mixer, timeline and sample pool
// together behind one control surface and renders device buffers from them.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mrdg/daw/audio"
	"github.com/mrdg/daw/graph"
	"github.com/mrdg/daw/mixer"
	"github.com/mrdg/daw/pool"
	"github.com/mrdg/daw/queue"
	"github.com/mrdg/daw/telemetry"
	"github.com/mrdg/daw/timeline"
	"github.com/mrdg/daw/transport"
)

type Config struct {
	SampleRate     float64
	BufferSize     int // frames rendered per graph pass
	InputChannels  int
	OutputChannels int
	Interleaved    bool // device callback format
	Graph          graph.Config
	PoolBudget     int64 // bytes of unreferenced samples kept by Collect
	Requests       int   // transport request ring size, a power of two
}

var DefaultConfig = Config{
	SampleRate:     48000,
	BufferSize:     256,
	OutputChannels: 2,
	Graph:          graph.DefaultConfig,
	PoolBudget:     256 << 20,
	Requests:       64,
}

const maxDeviceChannels = 32

// Engine owns the audio state of a session. Control methods may be called
// from any goroutine and are serialized internally; Process and
// ProcessInterleaved belong to the audio callback.
type Engine struct {
	cfg       Config
	session   uuid.UUID
	graph     *graph.Graph
	transport *transport.Transport
	mixer     *mixer.Mixer
	timeline  *timeline.Timeline
	pool      *pool.Pool
	telemetry *telemetry.Telemetry

	mu       sync.Mutex
	output   *audio.OutputNode
	outputID graph.NodeID
	input    *deviceInput
	inputID  graph.NodeID
	strips   map[mixer.ID]*strip
	lanes    map[timeline.TrackID]*lane
	owned    map[graph.NodeID]string
	device   *Device
	failures []telemetry.Failure

	requests *queue.MPSC[request]
	running  atomic.Bool
	recorder atomic.Pointer[Recorder]
	devTime  atomic.Int64

	// audio side
	ctx    audio.Context
	inView [][]float32
	view   [][]float32
}

func New(cfg Config) (*Engine, error) {
	if cfg.SampleRate <= 0 || cfg.BufferSize <= 0 {
		return nil, fmt.Errorf("%w: sample rate %v, buffer size %d", audio.ErrInvalidArgument, cfg.SampleRate, cfg.BufferSize)
	}
	if cfg.OutputChannels < 1 || cfg.OutputChannels > maxDeviceChannels || cfg.InputChannels < 0 || cfg.InputChannels > maxDeviceChannels {
		return nil, fmt.Errorf("%w: %d inputs, %d outputs", audio.ErrInvalidArgument, cfg.InputChannels, cfg.OutputChannels)
	}
	if cfg.Requests <= 0 {
		cfg.Requests = DefaultConfig.Requests
	}
	if cfg.Graph == (graph.Config{}) {
		cfg.Graph = graph.DefaultConfig
	}
	p := pool.New(int(cfg.SampleRate), cfg.PoolBudget)
	e := &Engine{
		cfg:       cfg,
		session:   uuid.New(),
		graph:     graph.New(cfg.Graph),
		transport: transport.New(cfg.SampleRate),
		mixer:     mixer.New(),
		timeline:  timeline.New(p),
		pool:      p,
		telemetry: telemetry.New(),
		strips:    make(map[mixer.ID]*strip),
		lanes:     make(map[timeline.TrackID]*lane),
		owned:     make(map[graph.NodeID]string),
		requests:  queue.NewMPSC[request](cfg.Requests),
		inView:    make([][]float32, maxDeviceChannels),
		view:      make([][]float32, maxDeviceChannels),
	}
	if err := e.wireMaster(); err != nil {
		return nil, err
	}
	return e, nil
}

// wireMaster adds the device output, the master strip and, when the device
// has inputs, a source carrying them.
func (e *Engine) wireMaster() error {
	e.output = audio.NewOutput("output", 2)
	id, err := e.graph.AddNode(e.output)
	if err != nil {
		return err
	}
	e.outputID = id
	e.owned[id] = "output"

	master := mixer.NewStrip(e.mixer, e.mixer.Master())
	sid, err := e.graph.AddNode(master)
	if err != nil {
		return err
	}
	e.owned[sid] = "mixer"
	e.strips[mixer.MasterID] = &strip{node: sid}
	if _, err := e.graph.Connect(graph.Endpoint{Node: sid}, graph.Endpoint{Node: e.outputID}, 1); err != nil {
		return err
	}

	if e.cfg.InputChannels > 0 {
		e.input = newDeviceInput(e.cfg.InputChannels)
		if e.inputID, err = e.graph.AddNode(e.input); err != nil {
			return err
		}
		e.owned[e.inputID] = "input"
	}
	return nil
}

// Prepare allocates every buffer for the configured sample rate and buffer
// size. The audio callback must not be running.
func (e *Engine) Prepare() error {
	e.mu.Lock()
	defer e.unlock()
	return e.graph.Prepare(e.cfg.SampleRate, e.cfg.BufferSize)
}

// Close stops the device and any recording, applies outstanding commands
// and releases the graph.
func (e *Engine) Close() error {
	var errs []error
	if err := e.StopDevice(); err != nil {
		errs = append(errs, err)
	}
	if err := e.StopRecording(); err != nil {
		errs = append(errs, err)
	}
	e.mu.Lock()
	defer e.unlock()
	e.drainRequests()
	e.graph.Release()
	return errors.Join(errs...)
}

// Process renders one device buffer into non-interleaved out. in may be
// empty. Buffers longer than the configured size are rendered in several
// passes. It never fails: errors leave silence and are reported through
// telemetry.
func (e *Engine) Process(in, out [][]float32, ts time.Duration) {
	if len(out) == 0 {
		return
	}
	start := time.Now()
	defer e.recoverNonInterleaved(out)
	e.devTime.Store(int64(ts))
	e.drainRequests()

	frames := len(out[0])
	nout := min(len(out), len(e.view))
	nin := min(len(in), len(e.inView))
	for off := 0; off < frames; {
		n := min(frames-off, e.cfg.BufferSize)
		for c := 0; c < nin; c++ {
			e.inView[c] = in[c][off : off+n]
		}
		for c := 0; c < nout; c++ {
			e.view[c] = out[c][off : off+n]
		}
		if e.input != nil && e.input.buf != nil {
			e.input.buf.SetFrames(n)
			e.input.buf.ReadFrom(e.inView[:nin])
		}
		if e.render(n) {
			e.output.Buffer().WriteTo(e.view[:nout])
		} else {
			silence(e.view[:nout])
		}
		off += n
	}
	for c := nout; c < len(out); c++ {
		clear(out[c])
	}
	e.telemetry.Block(start, time.Since(start), frames, e.cfg.SampleRate)
}

// ProcessInterleaved is Process for interleaved device buffers with the
// configured channel counts.
func (e *Engine) ProcessInterleaved(in, out []float32, ts time.Duration) {
	nout := e.cfg.OutputChannels
	if len(out) < nout {
		return
	}
	start := time.Now()
	defer e.recoverInterleaved(out)
	e.devTime.Store(int64(ts))
	e.drainRequests()

	nin := e.cfg.InputChannels
	frames := len(out) / nout
	for off := 0; off < frames; {
		n := min(frames-off, e.cfg.BufferSize)
		if e.input != nil && e.input.buf != nil {
			e.input.buf.SetFrames(n)
			if hi := (off + n) * nin; hi <= len(in) {
				e.input.buf.Deinterleave(in[off*nin:hi], nin)
			} else {
				e.input.buf.Clear()
			}
		}
		dst := out[off*nout : (off+n)*nout]
		if e.render(n) {
			e.output.Buffer().Interleave(dst, nout)
		} else {
			clear(dst)
		}
		off += n
	}
	e.telemetry.Block(start, time.Since(start), frames, e.cfg.SampleRate)
}

// render runs one graph pass of n frames and moves the playhead. It reports
// whether the output buffer holds valid audio.
func (e *Engine) render(n int) bool {
	e.output.Begin(n)
	e.transport.Context(&e.ctx, n)
	err := e.graph.Process(&e.ctx)
	if e.ctx.Playing {
		e.transport.Advance(n)
	}
	if d := e.graph.Dropped(); d > 0 {
		e.telemetry.Fail(telemetry.DroppedEvents, int64(d))
	}
	if err != nil {
		e.fail(err)
		return false
	}
	if e.ctx.Recording {
		if r := e.recorder.Load(); r != nil {
			r.write(e.output.Buffer())
		}
	}
	return true
}

func (e *Engine) fail(err error) {
	switch {
	case errors.Is(err, audio.ErrStructuralCycle):
		e.telemetry.Fail(telemetry.StructuralCycle, 0)
	case errors.Is(err, audio.ErrNotPrepared):
		e.telemetry.Fail(telemetry.NotPrepared, 0)
	default:
		e.telemetry.Fail(telemetry.InvalidBlock, int64(e.ctx.Frames))
	}
}

func (e *Engine) recoverNonInterleaved(out [][]float32) {
	if r := recover(); r != nil {
		silence(out)
		e.telemetry.Fail(telemetry.Panic, 0)
	}
}

func (e *Engine) recoverInterleaved(out []float32) {
	if r := recover(); r != nil {
		clear(out)
		e.telemetry.Fail(telemetry.Panic, 0)
	}
}

func silence(out [][]float32) {
	for _, ch := range out {
		clear(ch)
	}
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Session() uuid.UUID { return e.session }

// DeviceTime is the timestamp passed with the last processed buffer.
func (e *Engine) DeviceTime() time.Duration { return time.Duration(e.devTime.Load()) }

// Sync applies queued graph commands and transport requests on the calling
// goroutine while no device is running.
func (e *Engine) Sync() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drainRequests()
	e.graph.Sync()
}

// unlock releases e.mu. With no device running nothing else drains the
// graph queue, so commands are applied here on the control goroutine.
func (e *Engine) unlock() {
	if !e.running.Load() {
		e.graph.Sync()
	}
	e.mu.Unlock()
}

// Graph gives read access to the node graph for queries. Mutations go
// through the engine so that mixer and track wiring stays consistent.
func (e *Engine) Graph() *graph.Graph { return e.graph }

func (e *Engine) Transport() *transport.Transport { return e.transport }

func (e *Engine) Mixer() *mixer.Mixer { return e.mixer }

func (e *Engine) Timeline() *timeline.Timeline { return e.timeline }

func (e *Engine) Pool() *pool.Pool { return e.pool }

func (e *Engine) Telemetry() *telemetry.Telemetry { return e.telemetry }
