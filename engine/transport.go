package engine

import (
	"fmt"

	"github.com/mrdg/daw/audio"
	"github.com/mrdg/daw/transport"
)

type requestOp uint8

const (
	reqPlay requestOp = iota + 1
	reqStop
	reqPause
	reqRecord
	reqSeek
)

// request is a transport change. While a device is running requests are
// queued and applied at the start of the next buffer, in the order they
// were accepted, so that a seek followed by play never renders a buffer at
// the old position.
type request struct {
	op  requestOp
	pos int64
}

func (e *Engine) request(r request) error {
	if !e.running.Load() {
		e.apply(r)
		return nil
	}
	if !e.requests.TryPush(r) {
		return audio.ErrQueueFull
	}
	return nil
}

func (e *Engine) drainRequests() {
	for {
		r, ok := e.requests.TryPop()
		if !ok {
			return
		}
		e.apply(r)
	}
}

func (e *Engine) apply(r request) {
	t := e.transport
	switch r.op {
	case reqPlay:
		t.Play()
	case reqStop:
		t.Stop()
	case reqPause:
		t.Pause()
	case reqRecord:
		t.Record()
	case reqSeek:
		t.SetPosition(r.pos)
	}
}

func (e *Engine) Play() error   { return e.request(request{op: reqPlay}) }
func (e *Engine) Stop() error   { return e.request(request{op: reqStop}) }
func (e *Engine) Pause() error  { return e.request(request{op: reqPause}) }
func (e *Engine) Record() error { return e.request(request{op: reqRecord}) }

func (e *Engine) ReturnToZero() error { return e.SetPosition(0) }

func (e *Engine) SetPosition(samples int64) error {
	if samples < 0 {
		return fmt.Errorf("%w: negative position %d", audio.ErrInvalidArgument, samples)
	}
	return e.request(request{op: reqSeek, pos: samples})
}

func (e *Engine) SetPositionSeconds(s float64) error {
	return e.SetPosition(int64(s * e.transport.SampleRate()))
}

func (e *Engine) SetPositionBeats(beats float64) error {
	return e.SetPosition(e.transport.BeatsToSamples(beats))
}

// SetMusical moves the playhead to a bar, beat and tick.
func (e *Engine) SetMusical(p transport.Position) error {
	if p.Bar < 1 || p.Beat < 1 || p.Tick < 0 || p.Tick >= transport.PPQN {
		return fmt.Errorf("%w: invalid musical position %v", audio.ErrInvalidArgument, p)
	}
	ticks := p.Ticks(e.transport.TimeSignature())
	return e.SetPositionBeats(float64(ticks) / transport.PPQN)
}

// SetTempo clamps bpm to the supported range and returns the stored value.
func (e *Engine) SetTempo(bpm float64) float64 { return e.transport.SetTempo(bpm) }

func (e *Engine) SetTimeSignature(sig audio.TimeSignature) error {
	return e.transport.SetTimeSignature(sig)
}

func (e *Engine) SetLoop(start, end int64, enabled bool) error {
	return e.transport.SetLoop(start, end, enabled)
}

func (e *Engine) Position() int64 { return e.transport.Position() }

func (e *Engine) Musical() transport.Position { return e.transport.Musical() }

func (e *Engine) TransportState() transport.Snapshot { return e.transport.Snapshot() }
