// Package telemetry carries counters and failure reports from the audio
// callback to the rest of the program without blocking it.
package telemetry

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/mrdg/daw/queue"
)

type Kind uint8

const (
	Xrun Kind = iota + 1
	Underrun
	Overrun
	StructuralCycle
	NotPrepared
	Panic
	DroppedEvents
	InvalidBlock
	numKinds
)

var kindNames = [...]string{
	Xrun:            "xrun",
	Underrun:        "underrun",
	Overrun:         "overrun",
	StructuralCycle: "structural cycle",
	NotPrepared:     "not prepared",
	Panic:           "panic in audio callback",
	DroppedEvents:   "dropped events",
	InvalidBlock:    "invalid block",
}

func (k Kind) String() string {
	if k > 0 && k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// ParseKind returns the kind with the given name.
func ParseKind(s string) (Kind, error) {
	for k := Xrun; k < numKinds; k++ {
		if kindNames[k] == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown failure kind %q", s)
}

// Failure is reported once per kind until acknowledged.
type Failure struct {
	Kind  Kind      `json:"kind"`
	Block uint64    `json:"block"`
	Value int64     `json:"value"`
	Time  time.Time `json:"time"`
}

type stamp struct {
	start   int64 // unix nanos
	elapsed int64
	frames  int32
	rate    float64
}

type Stats struct {
	Blocks      uint64        `json:"blocks"`
	Xruns       uint64        `json:"xruns"`
	Underruns   uint64        `json:"underruns"`
	Overruns    uint64        `json:"overruns"`
	Dropped     uint64        `json:"dropped_events"`
	LastFrames  int           `json:"last_frames"`
	LastElapsed time.Duration `json:"last_callback"`
	MaxElapsed  time.Duration `json:"max_callback"`
	Load        float64       `json:"cpu_load"`
}

type Telemetry struct {
	blocks     atomic.Uint64
	xruns      atomic.Uint64
	underruns  atomic.Uint64
	overruns   atomic.Uint64
	dropped    atomic.Uint64
	lastFrames atomic.Int64
	lastNanos  atomic.Int64
	maxNanos   atomic.Int64
	load       atomic.Uint64 // float64 bits

	reported [numKinds]atomic.Bool
	failures *queue.SPSC[Failure]
	stamps   *queue.SPSC[stamp]
}

func New() *Telemetry {
	return &Telemetry{
		failures: queue.NewSPSC[Failure](64),
		stamps:   queue.NewSPSC[stamp](1024),
	}
}

// Block records one audio callback. Audio side only.
func (t *Telemetry) Block(start time.Time, elapsed time.Duration, frames int, sampleRate float64) {
	t.blocks.Add(1)
	t.lastFrames.Store(int64(frames))
	t.lastNanos.Store(int64(elapsed))
	if int64(elapsed) > t.maxNanos.Load() {
		t.maxNanos.Store(int64(elapsed))
	}
	t.stamps.TryPush(stamp{start: start.UnixNano(), elapsed: int64(elapsed), frames: int32(frames), rate: sampleRate})
}

// Fail reports a failure from the audio side. Only the first failure of
// each kind is queued until Ack is called for it.
func (t *Telemetry) Fail(kind Kind, value int64) {
	switch kind {
	case Xrun:
		t.xruns.Add(1)
	case Underrun:
		t.xruns.Add(1)
		t.underruns.Add(1)
	case Overrun:
		t.xruns.Add(1)
		t.overruns.Add(1)
	case DroppedEvents:
		t.dropped.Add(uint64(value))
	}
	if t.reported[kind].Swap(true) {
		return
	}
	f := Failure{Kind: kind, Block: t.blocks.Load(), Value: value}
	if !t.failures.TryPush(f) {
		t.reported[kind].Store(false)
	}
}

// Ack allows the next failure of kind to be reported.
func (t *Telemetry) Ack(kind Kind) {
	if kind > 0 && kind < numKinds {
		t.reported[kind].Store(false)
	}
}

func (t *Telemetry) Snapshot() Stats {
	return Stats{
		Blocks:      t.blocks.Load(),
		Xruns:       t.xruns.Load(),
		Underruns:   t.underruns.Load(),
		Overruns:    t.overruns.Load(),
		Dropped:     t.dropped.Load(),
		LastFrames:  int(t.lastFrames.Load()),
		LastElapsed: time.Duration(t.lastNanos.Load()),
		MaxElapsed:  time.Duration(t.maxNanos.Load()),
		Load:        t.Load(),
	}
}

// Load is the smoothed ratio of callback time to buffer duration.
func (t *Telemetry) Load() float64 { return math.Float64frombits(t.load.Load()) }

// Poll drains queued timestamps into the load estimate and returns the
// failures reported since the last call. Run calls it periodically; tests
// and single threaded hosts may call it directly, but never concurrently
// with Run.
func (t *Telemetry) Poll() []Failure {
	load := t.Load()
	t.stamps.Drain(func(s stamp) bool {
		if s.frames > 0 && s.rate > 0 {
			budget := float64(s.frames) / s.rate * 1e9
			load = 0.9*load + 0.1*float64(s.elapsed)/budget
		}
		return true
	})
	t.load.Store(math.Float64bits(load))

	var out []Failure
	t.failures.Drain(func(f Failure) bool {
		f.Time = time.Now()
		out = append(out, f)
		return true
	})
	return out
}

// Run polls every 10ms until ctx is done, logging failures and passing them
// to report if it is not nil.
func (t *Telemetry) Run(ctx context.Context, report func(Failure)) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, f := range t.Poll() {
				log.Printf("audio: %s (block %d, value %d)", f.Kind, f.Block, f.Value)
				if report != nil {
					report(f)
				}
			}
		}
	}
}
