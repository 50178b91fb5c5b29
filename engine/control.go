package engine

import (
	"context"
	"fmt"

	"github.com/mrdg/daw/audio"
	"github.com/mrdg/daw/graph"
	"github.com/mrdg/daw/mixer"
	"github.com/mrdg/daw/pool"
	"github.com/mrdg/daw/telemetry"
)

const maxFailures = 32

// AddNode adds a node to the graph. It is not connected to anything.
func (e *Engine) AddNode(n audio.Node) (graph.NodeID, error) {
	e.mu.Lock()
	defer e.unlock()
	return e.graph.AddNode(n)
}

// CreateNode adds a reference node of the given kind; see NodeKinds.
func (e *Engine) CreateNode(kind, name string, channels int) (graph.NodeID, error) {
	n, err := NewNode(kind, name, channels)
	if err != nil {
		return 0, err
	}
	return e.AddNode(n)
}

// RemoveNode removes a node added with AddNode. Nodes the engine created
// for channels, tracks and the device are removed along with their owner.
func (e *Engine) RemoveNode(id graph.NodeID) error {
	e.mu.Lock()
	defer e.unlock()
	if owner, ok := e.owned[id]; ok {
		return fmt.Errorf("%w: node %d belongs to the %s", audio.ErrInvalidArgument, id, owner)
	}
	return e.graph.RemoveNodeErr(id)
}

func (e *Engine) Connect(src, dst graph.Endpoint, gain float64) (graph.ConnID, error) {
	e.mu.Lock()
	defer e.unlock()
	return e.graph.Connect(src, dst, gain)
}

func (e *Engine) Disconnect(id graph.ConnID) error {
	e.mu.Lock()
	defer e.unlock()
	if e.managed(id) {
		return fmt.Errorf("%w: connection %d is mixer routing", audio.ErrInvalidArgument, id)
	}
	if _, ok := e.graph.Connection(id); !ok {
		return fmt.Errorf("%w: no connection %d", audio.ErrInvalidArgument, id)
	}
	if !e.graph.Disconnect(id) {
		return audio.ErrQueueFull
	}
	return nil
}

func (e *Engine) SetBypassed(id graph.NodeID, v bool) error {
	e.mu.Lock()
	defer e.unlock()
	return e.graph.SetBypassed(id, v)
}

func (e *Engine) SetMuted(id graph.NodeID, v bool) error {
	e.mu.Lock()
	defer e.unlock()
	return e.graph.SetMuted(id, v)
}

func (e *Engine) SetConnectionEnabled(id graph.ConnID, v bool) error {
	e.mu.Lock()
	defer e.unlock()
	return e.graph.SetConnectionEnabled(id, v)
}

func (e *Engine) SetConnectionGain(id graph.ConnID, gain float64) error {
	e.mu.Lock()
	defer e.unlock()
	return e.graph.SetConnectionGain(id, gain)
}

func (e *Engine) ProcessingOrder() ([]graph.NodeID, error) {
	e.mu.Lock()
	defer e.unlock()
	return e.graph.ProcessingOrder()
}

func (e *Engine) Validate() graph.Validation {
	e.mu.Lock()
	defer e.unlock()
	return e.graph.Validate()
}

func (e *Engine) Nodes() []graph.NodeInfo {
	e.mu.Lock()
	defer e.unlock()
	return e.graph.Nodes()
}

func (e *Engine) Connections() []graph.Connection {
	e.mu.Lock()
	defer e.unlock()
	return e.graph.Connections()
}

// Output is the node feeding the device.
func (e *Engine) Output() graph.NodeID { return e.outputID }

// Input is the node carrying device input, or 0 without input channels.
func (e *Engine) Input() graph.NodeID { return e.inputID }

func (e *Engine) props(id graph.NodeID) (audio.Device, error) {
	n, ok := e.graph.Instance(id)
	if !ok {
		return nil, fmt.Errorf("%w: no node %d", audio.ErrInvalidArgument, id)
	}
	d, ok := n.(audio.Device)
	if !ok {
		return nil, fmt.Errorf("%w: node %d has no properties", audio.ErrInvalidArgument, id)
	}
	return d, nil
}

// SetProp sets a node parameter. The audio side sees it on its next
// buffer.
func (e *Engine) SetProp(id graph.NodeID, key string, v interface{}) error {
	e.mu.Lock()
	defer e.unlock()
	d, err := e.props(id)
	if err != nil {
		return err
	}
	return d.Set(key, v)
}

func (e *Engine) Prop(id graph.NodeID, key string) (interface{}, error) {
	e.mu.Lock()
	defer e.unlock()
	d, err := e.props(id)
	if err != nil {
		return nil, err
	}
	return d.Get(key)
}

// PropKeys lists the parameters of a node.
func (e *Engine) PropKeys(id graph.NodeID) ([]string, error) {
	e.mu.Lock()
	defer e.unlock()
	d, err := e.props(id)
	if err != nil {
		return nil, err
	}
	if k, ok := d.(interface{ Keys() []string }); ok {
		return k.Keys(), nil
	}
	return nil, nil
}

func (e *Engine) LoadPreset(id graph.NodeID, name string) error {
	e.mu.Lock()
	defer e.unlock()
	d, err := e.props(id)
	if err != nil {
		return err
	}
	return audio.LoadPreset(name, d)
}

// LoadSound assigns a sample file to a key of a sampler node. The sampler
// keeps its reference to the pooled sample.
func (e *Engine) LoadSound(id graph.NodeID, path string, key int) error {
	e.mu.Lock()
	defer e.unlock()
	d, err := e.props(id)
	if err != nil {
		return err
	}
	v, err := d.Get(audio.PropSoundMap)
	if err != nil {
		return err
	}
	current, ok := v.(*audio.SoundMapping)
	if !ok {
		return fmt.Errorf("%w: cannot convert %v to sound mapping", audio.ErrInvalidArgument, v)
	}
	sid, err := e.pool.Acquire(path)
	if err != nil {
		return err
	}
	s := e.pool.Get(sid)
	mapping := *current
	if err := mapping.Put(key, &audio.Sound{Name: s.Name, Channels: s.Data}); err != nil {
		e.pool.Release(sid)
		return err
	}
	return d.Set(audio.PropSoundMap, &mapping)
}

// LoadSample adds a file to the sample pool. The caller holds one
// reference to the returned sample.
func (e *Engine) LoadSample(path string) (pool.ID, error) { return e.pool.Acquire(path) }

func (e *Engine) Samples() []*pool.Sample { return e.pool.Samples() }

// CollectSamples drops unreferenced samples while the pool is over budget.
func (e *Engine) CollectSamples() int { return e.pool.Collect() }

func (e *Engine) Stats() telemetry.Stats { return e.telemetry.Snapshot() }

func (e *Engine) Load() float64 { return e.telemetry.Load() }

func (e *Engine) Xruns() uint64 { return e.telemetry.Snapshot().Xruns }

func (e *Engine) Meters(id mixer.ID) (mixer.Meters, error) { return e.mixer.Meters(id) }

func (e *Engine) ResetMeters(id mixer.ID) error { return e.mixer.ResetMeters(id) }

// Monitor drains telemetry until ctx is done. Failures are kept for
// Failures and passed on to report when it is not nil.
func (e *Engine) Monitor(ctx context.Context, report func(telemetry.Failure)) {
	e.telemetry.Run(ctx, func(f telemetry.Failure) {
		e.mu.Lock()
		e.record(f)
		e.mu.Unlock()
		if report != nil {
			report(f)
		}
	})
}

// PollTelemetry is a single Monitor step for hosts without a monitor
// goroutine.
func (e *Engine) PollTelemetry() []telemetry.Failure {
	failures := e.telemetry.Poll()
	e.mu.Lock()
	defer e.unlock()
	for _, f := range failures {
		e.record(f)
	}
	return failures
}

func (e *Engine) record(f telemetry.Failure) {
	if len(e.failures) == maxFailures {
		copy(e.failures, e.failures[1:])
		e.failures = e.failures[:maxFailures-1]
	}
	e.failures = append(e.failures, f)
}

// Failures returns the most recent failures reported by the audio side.
func (e *Engine) Failures() []telemetry.Failure {
	e.mu.Lock()
	defer e.unlock()
	return append([]telemetry.Failure(nil), e.failures...)
}

// Ack re-arms reporting for a failure kind and forgets the kept failures
// of that kind.
func (e *Engine) Ack(kind telemetry.Kind) {
	e.mu.Lock()
	defer e.unlock()
	kept := e.failures[:0]
	for _, f := range e.failures {
		if f.Kind != kind {
			kept = append(kept, f)
		}
	}
	e.failures = kept
	e.telemetry.Ack(kind)
}
