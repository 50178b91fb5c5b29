package engine

import (
	"encoding/json"
	"io"

	"github.com/google/uuid"
	"github.com/mrdg/daw/graph"
	"github.com/mrdg/daw/mixer"
	"github.com/mrdg/daw/pool"
	"github.com/mrdg/daw/telemetry"
	"github.com/mrdg/daw/timeline"
	"github.com/mrdg/daw/transport"
)

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	Session     uuid.UUID           `json:"session"`
	Nodes       []graph.NodeInfo    `json:"nodes"`
	Connections []graph.Connection  `json:"connections"`
	Order       []graph.NodeID      `json:"order,omitempty"`
	Channels    []mixer.ChannelInfo `json:"channels"`
	Tracks      []timeline.Track    `json:"tracks"`
	Transport   transport.Snapshot  `json:"transport"`
	Telemetry   telemetry.Stats     `json:"telemetry"`
	Failures    []telemetry.Failure `json:"failures,omitempty"`
	Samples     []SampleInfo        `json:"samples,omitempty"`
	Pool        pool.Stats          `json:"pool"`
}

type SampleInfo struct {
	ID         pool.ID   `json:"id"`
	UUID       uuid.UUID `json:"uuid"`
	Name       string    `json:"name"`
	Path       string    `json:"path,omitempty"`
	Channels   int       `json:"channels"`
	Frames     int       `json:"frames"`
	SampleRate float64   `json:"sample_rate"`
}

// Snapshot copies the session state. A graph with a cycle has no
// processing order.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.unlock()
	order, _ := e.graph.ProcessingOrder()
	s := Snapshot{
		Session:     e.session,
		Nodes:       e.graph.Nodes(),
		Connections: e.graph.Connections(),
		Order:       order,
		Channels:    e.mixer.Channels(),
		Tracks:      e.timeline.Tracks(),
		Transport:   e.transport.Snapshot(),
		Telemetry:   e.telemetry.Snapshot(),
		Failures:    append([]telemetry.Failure(nil), e.failures...),
		Pool:        e.pool.Stats(),
	}
	for _, smp := range e.pool.Samples() {
		s.Samples = append(s.Samples, SampleInfo{
			ID:         smp.ID,
			UUID:       smp.UUID,
			Name:       smp.Name,
			Path:       smp.Path,
			Channels:   smp.Channels(),
			Frames:     smp.Frames(),
			SampleRate: smp.SampleRate,
		})
	}
	return s
}

// WriteJSON writes an indented Snapshot to w.
func (e *Engine) WriteJSON(w io.Writer) error {
	b, err := json.MarshalIndent(e.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}
