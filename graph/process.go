package graph

import (
	"fmt"

	"github.com/mrdg/daw/audio"
)

// Process applies queued commands and renders one buffer through every node
// in processing order. It runs on the audio callback and does not allocate.
// When it returns an error, no node has run and outputs should be treated
// as silence.
func (g *Graph) Process(ctx *audio.Context) error {
	g.drain()
	if !g.prepared.Load() {
		return audio.ErrNotPrepared
	}
	if ctx.Frames <= 0 || ctx.Frames > g.maxFrames {
		return audio.ErrInvalidArgument
	}
	t := &g.rt
	if t.dirty {
		t.sort()
	}
	if t.broken {
		return audio.ErrStructuralCycle
	}
	for _, slot := range t.order {
		g.run(ctx, slot)
	}
	return nil
}

func (g *Graph) run(ctx *audio.Context, slot int32) {
	t := &g.rt
	e := t.nodes[slot]
	n := ctx.Frames

	for i := range e.in {
		if b := e.in[i].Audio; b != nil {
			b.SetFrames(n)
			b.Clear()
		} else {
			e.in[i].Events.Clear()
		}
	}
	for _, li := range t.inputs(slot) {
		l := &t.links[li]
		if !l.Enabled {
			continue
		}
		src := t.nodes[l.srcSlot].out[l.Src.Port]
		dst := e.in[l.Dst.Port]
		if dst.Audio != nil {
			dst.Audio.AddFrom(src.Audio, l.Gain)
		} else {
			dst.Events.Merge(src.Events)
		}
	}
	for i := range e.out {
		if b := e.out[i].Audio; b != nil {
			b.SetFrames(n)
		} else {
			e.out[i].Events.Clear()
		}
	}
	g.dropped += dropped(e.in)

	flags := e.node.Flags()
	switch {
	case flags.Muted():
		if e.info.Category == audio.Sink {
			return
		}
		for i := range e.out {
			if b := e.out[i].Audio; b != nil {
				b.Clear()
			}
		}
	case flags.Bypassed() && (e.info.Category == audio.Processor || e.info.Category == audio.Mixer):
		bypass(e)
	default:
		e.node.Process(ctx, e.in, e.out)
	}
	g.dropped += dropped(e.out)
}

func dropped(sigs []audio.Signal) int {
	n := 0
	for i := range sigs {
		if ev := sigs[i].Events; ev != nil {
			n += ev.Dropped()
		}
	}
	return n
}

// Dropped returns the number of MIDI events lost to full port buffers since
// the last call. Audio side only.
func (g *Graph) Dropped() int {
	n := g.dropped
	g.dropped = 0
	return n
}

// bypass pairs inputs with outputs of the same kind in port order and
// copies one to the other. Unpaired outputs are silent.
func bypass(e *entry) {
	next := 0
	for i := range e.out {
		out := e.out[i]
		kind := e.outPort[i].Kind
		for next < len(e.in) && e.inPorts[next].Kind != kind {
			next++
		}
		switch {
		case next >= len(e.in):
			if out.Audio != nil {
				out.Audio.Clear()
			}
		case out.Audio != nil:
			out.Audio.CopyFrom(e.in[next].Audio)
			next++
		default:
			out.Events.Merge(e.in[next].Events)
			next++
		}
	}
}

// Output returns the buffer a node wrote to an output port during the last
// Process call. Audio side only.
func (g *Graph) Output(id NodeID, port int) *audio.Buffer {
	for _, slot := range g.rt.order {
		if e := g.rt.nodes[slot]; e.id == id && port < len(e.out) {
			return e.out[port].Audio
		}
	}
	return nil
}

// ProcessingOrder returns node ids in the order the next Process call will
// run them, or an error if the graph has a cycle.
func (g *Graph) ProcessingOrder() ([]NodeID, error) {
	t := &g.ctl
	if t.dirty || t.broken {
		t.sort()
	}
	if t.broken {
		return nil, fmt.Errorf("%w: at node %d", audio.ErrStructuralCycle, t.nodes[t.cycleSlot].id)
	}
	ids := make([]NodeID, len(t.order))
	for i, slot := range t.order {
		ids[i] = t.nodes[slot].id
	}
	return ids, nil
}

type NodeInfo struct {
	ID       NodeID         `json:"id"`
	Name     string         `json:"name"`
	Category audio.Category `json:"category"`
	Inputs   []audio.Port   `json:"inputs"`
	Outputs  []audio.Port   `json:"outputs"`
	Bypassed bool           `json:"bypassed"`
	Muted    bool           `json:"muted"`
}

func (e *entry) describe() NodeInfo {
	flags := e.node.Flags()
	return NodeInfo{
		ID:       e.id,
		Name:     e.info.Name,
		Category: e.info.Category,
		Inputs:   e.inPorts,
		Outputs:  e.outPort,
		Bypassed: flags.Bypassed(),
		Muted:    flags.Muted(),
	}
}

// Nodes lists nodes by ascending id.
func (g *Graph) Nodes() []NodeInfo {
	var nodes []NodeInfo
	for _, slot := range g.sortedSlots() {
		nodes = append(nodes, g.ctl.nodes[slot].describe())
	}
	return nodes
}

func (g *Graph) Node(id NodeID) (NodeInfo, bool) {
	e, err := g.lookup(id)
	if err != nil {
		return NodeInfo{}, false
	}
	return e.describe(), true
}

// Instance returns the node registered under id.
func (g *Graph) Instance(id NodeID) (audio.Node, bool) {
	e, err := g.lookup(id)
	if err != nil {
		return nil, false
	}
	return e.node, true
}

func (g *Graph) sortedSlots() []int32 {
	slots := make([]int32, 0, len(g.slots))
	for _, s := range g.slots {
		slots = append(slots, s)
	}
	g.ctl.sortByID(slots)
	return slots
}

// Connections lists connections by ascending id.
func (g *Graph) Connections() []Connection {
	return g.connections(func(Connection) bool { return true })
}

func (g *Graph) ConnectionsFrom(id NodeID) []Connection {
	return g.connections(func(c Connection) bool { return c.Src.Node == id })
}

func (g *Graph) ConnectionsTo(id NodeID) []Connection {
	return g.connections(func(c Connection) bool { return c.Dst.Node == id })
}

func (g *Graph) Connection(id ConnID) (Connection, bool) {
	slot, ok := g.connSlots[id]
	if !ok {
		return Connection{}, false
	}
	return g.ctl.links[slot].Connection, true
}

func (g *Graph) connections(keep func(Connection) bool) []Connection {
	var conns []Connection
	for i := range g.ctl.links {
		if l := &g.ctl.links[i]; l.live() && keep(l.Connection) {
			conns = append(conns, l.Connection)
		}
	}
	sortConnections(conns)
	return conns
}

func sortConnections(conns []Connection) {
	for i := 1; i < len(conns); i++ {
		for j := i; j > 0 && conns[j].ID < conns[j-1].ID; j-- {
			conns[j], conns[j-1] = conns[j-1], conns[j]
		}
	}
}

func (g *Graph) Len() int { return len(g.slots) }

func (g *Graph) Empty() bool { return len(g.slots) == 0 }
