package engine

import (
	"fmt"
	"sort"

	"github.com/mrdg/daw/audio"
	"github.com/mrdg/daw/graph"
	"github.com/mrdg/daw/mixer"
)

// strip tracks the graph side of a mixer channel: its node and the
// connections realising its output and sends.
type strip struct {
	node  graph.NodeID
	out   route
	sends [mixer.MaxSends]route
}

type route struct {
	conn   graph.ConnID
	target mixer.ID
}

// reroute points r at the strip of want, reusing the existing connection
// when it is still in place. A zero want leaves src unconnected.
func (e *Engine) reroute(r *route, want mixer.ID, src graph.Endpoint) error {
	if r.conn != 0 {
		if _, ok := e.graph.Connection(r.conn); ok && r.target == want {
			return nil
		}
		e.graph.Disconnect(r.conn)
		r.conn, r.target = 0, 0
	}
	if want == 0 {
		return nil
	}
	dst, ok := e.strips[want]
	if !ok {
		return fmt.Errorf("%w: no channel %d", audio.ErrInvalidArgument, want)
	}
	conn, err := e.graph.Connect(src, graph.Endpoint{Node: dst.node}, 1)
	if err != nil {
		return err
	}
	r.conn, r.target = conn, want
	return nil
}

// syncStrip brings the graph connections of a channel in line with its
// mixer routing.
func (e *Engine) syncStrip(id mixer.ID) error {
	s, ch := e.strips[id], e.mixer.Channel(id)
	if s == nil || ch == nil || id == mixer.MasterID {
		return nil
	}
	if err := e.reroute(&s.out, ch.Output(), graph.Endpoint{Node: s.node}); err != nil {
		return err
	}
	var want [mixer.MaxSends]mixer.ID
	for _, snd := range ch.Sends() {
		want[snd.Slot] = snd.Target
	}
	for slot := range s.sends {
		src := graph.Endpoint{Node: s.node, Port: mixer.SendPort(slot)}
		if err := e.reroute(&s.sends[slot], want[slot], src); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) syncStrips() error {
	ids := make([]mixer.ID, 0, len(e.strips))
	for id := range e.strips {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := e.syncStrip(id); err != nil {
			return err
		}
	}
	return nil
}

// managed reports whether a connection is part of the mixer or track
// wiring.
func (e *Engine) managed(id graph.ConnID) bool {
	for _, s := range e.strips {
		if s.out.conn == id {
			return true
		}
		for _, r := range s.sends {
			if r.conn == id {
				return true
			}
		}
	}
	for _, l := range e.lanes {
		if l.out.conn == id || l.midi == id {
			return true
		}
	}
	return false
}

func (e *Engine) room(n int) error {
	if e.graph.Room() < n {
		return audio.ErrQueueFull
	}
	return nil
}

// AddChannel adds a mixer channel and its strip, routed to the master.
func (e *Engine) AddChannel(typ mixer.Type, name string) (mixer.ID, error) {
	e.mu.Lock()
	defer e.unlock()
	return e.addChannel(typ, name)
}

func (e *Engine) addChannel(typ mixer.Type, name string) (mixer.ID, error) {
	if err := e.room(2); err != nil {
		return 0, err
	}
	id, err := e.mixer.AddChannel(typ, name)
	if err != nil {
		return 0, err
	}
	node, err := e.graph.AddNode(mixer.NewStrip(e.mixer, e.mixer.Channel(id)))
	if err != nil {
		e.mixer.RemoveChannel(id)
		return 0, err
	}
	e.owned[node] = "mixer"
	e.strips[id] = &strip{node: node}
	if err := e.syncStrip(id); err != nil {
		e.graph.RemoveNode(node)
		delete(e.owned, node)
		delete(e.strips, id)
		e.mixer.RemoveChannel(id)
		return 0, err
	}
	return id, nil
}

// RemoveChannel removes a channel and its strip. Channels routed to it fall
// back to the master and tracks routed to it are left unrouted.
func (e *Engine) RemoveChannel(id mixer.ID) error {
	e.mu.Lock()
	defer e.unlock()
	return e.removeChannel(id)
}

func (e *Engine) removeChannel(id mixer.ID) error {
	s, ok := e.strips[id]
	if !ok || id == mixer.MasterID {
		return e.mixer.RemoveChannel(id)
	}
	from, to := e.graph.ConnectionsFrom(s.node), e.graph.ConnectionsTo(s.node)
	if err := e.room(1 + len(from) + 2*len(to)); err != nil {
		return err
	}
	if err := e.graph.RemoveNodeErr(s.node); err != nil {
		return err
	}
	delete(e.owned, s.node)
	delete(e.strips, id)
	if err := e.mixer.RemoveChannel(id); err != nil {
		return err
	}
	for tid, l := range e.lanes {
		if l.owned == id {
			l.owned = 0
		}
		if l.out.target == id {
			if err := e.timeline.SetTrackChannel(tid, 0); err != nil {
				return err
			}
			l.out = route{}
		}
	}
	return e.syncStrips()
}

// ChannelNode is the strip node of a channel.
func (e *Engine) ChannelNode(id mixer.ID) (graph.NodeID, bool) {
	e.mu.Lock()
	defer e.unlock()
	s, ok := e.strips[id]
	if !ok {
		return 0, false
	}
	return s.node, true
}

func (e *Engine) SetOutput(id, bus mixer.ID) error {
	e.mu.Lock()
	defer e.unlock()
	if err := e.room(2); err != nil {
		return err
	}
	if err := e.mixer.SetOutput(id, bus); err != nil {
		return err
	}
	return e.syncStrip(id)
}

// AddSend routes a copy of a channel to a bus and returns the send slot.
func (e *Engine) AddSend(id, target mixer.ID, levelDB float64, preFader bool) (int, error) {
	e.mu.Lock()
	defer e.unlock()
	if err := e.room(1); err != nil {
		return 0, err
	}
	slot, err := e.mixer.AddSend(id, target, levelDB, preFader)
	if err != nil {
		return 0, err
	}
	return slot, e.syncStrip(id)
}

func (e *Engine) RemoveSend(id, target mixer.ID) error {
	e.mu.Lock()
	defer e.unlock()
	if err := e.room(1); err != nil {
		return err
	}
	if err := e.mixer.RemoveSend(id, target); err != nil {
		return err
	}
	return e.syncStrip(id)
}

func (e *Engine) SetSendLevel(id, target mixer.ID, levelDB float64) error {
	return e.mixer.SetSendLevel(id, target, levelDB)
}

func (e *Engine) SetSendEnabled(id, target mixer.ID, v bool) error {
	return e.mixer.SetSendEnabled(id, target, v)
}

func (e *Engine) SetVolume(id mixer.ID, db float64) error { return e.mixer.SetVolume(id, db) }
func (e *Engine) SetPan(id mixer.ID, pan float64) error   { return e.mixer.SetPan(id, pan) }
func (e *Engine) SetMute(id mixer.ID, v bool) error       { return e.mixer.SetMute(id, v) }
func (e *Engine) SetSolo(id mixer.ID, v bool) error       { return e.mixer.SetSolo(id, v) }
func (e *Engine) SetRecordArm(id mixer.ID, v bool) error  { return e.mixer.SetRecordArm(id, v) }

func (e *Engine) Channels() []mixer.ChannelInfo { return e.mixer.Channels() }
