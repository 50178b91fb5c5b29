// Package graph schedules audio nodes in dependency order and moves audio
// between them along connections.
//
// A Graph is driven from two sides. Control methods (AddNode, Connect, ...)
// validate against a mirror of the topology and enqueue commands; Process,
// called by the audio callback, applies queued commands before rendering.
// Control methods must be called from one goroutine at a time.
package graph

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/mrdg/daw/audio"
	"github.com/mrdg/daw/queue"
)

type NodeID uint32

type ConnID uint32

// Endpoint addresses a port: an output index on the source side of a
// connection, an input index on the destination side.
type Endpoint struct {
	Node NodeID `json:"node"`
	Port int    `json:"port"`
}

type Connection struct {
	ID      ConnID     `json:"id"`
	Src     Endpoint   `json:"src"`
	Dst     Endpoint   `json:"dst"`
	Gain    float64    `json:"gain"`
	Enabled bool       `json:"enabled"`
	Kind    audio.Kind `json:"kind"`
}

func (c Connection) Involves(id NodeID) bool { return c.Src.Node == id || c.Dst.Node == id }

type Config struct {
	MaxNodes       int
	MaxConnections int
	QueueSize      int // power of 2
}

var DefaultConfig = Config{
	MaxNodes:       256,
	MaxConnections: 1024,
	QueueSize:      256,
}

// entry is the graph's record of a node and the buffers attached to its
// ports.
type entry struct {
	id      NodeID
	node    audio.Node
	info    audio.Info
	inPorts []audio.Port
	outPort []audio.Port
	in      []audio.Signal
	out     []audio.Signal
}

func (e *entry) allocate(maxFrames int) {
	e.in = signals(e.inPorts, maxFrames)
	e.out = signals(e.outPort, maxFrames)
}

func signals(ports []audio.Port, maxFrames int) []audio.Signal {
	s := make([]audio.Signal, len(ports))
	for i, p := range ports {
		if p.Kind.Signal() {
			s[i].Audio = audio.NewBuffer(p.Channels, maxFrames)
		} else {
			s[i].Events = audio.NewEvents(maxEvents)
		}
	}
	return s
}

const maxEvents = 256

type pendingRelease struct {
	seq   uint64
	entry *entry
}

type Graph struct {
	cfg Config

	// control side
	ctl       topology
	slots     map[NodeID]int32
	connSlots map[ConnID]int32
	freeNodes []int32
	freeConns []int32
	nextNode  NodeID
	nextConn  ConnID
	seq       uint64
	releases  []pendingRelease

	// shared
	queue      *queue.SPSC[command]
	staged     []*entry
	applied    atomic.Uint64
	prepared   atomic.Bool
	sampleRate float64
	maxFrames  int

	// audio side
	rt      topology
	applyFn func(command) bool
	lastSeq uint64
	dropped int
}

func New(cfg Config) *Graph {
	if cfg.MaxNodes <= 0 {
		cfg.MaxNodes = DefaultConfig.MaxNodes
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultConfig.MaxConnections
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig.QueueSize
	}
	g := &Graph{
		cfg:       cfg,
		ctl:       newTopology(cfg.MaxNodes, cfg.MaxConnections),
		rt:        newTopology(cfg.MaxNodes, cfg.MaxConnections),
		slots:     make(map[NodeID]int32),
		connSlots: make(map[ConnID]int32),
		queue:     queue.NewSPSC[command](cfg.QueueSize),
		staged:    make([]*entry, cfg.QueueSize),
		nextNode:  1,
		nextConn:  1,
	}
	for s := cfg.MaxNodes - 1; s >= 0; s-- {
		g.freeNodes = append(g.freeNodes, int32(s))
	}
	for s := cfg.MaxConnections - 1; s >= 0; s-- {
		g.freeConns = append(g.freeConns, int32(s))
	}
	g.applyFn = g.apply
	return g
}

// AddNode validates and prepares n and schedules it for insertion.
func (g *Graph) AddNode(n audio.Node) (NodeID, error) {
	g.collect()
	if err := audio.Validate(n); err != nil {
		return 0, err
	}
	for _, e := range g.ctl.nodes {
		if e != nil && e.node == n {
			return 0, fmt.Errorf("%w: node %s is already in the graph as %d", audio.ErrInvalidArgument, e.info.Name, e.id)
		}
	}
	if len(g.freeNodes) == 0 {
		return 0, fmt.Errorf("%w: graph is full (%d nodes)", audio.ErrInvalidArgument, g.cfg.MaxNodes)
	}
	if !g.hasRoom(1) {
		return 0, audio.ErrQueueFull
	}
	in, out := audio.Split(n.Ports())
	e := &entry{
		id:      g.nextNode,
		node:    n,
		info:    n.Info(),
		inPorts: in,
		outPort: out,
	}
	if g.prepared.Load() {
		if err := n.Prepare(g.sampleRate, g.maxFrames); err != nil {
			return 0, fmt.Errorf("prepare %s: %w", e.info.Name, err)
		}
		e.allocate(g.maxFrames)
	}
	slot := g.freeNodes[len(g.freeNodes)-1]
	g.freeNodes = g.freeNodes[:len(g.freeNodes)-1]
	g.nextNode++

	g.stage(e)
	g.push(command{op: opAddNode, node: e.id, slot: slot})
	g.ctl.addNode(slot, e)
	g.slots[e.id] = slot
	return e.id, nil
}

// RemoveNode disconnects and removes a node. The node is released once the
// audio side has dropped it.
func (g *Graph) RemoveNode(id NodeID) bool {
	g.collect()
	slot, ok := g.slots[id]
	if !ok {
		return false
	}
	incident := g.incident(id)
	if !g.hasRoom(len(incident) + 1) {
		return false
	}
	for _, c := range incident {
		g.disconnect(c)
	}
	g.push(command{op: opRemoveNode, node: id, slot: slot})
	g.releases = append(g.releases, pendingRelease{seq: g.seq, entry: g.ctl.nodes[slot]})
	g.ctl.removeNode(slot)
	delete(g.slots, id)
	g.freeNodes = append(g.freeNodes, slot)
	return true
}

// RemoveNodeErr is RemoveNode with the reason for a failure.
func (g *Graph) RemoveNodeErr(id NodeID) error {
	if _, ok := g.slots[id]; !ok {
		return fmt.Errorf("%w: no node %d", audio.ErrInvalidArgument, id)
	}
	if !g.RemoveNode(id) {
		return audio.ErrQueueFull
	}
	return nil
}

// Connect adds a connection from an output port to an input port.
func (g *Graph) Connect(src, dst Endpoint, gain float64) (ConnID, error) {
	g.collect()
	l, err := g.check(src, dst)
	if err != nil {
		return 0, err
	}
	if len(g.freeConns) == 0 {
		return 0, fmt.Errorf("%w: graph is full (%d connections)", audio.ErrInvalidArgument, g.cfg.MaxConnections)
	}
	if !g.hasRoom(1) {
		return 0, audio.ErrQueueFull
	}
	slot := g.freeConns[len(g.freeConns)-1]
	g.freeConns = g.freeConns[:len(g.freeConns)-1]
	l.ID = g.nextConn
	l.Gain = gain
	l.Enabled = true
	g.nextConn++

	g.push(command{op: opConnect, conn: l.ID, cslot: slot, link: l})
	g.ctl.addLink(slot, l)
	g.connSlots[l.ID] = slot
	return l.ID, nil
}

// check validates a prospective connection against the control topology.
func (g *Graph) check(src, dst Endpoint) (link, error) {
	var l link
	srcSlot, ok := g.slots[src.Node]
	if !ok {
		return l, audio.RejectConnection(audio.ReasonMissingEndpoint, "no source node %d", src.Node)
	}
	dstSlot, ok := g.slots[dst.Node]
	if !ok {
		return l, audio.RejectConnection(audio.ReasonMissingEndpoint, "no destination node %d", dst.Node)
	}
	se, de := g.ctl.nodes[srcSlot], g.ctl.nodes[dstSlot]
	if src.Port < 0 || src.Port >= len(se.outPort) {
		return l, audio.RejectConnection(audio.ReasonMissingEndpoint, "%s has no output %d", se.info.Name, src.Port)
	}
	if dst.Port < 0 || dst.Port >= len(de.inPorts) {
		return l, audio.RejectConnection(audio.ReasonMissingEndpoint, "%s has no input %d", de.info.Name, dst.Port)
	}
	out, in := se.outPort[src.Port], de.inPorts[dst.Port]
	if out.Kind != in.Kind {
		return l, audio.RejectConnection(audio.ReasonKindMismatch, "%s output %s is %s, %s input %s is %s",
			se.info.Name, out.Name, out.Kind, de.info.Name, in.Name, in.Kind)
	}
	for i := range g.ctl.links {
		c := &g.ctl.links[i]
		if !c.live() || c.Dst != dst {
			continue
		}
		if c.Src == src {
			return l, audio.RejectConnection(audio.ReasonDuplicate, "connection %d already links these ports", c.ID)
		}
		if !in.Summing {
			return l, audio.RejectConnection(audio.ReasonOccupied, "%s input %s is fed by connection %d", de.info.Name, in.Name, c.ID)
		}
	}
	if srcSlot == dstSlot || g.ctl.reaches(dstSlot, srcSlot) {
		return l, audio.RejectConnection(audio.ReasonCycle, "%d is downstream of %d", src.Node, dst.Node)
	}
	l.Src, l.Dst, l.Kind = src, dst, out.Kind
	l.srcSlot, l.dstSlot = srcSlot, dstSlot
	return l, nil
}

// Disconnect removes a connection.
func (g *Graph) Disconnect(id ConnID) bool {
	g.collect()
	if _, ok := g.connSlots[id]; !ok || !g.hasRoom(1) {
		return false
	}
	g.disconnect(id)
	return true
}

func (g *Graph) disconnect(id ConnID) {
	slot := g.connSlots[id]
	g.push(command{op: opDisconnect, conn: id, cslot: slot})
	g.ctl.removeLink(slot)
	delete(g.connSlots, id)
	g.freeConns = append(g.freeConns, slot)
}

// DisconnectNode removes every connection to or from a node and returns
// how many were removed. Nothing is removed if the queue cannot take them
// all.
func (g *Graph) DisconnectNode(id NodeID) int {
	g.collect()
	incident := g.incident(id)
	if !g.hasRoom(len(incident)) {
		return 0
	}
	for _, c := range incident {
		g.disconnect(c)
	}
	return len(incident)
}

func (g *Graph) incident(id NodeID) []ConnID {
	var ids []ConnID
	for i := range g.ctl.links {
		if l := &g.ctl.links[i]; l.live() && l.Involves(id) {
			ids = append(ids, l.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SetBypassed takes effect from the next buffer. Flags are atomic so no
// command is queued.
func (g *Graph) SetBypassed(id NodeID, v bool) error {
	e, err := g.lookup(id)
	if err != nil {
		return err
	}
	e.node.Flags().SetBypassed(v)
	return nil
}

func (g *Graph) SetMuted(id NodeID, v bool) error {
	e, err := g.lookup(id)
	if err != nil {
		return err
	}
	e.node.Flags().SetMuted(v)
	return nil
}

func (g *Graph) lookup(id NodeID) (*entry, error) {
	slot, ok := g.slots[id]
	if !ok {
		return nil, fmt.Errorf("%w: no node %d", audio.ErrInvalidArgument, id)
	}
	return g.ctl.nodes[slot], nil
}

// SetConnectionEnabled switches a connection on or off without changing
// the topology.
func (g *Graph) SetConnectionEnabled(id ConnID, v bool) error {
	return g.updateLink(id, func(l *link, cmd *command) {
		l.Enabled = v
		cmd.op, cmd.flag = opSetEnabled, v
	})
}

func (g *Graph) SetConnectionGain(id ConnID, gain float64) error {
	return g.updateLink(id, func(l *link, cmd *command) {
		l.Gain = gain
		cmd.op, cmd.gain = opSetGain, gain
	})
}

func (g *Graph) updateLink(id ConnID, f func(*link, *command)) error {
	g.collect()
	slot, ok := g.connSlots[id]
	if !ok {
		return fmt.Errorf("%w: no connection %d", audio.ErrInvalidArgument, id)
	}
	if !g.hasRoom(1) {
		return audio.ErrQueueFull
	}
	cmd := command{conn: id, cslot: slot}
	f(&g.ctl.links[slot], &cmd)
	g.push(cmd)
	return nil
}

// Clear removes every node and connection.
func (g *Graph) Clear() error {
	g.collect()
	if !g.hasRoom(1) {
		return audio.ErrQueueFull
	}
	g.push(command{op: opClear})
	for slot, e := range g.ctl.nodes {
		if e != nil {
			g.releases = append(g.releases, pendingRelease{seq: g.seq, entry: e})
			g.freeNodes = append(g.freeNodes, int32(slot))
		}
	}
	for slot := range g.ctl.links {
		if g.ctl.links[slot].live() {
			g.freeConns = append(g.freeConns, int32(slot))
		}
	}
	g.ctl.clear()
	clear(g.slots)
	clear(g.connSlots)
	return nil
}

// Prepare prepares every node and allocates port buffers. It must not run
// concurrently with Process.
func (g *Graph) Prepare(sampleRate float64, maxFrames int) error {
	if sampleRate <= 0 || maxFrames <= 0 {
		return fmt.Errorf("%w: sample rate %v, max frames %d", audio.ErrInvalidArgument, sampleRate, maxFrames)
	}
	g.Sync()
	for _, e := range g.ctl.nodes {
		if e == nil {
			continue
		}
		if err := e.node.Prepare(sampleRate, maxFrames); err != nil {
			return fmt.Errorf("prepare %s: %w", e.info.Name, err)
		}
		e.allocate(maxFrames)
	}
	g.sampleRate = sampleRate
	g.maxFrames = maxFrames
	g.prepared.Store(true)
	return nil
}

// Release releases every node. It must not run concurrently with Process.
func (g *Graph) Release() {
	g.Sync()
	g.prepared.Store(false)
	for _, e := range g.ctl.nodes {
		if e != nil {
			e.node.Release()
			e.in, e.out = nil, nil
		}
	}
}

func (g *Graph) Prepared() bool { return g.prepared.Load() }

func (g *Graph) MaxFrames() int { return g.maxFrames }

// Sync applies queued commands on the calling goroutine. Use it while the
// audio callback is not running.
func (g *Graph) Sync() {
	g.drain()
	g.collect()
}

// Pending is the number of commands the audio side has not applied yet.
func (g *Graph) Pending() int { return g.queue.Len() }

// Room is the number of commands that can be queued before QueueFull.
func (g *Graph) Room() int { return g.queue.Cap() - g.queue.Len() }

func (g *Graph) hasRoom(n int) bool { return g.Room() >= n }

func (g *Graph) push(cmd command) {
	g.seq++
	cmd.seq = g.seq
	if !g.queue.TryPush(cmd) {
		// hasRoom was checked and only the control side pushes
		panic("graph: command queue overflow")
	}
}

// stage hands e to the audio side along with the next command pushed.
func (g *Graph) stage(e *entry) {
	g.staged[(g.seq+1)&uint64(len(g.staged)-1)] = e
}

// collect releases removed nodes the audio side no longer references.
func (g *Graph) collect() {
	applied := g.applied.Load()
	n := 0
	for _, r := range g.releases {
		if r.seq <= applied {
			if g.prepared.Load() {
				r.entry.node.Release()
			}
			continue
		}
		g.releases[n] = r
		n++
	}
	clear(g.releases[n:])
	g.releases = g.releases[:n]
}
