package graph

type opcode uint8

const (
	opAddNode opcode = iota + 1
	opRemoveNode
	opConnect
	opDisconnect
	opSetEnabled
	opSetGain
	opClear
)

func (op opcode) String() string {
	switch op {
	case opAddNode:
		return "add-node"
	case opRemoveNode:
		return "remove-node"
	case opConnect:
		return "connect"
	case opDisconnect:
		return "disconnect"
	case opSetEnabled:
		return "set-enabled"
	case opSetGain:
		return "set-gain"
	case opClear:
		return "clear"
	}
	return "unknown"
}

// command is a structural change queued for the audio side. It holds no
// pointers; a node being added travels through the staging ring instead.
type command struct {
	seq   uint64
	op    opcode
	node  NodeID
	slot  int32
	conn  ConnID
	cslot int32
	link  link
	gain  float64
	flag  bool
}

// apply runs on the audio side, or on the control side from Sync while
// audio is stopped.
func (g *Graph) apply(cmd command) bool {
	t := &g.rt
	switch cmd.op {
	case opAddNode:
		i := cmd.seq & uint64(len(g.staged)-1)
		t.addNode(cmd.slot, g.staged[i])
		g.staged[i] = nil
	case opRemoveNode:
		t.removeNode(cmd.slot)
	case opConnect:
		t.addLink(cmd.cslot, cmd.link)
	case opDisconnect:
		t.removeLink(cmd.cslot)
	case opSetEnabled:
		t.links[cmd.cslot].Enabled = cmd.flag
	case opSetGain:
		t.links[cmd.cslot].Gain = cmd.gain
	case opClear:
		t.clear()
	}
	g.lastSeq = cmd.seq
	return true
}

// drain applies every queued command and acknowledges the last one.
func (g *Graph) drain() {
	if g.queue.Drain(g.applyFn) > 0 {
		g.applied.Store(g.lastSeq)
	}
}
