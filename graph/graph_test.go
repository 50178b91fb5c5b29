package graph

import (
	"errors"
	"reflect"
	"testing"

	"github.com/mrdg/daw/audio"
)

type probe struct {
	audio.Base
	calls    int
	released int
}

func newProbe(name string) *probe {
	return &probe{Base: audio.NewBase(name, audio.Processor, audio.AudioIn("in", 1), audio.AudioOut("out", 1))}
}

func (p *probe) Process(ctx *audio.Context, in, out []audio.Signal) {
	p.calls++
	out[0].Audio.CopyFrom(in[0].Audio)
}

func (p *probe) Release() { p.released++ }

func newGraph(t *testing.T) *Graph {
	t.Helper()
	g := New(Config{MaxNodes: 16, MaxConnections: 32, QueueSize: 64})
	if err := g.Prepare(48000, 256); err != nil {
		t.Fatal(err)
	}
	return g
}

func mustAdd(t *testing.T, g *Graph, n audio.Node) NodeID {
	t.Helper()
	id, err := g.AddNode(n)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func mustConnect(t *testing.T, g *Graph, src, dst NodeID, gain float64) ConnID {
	t.Helper()
	id, err := g.Connect(Endpoint{Node: src}, Endpoint{Node: dst}, gain)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func process(t *testing.T, g *Graph, frames int) {
	t.Helper()
	if err := g.Process(&audio.Context{SampleRate: 48000, Frames: frames}); err != nil {
		t.Fatal(err)
	}
}

func checkFill(t *testing.T, buf *audio.Buffer, want float64) {
	t.Helper()
	for c := 0; c < buf.Channels(); c++ {
		for i, v := range buf.Channel(c) {
			if v != want {
				t.Fatalf("channel %d sample %d: want %v, got %v", c, i, want, v)
			}
		}
	}
}

func TestSourceToSink(t *testing.T) {
	g := newGraph(t)
	src := mustAdd(t, g, audio.NewConstant("dc", 2, 0.5))
	out := audio.NewOutput("out", 2)
	sink := mustAdd(t, g, out)
	mustConnect(t, g, src, sink, 1)

	for _, frames := range []int{1, 64, 256} {
		process(t, g, frames)
		if want, got := frames, out.Buffer().Frames(); want != got {
			t.Fatalf("want %d frames, got %d", want, got)
		}
		checkFill(t, out.Buffer(), 0.5)
	}
}

func TestSummingInput(t *testing.T) {
	g := newGraph(t)
	a := mustAdd(t, g, audio.NewConstant("a", 1, 0.25))
	b := mustAdd(t, g, audio.NewConstant("b", 1, 0.5))
	out := audio.NewOutput("out", 1)
	sink := mustAdd(t, g, out)
	mustConnect(t, g, a, sink, 1)
	c := mustConnect(t, g, b, sink, 2)

	process(t, g, 32)
	checkFill(t, out.Buffer(), 1.25)

	if err := g.SetConnectionEnabled(c, false); err != nil {
		t.Fatal(err)
	}
	process(t, g, 32)
	checkFill(t, out.Buffer(), 0.25)

	if err := g.SetConnectionGain(c, 0.5); err != nil {
		t.Fatal(err)
	}
	if err := g.SetConnectionEnabled(c, true); err != nil {
		t.Fatal(err)
	}
	process(t, g, 32)
	checkFill(t, out.Buffer(), 0.5)
}

func TestConnectRejects(t *testing.T) {
	g := newGraph(t)
	dc := mustAdd(t, g, audio.NewConstant("dc", 1, 1))
	p1 := mustAdd(t, g, newProbe("p1"))
	p2 := mustAdd(t, g, newProbe("p2"))
	synth := mustAdd(t, g, audio.NewSynth("synth"))
	sum := mustAdd(t, g, audio.NewSummer("sum", 1))
	mustConnect(t, g, dc, p1, 1)
	mustConnect(t, g, p1, p2, 1)

	tests := []struct {
		name     string
		src, dst Endpoint
		reason   audio.Reason
	}{
		{"missing node", Endpoint{Node: 99}, Endpoint{Node: p1}, audio.ReasonMissingEndpoint},
		{"missing port", Endpoint{Node: dc, Port: 3}, Endpoint{Node: p2}, audio.ReasonMissingEndpoint},
		{"kind mismatch", Endpoint{Node: dc}, Endpoint{Node: synth}, audio.ReasonKindMismatch},
		{"duplicate", Endpoint{Node: dc}, Endpoint{Node: p1}, audio.ReasonDuplicate},
		{"occupied", Endpoint{Node: dc}, Endpoint{Node: p2}, audio.ReasonOccupied},
		{"self", Endpoint{Node: sum}, Endpoint{Node: sum}, audio.ReasonCycle},
	}
	for _, test := range tests {
		before := g.Connections()
		_, err := g.Connect(test.src, test.dst, 1)
		if !errors.Is(err, audio.ErrInvalidConnection) {
			t.Errorf("%s: want invalid connection, got %v", test.name, err)
			continue
		}
		if !audio.IsReason(err, test.reason) {
			t.Errorf("%s: want reason %s, got %v", test.name, test.reason, err)
		}
		if !reflect.DeepEqual(before, g.Connections()) {
			t.Errorf("%s: connections changed", test.name)
		}
	}
}

func TestConnectRejectsCycle(t *testing.T) {
	g := newGraph(t)
	sum1 := mustAdd(t, g, audio.NewSummer("sum1", 1))
	sum2 := mustAdd(t, g, audio.NewSummer("sum2", 1))
	mustConnect(t, g, sum1, sum2, 1)

	_, err := g.Connect(Endpoint{Node: sum2}, Endpoint{Node: sum1}, 1)
	if !audio.IsReason(err, audio.ReasonCycle) {
		t.Fatalf("want cycle, got %v", err)
	}
	if v := g.Validate(); !v.Valid {
		t.Fatalf("graph should stay valid: %s", v.Message)
	}
}

func TestAddNodeRejectsNil(t *testing.T) {
	g := newGraph(t)
	if _, err := g.AddNode(nil); !errors.Is(err, audio.ErrInvalidArgument) {
		t.Fatalf("want invalid argument, got %v", err)
	}
}

func TestProcessingOrder(t *testing.T) {
	g := newGraph(t)
	osc := mustAdd(t, g, audio.NewOscillator("osc", 1))
	p := mustAdd(t, g, newProbe("p"))
	out := mustAdd(t, g, audio.NewOutput("out", 1))
	dc := mustAdd(t, g, audio.NewConstant("dc", 1, 0))
	mustConnect(t, g, dc, out, 1)
	mustConnect(t, g, p, out, 1)
	mustConnect(t, g, osc, p, 1)

	order, err := g.ProcessingOrder()
	if err != nil {
		t.Fatal(err)
	}
	if want := []NodeID{osc, p, dc, out}; !reflect.DeepEqual(want, order) {
		t.Fatalf("want order %v, got %v", want, order)
	}

	// every connection goes forward in the order
	pos := make(map[NodeID]int)
	for i, id := range order {
		pos[id] = i
	}
	for _, c := range g.Connections() {
		if pos[c.Src.Node] >= pos[c.Dst.Node] {
			t.Errorf("connection %d runs backwards", c.ID)
		}
	}
}

func TestRemoveNode(t *testing.T) {
	g := newGraph(t)
	dc := mustAdd(t, g, audio.NewConstant("dc", 1, 1))
	pr := newProbe("p")
	p := mustAdd(t, g, pr)
	out := audio.NewOutput("out", 1)
	sink := mustAdd(t, g, out)
	mustConnect(t, g, dc, p, 1)
	mustConnect(t, g, p, sink, 1)
	process(t, g, 16)

	if !g.RemoveNode(p) {
		t.Fatal("remove failed")
	}
	if g.RemoveNode(p) {
		t.Fatal("second remove should fail")
	}
	for _, c := range g.Connections() {
		if c.Involves(p) {
			t.Fatalf("connection %d still involves removed node", c.ID)
		}
	}
	if want, got := 0, pr.released; want != got {
		t.Fatalf("released before the audio side dropped the node: %d", got)
	}
	process(t, g, 16)
	out.Begin(16)
	process(t, g, 16)
	checkFill(t, out.Buffer(), 0)

	// the next control call collects the node
	mustAdd(t, g, newProbe("q"))
	if want, got := 1, pr.released; want != got {
		t.Fatalf("want %d release, got %d", want, got)
	}
	if want, got := 1, pr.calls; want != got {
		t.Fatalf("want %d process call, got %d", want, got)
	}
}

func TestDisconnectNode(t *testing.T) {
	g := newGraph(t)
	a := mustAdd(t, g, audio.NewConstant("a", 1, 1))
	b := mustAdd(t, g, audio.NewConstant("b", 1, 1))
	sum := mustAdd(t, g, audio.NewSummer("sum", 1))
	out := mustAdd(t, g, audio.NewOutput("out", 1))
	mustConnect(t, g, a, sum, 1)
	mustConnect(t, g, b, sum, 1)
	c := mustConnect(t, g, sum, out, 1)

	if want, got := 2, len(g.ConnectionsTo(sum)); want != got {
		t.Fatalf("want %d inputs, got %d", want, got)
	}
	if want, got := 3, g.DisconnectNode(sum); want != got {
		t.Fatalf("want %d removed, got %d", want, got)
	}
	if g.Disconnect(c) {
		t.Fatal("connection should already be gone")
	}
	if want, got := 0, len(g.Connections()); want != got {
		t.Fatalf("want %d connections, got %d", want, got)
	}
	v := g.Validate()
	if want := []NodeID{a, b, sum, out}; !reflect.DeepEqual(want, v.Disconnected) {
		t.Fatalf("want disconnected %v, got %v", want, v.Disconnected)
	}
}

func TestNotPrepared(t *testing.T) {
	g := New(DefaultConfig)
	mustAdd(t, g, audio.NewConstant("dc", 1, 1))
	err := g.Process(&audio.Context{SampleRate: 48000, Frames: 64})
	if !errors.Is(err, audio.ErrNotPrepared) {
		t.Fatalf("want not prepared, got %v", err)
	}
}

func TestQueueFull(t *testing.T) {
	g := New(Config{MaxNodes: 16, MaxConnections: 16, QueueSize: 4})
	for i := 0; i < 4; i++ {
		mustAdd(t, g, newProbe("p"))
	}
	if _, err := g.AddNode(newProbe("p")); !errors.Is(err, audio.ErrQueueFull) {
		t.Fatalf("want queue full, got %v", err)
	}
	if want, got := 4, len(g.Nodes()); want != got {
		t.Fatalf("want %d nodes, got %d", want, got)
	}
	if want, got := 4, g.Pending(); want != got {
		t.Fatalf("want %d pending, got %d", want, got)
	}
	g.Sync()
	if want, got := 0, g.Pending(); want != got {
		t.Fatalf("want %d pending, got %d", want, got)
	}
	mustAdd(t, g, newProbe("p"))
}

func TestRemoveNodeQueueFull(t *testing.T) {
	g := New(Config{MaxNodes: 16, MaxConnections: 16, QueueSize: 4})
	dc := mustAdd(t, g, audio.NewConstant("dc", 1, 1))
	p := mustAdd(t, g, newProbe("p"))
	mustConnect(t, g, dc, p, 1)
	// three queued, removal needs two
	if g.RemoveNode(p) {
		t.Fatal("remove should not fit in the queue")
	}
	if want, got := 1, len(g.Connections()); want != got {
		t.Fatalf("want %d connection, got %d", want, got)
	}
	g.Sync()
	if !g.RemoveNode(p) {
		t.Fatal("remove failed after sync")
	}
}

func TestStructuralCycle(t *testing.T) {
	g := newGraph(t)
	a := mustAdd(t, g, audio.NewSummer("a", 1))
	b := mustAdd(t, g, audio.NewSummer("b", 1))
	mustConnect(t, g, a, b, 1)
	process(t, g, 16)

	// bypass validation to plant a back edge
	l := link{
		Connection: Connection{ID: 100, Src: Endpoint{Node: b}, Dst: Endpoint{Node: a}, Gain: 1, Enabled: true},
		srcSlot:    g.slots[b],
		dstSlot:    g.slots[a],
	}
	g.ctl.addLink(31, l)
	g.push(command{op: opConnect, cslot: 31, link: l})

	err := g.Process(&audio.Context{SampleRate: 48000, Frames: 16})
	if !errors.Is(err, audio.ErrStructuralCycle) {
		t.Fatalf("want structural cycle, got %v", err)
	}
	v := g.Validate()
	if v.Valid || !v.HasCycles {
		t.Fatalf("want cycle reported, got %+v", v)
	}
	if want := []NodeID{a, b}; !reflect.DeepEqual(want, v.CycleNodes) {
		t.Fatalf("want cycle nodes %v, got %v", want, v.CycleNodes)
	}
	if _, err := g.ProcessingOrder(); !errors.Is(err, audio.ErrStructuralCycle) {
		t.Fatalf("want structural cycle, got %v", err)
	}
}

func TestMuteAndBypass(t *testing.T) {
	g := newGraph(t)
	dc := mustAdd(t, g, audio.NewConstant("dc", 1, 0.5))
	gain := audio.NewGain("gain", 1)
	if err := gain.Set("gain", -96.0); err != nil {
		t.Fatal(err)
	}
	gn := mustAdd(t, g, gain)
	out := audio.NewOutput("out", 1)
	sink := mustAdd(t, g, out)
	mustConnect(t, g, dc, gn, 1)
	mustConnect(t, g, gn, sink, 1)

	if err := g.SetBypassed(gn, true); err != nil {
		t.Fatal(err)
	}
	process(t, g, 64)
	checkFill(t, out.Buffer(), 0.5)

	if err := g.SetMuted(dc, true); err != nil {
		t.Fatal(err)
	}
	process(t, g, 64)
	checkFill(t, out.Buffer(), 0)

	info, _ := g.Node(dc)
	if !info.Muted {
		t.Fatal("node info should report mute")
	}
	if err := g.SetMuted(99, true); !errors.Is(err, audio.ErrInvalidArgument) {
		t.Fatalf("want invalid argument, got %v", err)
	}
}

func TestClear(t *testing.T) {
	g := newGraph(t)
	pr := newProbe("p")
	dc := mustAdd(t, g, audio.NewConstant("dc", 1, 1))
	p := mustAdd(t, g, pr)
	mustConnect(t, g, dc, p, 1)
	if err := g.Clear(); err != nil {
		t.Fatal(err)
	}
	if !g.Empty() || len(g.Connections()) != 0 {
		t.Fatal("graph should be empty")
	}
	g.Sync()
	if want, got := 1, pr.released; want != got {
		t.Fatalf("want %d release, got %d", want, got)
	}
	process(t, g, 8)
}

func TestProcessAllocs(t *testing.T) {
	g := newGraph(t)
	osc := mustAdd(t, g, audio.NewOscillator("osc", 2))
	flt := mustAdd(t, g, audio.NewFilter("flt", 2))
	sink := mustAdd(t, g, audio.NewOutput("out", 2))
	mustConnect(t, g, osc, flt, 1)
	mustConnect(t, g, flt, sink, 0.5)
	ctx := &audio.Context{SampleRate: 48000, Frames: 256}

	allocs := testing.AllocsPerRun(100, func() {
		if err := g.Process(ctx); err != nil {
			t.Fatal(err)
		}
	})
	if allocs != 0 {
		t.Fatalf("want no allocations, got %v", allocs)
	}
}

func TestConnectDisconnectRoundTrip(t *testing.T) {
	g := newGraph(t)
	a := mustAdd(t, g, audio.NewConstant("a", 1, 1))
	p := mustAdd(t, g, newProbe("p"))
	out := mustAdd(t, g, audio.NewOutput("out", 1))
	mustConnect(t, g, a, out, 1)

	order, err := g.ProcessingOrder()
	if err != nil {
		t.Fatal(err)
	}
	conns := g.Connections()

	c := mustConnect(t, g, a, p, 1)
	d := mustConnect(t, g, p, out, 1)
	process(t, g, 8)
	if !g.Disconnect(d) || !g.Disconnect(c) {
		t.Fatal("disconnect failed")
	}
	if g.Disconnect(c) {
		t.Fatal("second disconnect should fail")
	}

	after, err := g.ProcessingOrder()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(order, after) {
		t.Fatalf("want order %v, got %v", order, after)
	}
	if got := g.Connections(); !reflect.DeepEqual(conns, got) {
		t.Fatalf("want connections %v, got %v", conns, got)
	}
	process(t, g, 8)
}
