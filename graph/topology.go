package graph

import "github.com/mrdg/daw/audio"

// link is a connection plus the slots of its endpoints.
type link struct {
	Connection
	srcSlot int32
	dstSlot int32
}

func (l *link) live() bool { return l.ID != 0 }

const (
	white uint8 = iota
	grey
	black
)

// topology is a fixed-capacity view of nodes and connections addressed by
// slot. The graph keeps two: one owned by the control side, mirroring every
// accepted mutation, and one owned by the audio callback, updated from the
// command queue. All methods on a topology avoid allocation.
type topology struct {
	nodes     []*entry
	links     []link
	numNodes  int
	numLinks  int
	order     []int32
	dirty     bool
	broken    bool
	cycleSlot int32

	// scratch
	mark     []uint8
	stack    []int32
	next     []int32
	byID     []int32
	outAudio []int32
	inStart  []int32
	inCount  []int32
	incoming []int32
}

func newTopology(maxNodes, maxLinks int) topology {
	return topology{
		nodes:    make([]*entry, maxNodes),
		links:    make([]link, maxLinks),
		order:    make([]int32, 0, maxNodes),
		mark:     make([]uint8, maxNodes),
		stack:    make([]int32, 0, maxNodes),
		next:     make([]int32, maxNodes),
		byID:     make([]int32, 0, maxNodes),
		outAudio: make([]int32, maxNodes),
		inStart:  make([]int32, maxNodes+1),
		inCount:  make([]int32, maxNodes),
		incoming: make([]int32, maxLinks),
	}
}

func (t *topology) addNode(slot int32, e *entry) {
	t.nodes[slot] = e
	t.numNodes++
	t.dirty = true
}

func (t *topology) removeNode(slot int32) {
	if t.nodes[slot] == nil {
		return
	}
	for i := range t.links {
		if l := &t.links[i]; l.live() && (l.srcSlot == slot || l.dstSlot == slot) {
			t.removeLink(int32(i))
		}
	}
	t.nodes[slot] = nil
	t.numNodes--
	t.dirty = true
}

func (t *topology) addLink(slot int32, l link) {
	t.links[slot] = l
	t.numLinks++
	t.dirty = true
}

func (t *topology) removeLink(slot int32) {
	if !t.links[slot].live() {
		return
	}
	t.links[slot] = link{}
	t.numLinks--
	t.dirty = true
}

func (t *topology) clear() {
	clear(t.nodes)
	clear(t.links)
	t.numNodes = 0
	t.numLinks = 0
	t.order = t.order[:0]
	t.dirty = true
}

// reaches reports whether to can be reached from from by following
// connections downstream.
func (t *topology) reaches(from, to int32) bool {
	clear(t.mark)
	t.stack = append(t.stack[:0], from)
	t.mark[from] = grey
	for len(t.stack) > 0 {
		slot := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		if slot == to {
			return true
		}
		for i := range t.links {
			l := &t.links[i]
			if !l.live() || l.srcSlot != slot || t.mark[l.dstSlot] != white {
				continue
			}
			t.mark[l.dstSlot] = grey
			t.stack = append(t.stack, l.dstSlot)
		}
	}
	return false
}

// sortByID orders slots by ascending node id with an insertion sort.
func (t *topology) sortByID(slots []int32) {
	for i := 1; i < len(slots); i++ {
		for j := i; j > 0 && t.nodes[slots[j]].id < t.nodes[slots[j-1]].id; j-- {
			slots[j], slots[j-1] = slots[j-1], slots[j]
		}
	}
}

// index groups live links by destination so each node can find its inputs,
// each group ordered by ascending source node id.
func (t *topology) index() {
	clear(t.inCount)
	clear(t.outAudio)
	for i := range t.links {
		l := &t.links[i]
		if !l.live() {
			continue
		}
		t.inCount[l.dstSlot]++
		if l.Kind == audio.KindAudio {
			t.outAudio[l.srcSlot]++
		}
	}
	t.inStart[0] = 0
	for s := range t.inCount {
		t.inStart[s+1] = t.inStart[s] + t.inCount[s]
		t.inCount[s] = 0
	}
	for i := range t.links {
		l := &t.links[i]
		if !l.live() {
			continue
		}
		at := t.inStart[l.dstSlot] + t.inCount[l.dstSlot]
		t.incoming[at] = int32(i)
		t.inCount[l.dstSlot]++
	}
	for s := range t.inCount {
		group := t.incoming[t.inStart[s] : t.inStart[s]+t.inCount[s]]
		for i := 1; i < len(group); i++ {
			for j := i; j > 0 && t.linkBefore(group[j], group[j-1]); j-- {
				group[j], group[j-1] = group[j-1], group[j]
			}
		}
	}
}

func (t *topology) linkBefore(a, b int32) bool {
	la, lb := &t.links[a], &t.links[b]
	if la.Src.Node != lb.Src.Node {
		return la.Src.Node < lb.Src.Node
	}
	return la.ID < lb.ID
}

// inputs returns the link slots terminating at a node slot. Only valid
// after index.
func (t *topology) inputs(slot int32) []int32 {
	return t.incoming[t.inStart[slot] : t.inStart[slot]+t.inCount[slot]]
}

// sort rebuilds the processing order with a depth-first post-order walk
// upstream from every node without outgoing audio connections, visiting
// sinks and inputs in ascending node id order. It returns false if a cycle
// was found, leaving the order incomplete.
func (t *topology) sort() bool {
	t.index()
	t.order = t.order[:0]
	t.byID = t.byID[:0]
	clear(t.mark)
	for s, e := range t.nodes {
		if e != nil {
			t.byID = append(t.byID, int32(s))
		}
	}
	t.sortByID(t.byID)

	t.dirty = false
	t.broken = false
	// sinks first, then anything left over
	for pass := 0; pass < 2; pass++ {
		for _, slot := range t.byID {
			if pass == 0 && t.outAudio[slot] != 0 {
				continue
			}
			if t.mark[slot] == white && !t.visit(slot) {
				t.broken = true
				return false
			}
		}
	}
	return true
}

func (t *topology) visit(root int32) bool {
	t.stack = append(t.stack[:0], root)
	t.next[root] = 0
	t.mark[root] = grey
	for len(t.stack) > 0 {
		slot := t.stack[len(t.stack)-1]
		in := t.inputs(slot)
		if i := t.next[slot]; int(i) < len(in) {
			t.next[slot]++
			src := t.links[in[i]].srcSlot
			switch t.mark[src] {
			case grey:
				t.cycleSlot = src
				return false
			case white:
				t.mark[src] = grey
				t.next[src] = 0
				t.stack = append(t.stack, src)
			}
			continue
		}
		t.mark[slot] = black
		t.order = append(t.order, slot)
		t.stack = t.stack[:len(t.stack)-1]
	}
	return true
}
