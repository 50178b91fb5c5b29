package graph

import (
	"fmt"
	"strings"

	"github.com/mrdg/daw/audio"
)

type Validation struct {
	Valid        bool     `json:"valid"`
	HasCycles    bool     `json:"has_cycles"`
	CycleNodes   []NodeID `json:"cycle_nodes,omitempty"`
	Disconnected []NodeID `json:"disconnected,omitempty"`
	Message      string   `json:"message"`
}

// Validate checks the graph for cycles and lists nodes with no connections
// at all. Disconnected nodes are reported but do not make a graph invalid.
func (g *Graph) Validate() Validation {
	t := &g.ctl
	v := Validation{Valid: true}
	if !t.sort() {
		v.Valid = false
		v.HasCycles = true
		// the walk stopped with the cycle on top of its stack
		onCycle := false
		for _, slot := range t.stack {
			if slot == t.cycleSlot {
				onCycle = true
			}
			if onCycle {
				v.CycleNodes = append(v.CycleNodes, t.nodes[slot].id)
			}
		}
		sortIDs(v.CycleNodes)
	}
	linked := make(map[NodeID]bool)
	for i := range t.links {
		if l := &t.links[i]; l.live() {
			linked[l.Src.Node] = true
			linked[l.Dst.Node] = true
		}
	}
	for _, slot := range g.sortedSlots() {
		if id := t.nodes[slot].id; !linked[id] && g.Len() > 1 {
			v.Disconnected = append(v.Disconnected, id)
		}
	}

	var msgs []string
	if v.HasCycles {
		msgs = append(msgs, fmt.Sprintf("%v: %v", audio.ErrStructuralCycle, v.CycleNodes))
	}
	if len(v.Disconnected) > 0 {
		msgs = append(msgs, fmt.Sprintf("disconnected nodes: %v", v.Disconnected))
	}
	if len(msgs) == 0 {
		msgs = append(msgs, "ok")
	}
	v.Message = strings.Join(msgs, "; ")
	return v
}

func sortIDs(ids []NodeID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}
