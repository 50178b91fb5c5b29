package mixer

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/mrdg/daw/audio"
)

// MasterID is the id of the master channel every mixer starts with.
const MasterID ID = 1

type ChannelInfo struct {
	ID          ID      `json:"id"`
	Type        Type    `json:"type"`
	Name        string  `json:"name"`
	VolumeDB    float64 `json:"volume_db"`
	Pan         float64 `json:"pan"`
	Muted       bool    `json:"muted"`
	Soloed      bool    `json:"soloed"`
	RecordArmed bool    `json:"record_armed"`
	Output      ID      `json:"output"`
	Sends       []Send  `json:"sends,omitempty"`
	Meters      Meters  `json:"meters"`
}

// Mixer owns the channels. Its methods may be called from any goroutine;
// the audio side only touches Channel atomics and AnySoloed.
type Mixer struct {
	mu        sync.RWMutex
	channels  map[ID]*Channel
	nextID    ID
	anySoloed atomic.Bool
}

func New() *Mixer {
	m := &Mixer{
		channels: make(map[ID]*Channel),
		nextID:   MasterID + 1,
	}
	m.channels[MasterID] = NewChannel(MasterID, Master, "master")
	return m
}

// AddChannel adds a channel routed to the master.
func (m *Mixer) AddChannel(typ Type, name string) (ID, error) {
	if typ == Master {
		return 0, fmt.Errorf("%w: the mixer already has a master", audio.ErrInvalidArgument)
	}
	if typ < AudioChannel || typ > SendChannel {
		return 0, fmt.Errorf("%w: unknown channel type %d", audio.ErrInvalidArgument, typ)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := NewChannel(m.nextID, typ, name)
	ch.output.Store(uint32(MasterID))
	m.channels[ch.id] = ch
	m.nextID++
	return ch.id, nil
}

// RemoveChannel deletes a channel. Channels that were routed to it fall
// back to the master and their sends to it are dropped.
func (m *Mixer) RemoveChannel(id ID) error {
	if id == MasterID {
		return fmt.Errorf("%w: the master cannot be removed", audio.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[id]; !ok {
		return notFound(id)
	}
	delete(m.channels, id)
	for _, ch := range m.channels {
		if ch.Output() == id {
			ch.output.Store(uint32(MasterID))
		}
		if slot := ch.sendTo(id); slot >= 0 {
			ch.sends[slot].used.Store(false)
		}
	}
	m.updateSolo()
	return nil
}

// Channel returns the channel with the given id, or nil.
func (m *Mixer) Channel(id ID) *Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.channels[id]
}

func (m *Mixer) Master() *Channel { return m.Channel(MasterID) }

func (m *Mixer) get(id ID) (*Channel, error) {
	if ch := m.Channel(id); ch != nil {
		return ch, nil
	}
	return nil, notFound(id)
}

func notFound(id ID) error {
	return fmt.Errorf("%w: no channel %d", audio.ErrInvalidArgument, id)
}

func (m *Mixer) SetVolume(id ID, db float64) error {
	ch, err := m.get(id)
	if err != nil {
		return err
	}
	return ch.SetVolume(db)
}

func (m *Mixer) SetPan(id ID, pan float64) error {
	ch, err := m.get(id)
	if err != nil {
		return err
	}
	return ch.SetPan(pan)
}

func (m *Mixer) SetMute(id ID, v bool) error {
	ch, err := m.get(id)
	if err != nil {
		return err
	}
	ch.SetMuted(v)
	return nil
}

// SetSolo solos a channel and recomputes whether anything is soloed.
func (m *Mixer) SetSolo(id ID, v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[id]
	if !ok {
		return notFound(id)
	}
	ch.soloed.Store(v)
	m.updateSolo()
	return nil
}

func (m *Mixer) updateSolo() {
	soloed := false
	for _, ch := range m.channels {
		if ch.typ != Master && ch.Soloed() {
			soloed = true
			break
		}
	}
	m.anySoloed.Store(soloed)
}

func (m *Mixer) AnySoloed() bool { return m.anySoloed.Load() }

func (m *Mixer) SetRecordArm(id ID, v bool) error {
	ch, err := m.get(id)
	if err != nil {
		return err
	}
	ch.SetRecordArmed(v)
	return nil
}

// SetOutput routes a channel's main output to a bus.
func (m *Mixer) SetOutput(id, bus ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, err := m.route(id, bus)
	if err != nil {
		return err
	}
	if ch.typ == Master {
		return fmt.Errorf("%w: the master feeds the device", audio.ErrInvalidArgument)
	}
	ch.output.Store(uint32(bus))
	return nil
}

// AddSend adds a send from a channel to a bus and returns its slot.
func (m *Mixer) AddSend(id, target ID, levelDB float64, preFader bool) (int, error) {
	if err := audio.CheckRange("send level", levelDB, MinVolume, MaxVolume); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, err := m.route(id, target)
	if err != nil {
		return 0, err
	}
	if ch.sendTo(target) >= 0 {
		return 0, audio.RejectConnection(audio.ReasonDuplicate, "channel %d already sends to %d", id, target)
	}
	for i := range ch.sends {
		s := &ch.sends[i]
		if s.used.Load() {
			continue
		}
		s.target.Store(uint32(target))
		s.level.Store(math.Float64bits(levelDB))
		s.preFader.Store(preFader)
		s.enabled.Store(true)
		s.used.Store(true)
		return i, nil
	}
	return 0, fmt.Errorf("%w: channel %d has no free send slot", audio.ErrInvalidArgument, id)
}

// route checks that id may feed target without creating a loop.
func (m *Mixer) route(id, target ID) (*Channel, error) {
	ch, ok := m.channels[id]
	if !ok {
		return nil, notFound(id)
	}
	dst, ok := m.channels[target]
	if !ok {
		return nil, audio.RejectConnection(audio.ReasonMissingEndpoint, "no channel %d", target)
	}
	if !dst.typ.routable() {
		return nil, audio.RejectConnection(audio.ReasonKindMismatch, "%s channel %d cannot receive audio", dst.typ, target)
	}
	if id == target || m.feeds(target, id) {
		return nil, audio.RejectConnection(audio.ReasonCycle, "channel %d already feeds %d", target, id)
	}
	return ch, nil
}

// feeds reports whether audio from channel from reaches channel to.
func (m *Mixer) feeds(from, to ID) bool {
	seen := make(map[ID]bool)
	stack := []ID{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == to {
			return true
		}
		ch, ok := m.channels[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		if ch.typ != Master {
			stack = append(stack, ch.Output())
		}
		for _, s := range ch.Sends() {
			stack = append(stack, s.Target)
		}
	}
	return false
}

func (m *Mixer) RemoveSend(id, target ID) error {
	s, err := m.send(id, target)
	if err != nil {
		return err
	}
	s.used.Store(false)
	return nil
}

func (m *Mixer) SetSendLevel(id, target ID, levelDB float64) error {
	if err := audio.CheckRange("send level", levelDB, MinVolume, MaxVolume); err != nil {
		return err
	}
	s, err := m.send(id, target)
	if err != nil {
		return err
	}
	s.level.Store(math.Float64bits(levelDB))
	return nil
}

func (m *Mixer) SetSendEnabled(id, target ID, v bool) error {
	s, err := m.send(id, target)
	if err != nil {
		return err
	}
	s.enabled.Store(v)
	return nil
}

// SendSlot returns the slot of the send from id to target.
func (m *Mixer) SendSlot(id, target ID) (int, error) {
	ch, err := m.get(id)
	if err != nil {
		return 0, err
	}
	slot := ch.sendTo(target)
	if slot < 0 {
		return 0, fmt.Errorf("%w: channel %d has no send to %d", audio.ErrInvalidArgument, id, target)
	}
	return slot, nil
}

func (m *Mixer) send(id, target ID) (*send, error) {
	slot, err := m.SendSlot(id, target)
	if err != nil {
		return nil, err
	}
	return &m.Channel(id).sends[slot], nil
}

func (m *Mixer) Meters(id ID) (Meters, error) {
	ch, err := m.get(id)
	if err != nil {
		return Meters{}, err
	}
	return ch.Meters(), nil
}

func (m *Mixer) ResetMeters(id ID) error {
	ch, err := m.get(id)
	if err != nil {
		return err
	}
	ch.ResetMeters()
	return nil
}

// Channels describes every channel in id order.
func (m *Mixer) Channels() []ChannelInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]ChannelInfo, 0, len(m.channels))
	for _, ch := range m.channels {
		infos = append(infos, ch.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

func (c *Channel) Info() ChannelInfo {
	return ChannelInfo{
		ID:          c.id,
		Type:        c.typ,
		Name:        c.name,
		VolumeDB:    c.Volume(),
		Pan:         c.Pan(),
		Muted:       c.Muted(),
		Soloed:      c.Soloed(),
		RecordArmed: c.RecordArmed(),
		Output:      c.Output(),
		Sends:       c.Sends(),
		Meters:      c.Meters(),
	}
}
