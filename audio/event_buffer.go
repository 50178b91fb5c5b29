package audio

import "gitlab.com/gomidi/midi/v2"

// Event is a channel MIDI message scheduled at a frame offset within the
// current buffer. It holds no pointers so it can travel through queues.
type Event struct {
	Offset int32
	Len    uint8
	Data   [3]byte
}

// NewEvent copies a short MIDI message. Messages longer than three bytes
// (sysex) are truncated and should not be sent through the graph.
func NewEvent(offset int, msg midi.Message) Event {
	ev := Event{Offset: int32(offset)}
	ev.Len = uint8(copy(ev.Data[:], msg))
	return ev
}

// NoteOn builds a note-on event without going through midi.Message so it can
// be used on the audio goroutine.
func NoteOn(offset int, channel, key, velocity uint8) Event {
	return Event{Offset: int32(offset), Len: 3, Data: [3]byte{0x90 | channel&0x0f, key & 0x7f, velocity & 0x7f}}
}

func NoteOff(offset int, channel, key uint8) Event {
	return Event{Offset: int32(offset), Len: 3, Data: [3]byte{0x80 | channel&0x0f, key & 0x7f, 0}}
}

// Message returns a view of the event bytes. The view aliases e.
func (e *Event) Message() midi.Message {
	return midi.Message(e.Data[:e.Len])
}

// Events is a fixed-capacity list of events ordered by offset. Pushing
// never allocates; events that do not fit are counted as dropped.
type Events struct {
	items   []Event
	read    int
	dropped int
}

func NewEvents(capacity int) *Events {
	return &Events{items: make([]Event, 0, capacity)}
}

// Push inserts ev after any events with the same or an earlier offset.
func (b *Events) Push(ev Event) bool {
	if len(b.items) == cap(b.items) {
		b.dropped++
		return false
	}
	b.items = b.items[:len(b.items)+1]
	i := len(b.items) - 1
	for i > 0 && b.items[i-1].Offset > ev.Offset {
		b.items[i] = b.items[i-1]
		i--
	}
	b.items[i] = ev
	return true
}

// Merge inserts every event of src.
func (b *Events) Merge(src *Events) {
	for i := range src.items {
		b.Push(src.items[i])
	}
}

func (b *Events) Clear() {
	b.items = b.items[:0]
	b.read = 0
}

func (b *Events) Len() int { return len(b.items) }

func (b *Events) At(i int) *Event { return &b.items[i] }

// Dropped returns and resets the number of events rejected since the last
// call.
func (b *Events) Dropped() int {
	n := b.dropped
	b.dropped = 0
	return n
}

// Until calls f for unread events with an offset before untilOffset, or for
// all unread events when untilOffset is -1.
func (b *Events) Until(untilOffset int, f func(*Event)) {
	for b.read < len(b.items) {
		ev := &b.items[b.read]
		if untilOffset != -1 && int(ev.Offset) >= untilOffset {
			return
		}
		f(ev)
		b.read++
	}
}

// Rewind makes all events unread again.
func (b *Events) Rewind() { b.read = 0 }
