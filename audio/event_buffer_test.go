package audio

import (
	"testing"

	"gitlab.com/gomidi/midi/v2"
)

func TestEventsOffset(t *testing.T) {
	buf := NewEvents(8)
	buf.Push(NoteOn(2, 0, 60, 100))
	buf.Push(NoteOn(3, 0, 62, 100))

	var events []Event
	buf.Until(2, func(ev *Event) {
		events = append(events, *ev)
	})
	if want, got := 0, len(events); want != got {
		t.Errorf("expected zero events, got %v", got)
	}

	buf.Until(4, func(ev *Event) {
		events = append(events, *ev)
	})
	if want, got := 2, len(events); want != got {
		t.Errorf("expected %v events, got %v", want, got)
	}

	buf.Rewind()
	var n int
	buf.Until(-1, func(*Event) { n++ })
	if want, got := 2, n; want != got {
		t.Errorf("expected %v events after rewind, got %v", want, got)
	}
}

func TestEventsOrdered(t *testing.T) {
	buf := NewEvents(8)
	for _, off := range []int{5, 1, 3, 1, 0} {
		buf.Push(NoteOff(off, 0, uint8(off)))
	}
	prev := int32(-1)
	for i := 0; i < buf.Len(); i++ {
		ev := buf.At(i)
		if ev.Offset < prev {
			t.Fatalf("event %d at offset %d comes after %d", i, ev.Offset, prev)
		}
		prev = ev.Offset
	}
}

func TestEventsDropWhenFull(t *testing.T) {
	buf := NewEvents(2)
	for i := 0; i < 5; i++ {
		buf.Push(NoteOn(i, 0, 60, 100))
	}
	if want, got := 2, buf.Len(); want != got {
		t.Fatalf("want %d events, got %d", want, got)
	}
	if want, got := 3, buf.Dropped(); want != got {
		t.Fatalf("want %d dropped, got %d", want, got)
	}
	if want, got := 0, buf.Dropped(); want != got {
		t.Fatalf("want dropped count reset, got %d", got)
	}

	src := NewEvents(4)
	src.Push(NoteOn(0, 0, 64, 90))
	buf.Clear()
	buf.Merge(src)
	buf.Merge(src)
	buf.Merge(src)
	if want, got := 2, buf.Len(); want != got {
		t.Fatalf("want %d events after merge, got %d", want, got)
	}
}

func TestEventMessage(t *testing.T) {
	ev := NewEvent(7, midi.NoteOn(2, 64, 90))
	var ch, key, vel uint8
	if !ev.Message().GetNoteStart(&ch, &key, &vel) {
		t.Fatalf("want note on, got %v", ev.Message())
	}
	if want, got := [3]uint8{2, 64, 90}, [3]uint8{ch, key, vel}; want != got {
		t.Fatalf("want %v, got %v", want, got)
	}
	if ev != NoteOn(7, 2, 64, 90) {
		t.Fatalf("want NoteOn to build the same event, got %+v", ev)
	}
}

func TestEventsMergeAllocs(t *testing.T) {
	src, dst := NewEvents(16), NewEvents(16)
	for i := 0; i < 8; i++ {
		src.Push(NoteOn(i, 0, 60, 100))
	}
	allocs := testing.AllocsPerRun(100, func() {
		dst.Clear()
		dst.Merge(src)
	})
	if allocs != 0 {
		t.Fatalf("want no allocations, got %v", allocs)
	}
}
