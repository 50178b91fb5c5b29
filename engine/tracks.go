package engine

import (
	"fmt"

	"github.com/mrdg/daw/audio"
	"github.com/mrdg/daw/graph"
	"github.com/mrdg/daw/mixer"
	"github.com/mrdg/daw/pool"
	"github.com/mrdg/daw/timeline"
)

// lane is the graph side of a track: the node rendering its clips, the
// instrument playing its midi clips and the connection to its channel.
type lane struct {
	source     graph.NodeID
	instrument graph.NodeID
	kind       string
	midi       graph.ConnID
	out        route
	owned      mixer.ID // channel created with the track
}

// AddTrack adds a track. Audio and instrument tracks get a channel of their
// own; instrument tracks play through a synth until SetInstrument says
// otherwise.
func (e *Engine) AddTrack(typ timeline.TrackType, name string, parent timeline.TrackID) (timeline.TrackID, error) {
	e.mu.Lock()
	defer e.unlock()
	if typ != timeline.FolderTrack {
		if err := e.room(8); err != nil {
			return 0, err
		}
	}
	id, err := e.timeline.AddTrack(typ, name, parent)
	if err != nil || typ == timeline.FolderTrack {
		return id, err
	}
	if err := e.addLane(id, typ, name); err != nil {
		e.removeTrack(id)
		return 0, err
	}
	return id, nil
}

func (e *Engine) addLane(id timeline.TrackID, typ timeline.TrackType, name string) error {
	chType := mixer.AudioChannel
	if typ == timeline.InstrumentTrack {
		chType = mixer.InstrumentChannel
	}
	ch, err := e.addChannel(chType, name)
	if err != nil {
		return err
	}
	l := &lane{owned: ch}
	e.lanes[id] = l
	if l.source, err = e.graph.AddNode(timeline.NewTrackNode(e.timeline, id)); err != nil {
		return err
	}
	e.owned[l.source] = "timeline"
	if typ == timeline.InstrumentTrack {
		if err := e.setInstrument(id, l, "synth"); err != nil {
			return err
		}
	}
	if err := e.timeline.SetTrackChannel(id, ch); err != nil {
		return err
	}
	return e.syncLane(id)
}

// syncLane connects a track to the channel the timeline routes it to.
func (e *Engine) syncLane(id timeline.TrackID) error {
	l := e.lanes[id]
	t, ok := e.timeline.Track(id)
	if l == nil || !ok {
		return nil
	}
	src := graph.Endpoint{Node: l.source}
	if l.instrument != 0 {
		src = graph.Endpoint{Node: l.instrument}
	}
	return e.reroute(&l.out, t.Channel, src)
}

// RemoveTrack removes a track with its clips and the channel it was created
// with.
func (e *Engine) RemoveTrack(id timeline.TrackID) error {
	e.mu.Lock()
	defer e.unlock()
	if _, ok := e.timeline.Track(id); !ok {
		return fmt.Errorf("%w: no track %d", audio.ErrInvalidArgument, id)
	}
	if err := e.room(16); err != nil {
		return err
	}
	return e.removeTrack(id)
}

func (e *Engine) removeTrack(id timeline.TrackID) error {
	if err := e.timeline.RemoveTrack(id); err != nil {
		return err
	}
	l, ok := e.lanes[id]
	if !ok {
		return nil
	}
	delete(e.lanes, id)
	for _, node := range []graph.NodeID{l.instrument, l.source} {
		if node != 0 {
			e.graph.RemoveNode(node)
			delete(e.owned, node)
		}
	}
	if l.owned != 0 {
		return e.removeChannel(l.owned)
	}
	return nil
}

// SetInstrument replaces the instrument of an instrument track with a new
// node of the given kind.
func (e *Engine) SetInstrument(id timeline.TrackID, kind string) (graph.NodeID, error) {
	e.mu.Lock()
	defer e.unlock()
	l, ok := e.lanes[id]
	if !ok || l.instrument == 0 {
		return 0, fmt.Errorf("%w: track %d is not an instrument track", audio.ErrInvalidArgument, id)
	}
	if err := e.room(8); err != nil {
		return 0, err
	}
	if err := e.setInstrument(id, l, kind); err != nil {
		return 0, err
	}
	return l.instrument, e.syncLane(id)
}

func (e *Engine) setInstrument(id timeline.TrackID, l *lane, kind string) error {
	if !isInstrument(kind) {
		return fmt.Errorf("%w: %s is not an instrument", audio.ErrInvalidArgument, kind)
	}
	n, err := NewNode(kind, fmt.Sprintf("%s-%d", kind, id), 2)
	if err != nil {
		return err
	}
	node, err := e.graph.AddNode(n)
	if err != nil {
		return err
	}
	if l.instrument != 0 {
		e.graph.RemoveNode(l.instrument)
		delete(e.owned, l.instrument)
	}
	l.instrument, l.kind = node, kind
	e.owned[node] = "timeline"
	l.midi, err = e.graph.Connect(graph.Endpoint{Node: l.source, Port: 1}, graph.Endpoint{Node: node}, 1)
	return err
}

// Instrument is the instrument node of a track.
func (e *Engine) Instrument(id timeline.TrackID) (graph.NodeID, bool) {
	e.mu.Lock()
	defer e.unlock()
	l, ok := e.lanes[id]
	if !ok || l.instrument == 0 {
		return 0, false
	}
	return l.instrument, true
}

// TrackNode is the node rendering a track's clips.
func (e *Engine) TrackNode(id timeline.TrackID) (graph.NodeID, bool) {
	e.mu.Lock()
	defer e.unlock()
	l, ok := e.lanes[id]
	if !ok {
		return 0, false
	}
	return l.source, true
}

// SetTrackChannel routes a track to a channel; 0 leaves it unrouted.
func (e *Engine) SetTrackChannel(id timeline.TrackID, ch mixer.ID) error {
	e.mu.Lock()
	defer e.unlock()
	if _, ok := e.lanes[id]; !ok {
		return fmt.Errorf("%w: track %d has no audio", audio.ErrInvalidArgument, id)
	}
	if _, ok := e.strips[ch]; ch != 0 && !ok {
		return fmt.Errorf("%w: no channel %d", audio.ErrInvalidArgument, ch)
	}
	if err := e.room(2); err != nil {
		return err
	}
	if err := e.timeline.SetTrackChannel(id, ch); err != nil {
		return err
	}
	return e.syncLane(id)
}

func (e *Engine) SetTrackMute(id timeline.TrackID, v bool) error {
	return e.timeline.SetTrackMute(id, v)
}

func (e *Engine) SetTrackSolo(id timeline.TrackID, v bool) error {
	return e.timeline.SetTrackSolo(id, v)
}

func (e *Engine) SetTrackArm(id timeline.TrackID, v bool) error {
	return e.timeline.SetTrackArm(id, v)
}

func (e *Engine) SetTrackLock(id timeline.TrackID, v bool) error {
	return e.timeline.SetTrackLock(id, v)
}

func (e *Engine) Tracks() []timeline.Track { return e.timeline.Tracks() }

func (e *Engine) Track(id timeline.TrackID) (timeline.Track, bool) { return e.timeline.Track(id) }

// AddAudioClip places the whole of a pooled sample on a track.
func (e *Engine) AddAudioClip(track timeline.TrackID, sample pool.ID, start int64) (timeline.ClipID, error) {
	s := e.pool.Get(sample)
	if s == nil {
		return 0, fmt.Errorf("%w: no sample %d", audio.ErrInvalidArgument, sample)
	}
	return e.timeline.AddAudioClip(track, timeline.NewAudioClip(s, start))
}

// ImportClip loads a file into the pool and places it on a track. The clip
// holds the only reference to the sample.
func (e *Engine) ImportClip(track timeline.TrackID, path string, start int64) (timeline.ClipID, error) {
	sample, err := e.pool.Acquire(path)
	if err != nil {
		return 0, err
	}
	defer e.pool.Release(sample)
	return e.AddAudioClip(track, sample, start)
}

// AddMidiClip places a clip of length samples with notes on an instrument
// track.
func (e *Engine) AddMidiClip(track timeline.TrackID, start, length int64, notes []timeline.Note) (timeline.ClipID, error) {
	c := timeline.MidiClip{
		Clip:  timeline.Clip{Start: start, Length: length},
		Notes: notes,
	}
	return e.timeline.AddMidiClip(track, c)
}

func (e *Engine) RemoveClip(id timeline.ClipID) error { return e.timeline.RemoveClip(id) }

func (e *Engine) MoveClip(id timeline.ClipID, start int64, track timeline.TrackID) error {
	return e.timeline.MoveClip(id, start, track)
}

func (e *Engine) ResizeClip(id timeline.ClipID, length int64) error {
	return e.timeline.ResizeClip(id, length)
}

func (e *Engine) SetClipMuted(id timeline.ClipID, v bool) error {
	return e.timeline.SetClipMuted(id, v)
}

func (e *Engine) SetClipGain(id timeline.ClipID, db float64) error {
	return e.timeline.SetClipGain(id, db)
}

func (e *Engine) SetClipFades(id timeline.ClipID, in, out int64) error {
	return e.timeline.SetClipFades(id, in, out)
}

func (e *Engine) SetClipPitch(id timeline.ClipID, semitones float64) error {
	return e.timeline.SetClipPitch(id, semitones)
}

func (e *Engine) SetClipStretch(id timeline.ClipID, ratio float64) error {
	return e.timeline.SetClipStretch(id, ratio)
}

func (e *Engine) SetNotes(id timeline.ClipID, notes []timeline.Note) error {
	return e.timeline.SetNotes(id, notes)
}
