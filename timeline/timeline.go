// Package timeline arranges clips on tracks and renders them for the
// playhead.
//
// Edits happen on a control-side model. After every edit the model is
// copied into an immutable arrangement that the audio side loads
// atomically.
package timeline

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/mrdg/daw/audio"
	"github.com/mrdg/daw/mixer"
	"github.com/mrdg/daw/pool"
)

type TrackID uint32

type TrackType int

const (
	AudioTrack TrackType = iota
	InstrumentTrack
	FolderTrack
)

var trackTypeNames = []string{"audio", "instrument", "folder"}

func (t TrackType) String() string {
	if int(t) < len(trackTypeNames) {
		return trackTypeNames[t]
	}
	return fmt.Sprintf("track(%d)", int(t))
}

func (t TrackType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func ParseTrackType(s string) (TrackType, error) {
	for i, name := range trackTypeNames {
		if name == s {
			return TrackType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown track type %q", audio.ErrInvalidArgument, s)
}

type Track struct {
	ID          TrackID     `json:"id"`
	Type        TrackType   `json:"type"`
	Name        string      `json:"name"`
	Parent      TrackID     `json:"parent,omitempty"`
	Channel     mixer.ID    `json:"channel,omitempty"`
	Muted       bool        `json:"muted"`
	Soloed      bool        `json:"soloed"`
	RecordArmed bool        `json:"record_armed"`
	Locked      bool        `json:"locked"`
	AudioClips  []AudioClip `json:"audio_clips,omitempty"`
	MidiClips   []MidiClip  `json:"midi_clips,omitempty"`
}

// SampleRefs counts references to pooled samples held by clips.
type SampleRefs interface {
	Retain(pool.ID) error
	Release(pool.ID) error
}

type Timeline struct {
	mu         sync.Mutex
	tracks     map[TrackID]*Track
	clipTracks map[ClipID]TrackID
	nextTrack  TrackID
	nextClip   ClipID
	refs       SampleRefs
	current    atomic.Pointer[arrangement]
}

// New returns an empty timeline. refs may be nil.
func New(refs SampleRefs) *Timeline {
	tl := &Timeline{
		tracks:     make(map[TrackID]*Track),
		clipTracks: make(map[ClipID]TrackID),
		nextTrack:  1,
		nextClip:   1,
		refs:       refs,
	}
	tl.current.Store(&arrangement{tracks: map[TrackID]*lane{}})
	return tl
}

func (tl *Timeline) AddTrack(typ TrackType, name string, parent TrackID) (TrackID, error) {
	if typ < AudioTrack || typ > FolderTrack {
		return 0, fmt.Errorf("%w: unknown track type %d", audio.ErrInvalidArgument, typ)
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if parent != 0 {
		p, ok := tl.tracks[parent]
		if !ok {
			return 0, trackNotFound(parent)
		}
		if p.Type != FolderTrack {
			return 0, fmt.Errorf("%w: track %d is not a folder", audio.ErrInvalidArgument, parent)
		}
	}
	t := &Track{ID: tl.nextTrack, Type: typ, Name: name, Parent: parent}
	tl.tracks[t.ID] = t
	tl.nextTrack++
	tl.publish()
	return t.ID, nil
}

// RemoveTrack deletes a track and its clips. Children of a folder move up
// to the folder's parent.
func (tl *Timeline) RemoveTrack(id TrackID) error {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	t, ok := tl.tracks[id]
	if !ok {
		return trackNotFound(id)
	}
	for _, other := range tl.tracks {
		if other.Parent == id {
			other.Parent = t.Parent
		}
	}
	for _, c := range t.AudioClips {
		tl.release(c.SampleID)
		delete(tl.clipTracks, c.ID)
	}
	for _, c := range t.MidiClips {
		delete(tl.clipTracks, c.ID)
	}
	delete(tl.tracks, id)
	tl.publish()
	return nil
}

func trackNotFound(id TrackID) error {
	return fmt.Errorf("%w: no track %d", audio.ErrInvalidArgument, id)
}

func clipNotFound(id ClipID) error {
	return fmt.Errorf("%w: no clip %d", audio.ErrInvalidArgument, id)
}

func (tl *Timeline) release(id pool.ID) {
	if tl.refs != nil {
		tl.refs.Release(id)
	}
}

// update runs f on a track under the lock and publishes the result.
func (tl *Timeline) update(id TrackID, f func(*Track) error) error {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	t, ok := tl.tracks[id]
	if !ok {
		return trackNotFound(id)
	}
	if err := f(t); err != nil {
		return err
	}
	tl.publish()
	return nil
}

func (tl *Timeline) SetTrackChannel(id TrackID, ch mixer.ID) error {
	return tl.update(id, func(t *Track) error { t.Channel = ch; return nil })
}

func (tl *Timeline) SetTrackMute(id TrackID, v bool) error {
	return tl.update(id, func(t *Track) error { t.Muted = v; return nil })
}

func (tl *Timeline) SetTrackSolo(id TrackID, v bool) error {
	return tl.update(id, func(t *Track) error { t.Soloed = v; return nil })
}

func (tl *Timeline) SetTrackArm(id TrackID, v bool) error {
	return tl.update(id, func(t *Track) error { t.RecordArmed = v; return nil })
}

func (tl *Timeline) SetTrackLock(id TrackID, v bool) error {
	return tl.update(id, func(t *Track) error { t.Locked = v; return nil })
}

func editable(t *Track) error {
	if t.Locked {
		return fmt.Errorf("%w: track %d is locked", audio.ErrInvalidArgument, t.ID)
	}
	return nil
}

// AddAudioClip places a clip on an audio track and takes a reference to
// its sample.
func (tl *Timeline) AddAudioClip(track TrackID, c AudioClip) (ClipID, error) {
	if err := c.validate(); err != nil {
		return 0, err
	}
	var id ClipID
	err := tl.update(track, func(t *Track) error {
		if t.Type != AudioTrack {
			return fmt.Errorf("%w: %s track %d cannot hold audio clips", audio.ErrInvalidArgument, t.Type, t.ID)
		}
		if err := editable(t); err != nil {
			return err
		}
		if tl.refs != nil {
			if err := tl.refs.Retain(c.SampleID); err != nil {
				return err
			}
		}
		id = tl.nextClip
		tl.nextClip++
		c.ID, c.Track = id, track
		t.AudioClips = append(t.AudioClips, c)
		tl.clipTracks[id] = track
		return nil
	})
	return id, err
}

func (tl *Timeline) AddMidiClip(track TrackID, c MidiClip) (ClipID, error) {
	if err := c.validate(); err != nil {
		return 0, err
	}
	var id ClipID
	err := tl.update(track, func(t *Track) error {
		if t.Type != InstrumentTrack {
			return fmt.Errorf("%w: %s track %d cannot hold midi clips", audio.ErrInvalidArgument, t.Type, t.ID)
		}
		if err := editable(t); err != nil {
			return err
		}
		id = tl.nextClip
		tl.nextClip++
		c.ID, c.Track = id, track
		c.Notes = append([]Note(nil), c.Notes...)
		t.MidiClips = append(t.MidiClips, c)
		tl.clipTracks[id] = track
		return nil
	})
	return id, err
}

// clip finds a clip and calls exactly one of fa or fm with it.
func (tl *Timeline) clip(id ClipID, fa func(*Track, int) error, fm func(*Track, int) error) error {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tid, ok := tl.clipTracks[id]
	if !ok {
		return clipNotFound(id)
	}
	t := tl.tracks[tid]
	if err := editable(t); err != nil {
		return err
	}
	var err error
	if i := audioIndex(t, id); i >= 0 {
		err = fa(t, i)
	} else {
		err = fm(t, midiIndex(t, id))
	}
	if err != nil {
		return err
	}
	tl.publish()
	return nil
}

func audioIndex(t *Track, id ClipID) int {
	for i := range t.AudioClips {
		if t.AudioClips[i].ID == id {
			return i
		}
	}
	return -1
}

func midiIndex(t *Track, id ClipID) int {
	for i := range t.MidiClips {
		if t.MidiClips[i].ID == id {
			return i
		}
	}
	return -1
}

// editClip applies f to the shared part of a clip of either kind.
func (tl *Timeline) editClip(id ClipID, f func(*Clip) error) error {
	return tl.clip(id,
		func(t *Track, i int) error { return f(&t.AudioClips[i].Clip) },
		func(t *Track, i int) error { return f(&t.MidiClips[i].Clip) })
}

// editAudio applies f to an audio clip.
func (tl *Timeline) editAudio(id ClipID, f func(*AudioClip) error) error {
	return tl.clip(id,
		func(t *Track, i int) error {
			c := t.AudioClips[i]
			if err := f(&c); err != nil {
				return err
			}
			if err := c.validate(); err != nil {
				return err
			}
			t.AudioClips[i] = c
			return nil
		},
		func(t *Track, i int) error {
			return fmt.Errorf("%w: clip %d is not an audio clip", audio.ErrInvalidArgument, id)
		})
}

func (tl *Timeline) RemoveClip(id ClipID) error {
	return tl.clip(id,
		func(t *Track, i int) error {
			tl.release(t.AudioClips[i].SampleID)
			t.AudioClips = append(t.AudioClips[:i], t.AudioClips[i+1:]...)
			delete(tl.clipTracks, id)
			return nil
		},
		func(t *Track, i int) error {
			t.MidiClips = append(t.MidiClips[:i], t.MidiClips[i+1:]...)
			delete(tl.clipTracks, id)
			return nil
		})
}

// MoveClip sets a clip's start and, when track is nonzero, moves it to
// another track of the same type.
func (tl *Timeline) MoveClip(id ClipID, start int64, track TrackID) error {
	if start < 0 {
		return fmt.Errorf("%w: clip start %d", audio.ErrInvalidArgument, start)
	}
	return tl.clip(id,
		func(t *Track, i int) error {
			dst, err := tl.target(t, track)
			if err != nil {
				return err
			}
			c := t.AudioClips[i]
			c.Start, c.Track = start, dst.ID
			t.AudioClips = append(t.AudioClips[:i], t.AudioClips[i+1:]...)
			dst.AudioClips = append(dst.AudioClips, c)
			tl.clipTracks[id] = dst.ID
			return nil
		},
		func(t *Track, i int) error {
			dst, err := tl.target(t, track)
			if err != nil {
				return err
			}
			c := t.MidiClips[i]
			c.Start, c.Track = start, dst.ID
			t.MidiClips = append(t.MidiClips[:i], t.MidiClips[i+1:]...)
			dst.MidiClips = append(dst.MidiClips, c)
			tl.clipTracks[id] = dst.ID
			return nil
		})
}

func (tl *Timeline) target(from *Track, id TrackID) (*Track, error) {
	if id == 0 || id == from.ID {
		return from, nil
	}
	t, ok := tl.tracks[id]
	if !ok {
		return nil, trackNotFound(id)
	}
	if t.Type != from.Type {
		return nil, fmt.Errorf("%w: cannot move a clip from a %s track to a %s track", audio.ErrInvalidArgument, from.Type, t.Type)
	}
	return t, editable(t)
}

func (tl *Timeline) ResizeClip(id ClipID, length int64) error {
	return tl.editClip(id, func(c *Clip) error {
		if length < 0 {
			return fmt.Errorf("%w: clip length %d", audio.ErrInvalidArgument, length)
		}
		c.Length = length
		return nil
	})
}

func (tl *Timeline) SetClipMuted(id ClipID, v bool) error {
	return tl.editClip(id, func(c *Clip) error { c.Muted = v; return nil })
}

func (tl *Timeline) SetClipGain(id ClipID, db float64) error {
	return tl.editAudio(id, func(c *AudioClip) error { c.GainDB = db; return nil })
}

func (tl *Timeline) SetClipFades(id ClipID, in, out int64) error {
	return tl.editAudio(id, func(c *AudioClip) error { c.FadeIn, c.FadeOut = in, out; return nil })
}

func (tl *Timeline) SetClipPitch(id ClipID, semitones float64) error {
	return tl.editAudio(id, func(c *AudioClip) error { c.Pitch = semitones; return nil })
}

// SetClipStretch sets the time-stretch ratio. A ratio of zero or less
// mutes the clip.
func (tl *Timeline) SetClipStretch(id ClipID, ratio float64) error {
	return tl.editAudio(id, func(c *AudioClip) error { c.Stretch = ratio; return nil })
}

// SetNotes replaces the notes of a midi clip.
func (tl *Timeline) SetNotes(id ClipID, notes []Note) error {
	return tl.clip(id,
		func(t *Track, i int) error {
			return fmt.Errorf("%w: clip %d is not a midi clip", audio.ErrInvalidArgument, id)
		},
		func(t *Track, i int) error {
			c := MidiClip{Clip: t.MidiClips[i].Clip, Notes: append([]Note(nil), notes...)}
			if err := c.validate(); err != nil {
				return err
			}
			t.MidiClips[i] = c
			return nil
		})
}

// ClipsAt returns the clips on a track that cover pos.
func (tl *Timeline) ClipsAt(track TrackID, pos int64) ([]Clip, error) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	t, ok := tl.tracks[track]
	if !ok {
		return nil, trackNotFound(track)
	}
	return collect(t, pos, pos+1), nil
}

// ClipsInRange returns the clips on every track overlapping [start, end).
func (tl *Timeline) ClipsInRange(start, end int64) []Clip {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	var clips []Clip
	for _, t := range tl.tracks {
		clips = append(clips, collect(t, start, end)...)
	}
	sortClips(clips)
	return clips
}

func collect(t *Track, start, end int64) []Clip {
	var clips []Clip
	for i := range t.AudioClips {
		if c := &t.AudioClips[i].Clip; c.Overlaps(start, end) {
			clips = append(clips, *c)
		}
	}
	for i := range t.MidiClips {
		if c := &t.MidiClips[i].Clip; c.Overlaps(start, end) {
			clips = append(clips, *c)
		}
	}
	sortClips(clips)
	return clips
}

func sortClips(clips []Clip) {
	sort.Slice(clips, func(i, j int) bool {
		if clips[i].Start != clips[j].Start {
			return clips[i].Start < clips[j].Start
		}
		return clips[i].ID < clips[j].ID
	})
}

// Tracks returns copies of every track in id order with clips ordered by
// start.
func (tl *Timeline) Tracks() []Track {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tracks := make([]Track, 0, len(tl.tracks))
	for _, t := range tl.tracks {
		tracks = append(tracks, copyTrack(t))
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].ID < tracks[j].ID })
	return tracks
}

func (tl *Timeline) Track(id TrackID) (Track, bool) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	t, ok := tl.tracks[id]
	if !ok {
		return Track{}, false
	}
	return copyTrack(t), true
}

func copyTrack(t *Track) Track {
	c := *t
	c.AudioClips = append([]AudioClip(nil), t.AudioClips...)
	c.MidiClips = make([]MidiClip, len(t.MidiClips))
	for i, m := range t.MidiClips {
		m.Notes = append([]Note(nil), m.Notes...)
		c.MidiClips[i] = m
	}
	sort.SliceStable(c.AudioClips, func(i, j int) bool { return c.AudioClips[i].Start < c.AudioClips[j].Start })
	sort.SliceStable(c.MidiClips, func(i, j int) bool { return c.MidiClips[i].Start < c.MidiClips[j].Start })
	return c
}

// Length is the end of the last clip.
func (tl *Timeline) Length() int64 {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	var end int64
	for _, t := range tl.tracks {
		for i := range t.AudioClips {
			end = max(end, t.AudioClips[i].End())
		}
		for i := range t.MidiClips {
			end = max(end, t.MidiClips[i].End())
		}
	}
	return end
}
