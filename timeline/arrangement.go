package timeline

import "sort"

// lane is the audio side's read-only view of one track.
type lane struct {
	audible bool
	audio   []AudioClip
	midi    []MidiClip
}

type arrangement struct {
	tracks map[TrackID]*lane
}

// publish copies the model into a new arrangement. Called with tl.mu held.
func (tl *Timeline) publish() {
	anySoloed := false
	for _, t := range tl.tracks {
		if t.Soloed {
			anySoloed = true
			break
		}
	}
	arr := &arrangement{tracks: make(map[TrackID]*lane, len(tl.tracks))}
	for id, t := range tl.tracks {
		muted, soloed := tl.inherited(t)
		l := &lane{
			audible: !muted && (!anySoloed || soloed),
			audio:   append([]AudioClip(nil), t.AudioClips...),
			midi:    append([]MidiClip(nil), t.MidiClips...),
		}
		sort.SliceStable(l.audio, func(i, j int) bool { return l.audio[i].Start < l.audio[j].Start })
		sort.SliceStable(l.midi, func(i, j int) bool { return l.midi[i].Start < l.midi[j].Start })
		arr.tracks[id] = l
	}
	tl.current.Store(arr)
}

// inherited reports whether t or any folder above it is muted or soloed.
func (tl *Timeline) inherited(t *Track) (muted, soloed bool) {
	for depth := 0; t != nil && depth <= len(tl.tracks); depth++ {
		muted = muted || t.Muted
		soloed = soloed || t.Soloed
		t = tl.tracks[t.Parent]
	}
	return muted, soloed
}

// Audible reports whether a track passes the track mute and solo gate.
func (tl *Timeline) Audible(id TrackID) bool {
	l, ok := tl.current.Load().tracks[id]
	return ok && l.audible
}
