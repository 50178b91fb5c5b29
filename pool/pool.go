// Package pool loads audio files into memory once and shares them between
// clips. Samples never change after they are added, so the audio callback
// can read them without coordination.
package pool

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	pcm "github.com/ik5/audpbx/audio"
	"github.com/mrdg/daw/audio"
)

type ID uint32

// Sample is decoded audio at the pool's sample rate.
type Sample struct {
	ID         ID
	UUID       uuid.UUID
	Name       string
	Path       string
	SampleRate float64
	Data       [][]float64 // one slice per channel
}

func (s *Sample) Channels() int { return len(s.Data) }

func (s *Sample) Frames() int {
	if len(s.Data) == 0 {
		return 0
	}
	return len(s.Data[0])
}

func (s *Sample) Duration() time.Duration {
	return time.Duration(float64(s.Frames()) / s.SampleRate * float64(time.Second))
}

// At returns sample i of channel ch, or 0 outside the sample.
func (s *Sample) At(ch, i int) float64 {
	if ch < 0 || ch >= len(s.Data) || i < 0 || i >= len(s.Data[ch]) {
		return 0
	}
	return s.Data[ch][i]
}

func (s *Sample) size() int64 { return int64(s.Frames()*s.Channels()) * 8 }

type key struct {
	path    string
	modTime time.Time
}

type entry struct {
	sample  *Sample
	key     key
	refs    int
	lastUse uint64
}

type Stats struct {
	Samples    int   `json:"samples"`
	Referenced int   `json:"referenced"`
	Bytes      int64 `json:"bytes"`
	Budget     int64 `json:"budget"`
}

type Pool struct {
	mu       sync.Mutex
	rate     int
	decoders *pcm.Registry
	entries  map[ID]*entry
	byKey    map[key]ID
	nextID   ID
	clock    uint64
	bytes    int64
	budget   int64
}

// New returns a pool that converts everything to sampleRate. A budget of
// zero or less means unlimited.
func New(sampleRate int, budget int64) *Pool {
	return &Pool{
		rate:     sampleRate,
		decoders: Decoders(),
		entries:  make(map[ID]*entry),
		byKey:    make(map[key]ID),
		nextID:   1,
		budget:   budget,
	}
}

func (p *Pool) SampleRate() int { return p.rate }

// Acquire loads the file at path, or takes another reference to it if the
// same version of the file is already loaded.
func (p *Pool) Acquire(path string) (ID, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	k := key{path: path, modTime: info.ModTime()}

	p.mu.Lock()
	if id, ok := p.byKey[k]; ok {
		e := p.entries[id]
		e.refs++
		p.touch(e)
		p.mu.Unlock()
		return id, nil
	}
	p.mu.Unlock()

	data, err := p.load(path)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// another caller may have loaded it meanwhile
	if id, ok := p.byKey[k]; ok {
		e := p.entries[id]
		e.refs++
		p.touch(e)
		return id, nil
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	e := p.add(name, path, data)
	e.key = k
	p.byKey[k] = e.sample.ID
	log.Printf("pool: loaded %s (%d ch, %d frames)", path, e.sample.Channels(), e.sample.Frames())
	return e.sample.ID, nil
}

func (p *Pool) load(path string) ([][]float64, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	dec, ok := p.decoders.Get(ext)
	if !ok {
		return nil, fmt.Errorf("%w: no decoder for %q files", audio.ErrInvalidArgument, ext)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	src, err := dec.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	data, err := readAll(src, p.rate)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Insert adds generated audio with one reference held by the caller.
// Channels are copied and resampled when rate differs from the pool's.
func (p *Pool) Insert(name string, rate int, channels [][]float64) (ID, error) {
	if len(channels) == 0 {
		return 0, fmt.Errorf("%w: no channels", audio.ErrInvalidArgument)
	}
	if rate <= 0 {
		return 0, fmt.Errorf("%w: sample rate %d", audio.ErrInvalidArgument, rate)
	}
	for _, ch := range channels[1:] {
		if len(ch) != len(channels[0]) {
			return 0, fmt.Errorf("%w: channels differ in length", audio.ErrInvalidArgument)
		}
	}
	var data [][]float64
	if rate == p.rate {
		data = make([][]float64, len(channels))
		for i, ch := range channels {
			data[i] = append([]float64(nil), ch...)
		}
	} else {
		var err error
		if data, err = readAll(newMemSource(channels, rate), p.rate); err != nil {
			return 0, err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.add(name, "", data).sample.ID, nil
}

func (p *Pool) add(name, path string, data [][]float64) *entry {
	s := &Sample{
		ID:         p.nextID,
		UUID:       uuid.New(),
		Name:       name,
		Path:       path,
		SampleRate: float64(p.rate),
		Data:       data,
	}
	p.nextID++
	e := &entry{sample: s, refs: 1}
	p.touch(e)
	p.entries[s.ID] = e
	p.bytes += s.size()
	return e
}

func (p *Pool) touch(e *entry) {
	p.clock++
	e.lastUse = p.clock
}

func (p *Pool) Retain(id ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	if !ok {
		return notFound(id)
	}
	e.refs++
	p.touch(e)
	return nil
}

// Release drops a reference. Unreferenced samples stay loaded until
// Collect finds the pool over budget.
func (p *Pool) Release(id ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	if !ok {
		return notFound(id)
	}
	if e.refs == 0 {
		return fmt.Errorf("%w: sample %d is not referenced", audio.ErrInvalidArgument, id)
	}
	e.refs--
	return nil
}

func notFound(id ID) error {
	return fmt.Errorf("%w: no sample %d", audio.ErrInvalidArgument, id)
}

// Get returns the sample or nil.
func (p *Pool) Get(id ID) *Sample {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[id]; ok {
		return e.sample
	}
	return nil
}

func (p *Pool) Refs(id ID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[id]; ok {
		return e.refs
	}
	return 0
}

func (p *Pool) SetBudget(bytes int64) {
	p.mu.Lock()
	p.budget = bytes
	p.mu.Unlock()
}

// Collect evicts unreferenced samples, least recently used first, until the
// pool fits its budget. It returns the number evicted.
func (p *Pool) Collect() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.budget <= 0 || p.bytes <= p.budget {
		return 0
	}
	var idle []*entry
	for _, e := range p.entries {
		if e.refs == 0 {
			idle = append(idle, e)
		}
	}
	sort.Slice(idle, func(i, j int) bool { return idle[i].lastUse < idle[j].lastUse })
	n := 0
	for _, e := range idle {
		if p.bytes <= p.budget {
			break
		}
		delete(p.entries, e.sample.ID)
		if e.key.path != "" {
			delete(p.byKey, e.key)
		}
		p.bytes -= e.sample.size()
		n++
	}
	return n
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Stats{Samples: len(p.entries), Bytes: p.bytes, Budget: p.budget}
	for _, e := range p.entries {
		if e.refs > 0 {
			st.Referenced++
		}
	}
	return st
}

// Samples lists loaded samples by id.
func (p *Pool) Samples() []*Sample {
	p.mu.Lock()
	defer p.mu.Unlock()
	samples := make([]*Sample, 0, len(p.entries))
	for _, e := range p.entries {
		samples = append(samples, e.sample)
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].ID < samples[j].ID })
	return samples
}
