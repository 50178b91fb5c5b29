package audio

import (
	"math"
	"sync/atomic"
)

// Oscillator is a source producing one of the basic waveforms on every
// channel of its output.
type Oscillator struct {
	Base
	*Props
	freq       *atomic.Value
	level      *atomic.Value
	wave       *atomic.Value
	osc        osc
	sampleRate float64
}

func NewOscillator(name string, channels int) *Oscillator {
	props := NewProps()
	return &Oscillator{
		Base:  NewBase(name, Source, AudioOut("out", channels)),
		Props: props,
		freq:  props.MustRegister("freq", FloatRange(0.01, 20_000), 440.0),
		level: props.MustRegister(propLevel, setLevel, 0.0),
		wave:  props.MustRegister("wave", setWaveform, "sine"),
	}
}

func (o *Oscillator) Prepare(sampleRate float64, maxFrames int) error {
	o.sampleRate = sampleRate
	return nil
}

func (o *Oscillator) Reset() { o.osc.phase = 0 }

func (o *Oscillator) Process(ctx *Context, in, out []Signal) {
	buf := out[0].Audio
	o.osc.setWaveform(o.wave.Load().(string))
	o.osc.phaseDelta = loadFloat(o.freq) * twoPi / o.sampleRate
	first := buf.Channel(0)
	clear(first)
	o.osc.process(first)
	buf.ScaleChannel(0, DBToGain(loadFloat(o.level)))
	for c := 1; c < buf.Channels(); c++ {
		copy(buf.Channel(c), first)
	}
}

// Constant outputs a fixed value, useful as a DC test signal or a control
// source.
type Constant struct {
	Base
	*Props
	value *atomic.Value
}

func NewConstant(name string, channels int, value float64) *Constant {
	props := NewProps()
	return &Constant{
		Base:  NewBase(name, Source, AudioOut("out", channels)),
		Props: props,
		value: props.MustRegister("value", FloatRange(-16, 16), value),
	}
}

func (c *Constant) Process(ctx *Context, in, out []Signal) {
	out[0].Audio.Fill(loadFloat(c.value))
}

// Gain scales its input by a smoothed level in dB.
type Gain struct {
	Base
	*Props
	gain   *atomic.Value
	smooth Smoother
}

func NewGain(name string, channels int) *Gain {
	props := NewProps()
	return &Gain{
		Base:  NewBase(name, Processor, AudioIn("in", channels), AudioOut("out", channels)),
		Props: props,
		gain:  props.MustRegister("gain", setLevel, 0.0),
	}
}

func (g *Gain) Prepare(sampleRate float64, maxFrames int) error {
	g.smooth.Prepare(sampleRate, 10)
	g.smooth.Snap(DBToGain(loadFloat(g.gain)))
	return nil
}

func (g *Gain) Reset() { g.smooth.Snap(DBToGain(loadFloat(g.gain))) }

func (g *Gain) Process(ctx *Context, in, out []Signal) {
	src, dst := in[0].Audio, out[0].Audio
	g.smooth.SetTarget(DBToGain(loadFloat(g.gain)))
	for n := 0; n < ctx.Frames; n++ {
		v := g.smooth.Next()
		for c := 0; c < dst.Channels(); c++ {
			dst.channels[c][n] = src.channels[c][n] * v
		}
	}
}

// Filter is a resonant low-pass biquad applied to every channel.
type Filter struct {
	Base
	*Props
	cutoff  *atomic.Value
	q       *atomic.Value
	filters []filter
}

func NewFilter(name string, channels int) *Filter {
	props := NewProps()
	return &Filter{
		Base:    NewBase(name, Processor, AudioIn("in", channels), AudioOut("out", channels)),
		Props:   props,
		cutoff:  props.MustRegister(propCutoff, FloatRange(20, 20_000), 1000.0),
		q:       props.MustRegister("q", FloatRange(0.1, 20), 0.707),
		filters: make([]filter, channels),
	}
}

func (f *Filter) Prepare(sampleRate float64, maxFrames int) error {
	for i := range f.filters {
		f.filters[i].sampleRate = sampleRate
	}
	return nil
}

func (f *Filter) Reset() {
	for i := range f.filters {
		f.filters[i].y1, f.filters[i].y2 = 0, 0
	}
}

func (f *Filter) Process(ctx *Context, in, out []Signal) {
	cutoff, q := loadFloat(f.cutoff), loadFloat(f.q)
	for c := range f.filters {
		dst := out[0].Audio.Channel(c)
		copy(dst, in[0].Audio.Channel(c))
		f.filters[c].calculateCoefficients(cutoff, q)
		f.filters[c].process(dst)
	}
}

const maxDelaySeconds = 2.0

// Delay is a feedback delay line. The line is allocated in Prepare.
type Delay struct {
	Base
	*Props
	time     *atomic.Value
	feedback *atomic.Value
	mix      *atomic.Value

	lines      [][]float64
	pos        int
	sampleRate float64
}

func NewDelay(name string, channels int) *Delay {
	props := NewProps()
	return &Delay{
		Base:     NewBase(name, Processor, AudioIn("in", channels), AudioOut("out", channels)),
		Props:    props,
		time:     props.MustRegister("time", FloatRange(1, maxDelaySeconds*1000), 250.0),
		feedback: props.MustRegister("feedback", FloatRange(0, 0.95), 0.3),
		mix:      props.MustRegister("mix", FloatRange(0, 1), 0.3),
		lines:    make([][]float64, channels),
	}
}

func (d *Delay) Prepare(sampleRate float64, maxFrames int) error {
	d.sampleRate = sampleRate
	size := int(math.Ceil(maxDelaySeconds*sampleRate)) + 1
	for c := range d.lines {
		d.lines[c] = make([]float64, size)
	}
	d.pos = 0
	return nil
}

func (d *Delay) Release() {
	for c := range d.lines {
		d.lines[c] = nil
	}
}

func (d *Delay) Reset() {
	for _, line := range d.lines {
		clear(line)
	}
	d.pos = 0
}

func (d *Delay) Process(ctx *Context, in, out []Signal) {
	size := len(d.lines[0])
	lag := int(loadFloat(d.time) * d.sampleRate / 1000)
	lag = max(1, min(lag, size-1))
	fb, mix := loadFloat(d.feedback), loadFloat(d.mix)
	pos := d.pos
	for c, line := range d.lines {
		src, dst := in[0].Audio.Channel(c), out[0].Audio.Channel(c)
		pos = d.pos
		for n, x := range src {
			read := pos - lag
			if read < 0 {
				read += size
			}
			delayed := line[read]
			line[pos] = x + delayed*fb
			dst[n] = x*(1-mix) + delayed*mix
			if pos++; pos == size {
				pos = 0
			}
		}
	}
	d.pos = pos
}

// Summer mixes every connection on its summing input into one output.
type Summer struct {
	Base
}

func NewSummer(name string, channels int) *Summer {
	return &Summer{Base: NewBase(name, Mixer, SumIn("in", channels), AudioOut("out", channels))}
}

func (s *Summer) Process(ctx *Context, in, out []Signal) {
	out[0].Audio.CopyFrom(in[0].Audio)
}

// Fanout copies its input to each of its outputs.
type Fanout struct {
	Base
}

func NewFanout(name string, channels, outputs int) *Fanout {
	ports := []Port{AudioIn("in", channels)}
	for i := 0; i < outputs; i++ {
		ports = append(ports, AudioOut("out", channels))
	}
	return &Fanout{Base: NewBase(name, Splitter, ports...)}
}

func (f *Fanout) Process(ctx *Context, in, out []Signal) {
	for _, o := range out {
		o.Audio.CopyFrom(in[0].Audio)
	}
}

// Capture is a sink that remembers what it received: a running frame
// count, per-channel peaks and the most recent samples.
type Capture struct {
	Base
	frames  atomic.Int64
	peaks   []atomic.Uint64
	history [][]float64
	written int
}

// NewCapture keeps the last historyFrames samples of every channel.
func NewCapture(name string, channels, historyFrames int) *Capture {
	c := &Capture{
		Base:    NewBase(name, Sink, SumIn("in", channels)),
		peaks:   make([]atomic.Uint64, channels),
		history: make([][]float64, channels),
	}
	for i := range c.history {
		c.history[i] = make([]float64, historyFrames)
	}
	return c
}

func (c *Capture) Reset() {
	c.frames.Store(0)
	for i := range c.peaks {
		c.peaks[i].Store(0)
	}
	for _, h := range c.history {
		clear(h)
	}
	c.written = 0
}

func (c *Capture) Process(ctx *Context, in, out []Signal) {
	buf := in[0].Audio
	for ch, h := range c.history {
		samples := buf.Channel(ch)
		if peak := buf.Peak(ch); peak > math.Float64frombits(c.peaks[ch].Load()) {
			c.peaks[ch].Store(math.Float64bits(peak))
		}
		if len(h) == 0 {
			continue
		}
		pos := c.written % len(h)
		for _, v := range samples {
			h[pos] = v
			if pos++; pos == len(h) {
				pos = 0
			}
		}
	}
	c.written += ctx.Frames
	c.frames.Add(int64(ctx.Frames))
}

// Frames is the number of frames received since the last reset.
func (c *Capture) Frames() int64 { return c.frames.Load() }

func (c *Capture) Peak(ch int) float64 { return math.Float64frombits(c.peaks[ch].Load()) }

// History returns the most recent samples of channel ch, oldest first. It
// must not be called while the graph is processing.
func (c *Capture) History(ch int) []float64 {
	h := c.history[ch]
	n := min(c.written, len(h))
	out := make([]float64, 0, n)
	start := (c.written - n) % max(len(h), 1)
	for i := 0; i < n; i++ {
		out = append(out, h[(start+i)%len(h)])
	}
	return out
}
