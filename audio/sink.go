package audio

// OutputNode is the sink feeding the audio device. Whatever reaches its summing
// input during a graph pass is kept in Buffer until the next pass.
type OutputNode struct {
	Base
	channels int
	buf      *Buffer
}

func NewOutput(name string, channels int) *OutputNode {
	return &OutputNode{
		Base:     NewBase(name, Sink, SumIn("in", channels)),
		channels: channels,
	}
}

func (o *OutputNode) Prepare(sampleRate float64, maxFrames int) error {
	o.buf = NewBuffer(o.channels, maxFrames)
	return nil
}

func (o *OutputNode) Release() { o.buf = nil }

// Begin clears the buffer for a pass of the given length. The graph skips
// muted sinks, so the buffer must not carry the previous pass.
func (o *OutputNode) Begin(frames int) {
	if o.buf == nil {
		return
	}
	o.buf.SetFrames(frames)
	o.buf.Clear()
}

func (o *OutputNode) Process(ctx *Context, in, out []Signal) {
	o.buf.SetFrames(ctx.Frames)
	o.buf.CopyFrom(in[0].Audio)
}

// Buffer returns the last rendered pass, or nil before Prepare.
func (o *OutputNode) Buffer() *Buffer { return o.buf }
