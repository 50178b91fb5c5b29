package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mrdg/daw/audio"
	"github.com/mrdg/daw/dub"
	"github.com/mrdg/daw/engine"
	"github.com/mrdg/daw/graph"
	"github.com/mrdg/daw/mixer"
	"github.com/mrdg/daw/telemetry"
	"github.com/mrdg/daw/timeline"
	"github.com/mrdg/daw/transport"
)

const (
	stepSize        = 16
	defaultBitDepth = 24
	noteVelocity    = 100
)

var commands []command

func init() {
	commands = []command{
		{"play", transportCommand((*engine.Engine).Play), 0, "start playback"},
		{"stop", transportCommand((*engine.Engine).Stop), 0, "stop playback"},
		{"pause", transportCommand((*engine.Engine).Pause), 0, "pause playback"},
		{"record", transportCommand((*engine.Engine).Record), 0, "start the transport in record mode"},
		{"rtz", transportCommand((*engine.Engine).ReturnToZero), 0, "return to zero"},
		{"seek", seekCommand, -1, "seek <bar> [beat]"},
		{"tempo", tempoCommand, 1, "tempo <bpm>"},
		{"sig", sigCommand, 1, `sig "<num>/<denom>"`},
		{"loop", loopCommand, -1, "loop <start-bar> <end-bar> | loop on|off"},

		{"node", nodeCommand, -2, "node <kind> <name> [channels]"},
		{"rm", removeNodeCommand, 1, "rm <node>"},
		{"connect", connectCommand, -2, "connect <src> <dst> [gain]"},
		{"disconnect", disconnectCommand, 2, "disconnect <src> <dst>"},
		{"bypass", nodeFlagCommand((*engine.Engine).SetBypassed), 2, "bypass <node> on|off"},
		{"silence", nodeFlagCommand((*engine.Engine).SetMuted), 2, "silence <node> on|off"},
		{"set", setCommand, 3, "set <node> <prop> <value>"},
		{"get", getCommand, 2, "get <node> <prop>"},
		{"preset", presetCommand, 2, "preset <node> <name>"},
		{"load-sound", loadSoundCommand, 3, "load-sound <sampler> <file> <key>"},

		{"channel", channelCommand, 2, "channel <type> <name>"},
		{"rm-channel", removeChannelCommand, 1, "rm-channel <channel>"},
		{"vol", volumeCommand, 2, "vol <channel> <db>"},
		{"pan", panCommand, 2, "pan <channel> <-1..1>"},
		{"mute", channelFlagCommand((*engine.Engine).SetMute), 2, "mute <channel> on|off"},
		{"solo", channelFlagCommand((*engine.Engine).SetSolo), 2, "solo <channel> on|off"},
		{"arm", channelFlagCommand((*engine.Engine).SetRecordArm), 2, "arm <channel> on|off"},
		{"send", sendCommand, -3, "send <channel> <target> <db> [pre]"},
		{"unsend", unsendCommand, 2, "unsend <channel> <target>"},
		{"output", outputCommand, 2, "output <channel> <bus>"},

		{"track", trackCommand, 2, "track <type> <name>"},
		{"rm-track", removeTrackCommand, 1, "rm-track <track>"},
		{"instrument", instrumentCommand, 2, "instrument <track> <kind>"},
		{"import", importCommand, -2, "import <track> <file> [bar]"},
		{"pattern", patternCommand, 4, "pattern <track> <bar> <key> '<match>"},
		{"clip-gain", clipGainCommand, 2, "clip-gain <clip> <db>"},
		{"clip-mute", clipMuteCommand, 2, "clip-mute <clip> on|off"},
		{"rm-clip", removeClipCommand, 1, "rm-clip <clip>"},
		{"load", loadCommand, 1, "load <file>"},
		{"gc", gcCommand, 0, "drop unreferenced samples"},

		{"status", statusCommand, 0, "show the transport"},
		{"mixer", mixerCommand, 0, "show channels and meters"},
		{"nodes", nodesCommand, 0, "show the graph"},
		{"tracks", tracksCommand, 0, "show tracks and clips"},
		{"failures", failuresCommand, 0, "show audio side failures"},
		{"ack", ackCommand, 1, "ack <failure kind>"},
		{"snapshot", snapshotCommand, 0, "print the session as json"},
		{"save", saveCommand, 1, "save <file>"},
		{"rec", recCommand, -1, "rec <file> [bits]"},
		{"rec-stop", recStopCommand, 0, "stop recording"},
		{"help", helpCommand, 0, "list commands"},
	}
}

func transportCommand(f func(*engine.Engine) error) func(*env, []dub.Node) (dub.Node, error) {
	return func(env *env, args []dub.Node) (dub.Node, error) {
		return nil, f(env.engine)
	}
}

func seekCommand(env *env, args []dub.Node) (dub.Node, error) {
	p := transport.Position{Beat: 1}
	var err error
	switch len(args) {
	case 1:
		err = readArgs(args, &p.Bar)
	case 2:
		err = readArgs(args, &p.Bar, &p.Beat)
	default:
		err = fmt.Errorf("%w: want a bar and an optional beat", errArgs)
	}
	if err != nil {
		return nil, err
	}
	return nil, env.engine.SetMusical(p)
}

func tempoCommand(env *env, args []dub.Node) (dub.Node, error) {
	var bpm float64
	if err := readArgs(args, &bpm); err != nil {
		return nil, err
	}
	return dub.Float(env.engine.SetTempo(bpm)), nil
}

func sigCommand(env *env, args []dub.Node) (dub.Node, error) {
	var s string
	if err := readArgs(args, &s); err != nil {
		return nil, err
	}
	sig, err := parseTimeSignature(s)
	if err != nil {
		return nil, err
	}
	return nil, env.engine.SetTimeSignature(sig)
}

func loopCommand(env *env, args []dub.Node) (dub.Node, error) {
	tr := env.engine.Transport()
	if len(args) == 1 {
		var on bool
		if err := readArgs(args, &on); err != nil {
			return nil, err
		}
		l := tr.Loop()
		return nil, env.engine.SetLoop(l.Start, l.End, on)
	}
	var from, to int
	if err := readArgs(args, &from, &to); err != nil {
		return nil, err
	}
	if from < 1 || to <= from {
		return nil, fmt.Errorf("%w: bad loop range %d-%d", errArgs, from, to)
	}
	return nil, env.engine.SetLoop(env.barStart(from), env.barStart(to), true)
}

// barStart is the sample position of a bar at the current tempo.
func (env *env) barStart(bar int) int64 {
	sig := env.engine.Transport().TimeSignature()
	ticks := transport.Position{Bar: bar, Beat: 1}.Ticks(sig)
	return env.engine.Transport().BeatsToSamples(float64(ticks) / transport.PPQN)
}

func nodeCommand(env *env, args []dub.Node) (dub.Node, error) {
	var kind, name string
	channels := 2
	var err error
	switch len(args) {
	case 2:
		err = readArgs(args, &kind, &name)
	case 3:
		err = readArgs(args, &kind, &name, &channels)
	default:
		err = fmt.Errorf("%w: want a kind, a name and optional channels", errArgs)
	}
	if err != nil {
		return nil, err
	}
	id, err := env.engine.CreateNode(kind, name, channels)
	if err != nil {
		return nil, err
	}
	return dub.Int(id), nil
}

func removeNodeCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, err := env.node(args[0])
	if err != nil {
		return nil, err
	}
	return nil, env.engine.RemoveNode(id)
}

func connectCommand(env *env, args []dub.Node) (dub.Node, error) {
	if len(args) > 3 {
		return nil, fmt.Errorf("%w: want a source, a destination and an optional gain", errArgs)
	}
	src, err := env.node(args[0])
	if err != nil {
		return nil, err
	}
	dst, err := env.node(args[1])
	if err != nil {
		return nil, err
	}
	gain := 1.0
	if len(args) == 3 {
		if err := readArgs(args[2:], &gain); err != nil {
			return nil, err
		}
	}
	id, err := env.engine.Connect(graph.Endpoint{Node: src}, graph.Endpoint{Node: dst}, gain)
	if err != nil {
		return nil, err
	}
	return dub.Int(id), nil
}

func disconnectCommand(env *env, args []dub.Node) (dub.Node, error) {
	src, err := env.node(args[0])
	if err != nil {
		return nil, err
	}
	dst, err := env.node(args[1])
	if err != nil {
		return nil, err
	}
	for _, c := range env.engine.Connections() {
		if c.Src.Node == src && c.Dst.Node == dst {
			return nil, env.engine.Disconnect(c.ID)
		}
	}
	return nil, fmt.Errorf("%v is not connected to %v", args[0], args[1])
}

func nodeFlagCommand(f func(*engine.Engine, graph.NodeID, bool) error) func(*env, []dub.Node) (dub.Node, error) {
	return func(env *env, args []dub.Node) (dub.Node, error) {
		id, err := env.node(args[0])
		if err != nil {
			return nil, err
		}
		var v bool
		if err := readArgs(args[1:], &v); err != nil {
			return nil, err
		}
		return nil, f(env.engine, id, v)
	}
}

func setCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, err := env.node(args[0])
	if err != nil {
		return nil, err
	}
	var prop string
	if err := readArgs(args[1:2], &prop); err != nil {
		return nil, err
	}
	v, err := value(args[2])
	if err != nil {
		return nil, err
	}
	return nil, env.engine.SetProp(id, prop, v)
}

func getCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, err := env.node(args[0])
	if err != nil {
		return nil, err
	}
	var prop string
	if err := readArgs(args[1:], &prop); err != nil {
		return nil, err
	}
	v, err := env.engine.Prop(id, prop)
	if err != nil {
		return nil, err
	}
	switch v := v.(type) {
	case float64:
		return dub.Float(v), nil
	case int:
		return dub.Int(v), nil
	case string:
		return dub.String(v), nil
	default:
		return dub.String(fmt.Sprint(v)), nil
	}
}

func presetCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, err := env.node(args[0])
	if err != nil {
		return nil, err
	}
	var name string
	if err := readArgs(args[1:], &name); err != nil {
		return nil, err
	}
	return nil, env.engine.LoadPreset(id, name)
}

func loadSoundCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, err := env.node(args[0])
	if err != nil {
		return nil, err
	}
	var file string
	var key int
	if err := readArgs(args[1:], &file, &key); err != nil {
		return nil, err
	}
	return nil, env.engine.LoadSound(id, file, key)
}

func channelCommand(env *env, args []dub.Node) (dub.Node, error) {
	var typ, name string
	if err := readArgs(args, &typ, &name); err != nil {
		return nil, err
	}
	t, err := mixer.ParseType(typ)
	if err != nil {
		return nil, err
	}
	id, err := env.engine.AddChannel(t, name)
	if err != nil {
		return nil, err
	}
	return dub.Int(id), nil
}

func removeChannelCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, err := env.channel(args[0])
	if err != nil {
		return nil, err
	}
	return nil, env.engine.RemoveChannel(id)
}

func volumeCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, err := env.channel(args[0])
	if err != nil {
		return nil, err
	}
	var db float64
	if err := readArgs(args[1:], &db); err != nil {
		return nil, err
	}
	return nil, env.engine.SetVolume(id, db)
}

func panCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, err := env.channel(args[0])
	if err != nil {
		return nil, err
	}
	var pan float64
	if err := readArgs(args[1:], &pan); err != nil {
		return nil, err
	}
	return nil, env.engine.SetPan(id, pan)
}

func channelFlagCommand(f func(*engine.Engine, mixer.ID, bool) error) func(*env, []dub.Node) (dub.Node, error) {
	return func(env *env, args []dub.Node) (dub.Node, error) {
		id, err := env.channel(args[0])
		if err != nil {
			return nil, err
		}
		var v bool
		if err := readArgs(args[1:], &v); err != nil {
			return nil, err
		}
		return nil, f(env.engine, id, v)
	}
}

func sendCommand(env *env, args []dub.Node) (dub.Node, error) {
	if len(args) > 4 {
		return nil, fmt.Errorf("%w: too many arguments", errArgs)
	}
	id, err := env.channel(args[0])
	if err != nil {
		return nil, err
	}
	target, err := env.channel(args[1])
	if err != nil {
		return nil, err
	}
	var db float64
	if err := readArgs(args[2:3], &db); err != nil {
		return nil, err
	}
	var pre string
	if len(args) == 4 {
		if err := readArgs(args[3:], &pre); err != nil {
			return nil, err
		}
		if pre != "pre" && pre != "post" {
			return nil, fmt.Errorf("%w: expected pre or post, got %s", errArgs, pre)
		}
	}
	slot, err := env.engine.AddSend(id, target, db, pre == "pre")
	if err != nil {
		return nil, err
	}
	return dub.Int(slot), nil
}

func unsendCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, err := env.channel(args[0])
	if err != nil {
		return nil, err
	}
	target, err := env.channel(args[1])
	if err != nil {
		return nil, err
	}
	return nil, env.engine.RemoveSend(id, target)
}

func outputCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, err := env.channel(args[0])
	if err != nil {
		return nil, err
	}
	bus, err := env.channel(args[1])
	if err != nil {
		return nil, err
	}
	return nil, env.engine.SetOutput(id, bus)
}

func trackCommand(env *env, args []dub.Node) (dub.Node, error) {
	var typ, name string
	if err := readArgs(args, &typ, &name); err != nil {
		return nil, err
	}
	t, err := timeline.ParseTrackType(typ)
	if err != nil {
		return nil, err
	}
	id, err := env.engine.AddTrack(t, name, 0)
	if err != nil {
		return nil, err
	}
	return dub.Int(id), nil
}

func removeTrackCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, err := env.track(args[0])
	if err != nil {
		return nil, err
	}
	return nil, env.engine.RemoveTrack(id)
}

func instrumentCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, err := env.track(args[0])
	if err != nil {
		return nil, err
	}
	var kind string
	if err := readArgs(args[1:], &kind); err != nil {
		return nil, err
	}
	node, err := env.engine.SetInstrument(id, kind)
	if err != nil {
		return nil, err
	}
	return dub.Int(node), nil
}

func importCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, err := env.track(args[0])
	if err != nil {
		return nil, err
	}
	var file string
	bar := 1
	switch len(args) {
	case 2:
		err = readArgs(args[1:], &file)
	case 3:
		err = readArgs(args[1:], &file, &bar)
	default:
		err = fmt.Errorf("%w: want a track, a file and an optional bar", errArgs)
	}
	if err != nil {
		return nil, err
	}
	if bar < 1 {
		return nil, fmt.Errorf("%w: bar %d", errArgs, bar)
	}
	clip, err := env.engine.ImportClip(id, file, env.barStart(bar))
	if err != nil {
		return nil, err
	}
	return dub.Int(clip), nil
}

// patternCommand writes one bar of notes on a key, one note per step the
// match expression selects.
func patternCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, err := env.track(args[0])
	if err != nil {
		return nil, err
	}
	var bar, key int
	var expr dub.MatchExpr
	if err := readArgs(args[1:], &bar, &key, &expr); err != nil {
		return nil, err
	}
	if bar < 1 || key < 0 || key > 127 {
		return nil, fmt.Errorf("%w: bar %d key %d", errArgs, bar, key)
	}
	sig := env.engine.Transport().TimeSignature()
	hits, err := dub.Hits(expr, sig.Numerator, sig.Denominator, stepSize)
	if err != nil {
		return nil, err
	}
	steps := (stepSize / sig.Denominator) * sig.Numerator
	stepTicks := int64(sig.Numerator) * transport.PPQN / int64(steps)
	notes := make([]timeline.Note, 0, len(hits))
	for _, h := range hits {
		notes = append(notes, timeline.Note{
			Start:    int64(h) * stepTicks,
			Length:   stepTicks,
			Key:      uint8(key),
			Velocity: noteVelocity,
		})
	}
	start := env.barStart(bar)
	clip, err := env.engine.AddMidiClip(id, start, env.barStart(bar+1)-start, notes)
	if err != nil {
		return nil, err
	}
	return dub.Int(clip), nil
}

func clipGainCommand(env *env, args []dub.Node) (dub.Node, error) {
	var id int
	var db float64
	if err := readArgs(args, &id, &db); err != nil {
		return nil, err
	}
	return nil, env.engine.SetClipGain(timeline.ClipID(id), db)
}

func clipMuteCommand(env *env, args []dub.Node) (dub.Node, error) {
	var id int
	var v bool
	if err := readArgs(args, &id, &v); err != nil {
		return nil, err
	}
	return nil, env.engine.SetClipMuted(timeline.ClipID(id), v)
}

func removeClipCommand(env *env, args []dub.Node) (dub.Node, error) {
	var id int
	if err := readArgs(args, &id); err != nil {
		return nil, err
	}
	return nil, env.engine.RemoveClip(timeline.ClipID(id))
}

func loadCommand(env *env, args []dub.Node) (dub.Node, error) {
	var file string
	if err := readArgs(args, &file); err != nil {
		return nil, err
	}
	id, err := env.engine.LoadSample(file)
	if err != nil {
		return nil, err
	}
	return dub.Int(id), nil
}

func gcCommand(env *env, args []dub.Node) (dub.Node, error) {
	return dub.Int(env.engine.CollectSamples()), nil
}

func statusCommand(env *env, args []dub.Node) (dub.Node, error) {
	renderStatus(env.out, env.engine.TransportState(), env.engine.Stats())
	return nil, nil
}

func mixerCommand(env *env, args []dub.Node) (dub.Node, error) {
	renderMixer(env.out, env.engine.Channels())
	return nil, nil
}

func nodesCommand(env *env, args []dub.Node) (dub.Node, error) {
	renderNodes(env.out, env.engine.Nodes(), env.engine.Connections())
	return nil, nil
}

func tracksCommand(env *env, args []dub.Node) (dub.Node, error) {
	renderTracks(env.out, env.engine.Tracks())
	return nil, nil
}

func failuresCommand(env *env, args []dub.Node) (dub.Node, error) {
	for _, f := range env.engine.Failures() {
		fmt.Fprintf(env.out, "%s %s at block %d (%d)\n",
			f.Time.Format("15:04:05.000"), colorize(f.Kind.String(), colorRed), f.Block, f.Value)
	}
	return nil, nil
}

func ackCommand(env *env, args []dub.Node) (dub.Node, error) {
	var name string
	if err := readArgs(args, &name); err != nil {
		return nil, err
	}
	kind, err := telemetry.ParseKind(name)
	if err != nil {
		return nil, err
	}
	env.engine.Ack(kind)
	return nil, nil
}

func snapshotCommand(env *env, args []dub.Node) (dub.Node, error) {
	return nil, env.engine.WriteJSON(env.out)
}

func saveCommand(env *env, args []dub.Node) (dub.Node, error) {
	var file string
	if err := readArgs(args, &file); err != nil {
		return nil, err
	}
	return nil, writeSnapshot(env.engine, file)
}

func writeSnapshot(e *engine.Engine, file string) error {
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	if err := e.WriteJSON(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func recCommand(env *env, args []dub.Node) (dub.Node, error) {
	var file string
	bits := defaultBitDepth
	var err error
	switch len(args) {
	case 1:
		err = readArgs(args, &file)
	case 2:
		err = readArgs(args, &file, &bits)
	default:
		err = fmt.Errorf("%w: want a file and an optional bit depth", errArgs)
	}
	if err != nil {
		return nil, err
	}
	r, err := env.engine.StartRecording(file, bits)
	if err != nil {
		return nil, err
	}
	return dub.String(r.Path()), nil
}

func recStopCommand(env *env, args []dub.Node) (dub.Node, error) {
	r := env.engine.Recording()
	if r == nil {
		return nil, fmt.Errorf("not recording")
	}
	if err := env.engine.StopRecording(); err != nil {
		return nil, err
	}
	return dub.Int(r.Frames()), nil
}

func helpCommand(env *env, args []dub.Node) (dub.Node, error) {
	for _, cmd := range commands {
		fmt.Fprintf(env.out, "%s  %s\n", colorize(fmt.Sprintf("%-12s", cmd.name), colorGreen), cmd.help)
	}
	return nil, nil
}

// text returns the text of an identifier or string argument.
func text(arg dub.Node) (string, bool) {
	switch v := arg.(type) {
	case dub.Identifier:
		return string(v), true
	case dub.String:
		return string(v), true
	}
	return "", false
}

// node resolves a node by id or by name.
func (env *env) node(arg dub.Node) (graph.NodeID, error) {
	if id, ok := arg.(dub.Int); ok {
		return graph.NodeID(id), nil
	}
	if s, ok := text(arg); ok {
		for _, n := range env.engine.Nodes() {
			if n.Name == s {
				return n.ID, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: unknown node: %v", audio.ErrInvalidArgument, arg)
}

func (env *env) channel(arg dub.Node) (mixer.ID, error) {
	if id, ok := arg.(dub.Int); ok {
		return mixer.ID(id), nil
	}
	if s, ok := text(arg); ok {
		for _, c := range env.engine.Channels() {
			if c.Name == s {
				return c.ID, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: unknown channel: %v", audio.ErrInvalidArgument, arg)
}

func (env *env) track(arg dub.Node) (timeline.TrackID, error) {
	if id, ok := arg.(dub.Int); ok {
		return timeline.TrackID(id), nil
	}
	if s, ok := text(arg); ok {
		for _, t := range env.engine.Tracks() {
			if t.Name == s {
				return t.ID, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: unknown track: %v", audio.ErrInvalidArgument, arg)
}

func parseTimeSignature(s string) (audio.TimeSignature, error) {
	var t audio.TimeSignature
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return t, fmt.Errorf("not a valid time signature: %s", s)
	}
	num, err := strconv.Atoi(parts[0])
	if err != nil {
		return t, fmt.Errorf("bad numerator %s: %s", parts[0], err)
	}
	denom, err := strconv.Atoi(parts[1])
	if err != nil {
		return t, fmt.Errorf("bad denominator %s: %s", parts[1], err)
	}
	t = audio.TimeSignature{Numerator: num, Denominator: denom}
	return t, transport.ValidateTimeSignature(t)
}
