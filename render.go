package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/mrdg/daw/audio"
	"github.com/mrdg/daw/graph"
	"github.com/mrdg/daw/mixer"
	"github.com/mrdg/daw/telemetry"
	"github.com/mrdg/daw/timeline"
	"github.com/mrdg/daw/transport"
)

const (
	meterWidth = 24
	meterFloor = -60.0
)

func renderStatus(w io.Writer, s transport.Snapshot, stats telemetry.Stats) {
	state := colorize(s.State, colorYellow)
	switch s.State {
	case transport.Playing.String():
		state = colorize(s.State, colorGreen)
	case transport.Recording.String():
		state = colorize(s.State, colorRed)
	}

	ticks := int64(transport.SamplesToBeats(s.Position, s.Tempo, s.SampleRate) * transport.PPQN)
	beat := transport.FromTicks(ticks, s.TimeSig).Beat
	var icons []string
	for i := 1; i <= s.TimeSig.Numerator; i++ {
		icon := numIcon(i)
		if i == beat {
			icon = colorize(icon, colorMagenta)
		}
		icons = append(icons, icon)
	}

	fmt.Fprintf(w, "%s  %s  ♩ = %.2f  %s\n", state, s.Musical, s.Tempo, s.TimeSig)
	fmt.Fprintf(w, "%s\n", strings.Join(icons, " "))
	if s.Loop.Enabled {
		fmt.Fprintf(w, "loop %d - %d\n", s.Loop.Start, s.Loop.End)
	}
	xruns := fmt.Sprint(stats.Xruns)
	if stats.Xruns > 0 {
		xruns = colorize(xruns, colorRed)
	}
	fmt.Fprintf(w, "load %.1f%%  xruns %s  blocks %d\n", stats.Load*100, xruns, stats.Blocks)
}

func renderMixer(w io.Writer, channels []mixer.ChannelInfo) {
	var maxNameLen int
	for _, c := range channels {
		if len(c.Name) > maxNameLen {
			maxNameLen = len(c.Name)
		}
	}
	maxNameLen += 1

	for _, c := range channels {
		speaker := "🔈"
		if c.Muted {
			speaker = "🔇"
		}
		solo := " "
		if c.Soloed {
			solo = colorize("S", colorYellow)
		}
		peak := max(c.Meters.PeakL, c.Meters.PeakR)
		fmt.Fprintf(w, "%s %s %s %s %s %6.1f dB %+.2f\n",
			colorize(fmt.Sprintf("%2d", c.ID), colorGreen),
			formatName(c.Name, maxNameLen),
			speaker, solo,
			meter(peak, c.Meters.ClipL || c.Meters.ClipR),
			c.VolumeDB, c.Pan)
	}
}

// meter draws a peak level between meterFloor and 0 dBFS.
func meter(peak float64, clipped bool) string {
	db := audio.GainToDB(peak)
	n := int((db - meterFloor) / -meterFloor * meterWidth)
	n = max(0, min(n, meterWidth))
	bar := strings.Repeat("█", n) + strings.Repeat("·", meterWidth-n)
	if clipped {
		return colorize(bar, colorRed)
	}
	return colorize(bar, colorGreen)
}

func renderNodes(w io.Writer, nodes []graph.NodeInfo, conns []graph.Connection) {
	names := make(map[graph.NodeID]string, len(nodes))
	var maxNameLen int
	for _, n := range nodes {
		names[n.ID] = n.Name
		if len(n.Name) > maxNameLen {
			maxNameLen = len(n.Name)
		}
	}
	maxNameLen += 1

	for _, n := range nodes {
		var flags []string
		if n.Bypassed {
			flags = append(flags, "bypassed")
		}
		if n.Muted {
			flags = append(flags, "silenced")
		}
		fmt.Fprintf(w, "%s %s %-9s %s\n",
			colorize(fmt.Sprintf("%3d", n.ID), colorGreen),
			formatName(n.Name, maxNameLen),
			n.Category, strings.Join(flags, ","))
	}
	for _, c := range conns {
		arrow := "→"
		if !c.Enabled {
			arrow = "⇸"
		}
		fmt.Fprintf(w, "%s:%d %s %s:%d %s %.2f\n",
			names[c.Src.Node], c.Src.Port, arrow, names[c.Dst.Node], c.Dst.Port,
			colorize(c.Kind.String(), colorMagenta), c.Gain)
	}
}

func renderTracks(w io.Writer, tracks []timeline.Track) {
	var maxNameLen int
	for _, t := range tracks {
		if len(t.Name) > maxNameLen {
			maxNameLen = len(t.Name)
		}
	}
	maxNameLen += 1

	for _, t := range tracks {
		speaker := "🔈"
		if t.Muted {
			speaker = "🔇"
		}
		fmt.Fprintf(w, "%s %s %s %-10s channel %d\n",
			colorize(fmt.Sprintf("%2d", t.ID), colorGreen),
			formatName(t.Name, maxNameLen), speaker, t.Type, t.Channel)
		for _, c := range t.AudioClips {
			fmt.Fprintf(w, "    %s %s %d +%d\n",
				colorize(fmt.Sprintf("%3d", c.ID), colorMagenta), displayName(c.Name), c.Start, c.Length)
		}
		for _, c := range t.MidiClips {
			fmt.Fprintf(w, "    %s %d notes %d +%d\n",
				colorize(fmt.Sprintf("%3d", c.ID), colorMagenta), len(c.Notes), c.Start, c.Length)
		}
	}
}

func formatName(name string, max int) string {
	if len(name) > max {
		name = name[:max-1]
		name += "…"
	}
	if len(name) < max {
		name += strings.Repeat(" ", max-len(name))
	}
	return colorize(name, colorBlue)
}

func displayName(filename string) string {
	filename = filepath.Base(filename)
	return filename[:len(filename)-len(filepath.Ext(filename))]
}

func numIcon(n int) string {
	// https://www.unicode.org/emoji/charts/full-emoji-list.html#0030_fe0f_20e3
	return string([]byte{48 + byte(n%10), 239, 184, 143, 226, 131, 163})
}

const (
	colorBlack = iota + 30
	colorRed
	colorGreen
	colorYellow
	colorBlue
	colorMagenta
)

func colorize(text string, color int) string {
	return fmt.Sprintf("\033[%dm%s\033[0m", color, text)
}
