package audio

import (
	"fmt"
	"sort"
)

// Device is anything with settable properties.
type Device interface {
	Set(key string, val interface{}) error
	Get(key string) (interface{}, error)
}

type preset map[string]interface{}

var presets = map[string]preset{
	"lame-bass": {
		"level":       3.,
		"env.decay":   0.1,
		"env.sustain": 0.,
		"osc1.wave":   "saw",
		"osc2.wave":   "saw",
		"cutoff":      900.0,
	},
	"pluck": {
		"env.attack":  0.001,
		"env.decay":   0.25,
		"env.sustain": 0.,
		"env.release": 0.05,
		"osc1.wave":   "square",
		"osc2.wave":   "off",
		"cutoff":      2400.0,
	},
	"pad": {
		"env.attack":  0.8,
		"env.decay":   1.0,
		"env.sustain": 0.7,
		"env.release": 1.5,
		"osc1.wave":   "saw",
		"osc2.wave":   "sine",
		"cutoff":      1200.0,
	},
}

// LoadPreset applies a named preset. Properties are set in name order and
// the first failure stops the load.
func LoadPreset(name string, d Device) error {
	p, ok := presets[name]
	if !ok {
		return fmt.Errorf("%w: unknown preset: %v", ErrInvalidArgument, name)
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := d.Set(k, p[k]); err != nil {
			return err
		}
	}
	return nil
}

func Presets() []string {
	var names []string
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
