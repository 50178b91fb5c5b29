package audio

import (
	"fmt"
	"sort"
	"sync/atomic"
)

// Props stores node parameters that can be updated without locks. All
// properties must be registered before the node is added to a graph; after
// that only Set and Get are called.
type Props struct {
	properties map[string]*atomic.Value
	setters    map[string]Setter
}

func NewProps() *Props {
	return &Props{
		properties: make(map[string]*atomic.Value),
		setters:    make(map[string]Setter),
	}
}

// Set updates the property with value. The key has to be registered first
// using Register.
func (p *Props) Set(key string, value interface{}) error {
	prop, ok := p.properties[key]
	if !ok {
		return fmt.Errorf("%w: unknown property %s", ErrInvalidArgument, key)
	}
	if err := p.setters[key](key, value, prop); err != nil {
		return fmt.Errorf("set property %s: %w", key, err)
	}
	return nil
}

func (p *Props) Get(key string) (interface{}, error) {
	prop, ok := p.properties[key]
	if !ok {
		return nil, fmt.Errorf("%w: unknown property %s", ErrInvalidArgument, key)
	}
	return prop.Load(), nil
}

// Keys returns the registered property names in order.
func (p *Props) Keys() []string {
	keys := make([]string, 0, len(p.properties))
	for k := range p.properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Register adds a new property.
func (p *Props) Register(key string, set Setter, init interface{}) (*atomic.Value, error) {
	var prop atomic.Value
	p.properties[key] = &prop
	p.setters[key] = set
	return &prop, set(key, init, &prop)
}

func (p *Props) MustRegister(key string, set Setter, init interface{}) *atomic.Value {
	prop, err := p.Register(key, set, init)
	if err != nil {
		panic(err)
	}
	return prop
}

// Setter validates v and stores it in dest.
type Setter func(key string, v interface{}, dest *atomic.Value) error

var (
	setEnvParam = FloatRange(0.0005, 15)
	setLevel    = FloatRange(-96, 12)
)

// FloatRange accepts numbers in [min, max].
func FloatRange(min, max float64) Setter {
	return func(key string, v interface{}, dest *atomic.Value) error {
		var f float64
		switch n := v.(type) {
		case float64:
			f = n
		case int:
			f = float64(n)
		default:
			return fmt.Errorf("%w: value is not a number: %v", ErrInvalidArgument, v)
		}
		if err := CheckRange(key, f, min, max); err != nil {
			return err
		}
		dest.Store(f)
		return nil
	}
}

func setInt(key string, v interface{}, dest *atomic.Value) error {
	switch n := v.(type) {
	case float64:
		dest.Store(int(n))
	case int:
		dest.Store(n)
	default:
		return fmt.Errorf("%w: value is not an int: %v", ErrInvalidArgument, v)
	}
	return nil
}

// OneOf accepts one of the listed strings.
func OneOf(values ...string) Setter {
	return func(key string, v interface{}, dest *atomic.Value) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: value is not a string: %v", ErrInvalidArgument, v)
		}
		for _, allowed := range values {
			if s == allowed {
				dest.Store(s)
				return nil
			}
		}
		return fmt.Errorf("%w: %s must be one of %v, got %q", ErrInvalidArgument, key, values, s)
	}
}

func loadFloat(v *atomic.Value) float64 { return v.Load().(float64) }
