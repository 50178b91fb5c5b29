package audio

import "math"

// MinDB is the level at and below which a gain is treated as silence.
const MinDB = -96.0

// DBToGain converts decibels to a linear factor. Levels at or below MinDB
// map to exactly zero.
func DBToGain(db float64) float64 {
	if db <= MinDB {
		return 0
	}
	return math.Pow(10, db/20.0)
}

// GainToDB converts a linear factor to decibels, bottoming out at MinDB.
func GainToDB(g float64) float64 {
	if g <= 0 {
		return MinDB
	}
	return math.Max(20*math.Log10(g), MinDB)
}

// Smoother glides a parameter towards its target with a one-pole lowpass,
// one step per sample.
type Smoother struct {
	current float64
	target  float64
	coeff   float64
}

// Prepare sets the time constant. A non-positive time makes changes
// immediate.
func (s *Smoother) Prepare(sampleRate, ms float64) {
	if ms <= 0 || sampleRate <= 0 {
		s.coeff = 1
		return
	}
	s.coeff = 1 - math.Exp(-1000/(ms*sampleRate))
}

func (s *Smoother) SetTarget(v float64) { s.target = v }

// Snap jumps to v without gliding.
func (s *Smoother) Snap(v float64) {
	s.current = v
	s.target = v
}

func (s *Smoother) Next() float64 {
	s.current += s.coeff * (s.target - s.current)
	if s.coeff == 0 || math.Abs(s.target-s.current) < 1e-9 {
		s.current = s.target
	}
	return s.current
}

func (s *Smoother) Value() float64 { return s.current }
