package timeline

import (
	"math"

	"github.com/ik5/audpbx/utils"
)

// Reader fills dst from src starting at source position pos and advancing
// rate source frames per output frame. Positions outside src read as
// silence. Every Reader writes exactly len(dst) frames.
type Reader interface {
	Read(dst, src []float64, pos, rate float64)
}

// Direct copies samples one to one. It ignores the fractional part of pos
// and expects a rate of 1.
type Direct struct{}

func (Direct) Read(dst, src []float64, pos, rate float64) {
	start := int64(math.Floor(pos))
	for i := range dst {
		dst[i] = at(src, start+int64(i))
	}
}

// Resample reads at any rate with cubic interpolation, which changes pitch
// and length together.
type Resample struct{}

func (Resample) Read(dst, src []float64, pos, rate float64) {
	for i := range dst {
		x := pos + float64(i)*rate
		j := int64(math.Floor(x))
		frac := float32(x - float64(j))
		dst[i] = float64(utils.CubicInterpolate(
			float32(at(src, j-1)),
			float32(at(src, j)),
			float32(at(src, j+1)),
			float32(at(src, j+2)),
			frac,
		))
	}
}

func at(src []float64, i int64) float64 {
	if i < 0 || i >= int64(len(src)) {
		return 0
	}
	return src[i]
}

// ReaderFor picks Direct for clips that play at their original speed and
// Resample otherwise.
func ReaderFor(c *AudioClip) Reader {
	if c.Stretch == 1 && c.Pitch == 0 {
		return Direct{}
	}
	return Resample{}
}
