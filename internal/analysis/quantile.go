package analysis

import (
	"fmt"
	"math"
	"strings"
)

// Interpolation selects how a quantile that falls between two ranks is
// resolved.
type Interpolation string

const (
	Nearest  Interpolation = "nearest"
	Linear   Interpolation = "linear"
	Lower    Interpolation = "lower"
	Higher   Interpolation = "higher"
	Midpoint Interpolation = "midpoint"
)

func ParseInterpolation(s string) (Interpolation, error) {
	switch in := Interpolation(strings.ToLower(strings.TrimSpace(s))); in {
	case "":
		return Nearest, nil
	case Nearest, Linear, Lower, Higher, Midpoint:
		return in, nil
	}
	return "", fmt.Errorf("unknown interpolation %q", s)
}

// quantile returns the q-quantile of an ascending slice.
func quantile(sorted []float64, q float64, in Interpolation) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	switch in {
	case Lower:
		return sorted[lo]
	case Higher:
		return sorted[hi]
	case Midpoint:
		return (sorted[lo] + sorted[hi]) / 2
	case Linear:
		w := pos - float64(lo)
		return sorted[lo]*(1-w) + sorted[hi]*w
	default:
		// half away from zero
		return sorted[int(math.Round(pos))]
	}
}
