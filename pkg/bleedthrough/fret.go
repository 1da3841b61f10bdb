package bleedthrough

import (
	"errors"
	"fmt"
	"math"

	"fluorbleed/pkg/stack"
)

// ErrNoGFactor means G = 0, i.e. no calibration constant is available and the
// apparent efficiency cannot be computed
var ErrNoGFactor = errors.New("G factor is zero, apparent FRET efficiency disabled")

// Ratio divides the acceptor channel by the donor channel pixel by pixel and
// returns a single-channel stack of the same layout. Zero donors and other
// invalid quotients become 0, as do negative ratios.
//
// Ratio does not clamp its input. In the correction pipeline it runs after the
// corrected stack has been clamped so both operands are non-negative.
func Ratio(s *stack.ImageStack, donor, acceptor int) (*stack.ImageStack, error) {
	if donor < 0 || donor >= s.NumChannel() || acceptor < 0 || acceptor >= s.NumChannel() {
		return nil, fmt.Errorf("donor %d / acceptor %d outside %d-channel stack", donor, acceptor, s.NumChannel())
	}

	planes := make([][][]float64, s.NumTime())
	for t := range planes {
		d, err := s.Plane(t, donor)
		if err != nil {
			return nil, err
		}
		a, err := s.Plane(t, acceptor)
		if err != nil {
			return nil, err
		}
		for i := range a {
			a[i] = finiteNonNegative(a[i] / d[i])
		}
		planes[t] = [][]float64{a}
	}
	return s.FromChannelPlanes(planes)
}

// Eapp converts every channel of a ratio stack into apparent FRET efficiency,
// ratio / (ratio + G), with the same non-finite and negative handling as Ratio.
// G = 0 returns ErrNoGFactor.
func Eapp(ratio *stack.ImageStack, g float64) (*stack.ImageStack, error) {
	if g == 0 {
		return nil, ErrNoGFactor
	}
	return ratio.Map(func(r float64) float64 {
		return finiteNonNegative(r / (r + g))
	}), nil
}

func finiteNonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
