package bleedthrough

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"fluorbleed/pkg/stack"
)

// Apply removes bleed-through from a background-subtracted stack: for every
// destination channel j and time point,
//
//	corrected[j] = s[j] − Σ_{i≠j} M[i][j]·s[i]
//
// Order matters: coefficients are calibrated on background-subtracted controls,
// so s must already have its background removed.
//
// The result is not clamped and may hold negative values from over-subtraction;
// callers clamp with ClampNegative once they no longer need them. Non-finite
// coefficients (from the ratio estimator dividing by ~0) are treated as zero.
func Apply(s *stack.ImageStack, m *Matrix) (*stack.ImageStack, error) {
	if m.Channels() != s.NumChannel() {
		return nil, &stack.DimensionMismatchError{
			What:     fmt.Sprintf("coefficient matrix for %d-channel stack", s.NumChannel()),
			Expected: []int{s.NumChannel(), s.NumChannel()},
			Got:      []int{m.Channels(), m.Channels()},
		}
	}

	channels := s.NumChannel()
	planes := make([][][]float64, s.NumTime())
	for t := range planes {
		source := make([][]float64, channels)
		for c := range source {
			p, err := s.Plane(t, c)
			if err != nil {
				return nil, err
			}
			source[c] = p
		}

		planes[t] = make([][]float64, channels)
		for j := 0; j < channels; j++ {
			dst := append([]float64(nil), source[j]...)
			for i := 0; i < channels; i++ {
				k := m.At(i, j)
				if i == j || k == 0 || math.IsNaN(k) || math.IsInf(k, 0) {
					continue
				}
				floats.AddScaled(dst, -k, source[i])
			}
			planes[t][j] = dst
		}
	}
	return s.FromChannelPlanes(planes)
}
