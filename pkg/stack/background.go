package stack

import "fmt"

// SubtractBackground subtracts one level per plane and clamps the result at
// zero. Levels must be shaped (C) for a CYX stack or (T, C) for a TCYX stack.
//
// The clamp makes repeated subtraction non-associative: subtracting L1 and then
// L2 is not the same as subtracting L1+L2 once when the first pass clipped.
func (s *ImageStack) SubtractBackground(levels Tensor) (*ImageStack, error) {
	want := s.layout.levelShape(s.times, s.channels)
	if !sameShape(levels.Shape, want) {
		return nil, mismatch(fmt.Sprintf("background levels for %s stack", s.layout), want, levels.Shape)
	}

	out := make([]float64, len(s.data))
	for t := 0; t < s.times; t++ {
		for c := 0; c < s.channels; c++ {
			level := levels.Data[t*s.channels+c]
			src := s.plane(t, c)
			dst := out[(t*s.channels+c)*s.planeSize():]
			for i, v := range src {
				dst[i] = clampZero(v - level)
			}
		}
	}
	return s.derive(out, s.channels), nil
}
