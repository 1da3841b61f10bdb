package stack

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"fluorbleed/pkg/roi"
)

// Measure returns the mean intensity inside every ROI for every plane.
//
// The result is shaped (ROI, C) for a CYX stack and (ROI, T, C) for a TCYX
// stack. With reduce set, the ROI axis is averaged away giving (C) or (T, C);
// this is how several background ROIs are pooled into one level per plane.
//
// An empty ROI set is not an error: the result is a zero-filled tensor of the
// reduced shape, so that downstream arithmetic (e.g. subtracting a background
// nobody drew) proceeds unchanged.
func (s *ImageStack) Measure(rois *roi.Set, reduce bool) (Tensor, error) {
	return s.measureWith(rois, reduce, func(mean, _ float64) float64 { return mean })
}

// Noise is the twin of Measure reporting the population standard deviation
// inside each ROI, used as a per-plane noise estimate.
func (s *ImageStack) Noise(rois *roi.Set, reduce bool) (Tensor, error) {
	return s.measureWith(rois, reduce, func(_, std float64) float64 { return std })
}

func (s *ImageStack) measureWith(rois *roi.Set, reduce bool, pick func(mean, std float64) float64) (Tensor, error) {
	if rois == nil || rois.Len() == 0 {
		return NewTensor(s.layout.levelShape(s.times, s.channels)...), nil
	}
	if rois.Width() != s.width || rois.Height() != s.height {
		return Tensor{}, mismatch("roi set plane size", []int{s.height, s.width}, []int{rois.Height(), rois.Width()})
	}

	masks := rois.Masks()
	perROI := NewTensor(len(masks), s.times, s.channels)
	for r, mask := range masks {
		for t := 0; t < s.times; t++ {
			for c := 0; c < s.channels; c++ {
				mean, std, err := mask.MeanAndStd(s.plane(t, c))
				if err != nil {
					return Tensor{}, fmt.Errorf("roi %d, plane (t=%d, c=%d): %w", r, t, c, err)
				}
				perROI.Set(pick(mean, std), r, t, c)
			}
		}
	}

	if reduce {
		levels := NewTensor(s.layout.levelShape(s.times, s.channels)...)
		column := make([]float64, len(masks))
		for i := range levels.Data {
			for r := range masks {
				column[r] = perROI.Data[r*len(levels.Data)+i]
			}
			levels.Data[i] = stat.Mean(column, nil)
		}
		return levels, nil
	}

	perROI.Shape = s.layout.measurementShape(len(masks), s.times, s.channels)
	return perROI, nil
}

// DivideByLevels divides a per-ROI measurement by per-plane levels, giving
// signal-to-background (levels from Measure) or signal-to-noise (levels from
// Noise) tables. Division by zero follows IEEE rules and is not an error.
func (s *ImageStack) DivideByLevels(cells, levels Tensor) (Tensor, error) {
	want := s.layout.levelShape(s.times, s.channels)
	if !sameShape(levels.Shape, want) {
		return Tensor{}, mismatch(fmt.Sprintf("levels for %s stack", s.layout), want, levels.Shape)
	}
	if cells.Rank() != len(want)+1 || !sameShape(cells.Shape[1:], want) {
		return Tensor{}, mismatch(fmt.Sprintf("cell measurement for %s stack", s.layout),
			s.layout.measurementShape(-1, s.times, s.channels), cells.Shape)
	}

	out := cells.Clone()
	stride := len(levels.Data)
	for i := range out.Data {
		out.Data[i] /= levels.Data[i%stride]
	}
	return out, nil
}
