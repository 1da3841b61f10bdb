// Package stack models multi-channel fluorescence image stacks with an explicit
// axis layout, and the per-ROI measurements and background subtraction that
// operate on them. Every transformation returns a new ImageStack.
package stack

import (
	"fmt"
	"math"
)

// ImageStack is an immutable intensity array with its axis layout.
// Internally planes are stored time-major, channel-minor, each plane row-major;
// a CYX stack is kept as a single time point.
type ImageStack struct {
	layout   Layout
	times    int
	channels int
	height   int
	width    int
	data     []float64
}

// New validates the rank of shape against layout and copies data into a new
// stack. Shape is (C, Y, X) for SpatialOnly and (T, C, Y, X) for TimeSeries.
func New(data []float64, shape []int, layout Layout) (*ImageStack, error) {
	if layout != SpatialOnly && layout != TimeSeries {
		return nil, fmt.Errorf("unknown layout %d", int(layout))
	}
	if len(shape) != layout.Rank() {
		return nil, mismatch(fmt.Sprintf("%s array must have rank %d", layout, layout.Rank()), nil, shape)
	}

	n := 1
	for _, d := range shape {
		if d <= 0 {
			return nil, mismatch(fmt.Sprintf("%s array dimensions must be positive", layout), nil, shape)
		}
		n *= d
	}
	if n != len(data) {
		return nil, fmt.Errorf("%d values do not fill %s shape %v", len(data), layout, shape)
	}

	s := &ImageStack{layout: layout, times: 1, data: make([]float64, n)}
	copy(s.data, data)
	switch layout {
	case SpatialOnly:
		s.channels, s.height, s.width = shape[0], shape[1], shape[2]
	case TimeSeries:
		s.times, s.channels, s.height, s.width = shape[0], shape[1], shape[2], shape[3]
	}
	return s, nil
}

// derive builds a stack with the receiver's geometry around data it now owns
func (s *ImageStack) derive(data []float64, channels int) *ImageStack {
	return &ImageStack{
		layout:   s.layout,
		times:    s.times,
		channels: channels,
		height:   s.height,
		width:    s.width,
		data:     data,
	}
}

func (s *ImageStack) Layout() Layout  { return s.layout }
func (s *ImageStack) NumChannel() int { return s.channels }
func (s *ImageStack) Height() int     { return s.height }
func (s *ImageStack) Width() int      { return s.width }

// NumTime returns the number of time points; a CYX stack has one
func (s *ImageStack) NumTime() int { return s.times }

// Shape returns the dimension sizes in layout order
func (s *ImageStack) Shape() []int {
	if s.layout == TimeSeries {
		return []int{s.times, s.channels, s.height, s.width}
	}
	return []int{s.channels, s.height, s.width}
}

func (s *ImageStack) planeSize() int { return s.height * s.width }

// plane returns the backing slice of plane (t, c); callers must not write to it
func (s *ImageStack) plane(t, c int) []float64 {
	start := (t*s.channels + c) * s.planeSize()
	return s.data[start : start+s.planeSize()]
}

func (s *ImageStack) checkPlane(t, c int) error {
	if t < 0 || t >= s.times || c < 0 || c >= s.channels {
		return fmt.Errorf("plane (t=%d, c=%d) outside %s stack with %d time points and %d channels",
			t, c, s.layout, s.times, s.channels)
	}
	return nil
}

// Plane returns a copy of the height×width plane at time t, channel c
func (s *ImageStack) Plane(t, c int) ([]float64, error) {
	if err := s.checkPlane(t, c); err != nil {
		return nil, err
	}
	out := make([]float64, s.planeSize())
	copy(out, s.plane(t, c))
	return out, nil
}

// At returns the pixel value at (t, c, y, x); t is 0 for CYX stacks
func (s *ImageStack) At(t, c, y, x int) float64 {
	return s.plane(t, c)[y*s.width+x]
}

// Data returns a copy of the whole array in layout order
func (s *ImageStack) Data() []float64 {
	out := make([]float64, len(s.data))
	copy(out, s.data)
	return out
}

// Min and Max return the smallest and largest pixel values, ignoring NaN
func (s *ImageStack) Min() float64 {
	lo := math.Inf(1)
	for _, v := range s.data {
		if v < lo {
			lo = v
		}
	}
	return lo
}

func (s *ImageStack) Max() float64 {
	hi := math.Inf(-1)
	for _, v := range s.data {
		if v > hi {
			hi = v
		}
	}
	return hi
}

// Map applies f to every pixel and returns the result as a new stack
func (s *ImageStack) Map(f func(float64) float64) *ImageStack {
	out := make([]float64, len(s.data))
	for i, v := range s.data {
		out[i] = f(v)
	}
	return s.derive(out, s.channels)
}

// ClampNegative returns a copy with negative and NaN pixels set to zero.
// Negative fluorescence is nonphysical, so zero is the floor of the pipeline.
func (s *ImageStack) ClampNegative() *ImageStack {
	return s.Map(clampZero)
}

func clampZero(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}

// SelectChannels returns a stack holding only the listed channels, in order
func (s *ImageStack) SelectChannels(channels ...int) (*ImageStack, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("no channels selected")
	}
	for _, c := range channels {
		if c < 0 || c >= s.channels {
			return nil, fmt.Errorf("channel %d outside stack with %d channels", c, s.channels)
		}
	}
	out := make([]float64, 0, s.times*len(channels)*s.planeSize())
	for t := 0; t < s.times; t++ {
		for _, c := range channels {
			out = append(out, s.plane(t, c)...)
		}
	}
	return s.derive(out, len(channels)), nil
}

// AppendChannels returns a stack with the channels of others appended after the
// receiver's own, time point by time point. All stacks must share layout,
// time count and plane size.
func (s *ImageStack) AppendChannels(others ...*ImageStack) (*ImageStack, error) {
	channels := s.channels
	for _, o := range others {
		if o.layout != s.layout || o.times != s.times || o.height != s.height || o.width != s.width {
			return nil, mismatch("appended stack", []int{s.times, s.height, s.width}, []int{o.times, o.height, o.width})
		}
		channels += o.channels
	}

	out := make([]float64, 0, s.times*channels*s.planeSize())
	for t := 0; t < s.times; t++ {
		for c := 0; c < s.channels; c++ {
			out = append(out, s.plane(t, c)...)
		}
		for _, o := range others {
			for c := 0; c < o.channels; c++ {
				out = append(out, o.plane(t, c)...)
			}
		}
	}
	return s.derive(out, channels), nil
}

// FromChannelPlanes builds a stack of the receiver's layout, time count and
// plane size from planes[t][c]. Used by operations that compute new channels.
func (s *ImageStack) FromChannelPlanes(planes [][][]float64) (*ImageStack, error) {
	if len(planes) != s.times {
		return nil, mismatch("channel planes", []int{s.times}, []int{len(planes)})
	}
	channels := len(planes[0])
	if channels == 0 {
		return nil, fmt.Errorf("no channel planes")
	}
	out := make([]float64, 0, s.times*channels*s.planeSize())
	for t, perTime := range planes {
		if len(perTime) != channels {
			return nil, mismatch(fmt.Sprintf("channel planes at t=%d", t), []int{channels}, []int{len(perTime)})
		}
		for c, p := range perTime {
			if len(p) != s.planeSize() {
				return nil, mismatch(fmt.Sprintf("plane (t=%d, c=%d)", t, c), []int{s.height, s.width}, []int{len(p)})
			}
			out = append(out, p...)
		}
	}
	return s.derive(out, channels), nil
}

func (s *ImageStack) String() string {
	return fmt.Sprintf("%s stack %v", s.layout, s.Shape())
}
