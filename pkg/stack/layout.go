package stack

import (
	"fmt"
	"strings"
)

// Layout is the axis ordering of an intensity array
type Layout int

const (
	// SpatialOnly is a single time point, channel × height × width (CYX)
	SpatialOnly Layout = iota
	// TimeSeries is time × channel × height × width (TCYX)
	TimeSeries
)

// Rank returns the number of axes an array in this layout must have
func (l Layout) Rank() int {
	switch l {
	case SpatialOnly:
		return 3
	case TimeSeries:
		return 4
	default:
		panic(fmt.Sprintf("stack: unknown layout %d", int(l)))
	}
}

// String returns the axis tag, CYX or TCYX
func (l Layout) String() string {
	switch l {
	case SpatialOnly:
		return "CYX"
	case TimeSeries:
		return "TCYX"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// ParseLayout converts an axis tag into a Layout
func ParseLayout(tag string) (Layout, error) {
	switch strings.ToUpper(strings.TrimSpace(tag)) {
	case "CYX":
		return SpatialOnly, nil
	case "TCYX":
		return TimeSeries, nil
	default:
		return 0, fmt.Errorf("unsupported layout %q (must be CYX or TCYX)", tag)
	}
}

// levelShape is the shape of a per-plane level array, (C) or (T, C)
func (l Layout) levelShape(times, channels int) []int {
	if l == TimeSeries {
		return []int{times, channels}
	}
	return []int{channels}
}

// measurementShape is the shape of a per-ROI measurement, (ROI, C) or (ROI, T, C)
func (l Layout) measurementShape(rois, times, channels int) []int {
	if l == TimeSeries {
		return []int{rois, times, channels}
	}
	return []int{rois, channels}
}
