// Package roi rasterises operator-drawn regions of interest into planar masks
// and extracts intensity statistics from single image planes.
package roi

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"fluorbleed/internal/models"
)

// Mask is a boolean mask over a width×height image plane in row-major order
type Mask struct {
	width  int
	height int
	pixels []bool
	count  int
}

// NewMask returns an empty mask covering a width×height plane
func NewMask(width, height int) *Mask {
	return &Mask{
		width:  width,
		height: height,
		pixels: make([]bool, width*height),
	}
}

func (m *Mask) Width() int  { return m.width }
func (m *Mask) Height() int { return m.height }

// Count returns the number of pixels inside the mask
func (m *Mask) Count() int { return m.count }

// Set marks pixel (x, y) as inside the mask. Coordinates outside the plane
// are ignored so that shapes may extend past the image border.
func (m *Mask) Set(x, y int) {
	if x < 0 || y < 0 || x >= m.width || y >= m.height {
		return
	}
	idx := y*m.width + x
	if !m.pixels[idx] {
		m.pixels[idx] = true
		m.count++
	}
}

// At reports whether pixel (x, y) is inside the mask
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.width || y >= m.height {
		return false
	}
	return m.pixels[y*m.width+x]
}

// Values gathers the plane values covered by the mask
func (m *Mask) Values(plane []float64) ([]float64, error) {
	if len(plane) != m.width*m.height {
		return nil, fmt.Errorf("plane has %d pixels, mask expects %dx%d", len(plane), m.width, m.height)
	}
	values := make([]float64, 0, m.count)
	for i, inside := range m.pixels {
		if inside {
			values = append(values, plane[i])
		}
	}
	return values, nil
}

// MeanAndStd returns the mean and population standard deviation of the plane
// values inside the mask. An empty mask yields NaN for both.
func (m *Mask) MeanAndStd(plane []float64) (mean, std float64, err error) {
	values, err := m.Values(plane)
	if err != nil {
		return 0, 0, err
	}
	if len(values) == 0 {
		return math.NaN(), math.NaN(), nil
	}
	mean, std = stat.PopMeanStdDev(values, nil)
	return mean, std, nil
}

// Outline returns the mask pixels that touch a pixel outside the mask
// (4-connectivity). Pixels on the plane border count as edges.
func (m *Mask) Outline() []models.Point {
	var edge []models.Point
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			if !m.At(x, y) {
				continue
			}
			if !m.At(x-1, y) || !m.At(x+1, y) || !m.At(x, y-1) || !m.At(x, y+1) {
				edge = append(edge, models.Point{X: float64(x), Y: float64(y)})
			}
		}
	}
	return edge
}
