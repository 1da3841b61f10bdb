package roi

import (
	"fmt"
	"math"

	"fluorbleed/internal/models"
)

// Pixel (x, y) is sampled at its integer coordinate, the same grid a polygon
// drawn over an imshow'd plane is tested against.

// FromShape rasterises a declared ROI shape into a width×height mask
func FromShape(shape models.ROIShape, width, height int) (*Mask, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid plane size %dx%d", width, height)
	}
	kind, err := models.ParseShapeKind(shape.Kind)
	if err != nil {
		return nil, fmt.Errorf("roi %q: %w", shape.Name, err)
	}

	var m *Mask
	switch kind {
	case Rectangle:
		m, err = rectangleMask(shape, width, height)
	case Ellipse:
		m, err = ellipseMask(shape, width, height)
	case Polygon:
		m, err = polygonMask(shape, width, height)
	default:
		return nil, fmt.Errorf("roi %q: unsupported shape %v", shape.Name, kind)
	}
	if err != nil {
		return nil, err
	}
	// An empty mask has a NaN mean, which would wipe every plane it is subtracted from
	if m.Count() == 0 {
		return nil, fmt.Errorf("roi %q covers no pixels of the %dx%d plane", shape.Name, width, height)
	}
	return m, nil
}

// Shape kinds re-exported for callers that only import this package
const (
	Rectangle = models.Rectangle
	Ellipse   = models.Ellipse
	Polygon   = models.Polygon
)

func rectangleMask(shape models.ROIShape, width, height int) (*Mask, error) {
	if shape.Width <= 0 || shape.Height <= 0 {
		return nil, fmt.Errorf("roi %q: rectangle needs positive width and height", shape.Name)
	}
	m := NewMask(width, height)
	x0 := int(math.Max(0, math.Ceil(shape.X)))
	y0 := int(math.Max(0, math.Ceil(shape.Y)))
	xEnd := math.Min(float64(width), shape.X+shape.Width)
	yEnd := math.Min(float64(height), shape.Y+shape.Height)
	for y := y0; float64(y) < yEnd; y++ {
		for x := x0; float64(x) < xEnd; x++ {
			m.Set(x, y)
		}
	}
	return m, nil
}

func ellipseMask(shape models.ROIShape, width, height int) (*Mask, error) {
	if shape.Width <= 0 || shape.Height <= 0 {
		return nil, fmt.Errorf("roi %q: ellipse needs positive width and height", shape.Name)
	}
	m := NewMask(width, height)
	rx := shape.Width / 2
	ry := shape.Height / 2
	cx := shape.X + (shape.Width-1)/2
	cy := shape.Y + (shape.Height-1)/2

	xEnd := math.Min(float64(width), shape.X+shape.Width)
	yEnd := math.Min(float64(height), shape.Y+shape.Height)
	for y := int(math.Max(0, math.Floor(shape.Y))); float64(y) < yEnd; y++ {
		for x := int(math.Max(0, math.Floor(shape.X))); float64(x) < xEnd; x++ {
			dx := (float64(x) - cx) / rx
			dy := (float64(y) - cy) / ry
			if dx*dx+dy*dy <= 1 {
				m.Set(x, y)
			}
		}
	}
	return m, nil
}

func polygonMask(shape models.ROIShape, width, height int) (*Mask, error) {
	pts := shape.Points
	if len(pts) < 3 {
		return nil, fmt.Errorf("roi %q: polygon needs at least 3 points, got %d", shape.Name, len(pts))
	}

	minX, maxX := pts[0].X, pts[0].X
	minY, maxY := pts[0].Y, pts[0].Y
	for _, p := range pts[1:] {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}

	// Scan only the part of the bounding box that lies on the plane
	x0, x1 := clampIndex(math.Floor(minX), width), clampIndex(math.Ceil(maxX), width)
	y0, y1 := clampIndex(math.Floor(minY), height), clampIndex(math.Ceil(maxY), height)

	m := NewMask(width, height)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if containsPoint(pts, float64(x), float64(y)) {
				m.Set(x, y)
			}
		}
	}
	return m, nil
}

// clampIndex limits v to a valid pixel index in [0, n-1]
func clampIndex(v float64, n int) int {
	return int(math.Max(0, math.Min(float64(n-1), v)))
}

// containsPoint is the even-odd ray casting test
func containsPoint(pts []models.Point, x, y float64) bool {
	inside := false
	j := len(pts) - 1
	for i := 0; i < len(pts); i++ {
		pi, pj := pts[i], pts[j]
		if (pi.Y > y) != (pj.Y > y) {
			xCross := pj.X + (y-pj.Y)*(pi.X-pj.X)/(pi.Y-pj.Y)
			if x < xCross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}
