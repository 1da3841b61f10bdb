package models

import (
	"fmt"
	"strings"
)

// ShapeKind identifies how an ROI outline is described
type ShapeKind int

const (
	Rectangle ShapeKind = iota
	Ellipse
	Polygon
)

// String returns the name used for the shape kind in session files
func (k ShapeKind) String() string {
	switch k {
	case Rectangle:
		return "rect"
	case Ellipse:
		return "ellipse"
	case Polygon:
		return "polygon"
	default:
		return fmt.Sprintf("ShapeKind(%d)", int(k))
	}
}

// ParseShapeKind converts a session file shape name into a ShapeKind.
// An empty name means a rectangle.
func ParseShapeKind(name string) (ShapeKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "rect", "rectangle":
		return Rectangle, nil
	case "ellipse", "oval":
		return Ellipse, nil
	case "polygon", "poly":
		return Polygon, nil
	default:
		return 0, fmt.Errorf("unknown ROI shape %q", name)
	}
}

// Point is a vertex in pixel coordinates, X is the column and Y the row
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// ROIShape describes one region of interest as it is declared by the
// operator, before it is rasterised into a mask.
type ROIShape struct {
	// Name identifies the ROI in measurement tables
	Name string `yaml:"name"`

	// Kind is one of rect, ellipse or polygon
	Kind string `yaml:"kind"`

	// X, Y, Width and Height give the bounding box for rect and ellipse shapes
	X      float64 `yaml:"x,omitempty"`
	Y      float64 `yaml:"y,omitempty"`
	Width  float64 `yaml:"width,omitempty"`
	Height float64 `yaml:"height,omitempty"`

	// Points lists the polygon vertices in drawing order
	Points []Point `yaml:"points,omitempty"`
}
