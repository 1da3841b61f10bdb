package roi

import (
	"fmt"

	"fluorbleed/internal/models"
)

// Set is an ordered collection of named masks over planes of one size.
// The order in which ROIs are added is the row order of measurements.
type Set struct {
	width  int
	height int
	names  []string
	masks  map[string]*Mask
}

// NewSet returns an empty ROI set for width×height planes
func NewSet(width, height int) *Set {
	return &Set{
		width:  width,
		height: height,
		masks:  make(map[string]*Mask),
	}
}

// FromShapes rasterises every shape and collects the masks in order.
// Unnamed shapes are called roi1, roi2, ... by position.
func FromShapes(shapes []models.ROIShape, width, height int) (*Set, error) {
	set := NewSet(width, height)
	for i, shape := range shapes {
		if shape.Name == "" {
			shape.Name = fmt.Sprintf("roi%d", i+1)
		}
		mask, err := FromShape(shape, width, height)
		if err != nil {
			return nil, err
		}
		if err := set.Add(shape.Name, mask); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// Add appends a mask under a unique name
func (s *Set) Add(name string, mask *Mask) error {
	if _, exists := s.masks[name]; exists {
		return fmt.Errorf("duplicate roi name %q", name)
	}
	if mask.Width() != s.width || mask.Height() != s.height {
		return fmt.Errorf("roi %q is %dx%d, set expects %dx%d",
			name, mask.Width(), mask.Height(), s.width, s.height)
	}
	s.names = append(s.names, name)
	s.masks[name] = mask
	return nil
}

func (s *Set) Len() int    { return len(s.names) }
func (s *Set) Width() int  { return s.width }
func (s *Set) Height() int { return s.height }

// Names returns the ROI names in insertion order
func (s *Set) Names() []string {
	names := make([]string, len(s.names))
	copy(names, s.names)
	return names
}

// Mask returns the mask stored under name, or nil
func (s *Set) Mask(name string) *Mask {
	return s.masks[name]
}

// Masks returns the masks in insertion order
func (s *Set) Masks() []*Mask {
	masks := make([]*Mask, len(s.names))
	for i, name := range s.names {
		masks[i] = s.masks[name]
	}
	return masks
}
