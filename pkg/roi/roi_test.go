package roi

import (
	"math"
	"testing"

	"fluorbleed/internal/models"
)

// TestRectangleMask verifies the rectangle covers [x, x+w) × [y, y+h)
func TestRectangleMask(t *testing.T) {
	m, err := FromShape(models.ROIShape{Name: "r", Kind: "rect", X: 1, Y: 2, Width: 2, Height: 3}, 6, 6)
	if err != nil {
		t.Fatal(err)
	}
	if m.Count() != 6 {
		t.Errorf("expected 6 pixels, got %d", m.Count())
	}
	if !m.At(1, 2) || !m.At(2, 4) {
		t.Errorf("expected corners (1,2) and (2,4) inside")
	}
	if m.At(3, 2) || m.At(1, 5) || m.At(0, 2) {
		t.Errorf("pixels outside the rectangle are set")
	}
}

// TestShapesClippedToPlane verifies shapes hanging over the border are clipped
func TestShapesClippedToPlane(t *testing.T) {
	m, err := FromShape(models.ROIShape{Kind: "rect", X: -2, Y: -2, Width: 4, Height: 4}, 3, 3)
	if err != nil {
		t.Fatal(err)
	}
	if m.Count() != 4 {
		t.Errorf("expected 4 pixels after clipping, got %d", m.Count())
	}
}

func TestEllipseMask(t *testing.T) {
	m, err := FromShape(models.ROIShape{Kind: "ellipse", X: 0, Y: 0, Width: 5, Height: 5}, 5, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !m.At(2, 2) {
		t.Errorf("ellipse centre not set")
	}
	if m.At(0, 0) || m.At(4, 4) {
		t.Errorf("ellipse includes bounding box corners")
	}
	if !m.At(0, 2) || !m.At(2, 4) {
		t.Errorf("ellipse should touch the middle of each edge")
	}
}

// TestPolygonMask verifies the even-odd rasterisation on a triangle
func TestPolygonMask(t *testing.T) {
	tri := models.ROIShape{
		Name: "tri",
		Kind: "polygon",
		Points: []models.Point{
			{X: 0.5, Y: 0.5}, {X: 6.5, Y: 0.5}, {X: 0.5, Y: 6.5},
		},
	}
	m, err := FromShape(tri, 8, 8)
	if err != nil {
		t.Fatal(err)
	}
	if !m.At(1, 1) || !m.At(5, 1) || !m.At(1, 5) {
		t.Errorf("expected points near the vertices inside")
	}
	if m.At(5, 5) || m.At(0, 0) {
		t.Errorf("points beyond the hypotenuse or outside the vertices are set")
	}

	if _, err := FromShape(models.ROIShape{Kind: "polygon", Points: tri.Points[:2]}, 8, 8); err == nil {
		t.Errorf("two-point polygon should fail")
	}
}

func TestUnknownShape(t *testing.T) {
	if _, err := FromShape(models.ROIShape{Kind: "star", Width: 1, Height: 1}, 4, 4); err == nil {
		t.Errorf("unknown shape kind should fail")
	}
}

// TestMeanAndStd verifies the population statistics and the empty mask
func TestMeanAndStd(t *testing.T) {
	plane := []float64{
		2, 4,
		4, 4,
	}
	m := NewMask(2, 2)
	for _, p := range [][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		m.Set(p[0], p[1])
	}
	mean, std, err := m.MeanAndStd(plane)
	if err != nil {
		t.Fatal(err)
	}
	if mean != 3.5 {
		t.Errorf("expected mean 3.5, got %f", mean)
	}
	// population std of {2,4,4,4}
	if math.Abs(std-math.Sqrt(0.75)) > 1e-12 {
		t.Errorf("expected std %f, got %f", math.Sqrt(0.75), std)
	}

	empty := NewMask(2, 2)
	mean, std, err = empty.MeanAndStd(plane)
	if err != nil || !math.IsNaN(mean) || !math.IsNaN(std) {
		t.Errorf("empty mask: expected NaN, NaN; got %f, %f, %v", mean, std, err)
	}

	if _, _, err := m.MeanAndStd([]float64{1, 2, 3}); err == nil {
		t.Errorf("wrong plane size should fail")
	}
}

// TestSetOrderAndNames verifies insertion order, default names and duplicates
func TestSetOrderAndNames(t *testing.T) {
	set, err := FromShapes([]models.ROIShape{
		{Name: "bg", Kind: "rect", Width: 1, Height: 1},
		{Kind: "rect", X: 1, Width: 1, Height: 1},
	}, 3, 3)
	if err != nil {
		t.Fatal(err)
	}
	names := set.Names()
	if len(names) != 2 || names[0] != "bg" || names[1] != "roi2" {
		t.Errorf("unexpected names %v", names)
	}
	if set.Mask("roi2") == nil || !set.Mask("roi2").At(1, 0) {
		t.Errorf("roi2 mask missing or wrong")
	}

	if err := set.Add("bg", NewMask(3, 3)); err == nil {
		t.Errorf("duplicate name should fail")
	}
	if err := set.Add("other", NewMask(2, 2)); err == nil {
		t.Errorf("mask of the wrong size should fail")
	}
}

func TestOutline(t *testing.T) {
	m, _ := FromShape(models.ROIShape{Kind: "rect", X: 1, Y: 1, Width: 3, Height: 3}, 5, 5)
	edge := m.Outline()
	if len(edge) != 8 {
		t.Errorf("expected 8 outline pixels for a 3x3 block, got %d", len(edge))
	}
	for _, p := range edge {
		if p.X == 2 && p.Y == 2 {
			t.Errorf("interior pixel reported as outline")
		}
	}
}

// TestShapeOffPlaneRejected verifies a shape covering no pixel is an input error
func TestShapeOffPlaneRejected(t *testing.T) {
	testCases := []struct {
		name  string
		shape models.ROIShape
	}{
		{"rect past the corner", models.ROIShape{Name: "bg", Kind: "rect", X: 40, Y: 40, Width: 2, Height: 2}},
		{"rect left of the plane", models.ROIShape{Name: "bg", Kind: "rect", X: -10, Y: 0, Width: 3, Height: 2}},
		{"ellipse off the plane", models.ROIShape{Name: "cell", Kind: "ellipse", X: 20, Y: 1, Width: 4, Height: 2}},
		{"polygon between pixel centres", models.ROIShape{Name: "sliver", Kind: "polygon",
			Points: []models.Point{{X: 1.2, Y: 1.2}, {X: 1.8, Y: 1.2}, {X: 1.5, Y: 1.8}}}},
	}

	for _, tc := range testCases {
		if _, err := FromShape(tc.shape, 4, 4); err == nil {
			t.Errorf("%s: expected error for an empty mask", tc.name)
		}
	}

	if _, err := FromShapes([]models.ROIShape{
		{Name: "ok", Kind: "rect", Width: 2, Height: 2},
		{Name: "lost", Kind: "rect", X: 40, Y: 40, Width: 2, Height: 2},
	}, 4, 4); err == nil {
		t.Errorf("a set holding an off-plane roi should fail")
	}
}

// TestPolygonFarVertexClipped verifies a polygon reaching far off the plane is
// clipped to it and rasterised without scanning its whole bounding box
func TestPolygonFarVertexClipped(t *testing.T) {
	shape := models.ROIShape{Kind: "polygon", Points: []models.Point{
		{X: 0, Y: 0}, {X: 1e7, Y: 0}, {X: 1e7, Y: 1e7}, {X: 0, Y: 1e7},
	}}
	m, err := FromShape(shape, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	// Pixel centres on the top and left edges sit on the boundary, the rest are inside
	if m.Count() == 0 || !m.At(3, 3) {
		t.Errorf("expected the plane to be covered, got %d pixels", m.Count())
	}
}
