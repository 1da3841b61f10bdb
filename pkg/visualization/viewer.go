// Package visualization renders image stack planes as contrast-stretched
// previews with ROI outlines drawn on top.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"fluorbleed/pkg/roi"
	"fluorbleed/pkg/stack"
)

// Outline colours for the two ROI groups
var (
	BackgroundColor = color.RGBA{R: 255, G: 210, A: 255}
	CellColor       = color.RGBA{R: 255, G: 40, B: 40, A: 255}
)

// Viewer renders the planes of one stack
type Viewer struct {
	// stack is the image data being previewed
	stack *stack.ImageStack

	// background and cells are outlined on every plane; either may be nil
	background *roi.Set
	cells      *roi.Set
}

// NewViewer creates a preview renderer for s
func NewViewer(s *stack.ImageStack, background, cells *roi.Set) *Viewer {
	return &Viewer{
		stack:      s,
		background: background,
		cells:      cells,
	}
}

// ExtractPlane renders plane (t, c). Intensities are stretched linearly from the
// plane's minimum to its maximum; NaN pixels are drawn black.
func (v *Viewer) ExtractPlane(t, c int) (image.Image, error) {
	plane, err := v.stack.Plane(t, c)
	if err != nil {
		return nil, err
	}
	width, height := v.stack.Width(), v.stack.Height()

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range plane {
		if math.IsNaN(p) {
			continue
		}
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}
	scale := 0.0
	if hi > lo {
		scale = 255 / (hi - lo)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p := plane[y*width+x]
			var g uint8
			if !math.IsNaN(p) && scale > 0 {
				g = uint8(math.Max(0, math.Min(255, (p-lo)*scale)))
			}
			img.SetRGBA(x, y, color.RGBA{R: g, G: g, B: g, A: 255})
		}
	}

	drawOutlines(img, v.background, BackgroundColor)
	drawOutlines(img, v.cells, CellColor)
	return img, nil
}

func drawOutlines(img *image.RGBA, set *roi.Set, col color.RGBA) {
	if set == nil {
		return
	}
	for _, m := range set.Masks() {
		for _, p := range m.Outline() {
			img.SetRGBA(int(p.X), int(p.Y), col)
		}
	}
}

// SavePlane saves a rendered plane as a JPEG image
func (v *Viewer) SavePlane(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: 90}); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// SavePlaneSequence renders and saves every plane of the stack as
// <prefix>_t<T>_c<C>.jpg under outputDir
func (v *Viewer) SavePlaneSequence(outputDir, prefix string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for t := 0; t < v.stack.NumTime(); t++ {
		for c := 0; c < v.stack.NumChannel(); c++ {
			img, err := v.ExtractPlane(t, c)
			if err != nil {
				return err
			}

			filename := filepath.Join(outputDir, fmt.Sprintf("%s_t%03d_c%02d.jpg", prefix, t, c))
			if err := v.SavePlane(img, filename); err != nil {
				return err
			}
		}
	}

	return nil
}
