// Package tiffio reads plain single-plane TIFF files into image stacks and
// writes stacks back as 16-bit planes with a YAML sidecar describing the axes.
package tiffio

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"
	"gopkg.in/yaml.v3"

	"fluorbleed/internal/models"
	"fluorbleed/pkg/stack"
)

// SidecarName is the metadata file written next to the plane files
const SidecarName = "stack.yaml"

// LoadPlanes reads one TIFF per plane and stacks them. Paths are time-major:
// with times > 1 the first NumChannel paths are time point 0, and so on. The
// layout is inferred: CYX for a single time point, TCYX otherwise.
func LoadPlanes(paths []string, times int) (*stack.ImageStack, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no input planes")
	}
	if times < 1 {
		times = 1
	}
	if len(paths)%times != 0 {
		return nil, fmt.Errorf("%d planes cannot be split into %d time points", len(paths), times)
	}
	channels := len(paths) / times

	var width, height int
	data := make([]float64, 0)
	for i, path := range paths {
		plane, w, h, err := ReadPlane(path)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			width, height = w, h
			data = make([]float64, 0, len(paths)*w*h)
		} else if w != width || h != height {
			return nil, fmt.Errorf("plane %s is %dx%d, expected %dx%d", path, w, h, width, height)
		}
		data = append(data, plane...)
	}

	if times == 1 {
		return stack.New(data, []int{channels, height, width}, stack.SpatialOnly)
	}
	return stack.New(data, []int{times, channels, height, width}, stack.TimeSeries)
}

// ReadPlane decodes the first image of a TIFF file into row-major intensities.
// 16-bit and 8-bit grayscale keep their raw sample values; anything else is
// converted through the 16-bit gray model.
func ReadPlane(path string) (plane []float64, width, height int, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	img, err := tiff.Decode(file)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode %s as TIFF: %w", path, err)
	}
	return imageToFloat(img)
}

func imageToFloat(img image.Image) ([]float64, int, int, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, 0, 0, fmt.Errorf("empty image")
	}
	result := make([]float64, width*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			px, py := bounds.Min.X+x, bounds.Min.Y+y
			var v float64
			switch src := img.(type) {
			case *image.Gray16:
				v = float64(src.Gray16At(px, py).Y)
			case *image.Gray:
				v = float64(src.GrayAt(px, py).Y)
			default:
				v = float64(color.Gray16Model.Convert(img.At(px, py)).(color.Gray16).Y)
			}
			result[y*width+x] = v
		}
	}
	return result, width, height, nil
}

// ToGray16 casts a plane to 16-bit samples: NaN and negatives become 0, values
// above 65535 saturate, everything else truncates toward zero.
func ToGray16(plane []float64, width, height int) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := y*width + x
			if idx < len(plane) {
				img.SetGray16(x, y, color.Gray16{Y: castUint16(plane[idx])})
			}
		}
	}
	return img
}

func castUint16(v float64) uint16 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= math.MaxUint16:
		return math.MaxUint16
	default:
		return uint16(v)
	}
}

// WriteStack writes every (t, c) plane of s as a 16-bit TIFF under dir, named
// <prefix>_t<T>_c<C>.tif, and a stack.yaml sidecar carrying the layout tag,
// time count and channel count.
func WriteStack(dir, prefix string, s *stack.ImageStack) (*models.StackInfo, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	info := &models.StackInfo{
		Layout:   s.Layout().String(),
		Times:    s.NumTime(),
		Channels: s.NumChannel(),
		Height:   s.Height(),
		Width:    s.Width(),
		Images:   s.NumTime() * s.NumChannel(),
		DType:    "uint16",
	}

	for t := 0; t < s.NumTime(); t++ {
		for c := 0; c < s.NumChannel(); c++ {
			plane, err := s.Plane(t, c)
			if err != nil {
				return nil, err
			}
			name := fmt.Sprintf("%s_t%03d_c%02d.tif", prefix, t, c)
			if err := writeTIFF(filepath.Join(dir, name), ToGray16(plane, s.Width(), s.Height())); err != nil {
				return nil, err
			}
			info.Planes = append(info.Planes, models.PlaneFile{Time: t, Channel: c, Filename: name})
		}
	}

	data, err := yaml.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("error marshaling stack metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, SidecarName), data, 0644); err != nil {
		return nil, fmt.Errorf("error writing stack metadata: %w", err)
	}
	return info, nil
}

func writeTIFF(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}

	if err := tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode image: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close image file: %w", err)
	}
	return nil
}

// ReadStackInfo parses the sidecar in dir
func ReadStackInfo(dir string) (*models.StackInfo, error) {
	data, err := os.ReadFile(filepath.Join(dir, SidecarName))
	if err != nil {
		return nil, fmt.Errorf("error reading stack metadata: %w", err)
	}
	info := &models.StackInfo{}
	if err := yaml.Unmarshal(data, info); err != nil {
		return nil, fmt.Errorf("error parsing stack metadata: %w", err)
	}
	return info, nil
}

// LoadStack reads a stack written by WriteStack, restoring its layout from the
// sidecar rather than inferring it from the time count.
func LoadStack(dir string) (*stack.ImageStack, error) {
	info, err := ReadStackInfo(dir)
	if err != nil {
		return nil, err
	}
	layout, err := stack.ParseLayout(info.Layout)
	if err != nil {
		return nil, err
	}
	if len(info.Planes) != info.Times*info.Channels {
		return nil, fmt.Errorf("sidecar lists %d planes for %d×%d", len(info.Planes), info.Times, info.Channels)
	}

	paths := make([]string, len(info.Planes))
	for i, p := range info.Planes {
		paths[i] = filepath.Join(dir, p.Filename)
	}
	loaded, err := LoadPlanes(paths, info.Times)
	if err != nil {
		return nil, err
	}
	if loaded.Layout() == layout {
		return loaded, nil
	}
	// A TCYX stack with a single time point loads as CYX; restore the tag
	shape := []int{info.Times, info.Channels, info.Height, info.Width}
	if layout == stack.SpatialOnly {
		shape = shape[1:]
	}
	return stack.New(loaded.Data(), shape, layout)
}
