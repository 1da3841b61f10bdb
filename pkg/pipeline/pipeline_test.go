package pipeline

import (
	"errors"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/floats"

	"fluorbleed/internal/models"
	"fluorbleed/pkg/bleedthrough"
	"fluorbleed/pkg/config"
	"fluorbleed/pkg/stack"
	"fluorbleed/pkg/table"
	"fluorbleed/pkg/tiffio"
)

const size = 8

// Test scene: background 10 everywhere except a 2x2 background patch
// alternating 8/12 (mean 10, std 2). Two 2x2 cells carry donor signal
// 100 and 200 above background, with 20% of it bleeding into channel 1.
var (
	bgROI    = models.ROIShape{Name: "bg", Kind: "rect", X: 0, Y: 0, Width: 2, Height: 2}
	cellROIs = []models.ROIShape{
		{Name: "cell1", Kind: "rect", X: 4, Y: 0, Width: 2, Height: 2},
		{Name: "cell2", Kind: "rect", X: 4, Y: 4, Width: 2, Height: 2},
	}
)

func sceneValue(channel, x, y int) uint16 {
	switch {
	case x < 2 && y < 2:
		if (x+y)%2 == 0 {
			return 8
		}
		return 12
	case x >= 4 && x < 6 && y < 2:
		return []uint16{110, 30}[channel]
	case x >= 4 && x < 6 && y >= 4 && y < 6:
		return []uint16{210, 50}[channel]
	default:
		return 10
	}
}

func writeScenePlane(t *testing.T, path string, channel int) {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetGray16(x, y, color.Gray16{Y: sceneValue(channel, x, y)})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create test image: %v", err)
	}
	defer f.Close()
	if err := tiff.Encode(f, img, nil); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
}

// sceneConfig writes the scene for the given number of time points and
// returns a quiet session config pointing at it
func sceneConfig(t *testing.T, times int) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	for ti := 0; ti < times; ti++ {
		for c := 0; c < 2; c++ {
			path := filepath.Join(dir, "scene_t"+string(rune('0'+ti))+"_c"+string(rune('0'+c))+".tif")
			writeScenePlane(t, path, c)
			cfg.Input.Files = append(cfg.Input.Files, path)
		}
	}
	cfg.Input.Times = times
	cfg.Background.ROIs = []models.ROIShape{bgROI}
	cfg.Cells.ROIs = cellROIs
	cfg.Output.Dir = filepath.Join(dir, "out")
	cfg.Output.Verbose = false
	return cfg
}

func newSession(t *testing.T, cfg *config.Config) *Session {
	t.Helper()
	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	return s
}

// TestCalibrateRecoversCoefficient verifies both estimators find the 20%
// bleed-through and the tables land in the session directory
func TestCalibrateRecoversCoefficient(t *testing.T) {
	for _, method := range []string{"slope", "ratio"} {
		cfg := sceneConfig(t, 1)
		cfg.Calibration.Estimator = method
		s := newSession(t, cfg)

		cal, err := s.Calibrate()
		if err != nil {
			t.Fatalf("%s: calibration failed: %v", method, err)
		}
		coef := cal.Estimate.Coefficients
		if math.Abs(coef.At(0, 1)-0.2) > 1e-9 {
			t.Errorf("%s: expected k(0→1) = 0.2, got %g", method, coef.At(0, 1))
		}
		if math.Abs(coef.At(1, 0)-5) > 1e-9 {
			t.Errorf("%s: expected k(1→0) = 5, got %g", method, coef.At(1, 0))
		}
		if coef.At(0, 0) != 0 || coef.At(1, 1) != 0 {
			t.Errorf("%s: diagonal must stay zero", method)
		}
		if !floats.EqualApprox(cal.Background.Data, []float64{10, 10}, 1e-12) {
			t.Errorf("%s: expected background [10 10], got %v", method, cal.Background.Data)
		}

		for _, name := range []string{CoefficientsFile, QualityFile, CellsFile, BackgroundFile} {
			if _, err := os.Stat(filepath.Join(s.OutputDir(), name)); err != nil {
				t.Errorf("%s: expected %s: %v", method, name, err)
			}
		}

		// The written matrix can drive a correction run
		rows, err := table.ReadMatrix(filepath.Join(s.OutputDir(), CoefficientsFile))
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(rows[0][1]-0.2) > 1e-9 {
			t.Errorf("%s: coefficients.csv holds %v", method, rows)
		}
	}
}

func TestCalibrateTimeSeries(t *testing.T) {
	cfg := sceneConfig(t, 2)
	s := newSession(t, cfg)

	cal, err := s.Calibrate()
	if err != nil {
		t.Fatal(err)
	}
	if s.Input().Layout() != stack.TimeSeries {
		t.Errorf("expected TCYX input, got %v", s.Input().Layout())
	}
	if len(cal.Cells.Shape) != 3 || cal.Cells.Shape[1] != 2 {
		t.Errorf("expected (ROI, T, C) cells, got %v", cal.Cells.Shape)
	}
	if math.Abs(cal.Estimate.Coefficients.At(0, 1)-0.2) > 1e-9 {
		t.Errorf("expected k(0→1) = 0.2, got %g", cal.Estimate.Coefficients.At(0, 1))
	}

	rows, err := table.ReadMatrix(filepath.Join(s.OutputDir(), CellsFile))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || len(rows[0]) != 4 {
		t.Errorf("expected 2 rows of T*C = 4 values, got %v", rows)
	}
}

func TestCalibrateNeedsCells(t *testing.T) {
	cfg := sceneConfig(t, 1)
	cfg.Cells.ROIs = nil
	if _, err := newSession(t, cfg).Calibrate(); err == nil {
		t.Errorf("calibration without cell ROIs should fail")
	}
}

// TestCorrectFullRun runs correction with ratio, Eapp and both measurement tables
func TestCorrectFullRun(t *testing.T) {
	cfg := sceneConfig(t, 1)
	cfg.Correction.Matrix = [][]float64{{0, 0.1}, {0, 0}}
	cfg.FRET.Ratio = true
	cfg.FRET.Eapp = true
	cfg.FRET.G = 0.9
	cfg.Measure.ROIs = true
	cfg.Measure.Raw = true
	cfg.Output.Preview = true
	s := newSession(t, cfg)

	res, err := s.Correct()
	if err != nil {
		t.Fatalf("correction failed: %v", err)
	}
	if res.Corrected.Min() < 0 {
		t.Errorf("corrected stack must be clamped, min = %f", res.Corrected.Min())
	}

	// cell1: donor 100, acceptor 20 - 0.1*100 = 10, ratio 0.1, Eapp 0.1/(0.1+0.9)
	want := [][]float64{
		{100, 10, 0.1, 0.1},
		{200, 20, 0.1, 0.1},
	}
	got := res.Measurements.Rows()
	if len(got) != 2 {
		t.Fatalf("expected 2 measurement rows, got %v", got)
	}
	for i := range want {
		if !floats.EqualApprox(got[i], want[i], 1e-9) {
			t.Errorf("cell %d: expected %v, got %v", i+1, want[i], got[i])
		}
	}

	raw, err := table.ReadMatrix(filepath.Join(s.OutputDir(), RawFile))
	if err != nil {
		t.Fatal(err)
	}
	wantRaw := [][]float64{{10, 10}, {110, 30}, {210, 50}}
	for i := range wantRaw {
		if !floats.EqualApprox(raw[i], wantRaw[i], 1e-9) {
			t.Errorf("raw row %d: expected %v, got %v", i, wantRaw[i], raw[i])
		}
	}

	back, err := tiffio.LoadStack(filepath.Join(s.OutputDir(), CorrectedDir))
	if err != nil {
		t.Fatalf("Failed to reload corrected planes: %v", err)
	}
	if back.At(0, 0, 0, 4) != 100 {
		t.Errorf("expected corrected donor 100 in cell1, got %f", back.At(0, 0, 0, 4))
	}

	ratio, err := table.ReadMatrix(filepath.Join(s.OutputDir(), RatioFile))
	if err != nil {
		t.Fatal(err)
	}
	if len(ratio) != size || len(ratio[0]) != size || ratio[7][7] != 0 {
		t.Errorf("unexpected ratio plane %v", ratio)
	}
	if _, err := os.Stat(filepath.Join(s.OutputDir(), EappFile)); err != nil {
		t.Errorf("expected Eapp plane: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.OutputDir(), PreviewDir, "corrected_t000_c00.jpg")); err != nil {
		t.Errorf("expected preview: %v", err)
	}
}

func TestCorrectSkipsEappWithoutG(t *testing.T) {
	cfg := sceneConfig(t, 1)
	cfg.Correction.Matrix = [][]float64{{0, 0.1}, {0, 0}}
	cfg.FRET.Ratio = true
	cfg.FRET.Eapp = true
	cfg.FRET.G = 0
	s := newSession(t, cfg)

	res, err := s.Correct()
	if err != nil {
		t.Fatal(err)
	}
	if res.Ratio == nil || res.Eapp != nil {
		t.Errorf("expected ratio without Eapp, got ratio=%v eapp=%v", res.Ratio, res.Eapp)
	}
	if _, err := bleedthrough.Eapp(res.Ratio, 0); !errors.Is(err, bleedthrough.ErrNoGFactor) {
		t.Errorf("expected ErrNoGFactor, got %v", err)
	}
}

func TestCorrectFromMatrixFile(t *testing.T) {
	cfg := sceneConfig(t, 2)
	cfg.Correction.MatrixFile = filepath.Join(cfg.Output.Dir, "preset.csv")
	if err := table.WriteMatrix(cfg.Correction.MatrixFile, [][]float64{{0, 0.2}, {0, 0}}); err != nil {
		t.Fatal(err)
	}
	res, err := newSession(t, cfg).Correct()
	if err != nil {
		t.Fatal(err)
	}
	// All bleed-through removed: acceptor is zero inside both cells at both times
	for ti := 0; ti < 2; ti++ {
		if v := res.Corrected.At(ti, 1, 4, 4); math.Abs(v) > 1e-9 {
			t.Errorf("t=%d: expected acceptor 0 in cell2, got %g", ti, v)
		}
	}
}

func TestCorrectMatrixErrors(t *testing.T) {
	cfg := sceneConfig(t, 1)
	if _, err := newSession(t, cfg).Correct(); err == nil {
		t.Errorf("correction without a matrix should fail")
	}

	cfg.Correction.Matrix = [][]float64{{0, 0.1, 0}, {0, 0, 0}, {0, 0, 0}}
	_, err := newSession(t, cfg).Correct()
	if !errors.Is(err, stack.ErrDimensionMismatch) {
		t.Errorf("3x3 matrix on 2 channels: expected dimension mismatch, got %v", err)
	}
}

// TestMeasureRatios verifies signal-to-background and signal-to-noise tables
func TestMeasureRatios(t *testing.T) {
	s := newSession(t, sceneConfig(t, 1))
	m, err := s.Measure()
	if err != nil {
		t.Fatal(err)
	}
	if !floats.EqualApprox(m.Noise.Data, []float64{2, 2}, 1e-12) {
		t.Errorf("expected background noise [2 2], got %v", m.Noise.Data)
	}
	if math.Abs(m.SBR.At(0, 0)-10) > 1e-9 || math.Abs(m.SNR.At(0, 0)-50) > 1e-9 {
		t.Errorf("cell1 donor: expected SBR 10 and SNR 50, got %g and %g", m.SBR.At(0, 0), m.SNR.At(0, 0))
	}
	for _, name := range []string{NoiseFile, SBRFile, SNRFile, filepath.Join(SubtractedDir, tiffio.SidecarName)} {
		if _, err := os.Stat(filepath.Join(s.OutputDir(), name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
}

func TestPinnedLayout(t *testing.T) {
	cfg := sceneConfig(t, 1)
	cfg.Input.Layout = "TCYX"
	s := newSession(t, cfg)
	m, err := s.Measure()
	if err != nil {
		t.Fatal(err)
	}
	if s.Input().Layout() != stack.TimeSeries || len(m.Cells.Shape) != 3 {
		t.Errorf("expected single-frame TCYX measurement, got %v %v", s.Input(), m.Cells.Shape)
	}
}

// TestOffPlaneROIFails verifies a background or cell ROI outside the image stops
// the run instead of producing an all-zero stack
func TestOffPlaneROIFails(t *testing.T) {
	lost := models.ROIShape{Name: "lost", Kind: "rect", X: 40, Y: 40, Width: 2, Height: 2}

	cfg := sceneConfig(t, 1)
	cfg.Correction.Matrix = [][]float64{{0, 0.1}, {0, 0}}
	cfg.Background.ROIs = []models.ROIShape{lost}
	s := newSession(t, cfg)
	if _, err := s.Correct(); err == nil {
		t.Errorf("correction with an off-plane background roi should fail")
	}
	if _, err := os.Stat(filepath.Join(s.OutputDir(), CorrectedDir)); !os.IsNotExist(err) {
		t.Errorf("no corrected planes should be written, stat returned %v", err)
	}

	cfg = sceneConfig(t, 1)
	cfg.Cells.ROIs = append([]models.ROIShape{}, cellROIs[0], lost)
	if _, err := newSession(t, cfg).Calibrate(); err == nil {
		t.Errorf("calibration with an off-plane cell roi should fail")
	}
}
