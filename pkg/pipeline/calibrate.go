package pipeline

import (
	"fmt"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"fluorbleed/pkg/bleedthrough"
	"fluorbleed/pkg/stack"
	"fluorbleed/pkg/table"
)

// Calibration is the outcome of a calibration run
type Calibration struct {
	// Estimate carries the coefficient and quality matrices
	Estimate *bleedthrough.Estimate

	// Background is the pooled background level per plane
	Background stack.Tensor

	// Cells is the background-subtracted mean per cell ROI
	Cells stack.Tensor
}

// Calibrate estimates bleed-through coefficients from the cell ROIs of a
// reference sample and writes coefficients.csv, quality.csv, cells.csv and
// background.csv to the session directory. Every cell at every time point is
// one calibration observation.
func (s *Session) Calibrate() (*Calibration, error) {
	method, err := s.cfg.Estimator()
	if err != nil {
		return nil, err
	}
	if err := s.prepare(); err != nil {
		return nil, err
	}
	if s.cells.Len() == 0 {
		return nil, fmt.Errorf("calibration needs at least one cell ROI")
	}

	s.logf("Step 3: Measuring %d cell ROIs...\n", s.cells.Len())
	cells, err := s.subtracted.Measure(s.cells, false)
	if err != nil {
		return nil, fmt.Errorf("failed to measure cells: %w", err)
	}

	s.logf("Step 4: Estimating coefficients (%s)...\n", method)
	samples, err := bleedthrough.SamplesFromMeasurement(cells)
	if err != nil {
		return nil, err
	}
	est, err := bleedthrough.Run(method, samples)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate coefficients: %w", err)
	}

	s.logf("Step 5: Writing calibration tables to %s...\n", s.outputDir)
	quality := "R squared"
	if method == bleedthrough.MeanRatio {
		quality = "ratio standard deviation"
	}
	writes := []struct {
		name     string
		rows     [][]float64
		comments []string
	}{
		{CoefficientsFile, est.Coefficients.Rows(), []string{
			fmt.Sprintf("%s estimate, row = from channel, column = to channel", method),
		}},
		{QualityFile, denseRows(est.Quality), []string{quality}},
		{CellsFile, cells.Rows(), []string{"background-subtracted mean, one row per cell ROI"}},
		{BackgroundFile, s.levels.Rows(), []string{"pooled background mean per plane"}},
	}
	for _, w := range writes {
		if err := table.WriteMatrix(filepath.Join(s.outputDir, w.name), w.rows, w.comments...); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", w.name, err)
		}
	}

	s.preview(s.subtracted, "calibration")

	return &Calibration{
		Estimate:   est,
		Background: s.levels,
		Cells:      cells,
	}, nil
}

func denseRows(m mat.Matrix) [][]float64 {
	r, _ := m.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = mat.Row(nil, i, m)
	}
	return rows
}
