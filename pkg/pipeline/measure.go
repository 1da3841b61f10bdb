package pipeline

import (
	"fmt"
	"path/filepath"

	"fluorbleed/pkg/stack"
	"fluorbleed/pkg/table"
	"fluorbleed/pkg/tiffio"
)

// Measurement is the outcome of a measure run
type Measurement struct {
	// Background and Noise are pooled per plane, (C) or (T, C)
	Background stack.Tensor
	Noise      stack.Tensor

	// Cells is the background-subtracted mean per cell ROI
	Cells stack.Tensor

	// SBR and SNR divide Cells by Background and Noise plane by plane
	SBR stack.Tensor
	SNR stack.Tensor
}

// Measure reports background level and noise, background-subtracted cell
// means, and the signal-to-background and signal-to-noise ratios of every
// cell. No correction is applied; the background-subtracted stack is written
// as 16-bit planes.
func (s *Session) Measure() (*Measurement, error) {
	if err := s.prepare(); err != nil {
		return nil, err
	}
	if s.cells.Len() == 0 {
		return nil, fmt.Errorf("measurement needs at least one cell ROI")
	}

	s.logf("Step 3: Measuring background noise and %d cell ROIs...\n", s.cells.Len())
	noise, err := s.input.Noise(s.background, true)
	if err != nil {
		return nil, fmt.Errorf("failed to measure noise: %w", err)
	}
	cells, err := s.subtracted.Measure(s.cells, false)
	if err != nil {
		return nil, fmt.Errorf("failed to measure cells: %w", err)
	}
	sbr, err := s.input.DivideByLevels(cells, s.levels)
	if err != nil {
		return nil, err
	}
	snr, err := s.input.DivideByLevels(cells, noise)
	if err != nil {
		return nil, err
	}

	s.logf("Step 4: Writing measurement tables to %s...\n", s.outputDir)
	writes := []struct {
		name    string
		t       stack.Tensor
		comment string
	}{
		{BackgroundFile, s.levels, "pooled background mean per plane"},
		{NoiseFile, noise, "pooled background standard deviation per plane"},
		{CellsFile, cells, "background-subtracted mean, one row per cell ROI"},
		{SBRFile, sbr, "signal to background ratio"},
		{SNRFile, snr, "signal to noise ratio"},
	}
	for _, w := range writes {
		if err := table.WriteTensor(filepath.Join(s.outputDir, w.name), w.t, w.comment); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", w.name, err)
		}
	}

	if _, err := tiffio.WriteStack(filepath.Join(s.outputDir, SubtractedDir), "subtracted", s.subtracted); err != nil {
		return nil, fmt.Errorf("failed to write subtracted stack: %w", err)
	}
	s.preview(s.subtracted, "subtracted")

	return &Measurement{
		Background: s.levels,
		Noise:      noise,
		Cells:      cells,
		SBR:        sbr,
		SNR:        snr,
	}, nil
}
