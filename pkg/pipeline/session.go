// Package pipeline runs the bleed-through workflows of one analysis session:
// calibration of coefficients from reference samples, correction of an
// experiment stack, and plain ROI measurement.
package pipeline

import (
	"fmt"
	"path/filepath"

	"fluorbleed/pkg/config"
	"fluorbleed/pkg/roi"
	"fluorbleed/pkg/stack"
	"fluorbleed/pkg/tiffio"
	"fluorbleed/pkg/visualization"
)

// Output file names inside the session directory
const (
	CoefficientsFile = "coefficients.csv"
	QualityFile      = "quality.csv"
	CellsFile        = "cells.csv"
	BackgroundFile   = "background.csv"
	NoiseFile        = "noise.csv"
	SBRFile          = "sbr.csv"
	SNRFile          = "snr.csv"
	MeasurementsFile = "measurements.csv"
	RawFile          = "raw.csv"
	RatioFile        = "ratio.csv"
	EappFile         = "eapp.csv"
	CorrectedDir     = "corrected"
	SubtractedDir    = "subtracted"
	PreviewDir       = "preview"
)

// Session holds one configured analysis run. Each workflow reloads the input
// and recomputes the background from scratch; nothing is cached between runs.
type Session struct {
	// cfg is the validated session configuration
	cfg *config.Config

	// outputDir is <output.dir>/<input prefix>
	outputDir string

	// Loaded by prepare
	input      *stack.ImageStack
	background *roi.Set
	cells      *roi.Set

	// levels is the pooled background, (C) or (T, C)
	levels stack.Tensor

	// subtracted is the input with the background removed and clamped at zero
	subtracted *stack.ImageStack
}

// NewSession validates cfg and creates a session for it.
//
// Parameters:
//   - cfg: Session configuration, usually from config.LoadConfig
//
// Returns:
//   - A new Session, or the validation error
func NewSession(cfg *config.Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Session{
		cfg:       cfg,
		outputDir: filepath.Join(cfg.Output.Dir, cfg.Prefix()),
	}, nil
}

// OutputDir is the directory every file of the session is written to
func (s *Session) OutputDir() string {
	return s.outputDir
}

// Input returns the loaded input stack; nil before a workflow has run
func (s *Session) Input() *stack.ImageStack {
	return s.input
}

func (s *Session) logf(format string, args ...interface{}) {
	if s.cfg.Output.Verbose {
		fmt.Printf(format, args...)
	}
}

// prepare loads the planes, rasterises both ROI groups and subtracts the
// pooled background
func (s *Session) prepare() error {
	s.logf("Step 1: Loading input planes...\n")
	input, err := tiffio.LoadPlanes(s.cfg.Input.Files, s.cfg.Input.Times)
	if err != nil {
		return fmt.Errorf("failed to load input: %w", err)
	}
	if layout, pinned, _ := s.cfg.Layout(); pinned && layout != input.Layout() {
		shape := append([]int{input.NumTime()}, input.Shape()...)
		if input, err = stack.New(input.Data(), shape, layout); err != nil {
			return fmt.Errorf("failed to apply layout %s: %w", layout, err)
		}
	}
	s.input = input
	s.logf("Loaded %v\n", input)

	width, height := input.Width(), input.Height()
	if s.background, err = roi.FromShapes(s.cfg.Background.ROIs, width, height); err != nil {
		return fmt.Errorf("failed to build background ROIs: %w", err)
	}
	if s.cells, err = roi.FromShapes(s.cfg.Cells.ROIs, width, height); err != nil {
		return fmt.Errorf("failed to build cell ROIs: %w", err)
	}

	s.logf("Step 2: Measuring background (%d ROIs)...\n", s.background.Len())
	if s.levels, err = input.Measure(s.background, true); err != nil {
		return fmt.Errorf("failed to measure background: %w", err)
	}
	if s.subtracted, err = input.SubtractBackground(s.levels); err != nil {
		return fmt.Errorf("failed to subtract background: %w", err)
	}
	return nil
}

// preview writes JPEG previews of every plane of st when output.preview is set
func (s *Session) preview(st *stack.ImageStack, prefix string) {
	if !s.cfg.Output.Preview {
		return
	}
	dir := filepath.Join(s.outputDir, PreviewDir)
	viewer := visualization.NewViewer(st, s.background, s.cells)
	if err := viewer.SavePlaneSequence(dir, prefix); err != nil {
		fmt.Printf("Warning: Failed to save %s previews: %v\n", prefix, err)
	}
}
