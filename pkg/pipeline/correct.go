package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"

	"fluorbleed/pkg/bleedthrough"
	"fluorbleed/pkg/stack"
	"fluorbleed/pkg/table"
	"fluorbleed/pkg/tiffio"
)

// Correction is the outcome of a correction run. Ratio and Eapp are nil when
// not requested, or when Eapp was skipped for a zero G factor.
type Correction struct {
	Matrix    *bleedthrough.Matrix
	Corrected *stack.ImageStack
	Ratio     *stack.ImageStack
	Eapp      *stack.ImageStack

	// Measurements holds cell means over the corrected channels followed by
	// ratio and Eapp; Raw holds cell means on the uncorrected input
	Measurements stack.Tensor
	Raw          stack.Tensor
}

// Matrix returns the coefficient matrix configured for correction: the inline
// correction.matrix when present, otherwise the CSV at correction.matrixFile
func (s *Session) Matrix() (*bleedthrough.Matrix, error) {
	if len(s.cfg.Correction.Matrix) > 0 {
		return bleedthrough.MatrixFromRows(s.cfg.Correction.Matrix)
	}
	if s.cfg.Correction.MatrixFile == "" {
		return nil, fmt.Errorf("no coefficient matrix configured (set correction.matrix or correction.matrixFile)")
	}
	rows, err := table.ReadMatrix(s.cfg.Correction.MatrixFile)
	if err != nil {
		return nil, err
	}
	return bleedthrough.MatrixFromRows(rows)
}

// Correct subtracts the background, removes bleed-through with the configured
// matrix and clamps the result at zero. The corrected stack is written as
// 16-bit TIFF planes; ratio, Eapp and the measurement tables follow when the
// configuration asks for them.
func (s *Session) Correct() (*Correction, error) {
	matrix, err := s.Matrix()
	if err != nil {
		return nil, fmt.Errorf("failed to load coefficient matrix: %w", err)
	}
	if err := s.prepare(); err != nil {
		return nil, err
	}

	s.logf("Step 3: Applying bleed-through correction...\n")
	s.logf("%v\n", matrix)
	corrected, err := bleedthrough.Apply(s.subtracted, matrix)
	if err != nil {
		return nil, fmt.Errorf("failed to apply correction: %w", err)
	}
	corrected = corrected.ClampNegative()
	result := &Correction{Matrix: matrix, Corrected: corrected}

	s.logf("Step 4: Writing corrected planes...\n")
	if _, err := tiffio.WriteStack(filepath.Join(s.outputDir, CorrectedDir), "corrected", corrected); err != nil {
		return nil, fmt.Errorf("failed to write corrected stack: %w", err)
	}
	s.preview(corrected, "corrected")

	if s.cfg.FRET.Ratio {
		s.logf("Step 5: Computing ratiometric images...\n")
		if err := s.ratiometric(result); err != nil {
			return nil, err
		}
	}

	if s.cfg.Measure.ROIs {
		s.logf("Step 6: Measuring %d cell ROIs...\n", s.cells.Len())
		if err := s.measureCorrected(result); err != nil {
			return nil, err
		}
	}
	if s.cfg.Measure.Raw {
		if err := s.measureRaw(result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (s *Session) ratiometric(result *Correction) error {
	ratio, err := bleedthrough.Ratio(result.Corrected, s.cfg.FRET.DonorIndex, s.cfg.FRET.AcceptorIndex)
	if err != nil {
		return fmt.Errorf("failed to compute ratio: %w", err)
	}
	result.Ratio = ratio
	if err := writePlanes(filepath.Join(s.outputDir, RatioFile), ratio); err != nil {
		return err
	}
	s.preview(ratio, "ratio")

	if !s.cfg.FRET.Eapp {
		return nil
	}
	eapp, err := bleedthrough.Eapp(ratio, s.cfg.FRET.G)
	if errors.Is(err, bleedthrough.ErrNoGFactor) {
		fmt.Printf("Warning: %v\n", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to compute Eapp: %w", err)
	}
	result.Eapp = eapp
	if err := writePlanes(filepath.Join(s.outputDir, EappFile), eapp); err != nil {
		return err
	}
	s.preview(eapp, "eapp")
	return nil
}

// measureCorrected measures the cells over the corrected channels with the
// ratio and Eapp planes appended as extra channels
func (s *Session) measureCorrected(result *Correction) error {
	if s.cells.Len() == 0 {
		fmt.Println("Warning: no cell ROIs configured, skipping measurements")
		return nil
	}
	all := result.Corrected
	var extra []*stack.ImageStack
	for _, st := range []*stack.ImageStack{result.Ratio, result.Eapp} {
		if st != nil {
			extra = append(extra, st)
		}
	}
	if len(extra) > 0 {
		var err error
		if all, err = all.AppendChannels(extra...); err != nil {
			return fmt.Errorf("failed to combine ratio planes: %w", err)
		}
	}

	cells, err := all.Measure(s.cells, false)
	if err != nil {
		return fmt.Errorf("failed to measure cells: %w", err)
	}
	result.Measurements = cells
	return table.WriteTensor(filepath.Join(s.outputDir, MeasurementsFile), cells,
		fmt.Sprintf("corrected mean per cell ROI, %d corrected channels then ratio/Eapp", result.Corrected.NumChannel()))
}

// measureRaw measures the cells on the uncorrected input and writes them below
// a row holding the background level
func (s *Session) measureRaw(result *Correction) error {
	if s.cells.Len() == 0 {
		return nil
	}
	raw, err := s.input.Measure(s.cells, false)
	if err != nil {
		return fmt.Errorf("failed to measure raw cells: %w", err)
	}
	result.Raw = raw

	rows := [][]float64{append([]float64(nil), s.levels.Data...)}
	rows = append(rows, raw.Rows()...)
	return table.WriteMatrix(filepath.Join(s.outputDir, RawFile), rows,
		"first row: background level, then uncorrected mean per cell ROI")
}

// writePlanes writes every plane of a single-channel stack as a CSV matrix.
// Time series get one file per time point: name_t000.csv, name_t001.csv, ...
func writePlanes(path string, st *stack.ImageStack) error {
	ext := filepath.Ext(path)
	base := path[:len(path)-len(ext)]
	for t := 0; t < st.NumTime(); t++ {
		plane, err := st.Plane(t, 0)
		if err != nil {
			return err
		}
		rows := make([][]float64, st.Height())
		for y := range rows {
			rows[y] = plane[y*st.Width() : (y+1)*st.Width()]
		}
		name := path
		if st.Layout() == stack.TimeSeries {
			name = fmt.Sprintf("%s_t%03d%s", base, t, ext)
		}
		if err := table.WriteMatrix(name, rows); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}
