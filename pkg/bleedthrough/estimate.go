package bleedthrough

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"fluorbleed/pkg/stack"
)

// Estimator selects how coefficients are derived from calibration samples
type Estimator int

const (
	// Slope fits y = k·x through the origin for every channel pair
	Slope Estimator = iota
	// MeanRatio averages the per-sample ratio y/x
	MeanRatio
)

func (e Estimator) String() string {
	switch e {
	case Slope:
		return "slope"
	case MeanRatio:
		return "ratio"
	default:
		return fmt.Sprintf("Estimator(%d)", int(e))
	}
}

// ParseEstimator accepts "slope" (the default when empty) or "ratio"
func ParseEstimator(name string) (Estimator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "slope", "lstsq", "least-squares":
		return Slope, nil
	case "ratio", "mean-ratio", "coefficient":
		return MeanRatio, nil
	default:
		return 0, fmt.Errorf("unknown estimator %q (must be slope or ratio)", name)
	}
}

// Estimate holds coefficients for review together with a per-pair quality
// value: R² for the slope estimator, the ratio standard deviation for the
// mean-ratio estimator. Diagonal entries of both are zero.
type Estimate struct {
	Method       Estimator
	Coefficients *Matrix
	Quality      *mat.Dense
}

// Run dispatches to the selected estimator
func Run(method Estimator, samples mat.Matrix) (*Estimate, error) {
	switch method {
	case Slope:
		return EstimateSlope(samples)
	case MeanRatio:
		return EstimateRatio(samples)
	default:
		return nil, fmt.Errorf("unknown estimator %v", method)
	}
}

// SamplesFromMeasurement turns a per-cell measurement into calibration samples
// with one row per channel. (ROI, C) becomes C × ROI; (ROI, T, C) becomes
// C × (ROI·T), every cell at every time point counting as one observation.
func SamplesFromMeasurement(cells stack.Tensor) (*mat.Dense, error) {
	if cells.Rank() != 2 && cells.Rank() != 3 {
		return nil, &stack.DimensionMismatchError{What: "calibration measurement must be (ROI, C) or (ROI, T, C)", Got: cells.Shape}
	}
	channels := cells.Shape[cells.Rank()-1]
	observations := len(cells.Data) / max(channels, 1)
	if channels == 0 || observations == 0 {
		return nil, fmt.Errorf("calibration measurement %v has no samples", cells.Shape)
	}

	// Data is observation-major already, so it is the transpose of what we need
	obs := mat.NewDense(observations, channels, append([]float64(nil), cells.Data...))
	return mat.DenseCopyOf(obs.T()), nil
}

// EstimateSlope computes, for every ordered channel pair (i, j) with i ≠ j, the
// least-squares slope of channel j against channel i with the intercept fixed
// at zero: bleed-through is purely multiplicative.
//
// The quality matrix holds R² = 1 − SSE / (Σy² − n·ȳ²). That denominator is
// the mean-centred total sum of squares, which does not strictly match a fit
// through the origin; the value is kept as a review diagnostic only.
//
// A source channel with no signal (Σx² = 0) yields slope 0 and R² NaN.
func EstimateSlope(samples mat.Matrix) (*Estimate, error) {
	channels, n, err := sampleDims(samples)
	if err != nil {
		return nil, err
	}

	est := newEstimate(Slope, channels)
	rows := sampleRows(samples)

	for i := 0; i < channels; i++ {
		x := rows[i]
		degenerate := floats.Dot(x, x) == 0

		var qr mat.QR
		if !degenerate {
			qr.Factorize(mat.NewDense(n, 1, x))
		}

		for j := 0; j < channels; j++ {
			if i == j {
				continue
			}
			y := rows[j]
			if degenerate {
				est.Quality.Set(i, j, math.NaN())
				continue
			}

			var beta mat.VecDense
			if err := qr.SolveVecTo(&beta, false, mat.NewVecDense(n, y)); err != nil {
				est.Quality.Set(i, j, math.NaN())
				continue
			}
			slope := beta.AtVec(0)

			residual := make([]float64, n)
			floats.AddScaledTo(residual, y, -slope, x)
			sse := floats.Dot(residual, residual)
			mean := stat.Mean(y, nil)
			rsq := 1 - sse/(floats.Dot(y, y)-float64(n)*mean*mean)

			est.Coefficients.dense.Set(i, j, slope)
			est.Quality.Set(i, j, rsq)
		}
	}
	return est, nil
}

// EstimateRatio computes, for every ordered channel pair (i, j) with i ≠ j, the
// mean and population standard deviation of y/x over all samples. Samples with
// x ≈ 0 produce huge or non-finite ratios; they propagate into the estimate
// untouched and are neutralised when the matrix is applied.
func EstimateRatio(samples mat.Matrix) (*Estimate, error) {
	channels, n, err := sampleDims(samples)
	if err != nil {
		return nil, err
	}

	est := newEstimate(MeanRatio, channels)
	rows := sampleRows(samples)
	ratio := make([]float64, n)

	for i := 0; i < channels; i++ {
		for j := 0; j < channels; j++ {
			if i == j {
				continue
			}
			floats.DivTo(ratio, rows[j], rows[i])
			mean, std := stat.PopMeanStdDev(ratio, nil)
			est.Coefficients.dense.Set(i, j, mean)
			est.Quality.Set(i, j, std)
		}
	}
	return est, nil
}

func newEstimate(method Estimator, channels int) *Estimate {
	return &Estimate{
		Method:       method,
		Coefficients: NewMatrix(channels),
		Quality:      mat.NewDense(channels, channels, nil),
	}
}

func sampleDims(samples mat.Matrix) (channels, n int, err error) {
	channels, n = samples.Dims()
	if channels == 0 || n == 0 {
		return 0, 0, fmt.Errorf("calibration samples %dx%d are empty", channels, n)
	}
	return channels, n, nil
}

func sampleRows(samples mat.Matrix) [][]float64 {
	channels, _ := samples.Dims()
	rows := make([][]float64, channels)
	for i := range rows {
		rows[i] = mat.Row(nil, i, samples)
	}
	return rows
}
