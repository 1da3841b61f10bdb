// Package table persists 2D numeric tables (measurements, background levels,
// coefficient matrices) as comma-delimited text and reads matrices back for
// the hand-edit workflow.
package table

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fluorbleed/pkg/stack"
)

// Comment is the prefix of header lines; ReadMatrix skips them
const Comment = '#'

// WriteMatrix writes rows as CSV, preceded by optional comment lines
func WriteMatrix(path string, rows [][]float64, comments ...string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create table directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create table file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close table file: %w", cerr)
		}
	}()

	buf := bufio.NewWriter(file)
	for _, c := range comments {
		if _, err := fmt.Fprintf(buf, "%c %s\n", Comment, c); err != nil {
			return err
		}
	}

	w := csv.NewWriter(buf)
	record := make([]string, 0)
	for _, row := range rows {
		record = record[:0]
		for _, v := range row {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write table row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}
	return buf.Flush()
}

// WriteTensor writes a measurement tensor with one row per index of its first
// axis. A (ROI, T, C) measurement is laid out as T blocks of C columns per row.
func WriteTensor(path string, t stack.Tensor, comments ...string) error {
	return WriteMatrix(path, t.Rows(), comments...)
}

// Transpose returns the column-major view of rows, e.g. (ROI, C) → (C, ROI)
func Transpose(rows [][]float64) [][]float64 {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]float64, len(rows[0]))
	for j := range out {
		out[j] = make([]float64, len(rows))
		for i := range rows {
			out[j][i] = rows[i][j]
		}
	}
	return out
}

// ReadMatrix parses a CSV file of numbers. Lines starting with '#' and blank
// lines are skipped; every data row must have the same number of fields.
func ReadMatrix(path string) ([][]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.Comment = Comment
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	rows := make([][]float64, 0, len(records))
	for i, rec := range records {
		row := make([]float64, len(rec))
		for j, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("%s row %d column %d: %w", path, i+1, j+1, err)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}
