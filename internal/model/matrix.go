package model

import "math"

// ResultMatrix holds one row per submitted parameter set, in submission order.
// Rows of failed or unresolved samples hold NaN in every column.
type ResultMatrix [][]float64

// NewResultMatrix returns an n×width matrix filled with the missing-value sentinel.
func NewResultMatrix(n, width int) ResultMatrix {
	m := make(ResultMatrix, n)
	for i := range m {
		m[i] = MissingRow(width)
	}
	return m
}

// MissingRow returns a row of width NaN values.
func MissingRow(width int) []float64 {
	row := make([]float64, width)
	for i := range row {
		row[i] = math.NaN()
	}
	return row
}

// IsMissing reports whether v is the missing-value sentinel.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// RowMissing reports whether row i contains any missing value.
func (m ResultMatrix) RowMissing(i int) bool {
	for _, v := range m[i] {
		if IsMissing(v) {
			return true
		}
	}
	return false
}

// MissingRows returns the positions of rows containing a missing value.
func (m ResultMatrix) MissingRows() []int {
	var rows []int
	for i := range m {
		if m.RowMissing(i) {
			rows = append(rows, i)
		}
	}
	return rows
}

// Width returns the number of columns, or 0 for an empty matrix.
func (m ResultMatrix) Width() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}
