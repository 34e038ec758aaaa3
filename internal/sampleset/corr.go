package sampleset

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// CorrKind selects a correlation coefficient.
type CorrKind string

const (
	Pearson  CorrKind = "pearson"
	Spearman CorrKind = "spearman"
)

var (
	// ErrMissingValues is returned by Corr when samples or responses hold
	// NaN, usually from failed runs. Use Subset to drop them first.
	ErrMissingValues = errors.New("missing values in sample set")
	// ErrUnknownCorr is returned for a correlation kind other than pearson or spearman.
	ErrUnknownCorr = errors.New("unknown correlation kind")
)

// ParseCorrKind parses "pearson" or "spearman".
func ParseCorrKind(s string) (CorrKind, error) {
	switch k := CorrKind(strings.ToLower(s)); k {
	case Pearson, Spearman:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCorr, s)
	}
}

// Correlation is a parameter by response matrix of coefficients.
type Correlation struct {
	Kind   CorrKind
	Rows   []string
	Cols   []string
	Coeffs [][]float64
}

// Corr computes the correlation of every parameter with every response.
func (s *SampleSet) Corr(kind CorrKind) (*Correlation, error) {
	if kind != Pearson && kind != Spearman {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCorr, kind)
	}
	if s.Responses == nil {
		return nil, ErrNoResponses
	}
	if hasNaN(s.Samples) || hasNaN(s.Responses) {
		return nil, ErrMissingValues
	}

	pars := columns(s.Samples, len(s.ParNames))
	obs := columns(s.Responses, len(s.ObsNames))
	if kind == Spearman {
		for i := range pars {
			pars[i] = ranks(pars[i])
		}
		for i := range obs {
			obs[i] = ranks(obs[i])
		}
	}

	c := &Correlation{
		Kind:   kind,
		Rows:   s.ParNames,
		Cols:   s.ObsNames,
		Coeffs: make([][]float64, len(pars)),
	}
	for i, x := range pars {
		c.Coeffs[i] = make([]float64, len(obs))
		for j, y := range obs {
			c.Coeffs[i][j] = stat.Correlation(x, y, nil)
		}
	}
	return c, nil
}

// Format writes the matrix as a table with 8-column cells and two decimals.
func (c *Correlation) Format(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%8s", "")
	for _, n := range c.Cols {
		fmt.Fprintf(&b, " %8s", n)
	}
	b.WriteByte('\n')
	for i, row := range c.Coeffs {
		fmt.Fprintf(&b, "%-8s", c.Rows[i])
		for _, v := range row {
			fmt.Fprintf(&b, " %8.2f", v)
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func hasNaN[S ~[][]float64](rows S) bool {
	for _, r := range rows {
		for _, v := range r {
			if math.IsNaN(v) {
				return true
			}
		}
	}
	return false
}

func columns[S ~[][]float64](rows S, width int) [][]float64 {
	cols := make([][]float64, width)
	for j := range cols {
		cols[j] = make([]float64, len(rows))
		for i, r := range rows {
			cols[j][i] = r[j]
		}
	}
	return cols
}

// ranks returns the 1-based ranks of xs, averaging the ranks of ties.
func ranks(xs []float64) []float64 {
	order := make([]int, len(xs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return xs[order[a]] < xs[order[b]] })

	r := make([]float64, len(xs))
	for i := 0; i < len(order); {
		j := i
		for j+1 < len(order) && xs[order[j+1]] == xs[order[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			r[order[k]] = avg
		}
		i = j + 1
	}
	return r
}
