package sampleset

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// ErrNoValues is returned by ParStudy when a parameter is given fewer than one value.
var ErrNoValues = errors.New("parameter needs at least one value")

// Parameter describes one model parameter for study generation.
type Parameter struct {
	Name  string
	Value float64
	Min   float64
	Max   float64
	// Fixed parameters keep Value in every sample.
	Fixed bool
	// NVals is the number of evenly spaced values between Min and Max.
	NVals int
}

// Levels returns the values the parameter takes in a full-grid study. A
// fixed parameter, or one with a single value, contributes only Value.
func (p Parameter) Levels() ([]float64, error) {
	switch {
	case p.NVals < 1:
		return nil, fmt.Errorf("%w: %s has %d", ErrNoValues, p.Name, p.NVals)
	case p.NVals == 1 || p.Fixed:
		return []float64{p.Value}, nil
	default:
		return floats.Span(make([]float64, p.NVals), p.Min, p.Max), nil
	}
}

// ParStudy generates the full grid over params: the cartesian product of
// each parameter's levels, with the last parameter varying fastest.
func ParStudy(name string, params []Parameter) (*SampleSet, error) {
	names := make([]string, len(params))
	levels := make([][]float64, len(params))
	for i, p := range params {
		lv, err := p.Levels()
		if err != nil {
			return nil, err
		}
		names[i] = p.Name
		levels[i] = lv
	}
	return New(name, names, product(levels), 0)
}

func product(levels [][]float64) [][]float64 {
	if len(levels) == 0 {
		return nil
	}
	out := [][]float64{{}}
	for _, lv := range levels {
		next := make([][]float64, 0, len(out)*len(lv))
		for _, prefix := range out {
			for _, v := range lv {
				row := make([]float64, len(prefix), len(prefix)+1)
				copy(row, prefix)
				next = append(next, append(row, v))
			}
		}
		out = next
	}
	return out
}
