package model

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"
)

// ErrInvalidIndex is returned for a sample index that cannot name a working
// directory or a results-file row.
var ErrInvalidIndex = errors.New("invalid sample index")

// SampleIndex identifies one parameter set within a sweep. It is used as the
// working-directory suffix and as the first column of the results file.
type SampleIndex string

// IntIndex returns the SampleIndex for an integer index.
func IntIndex(i int) SampleIndex {
	return SampleIndex(strconv.Itoa(i))
}

// String implements fmt.Stringer.
func (s SampleIndex) String() string {
	return string(s)
}

// Validate checks that s is a single non-empty path element without
// whitespace, so that it maps to exactly one directory beside its siblings.
func (s SampleIndex) Validate() error {
	switch {
	case s == "":
		return fmt.Errorf("%w: empty", ErrInvalidIndex)
	case s == "." || s == "..":
		return fmt.Errorf("%w: %q", ErrInvalidIndex, string(s))
	case strings.ContainsAny(string(s), `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidIndex, string(s))
	case strings.IndexFunc(string(s), unicode.IsSpace) >= 0:
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidIndex, string(s))
	}
	return nil
}

// DefaultIndices returns n consecutive integer indices beginning at start.
func DefaultIndices(n, start int) []SampleIndex {
	out := make([]SampleIndex, n)
	for i := range out {
		out[i] = IntIndex(start + i)
	}
	return out
}

// DefaultObsNames returns the names obs1..obsK given to responses of a model
// that declares none.
func DefaultObsNames(k int) []string {
	out := make([]string, k)
	for i := range out {
		out[i] = "obs" + strconv.Itoa(i+1)
	}
	return out
}

// ParameterSet is an ordered mapping from parameter name to value.
type ParameterSet struct {
	Names  []string
	Values []float64
}

// NewParameterSet pairs names with values. The slices must have equal length.
func NewParameterSet(names []string, values []float64) (ParameterSet, error) {
	if len(names) != len(values) {
		return ParameterSet{}, fmt.Errorf("%d names for %d values", len(names), len(values))
	}
	return ParameterSet{Names: slices.Clone(names), Values: slices.Clone(values)}, nil
}

// ParameterSets builds one ParameterSet per row of samples.
func ParameterSets(names []string, samples [][]float64) ([]ParameterSet, error) {
	sets := make([]ParameterSet, len(samples))
	for i, row := range samples {
		ps, err := NewParameterSet(names, row)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		sets[i] = ps
	}
	return sets, nil
}

// Len returns the number of parameters.
func (p ParameterSet) Len() int {
	return len(p.Names)
}

// Value returns the value of the named parameter.
func (p ParameterSet) Value(name string) (float64, bool) {
	i := slices.Index(p.Names, name)
	if i < 0 {
		return 0, false
	}
	return p.Values[i], true
}

// Map returns the parameters as a plain map. Ordering is lost.
func (p ParameterSet) Map() map[string]float64 {
	m := make(map[string]float64, len(p.Names))
	for i, n := range p.Names {
		m[n] = p.Values[i]
	}
	return m
}

// Sum returns the sum of all parameter values.
func (p ParameterSet) Sum() float64 {
	var s float64
	for _, v := range p.Values {
		s += v
	}
	return s
}

// Clone returns a deep copy, so the dispatched set cannot be mutated by the caller.
func (p ParameterSet) Clone() ParameterSet {
	return ParameterSet{Names: slices.Clone(p.Names), Values: slices.Clone(p.Values)}
}

// SameNames reports whether p and o declare the same parameters in the same order.
func (p ParameterSet) SameNames(o ParameterSet) bool {
	return slices.Equal(p.Names, o.Names)
}
