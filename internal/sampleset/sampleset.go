// Package sampleset holds a named collection of parameter samples together
// with the responses a sweep produced for them, and the analyses run over
// that collection afterwards.
package sampleset

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/seantiz/matk/internal/engine"
	"github.com/seantiz/matk/internal/model"
	"github.com/seantiz/matk/internal/results"
)

var (
	// ErrNoResponses is returned by analyses that need responses on a set
	// that has not been run.
	ErrNoResponses = errors.New("sample set has no responses")
	// ErrIndexNotFound is returned by PardDict for an unknown sample index.
	ErrIndexNotFound = errors.New("sample index not found")
	// ErrUnknownObs is returned when a response name is not in the set.
	ErrUnknownObs = errors.New("unknown response name")
	// ErrEmptySubset is returned by Subset when no sample satisfies the predicate.
	ErrEmptySubset = errors.New("no sample satisfies the predicate")
)

// Runner evaluates a sweep request. *engine.Engine implements it.
type Runner interface {
	Run(ctx context.Context, req engine.Request) (*engine.Result, error)
}

// SampleSet is a named set of parameter samples, their indices and, once
// run, their responses.
type SampleSet struct {
	Name     string
	ParNames []string
	ObsNames []string
	Samples  [][]float64
	Indices  []model.SampleIndex
	// Responses is nil until the set has been run or loaded with responses.
	Responses model.ResultMatrix
}

// New creates a sample set with default indices starting at indexStart, or
// at engine.DefaultIndexStart when indexStart is zero.
func New(name string, parNames []string, samples [][]float64, indexStart int) (*SampleSet, error) {
	for i, row := range samples {
		if len(row) != len(parNames) {
			return nil, fmt.Errorf("sample %d has %d values for %d parameters", i, len(row), len(parNames))
		}
	}
	if indexStart == 0 {
		indexStart = engine.DefaultIndexStart
	}
	s := &SampleSet{
		Name:     name,
		ParNames: slices.Clone(parNames),
		Samples:  cloneRows(samples),
		Indices:  model.DefaultIndices(len(samples), indexStart),
	}
	return s, nil
}

// Len returns the number of samples.
func (s *SampleSet) Len() int {
	return len(s.Samples)
}

// SetIndices replaces the sample indices. There must be one unique index per sample.
func (s *SampleSet) SetIndices(indices []model.SampleIndex) error {
	if len(indices) != len(s.Samples) {
		return fmt.Errorf("%w: %d indices for %d samples", engine.ErrIndexMismatch, len(indices), len(s.Samples))
	}
	seen := make(map[model.SampleIndex]bool, len(indices))
	for _, idx := range indices {
		if err := idx.Validate(); err != nil {
			return err
		}
		if seen[idx] {
			return fmt.Errorf("%w: %q", engine.ErrDuplicateIndex, idx)
		}
		seen[idx] = true
	}
	s.Indices = slices.Clone(indices)
	return nil
}

// ParameterSets returns the samples as parameter sets in order.
func (s *SampleSet) ParameterSets() []model.ParameterSet {
	sets := make([]model.ParameterSet, len(s.Samples))
	for i, row := range s.Samples {
		sets[i] = model.ParameterSet{Names: slices.Clone(s.ParNames), Values: slices.Clone(row)}
	}
	return sets
}

// Run evaluates every sample through r. The request supplies the model,
// topology and working-directory options; its parameters, indices and,
// unless already set, response names come from the set. The responses are
// stored even when the sweep is interrupted, in which case the error is
// returned as well.
func (s *SampleSet) Run(ctx context.Context, r Runner, req engine.Request) (*engine.Result, error) {
	req.Params = s.ParameterSets()
	req.Indices = s.Indices
	if len(req.ObsNames) == 0 {
		req.ObsNames = s.ObsNames
	}

	res, err := r.Run(ctx, req)
	if res == nil {
		return nil, err
	}
	s.Responses = res.Matrix
	s.ObsNames = res.ObsNames
	return res, err
}

// PardDict returns the parameters of the sample with the given index.
func (s *SampleSet) PardDict(index model.SampleIndex) (model.ParameterSet, error) {
	i := slices.Index(s.Indices, index)
	if i < 0 {
		return model.ParameterSet{}, fmt.Errorf("%w: %q", ErrIndexNotFound, index)
	}
	return model.NewParameterSet(s.ParNames, s.Samples[i])
}

// CalcSSE returns, for every sample, the sum of squared differences between
// observed and the sample's responses.
func (s *SampleSet) CalcSSE(observed []float64) ([]float64, error) {
	if s.Responses == nil {
		return nil, ErrNoResponses
	}
	if len(observed) != len(s.ObsNames) {
		return nil, fmt.Errorf("%d observed values for %d responses", len(observed), len(s.ObsNames))
	}
	sse := make([]float64, len(s.Responses))
	for i, row := range s.Responses {
		var sum float64
		for j, v := range row {
			d := observed[j] - v
			sum += d * d
		}
		sse[i] = sum
	}
	return sse, nil
}

// Subset keeps only the samples whose response obs satisfies keep. When no
// sample satisfies it the set is left unchanged and ErrEmptySubset is returned.
func (s *SampleSet) Subset(keep func(float64) bool, obs string) error {
	if s.Responses == nil {
		return ErrNoResponses
	}
	col := slices.Index(s.ObsNames, obs)
	if col < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownObs, obs)
	}

	var rows []int
	for i, row := range s.Responses {
		if keep(row[col]) {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		return ErrEmptySubset
	}

	samples := make([][]float64, len(rows))
	responses := make(model.ResultMatrix, len(rows))
	indices := make([]model.SampleIndex, len(rows))
	for k, i := range rows {
		samples[k] = s.Samples[i]
		responses[k] = s.Responses[i]
		indices[k] = s.Indices[i]
	}
	s.Samples, s.Responses, s.Indices = samples, responses, indices
	return nil
}

// Copy returns a deep copy under a new name.
func (s *SampleSet) Copy(name string) *SampleSet {
	c := &SampleSet{
		Name:     name,
		ParNames: slices.Clone(s.ParNames),
		ObsNames: slices.Clone(s.ObsNames),
		Samples:  cloneRows(s.Samples),
		Indices:  slices.Clone(s.Indices),
	}
	if s.Responses != nil {
		c.Responses = model.ResultMatrix(cloneRows(s.Responses))
	}
	return c
}

// Table returns the set in results-file form.
func (s *SampleSet) Table() *results.Table {
	t := &results.Table{
		ParNames: s.ParNames,
		Indices:  s.Indices,
		Samples:  s.Samples,
	}
	if s.Responses != nil {
		t.ObsNames = s.ObsNames
		t.Responses = s.Responses
	}
	return t
}

// WriteFile writes the set as a results file.
func (s *SampleSet) WriteFile(path string) error {
	return results.WriteFile(path, s.Table())
}

// FromTable builds a sample set from a parsed results file.
func FromTable(name string, t *results.Table) *SampleSet {
	s := &SampleSet{
		Name:     name,
		ParNames: slices.Clone(t.ParNames),
		Samples:  cloneRows(t.Samples),
		Indices:  slices.Clone(t.Indices),
	}
	if len(t.ObsNames) > 0 {
		s.ObsNames = slices.Clone(t.ObsNames)
		s.Responses = model.ResultMatrix(cloneRows(t.Responses))
	}
	return s
}

// ReadFile loads a sample set from a results file.
func ReadFile(name, path string) (*SampleSet, error) {
	t, err := results.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromTable(name, t), nil
}

func cloneRows[S ~[][]float64](rows S) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = slices.Clone(r)
	}
	return out
}
