package backend

import (
	"context"

	"github.com/seantiz/matk/internal/model"
)

// Model is the interface every evaluable model implements.
type Model interface {
	// Run evaluates the model for one parameter set. A nil slice means the
	// model produced no output; the sample's result row is left missing but the
	// sample is not counted as failed. The context is cancelled when the
	// sweep is cancelled.
	Run(ctx context.Context, call Call) ([]float64, error)
}

// Call carries everything a model invocation receives.
type Call struct {
	Params model.ParameterSet
	Index  model.SampleIndex

	// WorkDir is the absolute directory dedicated to this sample, or empty
	// when the sweep has no working-directory base configured.
	WorkDir string

	// Slot holds the worker's (host, processor) tag. Tagged is false for
	// count-only topologies.
	model.Slot

	Args   []any
	Kwargs map[string]any
}

// Func adapts an ordinary function to the Model interface.
type Func func(ctx context.Context, call Call) ([]float64, error)

// Run calls f(ctx, call).
func (f Func) Run(ctx context.Context, call Call) ([]float64, error) {
	return f(ctx, call)
}

// Describer is implemented by models that can report what they are.
type Describer interface {
	Describe() Description
}

// Description is the metadata a model reports for listings.
type Description struct {
	Kind    string   `json:"kind"`
	Summary string   `json:"summary,omitempty"`
	Outputs []string `json:"outputs,omitempty"`
}
