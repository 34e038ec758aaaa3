// Package builtin provides small in-process models used for smoke runs and
// for exercising the engine without an external simulator.
package builtin

import (
	"context"
	"slices"

	"github.com/seantiz/matk/internal/backend"
)

// Sum returns the sum of all parameter values as a single response.
type Sum struct{}

func (Sum) Run(_ context.Context, call backend.Call) ([]float64, error) {
	return []float64{call.Params.Sum()}, nil
}

func (Sum) Describe() backend.Description {
	return backend.Description{Kind: "builtin", Summary: "sum of all parameters", Outputs: []string{"sum"}}
}

// Echo returns the parameter values unchanged, one response per parameter.
type Echo struct{}

func (Echo) Run(_ context.Context, call backend.Call) ([]float64, error) {
	return slices.Clone(call.Params.Values), nil
}

func (Echo) Describe() backend.Description {
	return backend.Description{Kind: "builtin", Summary: "parameters echoed as responses"}
}

// Rosenbrock evaluates the Rosenbrock function over the parameters in order.
type Rosenbrock struct{}

func (Rosenbrock) Run(_ context.Context, call backend.Call) ([]float64, error) {
	x := call.Params.Values
	var f float64
	for i := 0; i+1 < len(x); i++ {
		a := 1 - x[i]
		b := x[i+1] - x[i]*x[i]
		f += a*a + 100*b*b
	}
	return []float64{f}, nil
}

func (Rosenbrock) Describe() backend.Description {
	return backend.Description{Kind: "builtin", Summary: "Rosenbrock function", Outputs: []string{"f"}}
}

// Register adds every builtin model to reg.
func Register(reg *backend.Registry) {
	reg.Register("sum", Sum{})
	reg.Register("echo", Echo{})
	reg.Register("rosenbrock", Rosenbrock{})
}
