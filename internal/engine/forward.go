package engine

import (
	"context"
	"fmt"

	"github.com/seantiz/matk/internal/backend"
	"github.com/seantiz/matk/internal/model"
	"github.com/seantiz/matk/internal/workdir"
)

// ForwardRequest describes a single serial model run.
type ForwardRequest struct {
	Model string
	Func  backend.Model

	Params model.ParameterSet
	Index  model.SampleIndex
	// Workdir, when set, is the run's primary working directory, resolved
	// against BaseDir or the engine's root.
	Workdir string
	BaseDir string
	Persist bool
	Reuse   bool

	Args   []any
	Kwargs map[string]any
}

// Forward runs the model once in the calling goroutine. Unlike Run, a
// working-directory conflict and a model error are both returned directly.
func (e *Engine) Forward(ctx context.Context, req ForwardRequest) ([]float64, error) {
	m := req.Func
	if m == nil {
		if e.registry == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownModel, req.Model)
		}
		var err error
		if m, err = e.registry.Resolve(req.Model); err != nil {
			return nil, err
		}
	}
	if len(req.Params.Names) != len(req.Params.Values) {
		return nil, fmt.Errorf("%w: %d names for %d values", ErrDimensionMismatch, len(req.Params.Names), len(req.Params.Values))
	}

	call := backend.Call{
		Params: req.Params.Clone(),
		Index:  req.Index,
		Args:   req.Args,
		Kwargs: req.Kwargs,
	}

	if req.Workdir != "" {
		base := req.BaseDir
		if base == "" {
			base = e.workdirRoot
		}
		scope, err := workdir.Open(base, req.Persist)
		if err != nil {
			return nil, fmt.Errorf("open working directory: %w", err)
		}
		defer scope.Release()

		dir, err := scope.Prepare(req.Workdir)
		if err != nil {
			return nil, fmt.Errorf("prepare working directory: %w", err)
		}
		if _, err := workdir.Ensure(dir, req.Reuse); err != nil {
			return nil, err
		}
		if !req.Persist {
			defer func() {
				if err := workdir.Remove(dir); err != nil {
					e.logger.Warn("failed to remove working directory", "dir", dir, "error", err)
				}
			}()
		}
		call.WorkDir = dir
	}

	values, err := invoke(ctx, m, call)
	if err != nil {
		return nil, &model.Failure{Index: req.Index, Detail: err.Error()}
	}
	return values, nil
}
