package api

import (
	"errors"
	"fmt"

	"github.com/seantiz/matk/internal/backend/command"
	"github.com/seantiz/matk/internal/engine"
	"github.com/seantiz/matk/internal/model"
)

// createSweepRequest is the JSON body for POST /v1/sweeps.
type createSweepRequest struct {
	// Model names a registered model. Command runs an external simulator
	// instead; exactly one of the two must be set.
	Model   string          `json:"model"`
	Command *commandRequest `json:"command"`

	ParNames   []string    `json:"par_names"`
	Samples    [][]float64 `json:"samples"`
	Indices    []string    `json:"indices"`
	IndexStart int         `json:"index_start"`
	ObsNames   []string    `json:"obs_names"`

	Workers int          `json:"workers"`
	Hosts   []model.Host `json:"hosts"`

	WorkdirBase string `json:"workdir_base"`
	Persist     bool   `json:"persist"`
	Reuse       bool   `json:"reuse"`

	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}

type commandRequest struct {
	Run        string            `json:"run"`
	Args       []string          `json:"args"`
	Env        []string          `json:"env"`
	OutputFile string            `json:"output_file"`
	Templates  []templateRequest `json:"templates"`
}

type templateRequest struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Marker string `json:"marker"`
}

// errBadRequest marks request errors that are the client's fault.
var errBadRequest = errors.New("bad request")

// toEngineRequest validates the body and converts it for the engine.
func (s *Server) toEngineRequest(req createSweepRequest) (engine.Request, error) {
	var out engine.Request

	switch {
	case req.Model != "" && req.Command != nil:
		return out, fmt.Errorf("%w: model and command are mutually exclusive", errBadRequest)
	case req.Model == "" && req.Command == nil:
		return out, fmt.Errorf("%w: model or command is required", errBadRequest)
	case req.Command != nil:
		cfg := command.Config{
			Run:        req.Command.Run,
			Args:       req.Command.Args,
			Env:        req.Command.Env,
			OutputFile: req.Command.OutputFile,
			Outputs:    req.ObsNames,
		}
		for _, t := range req.Command.Templates {
			cfg.Templates = append(cfg.Templates, command.TemplateConfig{Source: t.Source, Target: t.Target, Marker: t.Marker})
		}
		m, err := command.New(cfg, s.logger)
		if err != nil {
			return out, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		out.Model = "command"
		out.Func = m
	default:
		out.Model = req.Model
	}

	params, err := model.ParameterSets(req.ParNames, req.Samples)
	if err != nil {
		return out, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	out.Params = params

	if req.Indices != nil {
		out.Indices = make([]model.SampleIndex, len(req.Indices))
		for i, idx := range req.Indices {
			out.Indices[i] = model.SampleIndex(idx)
		}
	}

	switch {
	case len(req.Hosts) > 0:
		out.Workers = model.Topology{Count: req.Workers, Hosts: req.Hosts}
	case req.Workers != 0:
		out.Workers = model.Workers(req.Workers)
	default:
		out.Workers = model.Workers(s.defaultWorkers)
	}

	out.IndexStart = req.IndexStart
	out.ObsNames = req.ObsNames
	out.WorkdirBase = req.WorkdirBase
	out.Persist = req.Persist
	out.Reuse = req.Reuse
	out.Args = req.Args
	out.Kwargs = req.Kwargs
	return out, nil
}

// isConfigError reports whether err is a sweep configuration error returned
// by the engine before anything runs.
func isConfigError(err error) bool {
	for _, target := range []error{
		errBadRequest,
		engine.ErrInvalidTopology,
		engine.ErrUnknownModel,
		engine.ErrDimensionMismatch,
		engine.ErrIndexMismatch,
		engine.ErrDuplicateIndex,
		engine.ErrInvalidIndex,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
