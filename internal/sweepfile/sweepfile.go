// Package sweepfile loads sweep definitions written in HCL:
//
//	model        = "rosenbrock"
//	workers      = 4
//	workdir_base = "run"
//	results_file = "rosen.out"
//
//	parameter "x" {
//	  min   = -2
//	  max   = 2
//	  nvals = 5
//	}
//
//	observation "f" {}
//
// A command block replaces model to run an external simulator per sample.
// Samples come from the samples attribute when present, otherwise from the
// full grid over the parameter blocks. Expressions may read the process
// environment through env and use a small function library.
package sweepfile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/seantiz/matk/internal/backend/command"
	"github.com/seantiz/matk/internal/engine"
	"github.com/seantiz/matk/internal/model"
	"github.com/seantiz/matk/internal/sampleset"
)

// ErrInvalid is returned for sweep files that decode but do not describe a runnable sweep.
var ErrInvalid = errors.New("invalid sweep file")

// Sweep is a decoded sweep definition. Relative paths in it are resolved
// against Dir, the directory holding the file.
type Sweep struct {
	Dir string

	Model   string
	Command *command.Config

	Workers     model.Topology
	IndexStart  int
	WorkdirBase string
	Persist     bool
	Reuse       bool
	LogFile     string
	ResultsFile string

	Parameters []sampleset.Parameter
	ObsNames   []string
	// Observed holds the observation values when every observation block sets one.
	Observed []float64
	// Samples is nil when the sweep is a parameter study over Parameters.
	Samples [][]float64
	Indices []model.SampleIndex

	Args   []any
	Kwargs map[string]any
}

// Load parses and validates the sweep file at path.
func Load(path string) (*Sweep, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sweep file: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	return Parse(src, abs)
}

// Parse decodes a sweep file. filename is used for diagnostics and its
// directory becomes Sweep.Dir.
func Parse(src []byte, filename string) (*Sweep, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse sweep file %s: %w", filename, diags)
	}

	var raw fileSchema
	if diags := gohcl.DecodeBody(file.Body, evalContext(), &raw); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode sweep file %s: %w", filename, diags)
	}

	return build(&raw, filepath.Dir(filename))
}

func build(raw *fileSchema, dir string) (*Sweep, error) {
	s := &Sweep{
		Dir:         dir,
		Model:       raw.Model,
		IndexStart:  raw.IndexStart,
		WorkdirBase: raw.WorkdirBase,
		Persist:     true,
		Reuse:       raw.Reuse,
		LogFile:     resolve(dir, raw.LogFile),
		ResultsFile: resolve(dir, raw.ResultsFile),
		Samples:     raw.Samples,
	}
	if raw.Persist != nil {
		s.Persist = *raw.Persist
	}

	switch {
	case raw.Model != "" && raw.Command != nil:
		return nil, fmt.Errorf("%w: model and command are mutually exclusive", ErrInvalid)
	case raw.Model == "" && raw.Command == nil:
		return nil, fmt.Errorf("%w: model or command block is required", ErrInvalid)
	case raw.Command != nil:
		s.Command = commandConfig(raw.Command, dir)
	}

	if len(raw.Hosts) > 0 {
		if raw.Workers != 0 {
			return nil, fmt.Errorf("%w: workers and host blocks are mutually exclusive", ErrInvalid)
		}
		for _, h := range raw.Hosts {
			s.Workers.Hosts = append(s.Workers.Hosts, model.Host{Name: h.Name, Processors: h.Processors})
		}
	} else {
		s.Workers.Count = raw.Workers
	}

	if len(raw.Parameters) == 0 {
		return nil, fmt.Errorf("%w: no parameter blocks", ErrInvalid)
	}
	for _, p := range raw.Parameters {
		par, err := parameter(p, raw.Samples == nil)
		if err != nil {
			return nil, err
		}
		s.Parameters = append(s.Parameters, par)
	}

	observed := make([]float64, 0, len(raw.Observations))
	for _, o := range raw.Observations {
		s.ObsNames = append(s.ObsNames, o.Name)
		if o.Value != nil {
			observed = append(observed, *o.Value)
		}
	}
	if len(observed) == len(raw.Observations) && len(observed) > 0 {
		s.Observed = observed
	}
	if s.Command != nil {
		s.Command.Outputs = s.ObsNames
	}

	if raw.Indices != nil {
		s.Indices = make([]model.SampleIndex, len(raw.Indices))
		for i, idx := range raw.Indices {
			s.Indices[i] = model.SampleIndex(idx)
		}
	}

	var err error
	if s.Args, err = nativeList(raw.Args); err != nil {
		return nil, fmt.Errorf("%w: args: %v", ErrInvalid, err)
	}
	if s.Kwargs, err = nativeMap(raw.Kwargs); err != nil {
		return nil, fmt.Errorf("%w: kwargs: %v", ErrInvalid, err)
	}
	return s, nil
}

// parameter converts a block. Bounds and nvals are only required when the
// sweep generates its samples from the parameter blocks.
func parameter(p parameterBlock, study bool) (sampleset.Parameter, error) {
	par := sampleset.Parameter{Name: p.Name, Fixed: p.Fixed, NVals: 1}
	if p.Value != nil {
		par.Value = *p.Value
	}
	if p.Min != nil {
		par.Min = *p.Min
	}
	if p.Max != nil {
		par.Max = *p.Max
	}
	if p.NVals != nil {
		par.NVals = *p.NVals
	}
	if !study || par.Fixed || par.NVals == 1 {
		if p.Value == nil && study {
			return par, fmt.Errorf("%w: parameter %q needs a value", ErrInvalid, p.Name)
		}
		return par, nil
	}
	if p.Min == nil || p.Max == nil {
		return par, fmt.Errorf("%w: parameter %q needs min and max", ErrInvalid, p.Name)
	}
	if par.Min > par.Max {
		return par, fmt.Errorf("%w: parameter %q has min %g above max %g", ErrInvalid, p.Name, par.Min, par.Max)
	}
	return par, nil
}

func commandConfig(c *commandBlock, dir string) *command.Config {
	cfg := &command.Config{
		Run:        c.Run,
		Args:       c.Args,
		OutputFile: c.OutputFile,
	}
	// Commands run inside the sample directory, so explicit relative paths
	// must be made absolute against the sweep file.
	if strings.HasPrefix(c.Run, "./") || strings.HasPrefix(c.Run, "../") {
		cfg.Run = filepath.Join(dir, c.Run)
	}
	for k, v := range c.Env {
		cfg.Env = append(cfg.Env, k+"="+v)
	}
	for _, t := range c.Templates {
		cfg.Templates = append(cfg.Templates, command.TemplateConfig{
			Source: resolve(dir, t.Source),
			Target: t.Target,
			Marker: t.Marker,
		})
	}
	return cfg
}

// ParamNames returns the parameter names in declaration order.
func (s *Sweep) ParamNames() []string {
	names := make([]string, len(s.Parameters))
	for i, p := range s.Parameters {
		names[i] = p.Name
	}
	return names
}

// SampleSet builds the sweep's sample set: the explicit samples when given,
// otherwise the full parameter grid.
func (s *Sweep) SampleSet(name string) (*sampleset.SampleSet, error) {
	var (
		set *sampleset.SampleSet
		err error
	)
	if s.Samples != nil {
		set, err = sampleset.New(name, s.ParamNames(), s.Samples, s.IndexStart)
	} else {
		set, err = sampleset.ParStudy(name, s.Parameters)
		if err == nil && s.IndexStart != 0 {
			set, err = sampleset.New(name, set.ParNames, set.Samples, s.IndexStart)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if s.Indices != nil {
		if err := set.SetIndices(s.Indices); err != nil {
			return nil, err
		}
	}
	set.ObsNames = s.ObsNames
	return set, nil
}

// Request returns the engine request for the sweep without its parameter
// sets, which SampleSet.Run fills in. defaultWorkers sizes the pool when the
// file names neither workers nor hosts.
func (s *Sweep) Request(defaultWorkers int, logger *slog.Logger) (engine.Request, error) {
	req := engine.Request{
		Model:       s.Model,
		ObsNames:    s.ObsNames,
		Workers:     s.Workers,
		WorkdirBase: s.WorkdirBase,
		BaseDir:     s.Dir,
		Persist:     s.Persist,
		Reuse:       s.Reuse,
		Args:        s.Args,
		Kwargs:      s.Kwargs,
	}
	if req.Workers.Count == 0 && len(req.Workers.Hosts) == 0 {
		req.Workers = model.Workers(defaultWorkers)
	}
	if s.Command != nil {
		m, err := command.New(*s.Command, logger)
		if err != nil {
			return req, err
		}
		req.Model = "command"
		req.Func = m
	}
	return req, nil
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func nativeList(v cty.Value) ([]any, error) {
	n, err := toNative(v)
	if err != nil || n == nil {
		return nil, err
	}
	list, ok := n.([]any)
	if !ok {
		return nil, fmt.Errorf("want a list, got %s", v.Type().FriendlyName())
	}
	return list, nil
}

func nativeMap(v cty.Value) (map[string]any, error) {
	n, err := toNative(v)
	if err != nil || n == nil {
		return nil, err
	}
	m, ok := n.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("want an object, got %s", v.Type().FriendlyName())
	}
	return m, nil
}

// evalContext exposes the environment as env.NAME and a few functions for
// building sample lists.
func evalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && hclsyntax.ValidIdentifier(k) {
			env[k] = cty.StringVal(v)
		}
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(env),
		},
		Functions: map[string]function.Function{
			"concat": stdlib.ConcatFunc,
			"format": stdlib.FormatFunc,
			"length": stdlib.LengthFunc,
			"max":    stdlib.MaxFunc,
			"min":    stdlib.MinFunc,
			"range":  stdlib.RangeFunc,
		},
	}
}
