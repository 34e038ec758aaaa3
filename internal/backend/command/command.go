// Package command runs an external simulator as a model. Each invocation is
// its own OS process started in the sample's working directory, so samples
// never share process state.
//
// Parameters reach the process three ways: as MATK_PAR_<NAME> environment
// variables, through template files rendered into the working directory,
// and as the MATK_PARAMS variable holding "name=value" pairs. Responses are
// read as whitespace-separated numbers from stdout or from an output file
// the process writes.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/seantiz/matk/internal/backend"
)

// waitDelay bounds how long Run waits for output pipes after the process is killed.
const waitDelay = 5 * time.Second

// maxStderr is how much trailing stderr is kept in a failure message.
const maxStderr = 4096

// ErrNoCommand is returned by New when no executable is configured.
var ErrNoCommand = errors.New("command model: no executable configured")

// Config describes how to launch the simulator.
type Config struct {
	Run  string
	Args []string
	// Env holds extra KEY=VALUE entries added to the inherited environment.
	Env       []string
	Templates []TemplateConfig
	// OutputFile names the file, relative to the working directory, the
	// simulator writes its responses to. Stdout is parsed when empty.
	OutputFile string
	Outputs    []string
}

// Model is a backend.Model backed by an external executable.
type Model struct {
	cfg       Config
	templates []*Template
	logger    *slog.Logger
}

var _ backend.Model = (*Model)(nil)

// New validates cfg and loads its template files.
func New(cfg Config, logger *slog.Logger) (*Model, error) {
	if cfg.Run == "" {
		return nil, ErrNoCommand
	}
	m := &Model{cfg: cfg, logger: logger}
	for _, tc := range cfg.Templates {
		tpl, err := LoadTemplate(tc)
		if err != nil {
			return nil, err
		}
		m.templates = append(m.templates, tpl)
	}
	return m, nil
}

// Describe implements backend.Describer.
func (m *Model) Describe() backend.Description {
	return backend.Description{
		Kind:    "command",
		Summary: strings.Join(append([]string{m.cfg.Run}, m.cfg.Args...), " "),
		Outputs: m.cfg.Outputs,
	}
}

// Run renders the templates, starts the simulator and parses its responses.
// Without a working directory the process runs in a temporary one that is
// removed afterwards.
func (m *Model) Run(ctx context.Context, call backend.Call) ([]float64, error) {
	dir := call.WorkDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "matk-run-")
		if err != nil {
			return nil, fmt.Errorf("create temp dir: %w", err)
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}

	for _, tpl := range m.templates {
		if err := tpl.Write(dir, call.Params); err != nil {
			return nil, err
		}
	}

	args := append([]string(nil), m.cfg.Args...)
	for _, a := range call.Args {
		args = append(args, fmt.Sprint(a))
	}

	cmd := exec.CommandContext(ctx, m.cfg.Run, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), m.cfg.Env...)
	cmd.Env = append(cmd.Env, Environ(call)...)
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	m.logger.Debug("command finished",
		"sample_index", call.Index.String(),
		"dir", dir,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err,
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("command cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("run %s: %w\n%s", m.cfg.Run, err, tail(stderr.Bytes(), maxStderr))
	}

	raw := stdout.Bytes()
	if m.cfg.OutputFile != "" {
		raw, err = os.ReadFile(filepath.Join(dir, m.cfg.OutputFile))
		if err != nil {
			return nil, fmt.Errorf("read output: %w", err)
		}
	}
	return ParseResponses(raw)
}

// Environ returns the environment entries describing one call.
func Environ(call backend.Call) []string {
	env := []string{
		"MATK_SAMPLE_INDEX=" + call.Index.String(),
		"MATK_WORKDIR=" + call.WorkDir,
	}
	pairs := make([]string, 0, call.Params.Len())
	for i, name := range call.Params.Names {
		v := strconv.FormatFloat(call.Params.Values[i], 'g', -1, 64)
		env = append(env, "MATK_PAR_"+envName(name)+"="+v)
		pairs = append(pairs, name+"="+v)
	}
	env = append(env, "MATK_PARAMS="+strings.Join(pairs, " "))
	if call.Tagged {
		env = append(env,
			"MATK_HOST="+call.Host,
			"MATK_PROCESSOR="+strconv.Itoa(call.Processor),
		)
	}
	for k, v := range call.Kwargs {
		env = append(env, "MATK_ARG_"+envName(k)+"="+fmt.Sprint(v))
	}
	return env
}

// ParseResponses reads whitespace-separated numbers. Empty output yields nil.
func ParseResponses(raw []byte) ([]float64, error) {
	fields := strings.Fields(string(raw))
	if len(fields) == 0 {
		return nil, nil
	}
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("response %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

func envName(s string) string {
	b := []byte(strings.ToUpper(s))
	for i, c := range b {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			b[i] = '_'
		}
	}
	return string(b)
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return strings.TrimSpace(string(b))
}
