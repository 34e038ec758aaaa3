package command

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/seantiz/matk/internal/model"
)

// DefaultMarker delimits parameter placeholders when a template declares none.
const DefaultMarker = "$"

// TemplateConfig names a template file and the model input file it renders to.
type TemplateConfig struct {
	Source string
	// Target is relative to the sample's working directory.
	Target string
	Marker string
}

// Template is a model input file with placeholders of the form
// "<marker> name <marker>". A first line of the form "ptf <marker>" sets the
// marker and is not part of the rendered output.
type Template struct {
	target string
	marker string
	body   string
	// leftover finds placeholders that no parameter filled.
	leftover *regexp.Regexp
}

// LoadTemplate reads and parses a template file.
func LoadTemplate(cfg TemplateConfig) (*Template, error) {
	raw, err := os.ReadFile(cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	if cfg.Target == "" {
		return nil, fmt.Errorf("template %s: no target file", cfg.Source)
	}
	return ParseTemplate(cfg.Target, cfg.Marker, raw)
}

// ParseTemplate builds a Template from raw file contents.
func ParseTemplate(target, marker string, raw []byte) (*Template, error) {
	body := string(raw)
	sc := bufio.NewScanner(bytes.NewReader(raw))
	if sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 2 && fields[0] == "ptf" {
			marker = fields[1]
			_, rest, _ := strings.Cut(body, "\n")
			body = rest
		}
	}
	if marker == "" {
		marker = DefaultMarker
	}
	m := regexp.QuoteMeta(marker)
	return &Template{
		target:   target,
		marker:   marker,
		body:     body,
		leftover: regexp.MustCompile(m + `\s*([A-Za-z_][\w.]*)\s*` + m),
	}, nil
}

// Render substitutes every parameter value into the template body.
func (t *Template) Render(params model.ParameterSet) (string, error) {
	m := regexp.QuoteMeta(t.marker)
	out := t.body
	for i, name := range params.Names {
		re, err := regexp.Compile(m + `\s*` + regexp.QuoteMeta(name) + `\s*` + m)
		if err != nil {
			return "", fmt.Errorf("template %s: %w", t.target, err)
		}
		v := strconv.FormatFloat(params.Values[i], 'g', -1, 64)
		out = re.ReplaceAllLiteralString(out, v)
	}
	if loc := t.leftover.FindStringSubmatch(out); loc != nil {
		return "", fmt.Errorf("template %s: no value for parameter %q", t.target, loc[1])
	}
	return out, nil
}

// Write renders the template into dir.
func (t *Template) Write(dir string, params model.ParameterSet) error {
	out, err := t.Render(params)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, t.target)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
