// Package results reads and writes the plain-text sweep results file:
//
//	Number of parameters: <np>
//	Number of responses: <nr>
//	index    <par1> ... <parN> <resp1> ... <respM>
//	<index>  <value> ...
//
// The index is left-justified in 8 columns and every value is right-justified
// in a 16-column field. Values use the shortest representation that parses
// back to the same float64, so a file read back reproduces the written
// numbers exactly. Missing values are written as NaN.
package results

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/seantiz/matk/internal/model"
)

const (
	parPrefix  = "Number of parameters:"
	respPrefix = "Number of responses:"
	indexLabel = "index"
)

// ErrFormat is returned when a results file does not follow the layout above.
var ErrFormat = errors.New("malformed results file")

// Table is the in-memory form of a results file.
type Table struct {
	ParNames  []string
	ObsNames  []string
	Indices   []model.SampleIndex
	Samples   [][]float64
	Responses model.ResultMatrix
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Samples)
}

// Header formats the column header line, without a trailing newline.
func Header(parNames, obsNames []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-8s", indexLabel)
	for _, n := range parNames {
		fmt.Fprintf(&b, " %16s", n)
	}
	for _, n := range obsNames {
		fmt.Fprintf(&b, " %16s", n)
	}
	return b.String()
}

// Row formats one sample row, without a trailing newline.
func Row(index model.SampleIndex, params, responses []float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-8s", index)
	for _, v := range params {
		fmt.Fprintf(&b, " %16s", FormatValue(v))
	}
	for _, v := range responses {
		fmt.Fprintf(&b, " %16s", FormatValue(v))
	}
	return b.String()
}

// FormatValue renders v in its shortest round-trip form.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Write writes t in results-file layout.
func Write(w io.Writer, t *Table) error {
	if err := t.validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s %d\n", parPrefix, len(t.ParNames))
	fmt.Fprintf(bw, "%s %d\n", respPrefix, len(t.ObsNames))
	bw.WriteString(Header(t.ParNames, t.ObsNames))
	bw.WriteByte('\n')
	for i := range t.Samples {
		var resp []float64
		if len(t.ObsNames) > 0 {
			resp = t.Responses[i]
		}
		bw.WriteString(Row(t.Indices[i], t.Samples[i], resp))
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

// WriteFile writes t to path, replacing any existing file.
func WriteFile(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create results file: %w", err)
	}
	if err := Write(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Read parses a results file.
func Read(r io.Reader) (*Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	next := func() (string, bool) {
		for sc.Scan() {
			line++
			if s := strings.TrimSpace(sc.Text()); s != "" {
				return s, true
			}
		}
		return "", false
	}

	np, err := readCount(next, parPrefix, &line)
	if err != nil {
		return nil, err
	}
	nr, err := readCount(next, respPrefix, &line)
	if err != nil {
		return nil, err
	}

	hdr, ok := next()
	if !ok {
		return nil, fmt.Errorf("%w: missing header", ErrFormat)
	}
	names := strings.Fields(hdr)
	if len(names) != 1+np+nr || names[0] != indexLabel {
		return nil, fmt.Errorf("%w: line %d: header has %d columns, want %d", ErrFormat, line, len(names), 1+np+nr)
	}

	t := &Table{
		ParNames: names[1 : 1+np],
		ObsNames: names[1+np:],
	}
	for {
		s, ok := next()
		if !ok {
			break
		}
		fields := strings.Fields(s)
		if len(fields) != 1+np+nr {
			return nil, fmt.Errorf("%w: line %d: %d columns, want %d", ErrFormat, line, len(fields), 1+np+nr)
		}
		vals := make([]float64, np+nr)
		for i, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: column %d: %v", ErrFormat, line, i+2, err)
			}
			vals[i] = v
		}
		t.Indices = append(t.Indices, model.SampleIndex(fields[0]))
		t.Samples = append(t.Samples, vals[:np:np])
		if nr > 0 {
			t.Responses = append(t.Responses, vals[np:])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	return t, nil
}

// ReadFile parses the results file at path.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open results file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

func readCount(next func() (string, bool), prefix string, line *int) (int, error) {
	s, ok := next()
	if !ok {
		return 0, fmt.Errorf("%w: missing %q line", ErrFormat, prefix)
	}
	rest, ok := strings.CutPrefix(s, prefix)
	if !ok {
		return 0, fmt.Errorf("%w: line %d: want %q", ErrFormat, *line, prefix)
	}
	n, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: line %d: bad count %q", ErrFormat, *line, strings.TrimSpace(rest))
	}
	return n, nil
}

func (t *Table) validate() error {
	if len(t.Indices) != len(t.Samples) {
		return fmt.Errorf("results: %d indices for %d samples", len(t.Indices), len(t.Samples))
	}
	for i, row := range t.Samples {
		if len(row) != len(t.ParNames) {
			return fmt.Errorf("results: sample %d has %d values, want %d", i, len(row), len(t.ParNames))
		}
	}
	if len(t.ObsNames) == 0 {
		return nil
	}
	if len(t.Responses) != len(t.Samples) {
		return fmt.Errorf("results: %d response rows for %d samples", len(t.Responses), len(t.Samples))
	}
	for i, row := range t.Responses {
		if len(row) != len(t.ObsNames) {
			return fmt.Errorf("results: response row %d has %d values, want %d", i, len(row), len(t.ObsNames))
		}
	}
	return nil
}

// FromSamples builds a table from stored sample records in position order.
// Failed samples, and samples whose response count does not match obsNames,
// get a row of missing values.
func FromSamples(parNames, obsNames []string, recs []model.SampleRecord) *Table {
	t := &Table{
		ParNames: parNames,
		ObsNames: obsNames,
		Indices:  make([]model.SampleIndex, len(recs)),
		Samples:  make([][]float64, len(recs)),
	}
	if len(obsNames) > 0 {
		t.Responses = model.NewResultMatrix(len(recs), len(obsNames))
	}
	for i, rec := range recs {
		t.Indices[i] = rec.Index
		t.Samples[i] = rec.Params
		if t.Responses != nil && rec.Status == model.SampleSucceeded && len(rec.Values) == len(obsNames) {
			copy(t.Responses[i], rec.Values)
		}
	}
	return t
}
