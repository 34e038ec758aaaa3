package sweepfile

import "github.com/zclconf/go-cty/cty"

// fileSchema is the top-level structure of a sweep file for decoding.
type fileSchema struct {
	Model       string      `hcl:"model,optional"`
	Workers     int         `hcl:"workers,optional"`
	IndexStart  int         `hcl:"index_start,optional"`
	WorkdirBase string      `hcl:"workdir_base,optional"`
	Persist     *bool       `hcl:"persist,optional"`
	Reuse       bool        `hcl:"reuse,optional"`
	LogFile     string      `hcl:"log_file,optional"`
	ResultsFile string      `hcl:"results_file,optional"`
	Samples     [][]float64 `hcl:"samples,optional"`
	Indices     []string    `hcl:"indices,optional"`
	Args        cty.Value   `hcl:"args,optional"`
	Kwargs      cty.Value   `hcl:"kwargs,optional"`

	Hosts        []hostBlock        `hcl:"host,block"`
	Parameters   []parameterBlock   `hcl:"parameter,block"`
	Observations []observationBlock `hcl:"observation,block"`
	Command      *commandBlock      `hcl:"command,block"`
}

type hostBlock struct {
	Name       string `hcl:"name,label"`
	Processors []int  `hcl:"processors"`
}

type parameterBlock struct {
	Name  string   `hcl:"name,label"`
	Value *float64 `hcl:"value,optional"`
	Min   *float64 `hcl:"min,optional"`
	Max   *float64 `hcl:"max,optional"`
	NVals *int     `hcl:"nvals,optional"`
	Fixed bool     `hcl:"fixed,optional"`
}

type observationBlock struct {
	Name  string   `hcl:"name,label"`
	Value *float64 `hcl:"value,optional"`
}

type commandBlock struct {
	Run        string            `hcl:"run"`
	Args       []string          `hcl:"args,optional"`
	Env        map[string]string `hcl:"env,optional"`
	OutputFile string            `hcl:"output_file,optional"`
	Templates  []templateBlock   `hcl:"template,block"`
}

type templateBlock struct {
	Source string `hcl:"source,label"`
	Target string `hcl:"target,optional"`
	Marker string `hcl:"marker,optional"`
}
