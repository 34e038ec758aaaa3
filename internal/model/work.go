package model

import (
	"fmt"
	"strings"
)

// sentinelPosition marks the shutdown work item. Real positions are never negative.
const sentinelPosition = -1

// RuleWidth is the width of the dash rule delimiting failure blocks.
const RuleWidth = 60

// WorkItem is one unit of work handed to a worker.
type WorkItem struct {
	Params   ParameterSet
	Index    SampleIndex
	Position int
}

// Sentinel returns the work item that tells a worker to exit.
func Sentinel() WorkItem {
	return WorkItem{Position: sentinelPosition}
}

// IsSentinel reports whether w is the shutdown marker.
func (w WorkItem) IsSentinel() bool {
	return w.Position == sentinelPosition
}

// Failure describes a failed sample run.
type Failure struct {
	Index  SampleIndex
	Detail string
}

// Error implements error.
func (f Failure) Error() string {
	return fmt.Sprintf("sample %s: %s", f.Index, firstLine(f.Detail))
}

// Block formats the failure as a rule-delimited diagnostic block:
//
//	------------------------------------------------------------
//	Exception in job <index>:
//	<detail>
//	------------------------------------------------------------
func (f Failure) Block() string {
	rule := strings.Repeat("-", RuleWidth)
	var b strings.Builder
	b.WriteString(rule)
	b.WriteByte('\n')
	if f.Index != "" {
		fmt.Fprintf(&b, "Exception in job %s:\n", f.Index)
	} else {
		b.WriteString("Exception in model call:\n")
	}
	b.WriteString(f.Detail)
	if !strings.HasSuffix(f.Detail, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(rule)
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// RunStatus is the outcome of one model invocation: either a result vector or a Failure.
type RunStatus struct {
	Values  []float64
	Failure *Failure
}

// Success returns a successful status. A nil vector means the model produced no output.
func Success(values []float64) RunStatus {
	return RunStatus{Values: values}
}

// Failed returns a failed status.
func Failed(f Failure) RunStatus {
	return RunStatus{Failure: &f}
}

// OK reports whether the run succeeded.
func (s RunStatus) OK() bool {
	return s.Failure == nil
}

// Result is what a worker reports for one work item.
type Result struct {
	Position int
	Index    SampleIndex
	Status   RunStatus
	// Duration of the model invocation in milliseconds.
	DurationMS int
}
