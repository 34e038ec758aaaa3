package model

import "time"

// Sweep status constants.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusKilled    = "killed"
)

// Sample status constants.
const (
	SampleSucceeded = "succeeded"
	SampleFailed    = "failed"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusRunning: true,
		StatusFailed:  true,
		StatusKilled:  true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusKilled:    true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether status is a final sweep status.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusKilled
}

// LogLine represents a single persisted progress or failure line of a sweep.
type LogLine struct {
	ID        int64     `json:"id"`
	SweepID   string    `json:"sweep_id"`
	Seq       int       `json:"seq"`
	Line      string    `json:"line"`
	CreatedAt time.Time `json:"created_at"`
}

// Sweep is the persisted record of one batch submission.
type Sweep struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Model       string     `json:"model"`
	ParNames    []string   `json:"par_names"`
	ObsNames    []string   `json:"obs_names"`
	NumSamples  int        `json:"num_samples"`
	NumWorkers  int        `json:"num_workers"`
	NumFailed   int        `json:"num_failed"`
	WorkdirBase string     `json:"workdir_base,omitempty"`
	Error       string     `json:"error,omitempty"`
	DurationMS  *int       `json:"duration_ms,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// SampleRecord is the persisted outcome of one sample of a sweep.
type SampleRecord struct {
	SweepID    string      `json:"sweep_id"`
	Position   int         `json:"position"`
	Index      SampleIndex `json:"index"`
	Status     string      `json:"status"`
	Params     []float64   `json:"params"`
	Values     []float64   `json:"values,omitempty"`
	Error      string      `json:"error,omitempty"`
	DurationMS int         `json:"duration_ms"`
}
