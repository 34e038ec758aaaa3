package store

import (
	"context"
	"errors"

	"github.com/seantiz/matk/internal/model"
)

// ErrInvalidTransition is returned when a sweep status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// SweepStats holds aggregate sweep statistics.
type SweepStats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	CountByModel  map[string]int `json:"count_by_model"`
	TotalSamples  int            `json:"total_samples"`
	FailedSamples int            `json:"failed_samples"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for sweeps.
type Store interface {
	CreateSweep(ctx context.Context, sw *model.Sweep) error
	GetSweep(ctx context.Context, id string) (*model.Sweep, error)
	ListSweeps(ctx context.Context, limit, offset int) ([]*model.Sweep, int, error)
	UpdateSweepStatus(ctx context.Context, id, status string) error
	UpdateSweep(ctx context.Context, sw *model.Sweep) error
	RecordSample(ctx context.Context, rec *model.SampleRecord) error
	GetSamples(ctx context.Context, sweepID string) ([]model.SampleRecord, error)
	GetSweepStats(ctx context.Context) (*SweepStats, error)
	InsertLogLine(ctx context.Context, sweepID string, seq int, line string) error
	GetLogLines(ctx context.Context, sweepID string) ([]model.LogLine, error)
	Close() error
}
