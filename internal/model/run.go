package model

import "time"

// RunStatus represents the current state of an analysis run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusNoData   RunStatus = "no_data"
	RunStatusFailed   RunStatus = "failed"
)

// RunParams records the knobs a run was started with, so stored results
// stay reproducible.
type RunParams struct {
	Source     string `json:"source"`
	CRS        string `json:"crs,omitempty"`
	GridPoints int    `json:"grid_points"`
	Workers    int    `json:"workers"`
}

// Run represents a single settlement analysis over one telemetry table.
type Run struct {
	ID        string     `json:"id"`
	Params    RunParams  `json:"params"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	Individuals int         `json:"individuals"`
	Fixes       int         `json:"fixes"`
	Samples     int         `json:"samples"`
	Fit         *FitResult  `json:"fit,omitempty"`
	Settlement  *Settlement `json:"settlement,omitempty"`
	Error       string      `json:"error,omitempty"`
}
