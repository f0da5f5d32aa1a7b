package store

import (
	"time"

	"github.com/google/uuid"
)

// Run status values.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// DeviceRecord identifies the device a run executed on.
type DeviceRecord struct {
	Driver   string `json:"driver"`
	Platform string `json:"platform"`
	Name     string `json:"name"`
	Type     string `json:"type"`
}

// Run is the persisted record of one blur invocation.
type Run struct {
	// ID is a random UUID assigned by NewRun
	ID string `json:"id"`

	InputPath  string `json:"inputPath"`
	OutputPath string `json:"outputPath,omitempty"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`

	// KernelRadius is the R the kernel was generated for
	KernelRadius int     `json:"radius"`
	Sigma        float64 `json:"sigma"`
	LocalSize    [2]int  `json:"localSize"`

	Device DeviceRecord `json:"device"`

	// Stages maps pipeline states to the time spent reaching them, in ms
	Stages map[string]float64 `json:"stages,omitempty"`

	// MaxDeviation is the largest per-channel difference from the host
	// reference, or -1 when the run was not verified
	MaxDeviation int `json:"maxDeviation"`

	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	Duration  float64   `json:"durationMs"`
}

// RunInfo is the listing view of a Run.
type RunInfo struct {
	ID        string    `json:"id"`
	InputPath string    `json:"inputPath"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Device    string    `json:"device"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"startedAt"`
	Duration  float64   `json:"durationMs"`
}

// NewRun creates a running record with a fresh ID.
func NewRun(inputPath string, radius int, sigma float64) *Run {
	return &Run{
		ID:           uuid.NewString(),
		InputPath:    inputPath,
		KernelRadius: radius,
		Sigma:        sigma,
		MaxDeviation: -1,
		Status:       StatusRunning,
		StartedAt:    time.Now(),
	}
}

// Finish stamps the duration and final status.
func (r *Run) Finish(err error) {
	r.Duration = float64(time.Since(r.StartedAt).Microseconds()) / 1000
	if err != nil {
		r.Status = StatusFailed
		r.Error = err.Error()
		return
	}
	r.Status = StatusSucceeded
}

// ToInfo converts a Run to its listing view.
func (r *Run) ToInfo() RunInfo {
	return RunInfo{
		ID:        r.ID,
		InputPath: r.InputPath,
		Width:     r.Width,
		Height:    r.Height,
		Device:    r.Device.Name,
		Status:    r.Status,
		StartedAt: r.StartedAt,
		Duration:  r.Duration,
	}
}

// Validate checks that the record can be stored.
func (r *Run) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if err := uuid.Validate(r.ID); err != nil {
		return &ValidationError{Field: "ID", Reason: "must be a UUID"}
	}
	if r.InputPath == "" {
		return &ValidationError{Field: "InputPath", Reason: "cannot be empty"}
	}
	if r.KernelRadius < 0 {
		return &ValidationError{Field: "KernelRadius", Reason: "cannot be negative"}
	}
	if r.Sigma <= 0 {
		return &ValidationError{Field: "Sigma", Reason: "must be positive"}
	}
	switch r.Status {
	case StatusRunning, StatusSucceeded, StatusFailed:
	default:
		return &ValidationError{Field: "Status", Reason: "unknown value " + r.Status}
	}
	if r.StartedAt.IsZero() {
		return &ValidationError{Field: "StartedAt", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents a run record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
