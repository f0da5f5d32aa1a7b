package store

import (
	"errors"
	"testing"
	"time"
)

func TestNewRun(t *testing.T) {
	a := NewRun("in.png", 8, 3)
	b := NewRun("in.png", 8, 3)
	if a.ID == b.ID {
		t.Fatal("NewRun returned duplicate IDs")
	}
	if a.Status != StatusRunning || a.MaxDeviation != -1 {
		t.Fatalf("unexpected initial state: %+v", a)
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("fresh run invalid: %v", err)
	}
}

func TestRunFinish(t *testing.T) {
	run := NewRun("in.png", 8, 3)
	run.StartedAt = time.Now().Add(-10 * time.Millisecond)
	run.Finish(errors.New("kernel dispatch failed"))

	if run.Status != StatusFailed || run.Error != "kernel dispatch failed" {
		t.Fatalf("status %s error %q", run.Status, run.Error)
	}
	if run.Duration < 10 {
		t.Fatalf("duration %.3fms, want >= 10", run.Duration)
	}

	ok := NewRun("in.png", 8, 3)
	ok.Finish(nil)
	if ok.Status != StatusSucceeded || ok.Error != "" {
		t.Fatalf("status %s error %q", ok.Status, ok.Error)
	}
}

func TestRunValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Run)
		field  string
	}{
		{"empty id", func(r *Run) { r.ID = "" }, "ID"},
		{"empty input", func(r *Run) { r.InputPath = "" }, "InputPath"},
		{"negative radius", func(r *Run) { r.KernelRadius = -1 }, "KernelRadius"},
		{"zero sigma", func(r *Run) { r.Sigma = 0 }, "Sigma"},
		{"bad status", func(r *Run) { r.Status = "paused" }, "Status"},
		{"zero start", func(r *Run) { r.StartedAt = time.Time{} }, "StartedAt"},
	}

	for _, tt := range tests {
		run := NewRun("in.png", 8, 3)
		tt.mutate(run)
		var verr *ValidationError
		if err := run.Validate(); !errors.As(err, &verr) || verr.Field != tt.field {
			t.Errorf("%s: got %v, want error on %s", tt.name, err, tt.field)
		}
	}
}

func TestRunToInfo(t *testing.T) {
	run := NewRun("in.png", 4, 2)
	run.Width, run.Height = 10, 20
	run.Device.Name = "gpu0"
	info := run.ToInfo()
	if info.ID != run.ID || info.Width != 10 || info.Height != 20 || info.Device != "gpu0" || info.Status != StatusRunning {
		t.Fatalf("unexpected info %+v", info)
	}
}
