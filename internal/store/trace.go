package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const traceFile = "trace.jsonl"

// TraceEntry is one pipeline state transition, one JSON line in
// trace.jsonl.
type TraceEntry struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	ElapsedMS float64   `json:"elapsedMs"`
}

// TraceWriter records the transitions of a single run. Entries go straight
// to the file, so a run that dies mid-pipeline leaves the transitions it
// reached.
type TraceWriter struct {
	file *os.File
	enc  *json.Encoder
}

// NewTraceWriter creates (or truncates) <baseDir>/runs/<runID>/trace.jsonl.
func NewTraceWriter(baseDir, runID string) (*TraceWriter, error) {
	runDir := filepath.Join(baseDir, "runs", runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	file, err := os.Create(filepath.Join(runDir, traceFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}
	return &TraceWriter{file: file, enc: json.NewEncoder(file)}, nil
}

// Write appends one entry.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	if err := tw.enc.Encode(entry); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	return nil
}

// Close closes the trace file.
func (tw *TraceWriter) Close() error {
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// ReadTrace returns every entry of a run's trace in the order written.
// A missing trace is a *NotFoundError. A torn final line is dropped and
// the entries before it are returned.
func ReadTrace(baseDir, runID string) ([]TraceEntry, error) {
	file, err := os.Open(filepath.Join(baseDir, "runs", runID, traceFile))
	if os.IsNotExist(err) {
		return nil, &NotFoundError{RunID: runID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer file.Close()

	var entries []TraceEntry
	dec := json.NewDecoder(file)
	for {
		var entry TraceEntry
		err := dec.Decode(&entry)
		switch {
		case err == nil:
			entries = append(entries, entry)
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return entries, nil
		default:
			return entries, fmt.Errorf("failed to decode trace entry %d: %w", len(entries)+1, err)
		}
	}
}
