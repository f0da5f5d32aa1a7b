package store

// Store defines the interface for run artifact persistence.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if a run doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRun atomically writes the run record. An existing record for the
	// same ID is overwritten.
	SaveRun(run *Run) error

	// SaveKernel stores the generated kernel source next to the run record.
	SaveKernel(runID, source string) error

	// LoadRun retrieves the run record for the given ID.
	// Returns ErrNotFound if no record exists.
	LoadRun(runID string) (*Run, error)

	// ListRuns returns metadata for all stored runs, newest first.
	ListRuns() ([]RunInfo, error)

	// DeleteRun removes the run record and all associated artifacts:
	//   - run.json
	//   - kernel.cl
	//   - trace.jsonl
	//
	// Returns ErrNotFound if no run exists for this ID.
	DeleteRun(runID string) error
}

// ErrNotFound is returned when a requested run does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run not found: " + e.RunID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
