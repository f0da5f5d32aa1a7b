package blur

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDeviceUnavailable indicates no GPU or CPU device could be obtained.
	ErrDeviceUnavailable = errors.New("compute device unavailable")
	// ErrAllocation indicates a device buffer could not be allocated.
	ErrAllocation = errors.New("device buffer allocation failed")
	// ErrTransfer indicates a host-device copy failed.
	ErrTransfer = errors.New("host-device transfer failed")
	// ErrCompile indicates the kernel program failed to build.
	ErrCompile = errors.New("kernel program build failed")
	// ErrDispatch indicates a kernel enqueue or execution failed.
	ErrDispatch = errors.New("kernel dispatch failed")
	// ErrInvalidImage indicates an image whose buffer does not match its shape.
	ErrInvalidImage = errors.New("invalid image")
	// ErrInvalidState indicates a pipeline step called out of order.
	ErrInvalidState = errors.New("invalid pipeline state")
)

// Error describes a failed pipeline stage. Kind is one of the package
// sentinels; Err is the underlying driver error.
type Error struct {
	Kind       error
	Stage      string
	Pass       Pass
	Diagnostic string
	Err        error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Stage)
	if e.Pass != 0 {
		fmt.Fprintf(&sb, " (%s)", e.Pass)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Kind.Error())
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	if e.Diagnostic != "" && (e.Err == nil || !strings.Contains(e.Err.Error(), e.Diagnostic)) {
		sb.WriteString("\n")
		sb.WriteString(e.Diagnostic)
	}
	return sb.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func stageError(kind error, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}
