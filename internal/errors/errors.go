package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeAllocation ErrorType = "Allocation"
	ErrorTypeMisuse     ErrorType = "Misuse"
	ErrorTypeTask       ErrorType = "Task"
	ErrorTypeTimeout    ErrorType = "Timeout"
)

// AllocationError reports a pool factory that failed to produce an object.
// It is the only error in this subsystem expected to surface to the
// immediate caller; pool state is left unchanged when it occurs.
type AllocationError struct {
	Pool string
	Err  error
}

// Error implements the error interface
func (e *AllocationError) Error() string {
	return fmt.Sprintf("pool %q: factory failed: %v", e.Pool, e.Err)
}

// Unwrap returns the underlying factory error
func (e *AllocationError) Unwrap() error {
	return e.Err
}

// Type returns the error category
func (e *AllocationError) Type() ErrorType {
	return ErrorTypeAllocation
}

// NewAllocationError wraps a factory failure for the named pool
func NewAllocationError(pool string, err error) *AllocationError {
	return &AllocationError{Pool: pool, Err: err}
}

// IsAllocationError reports whether err is (or wraps) an AllocationError
func IsAllocationError(err error) bool {
	var ae *AllocationError
	return errors.As(err, &ae)
}

// TaskError records a cleanup task action that failed. It is caught at
// the task boundary and logged; it never aborts sibling tasks or
// dependents and never propagates past the coordinator.
type TaskError struct {
	TaskID      string
	Description string
	Err         error
}

func (e *TaskError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("cleanup task %q (%s) failed: %v", e.TaskID, e.Description, e.Err)
	}
	return fmt.Sprintf("cleanup task %q failed: %v", e.TaskID, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Type returns the error category
func (e *TaskError) Type() ErrorType {
	return ErrorTypeTask
}

// TimeoutError marks asynchronous external work that exceeded its
// deadline. It is used only at the boundary with outside collaborators,
// never for this subsystem's own scheduling.
type TimeoutError struct {
	Op      string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation %q timed out after %s", e.Op, e.Elapsed)
}

// Type returns the error category
func (e *TimeoutError) Type() ErrorType {
	return ErrorTypeTimeout
}

// IsTimeout reports whether err is (or wraps) a TimeoutError
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
