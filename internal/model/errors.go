package model

import (
	"errors"
	"fmt"
)

// ErrorClass groups failures by how the pipeline reacts to them.
type ErrorClass string

const (
	// ClassData covers gaps, unit mismatches and balance violations. Aborts the run.
	ClassData ErrorClass = "DATA_ERROR"
	// ClassModelFit covers merit-order segments that cannot be estimated.
	ClassModelFit ErrorClass = "MODEL_FIT_ERROR"
	// ClassOptimization covers per-day LP failures. Recovered at day granularity.
	ClassOptimization ErrorClass = "OPTIMIZATION_ERROR"
	// ClassConfig covers invalid parameters, rejected before computation.
	ClassConfig ErrorClass = "CONFIG_ERROR"
)

// Error is the typed error returned across package boundaries.
type Error struct {
	Class   ErrorClass
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Class, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s", e.Class, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func DataErrorf(code, format string, args ...any) *Error {
	return &Error{Class: ClassData, Code: code, Message: fmt.Sprintf(format, args...)}
}

func ConfigErrorf(code, format string, args ...any) *Error {
	return &Error{Class: ClassConfig, Code: code, Message: fmt.Sprintf(format, args...)}
}

// FitError wraps cause (usually a sentinel) as a model-fit error.
func FitError(code string, cause error, format string, args ...any) *Error {
	return &Error{Class: ClassModelFit, Code: code, Message: fmt.Sprintf(format, args...), Err: cause}
}

// OptimizationError wraps cause as an optimization error.
func OptimizationError(code string, cause error, format string, args ...any) *Error {
	return &Error{Class: ClassOptimization, Code: code, Message: fmt.Sprintf(format, args...), Err: cause}
}

// ClassOf returns the class of the first *Error in err's chain.
func ClassOf(err error) (ErrorClass, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Class, true
	}
	return "", false
}

// IsClass reports whether err carries the given class.
func IsClass(err error, class ErrorClass) bool {
	c, ok := ClassOf(err)
	return ok && c == class
}
