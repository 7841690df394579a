package device

import (
	"errors"
	"fmt"
)

// shapeError signals input that was rejected before any device I/O.
type shapeError struct{ msg string }

func (e shapeError) Error() string { return e.msg }

// ErrShape constructs a shape/validation error.
func ErrShape(format string, a ...any) error {
	return shapeError{msg: fmt.Sprintf(format, a...)}
}

// IsShapeMismatch reports whether err is an input validation failure
// (bad rank, or dimensions disagreeing with the device) for 400 mapping.
func IsShapeMismatch(err error) bool {
	var se shapeError
	return errors.As(err, &se)
}

// ToolFailureError reports a nonzero exit from the external build/flash tool.
// Captured output is kept verbatim for diagnosis; there is no retry.
type ToolFailureError struct {
	Cmd      string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *ToolFailureError) Error() string {
	return fmt.Sprintf("idf.py failed\ncmd: %s\nrc: %d\nstdout:\n%s\nstderr:\n%s",
		e.Cmd, e.ExitCode, e.Stdout, e.Stderr)
}

// IsToolFailure reports whether err is an external toolchain failure.
func IsToolFailure(err error) bool {
	var te *ToolFailureError
	return errors.As(err, &te)
}
