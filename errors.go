package anvil

import (
	"errors"
	"fmt"
	"strings"
)

// ErrClosed is returned by calls on a session that has been closed.
var ErrClosed = errors.New("session is closed")

// ConfigError is an unusable session configuration: unsupported format,
// incompatible flags, missing mandatory flag. Detected at build time, never
// retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Reason
}

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// MissingInputError means the artifact requires an input the session cannot
// provide.
type MissingInputError struct {
	Name string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("artifact requires input %q, but it doesn't exist in the session input contract", e.Name)
}

// MissingOutputError means the artifact declares an output the session
// contract doesn't know, or fails to provide one the contract requires.
type MissingOutputError struct {
	Name     string
	Declared bool // true when the artifact declares an output unknown to the contract
}

func (e *MissingOutputError) Error() string {
	if e.Declared {
		return fmt.Sprintf("artifact declares output %q, but it doesn't exist in the session output contract", e.Name)
	}
	return fmt.Sprintf("artifact does not provide output %q required by the session output contract", e.Name)
}

// MismatchError is a shape or dtype disagreement between the artifact's
// declared contract and the session's for the same name.
type MismatchError struct {
	Kind string // "input" or "output"
	Name string
	// Field is "shape" or "dtype".
	Field string
	Want  string // the session side
	Got   string // the artifact side
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("artifact requires %s %q with %s %s, but the session contract declares %s",
		e.Kind, e.Name, e.Field, e.Got, e.Want)
}

// NumericError reports NaN or Inf values found in weight buffers after a
// call. The call's outputs were still written before the scan.
type NumericError struct {
	Names []string
}

func (e *NumericError) Error() string {
	return "nan or inf found in weights: " + strings.Join(e.Names, ", ")
}
