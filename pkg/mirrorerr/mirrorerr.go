// Package mirrorerr defines the failure categories reported by mirror operations.
package mirrorerr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPath is a source path that is not inside the configured source root.
	ErrInvalidPath = errors.New("invalid path")
	// ErrTranscodeFailure is a transcoder that failed on a file.
	ErrTranscodeFailure = errors.New("transcode failure")
	// ErrIOFailure is a filesystem operation on the mirror that failed.
	ErrIOFailure = errors.New("io failure")
	// ErrUnsupportedBehavior is a non-transcoding behavior the platform cannot perform.
	ErrUnsupportedBehavior = errors.New("unsupported behavior")
)

// Error carries the category, the operation and the path that failed.
type Error struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
}

// Unwrap exposes both the category sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op, path string, err error) error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// InvalidPath reports a path outside the source root.
func InvalidPath(op, path string, err error) error {
	return newError(ErrInvalidPath, op, path, err)
}

// Transcode wraps a transcoder failure.
func Transcode(op, path string, err error) error {
	return newError(ErrTranscodeFailure, op, path, err)
}

// IO wraps a filesystem failure. Errors that already carry a category are
// returned unchanged.
func IO(op, path string, err error) error {
	var categorized *Error
	if errors.As(err, &categorized) {
		return err
	}
	return newError(ErrIOFailure, op, path, err)
}

// Unsupported reports a behavior the platform refused.
func Unsupported(op, path string, err error) error {
	return newError(ErrUnsupportedBehavior, op, path, err)
}
