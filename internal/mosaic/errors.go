package mosaic

import (
	"errors"
	"fmt"
)

// Failure kinds. Every failed operation wraps exactly one of these, and none
// of them leaves the session changed.
var (
	// ErrInsufficientOverlap: no tile shares enough matched features with the image.
	ErrInsufficientOverlap = errors.New("insufficient overlap")
	// ErrTransformNotFound: matches exist but no similarity transform fits them.
	ErrTransformNotFound = errors.New("transform not found")
	// ErrEmptyInput: nil or zero-size image.
	ErrEmptyInput = errors.New("empty input")
	// ErrPersistence: the export destination could not be written.
	ErrPersistence = errors.New("persistence failure")
)

// RegistrationError describes why an image could not be placed.
type RegistrationError struct {
	Kind      error // one of the sentinel errors above
	Reference int   // best candidate tile, -1 when none was considered
	Score     int   // correspondences with the best candidate
	Err       error // underlying cause, may be nil
}

func (e *RegistrationError) Error() string {
	msg := e.Kind.Error()
	if e.Reference >= 0 {
		msg = fmt.Sprintf("%s (best tile %d, %d correspondences)", msg, e.Reference, e.Score)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RegistrationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
