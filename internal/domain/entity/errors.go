package entity

import (
	"errors"
	"fmt"
)

// ErrorCode classifies engine failures so callers can branch on outcome
// without string matching.
type ErrorCode string

const (
	ErrClassificationAmbiguous ErrorCode = "classification_ambiguous"
	ErrOptionResolutionFailed  ErrorCode = "option_resolution_failed"
	ErrStabilityTimeout        ErrorCode = "stability_timeout"
	ErrRequiredFieldUnfillable ErrorCode = "required_field_unfillable"
	ErrSubmissionNotConfirmed  ErrorCode = "submission_not_confirmed"
	ErrOverlayAlreadyOpen      ErrorCode = "overlay_already_open"
)

// EngineError is the engine's failure type. Snapshot, when set, is the last
// state observed before the failure so callers can inspect what the engine
// saw without re-reading the document.
type EngineError struct {
	Code     ErrorCode
	Message  string
	FieldID  string
	Snapshot *FormSnapshot
	Cause    error
}

func (e *EngineError) Error() string {
	if e.FieldID != "" {
		return fmt.Sprintf("%s: %s (field %s)", e.Code, e.Message, e.FieldID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// WithSnapshot returns a copy carrying the given snapshot.
func (e *EngineError) WithSnapshot(snap *FormSnapshot) *EngineError {
	clone := *e
	clone.Snapshot = snap
	return &clone
}

// WithCause returns a copy wrapping the given cause.
func (e *EngineError) WithCause(cause error) *EngineError {
	clone := *e
	clone.Cause = cause
	return &clone
}

// NewStabilityTimeout reports that the watcher's deadline elapsed before the
// document settled.
func NewStabilityTimeout(message string, last *FormSnapshot) *EngineError {
	return &EngineError{Code: ErrStabilityTimeout, Message: message, Snapshot: last}
}

// NewOptionResolutionFailed reports that every applicable strategy failed
// for a choice field.
func NewOptionResolutionFailed(fieldID, message string, cause error) *EngineError {
	return &EngineError{Code: ErrOptionResolutionFailed, Message: message, FieldID: fieldID, Cause: cause}
}

// NewRequiredFieldUnfillable reports a visible required field the session
// has no value for. It is raised before any submission is dispatched.
func NewRequiredFieldUnfillable(fieldID, message string) *EngineError {
	return &EngineError{Code: ErrRequiredFieldUnfillable, Message: message, FieldID: fieldID}
}

// NewSubmissionNotConfirmed reports that a dispatched submission produced no
// recognizable confirmation signature in time.
func NewSubmissionNotConfirmed(message string, last *FormSnapshot) *EngineError {
	return &EngineError{Code: ErrSubmissionNotConfirmed, Message: message, Snapshot: last}
}

// NewOverlayAlreadyOpen reports a second overlay open while one is tracked,
// a usage error of the resolver.
func NewOverlayAlreadyOpen(fieldID string) *EngineError {
	return &EngineError{Code: ErrOverlayAlreadyOpen, Message: "an overlay is already being tracked", FieldID: fieldID}
}

// NewClassificationAmbiguous reports an element that matched no
// classification rule; capture records it as skipped instead of raising,
// this error exists for callers that demand full coverage.
func NewClassificationAmbiguous(path, message string) *EngineError {
	return &EngineError{Code: ErrClassificationAmbiguous, Message: message, FieldID: path}
}

// CodeOf extracts the engine error code from err, unwrapping as needed.
func CodeOf(err error) (ErrorCode, bool) {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Code, true
	}
	return "", false
}

// IsCode reports whether err carries the given engine error code.
func IsCode(err error, code ErrorCode) bool {
	got, ok := CodeOf(err)
	return ok && got == code
}
