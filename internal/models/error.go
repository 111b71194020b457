package models

import (
	"errors"
	"fmt"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

// Error codes
const (
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeVersionConflict  = "VERSION_CONFLICT"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// ErrorKind classifies why a chart edit did not apply.
type ErrorKind string

const (
	KindNoResponse       ErrorKind = "NO_RESPONSE"
	KindParseFailed      ErrorKind = "PARSE_FAILED"
	KindValidationFailed ErrorKind = "VALIDATION_FAILED"
	KindReadOnlyPath     ErrorKind = "READONLY_PATH"
	KindZeroEffect       ErrorKind = "ZERO_EFFECT"
	KindDocumentAbsent   ErrorKind = "DOCUMENT_ABSENT"
	KindEditInProgress   ErrorKind = "EDIT_IN_PROGRESS"
	KindUnknown          ErrorKind = "UNKNOWN"
)

var userMessages = map[ErrorKind]string{
	KindNoResponse:       "The assistant did not respond. Please try again in a moment.",
	KindParseFailed:      "The assistant returned a response that could not be understood. Nothing was changed.",
	KindValidationFailed: "The suggested change would produce an invalid chart, so it was not applied.",
	KindReadOnlyPath:     "The suggested change tried to modify the data columns or version, which cannot be edited. Nothing was changed.",
	KindZeroEffect:       "I couldn't find anything in the chart to change for that instruction. Try naming the axis, legend or style property directly.",
	KindDocumentAbsent:   "The chart was reset while the edit was in progress, so the change was discarded.",
	KindEditInProgress:   "Another edit is still in progress. Wait for it to finish before sending a new instruction.",
	KindUnknown:          "Something went wrong while applying the edit. The chart was left unchanged.",
}

// UserMessage returns the fixed explanation shown to the user for kind.
func UserMessage(kind ErrorKind) string {
	if msg, ok := userMessages[kind]; ok {
		return msg
	}
	return userMessages[KindUnknown]
}

// EditError is a typed failure of the edit pipeline.
type EditError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *EditError) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *EditError) Unwrap() error {
	return e.Err
}

// NewEditError creates a new EditError.
func NewEditError(kind ErrorKind, detail string, err error) *EditError {
	return &EditError{Kind: kind, Detail: detail, Err: err}
}

// KindOf extracts the ErrorKind carried by err. Untyped errors are UNKNOWN.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var editErr *EditError
	if errors.As(err, &editErr) {
		return editErr.Kind
	}
	return KindUnknown
}
