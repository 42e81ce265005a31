package model

import (
	"errors"
	"fmt"
)

// Standard error codes.
const (
	ErrBadRequest      = "BAD_REQUEST"
	ErrForbidden       = "FORBIDDEN"
	ErrNotFound        = "NOT_FOUND"
	ErrConflict        = "CONFLICT"
	ErrValidationError = "VALIDATION_ERROR"
	ErrInternalError   = "INTERNAL_ERROR"
)

// Workspace rule error codes. All of them are recoverable by the caller.
const (
	ErrCountViolation             = "COUNT_VIOLATION"
	ErrInvalidTransition          = "INVALID_TRANSITION"
	ErrBlockingConcernsUnresolved = "BLOCKING_CONCERNS_UNRESOLVED"
	ErrCommentNotFound            = "COMMENT_NOT_FOUND"
	ErrStepDisabled               = "STEP_DISABLED"
	ErrDataIntegrity              = "DATA_INTEGRITY"
)

// ErrorEnvelope is the error value returned by every workspace operation.
// It implements the error interface.
type ErrorEnvelope struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details []FieldError   `json:"details,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// IsCode reports whether err, or any error it wraps, is an ErrorEnvelope
// with the given code.
func IsCode(err error, code string) bool {
	var env *ErrorEnvelope
	if errors.As(err, &env) {
		return env.Code == code
	}
	return false
}

// CodeOf returns the envelope code of err, or ErrInternalError for errors
// that are not envelopes.
func CodeOf(err error) string {
	var env *ErrorEnvelope
	if errors.As(err, &env) {
		return env.Code
	}
	return ErrInternalError
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewCountViolationError returns a COUNT_VIOLATION for a selection that
// would bring the active count to attempted, above limit.
func NewCountViolationError(attempted, limit int) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrCountViolation,
		Message: fmt.Sprintf("selection would make %d profiles active, at most %d allowed", attempted, limit),
		Meta: map[string]any{
			"attempted": attempted,
			"limit":     limit,
		},
	}
}

// NewInvalidTransitionError returns an INVALID_TRANSITION error.
func NewInvalidTransitionError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInvalidTransition, Message: msg}
}

// NewBlockingConcernsError returns a BLOCKING_CONCERNS_UNRESOLVED error
// listing the comments that still need acknowledgment.
func NewBlockingConcernsError(profileID string, commentIDs []string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrBlockingConcernsUnresolved,
		Message: fmt.Sprintf("profile %q has %d unacknowledged blocking comment(s)", profileID, len(commentIDs)),
		Meta: map[string]any{
			"comment_ids": commentIDs,
		},
	}
}

// NewCommentNotFoundError returns a COMMENT_NOT_FOUND error.
func NewCommentNotFoundError(profileID, commentID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrCommentNotFound,
		Message: fmt.Sprintf("comment %q not found on profile %q", commentID, profileID),
	}
}

// NewStepDisabledError returns a STEP_DISABLED error carrying the notice
// shown to the user.
func NewStepDisabledError(step, reason string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrStepDisabled,
		Message: reason,
		Meta: map[string]any{
			"step": step,
		},
	}
}

// NewDataIntegrityError returns a DATA_INTEGRITY error. Callers log these
// at error level before surfacing them.
func NewDataIntegrityError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrDataIntegrity, Message: msg}
}
