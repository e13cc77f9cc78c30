// Package apperrors provides the unified error taxonomy for bunsane-sub005:
// a single typed error carrying a code and a details map, so callers can
// branch on Code rather than string-matching messages.
package apperrors

import (
	"errors"
	"fmt"
)

// Code identifies one of the taxonomy's error kinds.
type Code string

const (
	CodeStorage        Code = "STORAGE"
	CodeQueryCompile   Code = "QUERY_COMPILE"
	CodeValidation     Code = "VALIDATION"
	CodeNotFound       Code = "NOT_FOUND"
	CodeAlreadyPresent Code = "ALREADY_PRESENT"
	CodeHook           Code = "HOOK"
	CodeScheduler      Code = "SCHEDULER"
	CodeConfig         Code = "CONFIG"
)

// Error is the structured error type returned across package boundaries.
// Hook and scheduler errors of this type are contained by their respective
// subsystems and never escape to the caller that triggered the event.
type Error struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail attaches a key/value detail and returns e for chaining.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newErr(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func wrapErr(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Storage wraps an underlying driver failure.
func Storage(operation string, err error) *Error {
	return wrapErr(CodeStorage, "storage operation failed", err).WithDetail("operation", operation)
}

// QueryCompile reports a static query misuse: unknown component/field or an
// operator invalid for the field's kind. Never retried.
func QueryCompile(reason string) *Error {
	return newErr(CodeQueryCompile, reason)
}

// Validation reports component data that does not match its registered
// field kinds/nullability.
func Validation(reason string) *Error {
	return newErr(CodeValidation, reason)
}

// NotFound reports a missing or soft-deleted entity/component.
func NotFound(resource, id string) *Error {
	return newErr(CodeNotFound, "resource not found").
		WithDetail("resource", resource).
		WithDetail("id", id)
}

// AlreadyPresent reports an add() of an already-active component.
func AlreadyPresent(entityID, componentName string) *Error {
	return newErr(CodeAlreadyPresent, "component already present").
		WithDetail("entity_id", entityID).
		WithDetail("component", componentName)
}

// Hook wraps an error thrown inside a hook handler; it is logged and
// counted, and must never surface to the triggering caller.
func Hook(hookName string, err error) *Error {
	return wrapErr(CodeHook, "hook handler failed", err).WithDetail("hook", hookName)
}

// Scheduler wraps a task timeout or exhausted-retries failure; recorded in
// metrics, never surfaced to callers.
func Scheduler(taskName string, err error) *Error {
	return wrapErr(CodeScheduler, "scheduled task failed", err).WithDetail("task", taskName)
}

// Config reports a fatal boot-time configuration failure.
func Config(reason string) *Error {
	return newErr(CodeConfig, reason)
}

// Is reports whether err is an *Error with the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// As extracts the *Error from err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
