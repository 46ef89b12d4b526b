package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// AuthorizationError means the principal may not act on the target resource.
// Its message is safe to show; it never wraps the underlying cause.
type AuthorizationError struct {
	Message string
}

func NewAuthorizationError(msg string) error {
	return &AuthorizationError{Message: msg}
}

func (err AuthorizationError) Error() string {
	if err.Message == "" {
		return "permission denied"
	}
	return err.Message
}

type NotFoundError struct {
	Entity string
}

func NewNotFoundError(entity string) error {
	return &NotFoundError{Entity: entity}
}

func (err NotFoundError) Error() string {
	return err.Entity + " not found"
}

// Transition rejection reasons.
const (
	ReasonTerminalState = "terminal_state"
	ReasonNotAllowed    = "transition_not_allowed"
)

// TransitionError is returned when a status change is not allowed from the current state.
type TransitionError struct {
	From   string
	To     string
	Reason string
}

func NewTransitionError(from, to, reason string) error {
	return &TransitionError{From: from, To: to, Reason: reason}
}

func (err TransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %q to %q", err.From, err.To)
}

// ProvisionError wraps a meeting provider failure; the session is left untouched.
type ProvisionError struct {
	Err error
}

func NewProvisionError(err error) error {
	return &ProvisionError{Err: err}
}

func (err ProvisionError) Error() string {
	return "provisioning meeting: " + err.Err.Error()
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}

// IsNotFound reports whether the root cause of err is a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}
