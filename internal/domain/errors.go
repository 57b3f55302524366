package domain

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorType int

const (
	ErrorTypeValidation ErrorType = iota
	ErrorTypeTransport
	ErrorTypeBusiness
	ErrorTypePermission
	ErrorTypeConflict
	ErrorTypeNotFound
	ErrorTypeInternal
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeValidation:
		return "validation"
	case ErrorTypeTransport:
		return "transport"
	case ErrorTypeBusiness:
		return "business"
	case ErrorTypePermission:
		return "permission"
	case ErrorTypeConflict:
		return "conflict"
	case ErrorTypeNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

type Error struct {
	Type    ErrorType
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewValidationError(message string, details map[string]interface{}) *Error {
	return &Error{Type: ErrorTypeValidation, Message: message, Details: details}
}

func NewTransportError(message string, err error) *Error {
	return &Error{Type: ErrorTypeTransport, Message: message, Err: err}
}

func NewBusinessError(message string) *Error {
	return &Error{Type: ErrorTypeBusiness, Message: message}
}

func NewPermissionError(message string) *Error {
	return &Error{Type: ErrorTypePermission, Message: message}
}

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrEdgeNotFound = errors.New("edge not found")
	ErrJobActive    = errors.New("a job is already active for this node")
	ErrNodeLocked   = errors.New("node is not editable")
	ErrNoJob        = errors.New("no job owned by this node")
	ErrClosed       = errors.New("already closed")
)

func typeOf(err error) (ErrorType, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Type, true
	}
	return 0, false
}

func IsValidation(err error) bool {
	if t, ok := typeOf(err); ok {
		return t == ErrorTypeValidation
	}
	return errors.Is(err, ErrJobActive) || errors.Is(err, ErrNodeLocked)
}

func IsTransport(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypeTransport
}

func IsBusiness(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypeBusiness
}

func IsPermission(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypePermission
}

func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if t, ok := typeOf(err); ok && t == ErrorTypeNotFound {
		return true
	}
	return errors.Is(err, ErrNodeNotFound) ||
		errors.Is(err, ErrEdgeNotFound) ||
		strings.Contains(err.Error(), "not found")
}
