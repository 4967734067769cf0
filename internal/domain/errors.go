package domain

import "errors"

// Error kinds. Match with errors.Is; the display text lives on *Error.
var (
	ErrValidation = errors.New("validation error")
	ErrAuth       = errors.New("auth error")
	ErrNotFound   = errors.New("not found")
	ErrNetwork    = errors.New("network error")
	ErrService    = errors.New("service error")
	ErrDomain     = errors.New("domain error")
	ErrPermission = errors.New("permission error")
	ErrInput      = errors.New("input error")
	ErrRoute      = errors.New("route error")
)

// Error is a user-facing failure. Error returns the text shown to the user.
type Error struct {
	Kind    error
	Message string
}

// NewError builds a user-facing error of the given kind.
func NewError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }
