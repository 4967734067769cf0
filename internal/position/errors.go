package position

import "strings"

// Browser geolocation error codes.
const (
	CodePermissionDenied = 1
	CodeUnavailable      = 2
	CodeTimeout          = 3
)

// SourceError is a terminal failure reported by the device. Error returns the
// device's own message when it gave one.
type SourceError struct {
	Code    int
	Message string
}

// FromCode builds the terminal error for a geolocation error code. Unknown
// codes are treated as an unavailable position.
func FromCode(code int, message string) *SourceError {
	return &SourceError{Code: code, Message: strings.TrimSpace(message)}
}

func (e *SourceError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Unwrap().Error()
}

func (e *SourceError) Unwrap() error {
	switch e.Code {
	case CodePermissionDenied:
		return ErrPermissionDenied
	case CodeTimeout:
		return ErrTimeout
	default:
		return ErrUnavailable
	}
}
