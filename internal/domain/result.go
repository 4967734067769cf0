package domain

// ResultKind classifies the outcome of an upstream fetch.
type ResultKind int

const (
	ResultOK ResultKind = iota
	ResultServiceError
	ResultMalformed
)

func (k ResultKind) String() string {
	switch k {
	case ResultOK:
		return "ok"
	case ResultServiceError:
		return "service_error"
	case ResultMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Result is the decoded outcome of one upstream fetch. Value is only
// meaningful when Kind is ResultOK; Message is only set otherwise.
type Result[T any] struct {
	Kind    ResultKind
	Value   T
	Message string
}

// Ok wraps a successfully decoded value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Kind: ResultOK, Value: v}
}

// ServiceFailure reports a non-2xx status, a transport failure, or a
// payload that carried an error field.
func ServiceFailure[T any](message string) Result[T] {
	return Result[T]{Kind: ResultServiceError, Message: message}
}

// Malformed reports a body that could not be decoded into T.
func Malformed[T any](message string) Result[T] {
	return Result[T]{Kind: ResultMalformed, Message: message}
}

// OK reports whether the fetch produced a usable value.
func (r Result[T]) OK() bool { return r.Kind == ResultOK }

// Err converts a failed result into a user-facing error, or nil on success.
func (r Result[T]) Err() error {
	switch r.Kind {
	case ResultOK:
		return nil
	case ResultMalformed:
		return NewError(ErrDomain, r.Message)
	default:
		return NewError(ErrService, r.Message)
	}
}
