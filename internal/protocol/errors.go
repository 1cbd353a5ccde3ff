package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies which part of the client produced an Error.
type Kind int

const (
	KindConnection Kind = iota + 1
	KindValidation
	KindLight
	KindRadar
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindValidation:
		return "validation"
	case KindLight:
		return "light"
	case KindRadar:
		return "radar"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrConnection = &Error{Kind: KindConnection, Msg: "connection error"}
	ErrValidation = &Error{Kind: KindValidation, Msg: "validation error"}
	ErrLight      = &Error{Kind: KindLight, Msg: "light error"}
	ErrRadar      = &Error{Kind: KindRadar, Msg: "radar error"}
)

// Error is the single error type surfaced by the client. Err is the optional
// underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConnection, ErrValidation, ErrLight, ErrRadar:
		return target.(*Error).Kind == e.Kind
	}
	return false
}

// NewError returns an Error of the given kind without a cause.
func NewError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap converts err into an *Error. An err that already is (or wraps) an
// *Error is returned as is so the original kind survives. Any text added by
// intermediate fmt.Errorf wrappers is dropped along with msg: the innermost
// typed error is the one reported to users. Wrap returns nil for a nil err.
func Wrap(kind Kind, msg string, err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the Kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return 0
}

// MarshalJSON renders the error as its kind and full message.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	}{e.Kind.String(), e.Error()})
}
