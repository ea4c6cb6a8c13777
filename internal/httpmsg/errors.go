package httpmsg

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies why a message could not be read.
type Kind int

const (
	// KindClosed means the peer closed the stream before sending any byte.
	KindClosed Kind = iota
	// KindIncomplete means the stream ended in the middle of the head.
	KindIncomplete
	KindMalformed
	KindInvalidContentLength
	// KindContentLengthMismatch means the body was shorter than announced.
	KindContentLengthMismatch
	KindBodyTooLarge
	// KindConnection is an I/O failure on the underlying connection.
	KindConnection
)

func (k Kind) String() string {
	switch k {
	case KindClosed:
		return "closed"
	case KindIncomplete:
		return "incomplete"
	case KindMalformed:
		return "malformed"
	case KindInvalidContentLength:
		return "invalid content-length"
	case KindContentLengthMismatch:
		return "content-length mismatch"
	case KindBodyTooLarge:
		return "body too large"
	case KindConnection:
		return "connection error"
	default:
		return "unknown"
	}
}

// StatusCode is the response a proxy should send for this kind of failure.
func (k Kind) StatusCode() int {
	switch k {
	case KindBodyTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindConnection:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the Kind of err and whether err is an *Error at all.
func KindOf(err error) (Kind, bool) {
	var msgErr *Error
	if errors.As(err, &msgErr) {
		return msgErr.Kind, true
	}
	return 0, false
}

// IsClosed reports whether err means the peer hung up cleanly between messages.
func IsClosed(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindClosed
}
