package graphql

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a failed operation. Terminal kinds replace the view
// that triggered them; transient kinds are retryable.
type Kind int

const (
	// KindTransient covers timeouts, disconnects and server faults.
	// Safe to retry; the live channel retries automatically.
	KindTransient Kind = iota
	// KindAccessDenied means the caller's session may not see the
	// requested resource. Terminal for that view.
	KindAccessDenied
	// KindNotFound means the requested resource does not exist. Terminal.
	KindNotFound
	// KindValidation means the request was understood and rejected.
	// Fix the input, don't retry as-is.
	KindValidation
)

// Error is a classified operation failure.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.cause != nil {
		return e.cause.Error()
	}
	return "graphql: operation failed"
}

func (e *Error) Unwrap() error { return e.cause }

// Transient wraps err as a retryable failure.
func Transient(err error) *Error {
	return &Error{Kind: KindTransient, cause: err}
}

// AccessDenied builds a terminal authorization failure.
func AccessDenied(message string) *Error {
	return &Error{Kind: KindAccessDenied, Message: message}
}

// NotFound builds a terminal missing-resource failure.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Validation builds a rejected-input failure.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// KindOf returns the classification of err, defaulting to KindTransient
// for unclassified errors (unknown failures are treated as retryable).
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindTransient
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return err != nil && KindOf(err) == KindTransient
}

// IsTerminal reports whether err should tear down the view that
// produced it.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	k := KindOf(err)
	return k == KindAccessDenied || k == KindNotFound
}

// IsValidation reports whether err is a rejected-input failure.
func IsValidation(err error) bool {
	return err != nil && KindOf(err) == KindValidation
}

// Error codes the server attaches under extensions.code.
const (
	codeUnauthenticated = "UNAUTHENTICATED"
	codeForbidden       = "FORBIDDEN"
	codeNotFound        = "NOT_FOUND"
	codeBadUserInput    = "BAD_USER_INPUT"
)

// classify maps a GraphQL error entry to a typed Error. Errors without a
// recognized code were still produced by the server after parsing the
// request, so they classify as validation rather than transient.
func classify(message, code string) *Error {
	switch code {
	case codeUnauthenticated, codeForbidden:
		return AccessDenied(message)
	case codeNotFound:
		return NotFound(message)
	case codeBadUserInput:
		return Validation(message)
	case "INTERNAL_SERVER_ERROR":
		return &Error{Kind: KindTransient, Message: message}
	default:
		return Validation(message)
	}
}

// classifyTransport maps a transport-level failure to a typed Error.
func classifyTransport(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTransient, Message: "request timed out", cause: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindTransient, Message: "request timed out", cause: err}
	}
	return Transient(fmt.Errorf("graphql: transport failure: %w", err))
}
