package agent

import "fmt"

// ErrorKind enumerates the C9 error taxonomy from §7. Unlike a sentinel
// error value, every occurrence of a kind carries its own message, so kinds
// are compared with errors.As against *Error and switched on Kind rather
// than compared with errors.Is against a fixed value.
type ErrorKind string

const (
	// ErrorKindIllegalState covers structural misuse: agentLoopContinue with
	// an empty context, or a toolResult whose id matches no open tool call.
	// Surfaced immediately; never retried.
	ErrorKindIllegalState ErrorKind = "illegal-state"

	// ErrorKindValidationFailed means tool arguments did not satisfy the
	// tool's schema. Converted to an isError=true tool-result; the run
	// continues.
	ErrorKindValidationFailed ErrorKind = "validation-failed"

	// ErrorKindToolExecutionFailed means AgentTool.Execute returned an
	// error. Converted to an isError=true tool-result; the run continues.
	ErrorKindToolExecutionFailed ErrorKind = "tool-execution-failed"

	// ErrorKindStreamError means the injected StreamFn failed or the
	// underlying transport surfaced a failure. Fatal: the run terminates
	// and the error propagates through the event stream and Result.
	ErrorKindStreamError ErrorKind = "stream-error"

	// ErrorKindAborted means the outer context was cancelled. Non-fatal to
	// Result, which resolves normally with the partial appended messages;
	// see §7's propagation policy.
	ErrorKindAborted ErrorKind = "aborted"

	// ErrorKindSteeringCancellation marks a tool result synthesized because
	// a queued message interrupted its batch. Non-fatal; see §4.4.
	ErrorKindSteeringCancellation ErrorKind = "steering-cancellation"
)

// Error is the core's structured error type. It wraps Cause (if any) so
// errors.Is/errors.As see through to the underlying failure, while still
// exposing a stable Kind callers can switch on.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// NewError constructs an *Error with no wrapped cause.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError constructs an *Error that wraps cause. If message is empty and
// cause is non-nil, cause's message is reused.
func WrapError(kind ErrorKind, message string, cause error) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap supports errors.Is/errors.As against Cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IllegalState constructs the specific illegal-state error raised by
// Continue on an empty context (§4.8).
func IllegalState(message string) *Error {
	return NewError(ErrorKindIllegalState, message)
}
