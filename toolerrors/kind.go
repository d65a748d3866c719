package toolerrors

// Kind classifies a ToolError by the point in the tool-call lifecycle it
// originated from, mirroring the scheduler-local subset of the core's C9
// error taxonomy (illegal-state for a call naming no registered tool, plus
// validation and execution failures; the stream-level kinds belong to the
// core itself and are never produced here).
type Kind string

const (
	// KindIllegalState marks structural misuse detected before a tool would
	// even be dispatched (e.g. a call naming a tool that is not in the
	// registry).
	KindIllegalState Kind = "illegal-state"

	// KindValidationFailed marks arguments that failed schema validation;
	// Execute is never invoked for these.
	KindValidationFailed Kind = "validation-failed"

	// KindToolExecutionFailed marks an error returned by Execute itself.
	KindToolExecutionFailed Kind = "tool-execution-failed"
)

// KindedError pairs a Kind with the underlying ToolError chain.
type KindedError struct {
	Kind Kind
	*ToolError
}

// NewKinded constructs a KindedError wrapping message as a fresh ToolError.
func NewKinded(kind Kind, message string) *KindedError {
	return &KindedError{Kind: kind, ToolError: New(message)}
}

// NewKindedWithCause constructs a KindedError wrapping cause.
func NewKindedWithCause(kind Kind, message string, cause error) *KindedError {
	return &KindedError{Kind: kind, ToolError: NewWithCause(message, cause)}
}
