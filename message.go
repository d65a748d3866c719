package agent

import (
	"encoding/json"
	"time"

	"github.com/flowcore-ai/agentloop/model"
)

// MessageKind discriminates the AgentMessage tagged union.
type MessageKind string

const (
	// MessageKindUser is authored by a human or upstream caller.
	MessageKindUser MessageKind = "user"
	// MessageKindAssistant is authored by the model.
	MessageKindAssistant MessageKind = "assistant"
	// MessageKindToolResult carries the result of one prior tool call.
	MessageKindToolResult MessageKind = "tool_result"
	// MessageKindCustom is a caller-defined role the core stores and
	// forwards but never interprets.
	MessageKindCustom MessageKind = "custom"
)

// StopReason classifies why an assistant message's generation ended.
type StopReason string

const (
	StopReasonStop     StopReason = "stop"
	StopReasonLength   StopReason = "length"
	StopReasonToolUse  StopReason = "tool_use"
	StopReasonError    StopReason = "error"
	StopReasonAborted  StopReason = "aborted"
)

type (
	// ContentPart is a marker interface implemented by every content block
	// an AgentMessage's Content may carry.
	ContentPart interface {
		isContentPart()
	}

	// TextPart is plain user- or model-visible text.
	TextPart struct {
		Text string
	}

	// ThinkingPart carries provider-issued reasoning content, opaque to the
	// core beyond its presence.
	ThinkingPart struct {
		Text      string
		Signature string
		Redacted  []byte
	}

	// ToolCallPart declares one tool invocation requested by the model. ID
	// is unique within the run. Arguments is the canonical JSON object the
	// model supplied, with Intent already stripped when intent tracing is
	// enabled (§4.3) — Intent is populated separately in that case.
	ToolCallPart struct {
		ID        string
		Name      string
		Arguments json.RawMessage
		// Intent is the model-supplied one-line justification lifted from
		// arguments._intent when intent tracing is enabled. Empty otherwise.
		Intent string
	}

	// ImagePart carries image content, typically inside a toolResult
	// message's Content.
	ImagePart struct {
		Format string
		Bytes  []byte
	}

	// StructuredPart carries an opaque structured payload the core neither
	// inspects nor mutates, typically inside a toolResult's Content.
	StructuredPart struct {
		Payload any
	}
)

func (TextPart) isContentPart()       {}
func (ThinkingPart) isContentPart()   {}
func (ToolCallPart) isContentPart()   {}
func (ImagePart) isContentPart()      {}
func (StructuredPart) isContentPart() {}

// AgentMessage is the tagged union described in §3: one of user, assistant,
// toolResult, or custom. Which fields are meaningful depends on Kind; the
// core only ever reads the fields documented for that Kind.
type AgentMessage struct {
	Kind      MessageKind
	Timestamp time.Time

	// Content holds the ordered content-parts for user, assistant, and
	// toolResult messages. For a plain-string user message this is a single
	// TextPart; NewUserMessage builds that shape.
	Content []ContentPart

	// Assistant-only fields.
	StopReason StopReason
	Usage      model.TokenUsage
	Provider   string
	Model      string

	// ToolResult-only fields.
	ToolCallID string
	ToolName   string
	IsError    bool
	Details    any

	// Custom-only fields. The core stores and forwards Role/Payload
	// unchanged; only a caller-supplied converter may interpret them.
	Role    string
	Payload any
}

// NewUserMessage builds a user AgentMessage from plain text.
func NewUserMessage(text string, at time.Time) AgentMessage {
	return AgentMessage{
		Kind:      MessageKindUser,
		Timestamp: at,
		Content:   []ContentPart{TextPart{Text: text}},
	}
}

// NewCustomMessage builds a custom AgentMessage. The core never interprets
// role or payload; only the caller's ConvertToLLM sees them.
func NewCustomMessage(role string, payload any, at time.Time) AgentMessage {
	return AgentMessage{
		Kind:      MessageKindCustom,
		Timestamp: at,
		Role:      role,
		Payload:   payload,
	}
}

// ToolCalls returns the ToolCallPart entries in an assistant message's
// Content, in declaration order. Returns nil for non-assistant messages or
// assistant messages without tool calls.
func (m AgentMessage) ToolCalls() []ToolCallPart {
	if m.Kind != MessageKindAssistant {
		return nil
	}
	var calls []ToolCallPart
	for _, p := range m.Content {
		if tc, ok := p.(ToolCallPart); ok {
			calls = append(calls, tc)
		}
	}
	return calls
}

// Text concatenates the TextPart content of a message, for callers that only
// care about the plain-text rendering (e.g. logging, simple test fixtures).
func (m AgentMessage) Text() string {
	var out string
	for _, p := range m.Content {
		if t, ok := p.(TextPart); ok {
			out += t.Text
		}
	}
	return out
}
