// Package stream implements the typed, async event queue (C1) that the agent
// loop driver uses to publish its progress and that callers drain for
// incremental rendering. It is deliberately generic over the message type so
// it carries no dependency on the root package's data model.
package stream

// EventType discriminates the kinds of events a Stream carries. Control
// events (agent/turn/message/tool boundaries plus error) are never dropped;
// EventMessageDelta and EventThinkingDelta are coalescible.
type EventType string

const (
	// EventAgentStart is the first event emitted by a run.
	EventAgentStart EventType = "agent_start"
	// EventAgentEnd is the last event emitted by a run.
	EventAgentEnd EventType = "agent_end"
	// EventTurnStart precedes every event of a turn.
	EventTurnStart EventType = "turn_start"
	// EventTurnEnd follows every event of a turn.
	EventTurnEnd EventType = "turn_end"
	// EventMessageStart announces a new (possibly partial) message.
	EventMessageStart EventType = "message_start"
	// EventMessageDelta carries an incremental content update. Coalescible.
	EventMessageDelta EventType = "message_delta"
	// EventThinkingDelta carries an incremental reasoning update. Coalescible.
	EventThinkingDelta EventType = "thinking_delta"
	// EventMessageEnd carries the finalized message, with usage when available.
	EventMessageEnd EventType = "message_end"
	// EventToolExecutionStart announces a scheduled tool call.
	EventToolExecutionStart EventType = "tool_execution_start"
	// EventToolExecutionProgress signals a mid-execution update a tool pushed
	// through its onUpdate callback (the update's Payload is not carried on
	// the event), distinct from EventToolExecutionStart so a consumer can
	// tell "call started" from "call made progress".
	EventToolExecutionProgress EventType = "tool_execution_progress"
	// EventToolExecutionEnd carries a tool's finished (or synthesized) result.
	EventToolExecutionEnd EventType = "tool_execution_end"
	// EventError carries a fatal run error. It does not close the stream:
	// agent_end follows it, and iteration ends when the producer calls Done.
	EventError EventType = "error"
)

// IsDelta reports whether events of this type are coalescible.
func (t EventType) IsDelta() bool {
	return t == EventMessageDelta || t == EventThinkingDelta
}

// Event is a single entry on the stream. Message carries the full or partial
// message the event pertains to; it is nil for events that only carry tool
// round bookkeeping (Index/Total/BatchID) without an associated message, such
// as EventToolExecutionStart for a call whose result is still pending.
type Event[M any] struct {
	Type    EventType
	Message *M

	// Tool round bookkeeping, populated for Event{ToolExecutionStart,
	// ToolExecutionProgress, ToolExecutionEnd} and for the message_start/
	// message_end of tool-result messages, and left zero otherwise.
	BatchID    string
	ToolCallID string
	ToolName   string
	Index      int
	Total      int

	// Err is populated for EventError.
	Err error
}
