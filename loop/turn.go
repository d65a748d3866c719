package loop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	agent "github.com/flowcore-ai/agentloop"
	"github.com/flowcore-ai/agentloop/model"
	"github.com/flowcore-ai/agentloop/schema"
	"github.com/flowcore-ai/agentloop/scheduler"
	"github.com/flowcore-ai/agentloop/stream"
	"github.com/flowcore-ai/agentloop/tools"
)

// turnOutcome is the Turn Controller's verdict, per spec §4.6 step 4's
// stop-reason dispatch table.
type turnOutcome string

const (
	turnFinished turnOutcome = "finished"
	turnContinue turnOutcome = "continue"
	turnSteered  turnOutcome = "steered"
	turnAborted  turnOutcome = "aborted"
	turnFailed   turnOutcome = "failed"
)

// turnResult carries what the Driver needs to splice into the authoritative
// message list and decide the next state transition.
type turnResult struct {
	outcome          turnOutcome
	appended         []agent.AgentMessage
	steeringMessages []agent.AgentMessage
	err              error
}

// runTurn executes one model round-trip plus, if the model requested tools,
// the induced tool round. messages is the context the Driver has already
// spliced steering into; it is read-only here.
func runTurn(ctx context.Context, reg *tools.Registry, messages []agent.AgentMessage, systemPrompt string, st *stream.Stream[agent.AgentMessage], cfg Config) turnResult {
	st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventTurnStart})

	llmMessages := messages
	if cfg.TransformContext != nil {
		transformed, err := cfg.TransformContext(ctx, messages)
		if err != nil {
			wrapped := agent.WrapError(agent.ErrorKindStreamError, "transformContext failed", err)
			st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventError, Err: wrapped})
			st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventTurnEnd})
			return turnResult{outcome: turnFailed, err: wrapped}
		}
		llmMessages = transformed
	}

	viewTools := wrapToolsForPresentation(reg.All(), cfg.IntentTracing)

	llmReq, err := cfg.ConvertToLLM(ctx, llmMessages, systemPrompt, viewTools)
	if err != nil {
		wrapped := wrapStreamError("convertToLlm failed", err)
		st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventError, Err: wrapped})
		st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventTurnEnd})
		return turnResult{outcome: turnFailed, err: wrapped}
	}

	strm, err := cfg.StreamFn(ctx, cfg.Model, llmReq, StreamOptions{SessionID: cfg.SessionID, ThinkingBudgets: cfg.ThinkingBudgets})
	if err != nil {
		streamErr := wrapStreamError("streamFn failed", err)
		assistant := synthesizeStreamError()
		st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventMessageStart, Message: &assistant})
		st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventMessageEnd, Message: &assistant})
		st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventError, Err: streamErr})
		st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventTurnEnd})
		return turnResult{outcome: turnFailed, appended: []agent.AgentMessage{assistant}, err: streamErr}
	}
	defer strm.Close()

	assistant, streamErr := drainStream(ctx, st, strm, cfg.IntentTracing)
	st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventMessageEnd, Message: &assistant})

	appended := []agent.AgentMessage{assistant}

	switch assistant.StopReason {
	case agent.StopReasonStop, agent.StopReasonLength:
		st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventTurnEnd})
		return turnResult{outcome: turnFinished, appended: appended}

	case agent.StopReasonToolUse:
		result := scheduler.Run(ctx, assistant.ToolCalls(), reg, st, cfg.steeringAdapter(), cfg.schedulerConfig())
		appended = append(appended, result.ToolResults...)
		st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventTurnEnd})
		switch result.Outcome {
		case scheduler.OutcomeSteered:
			return turnResult{outcome: turnSteered, appended: appended, steeringMessages: result.SteeringMessages}
		case scheduler.OutcomeAborted:
			return turnResult{outcome: turnAborted, appended: appended}
		default:
			return turnResult{outcome: turnContinue, appended: appended}
		}

	case agent.StopReasonAborted:
		aborted := synthesizeAbortedResults(assistant.ToolCalls())
		for i := range aborted {
			emitSynthesizedToolResult(st, aborted[i], i, len(aborted))
		}
		appended = append(appended, aborted...)
		st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventTurnEnd})
		return turnResult{outcome: turnAborted, appended: appended}

	default: // agent.StopReasonError
		st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventError, Err: streamErr})
		st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventTurnEnd})
		return turnResult{outcome: turnFailed, appended: appended, err: streamErr}
	}
}

// drainStream reads the provider stream to completion, forwarding start/
// delta/thinking events through st and accumulating the final assistant
// message. It never returns before the stream reaches a terminal chunk, an
// error, EOF, or ctx cancellation.
func drainStream(ctx context.Context, st *stream.Stream[agent.AgentMessage], strm model.Streamer, intentTracing bool) (agent.AgentMessage, error) {
	now := time.Now().UTC()
	shell := agent.AgentMessage{Kind: agent.MessageKindAssistant, Timestamp: now}
	st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventMessageStart, Message: &shell})

	var (
		text, thinking strings.Builder
		toolCalls      []agent.ToolCallPart
		usage          model.TokenUsage
		stopReason     = agent.StopReasonStop
		provider       string
		modelName      string
		streamErr      error
	)

loop:
	for {
		select {
		case <-ctx.Done():
			stopReason = agent.StopReasonAborted
			break loop
		default:
		}

		chunk, err := strm.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			if isCancellation(ctx, err) {
				stopReason = agent.StopReasonAborted
				break loop
			}
			streamErr = wrapStreamError("provider stream failed", err)
			stopReason = agent.StopReasonError
			break loop
		}

		switch chunk.Type {
		case model.ChunkTypeStart:
			// Shell already emitted above; nothing further to do.

		case model.ChunkTypeText:
			if chunk.Message != nil {
				for _, p := range chunk.Message.Parts {
					if tp, ok := p.(model.TextPart); ok {
						text.WriteString(tp.Text)
					}
				}
			}
			partial := shell
			partial.Content = []agent.ContentPart{agent.TextPart{Text: text.String()}}
			st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventMessageDelta, Message: &partial})

		case model.ChunkTypeThinking:
			thinking.WriteString(chunk.Thinking)
			partial := shell
			partial.Content = []agent.ContentPart{agent.ThinkingPart{Text: thinking.String()}}
			st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventThinkingDelta, Message: &partial})

		case model.ChunkTypeToolCall:
			if chunk.ToolCall != nil {
				tc := agent.ToolCallPart{ID: chunk.ToolCall.ID, Name: string(chunk.ToolCall.Name), Arguments: chunk.ToolCall.Payload}
				if intentTracing {
					if stripped, intent, err := schema.StripIntent(tc.Arguments); err == nil {
						tc.Arguments = stripped
						tc.Intent = intent
					}
				}
				toolCalls = append(toolCalls, tc)
			}

		case model.ChunkTypeToolCallDelta:
			// Best-effort UI preview only; safe to ignore per model.ToolCallDelta's contract.

		case model.ChunkTypeUsage:
			if chunk.UsageDelta != nil {
				usage.InputTokens += chunk.UsageDelta.InputTokens
				usage.OutputTokens += chunk.UsageDelta.OutputTokens
				usage.TotalTokens += chunk.UsageDelta.TotalTokens
				usage.CacheReadTokens += chunk.UsageDelta.CacheReadTokens
				usage.CacheWriteTokens += chunk.UsageDelta.CacheWriteTokens
			}

		case model.ChunkTypeStop:
			stopReason = mapStopReason(chunk.StopReason)
			break loop

		case model.ChunkTypeError:
			if isCancellation(ctx, chunk.Err) {
				stopReason = agent.StopReasonAborted
				break loop
			}
			streamErr = wrapStreamError("provider stream reported an error", chunk.Err)
			stopReason = agent.StopReasonError
			break loop
		}
	}

	var content []agent.ContentPart
	if thinking.Len() > 0 {
		content = append(content, agent.ThinkingPart{Text: thinking.String()})
	}
	if text.Len() > 0 {
		content = append(content, agent.TextPart{Text: text.String()})
	}
	for _, tc := range toolCalls {
		content = append(content, tc)
	}
	if len(toolCalls) > 0 && stopReason == agent.StopReasonStop {
		stopReason = agent.StopReasonToolUse
	}

	final := agent.AgentMessage{
		Kind:       agent.MessageKindAssistant,
		Timestamp:  now,
		Content:    content,
		StopReason: stopReason,
		Usage:      usage,
		Provider:   provider,
		Model:      modelName,
	}
	return final, streamErr
}

// isCancellation reports whether err represents ctx's own cancellation
// rather than an unrelated provider failure. A Streamer whose Recv blocks
// and observes ctx surfaces this as a wrapped context.Canceled/
// DeadlineExceeded, not io.EOF; treating it as a plain stream error would
// turn a cooperative abort into a fatal turnFailed (§7's propagation policy
// requires aborts to resolve Result without error).
func isCancellation(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// wrapStreamError builds the core's structured stream-error, enriching the
// message with the provider's own classification when err carries a
// *model.ProviderError (§4.9/C9's stream-error path).
func wrapStreamError(message string, err error) *agent.Error {
	if pe, ok := model.AsProviderError(err); ok {
		message = fmt.Sprintf("%s: %s error from %s (retryable=%v)", message, pe.Kind(), pe.Provider(), pe.Retryable())
	}
	return agent.WrapError(agent.ErrorKindStreamError, message, err)
}

func mapStopReason(s string) agent.StopReason {
	switch s {
	case "stop", "end_turn", "":
		return agent.StopReasonStop
	case "length", "max_tokens":
		return agent.StopReasonLength
	case "tool_use", "toolUse", "tool_calls":
		return agent.StopReasonToolUse
	case "aborted", "cancelled", "canceled":
		return agent.StopReasonAborted
	case "error":
		return agent.StopReasonError
	default:
		return agent.StopReasonStop
	}
}

func synthesizeStreamError() agent.AgentMessage {
	return agent.AgentMessage{
		Kind:       agent.MessageKindAssistant,
		Timestamp:  time.Now().UTC(),
		StopReason: agent.StopReasonError,
	}
}

func synthesizeAbortedResults(calls []agent.ToolCallPart) []agent.AgentMessage {
	out := make([]agent.AgentMessage, len(calls))
	for i, c := range calls {
		out[i] = agent.AgentMessage{
			Kind:       agent.MessageKindToolResult,
			Timestamp:  time.Now().UTC(),
			ToolCallID: c.ID,
			ToolName:   c.Name,
			IsError:    true,
			Content:    []agent.ContentPart{agent.TextPart{Text: "Tool execution was aborted."}},
		}
	}
	return out
}

func emitSynthesizedToolResult(st *stream.Stream[agent.AgentMessage], msg agent.AgentMessage, index, total int) {
	st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventMessageStart, Message: &msg, ToolCallID: msg.ToolCallID, ToolName: msg.ToolName, Index: index, Total: total})
	st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventMessageEnd, Message: &msg, ToolCallID: msg.ToolCallID, ToolName: msg.ToolName, Index: index, Total: total})
}

// wrappedTool decorates an AgentTool with an intent-transformed parameter
// schema for presentation to ConvertToLLM, per §4.3's schema-transformation
// step. Execute, Name, Label, and Description all delegate to the wrapped
// tool; only Parameters differs.
type wrappedTool struct {
	agent.AgentTool
	params map[string]any
}

func (w wrappedTool) Parameters() map[string]any { return w.params }

func wrapToolsForPresentation(ts []agent.AgentTool, intentTracing bool) []agent.AgentTool {
	if !intentTracing {
		return ts
	}
	out := make([]agent.AgentTool, len(ts))
	for i, t := range ts {
		out[i] = wrappedTool{AgentTool: t, params: schema.WithIntent(t.Parameters(), true)}
	}
	return out
}
