// Package scheduler implements the Tool Call Batch Scheduler (C4): it runs a
// set of tool calls in parallel while preserving declaration order in the
// results it emits, enforces per-call cancellation, and implements the
// mid-batch steering short-circuit and external-abort synthesis described in
// SPEC_FULL.md §4.4.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	agent "github.com/flowcore-ai/agentloop"
	"github.com/flowcore-ai/agentloop/schema"
	"github.com/flowcore-ai/agentloop/steering"
	"github.com/flowcore-ai/agentloop/stream"
	"github.com/flowcore-ai/agentloop/telemetry"
	"github.com/flowcore-ai/agentloop/toolerrors"
	"github.com/flowcore-ai/agentloop/tools"
)

// Outcome is what the scheduler reports back to the driver once a batch
// finishes, steers, or aborts.
type Outcome string

const (
	// OutcomeCompleted means every call ran (or was validation-rejected)
	// and every result was emitted; no steering or abort interrupted it.
	OutcomeCompleted Outcome = "completed"
	// OutcomeSteered means a queued message short-circuited the batch;
	// Result.SteeringMessages carries what the driver must splice in.
	OutcomeSteered Outcome = "steered"
	// OutcomeAborted means the outer context was cancelled before the
	// batch finished.
	OutcomeAborted Outcome = "aborted"
)

const (
	skippedBody = "Skipped due to queued user message"
	abortedBody = "Tool execution was aborted."

	// defaultAbortGrace is the minimum grace period §5 requires (>= 1s)
	// before the scheduler gives up on a tool that ignores cancellation and
	// synthesizes its aborted result.
	defaultAbortGrace = time.Second
)

// Config configures one batch run.
type Config struct {
	// GetToolContext returns caller-supplied extra data for a call's
	// ToolCallContext.Extra, if configured.
	GetToolContext func(agent.ToolCallRef) any

	// AbortGracePeriod is how long the scheduler waits for in-flight calls
	// to honor cancellation before synthesizing aborted results for the
	// ones still running. Defaults to defaultAbortGrace if zero.
	AbortGracePeriod time.Duration

	Telemetry telemetry.Logger

	// Metrics records counters and timers around tool dispatch. Defaults to
	// a no-op recorder.
	Metrics telemetry.Metrics

	// Tracer creates spans around each tool execution. Defaults to a no-op
	// tracer.
	Tracer telemetry.Tracer
}

func (c Config) grace() time.Duration {
	if c.AbortGracePeriod <= 0 {
		return defaultAbortGrace
	}
	return c.AbortGracePeriod
}

func (c Config) logger() telemetry.Logger {
	if c.Telemetry == nil {
		return telemetry.NoopLogger{}
	}
	return c.Telemetry
}

func (c Config) metrics() telemetry.Metrics {
	if c.Metrics == nil {
		return telemetry.NoopMetrics{}
	}
	return c.Metrics
}

func (c Config) tracer() telemetry.Tracer {
	if c.Tracer == nil {
		return telemetry.NoopTracer{}
	}
	return c.Tracer
}

// Result is what Run returns: the ordered tool-result messages and, when
// Outcome is OutcomeSteered, the messages the steering adapter returned.
type Result struct {
	ToolResults      []agent.AgentMessage
	SteeringMessages []agent.AgentMessage
	Outcome          Outcome
}

type slot struct {
	msg agent.AgentMessage
}

// Run executes one tool round for the given assistant-message tool calls,
// per §4.4. calls must already have intent stripped and Intent populated by
// the caller (the Turn Controller performs that step before dispatch, per
// §4.3's second bullet).
func Run(ctx context.Context, calls []agent.ToolCallPart, reg *tools.Registry, st *stream.Stream[agent.AgentMessage], steer steering.Adapter, cfg Config) Result {
	n := len(calls)
	if n == 0 {
		return Result{Outcome: OutcomeCompleted}
	}
	if steer == nil {
		steer = steering.None
	}

	batchID := uuid.NewString()
	refs := make([]agent.ToolCallRef, n)
	for i, c := range calls {
		refs[i] = agent.ToolCallRef{ID: c.ID, Name: c.Name}
	}

	slots := make([]*slot, n)
	cancels := make([]context.CancelFunc, n)
	var mu sync.Mutex
	completions := make(chan int, n)

	setSlot := func(i int, msg agent.AgentMessage) {
		mu.Lock()
		if slots[i] == nil {
			slots[i] = &slot{msg: msg}
		}
		mu.Unlock()
	}

	for i, call := range calls {
		tc := agent.ToolCallContext{BatchID: batchID, Index: i, Total: n, ToolCalls: refs}
		if cfg.GetToolContext != nil {
			tc.Extra = cfg.GetToolContext(refs[i])
		}

		st.Push(stream.Event[agent.AgentMessage]{
			Type:       stream.EventToolExecutionStart,
			BatchID:    batchID,
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Index:      i,
			Total:      n,
		})

		tool, ok := reg.ByName(call.Name)
		if !ok {
			kinded := toolerrors.NewKinded(toolerrors.KindIllegalState, fmt.Sprintf("unknown tool %q", call.Name))
			setSlot(i, errorToolResultMessage(call, kinded))
			completions <- i
			continue
		}
		if err := schema.Validate(tool.Parameters(), call.Arguments); err != nil {
			kinded := toolerrors.NewKindedWithCause(toolerrors.KindValidationFailed, "", err)
			setSlot(i, errorToolResultMessage(call, kinded))
			completions <- i
			continue
		}

		childCtx, cancel := context.WithCancel(ctx)
		cancels[i] = cancel
		go func(i int, call agent.ToolCallPart, tool agent.AgentTool, childCtx context.Context, cancel context.CancelFunc) {
			defer cancel()
			onUpdate := func(u agent.ToolUpdate) {
				// Pushed through C1 as its own event type so a consumer can tell
				// "call started" from "call made progress". The event carries the
				// call's id, name, index and total; u.Payload is not forwarded.
				st.Push(stream.Event[agent.AgentMessage]{
					Type:       stream.EventToolExecutionProgress,
					BatchID:    batchID,
					ToolCallID: u.ToolCallID,
					ToolName:   call.Name,
					Index:      i,
					Total:      n,
				})
			}

			execCtx, execSpan := cfg.tracer().Start(childCtx, "scheduler.tool_execute")
			execStart := time.Now()
			res, err := tool.Execute(execCtx, call.ID, call.Arguments, onUpdate, tc)
			outcome := "ok"
			if err != nil {
				outcome = "error"
				execSpan.RecordError(err)
			}
			cfg.metrics().RecordTimer("scheduler.tool_execute_duration", time.Since(execStart), "tool", call.Name, "outcome", outcome)
			cfg.metrics().IncCounter("scheduler.tool_calls", 1, "tool", call.Name, "outcome", outcome)
			execSpan.End()

			if err != nil {
				kinded := toolerrors.NewKindedWithCause(toolerrors.KindToolExecutionFailed, "", err)
				setSlot(i, errorToolResultMessage(call, kinded))
			} else {
				setSlot(i, toolResultMessageFromResult(call, res))
			}
			select {
			case completions <- i:
			default:
			}
		}(i, call, tool, childCtx, cancel)
	}

	allFilled := func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, s := range slots {
			if s == nil {
				return false
			}
		}
		return true
	}

	emit := func(next *int) []agent.AgentMessage {
		var out []agent.AgentMessage
		mu.Lock()
		defer mu.Unlock()
		for *next < n && slots[*next] != nil {
			msg := slots[*next].msg
			st.Push(stream.Event[agent.AgentMessage]{
				Type:       stream.EventToolExecutionEnd,
				Message:    &msg,
				BatchID:    batchID,
				ToolCallID: msg.ToolCallID,
				ToolName:   msg.ToolName,
				Index:      *next,
				Total:      n,
			})
			for _, typ := range []stream.EventType{stream.EventMessageStart, stream.EventMessageEnd} {
				st.Push(stream.Event[agent.AgentMessage]{
					Type:       typ,
					Message:    &msg,
					BatchID:    batchID,
					ToolCallID: msg.ToolCallID,
					ToolName:   msg.ToolName,
					Index:      *next,
					Total:      n,
				})
			}
			out = append(out, msg)
			*next++
		}
		return out
	}

	cancelRemaining := func(body string) {
		mu.Lock()
		for i, s := range slots {
			if s == nil && cancels[i] != nil {
				cancels[i]()
			}
		}
		mu.Unlock()
		for i := range slots {
			setSlot(i, toolResultMessage(calls[i], body, true, nil))
		}
	}

	next := 0
	var results []agent.AgentMessage

	for next < n {
		select {
		case <-ctx.Done():
			grace := time.NewTimer(cfg.grace())
		waitAbort:
			for !allFilled() {
				select {
				case <-completions:
				case <-grace.C:
					break waitAbort
				}
			}
			grace.Stop()
			cancelRemaining(abortedBody)
			results = append(results, emit(&next)...)
			return Result{ToolResults: results, Outcome: OutcomeAborted}

		case idx := <-completions:
			_ = idx
			results = append(results, emit(&next)...)
			if next >= n {
				break
			}
			msgs, err := steer(ctx)
			if err != nil {
				cfg.logger().Warn(ctx, "steering adapter failed", "error", err)
				continue
			}
			if len(msgs) > 0 {
				cancelRemaining(skippedBody)
				results = append(results, emit(&next)...)
				return Result{ToolResults: results, SteeringMessages: msgs, Outcome: OutcomeSteered}
			}
		}
	}

	// All calls finished without steering or abort; still give steering one
	// last chance per §4.5 case 3 equivalent ("after a synthesized batch"),
	// but since nothing was cancelled here there is nothing to splice into
	// this batch's results — a non-empty response still yields "steered" so
	// the driver injects it before the next turn.
	if msgs, err := steer(ctx); err == nil && len(msgs) > 0 {
		return Result{ToolResults: results, SteeringMessages: msgs, Outcome: OutcomeSteered}
	}
	return Result{ToolResults: results, Outcome: OutcomeCompleted}
}

// errorToolResultMessage converts a toolerrors.KindedError into an isError
// tool-result message, with the chain preserved in Details for callers that
// want structured diagnostics rather than just the flattened text.
func errorToolResultMessage(call agent.ToolCallPart, kinded *toolerrors.KindedError) agent.AgentMessage {
	return toolResultMessage(call, kinded.Error(), true, kinded)
}

func toolResultMessage(call agent.ToolCallPart, text string, isError bool, details any) agent.AgentMessage {
	return agent.AgentMessage{
		Kind:       agent.MessageKindToolResult,
		Timestamp:  time.Now().UTC(),
		ToolCallID: call.ID,
		ToolName:   call.Name,
		IsError:    isError,
		Details:    details,
		Content:    []agent.ContentPart{agent.TextPart{Text: text}},
	}
}

func toolResultMessageFromResult(call agent.ToolCallPart, res agent.ToolResult) agent.AgentMessage {
	return agent.AgentMessage{
		Kind:       agent.MessageKindToolResult,
		Timestamp:  time.Now().UTC(),
		ToolCallID: call.ID,
		ToolName:   call.Name,
		IsError:    res.IsError,
		Details:    res.Details,
		Content:    res.Content,
	}
}
