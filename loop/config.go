// Package loop implements the Turn Controller (C6), Agent Loop Driver (C7),
// and Continuation Entry Point (C8): the outer state machine that drives a
// conversation turn by turn, dispatching tool rounds to the scheduler and
// splicing steered messages between turns.
package loop

import (
	"context"
	"time"

	agent "github.com/flowcore-ai/agentloop"
	"github.com/flowcore-ai/agentloop/model"
	"github.com/flowcore-ai/agentloop/scheduler"
	"github.com/flowcore-ai/agentloop/steering"
	"github.com/flowcore-ai/agentloop/telemetry"
)

// StreamOptions carries the per-turn options forwarded to StreamFn, mirroring
// spec §4.6 step 3's `options = {signal, sessionId, thinkingBudgets, …}`. The
// cancellation signal itself is ctx, passed separately to StreamFn.
type StreamOptions struct {
	SessionID       string
	ThinkingBudgets any
}

// StreamFn is the injected model stream factory. descriptor is Config.Model;
// llm is whatever ConvertToLLM produced for this turn. The returned
// Streamer's Chunk stream must follow start/delta/thinking/done/error per §6.
type StreamFn func(ctx context.Context, descriptor model.ModelDescriptor, llm *model.Request, opts StreamOptions) (model.Streamer, error)

// ConvertToLLM maps the core's message model into a model.Request. The core
// never inspects the returned value beyond forwarding it to StreamFn. tools
// is the intent-transformed view when intent tracing is enabled (§4.3).
type ConvertToLLM func(ctx context.Context, messages []agent.AgentMessage, systemPrompt string, tools []agent.AgentTool) (*model.Request, error)

// TransformContext optionally prunes or summarizes history before
// ConvertToLLM sees it. Its output never mutates the authoritative messages.
type TransformContext func(ctx context.Context, messages []agent.AgentMessage) ([]agent.AgentMessage, error)

// GetToolContext returns caller-supplied extra data for one call's
// ToolCallContext.Extra.
type GetToolContext func(agent.ToolCallRef) any

// Config collects the options recognized by Run/Continue, per spec §6's
// option table. ConvertToLLM and StreamFn are the two required collaborators;
// every other field is optional and has a documented default.
type Config struct {
	// Model selects the provider/model StreamFn should target, passed
	// through unchanged.
	Model model.ModelDescriptor

	// StreamFn opens the provider-agnostic event stream for one turn.
	// Required.
	StreamFn StreamFn

	// ConvertToLLM maps messages/systemPrompt/tools into an LLM-shaped
	// context once per turn. Required.
	ConvertToLLM ConvertToLLM

	// TransformContext runs before ConvertToLLM when set.
	TransformContext TransformContext

	// GetSteeringMessages supplies mid-run user injections (§4.5). Defaults
	// to steering.None when unset.
	GetSteeringMessages steering.Adapter

	// GetToolContext supplies per-invocation tool context when set.
	GetToolContext GetToolContext

	// IntentTracing enables §4.3 for every tool schema in this run.
	IntentTracing bool

	// SessionID is opaque; forwarded to StreamFn's options only.
	SessionID string

	// ThinkingBudgets is opaque; forwarded to StreamFn's options only.
	ThinkingBudgets any

	// AbortGracePeriod is how long the scheduler waits for tools to honor
	// cancellation before synthesizing aborted results. Defaults to 1s
	// (spec §5's "implementation-defined, >= 1s") when zero.
	AbortGracePeriod time.Duration

	// Telemetry receives structured logs from the Driver and the
	// Scheduler. Defaults to a no-op logger.
	Telemetry telemetry.Logger

	// Metrics records counters and timers for turns and tool dispatch.
	// Defaults to a no-op recorder.
	Metrics telemetry.Metrics

	// Tracer creates spans around turns and tool dispatch. Defaults to a
	// no-op tracer.
	Tracer telemetry.Tracer
}

func (c Config) steeringAdapter() steering.Adapter {
	if c.GetSteeringMessages == nil {
		return steering.None
	}
	return c.GetSteeringMessages
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

func (c Config) schedulerConfig() scheduler.Config {
	return scheduler.Config{
		GetToolContext:   c.GetToolContext,
		AbortGracePeriod: c.AbortGracePeriod,
		Telemetry:        c.Telemetry,
		Metrics:          c.Metrics,
		Tracer:           c.Tracer,
	}
}
