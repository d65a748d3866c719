package loop

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"

	agent "github.com/flowcore-ai/agentloop"
	"github.com/flowcore-ai/agentloop/stream"
	"github.com/flowcore-ai/agentloop/tools"
)

// Run is the Agent Loop Driver (C7): `agentLoop(newPrompts, context, config,
// abortSignal?, streamFn?)` from spec §4.7. ctx doubles as the AbortSignal —
// cancel it to abort the run. newPrompts must be non-empty.
func Run(ctx context.Context, newPrompts []agent.AgentMessage, agentCtx agent.AgentContext, cfg Config) *stream.Stream[agent.AgentMessage] {
	st := stream.New[agent.AgentMessage](stream.DefaultBuffer)
	go runDriver(ctx, st, newPrompts, agentCtx, cfg, false)
	return st
}

// Continue is the Continuation Entry Point (C8): `agentLoopContinue(context,
// config, abortSignal?, streamFn?)` from spec §4.8. Unlike Run, it seeds no
// new user messages and assumes context.Messages already ends on a
// non-assistant message.
func Continue(ctx context.Context, agentCtx agent.AgentContext, cfg Config) *stream.Stream[agent.AgentMessage] {
	st := stream.New[agent.AgentMessage](stream.DefaultBuffer)
	if len(agentCtx.Messages) == 0 {
		go func() {
			st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventAgentStart})
			err := agent.IllegalState("Cannot continue: no messages in context")
			st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventError, Err: err})
			st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventAgentEnd})
			st.Done(nil, err)
		}()
		return st
	}
	go runDriver(ctx, st, nil, agentCtx, cfg, true)
	return st
}

func runDriver(ctx context.Context, st *stream.Stream[agent.AgentMessage], newPrompts []agent.AgentMessage, agentCtx agent.AgentContext, cfg Config, continuation bool) {
	ctx, span := cfg.tracer().Start(ctx, "agent_loop.run")
	defer span.End()
	cfg.metrics().IncCounter("agent_loop.runs", 1)

	st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventAgentStart})

	working := agentCtx.Clone()
	var appended []agent.AgentMessage

	emitLocal := func(msgs []agent.AgentMessage) {
		for i := range msgs {
			msg := msgs[i]
			msg.Timestamp = time.Now().UTC()
			working.Messages = append(working.Messages, msg)
			appended = append(appended, msg)
			st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventMessageStart, Message: &msg})
			st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventMessageEnd, Message: &msg})
		}
	}

	if !continuation {
		emitLocal(newPrompts)
	}

	steerAdapter := cfg.steeringAdapter()
	reg := tools.NewRegistry(working.Tools)

	var finalErr error
	var last turnOutcome

	for {
		if msgs, err := steerAdapter(ctx); err != nil {
			cfg.logger().Warn(ctx, "steering adapter failed before turn", "error", err)
		} else if len(msgs) > 0 {
			emitLocal(msgs)
		}

		turnCtx, turnSpan := cfg.tracer().Start(ctx, "agent_loop.turn")
		turnStart := time.Now()
		result := runTurn(turnCtx, reg, working.Messages, working.SystemPrompt, st, cfg)
		cfg.metrics().RecordTimer("agent_loop.turn_duration", time.Since(turnStart), "outcome", string(result.outcome))
		if result.err != nil {
			turnSpan.RecordError(result.err)
		}
		turnSpan.End()
		working.Messages = append(working.Messages, result.appended...)
		appended = append(appended, result.appended...)
		last = result.outcome

		switch result.outcome {
		case turnFinished:
			goto done
		case turnContinue:
			continue
		case turnSteered:
			emitLocal(result.steeringMessages)
			continue
		case turnAborted:
			// §4.5 case 3: one last courtesy poll before the run terminates.
			if msgs, err := steerAdapter(ctx); err == nil && len(msgs) > 0 {
				emitLocal(msgs)
			}
			goto done
		case turnFailed:
			finalErr = result.err
			goto done
		}
	}

done:
	// runTurn already pushed an EventError for turnFailed (§4.6 step 3's
	// "forward error through C1"); agent_end always follows, per §5's
	// ordering guarantee that agent_end is the stream's last event.
	if last == turnFailed && finalErr == nil {
		finalErr = agent.IllegalState("turn failed with no error recorded")
	}
	if finalErr != nil {
		span.RecordError(finalErr)
		span.SetStatus(codes.Error, finalErr.Error())
	}
	st.Push(stream.Event[agent.AgentMessage]{Type: stream.EventAgentEnd})
	st.Done(appended, finalErr)
}
