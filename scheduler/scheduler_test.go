package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	agent "github.com/flowcore-ai/agentloop"
	"github.com/flowcore-ai/agentloop/steering"
	"github.com/flowcore-ai/agentloop/stream"
	"github.com/flowcore-ai/agentloop/tools"
)

// fakeTool is a minimal agent.AgentTool whose behavior is supplied per test.
type fakeTool struct {
	name    string
	params  map[string]any
	execute func(ctx context.Context, id string, args json.RawMessage, onUpdate func(agent.ToolUpdate), tc agent.ToolCallContext) (agent.ToolResult, error)
}

func (f fakeTool) Name() string               { return f.name }
func (f fakeTool) Label() string              { return f.name }
func (f fakeTool) Description() string        { return "" }
func (f fakeTool) Parameters() map[string]any { return f.params }
func (f fakeTool) Execute(ctx context.Context, id string, args json.RawMessage, onUpdate func(agent.ToolUpdate), tc agent.ToolCallContext) (agent.ToolResult, error) {
	return f.execute(ctx, id, args, onUpdate, tc)
}

func call(id, name string) agent.ToolCallPart {
	return agent.ToolCallPart{ID: id, Name: name, Arguments: json.RawMessage(`{}`)}
}

func drainResult(t *testing.T, st *stream.Stream[agent.AgentMessage]) {
	t.Helper()
	// Nothing in this package's tests needs the event stream's contents, but
	// the scheduler's Push calls would block once the 64-slot buffer fills on
	// a long batch, so a background drain keeps Run from stalling.
	go func() {
		for range st.Events() {
		}
	}()
}

func TestRunPreservesDeclarationOrderDespiteOutOfOrderCompletion(t *testing.T) {
	// call "slow" finishes last in wall-clock time but is declared first;
	// Run must still emit it first.
	release2 := make(chan struct{})
	release1 := make(chan struct{})

	reg := tools.NewRegistry([]agent.AgentTool{
		fakeTool{name: "slow", execute: func(ctx context.Context, id string, args json.RawMessage, onUpdate func(agent.ToolUpdate), tc agent.ToolCallContext) (agent.ToolResult, error) {
			<-release2
			return agent.TextResult("slow done", false), nil
		}},
		fakeTool{name: "medium", execute: func(ctx context.Context, id string, args json.RawMessage, onUpdate func(agent.ToolUpdate), tc agent.ToolCallContext) (agent.ToolResult, error) {
			<-release1
			return agent.TextResult("medium done", false), nil
		}},
		fakeTool{name: "fast", execute: func(ctx context.Context, id string, args json.RawMessage, onUpdate func(agent.ToolUpdate), tc agent.ToolCallContext) (agent.ToolResult, error) {
			return agent.TextResult("fast done", false), nil
		}},
	})

	calls := []agent.ToolCallPart{call("1", "slow"), call("2", "medium"), call("3", "fast")}
	st := stream.New[agent.AgentMessage](stream.DefaultBuffer)
	drainResult(t, st)

	done := make(chan Result)
	go func() {
		done <- Run(context.Background(), calls, reg, st, steering.None, Config{})
	}()

	// Let "fast" resolve on its own, then release "medium" before "slow" so
	// completion order is fast, medium, slow — the reverse of declaration.
	time.Sleep(20 * time.Millisecond)
	close(release1)
	time.Sleep(20 * time.Millisecond)
	close(release2)

	var result Result
	select {
	case result = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return in time")
	}

	require.Equal(t, OutcomeCompleted, result.Outcome)
	require.Len(t, result.ToolResults, 3)
	require.Equal(t, "1", result.ToolResults[0].ToolCallID)
	require.Equal(t, "2", result.ToolResults[1].ToolCallID)
	require.Equal(t, "3", result.ToolResults[2].ToolCallID)
}

func TestRunExecutesCallsConcurrently(t *testing.T) {
	const n = 3
	var mu sync.Mutex
	started := 0
	allStarted := make(chan struct{})
	var once sync.Once
	release := make(chan struct{})

	mkTool := func(name string) agent.AgentTool {
		return fakeTool{name: name, execute: func(ctx context.Context, id string, args json.RawMessage, onUpdate func(agent.ToolUpdate), tc agent.ToolCallContext) (agent.ToolResult, error) {
			mu.Lock()
			started++
			reached := started == n
			mu.Unlock()
			if reached {
				once.Do(func() { close(allStarted) })
			}
			<-release
			return agent.TextResult(name+" done", false), nil
		}}
	}

	reg := tools.NewRegistry([]agent.AgentTool{mkTool("a"), mkTool("b"), mkTool("c")})
	calls := []agent.ToolCallPart{call("1", "a"), call("2", "b"), call("3", "c")}
	st := stream.New[agent.AgentMessage](stream.DefaultBuffer)
	drainResult(t, st)

	done := make(chan Result)
	go func() {
		done <- Run(context.Background(), calls, reg, st, steering.None, Config{})
	}()

	select {
	case <-allStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("not all calls started concurrently before the timeout")
	}
	close(release)

	select {
	case result := <-done:
		require.Equal(t, OutcomeCompleted, result.Outcome)
		require.Len(t, result.ToolResults, 3)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return in time")
	}
}

func TestRunSynthesizesAbortedResultsForCallsThatIgnoreCancellation(t *testing.T) {
	never := make(chan struct{})
	reg := tools.NewRegistry([]agent.AgentTool{
		fakeTool{name: "stubborn", execute: func(ctx context.Context, id string, args json.RawMessage, onUpdate func(agent.ToolUpdate), tc agent.ToolCallContext) (agent.ToolResult, error) {
			<-never // ignores ctx entirely, as if the implementation never checks it
			return agent.TextResult("unreachable", false), nil
		}},
	})

	calls := []agent.ToolCallPart{call("1", "stubborn")}
	st := stream.New[agent.AgentMessage](stream.DefaultBuffer)
	drainResult(t, st)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := Run(ctx, calls, reg, st, steering.None, Config{AbortGracePeriod: 30 * time.Millisecond})

	require.Equal(t, OutcomeAborted, result.Outcome)
	require.Len(t, result.ToolResults, 1)
	require.True(t, result.ToolResults[0].IsError)
	require.Equal(t, "Tool execution was aborted.", result.ToolResults[0].Text())
	close(never)
}

func TestRunShortCircuitsOnSteeringAndSkipsRemainingCalls(t *testing.T) {
	resolved := make(chan struct{})
	blocked := make(chan struct{})

	reg := tools.NewRegistry([]agent.AgentTool{
		fakeTool{name: "quick", execute: func(ctx context.Context, id string, args json.RawMessage, onUpdate func(agent.ToolUpdate), tc agent.ToolCallContext) (agent.ToolResult, error) {
			close(resolved)
			return agent.TextResult("quick done", false), nil
		}},
		fakeTool{name: "never-runs", execute: func(ctx context.Context, id string, args json.RawMessage, onUpdate func(agent.ToolUpdate), tc agent.ToolCallContext) (agent.ToolResult, error) {
			<-blocked
			return agent.TextResult("unreachable", false), nil
		}},
	})

	calls := []agent.ToolCallPart{call("1", "quick"), call("2", "never-runs")}
	st := stream.New[agent.AgentMessage](stream.DefaultBuffer)
	drainResult(t, st)

	steerMsg := agent.NewUserMessage("stop, do this instead", time.Now())
	var polls int
	var mu sync.Mutex
	adapter := steering.Adapter(func(ctx context.Context) ([]agent.AgentMessage, error) {
		mu.Lock()
		defer mu.Unlock()
		polls++
		if polls == 1 {
			<-resolved
			return []agent.AgentMessage{steerMsg}, nil
		}
		return nil, nil
	})

	result := Run(context.Background(), calls, reg, st, adapter, Config{})
	close(blocked)

	require.Equal(t, OutcomeSteered, result.Outcome)
	require.Equal(t, []agent.AgentMessage{steerMsg}, result.SteeringMessages)
	require.Len(t, result.ToolResults, 2)
	require.False(t, result.ToolResults[0].IsError)
	require.True(t, result.ToolResults[1].IsError)
	require.Equal(t, skippedBody, result.ToolResults[1].Text())
}

func TestRunRejectsUnknownToolWithoutDispatching(t *testing.T) {
	reg := tools.NewRegistry(nil)
	calls := []agent.ToolCallPart{call("1", "ghost")}
	st := stream.New[agent.AgentMessage](stream.DefaultBuffer)
	drainResult(t, st)

	result := Run(context.Background(), calls, reg, st, steering.None, Config{})

	require.Equal(t, OutcomeCompleted, result.Outcome)
	require.Len(t, result.ToolResults, 1)
	require.True(t, result.ToolResults[0].IsError)
	require.Contains(t, result.ToolResults[0].Text(), "unknown tool")
}

func TestRunRejectsArgumentsFailingSchemaValidation(t *testing.T) {
	params := map[string]any{
		"type":       "object",
		"properties": map[string]any{"query": map[string]any{"type": "string"}},
		"required":   []any{"query"},
	}
	reg := tools.NewRegistry([]agent.AgentTool{
		fakeTool{name: "search", params: params, execute: func(ctx context.Context, id string, args json.RawMessage, onUpdate func(agent.ToolUpdate), tc agent.ToolCallContext) (agent.ToolResult, error) {
			t.Fatal("Execute must not run for arguments that fail validation")
			return agent.ToolResult{}, nil
		}},
	})

	calls := []agent.ToolCallPart{{ID: "1", Name: "search", Arguments: json.RawMessage(`{}`)}}
	st := stream.New[agent.AgentMessage](stream.DefaultBuffer)
	drainResult(t, st)

	result := Run(context.Background(), calls, reg, st, steering.None, Config{})

	require.Equal(t, OutcomeCompleted, result.Outcome)
	require.True(t, result.ToolResults[0].IsError)
}

func TestRunWrapsExecuteFailureAsErrorResult(t *testing.T) {
	wantErr := errors.New("downstream unavailable")
	reg := tools.NewRegistry([]agent.AgentTool{
		fakeTool{name: "flaky", execute: func(ctx context.Context, id string, args json.RawMessage, onUpdate func(agent.ToolUpdate), tc agent.ToolCallContext) (agent.ToolResult, error) {
			return agent.ToolResult{}, wantErr
		}},
	})

	calls := []agent.ToolCallPart{call("1", "flaky")}
	st := stream.New[agent.AgentMessage](stream.DefaultBuffer)
	drainResult(t, st)

	result := Run(context.Background(), calls, reg, st, steering.None, Config{})

	require.True(t, result.ToolResults[0].IsError)
	require.Contains(t, result.ToolResults[0].Text(), wantErr.Error())
}

func TestRunPassesToolCallContextWithBatchSiblings(t *testing.T) {
	var seen agent.ToolCallContext
	reg := tools.NewRegistry([]agent.AgentTool{
		fakeTool{name: "alpha", execute: func(ctx context.Context, id string, args json.RawMessage, onUpdate func(agent.ToolUpdate), tc agent.ToolCallContext) (agent.ToolResult, error) {
			seen = tc
			return agent.TextResult("ok", false), nil
		}},
		fakeTool{name: "beta", execute: func(ctx context.Context, id string, args json.RawMessage, onUpdate func(agent.ToolUpdate), tc agent.ToolCallContext) (agent.ToolResult, error) {
			return agent.TextResult("ok", false), nil
		}},
	})

	calls := []agent.ToolCallPart{call("1", "alpha"), call("2", "beta")}
	st := stream.New[agent.AgentMessage](stream.DefaultBuffer)
	drainResult(t, st)

	Run(context.Background(), calls, reg, st, steering.None, Config{})

	require.Equal(t, 0, seen.Index)
	require.Equal(t, 2, seen.Total)
	require.Len(t, seen.ToolCalls, 2)
	require.Equal(t, "beta", seen.ToolCalls[1].Name)
}

func TestRunForwardsOnUpdateAsADistinctProgressEvent(t *testing.T) {
	reg := tools.NewRegistry([]agent.AgentTool{
		fakeTool{name: "reporter", execute: func(ctx context.Context, id string, args json.RawMessage, onUpdate func(agent.ToolUpdate), tc agent.ToolCallContext) (agent.ToolResult, error) {
			onUpdate(agent.ToolUpdate{ToolCallID: id})
			return agent.TextResult("ok", false), nil
		}},
	})

	calls := []agent.ToolCallPart{call("1", "reporter")}
	st := stream.New[agent.AgentMessage](stream.DefaultBuffer)

	var types []stream.EventType
	var mu sync.Mutex
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range st.Events() {
			mu.Lock()
			types = append(types, e.Type)
			mu.Unlock()
		}
	}()

	Run(context.Background(), calls, reg, st, steering.None, Config{})
	st.Done(nil, nil)
	<-done

	require.Contains(t, types, stream.EventToolExecutionStart)
	require.Contains(t, types, stream.EventToolExecutionProgress)
	require.Contains(t, types, stream.EventToolExecutionEnd)

	var startCount, progressCount int
	for _, typ := range types {
		switch typ {
		case stream.EventToolExecutionStart:
			startCount++
		case stream.EventToolExecutionProgress:
			progressCount++
		}
	}
	require.Equal(t, 1, startCount, "start must not be reused for progress updates")
	require.Equal(t, 1, progressCount)
}
