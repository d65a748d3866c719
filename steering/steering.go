// Package steering implements the Steering Queue Adapter (C5): the caller
// extension point that supplies mid-run user injections.
package steering

import (
	"context"
	"sync"

	agent "github.com/flowcore-ai/agentloop"
)

// Adapter fetches queued messages at the three moments described in §4.5:
// before each model turn, after each tool execution completes, and after a
// synthesized-abort tool-result batch. Returning (nil, nil) means nothing is
// queued.
type Adapter func(ctx context.Context) ([]agent.AgentMessage, error)

// None is the default adapter used when the caller does not supply one: the
// core then behaves as if steering always returns an empty sequence.
func None(context.Context) ([]agent.AgentMessage, error) {
	return nil, nil
}

// Queue is a ready-made in-process Adapter: callers Push messages from
// wherever they receive them (an HTTP handler, a CLI, a websocket) and the
// loop drains them the next time it polls. Grounded on the spirit of the
// teacher's interrupt.Controller but deliberately simplified to a plain
// queue, since the core only ever polls — it never needs to be woken up.
type Queue struct {
	mu       sync.Mutex
	messages []agent.AgentMessage
}

// NewQueue constructs an empty Queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push enqueues messages to be returned by the next Adapter call.
func (q *Queue) Push(messages ...agent.AgentMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, messages...)
}

// Adapter returns the Adapter function the loop should be configured with.
func (q *Queue) Adapter() Adapter {
	return func(context.Context) ([]agent.AgentMessage, error) {
		q.mu.Lock()
		defer q.mu.Unlock()
		if len(q.messages) == 0 {
			return nil, nil
		}
		drained := q.messages
		q.messages = nil
		return drained, nil
	}
}
