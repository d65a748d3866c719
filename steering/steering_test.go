package steering

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	agent "github.com/flowcore-ai/agentloop"
)

func TestNoneAlwaysReturnsEmpty(t *testing.T) {
	msgs, err := None(context.Background())
	require.NoError(t, err)
	require.Nil(t, msgs)
}

func TestQueueDrainsInPushOrderAndEmptiesAfterward(t *testing.T) {
	q := NewQueue()
	first := agent.NewUserMessage("hold on", time.Now())
	second := agent.NewUserMessage("actually do this instead", time.Now())
	q.Push(first, second)

	adapter := q.Adapter()
	msgs, err := adapter(context.Background())
	require.NoError(t, err)
	require.Equal(t, []agent.AgentMessage{first, second}, msgs)

	// draining empties the queue; the next poll sees nothing queued
	msgs2, err2 := adapter(context.Background())
	require.NoError(t, err2)
	require.Nil(t, msgs2)
}

func TestQueueAccumulatesAcrossMultiplePushesBeforeADrain(t *testing.T) {
	q := NewQueue()
	q.Push(agent.NewUserMessage("one", time.Now()))
	q.Push(agent.NewUserMessage("two", time.Now()))

	msgs, err := q.Adapter()(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
}

func TestQueueIsSafeForConcurrentPush(t *testing.T) {
	q := NewQueue()
	const n = 50
	done := make(chan struct{})
	for i := 0; i < n; i++ {
		go func() {
			q.Push(agent.NewUserMessage("concurrent", time.Now()))
			done <- struct{}{}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}

	msgs, err := q.Adapter()(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, n)
}
