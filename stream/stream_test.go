package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, s *Stream[string], timeout time.Duration) []Event[string] {
	t.Helper()
	var got []Event[string]
	deadline := time.After(timeout)
	for {
		select {
		case e, ok := <-s.Events():
			if !ok {
				return got
			}
			got = append(got, e)
		case <-deadline:
			t.Fatal("timed out waiting for events")
		}
	}
}

func TestPushPreservesBoundaryEventOrder(t *testing.T) {
	s := New[string](8)
	s.Push(Event[string]{Type: EventAgentStart})
	s.Push(Event[string]{Type: EventTurnStart})
	s.Push(Event[string]{Type: EventTurnEnd})
	s.Push(Event[string]{Type: EventAgentEnd})
	s.Done(nil, nil)

	events := drain(t, s, time.Second)
	require.Equal(t, []EventType{EventAgentStart, EventTurnStart, EventTurnEnd, EventAgentEnd}, typesOf(events))
}

func TestPushCoalescesRapidDeltasOfTheSameKind(t *testing.T) {
	// A zero-buffer channel makes a non-blocking Push fall through to the
	// pending map whenever no consumer is actively receiving, so issuing
	// these before draining starts deterministically exercises coalescing
	// instead of racing a concurrent reader for the first send.
	s := New[string](0)
	s.Push(Event[string]{Type: EventMessageDelta, BatchID: "1"})
	s.Push(Event[string]{Type: EventMessageDelta, BatchID: "2"})
	s.Push(Event[string]{Type: EventMessageDelta, BatchID: "3"})

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Push(Event[string]{Type: EventTurnEnd})
		s.Done(nil, nil)
	}()

	events := drain(t, s, time.Second)
	<-done

	// Only one message_delta should have survived coalescing, and it must be
	// the newest one observed, with turn_end still arriving after it.
	require.Len(t, events, 2)
	require.Equal(t, EventMessageDelta, events[0].Type)
	require.Equal(t, "3", events[0].BatchID)
	require.Equal(t, EventTurnEnd, events[1].Type)
}

func TestPushCoalescesIndependentlyPerDeltaKind(t *testing.T) {
	s := New[string](0)
	s.Push(Event[string]{Type: EventMessageDelta, BatchID: "text-1"})
	s.Push(Event[string]{Type: EventThinkingDelta, BatchID: "think-1"})
	s.Push(Event[string]{Type: EventMessageDelta, BatchID: "text-2"})

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Push(Event[string]{Type: EventTurnEnd})
		s.Done(nil, nil)
	}()

	events := drain(t, s, time.Second)
	<-done

	// text and thinking deltas occupy separate pending slots, so the last
	// thinking delta must survive alongside the last text delta.
	var sawText, sawThinking bool
	for _, e := range events {
		switch e.Type {
		case EventMessageDelta:
			require.Equal(t, "text-2", e.BatchID)
			sawText = true
		case EventThinkingDelta:
			require.Equal(t, "think-1", e.BatchID)
			sawThinking = true
		}
	}
	require.True(t, sawText)
	require.True(t, sawThinking)
}

func TestDoneIsIdempotentAndResultCaches(t *testing.T) {
	s := New[string](4)
	s.Done([]string{"a", "b"}, nil)
	s.Done([]string{"x"}, errors.New("ignored"))

	ctx := context.Background()
	msgs, err := s.Result(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, msgs)

	msgs2, err2 := s.Result(ctx)
	require.NoError(t, err2)
	require.Equal(t, msgs, msgs2)
}

func TestResultSurfacesFatalError(t *testing.T) {
	s := New[string](1)
	want := errors.New("boom")
	s.Done([]string{"partial"}, want)

	msgs, err := s.Result(context.Background())
	require.ErrorIs(t, err, want)
	require.Equal(t, []string{"partial"}, msgs)
}

func TestResultRespectsContextCancellation(t *testing.T) {
	s := New[string](1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Result(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func typesOf(events []Event[string]) []EventType {
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}
