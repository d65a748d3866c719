package stream

import (
	"context"
	"sync"
)

// DefaultBuffer is the channel capacity used when callers do not need to tune
// it. It only affects how many non-coalescible events may be in flight before
// Push blocks the producer.
const DefaultBuffer = 64

// Stream is a single-producer, multi-consumer typed event queue with a
// terminal Result future, implementing C1. Consumers range over Events()
// until it closes, then call Result to obtain the messages appended during
// the run (or the fatal error, if any).
//
// Stream owns no knowledge of the agent loop's message model; M is
// instantiated by callers (normally agent.AgentMessage) so this package has
// no dependency on the root package.
type Stream[M any] struct {
	events chan Event[M]

	mu      sync.Mutex
	pending map[EventType]Event[M]

	finishOnce     sync.Once
	finishCh       chan struct{}
	resultMessages []M
	resultErr      error
}

// New constructs a Stream with the given event buffer size. A buffer of zero
// is valid; it only makes Push synchronous with the consumer.
func New[M any](buffer int) *Stream[M] {
	if buffer < 0 {
		buffer = 0
	}
	return &Stream[M]{
		events:   make(chan Event[M], buffer),
		pending:  make(map[EventType]Event[M]),
		finishCh: make(chan struct{}),
	}
}

// Events returns the channel consumers range over. It closes once Done has
// been called and any pending coalesced events have been flushed.
func (s *Stream[M]) Events() <-chan Event[M] {
	return s.events
}

// Push enqueues an event. Terminal and boundary events (anything whose Type
// is not coalescible) are never dropped: Push flushes any pending coalesced
// event first, preserving relative ordering, then sends synchronously.
//
// Coalescible events (message_delta, thinking_delta) are coalesced per kind:
// if the channel is not immediately ready to accept, the new event replaces
// whatever was pending for that kind rather than blocking the producer.
//
// Push must not be called after Done; the agent loop driver is the sole
// producer and enforces this by construction (§5 ownership discipline).
func (s *Stream[M]) Push(e Event[M]) {
	if e.Type.IsDelta() {
		s.mu.Lock()
		select {
		case s.events <- e:
			delete(s.pending, e.Type)
		default:
			s.pending[e.Type] = e
		}
		s.mu.Unlock()
		return
	}
	s.flushPending()
	s.events <- e
}

func (s *Stream[M]) flushPending() {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[EventType]Event[M])
	s.mu.Unlock()
	for _, e := range pending {
		s.events <- e
	}
}

// Done marks the stream terminal: it flushes any pending coalesced event,
// closes the event channel so consumer iteration ends, and resolves Result.
// Only the first call has an effect.
func (s *Stream[M]) Done(messages []M, err error) {
	s.finishOnce.Do(func() {
		s.flushPending()
		s.resultMessages = messages
		s.resultErr = err
		close(s.events)
		close(s.finishCh)
	})
}

// Result blocks until the stream terminates (or ctx is done) and returns the
// messages appended during the run. It may be called more than once; every
// call after the first returns the cached outcome. A fatal run error is
// returned here with the same error surfaced through an EventError on the
// stream, per §7's propagation policy.
func (s *Stream[M]) Result(ctx context.Context) ([]M, error) {
	select {
	case <-s.finishCh:
		return s.resultMessages, s.resultErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
