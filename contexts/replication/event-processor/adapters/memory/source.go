package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"schemabridge/contexts/replication/event-processor/ports"
)

var ErrSourceClosed = errors.New("memory source closed")

// Source is an in-process queue standing in for a broker consumer handle.
type Source struct {
	mu        sync.Mutex
	queue     []ports.RawMessage
	committed []ports.RawMessage
	offset    int64
	closed    bool
	signal    chan struct{}
}

func NewSource() *Source {
	return &Source{signal: make(chan struct{}, 1)}
}

// Publish enqueues a raw message value on topic.
func (s *Source) Publish(topic string, value []byte) {
	s.mu.Lock()
	s.queue = append(s.queue, ports.RawMessage{
		Topic:  topic,
		Offset: s.offset,
		Value:  append([]byte(nil), value...),
	})
	s.offset++
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Source) Poll(ctx context.Context, timeout time.Duration) (ports.RawMessage, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ports.RawMessage{}, false, ErrSourceClosed
		}
		if len(s.queue) > 0 {
			msg := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return msg, true, nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ports.RawMessage{}, false, ctx.Err()
		case <-timer.C:
			return ports.RawMessage{}, false, nil
		case <-s.signal:
		}
	}
}

func (s *Source) Commit(_ context.Context, messages ...ports.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = append(s.committed, messages...)
	return nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Committed returns the messages acknowledged so far.
func (s *Source) Committed() []ports.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.RawMessage(nil), s.committed...)
}

// Pending counts messages not yet polled.
func (s *Source) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
