package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"schemabridge/contexts/replication/event-processor/ports"
)

// Reader is the subset of *kafka.Reader the source drives.
type Reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Source adapts a consumer-group reader to ports.MessageSource.
type Source struct {
	Reader Reader
}

func NewSource(reader Reader) *Source {
	return &Source{Reader: reader}
}

func (s *Source) Poll(ctx context.Context, timeout time.Duration) (ports.RawMessage, bool, error) {
	if err := ctx.Err(); err != nil {
		return ports.RawMessage{}, false, err
	}
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := s.Reader.FetchMessage(pollCtx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return ports.RawMessage{}, false, nil
		}
		return ports.RawMessage{}, false, fmt.Errorf("fetch kafka message: %w", err)
	}
	return ports.RawMessage{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		Handle:    msg,
	}, true, nil
}

func (s *Source) Commit(ctx context.Context, messages ...ports.RawMessage) error {
	native := make([]kafkago.Message, 0, len(messages))
	for _, message := range messages {
		if msg, ok := message.Handle.(kafkago.Message); ok {
			native = append(native, msg)
			continue
		}
		native = append(native, kafkago.Message{
			Topic:     message.Topic,
			Partition: message.Partition,
			Offset:    message.Offset,
		})
	}
	if len(native) == 0 {
		return nil
	}
	if err := s.Reader.CommitMessages(ctx, native...); err != nil {
		return fmt.Errorf("commit kafka offsets: %w", err)
	}
	return nil
}

func (s *Source) Close() error {
	return s.Reader.Close()
}
