package messaging

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// ReaderConfig selects the topics one consumer handle reads.
type ReaderConfig struct {
	Brokers       []string
	ConsumerGroup string
	Topics        []string
	MaxWait       time.Duration
}

// NewReader builds a consumer-group reader. Offsets are committed explicitly
// by the caller after a batch is applied.
func NewReader(cfg ReaderConfig, logger *slog.Logger) (*kafka.Reader, error) {
	brokers := compact(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	topics := compact(cfg.Topics)
	if len(topics) == 0 {
		return nil, errors.New("kafka topics are required")
	}
	if strings.TrimSpace(cfg.ConsumerGroup) == "" {
		return nil, errors.New("kafka consumer group is required")
	}
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        cfg.ConsumerGroup,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        maxWait,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			logger.Warn("kafka reader error",
				"event", "kafka_reader_error",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"consumer_group", cfg.ConsumerGroup,
				"detail", formatKafkaLog(msg, args...),
			)
		}),
	}), nil
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value != "" {
			out = append(out, value)
		}
	}
	return out
}
