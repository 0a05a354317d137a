package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"schemabridge/internal/shared/events"
)

// RawMessage is one undecoded message taken off a consumer handle.
// Handle carries the adapter's native message for commit.
type RawMessage struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Handle    any
}

// MessageSource is a broker consumer handle for one flow direction.
// A handle is not safe for concurrent callers.
type MessageSource interface {
	// Poll waits up to timeout for the next message; ok is false on timeout.
	Poll(ctx context.Context, timeout time.Duration) (msg RawMessage, ok bool, err error)
	// Commit advances the delivery cursor past the given messages.
	Commit(ctx context.Context, messages ...RawMessage) error
	Close() error
}

// DependencyCache stores short-lived "dependency satisfied" facts keyed by
// events.DependencyKey. A miss is never authoritative.
type DependencyCache interface {
	IsSatisfied(ctx context.Context, key string) (bool, error)
	MarkSatisfied(ctx context.Context, key string) error
	// Forget withdraws a fact whose envelope was deferred after all.
	Forget(ctx context.Context, key string) error
}

// MappingChecker answers whether an entity already has a cross-schema mapping.
type MappingChecker interface {
	MappingExistsOld(ctx context.Context, oldID int64) (bool, error)
	MappingExistsNew(ctx context.Context, newID uuid.UUID) (bool, error)
}

// EntityApplier is the per-aggregate apply service driven by dispatch.
type EntityApplier interface {
	MappingChecker

	AddToNew(ctx context.Context, envelope events.ChangeEnvelope) error
	AddToOld(ctx context.Context, envelope events.ChangeEnvelope) error
	UpdateInNew(ctx context.Context, envelope events.ChangeEnvelope) error
	UpdateInOld(ctx context.Context, envelope events.ChangeEnvelope) error
	DeleteFromNew(ctx context.Context, envelope events.ChangeEnvelope) error
	DeleteFromOld(ctx context.Context, envelope events.ChangeEnvelope) error
}

// ProcessorMetrics receives processing outcomes per direction.
type ProcessorMetrics interface {
	Received(direction events.Direction)
	Ignored(direction events.Direction, reason string)
	Applied(direction events.Direction, aggregate events.AggregateType)
	Failed(direction events.Direction, aggregate events.AggregateType)
	Deferred(direction events.Direction, pending int)
	Resolved(direction events.Direction, source string)
}

type Clock interface {
	Now() time.Time
}
