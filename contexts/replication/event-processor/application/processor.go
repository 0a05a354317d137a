package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"schemabridge/contexts/replication/event-processor/domain/entities"
	domainerrors "schemabridge/contexts/replication/event-processor/domain/errors"
	"schemabridge/contexts/replication/event-processor/domain/services"
	"schemabridge/contexts/replication/event-processor/ports"
	"schemabridge/internal/platform/retry"
	"schemabridge/internal/shared/events"
	"schemabridge/internal/shared/outbox"
)

// EventProcessor owns the consume loop of one flow direction.
// Each pass: assemble a batch, resolve dependencies, sort the ready
// envelopes, dispatch them, commit the consumed offsets. Envelopes whose
// dependencies stay unresolved are carried into the next pass, and no offset
// at or past theirs is committed on their partition until they leave.
type EventProcessor struct {
	Direction   events.Direction
	Source      ports.MessageSource
	Resolver    DependencyResolver
	Commands    CommandTable
	Retry       retry.Policy
	Metrics     ports.ProcessorMetrics
	State       *RunState
	BatchSize   int
	PollTimeout time.Duration
	Logger      *slog.Logger

	// mu serializes passes; the consumer handle is not shared concurrently.
	mu          sync.Mutex
	deferred    []*pendingEvent
	uncommitted []ports.RawMessage
}

// PassReport summarizes one processing pass.
type PassReport struct {
	Consumed int
	Ignored  int
	Applied  int
	Failed   int
	Deferred int
}

type pendingEvent struct {
	envelope   events.ChangeEnvelope
	msg        ports.RawMessage
	state      entities.ProcessingState
	resolution Resolution
	passes     int
}

func (e *pendingEvent) moveTo(next entities.ProcessingState) {
	if moved, err := e.state.Transition(next); err == nil {
		e.state = moved
	}
}

// Run processes passes until ctx is cancelled. Per-envelope failures never
// end the loop.
func (p *EventProcessor) Run(ctx context.Context) error {
	if !p.Direction.Valid() {
		return domainerrors.ErrInvalidDirection
	}
	logger := ResolveLogger(p.Logger)
	p.State.update(p.Direction, func(s *DirectionStatus) { s.Running = true })
	defer p.State.update(p.Direction, func(s *DirectionStatus) { s.Running = false })

	logger.Info("event processor started",
		"event", "event_processor_started",
		"module", moduleName,
		"layer", "worker",
		"direction", p.Direction,
		"batch_size", p.batchSize(),
	)
	for ctx.Err() == nil {
		if _, err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
			logger.Error("event processing pass failed",
				"event", "event_processor_pass_failed",
				"module", moduleName,
				"layer", "worker",
				"direction", p.Direction,
				"error", err.Error(),
			)
			p.State.update(p.Direction, func(s *DirectionStatus) { s.LastError = err.Error() })
		}
	}
	logger.Info("event processor stopped",
		"event", "event_processor_stopped",
		"module", moduleName,
		"layer", "worker",
		"direction", p.Direction,
		"deferred", p.DeferredCount(),
	)
	return nil
}

// RunOnce executes a single processing pass.
func (p *EventProcessor) RunOnce(ctx context.Context) (PassReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	logger := ResolveLogger(p.Logger)
	stream := &consumerStream{
		source:    p.Source,
		direction: p.Direction,
		metrics:   p.Metrics,
		logger:    logger,
	}
	batch := newPassBatch(stream)
	for _, carried := range p.deferred {
		carried.passes++
		carried.moveTo(entities.StateResolving)
		batch.add(carried)
	}
	p.deferred = nil

	for batch.fresh < p.batchSize() && ctx.Err() == nil {
		envelope, ok, err := stream.Next(ctx, p.pollTimeout())
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("broker poll failed",
					"event", "event_processor_poll_failed",
					"module", moduleName,
					"layer", "worker",
					"direction", p.Direction,
					"error", err.Error(),
				)
			}
			break
		}
		if !ok {
			break
		}
		batch.Append(envelope)
	}

	report := PassReport{Consumed: len(stream.consumed), Ignored: stream.ignored}
	if len(batch.items) == 0 {
		return report, p.commit(ctx, stream)
	}

	// Stream waits of the whole pass share one MaxWait budget. Carried
	// envelopes already waited once; the fresh polls and the batch cover them.
	stream.waitUntil = p.Resolver.now().Add(p.Resolver.Config.MaxWait)
	for i := 0; i < len(batch.items); i++ {
		item := batch.items[i]
		if ctx.Err() != nil {
			item.moveTo(entities.StateDeferred)
			continue
		}
		var live Stream
		if item.passes == 0 {
			live = stream
		}
		item.resolution = p.Resolver.Resolve(ctx, item.envelope, batch, live)
		if item.resolution.Ready {
			item.moveTo(entities.StateReady)
		} else {
			item.moveTo(entities.StateDeferred)
		}
	}
	report.Consumed = len(stream.consumed)
	report.Ignored = stream.ignored
	demoteOrphans(batch.items, p.Resolver.Lists)

	ready := make([]*pendingEvent, 0, len(batch.items))
	for _, item := range batch.items {
		if item.state == entities.StateReady {
			item.moveTo(entities.StateSorted)
			ready = append(ready, item)
		}
	}
	ready = services.SortByPriority(ready, func(e *pendingEvent) events.ChangeEnvelope { return e.envelope }, p.Resolver.Lists)

	cancelled := false
	for _, item := range ready {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		item.moveTo(entities.StateDispatching)
		p.dispatch(ctx, item)
		switch item.state {
		case entities.StateApplied:
			report.Applied++
		case entities.StateFailed:
			report.Failed++
		case entities.StateIgnored:
			report.Ignored++
		}
	}

	applied := make(map[string]struct{})
	for _, item := range batch.items {
		if item.state == entities.StateApplied {
			applied[item.envelope.Key()] = struct{}{}
		}
	}
	for _, item := range batch.items {
		if item.state == entities.StateDeferred {
			p.deferred = append(p.deferred, item)
			// A stream hit may have cached this envelope's fact before it
			// was deferred.
			if _, ok := applied[item.envelope.Key()]; !ok && item.envelope.EventType != events.EventDeleted {
				p.Resolver.forget(ctx, item.envelope.Key())
			}
			logger.Info("envelope deferred",
				"event", "event_processor_envelope_deferred",
				"module", moduleName,
				"layer", "worker",
				"direction", p.Direction,
				"unique_identifier", item.envelope.UniqueIdentifier,
				"aggregate_type", item.envelope.AggregateType,
				"aggregate_id", item.envelope.AggregateID,
				"passes", item.passes,
			)
		}
	}
	report.Deferred = len(p.deferred)
	if p.Metrics != nil {
		p.Metrics.Deferred(p.Direction, len(p.deferred))
	}
	p.State.update(p.Direction, func(s *DirectionStatus) {
		s.Passes++
		s.Received += uint64(batch.fresh)
		s.Ignored += uint64(report.Ignored)
		s.Applied += uint64(report.Applied)
		s.Failed += uint64(report.Failed)
		s.Deferred = len(p.deferred)
		s.LastPassAt = time.Now().UTC()
	})

	if cancelled {
		// Offsets stay uncommitted; the broker redelivers and the ledger
		// absorbs what was already applied.
		p.uncommitted = append(p.uncommitted, stream.consumed...)
		stream.consumed = nil
		return report, ctx.Err()
	}
	return report, p.commit(ctx, stream)
}

// DeferredCount is the number of envelopes waiting for a later pass.
func (p *EventProcessor) DeferredCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.deferred)
}

func (p *EventProcessor) dispatch(ctx context.Context, item *pendingEvent) {
	logger := ResolveLogger(p.Logger)
	envelope := item.envelope
	command := p.Commands.Lookup(KeyFor(envelope))
	if !command.Found() {
		logger.Warn("no command registered for envelope",
			"event", "event_processor_unknown_command",
			"module", moduleName,
			"layer", "worker",
			"direction", envelope.Direction,
			"table", envelope.Table,
			"event_type", envelope.EventType,
			"unique_identifier", envelope.UniqueIdentifier,
		)
		item.moveTo(entities.StateIgnored)
		if p.Metrics != nil {
			p.Metrics.Ignored(p.Direction, "unknown_command")
		}
		return
	}

	// An apply that has started runs to completion even if ctx is cancelled.
	applyCtx := context.WithoutCancel(ctx)
	err := retry.Do(ctx, p.Retry, func(context.Context) error {
		return command.Apply(applyCtx, envelope)
	}, func(attempt int, err error, wait time.Duration) {
		logger.Warn("envelope apply failed, retrying",
			"event", "event_processor_apply_retry",
			"module", moduleName,
			"layer", "worker",
			"direction", envelope.Direction,
			"unique_identifier", envelope.UniqueIdentifier,
			"attempt", attempt,
			"wait", wait.String(),
			"error", err.Error(),
		)
	})
	if err != nil {
		item.moveTo(entities.StateFailed)
		if p.Metrics != nil {
			p.Metrics.Failed(p.Direction, envelope.AggregateType)
		}
		logger.Error("envelope apply failed",
			"event", "event_processor_apply_failed",
			"module", moduleName,
			"layer", "worker",
			"direction", envelope.Direction,
			"unique_identifier", envelope.UniqueIdentifier,
			"aggregate_type", envelope.AggregateType,
			"aggregate_id", envelope.AggregateID,
			"event_type", envelope.EventType,
			"error", err.Error(),
		)
		return
	}

	item.moveTo(entities.StateApplied)
	if p.Metrics != nil {
		p.Metrics.Applied(p.Direction, envelope.AggregateType)
	}
	if envelope.EventType != events.EventDeleted {
		p.Resolver.remember(ctx, envelope.Key())
	}
	logger.Debug("envelope applied",
		"event", "event_processor_envelope_applied",
		"module", moduleName,
		"layer", "worker",
		"direction", envelope.Direction,
		"unique_identifier", envelope.UniqueIdentifier,
		"aggregate_type", envelope.AggregateType,
		"aggregate_id", envelope.AggregateID,
	)
}

// commit acknowledges every consumed message that sits below the lowest
// deferred offset of its partition. The rest wait for a later pass.
func (p *EventProcessor) commit(ctx context.Context, stream *consumerStream) error {
	pending := append(p.uncommitted, stream.consumed...)
	stream.consumed = nil
	p.uncommitted = nil
	if len(pending) == 0 {
		return nil
	}

	floors := make(map[partitionKey]int64)
	for _, item := range p.deferred {
		key := partitionOf(item.msg)
		if floor, ok := floors[key]; !ok || item.msg.Offset < floor {
			floors[key] = item.msg.Offset
		}
	}
	ready := make([]ports.RawMessage, 0, len(pending))
	for _, msg := range pending {
		if floor, ok := floors[partitionOf(msg)]; ok && msg.Offset >= floor {
			p.uncommitted = append(p.uncommitted, msg)
			continue
		}
		ready = append(ready, msg)
	}
	if len(ready) == 0 {
		return nil
	}
	if err := p.Source.Commit(ctx, ready...); err != nil {
		p.uncommitted = append(ready, p.uncommitted...)
		return err
	}
	return nil
}

// UncommittedCount is the number of consumed messages held back from commit.
func (p *EventProcessor) UncommittedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.uncommitted)
}

type partitionKey struct {
	topic     string
	partition int
}

func partitionOf(msg ports.RawMessage) partitionKey {
	return partitionKey{topic: msg.Topic, partition: msg.Partition}
}

func (p *EventProcessor) batchSize() int {
	if p.BatchSize <= 0 {
		return 100
	}
	return p.BatchSize
}

func (p *EventProcessor) pollTimeout() time.Duration {
	if p.PollTimeout <= 0 {
		return 500 * time.Millisecond
	}
	return p.PollTimeout
}

// demoteOrphans defers ready envelopes whose prerequisite sits deferred in the
// same batch, however the prerequisite was confirmed.
func demoteOrphans(items []*pendingEvent, lists []entities.PriorityList) {
	for {
		deferredKeys := make(map[string]struct{})
		readyKeys := make(map[string]struct{})
		for _, item := range items {
			switch item.state {
			case entities.StateDeferred:
				deferredKeys[item.envelope.Key()] = struct{}{}
			case entities.StateReady:
				readyKeys[item.envelope.Key()] = struct{}{}
			}
		}
		changed := false
		for _, item := range items {
			if item.state != entities.StateReady {
				continue
			}
			for _, key := range prerequisiteKeys(item, lists) {
				_, deferred := deferredKeys[key]
				_, ready := readyKeys[key]
				if deferred && !ready {
					item.moveTo(entities.StateDeferred)
					changed = true
					break
				}
			}
		}
		if !changed {
			return
		}
	}
}

func prerequisiteKeys(item *pendingEvent, lists []entities.PriorityList) []string {
	keys := append([]string(nil), item.resolution.BatchKeys...)
	envelope := item.envelope
	if envelope.EventType == events.EventDeleted {
		return keys
	}
	for _, list := range lists {
		dependency, field, ok := list.Prerequisite(envelope.AggregateType)
		if !ok {
			continue
		}
		id := services.ExtractField(envelope, field)
		if id == "" || entities.AddressEmbeddedInEvent(dependency.EntityType, id) {
			continue
		}
		keys = append(keys, events.DependencyKey(dependency.EntityType, id))
	}
	return keys
}

// passBatch is the set of envelopes assembled for one pass.
type passBatch struct {
	items  []*pendingEvent
	keys   map[string]int
	fresh  int
	stream *consumerStream
}

func newPassBatch(stream *consumerStream) *passBatch {
	return &passBatch{keys: make(map[string]int), stream: stream}
}

func (b *passBatch) add(item *pendingEvent) {
	b.items = append(b.items, item)
	b.keys[item.envelope.Key()]++
}

// Append adds a newly consumed envelope; it must be the stream's latest.
func (b *passBatch) Append(envelope events.ChangeEnvelope) {
	item := &pendingEvent{envelope: envelope, state: entities.StateResolving}
	if b.stream != nil {
		item.msg = b.stream.last
	}
	b.fresh++
	b.add(item)
}

func (b *passBatch) Contains(aggregate events.AggregateType, id string) bool {
	return b.keys[events.DependencyKey(aggregate, id)] > 0
}

// consumerStream decodes a MessageSource, skipping snapshot and malformed
// messages, and remembers everything consumed for the commit.
type consumerStream struct {
	source    ports.MessageSource
	direction events.Direction
	metrics   ports.ProcessorMetrics
	logger    *slog.Logger
	consumed  []ports.RawMessage
	ignored   int
	last      ports.RawMessage
	waitUntil time.Time
}

func (s *consumerStream) WaitDeadline() time.Time {
	return s.waitUntil
}

func (s *consumerStream) Next(ctx context.Context, timeout time.Duration) (events.ChangeEnvelope, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return events.ChangeEnvelope{}, false, nil
		}
		msg, ok, err := s.source.Poll(ctx, remaining)
		if err != nil {
			return events.ChangeEnvelope{}, false, err
		}
		if !ok {
			return events.ChangeEnvelope{}, false, nil
		}
		s.consumed = append(s.consumed, msg)
		if s.metrics != nil {
			s.metrics.Received(s.direction)
		}

		result, err := services.Decode(msg.Value, s.direction, string(tableOf(msg)))
		if err != nil {
			s.ignored++
			if s.metrics != nil {
				s.metrics.Ignored(s.direction, "parse_error")
			}
			s.logger.Warn("skipping malformed envelope",
				"event", "event_processor_parse_failed",
				"module", moduleName,
				"layer", "worker",
				"direction", s.direction,
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err.Error(),
			)
			continue
		}
		if result.Ignored {
			s.ignored++
			if s.metrics != nil {
				s.metrics.Ignored(s.direction, "snapshot")
			}
			continue
		}
		s.last = msg
		return result.Envelope, true, nil
	}
}

// tableOf derives the outbox table from the topic; an empty topic leaves the
// envelope's own __table in charge.
func tableOf(msg ports.RawMessage) outbox.Table {
	if msg.Topic == "" {
		return ""
	}
	return outbox.TableFromTopic(msg.Topic)
}
