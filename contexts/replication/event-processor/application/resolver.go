package application

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"schemabridge/contexts/replication/event-processor/domain/entities"
	"schemabridge/contexts/replication/event-processor/domain/services"
	"schemabridge/contexts/replication/event-processor/ports"
	"schemabridge/internal/platform/retry"
	"schemabridge/internal/shared/events"
)

// ResolutionSource names how a dependency was confirmed.
type ResolutionSource string

const (
	SourceSkipped ResolutionSource = "skipped"
	SourceCache   ResolutionSource = "cache"
	SourceBatch   ResolutionSource = "batch"
	SourceStream  ResolutionSource = "stream"
	SourceMapping ResolutionSource = "mapping"
)

// Resolution is the outcome of resolving one envelope.
type Resolution struct {
	Ready bool
	// BatchKeys are the dependency keys satisfied by an envelope sitting in
	// the current batch; that envelope must be dispatched before this one.
	BatchKeys []string
	// Missing lists the dependencies that could not be confirmed.
	Missing []entities.PriorityDependency
}

// Stream is the decoded live stream the resolver may pull further envelopes
// from while it waits.
type Stream interface {
	Next(ctx context.Context, timeout time.Duration) (events.ChangeEnvelope, bool, error)
}

// BoundedStream is a Stream whose waits share one deadline, typically the
// end of the pass's wait budget. A zero deadline means unbounded.
type BoundedStream interface {
	Stream
	WaitDeadline() time.Time
}

// Batch is the unsorted set of envelopes being assembled in a pass.
type Batch interface {
	Contains(aggregate events.AggregateType, id string) bool
	Append(envelope events.ChangeEnvelope)
}

type ResolverConfig struct {
	Delay             time.Duration
	AdditionalConsume time.Duration
	MaxWait           time.Duration
	// StrictMissingDependency defers events whose dependency id is absent
	// instead of letting them through.
	StrictMissingDependency bool
}

type DependencyResolver struct {
	Lists    []entities.PriorityList
	Cache    ports.DependencyCache
	Mappings map[events.AggregateType]ports.MappingChecker
	Clock    ports.Clock
	Retry    retry.Policy
	Metrics  ports.ProcessorMetrics
	Config   ResolverConfig
	Logger   *slog.Logger
}

// Resolve checks every chain in which the envelope's aggregate is a
// dependent. Each prerequisite is confirmed through, in order: the dependency
// cache, the current batch, the live stream, and the mapping store.
func (r DependencyResolver) Resolve(
	ctx context.Context,
	envelope events.ChangeEnvelope,
	batch Batch,
	stream Stream,
) Resolution {
	result := Resolution{Ready: true}
	for _, list := range r.Lists {
		dependency, field, ok := list.Prerequisite(envelope.AggregateType)
		if !ok {
			continue
		}
		source, satisfied := r.resolveOne(ctx, envelope, dependency, field, batch, stream)
		if !satisfied {
			result.Ready = false
			result.Missing = append(result.Missing, dependency)
			continue
		}
		if source == SourceBatch || source == SourceStream {
			result.BatchKeys = append(result.BatchKeys, events.DependencyKey(dependency.EntityType, services.ExtractField(envelope, field)))
		}
		if r.Metrics != nil {
			r.Metrics.Resolved(envelope.Direction, string(source))
		}
	}
	return result
}

func (r DependencyResolver) resolveOne(
	ctx context.Context,
	envelope events.ChangeEnvelope,
	dependency entities.PriorityDependency,
	field string,
	batch Batch,
	stream Stream,
) (ResolutionSource, bool) {
	logger := ResolveLogger(r.Logger)

	// Deletions never need their prerequisite re-validated.
	if envelope.EventType == events.EventDeleted {
		return SourceSkipped, true
	}

	expectedID := services.ExtractField(envelope, field)
	if entities.AddressEmbeddedInEvent(dependency.EntityType, expectedID) {
		return SourceSkipped, true
	}
	if expectedID == "" {
		logger.Warn("dependency id missing from envelope",
			"event", "dependency_id_missing",
			"module", moduleName,
			"layer", "application",
			"unique_identifier", envelope.UniqueIdentifier,
			"aggregate_type", envelope.AggregateType,
			"dependency_type", dependency.EntityType,
			"field", field,
			"strict", r.Config.StrictMissingDependency,
		)
		return SourceSkipped, !r.Config.StrictMissingDependency
	}

	key := events.DependencyKey(dependency.EntityType, expectedID)
	if r.cached(ctx, key) {
		return SourceCache, true
	}

	// A batch member is not applied yet; its fact is cached once it is.
	if batch != nil && batch.Contains(dependency.EntityType, expectedID) {
		return SourceBatch, true
	}

	if stream != nil && r.waitOnStream(ctx, dependency.EntityType, expectedID, batch, stream) {
		r.remember(ctx, key)
		return SourceStream, true
	}

	if r.mappingExists(ctx, envelope.Direction, dependency.EntityType, expectedID) {
		r.remember(ctx, key)
		return SourceMapping, true
	}

	logger.Info("dependency unresolved",
		"event", "dependency_unresolved",
		"module", moduleName,
		"layer", "application",
		"unique_identifier", envelope.UniqueIdentifier,
		"aggregate_type", envelope.AggregateType,
		"aggregate_id", envelope.AggregateID,
		"dependency_key", key,
	)
	return "", false
}

// waitOnStream consumes the live stream until the dependency shows up or the
// wait budget runs out. Every consumed envelope is kept in the batch. After a
// match the stream is drained for a short grace window so late duplicates
// land in the same batch.
func (r DependencyResolver) waitOnStream(
	ctx context.Context,
	dependency events.AggregateType,
	id string,
	batch Batch,
	stream Stream,
) bool {
	if r.Config.MaxWait <= 0 {
		return false
	}
	deadline := r.now().Add(r.Config.MaxWait)
	if bounded, ok := stream.(BoundedStream); ok {
		if until := bounded.WaitDeadline(); !until.IsZero() && until.Before(deadline) {
			deadline = until
		}
	}
	found := false
	for !found && ctx.Err() == nil && r.now().Before(deadline) {
		next, ok := r.pull(ctx, stream, minDuration(r.delay(), deadline.Sub(r.now())))
		if !ok {
			continue
		}
		// A deletion of the prerequisite does not satisfy it.
		if next.AggregateType == dependency && next.AggregateID == id && next.EventType != events.EventDeleted {
			found = true
		}
		if batch != nil {
			batch.Append(next)
		}
	}
	if !found {
		return false
	}

	grace := r.now().Add(r.Config.AdditionalConsume)
	for ctx.Err() == nil && r.now().Before(grace) {
		next, ok := r.pull(ctx, stream, minDuration(r.delay(), grace.Sub(r.now())))
		if ok && batch != nil {
			batch.Append(next)
		}
	}
	return true
}

func (r DependencyResolver) pull(ctx context.Context, stream Stream, timeout time.Duration) (events.ChangeEnvelope, bool) {
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	next, ok, err := stream.Next(ctx, timeout)
	if err != nil {
		if ctx.Err() == nil {
			ResolveLogger(r.Logger).Warn("stream poll failed during dependency wait",
				"event", "dependency_wait_poll_failed",
				"module", moduleName,
				"layer", "application",
				"error", err.Error(),
			)
		}
		return events.ChangeEnvelope{}, false
	}
	return next, ok
}

func (r DependencyResolver) mappingExists(
	ctx context.Context,
	direction events.Direction,
	dependency events.AggregateType,
	id string,
) bool {
	checker, ok := r.Mappings[dependency]
	if !ok || checker == nil {
		return false
	}

	var exists bool
	check := func(ctx context.Context) error {
		var err error
		switch direction {
		case events.OldToNew:
			oldID, parseErr := strconv.ParseInt(id, 10, 64)
			if parseErr != nil {
				return retry.Permanent(parseErr)
			}
			exists, err = checker.MappingExistsOld(ctx, oldID)
		case events.NewToOld:
			newID, parseErr := uuid.Parse(id)
			if parseErr != nil {
				return retry.Permanent(parseErr)
			}
			exists, err = checker.MappingExistsNew(ctx, newID)
		}
		return err
	}
	if err := retry.Do(ctx, r.Retry, check, nil); err != nil {
		ResolveLogger(r.Logger).Warn("mapping lookup failed",
			"event", "dependency_mapping_lookup_failed",
			"module", moduleName,
			"layer", "application",
			"dependency_key", events.DependencyKey(dependency, id),
			"direction", direction,
			"error", err.Error(),
		)
		return false
	}
	return exists
}

func (r DependencyResolver) cached(ctx context.Context, key string) bool {
	if r.Cache == nil {
		return false
	}
	ok, err := r.Cache.IsSatisfied(ctx, key)
	if err != nil {
		ResolveLogger(r.Logger).Debug("dependency cache read failed",
			"event", "dependency_cache_read_failed",
			"module", moduleName,
			"layer", "application",
			"dependency_key", key,
			"error", err.Error(),
		)
		return false
	}
	return ok
}

func (r DependencyResolver) remember(ctx context.Context, key string) {
	if r.Cache == nil {
		return
	}
	if err := r.Cache.MarkSatisfied(ctx, key); err != nil {
		ResolveLogger(r.Logger).Debug("dependency cache write failed",
			"event", "dependency_cache_write_failed",
			"module", moduleName,
			"layer", "application",
			"dependency_key", key,
			"error", err.Error(),
		)
	}
}

func (r DependencyResolver) forget(ctx context.Context, key string) {
	if r.Cache == nil {
		return
	}
	if err := r.Cache.Forget(ctx, key); err != nil {
		ResolveLogger(r.Logger).Debug("dependency cache delete failed",
			"event", "dependency_cache_delete_failed",
			"module", moduleName,
			"layer", "application",
			"dependency_key", key,
			"error", err.Error(),
		)
	}
}

func (r DependencyResolver) delay() time.Duration {
	if r.Config.Delay <= 0 {
		return 500 * time.Millisecond
	}
	return r.Config.Delay
}

func (r DependencyResolver) now() time.Time {
	if r.Clock != nil {
		return r.Clock.Now()
	}
	return time.Now()
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
