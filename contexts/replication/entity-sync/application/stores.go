package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"schemabridge/contexts/replication/entity-sync/domain/entities"
	domainerrors "schemabridge/contexts/replication/entity-sync/domain/errors"
	"schemabridge/contexts/replication/entity-sync/ports"
	"schemabridge/internal/platform/retry"
	"schemabridge/internal/shared/events"
)

// Stores are the collaborators every apply service shares.
type Stores struct {
	Mappings   ports.MappingStore
	Ledger     ports.Ledger
	Bookkeeper ports.Bookkeeper
	NewSchema  ports.NewSchemaRepository
	Legacy     ports.LegacyRepository
	Clock      ports.Clock
	Logger     *slog.Logger
}

// apply runs one write guarded by the ledger. Duplicate applies are
// swallowed; payload and flow errors are marked permanent so the caller does
// not retry them.
func (s Stores) apply(
	ctx context.Context,
	envelope events.ChangeEnvelope,
	operation string,
	write func(context.Context) error,
) error {
	logger := ResolveLogger(s.Logger)
	processed, err := s.Ledger.IsProcessed(ctx, envelope.UniqueIdentifier)
	if err != nil {
		return fmt.Errorf("check ledger: %w", err)
	}
	if processed {
		logger.Debug("envelope already applied",
			"event", "entity_sync_duplicate_skipped",
			"module", moduleName,
			"layer", "application",
			"operation", operation,
			"unique_identifier", envelope.UniqueIdentifier,
		)
		return nil
	}

	err = write(ports.WithUniqueIdentifier(ctx, envelope.UniqueIdentifier))
	switch {
	case err == nil:
		logger.Info("envelope applied",
			"event", "entity_sync_applied",
			"module", moduleName,
			"layer", "application",
			"operation", operation,
			"aggregate_type", envelope.AggregateType,
			"aggregate_id", envelope.AggregateID,
			"unique_identifier", envelope.UniqueIdentifier,
		)
		return nil
	case errors.Is(err, domainerrors.ErrDuplicateApply):
		logger.Debug("envelope applied concurrently",
			"event", "entity_sync_duplicate_committed",
			"module", moduleName,
			"layer", "application",
			"operation", operation,
			"unique_identifier", envelope.UniqueIdentifier,
		)
		return nil
	case errors.Is(err, domainerrors.ErrInvalidPayload), errors.Is(err, domainerrors.ErrUnsupportedFlow):
		return retry.Permanent(err)
	default:
		return err
	}
}

// skip records the identifier for an envelope that needs no write, such as
// a delete of an entity that was never replicated.
func (s Stores) skip(ctx context.Context, envelope events.ChangeEnvelope, reason string) error {
	if _, err := s.Ledger.MarkProcessed(ctx, envelope.UniqueIdentifier); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	ResolveLogger(s.Logger).Info("envelope needs no write",
		"event", "entity_sync_noop",
		"module", moduleName,
		"layer", "application",
		"reason", reason,
		"aggregate_type", envelope.AggregateType,
		"aggregate_id", envelope.AggregateID,
		"unique_identifier", envelope.UniqueIdentifier,
	)
	return nil
}

func (s Stores) commitFor(envelope events.ChangeEnvelope) entities.Commit {
	return entities.Commit{UniqueIdentifier: envelope.UniqueIdentifier, At: s.now()}
}

// record returns a finalizer committing the bookkeeping as-is.
func (s Stores) record(commit entities.Commit) ports.Finalizer {
	return func(ctx context.Context, _ entities.LegacyWrite) error {
		return s.Bookkeeper.Record(ctx, commit)
	}
}

func (s Stores) newIDFor(ctx context.Context, aggregate events.AggregateType, oldID int64) (uuid.UUID, error) {
	mapping, found, err := s.Mappings.FindByOldID(ctx, aggregate, oldID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("find %s mapping: %w", aggregate, err)
	}
	if !found {
		return uuid.Nil, fmt.Errorf("%w: %s old id %d", domainerrors.ErrTranslationMissing, aggregate, oldID)
	}
	return mapping.NewID, nil
}

func (s Stores) oldIDFor(ctx context.Context, aggregate events.AggregateType, newID uuid.UUID) (int64, error) {
	mapping, found, err := s.Mappings.FindByNewID(ctx, aggregate, newID)
	if err != nil {
		return 0, fmt.Errorf("find %s mapping: %w", aggregate, err)
	}
	if !found {
		return 0, fmt.Errorf("%w: %s new id %s", domainerrors.ErrTranslationMissing, aggregate, newID)
	}
	return mapping.OldID, nil
}

func (s Stores) existsOld(ctx context.Context, aggregate events.AggregateType, oldID int64) (bool, error) {
	_, found, err := s.Mappings.FindByOldID(ctx, aggregate, oldID)
	return found, err
}

func (s Stores) existsNew(ctx context.Context, aggregate events.AggregateType, newID uuid.UUID) (bool, error) {
	_, found, err := s.Mappings.FindByNewID(ctx, aggregate, newID)
	return found, err
}

func (s Stores) now() time.Time {
	if s.Clock != nil {
		return s.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func parseOldID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: aggregate id %q is not an integer key", domainerrors.ErrInvalidPayload, raw)
	}
	return id, nil
}

func parseNewID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: aggregate id %q is not a uuid", domainerrors.ErrInvalidPayload, raw)
	}
	return id, nil
}

// cascadeDrops lists the mappings a legacy cascade delete removed.
func cascadeDrops(written entities.LegacyWrite) []entities.MappingRef {
	drops := make([]entities.MappingRef, 0, len(written.CascadeInvoiceIDs)+len(written.CascadeInvoiceLineIDs))
	for _, id := range written.CascadeInvoiceLineIDs {
		drops = append(drops, entities.MappingRef{AggregateType: events.AggregateInvoiceLine, OldID: id})
	}
	for _, id := range written.CascadeInvoiceIDs {
		drops = append(drops, entities.MappingRef{AggregateType: events.AggregateInvoice, OldID: id})
	}
	return drops
}
