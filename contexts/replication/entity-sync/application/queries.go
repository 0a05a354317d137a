package application

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"schemabridge/contexts/replication/entity-sync/domain/entities"
	domainerrors "schemabridge/contexts/replication/entity-sync/domain/errors"
	"schemabridge/contexts/replication/entity-sync/ports"
	"schemabridge/internal/shared/events"
)

// MappingView is the operator-facing shape of one key translation.
type MappingView struct {
	AggregateType    events.AggregateType `json:"aggregate_type"`
	OldID            *int64               `json:"old_id,omitempty"`
	NewID            string               `json:"new_id"`
	Address          *entities.AddressKey `json:"address,omitempty"`
	MappingTimestamp time.Time            `json:"mapping_timestamp"`
}

// QueryService answers read-only lookups for the operator API.
type QueryService struct {
	Mappings ports.MappingStore
	Ledger   ports.Ledger
}

// Mapping looks an entity up by either key. Integer ids are legacy keys,
// UUIDs new-schema keys.
func (q QueryService) Mapping(ctx context.Context, aggregateRaw string, id string) (MappingView, error) {
	aggregate, ok := events.ParseAggregateType(aggregateRaw)
	if !ok {
		return MappingView{}, fmt.Errorf("%w: unknown aggregate type %q", domainerrors.ErrInvalidPayload, aggregateRaw)
	}
	id = strings.TrimSpace(id)

	if aggregate == events.AggregateAddress {
		newID, err := uuid.Parse(id)
		if err != nil {
			return MappingView{}, fmt.Errorf("%w: address id %q is not a uuid", domainerrors.ErrInvalidPayload, id)
		}
		mapping, found, err := q.Mappings.FindAddressByNewID(ctx, newID)
		if err != nil {
			return MappingView{}, err
		}
		if !found {
			return MappingView{}, domainerrors.ErrMappingNotFound
		}
		key := mapping.Key
		return MappingView{
			AggregateType:    aggregate,
			NewID:            mapping.NewID.String(),
			Address:          &key,
			MappingTimestamp: mapping.MappingTimestamp,
		}, nil
	}

	var (
		mapping entities.EntityMapping
		found   bool
		err     error
	)
	if oldID, parseErr := strconv.ParseInt(id, 10, 64); parseErr == nil {
		mapping, found, err = q.Mappings.FindByOldID(ctx, aggregate, oldID)
	} else if newID, parseErr := uuid.Parse(id); parseErr == nil {
		mapping, found, err = q.Mappings.FindByNewID(ctx, aggregate, newID)
	} else {
		return MappingView{}, fmt.Errorf("%w: id %q is neither an integer nor a uuid", domainerrors.ErrInvalidPayload, id)
	}
	if err != nil {
		return MappingView{}, err
	}
	if !found {
		return MappingView{}, domainerrors.ErrMappingNotFound
	}
	oldID := mapping.OldID
	return MappingView{
		AggregateType:    aggregate,
		OldID:            &oldID,
		NewID:            mapping.NewID.String(),
		MappingTimestamp: mapping.MappingTimestamp,
	}, nil
}

func (q QueryService) Processed(ctx context.Context, uniqueIdentifier string) (bool, error) {
	uniqueIdentifier = strings.TrimSpace(uniqueIdentifier)
	if uniqueIdentifier == "" {
		return false, fmt.Errorf("%w: unique identifier is required", domainerrors.ErrInvalidPayload)
	}
	return q.Ledger.IsProcessed(ctx, uniqueIdentifier)
}
