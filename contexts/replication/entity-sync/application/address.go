package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"schemabridge/contexts/replication/entity-sync/domain/entities"
	domainerrors "schemabridge/contexts/replication/entity-sync/domain/errors"
	"schemabridge/contexts/replication/entity-sync/domain/services"
	"schemabridge/internal/shared/events"
)

// AddressService replicates new-schema addresses into the legacy schema,
// where they only exist as fields on customer rows. Addresses flowing the
// other way are created by CustomerService.
type AddressService struct {
	Stores
}

// MappingExistsOld is always false: legacy addresses have no key of their own.
func (s AddressService) MappingExistsOld(context.Context, int64) (bool, error) {
	return false, nil
}

func (s AddressService) MappingExistsNew(ctx context.Context, newID uuid.UUID) (bool, error) {
	_, found, err := s.Mappings.FindAddressByNewID(ctx, newID)
	return found, err
}

func (s AddressService) AddToNew(ctx context.Context, envelope events.ChangeEnvelope) error {
	return s.unsupported(ctx, envelope, "address_add_to_new")
}

func (s AddressService) UpdateInNew(ctx context.Context, envelope events.ChangeEnvelope) error {
	return s.unsupported(ctx, envelope, "address_update_in_new")
}

func (s AddressService) DeleteFromNew(ctx context.Context, envelope events.ChangeEnvelope) error {
	return s.unsupported(ctx, envelope, "address_delete_from_new")
}

func (s AddressService) unsupported(ctx context.Context, envelope events.ChangeEnvelope, operation string) error {
	return s.apply(ctx, envelope, operation, func(context.Context) error {
		return fmt.Errorf("%w: legacy schema has no address table", domainerrors.ErrUnsupportedFlow)
	})
}

// AddToOld records the address under its natural key. Legacy rows pick the
// fields up when a customer referencing the address is replicated.
func (s AddressService) AddToOld(ctx context.Context, envelope events.ChangeEnvelope) error {
	return s.apply(ctx, envelope, "address_add_to_old", func(ctx context.Context) error {
		address, err := services.DecodeAddress(envelope.Payload, envelope.AggregateID)
		if err != nil {
			return err
		}
		return s.register(ctx, envelope, address)
	})
}

func (s AddressService) register(ctx context.Context, envelope events.ChangeEnvelope, address entities.Address) error {
	key := address.AddressKey.Normalize()
	commit := s.commitFor(envelope)
	existing, found, err := s.Mappings.FindAddressByKey(ctx, key)
	if err != nil {
		return fmt.Errorf("find address mapping: %w", err)
	}
	if found && existing.NewID != address.AddressID {
		// Both ids resolve; legacy rows carry the shared content.
		ResolveLogger(s.Logger).Info("address content shared with another row",
			"event", "entity_sync_address_alias",
			"module", moduleName,
			"layer", "application",
			"address_id", address.AddressID.String(),
			"canonical_address_id", existing.NewID.String(),
			"unique_identifier", envelope.UniqueIdentifier,
		)
	}
	commit.SaveAddresses = append(commit.SaveAddresses, entities.AddressMapping{
		Key:              key,
		NewID:            address.AddressID,
		MappingTimestamp: commit.At,
	})
	return s.Bookkeeper.Record(ctx, commit)
}

// UpdateInOld rewrites the inline address of every legacy customer that held
// the previous content.
func (s AddressService) UpdateInOld(ctx context.Context, envelope events.ChangeEnvelope) error {
	return s.apply(ctx, envelope, "address_update_in_old", func(ctx context.Context) error {
		address, err := services.DecodeAddress(envelope.Payload, envelope.AggregateID)
		if err != nil {
			return err
		}
		previous, found, err := s.Mappings.FindAddressByNewID(ctx, address.AddressID)
		if err != nil {
			return fmt.Errorf("find address mapping: %w", err)
		}
		if !found {
			return s.register(ctx, envelope, address)
		}

		key := address.AddressKey.Normalize()
		commit := s.commitFor(envelope)
		if previous.Key == key {
			return s.Bookkeeper.Record(ctx, commit)
		}
		commit.DropAddresses = append(commit.DropAddresses, address.AddressID)
		commit.SaveAddresses = append(commit.SaveAddresses, entities.AddressMapping{
			Key:              key,
			NewID:            address.AddressID,
			MappingTimestamp: commit.At,
		})
		return s.Legacy.UpdateAddressFields(ctx, previous.Key, key, s.record(commit))
	})
}

// DeleteFromOld forgets the mapping; legacy customers keep their fields.
func (s AddressService) DeleteFromOld(ctx context.Context, envelope events.ChangeEnvelope) error {
	return s.apply(ctx, envelope, "address_delete_from_old", func(ctx context.Context) error {
		newID, err := parseNewID(envelope.AggregateID)
		if err != nil {
			return err
		}
		_, found, err := s.Mappings.FindAddressByNewID(ctx, newID)
		if err != nil {
			return fmt.Errorf("find address mapping: %w", err)
		}
		if !found {
			return s.skip(ctx, envelope, "address_not_replicated")
		}
		commit := s.commitFor(envelope)
		commit.DropAddresses = append(commit.DropAddresses, newID)
		return s.Bookkeeper.Record(ctx, commit)
	})
}
