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

// CustomerService replicates customers. Legacy customers carry their address
// inline; the new schema keeps it in a deduplicated address row.
type CustomerService struct {
	Stores
}

func (s CustomerService) MappingExistsOld(ctx context.Context, oldID int64) (bool, error) {
	return s.existsOld(ctx, events.AggregateCustomer, oldID)
}

func (s CustomerService) MappingExistsNew(ctx context.Context, newID uuid.UUID) (bool, error) {
	return s.existsNew(ctx, events.AggregateCustomer, newID)
}

func (s CustomerService) AddToNew(ctx context.Context, envelope events.ChangeEnvelope) error {
	return s.apply(ctx, envelope, "customer_add_to_new", func(ctx context.Context) error {
		return s.saveInNew(ctx, envelope, false)
	})
}

func (s CustomerService) UpdateInNew(ctx context.Context, envelope events.ChangeEnvelope) error {
	return s.apply(ctx, envelope, "customer_update_in_new", func(ctx context.Context) error {
		return s.saveInNew(ctx, envelope, true)
	})
}

func (s CustomerService) saveInNew(ctx context.Context, envelope events.ChangeEnvelope, mustExist bool) error {
	legacy, err := services.DecodeLegacyCustomer(envelope.Payload, envelope.AggregateID)
	if err != nil {
		return err
	}
	commit := s.commitFor(envelope)

	mapping, found, err := s.Mappings.FindByOldID(ctx, events.AggregateCustomer, legacy.CustomerID)
	if err != nil {
		return fmt.Errorf("find customer mapping: %w", err)
	}
	customerID := mapping.NewID
	if !found {
		if mustExist {
			return fmt.Errorf("%w: customer old id %d", domainerrors.ErrTranslationMissing, legacy.CustomerID)
		}
		customerID = uuid.New()
		commit.SaveMappings = append(commit.SaveMappings, entities.EntityMapping{
			AggregateType:    events.AggregateCustomer,
			OldID:            legacy.CustomerID,
			NewID:            customerID,
			MappingTimestamp: commit.At,
		})
	}

	addressID, address, err := s.addressFor(ctx, legacy.Address, &commit)
	if err != nil {
		return err
	}
	return s.NewSchema.SaveCustomer(ctx, entities.Customer{
		CustomerID: customerID,
		FirstName:  legacy.FirstName,
		LastName:   legacy.LastName,
		Email:      legacy.Email,
		Phone:      legacy.Phone,
		AddressID:  addressID,
	}, address, commit)
}

// addressFor reuses the address row already mapped to key or schedules a new
// one. Blank addresses map to uuid.Nil.
func (s CustomerService) addressFor(
	ctx context.Context,
	key entities.AddressKey,
	commit *entities.Commit,
) (uuid.UUID, *entities.Address, error) {
	key = key.Normalize()
	if key.Empty() {
		return uuid.Nil, nil, nil
	}
	existing, found, err := s.Mappings.FindAddressByKey(ctx, key)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("find address mapping: %w", err)
	}
	if found {
		return existing.NewID, nil, nil
	}
	address := entities.Address{AddressID: uuid.New(), AddressKey: key}
	commit.SaveAddresses = append(commit.SaveAddresses, entities.AddressMapping{
		Key:              key,
		NewID:            address.AddressID,
		MappingTimestamp: commit.At,
	})
	return address.AddressID, &address, nil
}

func (s CustomerService) DeleteFromNew(ctx context.Context, envelope events.ChangeEnvelope) error {
	return s.apply(ctx, envelope, "customer_delete_from_new", func(ctx context.Context) error {
		oldID, err := parseOldID(envelope.AggregateID)
		if err != nil {
			return err
		}
		mapping, found, err := s.Mappings.FindByOldID(ctx, events.AggregateCustomer, oldID)
		if err != nil {
			return fmt.Errorf("find customer mapping: %w", err)
		}
		if !found {
			return s.skip(ctx, envelope, "customer_not_replicated")
		}
		commit := s.commitFor(envelope)
		commit.DropMappings = append(commit.DropMappings, entities.MappingRef{
			AggregateType: events.AggregateCustomer,
			NewID:         mapping.NewID,
		})
		return s.NewSchema.DeleteCustomer(ctx, mapping.NewID, commit)
	})
}

func (s CustomerService) AddToOld(ctx context.Context, envelope events.ChangeEnvelope) error {
	return s.apply(ctx, envelope, "customer_add_to_old", func(ctx context.Context) error {
		return s.saveInOld(ctx, envelope, false)
	})
}

func (s CustomerService) UpdateInOld(ctx context.Context, envelope events.ChangeEnvelope) error {
	return s.apply(ctx, envelope, "customer_update_in_old", func(ctx context.Context) error {
		return s.saveInOld(ctx, envelope, true)
	})
}

func (s CustomerService) saveInOld(ctx context.Context, envelope events.ChangeEnvelope, mustExist bool) error {
	customer, err := services.DecodeCustomer(envelope.Payload, envelope.AggregateID)
	if err != nil {
		return err
	}
	var address entities.AddressKey
	if customer.AddressID != uuid.Nil {
		mapped, found, err := s.Mappings.FindAddressByNewID(ctx, customer.AddressID)
		if err != nil {
			return fmt.Errorf("find address mapping: %w", err)
		}
		if !found {
			return fmt.Errorf("%w: address %s", domainerrors.ErrTranslationMissing, customer.AddressID)
		}
		address = mapped.Key
	}
	legacy := entities.LegacyCustomer{
		FirstName: customer.FirstName,
		LastName:  customer.LastName,
		Email:     customer.Email,
		Phone:     customer.Phone,
		Address:   address,
	}
	commit := s.commitFor(envelope)

	mapping, found, err := s.Mappings.FindByNewID(ctx, events.AggregateCustomer, customer.CustomerID)
	if err != nil {
		return fmt.Errorf("find customer mapping: %w", err)
	}
	if found {
		legacy.CustomerID = mapping.OldID
		return s.Legacy.UpdateCustomer(ctx, legacy, s.record(commit))
	}
	if mustExist {
		return fmt.Errorf("%w: customer new id %s", domainerrors.ErrTranslationMissing, customer.CustomerID)
	}
	return s.Legacy.InsertCustomer(ctx, legacy, func(ctx context.Context, written entities.LegacyWrite) error {
		commit.SaveMappings = append(commit.SaveMappings, entities.EntityMapping{
			AggregateType:    events.AggregateCustomer,
			OldID:            written.ID,
			NewID:            customer.CustomerID,
			MappingTimestamp: commit.At,
		})
		return s.Bookkeeper.Record(ctx, commit)
	})
}

func (s CustomerService) DeleteFromOld(ctx context.Context, envelope events.ChangeEnvelope) error {
	return s.apply(ctx, envelope, "customer_delete_from_old", func(ctx context.Context) error {
		newID, err := parseNewID(envelope.AggregateID)
		if err != nil {
			return err
		}
		mapping, found, err := s.Mappings.FindByNewID(ctx, events.AggregateCustomer, newID)
		if err != nil {
			return fmt.Errorf("find customer mapping: %w", err)
		}
		if !found {
			return s.skip(ctx, envelope, "customer_not_replicated")
		}
		commit := s.commitFor(envelope)
		return s.Legacy.DeleteCustomer(ctx, mapping.OldID, func(ctx context.Context, written entities.LegacyWrite) error {
			commit.DropMappings = append(cascadeDrops(written), entities.MappingRef{
				AggregateType: events.AggregateCustomer,
				OldID:         mapping.OldID,
			})
			return s.Bookkeeper.Record(ctx, commit)
		})
	})
}
