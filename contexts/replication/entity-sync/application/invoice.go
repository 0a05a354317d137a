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

type InvoiceService struct {
	Stores
}

func (s InvoiceService) MappingExistsOld(ctx context.Context, oldID int64) (bool, error) {
	return s.existsOld(ctx, events.AggregateInvoice, oldID)
}

func (s InvoiceService) MappingExistsNew(ctx context.Context, newID uuid.UUID) (bool, error) {
	return s.existsNew(ctx, events.AggregateInvoice, newID)
}

func (s InvoiceService) AddToNew(ctx context.Context, envelope events.ChangeEnvelope) error {
	return s.apply(ctx, envelope, "invoice_add_to_new", func(ctx context.Context) error {
		return s.saveInNew(ctx, envelope, false)
	})
}

func (s InvoiceService) UpdateInNew(ctx context.Context, envelope events.ChangeEnvelope) error {
	return s.apply(ctx, envelope, "invoice_update_in_new", func(ctx context.Context) error {
		return s.saveInNew(ctx, envelope, true)
	})
}

func (s InvoiceService) saveInNew(ctx context.Context, envelope events.ChangeEnvelope, mustExist bool) error {
	legacy, err := services.DecodeLegacyInvoice(envelope.Payload, envelope.AggregateID)
	if err != nil {
		return err
	}
	customerID, err := s.newIDFor(ctx, events.AggregateCustomer, legacy.CustomerID)
	if err != nil {
		return err
	}
	commit := s.commitFor(envelope)

	mapping, found, err := s.Mappings.FindByOldID(ctx, events.AggregateInvoice, legacy.InvoiceID)
	if err != nil {
		return fmt.Errorf("find invoice mapping: %w", err)
	}
	invoiceID := mapping.NewID
	if !found {
		if mustExist {
			return fmt.Errorf("%w: invoice old id %d", domainerrors.ErrTranslationMissing, legacy.InvoiceID)
		}
		invoiceID = uuid.New()
		commit.SaveMappings = append(commit.SaveMappings, entities.EntityMapping{
			AggregateType:    events.AggregateInvoice,
			OldID:            legacy.InvoiceID,
			NewID:            invoiceID,
			MappingTimestamp: commit.At,
		})
	}
	return s.NewSchema.SaveInvoice(ctx, entities.Invoice{
		InvoiceID:   invoiceID,
		CustomerID:  customerID,
		InvoiceDate: legacy.InvoiceDate,
		TotalAmount: legacy.TotalAmount,
		Status:      legacy.Status,
	}, commit)
}

func (s InvoiceService) DeleteFromNew(ctx context.Context, envelope events.ChangeEnvelope) error {
	return s.apply(ctx, envelope, "invoice_delete_from_new", func(ctx context.Context) error {
		oldID, err := parseOldID(envelope.AggregateID)
		if err != nil {
			return err
		}
		mapping, found, err := s.Mappings.FindByOldID(ctx, events.AggregateInvoice, oldID)
		if err != nil {
			return fmt.Errorf("find invoice mapping: %w", err)
		}
		if !found {
			return s.skip(ctx, envelope, "invoice_not_replicated")
		}
		commit := s.commitFor(envelope)
		commit.DropMappings = append(commit.DropMappings, entities.MappingRef{
			AggregateType: events.AggregateInvoice,
			NewID:         mapping.NewID,
		})
		return s.NewSchema.DeleteInvoice(ctx, mapping.NewID, commit)
	})
}

func (s InvoiceService) AddToOld(ctx context.Context, envelope events.ChangeEnvelope) error {
	return s.apply(ctx, envelope, "invoice_add_to_old", func(ctx context.Context) error {
		return s.saveInOld(ctx, envelope, false)
	})
}

func (s InvoiceService) UpdateInOld(ctx context.Context, envelope events.ChangeEnvelope) error {
	return s.apply(ctx, envelope, "invoice_update_in_old", func(ctx context.Context) error {
		return s.saveInOld(ctx, envelope, true)
	})
}

func (s InvoiceService) saveInOld(ctx context.Context, envelope events.ChangeEnvelope, mustExist bool) error {
	invoice, err := services.DecodeInvoice(envelope.Payload, envelope.AggregateID)
	if err != nil {
		return err
	}
	customerID, err := s.oldIDFor(ctx, events.AggregateCustomer, invoice.CustomerID)
	if err != nil {
		return err
	}
	legacy := entities.LegacyInvoice{
		CustomerID:  customerID,
		InvoiceDate: invoice.InvoiceDate,
		TotalAmount: invoice.TotalAmount,
		Status:      invoice.Status,
	}
	commit := s.commitFor(envelope)

	mapping, found, err := s.Mappings.FindByNewID(ctx, events.AggregateInvoice, invoice.InvoiceID)
	if err != nil {
		return fmt.Errorf("find invoice mapping: %w", err)
	}
	if found {
		legacy.InvoiceID = mapping.OldID
		return s.Legacy.UpdateInvoice(ctx, legacy, s.record(commit))
	}
	if mustExist {
		return fmt.Errorf("%w: invoice new id %s", domainerrors.ErrTranslationMissing, invoice.InvoiceID)
	}
	return s.Legacy.InsertInvoice(ctx, legacy, func(ctx context.Context, written entities.LegacyWrite) error {
		commit.SaveMappings = append(commit.SaveMappings, entities.EntityMapping{
			AggregateType:    events.AggregateInvoice,
			OldID:            written.ID,
			NewID:            invoice.InvoiceID,
			MappingTimestamp: commit.At,
		})
		return s.Bookkeeper.Record(ctx, commit)
	})
}

func (s InvoiceService) DeleteFromOld(ctx context.Context, envelope events.ChangeEnvelope) error {
	return s.apply(ctx, envelope, "invoice_delete_from_old", func(ctx context.Context) error {
		newID, err := parseNewID(envelope.AggregateID)
		if err != nil {
			return err
		}
		mapping, found, err := s.Mappings.FindByNewID(ctx, events.AggregateInvoice, newID)
		if err != nil {
			return fmt.Errorf("find invoice mapping: %w", err)
		}
		if !found {
			return s.skip(ctx, envelope, "invoice_not_replicated")
		}
		commit := s.commitFor(envelope)
		return s.Legacy.DeleteInvoice(ctx, mapping.OldID, func(ctx context.Context, written entities.LegacyWrite) error {
			commit.DropMappings = append(cascadeDrops(written), entities.MappingRef{
				AggregateType: events.AggregateInvoice,
				OldID:         mapping.OldID,
			})
			return s.Bookkeeper.Record(ctx, commit)
		})
	})
}
