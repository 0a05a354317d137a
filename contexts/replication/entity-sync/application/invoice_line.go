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

type InvoiceLineService struct {
	Stores
}

func (s InvoiceLineService) MappingExistsOld(ctx context.Context, oldID int64) (bool, error) {
	return s.existsOld(ctx, events.AggregateInvoiceLine, oldID)
}

func (s InvoiceLineService) MappingExistsNew(ctx context.Context, newID uuid.UUID) (bool, error) {
	return s.existsNew(ctx, events.AggregateInvoiceLine, newID)
}

func (s InvoiceLineService) AddToNew(ctx context.Context, envelope events.ChangeEnvelope) error {
	return s.apply(ctx, envelope, "invoice_line_add_to_new", func(ctx context.Context) error {
		return s.saveInNew(ctx, envelope, false)
	})
}

func (s InvoiceLineService) UpdateInNew(ctx context.Context, envelope events.ChangeEnvelope) error {
	return s.apply(ctx, envelope, "invoice_line_update_in_new", func(ctx context.Context) error {
		return s.saveInNew(ctx, envelope, true)
	})
}

func (s InvoiceLineService) saveInNew(ctx context.Context, envelope events.ChangeEnvelope, mustExist bool) error {
	legacy, err := services.DecodeLegacyInvoiceLine(envelope.Payload, envelope.AggregateID)
	if err != nil {
		return err
	}
	invoiceID, err := s.newIDFor(ctx, events.AggregateInvoice, legacy.InvoiceID)
	if err != nil {
		return err
	}
	commit := s.commitFor(envelope)

	mapping, found, err := s.Mappings.FindByOldID(ctx, events.AggregateInvoiceLine, legacy.InvoiceLineID)
	if err != nil {
		return fmt.Errorf("find invoice line mapping: %w", err)
	}
	lineID := mapping.NewID
	if !found {
		if mustExist {
			return fmt.Errorf("%w: invoice line old id %d", domainerrors.ErrTranslationMissing, legacy.InvoiceLineID)
		}
		lineID = uuid.New()
		commit.SaveMappings = append(commit.SaveMappings, entities.EntityMapping{
			AggregateType:    events.AggregateInvoiceLine,
			OldID:            legacy.InvoiceLineID,
			NewID:            lineID,
			MappingTimestamp: commit.At,
		})
	}
	line := entities.InvoiceLine{
		InvoiceLineID: lineID,
		InvoiceID:     invoiceID,
		Description:   legacy.Description,
		Quantity:      legacy.Quantity,
		UnitPrice:     legacy.UnitPrice,
	}
	return s.NewSchema.SaveInvoiceLine(ctx, line.ComputeLineTotal(), commit)
}

func (s InvoiceLineService) DeleteFromNew(ctx context.Context, envelope events.ChangeEnvelope) error {
	return s.apply(ctx, envelope, "invoice_line_delete_from_new", func(ctx context.Context) error {
		oldID, err := parseOldID(envelope.AggregateID)
		if err != nil {
			return err
		}
		mapping, found, err := s.Mappings.FindByOldID(ctx, events.AggregateInvoiceLine, oldID)
		if err != nil {
			return fmt.Errorf("find invoice line mapping: %w", err)
		}
		if !found {
			return s.skip(ctx, envelope, "invoice_line_not_replicated")
		}
		commit := s.commitFor(envelope)
		commit.DropMappings = append(commit.DropMappings, entities.MappingRef{
			AggregateType: events.AggregateInvoiceLine,
			NewID:         mapping.NewID,
		})
		return s.NewSchema.DeleteInvoiceLine(ctx, mapping.NewID, commit)
	})
}

func (s InvoiceLineService) AddToOld(ctx context.Context, envelope events.ChangeEnvelope) error {
	return s.apply(ctx, envelope, "invoice_line_add_to_old", func(ctx context.Context) error {
		return s.saveInOld(ctx, envelope, false)
	})
}

func (s InvoiceLineService) UpdateInOld(ctx context.Context, envelope events.ChangeEnvelope) error {
	return s.apply(ctx, envelope, "invoice_line_update_in_old", func(ctx context.Context) error {
		return s.saveInOld(ctx, envelope, true)
	})
}

func (s InvoiceLineService) saveInOld(ctx context.Context, envelope events.ChangeEnvelope, mustExist bool) error {
	line, err := services.DecodeInvoiceLine(envelope.Payload, envelope.AggregateID)
	if err != nil {
		return err
	}
	invoiceID, err := s.oldIDFor(ctx, events.AggregateInvoice, line.InvoiceID)
	if err != nil {
		return err
	}
	legacy := entities.LegacyInvoiceLine{
		InvoiceID:   invoiceID,
		Description: line.Description,
		Quantity:    line.Quantity,
		UnitPrice:   line.UnitPrice,
	}
	commit := s.commitFor(envelope)

	mapping, found, err := s.Mappings.FindByNewID(ctx, events.AggregateInvoiceLine, line.InvoiceLineID)
	if err != nil {
		return fmt.Errorf("find invoice line mapping: %w", err)
	}
	if found {
		legacy.InvoiceLineID = mapping.OldID
		return s.Legacy.UpdateInvoiceLine(ctx, legacy, s.record(commit))
	}
	if mustExist {
		return fmt.Errorf("%w: invoice line new id %s", domainerrors.ErrTranslationMissing, line.InvoiceLineID)
	}
	return s.Legacy.InsertInvoiceLine(ctx, legacy, func(ctx context.Context, written entities.LegacyWrite) error {
		commit.SaveMappings = append(commit.SaveMappings, entities.EntityMapping{
			AggregateType:    events.AggregateInvoiceLine,
			OldID:            written.ID,
			NewID:            line.InvoiceLineID,
			MappingTimestamp: commit.At,
		})
		return s.Bookkeeper.Record(ctx, commit)
	})
}

func (s InvoiceLineService) DeleteFromOld(ctx context.Context, envelope events.ChangeEnvelope) error {
	return s.apply(ctx, envelope, "invoice_line_delete_from_old", func(ctx context.Context) error {
		newID, err := parseNewID(envelope.AggregateID)
		if err != nil {
			return err
		}
		mapping, found, err := s.Mappings.FindByNewID(ctx, events.AggregateInvoiceLine, newID)
		if err != nil {
			return fmt.Errorf("find invoice line mapping: %w", err)
		}
		if !found {
			return s.skip(ctx, envelope, "invoice_line_not_replicated")
		}
		commit := s.commitFor(envelope)
		commit.DropMappings = append(commit.DropMappings, entities.MappingRef{
			AggregateType: events.AggregateInvoiceLine,
			OldID:         mapping.OldID,
		})
		return s.Legacy.DeleteInvoiceLine(ctx, mapping.OldID, s.record(commit))
	})
}
