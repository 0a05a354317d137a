package postgresadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"schemabridge/contexts/replication/entity-sync/domain/entities"
	domainerrors "schemabridge/contexts/replication/entity-sync/domain/errors"
	"schemabridge/contexts/replication/entity-sync/ports"
	"schemabridge/internal/shared/events"
)

// ReplicationOrigin is stored in the session setting schemabridge.origin for
// every transaction written by the engine. Outbox triggers skip rows written
// under it so applied changes are not captured again.
const ReplicationOrigin = "replication"

// Repository owns the new-schema database: the business tables plus the
// mapping tables and the ledger.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Migrate creates the engine's own tables.
func (r *Repository) Migrate(ctx context.Context) error {
	err := r.db.WithContext(ctx).AutoMigrate(
		&customerMappingModel{},
		&invoiceMappingModel{},
		&invoiceLineMappingModel{},
		&addressMappingModel{},
		&processedModel{},
	)
	if err != nil {
		return r.logError("entity_sync_repo_migrate_failed", err)
	}
	// Earlier releases kept address content unique.
	if err := r.db.WithContext(ctx).Exec(dropLegacyAddressKeyIndex).Error; err != nil {
		return r.logError("entity_sync_repo_migrate_failed", err)
	}
	return nil
}

const dropLegacyAddressKeyIndex = `DROP INDEX IF EXISTS idx_address_mappings_key`

func (r *Repository) FindByOldID(ctx context.Context, aggregate events.AggregateType, oldID int64) (entities.EntityMapping, bool, error) {
	return r.findMapping(ctx, aggregate, "old_id = ?", oldID)
}

func (r *Repository) FindByNewID(ctx context.Context, aggregate events.AggregateType, newID uuid.UUID) (entities.EntityMapping, bool, error) {
	return r.findMapping(ctx, aggregate, "new_id = ?", newID)
}

func (r *Repository) findMapping(ctx context.Context, aggregate events.AggregateType, where string, key any) (entities.EntityMapping, bool, error) {
	table, ok := mappingTable(aggregate)
	if !ok {
		return entities.EntityMapping{}, false, nil
	}
	var row mappingColumns
	err := r.db.WithContext(ctx).Table(table).Where(where, key).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.EntityMapping{}, false, nil
		}
		return entities.EntityMapping{}, false, r.logError("entity_sync_repo_find_mapping_failed", err,
			"aggregate_type", aggregate,
			"key", fmt.Sprint(key),
		)
	}
	return row.toEntity(aggregate), true, nil
}

func (r *Repository) FindAddressByKey(ctx context.Context, key entities.AddressKey) (entities.AddressMapping, bool, error) {
	key = key.Normalize()
	var row addressMappingModel
	err := r.db.WithContext(ctx).
		Where("street = ? AND city = ? AND state = ? AND country = ? AND postal_code = ?",
			key.Street, key.City, key.State, key.Country, key.PostalCode).
		Order("mapping_timestamp, new_id").
		Take(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.AddressMapping{}, false, nil
		}
		return entities.AddressMapping{}, false, r.logError("entity_sync_repo_find_address_by_key_failed", err,
			"city", key.City,
			"postal_code", key.PostalCode,
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) FindAddressByNewID(ctx context.Context, newID uuid.UUID) (entities.AddressMapping, bool, error) {
	var row addressMappingModel
	err := r.db.WithContext(ctx).Where("new_id = ?", newID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.AddressMapping{}, false, nil
		}
		return entities.AddressMapping{}, false, r.logError("entity_sync_repo_find_address_by_id_failed", err,
			"address_id", newID.String(),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) IsProcessed(ctx context.Context, uniqueIdentifier string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&processedModel{}).
		Where("unique_identifier = ?", uniqueIdentifier).
		Count(&count).
		Error
	if err != nil {
		return false, r.logError("entity_sync_repo_ledger_lookup_failed", err,
			"unique_identifier", uniqueIdentifier,
		)
	}
	return count > 0, nil
}

func (r *Repository) MarkProcessed(ctx context.Context, uniqueIdentifier string) (bool, error) {
	inserted, err := markProcessed(r.db.WithContext(ctx), uniqueIdentifier, time.Now().UTC())
	if err != nil {
		return false, r.logError("entity_sync_repo_ledger_insert_failed", err,
			"unique_identifier", uniqueIdentifier,
		)
	}
	return inserted, nil
}

func (r *Repository) Record(ctx context.Context, commit entities.Commit) error {
	return r.transact(ctx, "entity_sync_repo_record_failed", commit, func(*gorm.DB) error {
		return nil
	})
}

func (r *Repository) SaveCustomer(ctx context.Context, customer entities.Customer, address *entities.Address, commit entities.Commit) error {
	return r.transact(ctx, "entity_sync_repo_save_customer_failed", commit, func(tx *gorm.DB) error {
		if address != nil {
			if err := upsertAddress(tx, *address); err != nil {
				return err
			}
		}
		row := customerModelFromEntity(customer)
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "customer_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"first_name": row.FirstName,
				"last_name":  row.LastName,
				"email":      row.Email,
				"phone":      row.Phone,
				"address_id": row.AddressID,
			}),
		}).Create(&row).Error
	})
}

func (r *Repository) DeleteCustomer(ctx context.Context, customerID uuid.UUID, commit entities.Commit) error {
	return r.transact(ctx, "entity_sync_repo_delete_customer_failed", commit, func(tx *gorm.DB) error {
		var invoiceIDs []uuid.UUID
		if err := tx.Model(&invoiceModel{}).
			Where("customer_id = ?", customerID).
			Pluck("invoice_id", &invoiceIDs).
			Error; err != nil {
			return err
		}
		for _, invoiceID := range invoiceIDs {
			if err := deleteInvoice(tx, invoiceID); err != nil {
				return err
			}
		}
		return tx.Where("customer_id = ?", customerID).Delete(&customerModel{}).Error
	})
}

func (r *Repository) SaveInvoice(ctx context.Context, invoice entities.Invoice, commit entities.Commit) error {
	return r.transact(ctx, "entity_sync_repo_save_invoice_failed", commit, func(tx *gorm.DB) error {
		row := invoiceModelFromEntity(invoice)
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "invoice_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"customer_id":  row.CustomerID,
				"invoice_date": row.InvoiceDate,
				"total_amount": row.TotalAmount,
				"status":       row.Status,
			}),
		}).Create(&row).Error
	})
}

func (r *Repository) DeleteInvoice(ctx context.Context, invoiceID uuid.UUID, commit entities.Commit) error {
	return r.transact(ctx, "entity_sync_repo_delete_invoice_failed", commit, func(tx *gorm.DB) error {
		return deleteInvoice(tx, invoiceID)
	})
}

func (r *Repository) SaveInvoiceLine(ctx context.Context, line entities.InvoiceLine, commit entities.Commit) error {
	return r.transact(ctx, "entity_sync_repo_save_invoice_line_failed", commit, func(tx *gorm.DB) error {
		row := invoiceLineModelFromEntity(line)
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "invoice_line_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"invoice_id":  row.InvoiceID,
				"description": row.Description,
				"quantity":    row.Quantity,
				"unit_price":  row.UnitPrice,
				"line_total":  row.LineTotal,
			}),
		}).Create(&row).Error
	})
}

func (r *Repository) DeleteInvoiceLine(ctx context.Context, lineID uuid.UUID, commit entities.Commit) error {
	return r.transact(ctx, "entity_sync_repo_delete_invoice_line_failed", commit, func(tx *gorm.DB) error {
		return tx.Where("invoice_line_id = ?", lineID).Delete(&invoiceLineModel{}).Error
	})
}

// transact applies the commit and then write inside one transaction. A ledger
// hit aborts before write runs.
func (r *Repository) transact(ctx context.Context, event string, commit entities.Commit, write func(*gorm.DB) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT set_config('schemabridge.origin', ?, true)", ReplicationOrigin).Error; err != nil {
			return err
		}
		if err := applyCommit(tx, commit); err != nil {
			return err
		}
		return write(tx)
	})
	if err == nil || errors.Is(err, domainerrors.ErrDuplicateApply) {
		return err
	}
	return r.logError(event, err, "unique_identifier", commit.UniqueIdentifier)
}

func applyCommit(tx *gorm.DB, commit entities.Commit) error {
	at := commit.At.UTC()
	if commit.At.IsZero() {
		at = time.Now().UTC()
	}
	inserted, err := markProcessed(tx, commit.UniqueIdentifier, at)
	if err != nil {
		return err
	}
	if !inserted {
		return domainerrors.ErrDuplicateApply
	}

	for _, ref := range commit.DropMappings {
		if err := dropMapping(tx, ref); err != nil {
			return err
		}
	}
	for _, mapping := range commit.SaveMappings {
		if err := saveMapping(tx, mapping, at); err != nil {
			return err
		}
	}
	if len(commit.DropAddresses) > 0 {
		if err := tx.Where("new_id IN ?", commit.DropAddresses).Delete(&addressMappingModel{}).Error; err != nil {
			return err
		}
	}
	for _, mapping := range commit.SaveAddresses {
		row := addressMappingFromEntity(mapping, at)
		// Content may be shared by several ids; an id keeps its first key.
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "new_id"}},
			DoNothing: true,
		}).Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func markProcessed(tx *gorm.DB, uniqueIdentifier string, at time.Time) (bool, error) {
	row := processedModel{UniqueIdentifier: uniqueIdentifier, ProcessedAt: at}
	create := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "unique_identifier"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		if isUniqueViolation(create.Error) {
			return false, nil
		}
		return false, create.Error
	}
	return create.RowsAffected > 0, nil
}

func saveMapping(tx *gorm.DB, mapping entities.EntityMapping, at time.Time) error {
	table, ok := mappingTable(mapping.AggregateType)
	if !ok {
		return fmt.Errorf("%w: no mapping table for %s", domainerrors.ErrInvalidPayload, mapping.AggregateType)
	}
	stamp := mapping.MappingTimestamp
	if stamp.IsZero() {
		stamp = at
	}
	if err := tx.Table(table).
		Where("new_id = ? AND old_id <> ?", mapping.NewID, mapping.OldID).
		Delete(&mappingColumns{}).
		Error; err != nil {
		return err
	}
	row := mappingColumns{OldID: mapping.OldID, NewID: mapping.NewID, MappingTimestamp: stamp.UTC()}
	return tx.Table(table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "old_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"new_id", "mapping_timestamp"}),
	}).Create(&row).Error
}

func dropMapping(tx *gorm.DB, ref entities.MappingRef) error {
	table, ok := mappingTable(ref.AggregateType)
	if !ok {
		return nil
	}
	switch {
	case ref.OldID != 0 && ref.NewID != uuid.Nil:
		return tx.Table(table).Where("old_id = ? OR new_id = ?", ref.OldID, ref.NewID).Delete(&mappingColumns{}).Error
	case ref.OldID != 0:
		return tx.Table(table).Where("old_id = ?", ref.OldID).Delete(&mappingColumns{}).Error
	case ref.NewID != uuid.Nil:
		return tx.Table(table).Where("new_id = ?", ref.NewID).Delete(&mappingColumns{}).Error
	default:
		return nil
	}
}

func upsertAddress(tx *gorm.DB, address entities.Address) error {
	key := address.AddressKey.Normalize()
	row := addressModel{
		AddressID:  address.AddressID,
		Street:     key.Street,
		City:       key.City,
		State:      key.State,
		Country:    key.Country,
		PostalCode: key.PostalCode,
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"street", "city", "state", "country", "postal_code"}),
	}).Create(&row).Error
}

// deleteInvoice removes the invoice with its lines and drops their mappings.
func deleteInvoice(tx *gorm.DB, invoiceID uuid.UUID) error {
	var lineIDs []uuid.UUID
	if err := tx.Model(&invoiceLineModel{}).
		Where("invoice_id = ?", invoiceID).
		Pluck("invoice_line_id", &lineIDs).
		Error; err != nil {
		return err
	}
	if len(lineIDs) > 0 {
		if err := tx.Where("invoice_line_id IN ?", lineIDs).Delete(&invoiceLineModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("new_id IN ?", lineIDs).Delete(&invoiceLineMappingModel{}).Error; err != nil {
			return err
		}
	}
	if err := tx.Where("invoice_id = ?", invoiceID).Delete(&invoiceModel{}).Error; err != nil {
		return err
	}
	return tx.Where("new_id = ?", invoiceID).Delete(&invoiceMappingModel{}).Error
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "replication/entity-sync",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("entity sync repository operation failed", fields...)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var (
	_ ports.MappingStore        = (*Repository)(nil)
	_ ports.Ledger              = (*Repository)(nil)
	_ ports.Bookkeeper          = (*Repository)(nil)
	_ ports.NewSchemaRepository = (*Repository)(nil)
)
