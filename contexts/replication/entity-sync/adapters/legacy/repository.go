package legacyadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"schemabridge/contexts/replication/entity-sync/domain/entities"
	"schemabridge/contexts/replication/entity-sync/ports"
)

// ReplicationOrigin mirrors the marker the new-schema repository sets, so the
// legacy outbox triggers can skip rows the engine wrote.
const ReplicationOrigin = "replication"

// TxStarter is satisfied by *pgxpool.Pool.
type TxStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository writes the legacy tables customer, invoice and invoice_line.
// Every write runs the finalizer inside the pgx transaction, before commit.
type Repository struct {
	pool   TxStarter
	logger *slog.Logger
}

func NewRepository(pool TxStarter, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{pool: pool, logger: logger}
}

const (
	insertCustomerSQL = `
		INSERT INTO customer (first_name, last_name, email, phone, street, city, state, country, postal_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING customer_id`
	updateCustomerSQL = `
		UPDATE customer SET
			first_name = $2, last_name = $3, email = $4, phone = $5,
			street = $6, city = $7, state = $8, country = $9, postal_code = $10
		WHERE customer_id = $1`
	updateAddressFieldsSQL = `
		UPDATE customer SET street = $6, city = $7, state = $8, country = $9, postal_code = $10
		WHERE COALESCE(street, '') = $1 AND COALESCE(city, '') = $2 AND COALESCE(state, '') = $3
			AND COALESCE(country, '') = $4 AND COALESCE(postal_code, '') = $5`
	insertInvoiceSQL = `
		INSERT INTO invoice (customer_id, invoice_date, total_amount, status)
		VALUES ($1, $2, $3, $4)
		RETURNING invoice_id`
	updateInvoiceSQL = `
		UPDATE invoice SET customer_id = $2, invoice_date = $3, total_amount = $4, status = $5
		WHERE invoice_id = $1`
	insertInvoiceLineSQL = `
		INSERT INTO invoice_line (invoice_id, description, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING invoice_line_id`
	updateInvoiceLineSQL = `
		UPDATE invoice_line SET invoice_id = $2, description = $3, quantity = $4, unit_price = $5
		WHERE invoice_line_id = $1`
)

func (r *Repository) InsertCustomer(ctx context.Context, customer entities.LegacyCustomer, finalize ports.Finalizer) error {
	return r.inTx(ctx, "legacy_repo_insert_customer_failed", finalize, func(tx pgx.Tx) (entities.LegacyWrite, error) {
		key := customer.Address.Normalize()
		var id int64
		err := tx.QueryRow(ctx, insertCustomerSQL,
			customer.FirstName, customer.LastName, customer.Email, customer.Phone,
			key.Street, key.City, key.State, key.Country, key.PostalCode,
		).Scan(&id)
		return entities.LegacyWrite{ID: id}, err
	})
}

func (r *Repository) UpdateCustomer(ctx context.Context, customer entities.LegacyCustomer, finalize ports.Finalizer) error {
	return r.inTx(ctx, "legacy_repo_update_customer_failed", finalize, func(tx pgx.Tx) (entities.LegacyWrite, error) {
		key := customer.Address.Normalize()
		_, err := tx.Exec(ctx, updateCustomerSQL,
			customer.CustomerID, customer.FirstName, customer.LastName, customer.Email, customer.Phone,
			key.Street, key.City, key.State, key.Country, key.PostalCode,
		)
		return entities.LegacyWrite{ID: customer.CustomerID}, err
	})
}

func (r *Repository) DeleteCustomer(ctx context.Context, customerID int64, finalize ports.Finalizer) error {
	return r.inTx(ctx, "legacy_repo_delete_customer_failed", finalize, func(tx pgx.Tx) (entities.LegacyWrite, error) {
		written := entities.LegacyWrite{ID: customerID}
		lineIDs, err := collectIDs(ctx, tx, `
			DELETE FROM invoice_line
			WHERE invoice_id IN (SELECT invoice_id FROM invoice WHERE customer_id = $1)
			RETURNING invoice_line_id`, customerID)
		if err != nil {
			return written, err
		}
		invoiceIDs, err := collectIDs(ctx, tx, `DELETE FROM invoice WHERE customer_id = $1 RETURNING invoice_id`, customerID)
		if err != nil {
			return written, err
		}
		written.CascadeInvoiceLineIDs = lineIDs
		written.CascadeInvoiceIDs = invoiceIDs
		_, err = tx.Exec(ctx, `DELETE FROM customer WHERE customer_id = $1`, customerID)
		return written, err
	})
}

func (r *Repository) UpdateAddressFields(ctx context.Context, from entities.AddressKey, to entities.AddressKey, finalize ports.Finalizer) error {
	return r.inTx(ctx, "legacy_repo_update_address_fields_failed", finalize, func(tx pgx.Tx) (entities.LegacyWrite, error) {
		from, to := from.Normalize(), to.Normalize()
		_, err := tx.Exec(ctx, updateAddressFieldsSQL,
			from.Street, from.City, from.State, from.Country, from.PostalCode,
			to.Street, to.City, to.State, to.Country, to.PostalCode,
		)
		return entities.LegacyWrite{}, err
	})
}

func (r *Repository) InsertInvoice(ctx context.Context, invoice entities.LegacyInvoice, finalize ports.Finalizer) error {
	return r.inTx(ctx, "legacy_repo_insert_invoice_failed", finalize, func(tx pgx.Tx) (entities.LegacyWrite, error) {
		var id int64
		err := tx.QueryRow(ctx, insertInvoiceSQL,
			invoice.CustomerID, nullableDate(invoice.InvoiceDate), invoice.TotalAmount, invoice.Status,
		).Scan(&id)
		return entities.LegacyWrite{ID: id}, err
	})
}

func (r *Repository) UpdateInvoice(ctx context.Context, invoice entities.LegacyInvoice, finalize ports.Finalizer) error {
	return r.inTx(ctx, "legacy_repo_update_invoice_failed", finalize, func(tx pgx.Tx) (entities.LegacyWrite, error) {
		_, err := tx.Exec(ctx, updateInvoiceSQL,
			invoice.InvoiceID, invoice.CustomerID, nullableDate(invoice.InvoiceDate), invoice.TotalAmount, invoice.Status,
		)
		return entities.LegacyWrite{ID: invoice.InvoiceID}, err
	})
}

func (r *Repository) DeleteInvoice(ctx context.Context, invoiceID int64, finalize ports.Finalizer) error {
	return r.inTx(ctx, "legacy_repo_delete_invoice_failed", finalize, func(tx pgx.Tx) (entities.LegacyWrite, error) {
		written := entities.LegacyWrite{ID: invoiceID}
		lineIDs, err := collectIDs(ctx, tx, `DELETE FROM invoice_line WHERE invoice_id = $1 RETURNING invoice_line_id`, invoiceID)
		if err != nil {
			return written, err
		}
		written.CascadeInvoiceLineIDs = lineIDs
		_, err = tx.Exec(ctx, `DELETE FROM invoice WHERE invoice_id = $1`, invoiceID)
		return written, err
	})
}

func (r *Repository) InsertInvoiceLine(ctx context.Context, line entities.LegacyInvoiceLine, finalize ports.Finalizer) error {
	return r.inTx(ctx, "legacy_repo_insert_invoice_line_failed", finalize, func(tx pgx.Tx) (entities.LegacyWrite, error) {
		var id int64
		err := tx.QueryRow(ctx, insertInvoiceLineSQL,
			line.InvoiceID, line.Description, line.Quantity, line.UnitPrice,
		).Scan(&id)
		return entities.LegacyWrite{ID: id}, err
	})
}

func (r *Repository) UpdateInvoiceLine(ctx context.Context, line entities.LegacyInvoiceLine, finalize ports.Finalizer) error {
	return r.inTx(ctx, "legacy_repo_update_invoice_line_failed", finalize, func(tx pgx.Tx) (entities.LegacyWrite, error) {
		_, err := tx.Exec(ctx, updateInvoiceLineSQL,
			line.InvoiceLineID, line.InvoiceID, line.Description, line.Quantity, line.UnitPrice,
		)
		return entities.LegacyWrite{ID: line.InvoiceLineID}, err
	})
}

func (r *Repository) DeleteInvoiceLine(ctx context.Context, lineID int64, finalize ports.Finalizer) error {
	return r.inTx(ctx, "legacy_repo_delete_invoice_line_failed", finalize, func(tx pgx.Tx) (entities.LegacyWrite, error) {
		_, err := tx.Exec(ctx, `DELETE FROM invoice_line WHERE invoice_line_id = $1`, lineID)
		return entities.LegacyWrite{ID: lineID}, err
	})
}

// inTx runs write, then finalize, then commits. Any error rolls back.
func (r *Repository) inTx(
	ctx context.Context,
	event string,
	finalize ports.Finalizer,
	write func(pgx.Tx) (entities.LegacyWrite, error),
) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return r.logError(event, fmt.Errorf("begin legacy transaction: %w", err))
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if _, err := tx.Exec(ctx, `SELECT set_config('schemabridge.origin', $1, true)`, ReplicationOrigin); err != nil {
		return r.logError(event, fmt.Errorf("mark replication origin: %w", err))
	}
	written, err := write(tx)
	if err != nil {
		return r.logError(event, err, "legacy_id", written.ID)
	}
	if finalize != nil {
		// Finalizer errors belong to the caller; they are not logged here.
		if err := finalize(ctx, written); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		err = fmt.Errorf("commit legacy transaction: %w", err)
		if finalize != nil {
			// The ledger already holds the identifier, so redelivery skips
			// the envelope and the legacy row stays missing.
			return r.logError("legacy_commit_after_ledger_failed", err,
				"legacy_id", written.ID,
				"unique_identifier", ports.UniqueIdentifier(ctx),
				"operation_event", event,
			)
		}
		return r.logError(event, err, "legacy_id", written.ID)
	}
	return nil
}

func collectIDs(ctx context.Context, tx pgx.Tx, query string, args ...any) ([]int64, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func nullableDate(date time.Time) *time.Time {
	if date.IsZero() {
		return nil
	}
	date = date.UTC()
	return &date
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "replication/entity-sync",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("legacy repository operation failed", fields...)
	return err
}

var _ ports.LegacyRepository = (*Repository)(nil)
