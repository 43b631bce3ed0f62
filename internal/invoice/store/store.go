package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrJamesThe3rd/factura/internal/invoice"
)

const foreignKeyViolation = "23503"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const selectInvoiceColumns = `
	i.id, i.tenant_id, i.document_type, i.number, i.sequence, i.issued_at, i.due_date, i.currency,
	i.payment_form, i.payment_code, i.supplier, i.customer, i.global_discount, i.taxes,
	i.subtotal, i.taxable_base, i.tax_total, i.discount, i.total, i.payable, i.tax_inclusive,
	i.note, i.reference, i.status, i.code, i.track_id, i.void_reason, i.created_at, i.updated_at,
	r.id, r.number, r.prefix, r.range_from, r.range_to, r.valid_from, r.valid_to
`

const fromInvoices = `
	FROM invoices i
	LEFT JOIN billing_resolutions r ON r.id = i.resolution_id`

// scanInvoice reads a row selected with selectInvoiceColumns; extra receives any trailing columns.
func scanInvoice(s scanner, extra ...any) (*invoice.Invoice, error) {
	var (
		inv                       invoice.Invoice
		docType, status           string
		dueDate                   sql.NullTime
		supplier, customer, taxes []byte
		reference                 []byte
		code, trackID, voidReason sql.NullString
		resID                     *uuid.UUID
		resNumber, resPrefix      sql.NullString
		resFrom, resTo            sql.NullInt64
		resValidFrom, resValidTo  sql.NullTime
	)

	dest := []any{
		&inv.ID, &inv.TenantID, &docType, &inv.Number, &inv.Sequence, &inv.IssuedAt, &dueDate, &inv.Currency,
		&inv.Payment.Form, &inv.Payment.Code, &supplier, &customer, &inv.GlobalDiscount, &taxes,
		&inv.Totals.Subtotal, &inv.Totals.TaxableBase, &inv.Totals.TaxTotal, &inv.Totals.Discount,
		&inv.Totals.Total, &inv.Totals.Payable, &inv.Totals.TaxInclusive,
		&inv.Note, &reference, &status, &code, &trackID, &voidReason, &inv.CreatedAt, &inv.UpdatedAt,
		&resID, &resNumber, &resPrefix, &resFrom, &resTo, &resValidFrom, &resValidTo,
	}

	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	inv.DocumentType = invoice.DocumentType(docType)
	inv.Status = invoice.Status(status)
	inv.IssuedAt = inv.IssuedAt.In(invoice.Bogota)
	inv.Code = code.String
	inv.TrackID = trackID.String
	inv.VoidReason = voidReason.String

	if dueDate.Valid {
		d := dueDate.Time
		inv.DueDate = &d
	}

	if err := json.Unmarshal(supplier, &inv.Supplier); err != nil {
		return nil, fmt.Errorf("decoding supplier: %w", err)
	}

	if err := json.Unmarshal(customer, &inv.Customer); err != nil {
		return nil, fmt.Errorf("decoding customer: %w", err)
	}

	if err := json.Unmarshal(taxes, &inv.Taxes); err != nil {
		return nil, fmt.Errorf("decoding taxes: %w", err)
	}

	if len(reference) > 0 {
		inv.Reference = &invoice.BillingReference{}
		if err := json.Unmarshal(reference, inv.Reference); err != nil {
			return nil, fmt.Errorf("decoding billing reference: %w", err)
		}
	}

	if resID != nil {
		inv.Resolution = invoice.BillingResolution{
			ID:        *resID,
			TenantID:  inv.TenantID,
			Number:    resNumber.String,
			Prefix:    resPrefix.String,
			From:      resFrom.Int64,
			To:        resTo.Int64,
			ValidFrom: inDay(resValidFrom.Time),
			ValidTo:   inDay(resValidTo.Time),
		}
	}

	return &inv, nil
}

// inDay reinterprets a DATE column as a Bogota calendar day.
func inDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, invoice.Bogota)
}

type encodedFields struct {
	supplier, customer, taxes, reference []byte
}

func encode(inv *invoice.Invoice) (encodedFields, error) {
	var (
		e   encodedFields
		err error
	)

	if e.supplier, err = json.Marshal(inv.Supplier); err != nil {
		return e, fmt.Errorf("encoding supplier: %w", err)
	}

	if e.customer, err = json.Marshal(inv.Customer); err != nil {
		return e, fmt.Errorf("encoding customer: %w", err)
	}

	taxes := inv.Taxes
	if taxes == nil {
		taxes = []invoice.TaxLine{}
	}

	if e.taxes, err = json.Marshal(taxes); err != nil {
		return e, fmt.Errorf("encoding taxes: %w", err)
	}

	if inv.Reference != nil {
		if e.reference, err = json.Marshal(inv.Reference); err != nil {
			return e, fmt.Errorf("encoding billing reference: %w", err)
		}
	}

	return e, nil
}

func nullableID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}

	return &id
}

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	enc, err := encode(inv)
	if err != nil {
		return err
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	query := `
		INSERT INTO invoices (
			tenant_id, document_type, number, sequence, resolution_id, issued_at, due_date, currency,
			payment_form, payment_code, supplier, customer, global_discount, taxes,
			subtotal, taxable_base, tax_total, discount, total, payable, tax_inclusive,
			note, reference, status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, NOW())
		RETURNING id, created_at
	`

	err = dbTx.QueryRowContext(ctx, query,
		inv.TenantID,
		inv.DocumentType,
		inv.Number,
		inv.Sequence,
		nullableID(inv.Resolution.ID),
		inv.IssuedAt,
		inv.DueDate,
		inv.Currency,
		inv.Payment.Form,
		inv.Payment.Code,
		enc.supplier,
		enc.customer,
		inv.GlobalDiscount,
		enc.taxes,
		inv.Totals.Subtotal,
		inv.Totals.TaxableBase,
		inv.Totals.TaxTotal,
		inv.Totals.Discount,
		inv.Totals.Total,
		inv.Totals.Payable,
		inv.Totals.TaxInclusive,
		inv.Note,
		enc.reference,
		inv.Status,
	).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating invoice: %w", err)
	}

	if err := insertItems(ctx, dbTx, inv); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func insertItems(ctx context.Context, q execer, inv *invoice.Invoice) error {
	query := `
		INSERT INTO invoice_items (
			invoice_id, position, product_code, description, quantity, unit_code, unit_price, discount,
			tax_type, tax_rate, subtotal, tax_amount, total
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12, $13)
	`

	for _, it := range inv.Items {
		_, err := q.ExecContext(ctx, query,
			inv.ID,
			it.Position,
			it.ProductCode,
			it.Description,
			it.Quantity,
			it.UnitCode,
			it.UnitPrice,
			it.Discount,
			string(it.TaxType),
			it.TaxRate,
			it.Subtotal,
			it.TaxAmount,
			it.Total,
		)
		if err != nil {
			return fmt.Errorf("inserting item %d: %w", it.Position, err)
		}
	}

	return nil
}

func loadItems(ctx context.Context, q execer, id uuid.UUID) ([]invoice.LineItem, error) {
	query := `
		SELECT position, product_code, description, quantity, unit_code, unit_price, discount,
		       COALESCE(tax_type, ''), tax_rate, subtotal, tax_amount, total
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY position ASC`

	rows, err := q.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []invoice.LineItem

	for rows.Next() {
		var (
			it      invoice.LineItem
			taxType string
		)

		if err := rows.Scan(
			&it.Position, &it.ProductCode, &it.Description, &it.Quantity, &it.UnitCode, &it.UnitPrice, &it.Discount,
			&taxType, &it.TaxRate, &it.Subtotal, &it.TaxAmount, &it.Total,
		); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}

		it.TaxType = invoice.TaxType(taxType)
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating item rows: %w", err)
	}

	return items, nil
}

// GetInvoice loads the invoice with its items and compliance artifacts.
func (s *Store) GetInvoice(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	query := `SELECT ` + selectInvoiceColumns + `, i.signed_document, i.pdf` + fromInvoices + `
		WHERE i.id = $1`

	var signed, pdf []byte

	inv, err := scanInvoice(s.db.QueryRowContext(ctx, query, id), &signed, &pdf)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invoice.ErrNotFound
		}

		return nil, fmt.Errorf("getting invoice: %w", err)
	}

	inv.SignedDocument = signed
	inv.PDF = pdf

	if inv.Items, err = loadItems(ctx, s.db, id); err != nil {
		return nil, err
	}

	return inv, nil
}

// ListInvoices returns headers only; items and artifacts are loaded by GetInvoice.
func (s *Store) ListInvoices(ctx context.Context, filter invoice.ListFilter) ([]*invoice.Invoice, error) {
	query := `SELECT ` + selectInvoiceColumns + fromInvoices + `
		WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.TenantID != nil {
		query += fmt.Sprintf(" AND i.tenant_id = $%d", argIdx)

		args = append(args, *filter.TenantID)
		argIdx++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND i.status = $%d", argIdx)

		args = append(args, *filter.Status)
		argIdx++
	}

	if filter.StartDate != nil {
		query += fmt.Sprintf(" AND i.issued_at >= $%d", argIdx)

		args = append(args, *filter.StartDate)
		argIdx++
	}

	if filter.EndDate != nil {
		query += fmt.Sprintf(" AND i.issued_at <= $%d", argIdx)

		args = append(args, *filter.EndDate)
		argIdx++
	}

	query += " ORDER BY i.issued_at DESC, i.sequence DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	defer rows.Close()

	var invs []*invoice.Invoice

	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning invoice: %w", err)
		}

		invs = append(invs, inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invoice rows: %w", err)
	}

	return invs, nil
}

// UpdateDraft rewrites the editable fields and items of a draft. A draft that already carries
// a code is as immutable as anything past draft.
func (s *Store) UpdateDraft(ctx context.Context, inv *invoice.Invoice) error {
	enc, err := encode(inv)
	if err != nil {
		return err
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	query := `
		UPDATE invoices
		SET due_date = $1, payment_form = $2, payment_code = $3, customer = $4, global_discount = $5,
		    taxes = $6, subtotal = $7, taxable_base = $8, tax_total = $9, discount = $10, total = $11,
		    payable = $12, tax_inclusive = $13, note = $14, updated_at = NOW()
		WHERE id = $15 AND status = 'draft' AND code IS NULL
	`

	res, err := dbTx.ExecContext(ctx, query,
		inv.DueDate,
		inv.Payment.Form,
		inv.Payment.Code,
		enc.customer,
		inv.GlobalDiscount,
		enc.taxes,
		inv.Totals.Subtotal,
		inv.Totals.TaxableBase,
		inv.Totals.TaxTotal,
		inv.Totals.Discount,
		inv.Totals.Total,
		inv.Totals.Payable,
		inv.Totals.TaxInclusive,
		inv.Note,
		inv.ID,
	)
	if err != nil {
		return fmt.Errorf("updating invoice: %w", err)
	}

	if err := s.expectRow(ctx, res, inv.ID, invoice.ErrImmutable); err != nil {
		return err
	}

	if _, err := dbTx.ExecContext(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, inv.ID); err != nil {
		return fmt.Errorf("clearing items: %w", err)
	}

	if err := insertItems(ctx, dbTx, inv); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// AllocateNumber takes the next sequence of the tenant's active resolution in one statement,
// so concurrent drafts never share a number.
func (s *Store) AllocateNumber(ctx context.Context, tenantID uuid.UUID, docType invoice.DocumentType, at time.Time) (invoice.BillingResolution, int64, error) {
	query := `
		UPDATE billing_resolutions
		SET next_number = next_number + 1
		WHERE tenant_id = $1 AND document_type = $2 AND active
		  AND next_number <= range_to
		  AND $3::date BETWEEN valid_from AND valid_to
		RETURNING id, tenant_id, number, prefix, range_from, range_to, valid_from, valid_to, next_number - 1
	`

	var (
		r   invoice.BillingResolution
		seq int64
	)

	err := s.db.QueryRowContext(ctx, query, tenantID, docType, at.In(invoice.Bogota).Format("2006-01-02")).Scan(
		&r.ID, &r.TenantID, &r.Number, &r.Prefix, &r.From, &r.To, &r.ValidFrom, &r.ValidTo, &seq,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invoice.BillingResolution{}, 0, invoice.ErrResolutionExhausted
		}

		return invoice.BillingResolution{}, 0, fmt.Errorf("allocating number: %w", err)
	}

	r.ValidFrom = inDay(r.ValidFrom)
	r.ValidTo = inDay(r.ValidTo)
	r.Next = seq + 1

	return r, seq, nil
}

// SaveCode stores the CUFE once. Saving the same code again is a no-op.
func (s *Store) SaveCode(ctx context.Context, id uuid.UUID, code string) error {
	query := `
		UPDATE invoices
		SET code = $2, updated_at = NOW()
		WHERE id = $1 AND (code IS NULL OR code = $2)
	`

	res, err := s.db.ExecContext(ctx, query, id, code)
	if err != nil {
		return fmt.Errorf("saving code: %w", err)
	}

	return s.expectRow(ctx, res, id, fmt.Errorf("%w: invoice already carries a different code", invoice.ErrImmutable))
}

func (s *Store) SaveSignedDocument(ctx context.Context, id uuid.UUID, doc []byte) error {
	return s.setColumn(ctx, id, "signed_document", doc)
}

func (s *Store) SaveTrackID(ctx context.Context, id uuid.UUID, trackID string) error {
	return s.setColumn(ctx, id, "track_id", trackID)
}

func (s *Store) SavePDF(ctx context.Context, id uuid.UUID, pdf []byte) error {
	return s.setColumn(ctx, id, "pdf", pdf)
}

func (s *Store) SaveVoidReason(ctx context.Context, id uuid.UUID, reason string) error {
	return s.setColumn(ctx, id, "void_reason", reason)
}

// setColumn updates one artifact column. column is always a constant from this file.
func (s *Store) setColumn(ctx context.Context, id uuid.UUID, column string, value any) error {
	query := `UPDATE invoices SET ` + column + ` = $2, updated_at = NOW() WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, id, value)
	if err != nil {
		return fmt.Errorf("saving %s: %w", column, err)
	}

	return s.expectRow(ctx, res, id, invoice.ErrNotFound)
}

// UpdateStatus is a compare-and-set on the status column.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, from, to invoice.Status) error {
	query := `
		UPDATE invoices
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	res, err := s.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}

	return s.expectRow(ctx, res, id, invoice.ErrConcurrentUpdate)
}

// expectRow maps an update that touched nothing to ErrNotFound, or to mismatch when the row exists.
func (s *Store) expectRow(ctx context.Context, res sql.Result, id uuid.UUID, mismatch error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}

	if n > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking invoice: %w", err)
	}

	if !exists {
		return invoice.ErrNotFound
	}

	return mismatch
}

// AppendAttempt inserts the next attempt of the invoice. UNIQUE (invoice_id, sequence) rejects
// a concurrent writer that computed the same sequence.
func (s *Store) AppendAttempt(ctx context.Context, a *invoice.SubmissionAttempt) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	errs := a.Errors
	if errs == nil {
		errs = []invoice.AuthorityError{}
	}

	encoded, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("encoding authority errors: %w", err)
	}

	query := `
		INSERT INTO submission_attempts (
			id, invoice_id, sequence, started_at, finished_at, payload_hash, idempotency_key,
			outcome, status_code, track_id, errors, cause
		)
		SELECT $1, $2, COALESCE(MAX(sequence), 0) + 1, $3, $4, $5, $6, $7, $8, $9, $10, $11
		FROM submission_attempts
		WHERE invoice_id = $2
		RETURNING sequence
	`

	err = s.db.QueryRowContext(ctx, query,
		a.ID,
		a.InvoiceID,
		a.StartedAt,
		a.FinishedAt,
		a.PayloadHash,
		a.IdempotencyKey,
		a.Outcome,
		a.StatusCode,
		a.TrackID,
		encoded,
		a.Cause,
	).Scan(&a.Sequence)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return invoice.ErrNotFound
		}

		return fmt.Errorf("appending attempt: %w", err)
	}

	return nil
}

func (s *Store) ListAttempts(ctx context.Context, invoiceID uuid.UUID) ([]*invoice.SubmissionAttempt, error) {
	query := `
		SELECT id, invoice_id, sequence, started_at, finished_at, payload_hash, idempotency_key,
		       outcome, status_code, track_id, errors, cause
		FROM submission_attempts
		WHERE invoice_id = $1
		ORDER BY sequence ASC`

	rows, err := s.db.QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("listing attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*invoice.SubmissionAttempt

	for rows.Next() {
		var (
			a       invoice.SubmissionAttempt
			outcome string
			errs    []byte
		)

		if err := rows.Scan(
			&a.ID, &a.InvoiceID, &a.Sequence, &a.StartedAt, &a.FinishedAt, &a.PayloadHash, &a.IdempotencyKey,
			&outcome, &a.StatusCode, &a.TrackID, &errs, &a.Cause,
		); err != nil {
			return nil, fmt.Errorf("scanning attempt: %w", err)
		}

		a.Outcome = invoice.Outcome(outcome)

		if err := json.Unmarshal(errs, &a.Errors); err != nil {
			return nil, fmt.Errorf("decoding authority errors: %w", err)
		}

		attempts = append(attempts, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attempt rows: %w", err)
	}

	return attempts, nil
}

func invoiceLockKey(id uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write([]byte("invoice"))
	h.Write([]byte{0})
	h.Write(id[:])

	return int64(h.Sum64())
}

// LockInvoice holds a session advisory lock on a dedicated connection until the returned
// func is called, so submissions of one invoice are serialised across instances.
func (s *Store) LockInvoice(ctx context.Context, id uuid.UUID) (func(), error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}

	key := invoiceLockKey(id)

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", key); err != nil {
		conn.Close()
		return nil, fmt.Errorf("acquiring invoice lock: %w", err)
	}

	return func() {
		if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", key); err != nil {
			slog.Error("failed to release invoice lock", "invoice_id", id, "error", err)
		}

		conn.Close()
	}, nil
}
