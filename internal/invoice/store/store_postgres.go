package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"invoicevault/internal/invoice/models"
	"invoicevault/pkg/platform/sentinel"
	txcontext "invoicevault/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists invoices, their parties, line items, credit notes and
// file references in PostgreSQL. Every method joins the transaction carried in
// ctx when there is one.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (s *PostgresStore) FindInvoiceIDByUUID(ctx context.Context, documentID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT id FROM invoices WHERE uuid = upper($1)`, documentID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, sentinel.ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("find invoice by uuid: %w", err)
	}
	return id, nil
}

// UpsertIssuer inserts the issuer or, when the RFC exists, overwrites its
// fiscal and contact fields. issuer.ID is set to the stored id.
func (s *PostgresStore) UpsertIssuer(ctx context.Context, issuer *models.Issuer) error {
	now := s.now()
	if issuer.ID == uuid.Nil {
		issuer.ID = uuid.New()
	}
	query := `
		INSERT INTO issuers (id, rfc, name, tax_regime, zip_code, email, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (rfc) DO UPDATE SET
			name = EXCLUDED.name,
			tax_regime = EXCLUDED.tax_regime,
			zip_code = EXCLUDED.zip_code,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`
	err := s.execer(ctx).QueryRowContext(ctx, query,
		issuer.ID, issuer.RFC, issuer.Name, issuer.TaxRegime, issuer.ZipCode, issuer.Email, issuer.Phone, now,
	).Scan(&issuer.ID, &issuer.CreatedAt, &issuer.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert issuer: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActiveProjects(ctx context.Context) ([]models.Project, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT id, code, name, active FROM projects WHERE active ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Active); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

// SaveProject inserts or updates a catalogue entry by code.
func (s *PostgresStore) SaveProject(ctx context.Context, p *models.Project) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := s.execer(ctx).QueryRowContext(ctx, `
		INSERT INTO projects (id, code, name, active) VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, active = EXCLUDED.active
		RETURNING id`, p.ID, p.Code, p.Name, p.Active).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

// CreateInvoice inserts a new invoice. A second invoice with the same document
// identifier is rejected with sentinel.ErrConflict.
func (s *PostgresStore) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = s.now()
	}
	var projectID uuid.NullUUID
	if inv.ProjectID != nil {
		projectID = uuid.NullUUID{UUID: *inv.ProjectID, Valid: true}
	}
	var certifiedAt sql.NullTime
	if inv.CertifiedAt != nil {
		certifiedAt = sql.NullTime{Time: *inv.CertifiedAt, Valid: true}
	}
	query := `
		INSERT INTO invoices (
			id, uuid, folio, series, issued_on, certified_at, sat_cert_number, week, project_label,
			issuer_id, project_id, receiver_rfc, receiver_name, receiver_tax_regime, receiver_zip_code, cfdi_use,
			payment_method, payment_form, payment_conditions,
			subtotal, discount, total_tax, retained_vat, retained_income_tax, total_amount, currency, exchange_rate,
			payment_program, fee_rate, fee_amount, net_amount, status, created_at
		) VALUES (
			$1, upper($2), $3, $4, $5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19,
			$20, $21, $22, $23, $24, $25, $26, $27,
			$28, $29, $30, $31, $32, $33
		)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		inv.ID, inv.UUID, inv.Folio, inv.Series, inv.IssuedOn, certifiedAt, inv.SATCertNumber, inv.Week, inv.ProjectLabel,
		inv.IssuerID, projectID, inv.Receiver.RFC, inv.Receiver.Name, inv.Receiver.TaxRegime, inv.Receiver.ZipCode, inv.Receiver.CFDIUse,
		inv.Payment.Method, inv.Payment.Form, inv.Payment.Conditions,
		inv.Totals.Subtotal, inv.Totals.Discount, inv.Totals.TotalTax, inv.Totals.RetainedVAT, inv.Totals.RetainedIncomeTax,
		inv.Totals.Total, inv.Totals.Currency, inv.Totals.ExchangeRate,
		string(inv.Program.Program), inv.Program.FeeRate, inv.Program.FeeAmount, inv.Program.NetAmount,
		string(inv.Status), inv.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create invoice %s: %w", inv.UUID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

// CreateLineItems inserts all items in one statement. Line numbers come from
// the items themselves; an empty slice is a no-op.
func (s *PostgresStore) CreateLineItems(ctx context.Context, invoiceID uuid.UUID, items []models.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	n := len(items)
	ids := make([]string, n)
	lineNumbers := make([]int32, n)
	productCodes := make([]string, n)
	descriptions := make([]string, n)
	quantities := make([]string, n)
	unitCodes := make([]string, n)
	units := make([]string, n)
	unitPrices := make([]string, n)
	amounts := make([]string, n)
	discounts := make([]string, n)
	taxes := make([]string, n)
	for i, it := range items {
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		ids[i] = it.ID.String()
		lineNumbers[i] = int32(it.LineNumber)
		productCodes[i] = it.ProductCode
		descriptions[i] = it.Description
		quantities[i] = it.Quantity.String()
		unitCodes[i] = it.UnitCode
		units[i] = it.Unit
		unitPrices[i] = it.UnitPrice.String()
		amounts[i] = it.Amount.String()
		discounts[i] = it.Discount.String()
		taxes[i] = it.TaxAmount.String()
	}

	// Batch insert using unnest: one round trip regardless of item count.
	query := `
		INSERT INTO invoice_line_items (
			id, invoice_id, line_number, product_code, description, quantity,
			unit_code, unit, unit_price, amount, discount, tax_amount
		)
		SELECT u.id::uuid, $1, u.line_number, u.product_code, u.description, u.quantity::numeric,
			u.unit_code, u.unit, u.unit_price::numeric, u.amount::numeric, u.discount::numeric, u.tax_amount::numeric
		FROM unnest(
			$2::text[], $3::int4[], $4::text[], $5::text[], $6::text[],
			$7::text[], $8::text[], $9::text[], $10::text[], $11::text[], $12::text[]
		) AS u(id, line_number, product_code, description, quantity, unit_code, unit, unit_price, amount, discount, tax_amount)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		invoiceID, ids, lineNumbers, productCodes, descriptions, quantities,
		unitCodes, units, unitPrices, amounts, discounts, taxes,
	)
	if err != nil {
		return fmt.Errorf("create line items: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListLineItems(ctx context.Context, invoiceID uuid.UUID) ([]models.LineItem, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, invoice_id, line_number, product_code, description, quantity, unit_code, unit,
			unit_price, amount, discount, tax_amount
		FROM invoice_line_items WHERE invoice_id = $1 ORDER BY line_number`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	defer rows.Close()

	var items []models.LineItem
	for rows.Next() {
		var it models.LineItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.LineNumber, &it.ProductCode, &it.Description, &it.Quantity,
			&it.UnitCode, &it.Unit, &it.UnitPrice, &it.Amount, &it.Discount, &it.TaxAmount); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate line items: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreateCreditNote(ctx context.Context, cn *models.CreditNote) error {
	if cn.CreatedAt.IsZero() {
		cn.CreatedAt = s.now()
	}
	var issuedOn sql.NullTime
	if cn.IssuedOn != nil {
		issuedOn = sql.NullTime{Time: *cn.IssuedOn, Valid: true}
	}
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO credit_notes (id, invoice_id, uuid, folio, series, issued_on, amount, created_at)
		VALUES ($1, $2, upper($3), $4, $5, $6, $7, $8)`,
		cn.ID, cn.InvoiceID, cn.UUID, cn.Folio, cn.Series, issuedOn, cn.Amount, cn.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create credit note %s: %w", cn.UUID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create credit note: %w", err)
	}
	return nil
}

// fileTable maps an owner to its reference table and owner column. Both are
// constants, never caller input.
func fileTable(owner models.FileOwner) (table, ownerColumn string, err error) {
	switch owner {
	case models.OwnerInvoice:
		return "invoice_files", "invoice_id", nil
	case models.OwnerCreditNote:
		return "credit_note_files", "credit_note_id", nil
	default:
		return "", "", fmt.Errorf("unknown file owner %q", owner)
	}
}

// UpsertFileReference records the primary location of an artifact. A second
// call for the same (owner, kind) overwrites the primary location and clears
// any stale secondary location instead of adding a row.
func (s *PostgresStore) UpsertFileReference(ctx context.Context, ref *models.FileReference) error {
	table, ownerColumn, err := fileTable(ref.Owner)
	if err != nil {
		return err
	}
	now := s.now()
	if ref.ID == uuid.Nil {
		ref.ID = uuid.New()
	}
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (id, %[2]s, kind, primary_path, primary_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (%[2]s, kind) DO UPDATE SET
			primary_path = EXCLUDED.primary_path,
			primary_url = EXCLUDED.primary_url,
			secondary_id = '',
			secondary_url = '',
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`, table, ownerColumn)
	err = s.execer(ctx).QueryRowContext(ctx, query,
		ref.ID, ref.OwnerID, string(ref.Kind), ref.PrimaryPath, ref.PrimaryURL, now,
	).Scan(&ref.ID, &ref.CreatedAt, &ref.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert file reference: %w", err)
	}
	ref.SecondaryID, ref.SecondaryURL = "", ""
	return nil
}

// AttachSecondary records the backup location on an existing reference. It
// never inserts; a missing reference yields sentinel.ErrNotFound.
func (s *PostgresStore) AttachSecondary(ctx context.Context, owner models.FileOwner, ownerID uuid.UUID, kind models.FileKind, secondaryID, secondaryURL string) error {
	table, ownerColumn, err := fileTable(owner)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		UPDATE %s SET secondary_id = $3, secondary_url = $4, updated_at = $5
		WHERE %s = $1 AND kind = $2
	`, table, ownerColumn)
	res, err := s.execer(ctx).ExecContext(ctx, query, ownerID, string(kind), secondaryID, secondaryURL, s.now())
	if err != nil {
		return fmt.Errorf("attach secondary location: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach secondary location: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListFileReferences(ctx context.Context, owner models.FileOwner, ownerID uuid.UUID) ([]models.FileReference, error) {
	table, ownerColumn, err := fileTable(owner)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT id, %[2]s, kind, primary_path, primary_url, secondary_id, secondary_url, created_at, updated_at
		FROM %[1]s WHERE %[2]s = $1 ORDER BY kind
	`, table, ownerColumn)
	rows, err := s.execer(ctx).QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list file references: %w", err)
	}
	defer rows.Close()

	var refs []models.FileReference
	for rows.Next() {
		ref := models.FileReference{Owner: owner}
		var kind string
		if err := rows.Scan(&ref.ID, &ref.OwnerID, &kind, &ref.PrimaryPath, &ref.PrimaryURL,
			&ref.SecondaryID, &ref.SecondaryURL, &ref.CreatedAt, &ref.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan file reference: %w", err)
		}
		ref.Kind = models.FileKind(kind)
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file references: %w", err)
	}
	return refs, nil
}

// FindInvoiceByUUID loads the invoice read model with its issuer, project and
// file references.
func (s *PostgresStore) FindInvoiceByUUID(ctx context.Context, documentID string) (*models.InvoiceDetails, error) {
	query := `
		SELECT i.id, i.uuid, i.folio, i.series, i.issued_on, i.certified_at, i.sat_cert_number, i.week, i.project_label,
			i.issuer_id, i.project_id, i.receiver_rfc, i.receiver_name, i.receiver_tax_regime, i.receiver_zip_code, i.cfdi_use,
			i.payment_method, i.payment_form, i.payment_conditions,
			i.subtotal, i.discount, i.total_tax, i.retained_vat, i.retained_income_tax, i.total_amount, i.currency, i.exchange_rate,
			i.payment_program, i.fee_rate, i.fee_amount, i.net_amount, i.status, i.created_at,
			iss.rfc, iss.name, COALESCE(p.code, '')
		FROM invoices i
		JOIN issuers iss ON iss.id = i.issuer_id
		LEFT JOIN projects p ON p.id = i.project_id
		WHERE i.uuid = upper($1)
	`
	var (
		d           models.InvoiceDetails
		inv         = &d.Invoice
		certifiedAt sql.NullTime
		projectID   uuid.NullUUID
		program     string
		status      string
		exchange    decimal.NullDecimal
	)
	err := s.execer(ctx).QueryRowContext(ctx, query, documentID).Scan(
		&inv.ID, &inv.UUID, &inv.Folio, &inv.Series, &inv.IssuedOn, &certifiedAt, &inv.SATCertNumber, &inv.Week, &inv.ProjectLabel,
		&inv.IssuerID, &projectID, &inv.Receiver.RFC, &inv.Receiver.Name, &inv.Receiver.TaxRegime, &inv.Receiver.ZipCode, &inv.Receiver.CFDIUse,
		&inv.Payment.Method, &inv.Payment.Form, &inv.Payment.Conditions,
		&inv.Totals.Subtotal, &inv.Totals.Discount, &inv.Totals.TotalTax, &inv.Totals.RetainedVAT, &inv.Totals.RetainedIncomeTax,
		&inv.Totals.Total, &inv.Totals.Currency, &exchange,
		&program, &inv.Program.FeeRate, &inv.Program.FeeAmount, &inv.Program.NetAmount, &status, &inv.CreatedAt,
		&d.IssuerRFC, &d.IssuerName, &d.ProjectCode,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find invoice: %w", err)
	}
	if certifiedAt.Valid {
		t := certifiedAt.Time
		inv.CertifiedAt = &t
	}
	if projectID.Valid {
		id := projectID.UUID
		inv.ProjectID = &id
	}
	inv.Totals.ExchangeRate = exchange
	inv.Program.Program = models.PaymentProgram(program)
	inv.Status = models.Status(status)

	files, err := s.ListFileReferences(ctx, models.OwnerInvoice, inv.ID)
	if err != nil {
		return nil, err
	}
	d.Files = files
	return &d, nil
}

func (s *PostgresStore) FindIssuerByRFC(ctx context.Context, rfc string) (*models.Issuer, error) {
	var iss models.Issuer
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, rfc, name, tax_regime, zip_code, email, phone, created_at, updated_at
		FROM issuers WHERE rfc = $1`, rfc).Scan(
		&iss.ID, &iss.RFC, &iss.Name, &iss.TaxRegime, &iss.ZipCode, &iss.Email, &iss.Phone, &iss.CreatedAt, &iss.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find issuer: %w", err)
	}
	return &iss, nil
}
