//go:build integration

package store_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"invoicevault/internal/invoice/models"
	"invoicevault/internal/invoice/store"
	"invoicevault/pkg/platform/sentinel"
	txcontext "invoicevault/pkg/platform/tx"
	"invoicevault/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg     *containers.PostgresContainer
	store  *store.PostgresStore
	runner *txcontext.SQLRunner
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(store.EnsureSchema(context.Background(), s.pg.DB))
	s.store = store.NewPostgres(s.pg.DB)
	s.runner = txcontext.NewSQLRunner(s.pg.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(context.Background(),
		"credit_note_files", "credit_notes", "invoice_files", "invoice_line_items",
		"invoices", "issuers", "projects", "outbox"))
}

func (s *PostgresStoreSuite) issuer(ctx context.Context) *models.Issuer {
	iss := &models.Issuer{RFC: "GODE561231GR8", Name: "Dominga Gonzalez", TaxRegime: "612", ZipCode: "64000"}
	s.Require().NoError(s.store.UpsertIssuer(ctx, iss))
	return iss
}

func (s *PostgresStoreSuite) invoice(documentID string, issuerID uuid.UUID) *models.Invoice {
	total := decimal.RequireFromString("1000.00")
	return &models.Invoice{
		ID:       uuid.New(),
		UUID:     documentID,
		Folio:    "A-1",
		IssuedOn: time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC),
		Week:     12,
		IssuerID: issuerID,
		Receiver: models.Receiver{RFC: "EKU9003173C9", Name: "Receiver"},
		Payment:  models.PaymentTerms{Method: models.PaymentMethodSingle},
		Totals:   models.Totals{Subtotal: total, Total: total, Currency: "MXN"},
		Program:  models.NewProgramTerms(models.ProgramAccelerated, total, decimal.RequireFromString("0.08")),
		Status:   models.StatusPendingReview,
	}
}

func (s *PostgresStoreSuite) TestInvoiceRoundTrip() {
	ctx := context.Background()
	iss := s.issuer(ctx)
	proj := &models.Project{Code: "TN-01", Name: "Torre Norte", Active: true}
	s.Require().NoError(s.store.SaveProject(ctx, proj))

	inv := s.invoice("aaaaaaaa-1111-2222-3333-444444444444", iss.ID)
	inv.ProjectID = &proj.ID
	s.Require().NoError(s.store.CreateInvoice(ctx, inv))
	s.Require().NoError(s.store.CreateLineItems(ctx, inv.ID, []models.LineItem{
		{LineNumber: 1, Description: "steel", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(250), Amount: decimal.NewFromInt(500)},
		{LineNumber: 2, Description: "labor", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(500), Amount: decimal.NewFromInt(500)},
	}))

	id, err := s.store.FindInvoiceIDByUUID(ctx, "AAAAAAAA-1111-2222-3333-444444444444")
	s.Require().NoError(err)
	s.Equal(inv.ID, id)

	details, err := s.store.FindInvoiceByUUID(ctx, inv.UUID)
	s.Require().NoError(err)
	s.Equal("GODE561231GR8", details.IssuerRFC)
	s.Equal("TN-01", details.ProjectCode)
	s.True(decimal.RequireFromString("80").Equal(details.Invoice.Program.FeeAmount))
	s.True(decimal.RequireFromString("920").Equal(details.Invoice.Program.NetAmount))

	items, err := s.store.ListLineItems(ctx, inv.ID)
	s.Require().NoError(err)
	s.Require().Len(items, 2)
	s.Equal(1, items[0].LineNumber)
	s.Equal("labor", items[1].Description)
}

func (s *PostgresStoreSuite) TestConcurrentInsertsYieldOneInvoice() {
	ctx := context.Background()
	iss := s.issuer(ctx)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.store.CreateInvoice(ctx, s.invoice("AAAAAAAA-1111-2222-3333-444444444444", iss.ID))
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
			continue
		}
		s.ErrorIs(err, sentinel.ErrConflict)
	}
	s.Equal(1, created)
}

func (s *PostgresStoreSuite) TestIdentifierLookupUsesUniqueIndex() {
	ctx := context.Background()
	iss := s.issuer(ctx)
	inv := s.invoice("aaaaaaaa-1111-2222-3333-444444444444", iss.ID)
	s.Require().NoError(s.store.CreateInvoice(ctx, inv))

	var stored string
	s.Require().NoError(s.pg.DB.QueryRowContext(ctx, `SELECT uuid FROM invoices WHERE id = $1`, inv.ID).Scan(&stored))
	s.Equal("AAAAAAAA-1111-2222-3333-444444444444", stored)

	id, err := s.store.FindInvoiceIDByUUID(ctx, "aaaaaaaa-1111-2222-3333-444444444444")
	s.Require().NoError(err)
	s.Equal(inv.ID, id)

	tx, err := s.pg.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)
	defer func() { _ = tx.Rollback() }()
	_, err = tx.ExecContext(ctx, `SET LOCAL enable_seqscan = off`)
	s.Require().NoError(err)
	rows, err := tx.QueryContext(ctx,
		`EXPLAIN SELECT id FROM invoices WHERE uuid = upper('aaaaaaaa-1111-2222-3333-444444444444')`)
	s.Require().NoError(err)
	defer rows.Close()
	var plan []string
	for rows.Next() {
		var line string
		s.Require().NoError(rows.Scan(&line))
		plan = append(plan, line)
	}
	s.Require().NoError(rows.Err())
	s.Contains(strings.Join(plan, "\n"), "invoices_uuid_key")
}

func (s *PostgresStoreSuite) TestRunInTxRollsBackIssuer() {
	ctx := context.Background()
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		iss := s.issuer(ctx)
		if err := s.store.CreateInvoice(ctx, s.invoice("AAAAAAAA-1111-2222-3333-444444444444", iss.ID)); err != nil {
			return err
		}
		return s.store.CreateInvoice(ctx, s.invoice("AAAAAAAA-1111-2222-3333-444444444444", iss.ID))
	})
	s.ErrorIs(err, sentinel.ErrConflict)

	_, err = s.store.FindIssuerByRFC(ctx, "GODE561231GR8")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindInvoiceIDByUUID(ctx, "AAAAAAAA-1111-2222-3333-444444444444")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestFileReferencesUpsertAndAttach() {
	ctx := context.Background()
	iss := s.issuer(ctx)
	inv := s.invoice("AAAAAAAA-1111-2222-3333-444444444444", iss.ID)
	s.Require().NoError(s.store.CreateInvoice(ctx, inv))

	ref := &models.FileReference{Owner: models.OwnerInvoice, OwnerID: inv.ID, Kind: models.KindXML, PrimaryPath: "p1", PrimaryURL: "https://blob/p1"}
	s.Require().NoError(s.store.UpsertFileReference(ctx, ref))
	s.Require().NoError(s.store.AttachSecondary(ctx, models.OwnerInvoice, inv.ID, models.KindXML, "drive-1", "https://drive/1"))

	again := &models.FileReference{Owner: models.OwnerInvoice, OwnerID: inv.ID, Kind: models.KindXML, PrimaryPath: "p2", PrimaryURL: "https://blob/p2"}
	s.Require().NoError(s.store.UpsertFileReference(ctx, again))

	refs, err := s.store.ListFileReferences(ctx, models.OwnerInvoice, inv.ID)
	s.Require().NoError(err)
	s.Require().Len(refs, 1)
	s.Equal("https://blob/p2", refs[0].PrimaryURL)
	s.False(refs[0].HasSecondary())

	err = s.store.AttachSecondary(ctx, models.OwnerInvoice, inv.ID, models.KindPDF, "drive-2", "https://drive/2")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestIssuerLastWriteWins() {
	ctx := context.Background()
	first := s.issuer(ctx)
	second := &models.Issuer{RFC: first.RFC, Name: "Dominga G.", ZipCode: "64010"}
	s.Require().NoError(s.store.UpsertIssuer(ctx, second))
	s.Equal(first.ID, second.ID)

	stored, err := s.store.FindIssuerByRFC(ctx, first.RFC)
	s.Require().NoError(err)
	s.Equal("Dominga G.", stored.Name)
	s.Equal("64010", stored.ZipCode)
}
