package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"invoicevault/internal/invoice/invoicetest"
	"invoicevault/internal/invoice/lock"
	"invoicevault/internal/invoice/models"
	"invoicevault/internal/invoice/storage/blob"
	"invoicevault/internal/invoice/storage/drive"
	"invoicevault/internal/invoice/store"
	"invoicevault/internal/invoice/validation"
	"invoicevault/internal/outbox"
	dErrors "invoicevault/pkg/domain-errors"
	"invoicevault/pkg/platform/circuit"
	"invoicevault/pkg/platform/sentinel"
	"invoicevault/pkg/requestcontext"
)

var fixedNow = time.Date(2026, 3, 18, 15, 0, 0, 0, time.UTC)

type SubmitSuite struct {
	suite.Suite
	ctx     context.Context
	store   *store.InMemoryStore
	blobs   *blob.InMemoryStore
	drive   *drive.InMemoryClient
	outbox  *outbox.InMemoryStore
	locker  *lock.MemoryLocker
	breaker *circuit.Breaker
	project models.Project
	svc     *Service
}

func TestSubmitSuite(t *testing.T) {
	suite.Run(t, new(SubmitSuite))
}

func (s *SubmitSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(requestcontext.WithRequestID(context.Background(), "req-1"), fixedNow)
	s.store = store.NewInMemory()
	s.blobs = blob.NewInMemory("https://blob.local/invoices")
	s.drive = drive.NewInMemoryClient()
	s.outbox = outbox.NewInMemory()
	s.locker = lock.NewMemory(time.Minute)
	s.breaker = circuit.New("secondary", circuit.WithFailureThreshold(5))

	s.project = models.Project{Code: "TN-01", Name: "Torre Norte", Active: true}
	s.Require().NoError(s.store.SaveProject(s.ctx, &s.project))

	s.svc = s.newService(s.store, s.store)
}

func (s *SubmitSuite) newService(st Store, tx TxRunner) *Service {
	docs := drive.NewStore(s.drive, drive.NewFolderResolver(s.drive, "root", nil, nil))
	return New(st, tx, validation.New(invoicetest.ReceiverRFC), s.blobs,
		WithDocumentStore(docs, s.breaker),
		WithLocker(s.locker),
		WithOutbox(s.outbox, ""),
	)
}

func (s *SubmitSuite) TestRegistersInvoiceInBothTiers() {
	res, err := s.svc.Submit(s.ctx, invoicetest.Submission())
	s.Require().NoError(err)

	s.Equal(models.OutcomeCreated, res.Outcome)
	s.Equal(invoicetest.DocumentID, res.UUID)
	s.Require().NotNil(res.ProjectID)
	s.Equal(s.project.ID, *res.ProjectID)
	s.Empty(res.Warnings)

	s.Require().Len(res.Files, 2)
	xml := res.Files[models.KindXML]
	s.Equal("2026/week-12/torre_norte/GODE561231GR8/AAAAAAAA-1111-2222-3333-444444444444_xml.xml", xml.Path)
	s.Equal("https://blob.local/invoices/"+xml.Path, xml.URL)
	s.NotEmpty(xml.BackupURL)

	refs, err := s.store.ListFileReferences(s.ctx, models.OwnerInvoice, res.InvoiceID)
	s.Require().NoError(err)
	s.Require().Len(refs, 2)
	for _, ref := range refs {
		s.True(ref.HasSecondary(), "kind %s reconciled with backup location", ref.Kind)
	}

	items, err := s.store.ListLineItems(s.ctx, res.InvoiceID)
	s.Require().NoError(err)
	s.Require().Len(items, 2)
	s.Equal(1, items[0].LineNumber)
	s.Equal(2, items[1].LineNumber)
	s.Equal("Material eléctrico", items[1].Description)

	details, err := s.svc.Get(s.ctx, invoicetest.DocumentID)
	s.Require().NoError(err)
	s.Equal(models.StatusPendingReview, details.Invoice.Status)
	s.True(details.Invoice.Program.NetAmount.Equal(decimal.NewFromInt(1000)))
	s.True(details.Invoice.Program.FeeAmount.IsZero())
}

func (s *SubmitSuite) TestAcceleratedProgramDerivesFeeAndRegistersCreditNote() {
	res, err := s.svc.Submit(s.ctx, invoicetest.AcceleratedSubmission())
	s.Require().NoError(err)

	s.Equal(models.ProgramAccelerated, res.Program.Program)
	s.True(res.Program.FeeAmount.Equal(decimal.NewFromInt(80)), "fee = %s", res.Program.FeeAmount)
	s.True(res.Program.NetAmount.Equal(decimal.NewFromInt(920)), "net = %s", res.Program.NetAmount)

	s.Require().NotNil(res.CreditNote)
	s.Equal("BBBBBBBB-5555-6666-7777-888888888888", res.CreditNote.UUID)
	s.Len(res.CreditNote.Files, 2)
	s.Contains(res.CreditNote.Files[models.KindCreditNoteXML].Path, "BBBBBBBB-5555-6666-7777-888888888888_credit_note_xml.xml")

	cn, ok := s.store.CreditNoteForInvoice(res.InvoiceID)
	s.Require().True(ok)
	s.Equal(res.CreditNote.ID, cn.ID)

	refs, err := s.store.ListFileReferences(s.ctx, models.OwnerCreditNote, cn.ID)
	s.Require().NoError(err)
	s.Len(refs, 2)

	s.Len(s.drive.Folders("Semana 12-2026"), 1, "credit note reuses the parent's folders")
}

func (s *SubmitSuite) TestFeeIsRecomputedFromTotal() {
	sub := invoicetest.AcceleratedSubmission()
	sub.Financial.TotalAmount = decimal.RequireFromString("1234.57")
	sub.PaymentProgram.FeeRate = decimal.RequireFromString("0.035")
	sub.PaymentProgram.FeeAmount = decimal.NewNullDecimal(decimal.NewFromInt(1))
	sub.PaymentProgram.NetAmount = decimal.NewNullDecimal(decimal.NewFromInt(1))

	res, err := s.svc.Submit(s.ctx, sub)
	s.Require().NoError(err)
	s.Equal("43.21", res.Program.FeeAmount.StringFixed(2))
	s.Equal("1191.36", res.Program.NetAmount.StringFixed(2))
}

func (s *SubmitSuite) TestDuplicateReturnsOriginalWithoutWrites() {
	first, err := s.svc.Submit(s.ctx, invoicetest.Submission())
	s.Require().NoError(err)
	puts := s.blobs.Puts()
	events := len(s.outbox.All())

	second, err := s.svc.Submit(s.ctx, invoicetest.Submission())
	s.Require().NoError(err)

	s.Equal(models.OutcomeDuplicate, second.Outcome)
	s.Equal(first.InvoiceID, second.InvoiceID)
	s.Equal(1, s.store.CountInvoices())
	s.Equal(puts, s.blobs.Puts())
	s.Len(s.outbox.All(), events)
}

func (s *SubmitSuite) TestDuplicateMatchesIdentifierCaseInsensitively() {
	first, err := s.svc.Submit(s.ctx, invoicetest.Submission())
	s.Require().NoError(err)

	sub := invoicetest.Submission()
	sub.Invoice.UUID = "aaaaaaaa-1111-2222-3333-444444444444"
	second, err := s.svc.Submit(s.ctx, sub)
	s.Require().NoError(err)
	s.Equal(models.OutcomeDuplicate, second.Outcome)
	s.Equal(first.InvoiceID, second.InvoiceID)
}

func (s *SubmitSuite) TestValidationFailureWritesNothing() {
	sub := invoicetest.Submission()
	sub.Receiver.RFC = "XAXX010101000"
	sub.Files.XML = nil

	res, err := s.svc.Submit(s.ctx, sub)
	s.Nil(res)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	de, ok := dErrors.As(err)
	s.Require().True(ok)
	s.Contains(de.Details, "receiver.rfc must be EKU9003173C9")
	s.Contains(de.Details, "files.xml is required")

	s.Zero(s.store.CountInvoices())
	_, err = s.store.FindIssuerByRFC(s.ctx, invoicetest.IssuerRFC)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.Zero(s.blobs.Len())
	s.Zero(s.drive.Calls())
	s.Empty(s.outbox.All())
}

func (s *SubmitSuite) TestSecondaryOutageKeepsPrimaryOnly() {
	s.drive.Err = errors.New("document store unreachable")

	res, err := s.svc.Submit(s.ctx, invoicetest.Submission())
	s.Require().NoError(err)
	s.Equal(models.OutcomeCreated, res.Outcome)

	xml, ok := res.Files[models.KindXML]
	s.Require().True(ok)
	s.NotEmpty(xml.URL)
	s.Empty(xml.BackupURL)

	refs, err := s.store.ListFileReferences(s.ctx, models.OwnerInvoice, res.InvoiceID)
	s.Require().NoError(err)
	s.Len(refs, 2)
	for _, ref := range refs {
		s.False(ref.HasSecondary())
		s.NotEmpty(ref.PrimaryURL)
	}
}

func (s *SubmitSuite) TestSecondaryPanicIsContained() {
	docs := panickingDocs{}
	svc := New(s.store, s.store, validation.New(invoicetest.ReceiverRFC), s.blobs, WithDocumentStore(docs, nil))

	res, err := svc.Submit(s.ctx, invoicetest.Submission())
	s.Require().NoError(err)
	s.Equal(models.OutcomeCreated, res.Outcome)
	s.Len(res.Files, 2)
}

func (s *SubmitSuite) TestSecondaryPanicIsRecordedByBreaker() {
	breaker := circuit.New("secondary", circuit.WithFailureThreshold(1), circuit.WithCooldown(time.Hour))
	svc := New(s.store, s.store, validation.New(invoicetest.ReceiverRFC), s.blobs, WithDocumentStore(panickingDocs{}, breaker))

	_, err := svc.Submit(s.ctx, invoicetest.Submission())
	s.Require().NoError(err)
	s.True(breaker.IsOpen(), "a panicking save counts as a failure")
}

func (s *SubmitSuite) TestOpenBreakerSkipsSecondary() {
	s.breaker = circuit.New("secondary", circuit.WithFailureThreshold(1), circuit.WithCooldown(time.Hour))
	s.svc = s.newService(s.store, s.store)
	s.drive.Err = errors.New("document store unreachable")

	_, err := s.svc.Submit(s.ctx, invoicetest.Submission())
	s.Require().NoError(err)
	s.True(s.breaker.IsOpen())
	calls := s.drive.Calls()

	sub := invoicetest.Submission()
	sub.Invoice.UUID = "CCCCCCCC-1111-2222-3333-444444444444"
	res, err := s.svc.Submit(s.ctx, sub)
	s.Require().NoError(err)
	s.Equal(calls, s.drive.Calls(), "open circuit skips the document store")
	s.Len(res.Files, 2)
}

func (s *SubmitSuite) TestPrimaryOutageDegradesFilesSection() {
	s.blobs.Err = errors.New("object store down")

	res, err := s.svc.Submit(s.ctx, invoicetest.Submission())
	s.Require().NoError(err)
	s.Equal(models.OutcomeCreated, res.Outcome)
	s.Empty(res.Files)
	s.Equal(1, s.store.CountInvoices())

	refs, err := s.store.ListFileReferences(s.ctx, models.OwnerInvoice, res.InvoiceID)
	s.Require().NoError(err)
	s.Empty(refs, "secondary never inserts references")
}

func (s *SubmitSuite) TestCreditNoteFailureIsIsolated() {
	sub := invoicetest.AcceleratedSubmission()
	sub.CreditNote.UUID = "not-an-identifier"

	res, err := s.svc.Submit(s.ctx, sub)
	s.Require().NoError(err)
	s.Equal(models.OutcomeCreated, res.Outcome)
	s.Nil(res.CreditNote)
	s.Contains(res.Warnings, warnCreditNote)
	s.Len(res.Files, 2)
	_, ok := s.store.CreditNoteForInvoice(res.InvoiceID)
	s.False(ok)
}

func (s *SubmitSuite) TestCreditNoteIgnoredOnStandardProgram() {
	sub := invoicetest.AcceleratedSubmission()
	sub.PaymentProgram = nil

	res, err := s.svc.Submit(s.ctx, sub)
	s.Require().NoError(err)
	s.Nil(res.CreditNote)
	s.Contains(res.Warnings, "creditNote ignored: only accelerated-payment invoices carry a credit note")
	_, ok := s.store.CreditNoteForInvoice(res.InvoiceID)
	s.False(ok)
}

func (s *SubmitSuite) TestUnmatchedProjectIsNotAnError() {
	sub := invoicetest.Submission()
	sub.Project = "bodega sur"

	res, err := s.svc.Submit(s.ctx, sub)
	s.Require().NoError(err)
	s.Nil(res.ProjectID)
	s.Contains(res.Warnings, warnNoProject)

	msgs := s.outbox.All()
	s.Require().Len(msgs, 1)
	var event InvoiceRegistered
	s.Require().NoError(json.Unmarshal(msgs[0].Payload, &event))
	s.True(event.NeedsReview)
	s.Nil(event.ProjectID)
	s.Contains(res.Files[models.KindXML].Path, "/bodega_sur/")
}

func (s *SubmitSuite) TestMissingPDFIsAWarning() {
	sub := invoicetest.Submission()
	sub.Files.PDF = nil

	res, err := s.svc.Submit(s.ctx, sub)
	s.Require().NoError(err)
	s.Len(res.Files, 1)
	s.Contains(res.Warnings, "files.pdf is missing; only the XML will be stored")
}

func (s *SubmitSuite) TestEmptyItemListIsValid() {
	sub := invoicetest.Submission()
	sub.Items = nil

	res, err := s.svc.Submit(s.ctx, sub)
	s.Require().NoError(err)
	items, err := s.store.ListLineItems(s.ctx, res.InvoiceID)
	s.Require().NoError(err)
	s.Empty(items)
}

func (s *SubmitSuite) TestRegisteredEventIsRecorded() {
	res, err := s.svc.Submit(s.ctx, invoicetest.AcceleratedSubmission())
	s.Require().NoError(err)

	msgs := s.outbox.All()
	s.Require().Len(msgs, 1)
	s.Equal(DefaultTopic, msgs[0].Topic)
	s.Equal(invoicetest.DocumentID, msgs[0].Key)

	var event InvoiceRegistered
	s.Require().NoError(json.Unmarshal(msgs[0].Payload, &event))
	s.Equal("invoice.registered", event.Event)
	s.Equal(res.InvoiceID, event.InvoiceID)
	s.Equal("accelerated", event.Program)
	s.True(event.NetAmount.Equal(decimal.NewFromInt(920)))
	s.Equal("req-1", event.RequestID)
	s.Empty(event.SubmittedBy)
	s.True(event.OccurredAt.Equal(fixedNow))
}

func (s *SubmitSuite) TestRegisteredEventCarriesSubmitter() {
	ctx := requestcontext.WithSubject(s.ctx, "erp-sync")
	_, err := s.svc.Submit(ctx, invoicetest.Submission())
	s.Require().NoError(err)

	msgs := s.outbox.All()
	s.Require().Len(msgs, 1)
	var event InvoiceRegistered
	s.Require().NoError(json.Unmarshal(msgs[0].Payload, &event))
	s.Equal("erp-sync", event.SubmittedBy)
}

func (s *SubmitSuite) TestConcurrentSubmissionIsRejected() {
	release, err := s.locker.Acquire(s.ctx, invoicetest.DocumentID)
	s.Require().NoError(err)
	defer func() { _ = release(s.ctx) }()

	_, err = s.svc.Submit(s.ctx, invoicetest.Submission())
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Zero(s.store.CountInvoices())
}

func (s *SubmitSuite) TestStructuredWriteFailureRollsBackAndSkipsFiles() {
	failing := &failingInvoiceStore{InMemoryStore: s.store, err: errors.New("connection lost")}
	svc := s.newService(failing, s.store)

	res, err := svc.Submit(s.ctx, invoicetest.Submission())
	s.Nil(res)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	_, err = s.store.FindIssuerByRFC(s.ctx, invoicetest.IssuerRFC)
	s.ErrorIs(err, sentinel.ErrNotFound, "issuer upsert rolled back")
	s.Zero(s.blobs.Len())
	s.Zero(s.drive.Calls())
	s.Empty(s.outbox.All())
}

func (s *SubmitSuite) TestCallerCancellationAfterCommitStillStoresFiles() {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	blobs := &ctxBlobs{inner: s.blobs}
	docs := drive.NewStore(s.drive, drive.NewFolderResolver(s.drive, "root", nil, nil))
	svc := New(s.store, &cancelAfterCommitTx{inner: s.store, cancel: cancel},
		validation.New(invoicetest.ReceiverRFC), blobs,
		WithDocumentStore(docs, s.breaker),
		WithLocker(s.locker),
	)

	res, err := svc.Submit(ctx, invoicetest.AcceleratedSubmission())
	s.Require().NoError(err)
	s.Require().Error(ctx.Err(), "caller context is cancelled once the invoice commits")

	s.Equal(models.OutcomeCreated, res.Outcome)
	s.Len(res.Files, 2)
	s.Equal(4, blobs.puts, "invoice and credit note files reach the primary tier")
	s.Require().NotNil(res.CreditNote)

	refs, err := s.store.ListFileReferences(s.ctx, models.OwnerInvoice, res.InvoiceID)
	s.Require().NoError(err)
	s.Len(refs, 2)
	for _, ref := range refs {
		s.True(ref.HasSecondary(), "kind %s reconciled with backup location", ref.Kind)
	}
}

func (s *SubmitSuite) TestInsertRaceIsReportedAsDuplicate() {
	racing := &racingStore{InMemoryStore: s.store, winner: uuid.New()}
	svc := s.newService(racing, passthroughTx{})

	res, err := svc.Submit(s.ctx, invoicetest.Submission())
	s.Require().NoError(err)
	s.Equal(models.OutcomeDuplicate, res.Outcome)
	s.Equal(racing.winner, res.InvoiceID)
	s.Zero(s.blobs.Len())
}

func (s *SubmitSuite) TestFolderHierarchyIsReused() {
	_, err := s.svc.Submit(s.ctx, invoicetest.Submission())
	s.Require().NoError(err)

	sub := invoicetest.Submission()
	sub.Invoice.UUID = "CCCCCCCC-1111-2222-3333-444444444444"
	_, err = s.svc.Submit(s.ctx, sub)
	s.Require().NoError(err)

	s.Len(s.drive.Folders("Semana 12-2026"), 1)
	s.Len(s.drive.Folders("torre norte"), 1)
	s.Len(s.drive.Folders("GODE561231GR8 - Dominga Gómez Estrada"), 1)
}

func (s *SubmitSuite) TestGet() {
	_, err := s.svc.Submit(s.ctx, invoicetest.Submission())
	s.Require().NoError(err)

	s.Run("found", func() {
		details, err := s.svc.Get(s.ctx, "aaaaaaaa-1111-2222-3333-444444444444")
		s.Require().NoError(err)
		s.Equal(invoicetest.IssuerRFC, details.IssuerRFC)
		s.Equal("TN-01", details.ProjectCode)
		s.Len(details.Files, 2)
	})
	s.Run("unknown identifier", func() {
		_, err := s.svc.Get(s.ctx, "CCCCCCCC-1111-2222-3333-444444444444")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
	s.Run("malformed identifier", func() {
		_, err := s.svc.Get(s.ctx, "abc")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

type failingInvoiceStore struct {
	*store.InMemoryStore
	err error
}

func (f *failingInvoiceStore) CreateInvoice(context.Context, *models.Invoice) error {
	return f.err
}

// racingStore simulates another request inserting the same identifier between
// the duplicate guard and this request's insert.
type racingStore struct {
	*store.InMemoryStore
	winner uuid.UUID
	raced  bool
}

func (r *racingStore) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	if !r.raced {
		r.raced = true
		winner := *inv
		winner.ID = r.winner
		if err := r.InMemoryStore.CreateInvoice(ctx, &winner); err != nil {
			return err
		}
	}
	return r.InMemoryStore.CreateInvoice(ctx, inv)
}

type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// ctxBlobs refuses puts on a done context, as a network client would.
type ctxBlobs struct {
	inner BlobStore
	puts  int
}

func (b *ctxBlobs) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b.puts++
	return b.inner.Put(ctx, key, data, contentType)
}

// cancelAfterCommitTx cancels the caller's context as soon as a transaction
// commits, like a client hanging up mid-request.
type cancelAfterCommitTx struct {
	inner  TxRunner
	cancel context.CancelFunc
}

func (t *cancelAfterCommitTx) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	err := t.inner.RunInTx(ctx, fn)
	if err == nil {
		t.cancel()
	}
	return err
}

type panickingDocs struct{}

func (panickingDocs) Save(context.Context, []string, string, string, []byte) (drive.File, error) {
	panic("nil client")
}
