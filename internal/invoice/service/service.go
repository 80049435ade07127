// Package service runs the invoice ingestion pipeline: validation, duplicate
// guard, entity resolution, structured writes, primary and secondary artifact
// persistence and the credit-note sub-pipeline.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"invoicevault/internal/invoice/lock"
	"invoicevault/internal/invoice/metrics"
	"invoicevault/internal/invoice/models"
	"invoicevault/internal/invoice/project"
	"invoicevault/internal/invoice/validation"
	dErrors "invoicevault/pkg/domain-errors"
	"invoicevault/pkg/platform/circuit"
	"invoicevault/pkg/platform/sentinel"
	"invoicevault/pkg/requestcontext"
)

const (
	tracerName = "invoicevault/internal/invoice/service"

	// DefaultTopic receives invoice.registered events.
	DefaultTopic = "invoices.registered"

	// postCommitTimeout bounds the file and credit-note stages, which run
	// detached from the caller once the invoice is committed.
	postCommitTimeout = 2 * time.Minute

	warnNoProject  = "no active project matched the submitted project label; the invoice needs manual classification"
	warnCreditNote = "credit note could not be registered; the invoice was registered without it"
)

// Service orchestrates invoice ingestion.
type Service struct {
	store     Store
	tx        TxRunner
	validator *validation.Validator
	matcher   project.Matcher
	blobs     BlobStore
	docs      DocumentStore
	breaker   *circuit.Breaker
	locker    Locker
	outbox    OutboxAppender
	topic     string
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func WithMatcher(m project.Matcher) Option {
	return func(s *Service) {
		s.matcher = m
	}
}

// WithDocumentStore enables the secondary tier. A nil breaker means the tier
// is always attempted.
func WithDocumentStore(docs DocumentStore, breaker *circuit.Breaker) Option {
	return func(s *Service) {
		s.docs = docs
		s.breaker = breaker
	}
}

func WithLocker(l Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

// WithOutbox records an invoice.registered event per created invoice.
func WithOutbox(appender OutboxAppender, topic string) Option {
	return func(s *Service) {
		s.outbox = appender
		if topic != "" {
			s.topic = topic
		}
	}
}

// New constructs a Service. The relational store, transaction runner,
// validator and primary tier are required.
func New(store Store, tx TxRunner, validator *validation.Validator, blobs BlobStore, opts ...Option) *Service {
	s := &Service{
		store:     store,
		tx:        tx,
		validator: validator,
		blobs:     blobs,
		matcher:   project.SubstringMatcher{},
		topic:     DefaultTopic,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return s
}

// Submit registers one invoice submission. Validation failures, a concurrent
// submission of the same identifier and structured-write failures are
// returned as domain errors. A duplicate identifier is not an error: the
// result carries OutcomeDuplicate and the existing invoice id. Failures after
// the structured write only degrade the result.
func (s *Service) Submit(ctx context.Context, sub *models.Submission) (*models.Result, error) {
	ctx, span := s.tracer.Start(ctx, "invoice.submit")
	defer span.End()

	res := s.validate(ctx, sub)
	if !res.Valid {
		s.metrics.IncrementSubmission("invalid")
		span.SetStatus(codes.Error, "validation failed")
		return nil, dErrors.New(dErrors.CodeValidation, "invoice submission is invalid").WithDetails(res.Errors...)
	}

	documentID := strings.ToUpper(strings.TrimSpace(sub.Invoice.UUID))
	span.SetAttributes(attribute.String("invoice.uuid", documentID))
	logger := s.logger.With("request_id", requestcontext.RequestID(ctx), "uuid", documentID)

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, documentID)
		switch {
		case errors.Is(err, lock.ErrHeld):
			s.metrics.IncrementSubmission("in_progress")
			return nil, dErrors.New(dErrors.CodeConflict, "submission in progress for this invoice")
		case err != nil:
			// The unique constraint on invoices.uuid still rejects a racing insert.
			logger.WarnContext(ctx, "submission lock unavailable; continuing without it", "error", err)
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					logger.WarnContext(ctx, "failed to release submission lock", "error", err)
				}
			}()
		}
	}

	existingID, err := s.guard(ctx, documentID)
	if err != nil {
		s.metrics.IncrementSubmission("failed")
		logger.ErrorContext(ctx, "duplicate guard failed", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register invoice")
	}
	if existingID != nil {
		s.metrics.IncrementSubmission("duplicate")
		logger.InfoContext(ctx, "duplicate invoice submission", "invoice_id", *existingID)
		return &models.Result{Outcome: models.OutcomeDuplicate, InvoiceID: *existingID, UUID: documentID}, nil
	}

	proj := s.classify(ctx, logger, sub.Project)

	w, err := s.writeStructured(ctx, sub, documentID, proj)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost a race with a concurrent submission of the same identifier.
			if id, lookupErr := s.store.FindInvoiceIDByUUID(ctx, documentID); lookupErr == nil {
				s.metrics.IncrementSubmission("duplicate")
				logger.InfoContext(ctx, "duplicate invoice detected at insert", "invoice_id", id)
				return &models.Result{Outcome: models.OutcomeDuplicate, InvoiceID: id, UUID: documentID}, nil
			}
		}
		s.metrics.IncrementSubmission("failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "structured write failed")
		logger.ErrorContext(ctx, "structured write failed", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register invoice")
	}
	logger = logger.With("invoice_id", w.invoice.ID)

	result := &models.Result{
		Outcome:   models.OutcomeCreated,
		InvoiceID: w.invoice.ID,
		UUID:      documentID,
		ProjectID: w.invoice.ProjectID,
		Program:   w.invoice.Program,
		Warnings:  res.Warnings,
	}
	if proj == nil {
		result.Warnings = append(result.Warnings, warnNoProject)
	}

	target := fileTarget{
		owner:      models.OwnerInvoice,
		ownerID:    w.invoice.ID,
		documentID: documentID,
		location:   w.location,
	}
	// The invoice is committed; a client disconnect must not strand it
	// without its files or credit note.
	postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), postCommitTimeout)
	defer cancel()

	artifacts := sub.Artifacts()
	result.Files = s.persistPrimary(postCtx, logger, target, artifacts)
	s.persistSecondary(postCtx, logger, target, artifacts, result.Files)

	if sub.Program() == models.ProgramAccelerated && sub.CreditNote != nil {
		cn, err := s.registerCreditNote(postCtx, logger, w, sub.CreditNote)
		if err != nil {
			s.metrics.IncrementCreditNoteFailure()
			logger.ErrorContext(postCtx, "credit note sub-pipeline failed", "stage", "credit_note", "error", err)
			result.Warnings = append(result.Warnings, warnCreditNote)
		} else {
			result.CreditNote = cn
		}
	}

	s.metrics.IncrementSubmission("created")
	logger.InfoContext(postCtx, "invoice registered",
		"files", len(result.Files),
		"program", string(w.invoice.Program.Program),
		"project_matched", proj != nil)
	return result, nil
}

func (s *Service) validate(ctx context.Context, sub *models.Submission) validation.Result {
	_, end := s.stage(ctx, "validate")
	res := s.validator.Validate(sub)
	end(nil)
	return res
}

// guard returns the id of an invoice already stored under documentID.
func (s *Service) guard(ctx context.Context, documentID string) (*uuid.UUID, error) {
	ctx, end := s.stage(ctx, "guard")
	id, err := s.store.FindInvoiceIDByUUID(ctx, documentID)
	if errors.Is(err, sentinel.ErrNotFound) {
		end(nil)
		return nil, nil
	}
	end(err)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// classify matches the submitted label against active projects. Any failure
// leaves the invoice unclassified.
func (s *Service) classify(ctx context.Context, logger *slog.Logger, label string) *models.Project {
	ctx, end := s.stage(ctx, "classify")
	projects, err := s.store.ListActiveProjects(ctx)
	end(err)
	if err != nil {
		logger.WarnContext(ctx, "project lookup failed; invoice left unclassified", "error", err)
		return nil
	}
	return s.matcher.Match(label, projects)
}

// stage opens a span for one pipeline stage; the returned func ends it and
// records its duration.
func (s *Service) stage(ctx context.Context, name string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "invoice."+name)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.metrics.ObserveStage(name, time.Since(start))
	}
}
