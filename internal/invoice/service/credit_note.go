package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"invoicevault/internal/invoice/models"
	"invoicevault/internal/invoice/validation"
	"invoicevault/pkg/requestcontext"
)

// registerCreditNote records the credit note linked to an accelerated-payment
// invoice and persists its artifacts in both tiers, reusing the parent's
// folder hierarchy. The parent invoice is already committed; any failure or
// panic here is returned as an error for the caller to log.
func (s *Service) registerCreditNote(ctx context.Context, logger *slog.Logger, parent *written, payload *models.CreditNotePayload) (result *models.CreditNoteResult, err error) {
	ctx, end := s.stage(ctx, "credit_note")
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("credit note panic: %v", r)
		}
		end(err)
	}()

	cn, err := buildCreditNote(ctx, parent.invoice.ID, payload)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateCreditNote(ctx, cn); err != nil {
		return nil, fmt.Errorf("create credit note: %w", err)
	}

	logger = logger.With("credit_note_id", cn.ID, "credit_note_uuid", cn.UUID)
	target := fileTarget{
		owner:      models.OwnerCreditNote,
		ownerID:    cn.ID,
		documentID: cn.UUID,
		location:   parent.location,
	}
	artifacts := payload.Artifacts()
	files := s.persistPrimary(ctx, logger, target, artifacts)
	s.persistSecondary(ctx, logger, target, artifacts, files)

	return &models.CreditNoteResult{ID: cn.ID, UUID: cn.UUID, Files: files}, nil
}

func buildCreditNote(ctx context.Context, invoiceID uuid.UUID, payload *models.CreditNotePayload) (*models.CreditNote, error) {
	if !validation.IsUUID(payload.UUID) {
		return nil, errors.New("creditNote.uuid must be a 36-character identifier (8-4-4-4-12)")
	}
	cn := &models.CreditNote{
		ID:        uuid.New(),
		InvoiceID: invoiceID,
		UUID:      strings.ToUpper(strings.TrimSpace(payload.UUID)),
		Folio:     strings.TrimSpace(payload.Folio),
		Series:    strings.TrimSpace(payload.Series),
		Amount:    payload.Amount,
		CreatedAt: requestcontext.Now(ctx),
	}
	if raw := strings.TrimSpace(payload.Date); raw != "" {
		issuedOn, err := validation.ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("creditNote.date: %w", err)
		}
		cn.IssuedOn = &issuedOn
	}
	return cn, nil
}
