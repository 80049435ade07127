package service

import (
	"context"
	"errors"
	"strings"

	"invoicevault/internal/invoice/models"
	"invoicevault/internal/invoice/validation"
	dErrors "invoicevault/pkg/domain-errors"
	"invoicevault/pkg/platform/sentinel"
)

// Get returns a stored invoice and its file references.
func (s *Service) Get(ctx context.Context, documentID string) (*models.InvoiceDetails, error) {
	if !validation.IsUUID(documentID) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invoice uuid must be a 36-character identifier (8-4-4-4-12)")
	}
	ctx, span := s.tracer.Start(ctx, "invoice.get")
	defer span.End()

	details, err := s.store.FindInvoiceByUUID(ctx, strings.ToUpper(strings.TrimSpace(documentID)))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "invoice not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load invoice")
	}
	return details, nil
}
