package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"invoicevault/internal/invoice/models"
	"invoicevault/internal/outbox"
	"invoicevault/pkg/requestcontext"
)

const eventInvoiceRegistered = "invoice.registered"

// InvoiceRegistered is published once per created invoice so the review
// workflow can pick it up.
type InvoiceRegistered struct {
	Event       string          `json:"event"`
	InvoiceID   uuid.UUID       `json:"invoiceId"`
	UUID        string          `json:"uuid"`
	IssuerRFC   string          `json:"issuerRfc"`
	Week        int             `json:"week"`
	Total       decimal.Decimal `json:"totalAmount"`
	Currency    string          `json:"currency"`
	Program     string          `json:"program"`
	FeeAmount   decimal.Decimal `json:"feeAmount"`
	NetAmount   decimal.Decimal `json:"netAmount"`
	ProjectID   *uuid.UUID      `json:"projectId"`
	NeedsReview bool            `json:"needsProjectReview"`
	Status      string          `json:"status"`
	SubmittedBy string          `json:"submittedBy,omitempty"`
	RequestID   string          `json:"requestId,omitempty"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

func (s *Service) appendRegistered(ctx context.Context, issuer *models.Issuer, inv *models.Invoice) error {
	if s.outbox == nil {
		return nil
	}
	now := requestcontext.Now(ctx)
	msg, err := outbox.NewMessage(s.topic, inv.UUID, InvoiceRegistered{
		Event:       eventInvoiceRegistered,
		InvoiceID:   inv.ID,
		UUID:        inv.UUID,
		IssuerRFC:   issuer.RFC,
		Week:        inv.Week,
		Total:       inv.Totals.Total,
		Currency:    inv.Totals.Currency,
		Program:     string(inv.Program.Program),
		FeeAmount:   inv.Program.FeeAmount,
		NetAmount:   inv.Program.NetAmount,
		ProjectID:   inv.ProjectID,
		NeedsReview: inv.NeedsProjectReview(),
		Status:      string(inv.Status),
		SubmittedBy: requestcontext.Subject(ctx),
		RequestID:   requestcontext.RequestID(ctx),
		OccurredAt:  now,
	}, now)
	if err != nil {
		return err
	}
	return s.outbox.Append(ctx, msg)
}
