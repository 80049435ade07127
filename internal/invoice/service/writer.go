package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"invoicevault/internal/invoice/models"
	"invoicevault/internal/invoice/storage"
	"invoicevault/internal/invoice/validation"
	"invoicevault/pkg/requestcontext"
)

// written is what the structured-write stage produced.
type written struct {
	issuer   *models.Issuer
	invoice  *models.Invoice
	location storage.Location
}

// writeStructured upserts the issuer and inserts the invoice, its line items
// and the registration event in one transaction.
func (s *Service) writeStructured(ctx context.Context, sub *models.Submission, documentID string, proj *models.Project) (*written, error) {
	ctx, end := s.stage(ctx, "structured_write")

	issuer := buildIssuer(sub)
	inv, err := buildInvoice(ctx, sub, documentID, proj)
	if err != nil {
		end(err)
		return nil, err
	}
	items := buildLineItems(sub.Items)

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.UpsertIssuer(ctx, issuer); err != nil {
			return fmt.Errorf("upsert issuer: %w", err)
		}
		inv.IssuerID = issuer.ID
		if err := s.store.CreateInvoice(ctx, inv); err != nil {
			return err
		}
		if err := s.store.CreateLineItems(ctx, inv.ID, items); err != nil {
			return err
		}
		return s.appendRegistered(ctx, issuer, inv)
	})
	end(err)
	if err != nil {
		return nil, err
	}

	return &written{
		issuer:  issuer,
		invoice: inv,
		location: storage.Location{
			Week:         inv.Week,
			Year:         inv.IssuedOn.Year(),
			ProjectLabel: inv.ProjectLabel,
			IssuerRFC:    issuer.RFC,
			IssuerName:   issuer.Name,
		},
	}, nil
}

func buildIssuer(sub *models.Submission) *models.Issuer {
	return &models.Issuer{
		RFC:       validation.NormalizeRFC(sub.Issuer.RFC),
		Name:      strings.TrimSpace(sub.Issuer.Name),
		TaxRegime: strings.TrimSpace(sub.Issuer.Regime),
		ZipCode:   strings.TrimSpace(sub.Issuer.ZipCode),
		Email:     strings.TrimSpace(sub.Contact.Email),
		Phone:     strings.TrimSpace(sub.Contact.Phone),
	}
}

func buildInvoice(ctx context.Context, sub *models.Submission, documentID string, proj *models.Project) (*models.Invoice, error) {
	issuedOn, err := validation.ParseDate(sub.Invoice.Date)
	if err != nil {
		return nil, err
	}
	inv := &models.Invoice{
		ID:            uuid.New(),
		UUID:          documentID,
		Folio:         strings.TrimSpace(sub.Invoice.Folio),
		Series:        strings.TrimSpace(sub.Invoice.Series),
		IssuedOn:      issuedOn,
		SATCertNumber: strings.TrimSpace(sub.Invoice.SATCertNumber),
		Week:          sub.Week,
		ProjectLabel:  strings.TrimSpace(sub.Project),
		Receiver: models.Receiver{
			RFC:       validation.NormalizeRFC(sub.Receiver.RFC),
			Name:      strings.TrimSpace(sub.Receiver.Name),
			TaxRegime: strings.TrimSpace(sub.Receiver.Regime),
			ZipCode:   strings.TrimSpace(sub.Receiver.ZipCode),
			CFDIUse:   strings.TrimSpace(sub.Receiver.CFDIUse),
		},
		Payment: models.PaymentTerms{
			Method:     strings.ToUpper(strings.TrimSpace(sub.Payment.Method)),
			Form:       strings.TrimSpace(sub.Payment.Form),
			Conditions: strings.TrimSpace(sub.Payment.Conditions),
		},
		Totals: models.Totals{
			Subtotal:          sub.Financial.Subtotal,
			Discount:          sub.Financial.Discount,
			TotalTax:          sub.Financial.TotalTax,
			RetainedVAT:       sub.Financial.RetainedVAT,
			RetainedIncomeTax: sub.Financial.RetainedIncomeTax,
			Total:             sub.Financial.TotalAmount,
			Currency:          strings.ToUpper(strings.TrimSpace(sub.Financial.Currency)),
			ExchangeRate:      sub.Financial.ExchangeRate,
		},
		Program:   models.NewProgramTerms(sub.Program(), sub.Financial.TotalAmount, feeRate(sub)),
		Status:    models.StatusPendingReview,
		CreatedAt: requestcontext.Now(ctx),
	}
	if inv.Totals.Currency == "" {
		inv.Totals.Currency = "MXN"
	}
	if raw := strings.TrimSpace(sub.Invoice.CertificationDate); raw != "" {
		t, err := validation.ParseTimestamp(raw)
		if err != nil {
			return nil, err
		}
		inv.CertifiedAt = &t
	}
	if proj != nil {
		id := proj.ID
		inv.ProjectID = &id
	}
	return inv, nil
}

func feeRate(sub *models.Submission) decimal.Decimal {
	if sub.PaymentProgram == nil {
		return decimal.Zero
	}
	return sub.PaymentProgram.FeeRate
}

// buildLineItems numbers items 1..N in submission order.
func buildLineItems(payload []models.ItemPayload) []models.LineItem {
	items := make([]models.LineItem, len(payload))
	for i, p := range payload {
		items[i] = models.LineItem{
			ID:          uuid.New(),
			LineNumber:  i + 1,
			ProductCode: strings.TrimSpace(p.ProductCode),
			Description: strings.TrimSpace(p.Description),
			Quantity:    p.Quantity,
			UnitCode:    strings.TrimSpace(p.UnitCode),
			Unit:        strings.TrimSpace(p.Unit),
			UnitPrice:   p.UnitPrice,
			Amount:      p.Amount,
			Discount:    p.Discount,
			TaxAmount:   p.TaxAmount,
		}
	}
	return items
}
