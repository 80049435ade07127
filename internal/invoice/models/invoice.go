package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status of an invoice in the review workflow. Ingestion only ever writes
// StatusPendingReview; the other values belong to the downstream workflow.
type Status string

const (
	StatusPendingReview Status = "pending_review"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
	StatusPaid          Status = "paid"
)

// PaymentProgram selects the disbursement track.
type PaymentProgram string

const (
	ProgramStandard    PaymentProgram = "standard"
	ProgramAccelerated PaymentProgram = "accelerated"
)

func (p PaymentProgram) IsValid() bool {
	return p == ProgramStandard || p == ProgramAccelerated
}

// Payment method codes accepted on submission.
const (
	PaymentMethodSingle      = "PUE" // paid in one installment
	PaymentMethodDeferred    = "PPD" // paid in installments or deferred
	moneyDecimalPlaces int32 = 2
)

type Receiver struct {
	RFC       string
	Name      string
	TaxRegime string
	ZipCode   string
	CFDIUse   string
}

type PaymentTerms struct {
	Method     string
	Form       string
	Conditions string
}

type Totals struct {
	Subtotal          decimal.Decimal
	Discount          decimal.Decimal
	TotalTax          decimal.Decimal
	RetainedVAT       decimal.Decimal
	RetainedIncomeTax decimal.Decimal
	Total             decimal.Decimal
	Currency          string
	ExchangeRate      decimal.NullDecimal
}

// ProgramTerms holds the derived payment-program amounts.
type ProgramTerms struct {
	Program   PaymentProgram
	FeeRate   decimal.Decimal
	FeeAmount decimal.Decimal
	NetAmount decimal.Decimal
}

// NewProgramTerms derives fee and net amounts from the face total. Under the
// accelerated program fee = total * rate (rounded to cents) and
// net = total - fee; otherwise net = total and no fee applies.
func NewProgramTerms(program PaymentProgram, total, feeRate decimal.Decimal) ProgramTerms {
	if program != ProgramAccelerated {
		return ProgramTerms{
			Program:   ProgramStandard,
			FeeRate:   decimal.Zero,
			FeeAmount: decimal.Zero,
			NetAmount: total,
		}
	}
	fee := total.Mul(feeRate).Round(moneyDecimalPlaces)
	return ProgramTerms{
		Program:   ProgramAccelerated,
		FeeRate:   feeRate,
		FeeAmount: fee,
		NetAmount: total.Sub(fee),
	}
}

type Invoice struct {
	ID            uuid.UUID
	UUID          string
	Folio         string
	Series        string
	IssuedOn      time.Time
	CertifiedAt   *time.Time
	SATCertNumber string
	Week          int
	ProjectLabel  string
	IssuerID      uuid.UUID
	ProjectID     *uuid.UUID
	Receiver      Receiver
	Payment       PaymentTerms
	Totals        Totals
	Program       ProgramTerms
	Status        Status
	CreatedAt     time.Time
}

// NeedsProjectReview is true when classification found no project.
func (i *Invoice) NeedsProjectReview() bool {
	return i.ProjectID == nil
}

// InvoiceDetails is the read model returned by lookups.
type InvoiceDetails struct {
	Invoice     Invoice
	IssuerRFC   string
	IssuerName  string
	ProjectCode string
	Files       []FileReference
}
