package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditNote is the optional credit document linked to an accelerated-payment
// invoice. At most one exists per invoice.
type CreditNote struct {
	ID        uuid.UUID
	InvoiceID uuid.UUID
	UUID      string
	Folio     string
	Series    string
	IssuedOn  *time.Time
	Amount    decimal.Decimal
	CreatedAt time.Time
}
