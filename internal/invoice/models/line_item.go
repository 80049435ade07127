package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItem is one concept of an invoice. LineNumber is 1-based and equals the
// item's position in the submission.
type LineItem struct {
	ID          uuid.UUID
	InvoiceID   uuid.UUID
	LineNumber  int
	ProductCode string
	Description string
	Quantity    decimal.Decimal
	UnitCode    string
	Unit        string
	UnitPrice   decimal.Decimal
	Amount      decimal.Decimal
	Discount    decimal.Decimal
	TaxAmount   decimal.Decimal
}
