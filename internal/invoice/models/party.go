package models

import (
	"time"

	"github.com/google/uuid"
)

// Issuer is the invoicing party, keyed by RFC. Fiscal fields are
// last-write-wins across submissions.
type Issuer struct {
	ID        uuid.UUID
	RFC       string
	Name      string
	TaxRegime string
	ZipCode   string
	Email     string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Project is a classification target for invoices.
type Project struct {
	ID     uuid.UUID
	Code   string
	Name   string
	Active bool
}
