package service

import (
	"context"

	"github.com/google/uuid"

	"invoicevault/internal/invoice/lock"
	"invoicevault/internal/invoice/models"
	"invoicevault/internal/invoice/storage/drive"
	"invoicevault/internal/outbox"
)

// Store is the relational store the pipeline writes through.
type Store interface {
	FindInvoiceIDByUUID(ctx context.Context, documentID string) (uuid.UUID, error)
	UpsertIssuer(ctx context.Context, issuer *models.Issuer) error
	ListActiveProjects(ctx context.Context) ([]models.Project, error)
	CreateInvoice(ctx context.Context, inv *models.Invoice) error
	CreateLineItems(ctx context.Context, invoiceID uuid.UUID, items []models.LineItem) error
	CreateCreditNote(ctx context.Context, cn *models.CreditNote) error
	UpsertFileReference(ctx context.Context, ref *models.FileReference) error
	AttachSecondary(ctx context.Context, owner models.FileOwner, ownerID uuid.UUID, kind models.FileKind, secondaryID, secondaryURL string) error
	FindInvoiceByUUID(ctx context.Context, documentID string) (*models.InvoiceDetails, error)
}

// TxRunner scopes the structured writes to one transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// BlobStore is the primary tier: path-addressed put returning a public URL.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// DocumentStore is the secondary tier: files a document under a folder path
// and returns a shareable link.
type DocumentStore interface {
	Save(ctx context.Context, folder []string, name, contentType string, data []byte) (drive.File, error)
}

// Locker serializes submissions of one document identifier.
type Locker interface {
	Acquire(ctx context.Context, documentID string) (lock.Release, error)
}

// OutboxAppender records events inside the structured-write transaction.
type OutboxAppender interface {
	Append(ctx context.Context, msg outbox.Message) error
}
