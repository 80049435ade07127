package models

import (
	"time"

	"github.com/google/uuid"
)

// FileKind labels a binary artifact.
type FileKind string

const (
	KindXML           FileKind = "xml"
	KindPDF           FileKind = "pdf"
	KindCreditNoteXML FileKind = "credit_note_xml"
	KindCreditNotePDF FileKind = "credit_note_pdf"
)

// Extension returns the file extension without the dot.
func (k FileKind) Extension() string {
	switch k {
	case KindPDF, KindCreditNotePDF:
		return "pdf"
	default:
		return "xml"
	}
}

func (k FileKind) ContentType() string {
	if k.Extension() == "pdf" {
		return "application/pdf"
	}
	return "application/xml"
}

// FileOwner tells which entity a file reference belongs to.
type FileOwner string

const (
	OwnerInvoice    FileOwner = "invoice"
	OwnerCreditNote FileOwner = "credit_note"
)

// Artifact is a binary document awaiting persistence.
type Artifact struct {
	Kind FileKind
	Data []byte
}

// FileReference is the only place storage locations are recorded. There is at
// most one reference per (owner, kind).
type FileReference struct {
	ID           uuid.UUID
	Owner        FileOwner
	OwnerID      uuid.UUID
	Kind         FileKind
	PrimaryPath  string
	PrimaryURL   string
	SecondaryID  string
	SecondaryURL string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasSecondary reports whether the backup tier has been reconciled.
func (r FileReference) HasSecondary() bool {
	return r.SecondaryID != ""
}
