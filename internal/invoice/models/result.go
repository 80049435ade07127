package models

import "github.com/google/uuid"

// Outcome of a submission that passed validation.
type Outcome string

const (
	OutcomeCreated   Outcome = "CREATED"
	OutcomeDuplicate Outcome = "DUPLICATE"
)

// StoredFile describes where an artifact ended up. BackupURL is empty unless
// the secondary tier succeeded and its reference was reconciled.
type StoredFile struct {
	Path      string
	URL       string
	BackupID  string
	BackupURL string
}

type CreditNoteResult struct {
	ID    uuid.UUID
	UUID  string
	Files map[FileKind]StoredFile
}

// Result is what the pipeline reports back. Files only lists artifacts that
// were persisted in the primary tier and referenced.
type Result struct {
	Outcome    Outcome
	InvoiceID  uuid.UUID
	UUID       string
	ProjectID  *uuid.UUID
	Program    ProgramTerms
	Files      map[FileKind]StoredFile
	CreditNote *CreditNoteResult
	Warnings   []string
}
