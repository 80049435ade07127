package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"invoicevault/internal/invoice/models"
	"invoicevault/pkg/platform/sentinel"
)

type fileKey struct {
	owner   models.FileOwner
	ownerID uuid.UUID
	kind    models.FileKind
}

// InMemoryStore mirrors PostgresStore for tests and local runs. RunInTx
// serializes transactions and restores a snapshot when the callback fails;
// writes made outside RunInTx while a transaction is open are not isolated.
type InMemoryStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	now  func() time.Time

	issuers             map[string]models.Issuer
	projects            map[uuid.UUID]models.Project
	invoices            map[uuid.UUID]models.Invoice
	invoiceByUUID       map[string]uuid.UUID
	lineItems           map[uuid.UUID][]models.LineItem
	creditNotes         map[uuid.UUID]models.CreditNote
	creditNoteByUUID    map[string]uuid.UUID
	creditNoteByInvoice map[uuid.UUID]uuid.UUID
	files               map[fileKey]models.FileReference
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		now:                 time.Now,
		issuers:             make(map[string]models.Issuer),
		projects:            make(map[uuid.UUID]models.Project),
		invoices:            make(map[uuid.UUID]models.Invoice),
		invoiceByUUID:       make(map[string]uuid.UUID),
		lineItems:           make(map[uuid.UUID][]models.LineItem),
		creditNotes:         make(map[uuid.UUID]models.CreditNote),
		creditNoteByUUID:    make(map[string]uuid.UUID),
		creditNoteByInvoice: make(map[uuid.UUID]uuid.UUID),
		files:               make(map[fileKey]models.FileReference),
	}
}

func docKey(documentID string) string {
	return strings.ToUpper(strings.TrimSpace(documentID))
}

// RunInTx runs fn and rolls every map back to its prior state if fn fails.
func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snapshot := s.clone()
	if err := fn(ctx); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

func (s *InMemoryStore) FindInvoiceIDByUUID(_ context.Context, documentID string) (uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.invoiceByUUID[docKey(documentID)]; ok {
		return id, nil
	}
	return uuid.Nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) UpsertIssuer(_ context.Context, issuer *models.Issuer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if existing, ok := s.issuers[issuer.RFC]; ok {
		issuer.ID = existing.ID
		issuer.CreatedAt = existing.CreatedAt
	} else {
		if issuer.ID == uuid.Nil {
			issuer.ID = uuid.New()
		}
		issuer.CreatedAt = now
	}
	issuer.UpdatedAt = now
	s.issuers[issuer.RFC] = *issuer
	return nil
}

func (s *InMemoryStore) FindIssuerByRFC(_ context.Context, rfc string) (*models.Issuer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if iss, ok := s.issuers[rfc]; ok {
		return &iss, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListActiveProjects(_ context.Context) ([]models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Project
	for _, p := range s.projects {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *InMemoryStore) SaveProject(_ context.Context, p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.projects {
		if existing.Code == p.Code {
			p.ID = id
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.projects[p.ID] = *p
	return nil
}

func (s *InMemoryStore) CreateInvoice(_ context.Context, inv *models.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := docKey(inv.UUID)
	if _, ok := s.invoiceByUUID[key]; ok {
		return sentinel.ErrConflict
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = s.now()
	}
	row := *inv
	row.UUID = key
	s.invoices[inv.ID] = row
	s.invoiceByUUID[key] = inv.ID
	return nil
}

func (s *InMemoryStore) CreateLineItems(_ context.Context, invoiceID uuid.UUID, items []models.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]models.LineItem, len(items))
	for i, it := range items {
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		it.InvoiceID = invoiceID
		stored[i] = it
	}
	s.lineItems[invoiceID] = append(s.lineItems[invoiceID], stored...)
	return nil
}

func (s *InMemoryStore) ListLineItems(_ context.Context, invoiceID uuid.UUID) ([]models.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := append([]models.LineItem(nil), s.lineItems[invoiceID]...)
	sort.Slice(items, func(i, j int) bool { return items[i].LineNumber < items[j].LineNumber })
	return items, nil
}

func (s *InMemoryStore) CreateCreditNote(_ context.Context, cn *models.CreditNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := docKey(cn.UUID)
	if _, ok := s.creditNoteByUUID[key]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := s.creditNoteByInvoice[cn.InvoiceID]; ok {
		return sentinel.ErrConflict
	}
	if cn.CreatedAt.IsZero() {
		cn.CreatedAt = s.now()
	}
	row := *cn
	row.UUID = key
	s.creditNotes[cn.ID] = row
	s.creditNoteByUUID[key] = cn.ID
	s.creditNoteByInvoice[cn.InvoiceID] = cn.ID
	return nil
}

// CreditNoteForInvoice returns the credit note linked to an invoice.
func (s *InMemoryStore) CreditNoteForInvoice(invoiceID uuid.UUID) (models.CreditNote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.creditNoteByInvoice[invoiceID]
	if !ok {
		return models.CreditNote{}, false
	}
	return s.creditNotes[id], true
}

func (s *InMemoryStore) UpsertFileReference(_ context.Context, ref *models.FileReference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	key := fileKey{owner: ref.Owner, ownerID: ref.OwnerID, kind: ref.Kind}
	if existing, ok := s.files[key]; ok {
		ref.ID = existing.ID
		ref.CreatedAt = existing.CreatedAt
	} else {
		if ref.ID == uuid.Nil {
			ref.ID = uuid.New()
		}
		ref.CreatedAt = now
	}
	ref.SecondaryID, ref.SecondaryURL = "", ""
	ref.UpdatedAt = now
	s.files[key] = *ref
	return nil
}

func (s *InMemoryStore) AttachSecondary(_ context.Context, owner models.FileOwner, ownerID uuid.UUID, kind models.FileKind, secondaryID, secondaryURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fileKey{owner: owner, ownerID: ownerID, kind: kind}
	ref, ok := s.files[key]
	if !ok {
		return sentinel.ErrNotFound
	}
	ref.SecondaryID = secondaryID
	ref.SecondaryURL = secondaryURL
	ref.UpdatedAt = s.now()
	s.files[key] = ref
	return nil
}

func (s *InMemoryStore) ListFileReferences(_ context.Context, owner models.FileOwner, ownerID uuid.UUID) ([]models.FileReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var refs []models.FileReference
	for key, ref := range s.files {
		if key.owner == owner && key.ownerID == ownerID {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Kind < refs[j].Kind })
	return refs, nil
}

func (s *InMemoryStore) FindInvoiceByUUID(ctx context.Context, documentID string) (*models.InvoiceDetails, error) {
	s.mu.RLock()
	id, ok := s.invoiceByUUID[docKey(documentID)]
	if !ok {
		s.mu.RUnlock()
		return nil, sentinel.ErrNotFound
	}
	inv := s.invoices[id]
	d := &models.InvoiceDetails{Invoice: inv}
	for _, iss := range s.issuers {
		if iss.ID == inv.IssuerID {
			d.IssuerRFC, d.IssuerName = iss.RFC, iss.Name
		}
	}
	if inv.ProjectID != nil {
		d.ProjectCode = s.projects[*inv.ProjectID].Code
	}
	s.mu.RUnlock()

	files, err := s.ListFileReferences(ctx, models.OwnerInvoice, id)
	if err != nil {
		return nil, err
	}
	d.Files = files
	return d, nil
}

// CountInvoices returns the number of stored invoices.
func (s *InMemoryStore) CountInvoices() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.invoices)
}

type memorySnapshot struct {
	issuers             map[string]models.Issuer
	projects            map[uuid.UUID]models.Project
	invoices            map[uuid.UUID]models.Invoice
	invoiceByUUID       map[string]uuid.UUID
	lineItems           map[uuid.UUID][]models.LineItem
	creditNotes         map[uuid.UUID]models.CreditNote
	creditNoteByUUID    map[string]uuid.UUID
	creditNoteByInvoice map[uuid.UUID]uuid.UUID
	files               map[fileKey]models.FileReference
}

func (s *InMemoryStore) clone() memorySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make(map[uuid.UUID][]models.LineItem, len(s.lineItems))
	for k, v := range s.lineItems {
		items[k] = append([]models.LineItem(nil), v...)
	}
	return memorySnapshot{
		issuers:             copyMap(s.issuers),
		projects:            copyMap(s.projects),
		invoices:            copyMap(s.invoices),
		invoiceByUUID:       copyMap(s.invoiceByUUID),
		lineItems:           items,
		creditNotes:         copyMap(s.creditNotes),
		creditNoteByUUID:    copyMap(s.creditNoteByUUID),
		creditNoteByInvoice: copyMap(s.creditNoteByInvoice),
		files:               copyMap(s.files),
	}
}

func (s *InMemoryStore) restore(snap memorySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issuers = snap.issuers
	s.projects = snap.projects
	s.invoices = snap.invoices
	s.invoiceByUUID = snap.invoiceByUUID
	s.lineItems = snap.lineItems
	s.creditNotes = snap.creditNotes
	s.creditNoteByUUID = snap.creditNoteByUUID
	s.creditNoteByInvoice = snap.creditNoteByInvoice
	s.files = snap.files
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
