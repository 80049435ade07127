package handler

import (
	"github.com/shopspring/decimal"

	"invoicevault/internal/invoice/models"
)

const duplicateInvoiceCode = "DUPLICATE_INVOICE"

type duplicateResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	InvoiceID        string `json:"invoiceId"`
	UUID             string `json:"uuid"`
}

type fileResponse struct {
	URL       string `json:"url"`
	Path      string `json:"path,omitempty"`
	BackupURL string `json:"backupUrl,omitempty"`
}

type programResponse struct {
	Program   string          `json:"program"`
	FeeRate   decimal.Decimal `json:"feeRate"`
	FeeAmount decimal.Decimal `json:"feeAmount"`
	NetAmount decimal.Decimal `json:"netAmount"`
}

type creditNoteResponse struct {
	CreditNoteID string                  `json:"creditNoteId"`
	UUID         string                  `json:"uuid"`
	Files        map[string]fileResponse `json:"files"`
}

// submitResponse lists only the files that reached the primary tier.
type submitResponse struct {
	InvoiceID      string                  `json:"invoiceId"`
	UUID           string                  `json:"uuid"`
	ProjectID      *string                 `json:"projectId"`
	PaymentProgram programResponse         `json:"paymentProgram"`
	Files          map[string]fileResponse `json:"files"`
	CreditNote     *creditNoteResponse     `json:"creditNote,omitempty"`
	Warnings       []string                `json:"warnings,omitempty"`
}

type issuerResponse struct {
	RFC  string `json:"rfc"`
	Name string `json:"name"`
}

type totalsResponse struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	TotalTax    decimal.Decimal `json:"totalTax"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Currency    string          `json:"currency"`
}

type invoiceResponse struct {
	InvoiceID      string                  `json:"invoiceId"`
	UUID           string                  `json:"uuid"`
	Folio          string                  `json:"folio,omitempty"`
	Series         string                  `json:"series,omitempty"`
	Date           string                  `json:"date"`
	Week           int                     `json:"week"`
	Status         string                  `json:"status"`
	Issuer         issuerResponse          `json:"issuer"`
	ProjectCode    *string                 `json:"projectCode"`
	Financial      totalsResponse          `json:"financial"`
	PaymentProgram programResponse         `json:"paymentProgram"`
	Files          map[string]fileResponse `json:"files"`
}

func toProgram(p models.ProgramTerms) programResponse {
	return programResponse{
		Program:   string(p.Program),
		FeeRate:   p.FeeRate,
		FeeAmount: p.FeeAmount,
		NetAmount: p.NetAmount,
	}
}

// toFiles keys artifacts by extension ("xml", "pdf") for invoices and credit
// notes alike.
func toFiles(files map[models.FileKind]models.StoredFile) map[string]fileResponse {
	out := make(map[string]fileResponse, len(files))
	for kind, f := range files {
		out[kind.Extension()] = fileResponse{URL: f.URL, Path: f.Path, BackupURL: f.BackupURL}
	}
	return out
}

func toSubmitResponse(res *models.Result) submitResponse {
	resp := submitResponse{
		InvoiceID:      res.InvoiceID.String(),
		UUID:           res.UUID,
		PaymentProgram: toProgram(res.Program),
		Files:          toFiles(res.Files),
		Warnings:       res.Warnings,
	}
	if res.ProjectID != nil {
		id := res.ProjectID.String()
		resp.ProjectID = &id
	}
	if res.CreditNote != nil {
		resp.CreditNote = &creditNoteResponse{
			CreditNoteID: res.CreditNote.ID.String(),
			UUID:         res.CreditNote.UUID,
			Files:        toFiles(res.CreditNote.Files),
		}
	}
	return resp
}

func toInvoiceResponse(d *models.InvoiceDetails) invoiceResponse {
	inv := d.Invoice
	resp := invoiceResponse{
		InvoiceID: inv.ID.String(),
		UUID:      inv.UUID,
		Folio:     inv.Folio,
		Series:    inv.Series,
		Date:      inv.IssuedOn.Format("2006-01-02"),
		Week:      inv.Week,
		Status:    string(inv.Status),
		Issuer:    issuerResponse{RFC: d.IssuerRFC, Name: d.IssuerName},
		Financial: totalsResponse{
			Subtotal:    inv.Totals.Subtotal,
			TotalTax:    inv.Totals.TotalTax,
			TotalAmount: inv.Totals.Total,
			Currency:    inv.Totals.Currency,
		},
		PaymentProgram: toProgram(inv.Program),
		Files:          make(map[string]fileResponse, len(d.Files)),
	}
	if d.ProjectCode != "" {
		code := d.ProjectCode
		resp.ProjectCode = &code
	}
	for _, ref := range d.Files {
		resp.Files[ref.Kind.Extension()] = fileResponse{URL: ref.PrimaryURL, Path: ref.PrimaryPath, BackupURL: ref.SecondaryURL}
	}
	return resp
}
