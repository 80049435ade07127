package models

import "github.com/shopspring/decimal"

// Submission is the inbound invoice payload. Sections are pointers so that a
// missing section can be told apart from an empty one.
type Submission struct {
	Week           int                `json:"week"`
	Project        string             `json:"project"`
	Issuer         *IssuerPayload     `json:"issuer"`
	Receiver       *ReceiverPayload   `json:"receiver"`
	Invoice        *DocumentPayload   `json:"invoice"`
	Payment        *PaymentPayload    `json:"payment"`
	Financial      *FinancialPayload  `json:"financial"`
	Items          []ItemPayload      `json:"items"`
	Contact        ContactPayload     `json:"contact"`
	Files          *FilesPayload      `json:"files"`
	PaymentProgram *ProgramPayload    `json:"paymentProgram,omitempty"`
	CreditNote     *CreditNotePayload `json:"creditNote,omitempty"`
}

type IssuerPayload struct {
	RFC     string `json:"rfc"`
	Name    string `json:"name"`
	Regime  string `json:"regime"`
	ZipCode string `json:"zipCode"`
}

type ReceiverPayload struct {
	RFC     string `json:"rfc"`
	Name    string `json:"name"`
	Regime  string `json:"regime"`
	ZipCode string `json:"zipCode"`
	CFDIUse string `json:"cfdiUse"`
}

type DocumentPayload struct {
	UUID              string `json:"uuid"`
	Folio             string `json:"folio"`
	Series            string `json:"series"`
	Date              string `json:"date"`
	CertificationDate string `json:"certificationDate"`
	SATCertNumber     string `json:"satCertNumber"`
}

type PaymentPayload struct {
	Method     string `json:"method"`
	Form       string `json:"form"`
	Conditions string `json:"conditions"`
}

type FinancialPayload struct {
	Subtotal          decimal.Decimal     `json:"subtotal"`
	Discount          decimal.Decimal     `json:"discount"`
	TotalTax          decimal.Decimal     `json:"totalTax"`
	RetainedVAT       decimal.Decimal     `json:"retainedVat"`
	RetainedIncomeTax decimal.Decimal     `json:"retainedIncomeTax"`
	TotalAmount       decimal.Decimal     `json:"totalAmount"`
	Currency          string              `json:"currency"`
	ExchangeRate      decimal.NullDecimal `json:"exchangeRate"`
}

type ItemPayload struct {
	ProductCode string          `json:"productCode"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCode    string          `json:"unitCode"`
	Unit        string          `json:"unit"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Amount      decimal.Decimal `json:"amount"`
	Discount    decimal.Decimal `json:"discount"`
	TaxAmount   decimal.Decimal `json:"taxAmount"`
}

type ContactPayload struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// FilesPayload carries base64-encoded artifacts.
type FilesPayload struct {
	XML []byte `json:"xml"`
	PDF []byte `json:"pdf"`
}

// ProgramPayload selects the payment program. FeeAmount and NetAmount are
// accepted for compatibility but always recomputed from the total.
type ProgramPayload struct {
	Program   string              `json:"program"`
	FeeRate   decimal.Decimal     `json:"feeRate"`
	FeeAmount decimal.NullDecimal `json:"feeAmount"`
	NetAmount decimal.NullDecimal `json:"netAmount"`
}

type CreditNotePayload struct {
	UUID   string          `json:"uuid"`
	Folio  string          `json:"folio"`
	Series string          `json:"series"`
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	Files  *FilesPayload   `json:"files"`
}

// Program returns the selected payment program, defaulting to standard.
func (s *Submission) Program() PaymentProgram {
	if s.PaymentProgram == nil || s.PaymentProgram.Program == "" {
		return ProgramStandard
	}
	return PaymentProgram(s.PaymentProgram.Program)
}

// Artifacts returns the present invoice artifacts, XML first.
func (s *Submission) Artifacts() []Artifact {
	if s.Files == nil {
		return nil
	}
	return s.Files.artifacts(KindXML, KindPDF)
}

// Artifacts returns the present credit-note artifacts, XML first.
func (c *CreditNotePayload) Artifacts() []Artifact {
	if c.Files == nil {
		return nil
	}
	return c.Files.artifacts(KindCreditNoteXML, KindCreditNotePDF)
}

func (f *FilesPayload) artifacts(xmlKind, pdfKind FileKind) []Artifact {
	var out []Artifact
	if len(f.XML) > 0 {
		out = append(out, Artifact{Kind: xmlKind, Data: f.XML})
	}
	if len(f.PDF) > 0 {
		out = append(out, Artifact{Kind: pdfKind, Data: f.PDF})
	}
	return out
}
