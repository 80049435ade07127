// Package invoicetest holds submission fixtures shared by invoice tests.
package invoicetest

import (
	"github.com/shopspring/decimal"

	"invoicevault/internal/invoice/models"
)

const (
	ReceiverRFC = "EKU9003173C9"
	IssuerRFC   = "GODE561231GR8"
	DocumentID  = "AAAAAAAA-1111-2222-3333-444444444444"
)

// Submission returns a valid standard-program submission with one XML, one
// PDF and two line items.
func Submission() *models.Submission {
	return &models.Submission{
		Week:    12,
		Project: "torre norte",
		Issuer: &models.IssuerPayload{
			RFC:     IssuerRFC,
			Name:    "Dominga Gómez Estrada",
			Regime:  "612",
			ZipCode: "64000",
		},
		Receiver: &models.ReceiverPayload{
			RFC:     ReceiverRFC,
			Name:    "Escuela Kemper Urgate",
			Regime:  "601",
			ZipCode: "26015",
			CFDIUse: "G03",
		},
		Invoice: &models.DocumentPayload{
			UUID:              DocumentID,
			Folio:             "1045",
			Series:            "A",
			Date:              "2026-03-18",
			CertificationDate: "2026-03-18T12:30:00",
			SATCertNumber:     "00001000000509846663",
		},
		Payment: &models.PaymentPayload{Method: models.PaymentMethodSingle, Form: "03", Conditions: "Contado"},
		Financial: &models.FinancialPayload{
			Subtotal:    decimal.RequireFromString("862.07"),
			TotalTax:    decimal.RequireFromString("137.93"),
			TotalAmount: decimal.NewFromInt(1000),
			Currency:    "MXN",
		},
		Items: []models.ItemPayload{
			{ProductCode: "72151500", Description: "Instalación eléctrica", Quantity: decimal.NewFromInt(1), UnitCode: "E48", Unit: "Servicio", UnitPrice: decimal.RequireFromString("600.00"), Amount: decimal.RequireFromString("600.00")},
			{ProductCode: "39121000", Description: "Material eléctrico", Quantity: decimal.NewFromInt(2), UnitCode: "H87", Unit: "Pieza", UnitPrice: decimal.RequireFromString("131.035"), Amount: decimal.RequireFromString("262.07")},
		},
		Contact: models.ContactPayload{Email: "facturas@gomez.example", Phone: "8110000000"},
		Files:   &models.FilesPayload{XML: []byte("<cfdi:Comprobante/>"), PDF: []byte("%PDF-1.7")},
	}
}

// AcceleratedSubmission returns Submission switched to the accelerated program
// at an 8% fee with a linked credit note.
func AcceleratedSubmission() *models.Submission {
	sub := Submission()
	sub.PaymentProgram = &models.ProgramPayload{
		Program: string(models.ProgramAccelerated),
		FeeRate: decimal.RequireFromString("0.08"),
	}
	sub.CreditNote = &models.CreditNotePayload{
		UUID:   "BBBBBBBB-5555-6666-7777-888888888888",
		Folio:  "NC-77",
		Date:   "2026-03-19",
		Amount: decimal.NewFromInt(80),
		Files:  &models.FilesPayload{XML: []byte("<cfdi:NotaCredito/>"), PDF: []byte("%PDF-1.7 nc")},
	}
	return sub
}
