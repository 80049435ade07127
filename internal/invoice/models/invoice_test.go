package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNewProgramTerms(t *testing.T) {
	t.Run("accelerated program deducts the fee", func(t *testing.T) {
		terms := NewProgramTerms(ProgramAccelerated, decimal.NewFromInt(1000), decimal.RequireFromString("0.08"))
		assert.Equal(t, ProgramAccelerated, terms.Program)
		assert.True(t, terms.FeeAmount.Equal(decimal.NewFromInt(80)), "fee %s", terms.FeeAmount)
		assert.True(t, terms.NetAmount.Equal(decimal.NewFromInt(920)), "net %s", terms.NetAmount)
	})

	t.Run("fee is rounded to cents and net stays consistent", func(t *testing.T) {
		total := decimal.RequireFromString("1234.57")
		terms := NewProgramTerms(ProgramAccelerated, total, decimal.RequireFromString("0.035"))
		assert.Equal(t, "43.21", terms.FeeAmount.StringFixed(2))
		assert.True(t, terms.NetAmount.Equal(total.Sub(terms.FeeAmount)))
	})

	t.Run("standard program nets the full total", func(t *testing.T) {
		total := decimal.RequireFromString("580.00")
		terms := NewProgramTerms(ProgramStandard, total, decimal.RequireFromString("0.08"))
		assert.Equal(t, ProgramStandard, terms.Program)
		assert.True(t, terms.FeeAmount.IsZero())
		assert.True(t, terms.NetAmount.Equal(total))
	})

	t.Run("unknown program falls back to standard", func(t *testing.T) {
		terms := NewProgramTerms(PaymentProgram(""), decimal.NewFromInt(10), decimal.Zero)
		assert.Equal(t, ProgramStandard, terms.Program)
	})
}

func TestSubmissionArtifacts(t *testing.T) {
	sub := &Submission{Files: &FilesPayload{XML: []byte("<cfdi/>")}}
	arts := sub.Artifacts()
	assert.Len(t, arts, 1)
	assert.Equal(t, KindXML, arts[0].Kind)

	cn := &CreditNotePayload{Files: &FilesPayload{XML: []byte("<nc/>"), PDF: []byte("%PDF")}}
	kinds := []FileKind{}
	for _, a := range cn.Artifacts() {
		kinds = append(kinds, a.Kind)
	}
	assert.Equal(t, []FileKind{KindCreditNoteXML, KindCreditNotePDF}, kinds)
}
