// Package validation checks inbound invoice submissions before anything is
// written. It has no side effects; a submission that fails here never reaches
// the duplicate guard or any store.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"invoicevault/internal/invoice/models"
	strutil "invoicevault/pkg/platform/strings"
)

const dateLayout = "2006-01-02"

var (
	rfcPattern  = regexp.MustCompile(`^[A-ZÑ&]{3,4}[0-9]{6}[A-Z0-9]{3}$`)
	uuidPattern = regexp.MustCompile(`^[0-9A-Fa-f]{8}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{12}$`)
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

	paymentMethods = map[string]bool{
		models.PaymentMethodSingle:   true,
		models.PaymentMethodDeferred: true,
	}
)

// Result of validating one submission. Warnings never make it invalid.
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

type Validator struct {
	expectedReceiverRFC string
}

// New returns a validator that only accepts invoices addressed to
// expectedReceiverRFC.
func New(expectedReceiverRFC string) *Validator {
	return &Validator{expectedReceiverRFC: NormalizeRFC(expectedReceiverRFC)}
}

// NormalizeRFC trims and upper-cases a tax id.
func NormalizeRFC(rfc string) string {
	return strings.ToUpper(strings.TrimSpace(rfc))
}

// IsUUID reports whether s has the 8-4-4-4-12 document identifier shape.
func IsUUID(s string) bool {
	return uuidPattern.MatchString(strings.TrimSpace(s))
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if !datePattern.MatchString(s) {
		return time.Time{}, fmt.Errorf("date %q must use YYYY-MM-DD", s)
	}
	return time.Parse(dateLayout, s)
}

// ParseTimestamp accepts a YYYY-MM-DD date or an ISO-8601 timestamp with or
// without offset.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", dateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp %q is not a valid date", s)
}

// Validate checks shape, formats and business rules of a submission.
func (v *Validator) Validate(sub *models.Submission) Result {
	c := &collector{}
	if sub == nil {
		c.fail("submission body is required")
		return c.result()
	}

	if sub.Week < 1 || sub.Week > 53 {
		c.fail("week must be between 1 and 53")
	}
	v.checkIssuer(c, sub.Issuer)
	v.checkReceiver(c, sub.Receiver)
	v.checkDocument(c, sub.Invoice)
	v.checkPayment(c, sub.Payment)
	v.checkFinancial(c, sub.Financial)
	v.checkFiles(c, sub.Files)
	v.checkProgram(c, sub)

	return c.result()
}

func (v *Validator) checkIssuer(c *collector, issuer *models.IssuerPayload) {
	if issuer == nil {
		c.fail("issuer section is required")
		return
	}
	if !rfcPattern.MatchString(NormalizeRFC(issuer.RFC)) {
		c.fail("issuer.rfc has an invalid format")
	}
	if strings.TrimSpace(issuer.Name) == "" {
		c.fail("issuer.name is required")
	}
}

func (v *Validator) checkReceiver(c *collector, receiver *models.ReceiverPayload) {
	if receiver == nil {
		c.fail("receiver section is required")
		return
	}
	rfc := NormalizeRFC(receiver.RFC)
	if !rfcPattern.MatchString(rfc) {
		c.fail("receiver.rfc has an invalid format")
		return
	}
	if v.expectedReceiverRFC != "" && rfc != v.expectedReceiverRFC {
		c.fail(fmt.Sprintf("receiver.rfc must be %s", v.expectedReceiverRFC))
	}
}

func (v *Validator) checkDocument(c *collector, doc *models.DocumentPayload) {
	if doc == nil {
		c.fail("invoice section is required")
		return
	}
	if !IsUUID(doc.UUID) {
		c.fail("invoice.uuid must be a 36-character identifier (8-4-4-4-12)")
	}
	if strings.TrimSpace(doc.Date) == "" {
		c.fail("invoice.date is required")
	} else if _, err := ParseDate(doc.Date); err != nil {
		c.fail("invoice.date must be a valid YYYY-MM-DD date")
	}
	if strings.TrimSpace(doc.CertificationDate) != "" {
		if _, err := ParseTimestamp(doc.CertificationDate); err != nil {
			c.fail("invoice.certificationDate is not a valid date")
		}
	}
}

func (v *Validator) checkPayment(c *collector, payment *models.PaymentPayload) {
	if payment == nil {
		c.fail("payment section is required")
		return
	}
	if !paymentMethods[strings.ToUpper(strings.TrimSpace(payment.Method))] {
		c.fail(fmt.Sprintf("payment.method must be %s or %s", models.PaymentMethodSingle, models.PaymentMethodDeferred))
	}
}

func (v *Validator) checkFinancial(c *collector, financial *models.FinancialPayload) {
	if financial == nil {
		c.fail("financial section is required")
		return
	}
	if !financial.TotalAmount.IsPositive() {
		c.fail("financial.totalAmount must be a positive number")
	}
}

func (v *Validator) checkFiles(c *collector, files *models.FilesPayload) {
	if files == nil {
		c.fail("files section is required")
		return
	}
	if len(files.XML) == 0 {
		c.fail("files.xml is required")
	}
	if len(files.PDF) == 0 {
		c.warn("files.pdf is missing; only the XML will be stored")
	}
}

func (v *Validator) checkProgram(c *collector, sub *models.Submission) {
	if sub.PaymentProgram != nil {
		program := models.PaymentProgram(sub.PaymentProgram.Program)
		if program != "" && !program.IsValid() {
			c.fail(fmt.Sprintf("paymentProgram.program must be %s or %s", models.ProgramStandard, models.ProgramAccelerated))
		}
		if program == models.ProgramAccelerated {
			rate := sub.PaymentProgram.FeeRate
			if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
				c.fail("paymentProgram.feeRate must be at least 0 and below 1")
			}
		}
	}
	if sub.CreditNote != nil && sub.Program() != models.ProgramAccelerated {
		c.warn("creditNote ignored: only accelerated-payment invoices carry a credit note")
	}
}

type collector struct {
	errors   []string
	warnings []string
}

func (c *collector) fail(msg string) { c.errors = append(c.errors, msg) }
func (c *collector) warn(msg string) { c.warnings = append(c.warnings, msg) }

func (c *collector) result() Result {
	return Result{
		Valid:    len(c.errors) == 0,
		Errors:   strutil.DedupeAndTrim(c.errors),
		Warnings: strutil.DedupeAndTrim(c.warnings),
	}
}
