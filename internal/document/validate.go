package document

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrJamesThe3rd/factura/internal/invoice"
)

// ValidationError lists every field that keeps an invoice from rendering as a valid document.
type ValidationError struct {
	Violations []invoice.FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Error()
	}

	return "document validation failed: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the violations and invoice.ErrInvalidInput to errors.Is and errors.As.
func (e *ValidationError) Unwrap() []error {
	errs := []error{invoice.ErrInvalidInput}
	for _, v := range e.Violations {
		errs = append(errs, v)
	}

	return errs
}

func (b *Builder) check(inv *invoice.Invoice, code string) error {
	var violations []invoice.FieldError

	fail := func(field, format string, args ...any) {
		violations = append(violations, invoice.FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if !isCode(code) {
		fail("code", "must be 96 lowercase hexadecimal characters")
	}

	if !b.env.Valid() {
		fail("environment", "must be 1 (production) or 2 (testing)")
	}

	if b.software.ID == "" {
		fail("software.id", "is required")
	}

	if b.software.PIN == "" {
		fail("software.pin", "is required")
	}

	if _, err := invoice.CheckDigit(b.providerNIT(inv)); err != nil {
		fail("software.provider_nit", "%v", err)
	}

	if _, ok := kinds[inv.DocumentType]; !ok {
		fail("document_type", "unsupported document type %q", inv.DocumentType)
	}

	switch {
	case inv.DocumentType == invoice.DocumentInvoice:
		if inv.Resolution.Number == "" {
			fail("resolution.number", "is required")
		}

		if inv.Resolution.ValidFrom.IsZero() || inv.Resolution.ValidTo.IsZero() {
			fail("resolution.validity", "is required")
		}
	case inv.DocumentType.IsNote():
		if inv.Reference == nil {
			fail("reference", "is required")
			break
		}

		if inv.Reference.DiscrepancyCode == "" {
			fail("reference.discrepancy_code", "is required")
		}

		if !isCode(inv.Reference.Code) {
			fail("reference.code", "must be the CUFE of the referenced invoice")
		}
	}

	if strings.TrimSpace(inv.Number) == "" {
		fail("number", "is required")
	}

	if inv.IssuedAt.IsZero() {
		fail("issued_at", "is required")
	}

	if inv.Currency != "COP" {
		fail("currency", "must be COP")
	}

	for _, p := range []struct {
		field string
		party invoice.Party
	}{
		{"supplier", inv.Supplier},
		{"customer", inv.Customer},
	} {
		if err := invoice.ValidTaxID(p.party.Scheme, p.party.TaxID, p.party.CheckDigit); err != nil {
			var fe invoice.FieldError
			if errors.As(err, &fe) {
				fail(p.field+"."+fe.Field, "%s", fe.Message)
			}
		}

		if text(p.party.LegalName) == "" {
			fail(p.field+".legal_name", "is required")
		}

		if p.party.Address.Country == "" {
			fail(p.field+".address.country", "is required")
		}
	}

	if len(inv.Items) == 0 {
		fail("items", "at least one line is required")
	}

	for i, it := range inv.Items {
		field := fmt.Sprintf("items[%d]", i)

		if text(it.Description) == "" {
			fail(field+".description", "is required")
		}

		if !it.Quantity.IsPositive() {
			fail(field+".quantity", "must be greater than zero")
		}

		if it.UnitPrice.IsNegative() || it.Total.IsNegative() || it.TaxAmount.IsNegative() {
			fail(field, "amounts must not be negative")
		}

		if it.TaxType != "" && it.TaxType.Rank() < 0 {
			fail(field+".tax_type", "unknown tax type %q", it.TaxType)
		}
	}

	if inv.Totals.Payable.IsNegative() {
		fail("totals.payable", "must not be negative")
	}

	if len(violations) == 0 {
		return nil
	}

	return &ValidationError{Violations: violations}
}

func isCode(s string) bool {
	if len(s) != 96 {
		return false
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}

	return true
}
