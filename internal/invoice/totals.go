package invoice

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Round applies the DIAN rounding rule: half-up to the peso's two minor digits.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Limits bounds the values accepted on a line item.
type Limits struct {
	MaxQuantity decimal.Decimal
}

func DefaultLimits() Limits {
	return Limits{MaxQuantity: decimal.NewFromInt(1_000_000)}
}

// Compute fills the derived amounts of every line, the grouped tax lines and the totals.
func (inv *Invoice) Compute() {
	type groupKey struct {
		Type TaxType
		Rate string
	}

	groups := make(map[groupKey]*TaxLine)

	subtotal := decimal.Zero
	taxable := decimal.Zero

	for i := range inv.Items {
		it := &inv.Items[i]
		if it.Position == 0 {
			it.Position = i + 1
		}

		it.Subtotal = Round(it.Quantity.Mul(it.UnitPrice))
		it.Total = it.Subtotal.Sub(Round(it.Discount))
		it.TaxAmount = decimal.Zero

		subtotal = subtotal.Add(it.Total)

		if it.TaxType == "" {
			continue
		}

		it.TaxAmount = Round(it.Total.Mul(it.TaxRate).Div(hundred))
		taxable = taxable.Add(it.Total)

		k := groupKey{Type: it.TaxType, Rate: it.TaxRate.String()}

		g, ok := groups[k]
		if !ok {
			g = &TaxLine{Type: it.TaxType, Rate: it.TaxRate, Base: decimal.Zero, Amount: decimal.Zero}
			groups[k] = g
		}

		g.Base = g.Base.Add(it.Total)
		g.Amount = g.Amount.Add(it.TaxAmount)
	}

	inv.Taxes = make([]TaxLine, 0, len(groups))
	for _, g := range groups {
		inv.Taxes = append(inv.Taxes, *g)
	}

	SortTaxes(inv.Taxes)

	taxTotal := decimal.Zero
	for _, t := range inv.Taxes {
		taxTotal = taxTotal.Add(t.Amount)
	}

	discount := Round(inv.GlobalDiscount)
	total := subtotal.Add(taxTotal).Sub(discount)

	inv.Totals = Totals{
		Subtotal:     subtotal,
		TaxableBase:  taxable,
		TaxTotal:     taxTotal,
		Discount:     discount,
		TaxInclusive: subtotal.Add(taxTotal),
		Total:        total,
		Payable:      total,
	}

	inv.Supplier.Normalize()
	inv.Customer.Normalize()
}

// SortTaxes orders tax lines by the DIAN tax order, then by ascending rate.
func SortTaxes(lines []TaxLine) {
	slices.SortFunc(lines, func(a, b TaxLine) int {
		if ra, rb := a.Type.Rank(), b.Type.Rank(); ra != rb {
			return ra - rb
		}

		return a.Rate.Cmp(b.Rate)
	})
}

// Validate checks the aggregate invariants required before an invoice can be coded.
// The returned error wraps ErrInvalidInput and joins one FieldError per violation.
func Validate(inv *Invoice, limits Limits) error {
	var errs []error

	fail := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch inv.DocumentType {
	case DocumentInvoice:
		if inv.Resolution.Prefix == "" && inv.Resolution.Number == "" {
			fail("resolution", "is required for invoices")
		} else {
			if !inv.Resolution.Contains(inv.Sequence) {
				fail("number", "sequence %d outside authorized range %d-%d", inv.Sequence, inv.Resolution.From, inv.Resolution.To)
			}

			if !inv.IssuedAt.IsZero() && (inv.IssuedAt.Before(inv.Resolution.ValidFrom) || !inv.IssuedAt.Before(inv.Resolution.ValidTo.AddDate(0, 0, 1))) {
				fail("issued_at", "outside resolution validity")
			}
		}
	case DocumentCreditNote, DocumentDebitNote:
		switch {
		case inv.Reference == nil:
			fail("reference", "is required for credit and debit notes")
		case inv.Reference.Number == "" || inv.Reference.Code == "" || inv.Reference.IssueDate.IsZero():
			fail("reference", "number, code and issue date are required")
		}
	default:
		fail("document_type", "unsupported document type %q", inv.DocumentType)
	}

	if strings.TrimSpace(inv.Number) == "" || strings.ContainsAny(inv.Number, " \t") {
		fail("number", "is required and must not contain spaces")
	}

	if inv.IssuedAt.IsZero() {
		fail("issued_at", "is required")
	}

	if inv.Currency != "COP" {
		fail("currency", "only COP is supported")
	}

	if inv.Payment.Form == "2" && inv.DueDate == nil {
		fail("due_date", "is required for credit payments")
	}

	if inv.Supplier.Scheme != SchemeNIT {
		fail("supplier.scheme", "supplier must be identified by NIT")
	}

	errs = append(errs, validateParty("supplier", inv.Supplier)...)
	errs = append(errs, validateParty("customer", inv.Customer)...)

	if len(inv.Items) == 0 {
		fail("items", "at least one line item is required")
	}

	lineSum := decimal.Zero

	for i, it := range inv.Items {
		field := fmt.Sprintf("items[%d]", i)

		if strings.TrimSpace(it.Description) == "" {
			fail(field+".description", "is required")
		}

		if !it.Quantity.IsPositive() {
			fail(field+".quantity", "must be greater than zero")
		}

		if !limits.MaxQuantity.IsZero() && it.Quantity.GreaterThan(limits.MaxQuantity) {
			fail(field+".quantity", "exceeds maximum %s", limits.MaxQuantity)
		}

		if it.UnitPrice.IsNegative() {
			fail(field+".unit_price", "must not be negative")
		}

		if !it.UnitPrice.Equal(Round(it.UnitPrice)) {
			fail(field+".unit_price", "must have at most two decimals")
		}

		if it.Discount.IsNegative() || it.Discount.GreaterThan(it.Subtotal) {
			fail(field+".discount", "must be between zero and the line subtotal")
		}

		if it.TaxType != "" {
			if it.TaxType.Rank() < 0 {
				fail(field+".tax_type", "unknown tax type %q", it.TaxType)
			}

			if it.TaxRate.IsNegative() || it.TaxRate.GreaterThan(hundred) {
				fail(field+".tax_rate", "must be between 0 and 100")
			}
		}

		if !it.Total.Equal(it.Subtotal.Sub(Round(it.Discount))) {
			fail(field+".total", "does not equal quantity times unit price minus discount")
		}

		lineSum = lineSum.Add(it.Total)
	}

	t := inv.Totals

	taxSum := decimal.Zero
	for _, tl := range inv.Taxes {
		taxSum = taxSum.Add(tl.Amount)
	}

	if !t.Subtotal.Equal(lineSum) {
		fail("totals.subtotal", "%s does not match line totals %s", t.Subtotal, lineSum)
	}

	if !t.TaxTotal.Equal(taxSum) {
		fail("totals.tax_total", "%s does not match tax lines %s", t.TaxTotal, taxSum)
	}

	if !t.Total.Equal(t.Subtotal.Add(t.TaxTotal).Sub(t.Discount)) {
		fail("totals.total", "must equal subtotal plus tax minus discount")
	}

	if !t.Payable.Equal(t.Total) {
		fail("totals.payable", "must equal total")
	}

	if t.Total.IsNegative() {
		fail("totals.total", "must not be negative")
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrInvalidInput, errors.Join(errs...))
}
