// Package cufe computes the DIAN unique codes of electronic documents:
// the CUFE for invoices and the CUDE for credit and debit notes.
package cufe

import (
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/factura/internal/invoice"
)

// Environment is the DIAN TipoAmbiente flag.
type Environment string

const (
	Production Environment = "1"
	Testing    Environment = "2"
)

func (e Environment) Valid() bool {
	return e == Production || e == Testing
}

// Scheme names the code in the document's UUID element.
func Scheme(docType invoice.DocumentType) string {
	if docType.IsNote() {
		return "CUDE-SHA384"
	}

	return "CUFE-SHA384"
}

// Params is the fixed tuple the code is computed from.
type Params struct {
	Number      string
	IssuedAt    time.Time
	Subtotal    decimal.Decimal
	IVA         decimal.Decimal
	INC         decimal.Decimal
	ICA         decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal
	SupplierNIT string
	CustomerID  string
	// Key is the technical key for invoices and the software PIN for notes.
	Key         string
	Environment Environment
}

// Keys are the tenant secrets issued by DIAN that feed the code.
type Keys struct {
	TechnicalKey string
	SoftwarePIN  string
}

// FromInvoice collects the code parameters of a computed invoice.
func FromInvoice(inv *invoice.Invoice, keys Keys, env Environment) Params {
	key := keys.TechnicalKey
	if inv.DocumentType.IsNote() {
		key = keys.SoftwarePIN
	}

	return Params{
		Number:      inv.Number,
		IssuedAt:    inv.IssuedAt,
		Subtotal:    inv.Totals.Subtotal,
		IVA:         inv.TaxAmount(invoice.TaxIVA),
		INC:         inv.TaxAmount(invoice.TaxINC),
		ICA:         inv.TaxAmount(invoice.TaxICA),
		Discount:    inv.Totals.Discount,
		Total:       inv.Totals.Payable,
		SupplierNIT: inv.Supplier.TaxID,
		CustomerID:  inv.Customer.TaxID,
		Key:         key,
		Environment: env,
	}
}

// Generate returns the lowercase hex SHA-384 of the DIAN field concatenation:
// NumFac FecFac HorFac ValFac 01 ValImp1 04 ValImp2 03 ValImp3 ValTot NitOFE NumAdq ClTec TipoAmb.
func Generate(p Params) (string, error) {
	if err := p.validate(); err != nil {
		return "", err
	}

	sum := sha512.Sum384([]byte(Concatenate(p)))

	return hex.EncodeToString(sum[:]), nil
}

// Concatenate renders the hashed string. It does not validate p.
func Concatenate(p Params) string {
	issued := p.IssuedAt.In(invoice.Bogota)

	var sb strings.Builder
	sb.WriteString(p.Number)
	sb.WriteString(issued.Format(time.DateOnly))
	sb.WriteString(issued.Format("15:04:05-07:00"))
	sb.WriteString(amount(p.Subtotal))
	sb.WriteString(string(invoice.TaxIVA))
	sb.WriteString(amount(p.IVA))
	sb.WriteString(string(invoice.TaxINC))
	sb.WriteString(amount(p.INC))
	sb.WriteString(string(invoice.TaxICA))
	sb.WriteString(amount(p.ICA))
	sb.WriteString(amount(p.Total))
	sb.WriteString(p.SupplierNIT)
	sb.WriteString(p.CustomerID)
	sb.WriteString(p.Key)
	sb.WriteString(string(p.Environment))

	return sb.String()
}

// SoftwareSecurityCode is SHA-384 of software id, PIN and document number.
func SoftwareSecurityCode(softwareID, pin, number string) string {
	sum := sha512.Sum384([]byte(softwareID + pin + number))
	return hex.EncodeToString(sum[:])
}

func amount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func (p Params) validate() error {
	var errs []error

	fail := func(field, msg string) {
		errs = append(errs, invoice.FieldError{Field: field, Message: msg})
	}

	if p.Number == "" || strings.ContainsAny(p.Number, " \t\n") {
		fail("number", "is required and must not contain whitespace")
	}

	if p.IssuedAt.IsZero() {
		fail("issued_at", "is required")
	}

	amounts := []struct {
		field string
		v     decimal.Decimal
	}{
		{"subtotal", p.Subtotal},
		{"iva", p.IVA},
		{"inc", p.INC},
		{"ica", p.ICA},
		{"discount", p.Discount},
		{"total", p.Total},
	}
	for _, a := range amounts {
		if a.v.IsNegative() {
			fail(a.field, "must not be negative")
		}

		if !a.v.Equal(a.v.Round(2)) {
			fail(a.field, "must have at most two decimals")
		}
	}

	expected := p.Subtotal.Add(p.IVA).Add(p.INC).Add(p.ICA).Sub(p.Discount)
	if !p.Total.Equal(expected) {
		fail("total", fmt.Sprintf("%s is inconsistent with subtotal, taxes and discount (%s)", amount(p.Total), amount(expected)))
	}

	if _, err := invoice.CheckDigit(p.SupplierNIT); err != nil {
		fail("supplier_nit", err.Error())
	}

	if p.CustomerID == "" {
		fail("customer_id", "is required")
	}

	if p.Key == "" {
		fail("key", "technical key or software PIN is required")
	}

	if !p.Environment.Valid() {
		fail("environment", "must be 1 (production) or 2 (testing)")
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", invoice.ErrInvalidInput, errors.Join(errs...))
}
