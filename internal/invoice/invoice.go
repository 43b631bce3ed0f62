package invoice

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentType is the DIAN code of the electronic document.
type DocumentType string

const (
	DocumentInvoice    DocumentType = "01"
	DocumentCreditNote DocumentType = "91"
	DocumentDebitNote  DocumentType = "92"
)

// IsNote reports whether the document corrects a previously issued invoice.
func (d DocumentType) IsNote() bool {
	return d == DocumentCreditNote || d == DocumentDebitNote
}

// Status represents the lifecycle state of an invoice.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusCoded           Status = "coded"
	StatusSigned          Status = "signed"
	StatusSubmitting      Status = "submitting"
	StatusAccepted        Status = "accepted"
	StatusRejected        Status = "rejected"
	StatusTransportFailed Status = "transport_failed"
	StatusVoided          Status = "voided"
)

// TaxType is the DIAN tax scheme identifier.
type TaxType string

const (
	TaxIVA TaxType = "01"
	TaxICA TaxType = "03"
	TaxINC TaxType = "04"
)

// TaxOrder is the fixed ordering DIAN uses for tax summaries and the CUFE.
var TaxOrder = []TaxType{TaxIVA, TaxINC, TaxICA}

func (t TaxType) Name() string {
	switch t {
	case TaxIVA:
		return "IVA"
	case TaxINC:
		return "INC"
	case TaxICA:
		return "ICA"
	}

	return ""
}

// Rank is the position of the tax type in TaxOrder, or -1 if unknown.
func (t TaxType) Rank() int {
	for i, tt := range TaxOrder {
		if tt == t {
			return i
		}
	}

	return -1
}

// IDScheme is the DIAN identification document type of a party.
type IDScheme string

const (
	SchemeNIT      IDScheme = "31"
	SchemeCC       IDScheme = "13"
	SchemeCE       IDScheme = "22"
	SchemePassport IDScheme = "41"
)

// PartyKind distinguishes legal entities from natural persons.
type PartyKind string

const (
	PartyLegal   PartyKind = "1"
	PartyNatural PartyKind = "2"
)

type Address struct {
	Line           string
	CityCode       string // DANE municipality code
	City           string
	DepartmentCode string
	Department     string
	PostalCode     string
	Country        string // ISO 3166-1 alpha-2
}

type Party struct {
	Kind       PartyKind
	TaxID      string
	Scheme     IDScheme
	CheckDigit string
	LegalName  string
	// Responsibilities is the DIAN fiscal responsibility code list, e.g. "O-13;O-15" or "R-99-PN".
	Responsibilities string
	Address          Address
	Email            string
	Phone            string
}

type LineItem struct {
	Position    int
	ProductCode string
	Description string
	Quantity    decimal.Decimal
	UnitCode    string
	UnitPrice   decimal.Decimal
	Discount    decimal.Decimal
	TaxType     TaxType // empty when the line is not taxed
	TaxRate     decimal.Decimal

	// Computed by Invoice.Compute.
	Subtotal  decimal.Decimal
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
}

// TaxLine is one tax type/rate pair of the tax summary.
type TaxLine struct {
	Type   TaxType
	Rate   decimal.Decimal
	Base   decimal.Decimal
	Amount decimal.Decimal
}

type Totals struct {
	Subtotal     decimal.Decimal
	TaxableBase  decimal.Decimal
	TaxTotal     decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
	Payable      decimal.Decimal
	TaxInclusive decimal.Decimal
}

// BillingResolution is a DIAN numbering authorization for a tenant.
type BillingResolution struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Number    string
	Prefix    string
	From      int64
	To        int64
	ValidFrom time.Time
	ValidTo   time.Time
	// Next is the next sequence to allocate.
	Next int64
}

// Contains reports whether seq is inside the authorized range.
func (r BillingResolution) Contains(seq int64) bool {
	return seq >= r.From && seq <= r.To
}

// BillingReference points a credit or debit note at the invoice it corrects.
type BillingReference struct {
	Number          string
	Code            string
	IssueDate       time.Time
	DiscrepancyCode string
	Reason          string
}

type PaymentMeans struct {
	Form string // 1 cash, 2 credit
	Code string // UN/ECE 4461, e.g. 10 cash, 42 bank transfer
}

// Invoice represents an electronic sales document and its compliance artifacts.
type Invoice struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	DocumentType   DocumentType
	Number         string
	Sequence       int64
	Resolution     BillingResolution
	IssuedAt       time.Time
	DueDate        *time.Time
	Currency       string
	Payment        PaymentMeans
	Supplier       Party
	Customer       Party
	Items          []LineItem
	GlobalDiscount decimal.Decimal
	Taxes          []TaxLine
	Totals         Totals
	Note           string
	Reference      *BillingReference

	Status         Status
	Code           string
	SignedDocument []byte
	PDF            []byte
	TrackID        string
	VoidReason     string

	CreatedAt time.Time
	UpdatedAt *time.Time
}

// TaxAmount returns the summed amount for one tax type, zero if absent.
func (inv *Invoice) TaxAmount(tt TaxType) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range inv.Taxes {
		if l.Type == tt {
			sum = sum.Add(l.Amount)
		}
	}

	return sum
}

// Outcome is the interpreted result of a submission attempt.
type Outcome string

const (
	OutcomeAccepted       Outcome = "accepted"
	OutcomeRejected       Outcome = "rejected"
	OutcomeTransportError Outcome = "transport_error"
)

// AuthorityError is an error reported by DIAN, kept verbatim.
type AuthorityError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SubmissionAttempt is an immutable record of one transmission to the authority.
type SubmissionAttempt struct {
	ID             uuid.UUID
	InvoiceID      uuid.UUID
	Sequence       int
	StartedAt      time.Time
	FinishedAt     time.Time
	PayloadHash    string
	IdempotencyKey string
	Outcome        Outcome
	StatusCode     string
	TrackID        string
	Errors         []AuthorityError
	Cause          string
}
