package invoice

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/factura/internal/invoice"
)

type addressRequest struct {
	Line           string `json:"line"`
	CityCode       string `json:"city_code"`
	City           string `json:"city"`
	DepartmentCode string `json:"department_code"`
	Department     string `json:"department"`
	PostalCode     string `json:"postal_code,omitempty"`
	Country        string `json:"country"`
}

type partyRequest struct {
	Kind             invoice.PartyKind `json:"kind"`
	TaxID            string            `json:"tax_id"`
	Scheme           invoice.IDScheme  `json:"scheme"`
	CheckDigit       string            `json:"check_digit,omitempty"`
	LegalName        string            `json:"legal_name"`
	Responsibilities string            `json:"responsibilities,omitempty"`
	Address          addressRequest    `json:"address"`
	Email            string            `json:"email,omitempty"`
	Phone            string            `json:"phone,omitempty"`
}

func (p partyRequest) toParty() invoice.Party {
	party := invoice.Party{
		Kind:             p.Kind,
		TaxID:            p.TaxID,
		Scheme:           p.Scheme,
		CheckDigit:       p.CheckDigit,
		LegalName:        p.LegalName,
		Responsibilities: p.Responsibilities,
		Address:          invoice.Address(p.Address),
		Email:            p.Email,
		Phone:            p.Phone,
	}
	party.Normalize()

	return party
}

type itemRequest struct {
	ProductCode string          `json:"product_code"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCode    string          `json:"unit_code"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	TaxType     invoice.TaxType `json:"tax_type,omitempty"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
}

func toItems(reqs []itemRequest) []invoice.LineItem {
	if reqs == nil {
		return nil
	}

	items := make([]invoice.LineItem, 0, len(reqs))
	for i, r := range reqs {
		items = append(items, invoice.LineItem{
			Position:    i + 1,
			ProductCode: r.ProductCode,
			Description: r.Description,
			Quantity:    r.Quantity,
			UnitCode:    r.UnitCode,
			UnitPrice:   r.UnitPrice,
			Discount:    r.Discount,
			TaxType:     r.TaxType,
			TaxRate:     r.TaxRate,
		})
	}

	return items
}

type paymentRequest struct {
	Form string `json:"form"`
	Code string `json:"code"`
}

type referenceRequest struct {
	Number          string    `json:"number"`
	Code            string    `json:"code"`
	IssueDate       time.Time `json:"issue_date"`
	DiscrepancyCode string    `json:"discrepancy_code"`
	Reason          string    `json:"reason"`
}

type createInvoiceRequest struct {
	DocumentType   invoice.DocumentType `json:"document_type,omitempty"`
	IssuedAt       time.Time            `json:"issued_at"`
	DueDate        *time.Time           `json:"due_date,omitempty"`
	Payment        paymentRequest       `json:"payment"`
	Supplier       partyRequest         `json:"supplier"`
	Customer       partyRequest         `json:"customer"`
	Items          []itemRequest        `json:"items"`
	GlobalDiscount decimal.Decimal      `json:"global_discount"`
	Note           string               `json:"note,omitempty"`
	Reference      *referenceRequest    `json:"reference,omitempty"`
}

type updateInvoiceRequest struct {
	DueDate        *time.Time       `json:"due_date,omitempty"`
	Payment        *paymentRequest  `json:"payment,omitempty"`
	Customer       *partyRequest    `json:"customer,omitempty"`
	Items          []itemRequest    `json:"items,omitempty"`
	GlobalDiscount *decimal.Decimal `json:"global_discount,omitempty"`
	Note           *string          `json:"note,omitempty"`
}

type voidRequest struct {
	Reason string `json:"reason"`
}
