package invoice

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/factura/internal/invoice"
)

type itemResponse struct {
	Position    int             `json:"position"`
	ProductCode string          `json:"product_code"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCode    string          `json:"unit_code"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxType     invoice.TaxType `json:"tax_type,omitempty"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	Total       decimal.Decimal `json:"total"`
}

type totalsResponse struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	TaxTotal     decimal.Decimal `json:"tax_total"`
	Discount     decimal.Decimal `json:"discount"`
	TaxInclusive decimal.Decimal `json:"tax_inclusive"`
	Payable      decimal.Decimal `json:"payable"`
}

type invoiceResponse struct {
	ID           uuid.UUID            `json:"id"`
	DocumentType invoice.DocumentType `json:"document_type"`
	Number       string               `json:"number"`
	Status       invoice.Status       `json:"status"`
	IssuedAt     time.Time            `json:"issued_at"`
	Currency     string               `json:"currency"`
	SupplierID   string               `json:"supplier_tax_id"`
	CustomerID   string               `json:"customer_tax_id"`
	CustomerName string               `json:"customer_name"`
	Items        []itemResponse       `json:"items,omitempty"`
	Totals       totalsResponse       `json:"totals"`
	Code         string               `json:"code,omitempty"`
	TrackID      string               `json:"track_id,omitempty"`
	VoidReason   string               `json:"void_reason,omitempty"`
	HasDocument  bool                 `json:"has_document"`
	HasPDF       bool                 `json:"has_pdf"`
	CreatedAt    time.Time            `json:"created_at"`
}

func toResponse(inv *invoice.Invoice) invoiceResponse {
	resp := invoiceResponse{
		ID:           inv.ID,
		DocumentType: inv.DocumentType,
		Number:       inv.Number,
		Status:       inv.Status,
		IssuedAt:     inv.IssuedAt,
		Currency:     inv.Currency,
		SupplierID:   inv.Supplier.TaxID,
		CustomerID:   inv.Customer.TaxID,
		CustomerName: inv.Customer.LegalName,
		Totals: totalsResponse{
			Subtotal:     inv.Totals.Subtotal,
			TaxTotal:     inv.Totals.TaxTotal,
			Discount:     inv.Totals.Discount,
			TaxInclusive: inv.Totals.TaxInclusive,
			Payable:      inv.Totals.Payable,
		},
		Code:        inv.Code,
		TrackID:     inv.TrackID,
		VoidReason:  inv.VoidReason,
		HasDocument: len(inv.SignedDocument) > 0,
		HasPDF:      len(inv.PDF) > 0,
		CreatedAt:   inv.CreatedAt,
	}

	for _, it := range inv.Items {
		resp.Items = append(resp.Items, itemResponse{
			Position:    it.Position,
			ProductCode: it.ProductCode,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitCode:    it.UnitCode,
			UnitPrice:   it.UnitPrice,
			TaxType:     it.TaxType,
			TaxRate:     it.TaxRate,
			TaxAmount:   it.TaxAmount,
			Total:       it.Total,
		})
	}

	return resp
}

func toResponseList(invs []*invoice.Invoice) []invoiceResponse {
	resp := make([]invoiceResponse, 0, len(invs))
	for _, inv := range invs {
		resp = append(resp, toResponse(inv))
	}

	return resp
}

type attemptResponse struct {
	Sequence       int                      `json:"sequence"`
	StartedAt      time.Time                `json:"started_at"`
	FinishedAt     time.Time                `json:"finished_at"`
	IdempotencyKey string                   `json:"idempotency_key"`
	Outcome        invoice.Outcome          `json:"outcome"`
	StatusCode     string                   `json:"status_code,omitempty"`
	TrackID        string                   `json:"track_id,omitempty"`
	Errors         []invoice.AuthorityError `json:"errors,omitempty"`
	Cause          string                   `json:"cause,omitempty"`
}

func toAttemptList(attempts []*invoice.SubmissionAttempt) []attemptResponse {
	resp := make([]attemptResponse, 0, len(attempts))
	for _, a := range attempts {
		resp = append(resp, attemptResponse{
			Sequence:       a.Sequence,
			StartedAt:      a.StartedAt,
			FinishedAt:     a.FinishedAt,
			IdempotencyKey: a.IdempotencyKey,
			Outcome:        a.Outcome,
			StatusCode:     a.StatusCode,
			TrackID:        a.TrackID,
			Errors:         a.Errors,
			Cause:          a.Cause,
		})
	}

	return resp
}
