package document

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/shopspring/decimal"
)

// Parsed is the business content read back from a built or signed document.
type Parsed struct {
	Root                 string
	Number               string
	Code                 string
	CodeScheme           string
	Environment          string
	IssueDate            string
	IssueTime            string
	Currency             string
	SupplierTaxID        string
	SupplierCheckDigit   string
	SupplierName         string
	CustomerTaxID        string
	CustomerName         string
	SoftwareSecurityCode string
	QRCode               string
	ReferenceNumber      string
	ReferenceCode        string
	Lines                []ParsedLine
	Taxes                []ParsedTax
	Subtotal             decimal.Decimal
	TaxExclusive         decimal.Decimal
	TaxInclusive         decimal.Decimal
	Discount             decimal.Decimal
	Payable              decimal.Decimal
	Signed               bool
}

type ParsedLine struct {
	ID          int
	Description string
	ProductCode string
	Quantity    decimal.Decimal
	UnitCode    string
	UnitPrice   decimal.Decimal
	Total       decimal.Decimal
	TaxAmount   decimal.Decimal
}

type ParsedTax struct {
	Type   string
	Rate   decimal.Decimal
	Base   decimal.Decimal
	Amount decimal.Decimal
}

// Element names below are matched by local name only.
type rawDocument struct {
	XMLName    xml.Name
	Extensions []struct {
		Content struct {
			Dian *struct {
				SecurityCode string `xml:"SoftwareSecurityCode"`
				QRCode       string `xml:"QRCode"`
			} `xml:"DianExtensions"`
			Signature *struct{} `xml:"Signature"`
		} `xml:"ExtensionContent"`
	} `xml:"UBLExtensions>UBLExtension"`
	ProfileExecutionID string `xml:"ProfileExecutionID"`
	ID                 string `xml:"ID"`
	UUID               struct {
		SchemeName string `xml:"schemeName,attr"`
		Value      string `xml:",chardata"`
	} `xml:"UUID"`
	IssueDate        string       `xml:"IssueDate"`
	IssueTime        string       `xml:"IssueTime"`
	Currency         string       `xml:"DocumentCurrencyCode"`
	BillingReference *struct {
		ID   string `xml:"ID"`
		UUID string `xml:"UUID"`
	} `xml:"BillingReference>InvoiceDocumentReference"`
	Supplier        rawParty       `xml:"AccountingSupplierParty>Party"`
	Customer        rawParty       `xml:"AccountingCustomerParty>Party"`
	TaxTotals       []rawTaxTotal  `xml:"TaxTotal"`
	LegalTotal      *rawTotal      `xml:"LegalMonetaryTotal"`
	RequestedTotal  *rawTotal      `xml:"RequestedMonetaryTotal"`
	InvoiceLines    []rawLine      `xml:"InvoiceLine"`
	CreditNoteLines []rawLine      `xml:"CreditNoteLine"`
	DebitNoteLines  []rawLine      `xml:"DebitNoteLine"`
}

type rawParty struct {
	TaxScheme struct {
		Name      string `xml:"RegistrationName"`
		CompanyID struct {
			SchemeID string `xml:"schemeID,attr"`
			Value    string `xml:",chardata"`
		} `xml:"CompanyID"`
	} `xml:"PartyTaxScheme"`
}

type rawTaxTotal struct {
	Amount    decimal.Decimal `xml:"TaxAmount"`
	Subtotals []struct {
		Base     decimal.Decimal `xml:"TaxableAmount"`
		Amount   decimal.Decimal `xml:"TaxAmount"`
		Percent  decimal.Decimal `xml:"TaxCategory>Percent"`
		SchemeID string          `xml:"TaxCategory>TaxScheme>ID"`
	} `xml:"TaxSubtotal"`
}

type rawTotal struct {
	LineExtension decimal.Decimal `xml:"LineExtensionAmount"`
	TaxExclusive  decimal.Decimal `xml:"TaxExclusiveAmount"`
	TaxInclusive  decimal.Decimal `xml:"TaxInclusiveAmount"`
	Allowance     decimal.Decimal `xml:"AllowanceTotalAmount"`
	Payable       decimal.Decimal `xml:"PayableAmount"`
}

type rawQuantity struct {
	UnitCode string `xml:"unitCode,attr"`
	Value    string `xml:",chardata"`
}

type rawLine struct {
	ID            int             `xml:"ID"`
	Invoiced      *rawQuantity    `xml:"InvoicedQuantity"`
	Credited      *rawQuantity    `xml:"CreditedQuantity"`
	Debited       *rawQuantity    `xml:"DebitedQuantity"`
	LineExtension decimal.Decimal `xml:"LineExtensionAmount"`
	TaxTotals     []rawTaxTotal   `xml:"TaxTotal"`
	Description   string          `xml:"Item>Description"`
	ProductCode   string          `xml:"Item>StandardItemIdentification>ID"`
	Price         decimal.Decimal `xml:"Price>PriceAmount"`
}

// Parse reads the business fields of an Invoice, CreditNote or DebitNote document.
func Parse(data []byte) (*Parsed, error) {
	var raw rawDocument
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}

	switch raw.XMLName.Local {
	case "Invoice", "CreditNote", "DebitNote":
	default:
		return nil, fmt.Errorf("parsing document: unexpected root element %q", raw.XMLName.Local)
	}

	p := &Parsed{
		Root:               raw.XMLName.Local,
		Number:             raw.ID,
		Code:               raw.UUID.Value,
		CodeScheme:         raw.UUID.SchemeName,
		Environment:        raw.ProfileExecutionID,
		IssueDate:          raw.IssueDate,
		IssueTime:          raw.IssueTime,
		Currency:           raw.Currency,
		SupplierTaxID:      raw.Supplier.TaxScheme.CompanyID.Value,
		SupplierCheckDigit: raw.Supplier.TaxScheme.CompanyID.SchemeID,
		SupplierName:       raw.Supplier.TaxScheme.Name,
		CustomerTaxID:      raw.Customer.TaxScheme.CompanyID.Value,
		CustomerName:       raw.Customer.TaxScheme.Name,
	}

	for _, ext := range raw.Extensions {
		if d := ext.Content.Dian; d != nil {
			p.SoftwareSecurityCode = d.SecurityCode
			p.QRCode = d.QRCode
		}

		if ext.Content.Signature != nil {
			p.Signed = true
		}
	}

	if ref := raw.BillingReference; ref != nil {
		p.ReferenceNumber = ref.ID
		p.ReferenceCode = ref.UUID
	}

	for _, tt := range raw.TaxTotals {
		for _, s := range tt.Subtotals {
			p.Taxes = append(p.Taxes, ParsedTax{Type: s.SchemeID, Rate: s.Percent, Base: s.Base, Amount: s.Amount})
		}
	}

	total := raw.LegalTotal
	if total == nil {
		total = raw.RequestedTotal
	}

	if total != nil {
		p.Subtotal = total.LineExtension
		p.TaxExclusive = total.TaxExclusive
		p.TaxInclusive = total.TaxInclusive
		p.Discount = total.Allowance
		p.Payable = total.Payable
	}

	lines := raw.InvoiceLines
	lines = append(lines, raw.CreditNoteLines...)
	lines = append(lines, raw.DebitNoteLines...)

	for _, l := range lines {
		pl, err := l.parsed()
		if err != nil {
			return nil, fmt.Errorf("parsing line %d: %w", l.ID, err)
		}

		p.Lines = append(p.Lines, pl)
	}

	return p, nil
}

func (l rawLine) parsed() (ParsedLine, error) {
	q := l.Invoiced
	if q == nil {
		q = l.Credited
	}

	if q == nil {
		q = l.Debited
	}

	out := ParsedLine{
		ID:          l.ID,
		Description: l.Description,
		ProductCode: l.ProductCode,
		UnitPrice:   l.Price,
		Total:       l.LineExtension,
	}

	if q != nil {
		qty, err := decimal.NewFromString(q.Value)
		if err != nil {
			return ParsedLine{}, fmt.Errorf("quantity: %w", err)
		}

		out.Quantity = qty
		out.UnitCode = q.UnitCode
	}

	for _, tt := range l.TaxTotals {
		out.TaxAmount = out.TaxAmount.Add(tt.Amount)
	}

	return out, nil
}
