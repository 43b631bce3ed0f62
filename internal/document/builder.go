// Package document renders invoices and notes as DIAN UBL 2.1 documents.
package document

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/MrJamesThe3rd/factura/internal/cufe"
	"github.com/MrJamesThe3rd/factura/internal/invoice"
)

// SignaturePlaceholder is the empty extension the signer fills with the ds:Signature block.
// Every built document contains it exactly once.
const SignaturePlaceholder = "<ext:ExtensionContent></ext:ExtensionContent>"

const timeLayout = "15:04:05-07:00"

// Software identifies the invoicing software registered with DIAN.
type Software struct {
	ID  string
	PIN string
	// ProviderNIT is the NIT of the software vendor; the supplier's own NIT when empty.
	ProviderNIT string
}

type kind struct {
	root          string
	namespace     string
	customization string
	profile       string
	line          string
	quantity      string
}

var kinds = map[invoice.DocumentType]kind{
	invoice.DocumentInvoice: {
		root:          "Invoice",
		namespace:     nsInvoice,
		customization: "10",
		profile:       "DIAN 2.1: Factura Electrónica de Venta",
		line:          "cac:InvoiceLine",
		quantity:      "cbc:InvoicedQuantity",
	},
	invoice.DocumentCreditNote: {
		root:          "CreditNote",
		namespace:     nsCreditNote,
		customization: "20",
		profile:       "DIAN 2.1: Nota Crédito de Factura Electrónica de Venta",
		line:          "cac:CreditNoteLine",
		quantity:      "cbc:CreditedQuantity",
	},
	invoice.DocumentDebitNote: {
		root:          "DebitNote",
		namespace:     nsDebitNote,
		customization: "30",
		profile:       "DIAN 2.1: Nota Débito de Factura Electrónica de Venta",
		line:          "cac:DebitNoteLine",
		quantity:      "cbc:DebitedQuantity",
	},
}

type Builder struct {
	software Software
	env      cufe.Environment
}

func NewBuilder(software Software, env cufe.Environment) *Builder {
	return &Builder{software: software, env: env}
}

// Build renders the canonical document bytes for a coded invoice. The output is fully
// determined by inv, code and the builder settings; the signer embeds its signature without
// touching any other byte.
func (b *Builder) Build(inv *invoice.Invoice, code string) ([]byte, error) {
	if err := b.check(inv, code); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(b.document(inv, code)); err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}

	out := buf.Bytes()
	if n := bytes.Count(out, []byte(SignaturePlaceholder)); n != 1 {
		return nil, fmt.Errorf("encoding document: found %d signature placeholders", n)
	}

	return out, nil
}

func (b *Builder) providerNIT(inv *invoice.Invoice) string {
	if b.software.ProviderNIT != "" {
		return b.software.ProviderNIT
	}

	return inv.Supplier.TaxID
}

func (b *Builder) document(inv *invoice.Invoice, code string) ublDocument {
	k := kinds[inv.DocumentType]
	issued := inv.IssuedAt.In(invoice.Bogota)

	doc := ublDocument{
		XMLName:        xml.Name{Local: k.root},
		Xmlns:          k.namespace,
		XmlnsCac:       nsCAC,
		XmlnsCbc:       nsCBC,
		XmlnsDs:        nsDS,
		XmlnsExt:       nsEXT,
		XmlnsSts:       nsSTS,
		XmlnsXades:     nsXADES,
		XmlnsXades141:  nsXADES141,
		XmlnsXsi:       nsXSI,
		SchemaLocation: k.namespace + " http://docs.oasis-open.org/ubl/os-UBL-2.1/xsd/maindoc/UBL-" + k.root + "-2.1.xsd",

		Extensions: ublExtensions{Items: []ublExtension{
			{Content: ublExtensionContent{Dian: b.dianExtensions(inv, code)}},
			{},
		}},
		UBLVersionID:       "UBL 2.1",
		CustomizationID:    k.customization,
		ProfileID:          k.profile,
		ProfileExecutionID: string(b.env),
		ID:                 inv.Number,
		UUID: ublIdentifier{
			SchemeID:   string(b.env),
			SchemeName: cufe.Scheme(inv.DocumentType),
			Value:      code,
		},
		IssueDate:            issued.Format(time.DateOnly),
		IssueTime:            issued.Format(timeLayout),
		DocumentCurrencyCode: inv.Currency,
		LineCountNumeric:     len(inv.Items),
		Supplier:             b.party(inv.Supplier, inv.Resolution.Prefix, false),
		Customer:             b.party(inv.Customer, "", true),
		PaymentMeans:         paymentMeans(inv),
		TaxTotals:            taxTotals(inv.Taxes),
	}

	switch inv.DocumentType {
	case invoice.DocumentInvoice:
		doc.InvoiceTypeCode = string(inv.DocumentType)
		if inv.DueDate != nil {
			doc.DueDate = inv.DueDate.In(invoice.Bogota).Format(time.DateOnly)
		}
	case invoice.DocumentCreditNote:
		doc.CreditNoteTypeCode = string(inv.DocumentType)
	}

	if note := text(inv.Note); note != "" {
		doc.Notes = []string{note}
	}

	if ref := inv.Reference; ref != nil && inv.DocumentType.IsNote() {
		doc.DiscrepancyResponse = &ublDiscrepancy{
			ReferenceID:  ref.Number,
			ResponseCode: ref.DiscrepancyCode,
			Description:  text(ref.Reason),
		}
		doc.BillingReference = &ublBillingReference{InvoiceDocumentReference: ublDocumentReference{
			ID:        ref.Number,
			UUID:      ublIdentifier{SchemeName: cufe.Scheme(invoice.DocumentInvoice), Value: ref.Code},
			IssueDate: ref.IssueDate.In(invoice.Bogota).Format(time.DateOnly),
		}}
	}

	if inv.Totals.Discount.IsPositive() {
		doc.AllowanceCharges = []ublAllowanceCharge{{
			ID:                    1,
			AllowanceChargeReason: "Descuento general",
			Amount:                amount(inv.Totals.Discount),
			BaseAmount:            amount(inv.Totals.Subtotal),
		}}
	}

	totals := &ublMonetaryTotal{
		LineExtensionAmount:  amount(inv.Totals.Subtotal),
		TaxExclusiveAmount:   amount(inv.Totals.TaxableBase),
		TaxInclusiveAmount:   amount(inv.Totals.TaxInclusive),
		AllowanceTotalAmount: amount(inv.Totals.Discount),
		PayableAmount:        amount(inv.Totals.Payable),
	}
	if inv.DocumentType == invoice.DocumentDebitNote {
		doc.RequestedTotal = totals
	} else {
		doc.LegalMonetaryTotal = totals
	}

	for _, it := range inv.Items {
		doc.Lines = append(doc.Lines, line(k, it))
	}

	return doc
}

func (b *Builder) dianExtensions(inv *invoice.Invoice, code string) *ublDianExtensions {
	provider := b.providerNIT(inv)
	providerDV, _ := invoice.CheckDigit(provider)

	ext := &ublDianExtensions{
		InvoiceSource: ublInvoiceSource{IdentificationCode: ublCode{
			ListAgencyID:   "6",
			ListAgencyName: "United Nations Economic Commission for Europe",
			ListSchemeURI:  "urn:oasis:names:specification:ubl:codelist:gc:CountryIdentificationCode-2.1",
			Value:          "CO",
		}},
		SoftwareProvider: ublSoftwareProvider{
			ProviderID: ublIdentifier{
				SchemeAgencyID:   dianAgencyID,
				SchemeAgencyName: dianAgencyName,
				SchemeID:         providerDV,
				SchemeName:       string(invoice.SchemeNIT),
				Value:            provider,
			},
			SoftwareID: ublIdentifier{
				SchemeAgencyID:   dianAgencyID,
				SchemeAgencyName: dianAgencyName,
				Value:            b.software.ID,
			},
		},
		SoftwareSecurityCode: ublIdentifier{
			SchemeAgencyID:   dianAgencyID,
			SchemeAgencyName: dianAgencyName,
			Value:            cufe.SoftwareSecurityCode(b.software.ID, b.software.PIN, inv.Number),
		},
		AuthorizationProvider: ublAuthorizationProvider{ID: ublIdentifier{
			SchemeAgencyID:   dianAgencyID,
			SchemeAgencyName: dianAgencyName,
			SchemeID:         "4",
			SchemeName:       string(invoice.SchemeNIT),
			Value:            dianNIT,
		}},
		QRCode: QRPayload(inv, code, b.env),
	}

	if inv.DocumentType == invoice.DocumentInvoice {
		res := inv.Resolution
		ext.InvoiceControl = &ublInvoiceControl{
			InvoiceAuthorization: res.Number,
			AuthorizationPeriod: ublPeriod{
				StartDate: res.ValidFrom.In(invoice.Bogota).Format(time.DateOnly),
				EndDate:   res.ValidTo.In(invoice.Bogota).Format(time.DateOnly),
			},
			AuthorizedInvoices: ublAuthorizedInvoices{Prefix: res.Prefix, From: res.From, To: res.To},
		}
	}

	return ext
}

func (b *Builder) party(p invoice.Party, prefix string, customer bool) ublAccountingParty {
	account := string(p.Kind)
	if account == "" {
		account = string(invoice.PartyLegal)
	}

	company := ublIdentifier{
		SchemeAgencyID:   dianAgencyID,
		SchemeAgencyName: dianAgencyName,
		SchemeName:       string(p.Scheme),
		Value:            p.TaxID,
	}
	if p.Scheme == invoice.SchemeNIT {
		company.SchemeID = p.CheckDigit
	}

	responsibilities := p.Responsibilities
	if responsibilities == "" {
		responsibilities = "R-99-PN"
	}

	scheme := ublTaxScheme{ID: string(invoice.TaxIVA), Name: invoice.TaxIVA.Name()}
	if responsibilities == "R-99-PN" {
		scheme = ublTaxScheme{ID: "ZZ", Name: "No aplica"}
	}

	name := text(p.LegalName)
	addr := address(p.Address)

	party := ublParty{
		PartyName:        []ublPartyName{{Name: name}},
		PhysicalLocation: &ublLocation{Address: addr},
		PartyTaxScheme: ublPartyTaxScheme{
			RegistrationName:    name,
			CompanyID:           company,
			TaxLevelCode:        ublCode{ListName: "48", Value: responsibilities},
			RegistrationAddress: &addr,
			TaxScheme:           scheme,
		},
		PartyLegalEntity: ublPartyLegalEntity{
			RegistrationName: name,
			CompanyID:        company,
		},
	}

	if prefix != "" {
		party.PartyLegalEntity.CorporateRegistrationScheme = &ublRegistrationScheme{ID: prefix}
	}

	if customer {
		party.PartyIdentification = &ublPartyIdentification{ID: ublIdentifier{
			SchemeID:   company.SchemeID,
			SchemeName: company.SchemeName,
			Value:      p.TaxID,
		}}
	}

	if p.Email != "" || p.Phone != "" {
		party.Contact = &ublContact{Telephone: text(p.Phone), ElectronicMail: text(p.Email)}
	}

	return ublAccountingParty{AdditionalAccountID: account, Party: party}
}

func address(a invoice.Address) ublAddress {
	return ublAddress{
		ID:                   a.CityCode,
		CityName:             text(a.City),
		PostalZone:           a.PostalCode,
		CountrySubentity:     text(a.Department),
		CountrySubentityCode: a.DepartmentCode,
		AddressLine:          ublAddressLine{Line: text(a.Line)},
		Country: ublCountry{
			IdentificationCode: a.Country,
			Name:               ublName{LanguageID: "es", Value: countryName(a.Country)},
		},
	}
}

func countryName(code string) string {
	if code == "CO" {
		return "Colombia"
	}

	return code
}

func paymentMeans(inv *invoice.Invoice) ublPaymentMeans {
	pm := ublPaymentMeans{ID: inv.Payment.Form, PaymentMeansCode: inv.Payment.Code}
	if pm.ID == "" {
		pm.ID = "1"
	}

	if pm.PaymentMeansCode == "" {
		pm.PaymentMeansCode = "10"
	}

	if inv.DueDate != nil {
		pm.PaymentDueDate = inv.DueDate.In(invoice.Bogota).Format(time.DateOnly)
	}

	return pm
}

// taxTotals emits one TaxTotal per tax type in DIAN order, each with a subtotal per rate.
func taxTotals(lines []invoice.TaxLine) []ublTaxTotal {
	sorted := append([]invoice.TaxLine(nil), lines...)
	invoice.SortTaxes(sorted)

	var out []ublTaxTotal

	for _, tt := range invoice.TaxOrder {
		total := ublTaxTotal{}
		sum := decimal.Zero

		for _, l := range sorted {
			if l.Type != tt {
				continue
			}

			sum = sum.Add(l.Amount)
			total.TaxSubtotals = append(total.TaxSubtotals, taxSubtotal(l.Type, l.Rate, l.Base, l.Amount))
		}

		if len(total.TaxSubtotals) == 0 {
			continue
		}

		total.TaxAmount = amount(sum)
		out = append(out, total)
	}

	return out
}

func taxSubtotal(tt invoice.TaxType, rate, base, tax decimal.Decimal) ublTaxSubtotal {
	return ublTaxSubtotal{
		TaxableAmount: amount(base),
		TaxAmount:     amount(tax),
		TaxCategory: ublTaxCategory{
			Percent:   percent(rate),
			TaxScheme: ublTaxScheme{ID: string(tt), Name: tt.Name()},
		},
	}
}

func line(k kind, it invoice.LineItem) ublLine {
	unit := it.UnitCode
	if unit == "" {
		unit = "94"
	}

	l := ublLine{
		XMLName:             xml.Name{Local: k.line},
		ID:                  it.Position,
		Quantity:            ublQuantity{XMLName: xml.Name{Local: k.quantity}, UnitCode: unit, Value: it.Quantity.String()},
		LineExtensionAmount: amount(it.Total),
		Item:                ublItem{Description: text(it.Description)},
		Price: ublPrice{
			PriceAmount:  amount(it.UnitPrice),
			BaseQuantity: ublQuantity{UnitCode: unit, Value: it.Quantity.String()},
		},
	}

	if it.ProductCode != "" {
		l.Item.StandardItemIdentification = &ublItemIdentifier{ID: ublIdentifier{SchemeID: "999", SchemeName: "Estándar de adopción del contribuyente", Value: it.ProductCode}}
	}

	if it.Discount.IsPositive() {
		l.AllowanceCharges = []ublAllowanceCharge{{
			ID:                    1,
			AllowanceChargeReason: "Descuento",
			Amount:                amount(invoice.Round(it.Discount)),
			BaseAmount:            amount(it.Subtotal),
		}}
	}

	if it.TaxType != "" {
		l.TaxTotals = []ublTaxTotal{{
			TaxAmount:    amount(it.TaxAmount),
			TaxSubtotals: []ublTaxSubtotal{taxSubtotal(it.TaxType, it.TaxRate, it.Total, it.TaxAmount)},
		}}
	}

	return l
}

func amount(d decimal.Decimal) ublAmount {
	return ublAmount{CurrencyID: "COP", Value: d.StringFixed(2)}
}

// percent keeps sub-hundredth rates such as the ICA per-mil tariffs intact.
func percent(rate decimal.Decimal) string {
	if rate.Exponent() < -2 {
		return rate.String()
	}

	return rate.StringFixed(2)
}

// text trims and NFC-normalises free text so equal strings always encode to equal bytes.
func text(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// QRPayload is the text DIAN expects in the QR code of the graphic representation.
func QRPayload(inv *invoice.Invoice, code string, env cufe.Environment) string {
	issued := inv.IssuedAt.In(invoice.Bogota)
	other := inv.TaxAmount(invoice.TaxINC).Add(inv.TaxAmount(invoice.TaxICA))

	label := "CUFE="
	if inv.DocumentType.IsNote() {
		label = "CUDE="
	}

	return strings.Join([]string{
		"NumFac=" + inv.Number,
		"FecFac=" + issued.Format(time.DateOnly),
		"HorFac=" + issued.Format(timeLayout),
		"NitFac=" + inv.Supplier.TaxID,
		"DocAdq=" + inv.Customer.TaxID,
		"ValFac=" + inv.Totals.Subtotal.StringFixed(2),
		"ValIva=" + inv.TaxAmount(invoice.TaxIVA).StringFixed(2),
		"ValOtroIm=" + other.StringFixed(2),
		"ValTolFac=" + inv.Totals.Payable.StringFixed(2),
		label + code,
		"QRCode=" + SearchURL(env, code),
	}, "\n")
}

// SearchURL is the public DIAN catalogue page of a document.
func SearchURL(env cufe.Environment, code string) string {
	host := "catalogo-vpfe.dian.gov.co"
	if env == cufe.Testing {
		host = "catalogo-vpfe-hab.dian.gov.co"
	}

	return "https://" + host + "/document/searchqr?documentkey=" + code
}
