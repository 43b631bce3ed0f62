package document

import "encoding/xml"

// Field order in these structs follows the UBL 2.1 XSD sequences; encoding/xml emits
// struct fields in declaration order, which keeps the output byte-stable.

const (
	nsInvoice    = "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
	nsCreditNote = "urn:oasis:names:specification:ubl:schema:xsd:CreditNote-2"
	nsDebitNote  = "urn:oasis:names:specification:ubl:schema:xsd:DebitNote-2"
	nsCAC        = "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
	nsCBC        = "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"
	nsDS         = "http://www.w3.org/2000/09/xmldsig#"
	nsEXT        = "urn:oasis:names:specification:ubl:schema:xsd:CommonExtensionComponents-2"
	nsSTS        = "dian:gov:co:facturaelectronica:Structures-2-1"
	nsXADES      = "http://uri.etsi.org/01903/v1.3.2#"
	nsXADES141   = "http://uri.etsi.org/01903/v1.4.1#"
	nsXSI        = "http://www.w3.org/2001/XMLSchema-instance"

	dianAgencyID   = "195"
	dianAgencyName = "CO, DIAN (Dirección de Impuestos y Aduanas Nacionales)"
	// NIT of DIAN, the authorization provider for every document.
	dianNIT = "800197268"
)

type ublDocument struct {
	XMLName        xml.Name
	Xmlns          string `xml:"xmlns,attr"`
	XmlnsCac       string `xml:"xmlns:cac,attr"`
	XmlnsCbc       string `xml:"xmlns:cbc,attr"`
	XmlnsDs        string `xml:"xmlns:ds,attr"`
	XmlnsExt       string `xml:"xmlns:ext,attr"`
	XmlnsSts       string `xml:"xmlns:sts,attr"`
	XmlnsXades     string `xml:"xmlns:xades,attr"`
	XmlnsXades141  string `xml:"xmlns:xades141,attr"`
	XmlnsXsi       string `xml:"xmlns:xsi,attr"`
	SchemaLocation string `xml:"xsi:schemaLocation,attr"`

	Extensions           ublExtensions        `xml:"ext:UBLExtensions"`
	UBLVersionID         string               `xml:"cbc:UBLVersionID"`
	CustomizationID      string               `xml:"cbc:CustomizationID"`
	ProfileID            string               `xml:"cbc:ProfileID"`
	ProfileExecutionID   string               `xml:"cbc:ProfileExecutionID"`
	ID                   string               `xml:"cbc:ID"`
	UUID                 ublIdentifier        `xml:"cbc:UUID"`
	IssueDate            string               `xml:"cbc:IssueDate"`
	IssueTime            string               `xml:"cbc:IssueTime"`
	DueDate              string               `xml:"cbc:DueDate,omitempty"`
	InvoiceTypeCode      string               `xml:"cbc:InvoiceTypeCode,omitempty"`
	CreditNoteTypeCode   string               `xml:"cbc:CreditNoteTypeCode,omitempty"`
	Notes                []string             `xml:"cbc:Note,omitempty"`
	DocumentCurrencyCode string               `xml:"cbc:DocumentCurrencyCode"`
	LineCountNumeric     int                  `xml:"cbc:LineCountNumeric"`
	DiscrepancyResponse  *ublDiscrepancy      `xml:"cac:DiscrepancyResponse,omitempty"`
	BillingReference     *ublBillingReference `xml:"cac:BillingReference,omitempty"`
	Supplier             ublAccountingParty   `xml:"cac:AccountingSupplierParty"`
	Customer             ublAccountingParty   `xml:"cac:AccountingCustomerParty"`
	PaymentMeans         ublPaymentMeans      `xml:"cac:PaymentMeans"`
	AllowanceCharges     []ublAllowanceCharge `xml:"cac:AllowanceCharge,omitempty"`
	TaxTotals            []ublTaxTotal        `xml:"cac:TaxTotal,omitempty"`
	LegalMonetaryTotal   *ublMonetaryTotal    `xml:"cac:LegalMonetaryTotal,omitempty"`
	RequestedTotal       *ublMonetaryTotal    `xml:"cac:RequestedMonetaryTotal,omitempty"`
	Lines                []ublLine
}

type ublExtensions struct {
	Items []ublExtension `xml:"ext:UBLExtension"`
}

type ublExtension struct {
	Content ublExtensionContent `xml:"ext:ExtensionContent"`
}

type ublExtensionContent struct {
	Dian *ublDianExtensions `xml:"sts:DianExtensions,omitempty"`
}

type ublDianExtensions struct {
	InvoiceControl        *ublInvoiceControl       `xml:"sts:InvoiceControl,omitempty"`
	InvoiceSource         ublInvoiceSource         `xml:"sts:InvoiceSource"`
	SoftwareProvider      ublSoftwareProvider      `xml:"sts:SoftwareProvider"`
	SoftwareSecurityCode  ublIdentifier            `xml:"sts:SoftwareSecurityCode"`
	AuthorizationProvider ublAuthorizationProvider `xml:"sts:AuthorizationProvider"`
	QRCode                string                   `xml:"sts:QRCode"`
}

type ublInvoiceControl struct {
	InvoiceAuthorization string                `xml:"sts:InvoiceAuthorization"`
	AuthorizationPeriod  ublPeriod             `xml:"sts:AuthorizationPeriod"`
	AuthorizedInvoices   ublAuthorizedInvoices `xml:"sts:AuthorizedInvoices"`
}

type ublPeriod struct {
	StartDate string `xml:"cbc:StartDate"`
	EndDate   string `xml:"cbc:EndDate"`
}

type ublAuthorizedInvoices struct {
	Prefix string `xml:"sts:Prefix,omitempty"`
	From   int64  `xml:"sts:From"`
	To     int64  `xml:"sts:To"`
}

type ublInvoiceSource struct {
	IdentificationCode ublCode `xml:"cbc:IdentificationCode"`
}

type ublSoftwareProvider struct {
	ProviderID ublIdentifier `xml:"sts:ProviderID"`
	SoftwareID ublIdentifier `xml:"sts:SoftwareID"`
}

type ublAuthorizationProvider struct {
	ID ublIdentifier `xml:"sts:AuthorizationProviderID"`
}

type ublIdentifier struct {
	SchemeAgencyID   string `xml:"schemeAgencyID,attr,omitempty"`
	SchemeAgencyName string `xml:"schemeAgencyName,attr,omitempty"`
	SchemeID         string `xml:"schemeID,attr,omitempty"`
	SchemeName       string `xml:"schemeName,attr,omitempty"`
	Value            string `xml:",chardata"`
}

type ublCode struct {
	ListAgencyID   string `xml:"listAgencyID,attr,omitempty"`
	ListAgencyName string `xml:"listAgencyName,attr,omitempty"`
	ListSchemeURI  string `xml:"listSchemeURI,attr,omitempty"`
	ListName       string `xml:"listName,attr,omitempty"`
	Value          string `xml:",chardata"`
}

type ublName struct {
	LanguageID string `xml:"languageID,attr,omitempty"`
	Value      string `xml:",chardata"`
}

type ublAmount struct {
	CurrencyID string `xml:"currencyID,attr"`
	Value      string `xml:",chardata"`
}

type ublQuantity struct {
	XMLName  xml.Name
	UnitCode string `xml:"unitCode,attr"`
	Value    string `xml:",chardata"`
}

type ublDiscrepancy struct {
	ReferenceID  string `xml:"cbc:ReferenceID"`
	ResponseCode string `xml:"cbc:ResponseCode"`
	Description  string `xml:"cbc:Description"`
}

type ublBillingReference struct {
	InvoiceDocumentReference ublDocumentReference `xml:"cac:InvoiceDocumentReference"`
}

type ublDocumentReference struct {
	ID        string        `xml:"cbc:ID"`
	UUID      ublIdentifier `xml:"cbc:UUID"`
	IssueDate string        `xml:"cbc:IssueDate"`
}

type ublAccountingParty struct {
	AdditionalAccountID string   `xml:"cbc:AdditionalAccountID"`
	Party               ublParty `xml:"cac:Party"`
}

type ublParty struct {
	PartyIdentification *ublPartyIdentification `xml:"cac:PartyIdentification,omitempty"`
	PartyName           []ublPartyName          `xml:"cac:PartyName"`
	PhysicalLocation    *ublLocation            `xml:"cac:PhysicalLocation,omitempty"`
	PartyTaxScheme      ublPartyTaxScheme       `xml:"cac:PartyTaxScheme"`
	PartyLegalEntity    ublPartyLegalEntity     `xml:"cac:PartyLegalEntity"`
	Contact             *ublContact             `xml:"cac:Contact,omitempty"`
}

type ublPartyIdentification struct {
	ID ublIdentifier `xml:"cbc:ID"`
}

type ublPartyName struct {
	Name string `xml:"cbc:Name"`
}

type ublLocation struct {
	Address ublAddress `xml:"cac:Address"`
}

type ublAddress struct {
	ID                   string         `xml:"cbc:ID,omitempty"`
	CityName             string         `xml:"cbc:CityName,omitempty"`
	PostalZone           string         `xml:"cbc:PostalZone,omitempty"`
	CountrySubentity     string         `xml:"cbc:CountrySubentity,omitempty"`
	CountrySubentityCode string         `xml:"cbc:CountrySubentityCode,omitempty"`
	AddressLine          ublAddressLine `xml:"cac:AddressLine"`
	Country              ublCountry     `xml:"cac:Country"`
}

type ublAddressLine struct {
	Line string `xml:"cbc:Line"`
}

type ublCountry struct {
	IdentificationCode string  `xml:"cbc:IdentificationCode"`
	Name               ublName `xml:"cbc:Name"`
}

type ublPartyTaxScheme struct {
	RegistrationName    string        `xml:"cbc:RegistrationName"`
	CompanyID           ublIdentifier `xml:"cbc:CompanyID"`
	TaxLevelCode        ublCode       `xml:"cbc:TaxLevelCode"`
	RegistrationAddress *ublAddress   `xml:"cac:RegistrationAddress,omitempty"`
	TaxScheme           ublTaxScheme  `xml:"cac:TaxScheme"`
}

type ublPartyLegalEntity struct {
	RegistrationName            string                  `xml:"cbc:RegistrationName"`
	CompanyID                   ublIdentifier           `xml:"cbc:CompanyID"`
	CorporateRegistrationScheme *ublRegistrationScheme `xml:"cac:CorporateRegistrationScheme,omitempty"`
}

type ublRegistrationScheme struct {
	ID string `xml:"cbc:ID"`
}

type ublContact struct {
	Telephone      string `xml:"cbc:Telephone,omitempty"`
	ElectronicMail string `xml:"cbc:ElectronicMail,omitempty"`
}

type ublTaxScheme struct {
	ID   string `xml:"cbc:ID"`
	Name string `xml:"cbc:Name"`
}

type ublPaymentMeans struct {
	ID               string `xml:"cbc:ID"`
	PaymentMeansCode string `xml:"cbc:PaymentMeansCode"`
	PaymentDueDate   string `xml:"cbc:PaymentDueDate,omitempty"`
}

type ublAllowanceCharge struct {
	ID                      int       `xml:"cbc:ID"`
	ChargeIndicator         bool      `xml:"cbc:ChargeIndicator"`
	AllowanceChargeReason   string    `xml:"cbc:AllowanceChargeReason,omitempty"`
	MultiplierFactorNumeric string    `xml:"cbc:MultiplierFactorNumeric,omitempty"`
	Amount                  ublAmount `xml:"cbc:Amount"`
	BaseAmount              ublAmount `xml:"cbc:BaseAmount"`
}

type ublTaxTotal struct {
	TaxAmount    ublAmount        `xml:"cbc:TaxAmount"`
	TaxSubtotals []ublTaxSubtotal `xml:"cac:TaxSubtotal"`
}

type ublTaxSubtotal struct {
	TaxableAmount ublAmount      `xml:"cbc:TaxableAmount"`
	TaxAmount     ublAmount      `xml:"cbc:TaxAmount"`
	TaxCategory   ublTaxCategory `xml:"cac:TaxCategory"`
}

type ublTaxCategory struct {
	Percent   string       `xml:"cbc:Percent"`
	TaxScheme ublTaxScheme `xml:"cac:TaxScheme"`
}

type ublMonetaryTotal struct {
	LineExtensionAmount  ublAmount `xml:"cbc:LineExtensionAmount"`
	TaxExclusiveAmount   ublAmount `xml:"cbc:TaxExclusiveAmount"`
	TaxInclusiveAmount   ublAmount `xml:"cbc:TaxInclusiveAmount"`
	AllowanceTotalAmount ublAmount `xml:"cbc:AllowanceTotalAmount"`
	PayableAmount        ublAmount `xml:"cbc:PayableAmount"`
}

// ublLine takes its element name (InvoiceLine, CreditNoteLine, DebitNoteLine) from XMLName.
type ublLine struct {
	XMLName             xml.Name
	ID                  int                  `xml:"cbc:ID"`
	Quantity            ublQuantity
	LineExtensionAmount ublAmount            `xml:"cbc:LineExtensionAmount"`
	AllowanceCharges    []ublAllowanceCharge `xml:"cac:AllowanceCharge,omitempty"`
	TaxTotals           []ublTaxTotal        `xml:"cac:TaxTotal,omitempty"`
	Item                ublItem              `xml:"cac:Item"`
	Price               ublPrice             `xml:"cac:Price"`
}

type ublItem struct {
	Description                string            `xml:"cbc:Description"`
	StandardItemIdentification *ublItemIdentifier `xml:"cac:StandardItemIdentification,omitempty"`
}

type ublItemIdentifier struct {
	ID ublIdentifier `xml:"cbc:ID"`
}

type ublPrice struct {
	PriceAmount  ublAmount   `xml:"cbc:PriceAmount"`
	BaseQuantity ublQuantity `xml:"cbc:BaseQuantity"`
}
