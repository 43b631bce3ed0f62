package render_test

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/factura/internal/cufe"
	"github.com/MrJamesThe3rd/factura/internal/document"
	"github.com/MrJamesThe3rd/factura/internal/invoice"
	"github.com/MrJamesThe3rd/factura/internal/render"
	"github.com/MrJamesThe3rd/factura/internal/signer"
)

var software = document.Software{ID: "56f2ae4e-9812-4fad-9255-08fcfcd5ccb0", PIN: "12345"}

func acceptedInvoice(t *testing.T) (*invoice.Invoice, []byte) {
	t.Helper()

	inv := &invoice.Invoice{
		DocumentType: invoice.DocumentInvoice,
		Number:       "SETP990000002",
		Sequence:     990000002,
		Resolution: invoice.BillingResolution{
			Number:    "18760000001",
			Prefix:    "SETP",
			From:      990000000,
			To:        995000000,
			ValidFrom: time.Date(2019, 1, 19, 0, 0, 0, 0, invoice.Bogota),
			ValidTo:   time.Date(2030, 1, 19, 0, 0, 0, 0, invoice.Bogota),
		},
		IssuedAt: time.Date(2024, 3, 15, 10, 30, 0, 0, invoice.Bogota),
		Currency: "COP",
		Payment:  invoice.PaymentMeans{Form: "1", Code: "10"},
		Supplier: invoice.Party{
			Kind:             invoice.PartyLegal,
			TaxID:            "900123456",
			Scheme:           invoice.SchemeNIT,
			LegalName:        "Ferretería El Tornillo SAS",
			Responsibilities: "O-13",
			Address:          invoice.Address{Line: "Cra 7 # 12-34", CityCode: "11001", City: "Bogotá", DepartmentCode: "11", Department: "Bogotá", Country: "CO"},
		},
		Customer: invoice.Party{
			Kind:      invoice.PartyLegal,
			TaxID:     "800987654",
			Scheme:    invoice.SchemeNIT,
			LegalName: "Constructora Andina SA",
			Address:   invoice.Address{Line: "Cl 100 # 8-20", CityCode: "05001", City: "Medellín", DepartmentCode: "05", Department: "Antioquia", Country: "CO"},
			Email:     "compras@andina.co",
		},
		Items: []invoice.LineItem{
			{ProductCode: "P-MAR", Description: "Martillo de uña 16 oz", Quantity: decimal.NewFromInt(2), UnitCode: "94", UnitPrice: decimal.NewFromInt(50000), TaxType: invoice.TaxIVA, TaxRate: decimal.NewFromInt(19)},
			{ProductCode: "P-TOR", Description: "Caja de tornillos drywall 6 x 1 pulgada, 500 unidades, punta fina", Quantity: decimal.NewFromInt(3), UnitCode: "94", UnitPrice: decimal.NewFromInt(18500)},
		},
		Status:  invoice.StatusAccepted,
		TrackID: "0f1c2d3e",
	}
	inv.Compute()

	code, err := cufe.Generate(cufe.FromInvoice(inv, cufe.Keys{TechnicalKey: "fc8eac422eba16e22ffd8c6f94b3f40a6e38162c"}, cufe.Testing))
	require.NoError(t, err)

	inv.Code = code

	unsigned, err := document.NewBuilder(software, cufe.Testing).Build(inv, code)
	require.NoError(t, err)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(3),
		Subject:      pkix.Name{CommonName: "Ferretería El Tornillo SAS"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().AddDate(1, 0, 0),
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	signed, err := signer.New().Sign(unsigned, signer.Material{
		Format:      signer.FormatPEM,
		Certificate: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		Key:         pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}),
	})
	require.NoError(t, err)

	inv.SignedDocument = signed.Document

	return inv, unsigned
}

func TestRenderer_Render(t *testing.T) {
	inv, _ := acceptedInvoice(t)
	r := render.New()

	first, err := r.Render(inv)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(first, []byte("%PDF-")))

	second, err := r.Render(inv)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRenderer_Render_RequiresSignedDocument(t *testing.T) {
	inv, unsigned := acceptedInvoice(t)
	r := render.New()

	inv.SignedDocument = nil
	_, err := r.Render(inv)
	assert.ErrorIs(t, err, render.ErrUnsigned)

	inv.SignedDocument = unsigned
	_, err = r.Render(inv)
	assert.ErrorIs(t, err, render.ErrUnsigned)

	inv.SignedDocument = []byte("<html/>")
	_, err = r.Render(inv)
	assert.Error(t, err)
}
