package document_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/factura/internal/cufe"
	"github.com/MrJamesThe3rd/factura/internal/document"
	"github.com/MrJamesThe3rd/factura/internal/invoice"
	"github.com/MrJamesThe3rd/factura/internal/signer"
)

func signingMaterial(t *testing.T) signer.Material {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "Ferretería El Tornillo SAS"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().AddDate(1, 0, 0),
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return signer.Material{
		Format:      signer.FormatPEM,
		Certificate: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		Key:         pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}),
	}
}

func TestBuildSignParse_RoundTrip(t *testing.T) {
	discounted := line("Taladro percutor", "2", "250000.50", invoice.TaxIVA, "19")
	discounted.Discount = dec("1000")

	inv := sampleInvoice(
		line("Martillo", "1000", "0.01", invoice.TaxIVA, "19"),
		discounted,
		line("Almuerzo", "3", "15000", invoice.TaxINC, "8"),
		line("Servicio excluido", "1", "0", "", ""),
	)
	require.NoError(t, invoice.Validate(inv, invoice.DefaultLimits()))

	code := codeFor(t, inv)

	unsigned, err := document.NewBuilder(software, cufe.Testing).Build(inv, code)
	require.NoError(t, err)

	signed, err := signer.New().Sign(unsigned, signingMaterial(t))
	require.NoError(t, err)

	_, err = signer.Verify(signed.Document)
	require.NoError(t, err)

	got, err := document.Parse(signed.Document)
	require.NoError(t, err)

	assert.True(t, got.Signed)
	assert.Equal(t, "Invoice", got.Root)
	assert.Equal(t, inv.Number, got.Number)
	assert.Equal(t, code, got.Code)
	assert.Equal(t, "CUFE-SHA384", got.CodeScheme)
	assert.Equal(t, "2", got.Environment)
	assert.Equal(t, "2024-03-15", got.IssueDate)
	assert.Equal(t, "10:30:00-05:00", got.IssueTime)
	assert.Equal(t, "COP", got.Currency)
	assert.Equal(t, inv.Supplier.TaxID, got.SupplierTaxID)
	assert.Equal(t, "8", got.SupplierCheckDigit)
	assert.Equal(t, "Ferretería El Tornillo SAS", got.SupplierName)
	assert.Equal(t, inv.Customer.TaxID, got.CustomerTaxID)
	assert.Equal(t, cufe.SoftwareSecurityCode(software.ID, software.PIN, inv.Number), got.SoftwareSecurityCode)
	assert.Equal(t, document.QRPayload(inv, code, cufe.Testing), got.QRCode)

	assert.True(t, got.Subtotal.Equal(inv.Totals.Subtotal), "subtotal %s", got.Subtotal)
	assert.True(t, got.TaxInclusive.Equal(inv.Totals.TaxInclusive))
	assert.True(t, got.Payable.Equal(inv.Totals.Payable))

	require.Len(t, got.Lines, len(inv.Items))

	for i, it := range inv.Items {
		l := got.Lines[i]
		assert.Equal(t, it.Position, l.ID)
		assert.Equal(t, it.Description, l.Description)
		assert.True(t, l.Quantity.Equal(it.Quantity), "line %d quantity %s", i, l.Quantity)
		assert.True(t, l.UnitPrice.Equal(it.UnitPrice), "line %d price %s", i, l.UnitPrice)
		assert.True(t, l.Total.Equal(it.Total), "line %d total %s", i, l.Total)
		assert.True(t, l.TaxAmount.Equal(it.TaxAmount), "line %d tax %s", i, l.TaxAmount)
	}

	recomputed, err := cufe.Generate(cufe.Params{
		Number:      got.Number,
		IssuedAt:    inv.IssuedAt,
		Subtotal:    got.Subtotal,
		IVA:         inv.TaxAmount(invoice.TaxIVA),
		INC:         inv.TaxAmount(invoice.TaxINC),
		Total:       got.Payable,
		SupplierNIT: got.SupplierTaxID,
		CustomerID:  got.CustomerTaxID,
		Key:         keys.TechnicalKey,
		Environment: cufe.Environment(got.Environment),
	})
	require.NoError(t, err)
	assert.Equal(t, got.Code, recomputed)
}

func TestParse_Unsigned(t *testing.T) {
	inv := sampleInvoice()

	out, err := document.NewBuilder(software, cufe.Testing).Build(inv, codeFor(t, inv))
	require.NoError(t, err)

	got, err := document.Parse(out)
	require.NoError(t, err)
	assert.False(t, got.Signed)
}

func TestParse_RejectsOtherDocuments(t *testing.T) {
	_, err := document.Parse([]byte(`<ApplicationResponse/>`))
	assert.Error(t, err)

	_, err = document.Parse([]byte(`<Invoice>`))
	assert.Error(t, err)
}
