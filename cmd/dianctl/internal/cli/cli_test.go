package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/factura/cmd/dianctl/internal/cli"
	"github.com/MrJamesThe3rd/factura/internal/http/auth"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := cli.NewRootCmdForTest()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return buf.String(), err
}

func TestCufeCommand(t *testing.T) {
	out, err := run(t, "cufe",
		"--number", "323200000129",
		"--issued", "2019-01-16T10:53:10-05:00",
		"--subtotal", "1500000",
		"--iva", "285000",
		"--total", "1785000",
		"--supplier", "700085371",
		"--customer", "800199436",
		"--key", "693ff6f2a553c3646a063436fd4dd9ded0311471",
		"--env", "1",
		"--show-input",
	)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "3232000001292019-01-1610:53:10-05:001500000.0001285000.00040.00030.001785000.00700085371800199436693ff6f2a553c3646a063436fd4dd9ded03114711", lines[0])
	assert.Equal(t, "8bb918b19ba22a694f1da11c643b5e9de39adf60311cf179179e9b33381030bcd4c3c3f156c506ed5908f9276f5bd9b4", lines[1])
}

func TestCufeCommand_Invalid(t *testing.T) {
	type testCase struct {
		name string
		args []string
	}

	base := []string{"cufe", "--number", "F1", "--total", "1", "--supplier", "1", "--customer", "2", "--key", "k"}

	tests := []testCase{
		{name: "MissingIssued", args: base},
		{name: "BadIssued", args: append(base, "--issued", "2024-03-15 10:30")},
		{name: "BadEnvironment", args: append(base, "--issued", "2024-03-15T10:30:00-05:00", "--env", "3")},
		{name: "BadAmount", args: append(base, "--issued", "2024-03-15T10:30:00-05:00", "--iva", "x")},
		{name: "NegativeAmount", args: append(base, "--issued", "2024-03-15T10:30:00-05:00", "--iva", "-1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestNITCommand(t *testing.T) {
	out, err := run(t, "nit", "900123456", "900.123.456-8", "800199436")
	require.NoError(t, err)

	assert.Contains(t, out, "900123456-8\n")
	assert.Contains(t, out, "900123456-8 ok\n")

	out, err = run(t, "nit", "900123456-7")
	require.Error(t, err)
	assert.Contains(t, out, "mismatch, expected 8")

	_, err = run(t, "nit", "90012A456")
	assert.Error(t, err)
}

func TestVerifyCommand_NotSigned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.xml")
	require.NoError(t, os.WriteFile(path, []byte("<Invoice/>"), 0o600))

	_, err := run(t, "verify", path)
	assert.Error(t, err)

	_, err = run(t, "verify", filepath.Join(t.TempDir(), "missing.xml"))
	assert.Error(t, err)
}

const inspectDoc = `<?xml version="1.0" encoding="UTF-8"?>
<Invoice xmlns="urn:oasis:names:specification:ubl:schema:xsd:Invoice-2" xmlns:cac="urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2" xmlns:cbc="urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2">
<cbc:ProfileExecutionID>2</cbc:ProfileExecutionID>
<cbc:ID>SETP990000002</cbc:ID>
<cbc:UUID schemeName="CUFE-SHA384">941cf36af62dbbc06f105d2a80e9bfe683a90e84</cbc:UUID>
<cbc:IssueDate>2024-03-15</cbc:IssueDate>
<cbc:IssueTime>10:30:00-05:00</cbc:IssueTime>
<cbc:DocumentCurrencyCode>COP</cbc:DocumentCurrencyCode>
<cac:LegalMonetaryTotal><cbc:PayableAmount currencyID="COP">119000.00</cbc:PayableAmount></cac:LegalMonetaryTotal>
<cac:InvoiceLine>
<cbc:ID>1</cbc:ID>
<cbc:InvoicedQuantity unitCode="94">1</cbc:InvoicedQuantity>
<cbc:LineExtensionAmount currencyID="COP">100000.00</cbc:LineExtensionAmount>
<cac:Item><cbc:Description>Martillo</cbc:Description></cac:Item>
<cac:Price><cbc:PriceAmount currencyID="COP">100000.00</cbc:PriceAmount></cac:Price>
</cac:InvoiceLine>
</Invoice>`

func TestInspectCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.xml")
	require.NoError(t, os.WriteFile(path, []byte(inspectDoc), 0o600))

	t.Run("Table", func(t *testing.T) {
		out, err := run(t, "inspect", path)
		require.NoError(t, err)

		for _, want := range []string{
			"Invoice SETP990000002",
			"CUFE-SHA384",
			"2024-03-15 10:30:00-05:00",
			"1 x Martillo 100000.00 = 100000.00",
			"119000.00 COP",
			"false",
		} {
			assert.Contains(t, out, want)
		}
	})

	t.Run("JSON", func(t *testing.T) {
		out, err := run(t, "inspect", path, "--json")
		require.NoError(t, err)
		assert.Contains(t, out, `"Number": "SETP990000002"`)
		assert.Contains(t, out, `"Signed": false`)
	})

	t.Run("NotADocument", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.xml")
		require.NoError(t, os.WriteFile(bad, []byte("<Order/>"), 0o600))

		_, err := run(t, "inspect", bad)
		assert.Error(t, err)
	})
}

func TestTokenCommand(t *testing.T) {
	tenantID := uuid.New()

	out, err := run(t, "token", tenantID.String(), "--secret", "s3cret")
	require.NoError(t, err)

	got, err := auth.New("s3cret", "factura").Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, tenantID, got)

	_, err = run(t, "token", "not-a-uuid", "--secret", "s3cret")
	assert.Error(t, err)
}
