package invoice_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/factura/internal/invoice"
)

func TestCheckDigit(t *testing.T) {
	tests := []struct {
		nit  string
		want string
	}{
		{nit: "900123456", want: "8"},
		{nit: "800987654", want: "4"},
		{nit: "800197268", want: "4"},
		{nit: "700085371", want: "1"},
		{nit: "860011153", want: "6"},
	}

	for _, tt := range tests {
		t.Run(tt.nit, func(t *testing.T) {
			got, err := invoice.CheckDigit(tt.nit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckDigit_Invalid(t *testing.T) {
	for _, nit := range []string{"", "90012345A", "1234567890123456"} {
		_, err := invoice.CheckDigit(nit)
		assert.Error(t, err, nit)
	}
}

func TestParty_Normalize(t *testing.T) {
	p := invoice.Party{Scheme: invoice.SchemeNIT, TaxID: "900.123.456-8"}
	p.Normalize()

	assert.Equal(t, "900123456", p.TaxID)
	assert.Equal(t, "8", p.CheckDigit)

	p = invoice.Party{Scheme: invoice.SchemeNIT, TaxID: "800987654"}
	p.Normalize()

	assert.Equal(t, "4", p.CheckDigit)
}
