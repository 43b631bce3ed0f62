package authority_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/factura/internal/authority"
	"github.com/MrJamesThe3rd/factura/internal/invoice"
)

func TestCatalog_Technical(t *testing.T) {
	type testCase struct {
		name  string
		codes []string
		want  bool
	}

	tests := []testCase{
		{name: "Empty", want: false},
		{name: "SignatureOnly", codes: []string{"ZE02"}, want: true},
		{name: "CodeAndSchema", codes: []string{"FAD06", "ZB01"}, want: true},
		{name: "MixedWithBusiness", codes: []string{"FAD06", "FAK24"}, want: false},
		{name: "UnknownCode", codes: []string{"XYZ01"}, want: false},
	}

	c := authority.DefaultCatalog()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var errs []invoice.AuthorityError
			for _, code := range tt.codes {
				errs = append(errs, invoice.AuthorityError{Code: code})
			}

			assert.Equal(t, tt.want, c.Technical(errs))
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()

	override := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(override, []byte(`
rules:
  - code: FAK24
    description: Reclasificada por el operador
    technical: true
  - code: NEW01
    description: Regla nueva
`), 0o600))

	c, err := authority.LoadCatalog(override)
	require.NoError(t, err)

	r, ok := c.Lookup("FAK24")
	require.True(t, ok)
	assert.True(t, r.Technical)
	assert.Equal(t, "Reclasificada por el operador", r.Description)

	_, ok = c.Lookup("NEW01")
	assert.True(t, ok)

	_, ok = c.Lookup("ZE02")
	assert.True(t, ok, "embedded rules survive an override")

	missing, err := authority.LoadCatalog(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)

	r, ok = missing.Lookup("FAK24")
	require.True(t, ok)
	assert.False(t, r.Technical)

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("rules:\n  - description: sin código\n"), 0o600))

	_, err = authority.LoadCatalog(broken)
	assert.Error(t, err)
}
