package encoding_test

import (
	"bytes"
	"encoding/xml"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/factura/internal/encoding"
)

// "Validación exitosa" in Windows-1252: ó = 0xF3.
var latin1 = []byte{'V', 'a', 'l', 'i', 'd', 'a', 'c', 'i', 0xF3, 'n', ' ', 'e', 'x', 'i', 't', 'o', 's', 'a'}

func TestNewUTF8Reader(t *testing.T) {
	type testCase struct {
		name  string
		input []byte
		want  string
	}

	tests := []testCase{
		{name: "UTF8Passthrough", input: []byte("Razón social;Dirección\n"), want: "Razón social;Dirección\n"},
		{name: "Windows1252", input: latin1, want: "Validación exitosa"},
		{name: "UTF8BOMStripped", input: append([]byte{0xEF, 0xBB, 0xBF}, "Año"...), want: "Año"},
		{name: "UTF16LE", input: []byte{0xFF, 0xFE, 'O', 0, 'K', 0}, want: "OK"},
		{name: "Empty", input: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := encoding.NewUTF8Reader(bytes.NewReader(tt.input))
			require.NoError(t, err)

			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestCharsetReader_DecodesDeclaredCharset(t *testing.T) {
	doc := append([]byte(`<?xml version="1.0" encoding="ISO-8859-1"?><m>`), latin1...)
	doc = append(doc, "</m>"...)

	var out struct {
		Text string `xml:",chardata"`
	}

	dec := xml.NewDecoder(bytes.NewReader(doc))
	dec.CharsetReader = encoding.CharsetReader
	require.NoError(t, dec.Decode(&out))

	assert.Equal(t, "Validación exitosa", out.Text)
}

func TestCharsetReader_UnknownLabelFallsBack(t *testing.T) {
	r, err := encoding.CharsetReader("x-dian-legacy", bytes.NewReader(latin1))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "Validación exitosa", string(got))
}
