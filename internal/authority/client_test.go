package authority_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/factura/internal/authority"
	"github.com/MrJamesThe3rd/factura/internal/invoice"
)

const testCode = "8bb918b19ba22a694f1da11c643b5e9de39adf60311cf179179e9b33381030bcd4c3c3f156c506ed5908f9276f5bd9b4"

func sampleRequest() authority.Request {
	return authority.Request{
		DocumentType:   invoice.DocumentInvoice,
		Code:           testCode,
		SupplierNIT:    "900123456",
		Year:           2024,
		Sequence:       42,
		Document:       []byte(`<?xml version="1.0" encoding="UTF-8"?><Invoice/>`),
		IdempotencyKey: "0b7f8a52-3b7e-5c1e-9c1a-6f1d2e3a4b5c",
	}
}

func soapReply(op, inner string) string {
	return `<?xml version="1.0" encoding="utf-8"?>` +
		`<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"><s:Body>` +
		`<` + op + `Response xmlns="http://wcf.dian.colombia">` +
		`<` + op + `Result xmlns:b="http://schemas.datacontract.org/2004/07/DianResponse" ` +
		`xmlns:c="http://schemas.microsoft.com/2003/10/Serialization/Arrays">` +
		inner +
		`</` + op + `Result></` + op + `Response></s:Body></s:Envelope>`
}

func dianResult(valid bool, code, desc, key string, msgs ...string) string {
	var b strings.Builder

	b.WriteString("<b:ErrorMessage>")
	for _, m := range msgs {
		fmt.Fprintf(&b, "<c:string>%s</c:string>", m)
	}
	b.WriteString("</b:ErrorMessage>")

	fmt.Fprintf(&b, "<b:IsValid>%t</b:IsValid><b:StatusCode>%s</b:StatusCode>", valid, code)
	fmt.Fprintf(&b, "<b:StatusDescription>%s</b:StatusDescription>", desc)
	fmt.Fprintf(&b, "<b:XmlBase64Bytes>%s</b:XmlBase64Bytes>", base64.StdEncoding.EncodeToString([]byte("<ApplicationResponse/>")))
	fmt.Fprintf(&b, "<b:XmlDocumentKey>%s</b:XmlDocumentKey>", key)

	return b.String()
}

type sentBill struct {
	MessageID string `xml:"Header>MessageID"`
	Body      struct {
		Sync struct {
			FileName string `xml:"fileName"`
			Content  string `xml:"contentFile"`
		} `xml:"SendBillSync"`
	} `xml:"Body"`
}

func newClient(t *testing.T, handler http.HandlerFunc, cfg authority.ClientConfig) *authority.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.URL = srv.URL

	return authority.NewClient(cfg, nil)
}

func TestClient_SendAccepted(t *testing.T) {
	req := sampleRequest()

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, req.IdempotencyKey, r.Header.Get("Idempotency-Key"))
		assert.Contains(t, r.Header.Get("Content-Type"), `action="http://wcf.dian.colombia/IWcfDianCustomerServices/SendBillSync"`)

		var bill sentBill
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, xml.Unmarshal(body, &bill))

		assert.Equal(t, "urn:uuid:"+req.IdempotencyKey, bill.MessageID)
		assert.Equal(t, "z0900123456000240000002a.zip", bill.Body.Sync.FileName)

		zipped, err := base64.StdEncoding.DecodeString(bill.Body.Sync.Content)
		require.NoError(t, err)

		zr, err := zip.NewReader(bytes.NewReader(zipped), int64(len(zipped)))
		require.NoError(t, err)
		require.Len(t, zr.File, 1)
		assert.Equal(t, "fv0900123456000240000002a.xml", zr.File[0].Name)

		f, err := zr.File[0].Open()
		require.NoError(t, err)
		got, _ := io.ReadAll(f)
		assert.Equal(t, req.Document, got)

		_, _ = io.WriteString(w, soapReply("SendBillSync", dianResult(true, "00", "Procesado Correctamente.", testCode,
			"Regla: FAJ44b, Notificación: Nit o Documento de Identificación informado no se encuentra registrado")))
	}, authority.ClientConfig{})

	res := client.Send(context.Background(), req)

	require.Equal(t, authority.OutcomeAccepted, res.Outcome)
	assert.NoError(t, res.Err())
	assert.Equal(t, testCode, res.TrackID)
	assert.Equal(t, "00", res.StatusCode)
	assert.Equal(t, []byte("<ApplicationResponse/>"), res.ApplicationResponse)
	require.Len(t, res.Notifications, 1)
	assert.Equal(t, "FAJ44b", res.Notifications[0].Code)
	assert.Empty(t, res.Errors)
}

func TestClient_SendRejected(t *testing.T) {
	type testCase struct {
		name          string
		messages      []string
		wantErrors    []invoice.AuthorityError
		wantTechnical bool
	}

	tests := []testCase{
		{
			name: "Business",
			messages: []string{
				"Regla: FAK24, Rechazo: El documento de identificación del adquiriente no es válido",
				"Regla: FAD06, Rechazo: Valor del CUFE no está calculado correctamente",
			},
			wantErrors: []invoice.AuthorityError{
				{Code: "FAK24", Message: "El documento de identificación del adquiriente no es válido"},
				{Code: "FAD06", Message: "Valor del CUFE no está calculado correctamente"},
			},
		},
		{
			name:     "Technical",
			messages: []string{"Regla: ZE02, Rechazo: Valor de la firma inválido"},
			wantErrors: []invoice.AuthorityError{
				{Code: "ZE02", Message: "Valor de la firma inválido"},
			},
			wantTechnical: true,
		},
		{
			name:       "StatusOnly",
			wantErrors: []invoice.AuthorityError{{Code: "99", Message: "Validación contiene errores en campos mandatorios."}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				_, _ = io.WriteString(w, soapReply("SendBillSync",
					dianResult(false, "99", "Validación contiene errores en campos mandatorios.", testCode, tt.messages...)))
			}, authority.ClientConfig{})

			res := client.Send(context.Background(), sampleRequest())

			require.Equal(t, authority.OutcomeRejected, res.Outcome)
			assert.Equal(t, tt.wantErrors, res.Errors)
			assert.Equal(t, tt.wantTechnical, res.Technical)

			var rej *authority.RejectionError
			require.ErrorAs(t, res.Err(), &rej)
			assert.Equal(t, tt.wantErrors, rej.Errors)
		})
	}
}

func TestClient_TransportErrors(t *testing.T) {
	type testCase struct {
		name          string
		handler       http.HandlerFunc
		wantAmbiguous bool
		wantPermanent bool
		wantStatus    int
	}

	fault := `<?xml version="1.0"?><s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"><s:Body><s:Fault>` +
		`<s:Code><s:Value>s:Sender</s:Value></s:Code><s:Reason><s:Text xml:lang="es">Acción no permitida</s:Text></s:Reason>` +
		`</s:Fault></s:Body></s:Envelope>`

	status := func(code int, body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.Copy(io.Discard, r.Body)
			w.WriteHeader(code)
			_, _ = io.WriteString(w, body)
		}
	}

	tests := []testCase{
		{name: "Unavailable", handler: status(http.StatusServiceUnavailable, ""), wantStatus: 503},
		{name: "TooManyRequests", handler: status(http.StatusTooManyRequests, ""), wantStatus: 429},
		{name: "GatewayTimeout", handler: status(http.StatusGatewayTimeout, ""), wantAmbiguous: true, wantStatus: 504},
		{name: "BadGateway", handler: status(http.StatusBadGateway, ""), wantAmbiguous: true, wantStatus: 502},
		{name: "ServerErrorWithoutFault", handler: status(http.StatusInternalServerError, "boom"), wantAmbiguous: true, wantStatus: 500},
		{name: "SOAPFault", handler: status(http.StatusInternalServerError, fault), wantStatus: 500},
		{name: "Forbidden", handler: status(http.StatusForbidden, ""), wantPermanent: true, wantStatus: 403},
		{name: "GarbledBody", handler: status(http.StatusOK, "<html>maintenance"), wantAmbiguous: true, wantStatus: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newClient(t, tt.handler, authority.ClientConfig{BreakerFailures: 100})

			res := client.Send(context.Background(), sampleRequest())

			require.Equal(t, authority.OutcomeTransportError, res.Outcome)
			require.NotNil(t, res.Transport)
			assert.Equal(t, tt.wantAmbiguous, res.Transport.Ambiguous)
			assert.Equal(t, tt.wantPermanent, res.Transport.Permanent)
			assert.Equal(t, tt.wantStatus, res.Transport.StatusCode)

			var terr *authority.TransportError
			assert.ErrorAs(t, res.Err(), &terr)
		})
	}
}

func TestClient_TimeoutAfterDispatchIsAmbiguous(t *testing.T) {
	release := make(chan struct{})

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)

		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
	}, authority.ClientConfig{})
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res := client.Send(ctx, sampleRequest())

	require.Equal(t, authority.OutcomeTransportError, res.Outcome)
	assert.True(t, res.Transport.Ambiguous)
	assert.ErrorIs(t, res.Err(), context.DeadlineExceeded)
}

func TestClient_UnreachableIsNotAmbiguous(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := authority.NewClient(authority.ClientConfig{URL: url}, nil)
	res := client.Send(context.Background(), sampleRequest())

	require.Equal(t, authority.OutcomeTransportError, res.Outcome)
	assert.False(t, res.Transport.Ambiguous)
}

func TestClient_BreakerOpens(t *testing.T) {
	var hits atomic.Int32

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, authority.ClientConfig{BreakerFailures: 2, BreakerOpenFor: time.Minute})

	for range 2 {
		res := client.Send(context.Background(), sampleRequest())
		require.Equal(t, authority.OutcomeTransportError, res.Outcome)
	}

	res := client.Send(context.Background(), sampleRequest())

	require.Equal(t, authority.OutcomeTransportError, res.Outcome)
	assert.True(t, errors.Is(res.Err(), gobreaker.ErrOpenState))
	assert.False(t, res.Transport.Ambiguous)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_RateLimited(t *testing.T) {
	var hits atomic.Int32

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, soapReply("SendBillSync", dianResult(true, "00", "Procesado Correctamente.", testCode)))
	}, authority.ClientConfig{RateLimit: 0.1, Burst: 1})

	first := client.Send(context.Background(), sampleRequest())
	require.Equal(t, authority.OutcomeAccepted, first.Outcome)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	second := client.Send(ctx, sampleRequest())

	require.Equal(t, authority.OutcomeTransportError, second.Outcome)
	assert.False(t, second.Transport.Ambiguous)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_Status(t *testing.T) {
	type testCase struct {
		name string
		body string
		want authority.Outcome
	}

	tests := []testCase{
		{name: "Accepted", body: dianResult(true, "00", "Procesado Correctamente.", testCode), want: authority.OutcomeAccepted},
		{name: "NotFound", body: dianResult(false, "66", "TrackId no existe en los registros de la DIAN.", ""), want: authority.OutcomeNotFound},
		{
			name: "Rejected",
			body: dianResult(false, "99", "Validación contiene errores en campos mandatorios.", testCode,
				"Regla: FAU14, Rechazo: El valor total del documento no corresponde a la suma de sus componentes"),
			want: authority.OutcomeRejected,
		},
		{name: "Pending", body: dianResult(false, "98", "En proceso de validación", testCode), want: authority.OutcomePending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				assert.Contains(t, string(body), "<wcf:trackId>"+testCode+"</wcf:trackId>")
				assert.Contains(t, r.Header.Get("Content-Type"), "GetStatus")

				_, _ = io.WriteString(w, soapReply("GetStatus", tt.body))
			}, authority.ClientConfig{})

			res := client.Status(context.Background(), testCode)
			assert.Equal(t, tt.want, res.Outcome)
		})
	}
}

func TestClient_TestSetPollsUntilSettled(t *testing.T) {
	var polls atomic.Int32

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		switch {
		case bytes.Contains(body, []byte("<wcf:SendTestSetAsync>")):
			assert.Contains(t, string(body), "<wcf:testSetId>c2a4e6f8-test-set</wcf:testSetId>")
			_, _ = io.WriteString(w, soapReply("SendTestSetAsync", "<b:ErrorMessageList/><b:ZipKey>zip-123</b:ZipKey>"))
		case bytes.Contains(body, []byte("<wcf:GetStatusZip>")):
			result := dianResult(false, "98", "En proceso de validación", "")
			if polls.Add(1) >= 2 {
				result = dianResult(true, "00", "Procesado Correctamente.", testCode)
			}

			_, _ = io.WriteString(w, `<?xml version="1.0"?><s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"><s:Body>`+
				`<GetStatusZipResponse xmlns="http://wcf.dian.colombia"><GetStatusZipResult `+
				`xmlns:b="http://schemas.datacontract.org/2004/07/DianResponse" `+
				`xmlns:c="http://schemas.microsoft.com/2003/10/Serialization/Arrays"><b:DianResponse>`+result+
				`</b:DianResponse></GetStatusZipResult></GetStatusZipResponse></s:Body></s:Envelope>`)
		default:
			t.Errorf("unexpected request %s", body)
		}
	}, authority.ClientConfig{TestPollInterval: 10 * time.Millisecond})

	req := sampleRequest()
	req.TestSetID = "c2a4e6f8-test-set"

	res := client.Send(context.Background(), req)

	require.Equal(t, authority.OutcomeAccepted, res.Outcome)
	assert.Equal(t, testCode, res.TrackID)
	assert.Equal(t, int32(2), polls.Load())
}
