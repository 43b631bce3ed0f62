package invoice_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/factura/internal/authority"
	"github.com/MrJamesThe3rd/factura/internal/einvoice"
	"github.com/MrJamesThe3rd/factura/internal/http/auth"
	httpinvoice "github.com/MrJamesThe3rd/factura/internal/http/invoice"
	"github.com/MrJamesThe3rd/factura/internal/invoice"
	"github.com/MrJamesThe3rd/factura/internal/invoice/memstore"
	"github.com/MrJamesThe3rd/factura/internal/signer"
)

type fixture struct {
	store    *memstore.Store
	pipeline *httpinvoice.MockPipeline
	server   *httptest.Server
	tenantID uuid.UUID
}

func newFixture(t *testing.T, ctrl *gomock.Controller) *fixture {
	t.Helper()

	f := &fixture{
		store:    memstore.New(),
		pipeline: httpinvoice.NewMockPipeline(ctrl),
		tenantID: uuid.New(),
	}

	f.store.AddResolution(invoice.DocumentInvoice, invoice.BillingResolution{
		TenantID:  f.tenantID,
		Number:    "18760000001",
		Prefix:    "SETP",
		From:      990000000,
		To:        995000000,
		ValidFrom: time.Date(2020, 1, 1, 0, 0, 0, 0, invoice.Bogota),
		ValidTo:   time.Date(2099, 1, 1, 0, 0, 0, 0, invoice.Bogota),
	})

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s := r.Header.Get("X-Tenant"); s != "" {
				r = r.WithContext(auth.WithTenant(r.Context(), uuid.MustParse(s)))
			}

			next.ServeHTTP(w, r)
		})
	})
	router.Route("/invoices", httpinvoice.NewHandler(invoice.NewService(f.store), f.pipeline).Routes)

	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)

	return f
}

func (f *fixture) seed(t *testing.T, tenantID uuid.UUID, status invoice.Status) *invoice.Invoice {
	t.Helper()

	inv := &invoice.Invoice{
		TenantID:       tenantID,
		DocumentType:   invoice.DocumentInvoice,
		Number:         "SETP990000042",
		IssuedAt:       time.Date(2024, 3, 15, 10, 30, 0, 0, invoice.Bogota),
		Currency:       "COP",
		Status:         status,
		SignedDocument: []byte("<Invoice/>"),
	}
	require.NoError(t, f.store.CreateInvoice(context.Background(), inv))

	return inv
}

func (f *fixture) do(t *testing.T, method, path, body string, tenantID uuid.UUID) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)

	req.Header.Set("Content-Type", "application/json")

	if tenantID != uuid.Nil {
		req.Header.Set("X-Tenant", tenantID.String())
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return out
}

const createBody = `{
	"issued_at": "2024-03-15T10:30:00-05:00",
	"supplier": {"kind": "1", "tax_id": "900.123.456", "scheme": "31", "legal_name": "Ferretería El Tornillo SAS",
		"address": {"line": "Cra 7 # 12-34", "city_code": "11001", "city": "Bogotá", "department_code": "11", "department": "Bogotá", "country": "CO"}},
	"customer": {"kind": "1", "tax_id": "800987654", "scheme": "31", "legal_name": "Constructora Andina SA",
		"address": {"line": "Cl 100 # 8-20", "city_code": "05001", "city": "Medellín", "department_code": "05", "department": "Antioquia", "country": "CO"}},
	"items": [{"product_code": "P-MAR", "description": "Martillo", "quantity": "2", "unit_code": "94", "unit_price": "50000", "tax_type": "01", "tax_rate": "19"}]
}`

func TestHandler_Create(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newFixture(t, ctrl)

	resp := f.do(t, http.MethodPost, "/invoices/", createBody, f.tenantID)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decode(t, resp)
	assert.Equal(t, "SETP990000000", body["number"])
	assert.Equal(t, "draft", body["status"])
	assert.Equal(t, "900123456", body["supplier_tax_id"])

	totals := body["totals"].(map[string]any)
	assert.Equal(t, "119000", totals["payable"])

	listed := f.do(t, http.MethodGet, "/invoices/?status=draft", "", f.tenantID)
	require.Equal(t, http.StatusOK, listed.StatusCode)

	var list []map[string]any
	require.NoError(t, json.NewDecoder(listed.Body).Decode(&list))
	assert.Len(t, list, 1)

	other := f.do(t, http.MethodGet, "/invoices/", "", uuid.New())
	require.NoError(t, json.NewDecoder(other.Body).Decode(&list))
	assert.Empty(t, list)
}

func TestHandler_Create_Unauthenticated(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newFixture(t, ctrl)

	resp := f.do(t, http.MethodPost, "/invoices/", createBody, uuid.Nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_UpdateCodedInvoice(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newFixture(t, ctrl)
	inv := f.seed(t, f.tenantID, invoice.StatusCoded)

	resp := f.do(t, http.MethodPatch, "/invoices/"+inv.ID.String(), `{"note": "otra"}`, f.tenantID)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandler_Pipeline(t *testing.T) {
	type testCase struct {
		name       string
		method     string
		path       string
		body       string
		setupMock  func(p *httpinvoice.MockPipeline, id uuid.UUID)
		wantStatus int
		check      func(t *testing.T, body map[string]any)
	}

	tests := []testCase{
		{
			name: "SendAccepted",
			path: "/send",
			setupMock: func(p *httpinvoice.MockPipeline, id uuid.UUID) {
				p.EXPECT().Send(gomock.Any(), id).Return(einvoice.Outcome{
					InvoiceID: id,
					Status:    invoice.StatusAccepted,
					TrackID:   "0f1c2d3e",
					Authority: authority.OutcomeAccepted,
				}, nil)
			},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "accepted", body["status"])
				assert.Equal(t, "0f1c2d3e", body["track_id"])
			},
		},
		{
			name: "SendRejected",
			path: "/send",
			setupMock: func(p *httpinvoice.MockPipeline, id uuid.UUID) {
				p.EXPECT().Send(gomock.Any(), id).Return(einvoice.Outcome{InvoiceID: id, Status: invoice.StatusRejected},
					&authority.RejectionError{StatusCode: "99", Errors: []invoice.AuthorityError{{Code: "FAD06", Message: "Número de documento no autorizado"}}})
			},
			wantStatus: http.StatusBadGateway,
			check: func(t *testing.T, body map[string]any) {
				errs := body["authority_errors"].([]any)
				require.Len(t, errs, 1)
				assert.Equal(t, "FAD06", errs[0].(map[string]any)["code"])
			},
		},
		{
			name: "SendTerminal",
			path: "/send",
			setupMock: func(p *httpinvoice.MockPipeline, id uuid.UUID) {
				p.EXPECT().Send(gomock.Any(), id).Return(einvoice.Outcome{}, invoice.ErrAlreadyTerminal)
			},
			wantStatus: http.StatusConflict,
		},
		{
			name: "SendExpiredCertificate",
			path: "/send",
			setupMock: func(p *httpinvoice.MockPipeline, id uuid.UUID) {
				p.EXPECT().Send(gomock.Any(), id).Return(einvoice.Outcome{},
					fmt.Errorf("signing document: %w", &signer.CertificateError{Reason: signer.ReasonExpired}))
			},
			wantStatus: http.StatusFailedDependency,
		},
		{
			name: "SendTransportFailed",
			path: "/send",
			setupMock: func(p *httpinvoice.MockPipeline, id uuid.UUID) {
				p.EXPECT().Send(gomock.Any(), id).Return(einvoice.Outcome{},
					&authority.TransportError{Cause: errors.New("i/o timeout"), Ambiguous: true})
			},
			wantStatus: http.StatusBadGateway,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, true, body["ambiguous"])
			},
		},
		{
			name: "ResubmitUnsettled",
			path: "/resubmit",
			setupMock: func(p *httpinvoice.MockPipeline, id uuid.UUID) {
				p.EXPECT().Resubmit(gomock.Any(), id).Return(einvoice.Outcome{},
					fmt.Errorf("%w: %w", einvoice.ErrUnsettled, &authority.TransportError{Cause: errors.New("EOF")}))
			},
			wantStatus: http.StatusConflict,
		},
		{
			name: "CheckStatusPending",
			path: "/status",
			setupMock: func(p *httpinvoice.MockPipeline, id uuid.UUID) {
				p.EXPECT().CheckStatus(gomock.Any(), id).Return(einvoice.Outcome{
					InvoiceID: id,
					Status:    invoice.StatusTransportFailed,
					Authority: authority.OutcomePending,
				}, nil)
			},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "pending", body["authority"])
			},
		},
		{
			name: "VoidWithoutReason",
			path: "/void",
			body: `{"reason": " "}`,
			setupMock: func(p *httpinvoice.MockPipeline, id uuid.UUID) {
				p.EXPECT().Void(gomock.Any(), id, " ").Return(einvoice.Outcome{},
					fmt.Errorf("%w: %w", invoice.ErrInvalidInput, invoice.FieldError{Field: "reason", Message: "is required"}))
			},
			wantStatus: http.StatusUnprocessableEntity,
			check: func(t *testing.T, body map[string]any) {
				fields := body["fields"].([]any)
				require.Len(t, fields, 1)
				assert.Equal(t, "reason", fields[0].(map[string]any)["field"])
			},
		},
		{
			name:       "AttemptsEmpty",
			method:     http.MethodGet,
			path:       "/attempts",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			f := newFixture(t, ctrl)
			inv := f.seed(t, f.tenantID, invoice.StatusSigned)

			if tt.setupMock != nil {
				tt.setupMock(f.pipeline, inv.ID)
			}

			method := tt.method
			if method == "" {
				method = http.MethodPost
			}

			body := tt.body
			if body == "" && method == http.MethodPost {
				body = "{}"
			}

			resp := f.do(t, method, "/invoices/"+inv.ID.String()+tt.path, body, f.tenantID)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			if tt.check != nil {
				tt.check(t, decode(t, resp))
			}
		})
	}
}

func TestHandler_OtherTenantIsHidden(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newFixture(t, ctrl)
	inv := f.seed(t, uuid.New(), invoice.StatusSigned)

	for _, path := range []string{"", "/xml", "/attempts"} {
		resp := f.do(t, http.MethodGet, "/invoices/"+inv.ID.String()+path, "", f.tenantID)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}

	resp := f.do(t, http.MethodPost, "/invoices/"+inv.ID.String()+"/send", "{}", f.tenantID)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_Artifacts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newFixture(t, ctrl)
	inv := f.seed(t, f.tenantID, invoice.StatusAccepted)

	resp := f.do(t, http.MethodGet, "/invoices/"+inv.ID.String()+"/xml", "", f.tenantID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/xml", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "SETP990000042.xml")

	resp = f.do(t, http.MethodGet, "/invoices/"+inv.ID.String()+"/pdf", "", f.tenantID)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/invoices/not-a-uuid", "", f.tenantID)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
