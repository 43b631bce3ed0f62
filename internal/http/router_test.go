package http_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/factura/internal/credential"
	"github.com/MrJamesThe3rd/factura/internal/export"
	apihttp "github.com/MrJamesThe3rd/factura/internal/http"
	"github.com/MrJamesThe3rd/factura/internal/http/auth"
	httpcredential "github.com/MrJamesThe3rd/factura/internal/http/credential"
	httpexport "github.com/MrJamesThe3rd/factura/internal/http/export"
	httpinvoice "github.com/MrJamesThe3rd/factura/internal/http/invoice"
	"github.com/MrJamesThe3rd/factura/internal/invoice"
	"github.com/MrJamesThe3rd/factura/internal/invoice/memstore"
	"github.com/MrJamesThe3rd/factura/internal/metrics"
	"github.com/MrJamesThe3rd/factura/internal/signer"
)

func newServer(t *testing.T, ctrl *gomock.Controller, ping func(context.Context) error) (*httptest.Server, *auth.Authenticator) {
	t.Helper()

	store := memstore.New()
	invoices := invoice.NewService(store)
	authn := auth.New("s3cret", "factura")

	router := apihttp.New(
		apihttp.Config{
			AllowedOrigins: []string{"https://app.example.co"},
			Auth:           authn,
			Metrics:        metrics.NewCollector("factura"),
			Ping:           ping,
		},
		httpinvoice.NewHandler(invoices, httpinvoice.NewMockPipeline(ctrl)),
		httpcredential.NewHandler(httpcredential.NewMockStore(ctrl), credential.NewCache(credential.NewMockSource(ctrl)), signer.New()),
		httpexport.NewHandler(export.NewService(invoices, nil)),
	)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return srv, authn
}

func get(t *testing.T, url, token string) (int, string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func TestRouter(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	srv, authn := newServer(t, ctrl, nil)

	status, _ := get(t, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = get(t, srv.URL+"/api/v1/invoices/", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	token, err := authn.Issue(uuid.New(), time.Hour)
	require.NoError(t, err)

	status, body := get(t, srv.URL+"/api/v1/invoices/", token)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "[]", body)

	status, _ = get(t, srv.URL+"/api/v1/invoices/"+uuid.NewString(), token)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = get(t, srv.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `route="/api/v1/invoices/{id}"`)
	assert.Contains(t, body, `status_code="404"`)
}

func TestRouter_HealthReportsDatabase(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	srv, _ := newServer(t, ctrl, func(context.Context) error { return errors.New("connection refused") })

	status, _ := get(t, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestRouter_CORSPreflight(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	srv, _ := newServer(t, ctrl, nil)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/invoices/", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.co")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "https://app.example.co", resp.Header.Get("Access-Control-Allow-Origin"))
}
