package credential_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/factura/internal/credential"
	"github.com/MrJamesThe3rd/factura/internal/http/auth"
	httpcredential "github.com/MrJamesThe3rd/factura/internal/http/credential"
	"github.com/MrJamesThe3rd/factura/internal/signer"
)

func material(t *testing.T, notAfter time.Time) (certPEM, keyPEM []byte) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(7),
		Subject:      pkix.Name{CommonName: "Ferreteria El Tornillo SAS"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
}

func rotateBody(t *testing.T, notAfter time.Time, mutate func(map[string]any)) []byte {
	t.Helper()

	cert, key := material(t, notAfter)

	body := map[string]any{
		"environment":   "2",
		"technical_key": "fc8eac422eba16e22ffd8c6f94b3f40a6e38162c",
		"software_id":   "56f2ae4e-9812-4fad-9255-08fcfcd5ccb0",
		"software_pin":  "12345",
		"format":        "pem",
		"certificate":   cert,
		"private_key":   key,
	}

	if mutate != nil {
		mutate(body)
	}

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	return raw
}

func TestHandler_Rotate(t *testing.T) {
	type testCase struct {
		name       string
		body       func(t *testing.T) []byte
		setupMock  func(store *httpcredential.MockStore, tenantID uuid.UUID)
		wantStatus int
		wantFetch  int
	}

	tests := []testCase{
		{
			name: "Rotated",
			body: func(t *testing.T) []byte { return rotateBody(t, time.Now().AddDate(1, 0, 0), nil) },
			setupMock: func(store *httpcredential.MockStore, tenantID uuid.UUID) {
				store.EXPECT().
					Rotate(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, c *credential.Credential) error {
						assert.Equal(t, tenantID, c.TenantID)
						c.RotatedAt = time.Now()
						return nil
					})
			},
			wantStatus: http.StatusOK,
			wantFetch:  2,
		},
		{
			name: "MissingTechnicalKey",
			body: func(t *testing.T) []byte {
				return rotateBody(t, time.Now().AddDate(1, 0, 0), func(b map[string]any) { delete(b, "technical_key") })
			},
			setupMock:  func(*httpcredential.MockStore, uuid.UUID) {},
			wantStatus: http.StatusUnprocessableEntity,
			wantFetch:  1,
		},
		{
			name:       "ExpiredCertificate",
			body:       func(t *testing.T) []byte { return rotateBody(t, time.Now().Add(-time.Minute), nil) },
			setupMock:  func(*httpcredential.MockStore, uuid.UUID) {},
			wantStatus: http.StatusFailedDependency,
			wantFetch:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			tenantID := uuid.New()
			store := httpcredential.NewMockStore(ctrl)
			tt.setupMock(store, tenantID)

			src := credential.NewMockSource(ctrl)
			src.EXPECT().Fetch(gomock.Any(), tenantID).Return(&credential.Credential{TenantID: tenantID}, nil).Times(tt.wantFetch)

			cache := credential.NewCache(src)
			_, err := cache.Get(context.Background(), tenantID)
			require.NoError(t, err)

			router := chi.NewRouter()
			router.Route("/credential", httpcredential.NewHandler(store, cache, signer.New()).Routes)

			req := httptest.NewRequest(http.MethodPut, "/credential/", bytes.NewReader(tt.body(t)))
			req = req.WithContext(auth.WithTenant(req.Context(), tenantID))

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.NotContains(t, rec.Body.String(), "PRIVATE KEY")

			_, err = cache.Get(context.Background(), tenantID)
			require.NoError(t, err)
		})
	}
}
