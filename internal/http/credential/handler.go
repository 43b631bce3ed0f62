package credential

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/factura/internal/credential"
	"github.com/MrJamesThe3rd/factura/internal/cufe"
	"github.com/MrJamesThe3rd/factura/internal/http/auth"
	"github.com/MrJamesThe3rd/factura/internal/http/respond"
	"github.com/MrJamesThe3rd/factura/internal/signer"
)

//go:generate mockgen -source=handler.go -destination=store_mock.go -package=credential
type Store interface {
	Rotate(ctx context.Context, c *credential.Credential) error
}

type Handler struct {
	store  Store
	cache  *credential.Cache
	signer *signer.Signer
}

func NewHandler(store Store, cache *credential.Cache, s *signer.Signer) *Handler {
	return &Handler{store: store, cache: cache, signer: s}
}

func (h *Handler) Routes(r chi.Router) {
	r.Put("/", h.rotate)
}

// Byte fields are base64 in JSON.
type rotateRequest struct {
	Environment  cufe.Environment `json:"environment"`
	ProviderNIT  string           `json:"provider_nit,omitempty"`
	TechnicalKey string           `json:"technical_key"`
	SoftwareID   string           `json:"software_id"`
	SoftwarePIN  string           `json:"software_pin"`
	TestSetID    string           `json:"test_set_id,omitempty"`
	Format       signer.Format    `json:"format"`
	Certificate  []byte           `json:"certificate,omitempty"`
	PrivateKey   []byte           `json:"private_key"`
	Passphrase   []byte           `json:"passphrase,omitempty"`
}

type rotateResponse struct {
	TenantID    uuid.UUID        `json:"tenant_id"`
	Environment cufe.Environment `json:"environment"`
	Subject     string           `json:"certificate_subject"`
	NotAfter    time.Time        `json:"certificate_not_after"`
	RotatedAt   time.Time        `json:"rotated_at"`
}

func (h *Handler) rotate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := auth.TenantID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req rotateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cred := &credential.Credential{
		TenantID:    tenantID,
		Environment: req.Environment,
		ProviderNIT: req.ProviderNIT,
		Secrets: credential.Secrets{
			TechnicalKey: req.TechnicalKey,
			SoftwareID:   req.SoftwareID,
			SoftwarePIN:  req.SoftwarePIN,
			TestSetID:    req.TestSetID,
		},
		Format:      req.Format,
		Certificate: req.Certificate,
		PrivateKey:  req.PrivateKey,
		Passphrase:  req.Passphrase,
	}

	if err := cred.Validate(); err != nil {
		respond.Error(w, err)
		return
	}

	m := cred.Material()
	cert, err := h.signer.Check(m)
	m.Zero()

	if err != nil {
		respond.Error(w, err)
		return
	}

	if err := h.store.Rotate(r.Context(), cred); err != nil {
		respond.Error(w, err)
		return
	}

	h.cache.Invalidate(tenantID)

	respond.JSON(w, http.StatusOK, rotateResponse{
		TenantID:    tenantID,
		Environment: cred.Environment,
		Subject:     cert.Subject.String(),
		NotAfter:    cert.NotAfter,
		RotatedAt:   cred.RotatedAt,
	})
}
