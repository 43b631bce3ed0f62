package export

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/factura/internal/export"
	"github.com/MrJamesThe3rd/factura/internal/http/auth"
	"github.com/MrJamesThe3rd/factura/internal/http/respond"
	"github.com/MrJamesThe3rd/factura/internal/invoice"
)

type Handler struct {
	svc *export.Service
}

func NewHandler(svc *export.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.metadata)
	r.Post("/download", h.download)
}

type exportRequest struct {
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

type itemResponse struct {
	ID       uuid.UUID       `json:"id"`
	Number   string          `json:"number"`
	IssuedAt time.Time       `json:"issued_at"`
	Customer string          `json:"customer"`
	Payable  decimal.Decimal `json:"payable"`
	Code     string          `json:"code"`
	Files    []string        `json:"files"`
}

type exportMetadataResponse struct {
	Invoices []itemResponse `json:"invoices"`
	Summary  string         `json:"summary"`
}

func toItemResponse(item export.Item) itemResponse {
	resp := itemResponse{
		ID:       item.Invoice.ID,
		Number:   item.Invoice.Number,
		IssuedAt: item.Invoice.IssuedAt,
		Customer: item.Invoice.Customer.LegalName,
		Payable:  item.Invoice.Totals.Payable,
		Code:     item.Invoice.Code,
		Files:    []string{},
	}

	for _, p := range []string{item.XMLPath, item.PDFPath} {
		if p != "" {
			resp.Files = append(resp.Files, filepath.Base(p))
		}
	}

	return resp
}

// run exports the tenant's accepted invoices into a fresh temporary directory.
// The caller removes the directory.
func (h *Handler) run(w http.ResponseWriter, r *http.Request) (string, []export.Item, bool) {
	tenantID, ok := auth.TenantID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", nil, false
	}

	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", nil, false
	}

	filter := invoice.ListFilter{
		TenantID:  &tenantID,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}

	tmpDir, err := os.MkdirTemp("", "factura-export-*")
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return "", nil, false
	}

	items, err := h.svc.Export(r.Context(), filter, tmpDir)
	if err != nil {
		os.RemoveAll(tmpDir)
		respond.Error(w, err)

		return "", nil, false
	}

	return tmpDir, items, true
}

func (h *Handler) metadata(w http.ResponseWriter, r *http.Request) {
	tmpDir, items, ok := h.run(w, r)
	if !ok {
		return
	}
	defer os.RemoveAll(tmpDir)

	resp := exportMetadataResponse{
		Invoices: make([]itemResponse, 0, len(items)),
		Summary:  h.svc.Summary(items),
	}

	for _, item := range items {
		resp.Invoices = append(resp.Invoices, toItemResponse(item))
	}

	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	tmpDir, items, ok := h.run(w, r)
	if !ok {
		return
	}
	defer os.RemoveAll(tmpDir)

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", export.ArchiveName(time.Now())))

	// Headers are already sent; a failure here can only be logged.
	if err := h.svc.Archive(w, items); err != nil {
		slog.Error("failed to create zip", "error", err)
	}
}
