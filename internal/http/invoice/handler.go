package invoice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/factura/internal/einvoice"
	"github.com/MrJamesThe3rd/factura/internal/http/auth"
	"github.com/MrJamesThe3rd/factura/internal/http/respond"
	"github.com/MrJamesThe3rd/factura/internal/invoice"
)

//go:generate mockgen -source=handler.go -destination=pipeline_mock.go -package=invoice
type Pipeline interface {
	Send(ctx context.Context, id uuid.UUID) (einvoice.Outcome, error)
	Resubmit(ctx context.Context, id uuid.UUID) (einvoice.Outcome, error)
	CheckStatus(ctx context.Context, id uuid.UUID) (einvoice.Outcome, error)
	Void(ctx context.Context, id uuid.UUID, reason string) (einvoice.Outcome, error)
}

type Handler struct {
	svc      *invoice.Service
	pipeline Pipeline
}

func NewHandler(svc *invoice.Service, pipeline Pipeline) *Handler {
	return &Handler{svc: svc, pipeline: pipeline}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
	r.Post("/{id}/send", h.run(h.pipeline.Send))
	r.Post("/{id}/resubmit", h.run(h.pipeline.Resubmit))
	r.Post("/{id}/status", h.run(h.pipeline.CheckStatus))
	r.Post("/{id}/void", h.void)
	r.Get("/{id}/attempts", h.attempts)
	r.Get("/{id}/xml", h.document)
	r.Get("/{id}/pdf", h.pdf)
}

func tenantOf(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	tenantID, ok := auth.TenantID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}

	return tenantID, ok
}

// owned loads the invoice named in the path, hiding invoices of other tenants.
func (h *Handler) owned(w http.ResponseWriter, r *http.Request) (*invoice.Invoice, bool) {
	tenantID, ok := tenantOf(w, r)
	if !ok {
		return nil, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return nil, false
	}

	inv, err := h.svc.Get(r.Context(), id)
	if err == nil && inv.TenantID != tenantID {
		err = invoice.ErrNotFound
	}

	if err != nil {
		respond.Error(w, err)
		return nil, false
	}

	return inv, true
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOf(w, r)
	if !ok {
		return
	}

	var req createInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	params := invoice.CreateParams{
		TenantID:       tenantID,
		DocumentType:   req.DocumentType,
		IssuedAt:       req.IssuedAt,
		DueDate:        req.DueDate,
		Payment:        invoice.PaymentMeans(req.Payment),
		Supplier:       req.Supplier.toParty(),
		Customer:       req.Customer.toParty(),
		Items:          toItems(req.Items),
		GlobalDiscount: req.GlobalDiscount,
		Note:           req.Note,
	}

	if req.Reference != nil {
		params.Reference = &invoice.BillingReference{
			Number:          req.Reference.Number,
			Code:            req.Reference.Code,
			IssueDate:       req.Reference.IssueDate,
			DiscrepancyCode: req.Reference.DiscrepancyCode,
			Reason:          req.Reference.Reason,
		}
	}

	inv, err := h.svc.CreateDraft(r.Context(), params)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(inv))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOf(w, r)
	if !ok {
		return
	}

	filter := invoice.ListFilter{TenantID: &tenantID}

	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = new(invoice.Status(s))
	}

	if s := r.URL.Query().Get("start_date"); s != "" {
		if t, err := time.ParseInLocation(time.DateOnly, s, invoice.Bogota); err == nil {
			filter.StartDate = new(t)
		}
	}

	if s := r.URL.Query().Get("end_date"); s != "" {
		if t, err := time.ParseInLocation(time.DateOnly, s, invoice.Bogota); err == nil {
			filter.EndDate = new(t.AddDate(0, 0, 1).Add(-time.Nanosecond))
		}
	}

	invs, err := h.svc.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponseList(invs))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.owned(w, r)
	if !ok {
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(inv))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.owned(w, r)
	if !ok {
		return
	}

	var req updateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	params := invoice.UpdateParams{
		DueDate:        req.DueDate,
		Items:          toItems(req.Items),
		GlobalDiscount: req.GlobalDiscount,
		Note:           req.Note,
	}

	if req.Payment != nil {
		params.Payment = new(invoice.PaymentMeans(*req.Payment))
	}

	if req.Customer != nil {
		params.Customer = new(req.Customer.toParty())
	}

	updated, err := h.svc.UpdateDraft(r.Context(), inv.ID, params)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(updated))
}

func (h *Handler) run(op func(context.Context, uuid.UUID) (einvoice.Outcome, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inv, ok := h.owned(w, r)
		if !ok {
			return
		}

		out, err := op(r.Context(), inv.ID)
		if err != nil {
			respond.Error(w, err)
			return
		}

		respond.JSON(w, http.StatusOK, out)
	}
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.owned(w, r)
	if !ok {
		return
	}

	var req voidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	out, err := h.pipeline.Void(r.Context(), inv.ID, req.Reason)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, out)
}

func (h *Handler) attempts(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.owned(w, r)
	if !ok {
		return
	}

	attempts, err := h.svc.Attempts(r.Context(), inv.ID)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toAttemptList(attempts))
}

func (h *Handler) document(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.owned(w, r)
	if !ok {
		return
	}

	attachment(w, inv.SignedDocument, "application/xml", inv.Number+".xml")
}

func (h *Handler) pdf(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.owned(w, r)
	if !ok {
		return
	}

	attachment(w, inv.PDF, "application/pdf", inv.Number+".pdf")
}

func attachment(w http.ResponseWriter, body []byte, contentType, filename string) {
	if len(body) == 0 {
		http.Error(w, "artifact not available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if _, err := w.Write(body); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
