// Package respond writes JSON bodies and maps domain errors to HTTP status codes.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrJamesThe3rd/factura/internal/authority"
	"github.com/MrJamesThe3rd/factura/internal/credential"
	"github.com/MrJamesThe3rd/factura/internal/einvoice"
	"github.com/MrJamesThe3rd/factura/internal/invoice"
	"github.com/MrJamesThe3rd/factura/internal/lifecycle"
	"github.com/MrJamesThe3rd/factura/internal/signer"
)

type errorResponse struct {
	Error     string                   `json:"error"`
	Fields    []invoice.FieldError     `json:"fields,omitempty"`
	Authority []invoice.AuthorityError `json:"authority_errors,omitempty"`
	Technical bool                     `json:"technical,omitempty"`
	Ambiguous bool                     `json:"ambiguous,omitempty"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Error writes err with the status code of its category. Unknown errors are logged and hidden.
func Error(w http.ResponseWriter, err error) {
	status, body := classify(err)

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}

	JSON(w, status, body)
}

func classify(err error) (int, errorResponse) {
	body := errorResponse{Error: err.Error()}

	var (
		certErr      *signer.CertificateError
		transportErr *authority.TransportError
		rejectionErr *authority.RejectionError
	)

	switch {
	case errors.Is(err, invoice.ErrNotFound), errors.Is(err, credential.ErrNotFound):
		return http.StatusNotFound, body
	case errors.Is(err, invoice.ErrInvalidInput):
		body.Fields = invoice.FieldErrors(err)
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, invoice.ErrAlreadyTerminal),
		errors.Is(err, invoice.ErrImmutable),
		errors.Is(err, invoice.ErrConcurrentUpdate),
		errors.Is(err, invoice.ErrResolutionExhausted),
		errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, einvoice.ErrUnsettled):
		return http.StatusConflict, body
	case errors.As(err, &certErr):
		return http.StatusFailedDependency, body
	case errors.As(err, &rejectionErr):
		body.Authority = rejectionErr.Errors
		body.Technical = rejectionErr.Technical

		return http.StatusBadGateway, body
	case errors.As(err, &transportErr):
		body.Ambiguous = transportErr.Ambiguous
		return http.StatusBadGateway, body
	}

	return http.StatusInternalServerError, errorResponse{Error: "internal error"}
}
