// Package authority talks to the DIAN electronic invoicing web service.
package authority

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/factura/internal/invoice"
)

type Outcome string

const (
	OutcomeAccepted       Outcome = "accepted"
	OutcomeRejected       Outcome = "rejected"
	OutcomeTransportError Outcome = "transport_error"
	// Only returned by status checks.
	OutcomeNotFound Outcome = "not_found"
	OutcomePending  Outcome = "pending"
)

// Request is one signed document ready for transmission.
type Request struct {
	InvoiceID    uuid.UUID
	DocumentType invoice.DocumentType
	Code         string
	SupplierNIT  string
	Year         int
	Sequence     int64
	Document     []byte
	// TestSetID routes the document to the habilitación test set instead of SendBillSync.
	TestSetID      string
	IdempotencyKey string
}

// Result is the interpreted answer of DIAN. Transport is set only for OutcomeTransportError.
type Result struct {
	Outcome             Outcome
	TrackID             string
	StatusCode          string
	Description         string
	Errors              []invoice.AuthorityError
	Notifications       []invoice.AuthorityError
	Technical           bool
	ApplicationResponse []byte
	Transport           *TransportError
}

// Err returns the typed error of a non-accepted result, nil otherwise.
func (r Result) Err() error {
	switch r.Outcome {
	case OutcomeAccepted:
		return nil
	case OutcomeRejected:
		return &RejectionError{StatusCode: r.StatusCode, Errors: r.Errors, Technical: r.Technical}
	case OutcomeTransportError:
		if r.Transport != nil {
			return r.Transport
		}
	}

	return fmt.Errorf("unsettled authority outcome %q", r.Outcome)
}

func transportResult(err *TransportError) Result {
	return Result{Outcome: OutcomeTransportError, Transport: err}
}

// TransportError covers every failure to obtain a definitive answer from DIAN.
// Ambiguous means the request may have been processed; a status check must precede any resend.
// Permanent errors are not worth retrying without operator action.
type TransportError struct {
	Cause      error
	Ambiguous  bool
	Permanent  bool
	StatusCode int
}

func (e *TransportError) Error() string {
	var b strings.Builder

	b.WriteString("authority transport error")

	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (http %d)", e.StatusCode)
	}

	if e.Ambiguous {
		b.WriteString(" (outcome unknown)")
	}

	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}

	return b.String()
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// RejectionError carries the DIAN rule violations verbatim.
type RejectionError struct {
	StatusCode string
	Errors     []invoice.AuthorityError
	Technical  bool
}

func (e *RejectionError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, ae := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", ae.Code, ae.Message))
	}

	kind := "rejected"
	if e.Technical {
		kind = "rejected (technical)"
	}

	return fmt.Sprintf("document %s by DIAN: %s", kind, strings.Join(parts, "; "))
}
