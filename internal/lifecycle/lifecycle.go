// Package lifecycle owns the invoice status machine. No other package writes an invoice status.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/factura/internal/invoice"
)

var ErrInvalidTransition = errors.New("invalid status transition")

type Event string

const (
	EventCoded              Event = "coded"
	EventSigned             Event = "signed"
	EventSubmit             Event = "submit"
	EventAccepted           Event = "accepted"
	EventRejected           Event = "rejected"
	EventTechnicalRejection Event = "technical_rejection"
	EventTransportExhausted Event = "transport_exhausted"
	EventVoid               Event = "void"
)

var transitions = map[invoice.Status]map[Event]invoice.Status{
	invoice.StatusDraft: {
		EventCoded: invoice.StatusCoded,
		EventVoid:  invoice.StatusVoided,
	},
	invoice.StatusCoded: {
		EventSigned: invoice.StatusSigned,
		EventVoid:   invoice.StatusVoided,
	},
	invoice.StatusSigned: {
		EventSubmit: invoice.StatusSubmitting,
		EventVoid:   invoice.StatusVoided,
	},
	invoice.StatusSubmitting: {
		EventAccepted:           invoice.StatusAccepted,
		EventRejected:           invoice.StatusRejected,
		EventTechnicalRejection: invoice.StatusCoded,
		EventTransportExhausted: invoice.StatusTransportFailed,
		EventVoid:               invoice.StatusVoided,
	},
	// A status check may settle a failed transport without resending.
	invoice.StatusTransportFailed: {
		EventSubmit:             invoice.StatusSubmitting,
		EventAccepted:           invoice.StatusAccepted,
		EventRejected:           invoice.StatusRejected,
		EventTechnicalRejection: invoice.StatusCoded,
		EventVoid:               invoice.StatusVoided,
	},
	invoice.StatusRejected: {
		EventVoid: invoice.StatusVoided,
	},
}

// IsTerminal reports whether no further submission can happen from s.
func IsTerminal(s invoice.Status) bool {
	switch s {
	case invoice.StatusAccepted, invoice.StatusRejected, invoice.StatusVoided:
		return true
	}

	return false
}

// CanVoid reports whether an operator may void an invoice in status s.
// Accepted invoices are annulled with a credit note instead.
func CanVoid(s invoice.Status) bool {
	_, ok := transitions[s][EventVoid]
	return ok
}

// Next returns the status reached from `from` on event e.
func Next(from invoice.Status, e Event) (invoice.Status, error) {
	if to, ok := transitions[from][e]; ok {
		return to, nil
	}

	if IsTerminal(from) {
		return "", fmt.Errorf("%w: %w: %s on %s", ErrInvalidTransition, invoice.ErrAlreadyTerminal, e, from)
	}

	return "", fmt.Errorf("%w: %s on %s", ErrInvalidTransition, e, from)
}

//go:generate mockgen -source=lifecycle.go -destination=store_mock.go -package=lifecycle

// StatusStore persists a transition only if the stored status still equals from.
type StatusStore interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to invoice.Status) error
}

type Controller struct {
	store StatusStore
}

func NewController(store StatusStore) *Controller {
	return &Controller{store: store}
}

// Apply moves inv along e. On success inv.Status holds the new status; on a concurrent
// change the store returns invoice.ErrConcurrentUpdate and inv is left untouched.
func (c *Controller) Apply(ctx context.Context, inv *invoice.Invoice, e Event) error {
	to, err := Next(inv.Status, e)
	if err != nil {
		return err
	}

	if err := c.store.UpdateStatus(ctx, inv.ID, inv.Status, to); err != nil {
		return fmt.Errorf("applying %s to invoice %s: %w", e, inv.ID, err)
	}

	slog.Info("invoice status changed",
		"invoice_id", inv.ID,
		"tenant_id", inv.TenantID,
		"event", e,
		"from", inv.Status,
		"to", to,
	)

	inv.Status = to

	return nil
}
