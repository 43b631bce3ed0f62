// Package memstore is an in-memory invoice repository for tests and local runs.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/factura/internal/invoice"
)

type resolutionKey struct {
	tenantID uuid.UUID
	docType  invoice.DocumentType
}

type Store struct {
	mu          sync.Mutex
	invoices    map[uuid.UUID]*invoice.Invoice
	attempts    map[uuid.UUID][]*invoice.SubmissionAttempt
	resolutions map[resolutionKey]*invoice.BillingResolution
	now         func() time.Time
}

func New() *Store {
	return &Store{
		invoices:    make(map[uuid.UUID]*invoice.Invoice),
		attempts:    make(map[uuid.UUID][]*invoice.SubmissionAttempt),
		resolutions: make(map[resolutionKey]*invoice.BillingResolution),
		now:         time.Now,
	}
}

// AddResolution registers the active numbering resolution of a tenant for one document type.
func (s *Store) AddResolution(docType invoice.DocumentType, r invoice.BillingResolution) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}

	if r.Next < r.From {
		r.Next = r.From
	}

	s.resolutions[resolutionKey{tenantID: r.TenantID, docType: docType}] = &r
}

func (s *Store) CreateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}

	inv.CreatedAt = s.now()
	s.invoices[inv.ID] = clone(inv)

	return nil
}

func (s *Store) GetInvoice(_ context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return nil, invoice.ErrNotFound
	}

	return clone(inv), nil
}

func (s *Store) ListInvoices(_ context.Context, filter invoice.ListFilter) ([]*invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*invoice.Invoice

	for _, inv := range s.invoices {
		if filter.TenantID != nil && inv.TenantID != *filter.TenantID {
			continue
		}

		if filter.Status != nil && inv.Status != *filter.Status {
			continue
		}

		if filter.StartDate != nil && inv.IssuedAt.Before(*filter.StartDate) {
			continue
		}

		if filter.EndDate != nil && inv.IssuedAt.After(*filter.EndDate) {
			continue
		}

		out = append(out, clone(inv))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].IssuedAt.After(out[j].IssuedAt)
		}

		return out[i].Number > out[j].Number
	})

	return out, nil
}

func (s *Store) UpdateDraft(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.invoices[inv.ID]
	if !ok {
		return invoice.ErrNotFound
	}

	if cur.Status != invoice.StatusDraft || cur.Code != "" {
		return invoice.ErrImmutable
	}

	updated := clone(inv)
	now := s.now()
	updated.UpdatedAt = &now
	s.invoices[inv.ID] = updated

	return nil
}

func (s *Store) AllocateNumber(_ context.Context, tenantID uuid.UUID, docType invoice.DocumentType, at time.Time) (invoice.BillingResolution, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.resolutions[resolutionKey{tenantID: tenantID, docType: docType}]
	if !ok || r.Next > r.To || at.Before(r.ValidFrom) || !at.Before(r.ValidTo.AddDate(0, 0, 1)) {
		return invoice.BillingResolution{}, 0, invoice.ErrResolutionExhausted
	}

	seq := r.Next
	r.Next++

	return *r, seq, nil
}

func (s *Store) update(id uuid.UUID, fn func(inv *invoice.Invoice) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return invoice.ErrNotFound
	}

	if err := fn(inv); err != nil {
		return err
	}

	now := s.now()
	inv.UpdatedAt = &now

	return nil
}

// SaveCode is idempotent for the same code; a different code on a coded invoice is refused.
func (s *Store) SaveCode(_ context.Context, id uuid.UUID, code string) error {
	return s.update(id, func(inv *invoice.Invoice) error {
		if inv.Code != "" && inv.Code != code {
			return fmt.Errorf("%w: invoice already carries a different code", invoice.ErrImmutable)
		}

		inv.Code = code

		return nil
	})
}

func (s *Store) SaveSignedDocument(_ context.Context, id uuid.UUID, doc []byte) error {
	return s.update(id, func(inv *invoice.Invoice) error {
		inv.SignedDocument = slices.Clone(doc)
		return nil
	})
}

func (s *Store) SaveTrackID(_ context.Context, id uuid.UUID, trackID string) error {
	return s.update(id, func(inv *invoice.Invoice) error {
		inv.TrackID = trackID
		return nil
	})
}

func (s *Store) SavePDF(_ context.Context, id uuid.UUID, pdf []byte) error {
	return s.update(id, func(inv *invoice.Invoice) error {
		inv.PDF = slices.Clone(pdf)
		return nil
	})
}

func (s *Store) SaveVoidReason(_ context.Context, id uuid.UUID, reason string) error {
	return s.update(id, func(inv *invoice.Invoice) error {
		inv.VoidReason = reason
		return nil
	})
}

func (s *Store) UpdateStatus(_ context.Context, id uuid.UUID, from, to invoice.Status) error {
	return s.update(id, func(inv *invoice.Invoice) error {
		if inv.Status != from {
			return invoice.ErrConcurrentUpdate
		}

		inv.Status = to

		return nil
	})
}

func (s *Store) AppendAttempt(_ context.Context, a *invoice.SubmissionAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invoices[a.InvoiceID]; !ok {
		return invoice.ErrNotFound
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	a.Sequence = len(s.attempts[a.InvoiceID]) + 1

	stored := *a
	stored.Errors = slices.Clone(a.Errors)
	s.attempts[a.InvoiceID] = append(s.attempts[a.InvoiceID], &stored)

	return nil
}

func (s *Store) ListAttempts(_ context.Context, invoiceID uuid.UUID) ([]*invoice.SubmissionAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*invoice.SubmissionAttempt, 0, len(s.attempts[invoiceID]))
	for _, a := range s.attempts[invoiceID] {
		c := *a
		out = append(out, &c)
	}

	return out, nil
}

func clone(inv *invoice.Invoice) *invoice.Invoice {
	c := *inv
	c.Items = slices.Clone(inv.Items)
	c.Taxes = slices.Clone(inv.Taxes)
	c.SignedDocument = slices.Clone(inv.SignedDocument)
	c.PDF = slices.Clone(inv.PDF)

	if inv.Reference != nil {
		ref := *inv.Reference
		c.Reference = &ref
	}

	if inv.DueDate != nil {
		d := *inv.DueDate
		c.DueDate = &d
	}

	return &c
}
