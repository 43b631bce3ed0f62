package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/factura/internal/invoice"
	"github.com/MrJamesThe3rd/factura/internal/invoice/memstore"
)

var _ invoice.Repository = (*memstore.Store)(nil)

func TestStore_AllocateNumber(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, invoice.Bogota)

	s := memstore.New()
	s.AddResolution(invoice.DocumentInvoice, invoice.BillingResolution{
		TenantID:  tenantID,
		Number:    "18760000001",
		Prefix:    "SETP",
		From:      990000000,
		To:        990000001,
		ValidFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, invoice.Bogota),
		ValidTo:   time.Date(2024, 12, 31, 0, 0, 0, 0, invoice.Bogota),
	})

	_, first, err := s.AllocateNumber(ctx, tenantID, invoice.DocumentInvoice, at)
	require.NoError(t, err)
	assert.Equal(t, int64(990000000), first)

	res, second, err := s.AllocateNumber(ctx, tenantID, invoice.DocumentInvoice, at)
	require.NoError(t, err)
	assert.Equal(t, int64(990000001), second)
	assert.Equal(t, "SETP", res.Prefix)

	_, _, err = s.AllocateNumber(ctx, tenantID, invoice.DocumentInvoice, at)
	assert.ErrorIs(t, err, invoice.ErrResolutionExhausted)

	_, _, err = s.AllocateNumber(ctx, tenantID, invoice.DocumentCreditNote, at)
	assert.ErrorIs(t, err, invoice.ErrResolutionExhausted)
}

func TestStore_AllocateNumber_ValidityWindow(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	s := memstore.New()
	s.AddResolution(invoice.DocumentInvoice, invoice.BillingResolution{
		TenantID:  tenantID,
		Prefix:    "SETP",
		From:      1,
		To:        100,
		ValidFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, invoice.Bogota),
		ValidTo:   time.Date(2024, 12, 31, 0, 0, 0, 0, invoice.Bogota),
	})

	_, _, err := s.AllocateNumber(ctx, tenantID, invoice.DocumentInvoice, time.Date(2024, 12, 31, 23, 59, 59, 0, invoice.Bogota))
	require.NoError(t, err)

	_, _, err = s.AllocateNumber(ctx, tenantID, invoice.DocumentInvoice, time.Date(2025, 1, 1, 0, 0, 0, 0, invoice.Bogota))
	assert.ErrorIs(t, err, invoice.ErrResolutionExhausted)
}

func TestStore_StatusAndArtifacts(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	inv := &invoice.Invoice{TenantID: uuid.New(), Status: invoice.StatusDraft}
	require.NoError(t, s.CreateInvoice(ctx, inv))

	require.NoError(t, s.SaveCode(ctx, inv.ID, "abc"))
	require.NoError(t, s.SaveCode(ctx, inv.ID, "abc"))
	assert.ErrorIs(t, s.SaveCode(ctx, inv.ID, "def"), invoice.ErrImmutable)

	require.NoError(t, s.UpdateStatus(ctx, inv.ID, invoice.StatusDraft, invoice.StatusCoded))
	assert.ErrorIs(t, s.UpdateStatus(ctx, inv.ID, invoice.StatusDraft, invoice.StatusCoded), invoice.ErrConcurrentUpdate)
	assert.ErrorIs(t, s.UpdateStatus(ctx, uuid.New(), invoice.StatusDraft, invoice.StatusCoded), invoice.ErrNotFound)

	inv.Items = []invoice.LineItem{{Description: "late edit"}}
	assert.ErrorIs(t, s.UpdateDraft(ctx, inv), invoice.ErrImmutable)

	got, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusCoded, got.Status)
	assert.Equal(t, "abc", got.Code)
	assert.Empty(t, got.Items)
}

func TestStore_UpdateDraftAfterCodeIsSaved(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	inv := &invoice.Invoice{TenantID: uuid.New(), Status: invoice.StatusDraft, Note: "first"}
	require.NoError(t, s.CreateInvoice(ctx, inv))

	inv.Note = "second"
	require.NoError(t, s.UpdateDraft(ctx, inv))

	require.NoError(t, s.SaveCode(ctx, inv.ID, "abc"))

	// The coded transition never happened; the stored code alone freezes the draft.
	inv.Note = "third"
	assert.ErrorIs(t, s.UpdateDraft(ctx, inv), invoice.ErrImmutable)

	got, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusDraft, got.Status)
	assert.Equal(t, "second", got.Note)
	assert.Equal(t, "abc", got.Code)
}

func TestStore_AttemptsAreOrdered(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	inv := &invoice.Invoice{TenantID: uuid.New(), Status: invoice.StatusSubmitting}
	require.NoError(t, s.CreateInvoice(ctx, inv))

	for _, o := range []invoice.Outcome{invoice.OutcomeTransportError, invoice.OutcomeAccepted} {
		require.NoError(t, s.AppendAttempt(ctx, &invoice.SubmissionAttempt{InvoiceID: inv.ID, Outcome: o}))
	}

	assert.ErrorIs(t, s.AppendAttempt(ctx, &invoice.SubmissionAttempt{InvoiceID: uuid.New()}), invoice.ErrNotFound)

	attempts, err := s.ListAttempts(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, 1, attempts[0].Sequence)
	assert.Equal(t, invoice.OutcomeTransportError, attempts[0].Outcome)
	assert.Equal(t, 2, attempts[1].Sequence)
	assert.Equal(t, invoice.OutcomeAccepted, attempts[1].Outcome)
}
