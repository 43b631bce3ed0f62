package lifecycle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/factura/internal/invoice"
	"github.com/MrJamesThe3rd/factura/internal/lifecycle"
)

func TestNext(t *testing.T) {
	type testCase struct {
		name     string
		from     invoice.Status
		event    lifecycle.Event
		want     invoice.Status
		wantErr  error
		terminal bool
	}

	tests := []testCase{
		{name: "DraftCoded", from: invoice.StatusDraft, event: lifecycle.EventCoded, want: invoice.StatusCoded},
		{name: "CodedSigned", from: invoice.StatusCoded, event: lifecycle.EventSigned, want: invoice.StatusSigned},
		{name: "SignedSubmit", from: invoice.StatusSigned, event: lifecycle.EventSubmit, want: invoice.StatusSubmitting},
		{name: "SubmittingAccepted", from: invoice.StatusSubmitting, event: lifecycle.EventAccepted, want: invoice.StatusAccepted},
		{name: "SubmittingRejected", from: invoice.StatusSubmitting, event: lifecycle.EventRejected, want: invoice.StatusRejected},
		{name: "SubmittingTechnical", from: invoice.StatusSubmitting, event: lifecycle.EventTechnicalRejection, want: invoice.StatusCoded},
		{name: "SubmittingExhausted", from: invoice.StatusSubmitting, event: lifecycle.EventTransportExhausted, want: invoice.StatusTransportFailed},
		{name: "TransportFailedResubmit", from: invoice.StatusTransportFailed, event: lifecycle.EventSubmit, want: invoice.StatusSubmitting},
		{name: "TransportFailedSettledAccepted", from: invoice.StatusTransportFailed, event: lifecycle.EventAccepted, want: invoice.StatusAccepted},
		{name: "RejectedVoid", from: invoice.StatusRejected, event: lifecycle.EventVoid, want: invoice.StatusVoided},
		{name: "DraftSkipsSigning", from: invoice.StatusDraft, event: lifecycle.EventSubmit, wantErr: lifecycle.ErrInvalidTransition},
		{name: "SignedCannotAccept", from: invoice.StatusSigned, event: lifecycle.EventAccepted, wantErr: lifecycle.ErrInvalidTransition},
		{
			name: "AcceptedIsFinal", from: invoice.StatusAccepted, event: lifecycle.EventSubmit,
			wantErr: lifecycle.ErrInvalidTransition, terminal: true,
		},
		{
			name: "AcceptedCannotVoid", from: invoice.StatusAccepted, event: lifecycle.EventVoid,
			wantErr: lifecycle.ErrInvalidTransition, terminal: true,
		},
		{
			name: "VoidedIsFinal", from: invoice.StatusVoided, event: lifecycle.EventVoid,
			wantErr: lifecycle.ErrInvalidTransition, terminal: true,
		},
		{
			name: "RejectedCannotResubmit", from: invoice.StatusRejected, event: lifecycle.EventSubmit,
			wantErr: lifecycle.ErrInvalidTransition, terminal: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := lifecycle.Next(tt.from, tt.event)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.terminal, errors.Is(err, invoice.ErrAlreadyTerminal))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsTerminalAndCanVoid(t *testing.T) {
	all := []invoice.Status{
		invoice.StatusDraft, invoice.StatusCoded, invoice.StatusSigned, invoice.StatusSubmitting,
		invoice.StatusAccepted, invoice.StatusRejected, invoice.StatusTransportFailed, invoice.StatusVoided,
	}

	terminal := map[invoice.Status]bool{
		invoice.StatusAccepted: true,
		invoice.StatusRejected: true,
		invoice.StatusVoided:   true,
	}

	for _, s := range all {
		assert.Equal(t, terminal[s], lifecycle.IsTerminal(s), "IsTerminal(%s)", s)

		wantVoid := s != invoice.StatusAccepted && s != invoice.StatusVoided
		assert.Equal(t, wantVoid, lifecycle.CanVoid(s), "CanVoid(%s)", s)
	}
}

func TestController_Apply(t *testing.T) {
	type testCase struct {
		name      string
		status    invoice.Status
		event     lifecycle.Event
		setupMock func(m *lifecycle.MockStatusStore, inv *invoice.Invoice)
		want      invoice.Status
		wantErr   error
	}

	tests := []testCase{
		{
			name:   "Success",
			status: invoice.StatusSigned,
			event:  lifecycle.EventSubmit,
			setupMock: func(m *lifecycle.MockStatusStore, inv *invoice.Invoice) {
				m.EXPECT().
					UpdateStatus(gomock.Any(), inv.ID, invoice.StatusSigned, invoice.StatusSubmitting).
					Return(nil)
			},
			want: invoice.StatusSubmitting,
		},
		{
			name:   "ConcurrentChange",
			status: invoice.StatusSigned,
			event:  lifecycle.EventSubmit,
			setupMock: func(m *lifecycle.MockStatusStore, inv *invoice.Invoice) {
				m.EXPECT().
					UpdateStatus(gomock.Any(), inv.ID, invoice.StatusSigned, invoice.StatusSubmitting).
					Return(invoice.ErrConcurrentUpdate)
			},
			want:    invoice.StatusSigned,
			wantErr: invoice.ErrConcurrentUpdate,
		},
		{
			name:      "InvalidTransitionNeverWrites",
			status:    invoice.StatusAccepted,
			event:     lifecycle.EventVoid,
			setupMock: func(*lifecycle.MockStatusStore, *invoice.Invoice) {},
			want:      invoice.StatusAccepted,
			wantErr:   invoice.ErrAlreadyTerminal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			inv := &invoice.Invoice{ID: uuid.New(), TenantID: uuid.New(), Status: tt.status}

			store := lifecycle.NewMockStatusStore(ctrl)
			tt.setupMock(store, inv)

			err := lifecycle.NewController(store).Apply(context.Background(), inv, tt.event)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			assert.Equal(t, tt.want, inv.Status)
		})
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := lifecycle.DefaultRetryPolicy()

	want := []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		8 * time.Second,
	}

	for i, w := range want {
		assert.Equal(t, w, p.Backoff(i+1), "attempt %d", i+1)
	}

	assert.Zero(t, p.Backoff(0))
}

func TestRetryPolicy_Validate(t *testing.T) {
	type testCase struct {
		name    string
		mutate  func(p *lifecycle.RetryPolicy)
		wantErr bool
	}

	tests := []testCase{
		{name: "Default", mutate: func(*lifecycle.RetryPolicy) {}},
		{name: "SingleAttempt", mutate: func(p *lifecycle.RetryPolicy) { p.MaxAttempts = 1 }},
		{name: "NoAttempts", mutate: func(p *lifecycle.RetryPolicy) { p.MaxAttempts = 0 }, wantErr: true},
		{name: "MaxBelowInitial", mutate: func(p *lifecycle.RetryPolicy) { p.MaxBackoff = time.Millisecond }, wantErr: true},
		{name: "ShrinkingBackoff", mutate: func(p *lifecycle.RetryPolicy) { p.Multiplier = 0.5 }, wantErr: true},
		{name: "NoAttemptTimeout", mutate: func(p *lifecycle.RetryPolicy) { p.AttemptTimeout = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := lifecycle.DefaultRetryPolicy()
			tt.mutate(&p)

			if tt.wantErr {
				assert.Error(t, p.Validate())
				return
			}

			assert.NoError(t, p.Validate())
		})
	}
}
