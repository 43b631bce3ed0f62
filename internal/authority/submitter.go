package authority

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/factura/internal/invoice"
	"github.com/MrJamesThe3rd/factura/internal/lifecycle"
	"github.com/MrJamesThe3rd/factura/internal/metrics"
)

var ErrInFlight = errors.New("document is already being submitted")

//go:generate mockgen -source=submitter.go -destination=submitter_mock.go -package=authority

type Transport interface {
	Send(ctx context.Context, req Request) Result
	Status(ctx context.Context, code string) Result
}

type AttemptRecorder interface {
	AppendAttempt(ctx context.Context, a *invoice.SubmissionAttempt) error
}

type Submitter struct {
	transport Transport
	recorder  AttemptRecorder
	dedupe    Dedupe
	policy    lifecycle.RetryPolicy
	metrics   *metrics.Collector
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

type SubmitterOption func(*Submitter)

func WithSubmitterMetrics(m *metrics.Collector) SubmitterOption {
	return func(s *Submitter) {
		s.metrics = m
	}
}

// WithSleep replaces the backoff wait; it must return ctx.Err() when ctx ends first.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) SubmitterOption {
	return func(s *Submitter) {
		s.sleep = sleep
	}
}

func WithSubmitterClock(now func() time.Time) SubmitterOption {
	return func(s *Submitter) {
		s.now = now
	}
}

func NewSubmitter(transport Transport, recorder AttemptRecorder, dedupe Dedupe, policy lifecycle.RetryPolicy, opts ...SubmitterOption) *Submitter {
	if dedupe == nil {
		dedupe = NewMemoryDedupe(24 * time.Hour)
	}

	s := &Submitter{
		transport: transport,
		recorder:  recorder,
		dedupe:    dedupe,
		policy:    policy,
		now:       time.Now,
		sleep:     sleepContext,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// PayloadHash identifies the exact bytes sent to DIAN.
func PayloadHash(doc []byte) string {
	sum := sha256.Sum256(doc)
	return hex.EncodeToString(sum[:])
}

// IdempotencyKey is stable for one signed artifact, so every retry of it carries the same key.
func IdempotencyKey(code string, doc []byte) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(code+":"+PayloadHash(doc))).String()
}

// Submit delivers req and returns Accepted, Rejected or a TransportError result once retries
// are exhausted. Each transmission is recorded before the next one starts. After an ambiguous
// failure DIAN is asked for the document status before anything is resent.
func (s *Submitter) Submit(ctx context.Context, req Request) Result {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = IdempotencyKey(req.Code, req.Document)
	}

	trackID, ok, err := s.dedupe.Accepted(ctx, req.Code)
	if err != nil {
		slog.Warn("dedupe lookup failed", "invoice_id", req.InvoiceID, "error", err)
	} else if ok {
		s.metrics.ObserveDedupeHit()
		slog.Info("document already accepted, skipping transmission", "invoice_id", req.InvoiceID)

		return Result{Outcome: OutcomeAccepted, TrackID: trackID}
	}

	claimed, err := s.dedupe.Claim(ctx, req.Code)
	if err != nil {
		slog.Warn("dedupe claim failed, continuing unguarded", "invoice_id", req.InvoiceID, "error", err)

		claimed = true
	}

	if !claimed {
		return transportResult(&TransportError{Cause: ErrInFlight, Ambiguous: true})
	}

	defer func() {
		if err := s.dedupe.Release(context.WithoutCancel(ctx), req.Code); err != nil {
			slog.Warn("failed to release dedupe claim", "invoice_id", req.InvoiceID, "error", err)
		}
	}()

	var (
		last      Result
		ambiguous bool
	)

	for round := 1; round <= s.policy.MaxAttempts; round++ {
		if round > 1 {
			if err := s.sleep(ctx, s.policy.Backoff(round-1)); err != nil {
				slog.Info("submission retries stopped by caller", "invoice_id", req.InvoiceID, "round", round)
				return last
			}
		}

		if err := ctx.Err(); err != nil {
			if round == 1 {
				return transportResult(&TransportError{Cause: err})
			}

			return last
		}

		if ambiguous {
			r, settled := s.settle(ctx, req)
			if settled {
				return r
			}

			if r.Outcome != OutcomeNotFound {
				continue
			}

			ambiguous = false
		}

		var recorded bool

		last, recorded = s.attempt(ctx, req)

		switch last.Outcome {
		case OutcomeAccepted:
			s.markAccepted(ctx, req, last.TrackID)
			return last
		case OutcomeRejected:
			return last
		}

		if !recorded || last.Transport == nil || last.Transport.Permanent {
			return last
		}

		ambiguous = last.Transport.Ambiguous
	}

	return last
}

// settle runs a status check; it reports true when DIAN gave a definitive answer.
func (s *Submitter) settle(ctx context.Context, req Request) (Result, bool) {
	sctx, cancel := context.WithTimeout(ctx, s.policy.AttemptTimeout)
	defer cancel()

	r := s.transport.Status(sctx, req.Code)
	s.metrics.ObserveStatusCheck(string(r.Outcome))

	slog.Info("status check after ambiguous attempt", "invoice_id", req.InvoiceID, "outcome", r.Outcome)

	switch r.Outcome {
	case OutcomeAccepted:
		s.markAccepted(ctx, req, r.TrackID)
		return r, true
	case OutcomeRejected:
		return r, true
	}

	return r, false
}

// attempt performs one transmission. Once dispatched it is not cancelled by ctx; the attempt
// timeout alone bounds it.
func (s *Submitter) attempt(ctx context.Context, req Request) (Result, bool) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.policy.AttemptTimeout)
	defer cancel()

	started := s.now()
	r := s.transport.Send(actx, req)
	finished := s.now()

	a := &invoice.SubmissionAttempt{
		ID:             uuid.New(),
		InvoiceID:      req.InvoiceID,
		StartedAt:      started,
		FinishedAt:     finished,
		PayloadHash:    PayloadHash(req.Document),
		IdempotencyKey: req.IdempotencyKey,
		Outcome:        r.Outcome.attemptOutcome(),
		StatusCode:     r.StatusCode,
		TrackID:        r.TrackID,
		Errors:         r.Errors,
	}

	if r.Transport != nil {
		a.Cause = r.Transport.Error()
	}

	s.metrics.ObserveAttempt(string(a.Outcome), finished.Sub(started))

	if err := s.recorder.AppendAttempt(context.WithoutCancel(ctx), a); err != nil {
		slog.Error("failed to record submission attempt", "invoice_id", req.InvoiceID, "outcome", a.Outcome, "error", err)
		return r, false
	}

	slog.Info("submission attempt finished",
		"invoice_id", req.InvoiceID,
		"attempt", a.Sequence,
		"outcome", a.Outcome,
		"duration", finished.Sub(started),
	)

	return r, true
}

func (s *Submitter) markAccepted(ctx context.Context, req Request, trackID string) {
	if err := s.dedupe.MarkAccepted(context.WithoutCancel(ctx), req.Code, trackID); err != nil {
		slog.Warn("failed to remember accepted document", "invoice_id", req.InvoiceID, "error", err)
	}
}

func (o Outcome) attemptOutcome() invoice.Outcome {
	switch o {
	case OutcomeAccepted:
		return invoice.OutcomeAccepted
	case OutcomeRejected:
		return invoice.OutcomeRejected
	}

	return invoice.OutcomeTransportError
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
