// Package einvoice runs the compliance pipeline of one invoice: code, build, sign, submit and settle.
package einvoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/factura/internal/authority"
	"github.com/MrJamesThe3rd/factura/internal/credential"
	"github.com/MrJamesThe3rd/factura/internal/cufe"
	"github.com/MrJamesThe3rd/factura/internal/document"
	"github.com/MrJamesThe3rd/factura/internal/invoice"
	"github.com/MrJamesThe3rd/factura/internal/lifecycle"
	"github.com/MrJamesThe3rd/factura/internal/metrics"
	"github.com/MrJamesThe3rd/factura/internal/signer"
)

// ErrUnsettled is returned when DIAN could not tell whether it holds a document, so nothing was resent.
var ErrUnsettled = errors.New("document status at DIAN is not settled")

//go:generate mockgen -source=service.go -destination=service_mock.go -package=einvoice

type Repository interface {
	GetInvoice(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error)
	SaveCode(ctx context.Context, id uuid.UUID, code string) error
	SaveSignedDocument(ctx context.Context, id uuid.UUID, doc []byte) error
	SaveTrackID(ctx context.Context, id uuid.UUID, trackID string) error
	SavePDF(ctx context.Context, id uuid.UUID, pdf []byte) error
	SaveVoidReason(ctx context.Context, id uuid.UUID, reason string) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to invoice.Status) error
}

type Credentials interface {
	Get(ctx context.Context, tenantID uuid.UUID) (*credential.Credential, error)
}

type Submitter interface {
	Submit(ctx context.Context, req authority.Request) authority.Result
}

type StatusChecker interface {
	Status(ctx context.Context, code string) authority.Result
}

type Renderer interface {
	Render(inv *invoice.Invoice) ([]byte, error)
}

// Outcome is what a pipeline call left behind.
type Outcome struct {
	InvoiceID uuid.UUID                `json:"invoice_id"`
	Status    invoice.Status           `json:"status"`
	Code      string                   `json:"code,omitempty"`
	TrackID   string                   `json:"track_id,omitempty"`
	Errors    []invoice.AuthorityError `json:"errors,omitempty"`
	// Authority is the last answer DIAN gave during the call, empty if it was not contacted.
	Authority authority.Outcome `json:"authority,omitempty"`
}

func outcomeOf(inv *invoice.Invoice) Outcome {
	return Outcome{
		InvoiceID: inv.ID,
		Status:    inv.Status,
		Code:      inv.Code,
		TrackID:   inv.TrackID,
	}
}

type Service struct {
	repo        Repository
	credentials Credentials
	submitter   Submitter
	status      StatusChecker
	locker      Locker
	lifecycle   *lifecycle.Controller
	signer      *signer.Signer
	renderer    Renderer
	metrics     *metrics.Collector
	limits      invoice.Limits

	renders sync.WaitGroup
}

type Option func(*Service)

func WithSigner(sg *signer.Signer) Option {
	return func(s *Service) {
		s.signer = sg
	}
}

// WithRenderer enables PDF rendering of accepted invoices.
func WithRenderer(r Renderer) Option {
	return func(s *Service) {
		s.renderer = r
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLimits(l invoice.Limits) Option {
	return func(s *Service) {
		s.limits = l
	}
}

// WithLocker replaces the in-process lock, e.g. with Chain(NewKeyedLocker(), pgLocker).
func WithLocker(l Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

func NewService(repo Repository, creds Credentials, submitter Submitter, status StatusChecker, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		credentials: creds,
		submitter:   submitter,
		status:      status,
		locker:      NewKeyedLocker(),
		lifecycle:   lifecycle.NewController(repo),
		signer:      signer.New(),
		limits:      invoice.DefaultLimits(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Send runs the pipeline for a draft invoice. Calling it again returns the current status
// without reprocessing; rejected and voided invoices fail with invoice.ErrAlreadyTerminal.
func (s *Service) Send(ctx context.Context, id uuid.UUID) (Outcome, error) {
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("locking invoice: %w", err)
	}
	defer unlock()

	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Outcome{}, err
	}

	switch inv.Status {
	case invoice.StatusDraft:
		return s.observe(s.run(ctx, inv))
	case invoice.StatusRejected, invoice.StatusVoided:
		return outcomeOf(inv), fmt.Errorf("sending invoice %s in status %s: %w", inv.ID, inv.Status, invoice.ErrAlreadyTerminal)
	}

	slog.Info("invoice already processed, returning current status", "invoice_id", inv.ID, "status", inv.Status)

	return outcomeOf(inv), nil
}

// Resubmit continues the pipeline from wherever it stopped. Invoices whose last submission
// failed in transport are checked with DIAN first and only resent when DIAN does not know them.
func (s *Service) Resubmit(ctx context.Context, id uuid.UUID) (Outcome, error) {
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("locking invoice: %w", err)
	}
	defer unlock()

	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Outcome{}, err
	}

	switch inv.Status {
	case invoice.StatusDraft:
		return s.observe(s.run(ctx, inv))
	case invoice.StatusAccepted:
		return outcomeOf(inv), nil
	case invoice.StatusRejected, invoice.StatusVoided:
		return outcomeOf(inv), fmt.Errorf("resubmitting invoice %s in status %s: %w", inv.ID, inv.Status, invoice.ErrAlreadyTerminal)
	}

	cred, err := s.credentials.Get(ctx, inv.TenantID)
	if err != nil {
		return outcomeOf(inv), fmt.Errorf("loading credential: %w", err)
	}

	switch inv.Status {
	case invoice.StatusCoded:
		return s.observe(s.signAndSubmit(ctx, inv, cred))
	case invoice.StatusSigned:
		return s.observe(s.submit(ctx, inv, cred))
	}

	res := s.status.Status(ctx, inv.Code)

	switch res.Outcome {
	case authority.OutcomeAccepted, authority.OutcomeRejected:
		return s.observe(s.settle(context.WithoutCancel(ctx), inv, res))
	case authority.OutcomeNotFound:
		slog.Info("document unknown to DIAN, resending", "invoice_id", inv.ID)

		if inv.Status == invoice.StatusSubmitting {
			if err := s.lifecycle.Apply(ctx, inv, lifecycle.EventTransportExhausted); err != nil {
				return outcomeOf(inv), err
			}
		}

		return s.observe(s.submit(ctx, inv, cred))
	}

	out := outcomeOf(inv)
	out.Authority = res.Outcome

	return out, unsettled(res)
}

// CheckStatus asks DIAN about an invoice whose submission did not settle and records the answer.
// Other invoices are returned as they are.
func (s *Service) CheckStatus(ctx context.Context, id uuid.UUID) (Outcome, error) {
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("locking invoice: %w", err)
	}
	defer unlock()

	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Outcome{}, err
	}

	if inv.Status != invoice.StatusTransportFailed && inv.Status != invoice.StatusSubmitting {
		return outcomeOf(inv), nil
	}

	res := s.status.Status(ctx, inv.Code)

	switch res.Outcome {
	case authority.OutcomeAccepted, authority.OutcomeRejected:
		return s.observe(s.settle(context.WithoutCancel(ctx), inv, res))
	case authority.OutcomeTransportError:
		out := outcomeOf(inv)
		out.Authority = res.Outcome

		return out, unsettled(res)
	}

	out := outcomeOf(inv)
	out.Authority = res.Outcome

	return out, nil
}

// Void is an operator decision to abandon an invoice. Accepted invoices need a credit note instead.
func (s *Service) Void(ctx context.Context, id uuid.UUID, reason string) (Outcome, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Outcome{}, fmt.Errorf("%w: %w", invoice.ErrInvalidInput, invoice.FieldError{Field: "reason", Message: "is required"})
	}

	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("locking invoice: %w", err)
	}
	defer unlock()

	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Outcome{}, err
	}

	if _, err := lifecycle.Next(inv.Status, lifecycle.EventVoid); err != nil {
		return outcomeOf(inv), err
	}

	if err := s.repo.SaveVoidReason(ctx, inv.ID, reason); err != nil {
		return outcomeOf(inv), fmt.Errorf("saving void reason: %w", err)
	}

	if err := s.lifecycle.Apply(ctx, inv, lifecycle.EventVoid); err != nil {
		return outcomeOf(inv), err
	}

	return outcomeOf(inv), nil
}

// Wait blocks until pending PDF renders finish.
func (s *Service) Wait() {
	s.renders.Wait()
}

func (s *Service) run(ctx context.Context, inv *invoice.Invoice) (Outcome, error) {
	cred, err := s.credentials.Get(ctx, inv.TenantID)
	if err != nil {
		return outcomeOf(inv), fmt.Errorf("loading credential: %w", err)
	}

	if err := invoice.Validate(inv, s.limits); err != nil {
		return outcomeOf(inv), err
	}

	code, err := cufe.Generate(cufe.FromInvoice(inv, cred.Keys(), cred.Environment))
	if err != nil {
		return outcomeOf(inv), fmt.Errorf("generating code: %w", err)
	}

	if err := s.repo.SaveCode(ctx, inv.ID, code); err != nil {
		return outcomeOf(inv), fmt.Errorf("saving code: %w", err)
	}

	inv.Code = code

	if err := s.lifecycle.Apply(ctx, inv, lifecycle.EventCoded); err != nil {
		return outcomeOf(inv), err
	}

	return s.signAndSubmit(ctx, inv, cred)
}

func (s *Service) signAndSubmit(ctx context.Context, inv *invoice.Invoice, cred *credential.Credential) (Outcome, error) {
	doc, err := document.NewBuilder(cred.Software(), cred.Environment).Build(inv, inv.Code)
	if err != nil {
		return outcomeOf(inv), fmt.Errorf("building document: %w", err)
	}

	m := cred.Material()
	defer m.Zero()

	signed, err := s.signer.Sign(doc, m)
	if err != nil {
		return outcomeOf(inv), fmt.Errorf("signing document: %w", err)
	}

	if err := s.repo.SaveSignedDocument(ctx, inv.ID, signed.Document); err != nil {
		return outcomeOf(inv), fmt.Errorf("saving signed document: %w", err)
	}

	inv.SignedDocument = signed.Document

	if err := s.lifecycle.Apply(ctx, inv, lifecycle.EventSigned); err != nil {
		return outcomeOf(inv), err
	}

	return s.submit(ctx, inv, cred)
}

func (s *Service) submit(ctx context.Context, inv *invoice.Invoice, cred *credential.Credential) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return outcomeOf(inv), err
	}

	if err := s.lifecycle.Apply(ctx, inv, lifecycle.EventSubmit); err != nil {
		return outcomeOf(inv), err
	}

	res := s.submitter.Submit(ctx, authority.Request{
		InvoiceID:    inv.ID,
		DocumentType: inv.DocumentType,
		Code:         inv.Code,
		SupplierNIT:  inv.Supplier.TaxID,
		Year:         inv.IssuedAt.In(invoice.Bogota).Year(),
		Sequence:     inv.Sequence,
		Document:     inv.SignedDocument,
		TestSetID:    cred.Secrets.TestSetID,
	})

	return s.settle(context.WithoutCancel(ctx), inv, res)
}

// settle records a DIAN answer on inv. The authority error text is passed through verbatim.
func (s *Service) settle(ctx context.Context, inv *invoice.Invoice, res authority.Result) (Outcome, error) {
	switch res.Outcome {
	case authority.OutcomeAccepted:
		if err := s.repo.SaveTrackID(ctx, inv.ID, res.TrackID); err != nil {
			return outcomeOf(inv), fmt.Errorf("saving track id: %w", err)
		}

		inv.TrackID = res.TrackID

		if err := s.lifecycle.Apply(ctx, inv, lifecycle.EventAccepted); err != nil {
			return outcomeOf(inv), err
		}

		s.render(inv)

		out := outcomeOf(inv)
		out.Authority = res.Outcome

		return out, nil
	case authority.OutcomeRejected:
		event := lifecycle.EventRejected
		if res.Technical {
			event = lifecycle.EventTechnicalRejection
		}

		if err := s.lifecycle.Apply(ctx, inv, event); err != nil {
			return outcomeOf(inv), err
		}

		slog.Warn("invoice rejected by DIAN",
			"invoice_id", inv.ID,
			"status_code", res.StatusCode,
			"technical", res.Technical,
			"errors", len(res.Errors),
		)

		out := outcomeOf(inv)
		out.Errors = res.Errors
		out.Authority = res.Outcome

		return out, res.Err()
	}

	if inv.Status == invoice.StatusSubmitting {
		if err := s.lifecycle.Apply(ctx, inv, lifecycle.EventTransportExhausted); err != nil {
			return outcomeOf(inv), err
		}
	}

	slog.Error("invoice submission failed", "invoice_id", inv.ID, "error", res.Err())

	out := outcomeOf(inv)
	out.Authority = res.Outcome

	return out, res.Err()
}

// render produces the PDF in the background. A failure never touches the invoice status.
func (s *Service) render(inv *invoice.Invoice) {
	if s.renderer == nil {
		return
	}

	snapshot := *inv

	s.renders.Go(func() {
		pdf, err := s.renderer.Render(&snapshot)
		if err != nil {
			s.metrics.ObserveRenderFailure()
			slog.Error("failed to render invoice pdf", "invoice_id", snapshot.ID, "error", err)

			return
		}

		if err := s.repo.SavePDF(context.Background(), snapshot.ID, pdf); err != nil {
			s.metrics.ObserveRenderFailure()
			slog.Error("failed to save invoice pdf", "invoice_id", snapshot.ID, "error", err)
		}
	})
}

func (s *Service) observe(out Outcome, err error) (Outcome, error) {
	status := string(out.Status)
	if err != nil && out.Status != invoice.StatusRejected && out.Status != invoice.StatusTransportFailed {
		status = "error"
	}

	s.metrics.ObservePipeline(status)

	return out, err
}

func unsettled(res authority.Result) error {
	if res.Outcome == authority.OutcomeTransportError {
		return fmt.Errorf("%w: %w", ErrUnsettled, res.Err())
	}

	return fmt.Errorf("%w: %s", ErrUnsettled, res.Outcome)
}
