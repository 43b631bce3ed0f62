package invoice

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bogota is the DIAN reference timezone (UTC-5, no daylight saving).
var Bogota = time.FixedZone("COT", -5*60*60)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=invoice
type Repository interface {
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error)
	ListInvoices(ctx context.Context, filter ListFilter) ([]*Invoice, error)
	UpdateDraft(ctx context.Context, inv *Invoice) error
	AllocateNumber(ctx context.Context, tenantID uuid.UUID, docType DocumentType, at time.Time) (BillingResolution, int64, error)
	ListAttempts(ctx context.Context, invoiceID uuid.UUID) ([]*SubmissionAttempt, error)
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

type CreateParams struct {
	TenantID       uuid.UUID
	DocumentType   DocumentType
	IssuedAt       time.Time
	DueDate        *time.Time
	Payment        PaymentMeans
	Supplier       Party
	Customer       Party
	Items          []LineItem
	GlobalDiscount decimal.Decimal
	Note           string
	Reference      *BillingReference
}

type UpdateParams struct {
	DueDate        *time.Time
	Payment        *PaymentMeans
	Customer       *Party
	Items          []LineItem
	GlobalDiscount *decimal.Decimal
	Note           *string
}

type ListFilter struct {
	TenantID  *uuid.UUID
	Status    *Status
	StartDate *time.Time
	EndDate   *time.Time
}

// CreateDraft allocates the next number of the tenant's active resolution and stores a draft.
// Drafts are not validated here; violations are reported when the invoice is sent.
func (s *Service) CreateDraft(ctx context.Context, params CreateParams) (*Invoice, error) {
	inv := &Invoice{
		TenantID:       params.TenantID,
		DocumentType:   params.DocumentType,
		IssuedAt:       params.IssuedAt,
		DueDate:        params.DueDate,
		Currency:       "COP",
		Payment:        params.Payment,
		Supplier:       params.Supplier,
		Customer:       params.Customer,
		Items:          params.Items,
		GlobalDiscount: params.GlobalDiscount,
		Note:           params.Note,
		Reference:      params.Reference,
		Status:         StatusDraft,
	}

	if inv.DocumentType == "" {
		inv.DocumentType = DocumentInvoice
	}

	if inv.IssuedAt.IsZero() {
		inv.IssuedAt = s.now()
	}

	inv.IssuedAt = inv.IssuedAt.In(Bogota).Truncate(time.Second)

	if inv.Payment.Form == "" {
		inv.Payment = PaymentMeans{Form: "1", Code: "10"}
	}

	inv.Compute()

	res, seq, err := s.repo.AllocateNumber(ctx, inv.TenantID, inv.DocumentType, inv.IssuedAt)
	if err != nil {
		return nil, fmt.Errorf("allocating number: %w", err)
	}

	inv.Resolution = res
	inv.Sequence = seq
	inv.Number = res.Prefix + strconv.FormatInt(seq, 10)

	if err := s.repo.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	return inv, nil
}

// UpdateDraft applies params to a draft. Once a code is stored the invoice is immutable, even
// if its status never left draft.
func (s *Service) UpdateDraft(ctx context.Context, id uuid.UUID, params UpdateParams) (*Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	if inv.Status != StatusDraft || inv.Code != "" {
		return nil, ErrImmutable
	}

	if params.DueDate != nil {
		inv.DueDate = params.DueDate
	}

	if params.Payment != nil {
		inv.Payment = *params.Payment
	}

	if params.Customer != nil {
		inv.Customer = *params.Customer
	}

	if params.Items != nil {
		inv.Items = params.Items
	}

	if params.GlobalDiscount != nil {
		inv.GlobalDiscount = *params.GlobalDiscount
	}

	if params.Note != nil {
		inv.Note = *params.Note
	}

	inv.Compute()

	if err := s.repo.UpdateDraft(ctx, inv); err != nil {
		return nil, err
	}

	return inv, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Invoice, error) {
	return s.repo.ListInvoices(ctx, filter)
}

func (s *Service) Attempts(ctx context.Context, id uuid.UUID) ([]*SubmissionAttempt, error) {
	return s.repo.ListAttempts(ctx, id)
}
