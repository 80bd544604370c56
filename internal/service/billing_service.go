package service

import (
	"context"
	"fmt"

	"github.com/brightdent/dentflow/internal/domain"
	"github.com/brightdent/dentflow/internal/domain/billing"
	"github.com/brightdent/dentflow/internal/domain/patient"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type BillingService struct {
	repo        billing.Repository
	patientRepo patient.Repository
	auditSvc    *AuditService
	log         *zap.Logger
}

func NewBillingService(repo billing.Repository, patientRepo patient.Repository, auditSvc *AuditService, log *zap.Logger) *BillingService {
	return &BillingService{repo: repo, patientRepo: patientRepo, auditSvc: auditSvc, log: log}
}

func (s *BillingService) CreateInvoice(ctx context.Context, cmd *billing.CreateInvoiceCommand, actor domain.ActorContext, ip string) (*billing.Invoice, error) {
	if len(cmd.Items) == 0 {
		return nil, billing.ErrNoLineItems
	}
	for _, item := range cmd.Items {
		if item.Quantity <= 0 || item.UnitPriceCents < 0 {
			return nil, &ValidationError{Fields: []string{"line items require a positive quantity and a non-negative unit price"}}
		}
	}

	if _, err := s.patientRepo.GetByID(ctx, cmd.PatientID); err != nil {
		return nil, fmt.Errorf("verifying patient: %w", err)
	}

	number, err := s.repo.NextNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocating invoice number: %w", err)
	}

	var total int64
	for _, item := range cmd.Items {
		total += item.TotalCents()
	}

	currency := cmd.Currency
	if currency == "" {
		currency = "USD"
	}

	inv := &billing.Invoice{
		PatientID:     cmd.PatientID,
		DoctorID:      cmd.DoctorID,
		AppointmentID: cmd.AppointmentID,
		Number:        number,
		Items:         cmd.Items,
		TotalCents:    total,
		DiscountCents: cmd.DiscountCents,
		Currency:      currency,
		Status:        billing.StatusDraft,
		Notes:         cmd.Notes,
		CreatedBy:     cmd.CreatedBy,
	}

	if err := s.repo.Create(ctx, inv); err != nil {
		s.log.Error("failed to create invoice", zap.Error(err))
		return nil, fmt.Errorf("creating invoice: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: actor.ID, UserRole: string(actor.Role),
		Action: "create", ResourceType: "invoice", ResourceID: inv.ID.String(), IPAddress: ip,
	})

	return inv, nil
}

func (s *BillingService) IssueInvoice(ctx context.Context, id uuid.UUID, actor domain.ActorContext, ip string) (*billing.Invoice, error) {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := inv.Issue(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, inv); err != nil {
		return nil, fmt.Errorf("updating invoice: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: actor.ID, UserRole: string(actor.Role),
		Action: "update", ResourceType: "invoice", ResourceID: id.String(), IPAddress: ip,
		Changes: `{"status":"issued"}`,
	})

	return inv, nil
}

func (s *BillingService) RecordPayment(ctx context.Context, id uuid.UUID, amountCents int64, method billing.PaymentMethod, actor domain.ActorContext, ip string) (*billing.Invoice, error) {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := inv.RecordPayment(amountCents); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, inv); err != nil {
		return nil, fmt.Errorf("updating invoice: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: actor.ID, UserRole: string(actor.Role),
		Action: "update", ResourceType: "invoice", ResourceID: id.String(), IPAddress: ip,
		Changes: fmt.Sprintf(`{"payment_cents":%d,"method":%q}`, amountCents, method),
	})

	return inv, nil
}

func (s *BillingService) VoidInvoice(ctx context.Context, id uuid.UUID, actor domain.ActorContext, ip string) (*billing.Invoice, error) {
	if actor.Role != domain.RoleAdmin && actor.Role != domain.RoleReceptionist {
		return nil, ErrForbidden
	}

	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := inv.Void(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, inv); err != nil {
		return nil, fmt.Errorf("updating invoice: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: actor.ID, UserRole: string(actor.Role),
		Action: "update", ResourceType: "invoice", ResourceID: id.String(), IPAddress: ip,
		Changes: `{"status":"void"}`,
	})

	return inv, nil
}

func (s *BillingService) GetInvoice(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *BillingService) ListInvoices(ctx context.Context, q *billing.ListInvoicesQuery) (*billing.PagedInvoices, error) {
	if q.PageSize <= 0 || q.PageSize > 100 {
		q.PageSize = 20
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	return s.repo.List(ctx, q)
}
