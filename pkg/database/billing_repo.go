package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/brightdent/dentflow/internal/domain/billing"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type billingRepo struct {
	db *gorm.DB
}

func NewBillingRepository(db *gorm.DB) billing.Repository {
	return &billingRepo{db: db}
}

func (r *billingRepo) Create(ctx context.Context, i *billing.Invoice) error {
	return r.db.WithContext(ctx).Create(i).Error
}

func (r *billingRepo) GetByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	var inv billing.Invoice
	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, billing.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *billingRepo) Update(ctx context.Context, i *billing.Invoice) error {
	return r.db.WithContext(ctx).Save(i).Error
}

func (r *billingRepo) List(ctx context.Context, q *billing.ListInvoicesQuery) (*billing.PagedInvoices, error) {
	base := r.db.WithContext(ctx).
		Model(&billing.Invoice{}).
		Where("deleted_at IS NULL")

	if q.PatientID != nil {
		base = base.Where("patient_id = ?", *q.PatientID)
	}
	if q.DoctorID != nil {
		base = base.Where("doctor_id = ?", *q.DoctorID)
	}
	if q.Status != nil {
		base = base.Where("status = ?", *q.Status)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting invoices: %w", err)
	}

	var invoices []*billing.Invoice
	err := base.
		Order("created_at DESC").
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(q.PageSize) - 1) / int64(q.PageSize))
	return &billing.PagedInvoices{
		Invoices:   invoices,
		TotalCount: total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: totalPages,
	}, nil
}

func (r *billingRepo) NextNumber(ctx context.Context) (string, error) {
	var seq int64

	// A dedicated sequence keeps invoice numbers gapless enough for audits
	// and safe under concurrent issuance.
	if err := r.db.WithContext(ctx).
		Exec("CREATE SEQUENCE IF NOT EXISTS billing.invoice_number_seq").Error; err != nil {
		return "", fmt.Errorf("ensuring invoice sequence: %w", err)
	}
	if err := r.db.WithContext(ctx).
		Raw("SELECT nextval('billing.invoice_number_seq')").Scan(&seq).Error; err != nil {
		return "", fmt.Errorf("allocating invoice number: %w", err)
	}

	return fmt.Sprintf("INV-%06d", seq), nil
}
