package billing

import (
	"time"

	"github.com/google/uuid"
)

type InvoiceStatus string

const (
	StatusDraft   InvoiceStatus = "draft"
	StatusIssued  InvoiceStatus = "issued"
	StatusPartial InvoiceStatus = "partially_paid"
	StatusPaid    InvoiceStatus = "paid"
	StatusVoid    InvoiceStatus = "void"
)

func (s InvoiceStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusIssued, StatusPartial, StatusPaid, StatusVoid:
		return true
	}
	return false
}

type PaymentMethod string

const (
	MethodCash      PaymentMethod = "cash"
	MethodCard      PaymentMethod = "card"
	MethodInsurance PaymentMethod = "insurance"
	MethodTransfer  PaymentMethod = "bank_transfer"
)

// LineItem is a billed treatment. Amounts are in minor currency units
// (cents) to keep arithmetic exact.
type LineItem struct {
	Description    string `json:"description"`
	ToothNumber    string `json:"tooth_number,omitempty"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

func (li LineItem) TotalCents() int64 {
	return int64(li.Quantity) * li.UnitPriceCents
}

type Invoice struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
	DeletedAt *time.Time `gorm:"index"`

	PatientID     uuid.UUID  `gorm:"column:patient_id;type:uuid;not null;index"`
	DoctorID      uuid.UUID  `gorm:"column:doctor_id;type:uuid;not null;index"`
	AppointmentID *uuid.UUID `gorm:"column:appointment_id;type:uuid;index"`

	Number string `gorm:"column:number;type:varchar(30);uniqueIndex;not null"`

	Items          []LineItem `gorm:"column:items;serializer:json"`
	TotalCents     int64      `gorm:"column:total_cents;not null"`
	PaidCents      int64      `gorm:"column:paid_cents;not null;default:0"`
	Currency       string     `gorm:"column:currency;type:varchar(3);not null;default:'USD'"`
	DiscountCents  int64      `gorm:"column:discount_cents;not null;default:0"`

	Status   InvoiceStatus `gorm:"column:status;type:varchar(30);not null;default:'draft';index"`
	IssuedAt *time.Time    `gorm:"column:issued_at;index"`
	PaidAt   *time.Time    `gorm:"column:paid_at"`
	VoidedAt *time.Time    `gorm:"column:voided_at"`

	Notes string `gorm:"column:notes;type:text"`

	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null"`
}

func (Invoice) TableName() string {
	return "billing.invoices"
}

func (i *Invoice) OutstandingCents() int64 {
	return i.TotalCents - i.DiscountCents - i.PaidCents
}

// RecordPayment applies a payment and advances the status. Overpayment is
// rejected rather than carried as credit.
func (i *Invoice) RecordPayment(amountCents int64) error {
	if i.Status != StatusIssued && i.Status != StatusPartial {
		return ErrInvoiceNotPayable
	}
	if amountCents <= 0 || amountCents > i.OutstandingCents() {
		return ErrInvalidPaymentAmount
	}
	i.PaidCents += amountCents
	now := time.Now()
	if i.OutstandingCents() == 0 {
		i.Status = StatusPaid
		i.PaidAt = &now
	} else {
		i.Status = StatusPartial
	}
	return nil
}

func (i *Invoice) Issue() error {
	if i.Status != StatusDraft {
		return ErrInvoiceNotDraft
	}
	now := time.Now()
	i.Status = StatusIssued
	i.IssuedAt = &now
	return nil
}

func (i *Invoice) Void() error {
	if i.Status == StatusPaid || i.Status == StatusVoid {
		return ErrInvoiceNotVoidable
	}
	now := time.Now()
	i.Status = StatusVoid
	i.VoidedAt = &now
	return nil
}

type CreateInvoiceCommand struct {
	PatientID     uuid.UUID
	DoctorID      uuid.UUID
	AppointmentID *uuid.UUID
	Items         []LineItem
	DiscountCents int64
	Currency      string
	Notes         string
	CreatedBy     uuid.UUID
}

type ListInvoicesQuery struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    *InvoiceStatus
	Page      int
	PageSize  int
}

type PagedInvoices struct {
	Invoices   []*Invoice
	TotalCount int64
	Page       int
	PageSize   int
	TotalPages int
}
