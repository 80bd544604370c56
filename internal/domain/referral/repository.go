package referral

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Referral) error

	// GetByID returns ErrReferralNotFound if no row exists.
	GetByID(ctx context.Context, id uuid.UUID) (*Referral, error)

	// FindByAppointment returns the appointment's referral history,
	// newest first.
	FindByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*Referral, error)

	// FindInbox returns pending and accepted referrals addressed to the
	// doctor, newest first.
	FindInbox(ctx context.Context, toDoctorID uuid.UUID) ([]*Referral, error)

	// UpdateGuarded saves the row conditionally on the previously read
	// status (compare-and-swap). Returns ErrStaleReferral when a concurrent
	// action already moved the referral out of expectStatus.
	UpdateGuarded(ctx context.Context, r *Referral, expectStatus Status) error
}
