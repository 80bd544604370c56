package report

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *ClinicalReport) error

	// GetByID returns ErrReportNotFound if no row exists.
	GetByID(ctx context.Context, id uuid.UUID) (*ClinicalReport, error)

	// FindByAuthor returns the report filed by the doctor for the
	// appointment, or (nil, nil) when none exists. Absence is a normal
	// outcome for the eligibility rules, not an error.
	FindByAuthor(ctx context.Context, appointmentID, doctorID uuid.UUID) (*ClinicalReport, error)

	// FindLatestByRole returns the newest report on the appointment carrying
	// the given doctor role, or (nil, nil) when none exists.
	FindLatestByRole(ctx context.Context, appointmentID uuid.UUID, role DoctorRole) (*ClinicalReport, error)

	// ExistsForAppointment reports whether any report has been filed for the
	// appointment. Gates appointment closing.
	ExistsForAppointment(ctx context.Context, appointmentID uuid.UUID) (bool, error)

	// ListByAppointment returns the appointment's reports, oldest first, so
	// the UI can walk the PreviousReportID chain in order.
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*ClinicalReport, error)
}
