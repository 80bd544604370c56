package appointment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create persists a new appointment. Returns ErrSlotTaken when the
	// (doctor, date, start_time) uniqueness constraint rejects the insert.
	Create(ctx context.Context, a *Appointment) error

	// GetByID returns ErrAppointmentNotFound if no row exists.
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// FindByDoctor returns every non-deleted appointment held by the doctor,
	// optionally excluding one id (the appointment being rescheduled).
	FindByDoctor(ctx context.Context, doctorID uuid.UUID, excludeID *uuid.UUID) ([]*Appointment, error)

	// FindByRoom returns every non-deleted appointment booked into the room,
	// across all doctors, optionally excluding one id.
	FindByRoom(ctx context.Context, roomNumber string, excludeID *uuid.UUID) ([]*Appointment, error)

	List(ctx context.Context, q *ListAppointmentsQuery) (*PagedAppointments, error)

	// UpdateGuarded saves the full row conditionally: the UPDATE only applies
	// while the stored status still equals expectStatus. A concurrent writer
	// that moved the status first makes this return ErrStaleAppointment,
	// so read-modify-write races fail loudly instead of last-write-wins.
	UpdateGuarded(ctx context.Context, a *Appointment, expectStatus Status) error
}
