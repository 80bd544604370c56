package service

import (
	"context"
	"fmt"
	"time"

	"github.com/brightdent/dentflow/internal/domain/appointment"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SchedulingService decides whether a candidate slot can be booked. It is
// advisory: callers reject the write with the returned reason, and the
// partial unique index on (doctor_id, date, start_time) is what finally
// closes the validate-then-insert race between concurrent requests.
type SchedulingService struct {
	apptRepo appointment.Repository
	log      *zap.Logger
}

func NewSchedulingService(apptRepo appointment.Repository, log *zap.Logger) *SchedulingService {
	return &SchedulingService{apptRepo: apptRepo, log: log}
}

type ValidateSchedulingQuery struct {
	DoctorID     uuid.UUID
	Date         time.Time
	StartTime    string
	DurationMins int

	// Set when rescheduling, so the appointment does not conflict with itself.
	ExcludeAppointmentID *uuid.UUID

	// Optional second conflict dimension: when set, the slot must also be
	// free in this room across all doctors.
	RoomNumber string
}

// ScheduleCheck is the validator verdict. Reason is only set when the slot
// is rejected and names the concrete blocking window so staff can pick
// another slot.
type ScheduleCheck struct {
	Valid  bool
	Reason string
}

func (s *SchedulingService) ValidateScheduling(ctx context.Context, q *ValidateSchedulingQuery) (*ScheduleCheck, error) {
	if err := validateSchedulingQuery(q); err != nil {
		return nil, err
	}

	candidate, err := appointment.NewWindow(q.Date, q.StartTime, q.DurationMins)
	if err != nil {
		return nil, &ValidationError{Fields: []string{err.Error()}}
	}

	existing, err := s.apptRepo.FindByDoctor(ctx, q.DoctorID, q.ExcludeAppointmentID)
	if err != nil {
		return nil, fmt.Errorf("fetching doctor appointments: %w", err)
	}

	for _, a := range existing {
		if !a.Status.CountsForScheduling() {
			continue
		}
		w, err := a.Window()
		if err != nil {
			return nil, fmt.Errorf("reading stored appointment %s: %w", a.ID, err)
		}
		if candidate.Overlaps(w) {
			return &ScheduleCheck{
				Valid: false,
				Reason: fmt.Sprintf("doctor is already booked from %s on %s",
					w.ClockRange(), a.Date.Format("2006-01-02")),
			}, nil
		}
	}

	if q.RoomNumber != "" {
		check, err := s.validateRoom(ctx, q, candidate)
		if err != nil || !check.Valid {
			return check, err
		}
	}

	return &ScheduleCheck{Valid: true}, nil
}

// validateRoom checks the room dimension against every doctor's active
// appointments. Same-doctor rows are skipped; those are already covered by
// the doctor check and must be reported as doctor conflicts.
func (s *SchedulingService) validateRoom(ctx context.Context, q *ValidateSchedulingQuery, candidate appointment.Window) (*ScheduleCheck, error) {
	occupying, err := s.apptRepo.FindByRoom(ctx, q.RoomNumber, q.ExcludeAppointmentID)
	if err != nil {
		return nil, fmt.Errorf("fetching room appointments: %w", err)
	}

	for _, a := range occupying {
		if a.DoctorID == q.DoctorID || !a.Status.CountsForScheduling() {
			continue
		}
		w, err := a.Window()
		if err != nil {
			return nil, fmt.Errorf("reading stored appointment %s: %w", a.ID, err)
		}
		if candidate.Overlaps(w) {
			return &ScheduleCheck{
				Valid: false,
				Reason: fmt.Sprintf("room %s is already occupied from %s on %s",
					q.RoomNumber, w.ClockRange(), a.Date.Format("2006-01-02")),
			}, nil
		}
	}

	return &ScheduleCheck{Valid: true}, nil
}

func validateSchedulingQuery(q *ValidateSchedulingQuery) error {
	var errs []string

	if q.DoctorID == uuid.Nil {
		errs = append(errs, "doctor_id is required")
	}
	if q.Date.IsZero() {
		errs = append(errs, "date is required")
	}
	if q.StartTime == "" {
		errs = append(errs, "start_time is required")
	}
	if q.DurationMins <= 0 {
		errs = append(errs, "duration_mins must be positive")
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
