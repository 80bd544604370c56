package service

import (
	"context"
	"fmt"

	"github.com/brightdent/dentflow/internal/domain"
	"github.com/brightdent/dentflow/internal/domain/appointment"
	"github.com/brightdent/dentflow/internal/domain/patient"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	minDurationMins = 5
	maxDurationMins = 480
)

type AppointmentService struct {
	repo        appointment.Repository
	patientRepo patient.Repository
	userRepo    UserRepository
	scheduler   *SchedulingService
	auditSvc    *AuditService
	notifier    Notifier
	log         *zap.Logger
}

func NewAppointmentService(
	repo appointment.Repository,
	patientRepo patient.Repository,
	userRepo UserRepository,
	scheduler *SchedulingService,
	auditSvc *AuditService,
	notifier Notifier,
	log *zap.Logger,
) *AppointmentService {
	return &AppointmentService{
		repo:        repo,
		patientRepo: patientRepo,
		userRepo:    userRepo,
		scheduler:   scheduler,
		auditSvc:    auditSvc,
		notifier:    notifier,
		log:         log,
	}
}

func (s *AppointmentService) BookAppointment(ctx context.Context, cmd *appointment.CreateAppointmentCommand, actor domain.ActorContext, ip string) (*appointment.Appointment, error) {
	if err := validateBookCommand(cmd); err != nil {
		return nil, err
	}

	// ── Verify patient is active ───────────────────────────────────────────
	p, err := s.patientRepo.GetByID(ctx, cmd.PatientID)
	if err != nil {
		return nil, fmt.Errorf("verifying patient: %w", err)
	}
	if !p.IsActive() {
		return nil, patient.ErrPatientInactive
	}

	doctor, err := s.userRepo.GetByID(ctx, cmd.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("verifying doctor: %w", err)
	}
	if doctor.Role != domain.RoleDoctor {
		return nil, &ValidationError{Fields: []string{"doctor_id does not reference a doctor"}}
	}

	check, err := s.scheduler.ValidateScheduling(ctx, &ValidateSchedulingQuery{
		DoctorID:     cmd.DoctorID,
		Date:         cmd.Date,
		StartTime:    cmd.StartTime,
		DurationMins: cmd.DurationMins,
		RoomNumber:   cmd.RoomNumber,
	})
	if err != nil {
		return nil, fmt.Errorf("checking conflicts: %w", err)
	}
	if !check.Valid {
		return nil, &ConflictError{Resource: "appointment", Detail: check.Reason}
	}

	a := &appointment.Appointment{
		PatientID:    cmd.PatientID,
		DoctorID:     cmd.DoctorID,
		DoctorName:   doctor.FullName(),
		Date:         cmd.Date,
		StartTime:    cmd.StartTime,
		DurationMins: cmd.DurationMins,
		RoomNumber:   cmd.RoomNumber,
		Status:       appointment.StatusConfirmed,
		Reason:       cmd.Reason,
		Notes:        cmd.Notes,
		CreatedBy:    cmd.CreatedBy,
	}

	if err := s.repo.Create(ctx, a); err != nil {
		s.log.Error("failed to create appointment", zap.Error(err))
		return nil, fmt.Errorf("creating appointment: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID:       actor.ID,
		UserRole:     string(actor.Role),
		Action:       "create",
		ResourceType: "appointment",
		ResourceID:   a.ID.String(),
		IPAddress:    ip,
	})
	s.notifier.AppointmentBooked(ctx, a)

	return a, nil
}

// RescheduleAppointment moves an appointment to a new slot. The conflict
// validator only runs when the slot actually changes; edits to notes alone
// must not trigger revalidation.
func (s *AppointmentService) RescheduleAppointment(ctx context.Context, id uuid.UUID, cmd *appointment.RescheduleAppointmentCommand, actor domain.ActorContext, ip string) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Status.CountsForScheduling() {
		return nil, &ConflictError{
			Resource: "appointment",
			Detail:   fmt.Sprintf("appointment is %s and can no longer be rescheduled", a.Status),
		}
	}
	if actor.Role == domain.RoleDoctor && a.DoctorID != actor.ID {
		return nil, ErrForbidden
	}

	prevStatus := a.Status
	slotChanged := false

	if cmd.Date != nil && !cmd.Date.Equal(a.Date) {
		a.Date = *cmd.Date
		slotChanged = true
	}
	if cmd.StartTime != nil && *cmd.StartTime != a.StartTime {
		a.StartTime = *cmd.StartTime
		slotChanged = true
	}
	if cmd.DurationMins != nil && *cmd.DurationMins != a.DurationMins {
		a.DurationMins = *cmd.DurationMins
		slotChanged = true
	}
	if cmd.RoomNumber != nil && *cmd.RoomNumber != a.RoomNumber {
		a.RoomNumber = *cmd.RoomNumber
		slotChanged = true
	}
	if cmd.Notes != nil {
		a.Notes = *cmd.Notes
	}

	if slotChanged {
		if a.DurationMins < minDurationMins || a.DurationMins > maxDurationMins {
			return nil, &ValidationError{Fields: []string{fmt.Sprintf("duration_mins must be between %d and %d", minDurationMins, maxDurationMins)}}
		}
		check, err := s.scheduler.ValidateScheduling(ctx, &ValidateSchedulingQuery{
			DoctorID:             a.DoctorID,
			Date:                 a.Date,
			StartTime:            a.StartTime,
			DurationMins:         a.DurationMins,
			ExcludeAppointmentID: &a.ID,
			RoomNumber:           a.RoomNumber,
		})
		if err != nil {
			return nil, fmt.Errorf("checking conflicts: %w", err)
		}
		if !check.Valid {
			return nil, &ConflictError{Resource: "appointment", Detail: check.Reason}
		}
	}

	if err := s.repo.UpdateGuarded(ctx, a, prevStatus); err != nil {
		return nil, fmt.Errorf("updating appointment: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID:       actor.ID,
		UserRole:     string(actor.Role),
		Action:       "update",
		ResourceType: "appointment",
		ResourceID:   id.String(),
		IPAddress:    ip,
	})

	return a, nil
}

func (s *AppointmentService) GetAppointment(ctx context.Context, id uuid.UUID, actor domain.ActorContext, ip string) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: actor.ID, UserRole: string(actor.Role),
		Action: "read", ResourceType: "appointment", ResourceID: id.String(), IPAddress: ip,
	})

	return a, nil
}

func (s *AppointmentService) CancelAppointment(ctx context.Context, id uuid.UUID, reason string, actor domain.ActorContext, ip string) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleDoctor && a.DoctorID != actor.ID {
		return nil, ErrForbidden
	}

	prevStatus := a.Status
	if err := a.Cancel(reason, actor.ID); err != nil {
		return nil, &ConflictError{
			Resource: "appointment",
			Detail:   fmt.Sprintf("appointment is already %s", prevStatus),
		}
	}

	if err := s.repo.UpdateGuarded(ctx, a, prevStatus); err != nil {
		return nil, fmt.Errorf("updating appointment status: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: actor.ID, UserRole: string(actor.Role),
		Action: "update", ResourceType: "appointment", ResourceID: id.String(), IPAddress: ip,
		Changes: fmt.Sprintf(`{"status":"cancelled","reason":%q}`, reason),
	})
	s.notifier.AppointmentCancelled(ctx, a)

	return a, nil
}

func (s *AppointmentService) CompleteAppointment(ctx context.Context, id uuid.UUID, actor domain.ActorContext, ip string) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleDoctor && a.DoctorID != actor.ID {
		return nil, ErrForbidden
	}
	if !a.CanTransitionTo(appointment.StatusCompleted) {
		return nil, &ConflictError{
			Resource: "appointment",
			Detail:   fmt.Sprintf("appointment cannot be completed from status %s", a.Status),
		}
	}

	prevStatus := a.Status
	a.Status = appointment.StatusCompleted
	if err := s.repo.UpdateGuarded(ctx, a, prevStatus); err != nil {
		return nil, fmt.Errorf("updating appointment status: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: actor.ID, UserRole: string(actor.Role),
		Action: "update", ResourceType: "appointment", ResourceID: id.String(), IPAddress: ip,
	})

	return a, nil
}

func (s *AppointmentService) ListAppointments(ctx context.Context, q *appointment.ListAppointmentsQuery, actor domain.ActorContext) (*appointment.PagedAppointments, error) {
	// Doctors see their own schedule only
	if actor.Role == domain.RoleDoctor {
		q.DoctorID = &actor.ID
	}
	if q.PageSize <= 0 || q.PageSize > 100 {
		q.PageSize = 20
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	return s.repo.List(ctx, q)
}

func validateBookCommand(cmd *appointment.CreateAppointmentCommand) error {
	var errs []string

	if cmd.PatientID == uuid.Nil {
		errs = append(errs, "patient_id is required")
	}
	if cmd.DoctorID == uuid.Nil {
		errs = append(errs, "doctor_id is required")
	}
	if cmd.Date.IsZero() {
		errs = append(errs, "date is required")
	}
	if _, err := appointment.ParseClock(cmd.StartTime); err != nil {
		errs = append(errs, err.Error())
	}
	if cmd.DurationMins < minDurationMins || cmd.DurationMins > maxDurationMins {
		errs = append(errs, fmt.Sprintf("duration_mins must be between %d and %d", minDurationMins, maxDurationMins))
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
