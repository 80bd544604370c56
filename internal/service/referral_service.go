package service

import (
	"context"
	"fmt"
	"time"

	"github.com/brightdent/dentflow/internal/domain"
	"github.com/brightdent/dentflow/internal/domain/appointment"
	"github.com/brightdent/dentflow/internal/domain/referral"
	"github.com/brightdent/dentflow/internal/domain/report"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReferralService owns the joint lifecycle of an appointment and its
// referral rows. Every operation re-reads both entities before mutating and
// persists through status-guarded updates, so two racing actions on the same
// referral fail loudly instead of last-write-wins.
type ReferralService struct {
	apptRepo   appointment.Repository
	refRepo    referral.Repository
	reportRepo report.Repository
	userRepo   UserRepository
	auditSvc   *AuditService
	notifier   Notifier
	log        *zap.Logger
}

func NewReferralService(
	apptRepo appointment.Repository,
	refRepo referral.Repository,
	reportRepo report.Repository,
	userRepo UserRepository,
	auditSvc *AuditService,
	notifier Notifier,
	log *zap.Logger,
) *ReferralService {
	return &ReferralService{
		apptRepo:   apptRepo,
		refRepo:    refRepo,
		reportRepo: reportRepo,
		userRepo:   userRepo,
		auditSvc:   auditSvc,
		notifier:   notifier,
		log:        log,
	}
}

// ReferralActionResult carries both entities after a transition, since every
// action that moves the referral may also mutate the appointment.
type ReferralActionResult struct {
	Referral    *referral.Referral
	Appointment *appointment.Appointment
}

// CreateReferral hands the case to another doctor and opens a new referral
// cycle. The holding doctor may refer; once the case has been referred back,
// only the original doctor may start the next cycle.
func (s *ReferralService) CreateReferral(ctx context.Context, cmd *referral.CreateReferralCommand, actor domain.ActorContext, ip string) (*referral.Referral, error) {
	if err := validateCreateReferral(cmd); err != nil {
		return nil, err
	}

	a, err := s.apptRepo.GetByID(ctx, cmd.AppointmentID)
	if err != nil {
		return nil, err
	}

	// Terminal appointments cannot start a referral cycle.
	if a.Status != appointment.StatusConfirmed && a.Status != appointment.StatusReferBack {
		return nil, &ConflictError{
			Resource: "appointment",
			Detail:   fmt.Sprintf("cannot refer an appointment in status %s", a.Status),
		}
	}

	if a.Status == appointment.StatusReferBack {
		if a.OriginalDoctorID == nil || !actor.IsDoctor(*a.OriginalDoctorID) {
			return nil, ErrForbidden
		}
	} else if !actor.IsDoctor(a.DoctorID) {
		return nil, ErrForbidden
	}

	if cmd.ToDoctorID == actor.ID {
		return nil, referral.ErrSelfReferral
	}

	// At most one active referral per appointment, re-checked against the
	// freshly fetched row rather than the IsReferred flag alone.
	if a.CurrentReferralID != nil {
		current, err := s.refRepo.GetByID(ctx, *a.CurrentReferralID)
		if err != nil {
			return nil, fmt.Errorf("fetching current referral: %w", err)
		}
		if current.Status.IsActive() {
			return nil, referral.ErrReferralActive
		}
	}

	target, err := s.userRepo.GetByID(ctx, cmd.ToDoctorID)
	if err != nil {
		return nil, fmt.Errorf("verifying target doctor: %w", err)
	}
	if target.Role != domain.RoleDoctor {
		return nil, &ValidationError{Fields: []string{"to_doctor_id does not reference a doctor"}}
	}

	from, err := s.userRepo.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching referring doctor: %w", err)
	}

	r := &referral.Referral{
		AppointmentID:  a.ID,
		FromDoctorID:   actor.ID,
		FromDoctorName: from.FullName(),
		ToDoctorID:     target.ID,
		ToDoctorName:   target.FullName(),
		Reason:         cmd.Reason,
		Status:         referral.StatusPending,
	}
	if err := s.refRepo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("creating referral: %w", err)
	}

	prevStatus := a.Status

	// First referral on this appointment: snapshot the holder so reject and
	// refer-back can restore it.
	if a.OriginalDoctorID == nil {
		priorID := a.DoctorID
		a.OriginalDoctorID = &priorID
		a.OriginalDoctorName = a.DoctorName
	}
	a.DoctorID = target.ID
	a.DoctorName = target.FullName()
	a.IsReferred = true
	a.CurrentReferralID = &r.ID
	if prevStatus == appointment.StatusReferBack {
		// Re-referral exits the refer-back state and starts a fresh cycle.
		a.Status = appointment.StatusConfirmed
		a.AwaitingOriginalDoctorAction = false
		a.LastReferBackDate = nil
	}

	if err := s.apptRepo.UpdateGuarded(ctx, a, prevStatus); err != nil {
		s.log.Error("appointment update failed after referral insert",
			zap.String("referral_id", r.ID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("updating appointment: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: actor.ID, UserRole: string(actor.Role),
		Action: "create", ResourceType: "referral", ResourceID: r.ID.String(), IPAddress: ip,
		Changes: fmt.Sprintf(`{"appointment_id":%q,"to_doctor_id":%q}`, a.ID, target.ID),
	})
	s.notifier.ReferralCreated(ctx, r)

	s.log.Info("referral created",
		zap.String("referral_id", r.ID.String()),
		zap.String("appointment_id", a.ID.String()),
		zap.String("from", actor.ID.String()),
		zap.String("to", target.ID.String()),
	)

	return r, nil
}

// ApplyAction runs one transition of the referral state machine. All four
// actions are taken by the referral's target doctor.
func (s *ReferralService) ApplyAction(ctx context.Context, referralID uuid.UUID, act referral.Action, actor domain.ActorContext, ip string) (*ReferralActionResult, error) {
	r, err := s.refRepo.GetByID(ctx, referralID)
	if err != nil {
		return nil, err
	}
	a, err := s.apptRepo.GetByID(ctx, r.AppointmentID)
	if err != nil {
		return nil, err
	}

	if !actor.IsDoctor(r.ToDoctorID) {
		return nil, ErrForbidden
	}

	prevRefStatus := r.Status
	prevApptStatus := a.Status
	now := time.Now()
	apptChanged := false

	switch act := act.(type) {
	case referral.Accept:
		if !r.CanTransitionTo(referral.StatusAccepted) {
			return nil, transitionConflict(act, r.Status)
		}
		r.Status = referral.StatusAccepted
		a.Status = appointment.StatusConfirmed
		apptChanged = true

	case referral.ReferBack:
		if !r.CanTransitionTo(referral.StatusReferredBack) {
			return nil, transitionConflict(act, r.Status)
		}
		r.Status = referral.StatusReferredBack
		r.Notes = act.Notes
		a.Status = appointment.StatusReferBack
		a.AwaitingOriginalDoctorAction = true
		a.LastReferBackDate = &now
		a.IsReferred = false
		apptChanged = true

	case referral.Complete:
		if !r.CanTransitionTo(referral.StatusCompleted) {
			return nil, transitionConflict(act, r.Status)
		}
		r.Status = referral.StatusCompleted
		r.ResolvedAt = &now
		// Closing the appointment is a separate, later action.

	case referral.Reject:
		if !r.CanTransitionTo(referral.StatusRejected) {
			return nil, transitionConflict(act, r.Status)
		}
		r.Status = referral.StatusRejected
		r.ResolvedAt = &now
		// Hand the case straight back to the doctor who held it.
		if a.OriginalDoctorID != nil {
			a.DoctorID = *a.OriginalDoctorID
			a.DoctorName = a.OriginalDoctorName
		}
		a.IsReferred = false
		a.OriginalDoctorID = nil
		a.OriginalDoctorName = ""
		a.CurrentReferralID = nil
		apptChanged = true
	}

	if err := s.refRepo.UpdateGuarded(ctx, r, prevRefStatus); err != nil {
		return nil, fmt.Errorf("updating referral: %w", err)
	}
	if apptChanged {
		if err := s.apptRepo.UpdateGuarded(ctx, a, prevApptStatus); err != nil {
			return nil, fmt.Errorf("updating appointment: %w", err)
		}
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: actor.ID, UserRole: string(actor.Role),
		Action: "update", ResourceType: "referral", ResourceID: r.ID.String(), IPAddress: ip,
		Changes: fmt.Sprintf(`{"action":%q}`, act.Name()),
	})

	switch act.(type) {
	case referral.Accept:
		s.notifier.ReferralAccepted(ctx, r)
	case referral.ReferBack:
		s.notifier.ReferralReferredBack(ctx, r)
	}

	return &ReferralActionResult{Referral: r, Appointment: a}, nil
}

// CloseAppointment ends the clinical episode. A report must exist first;
// an active referral is force-completed as a side effect.
func (s *ReferralService) CloseAppointment(ctx context.Context, appointmentID uuid.UUID, actor domain.ActorContext, ip string) (*appointment.Appointment, error) {
	a, err := s.apptRepo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	isOriginal := a.OriginalDoctorID != nil && actor.IsDoctor(*a.OriginalDoctorID)
	if !actor.IsDoctor(a.DoctorID) && !isOriginal && actor.Role != domain.RoleAdmin {
		return nil, ErrForbidden
	}

	if !a.CanTransitionTo(appointment.StatusClosed) {
		return nil, &ConflictError{
			Resource: "appointment",
			Detail:   fmt.Sprintf("appointment is already %s", a.Status),
		}
	}

	hasReport, err := s.reportRepo.ExistsForAppointment(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("checking reports: %w", err)
	}
	if !hasReport {
		return nil, appointment.ErrReportRequired
	}

	if a.CurrentReferralID != nil {
		r, err := s.refRepo.GetByID(ctx, *a.CurrentReferralID)
		if err != nil {
			return nil, fmt.Errorf("fetching current referral: %w", err)
		}
		if r.Status.IsActive() {
			prev := r.Status
			now := time.Now()
			r.Status = referral.StatusCompleted
			r.ResolvedAt = &now
			if err := s.refRepo.UpdateGuarded(ctx, r, prev); err != nil {
				return nil, fmt.Errorf("completing referral: %w", err)
			}
		}
	}

	prevStatus := a.Status
	a.Status = appointment.StatusClosed
	a.IsReferred = false
	a.AwaitingOriginalDoctorAction = false
	if err := s.apptRepo.UpdateGuarded(ctx, a, prevStatus); err != nil {
		return nil, fmt.Errorf("closing appointment: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: actor.ID, UserRole: string(actor.Role),
		Action: "update", ResourceType: "appointment", ResourceID: a.ID.String(), IPAddress: ip,
		Changes: `{"status":"closed"}`,
	})

	return a, nil
}

func (s *ReferralService) GetReferral(ctx context.Context, id uuid.UUID) (*referral.Referral, error) {
	return s.refRepo.GetByID(ctx, id)
}

// ListForAppointment returns the appointment's referral history, newest first.
func (s *ReferralService) ListForAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*referral.Referral, error) {
	if _, err := s.apptRepo.GetByID(ctx, appointmentID); err != nil {
		return nil, err
	}
	return s.refRepo.FindByAppointment(ctx, appointmentID)
}

// Inbox returns the actor's open referrals (pending and accepted).
func (s *ReferralService) Inbox(ctx context.Context, actor domain.ActorContext) ([]*referral.Referral, error) {
	if actor.Role != domain.RoleDoctor {
		return nil, ErrForbidden
	}
	return s.refRepo.FindInbox(ctx, actor.ID)
}

func transitionConflict(act referral.Action, from referral.Status) error {
	return &ConflictError{
		Resource: "referral",
		Detail:   fmt.Sprintf("cannot %s a referral in status %s", act.Name(), from),
	}
}

func validateCreateReferral(cmd *referral.CreateReferralCommand) error {
	var errs []string

	if cmd.AppointmentID == uuid.Nil {
		errs = append(errs, "appointment_id is required")
	}
	if cmd.ToDoctorID == uuid.Nil {
		errs = append(errs, "to_doctor_id is required")
	}
	if cmd.Reason == "" {
		errs = append(errs, "reason is required")
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
