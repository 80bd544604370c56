package service

import (
	"context"
	"fmt"

	"github.com/brightdent/dentflow/internal/domain"
	"github.com/brightdent/dentflow/internal/domain/appointment"
	"github.com/brightdent/dentflow/internal/domain/report"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ReportService struct {
	apptRepo   appointment.Repository
	reportRepo report.Repository
	userRepo   UserRepository
	auditSvc   *AuditService
	log        *zap.Logger
}

func NewReportService(
	apptRepo appointment.Repository,
	reportRepo report.Repository,
	userRepo UserRepository,
	auditSvc *AuditService,
	log *zap.Logger,
) *ReportService {
	return &ReportService{
		apptRepo:   apptRepo,
		reportRepo: reportRepo,
		userRepo:   userRepo,
		auditSvc:   auditSvc,
		log:        log,
	}
}

// ReportEligibility is the verdict of CanCreateReport. When Allowed,
// DoctorRole carries the role the new report must be filed under and
// PreviousReportID the back-link it should carry, if any.
type ReportEligibility struct {
	Allowed          bool
	Reason           string
	DoctorRole       report.DoctorRole
	PreviousReportID *uuid.UUID
}

// CanCreateReport decides whether the doctor may file a new clinical report
// on the appointment. Read-only; the rules, in order:
//
//  1. Only the appointment's original or current doctor may report.
//  2. One report per doctor per appointment, globally, except:
//  3. After a refer-back, the original doctor may file a report provided
//     they did not already file an original-role report before the case was
//     referred out (judged by CreatedAt against LastReferBackDate).
//  4. A referred doctor's first report carries the referred role and links
//     back to the latest original-role report.
func (s *ReportService) CanCreateReport(ctx context.Context, appointmentID, doctorID uuid.UUID) (*ReportEligibility, error) {
	a, err := s.apptRepo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	isOriginal := a.OriginalDoctorID != nil && *a.OriginalDoctorID == doctorID
	isCurrent := a.DoctorID == doctorID
	if !isOriginal && !isCurrent {
		return &ReportEligibility{
			Allowed: false,
			Reason:  "only the original or current doctor may report on this appointment",
		}, nil
	}

	existing, err := s.reportRepo.FindByAuthor(ctx, appointmentID, doctorID)
	if err != nil {
		return nil, fmt.Errorf("fetching author report: %w", err)
	}

	// Refer-back exception: the original doctor may document the case after
	// getting it back, but not file a second report if they already filed
	// one before referring it out.
	if a.Status == appointment.StatusReferBack && isOriginal {
		if existing != nil {
			if a.LastReferBackDate == nil || existing.CreatedAt.Before(*a.LastReferBackDate) {
				return &ReportEligibility{
					Allowed: false,
					Reason:  "an original-doctor report filed before the refer-back already exists",
				}, nil
			}
			return &ReportEligibility{
				Allowed: false,
				Reason:  "doctor has already filed a report for this referral cycle",
			}, nil
		}

		// Chain the post-refer-back report onto the referred doctor's
		// report so the UI shows the full hand-off history.
		var prevID *uuid.UUID
		if latestReferred, err := s.reportRepo.FindLatestByRole(ctx, appointmentID, report.RoleReferred); err != nil {
			return nil, fmt.Errorf("fetching referred-role report: %w", err)
		} else if latestReferred != nil {
			prevID = &latestReferred.ID
		}
		return &ReportEligibility{
			Allowed:          true,
			DoctorRole:       report.RoleOriginal,
			PreviousReportID: prevID,
		}, nil
	}

	if existing != nil {
		return &ReportEligibility{
			Allowed: false,
			Reason:  "doctor has already filed a report for this appointment",
		}, nil
	}

	// Referred doctor filing their first report: link it to the original
	// doctor's report, if one exists, to establish the visible chain. The
	// snapshot is the authority here, not IsReferred: a refer-back clears the
	// flag but the holder is still the referred doctor until the case moves.
	if isCurrent && a.OriginalDoctorID != nil && *a.OriginalDoctorID != doctorID {
		var prevID *uuid.UUID
		latestOriginal, err := s.reportRepo.FindLatestByRole(ctx, appointmentID, report.RoleOriginal)
		if err != nil {
			return nil, fmt.Errorf("fetching original-role report: %w", err)
		}
		if latestOriginal != nil {
			prevID = &latestOriginal.ID
		}
		return &ReportEligibility{
			Allowed:          true,
			DoctorRole:       report.RoleReferred,
			PreviousReportID: prevID,
		}, nil
	}

	return &ReportEligibility{Allowed: true, DoctorRole: report.RoleOriginal}, nil
}

// CreateReport files a new clinical report on an appointment after running
// the eligibility rules. Reports are append-only; nothing here mutates a
// past report.
func (s *ReportService) CreateReport(ctx context.Context, cmd *report.CreateReportCommand, actor domain.ActorContext, ip string) (*report.ClinicalReport, error) {
	if actor.Role != domain.RoleDoctor {
		return nil, ErrForbidden
	}

	author, err := s.userRepo.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching author: %w", err)
	}

	r := &report.ClinicalReport{
		PatientID:       cmd.PatientID,
		DoctorID:        actor.ID,
		DoctorName:      author.FullName(),
		DoctorRole:      report.RoleOriginal,
		Findings:        cmd.Findings,
		Treatment:       cmd.Treatment,
		Recommendations: cmd.Recommendations,
		Notes:           cmd.Notes,
	}

	if cmd.AppointmentID != nil {
		a, err := s.apptRepo.GetByID(ctx, *cmd.AppointmentID)
		if err != nil {
			return nil, err
		}

		elig, err := s.CanCreateReport(ctx, a.ID, actor.ID)
		if err != nil {
			return nil, err
		}
		if !elig.Allowed {
			return nil, &ConflictError{Resource: "report", Detail: elig.Reason}
		}

		r.AppointmentID = &a.ID
		r.PatientID = a.PatientID
		r.DoctorRole = elig.DoctorRole
		r.PreviousReportID = elig.PreviousReportID
		r.ReferralID = a.CurrentReferralID
	}

	if err := s.reportRepo.Create(ctx, r); err != nil {
		s.log.Error("failed to create report", zap.Error(err))
		return nil, fmt.Errorf("creating report: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: actor.ID, UserRole: string(actor.Role),
		Action: "create", ResourceType: "report", ResourceID: r.ID.String(), IPAddress: ip,
	})

	return r, nil
}

func (s *ReportService) GetReport(ctx context.Context, id uuid.UUID, actor domain.ActorContext, ip string) (*report.ClinicalReport, error) {
	r, err := s.reportRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: actor.ID, UserRole: string(actor.Role),
		Action: "read", ResourceType: "report", ResourceID: id.String(), IPAddress: ip,
	})

	return r, nil
}

// ListForAppointment returns the appointment's reports oldest first, the
// order the PreviousReportID chain is read in.
func (s *ReportService) ListForAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*report.ClinicalReport, error) {
	if _, err := s.apptRepo.GetByID(ctx, appointmentID); err != nil {
		return nil, err
	}
	return s.reportRepo.ListByAppointment(ctx, appointmentID)
}
