package database

import (
	"context"
	"errors"

	"github.com/brightdent/dentflow/internal/domain/report"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type reportRepo struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) report.Repository {
	return &reportRepo{db: db}
}

func (r *reportRepo) Create(ctx context.Context, rep *report.ClinicalReport) error {
	return r.db.WithContext(ctx).Create(rep).Error
}

func (r *reportRepo) GetByID(ctx context.Context, id uuid.UUID) (*report.ClinicalReport, error) {
	var rep report.ClinicalReport
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rep).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, report.ErrReportNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

func (r *reportRepo) FindByAuthor(ctx context.Context, appointmentID, doctorID uuid.UUID) (*report.ClinicalReport, error) {
	var rep report.ClinicalReport
	err := r.db.WithContext(ctx).
		Where("appointment_id = ? AND doctor_id = ?", appointmentID, doctorID).
		Order("created_at DESC").
		First(&rep).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

func (r *reportRepo) FindLatestByRole(ctx context.Context, appointmentID uuid.UUID, role report.DoctorRole) (*report.ClinicalReport, error) {
	var rep report.ClinicalReport
	err := r.db.WithContext(ctx).
		Where("appointment_id = ? AND doctor_role = ?", appointmentID, role).
		Order("created_at DESC").
		First(&rep).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

func (r *reportRepo) ExistsForAppointment(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&report.ClinicalReport{}).
		Where("appointment_id = ?", appointmentID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *reportRepo) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*report.ClinicalReport, error) {
	var reps []*report.ClinicalReport
	err := r.db.WithContext(ctx).
		Where("appointment_id = ?", appointmentID).
		Order("created_at ASC").
		Find(&reps).Error
	if err != nil {
		return nil, err
	}
	return reps, nil
}
