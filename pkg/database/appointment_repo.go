package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/brightdent/dentflow/internal/domain/appointment"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type appointmentRepo struct {
	db *gorm.DB
}

func NewAppointmentRepository(db *gorm.DB) appointment.Repository {
	return &appointmentRepo{db: db}
}

func (r *appointmentRepo) Create(ctx context.Context, a *appointment.Appointment) error {
	err := r.db.WithContext(ctx).Create(a).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return appointment.ErrSlotTaken
	}
	return err
}

func (r *appointmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	var a appointment.Appointment
	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appointment.ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepo) FindByDoctor(ctx context.Context, doctorID uuid.UUID, excludeID *uuid.UUID) ([]*appointment.Appointment, error) {
	q := r.db.WithContext(ctx).
		Where("doctor_id = ? AND deleted_at IS NULL", doctorID)
	if excludeID != nil {
		q = q.Where("id <> ?", *excludeID)
	}

	var appts []*appointment.Appointment
	if err := q.Find(&appts).Error; err != nil {
		return nil, err
	}
	return appts, nil
}

func (r *appointmentRepo) FindByRoom(ctx context.Context, roomNumber string, excludeID *uuid.UUID) ([]*appointment.Appointment, error) {
	q := r.db.WithContext(ctx).
		Where("room_number = ? AND deleted_at IS NULL", roomNumber)
	if excludeID != nil {
		q = q.Where("id <> ?", *excludeID)
	}

	var appts []*appointment.Appointment
	if err := q.Find(&appts).Error; err != nil {
		return nil, err
	}
	return appts, nil
}

func (r *appointmentRepo) List(ctx context.Context, q *appointment.ListAppointmentsQuery) (*appointment.PagedAppointments, error) {
	base := r.db.WithContext(ctx).
		Model(&appointment.Appointment{}).
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
	if q.DateFrom != nil {
		base = base.Where("date >= ?", q.DateFrom.Format("2006-01-02"))
	}
	if q.DateTo != nil {
		base = base.Where("date <= ?", q.DateTo.Format("2006-01-02"))
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting appointments: %w", err)
	}

	var appts []*appointment.Appointment
	err := base.
		Order("date ASC, start_time ASC").
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&appts).Error
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(q.PageSize) - 1) / int64(q.PageSize))
	return &appointment.PagedAppointments{
		Appointments: appts,
		TotalCount:   total,
		Page:         q.Page,
		PageSize:     q.PageSize,
		TotalPages:   totalPages,
	}, nil
}

func (r *appointmentRepo) UpdateGuarded(ctx context.Context, a *appointment.Appointment, expectStatus appointment.Status) error {
	res := r.db.WithContext(ctx).
		Model(&appointment.Appointment{}).
		Where("id = ? AND status = ? AND deleted_at IS NULL", a.ID, expectStatus).
		Select("*").
		Omit("id", "created_at").
		Updates(a)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return appointment.ErrSlotTaken
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return appointment.ErrStaleAppointment
	}
	return nil
}
