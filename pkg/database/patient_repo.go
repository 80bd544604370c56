package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/brightdent/dentflow/internal/domain/patient"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type patientRepo struct {
	db *gorm.DB
}

func NewPatientRepository(db *gorm.DB) patient.Repository {
	return &patientRepo{db: db}
}

func (r *patientRepo) Create(ctx context.Context, p *patient.Patient) error {
	err := r.db.WithContext(ctx).Create(p).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return patient.ErrPatientAlreadyExists
	}
	return err
}

func (r *patientRepo) GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error) {
	var p patient.Patient
	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, patient.ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepo) Update(ctx context.Context, id uuid.UUID, cmd *patient.UpdatePatientCommand) (*patient.Patient, error) {
	updates := map[string]any{}

	if cmd.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*cmd.FirstName)
	}
	if cmd.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*cmd.LastName)
	}
	if cmd.Gender != nil {
		updates["gender"] = *cmd.Gender
	}
	if cmd.Phone != nil {
		updates["phone"] = strings.TrimSpace(*cmd.Phone)
	}
	if cmd.Email != nil {
		updates["email"] = strings.ToLower(strings.TrimSpace(*cmd.Email))
	}
	if cmd.Address != nil {
		updates["address"] = *cmd.Address
	}
	if cmd.City != nil {
		updates["city"] = *cmd.City
	}
	if cmd.ZipCode != nil {
		updates["zip_code"] = *cmd.ZipCode
	}
	if cmd.Country != nil {
		updates["country"] = *cmd.Country
	}
	if cmd.DentalHistory != nil {
		updates["dental_history"] = *cmd.DentalHistory
	}
	if cmd.AssignedDoctorID != nil {
		updates["assigned_doctor_id"] = *cmd.AssignedDoctorID
	}
	if cmd.Notes != nil {
		updates["notes"] = *cmd.Notes
	}

	if len(updates) > 0 {
		res := r.db.WithContext(ctx).
			Model(&patient.Patient{}).
			Where("id = ? AND deleted_at IS NULL", id).
			Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, patient.ErrPatientNotFound
		}
	}

	// Serialized JSON columns go through the model so the serializer runs.
	p, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	jsonDirty := false
	if cmd.EmergencyContact != nil {
		p.EmergencyContact = cmd.EmergencyContact
		jsonDirty = true
	}
	if cmd.Insurance != nil {
		p.Insurance = cmd.Insurance
		jsonDirty = true
	}
	if cmd.Allergies != nil {
		p.Allergies = *cmd.Allergies
		jsonDirty = true
	}
	if cmd.MedicalHistory != nil {
		p.MedicalHistory = *cmd.MedicalHistory
		jsonDirty = true
	}
	if cmd.CurrentMedications != nil {
		p.CurrentMedications = *cmd.CurrentMedications
		jsonDirty = true
	}
	if jsonDirty {
		if err := r.db.WithContext(ctx).Save(p).Error; err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (r *patientRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&patient.Patient{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]any{
			"deleted_at": gorm.Expr("now()"),
			"status":     patient.StatusInactive,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return patient.ErrPatientNotFound
	}
	return nil
}

func (r *patientRepo) List(ctx context.Context, q *patient.ListPatientsQuery) (*patient.PagedPatients, error) {
	base := r.db.WithContext(ctx).
		Model(&patient.Patient{}).
		Where("deleted_at IS NULL")

	if q.Search != "" {
		base = base.Where("first_name || ' ' || last_name ILIKE ?", "%"+q.Search+"%")
	}
	if q.Status != nil {
		base = base.Where("status = ?", *q.Status)
	}
	if q.AssignedDoctorID != nil {
		base = base.Where("assigned_doctor_id = ?", *q.AssignedDoctorID)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting patients: %w", err)
	}

	order := "created_at DESC"
	switch q.SortBy {
	case "name":
		order = "last_name, first_name"
	case "created_at":
		order = "created_at"
	}
	if q.SortOrder == "desc" && q.SortBy != "" {
		order += " DESC"
	}

	var patients []*patient.Patient
	err := base.
		Order(order).
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&patients).Error
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(q.PageSize) - 1) / int64(q.PageSize))
	return &patient.PagedPatients{
		Patients:   patients,
		TotalCount: total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: totalPages,
	}, nil
}

func (r *patientRepo) ExistsByNationalID(ctx context.Context, nationalID string, excludeID *uuid.UUID) (bool, error) {
	q := r.db.WithContext(ctx).
		Model(&patient.Patient{}).
		Where("national_id = ? AND deleted_at IS NULL", nationalID)
	if excludeID != nil {
		q = q.Where("id <> ?", *excludeID)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
