package database

import (
	"context"
	"errors"

	"github.com/brightdent/dentflow/internal/domain/referral"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type referralRepo struct {
	db *gorm.DB
}

func NewReferralRepository(db *gorm.DB) referral.Repository {
	return &referralRepo{db: db}
}

func (r *referralRepo) Create(ctx context.Context, ref *referral.Referral) error {
	err := r.db.WithContext(ctx).Create(ref).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Hit the one-active-referral-per-appointment unique index.
		return referral.ErrReferralActive
	}
	return err
}

func (r *referralRepo) GetByID(ctx context.Context, id uuid.UUID) (*referral.Referral, error) {
	var ref referral.Referral
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, referral.ErrReferralNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (r *referralRepo) FindByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*referral.Referral, error) {
	var refs []*referral.Referral
	err := r.db.WithContext(ctx).
		Where("appointment_id = ?", appointmentID).
		Order("created_at DESC").
		Find(&refs).Error
	if err != nil {
		return nil, err
	}
	return refs, nil
}

func (r *referralRepo) FindInbox(ctx context.Context, toDoctorID uuid.UUID) ([]*referral.Referral, error) {
	var refs []*referral.Referral
	err := r.db.WithContext(ctx).
		Where("to_doctor_id = ? AND status IN ?", toDoctorID,
			[]referral.Status{referral.StatusPending, referral.StatusAccepted}).
		Order("created_at DESC").
		Find(&refs).Error
	if err != nil {
		return nil, err
	}
	return refs, nil
}

func (r *referralRepo) UpdateGuarded(ctx context.Context, ref *referral.Referral, expectStatus referral.Status) error {
	res := r.db.WithContext(ctx).
		Model(&referral.Referral{}).
		Where("id = ? AND status = ?", ref.ID, expectStatus).
		Select("*").
		Omit("id", "created_at").
		Updates(ref)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return referral.ErrStaleReferral
	}
	return nil
}
