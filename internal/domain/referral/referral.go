package referral

import (
	"time"

	"github.com/google/uuid"
)

// State transitions possibilities:
//
//	pending → accepted | rejected
//	accepted → referred_back | completed
//
// completed and rejected are terminal. referred_back is not: it is exited
// only by the original doctor creating a fresh referral, which starts a new
// cycle with a new row; the referred_back row remains as history.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAccepted     Status = "accepted"
	StatusReferredBack Status = "referred_back"
	StatusCompleted    Status = "completed"
	StatusRejected     Status = "rejected"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusReferredBack, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// IsActive reports whether this referral still blocks the creation of
// another one on the same appointment.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusAccepted
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

type Referral struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	AppointmentID uuid.UUID `gorm:"column:appointment_id;type:uuid;not null;index"`

	FromDoctorID   uuid.UUID `gorm:"column:from_doctor_id;type:uuid;not null;index"`
	FromDoctorName string    `gorm:"column:from_doctor_name;type:varchar(200)"`
	ToDoctorID     uuid.UUID `gorm:"column:to_doctor_id;type:uuid;not null;index"`
	ToDoctorName   string    `gorm:"column:to_doctor_name;type:varchar(200)"`

	Reason string `gorm:"column:reason;type:text;not null"`
	// Notes carries the referred doctor's hand-back notes once the case is
	// referred back.
	Notes string `gorm:"column:notes;type:text"`

	Status     Status     `gorm:"column:status;type:varchar(30);not null;default:'pending';index"`
	ResolvedAt *time.Time `gorm:"column:resolved_at"`
}

func (Referral) TableName() string {
	return "clinical.referrals"
}

func (r *Referral) CanTransitionTo(newStatus Status) bool {
	allowed := map[Status][]Status{
		StatusPending:      {StatusAccepted, StatusRejected},
		StatusAccepted:     {StatusReferredBack, StatusCompleted},
		StatusReferredBack: {},
		StatusCompleted:    {},
		StatusRejected:     {},
	}

	for _, s := range allowed[r.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

type CreateReferralCommand struct {
	AppointmentID uuid.UUID
	ToDoctorID    uuid.UUID
	Reason        string
}
