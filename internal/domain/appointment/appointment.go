package appointment

import (
	"time"

	"github.com/google/uuid"
)

// State transitions possibilities:
//
//	confirmed → refer_back (referred doctor hands the case back)
//	refer_back → confirmed (original doctor re-refers, new referral cycle)
//	confirmed → completed | cancelled | closed
//	refer_back → cancelled | closed
//
// completed, cancelled and closed are terminal. Closing additionally
// requires a clinical report to exist (enforced by the referral service).
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusReferBack Status = "refer_back"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusClosed    Status = "closed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusConfirmed, StatusReferBack, StatusCancelled, StatusCompleted, StatusClosed:
		return true
	}
	return false
}

// CountsForScheduling reports whether an appointment in this status still
// occupies its slot for conflict detection.
func (s Status) CountsForScheduling() bool {
	switch s {
	case StatusClosed, StatusCancelled, StatusCompleted:
		return false
	}
	return true
}

type Appointment struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
	DeletedAt *time.Time `gorm:"index"`

	PatientID uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index"`

	// Current holder of the case. Changes when the appointment is referred.
	DoctorID   uuid.UUID `gorm:"column:doctor_id;type:uuid;not null;index"`
	DoctorName string    `gorm:"column:doctor_name;type:varchar(200);not null"`

	// Holder before the first referral. Nil until the case is referred;
	// cleared again when a pending referral is rejected.
	OriginalDoctorID   *uuid.UUID `gorm:"column:original_doctor_id;type:uuid;index"`
	OriginalDoctorName string     `gorm:"column:original_doctor_name;type:varchar(200)"`

	Date         time.Time `gorm:"column:date;type:date;not null;index"`
	StartTime    string    `gorm:"column:start_time;type:varchar(5);not null"` // "HH:MM", 24-hour
	DurationMins int       `gorm:"column:duration_mins;not null;default:30"`
	RoomNumber   string    `gorm:"column:room_number;type:varchar(20);index"`

	Status Status `gorm:"column:status;type:varchar(30);not null;default:'confirmed';index"`

	// Referral cycle bookkeeping. IsReferred is true exactly while the
	// current referral is pending or accepted.
	IsReferred                   bool       `gorm:"column:is_referred;not null;default:false"`
	CurrentReferralID            *uuid.UUID `gorm:"column:current_referral_id;type:uuid"`
	AwaitingOriginalDoctorAction bool       `gorm:"column:awaiting_original_doctor_action;not null;default:false"`
	LastReferBackDate            *time.Time `gorm:"column:last_refer_back_date"`

	Reason string `gorm:"column:reason;type:text"`
	Notes  string `gorm:"column:notes;type:text"`

	// Cancellation tracking
	CancelledAt        *time.Time `gorm:"column:cancelled_at"`
	CancellationReason string     `gorm:"column:cancellation_reason;type:text"`
	CancelledBy        *uuid.UUID `gorm:"column:cancelled_by;type:uuid"`

	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null"`
}

func (Appointment) TableName() string {
	return "clinical.appointments"
}

// Window returns the booked span of clinic time for overlap checks.
func (a *Appointment) Window() (Window, error) {
	return NewWindow(a.Date, a.StartTime, a.DurationMins)
}

func (a *Appointment) CanTransitionTo(newStatus Status) bool {
	allowed := map[Status][]Status{
		StatusConfirmed: {StatusReferBack, StatusCompleted, StatusCancelled, StatusClosed},
		StatusReferBack: {StatusConfirmed, StatusCancelled, StatusClosed},
		StatusCompleted: {},
		StatusCancelled: {},
		StatusClosed:    {},
	}

	for _, s := range allowed[a.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

func (a *Appointment) Cancel(reason string, cancelledBy uuid.UUID) error {
	if !a.CanTransitionTo(StatusCancelled) {
		return ErrInvalidStatusTransition
	}
	now := time.Now()
	a.Status = StatusCancelled
	a.CancelledAt = &now
	a.CancellationReason = reason
	a.CancelledBy = &cancelledBy
	return nil
}

type CreateAppointmentCommand struct {
	PatientID    uuid.UUID
	DoctorID     uuid.UUID
	Date         time.Time
	StartTime    string
	DurationMins int
	RoomNumber   string
	Reason       string
	Notes        string
	CreatedBy    uuid.UUID
}

type RescheduleAppointmentCommand struct {
	Date         *time.Time
	StartTime    *string
	DurationMins *int
	RoomNumber   *string
	Notes        *string
	UpdatedBy    uuid.UUID
}

type ListAppointmentsQuery struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    *Status
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
}

type PagedAppointments struct {
	Appointments []*Appointment
	TotalCount   int64
	Page         int
	PageSize     int
	TotalPages   int
}
