package report

import (
	"time"

	"github.com/google/uuid"
)

// DoctorRole tags a report as authored by the doctor who held the case
// before any referral (original) or by a referred-to doctor (referred).
type DoctorRole string

const (
	RoleOriginal DoctorRole = "original"
	RoleReferred DoctorRole = "referred"
)

func (r DoctorRole) IsValid() bool {
	return r == RoleOriginal || r == RoleReferred
}

// Once created, reports cannot be edited or deleted; corrections are new
// reports chained via PreviousReportID.
type ClinicalReport struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`

	// Nil for standalone reports not tied to a booked appointment.
	AppointmentID *uuid.UUID `gorm:"column:appointment_id;type:uuid;index"`
	PatientID     uuid.UUID  `gorm:"column:patient_id;type:uuid;not null;index"`

	DoctorID   uuid.UUID  `gorm:"column:doctor_id;type:uuid;not null;index"`
	DoctorName string     `gorm:"column:doctor_name;type:varchar(200)"`
	DoctorRole DoctorRole `gorm:"column:doctor_role;type:varchar(20);not null"`

	// Referral cycle the report was written under, if any.
	ReferralID *uuid.UUID `gorm:"column:referral_id;type:uuid;index"`
	// Back-link to the report this one follows, forming the visible chain
	// from the original doctor's report to the referred doctor's.
	PreviousReportID *uuid.UUID `gorm:"column:previous_report_id;type:uuid"`

	Findings        string `gorm:"column:findings;type:text"`
	Treatment       string `gorm:"column:treatment;type:text"`
	Recommendations string `gorm:"column:recommendations;type:text"`
	Notes           string `gorm:"column:notes;type:text"`
}

func (ClinicalReport) TableName() string {
	return "clinical.reports"
}

type CreateReportCommand struct {
	AppointmentID   *uuid.UUID
	PatientID       uuid.UUID
	Findings        string
	Treatment       string
	Recommendations string
	Notes           string
}
