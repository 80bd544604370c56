package appointment

import "errors"

var (
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrSlotTaken               = errors.New("appointment time slot is already booked")
	ErrInvalidStatusTransition = errors.New("invalid appointment status transition")
	ErrInvalidDuration         = errors.New("appointment duration must be a non-negative number of minutes")
	ErrInvalidClockTime        = errors.New("invalid start time, expected 24-hour HH:MM")
	ErrStaleAppointment        = errors.New("appointment was modified concurrently, retry the operation")
	ErrReportRequired          = errors.New("appointment cannot be closed before a clinical report exists")
)
