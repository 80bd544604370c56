package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/brightdent/dentflow/internal/domain"
	"github.com/brightdent/dentflow/internal/domain/appointment"
	"github.com/brightdent/dentflow/internal/domain/referral"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// DoctorDirectory resolves a doctor's contact details for delivery.
type DoctorDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

const deliveryTimeout = 15 * time.Second

// Dispatcher implements service.Notifier. Every delivery runs on its own
// goroutine behind a circuit breaker per channel, so a flapping provider
// degrades to dropped notifications instead of slow bookings.
type Dispatcher struct {
	whatsapp  *WhatsAppSender
	email     *EmailSender
	directory DoctorDirectory
	log       *zap.Logger

	waBreaker    *gobreaker.CircuitBreaker[string]
	emailBreaker *gobreaker.CircuitBreaker[struct{}]
}

func NewDispatcher(whatsapp *WhatsAppSender, email *EmailSender, directory DoctorDirectory, log *zap.Logger) *Dispatcher {
	tripAfter := func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}

	return &Dispatcher{
		whatsapp:  whatsapp,
		email:     email,
		directory: directory,
		log:       log,
		waBreaker: gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:        "whatsapp",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: tripAfter,
		}),
		emailBreaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        "email-gateway",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: tripAfter,
		}),
	}
}

func (d *Dispatcher) AppointmentBooked(ctx context.Context, a *appointment.Appointment) {
	body := fmt.Sprintf("New appointment on %s at %s (%d min)%s.",
		a.Date.Format("2006-01-02"), a.StartTime, a.DurationMins, roomSuffix(a.RoomNumber))
	d.deliverToDoctor(a.DoctorID, "Appointment booked", body)
}

func (d *Dispatcher) AppointmentCancelled(ctx context.Context, a *appointment.Appointment) {
	body := fmt.Sprintf("Appointment on %s at %s was cancelled: %s",
		a.Date.Format("2006-01-02"), a.StartTime, a.CancellationReason)
	d.deliverToDoctor(a.DoctorID, "Appointment cancelled", body)
}

func (d *Dispatcher) ReferralCreated(ctx context.Context, r *referral.Referral) {
	body := fmt.Sprintf("Dr. %s referred a patient to you: %s", r.FromDoctorName, r.Reason)
	d.deliverToDoctor(r.ToDoctorID, "New referral", body)
}

func (d *Dispatcher) ReferralAccepted(ctx context.Context, r *referral.Referral) {
	body := fmt.Sprintf("Dr. %s accepted your referral.", r.ToDoctorName)
	d.deliverToDoctor(r.FromDoctorID, "Referral accepted", body)
}

func (d *Dispatcher) ReferralReferredBack(ctx context.Context, r *referral.Referral) {
	body := fmt.Sprintf("Dr. %s referred the patient back to you. Notes: %s", r.ToDoctorName, r.Notes)
	d.deliverToDoctor(r.FromDoctorID, "Patient referred back", body)
}

func (d *Dispatcher) deliverToDoctor(doctorID uuid.UUID, subject, body string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()

		doctor, err := d.directory.GetByID(ctx, doctorID)
		if err != nil {
			d.log.Warn("notification dropped: could not resolve doctor",
				zap.String("doctor_id", doctorID.String()),
				zap.Error(err),
			)
			return
		}

		delivered := false
		if doctor.Phone != "" {
			if _, err := d.waBreaker.Execute(func() (string, error) {
				return d.whatsapp.SendText(ctx, doctor.Phone, body)
			}); err != nil {
				d.log.Warn("whatsapp delivery failed",
					zap.String("doctor_id", doctorID.String()),
					zap.Error(err),
				)
			} else {
				delivered = true
			}
		}

		// Email is the fallback channel when WhatsApp is unavailable.
		if !delivered && doctor.Email != "" {
			if _, err := d.emailBreaker.Execute(func() (struct{}, error) {
				return struct{}{}, d.email.Send(ctx, doctor.Email, subject, body)
			}); err != nil {
				d.log.Warn("email delivery failed",
					zap.String("doctor_id", doctorID.String()),
					zap.Error(err),
				)
			}
		}
	}()
}

func roomSuffix(room string) string {
	if room == "" {
		return ""
	}
	return " in room " + room
}
