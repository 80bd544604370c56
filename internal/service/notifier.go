package service

import (
	"context"

	"github.com/brightdent/dentflow/internal/domain/appointment"
	"github.com/brightdent/dentflow/internal/domain/referral"
)

// Notifier delivers WhatsApp/email messages to the doctors involved in an
// appointment or referral event. Implementations are fire-and-forget: they
// never block or fail the request path.
type Notifier interface {
	AppointmentBooked(ctx context.Context, a *appointment.Appointment)
	AppointmentCancelled(ctx context.Context, a *appointment.Appointment)
	ReferralCreated(ctx context.Context, r *referral.Referral)
	ReferralAccepted(ctx context.Context, r *referral.Referral)
	ReferralReferredBack(ctx context.Context, r *referral.Referral)
}

// NopNotifier is used when notifications are disabled in config.
type NopNotifier struct{}

func (NopNotifier) AppointmentBooked(context.Context, *appointment.Appointment)    {}
func (NopNotifier) AppointmentCancelled(context.Context, *appointment.Appointment) {}
func (NopNotifier) ReferralCreated(context.Context, *referral.Referral)            {}
func (NopNotifier) ReferralAccepted(context.Context, *referral.Referral)           {}
func (NopNotifier) ReferralReferredBack(context.Context, *referral.Referral)       {}
