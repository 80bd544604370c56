package referral

import "errors"

var (
	ErrReferralNotFound     = errors.New("referral not found")
	ErrReferralActive       = errors.New("appointment already has an active referral")
	ErrInvalidTransition    = errors.New("invalid referral status transition")
	ErrUnknownAction        = errors.New("unknown referral action")
	ErrSelfReferral         = errors.New("cannot refer an appointment to its current doctor")
	ErrStaleReferral        = errors.New("referral was modified concurrently, retry the operation")
)
