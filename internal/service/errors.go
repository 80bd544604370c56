package service

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

var ErrForbidden = errors.New("forbidden: insufficient permissions")

// ValidationError carries field-level input problems. Mapped to 400.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

// ConflictError is a business-fact rejection: a scheduling overlap, a
// duplicate report, or an illegal state transition. Mapped to 409 and never
// retried; Detail names the concrete conflicting resource so clinic staff
// can act on it (e.g. the exact blocking time window).
type ConflictError struct {
	Resource string
	Detail   string
}

func (e *ConflictError) Error() string {
	return e.Detail
}

type AuditEntry struct {
	UserID       uuid.UUID
	UserRole     string
	Action       string
	ResourceType string
	ResourceID   string
	IPAddress    string
	RequestID    string
	StatusCode   int
	Changes      string
}
