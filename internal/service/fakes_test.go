package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/brightdent/dentflow/internal/domain"
	"github.com/brightdent/dentflow/internal/domain/appointment"
	"github.com/brightdent/dentflow/internal/domain/referral"
	"github.com/brightdent/dentflow/internal/domain/report"
	"github.com/brightdent/dentflow/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// The fakes below model the repository contracts the services depend on:
// reads hand out copies (a fetched row is a snapshot, not live storage) and
// the guarded updates compare-and-swap on status, the same way the SQL
// implementations do.

type fakeApptRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*appointment.Appointment
}

func newFakeApptRepo() *fakeApptRepo {
	return &fakeApptRepo{rows: make(map[uuid.UUID]*appointment.Appointment)}
}

func cloneAppt(a *appointment.Appointment) *appointment.Appointment {
	c := *a
	return &c
}

func (f *fakeApptRepo) Create(_ context.Context, a *appointment.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	for _, existing := range f.rows {
		if existing.DoctorID == a.DoctorID &&
			existing.Date.Equal(a.Date) &&
			existing.StartTime == a.StartTime &&
			existing.Status.CountsForScheduling() {
			return appointment.ErrSlotTaken
		}
	}
	f.rows[a.ID] = cloneAppt(a)
	return nil
}

func (f *fakeApptRepo) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return cloneAppt(a), nil
}

func (f *fakeApptRepo) FindByDoctor(_ context.Context, doctorID uuid.UUID, excludeID *uuid.UUID) ([]*appointment.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*appointment.Appointment
	for _, a := range f.rows {
		if a.DoctorID != doctorID || a.DeletedAt != nil {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		out = append(out, cloneAppt(a))
	}
	return out, nil
}

func (f *fakeApptRepo) FindByRoom(_ context.Context, roomNumber string, excludeID *uuid.UUID) ([]*appointment.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*appointment.Appointment
	for _, a := range f.rows {
		if a.RoomNumber != roomNumber || a.DeletedAt != nil {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		out = append(out, cloneAppt(a))
	}
	return out, nil
}

func (f *fakeApptRepo) List(_ context.Context, q *appointment.ListAppointmentsQuery) (*appointment.PagedAppointments, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*appointment.Appointment
	for _, a := range f.rows {
		if q.DoctorID != nil && a.DoctorID != *q.DoctorID {
			continue
		}
		if q.PatientID != nil && a.PatientID != *q.PatientID {
			continue
		}
		if q.Status != nil && a.Status != *q.Status {
			continue
		}
		out = append(out, cloneAppt(a))
	}
	return &appointment.PagedAppointments{
		Appointments: out,
		TotalCount:   int64(len(out)),
		Page:         q.Page,
		PageSize:     q.PageSize,
		TotalPages:   1,
	}, nil
}

func (f *fakeApptRepo) UpdateGuarded(_ context.Context, a *appointment.Appointment, expectStatus appointment.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.rows[a.ID]
	if !ok {
		return appointment.ErrAppointmentNotFound
	}
	if stored.Status != expectStatus {
		return appointment.ErrStaleAppointment
	}
	f.rows[a.ID] = cloneAppt(a)
	return nil
}

type fakeReferralRepo struct {
	mu   sync.Mutex
	rows []*referral.Referral
	seq  int
}

func cloneReferral(r *referral.Referral) *referral.Referral {
	c := *r
	return &c
}

func (f *fakeReferralRepo) Create(_ context.Context, r *referral.Referral) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.rows {
		if existing.AppointmentID == r.AppointmentID && existing.Status.IsActive() {
			return referral.ErrReferralActive
		}
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	// Monotonic creation times so newest-first ordering is deterministic.
	f.seq++
	r.CreatedAt = time.Unix(int64(f.seq), 0)
	f.rows = append(f.rows, cloneReferral(r))
	return nil
}

func (f *fakeReferralRepo) GetByID(_ context.Context, id uuid.UUID) (*referral.Referral, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ID == id {
			return cloneReferral(r), nil
		}
	}
	return nil, referral.ErrReferralNotFound
}

func (f *fakeReferralRepo) FindByAppointment(_ context.Context, appointmentID uuid.UUID) ([]*referral.Referral, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*referral.Referral
	for _, r := range f.rows {
		if r.AppointmentID == appointmentID {
			out = append(out, cloneReferral(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeReferralRepo) FindInbox(_ context.Context, toDoctorID uuid.UUID) ([]*referral.Referral, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*referral.Referral
	for _, r := range f.rows {
		if r.ToDoctorID == toDoctorID && r.Status.IsActive() {
			out = append(out, cloneReferral(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeReferralRepo) UpdateGuarded(_ context.Context, r *referral.Referral, expectStatus referral.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, stored := range f.rows {
		if stored.ID != r.ID {
			continue
		}
		if stored.Status != expectStatus {
			return referral.ErrStaleReferral
		}
		saved := cloneReferral(r)
		saved.CreatedAt = stored.CreatedAt
		f.rows[i] = saved
		return nil
	}
	return referral.ErrReferralNotFound
}

type fakeReportRepo struct {
	mu   sync.Mutex
	rows []*report.ClinicalReport
}

func cloneReport(r *report.ClinicalReport) *report.ClinicalReport {
	c := *r
	return &c
}

func (f *fakeReportRepo) Create(_ context.Context, r *report.ClinicalReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	f.rows = append(f.rows, cloneReport(r))
	return nil
}

func (f *fakeReportRepo) GetByID(_ context.Context, id uuid.UUID) (*report.ClinicalReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ID == id {
			return cloneReport(r), nil
		}
	}
	return nil, report.ErrReportNotFound
}

func (f *fakeReportRepo) FindByAuthor(_ context.Context, appointmentID, doctorID uuid.UUID) (*report.ClinicalReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *report.ClinicalReport
	for _, r := range f.rows {
		if r.AppointmentID == nil || *r.AppointmentID != appointmentID || r.DoctorID != doctorID {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, nil
	}
	return cloneReport(latest), nil
}

func (f *fakeReportRepo) FindLatestByRole(_ context.Context, appointmentID uuid.UUID, role report.DoctorRole) (*report.ClinicalReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *report.ClinicalReport
	for _, r := range f.rows {
		if r.AppointmentID == nil || *r.AppointmentID != appointmentID || r.DoctorRole != role {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, nil
	}
	return cloneReport(latest), nil
}

func (f *fakeReportRepo) ExistsForAppointment(_ context.Context, appointmentID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.AppointmentID != nil && *r.AppointmentID == appointmentID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeReportRepo) ListByAppointment(_ context.Context, appointmentID uuid.UUID) ([]*report.ClinicalReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*report.ClinicalReport
	for _, r := range f.rows {
		if r.AppointmentID != nil && *r.AppointmentID == appointmentID {
			out = append(out, cloneReport(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*domain.User)}
}

func (f *fakeUserRepo) add(u *domain.User) *domain.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	f.users[u.ID] = u
	return u
}

func (f *fakeUserRepo) Create(_ context.Context, u *domain.User) error {
	f.add(u)
	return nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, errors.New("record not found")
}

func (f *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	c := *u
	return &c, nil
}

func (f *fakeUserRepo) FindDoctors(_ context.Context) ([]*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.User
	for _, u := range f.users {
		if u.Role == domain.RoleDoctor && u.IsActive {
			c := *u
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeUserRepo) UpdateLoginAttempt(context.Context, uuid.UUID, bool) error { return nil }

func (f *fakeUserRepo) UpdatePassword(context.Context, uuid.UUID, string) error { return nil }

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
}

func (f *fakeAuditRepo) Create(_ context.Context, entry *domain.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func newTestCollector() *metrics.Collector {
	return metrics.NewCollectorWith(prometheus.NewRegistry(), "dentflow")
}

func newTestAuditService(t *testing.T) *AuditService {
	svc := NewAuditService(&fakeAuditRepo{}, newTestCollector(), zap.NewNop())
	t.Cleanup(svc.Shutdown)
	return svc
}

func actorFor(u *domain.User) domain.ActorContext {
	return domain.ActorContext{ID: u.ID, Role: u.Role}
}
