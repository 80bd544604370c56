package service

import (
	"context"
	"testing"
	"time"

	"github.com/brightdent/dentflow/internal/domain"
	"github.com/brightdent/dentflow/internal/domain/appointment"
	"github.com/brightdent/dentflow/internal/domain/patient"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakePatientRepo covers only what AppointmentService touches; the patient
// service has its own store-backed paths.
type fakePatientRepo struct {
	patients map[uuid.UUID]*patient.Patient
}

func newFakePatientRepo() *fakePatientRepo {
	return &fakePatientRepo{patients: make(map[uuid.UUID]*patient.Patient)}
}

func (f *fakePatientRepo) add(p *patient.Patient) *patient.Patient {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	f.patients[p.ID] = p
	return p
}

func (f *fakePatientRepo) Create(_ context.Context, p *patient.Patient) error {
	f.add(p)
	return nil
}

func (f *fakePatientRepo) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := f.patients[id]
	if !ok {
		return nil, patient.ErrPatientNotFound
	}
	c := *p
	return &c, nil
}

func (f *fakePatientRepo) Update(_ context.Context, id uuid.UUID, _ *patient.UpdatePatientCommand) (*patient.Patient, error) {
	return f.GetByID(context.Background(), id)
}

func (f *fakePatientRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	delete(f.patients, id)
	return nil
}

func (f *fakePatientRepo) List(_ context.Context, q *patient.ListPatientsQuery) (*patient.PagedPatients, error) {
	return &patient.PagedPatients{Page: q.Page, PageSize: q.PageSize}, nil
}

func (f *fakePatientRepo) ExistsByNationalID(context.Context, string, *uuid.UUID) (bool, error) {
	return false, nil
}

type apptFixture struct {
	apptRepo *fakeApptRepo
	patients *fakePatientRepo
	users    *fakeUserRepo
	svc      *AppointmentService

	doctor       *domain.User
	receptionist *domain.User
	patient      *patient.Patient
}

func newApptFixture(t *testing.T) *apptFixture {
	t.Helper()
	f := &apptFixture{
		apptRepo: newFakeApptRepo(),
		patients: newFakePatientRepo(),
		users:    newFakeUserRepo(),
	}
	scheduler := NewSchedulingService(f.apptRepo, zap.NewNop())
	f.svc = NewAppointmentService(f.apptRepo, f.patients, f.users, scheduler, newTestAuditService(t), NopNotifier{}, zap.NewNop())

	f.doctor = f.users.add(&domain.User{FirstName: "Alice", LastName: "Ahn", Role: domain.RoleDoctor, IsActive: true})
	f.receptionist = f.users.add(&domain.User{FirstName: "Rae", LastName: "Front", Role: domain.RoleReceptionist, IsActive: true})
	f.patient = f.patients.add(&patient.Patient{
		FirstName: "Pat",
		LastName:  "Doe",
		Status:    patient.StatusActive,
	})
	return f
}

func (f *apptFixture) bookCmd(start string) *appointment.CreateAppointmentCommand {
	return &appointment.CreateAppointmentCommand{
		PatientID:    f.patient.ID,
		DoctorID:     f.doctor.ID,
		Date:         time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		StartTime:    start,
		DurationMins: 30,
		RoomNumber:   "2",
		Reason:       "cleaning",
		CreatedBy:    f.receptionist.ID,
	}
}

func TestBookAppointment(t *testing.T) {
	f := newApptFixture(t)

	a, err := f.svc.BookAppointment(context.Background(), f.bookCmd("09:00"), actorFor(f.receptionist), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, a.Status)
	assert.Equal(t, f.doctor.FullName(), a.DoctorName)
	assert.NotEqual(t, uuid.Nil, a.ID)
}

func TestBookAppointmentConflictingSlot(t *testing.T) {
	f := newApptFixture(t)
	_, err := f.svc.BookAppointment(context.Background(), f.bookCmd("09:00"), actorFor(f.receptionist), "127.0.0.1")
	require.NoError(t, err)

	_, err = f.svc.BookAppointment(context.Background(), f.bookCmd("09:15"), actorFor(f.receptionist), "127.0.0.1")
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "appointment", cerr.Resource)
	assert.Contains(t, cerr.Detail, "doctor is already booked")
}

func TestBookAppointmentValidation(t *testing.T) {
	f := newApptFixture(t)

	cmd := f.bookCmd("09:00")
	cmd.DurationMins = 2
	_, err := f.svc.BookAppointment(context.Background(), cmd, actorFor(f.receptionist), "127.0.0.1")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	cmd = f.bookCmd("9am")
	_, err = f.svc.BookAppointment(context.Background(), cmd, actorFor(f.receptionist), "127.0.0.1")
	require.ErrorAs(t, err, &verr)
}

func TestBookAppointmentInactivePatient(t *testing.T) {
	f := newApptFixture(t)
	f.patient.Status = patient.StatusInactive

	_, err := f.svc.BookAppointment(context.Background(), f.bookCmd("09:00"), actorFor(f.receptionist), "127.0.0.1")
	assert.ErrorIs(t, err, patient.ErrPatientInactive)
}

func TestBookAppointmentTargetMustBeDoctor(t *testing.T) {
	f := newApptFixture(t)
	cmd := f.bookCmd("09:00")
	cmd.DoctorID = f.receptionist.ID

	_, err := f.svc.BookAppointment(context.Background(), cmd, actorFor(f.receptionist), "127.0.0.1")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestRescheduleAppointment(t *testing.T) {
	f := newApptFixture(t)
	a, err := f.svc.BookAppointment(context.Background(), f.bookCmd("09:00"), actorFor(f.receptionist), "127.0.0.1")
	require.NoError(t, err)
	_, err = f.svc.BookAppointment(context.Background(), f.bookCmd("10:00"), actorFor(f.receptionist), "127.0.0.1")
	require.NoError(t, err)

	// Moving into the other booking is rejected.
	newStart := "10:15"
	_, err = f.svc.RescheduleAppointment(context.Background(), a.ID, &appointment.RescheduleAppointmentCommand{
		StartTime: &newStart,
	}, actorFor(f.receptionist), "127.0.0.1")
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)

	// A free slot works, and the appointment does not conflict with itself.
	freeStart := "11:00"
	updated, err := f.svc.RescheduleAppointment(context.Background(), a.ID, &appointment.RescheduleAppointmentCommand{
		StartTime: &freeStart,
	}, actorFor(f.receptionist), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "11:00", updated.StartTime)
}

func TestRescheduleNotesOnlySkipsRevalidation(t *testing.T) {
	f := newApptFixture(t)
	a, err := f.svc.BookAppointment(context.Background(), f.bookCmd("09:00"), actorFor(f.receptionist), "127.0.0.1")
	require.NoError(t, err)

	notes := "patient prefers afternoon next time"
	updated, err := f.svc.RescheduleAppointment(context.Background(), a.ID, &appointment.RescheduleAppointmentCommand{
		Notes: &notes,
	}, actorFor(f.receptionist), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, notes, updated.Notes)
	assert.Equal(t, "09:00", updated.StartTime)
}

func TestRescheduleOtherDoctorForbidden(t *testing.T) {
	f := newApptFixture(t)
	a, err := f.svc.BookAppointment(context.Background(), f.bookCmd("09:00"), actorFor(f.receptionist), "127.0.0.1")
	require.NoError(t, err)

	other := f.users.add(&domain.User{FirstName: "Omar", LastName: "Said", Role: domain.RoleDoctor, IsActive: true})
	notes := "n"
	_, err = f.svc.RescheduleAppointment(context.Background(), a.ID, &appointment.RescheduleAppointmentCommand{
		Notes: &notes,
	}, actorFor(other), "127.0.0.1")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCancelAppointment(t *testing.T) {
	f := newApptFixture(t)
	a, err := f.svc.BookAppointment(context.Background(), f.bookCmd("09:00"), actorFor(f.receptionist), "127.0.0.1")
	require.NoError(t, err)

	cancelled, err := f.svc.CancelAppointment(context.Background(), a.ID, "patient called in sick", actorFor(f.receptionist), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, cancelled.Status)
	assert.Equal(t, "patient called in sick", cancelled.CancellationReason)
	assert.NotNil(t, cancelled.CancelledAt)

	// Terminal: a second cancel is a conflict.
	_, err = f.svc.CancelAppointment(context.Background(), a.ID, "again", actorFor(f.receptionist), "127.0.0.1")
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "appointment is already cancelled", cerr.Detail)

	// The slot frees up.
	_, err = f.svc.BookAppointment(context.Background(), f.bookCmd("09:00"), actorFor(f.receptionist), "127.0.0.1")
	require.NoError(t, err)
}

func TestCompleteAppointment(t *testing.T) {
	f := newApptFixture(t)
	a, err := f.svc.BookAppointment(context.Background(), f.bookCmd("09:00"), actorFor(f.receptionist), "127.0.0.1")
	require.NoError(t, err)

	done, err := f.svc.CompleteAppointment(context.Background(), a.ID, actorFor(f.doctor), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCompleted, done.Status)

	_, err = f.svc.CompleteAppointment(context.Background(), a.ID, actorFor(f.doctor), "127.0.0.1")
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
}

func TestListAppointmentsScopesDoctors(t *testing.T) {
	f := newApptFixture(t)
	_, err := f.svc.BookAppointment(context.Background(), f.bookCmd("09:00"), actorFor(f.receptionist), "127.0.0.1")
	require.NoError(t, err)

	other := f.users.add(&domain.User{FirstName: "Omar", LastName: "Said", Role: domain.RoleDoctor, IsActive: true})
	page, err := f.svc.ListAppointments(context.Background(), &appointment.ListAppointmentsQuery{}, actorFor(other))
	require.NoError(t, err)
	assert.Empty(t, page.Appointments)

	page, err = f.svc.ListAppointments(context.Background(), &appointment.ListAppointmentsQuery{}, actorFor(f.doctor))
	require.NoError(t, err)
	assert.Len(t, page.Appointments, 1)
}
