package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/brightdent/dentflow/internal/domain"
	"github.com/brightdent/dentflow/internal/domain/appointment"
	"github.com/brightdent/dentflow/internal/domain/referral"
	"github.com/brightdent/dentflow/internal/domain/report"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type referralFixture struct {
	apptRepo *fakeApptRepo
	refRepo  *fakeReferralRepo
	repRepo  *fakeReportRepo
	users    *fakeUserRepo
	svc      *ReferralService

	drA  *domain.User // books the appointment, the original doctor
	drB  *domain.User
	drC  *domain.User
	appt *appointment.Appointment
}

func newReferralFixture(t *testing.T) *referralFixture {
	t.Helper()
	f := &referralFixture{
		apptRepo: newFakeApptRepo(),
		refRepo:  &fakeReferralRepo{},
		repRepo:  &fakeReportRepo{},
		users:    newFakeUserRepo(),
	}
	f.svc = NewReferralService(f.apptRepo, f.refRepo, f.repRepo, f.users, newTestAuditService(t), NopNotifier{}, zap.NewNop())

	f.drA = f.users.add(&domain.User{FirstName: "Alice", LastName: "Ahn", Role: domain.RoleDoctor, IsActive: true})
	f.drB = f.users.add(&domain.User{FirstName: "Bilal", LastName: "Badr", Role: domain.RoleDoctor, IsActive: true})
	f.drC = f.users.add(&domain.User{FirstName: "Carla", LastName: "Cruz", Role: domain.RoleDoctor, IsActive: true})

	f.appt = &appointment.Appointment{
		PatientID:    uuid.New(),
		DoctorID:     f.drA.ID,
		DoctorName:   f.drA.FullName(),
		Date:         time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		StartTime:    "09:00",
		DurationMins: 30,
		Status:       appointment.StatusConfirmed,
		CreatedBy:    f.drA.ID,
	}
	require.NoError(t, f.apptRepo.Create(context.Background(), f.appt))
	return f
}

func (f *referralFixture) refer(t *testing.T, from, to *domain.User) *referral.Referral {
	t.Helper()
	r, err := f.svc.CreateReferral(context.Background(), &referral.CreateReferralCommand{
		AppointmentID: f.appt.ID,
		ToDoctorID:    to.ID,
		Reason:        "needs a root canal assessment",
	}, actorFor(from), "127.0.0.1")
	require.NoError(t, err)
	return r
}

func (f *referralFixture) act(t *testing.T, r *referral.Referral, by *domain.User, a referral.Action) *ReferralActionResult {
	t.Helper()
	res, err := f.svc.ApplyAction(context.Background(), r.ID, a, actorFor(by), "127.0.0.1")
	require.NoError(t, err)
	return res
}

func (f *referralFixture) reloadAppt(t *testing.T) *appointment.Appointment {
	t.Helper()
	a, err := f.apptRepo.GetByID(context.Background(), f.appt.ID)
	require.NoError(t, err)
	return a
}

func TestCreateReferralHandsOverTheCase(t *testing.T) {
	f := newReferralFixture(t)

	r := f.refer(t, f.drA, f.drB)
	assert.Equal(t, referral.StatusPending, r.Status)
	assert.Equal(t, f.drA.ID, r.FromDoctorID)
	assert.Equal(t, f.drB.ID, r.ToDoctorID)
	assert.Equal(t, f.drB.FullName(), r.ToDoctorName)

	a := f.reloadAppt(t)
	assert.Equal(t, f.drB.ID, a.DoctorID)
	assert.Equal(t, f.drB.FullName(), a.DoctorName)
	require.NotNil(t, a.OriginalDoctorID)
	assert.Equal(t, f.drA.ID, *a.OriginalDoctorID)
	assert.Equal(t, f.drA.FullName(), a.OriginalDoctorName)
	assert.True(t, a.IsReferred)
	require.NotNil(t, a.CurrentReferralID)
	assert.Equal(t, r.ID, *a.CurrentReferralID)
}

func TestCreateReferralGuards(t *testing.T) {
	f := newReferralFixture(t)

	// Only the holding doctor may refer.
	_, err := f.svc.CreateReferral(context.Background(), &referral.CreateReferralCommand{
		AppointmentID: f.appt.ID,
		ToDoctorID:    f.drB.ID,
		Reason:        "second opinion",
	}, actorFor(f.drC), "127.0.0.1")
	assert.ErrorIs(t, err, ErrForbidden)

	// Never to yourself.
	_, err = f.svc.CreateReferral(context.Background(), &referral.CreateReferralCommand{
		AppointmentID: f.appt.ID,
		ToDoctorID:    f.drA.ID,
		Reason:        "second opinion",
	}, actorFor(f.drA), "127.0.0.1")
	assert.ErrorIs(t, err, referral.ErrSelfReferral)

	// Target must be a doctor.
	receptionist := f.users.add(&domain.User{FirstName: "Rae", LastName: "Front", Role: domain.RoleReceptionist, IsActive: true})
	_, err = f.svc.CreateReferral(context.Background(), &referral.CreateReferralCommand{
		AppointmentID: f.appt.ID,
		ToDoctorID:    receptionist.ID,
		Reason:        "second opinion",
	}, actorFor(f.drA), "127.0.0.1")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	// Missing fields are all reported.
	_, err = f.svc.CreateReferral(context.Background(), &referral.CreateReferralCommand{}, actorFor(f.drA), "127.0.0.1")
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 3)
}

func TestCreateReferralRejectsTerminalAppointments(t *testing.T) {
	for _, status := range []appointment.Status{
		appointment.StatusCancelled,
		appointment.StatusCompleted,
		appointment.StatusClosed,
	} {
		f := newReferralFixture(t)
		a, err := f.apptRepo.GetByID(context.Background(), f.appt.ID)
		require.NoError(t, err)
		prev := a.Status
		a.Status = status
		require.NoError(t, f.apptRepo.UpdateGuarded(context.Background(), a, prev))

		_, err = f.svc.CreateReferral(context.Background(), &referral.CreateReferralCommand{
			AppointmentID: f.appt.ID,
			ToDoctorID:    f.drB.ID,
			Reason:        "specialist needed",
		}, actorFor(f.drA), "127.0.0.1")
		var cerr *ConflictError
		require.ErrorAs(t, err, &cerr, "status %s", status)
		assert.Equal(t, fmt.Sprintf("cannot refer an appointment in status %s", status), cerr.Detail)

		history, err := f.refRepo.FindByAppointment(context.Background(), f.appt.ID)
		require.NoError(t, err)
		assert.Empty(t, history, "no referral row may exist for a %s appointment", status)
	}
}

func TestCreateReferralAllowsOnlyOneActive(t *testing.T) {
	f := newReferralFixture(t)
	f.refer(t, f.drA, f.drB)

	// drB now holds the case, but the pending referral blocks another one.
	_, err := f.svc.CreateReferral(context.Background(), &referral.CreateReferralCommand{
		AppointmentID: f.appt.ID,
		ToDoctorID:    f.drC.ID,
		Reason:        "chained hand-off",
	}, actorFor(f.drB), "127.0.0.1")
	assert.ErrorIs(t, err, referral.ErrReferralActive)
}

func TestApplyActionAccept(t *testing.T) {
	f := newReferralFixture(t)
	r := f.refer(t, f.drA, f.drB)

	res := f.act(t, r, f.drB, referral.Accept{})
	assert.Equal(t, referral.StatusAccepted, res.Referral.Status)
	assert.Equal(t, appointment.StatusConfirmed, res.Appointment.Status)

	// Accepting twice is a stale transition.
	_, err := f.svc.ApplyAction(context.Background(), r.ID, referral.Accept{}, actorFor(f.drB), "127.0.0.1")
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "cannot accept a referral in status accepted", cerr.Detail)
}

func TestApplyActionOnlyTargetDoctorMayAct(t *testing.T) {
	f := newReferralFixture(t)
	r := f.refer(t, f.drA, f.drB)

	_, err := f.svc.ApplyAction(context.Background(), r.ID, referral.Accept{}, actorFor(f.drA), "127.0.0.1")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestApplyActionReferBack(t *testing.T) {
	f := newReferralFixture(t)
	r := f.refer(t, f.drA, f.drB)
	f.act(t, r, f.drB, referral.Accept{})

	res := f.act(t, r, f.drB, referral.ReferBack{Notes: "extraction done, continue restoration"})
	assert.Equal(t, referral.StatusReferredBack, res.Referral.Status)
	assert.Equal(t, "extraction done, continue restoration", res.Referral.Notes)

	a := f.reloadAppt(t)
	assert.Equal(t, appointment.StatusReferBack, a.Status)
	assert.True(t, a.AwaitingOriginalDoctorAction)
	assert.NotNil(t, a.LastReferBackDate)
	assert.False(t, a.IsReferred)
	// The snapshot survives until the case is closed or rejected.
	require.NotNil(t, a.OriginalDoctorID)
	assert.Equal(t, f.drA.ID, *a.OriginalDoctorID)
}

func TestApplyActionReferBackRequiresAccepted(t *testing.T) {
	f := newReferralFixture(t)
	r := f.refer(t, f.drA, f.drB)

	_, err := f.svc.ApplyAction(context.Background(), r.ID, referral.ReferBack{Notes: "n"}, actorFor(f.drB), "127.0.0.1")
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "cannot refer_back a referral in status pending", cerr.Detail)
}

func TestApplyActionReject(t *testing.T) {
	f := newReferralFixture(t)
	r := f.refer(t, f.drA, f.drB)

	res := f.act(t, r, f.drB, referral.Reject{})
	assert.Equal(t, referral.StatusRejected, res.Referral.Status)
	assert.NotNil(t, res.Referral.ResolvedAt)

	a := f.reloadAppt(t)
	assert.Equal(t, f.drA.ID, a.DoctorID)
	assert.Equal(t, f.drA.FullName(), a.DoctorName)
	assert.Nil(t, a.OriginalDoctorID)
	assert.Empty(t, a.OriginalDoctorName)
	assert.Nil(t, a.CurrentReferralID)
	assert.False(t, a.IsReferred)
	assert.Equal(t, appointment.StatusConfirmed, a.Status)

	// With the rejection resolved, the doctor may refer again.
	f.refer(t, f.drA, f.drC)
}

func TestApplyActionComplete(t *testing.T) {
	f := newReferralFixture(t)
	r := f.refer(t, f.drA, f.drB)
	f.act(t, r, f.drB, referral.Accept{})

	res := f.act(t, r, f.drB, referral.Complete{})
	assert.Equal(t, referral.StatusCompleted, res.Referral.Status)
	assert.NotNil(t, res.Referral.ResolvedAt)

	// Completing the referral does not close the appointment.
	a := f.reloadAppt(t)
	assert.Equal(t, appointment.StatusConfirmed, a.Status)
	assert.Equal(t, f.drB.ID, a.DoctorID)
}

func TestReferBackThenReReferStartsNewCycle(t *testing.T) {
	f := newReferralFixture(t)
	r1 := f.refer(t, f.drA, f.drB)
	f.act(t, r1, f.drB, referral.Accept{})
	f.act(t, r1, f.drB, referral.ReferBack{Notes: "back to you"})

	// While referred back, only the original doctor may start the next cycle.
	_, err := f.svc.CreateReferral(context.Background(), &referral.CreateReferralCommand{
		AppointmentID: f.appt.ID,
		ToDoctorID:    f.drC.ID,
		Reason:        "follow-up",
	}, actorFor(f.drB), "127.0.0.1")
	assert.ErrorIs(t, err, ErrForbidden)

	r2 := f.refer(t, f.drA, f.drC)
	assert.Equal(t, referral.StatusPending, r2.Status)

	a := f.reloadAppt(t)
	assert.Equal(t, appointment.StatusConfirmed, a.Status)
	assert.Equal(t, f.drC.ID, a.DoctorID)
	assert.False(t, a.AwaitingOriginalDoctorAction)
	assert.Nil(t, a.LastReferBackDate)
	require.NotNil(t, a.CurrentReferralID)
	assert.Equal(t, r2.ID, *a.CurrentReferralID)

	history, err := f.refRepo.FindByAppointment(context.Background(), f.appt.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, r2.ID, history[0].ID, "newest first")
}

func TestCloseAppointmentRequiresReport(t *testing.T) {
	f := newReferralFixture(t)

	_, err := f.svc.CloseAppointment(context.Background(), f.appt.ID, actorFor(f.drA), "127.0.0.1")
	assert.ErrorIs(t, err, appointment.ErrReportRequired)
}

func TestCloseAppointment(t *testing.T) {
	f := newReferralFixture(t)
	require.NoError(t, f.repRepo.Create(context.Background(), &report.ClinicalReport{
		AppointmentID: &f.appt.ID,
		PatientID:     f.appt.PatientID,
		DoctorID:      f.drA.ID,
		DoctorRole:    report.RoleOriginal,
		Findings:      "caries on 36",
	}))

	a, err := f.svc.CloseAppointment(context.Background(), f.appt.ID, actorFor(f.drA), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusClosed, a.Status)

	// Closing is terminal.
	_, err = f.svc.CloseAppointment(context.Background(), f.appt.ID, actorFor(f.drA), "127.0.0.1")
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "appointment is already closed", cerr.Detail)
}

func TestCloseAppointmentForceCompletesActiveReferral(t *testing.T) {
	f := newReferralFixture(t)
	r := f.refer(t, f.drA, f.drB)
	f.act(t, r, f.drB, referral.Accept{})
	require.NoError(t, f.repRepo.Create(context.Background(), &report.ClinicalReport{
		AppointmentID: &f.appt.ID,
		PatientID:     f.appt.PatientID,
		DoctorID:      f.drB.ID,
		DoctorRole:    report.RoleReferred,
	}))

	// The original doctor can close even while drB holds the case.
	a, err := f.svc.CloseAppointment(context.Background(), f.appt.ID, actorFor(f.drA), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusClosed, a.Status)
	assert.False(t, a.IsReferred)

	got, err := f.refRepo.GetByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, referral.StatusCompleted, got.Status)
	assert.NotNil(t, got.ResolvedAt)
}

func TestCloseAppointmentActorGate(t *testing.T) {
	f := newReferralFixture(t)
	require.NoError(t, f.repRepo.Create(context.Background(), &report.ClinicalReport{
		AppointmentID: &f.appt.ID,
		PatientID:     f.appt.PatientID,
		DoctorID:      f.drA.ID,
		DoctorRole:    report.RoleOriginal,
	}))

	_, err := f.svc.CloseAppointment(context.Background(), f.appt.ID, actorFor(f.drB), "127.0.0.1")
	assert.ErrorIs(t, err, ErrForbidden)

	admin := f.users.add(&domain.User{FirstName: "Ada", LastName: "Min", Role: domain.RoleAdmin, IsActive: true})
	a, err := f.svc.CloseAppointment(context.Background(), f.appt.ID, actorFor(admin), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusClosed, a.Status)
}

func TestInbox(t *testing.T) {
	f := newReferralFixture(t)
	r := f.refer(t, f.drA, f.drB)

	inbox, err := f.svc.Inbox(context.Background(), actorFor(f.drB))
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, r.ID, inbox[0].ID)

	inbox, err = f.svc.Inbox(context.Background(), actorFor(f.drC))
	require.NoError(t, err)
	assert.Empty(t, inbox)

	receptionist := f.users.add(&domain.User{FirstName: "Rae", LastName: "Front", Role: domain.RoleReceptionist, IsActive: true})
	_, err = f.svc.Inbox(context.Background(), actorFor(receptionist))
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestParseActionRoundTrip(t *testing.T) {
	act, err := referral.ParseAction("refer_back", "notes here")
	require.NoError(t, err)
	rb, ok := act.(referral.ReferBack)
	require.True(t, ok)
	assert.Equal(t, "notes here", rb.Notes)

	for _, name := range []string{"accept", "complete", "reject"} {
		act, err := referral.ParseAction(name, "")
		require.NoError(t, err)
		assert.Equal(t, name, act.Name())
	}

	_, err = referral.ParseAction("escalate", "")
	assert.ErrorIs(t, err, referral.ErrUnknownAction)
}
