package service

import (
	"context"
	"testing"
	"time"

	"github.com/brightdent/dentflow/internal/domain"
	"github.com/brightdent/dentflow/internal/domain/appointment"
	"github.com/brightdent/dentflow/internal/domain/report"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type reportFixture struct {
	apptRepo *fakeApptRepo
	repRepo  *fakeReportRepo
	users    *fakeUserRepo
	svc      *ReportService

	drA  *domain.User
	drB  *domain.User
	appt *appointment.Appointment
}

func newReportFixture(t *testing.T) *reportFixture {
	t.Helper()
	f := &reportFixture{
		apptRepo: newFakeApptRepo(),
		repRepo:  &fakeReportRepo{},
		users:    newFakeUserRepo(),
	}
	f.svc = NewReportService(f.apptRepo, f.repRepo, f.users, newTestAuditService(t), zap.NewNop())

	f.drA = f.users.add(&domain.User{FirstName: "Alice", LastName: "Ahn", Role: domain.RoleDoctor, IsActive: true})
	f.drB = f.users.add(&domain.User{FirstName: "Bilal", LastName: "Badr", Role: domain.RoleDoctor, IsActive: true})

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

// markReferred puts the appointment in the referred shape: drB holds the
// case, drA is snapshotted as the original doctor.
func (f *reportFixture) markReferred(t *testing.T) uuid.UUID {
	t.Helper()
	referralID := uuid.New()
	prev := f.appt.Status
	f.appt.OriginalDoctorID = &f.drA.ID
	f.appt.OriginalDoctorName = f.drA.FullName()
	f.appt.DoctorID = f.drB.ID
	f.appt.DoctorName = f.drB.FullName()
	f.appt.IsReferred = true
	f.appt.CurrentReferralID = &referralID
	require.NoError(t, f.apptRepo.UpdateGuarded(context.Background(), f.appt, prev))
	return referralID
}

// markReferredBack moves the referred appointment into the refer-back state
// at the given instant.
func (f *reportFixture) markReferredBack(t *testing.T, at time.Time) {
	t.Helper()
	prev := f.appt.Status
	f.appt.Status = appointment.StatusReferBack
	f.appt.AwaitingOriginalDoctorAction = true
	f.appt.LastReferBackDate = &at
	f.appt.IsReferred = false
	require.NoError(t, f.apptRepo.UpdateGuarded(context.Background(), f.appt, prev))
}

func (f *reportFixture) seedReport(t *testing.T, doctor *domain.User, role report.DoctorRole, createdAt time.Time) *report.ClinicalReport {
	t.Helper()
	r := &report.ClinicalReport{
		CreatedAt:     createdAt,
		AppointmentID: &f.appt.ID,
		PatientID:     f.appt.PatientID,
		DoctorID:      doctor.ID,
		DoctorName:    doctor.FullName(),
		DoctorRole:    role,
	}
	require.NoError(t, f.repRepo.Create(context.Background(), r))
	return r
}

func (f *reportFixture) eligibility(t *testing.T, doctorID uuid.UUID) *ReportEligibility {
	t.Helper()
	elig, err := f.svc.CanCreateReport(context.Background(), f.appt.ID, doctorID)
	require.NoError(t, err)
	return elig
}

func TestCanCreateReportRejectsOutsideDoctor(t *testing.T) {
	f := newReportFixture(t)

	elig := f.eligibility(t, f.drB.ID)
	assert.False(t, elig.Allowed)
	assert.Equal(t, "only the original or current doctor may report on this appointment", elig.Reason)
}

func TestCanCreateReportFirstReportByCaseDoctor(t *testing.T) {
	f := newReportFixture(t)

	elig := f.eligibility(t, f.drA.ID)
	assert.True(t, elig.Allowed)
	assert.Equal(t, report.RoleOriginal, elig.DoctorRole)
	assert.Nil(t, elig.PreviousReportID)
}

func TestCanCreateReportOnePerDoctor(t *testing.T) {
	f := newReportFixture(t)
	f.seedReport(t, f.drA, report.RoleOriginal, time.Now())

	elig := f.eligibility(t, f.drA.ID)
	assert.False(t, elig.Allowed)
	assert.Equal(t, "doctor has already filed a report for this appointment", elig.Reason)
}

func TestCanCreateReportReferredDoctorChainsToOriginal(t *testing.T) {
	f := newReportFixture(t)
	original := f.seedReport(t, f.drA, report.RoleOriginal, time.Now().Add(-time.Hour))
	f.markReferred(t)

	elig := f.eligibility(t, f.drB.ID)
	assert.True(t, elig.Allowed)
	assert.Equal(t, report.RoleReferred, elig.DoctorRole)
	require.NotNil(t, elig.PreviousReportID)
	assert.Equal(t, original.ID, *elig.PreviousReportID)
}

func TestCanCreateReportReferredDoctorWithoutOriginalReport(t *testing.T) {
	f := newReportFixture(t)
	f.markReferred(t)

	elig := f.eligibility(t, f.drB.ID)
	assert.True(t, elig.Allowed)
	assert.Equal(t, report.RoleReferred, elig.DoctorRole)
	assert.Nil(t, elig.PreviousReportID)
}

func TestCanCreateReportReferredDoctorDuringReferBack(t *testing.T) {
	f := newReportFixture(t)
	original := f.seedReport(t, f.drA, report.RoleOriginal, time.Now().Add(-2*time.Hour))
	f.markReferred(t)
	f.markReferredBack(t, time.Now().Add(-time.Hour))

	// The referred doctor still holds the case in refer_back; their first
	// report carries the referred role, never original.
	elig := f.eligibility(t, f.drB.ID)
	assert.True(t, elig.Allowed)
	assert.Equal(t, report.RoleReferred, elig.DoctorRole)
	require.NotNil(t, elig.PreviousReportID)
	assert.Equal(t, original.ID, *elig.PreviousReportID)
}

func TestReportChainSurvivesReferBack(t *testing.T) {
	f := newReportFixture(t)
	f.markReferred(t)
	f.markReferredBack(t, time.Now().Add(-time.Hour))

	// Referred doctor documents the case after handing it back.
	filed, err := f.svc.CreateReport(context.Background(), &report.CreateReportCommand{
		AppointmentID: &f.appt.ID,
		Findings:      "molar extracted, sutures placed",
	}, actorFor(f.drB), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, report.RoleReferred, filed.DoctorRole)

	// The original doctor's follow-up report chains onto it.
	elig := f.eligibility(t, f.drA.ID)
	assert.True(t, elig.Allowed)
	assert.Equal(t, report.RoleOriginal, elig.DoctorRole)
	require.NotNil(t, elig.PreviousReportID)
	assert.Equal(t, filed.ID, *elig.PreviousReportID)
}

func TestCanCreateReportReferBackException(t *testing.T) {
	referBackAt := time.Date(2025, time.March, 2, 12, 0, 0, 0, time.UTC)

	t.Run("allowed when no prior original report exists", func(t *testing.T) {
		f := newReportFixture(t)
		f.markReferred(t)
		referred := f.seedReport(t, f.drB, report.RoleReferred, referBackAt.Add(-time.Hour))
		f.markReferredBack(t, referBackAt)

		elig := f.eligibility(t, f.drA.ID)
		assert.True(t, elig.Allowed)
		assert.Equal(t, report.RoleOriginal, elig.DoctorRole)
		require.NotNil(t, elig.PreviousReportID)
		assert.Equal(t, referred.ID, *elig.PreviousReportID)
	})

	t.Run("denied when a pre-referral report exists", func(t *testing.T) {
		f := newReportFixture(t)
		f.seedReport(t, f.drA, report.RoleOriginal, referBackAt.Add(-48*time.Hour))
		f.markReferred(t)
		f.markReferredBack(t, referBackAt)

		elig := f.eligibility(t, f.drA.ID)
		assert.False(t, elig.Allowed)
		assert.Equal(t, "an original-doctor report filed before the refer-back already exists", elig.Reason)
	})

	t.Run("denied twice within the same cycle", func(t *testing.T) {
		f := newReportFixture(t)
		f.markReferred(t)
		f.markReferredBack(t, referBackAt)
		f.seedReport(t, f.drA, report.RoleOriginal, referBackAt.Add(time.Hour))

		elig := f.eligibility(t, f.drA.ID)
		assert.False(t, elig.Allowed)
		assert.Equal(t, "doctor has already filed a report for this referral cycle", elig.Reason)
	})
}

func TestCreateReportAppliesEligibilityVerdict(t *testing.T) {
	f := newReportFixture(t)
	original := f.seedReport(t, f.drA, report.RoleOriginal, time.Now().Add(-time.Hour))
	referralID := f.markReferred(t)

	r, err := f.svc.CreateReport(context.Background(), &report.CreateReportCommand{
		AppointmentID: &f.appt.ID,
		Findings:      "impacted wisdom tooth removed",
		Treatment:     "surgical extraction",
	}, actorFor(f.drB), "127.0.0.1")
	require.NoError(t, err)

	assert.Equal(t, report.RoleReferred, r.DoctorRole)
	assert.Equal(t, f.drB.FullName(), r.DoctorName)
	assert.Equal(t, f.appt.PatientID, r.PatientID)
	require.NotNil(t, r.PreviousReportID)
	assert.Equal(t, original.ID, *r.PreviousReportID)
	require.NotNil(t, r.ReferralID)
	assert.Equal(t, referralID, *r.ReferralID)
}

func TestCreateReportDeniedIsConflict(t *testing.T) {
	f := newReportFixture(t)
	f.seedReport(t, f.drA, report.RoleOriginal, time.Now())

	_, err := f.svc.CreateReport(context.Background(), &report.CreateReportCommand{
		AppointmentID: &f.appt.ID,
		Findings:      "repeat",
	}, actorFor(f.drA), "127.0.0.1")
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "doctor has already filed a report for this appointment", cerr.Detail)
}

func TestCreateReportStandalone(t *testing.T) {
	f := newReportFixture(t)
	patientID := uuid.New()

	r, err := f.svc.CreateReport(context.Background(), &report.CreateReportCommand{
		PatientID: patientID,
		Findings:  "routine check, no caries",
	}, actorFor(f.drA), "127.0.0.1")
	require.NoError(t, err)
	assert.Nil(t, r.AppointmentID)
	assert.Equal(t, patientID, r.PatientID)
	assert.Equal(t, report.RoleOriginal, r.DoctorRole)
}

func TestCreateReportRequiresDoctor(t *testing.T) {
	f := newReportFixture(t)
	receptionist := f.users.add(&domain.User{FirstName: "Rae", LastName: "Front", Role: domain.RoleReceptionist, IsActive: true})

	_, err := f.svc.CreateReport(context.Background(), &report.CreateReportCommand{
		PatientID: uuid.New(),
	}, actorFor(receptionist), "127.0.0.1")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestListForAppointmentOldestFirst(t *testing.T) {
	f := newReportFixture(t)
	first := f.seedReport(t, f.drA, report.RoleOriginal, time.Now().Add(-2*time.Hour))
	second := f.seedReport(t, f.drB, report.RoleReferred, time.Now().Add(-time.Hour))

	reports, err := f.svc.ListForAppointment(context.Background(), f.appt.ID)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, first.ID, reports[0].ID)
	assert.Equal(t, second.ID, reports[1].ID)
}
