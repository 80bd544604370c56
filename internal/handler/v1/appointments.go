package v1

import (
	"errors"
	"net/http"
	"time"

	"github.com/brightdent/dentflow/internal/domain/appointment"
	"github.com/brightdent/dentflow/internal/middleware"
	"github.com/brightdent/dentflow/internal/service"
	"github.com/brightdent/dentflow/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AppointmentHandler struct {
	apptSvc     *service.AppointmentService
	schedSvc    *service.SchedulingService
	referralSvc *service.ReferralService
	collector   *metrics.Collector
}

func NewAppointmentHandler(apptSvc *service.AppointmentService, schedSvc *service.SchedulingService, referralSvc *service.ReferralService, collector *metrics.Collector) *AppointmentHandler {
	return &AppointmentHandler{
		apptSvc:     apptSvc,
		schedSvc:    schedSvc,
		referralSvc: referralSvc,
		collector:   collector,
	}
}

type appointmentResponse struct {
	ID                 string     `json:"id"`
	PatientID          string     `json:"patient_id"`
	DoctorID           string     `json:"doctor_id"`
	DoctorName         string     `json:"doctor_name"`
	OriginalDoctorID   *string    `json:"original_doctor_id,omitempty"`
	OriginalDoctorName string     `json:"original_doctor_name,omitempty"`
	Date               string     `json:"date"`
	StartTime          string     `json:"start_time"`
	DurationMins       int        `json:"duration_mins"`
	RoomNumber         string     `json:"room_number,omitempty"`
	Status             string     `json:"status"`
	IsReferred         bool       `json:"is_referred"`
	CurrentReferralID  *string    `json:"current_referral_id,omitempty"`
	AwaitingAction     bool       `json:"awaiting_original_doctor_action"`
	Reason             string     `json:"reason,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) appointmentResponse {
	resp := appointmentResponse{
		ID:                 a.ID.String(),
		PatientID:          a.PatientID.String(),
		DoctorID:           a.DoctorID.String(),
		DoctorName:         a.DoctorName,
		OriginalDoctorName: a.OriginalDoctorName,
		Date:               a.Date.Format("2006-01-02"),
		StartTime:          a.StartTime,
		DurationMins:       a.DurationMins,
		RoomNumber:         a.RoomNumber,
		Status:             string(a.Status),
		IsReferred:         a.IsReferred,
		AwaitingAction:     a.AwaitingOriginalDoctorAction,
		Reason:             a.Reason,
		Notes:              a.Notes,
		CancelledAt:        a.CancelledAt,
		CancellationReason: a.CancellationReason,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
	if a.OriginalDoctorID != nil {
		s := a.OriginalDoctorID.String()
		resp.OriginalDoctorID = &s
	}
	if a.CurrentReferralID != nil {
		s := a.CurrentReferralID.String()
		resp.CurrentReferralID = &s
	}
	return resp
}

type createAppointmentRequest struct {
	PatientID    string `json:"patient_id" binding:"required,uuid"`
	DoctorID     string `json:"doctor_id" binding:"required,uuid"`
	Date         string `json:"date" binding:"required"`
	StartTime    string `json:"start_time" binding:"required"`
	DurationMins int    `json:"duration_mins" binding:"required"`
	RoomNumber   string `json:"room_number"`
	Reason       string `json:"reason"`
	Notes        string `json:"notes"`
}

func (h *AppointmentHandler) Create(c *gin.Context) {
	var req createAppointmentRequest
	if !bindJSON(c, &req) {
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid date: expected YYYY-MM-DD")
		return
	}

	cmd := &appointment.CreateAppointmentCommand{
		PatientID:    uuid.MustParse(req.PatientID),
		DoctorID:     uuid.MustParse(req.DoctorID),
		Date:         date,
		StartTime:    req.StartTime,
		DurationMins: req.DurationMins,
		RoomNumber:   req.RoomNumber,
		Reason:       req.Reason,
		Notes:        req.Notes,
		CreatedBy:    actor.ID,
	}

	appt, err := h.apptSvc.BookAppointment(c.Request.Context(), cmd, actor, c.ClientIP())
	if err != nil {
		var conflictErr *service.ConflictError
		if errors.As(err, &conflictErr) {
			h.collector.BookingConflicts.WithLabelValues(conflictErr.Resource).Inc()
		}
		respondServiceError(c, err)
		return
	}

	h.collector.AppointmentsTotal.WithLabelValues(string(appt.Status)).Inc()
	respondCreated(c, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) Get(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	appt, err := h.apptSvc.GetAppointment(c.Request.Context(), id, actor, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) List(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	q := &appointment.ListAppointmentsQuery{
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "page_size", 20),
	}

	if raw := c.Query("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid patient_id")
			return
		}
		q.PatientID = &id
	}
	if raw := c.Query("doctor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid doctor_id")
			return
		}
		q.DoctorID = &id
	}
	if raw := c.Query("status"); raw != "" {
		st := appointment.Status(raw)
		if !st.IsValid() {
			respondError(c, http.StatusBadRequest, "invalid status filter")
			return
		}
		q.Status = &st
	}
	if raw := c.Query("date_from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid date_from: expected YYYY-MM-DD")
			return
		}
		q.DateFrom = &t
	}
	if raw := c.Query("date_to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid date_to: expected YYYY-MM-DD")
			return
		}
		q.DateTo = &t
	}

	page, err := h.apptSvc.ListAppointments(c.Request.Context(), q, actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	out := make([]appointmentResponse, 0, len(page.Appointments))
	for _, a := range page.Appointments {
		out = append(out, toAppointmentResponse(a))
	}

	respondOK(c, gin.H{
		"appointments": out,
		"total_count":  page.TotalCount,
		"page":         page.Page,
		"page_size":    page.PageSize,
		"total_pages":  page.TotalPages,
	})
}

type rescheduleRequest struct {
	Date         *string `json:"date"`
	StartTime    *string `json:"start_time"`
	DurationMins *int    `json:"duration_mins"`
	RoomNumber   *string `json:"room_number"`
	Notes        *string `json:"notes"`
}

func (h *AppointmentHandler) Reschedule(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req rescheduleRequest
	if !bindJSON(c, &req) {
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	cmd := &appointment.RescheduleAppointmentCommand{
		StartTime:    req.StartTime,
		DurationMins: req.DurationMins,
		RoomNumber:   req.RoomNumber,
		Notes:        req.Notes,
		UpdatedBy:    actor.ID,
	}
	if req.Date != nil {
		date, err := time.Parse("2006-01-02", *req.Date)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid date: expected YYYY-MM-DD")
			return
		}
		cmd.Date = &date
	}

	appt, err := h.apptSvc.RescheduleAppointment(c.Request.Context(), id, cmd, actor, c.ClientIP())
	if err != nil {
		var conflictErr *service.ConflictError
		if errors.As(err, &conflictErr) {
			h.collector.BookingConflicts.WithLabelValues(conflictErr.Resource).Inc()
		}
		respondServiceError(c, err)
		return
	}

	respondOK(c, toAppointmentResponse(appt))
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *AppointmentHandler) Cancel(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req cancelRequest
	if !bindJSON(c, &req) {
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	appt, err := h.apptSvc.CancelAppointment(c.Request.Context(), id, req.Reason, actor, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.collector.AppointmentsTotal.WithLabelValues(string(appt.Status)).Inc()
	respondOK(c, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) Complete(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	appt, err := h.apptSvc.CompleteAppointment(c.Request.Context(), id, actor, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.collector.AppointmentsTotal.WithLabelValues(string(appt.Status)).Inc()
	respondOK(c, toAppointmentResponse(appt))
}

// Close finishes the whole case: requires a clinical report and force
// completes any active referral.
func (h *AppointmentHandler) Close(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	appt, err := h.referralSvc.CloseAppointment(c.Request.Context(), id, actor, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.collector.AppointmentsTotal.WithLabelValues(string(appt.Status)).Inc()
	respondOK(c, toAppointmentResponse(appt))
}

type checkSlotRequest struct {
	DoctorID      string  `json:"doctor_id" binding:"required,uuid"`
	Date          string  `json:"date" binding:"required"`
	StartTime     string  `json:"start_time" binding:"required"`
	DurationMins  int     `json:"duration_mins" binding:"required"`
	RoomNumber    string  `json:"room_number"`
	ExcludeApptID *string `json:"exclude_appointment_id"`
}

// CheckSlot lets the front desk pre-validate a slot before booking. The
// booking endpoint re-runs the same validation, so a stale positive here
// cannot produce a double booking.
func (h *AppointmentHandler) CheckSlot(c *gin.Context) {
	var req checkSlotRequest
	if !bindJSON(c, &req) {
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid date: expected YYYY-MM-DD")
		return
	}

	q := &service.ValidateSchedulingQuery{
		DoctorID:     uuid.MustParse(req.DoctorID),
		Date:         date,
		StartTime:    req.StartTime,
		DurationMins: req.DurationMins,
		RoomNumber:   req.RoomNumber,
	}
	if req.ExcludeApptID != nil {
		id, err := uuid.Parse(*req.ExcludeApptID)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid exclude_appointment_id")
			return
		}
		q.ExcludeAppointmentID = &id
	}

	check, err := h.schedSvc.ValidateScheduling(c.Request.Context(), q)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, gin.H{"valid": check.Valid, "reason": check.Reason})
}
