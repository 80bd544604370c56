package v1

import (
	"net/http"
	"time"

	"github.com/brightdent/dentflow/internal/domain/report"
	"github.com/brightdent/dentflow/internal/middleware"
	"github.com/brightdent/dentflow/internal/service"
	"github.com/brightdent/dentflow/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ReportHandler struct {
	reportSvc *service.ReportService
	collector *metrics.Collector
}

func NewReportHandler(reportSvc *service.ReportService, collector *metrics.Collector) *ReportHandler {
	return &ReportHandler{reportSvc: reportSvc, collector: collector}
}

type reportResponse struct {
	ID               string    `json:"id"`
	AppointmentID    *string   `json:"appointment_id,omitempty"`
	PatientID        string    `json:"patient_id"`
	DoctorID         string    `json:"doctor_id"`
	DoctorName       string    `json:"doctor_name,omitempty"`
	DoctorRole       string    `json:"doctor_role"`
	ReferralID       *string   `json:"referral_id,omitempty"`
	PreviousReportID *string   `json:"previous_report_id,omitempty"`
	Findings         string    `json:"findings,omitempty"`
	Treatment        string    `json:"treatment,omitempty"`
	Recommendations  string    `json:"recommendations,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func toReportResponse(r *report.ClinicalReport) reportResponse {
	resp := reportResponse{
		ID:              r.ID.String(),
		PatientID:       r.PatientID.String(),
		DoctorID:        r.DoctorID.String(),
		DoctorName:      r.DoctorName,
		DoctorRole:      string(r.DoctorRole),
		Findings:        r.Findings,
		Treatment:       r.Treatment,
		Recommendations: r.Recommendations,
		Notes:           r.Notes,
		CreatedAt:       r.CreatedAt,
	}
	if r.AppointmentID != nil {
		s := r.AppointmentID.String()
		resp.AppointmentID = &s
	}
	if r.ReferralID != nil {
		s := r.ReferralID.String()
		resp.ReferralID = &s
	}
	if r.PreviousReportID != nil {
		s := r.PreviousReportID.String()
		resp.PreviousReportID = &s
	}
	return resp
}

type createReportRequest struct {
	AppointmentID   *string `json:"appointment_id"`
	PatientID       string  `json:"patient_id" binding:"required,uuid"`
	Findings        string  `json:"findings" binding:"required"`
	Treatment       string  `json:"treatment"`
	Recommendations string  `json:"recommendations"`
	Notes           string  `json:"notes"`
}

func (h *ReportHandler) Create(c *gin.Context) {
	var req createReportRequest
	if !bindJSON(c, &req) {
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	cmd := &report.CreateReportCommand{
		PatientID:       uuid.MustParse(req.PatientID),
		Findings:        req.Findings,
		Treatment:       req.Treatment,
		Recommendations: req.Recommendations,
		Notes:           req.Notes,
	}
	if req.AppointmentID != nil {
		id, err := uuid.Parse(*req.AppointmentID)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid appointment_id")
			return
		}
		cmd.AppointmentID = &id
	}

	rep, err := h.reportSvc.CreateReport(c.Request.Context(), cmd, actor, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.collector.ReportsFiledTotal.WithLabelValues(string(rep.DoctorRole)).Inc()
	respondCreated(c, toReportResponse(rep))
}

// CheckEligibility tells the authenticated doctor whether they may file a
// report on the appointment, before they write it.
func (h *ReportHandler) CheckEligibility(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	elig, err := h.reportSvc.CanCreateReport(c.Request.Context(), id, actor.ID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	resp := gin.H{
		"allowed":     elig.Allowed,
		"reason":      elig.Reason,
		"doctor_role": string(elig.DoctorRole),
	}
	if elig.PreviousReportID != nil {
		resp["previous_report_id"] = elig.PreviousReportID.String()
	}
	respondOK(c, resp)
}

func (h *ReportHandler) Get(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	rep, err := h.reportSvc.GetReport(c.Request.Context(), id, actor, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, toReportResponse(rep))
}

// ListForAppointment returns the appointment's report chain, oldest first.
func (h *ReportHandler) ListForAppointment(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	reps, err := h.reportSvc.ListForAppointment(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	out := make([]reportResponse, 0, len(reps))
	for _, r := range reps {
		out = append(out, toReportResponse(r))
	}
	respondOK(c, out)
}
