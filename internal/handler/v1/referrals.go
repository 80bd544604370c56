package v1

import (
	"net/http"
	"time"

	"github.com/brightdent/dentflow/internal/domain/referral"
	"github.com/brightdent/dentflow/internal/middleware"
	"github.com/brightdent/dentflow/internal/service"
	"github.com/brightdent/dentflow/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ReferralHandler struct {
	referralSvc *service.ReferralService
	collector   *metrics.Collector
}

func NewReferralHandler(referralSvc *service.ReferralService, collector *metrics.Collector) *ReferralHandler {
	return &ReferralHandler{referralSvc: referralSvc, collector: collector}
}

type referralResponse struct {
	ID             string     `json:"id"`
	AppointmentID  string     `json:"appointment_id"`
	FromDoctorID   string     `json:"from_doctor_id"`
	FromDoctorName string     `json:"from_doctor_name"`
	ToDoctorID     string     `json:"to_doctor_id"`
	ToDoctorName   string     `json:"to_doctor_name"`
	Reason         string     `json:"reason"`
	Notes          string     `json:"notes,omitempty"`
	Status         string     `json:"status"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toReferralResponse(r *referral.Referral) referralResponse {
	return referralResponse{
		ID:             r.ID.String(),
		AppointmentID:  r.AppointmentID.String(),
		FromDoctorID:   r.FromDoctorID.String(),
		FromDoctorName: r.FromDoctorName,
		ToDoctorID:     r.ToDoctorID.String(),
		ToDoctorName:   r.ToDoctorName,
		Reason:         r.Reason,
		Notes:          r.Notes,
		Status:         string(r.Status),
		ResolvedAt:     r.ResolvedAt,
		CreatedAt:      r.CreatedAt,
	}
}

type createReferralRequest struct {
	AppointmentID string `json:"appointment_id" binding:"required,uuid"`
	ToDoctorID    string `json:"to_doctor_id" binding:"required,uuid"`
	Reason        string `json:"reason" binding:"required"`
}

func (h *ReferralHandler) Create(c *gin.Context) {
	var req createReferralRequest
	if !bindJSON(c, &req) {
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	cmd := &referral.CreateReferralCommand{
		AppointmentID: uuid.MustParse(req.AppointmentID),
		ToDoctorID:    uuid.MustParse(req.ToDoctorID),
		Reason:        req.Reason,
	}

	ref, err := h.referralSvc.CreateReferral(c.Request.Context(), cmd, actor, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.collector.ReferralActionsTotal.WithLabelValues("create").Inc()
	respondCreated(c, toReferralResponse(ref))
}

type referralActionRequest struct {
	Action string `json:"action" binding:"required"`
	Notes  string `json:"notes"`
}

// ApplyAction advances the referral lifecycle: accept, refer_back,
// complete, or reject.
func (h *ReferralHandler) ApplyAction(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req referralActionRequest
	if !bindJSON(c, &req) {
		return
	}

	act, err := referral.ParseAction(req.Action, req.Notes)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	result, err := h.referralSvc.ApplyAction(c.Request.Context(), id, act, actor, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.collector.ReferralActionsTotal.WithLabelValues(act.Name()).Inc()
	respondOK(c, gin.H{
		"referral":    toReferralResponse(result.Referral),
		"appointment": toAppointmentResponse(result.Appointment),
	})
}

func (h *ReferralHandler) Get(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	ref, err := h.referralSvc.GetReferral(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, toReferralResponse(ref))
}

// ListForAppointment returns every referral cycle of an appointment,
// newest first.
func (h *ReferralHandler) ListForAppointment(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	refs, err := h.referralSvc.ListForAppointment(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	out := make([]referralResponse, 0, len(refs))
	for _, r := range refs {
		out = append(out, toReferralResponse(r))
	}
	respondOK(c, out)
}

// Inbox lists referrals awaiting the authenticated doctor's decision.
func (h *ReferralHandler) Inbox(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	refs, err := h.referralSvc.Inbox(c.Request.Context(), actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	out := make([]referralResponse, 0, len(refs))
	for _, r := range refs {
		out = append(out, toReferralResponse(r))
	}
	respondOK(c, out)
}
