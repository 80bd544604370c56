package v1

import (
	"net/http"

	"github.com/brightdent/dentflow/internal/domain/billing"
	"github.com/brightdent/dentflow/internal/middleware"
	"github.com/brightdent/dentflow/internal/service"
	"github.com/brightdent/dentflow/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type BillingHandler struct {
	billingSvc *service.BillingService
	collector  *metrics.Collector
}

func NewBillingHandler(billingSvc *service.BillingService, collector *metrics.Collector) *BillingHandler {
	return &BillingHandler{billingSvc: billingSvc, collector: collector}
}

type createInvoiceRequest struct {
	PatientID     string             `json:"patient_id" binding:"required,uuid"`
	DoctorID      string             `json:"doctor_id" binding:"required,uuid"`
	AppointmentID *string            `json:"appointment_id"`
	Items         []billing.LineItem `json:"items" binding:"required"`
	DiscountCents int64              `json:"discount_cents"`
	Currency      string             `json:"currency"`
	Notes         string             `json:"notes"`
}

func (h *BillingHandler) Create(c *gin.Context) {
	var req createInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	cmd := &billing.CreateInvoiceCommand{
		PatientID:     uuid.MustParse(req.PatientID),
		DoctorID:      uuid.MustParse(req.DoctorID),
		Items:         req.Items,
		DiscountCents: req.DiscountCents,
		Currency:      req.Currency,
		Notes:         req.Notes,
		CreatedBy:     actor.ID,
	}
	if req.AppointmentID != nil {
		id, err := uuid.Parse(*req.AppointmentID)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid appointment_id")
			return
		}
		cmd.AppointmentID = &id
	}

	inv, err := h.billingSvc.CreateInvoice(c.Request.Context(), cmd, actor, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondCreated(c, inv)
}

func (h *BillingHandler) Issue(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	inv, err := h.billingSvc.IssueInvoice(c.Request.Context(), id, actor, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.collector.InvoicesIssuedTotal.Inc()
	respondOK(c, inv)
}

type paymentRequest struct {
	AmountCents int64  `json:"amount_cents" binding:"required"`
	Method      string `json:"method" binding:"required"`
}

func (h *BillingHandler) RecordPayment(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req paymentRequest
	if !bindJSON(c, &req) {
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	inv, err := h.billingSvc.RecordPayment(c.Request.Context(), id, req.AmountCents, billing.PaymentMethod(req.Method), actor, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, inv)
}

func (h *BillingHandler) Void(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	inv, err := h.billingSvc.VoidInvoice(c.Request.Context(), id, actor, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, inv)
}

func (h *BillingHandler) Get(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	inv, err := h.billingSvc.GetInvoice(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, inv)
}

func (h *BillingHandler) List(c *gin.Context) {
	q := &billing.ListInvoicesQuery{
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
		st := billing.InvoiceStatus(raw)
		if !st.IsValid() {
			respondError(c, http.StatusBadRequest, "invalid status filter")
			return
		}
		q.Status = &st
	}

	page, err := h.billingSvc.ListInvoices(c.Request.Context(), q)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, gin.H{
		"invoices":    page.Invoices,
		"total_count": page.TotalCount,
		"page":        page.Page,
		"page_size":   page.PageSize,
		"total_pages": page.TotalPages,
	})
}
