package v1

import (
	"net/http"
	"time"

	"github.com/brightdent/dentflow/internal/domain/patient"
	"github.com/brightdent/dentflow/internal/middleware"
	"github.com/brightdent/dentflow/internal/service"
	"github.com/brightdent/dentflow/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type PatientHandler struct {
	patientSvc *service.PatientService
	collector  *metrics.Collector
}

func NewPatientHandler(patientSvc *service.PatientService, collector *metrics.Collector) *PatientHandler {
	return &PatientHandler{patientSvc: patientSvc, collector: collector}
}

type createPatientRequest struct {
	FirstName          string                    `json:"first_name" binding:"required"`
	LastName           string                    `json:"last_name" binding:"required"`
	DateOfBirth        string                    `json:"date_of_birth" binding:"required"`
	Gender             string                    `json:"gender" binding:"required"`
	NationalID         string                    `json:"national_id" binding:"required"`
	Phone              string                    `json:"phone"`
	Email              string                    `json:"email"`
	Address            string                    `json:"address"`
	City               string                    `json:"city"`
	ZipCode            string                    `json:"zip_code"`
	Country            string                    `json:"country"`
	EmergencyContact   *patient.EmergencyContact `json:"emergency_contact"`
	Insurance          *patient.Insurance        `json:"insurance"`
	Allergies          []string                  `json:"allergies"`
	MedicalHistory     []string                  `json:"medical_history"`
	CurrentMedications []string                  `json:"current_medications"`
	DentalHistory      string                    `json:"dental_history"`
	AssignedDoctorID   *string                   `json:"assigned_doctor_id"`
	Notes              string                    `json:"notes"`
}

func (h *PatientHandler) Create(c *gin.Context) {
	var req createPatientRequest
	if !bindJSON(c, &req) {
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	dob, err := time.Parse("2006-01-02", req.DateOfBirth)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid date_of_birth: expected YYYY-MM-DD")
		return
	}

	cmd := &patient.CreatePatientCommand{
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		DateOfBirth:        dob,
		Gender:             patient.Gender(req.Gender),
		NationalID:         req.NationalID,
		Phone:              req.Phone,
		Email:              req.Email,
		Address:            req.Address,
		City:               req.City,
		ZipCode:            req.ZipCode,
		Country:            req.Country,
		EmergencyContact:   req.EmergencyContact,
		Insurance:          req.Insurance,
		Allergies:          req.Allergies,
		MedicalHistory:     req.MedicalHistory,
		CurrentMedications: req.CurrentMedications,
		DentalHistory:      req.DentalHistory,
		Notes:              req.Notes,
		CreatedBy:          actor.ID,
	}
	if req.AssignedDoctorID != nil {
		id, err := uuid.Parse(*req.AssignedDoctorID)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid assigned_doctor_id")
			return
		}
		cmd.AssignedDoctorID = &id
	}

	p, err := h.patientSvc.CreatePatient(c.Request.Context(), cmd, actor, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.collector.PatientsCreatedTotal.Inc()
	respondCreated(c, p)
}

func (h *PatientHandler) Get(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	p, err := h.patientSvc.GetPatient(c.Request.Context(), id, actor, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, p)
}

type updatePatientRequest struct {
	FirstName          *string                   `json:"first_name"`
	LastName           *string                   `json:"last_name"`
	Gender             *string                   `json:"gender"`
	Phone              *string                   `json:"phone"`
	Email              *string                   `json:"email"`
	Address            *string                   `json:"address"`
	City               *string                   `json:"city"`
	ZipCode            *string                   `json:"zip_code"`
	Country            *string                   `json:"country"`
	EmergencyContact   *patient.EmergencyContact `json:"emergency_contact"`
	Insurance          *patient.Insurance        `json:"insurance"`
	Allergies          *[]string                 `json:"allergies"`
	MedicalHistory     *[]string                 `json:"medical_history"`
	CurrentMedications *[]string                 `json:"current_medications"`
	DentalHistory      *string                   `json:"dental_history"`
	AssignedDoctorID   *string                   `json:"assigned_doctor_id"`
	Notes              *string                   `json:"notes"`
}

func (h *PatientHandler) Update(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req updatePatientRequest
	if !bindJSON(c, &req) {
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	cmd := &patient.UpdatePatientCommand{
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		Phone:              req.Phone,
		Email:              req.Email,
		Address:            req.Address,
		City:               req.City,
		ZipCode:            req.ZipCode,
		Country:            req.Country,
		EmergencyContact:   req.EmergencyContact,
		Insurance:          req.Insurance,
		Allergies:          req.Allergies,
		MedicalHistory:     req.MedicalHistory,
		CurrentMedications: req.CurrentMedications,
		DentalHistory:      req.DentalHistory,
		Notes:              req.Notes,
		UpdatedBy:          actor.ID,
	}
	if req.Gender != nil {
		g := patient.Gender(*req.Gender)
		if !g.IsValid() {
			respondServiceError(c, patient.ErrInvalidGender)
			return
		}
		cmd.Gender = &g
	}
	if req.AssignedDoctorID != nil {
		did, err := uuid.Parse(*req.AssignedDoctorID)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid assigned_doctor_id")
			return
		}
		cmd.AssignedDoctorID = &did
	}

	p, err := h.patientSvc.UpdatePatient(c.Request.Context(), id, cmd, actor, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, p)
}

func (h *PatientHandler) Deactivate(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	if err := h.patientSvc.DeactivatePatient(c.Request.Context(), id, actor, c.ClientIP()); err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, gin.H{"deactivated": true})
}

func (h *PatientHandler) List(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	q := &patient.ListPatientsQuery{
		Search:    c.Query("search"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
		Page:      parseQueryInt(c, "page", 1),
		PageSize:  parseQueryInt(c, "page_size", 20),
	}

	if raw := c.Query("status"); raw != "" {
		st := patient.Status(raw)
		q.Status = &st
	}
	if raw := c.Query("assigned_doctor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid assigned_doctor_id")
			return
		}
		q.AssignedDoctorID = &id
	}

	page, err := h.patientSvc.ListPatients(c.Request.Context(), q, actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, gin.H{
		"patients":    page.Patients,
		"total_count": page.TotalCount,
		"page":        page.Page,
		"page_size":   page.PageSize,
		"total_pages": page.TotalPages,
	})
}
