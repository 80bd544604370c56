package v1

import (
	"net/http"

	"github.com/brightdent/dentflow/internal/config"
	"github.com/brightdent/dentflow/internal/domain"
	"github.com/brightdent/dentflow/internal/middleware"
	"github.com/brightdent/dentflow/internal/service"
	"github.com/brightdent/dentflow/pkg/auth"
	"github.com/brightdent/dentflow/pkg/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RouterDeps struct {
	Config     *config.Config
	Log        *zap.Logger
	Collector  *metrics.Collector
	JWTManager *auth.JWTManager

	AuthSvc     *service.AuthService
	PatientSvc  *service.PatientService
	ApptSvc     *service.AppointmentService
	SchedSvc    *service.SchedulingService
	ReferralSvc *service.ReferralService
	ReportSvc   *service.ReportService
	BillingSvc  *service.BillingService
}

// NewRouter wires middleware and all v1 routes.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(deps.Log))
	router.Use(middleware.Metrics(deps.Collector))

	limiter := middleware.NewRateLimiter(deps.Config.RateLimit)
	authLimiter := middleware.NewAuthRateLimiter(deps.Config.RateLimit)
	router.Use(limiter.Middleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	authHandler := NewAuthHandler(deps.AuthSvc)
	patientHandler := NewPatientHandler(deps.PatientSvc, deps.Collector)
	apptHandler := NewAppointmentHandler(deps.ApptSvc, deps.SchedSvc, deps.ReferralSvc, deps.Collector)
	referralHandler := NewReferralHandler(deps.ReferralSvc, deps.Collector)
	reportHandler := NewReportHandler(deps.ReportSvc, deps.Collector)
	billingHandler := NewBillingHandler(deps.BillingSvc, deps.Collector)

	public := router.Group("/api/v1")
	{
		authRoutes := public.Group("/auth")
		authRoutes.Use(authLimiter.Middleware())
		{
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/refresh", authHandler.Refresh)
		}
	}

	private := router.Group("/api/v1")
	private.Use(middleware.RequireAuth(deps.JWTManager))
	{
		private.POST("/auth/change-password", authHandler.ChangePassword)
		private.POST("/staff", middleware.RequireRoles(domain.RoleAdmin), authHandler.RegisterStaff)
		private.GET("/staff/doctors", authHandler.ListDoctors)

		patients := private.Group("/patients")
		{
			patients.POST("", middleware.RequireRoles(domain.RoleAdmin, domain.RoleReceptionist), patientHandler.Create)
			patients.GET("", patientHandler.List)
			patients.GET("/:id", patientHandler.Get)
			patients.PUT("/:id", middleware.RequireRoles(domain.RoleAdmin, domain.RoleReceptionist, domain.RoleDoctor), patientHandler.Update)
			patients.DELETE("/:id", middleware.RequireRoles(domain.RoleAdmin, domain.RoleReceptionist), patientHandler.Deactivate)
		}

		appointments := private.Group("/appointments")
		{
			appointments.POST("", middleware.RequireRoles(domain.RoleAdmin, domain.RoleReceptionist, domain.RoleDoctor), apptHandler.Create)
			appointments.POST("/check-slot", apptHandler.CheckSlot)
			appointments.GET("", apptHandler.List)
			appointments.GET("/:id", apptHandler.Get)
			appointments.PATCH("/:id", apptHandler.Reschedule)
			appointments.POST("/:id/cancel", apptHandler.Cancel)
			appointments.POST("/:id/complete", middleware.RequireRoles(domain.RoleDoctor, domain.RoleAdmin), apptHandler.Complete)
			appointments.POST("/:id/close", middleware.RequireRoles(domain.RoleDoctor, domain.RoleAdmin), apptHandler.Close)
			appointments.GET("/:id/referrals", referralHandler.ListForAppointment)
			appointments.GET("/:id/reports", reportHandler.ListForAppointment)
			appointments.GET("/:id/report-eligibility", middleware.RequireRoles(domain.RoleDoctor), reportHandler.CheckEligibility)
		}

		referrals := private.Group("/referrals")
		{
			referrals.POST("", middleware.RequireRoles(domain.RoleDoctor), referralHandler.Create)
			referrals.GET("/inbox", middleware.RequireRoles(domain.RoleDoctor), referralHandler.Inbox)
			referrals.GET("/:id", referralHandler.Get)
			referrals.POST("/:id/actions", middleware.RequireRoles(domain.RoleDoctor), referralHandler.ApplyAction)
		}

		reports := private.Group("/reports")
		{
			reports.POST("", middleware.RequireRoles(domain.RoleDoctor), reportHandler.Create)
			reports.GET("/:id", reportHandler.Get)
		}

		invoices := private.Group("/invoices")
		{
			invoices.POST("", middleware.RequireRoles(domain.RoleAdmin, domain.RoleReceptionist), billingHandler.Create)
			invoices.GET("", billingHandler.List)
			invoices.GET("/:id", billingHandler.Get)
			invoices.POST("/:id/issue", middleware.RequireRoles(domain.RoleAdmin, domain.RoleReceptionist), billingHandler.Issue)
			invoices.POST("/:id/payments", middleware.RequireRoles(domain.RoleAdmin, domain.RoleReceptionist), billingHandler.RecordPayment)
			invoices.POST("/:id/void", middleware.RequireRoles(domain.RoleAdmin, domain.RoleReceptionist), billingHandler.Void)
		}
	}

	return router
}
