package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/brightdent/dentflow/internal/config"
	v1 "github.com/brightdent/dentflow/internal/handler/v1"
	"github.com/brightdent/dentflow/internal/service"
	"github.com/brightdent/dentflow/pkg/auth"
	"github.com/brightdent/dentflow/pkg/database"
	"github.com/brightdent/dentflow/pkg/logger"
	"github.com/brightdent/dentflow/pkg/metrics"
	"github.com/brightdent/dentflow/pkg/notify"
	"github.com/brightdent/dentflow/pkg/tracer"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("loading config: " + err.Error())
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("building logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting dentflow API",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	tp, err := tracer.Init(cfg.Tracing)
	if err != nil {
		log.Fatal("initializing tracer", zap.Error(err))
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatal("connecting to database", zap.Error(err))
	}

	if err := database.Migrate(db, log); err != nil {
		log.Fatal("running migrations", zap.Error(err))
	}

	// Repositories
	userRepo := database.NewUserRepository(db)
	patientRepo := database.NewPatientRepository(db)
	apptRepo := database.NewAppointmentRepository(db)
	refRepo := database.NewReferralRepository(db)
	reportRepo := database.NewReportRepository(db)
	billingRepo := database.NewBillingRepository(db)
	auditRepo := database.NewAuditRepository(db)

	// Infrastructure
	jwtManager := auth.NewJWTManager(cfg.JWT)
	collector := metrics.NewCollector("dentflow")
	if err := database.Instrument(db, collector); err != nil {
		log.Fatal("instrumenting database", zap.Error(err))
	}
	auditSvc := service.NewAuditService(auditRepo, collector, log)
	defer auditSvc.Shutdown()

	var notifier service.Notifier = service.NopNotifier{}
	if cfg.Notify.Enabled {
		notifier = notify.NewDispatcher(
			notify.NewWhatsAppSender(cfg.Notify),
			notify.NewEmailSender(cfg.Notify),
			userRepo,
			log,
		)
	}

	// Services
	authSvc := service.NewAuthService(userRepo, jwtManager, log)
	patientSvc := service.NewPatientService(patientRepo, auditSvc, log)
	schedSvc := service.NewSchedulingService(apptRepo, log)
	apptSvc := service.NewAppointmentService(apptRepo, patientRepo, userRepo, schedSvc, auditSvc, notifier, log)
	referralSvc := service.NewReferralService(apptRepo, refRepo, reportRepo, userRepo, auditSvc, notifier, log)
	reportSvc := service.NewReportService(apptRepo, reportRepo, userRepo, auditSvc, log)
	billingSvc := service.NewBillingService(billingRepo, patientRepo, auditSvc, log)

	router := v1.NewRouter(v1.RouterDeps{
		Config:      cfg,
		Log:         log,
		Collector:   collector,
		JWTManager:  jwtManager,
		AuthSvc:     authSvc,
		PatientSvc:  patientSvc,
		ApptSvc:     apptSvc,
		SchedSvc:    schedSvc,
		ReferralSvc: referralSvc,
		ReportSvc:   reportSvc,
		BillingSvc:  billingSvc,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}

	log.Info("stopped")
}
