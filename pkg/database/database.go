package database

import (
	"fmt"
	"time"

	"github.com/brightdent/dentflow/internal/config"
	"github.com/brightdent/dentflow/internal/domain"
	"github.com/brightdent/dentflow/internal/domain/appointment"
	"github.com/brightdent/dentflow/internal/domain/billing"
	"github.com/brightdent/dentflow/internal/domain/patient"
	"github.com/brightdent/dentflow/internal/domain/referral"
	"github.com/brightdent/dentflow/internal/domain/report"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		PrepareStmt:                              true,
		DisableForeignKeyConstraintWhenMigrating: false,
		DisableAutomaticPing:                     false,
		TranslateError:                           true,
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DNS(),
		PreferSimpleProtocol: false,
	}), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

func Migrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("running database migrations")
	start := time.Now()

	schemas := []string{"clinical", "auth", "audit", "billing"} // logical namespace
	for _, schema := range schemas {
		if err := db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)).Error; err != nil {
			return fmt.Errorf("creating schema %s: %w", schema, err)
		}
	}

	models := []any{
		&domain.User{},
		&domain.AuditLog{},
		&patient.Patient{},
		&appointment.Appointment{},
		&referral.Referral{},
		&report.ClinicalReport{},
		&billing.Invoice{},
	}

	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migrating models: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}

	log.Info("migrations completed", zap.Duration("duration", time.Since(start)))
	return nil
}

func createIndexes(db *gorm.DB) error {
	_ = db.Exec("CREATE EXTENSION IF NOT EXISTS pg_trgm").Error

	indexes := []struct {
		name  string
		query string
	}{
		// Two simultaneous bookings of the same slot race past the
		// service-level check; this index makes the database the final
		// arbiter. Slots freed by cancellation or completion can be rebooked.
		{
			name: "uq_appointments_doctor_slot",
			query: `CREATE UNIQUE INDEX IF NOT EXISTS uq_appointments_doctor_slot
				ON clinical.appointments (doctor_id, date, start_time)
				WHERE deleted_at IS NULL AND status NOT IN ('cancelled', 'completed', 'closed')`,
		},
		{
			name: "idx_appointments_doctor_schedule",
			query: `CREATE INDEX IF NOT EXISTS idx_appointments_doctor_schedule
				ON clinical.appointments (doctor_id, date)
				WHERE deleted_at IS NULL AND status NOT IN ('cancelled', 'completed', 'closed')`,
		},
		{
			name: "idx_appointments_room_schedule",
			query: `CREATE INDEX IF NOT EXISTS idx_appointments_room_schedule
				ON clinical.appointments (room_number, date)
				WHERE deleted_at IS NULL AND room_number <> '' AND status NOT IN ('cancelled', 'completed', 'closed')`,
		},
		// Patient search: GIN index for full-text search on name fields
		{
			name: "idx_patients_name_trgm",
			query: `CREATE INDEX IF NOT EXISTS idx_patients_name_trgm
				ON clinical.patients USING gin ((first_name || ' ' || last_name) gin_trgm_ops) WHERE deleted_at IS NULL`,
		},
		// At most one active referral per appointment, enforced at the
		// database as well as in the service.
		{
			name: "uq_referrals_active_per_appointment",
			query: `CREATE UNIQUE INDEX IF NOT EXISTS uq_referrals_active_per_appointment
				ON clinical.referrals (appointment_id)
				WHERE status IN ('pending', 'accepted')`,
		},
		{
			name: "idx_referrals_inbox",
			query: `CREATE INDEX IF NOT EXISTS idx_referrals_inbox
				ON clinical.referrals (to_doctor_id, status)
				WHERE status = 'pending'`,
		},
		{
			name: "idx_reports_appointment_author",
			query: `CREATE INDEX IF NOT EXISTS idx_reports_appointment_author
				ON clinical.reports (appointment_id, doctor_id)`,
		},
	}

	for _, idx := range indexes {
		if err := db.Exec(idx.query).Error; err != nil {
			return fmt.Errorf("creating index %s: %w", idx.name, err)
		}
	}

	return nil
}
