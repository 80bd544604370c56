package database

import (
	"database/sql"
	"time"

	"github.com/brightdent/dentflow/pkg/metrics"
	"gorm.io/gorm"
)

const queryStartKey = "dentflow:query_start"

// Instrument registers gorm callbacks that feed the db metric series:
// per-query latency labelled by operation and table, and the open-connection
// gauge sampled on every completed query.
func Instrument(db *gorm.DB, collector *metrics.Collector) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	before := func(tx *gorm.DB) {
		tx.InstanceSet(queryStartKey, time.Now())
	}
	after := func(operation string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			observeQuery(tx, sqlDB, collector, operation)
		}
	}

	if err := db.Callback().Create().Before("gorm:create").Register("dentflow:metrics_before_create", before); err != nil {
		return err
	}
	if err := db.Callback().Create().After("gorm:create").Register("dentflow:metrics_after_create", after("create")); err != nil {
		return err
	}
	if err := db.Callback().Query().Before("gorm:query").Register("dentflow:metrics_before_query", before); err != nil {
		return err
	}
	if err := db.Callback().Query().After("gorm:query").Register("dentflow:metrics_after_query", after("query")); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("dentflow:metrics_before_update", before); err != nil {
		return err
	}
	if err := db.Callback().Update().After("gorm:update").Register("dentflow:metrics_after_update", after("update")); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("dentflow:metrics_before_delete", before); err != nil {
		return err
	}
	if err := db.Callback().Delete().After("gorm:delete").Register("dentflow:metrics_after_delete", after("delete")); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("dentflow:metrics_before_row", before); err != nil {
		return err
	}
	if err := db.Callback().Row().After("gorm:row").Register("dentflow:metrics_after_row", after("row")); err != nil {
		return err
	}
	if err := db.Callback().Raw().Before("gorm:raw").Register("dentflow:metrics_before_raw", before); err != nil {
		return err
	}
	return db.Callback().Raw().After("gorm:raw").Register("dentflow:metrics_after_raw", after("raw"))
}

func observeQuery(tx *gorm.DB, sqlDB *sql.DB, collector *metrics.Collector, operation string) {
	v, ok := tx.InstanceGet(queryStartKey)
	if !ok {
		return
	}
	start, ok := v.(time.Time)
	if !ok {
		return
	}

	table := tx.Statement.Table
	if table == "" {
		table = "unknown"
	}
	collector.DBQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	collector.DBConnections.Set(float64(sqlDB.Stats().OpenConnections))
}
