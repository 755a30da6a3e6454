package db

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"campus-reservation-backend/config"
	"campus-reservation-backend/internal/model"
)

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log.Println("Running database migrations...")
	if err := Migrate(db); err != nil {
		return nil, err
	}

	if cfg.EnableRangeExclusion {
		log.Println("Applying reservation range-exclusion DDL...")
		if err := applyRangeExclusionDDL(db); err != nil {
			return nil, err
		}
	}

	log.Println("Database initialization complete.")
	return db, nil
}

// Migrate runs the schema migrations for all persisted models. It is shared
// with the test setup, which runs it against in-memory SQLite.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Resource{},
		&model.Reservation{},
		&model.ExpiryAlert{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

// applyRangeExclusionDDL installs the Postgres-level guard against double
// booking: a GiST exclusion constraint over (resource_id, [start, end)) that
// only considers active reservations. The application treats a violation of
// this constraint as a conflict error, so the invariant holds even for
// writers that bypass the in-process locks.
func applyRangeExclusionDDL(db *gorm.DB) error {
	ddls := []string{
		"CREATE EXTENSION IF NOT EXISTS btree_gist;",

		// ADD CONSTRAINT has no IF NOT EXISTS; drop first so restarts are clean.
		"ALTER TABLE reservations DROP CONSTRAINT IF EXISTS reservations_interval_valid;",
		"ALTER TABLE reservations " +
			"ADD CONSTRAINT reservations_interval_valid CHECK (start_time < end_time);",

		// Lower bound closed, upper bound open: touching reservations are legal.
		"ALTER TABLE reservations DROP CONSTRAINT IF EXISTS reservations_no_overlap;",
		"ALTER TABLE reservations " +
			"ADD CONSTRAINT reservations_no_overlap EXCLUDE USING GIST (" +
			"resource_id WITH =, tstzrange(start_time, end_time, '[)') WITH &&" +
			") WHERE (status = 'active');",

		"CREATE INDEX IF NOT EXISTS idx_reservations_holder_status " +
			"ON reservations (holder_id, status, end_time);",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
