package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS drivers (
		id                BIGSERIAL PRIMARY KEY,
		plate_no          TEXT NOT NULL,
		owner_name        TEXT NOT NULL,
		email             TEXT,
		vehicle_type      TEXT NOT NULL,
		registered_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		contributor_level TEXT NOT NULL DEFAULT 'Silver',
		upload_count      INT NOT NULL DEFAULT 0
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_drivers_plate_no ON drivers(plate_no);`,
	`CREATE TABLE IF NOT EXISTS violations (
		id              BIGSERIAL PRIMARY KEY,
		reference       UUID NOT NULL,
		plate_no        TEXT NOT NULL REFERENCES drivers(plate_no),
		code            TEXT NOT NULL,
		label           TEXT NOT NULL,
		weight          DOUBLE PRECISION NOT NULL,
		multiplier      DOUBLE PRECISION NOT NULL,
		points          DOUBLE PRECISION NOT NULL,
		recorded_at     TIMESTAMPTZ NOT NULL,
		expiry_date     TIMESTAMPTZ NOT NULL,
		generated_email TEXT,
		driver_email    TEXT,
		penalty_split   JSONB,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_violations_reference ON violations(reference);`,
	`CREATE INDEX IF NOT EXISTS idx_violations_plate_code ON violations(plate_no, code);`,
	`CREATE TABLE IF NOT EXISTS rewards (
		id                 BIGSERIAL PRIMARY KEY,
		plate_no           TEXT NOT NULL,
		amount             DOUBLE PRECISION NOT NULL DEFAULT 0,
		submitted_at       TIMESTAMPTZ NOT NULL,
		violation_reported TEXT,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_rewards_plate_no ON rewards(plate_no);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
