package db

import (
	"fmt"
	"log"

	"landingops/internal/model"

	"gorm.io/gorm"
)

// Migrate runs database migrations for all models.
// The unique index on landing_domains.domain_name is the real guard against
// duplicate provisioning; the orchestrator's pre-check is an optimization.
func Migrate(db *gorm.DB) error {
	log.Println("Starting database migration...")

	models := []interface{}{
		&model.User{},
		&model.LandingDomain{},
		&model.Route{},
	}

	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Printf("✓ Database migration completed successfully (%d tables)", len(models))
	return nil
}
