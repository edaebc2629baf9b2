package db

import (
	"log"

	"gorm.io/gorm"
)

// RunMigrations performs database migrations
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&ScannedLink{},
		&ValidationResult{},
		&AppliedCorrection{},
		&AuditHistory{},
		&LinkHealthMetric{},
		&ScheduledJob{},
		&ResourceRequest{},
	); err != nil {
		return err
	}

	return recoverOrphanedJobs(db)
}

// recoverOrphanedJobs marks jobs left in running state by a previous process
// as failed, so the single-running invariant holds from a clean slate.
func recoverOrphanedJobs(db *gorm.DB) error {
	result := db.Model(&ScheduledJob{}).
		Where("status = ?", JobRunning).
		Updates(map[string]interface{}{
			"status": JobFailed,
			"error":  "interrupted by process restart",
		})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected > 0 {
		log.Printf("Marked %d interrupted jobs as failed", result.RowsAffected)
	}

	return nil
}
