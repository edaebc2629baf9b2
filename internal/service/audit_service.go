package service

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sitepulse/linkaudit/internal/db"
)

// SaveScannedLinks persists one scan's links in batches. History is
// append-only; deduplication happened inside the scan.
func SaveScannedLinks(dbConn *gorm.DB, links []db.ScannedLink) error {
	if len(links) == 0 {
		return nil
	}
	return dbConn.CreateInBatches(links, 100).Error
}

// SaveValidationResults persists one validation pass.
func SaveValidationResults(dbConn *gorm.DB, results []db.ValidationResult) error {
	if len(results) == 0 {
		return nil
	}
	return dbConn.CreateInBatches(results, 100).Error
}

// SaveAppliedCorrection persists a correction that was written to disk.
// Corrections without rollback data are rejected before they reach storage.
func SaveAppliedCorrection(dbConn *gorm.DB, correction *db.AppliedCorrection) error {
	if correction.RollbackID == "" || correction.RollbackData == "" {
		return fmt.Errorf("correction for %s is missing rollback data", correction.OriginalURL)
	}
	return dbConn.Create(correction).Error
}

// SaveAuditHistory persists the immutable record of one pipeline execution.
func SaveAuditHistory(dbConn *gorm.DB, record *db.AuditHistory) error {
	return dbConn.Create(record).Error
}

// SaveHealthMetric persists the health snapshot derived from one run.
func SaveHealthMetric(dbConn *gorm.DB, metric *db.LinkHealthMetric) error {
	return dbConn.Create(metric).Error
}

// RecentAuditHistory returns up to limit records, newest first.
func RecentAuditHistory(dbConn *gorm.DB, limit int) ([]db.AuditHistory, error) {
	var records []db.AuditHistory
	err := dbConn.Order("created_at desc").Limit(limit).Find(&records).Error
	return records, err
}

// ListAuditHistory returns a page of audit history, newest first.
func ListAuditHistory(dbConn *gorm.DB, page, size int) ([]db.AuditHistory, int64, error) {
	var total int64
	if err := dbConn.Model(&db.AuditHistory{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []db.AuditHistory
	err := dbConn.Order("created_at desc").
		Limit(size).Offset((page - 1) * size).
		Find(&records).Error
	return records, total, err
}

// GetValidationResultByID retrieves one validation result.
func GetValidationResultByID(dbConn *gorm.DB, id uint) (*db.ValidationResult, error) {
	var result db.ValidationResult
	if err := dbConn.First(&result, id).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

// LatestScannedLinkByURL finds the most recent scan record for a URL, used
// to recover the source location for a manual fix.
func LatestScannedLinkByURL(dbConn *gorm.DB, url string) (*db.ScannedLink, error) {
	var link db.ScannedLink
	err := dbConn.Where("url = ?", url).Order("created_at desc").First(&link).Error
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// LatestScannedLinks returns the links recorded by the most recent scan,
// approximated as every record written within a minute of the newest one.
func LatestScannedLinks(dbConn *gorm.DB) ([]db.ScannedLink, error) {
	var newest db.ScannedLink
	err := dbConn.Order("created_at desc").First(&newest).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return []db.ScannedLink{}, nil
		}
		return nil, err
	}

	var links []db.ScannedLink
	cutoff := newest.CreatedAt.Add(-time.Minute)
	err = dbConn.Where("created_at >= ?", cutoff).Find(&links).Error
	return links, err
}

// RecentValidURLs returns distinct URLs that recently validated as valid,
// newest first. The corrector ranks typo and similarity candidates against
// this set. Grouping by url keeps the ordering column in the select list,
// which MySQL requires once the result is deduplicated.
func RecentValidURLs(dbConn *gorm.DB, limit int) ([]string, error) {
	var urls []string
	err := dbConn.Model(&db.ValidationResult{}).
		Where("status = ?", db.StatusValid).
		Group("url").
		Order("MAX(checked_at) desc").
		Limit(limit).
		Pluck("url", &urls).Error
	return urls, err
}

// GetAppliedCorrectionByID retrieves one applied correction.
func GetAppliedCorrectionByID(dbConn *gorm.DB, id uint) (*db.AppliedCorrection, error) {
	var correction db.AppliedCorrection
	if err := dbConn.First(&correction, id).Error; err != nil {
		return nil, err
	}
	return &correction, nil
}

// MarkCorrectionRolledBack flags a correction whose file has been restored.
func MarkCorrectionRolledBack(dbConn *gorm.DB, id uint) error {
	return dbConn.Model(&db.AppliedCorrection{}).Where("id = ?", id).
		Update("rolled_back", true).Error
}

// CreateResourceRequest persists a visitor resource request.
func CreateResourceRequest(dbConn *gorm.DB, request *db.ResourceRequest) error {
	if request.UserEmail == "" || request.RequestedURL == "" {
		return fmt.Errorf("user email and requested URL are required")
	}
	return dbConn.Create(request).Error
}

// CountResourceRequestsToday counts a user's requests since midnight UTC,
// for the per-user per-day rate limit.
func CountResourceRequestsToday(dbConn *gorm.DB, email string) (int64, error) {
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	var count int64
	err := dbConn.Model(&db.ResourceRequest{}).
		Where("user_email = ? AND created_at >= ?", email, midnight).
		Count(&count).Error
	return count, err
}
