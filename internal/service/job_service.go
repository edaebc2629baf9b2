package service

import (
	"time"

	"gorm.io/gorm"

	"github.com/sitepulse/linkaudit/internal/db"
)

// CreateJob enqueues a new pending job.
func CreateJob(dbConn *gorm.DB, jobType db.JobType, priority int, scheduledAt time.Time) (*db.ScheduledJob, error) {
	job := db.ScheduledJob{
		Type:        jobType,
		Priority:    priority,
		ScheduledAt: scheduledAt,
		Status:      db.JobPending,
	}
	if err := dbConn.Create(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJobByID retrieves one job.
func GetJobByID(dbConn *gorm.DB, id uint) (*db.ScheduledJob, error) {
	var job db.ScheduledJob
	if err := dbConn.First(&job, id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// NextRunnableJob returns the pending job that is due now, choosing highest
// priority first and earliest schedule time within a priority.
func NextRunnableJob(dbConn *gorm.DB, now time.Time) (*db.ScheduledJob, error) {
	var job db.ScheduledJob
	err := dbConn.Where("status = ? AND scheduled_at <= ?", db.JobPending, now).
		Order("priority desc, scheduled_at asc").
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// AnyJobRunning reports whether a job currently holds the running status.
func AnyJobRunning(dbConn *gorm.DB) (bool, error) {
	var count int64
	err := dbConn.Model(&db.ScheduledJob{}).
		Where("status = ?", db.JobRunning).
		Count(&count).Error
	return count > 0, err
}

// TransitionJob moves a job from one status to another. The guard on the
// current status makes illegal transitions a no-op at the storage layer;
// RowsAffected tells the caller whether the transition happened.
func TransitionJob(dbConn *gorm.DB, id uint, from, to db.JobStatus, errMsg string) (bool, error) {
	result := dbConn.Model(&db.ScheduledJob{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status": to,
			"error":  errMsg,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CountJobsByStatus returns per-status job counts.
func CountJobsByStatus(dbConn *gorm.DB) (map[db.JobStatus]int64, error) {
	type row struct {
		Status db.JobStatus
		Count  int64
	}
	var rows []row
	err := dbConn.Model(&db.ScheduledJob{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[db.JobStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
