package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sitepulse/linkaudit/internal/config"
	"github.com/sitepulse/linkaudit/internal/scheduler"
)

// ScheduleAuditRequest represents a full-audit scheduling request
type ScheduleAuditRequest struct {
	ScheduledAt string `json:"scheduled_at"`
	Priority    int    `json:"priority"`
}

// ScheduleQuickCheckRequest represents a quick-check scheduling request
type ScheduleQuickCheckRequest struct {
	Priority int `json:"priority"`
}

// SchedulerConfigRequest represents a scheduler configuration update
type SchedulerConfigRequest struct {
	TickIntervalSeconds int `json:"tick_interval_seconds"`
	DefaultPriority     int `json:"default_priority"`
}

// ScheduleAuditHandler enqueues a full audit, optionally at a future time.
func ScheduleAuditHandler(sched *scheduler.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ScheduleAuditRequest
		if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid schedule request", "details": err.Error()})
			return
		}

		var at *time.Time
		if req.ScheduledAt != "" {
			parsed, err := time.Parse(time.RFC3339, req.ScheduledAt)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "scheduled_at must be RFC3339"})
				return
			}
			at = &parsed
		}

		job, err := sched.ScheduleFullAudit(at, req.Priority)
		if err != nil {
			log.Printf("Failed to schedule full audit: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to schedule audit"})
			return
		}

		log.Printf("Scheduled full audit job %d for %s", job.ID, job.ScheduledAt)
		c.JSON(http.StatusCreated, job)
	}
}

// ScheduleQuickCheckHandler enqueues a quick check.
func ScheduleQuickCheckHandler(sched *scheduler.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ScheduleQuickCheckRequest
		if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid schedule request", "details": err.Error()})
			return
		}

		job, err := sched.ScheduleQuickCheck(req.Priority)
		if err != nil {
			log.Printf("Failed to schedule quick check: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to schedule quick check"})
			return
		}

		log.Printf("Scheduled quick check job %d", job.ID)
		c.JSON(http.StatusCreated, job)
	}
}

// ProcessQueueHandler runs one queue pass immediately.
func ProcessQueueHandler(sched *scheduler.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		outcome, err := sched.ProcessQueue(c.Request.Context())
		if err != nil {
			log.Printf("Queue processing failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Queue processing failed"})
			return
		}
		c.JSON(http.StatusOK, outcome)
	}
}

// CancelJobHandler cancels a pending job. Running jobs cannot be cancelled.
func CancelJobHandler(sched *scheduler.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
			return
		}

		if err := sched.CancelJob(uint(id)); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "id": id})
	}
}

// UpdateSchedulerConfigHandler updates queue processing parameters.
func UpdateSchedulerConfigHandler(sched *scheduler.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SchedulerConfigRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid config request", "details": err.Error()})
			return
		}

		sched.UpdateConfig(config.SchedulerConfig{
			TickInterval:    time.Duration(req.TickIntervalSeconds) * time.Second,
			DefaultPriority: req.DefaultPriority,
		})

		c.JSON(http.StatusOK, gin.H{
			"tick_interval":    sched.Config().TickInterval.String(),
			"default_priority": sched.Config().DefaultPriority,
		})
	}
}

// QueueStatusHandler reports queue counts and the next runnable job.
func QueueStatusHandler(sched *scheduler.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := sched.QueueStatus()
		if err != nil {
			log.Printf("Failed to read queue status: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(http.StatusOK, status)
	}
}
