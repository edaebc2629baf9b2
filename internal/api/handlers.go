package api

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sitepulse/linkaudit/internal/config"
	"github.com/sitepulse/linkaudit/internal/corrector"
	"github.com/sitepulse/linkaudit/internal/db"
	"github.com/sitepulse/linkaudit/internal/notify"
	"github.com/sitepulse/linkaudit/internal/pipeline"
	"github.com/sitepulse/linkaudit/internal/service"
)

// PaginatedResponse represents a paginated response
type PaginatedResponse struct {
	Data  interface{} `json:"data"`
	Page  int         `json:"page"`
	Size  int         `json:"size"`
	Total int64       `json:"total"`
	Pages int         `json:"pages"`
}

// ResourceRequestBody represents the resource-request intake payload
type ResourceRequestBody struct {
	UserEmail    string `json:"user_email" binding:"required,email"`
	RequestedURL string `json:"requested_url" binding:"required"`
	SourceURL    string `json:"source_url"`
	Message      string `json:"message"`
}

// maxResourceRequestsPerDay bounds intake per user email.
const maxResourceRequestsPerDay = 5

// knownGoodLimit caps how many valid URLs feed the corrector's candidate
// search on a manual fix.
const knownGoodLimit = 500

// RunAuditHandler triggers a synchronous full pipeline run. The response
// always carries the execution time, even when the run failed partway.
func RunAuditHandler(pipe *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := pipe.RunFullAudit(c.Request.Context())

		status := http.StatusOK
		if !result.Success {
			status = http.StatusInternalServerError
		}
		c.JSON(status, result)
	}
}

// AuditHistoryHandler lists past audit runs with pagination.
func AuditHistoryHandler(dbConn *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
		if err != nil || page < 1 {
			page = 1
		}

		pageSize, err := strconv.Atoi(c.DefaultQuery("size", "10"))
		if err != nil || pageSize < 1 || pageSize > 100 {
			pageSize = 10
		}

		records, total, err := service.ListAuditHistory(dbConn, page, pageSize)
		if err != nil {
			log.Printf("Failed to list audit history: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		c.JSON(http.StatusOK, PaginatedResponse{
			Data:  records,
			Page:  page,
			Size:  pageSize,
			Total: total,
			Pages: int((total + int64(pageSize) - 1) / int64(pageSize)),
		})
	}
}

// FixLinkHandler applies the best correction for one broken validation
// result, but only when its confidence clears the manual-apply floor.
func FixLinkHandler(dbConn *gorm.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid validation result ID"})
			return
		}

		validation, err := service.GetValidationResultByID(dbConn, uint(id))
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "Validation result not found"})
				return
			}
			log.Printf("Failed to fetch validation result %d: %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		if validation.Status != db.StatusBroken {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":  "Only broken links can be fixed",
				"status": validation.Status,
			})
			return
		}

		link, err := service.LatestScannedLinkByURL(dbConn, validation.URL)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "No scanned link found for this URL"})
				return
			}
			log.Printf("Failed to fetch scanned link for %s: %v", validation.URL, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		knownGood, err := service.RecentValidURLs(dbConn, knownGoodLimit)
		if err != nil {
			log.Printf("Failed to load known-good URLs: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		fixer := corrector.New(cfg.Corrector, knownGood)
		best := fixer.Best(link.URL, validation)
		if best == nil || best.Confidence < fixer.ManualApplyThreshold() {
			response := gin.H{"error": "manual intervention required"}
			if best != nil {
				response["best_suggestion"] = best
			}
			c.JSON(http.StatusUnprocessableEntity, response)
			return
		}

		applied, err := fixer.Apply(link, best)
		if err != nil {
			log.Printf("Failed to apply correction for %s: %v", link.URL, err)
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}

		if err := service.SaveAppliedCorrection(dbConn, applied); err != nil {
			log.Printf("Failed to persist correction, rolling back file: %v", err)
			if rbErr := corrector.Rollback(applied); rbErr != nil {
				log.Printf("Rollback of %s failed: %v", applied.FilePath, rbErr)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save correction"})
			return
		}

		log.Printf("Manually corrected %s -> %s (%.2f confidence)",
			applied.OriginalURL, applied.CorrectedURL, applied.Confidence)
		c.JSON(http.StatusOK, applied)
	}
}

// RollbackCorrectionHandler restores the pre-correction file content.
func RollbackCorrectionHandler(dbConn *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid correction ID"})
			return
		}

		correction, err := service.GetAppliedCorrectionByID(dbConn, uint(id))
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "Correction not found"})
				return
			}
			log.Printf("Failed to fetch correction %d: %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		if correction.RolledBack {
			c.JSON(http.StatusConflict, gin.H{"error": "Correction already rolled back"})
			return
		}

		if err := corrector.Rollback(correction); err != nil {
			log.Printf("Failed to roll back correction %d: %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := service.MarkCorrectionRolledBack(dbConn, correction.ID); err != nil {
			log.Printf("Failed to flag correction %d as rolled back: %v", id, err)
		}

		log.Printf("Rolled back correction %d on %s", correction.ID, correction.FilePath)
		c.JSON(http.StatusOK, gin.H{"success": true, "rollback_id": correction.RollbackID})
	}
}

// ResourceRequestHandler accepts visitor requests for missing resources,
// rate-limited per user per day. The operator notification is best-effort.
func ResourceRequestHandler(dbConn *gorm.DB, notifier notify.Notifier, recipient string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body ResourceRequestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid resource request",
				"details": err.Error(),
			})
			return
		}

		body.UserEmail = strings.ToLower(strings.TrimSpace(body.UserEmail))

		count, err := service.CountResourceRequestsToday(dbConn, body.UserEmail)
		if err != nil {
			log.Printf("Failed to count resource requests: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		if count >= maxResourceRequestsPerDay {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Daily request limit reached"})
			return
		}

		request := &db.ResourceRequest{
			UserEmail:    body.UserEmail,
			RequestedURL: body.RequestedURL,
			SourceURL:    body.SourceURL,
			Message:      body.Message,
		}
		if err := service.CreateResourceRequest(dbConn, request); err != nil {
			log.Printf("Failed to save resource request: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save request"})
			return
		}

		subject := "Resource request: " + request.RequestedURL
		notifyBody := "From: " + request.UserEmail + "\nRequested: " + request.RequestedURL +
			"\nFound via: " + request.SourceURL + "\n\n" + request.Message
		if err := notifier.Send(recipient, subject, notifyBody); err != nil {
			log.Printf("Resource request notification failed (non-fatal): %v", err)
		}

		c.JSON(http.StatusCreated, request)
	}
}
