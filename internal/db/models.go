package db

import "time"

type LinkType string

const (
	LinkInternal LinkType = "internal"
	LinkExternal LinkType = "external"
	LinkDownload LinkType = "download"
	LinkAnchor   LinkType = "anchor"
)

type LinkPriority string

const (
	PriorityCritical LinkPriority = "critical"
	PriorityHigh     LinkPriority = "high"
	PriorityMedium   LinkPriority = "medium"
	PriorityLow      LinkPriority = "low"
)

type ValidationStatus string

const (
	StatusValid    ValidationStatus = "valid"
	StatusBroken   ValidationStatus = "broken"
	StatusRedirect ValidationStatus = "redirect"
	StatusTimeout  ValidationStatus = "timeout"
	StatusUnknown  ValidationStatus = "unknown"
)

type CorrectionType string

const (
	CorrectionTypo      CorrectionType = "typo"
	CorrectionExtension CorrectionType = "extension"
	CorrectionRedirect  CorrectionType = "redirect"
	CorrectionMoved     CorrectionType = "moved"
	CorrectionSimilar   CorrectionType = "similar"
)

type JobType string

const (
	JobFullAudit  JobType = "full_audit"
	JobQuickCheck JobType = "quick_check"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// ScannedLink represents one link reference discovered in source content or
// the sitemap. Records are append-only history; dedup happens per scan, not
// in storage.
type ScannedLink struct {
	ID         uint         `gorm:"primaryKey" json:"id"`
	URL        string       `gorm:"not null;size:768;index" json:"url"`
	SourceFile string       `gorm:"size:512" json:"source_file"`
	SourceLine int          `json:"source_line"`
	LinkType   LinkType     `gorm:"size:16" json:"link_type"`
	Priority   LinkPriority `gorm:"size:16" json:"priority"`
	Context    string       `gorm:"size:512" json:"context"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// ValidationResult records the outcome of probing one distinct URL.
type ValidationResult struct {
	ID           uint             `gorm:"primaryKey" json:"id"`
	URL          string           `gorm:"not null;size:768;index" json:"url"`
	Status       ValidationStatus `gorm:"size:16;index" json:"status"`
	StatusCode   int              `json:"status_code"`
	RedirectURL  string           `gorm:"size:768" json:"redirect_url"`
	ErrorMessage string           `gorm:"size:512" json:"error_message"`
	ResponseTime int64            `json:"response_time"` // milliseconds
	CheckedAt    time.Time        `json:"checked_at"`
}

// AppliedCorrection records a correction written back to a source file.
// RollbackID and RollbackData are mandatory: without them the write cannot
// be undone.
type AppliedCorrection struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	OriginalURL    string         `gorm:"not null;size:768" json:"original_url"`
	CorrectedURL   string         `gorm:"not null;size:768" json:"corrected_url"`
	FilePath       string         `gorm:"not null;size:512" json:"file_path"`
	CorrectionType CorrectionType `gorm:"size:16" json:"correction_type"`
	Confidence     float64        `json:"confidence"`
	RollbackID     string         `gorm:"not null;size:64;uniqueIndex" json:"rollback_id"`
	AppliedAt      time.Time      `json:"applied_at"`
	RollbackData   string         `gorm:"not null;type:text" json:"-"`
	RolledBack     bool           `json:"rolled_back"`
}

// AuditHistory is one immutable record per completed pipeline execution.
type AuditHistory struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	TotalLinks     int       `json:"total_links"`
	BrokenLinks    int       `json:"broken_links"`
	CorrectedLinks int       `json:"corrected_links"`
	SeoScore       int       `json:"seo_score"`
	ReportPath     string    `gorm:"size:512" json:"report_path"`
	ExecutionTime  float64   `json:"execution_time"` // seconds
	CreatedAt      time.Time `json:"created_at"`
}

// LinkHealthMetric is a daily health snapshot derived from an audit run.
type LinkHealthMetric struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Date            time.Time `gorm:"index" json:"date"`
	TotalLinks      int       `json:"total_links"`
	BrokenLinks     int       `json:"broken_links"`
	HealthScore     int       `json:"health_score"`
	ResponseTimeAvg int64     `json:"response_time_avg"`
	CreatedAt       time.Time `json:"created_at"`
}

// ScheduledJob is a durable queue entry. Lifecycle:
// pending -> running -> completed|failed, or pending -> cancelled.
type ScheduledJob struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Type        JobType   `gorm:"size:16;not null" json:"type"`
	Priority    int       `gorm:"index" json:"priority"`
	ScheduledAt time.Time `gorm:"index" json:"scheduled_at"`
	Status      JobStatus `gorm:"size:16;index;default:'pending'" json:"status"`
	Error       string    `gorm:"size:512" json:"error"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ResourceRequest is a visitor request for content that no longer resolves.
type ResourceRequest struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserEmail    string    `gorm:"not null;size:255;index" json:"user_email"`
	RequestedURL string    `gorm:"not null;size:768" json:"requested_url"`
	SourceURL    string    `gorm:"size:768" json:"source_url"`
	Message      string    `gorm:"size:1024" json:"message"`
	CreatedAt    time.Time `json:"created_at"`
}
