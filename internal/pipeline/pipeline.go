package pipeline

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/sitepulse/linkaudit/internal/alert"
	"github.com/sitepulse/linkaudit/internal/config"
	"github.com/sitepulse/linkaudit/internal/corrector"
	"github.com/sitepulse/linkaudit/internal/db"
	"github.com/sitepulse/linkaudit/internal/notify"
	"github.com/sitepulse/linkaudit/internal/report"
	"github.com/sitepulse/linkaudit/internal/scanner"
	"github.com/sitepulse/linkaudit/internal/service"
	"github.com/sitepulse/linkaudit/internal/validator"
)

// Pipeline runs the audit cycle: scan, validate, correct, report, persist,
// alert. A run executes to completion synchronously once started; the only
// internal concurrency is the validator's bounded fan-out.
type Pipeline struct {
	dbConn *gorm.DB
	cfg    *config.Config
	alerts *alert.Manager
	client *http.Client
}

// RunResult is what every pipeline entry point returns. It always carries
// the elapsed execution time, including on failure: partial progress is
// reported, not discarded.
type RunResult struct {
	Success       bool           `json:"success"`
	Message       string         `json:"message,omitempty"`
	AuditID       uint           `json:"audit_id,omitempty"`
	Report        *report.Report `json:"report,omitempty"`
	ExecutionTime float64        `json:"execution_time"`
	ScanErrors    []string       `json:"scan_errors,omitempty"`
}

// New creates a Pipeline. A nil client lets the validator build its own;
// tests inject one with a fake transport.
func New(dbConn *gorm.DB, cfg *config.Config, notifier notify.Notifier, client *http.Client) *Pipeline {
	return &Pipeline{
		dbConn: dbConn,
		cfg:    cfg,
		alerts: alert.NewManager(cfg.Alert, notifier),
		client: client,
	}
}

// RunFullAudit executes the complete cycle. Failures are reported through
// the result object, never as an error value, so callers like the scheduler
// can treat the return uniformly.
func (p *Pipeline) RunFullAudit(ctx context.Context) *RunResult {
	start := time.Now()
	log.Println("Starting full audit")

	scan, err := scanner.New(p.cfg.Scanner).Scan()
	if err != nil {
		return failed(start, fmt.Sprintf("scan failed: %v", err))
	}
	if err := service.SaveScannedLinks(p.dbConn, scan.Links); err != nil {
		log.Printf("Failed to persist scanned links: %v", err)
	}

	results := p.validate(ctx, urlsOf(scan.Links))
	if err := service.SaveValidationResults(p.dbConn, results); err != nil {
		log.Printf("Failed to persist validation results: %v", err)
	}

	corrected := p.applyCorrections(scan.Links, results)

	rpt := report.NewGenerator(p.cfg.Report).Generate(scan.Links, results, corrected)
	auditID := p.persistRun(rpt, time.Since(start))

	reasons := p.alerts.Evaluate(p.dbConn, rpt)
	if len(reasons) > 0 {
		log.Printf("Audit alert fired: %v", reasons)
	}

	result := &RunResult{
		Success:       true,
		AuditID:       auditID,
		Report:        rpt,
		ExecutionTime: time.Since(start).Seconds(),
		ScanErrors:    errorStrings(scan.Errors),
	}
	log.Printf("Full audit complete in %.1fs: %d links, %d broken, %d corrected",
		result.ExecutionTime, rpt.Summary.TotalLinks, rpt.Summary.BrokenLinks, corrected)
	return result
}

// RunQuickCheck revalidates only the critical and high priority links from
// the most recent scan. No rescan, no corrections; just a fresh health
// snapshot of the links that matter most.
func (p *Pipeline) RunQuickCheck(ctx context.Context) *RunResult {
	start := time.Now()
	log.Println("Starting quick check")

	links, err := service.LatestScannedLinks(p.dbConn)
	if err != nil {
		return failed(start, fmt.Sprintf("failed to load links for quick check: %v", err))
	}

	subset := make([]db.ScannedLink, 0, len(links))
	for _, link := range links {
		if link.Priority == db.PriorityCritical || link.Priority == db.PriorityHigh {
			subset = append(subset, link)
		}
	}

	results := p.validate(ctx, urlsOf(subset))
	if err := service.SaveValidationResults(p.dbConn, results); err != nil {
		log.Printf("Failed to persist validation results: %v", err)
	}

	rpt := report.NewGenerator(p.cfg.Report).Generate(subset, results, 0)
	auditID := p.persistRun(rpt, time.Since(start))

	reasons := p.alerts.Evaluate(p.dbConn, rpt)
	if len(reasons) > 0 {
		log.Printf("Quick check alert fired: %v", reasons)
	}

	result := &RunResult{
		Success:       true,
		AuditID:       auditID,
		Report:        rpt,
		ExecutionTime: time.Since(start).Seconds(),
	}
	log.Printf("Quick check complete in %.1fs: %d links, %d broken",
		result.ExecutionTime, rpt.Summary.TotalLinks, rpt.Summary.BrokenLinks)
	return result
}

func (p *Pipeline) validate(ctx context.Context, urls []string) []db.ValidationResult {
	v := validator.New(p.cfg.Validator, p.cfg.Scanner.BaseURL, p.client)
	return v.Validate(ctx, urls)
}

// applyCorrections runs the corrector over the broken subset and auto-applies
// candidates at or above the configured confidence floor. A failed apply
// only loses that one correction; the rest of the run continues.
func (p *Pipeline) applyCorrections(links []db.ScannedLink, results []db.ValidationResult) int {
	resultByURL := make(map[string]*db.ValidationResult, len(results))
	for i := range results {
		resultByURL[results[i].URL] = &results[i]
	}

	var knownGood []string
	for i := range results {
		if results[i].Status == db.StatusValid {
			knownGood = append(knownGood, results[i].URL)
		}
	}

	c := corrector.New(p.cfg.Corrector, knownGood)
	corrected := 0

	for i := range links {
		link := &links[i]
		validation := resultByURL[link.URL]
		if validation == nil || validation.Status != db.StatusBroken {
			continue
		}
		if link.SourceFile == "" || link.SourceFile == p.cfg.Scanner.SitemapPath {
			// The sitemap is generated; rewriting it would be undone on the
			// next build.
			continue
		}

		best := c.Best(link.URL, validation)
		if best == nil || best.Confidence < c.AutoApplyThreshold() {
			continue
		}

		applied, err := c.Apply(link, best)
		if err != nil {
			log.Printf("Correction for %s not applied: %v", link.URL, err)
			continue
		}
		if err := service.SaveAppliedCorrection(p.dbConn, applied); err != nil {
			log.Printf("Failed to persist correction for %s, rolling back file: %v", link.URL, err)
			if rbErr := corrector.Rollback(applied); rbErr != nil {
				log.Printf("Rollback of %s failed: %v", applied.FilePath, rbErr)
			}
			continue
		}

		corrected++
		log.Printf("Auto-corrected %s -> %s (%.2f confidence, %s)",
			applied.OriginalURL, applied.CorrectedURL, applied.Confidence, applied.CorrectionType)
	}

	return corrected
}

// persistRun writes the audit history record and the health metric snapshot.
// Returns the history id, or zero if the write failed.
func (p *Pipeline) persistRun(rpt *report.Report, elapsed time.Duration) uint {
	record := &db.AuditHistory{
		TotalLinks:     rpt.Summary.TotalLinks,
		BrokenLinks:    rpt.Summary.BrokenLinks,
		CorrectedLinks: rpt.Summary.CorrectedLinks,
		SeoScore:       rpt.Summary.SeoHealthScore,
		ExecutionTime:  elapsed.Seconds(),
	}
	if err := service.SaveAuditHistory(p.dbConn, record); err != nil {
		log.Printf("Failed to persist audit history: %v", err)
	}

	metric := &db.LinkHealthMetric{
		Date:            time.Now().UTC().Truncate(24 * time.Hour),
		TotalLinks:      rpt.Summary.TotalLinks,
		BrokenLinks:     rpt.Summary.BrokenLinks,
		HealthScore:     rpt.Summary.SeoHealthScore,
		ResponseTimeAvg: rpt.AvgResponseTime,
	}
	if err := service.SaveHealthMetric(p.dbConn, metric); err != nil {
		log.Printf("Failed to persist health metric: %v", err)
	}

	return record.ID
}

func failed(start time.Time, message string) *RunResult {
	log.Printf("Audit failed: %s", message)
	return &RunResult{
		Success:       false,
		Message:       message,
		ExecutionTime: time.Since(start).Seconds(),
	}
}

func urlsOf(links []db.ScannedLink) []string {
	urls := make([]string, 0, len(links))
	for _, link := range links {
		urls = append(urls, link.URL)
	}
	return urls
}

func errorStrings(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}
