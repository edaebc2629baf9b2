package report

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sitepulse/linkaudit/internal/config"
	"github.com/sitepulse/linkaudit/internal/db"
)

// Summary holds the headline counts of one audit run.
type Summary struct {
	TotalLinks     int `json:"total_links"`
	ValidLinks     int `json:"valid_links"`
	BrokenLinks    int `json:"broken_links"`
	CorrectedLinks int `json:"corrected_links"`
	PendingLinks   int `json:"pending_links"`
	SeoHealthScore int `json:"seo_health_score"`
}

// SeoImpact estimates the business effect of the broken links found.
type SeoImpact struct {
	CriticalIssues       int      `json:"critical_issues"`
	EstimatedTrafficLoss float64  `json:"estimated_traffic_loss"`
	AffectedPages        []string `json:"affected_pages"`
	PriorityActions      []string `json:"priority_actions"`
}

// Report aggregates one audit run.
type Report struct {
	Summary         Summary   `json:"summary"`
	SeoImpact       SeoImpact `json:"seo_impact"`
	AvgResponseTime int64     `json:"avg_response_time"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// Generator builds reports from scan and validation output.
type Generator struct {
	cfg config.ReportConfig
}

func NewGenerator(cfg config.ReportConfig) *Generator {
	return &Generator{cfg: cfg}
}

// Generate aggregates scanned links and validation results. It is read-only
// and tolerant of partial data: links without a validation result count as
// pending rather than failing the report.
func (g *Generator) Generate(links []db.ScannedLink, results []db.ValidationResult, correctedLinks int) *Report {
	statusByURL := make(map[string]db.ValidationStatus, len(results))
	for _, r := range results {
		statusByURL[r.URL] = r.Status
	}

	summary := Summary{
		TotalLinks:     len(links),
		CorrectedLinks: correctedLinks,
	}
	impact := SeoImpact{AffectedPages: []string{}, PriorityActions: []string{}}

	affected := map[string]bool{}
	var trafficLoss float64
	var brokenInternal, redirects, timeouts int

	for _, link := range links {
		switch statusByURL[link.URL] {
		case db.StatusValid:
			summary.ValidLinks++
		case db.StatusBroken:
			summary.BrokenLinks++
			if link.Priority == db.PriorityCritical {
				impact.CriticalIssues++
			}
			if link.LinkType == db.LinkInternal {
				brokenInternal++
			}
			if link.SourceFile != "" {
				affected[link.SourceFile] = true
			}
			trafficLoss += g.impactWeight(link)
		case db.StatusRedirect:
			redirects++
			summary.PendingLinks++
		case db.StatusTimeout, db.StatusUnknown:
			if statusByURL[link.URL] == db.StatusTimeout {
				timeouts++
			}
			summary.PendingLinks++
		default:
			// No validation result for this link in this run.
			summary.PendingLinks++
		}
	}

	summary.SeoHealthScore = HealthScore(summary.TotalLinks, summary.BrokenLinks)

	if trafficLoss > g.cfg.TrafficLossCap {
		trafficLoss = g.cfg.TrafficLossCap
	}
	impact.EstimatedTrafficLoss = math.Round(trafficLoss*100) / 100

	for page := range affected {
		impact.AffectedPages = append(impact.AffectedPages, page)
	}
	sort.Strings(impact.AffectedPages)

	impact.PriorityActions = priorityActions(impact.CriticalIssues, summary.BrokenLinks, brokenInternal, redirects, timeouts)

	return &Report{
		Summary:         summary,
		SeoImpact:       impact,
		AvgResponseTime: avgResponseTime(results),
		GeneratedAt:     time.Now().UTC(),
	}
}

// HealthScore is the percentage of scanned links that did not validate as
// broken. An empty scan scores 100 so that a site with nothing to check is
// not reported as degraded.
func HealthScore(totalLinks, brokenLinks int) int {
	if totalLinks == 0 {
		return 100
	}
	return int(math.Round(100 * float64(totalLinks-brokenLinks) / float64(totalLinks)))
}

// impactWeight applies the traffic-loss policy: priority weight, multiplied
// for internal links since those also break crawl paths.
func (g *Generator) impactWeight(link db.ScannedLink) float64 {
	var weight float64
	switch link.Priority {
	case db.PriorityCritical:
		weight = g.cfg.WeightCritical
	case db.PriorityHigh:
		weight = g.cfg.WeightHigh
	case db.PriorityMedium:
		weight = g.cfg.WeightMedium
	case db.PriorityLow:
		weight = g.cfg.WeightLow
	}
	if link.LinkType == db.LinkInternal {
		weight *= g.cfg.InternalMultiplier
	}
	return weight
}

func priorityActions(critical, broken, brokenInternal, redirects, timeouts int) []string {
	var actions []string

	if critical > 0 {
		actions = append(actions, fmt.Sprintf("Fix %d critical broken links now", critical))
	}
	if brokenInternal > 0 {
		actions = append(actions, fmt.Sprintf("Repair %d broken internal links to restore site navigation", brokenInternal))
	}
	if remaining := broken - brokenInternal; remaining > 0 {
		actions = append(actions, fmt.Sprintf("Review %d broken external or download links", remaining))
	}
	if redirects > 0 {
		actions = append(actions, fmt.Sprintf("Update %d redirected links to point at their final targets", redirects))
	}
	if timeouts > 0 {
		actions = append(actions, fmt.Sprintf("Investigate %d links that timed out during validation", timeouts))
	}
	if len(actions) == 0 {
		actions = append(actions, "No action required; all links are healthy")
	}

	return actions
}

func avgResponseTime(results []db.ValidationResult) int64 {
	if len(results) == 0 {
		return 0
	}
	var total int64
	for _, r := range results {
		total += r.ResponseTime
	}
	return total / int64(len(results))
}
