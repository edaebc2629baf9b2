package alert

import (
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"

	"github.com/sitepulse/linkaudit/internal/config"
	"github.com/sitepulse/linkaudit/internal/notify"
	"github.com/sitepulse/linkaudit/internal/report"
	"github.com/sitepulse/linkaudit/internal/service"
)

// Manager inspects the latest audit against history and notifies operators
// when a threshold rule matches. Notification is best-effort: delivery
// failures are logged and never fail the audit run.
type Manager struct {
	cfg      config.AlertConfig
	notifier notify.Notifier
}

func NewManager(cfg config.AlertConfig, notifier notify.Notifier) *Manager {
	return &Manager{cfg: cfg, notifier: notifier}
}

// Evaluate applies the threshold rules to the just-completed run and sends
// one notification covering every matched rule. The matched reasons are
// returned for the caller's log line; errors are handled internally.
func (m *Manager) Evaluate(dbConn *gorm.DB, rpt *report.Report) []string {
	reasons := m.matchRules(dbConn, rpt)
	if len(reasons) == 0 {
		return nil
	}

	subject := fmt.Sprintf("Link audit alert: health score %d", rpt.Summary.SeoHealthScore)
	if err := m.notifier.Send(m.cfg.Recipient, subject, renderBody(rpt, reasons)); err != nil {
		log.Printf("Alert notification failed (non-fatal): %v", err)
	}

	return reasons
}

func (m *Manager) matchRules(dbConn *gorm.DB, rpt *report.Report) []string {
	var reasons []string

	if rpt.SeoImpact.CriticalIssues > 0 {
		reasons = append(reasons, fmt.Sprintf("%d critical links are broken", rpt.SeoImpact.CriticalIssues))
	}
	if rpt.Summary.BrokenLinks > m.cfg.BrokenThreshold {
		reasons = append(reasons, fmt.Sprintf("broken link count %d exceeds threshold %d",
			rpt.Summary.BrokenLinks, m.cfg.BrokenThreshold))
	}

	if drop, ok := m.healthDrop(dbConn, rpt.Summary.SeoHealthScore); ok && drop >= m.cfg.HealthDropDelta {
		reasons = append(reasons, fmt.Sprintf("health score dropped %d points since the previous run", drop))
	}

	return reasons
}

// healthDrop computes the score delta versus the run before this one. The
// latest history record is the current run, so the trend baseline is the
// second newest.
func (m *Manager) healthDrop(dbConn *gorm.DB, currentScore int) (int, bool) {
	history, err := service.RecentAuditHistory(dbConn, 2)
	if err != nil {
		log.Printf("Failed to load audit history for trend: %v", err)
		return 0, false
	}

	if len(history) < 2 {
		return 0, false
	}

	previous := history[1]
	return previous.SeoScore - currentScore, true
}

func renderBody(rpt *report.Report, reasons []string) string {
	var b strings.Builder

	b.WriteString("The scheduled link audit crossed alert thresholds:\n\n")
	for _, reason := range reasons {
		fmt.Fprintf(&b, "  - %s\n", reason)
	}

	fmt.Fprintf(&b, "\nSummary: %d links scanned, %d broken, %d corrected, health score %d/100.\n",
		rpt.Summary.TotalLinks, rpt.Summary.BrokenLinks,
		rpt.Summary.CorrectedLinks, rpt.Summary.SeoHealthScore)
	fmt.Fprintf(&b, "Estimated traffic loss: %.1f%%\n", rpt.SeoImpact.EstimatedTrafficLoss)

	if len(rpt.SeoImpact.PriorityActions) > 0 {
		b.WriteString("\nRecommended actions:\n")
		for _, action := range rpt.SeoImpact.PriorityActions {
			fmt.Fprintf(&b, "  - %s\n", action)
		}
	}

	return b.String()
}
