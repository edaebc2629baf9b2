package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/sitepulse/linkaudit/internal/config"
	"github.com/sitepulse/linkaudit/internal/db"
	"github.com/sitepulse/linkaudit/internal/notify"
	"github.com/sitepulse/linkaudit/internal/pipeline"
)

// RunConfig holds one-shot audit configuration
type RunConfig struct {
	ConfigPath string
	Quick      bool
	JSONOutput bool
}

// NewRunConfig creates a new run configuration from flags
func NewRunConfig() *RunConfig {
	configPath := flag.String("config", "", "Path to the audit policy YAML (defaults to AUDIT_CONFIG)")
	quick := flag.Bool("quick", false, "Run a quick check instead of a full audit")
	jsonOutput := flag.Bool("json", false, "Print the full report as JSON")

	flag.Parse()

	return &RunConfig{
		ConfigPath: *configPath,
		Quick:      *quick,
		JSONOutput: *jsonOutput,
	}
}

func main() {
	runConfig := NewRunConfig()

	auditConfig, err := config.Load(runConfig.ConfigPath)
	if err != nil {
		log.Fatalf("Failed to load audit config: %v", err)
	}

	log.Println("Initializing database connection...")
	dbConn, err := db.InitDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	pipe := pipeline.New(dbConn, auditConfig, notify.NewFromEnv(), nil)

	var result *pipeline.RunResult
	if runConfig.Quick {
		result = pipe.RunQuickCheck(context.Background())
	} else {
		result = pipe.RunFullAudit(context.Background())
	}

	if runConfig.JSONOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(result); err != nil {
			log.Fatalf("Failed to encode result: %v", err)
		}
	} else if result.Report != nil {
		summary := result.Report.Summary
		log.Printf("Audit finished: %d links, %d valid, %d broken, %d corrected, health %d/100",
			summary.TotalLinks, summary.ValidLinks, summary.BrokenLinks,
			summary.CorrectedLinks, summary.SeoHealthScore)
		for _, action := range result.Report.SeoImpact.PriorityActions {
			log.Printf("  action: %s", action)
		}
	}

	if !result.Success {
		log.Fatalf("Audit failed after %.1fs: %s", result.ExecutionTime, result.Message)
	}
}
