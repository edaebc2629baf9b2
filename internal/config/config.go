package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ScannerConfig controls content discovery.
type ScannerConfig struct {
	ContentRoot     string   `yaml:"content_root"`
	SitemapPath     string   `yaml:"sitemap_path"`
	BaseURL         string   `yaml:"base_url"`
	MaxDepth        int      `yaml:"max_depth"`
	IncludeExternal bool     `yaml:"include_external"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
}

// ValidatorConfig controls URL probing.
type ValidatorConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	UserAgent       string        `yaml:"user_agent"`
	FollowRedirects bool          `yaml:"follow_redirects"`
	CheckAnchors    bool          `yaml:"check_anchors"`
	BatchSize       int           `yaml:"batch_size"`
	RateLimitDelay  time.Duration `yaml:"rate_limit_delay"`
}

// CorrectorConfig holds the confidence policy for applying corrections.
// The thresholds are policy parameters, not invariants.
type CorrectorConfig struct {
	AutoApplyThreshold   float64 `yaml:"auto_apply_threshold"`
	ManualApplyThreshold float64 `yaml:"manual_apply_threshold"`
	TypoMaxDistance      int     `yaml:"typo_max_distance"`
}

// ReportConfig holds the weighting policy for SEO impact estimates.
type ReportConfig struct {
	WeightCritical     float64 `yaml:"weight_critical"`
	WeightHigh         float64 `yaml:"weight_high"`
	WeightMedium       float64 `yaml:"weight_medium"`
	WeightLow          float64 `yaml:"weight_low"`
	InternalMultiplier float64 `yaml:"internal_multiplier"`
	TrafficLossCap     float64 `yaml:"traffic_loss_cap"`
}

// AlertConfig holds notification thresholds.
type AlertConfig struct {
	Recipient       string `yaml:"recipient"`
	HealthDropDelta int    `yaml:"health_drop_delta"`
	BrokenThreshold int    `yaml:"broken_threshold"`
}

// SchedulerConfig controls the background queue processor.
type SchedulerConfig struct {
	TickInterval    time.Duration `yaml:"tick_interval"`
	DefaultPriority int           `yaml:"default_priority"`
}

// Config is the audit policy loaded from a YAML file.
type Config struct {
	Scanner   ScannerConfig   `yaml:"scanner"`
	Validator ValidatorConfig `yaml:"validator"`
	Corrector CorrectorConfig `yaml:"corrector"`
	Report    ReportConfig    `yaml:"report"`
	Alert     AlertConfig     `yaml:"alert"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// Default returns the built-in policy.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills zero values with the built-in policy.
func (c *Config) SetDefaults() {
	if c.Scanner.ContentRoot == "" {
		c.Scanner.ContentRoot = "./content"
	}
	if c.Scanner.BaseURL == "" {
		c.Scanner.BaseURL = "http://localhost:8080"
	}
	if c.Scanner.MaxDepth == 0 {
		c.Scanner.MaxDepth = 3
	}

	if c.Validator.Timeout == 0 {
		c.Validator.Timeout = 10 * time.Second
	}
	if c.Validator.RetryAttempts == 0 {
		c.Validator.RetryAttempts = 2
	}
	if c.Validator.UserAgent == "" {
		c.Validator.UserAgent = "LinkAudit/1.0"
	}
	if c.Validator.BatchSize == 0 {
		c.Validator.BatchSize = 10
	}
	if c.Validator.RateLimitDelay == 0 {
		c.Validator.RateLimitDelay = time.Second
	}

	if c.Corrector.AutoApplyThreshold == 0 {
		c.Corrector.AutoApplyThreshold = 0.8
	}
	if c.Corrector.ManualApplyThreshold == 0 {
		c.Corrector.ManualApplyThreshold = 0.7
	}
	if c.Corrector.TypoMaxDistance == 0 {
		c.Corrector.TypoMaxDistance = 2
	}

	if c.Report.WeightCritical == 0 {
		c.Report.WeightCritical = 5
	}
	if c.Report.WeightHigh == 0 {
		c.Report.WeightHigh = 3
	}
	if c.Report.WeightMedium == 0 {
		c.Report.WeightMedium = 1
	}
	if c.Report.WeightLow == 0 {
		c.Report.WeightLow = 0.5
	}
	if c.Report.InternalMultiplier == 0 {
		c.Report.InternalMultiplier = 1.5
	}
	if c.Report.TrafficLossCap == 0 {
		c.Report.TrafficLossCap = 25
	}

	if c.Alert.HealthDropDelta == 0 {
		c.Alert.HealthDropDelta = 10
	}
	if c.Alert.BrokenThreshold == 0 {
		c.Alert.BrokenThreshold = 20
	}

	if c.Scheduler.TickInterval == 0 {
		c.Scheduler.TickInterval = 30 * time.Second
	}
	if c.Scheduler.DefaultPriority == 0 {
		c.Scheduler.DefaultPriority = 5
	}
}

// Load reads the policy file at path and applies defaults. A missing file is
// not an error: the built-in policy is returned so the service can start
// without any configuration on disk.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("AUDIT_CONFIG")
	}
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}
