package corrector

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sitepulse/linkaudit/internal/config"
	"github.com/sitepulse/linkaudit/internal/db"
)

// Corrector generates correction candidates for broken links and applies
// approved candidates to source files with a recorded rollback.
//
// The Corrector itself enforces no confidence gate; callers compare the top
// candidate against their policy threshold (auto-apply vs. manual) before
// calling Apply.
type Corrector struct {
	cfg       config.CorrectorConfig
	knownGood []string
}

// New creates a Corrector. knownGood is the set of URLs that validated
// successfully in the current run; candidate strategies rank against it.
func New(cfg config.CorrectorConfig, knownGood []string) *Corrector {
	return &Corrector{cfg: cfg, knownGood: knownGood}
}

// AutoApplyThreshold returns the pipeline's unattended-apply floor.
func (c *Corrector) AutoApplyThreshold() float64 {
	return c.cfg.AutoApplyThreshold
}

// ManualApplyThreshold returns the floor for operator-requested single fixes.
func (c *Corrector) ManualApplyThreshold() float64 {
	return c.cfg.ManualApplyThreshold
}

// Apply rewrites the literal URL occurrence recorded in link inside the
// source file and returns the applied correction with full rollback data.
//
// Stale location data is a correctness error: if the original URL is not
// found at the recorded line (or anywhere in the file when no line was
// recorded) Apply fails loudly instead of writing anything.
func (c *Corrector) Apply(link *db.ScannedLink, suggestion *Suggestion) (*db.AppliedCorrection, error) {
	if link == nil || suggestion == nil {
		return nil, fmt.Errorf("link and suggestion are required")
	}
	if suggestion.SuggestedURL == "" || suggestion.SuggestedURL == link.URL {
		return nil, fmt.Errorf("suggestion has no replacement URL for %s", link.URL)
	}

	info, err := os.Stat(link.SourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source file %s: %w", link.SourceFile, err)
	}

	original, err := os.ReadFile(link.SourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read source file %s: %w", link.SourceFile, err)
	}

	updated, err := replaceAt(string(original), link, suggestion.SuggestedURL)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(link.SourceFile, []byte(updated), info.Mode().Perm()); err != nil {
		return nil, fmt.Errorf("failed to write corrected file %s: %w", link.SourceFile, err)
	}

	return &db.AppliedCorrection{
		OriginalURL:    link.URL,
		CorrectedURL:   suggestion.SuggestedURL,
		FilePath:       link.SourceFile,
		CorrectionType: suggestion.Type,
		Confidence:     suggestion.Confidence,
		RollbackID:     uuid.NewString(),
		AppliedAt:      time.Now().UTC(),
		RollbackData:   string(original),
	}, nil
}

// Rollback restores the pre-correction file content byte for byte.
func Rollback(correction *db.AppliedCorrection) error {
	if correction == nil || correction.RollbackID == "" || correction.RollbackData == "" {
		return fmt.Errorf("correction has no rollback data")
	}

	mode := os.FileMode(0o644)
	if info, err := os.Stat(correction.FilePath); err == nil {
		mode = info.Mode().Perm()
	}

	if err := os.WriteFile(correction.FilePath, []byte(correction.RollbackData), mode); err != nil {
		return fmt.Errorf("failed to restore %s: %w", correction.FilePath, err)
	}
	return nil
}

// replaceAt substitutes the first standalone occurrence of the original URL
// on the recorded source line. With no recorded line it falls back to the
// first standalone occurrence in the whole file. Occurrences embedded in a
// longer URL never match: rewriting "/guide" must not touch "/guide.html".
func replaceAt(content string, link *db.ScannedLink, replacement string) (string, error) {
	if link.SourceLine <= 0 {
		updated, ok := replaceToken(content, link.URL, replacement)
		if !ok {
			return "", fmt.Errorf("original URL %q not found as a standalone link in %s", link.URL, link.SourceFile)
		}
		return updated, nil
	}

	lines := strings.Split(content, "\n")
	if link.SourceLine > len(lines) {
		return "", fmt.Errorf("recorded line %d is past the end of %s (%d lines)",
			link.SourceLine, link.SourceFile, len(lines))
	}

	idx := link.SourceLine - 1
	updated, ok := replaceToken(lines[idx], link.URL, replacement)
	if !ok {
		if strings.Contains(lines[idx], link.URL) {
			return "", fmt.Errorf("URL %q at %s:%d only appears embedded in a longer link; refusing to rewrite",
				link.URL, link.SourceFile, link.SourceLine)
		}
		return "", fmt.Errorf("original URL %q not found at %s:%d; source location is stale",
			link.URL, link.SourceFile, link.SourceLine)
	}

	lines[idx] = updated
	return strings.Join(lines, "\n"), nil
}

// replaceToken substitutes the first occurrence of oldURL that stands alone
// as a complete URL token.
func replaceToken(s, oldURL, replacement string) (string, bool) {
	for from := 0; ; {
		idx := strings.Index(s[from:], oldURL)
		if idx < 0 {
			return s, false
		}
		idx += from
		if standsAlone(s, idx, len(oldURL)) {
			return s[:idx] + replacement + s[idx+len(oldURL):], true
		}
		from = idx + 1
	}
}

// standsAlone reports whether the occurrence at idx is a complete URL token
// rather than a fragment of a longer one.
func standsAlone(s string, idx, length int) bool {
	if idx > 0 && isURLTokenByte(s[idx-1]) {
		return false
	}
	if end := idx + length; end < len(s) && isURLTokenByte(s[end]) {
		return false
	}
	return true
}

func isURLTokenByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	}
	return strings.IndexByte("/._~%-?&=#+", b) >= 0
}
