package corrector

import (
	"fmt"
	"math"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/sitepulse/linkaudit/internal/db"
)

// Suggestion is a ranked correction candidate. It is ephemeral: nothing is
// persisted until a candidate is actually applied.
type Suggestion struct {
	OriginalURL  string            `json:"original_url"`
	SuggestedURL string            `json:"suggested_url"`
	Confidence   float64           `json:"confidence"`
	Type         db.CorrectionType `json:"correction_type"`
	Reasoning    string            `json:"reasoning"`
}

// Suggest generates candidates for one broken link from all four strategies
// and returns them ranked by descending confidence.
func (c *Corrector) Suggest(brokenURL string, validation *db.ValidationResult) []Suggestion {
	var candidates []Suggestion

	if s := c.typoCandidate(brokenURL); s != nil {
		candidates = append(candidates, *s)
	}
	if s := c.extensionCandidate(brokenURL); s != nil {
		candidates = append(candidates, *s)
	}
	if s := redirectCandidate(brokenURL, validation); s != nil {
		candidates = append(candidates, *s)
	}
	if s := c.similarCandidate(brokenURL); s != nil {
		candidates = append(candidates, *s)
	}

	// Confidences are rounded to two decimals so that policy-table values
	// like the 0.8 a distance-1 typo earns compare equal to the configured
	// thresholds instead of sitting a float ulp below them.
	for i := range candidates {
		candidates[i].Confidence = round2(clamp01(candidates[i].Confidence))
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	return candidates
}

// Best returns the top candidate for one broken link, or nil when no
// strategy produced anything.
func (c *Corrector) Best(brokenURL string, validation *db.ValidationResult) *Suggestion {
	candidates := c.Suggest(brokenURL, validation)
	if len(candidates) == 0 {
		return nil
	}
	return &candidates[0]
}

// typoCandidate looks for a known-good URL within a small edit distance.
func (c *Corrector) typoCandidate(brokenURL string) *Suggestion {
	bestDistance := c.cfg.TypoMaxDistance + 1
	bestURL := ""

	for _, known := range c.knownGood {
		if known == brokenURL {
			continue
		}
		d := levenshtein(brokenURL, known)
		if d < bestDistance {
			bestDistance = d
			bestURL = known
		}
	}

	if bestURL == "" {
		return nil
	}

	return &Suggestion{
		OriginalURL:  brokenURL,
		SuggestedURL: bestURL,
		Confidence:   0.95 - 0.15*float64(bestDistance),
		Type:         db.CorrectionTypo,
		Reasoning:    fmt.Sprintf("known-good URL at edit distance %d", bestDistance),
	}
}

// extensionCandidate tries common extension substitutions (.html vs bare
// path, .htm and .php to .html). A swap confirmed against the known-good set
// scores well above an unverified one.
func (c *Corrector) extensionCandidate(brokenURL string) *Suggestion {
	var alternates []string
	requireVerified := false

	switch ext := strings.ToLower(path.Ext(brokenURL)); ext {
	case "":
		// Adding an extension blindly is guesswork; only suggest it when
		// the result is a URL already known to resolve.
		requireVerified = true
		alternates = append(alternates, strings.TrimSuffix(brokenURL, "/")+".html")
	case ".html":
		alternates = append(alternates, strings.TrimSuffix(brokenURL, ext))
	case ".htm", ".php":
		alternates = append(alternates, strings.TrimSuffix(brokenURL, ext)+".html")
	default:
		return nil
	}

	for _, alt := range alternates {
		if alt == brokenURL || alt == "" {
			continue
		}
		verified := c.isKnownGood(alt)
		if requireVerified && !verified {
			continue
		}
		confidence := 0.55
		reasoning := "extension substitution (unverified)"
		if verified {
			confidence = 0.85
			reasoning = "extension substitution confirmed against known-good URLs"
		}
		return &Suggestion{
			OriginalURL:  brokenURL,
			SuggestedURL: alt,
			Confidence:   confidence,
			Type:         db.CorrectionExtension,
			Reasoning:    reasoning,
		}
	}
	return nil
}

// redirectCandidate proposes the target the validator recorded. A permanent
// redirect means the resource moved; a temporary one still makes a usable
// candidate, just at lower confidence.
func redirectCandidate(brokenURL string, validation *db.ValidationResult) *Suggestion {
	if validation == nil || validation.RedirectURL == "" {
		return nil
	}

	suggestion := &Suggestion{
		OriginalURL:  brokenURL,
		SuggestedURL: validation.RedirectURL,
		Type:         db.CorrectionRedirect,
		Confidence:   0.75,
		Reasoning:    fmt.Sprintf("server redirected with HTTP %d", validation.StatusCode),
	}
	if validation.StatusCode == http.StatusMovedPermanently || validation.StatusCode == http.StatusPermanentRedirect {
		suggestion.Type = db.CorrectionMoved
		suggestion.Confidence = 0.9
		suggestion.Reasoning = fmt.Sprintf("resource moved permanently (HTTP %d)", validation.StatusCode)
	}
	return suggestion
}

// similarCandidate searches sibling paths under the same directory for the
// closest name.
func (c *Corrector) similarCandidate(brokenURL string) *Suggestion {
	dir := path.Dir(brokenURL)
	name := path.Base(brokenURL)
	if name == "" || name == "/" || name == "." {
		return nil
	}

	bestScore := 0.0
	bestURL := ""
	for _, known := range c.knownGood {
		if known == brokenURL || path.Dir(known) != dir {
			continue
		}
		score := similarity(name, path.Base(known))
		if score > bestScore {
			bestScore = score
			bestURL = known
		}
	}

	if bestURL == "" || bestScore < 0.5 {
		return nil
	}

	return &Suggestion{
		OriginalURL:  brokenURL,
		SuggestedURL: bestURL,
		Confidence:   bestScore * 0.8,
		Type:         db.CorrectionSimilar,
		Reasoning:    fmt.Sprintf("sibling path %.0f%% similar", bestScore*100),
	}
}

func (c *Corrector) isKnownGood(url string) bool {
	for _, known := range c.knownGood {
		if known == url {
			return true
		}
	}
	return false
}

// similarity maps edit distance onto [0,1], 1 meaning identical.
func similarity(a, b string) float64 {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

// levenshtein computes edit distance with a two-row matrix.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
