package validator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sitepulse/linkaudit/internal/config"
	"github.com/sitepulse/linkaudit/internal/db"
)

// Validator probes URLs over HTTP with bounded concurrency, retry and
// rate limiting between batches.
type Validator struct {
	cfg    config.ValidatorConfig
	base   *url.URL
	client *http.Client

	// sleep is replaceable in tests to avoid real backoff waits.
	sleep func(time.Duration)
}

// New creates a Validator. A nil client builds one from the configuration;
// tests inject a client with a fake transport.
func New(cfg config.ValidatorConfig, baseURL string, client *http.Client) *Validator {
	base, err := url.Parse(baseURL)
	if err != nil {
		log.Printf("Invalid base URL %q, relative URLs will not resolve: %v", baseURL, err)
		base = nil
	}

	if client == nil {
		client = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &Validator{
		cfg:    cfg,
		base:   base,
		client: client,
		sleep:  time.Sleep,
	}
}

// Validate probes each distinct URL and returns one result per URL. URLs are
// processed in batches of BatchSize with at most BatchSize requests in flight
// at once; between batches the validator sleeps RateLimitDelay. The delay is
// a politeness control toward target hosts, not a performance defect.
func (v *Validator) Validate(ctx context.Context, urls []string) []db.ValidationResult {
	urls = distinct(urls)
	results := make([]db.ValidationResult, len(urls))

	batchSize := v.cfg.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	for start := 0; start < len(urls); start += batchSize {
		end := start + batchSize
		if end > len(urls) {
			end = len(urls)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = v.probeWithRetry(ctx, urls[i])
			}(i)
		}
		wg.Wait()

		if end < len(urls) && v.cfg.RateLimitDelay > 0 {
			v.sleep(v.cfg.RateLimitDelay)
		}
	}

	return results
}

// probeWithRetry retries transient failures (timeout, 5xx) with linear
// backoff, up to RetryAttempts extra attempts. Permanent 4xx results are
// never retried. The retry sleeps occupy only this probe's slot in the batch.
func (v *Validator) probeWithRetry(ctx context.Context, target string) db.ValidationResult {
	var result db.ValidationResult

	for attempt := 0; attempt <= v.cfg.RetryAttempts; attempt++ {
		result = v.probe(ctx, target)
		if !transient(result) || attempt == v.cfg.RetryAttempts {
			break
		}
		v.sleep(time.Duration(attempt+1) * 500 * time.Millisecond)
	}

	return result
}

func transient(result db.ValidationResult) bool {
	if result.Status == db.StatusTimeout {
		return true
	}
	return result.Status == db.StatusBroken && result.StatusCode >= 500
}

// probe issues a single HEAD request (with GET fallback) and classifies the
// response. Failures that are neither a clean status code nor a timeout are
// recorded as unknown; they must never be coerced to broken.
func (v *Validator) probe(ctx context.Context, target string) db.ValidationResult {
	result := db.ValidationResult{URL: target, CheckedAt: time.Now().UTC()}
	start := time.Now()
	defer func() {
		result.ResponseTime = time.Since(start).Milliseconds()
	}()

	resolved, fragment, err := v.resolve(target)
	if err != nil {
		result.Status = db.StatusUnknown
		result.ErrorMessage = err.Error()
		return result
	}
	if resolved == "" {
		// Bare fragment reference; nothing to fetch.
		result.Status = db.StatusValid
		return result
	}

	if fragment != "" && v.cfg.CheckAnchors {
		return v.probeAnchor(ctx, resolved, fragment, result)
	}

	resp, err := v.request(ctx, http.MethodHead, resolved)
	if err == nil && headRejected(resp.StatusCode) {
		resp.Body.Close()
		resp, err = v.request(ctx, http.MethodGet, resolved)
	}
	if err != nil {
		return classifyError(err, result)
	}
	defer resp.Body.Close()

	return classifyResponse(resp, result)
}

// probeAnchor fetches the document and confirms the fragment id exists.
func (v *Validator) probeAnchor(ctx context.Context, target, fragment string, result db.ValidationResult) db.ValidationResult {
	resp, err := v.request(ctx, http.MethodGet, target)
	if err != nil {
		return classifyError(err, result)
	}
	defer resp.Body.Close()

	result = classifyResponse(resp, result)
	if result.Status != db.StatusValid {
		return result
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		result.Status = db.StatusUnknown
		result.ErrorMessage = fmt.Sprintf("failed to parse document for anchor check: %v", err)
		return result
	}

	selector := fmt.Sprintf("#%s, a[name=%q]", fragment, fragment)
	if doc.Find(selector).Length() == 0 {
		result.Status = db.StatusBroken
		result.ErrorMessage = fmt.Sprintf("anchor #%s not found in document", fragment)
	}
	return result
}

func (v *Validator) request(ctx context.Context, method, target string) (*http.Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", v.cfg.UserAgent)

	return v.client.Do(req)
}

// resolve turns a scanned reference into an absolute URL plus its fragment.
// An empty URL with a fragment means the reference points into its own page.
func (v *Validator) resolve(target string) (string, string, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return "", "", fmt.Errorf("malformed URL: %w", err)
	}

	fragment := parsed.Fragment
	parsed.Fragment = ""

	if parsed.Scheme == "" && parsed.Host == "" {
		if parsed.Path == "" {
			return "", fragment, nil
		}
		if v.base == nil {
			return "", "", fmt.Errorf("relative URL %q with no base URL", target)
		}
		parsed = v.base.ResolveReference(parsed)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}

	return parsed.String(), fragment, nil
}

func headRejected(code int) bool {
	return code == http.StatusMethodNotAllowed || code == http.StatusNotImplemented
}

func classifyResponse(resp *http.Response, result db.ValidationResult) db.ValidationResult {
	result.StatusCode = resp.StatusCode

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		result.Status = db.StatusValid
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		result.Status = db.StatusRedirect
		result.RedirectURL = resp.Header.Get("Location")
	default:
		result.Status = db.StatusBroken
		result.ErrorMessage = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	return result
}

func classifyError(err error, result db.ValidationResult) db.ValidationResult {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		result.Status = db.StatusTimeout
	default:
		result.Status = db.StatusUnknown
	}
	result.ErrorMessage = err.Error()
	return result
}

func distinct(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
