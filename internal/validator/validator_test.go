package validator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitepulse/linkaudit/internal/config"
	"github.com/sitepulse/linkaudit/internal/db"
)

func testConfig() config.ValidatorConfig {
	return config.ValidatorConfig{
		Timeout:        2 * time.Second,
		RetryAttempts:  2,
		UserAgent:      "LinkAudit-test/1.0",
		BatchSize:      5,
		RateLimitDelay: time.Millisecond,
	}
}

func newTestValidator(t *testing.T, cfg config.ValidatorConfig, baseURL string, transport http.RoundTripper) *Validator {
	t.Helper()
	v := New(cfg, baseURL, &http.Client{Transport: transport})
	v.sleep = func(time.Duration) {}
	return v
}

// countingTransport routes by URL path and counts attempts per URL.
type countingTransport struct {
	mu       sync.Mutex
	attempts map[string]int
	handler  func(req *http.Request) (*http.Response, error)
}

func (tr *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tr.mu.Lock()
	if tr.attempts == nil {
		tr.attempts = map[string]int{}
	}
	tr.attempts[req.URL.String()]++
	tr.mu.Unlock()
	return tr.handler(req)
}

func (tr *countingTransport) count(url string) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.attempts[url]
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func response(req *http.Request, code int, headers map[string]string) (*http.Response, error) {
	resp := &http.Response{
		StatusCode: code,
		Status:     http.StatusText(code),
		Header:     make(http.Header),
		Body:       http.NoBody,
		Request:    req,
	}
	for k, v := range headers {
		resp.Header.Set(k, v)
	}
	return resp, nil
}

func TestProbeClassification(t *testing.T) {
	transport := &countingTransport{handler: func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/ok":
			return response(req, http.StatusOK, nil)
		case "/missing":
			return response(req, http.StatusNotFound, nil)
		case "/moved":
			return response(req, http.StatusMovedPermanently, map[string]string{"Location": "https://example.test/new"})
		default:
			return response(req, http.StatusOK, nil)
		}
	}}

	v := newTestValidator(t, testConfig(), "https://example.test", transport)
	results := v.Validate(context.Background(), []string{"/ok", "/missing", "/moved"})
	require.Len(t, results, 3)

	byURL := map[string]db.ValidationResult{}
	for _, r := range results {
		byURL[r.URL] = r
	}

	assert.Equal(t, db.StatusValid, byURL["/ok"].Status)
	assert.Equal(t, http.StatusOK, byURL["/ok"].StatusCode)

	assert.Equal(t, db.StatusBroken, byURL["/missing"].Status)
	assert.Equal(t, http.StatusNotFound, byURL["/missing"].StatusCode)

	assert.Equal(t, db.StatusRedirect, byURL["/moved"].Status)
	assert.Equal(t, "https://example.test/new", byURL["/moved"].RedirectURL)
}

func TestTimeoutRetriesExactly(t *testing.T) {
	transport := &countingTransport{handler: func(req *http.Request) (*http.Response, error) {
		return nil, timeoutError{}
	}}

	cfg := testConfig()
	cfg.RetryAttempts = 2
	v := newTestValidator(t, cfg, "https://example.test", transport)

	results := v.Validate(context.Background(), []string{"https://slow.test/page"})
	require.Len(t, results, 1)
	assert.Equal(t, db.StatusTimeout, results[0].Status)
	// retryAttempts+1 total attempts for a persistent timeout.
	assert.Equal(t, 3, transport.count("https://slow.test/page"))
}

func TestPermanent404IsNotRetried(t *testing.T) {
	transport := &countingTransport{handler: func(req *http.Request) (*http.Response, error) {
		return response(req, http.StatusNotFound, nil)
	}}

	v := newTestValidator(t, testConfig(), "https://example.test", transport)
	results := v.Validate(context.Background(), []string{"https://example.test/gone"})
	require.Len(t, results, 1)
	assert.Equal(t, db.StatusBroken, results[0].Status)
	assert.Equal(t, 1, transport.count("https://example.test/gone"))
}

func TestServerErrorIsRetriedThenBroken(t *testing.T) {
	transport := &countingTransport{handler: func(req *http.Request) (*http.Response, error) {
		return response(req, http.StatusInternalServerError, nil)
	}}

	cfg := testConfig()
	cfg.RetryAttempts = 1
	v := newTestValidator(t, cfg, "https://example.test", transport)

	results := v.Validate(context.Background(), []string{"https://example.test/flaky"})
	require.Len(t, results, 1)
	assert.Equal(t, db.StatusBroken, results[0].Status)
	assert.Equal(t, 2, transport.count("https://example.test/flaky"))
}

func TestUnknownIsNeverCoercedToBroken(t *testing.T) {
	v := newTestValidator(t, testConfig(), "https://example.test", &countingTransport{
		handler: func(req *http.Request) (*http.Response, error) {
			return response(req, http.StatusOK, nil)
		},
	})

	results := v.Validate(context.Background(), []string{
		"http://[::1",              // malformed
		"ftp://example.test/file", // unsupported scheme
	})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, db.StatusUnknown, r.Status, "url %s", r.URL)
		assert.NotEmpty(t, r.ErrorMessage)
	}
}

func TestHeadFallsBackToGet(t *testing.T) {
	var methods []string
	var mu sync.Mutex
	transport := &countingTransport{handler: func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		methods = append(methods, req.Method)
		mu.Unlock()
		if req.Method == http.MethodHead {
			return response(req, http.StatusMethodNotAllowed, nil)
		}
		return response(req, http.StatusOK, nil)
	}}

	v := newTestValidator(t, testConfig(), "https://example.test", transport)
	results := v.Validate(context.Background(), []string{"https://example.test/no-head"})
	require.Len(t, results, 1)
	assert.Equal(t, db.StatusValid, results[0].Status)
	assert.Equal(t, []string{http.MethodHead, http.MethodGet}, methods)
}

func TestBatchConcurrencyNeverExceedsBatchSize(t *testing.T) {
	var inFlight, maxInFlight int64
	transport := &countingTransport{handler: func(req *http.Request) (*http.Response, error) {
		current := atomic.AddInt64(&inFlight, 1)
		for {
			observed := atomic.LoadInt64(&maxInFlight)
			if current <= observed || atomic.CompareAndSwapInt64(&maxInFlight, observed, current) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return response(req, http.StatusOK, nil)
	}}

	cfg := testConfig()
	cfg.BatchSize = 5
	v := newTestValidator(t, cfg, "https://example.test", transport)

	urls := make([]string, 25)
	for i := range urls {
		urls[i] = "https://example.test/page-" + string(rune('a'+i))
	}

	results := v.Validate(context.Background(), urls)
	assert.Len(t, results, 25)
	assert.LessOrEqual(t, atomic.LoadInt64(&maxInFlight), int64(5))
}

func TestBareFragmentIsTriviallyValid(t *testing.T) {
	transport := &countingTransport{handler: func(req *http.Request) (*http.Response, error) {
		t.Error("no request should be issued for a bare fragment")
		return response(req, http.StatusOK, nil)
	}}

	v := newTestValidator(t, testConfig(), "https://example.test", transport)
	results := v.Validate(context.Background(), []string{"#introduction"})
	require.Len(t, results, 1)
	assert.Equal(t, db.StatusValid, results[0].Status)
}

func TestAnchorCheckAgainstDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><h2 id="pricing">Pricing</h2></body></html>`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.CheckAnchors = true
	v := New(cfg, srv.URL, nil)
	v.sleep = func(time.Duration) {}

	results := v.Validate(context.Background(), []string{
		srv.URL + "/page#pricing",
		srv.URL + "/page#does-not-exist",
	})
	require.Len(t, results, 2)

	byURL := map[string]db.ValidationResult{}
	for _, r := range results {
		byURL[r.URL] = r
	}
	assert.Equal(t, db.StatusValid, byURL[srv.URL+"/page#pricing"].Status)
	assert.Equal(t, db.StatusBroken, byURL[srv.URL+"/page#does-not-exist"].Status)
}

func TestRelativeURLsResolveAgainstBase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/about" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	v := New(testConfig(), srv.URL, nil)
	v.sleep = func(time.Duration) {}

	results := v.Validate(context.Background(), []string{"/about", "/nope"})
	require.Len(t, results, 2)

	byURL := map[string]db.ValidationResult{}
	for _, r := range results {
		byURL[r.URL] = r
	}
	assert.Equal(t, db.StatusValid, byURL["/about"].Status)
	assert.Equal(t, db.StatusBroken, byURL["/nope"].Status)
}
