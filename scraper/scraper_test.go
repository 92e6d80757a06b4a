package scraper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/aluiziolira/go-product-monitor/config"
	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "gone", err: nil, statusCode: http.StatusGone, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: errors.New("Internal Server Error"), statusCode: http.StatusInternalServerError, expected: "status"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "cancelled", err: context.Canceled, want: false},
		{name: "not found", err: ErrNotFound{Err: errors.New("404")}, want: false},
		{name: "forbidden", err: ErrForbidden{Err: errors.New("403")}, want: false},
		{name: "timeout", err: ErrTimeout{Err: context.DeadlineExceeded}, want: true},
		{name: "server error", err: ErrStatus{Code: 502, Err: errors.New("bad gateway")}, want: true},
		{name: "rate limited", err: ErrRateLimited{Err: errors.New("429")}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Fatalf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Timeout = 5 * time.Second
	cfg.RetryDelay = time.Hour
	cfg.DelayMin = 0
	cfg.DelayMax = 0
	return cfg
}

func newTestFetcher(t *testing.T, cfg *config.Config, transport http.RoundTripper) (*Fetcher, *Metrics, *[]time.Duration) {
	t.Helper()
	metrics := NewMetrics()
	f, err := NewFetcher(cfg, metrics, quietLogger())
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	f.WithTransport(transport)
	var sleeps []time.Duration
	f.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return f, metrics, &sleeps
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func TestFetcherFetchParsesPage(t *testing.T) {
	const u = "http://shop.test/p/a/"
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", u, htmlResponder(`<html><body><h1 class="product_title">A</h1></body></html>`))

	f, _, _ := newTestFetcher(t, testConfig(), transport)
	page, err := f.Fetch(context.Background(), u)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if page.StatusCode != 200 {
		t.Fatalf("status=%d, want 200", page.StatusCode)
	}
	if got := page.Doc.Find("h1.product_title").Text(); got != "A" {
		t.Fatalf("title=%q, want A", got)
	}
}

func TestFetcherRetriesTransientFailures(t *testing.T) {
	const u = "http://shop.test/p/flaky/"
	calls := 0
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", u, func(req *http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return httpmock.NewStringResponse(http.StatusServiceUnavailable, ""), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, "<html><body>ok</body></html>"), nil
	})

	cfg := testConfig()
	cfg.FetchAttempts = 3
	cfg.RetryDelay = 5 * time.Second
	f, metrics, sleeps := newTestFetcher(t, cfg, transport)

	if _, err := f.Fetch(context.Background(), u); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls=%d, want 3", calls)
	}
	if len(*sleeps) != 2 || (*sleeps)[0] != 5*time.Second {
		t.Fatalf("sleeps=%v, want two 5s pauses", *sleeps)
	}
	if got := testutil.ToFloat64(metrics.RetriesTotal); got != 2 {
		t.Fatalf("retries metric=%v, want 2", got)
	}
}

func TestFetcherGivesUpAfterAttempts(t *testing.T) {
	const u = "http://shop.test/p/down/"
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", u, httpmock.NewStringResponder(http.StatusBadGateway, ""))

	cfg := testConfig()
	cfg.FetchAttempts = 3
	f, metrics, _ := newTestFetcher(t, cfg, transport)

	_, err := f.Fetch(context.Background(), u)
	var status ErrStatus
	if !errors.As(err, &status) || status.Code != http.StatusBadGateway {
		t.Fatalf("expected ErrStatus 502, got %v", err)
	}
	if got := transport.GetTotalCallCount(); got != 3 {
		t.Fatalf("calls=%d, want 3", got)
	}
	if got := testutil.ToFloat64(metrics.ErrorsTotal.WithLabelValues("status")); got != 3 {
		t.Fatalf("status errors=%v, want 3", got)
	}
}

func TestFetcherDoesNotRetryNotFound(t *testing.T) {
	const u = "http://shop.test/p/missing/"
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", u, httpmock.NewStringResponder(http.StatusNotFound, ""))

	f, _, sleeps := newTestFetcher(t, testConfig(), transport)
	_, err := f.Fetch(context.Background(), u)
	var notFound ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got := transport.GetTotalCallCount(); got != 1 {
		t.Fatalf("calls=%d, want 1", got)
	}
	if len(*sleeps) != 0 {
		t.Fatalf("unexpected retry pauses: %v", *sleeps)
	}
}

func TestFetcherRetriesConnectionErrors(t *testing.T) {
	const u = "http://shop.test/p/reset/"
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", u, httpmock.NewErrorResponder(errors.New("connection reset")))

	cfg := testConfig()
	cfg.FetchAttempts = 2
	f, _, _ := newTestFetcher(t, cfg, transport)
	if _, err := f.Fetch(context.Background(), u); err == nil {
		t.Fatalf("expected error")
	}
	if got := transport.GetTotalCallCount(); got != 2 {
		t.Fatalf("calls=%d, want 2", got)
	}
}

func TestFetcherCachesPages(t *testing.T) {
	const u = "http://shop.test/p/dup/"
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", u, htmlResponder(`<html><body>dup</body></html>`))

	cfg := testConfig()
	cfg.PageCacheSize = 8
	f, metrics, _ := newTestFetcher(t, cfg, transport)

	for i := 0; i < 3; i++ {
		if _, err := f.Fetch(context.Background(), u); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if got := transport.GetTotalCallCount(); got != 1 {
		t.Fatalf("calls=%d, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.CacheHitsTotal); got != 2 {
		t.Fatalf("cache hits=%v, want 2", got)
	}
}

func TestFetcherCacheDisabled(t *testing.T) {
	const u = "http://shop.test/p/dup/"
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", u, htmlResponder(`<html><body>dup</body></html>`))

	cfg := testConfig()
	cfg.PageCacheSize = 0
	f, _, _ := newTestFetcher(t, cfg, transport)

	for i := 0; i < 2; i++ {
		if _, err := f.Fetch(context.Background(), u); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if got := transport.GetTotalCallCount(); got != 2 {
		t.Fatalf("calls=%d, want 2", got)
	}
}

func TestFetcherGetSingleAttempt(t *testing.T) {
	const u = "http://shop.test/sitemap_index.xml"
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", u, httpmock.NewStringResponder(http.StatusInternalServerError, ""))

	cfg := testConfig()
	cfg.FetchAttempts = 3
	f, _, _ := newTestFetcher(t, cfg, transport)
	if _, err := f.Get(context.Background(), u); err == nil {
		t.Fatalf("expected error")
	}
	if got := transport.GetTotalCallCount(); got != 1 {
		t.Fatalf("calls=%d, want 1", got)
	}
}

func TestFetcherCancelledContext(t *testing.T) {
	const u = "http://shop.test/p/a/"
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", u, htmlResponder(`<html></html>`))

	f, _, _ := newTestFetcher(t, testConfig(), transport)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.Fetch(ctx, u); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := transport.GetTotalCallCount(); got != 0 {
		t.Fatalf("calls=%d, want 0", got)
	}
}
