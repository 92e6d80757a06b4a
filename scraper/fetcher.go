package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-product-monitor/config"
	"github.com/gocolly/colly/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Page is a fetched and parsed HTML document.
type Page struct {
	URL        string
	StatusCode int
	Doc        *goquery.Document
}

// Fetcher issues sequential GET requests through a colly collector, retrying
// failed attempts a fixed number of times with a fixed pause.
type Fetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	cache     *lru.Cache[string, []byte]
	metrics   *Metrics
	logger    *slog.Logger
	sleep     func(context.Context, time.Duration) error
}

// NewFetcher builds a fetcher configured from cfg. metrics and logger may be nil.
func NewFetcher(cfg *config.Config, metrics *Metrics, logger *slog.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	f := &Fetcher{
		cfg:       cfg,
		collector: collector,
		metrics:   metrics,
		logger:    logger,
		sleep:     sleepContext,
	}
	if cfg.PageCacheSize > 0 {
		cache, err := lru.New[string, []byte](cfg.PageCacheSize)
		if err != nil {
			return nil, fmt.Errorf("create page cache: %w", err)
		}
		f.cache = cache
	}
	return f, nil
}

// WithTransport replaces the HTTP transport used by every request.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Reset drops every cached page. The cache only dedupes URLs within a run.
func (f *Fetcher) Reset() {
	if f.cache != nil {
		f.cache.Purge()
	}
}

// Get performs a single GET and returns the raw body.
func (f *Fetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	body, _, err := f.do(ctx, rawURL)
	if err != nil {
		f.metrics.IncError(errorTypeLabel(err))
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	return body, nil
}

// Fetch retrieves and parses an HTML page. Transient failures are retried up
// to cfg.FetchAttempts attempts, cfg.RetryDelay apart.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if f.cache != nil {
		if body, ok := f.cache.Get(rawURL); ok {
			f.metrics.IncCacheHit()
			return newPage(rawURL, http.StatusOK, body)
		}
	}

	var lastErr error
	attempt := 1
	for ; attempt <= f.cfg.FetchAttempts; attempt++ {
		body, status, err := f.do(ctx, rawURL)
		if err == nil {
			if f.cache != nil {
				f.cache.Add(rawURL, body)
			}
			return newPage(rawURL, status, body)
		}

		lastErr = err
		category := errorTypeLabel(err)
		f.metrics.IncError(category)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) || attempt == f.cfg.FetchAttempts {
			break
		}

		f.metrics.IncRetries()
		f.logger.Warn("fetch failed, retrying",
			slog.String("url", rawURL),
			slog.Int("attempt", attempt),
			slog.String("category", category),
			slog.Any("error", err),
		)
		if err := f.sleep(ctx, f.cfg.RetryDelay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("fetch %s after %d attempt(s): %w", rawURL, attempt, lastErr)
}

func (f *Fetcher) do(ctx context.Context, rawURL string) ([]byte, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	var (
		body     []byte
		status   int
		fetchErr error
	)
	c := f.collector.Clone()
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		f.metrics.IncRequest("started")
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
		f.metrics.IncRequest("completed")
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
		f.metrics.IncRequest("failed")
	})

	start := time.Now()
	err := c.Visit(rawURL)
	f.metrics.ObserveDuration(time.Since(start))

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, status, ctxErr
	}
	if err == nil {
		err = fetchErr
	}
	if err == nil && (status < 200 || status > 299) {
		err = fmt.Errorf("unexpected status %d", status)
	}
	if err != nil {
		return nil, status, classifyError(err, status)
	}
	return body, status, nil
}

func newPage(rawURL string, status int, body []byte) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", rawURL, err)
	}
	return &Page{URL: rawURL, StatusCode: status, Doc: doc}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
