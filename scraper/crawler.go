package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-product-monitor/config"
	"github.com/aluiziolira/go-product-monitor/models"
	"github.com/aluiziolira/go-product-monitor/parser"
)

// PageFetcher retrieves a parsed page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// resetter is implemented by fetchers holding per-run state.
type resetter interface {
	Reset()
}

// ProductExtractor turns a parsed page into a product.
type ProductExtractor interface {
	Extract(doc *goquery.Document, sourceURL string) (*models.Product, error)
}

// Checkpointer persists the records accumulated so far.
type Checkpointer interface {
	Checkpoint(records []models.Product) error
}

// CheckpointFunc adapts a function to Checkpointer.
type CheckpointFunc func(records []models.Product) error

// Checkpoint calls f(records).
func (f CheckpointFunc) Checkpoint(records []models.Product) error {
	return f(records)
}

// Crawler walks a window of URLs one at a time.
type Crawler struct {
	fetcher         PageFetcher
	extractor       ProductExtractor
	checkpointer    Checkpointer
	metrics         *Metrics
	logger          *slog.Logger
	delayMin        time.Duration
	delayMax        time.Duration
	checkpointEvery int
	sleep           func(context.Context, time.Duration) error
}

// CrawlerOption customises a Crawler.
type CrawlerOption func(*Crawler)

// WithCheckpointer sets the partial-progress sink.
func WithCheckpointer(cp Checkpointer) CrawlerOption {
	return func(c *Crawler) { c.checkpointer = cp }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) CrawlerOption {
	return func(c *Crawler) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) CrawlerOption {
	return func(c *Crawler) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSleep replaces the inter-request pause.
func WithSleep(sleep func(context.Context, time.Duration) error) CrawlerOption {
	return func(c *Crawler) { c.sleep = sleep }
}

// NewCrawler builds a crawler using the delay and checkpoint settings of cfg.
func NewCrawler(cfg *config.Config, fetcher PageFetcher, extractor ProductExtractor, opts ...CrawlerOption) *Crawler {
	c := &Crawler{
		fetcher:         fetcher,
		extractor:       extractor,
		logger:          slog.Default(),
		delayMin:        cfg.DelayMin,
		delayMax:        cfg.DelayMax,
		checkpointEvery: cfg.CheckpointEvery,
		sleep:           sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunBatch processes urls[batch] sequentially. Per-URL failures are counted
// and skipped. When ctx is cancelled the partial result is returned along
// with the context error.
func (c *Crawler) RunBatch(ctx context.Context, urls []string, batch models.Batch) (*models.RunResult, error) {
	result := models.NewRunResult()
	result.StartTime = time.Now()
	defer func() { result.EndTime = time.Now() }()

	if r, ok := c.fetcher.(resetter); ok {
		r.Reset()
	}

	lo, hi := batch.Bounds(len(urls))
	total := hi - lo
	if total == 0 {
		c.logger.Info("empty batch, nothing to crawl",
			slog.Int("start", batch.Start),
			slog.Int("end", batch.End),
			slog.Int("urls", len(urls)),
		)
		return result, nil
	}

	c.logger.Info("starting batch",
		slog.Int("start", lo),
		slog.Int("end", hi),
		slog.Int("urls", total),
	)

	for i := lo; i < hi; i++ {
		if err := c.sleep(ctx, c.nextDelay()); err != nil {
			return result, err
		}

		outcome := c.process(ctx, i, urls[i])
		if !outcome.OK() && ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Record(outcome)
		c.report(outcome, i-lo+1, total)

		if c.checkpointEvery > 0 && result.Processed%c.checkpointEvery == 0 {
			c.checkpoint(result)
		}
	}

	c.logger.Info("batch complete",
		slog.Int("processed", result.Processed),
		slog.Int("products", len(result.Records)),
		slog.Int("failures", result.Failures),
	)
	return result, nil
}

func (c *Crawler) process(ctx context.Context, index int, rawURL string) models.Outcome {
	out := models.Outcome{Index: index, URL: rawURL}

	if err := parser.CheckURL(rawURL); err != nil {
		out.Reason = models.SkipMediaLink
		out.Err = err
		return out
	}

	page, err := c.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		out.Reason = models.SkipFetchFailed
		out.Err = err
		return out
	}

	product, err := c.extractor.Extract(page.Doc, rawURL)
	if err != nil {
		out.Reason = models.SkipNotProductPage
		var extractErr *parser.ExtractionError
		if errors.As(err, &extractErr) {
			out.Reason = extractErr.Reason
		}
		out.Err = err
		return out
	}

	out.Product = product
	return out
}

func (c *Crawler) report(o models.Outcome, n, total int) {
	progress := fmt.Sprintf("%d/%d", n, total)
	if o.OK() {
		c.metrics.IncItems()
		c.logger.Info("product scraped",
			slog.String("progress", progress),
			slog.String("title", o.Product.Title),
			slog.String("sku", o.Product.SKU),
		)
		return
	}
	c.metrics.IncSkip(o.Reason)
	c.logger.Warn("skipping url",
		slog.String("progress", progress),
		slog.String("url", o.URL),
		slog.String("reason", string(o.Reason)),
		slog.Any("error", o.Err),
	)
}

func (c *Crawler) checkpoint(result *models.RunResult) {
	if c.checkpointer == nil || len(result.Records) == 0 {
		return
	}
	if err := c.checkpointer.Checkpoint(result.Records); err != nil {
		c.logger.Error("checkpoint failed",
			slog.Int("records", len(result.Records)),
			slog.Any("error", err),
		)
		return
	}
	result.Checkpoints++
	c.metrics.IncCheckpoint()
	c.logger.Info("checkpoint written", slog.Int("records", len(result.Records)))
}

func (c *Crawler) nextDelay() time.Duration {
	if c.delayMax <= c.delayMin {
		return c.delayMin
	}
	delta := c.delayMax - c.delayMin
	return c.delayMin + time.Duration(rand.Int63n(int64(delta)+1))
}
