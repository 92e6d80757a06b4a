// Package pipeline runs one monitor pass: discover, crawl, persist, diff and
// notify.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-product-monitor/config"
	"github.com/aluiziolira/go-product-monitor/diff"
	"github.com/aluiziolira/go-product-monitor/models"
	"github.com/aluiziolira/go-product-monitor/notify"
	"github.com/aluiziolira/go-product-monitor/scraper"
	"github.com/aluiziolira/go-product-monitor/snapshot"
	"github.com/google/uuid"
)

var (
	// ErrDiscovery is returned when the product URL list cannot be built.
	ErrDiscovery = errors.New("pipeline: discovery failed")
	// ErrBaseline is returned when the previous snapshot exists but is unreadable.
	ErrBaseline = errors.New("pipeline: previous snapshot unreadable")
)

// Discoverer lists product page URLs from a root sitemap.
type Discoverer interface {
	Discover(ctx context.Context, rootURL string) ([]string, error)
}

// BatchRunner crawls a window of URLs.
type BatchRunner interface {
	RunBatch(ctx context.Context, urls []string, batch models.Batch) (*models.RunResult, error)
}

// Pipeline wires the monitor components together for a single run.
type Pipeline struct {
	cfg        *config.Config
	discoverer Discoverer
	crawler    BatchRunner
	store      snapshot.Store
	notifier   notify.Notifier
	metrics    *scraper.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// New builds a pipeline. metrics and logger may be nil.
func New(cfg *config.Config, discoverer Discoverer, crawler BatchRunner, store snapshot.Store, notifier notify.Notifier, metrics *scraper.Metrics, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Pipeline{
		cfg:        cfg,
		discoverer: discoverer,
		crawler:    crawler,
		store:      store,
		notifier:   notifier,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// NewCheckpointer returns a checkpointer that overwrites path with the
// records gathered so far.
func NewCheckpointer(store snapshot.Store, path string) scraper.CheckpointFunc {
	return func(records []models.Product) error {
		return store.Write(path, records)
	}
}

// Run executes one monitor pass. The previous snapshot is read before the
// crawl so the diff always compares against the last completed run. When ctx
// is cancelled mid-crawl the partial records go to the checkpoint file, the
// snapshot is left untouched and the context error is returned.
func (p *Pipeline) Run(ctx context.Context) (*models.RunResult, error) {
	runID := uuid.NewString()
	logger := p.logger.With(slog.String("run_id", runID))
	snapshotPath := p.cfg.SnapshotPath()

	logger.Info("starting run",
		slog.String("sitemap", p.cfg.SitemapURL),
		slog.Int("start", p.cfg.Batch.Start),
		slog.Int("end", p.cfg.Batch.End),
		slog.String("snapshot", snapshotPath),
	)

	urls, err := p.discoverer.Discover(ctx, p.cfg.SitemapURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}
	logger.Info("product urls discovered", slog.Int("urls", len(urls)))

	firstRun := !snapshot.Exists(snapshotPath)
	previous, err := p.store.LoadIdentifiers(snapshotPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBaseline, err)
	}
	logger.Info("previous snapshot loaded",
		slog.Int("known_products", len(previous)),
		slog.Bool("first_run", firstRun),
	)

	result, err := p.crawler.RunBatch(ctx, urls, p.cfg.Batch)
	if result == nil {
		result = models.NewRunResult()
	}
	result.RunID = runID
	result.FirstRun = firstRun
	if err != nil {
		p.savePartial(logger, result)
		return result, err
	}

	if len(result.Records) == 0 {
		logger.Warn("no products extracted, keeping previous snapshot",
			slog.Int("processed", result.Processed),
			slog.Int("failures", result.Failures),
		)
		p.removeCheckpoint(logger)
		p.notifySummary(ctx, result)
		p.metrics.ObserveRun(0, p.now())
		return result, nil
	}

	if err := p.store.Write(snapshotPath, result.Records); err != nil {
		return result, err
	}
	logger.Info("snapshot saved", slog.String("path", snapshotPath), slog.Int("records", len(result.Records)))
	p.removeCheckpoint(logger)

	result.NewRecords = diff.NewProducts(result.Records, previous)
	p.metrics.ObserveRun(len(result.NewRecords), p.now())

	if len(result.NewRecords) == 0 {
		logger.Info("no new products since last scan")
		p.notifySummary(ctx, result)
		return result, nil
	}

	newPath := p.cfg.NewProductsPath()
	if err := p.store.Write(newPath, result.NewRecords); err != nil {
		logger.Error("could not save new products", slog.String("path", newPath), slog.Any("error", err))
		newPath = ""
	} else {
		logger.Info("new products saved", slog.String("path", newPath), slog.Int("records", len(result.NewRecords)))
	}

	if firstRun && p.cfg.SuppressFirstRun {
		logger.Info("first run, notification suppressed", slog.Int("new_products", len(result.NewRecords)))
		return result, nil
	}
	p.notifier.Notify(ctx, NewProductsMessage(p.cfg.SiteURL(), newPath, result.NewRecords))
	return result, nil
}

func (p *Pipeline) savePartial(logger *slog.Logger, result *models.RunResult) {
	if len(result.Records) == 0 {
		return
	}
	path := p.cfg.CheckpointPath()
	if err := p.store.Write(path, result.Records); err != nil {
		logger.Error("could not save partial results", slog.String("path", path), slog.Any("error", err))
		return
	}
	logger.Info("partial results saved", slog.String("path", path), slog.Int("records", len(result.Records)))
}

// removeCheckpoint drops partial output left by an earlier interrupted run.
func (p *Pipeline) removeCheckpoint(logger *slog.Logger) {
	if err := snapshot.Remove(p.cfg.CheckpointPath()); err != nil {
		logger.Warn("could not remove checkpoint", slog.Any("error", err))
	}
}

func (p *Pipeline) notifySummary(ctx context.Context, result *models.RunResult) {
	if !p.cfg.NotifySummary {
		return
	}
	p.notifier.Notify(ctx, SummaryMessage(p.cfg.SiteURL(), result))
}
