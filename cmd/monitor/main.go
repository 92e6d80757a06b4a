package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-product-monitor/config"
	"github.com/aluiziolira/go-product-monitor/models"
	"github.com/aluiziolira/go-product-monitor/notify"
	"github.com/aluiziolira/go-product-monitor/parser"
	"github.com/aluiziolira/go-product-monitor/pipeline"
	"github.com/aluiziolira/go-product-monitor/scraper"
	"github.com/aluiziolira/go-product-monitor/sitemap"
	"github.com/aluiziolira/go-product-monitor/snapshot"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	if err := config.ApplyEnv(cfg, os.LookupEnv); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}
	bindFlags(flag.CommandLine, cfg)
	flag.Parse()
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, stopping after the current page")
	}()

	metrics := scraper.NewMetrics()
	p, err := buildPipeline(cfg, metrics, logger)
	if err != nil {
		slog.Error("initialising monitor", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := startMetricsServer(cfg.MetricsAddr, metrics)
	defer shutdownMetricsServer(metricsServer)

	if cfg.Schedule != "" {
		if err := runScheduled(ctx, cfg.Schedule, p, logger); err != nil {
			slog.Error("scheduler failed", slog.Any("error", err))
			shutdownMetricsServer(metricsServer)
			os.Exit(1)
		}
		return
	}

	if err := runOnce(ctx, p, cfg); err != nil {
		shutdownMetricsServer(metricsServer)
		os.Exit(1)
	}
}

func bindFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.SitemapURL, "sitemap", cfg.SitemapURL, "Root sitemap index URL (env SITEMAP_URL)")
	fs.StringVar(&cfg.SitemapInclude, "include", cfg.SitemapInclude, "Child sitemaps must contain this marker")
	fs.StringVar(&cfg.SitemapExclude, "exclude", cfg.SitemapExclude, "Child sitemaps containing this marker are skipped")
	fs.IntVar(&cfg.Batch.Start, "start", cfg.Batch.Start, "First URL index of the batch, inclusive (env START_INDEX)")
	fs.IntVar(&cfg.Batch.End, "end", cfg.Batch.End, "Last URL index of the batch, exclusive; 0 means all (env END_INDEX)")
	fs.DurationVar(&cfg.DelayMin, "delay-min", cfg.DelayMin, "Minimum pause before each page")
	fs.DurationVar(&cfg.DelayMax, "delay-max", cfg.DelayMax, "Maximum pause before each page")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout")
	fs.IntVar(&cfg.FetchAttempts, "attempts", cfg.FetchAttempts, "Fetch attempts per page")
	fs.DurationVar(&cfg.RetryDelay, "retry-delay", cfg.RetryDelay, "Pause between fetch attempts")
	fs.IntVar(&cfg.PageCacheSize, "cache-size", cfg.PageCacheSize, "Pages kept in the in-run cache; 0 disables it")
	fs.IntVar(&cfg.CheckpointEvery, "checkpoint-every", cfg.CheckpointEvery, "Write partial results every N processed URLs")
	fs.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "Directory for snapshot files")
	fs.StringVar(&cfg.OutputFormat, "format", cfg.OutputFormat, "Snapshot format: xlsx or csv")
	fs.BoolVar(&cfg.SuppressFirstRun, "suppress-first-run", cfg.SuppressFirstRun, "Do not notify when no previous snapshot exists")
	fs.BoolVar(&cfg.NotifySummary, "notify-summary", cfg.NotifySummary, "Also notify when nothing new was found")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	fs.StringVar(&cfg.Schedule, "schedule", cfg.Schedule, `Cron expression; keeps running and scans on schedule (e.g. "0 7 * * *")`)
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Enable verbose logging")
}

func buildPipeline(cfg *config.Config, metrics *scraper.Metrics, logger *slog.Logger) (*pipeline.Pipeline, error) {
	fetcher, err := scraper.NewFetcher(cfg, metrics, logger)
	if err != nil {
		return nil, err
	}
	store, err := snapshot.ForPath(cfg.SnapshotPath())
	if err != nil {
		return nil, err
	}

	reader := sitemap.NewReader(fetcher, sitemap.Filter{Include: cfg.SitemapInclude, Exclude: cfg.SitemapExclude}, logger)
	crawler := scraper.NewCrawler(cfg, fetcher, parser.NewExtractor(parser.DefaultSelectors()),
		scraper.WithCheckpointer(pipeline.NewCheckpointer(store, cfg.CheckpointPath())),
		scraper.WithMetrics(metrics),
		scraper.WithLogger(logger),
	)
	return pipeline.New(cfg, reader, crawler, store, notify.New(cfg, logger), metrics, logger), nil
}

func runOnce(ctx context.Context, p *pipeline.Pipeline, cfg *config.Config) error {
	result, err := p.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Warn("run interrupted", slog.String("partial", cfg.CheckpointPath()))
		} else {
			slog.Error("run failed", slog.Any("error", err))
		}
	}
	if result != nil {
		printSummary(os.Stdout, result, cfg)
	}
	return err
}

// runner is a single monitor pass.
type runner interface {
	Run(ctx context.Context) (*models.RunResult, error)
}

// runScheduled runs r on the cron spec until ctx is done. A tick that fires
// while the previous run is still going is skipped.
func runScheduled(ctx context.Context, spec string, r runner, logger *slog.Logger, opts ...cron.Option) error {
	cl := cronLogger{logger: logger}
	opts = append([]cron.Option{cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))}, opts...)
	c := cron.New(opts...)
	if _, err := c.AddFunc(spec, func() {
		if _, err := r.Run(ctx); err != nil {
			logger.Error("scheduled run failed", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	c.Start()
	logger.Info("scheduler started", slog.String("schedule", spec))
	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("scheduler stopped")
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{slog.Any("error", err)}, keysAndValues...)...)
}

func startMetricsServer(addr string, metrics *scraper.Metrics) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	server := &http.Server{
		Addr:    addr,
		Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func shutdownMetricsServer(server *http.Server) {
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func printSummary(w io.Writer, result *models.RunResult, cfg *config.Config) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Scan complete")

	t.AppendRow(table.Row{"Run ID", result.RunID})
	t.AppendRow(table.Row{"URLs processed", result.Processed})
	t.AppendRow(table.Row{"Products", len(result.Records)})
	t.AppendRow(table.Row{"New products", len(result.NewRecords)})
	t.AppendRow(table.Row{"Failures", result.Failures})
	for _, reason := range sortedReasons(result.Skipped) {
		t.AppendRow(table.Row{"  " + string(reason), result.Skipped[reason]})
	}
	t.AppendRow(table.Row{"Checkpoints", result.Checkpoints})
	t.AppendRow(table.Row{"First run", result.FirstRun})
	t.AppendRow(table.Row{"Duration", result.EndTime.Sub(result.StartTime).Round(time.Second)})
	t.AppendRow(table.Row{"Snapshot", cfg.SnapshotPath()})
	t.Render()

	if len(result.NewRecords) == 0 {
		return
	}
	nt := table.NewWriter()
	nt.SetOutputMirror(w)
	nt.SetStyle(table.StyleLight)
	nt.AppendHeader(table.Row{"#", "Title", "SKU", "Price", "URL"})
	for i, p := range result.NewRecords {
		nt.AppendRow(table.Row{i + 1, p.Title, p.SKU, p.PriceCurrent, p.URL})
	}
	nt.AppendFooter(table.Row{"", "Total", len(result.NewRecords), "", cfg.NewProductsPath()})
	nt.Render()
}

func sortedReasons(skipped map[models.SkipReason]int) []models.SkipReason {
	reasons := make([]models.SkipReason, 0, len(skipped))
	for reason := range skipped {
		reasons = append(reasons, reason)
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
	return reasons
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
