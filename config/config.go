package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/aluiziolira/go-product-monitor/models"
)

// Config holds monitor configuration. Components receive it at construction
// and never read the environment themselves.
type Config struct {
	SitemapURL     string
	SitemapInclude string
	SitemapExclude string

	Timeout       time.Duration
	FetchAttempts int
	RetryDelay    time.Duration
	DelayMin      time.Duration
	DelayMax      time.Duration
	PageCacheSize int
	UserAgent     string

	Batch           models.Batch
	CheckpointEvery int

	OutputDir    string
	OutputFormat string // xlsx or csv

	TelegramToken   string
	TelegramChatID  string
	TelegramAPIBase string

	SuppressFirstRun bool
	NotifySummary    bool

	MetricsAddr string
	Schedule    string
	Verbose     bool
}

// DefaultConfig returns conservative defaults for the monitored shop.
func DefaultConfig() *Config {
	return &Config{
		SitemapURL:      "https://materialedidactice.ro/sitemap_index.xml",
		SitemapInclude:  "product-sitemap",
		SitemapExclude:  "product_cat",
		Timeout:         30 * time.Second,
		FetchAttempts:   3,
		RetryDelay:      5 * time.Second,
		DelayMin:        4 * time.Second,
		DelayMax:        8 * time.Second,
		PageCacheSize:   256,
		UserAgent:       "Mozilla/5.0 (compatible; SiteMonitor/1.0)",
		CheckpointEvery: 1000,
		OutputDir:       "output",
		OutputFormat:    "xlsx",
		TelegramAPIBase: "https://api.telegram.org",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.SitemapURL == "" {
		return fmt.Errorf("sitemap URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.SitemapURL)
	if err != nil {
		return fmt.Errorf("invalid sitemap URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("sitemap URL must include a host")
	}
	if c.SitemapInclude == "" {
		return fmt.Errorf("sitemap include marker cannot be empty")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.FetchAttempts <= 0 {
		return fmt.Errorf("fetch attempts must be positive")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}
	if c.DelayMin < 0 {
		return fmt.Errorf("delay min cannot be negative")
	}
	if c.DelayMax < c.DelayMin {
		return fmt.Errorf("delay max (%s) cannot be below delay min (%s)", c.DelayMax, c.DelayMin)
	}
	if c.PageCacheSize < 0 {
		return fmt.Errorf("page cache size cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	if c.Batch.Start < 0 {
		return fmt.Errorf("batch start cannot be negative")
	}
	if c.Batch.End < 0 {
		return fmt.Errorf("batch end cannot be negative")
	}
	if c.Batch.End > 0 && c.Batch.End <= c.Batch.Start {
		return fmt.Errorf("batch end (%d) must be greater than batch start (%d)", c.Batch.End, c.Batch.Start)
	}
	if c.CheckpointEvery <= 0 {
		return fmt.Errorf("checkpoint interval must be positive")
	}

	if c.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}
	if c.OutputFormat != "xlsx" && c.OutputFormat != "csv" {
		return fmt.Errorf("output format must be xlsx or csv")
	}
	if c.TelegramAPIBase == "" {
		return fmt.Errorf("telegram API base cannot be empty")
	}

	return nil
}

// NotifierEnabled reports whether both Telegram credentials are present.
func (c *Config) NotifierEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != ""
}

// SnapshotPath is the file holding the full record set of this batch.
// Batched runs get their own file so each window diffs against itself.
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.OutputDir, c.baseName()+"."+c.OutputFormat)
}

// NewProductsPath is the file holding only the newly detected products.
func (c *Config) NewProductsPath() string {
	return filepath.Join(c.OutputDir, c.baseName()+"_new."+c.OutputFormat)
}

// CheckpointPath is the write-only file for partial progress.
func (c *Config) CheckpointPath() string {
	return filepath.Join(c.OutputDir, c.baseName()+"_partial."+c.OutputFormat)
}

func (c *Config) baseName() string {
	if !c.Batch.IsBounded() {
		return "products"
	}
	end := "end"
	if c.Batch.End > 0 {
		end = fmt.Sprintf("%d", c.Batch.End)
	}
	return strings.Join([]string{"products", fmt.Sprintf("%d", c.Batch.Start), end}, "_")
}

// SiteURL returns the scheme and host of the sitemap, used in messages.
func (c *Config) SiteURL() string {
	parsed, err := url.Parse(c.SitemapURL)
	if err != nil || parsed.Host == "" {
		return c.SitemapURL
	}
	return parsed.Scheme + "://" + parsed.Host
}
