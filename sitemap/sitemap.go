// Package sitemap discovers product page URLs from a sitemap index.
package sitemap

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	sitemapxml "github.com/oxffaa/gopher-parse-sitemap"
)

// Getter fetches a raw document body.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Filter keeps child sitemaps containing Include and not containing Exclude.
type Filter struct {
	Include string
	Exclude string
}

// Match reports whether a child sitemap URL lists product pages.
func (f Filter) Match(u string) bool {
	if f.Include != "" && !strings.Contains(u, f.Include) {
		return false
	}
	if f.Exclude != "" && strings.Contains(u, f.Exclude) {
		return false
	}
	return true
}

// Reader walks a sitemap index and flattens the product sitemaps it lists.
type Reader struct {
	getter Getter
	filter Filter
	logger *slog.Logger
}

// NewReader creates a reader. A nil logger uses slog.Default().
func NewReader(getter Getter, filter Filter, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{getter: getter, filter: filter, logger: logger}
}

// Discover returns every page URL listed by the matching child sitemaps, in
// listing order. Duplicates are kept. Any fetch or parse failure aborts the
// discovery so that batch offsets always index a complete sequence.
func (r *Reader) Discover(ctx context.Context, rootURL string) ([]string, error) {
	r.logger.Info("fetching sitemap index", slog.String("url", rootURL))
	body, err := r.getter.Get(ctx, rootURL)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap index: %w", err)
	}

	children, err := parseIndex(body)
	if err != nil {
		return nil, fmt.Errorf("parse sitemap index %s: %w", rootURL, err)
	}

	var urls []string
	for _, child := range children {
		if !r.filter.Match(child) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.logger.Info("fetching product sitemap", slog.String("url", child))
		childBody, err := r.getter.Get(ctx, child)
		if err != nil {
			return nil, fmt.Errorf("fetch sitemap %s: %w", child, err)
		}
		locs, err := parseURLSet(childBody)
		if err != nil {
			return nil, fmt.Errorf("parse sitemap %s: %w", child, err)
		}
		urls = append(urls, locs...)
	}

	r.logger.Info("sitemap discovery complete",
		slog.Int("sitemaps", len(children)),
		slog.Int("urls", len(urls)),
	)
	return urls, nil
}

func parseIndex(body []byte) ([]string, error) {
	var out []string
	err := sitemapxml.ParseIndex(bytes.NewReader(body), func(e sitemapxml.IndexEntry) error {
		if loc := strings.TrimSpace(e.GetLocation()); loc != "" {
			out = append(out, loc)
		}
		return nil
	})
	return out, err
}

func parseURLSet(body []byte) ([]string, error) {
	var out []string
	err := sitemapxml.Parse(bytes.NewReader(body), func(e sitemapxml.Entry) error {
		if loc := strings.TrimSpace(e.GetLocation()); loc != "" {
			out = append(out, loc)
		}
		return nil
	})
	return out, err
}
