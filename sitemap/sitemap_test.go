package sitemap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
)

type mapGetter struct {
	bodies map[string]string
	calls  []string
}

func (g *mapGetter) Get(_ context.Context, url string) ([]byte, error) {
	g.calls = append(g.calls, url)
	body, ok := g.bodies[url]
	if !ok {
		return nil, fmt.Errorf("no body for %s", url)
	}
	return []byte(body), nil
}

func index(locs ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	for _, loc := range locs {
		fmt.Fprintf(&b, "<sitemap><loc>%s</loc></sitemap>", loc)
	}
	b.WriteString("</sitemapindex>")
	return b.String()
}

func urlset(locs ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	for _, loc := range locs {
		fmt.Fprintf(&b, "<url><loc>%s</loc></url>", loc)
	}
	b.WriteString("</urlset>")
	return b.String()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDiscoverFiltersProductSitemaps(t *testing.T) {
	const root = "https://shop.test/sitemap_index.xml"
	getter := &mapGetter{bodies: map[string]string{
		root: index(
			"https://shop.test/product-sitemap.xml",
			"https://shop.test/product_cat-product-sitemap.xml",
			"https://shop.test/page-sitemap.xml",
		),
		"https://shop.test/product-sitemap.xml": urlset(
			"https://shop.test/p/a/",
			"https://shop.test/p/b/",
			"https://shop.test/p/c/",
		),
		"https://shop.test/product_cat-product-sitemap.xml": urlset(
			"https://shop.test/c/x/",
			"https://shop.test/c/y/",
		),
	}}

	r := NewReader(getter, Filter{Include: "product-sitemap", Exclude: "product_cat"}, quietLogger())
	urls, err := r.Discover(context.Background(), root)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	want := []string{"https://shop.test/p/a/", "https://shop.test/p/b/", "https://shop.test/p/c/"}
	if !reflect.DeepEqual(urls, want) {
		t.Fatalf("urls=%v, want %v", urls, want)
	}
	for _, call := range getter.calls {
		if strings.Contains(call, "product_cat") || strings.Contains(call, "page-sitemap") {
			t.Fatalf("excluded sitemap fetched: %s", call)
		}
	}
}

func TestDiscoverKeepsOrderAndDuplicates(t *testing.T) {
	const root = "https://shop.test/sitemap_index.xml"
	getter := &mapGetter{bodies: map[string]string{
		root: index("https://shop.test/product-sitemap.xml", "https://shop.test/product-sitemap2.xml"),
		"https://shop.test/product-sitemap.xml":  urlset("https://shop.test/p/b/", "https://shop.test/p/a/"),
		"https://shop.test/product-sitemap2.xml": urlset("https://shop.test/p/a/", "https://shop.test/p/z/"),
	}}

	r := NewReader(getter, Filter{Include: "product-sitemap", Exclude: "product_cat"}, quietLogger())
	urls, err := r.Discover(context.Background(), root)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	want := []string{"https://shop.test/p/b/", "https://shop.test/p/a/", "https://shop.test/p/a/", "https://shop.test/p/z/"}
	if !reflect.DeepEqual(urls, want) {
		t.Fatalf("urls=%v, want %v", urls, want)
	}
}

func TestDiscoverRootFailurePropagates(t *testing.T) {
	r := NewReader(&mapGetter{bodies: map[string]string{}}, Filter{Include: "product-sitemap"}, quietLogger())
	if _, err := r.Discover(context.Background(), "https://shop.test/sitemap_index.xml"); err == nil {
		t.Fatalf("expected error for unreachable root sitemap")
	}
}

func TestDiscoverChildFailureAborts(t *testing.T) {
	const root = "https://shop.test/sitemap_index.xml"
	getter := &mapGetter{bodies: map[string]string{
		root:                                    index("https://shop.test/product-sitemap.xml", "https://shop.test/product-sitemap2.xml"),
		"https://shop.test/product-sitemap.xml": urlset("https://shop.test/p/a/"),
	}}

	r := NewReader(getter, Filter{Include: "product-sitemap"}, quietLogger())
	_, err := r.Discover(context.Background(), root)
	if err == nil || !strings.Contains(err.Error(), "product-sitemap2.xml") {
		t.Fatalf("expected child sitemap error, got %v", err)
	}
}

func TestDiscoverCancelled(t *testing.T) {
	const root = "https://shop.test/sitemap_index.xml"
	getter := &mapGetter{bodies: map[string]string{
		root: index("https://shop.test/product-sitemap.xml"),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewReader(getter, Filter{Include: "product-sitemap"}, quietLogger())
	if _, err := r.Discover(ctx, root); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFilterMatch(t *testing.T) {
	f := Filter{Include: "product-sitemap", Exclude: "product_cat"}
	tests := []struct {
		url  string
		want bool
	}{
		{url: "https://shop.test/product-sitemap.xml", want: true},
		{url: "https://shop.test/product-sitemap3.xml", want: true},
		{url: "https://shop.test/product_cat-sitemap.xml", want: false},
		{url: "https://shop.test/product_cat-product-sitemap.xml", want: false},
		{url: "https://shop.test/post-sitemap.xml", want: false},
	}
	for _, tt := range tests {
		if got := f.Match(tt.url); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}
