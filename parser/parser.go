// Package parser extracts product records from WooCommerce product pages.
package parser

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-product-monitor/models"
)

// ErrNotProductPage is wrapped by every ExtractionError.
var ErrNotProductPage = errors.New("not a product page")

// ExtractionError reports why a page produced no record.
type ExtractionError struct {
	URL    string
	Reason models.SkipReason
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Reason, e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

var mediaExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
	".svg":  {},
	".bmp":  {},
	".pdf":  {},
}

// CheckURL rejects links that point at media files rather than pages.
func CheckURL(rawURL string) error {
	p := rawURL
	if parsed, err := url.Parse(rawURL); err == nil {
		p = parsed.Path
	}
	if _, ok := mediaExtensions[strings.ToLower(path.Ext(p))]; ok {
		return &ExtractionError{URL: rawURL, Reason: models.SkipMediaLink, Err: ErrNotProductPage}
	}
	return nil
}

// Selectors locate product fields on a page.
type Selectors struct {
	Title            string
	PriceBlock       string
	PriceAmount      string
	PriceStruck      string
	PriceHighlighted string
	SKULabel         string
	SKUElement       string
	Description      string
}

// DefaultSelectors matches the WooCommerce theme of the monitored shop.
func DefaultSelectors() Selectors {
	return Selectors{
		Title:            "h1.product_title",
		PriceBlock:       "p.price",
		PriceAmount:      ".woocommerce-Price-amount",
		PriceStruck:      "del .woocommerce-Price-amount",
		PriceHighlighted: "ins .woocommerce-Price-amount",
		SKULabel:         "Cod produs:",
		SKUElement:       ".sku",
		Description:      "#tab-description",
	}
}

// Extractor turns parsed pages into product records.
type Extractor struct {
	sel Selectors
}

// NewExtractor builds an extractor using sel.
func NewExtractor(sel Selectors) *Extractor {
	return &Extractor{sel: sel}
}

// Extract reads a product from doc. Only the title is required; price, SKU
// and description fall back to empty strings.
func (e *Extractor) Extract(doc *goquery.Document, sourceURL string) (*models.Product, error) {
	if err := CheckURL(sourceURL); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, &ExtractionError{URL: sourceURL, Reason: models.SkipNotProductPage, Err: ErrNotProductPage}
	}

	title := Text(doc.Find(e.sel.Title).First())
	if title == "" {
		return nil, &ExtractionError{
			URL:    sourceURL,
			Reason: models.SkipNotProductPage,
			Err:    fmt.Errorf("%w: no %q element", ErrNotProductPage, e.sel.Title),
		}
	}

	original, current := e.prices(doc)
	product := &models.Product{
		Title:         title,
		SKU:           e.sku(doc),
		PriceOriginal: original,
		PriceCurrent:  current,
		Description:   Text(doc.Find(e.sel.Description).First()),
		URL:           sourceURL,
	}
	if err := ValidateProduct(product); err != nil {
		return nil, &ExtractionError{URL: sourceURL, Reason: models.SkipNotProductPage, Err: err}
	}
	return product, nil
}

func (e *Extractor) prices(doc *goquery.Document) (original, current string) {
	block := doc.Find(e.sel.PriceBlock).First()
	if block.Length() == 0 {
		return "", ""
	}

	struck := Text(block.Find(e.sel.PriceStruck).First())
	highlighted := Text(block.Find(e.sel.PriceHighlighted).First())
	if struck != "" && highlighted != "" {
		return struck, highlighted
	}

	single := highlighted
	if single == "" {
		single = struck
	}
	if single == "" {
		single = Text(block.Find(e.sel.PriceAmount).First())
	}
	return single, single
}

func (e *Extractor) sku(doc *goquery.Document) string {
	if e.sel.SKULabel != "" {
		label := labelTextNode(doc, e.sel.SKULabel)
		if label.Length() > 0 {
			raw := label.Get(0).Data
			value := NormalizeSpace(raw[strings.Index(raw, e.sel.SKULabel)+len(e.sel.SKULabel):])
			if value != "" {
				return value
			}
			if next := Text(label.NextAll().First()); next != "" {
				return next
			}
		}
	}
	if e.sel.SKUElement != "" {
		return Text(doc.Find(e.sel.SKUElement).First())
	}
	return ""
}

// ValidateProduct ensures the extractor captured the required fields.
func ValidateProduct(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("product missing title")
	}
	if strings.TrimSpace(p.URL) == "" {
		return fmt.Errorf("product missing url for %s", p.Title)
	}
	return nil
}
